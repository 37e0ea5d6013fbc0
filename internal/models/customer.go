package models

import (
	"encoding/json"
	"time"
)

// EntitlementInfo is one active entitlement inside a customer snapshot.
type EntitlementInfo struct {
	Identifier        string     `json:"identifier"`
	ProductIdentifier string     `json:"productIdentifier,omitempty"`
	PurchaseDate      *time.Time `json:"purchaseDate,omitempty"`
	ExpirationDate    *time.Time `json:"expirationDate,omitempty"` // nil for lifetime grants
}

// IsLifetime reports whether the entitlement never expires.
func (e EntitlementInfo) IsLifetime() bool {
	return e.ExpirationDate == nil
}

// CustomerInfo is the vendor's view of a user's entitlements at RequestDate.
// A snapshot is never mutated after construction; callers replace it whole.
type CustomerInfo struct {
	AppUserID          string                     `json:"appUserId"`
	ActiveEntitlements map[string]EntitlementInfo `json:"activeEntitlements"`
	RequestDate        time.Time                  `json:"requestDate"`
	Raw                json.RawMessage            `json:"raw,omitempty"`
}

// NewCustomerInfo copies the given entitlements into a fresh snapshot.
func NewCustomerInfo(appUserID string, requestDate time.Time, active []EntitlementInfo, raw json.RawMessage) *CustomerInfo {
	m := make(map[string]EntitlementInfo, len(active))
	for _, e := range active {
		m[e.Identifier] = e
	}
	return &CustomerInfo{
		AppUserID:          appUserID,
		ActiveEntitlements: m,
		RequestDate:        requestDate,
		Raw:                raw,
	}
}

// HasActive reports whether id is in the active set. Safe on a nil receiver.
func (c *CustomerInfo) HasActive(id string) bool {
	if c == nil {
		return false
	}
	_, ok := c.ActiveEntitlements[id]
	return ok
}

// Entitlement returns the active entitlement with the given id.
func (c *CustomerInfo) Entitlement(id string) (EntitlementInfo, bool) {
	if c == nil {
		return EntitlementInfo{}, false
	}
	e, ok := c.ActiveEntitlements[id]
	return e, ok
}

// ActiveIdentifiers lists the active entitlement ids in no particular order.
func (c *CustomerInfo) ActiveIdentifiers() []string {
	if c == nil {
		return nil
	}
	ids := make([]string, 0, len(c.ActiveEntitlements))
	for id := range c.ActiveEntitlements {
		ids = append(ids, id)
	}
	return ids
}

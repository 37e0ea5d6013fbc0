package purchases

import "purchase-sync/internal/models"

// State is a point-in-time copy of the session. The pointers it carries
// refer to immutable snapshots and may be shared freely.
type State struct {
	Initialized  bool
	Loading      bool
	Offerings    *models.Offerings
	CustomerInfo *models.CustomerInfo
	IsPremium    bool
	LastError    string
}

// CheckEntitlement reports whether id is active in this state's snapshot.
func (s State) CheckEntitlement(id string) bool {
	return s.CustomerInfo.HasActive(id)
}

// Entitlement returns the active entitlement id. ok is false when it is not
// active; a nil ExpirationDate means lifetime.
func (s State) Entitlement(id string) (models.EntitlementInfo, bool) {
	return s.CustomerInfo.Entitlement(id)
}

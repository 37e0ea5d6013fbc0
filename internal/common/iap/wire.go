package iap

import (
	"encoding/json"
	"time"

	"purchase-sync/internal/models"
)

type purchaseRequest struct {
	AppUserID          string  `json:"app_user_id"`
	ProductID          string  `json:"product_id"`
	PackageIdentifier  string  `json:"package_identifier,omitempty"`
	OfferingIdentifier string  `json:"offering_identifier,omitempty"`
	Price              float64 `json:"price,omitempty"`
	Currency           string  `json:"currency,omitempty"`
}

type identifyRequest struct {
	AppUserID    string `json:"app_user_id"`
	NewAppUserID string `json:"new_app_user_id"`
}

type entitlementPayload struct {
	ExpiresDate       *string `json:"expires_date"`
	PurchaseDate      *string `json:"purchase_date"`
	ProductIdentifier string  `json:"product_identifier"`
}

type subscriberResponse struct {
	RequestDate string `json:"request_date"`
	Subscriber  struct {
		OriginalAppUserID string                        `json:"original_app_user_id"`
		Entitlements      map[string]entitlementPayload `json:"entitlements"`
	} `json:"subscriber"`
}

// toModel keeps only entitlements active at the backend's request date;
// the backend also reports expired grants.
func (r *subscriberResponse) toModel(raw []byte, now time.Time) *models.CustomerInfo {
	asOf := now.UTC()
	if t, ok := parseVendorTime(r.RequestDate); ok {
		asOf = t
	}

	active := make([]models.EntitlementInfo, 0, len(r.Subscriber.Entitlements))
	for id, e := range r.Subscriber.Entitlements {
		info := models.EntitlementInfo{
			Identifier:        id,
			ProductIdentifier: e.ProductIdentifier,
		}
		if e.PurchaseDate != nil {
			if t, ok := parseVendorTime(*e.PurchaseDate); ok {
				info.PurchaseDate = &t
			}
		}
		if e.ExpiresDate != nil {
			t, ok := parseVendorTime(*e.ExpiresDate)
			if !ok || !t.After(asOf) {
				continue
			}
			info.ExpirationDate = &t
		}
		active = append(active, info)
	}

	return models.NewCustomerInfo(r.Subscriber.OriginalAppUserID, asOf, active, json.RawMessage(append([]byte(nil), raw...)))
}

func parseVendorTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

type packagePayload struct {
	Identifier                string  `json:"identifier"`
	PlatformProductIdentifier string  `json:"platform_product_identifier"`
	PackageType               string  `json:"package_type"`
	PriceString               string  `json:"price_string"`
	Price                     float64 `json:"price"`
	CurrencyCode              string  `json:"currency_code"`
	Title                     string  `json:"title"`
}

type offeringPayload struct {
	Identifier  string           `json:"identifier"`
	Description string           `json:"description"`
	Packages    []packagePayload `json:"packages"`
}

type offeringsResponse struct {
	CurrentOfferingID *string           `json:"current_offering_id"`
	Offerings         []offeringPayload `json:"offerings"`
}

func (r *offeringsResponse) toModel() *models.Offerings {
	out := &models.Offerings{All: make(map[string]*models.Offering, len(r.Offerings))}
	for _, op := range r.Offerings {
		o := &models.Offering{
			Identifier:  op.Identifier,
			Description: op.Description,
			Packages:    make([]models.Package, 0, len(op.Packages)),
		}
		for _, pp := range op.Packages {
			tag := pp.PackageType
			if tag == "" {
				tag = pp.Identifier
			}
			o.Packages = append(o.Packages, models.Package{
				Identifier:         pp.Identifier,
				PackageType:        models.ParsePackageType(tag),
				OfferingIdentifier: op.Identifier,
				Product: models.Product{
					Identifier:   pp.PlatformProductIdentifier,
					Title:        pp.Title,
					PriceString:  pp.PriceString,
					Price:        pp.Price,
					CurrencyCode: pp.CurrencyCode,
				},
			})
		}
		out.All[o.Identifier] = o
	}
	if r.CurrentOfferingID != nil {
		out.Current = out.All[*r.CurrentOfferingID]
	}
	return out
}

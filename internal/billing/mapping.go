package billing

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	stripe "github.com/stripe/stripe-go/v82"

	"purchase-sync/internal/models"
	"purchase-sync/pkg/registry"
)

var zeroDecimalCurrencies = map[string]bool{
	"bif": true, "clp": true, "djf": true, "gnf": true, "jpy": true, "kmf": true,
	"krw": true, "mga": true, "pyg": true, "rwf": true, "ugx": true, "vnd": true,
	"vuv": true, "xaf": true, "xof": true, "xpf": true,
}

var currencySymbols = map[string]string{
	"usd": "$", "eur": "€", "gbp": "£", "jpy": "¥", "inr": "₹",
}

var packageOrder = map[models.PackageType]int{
	models.PackageTypeAnnual:   0,
	models.PackageTypeMonthly:  1,
	models.PackageTypeWeekly:   2,
	models.PackageTypeLifetime: 3,
	models.PackageTypeUnknown:  4,
}

// offeringsFromPrices builds the catalog from active recurring prices whose
// product is registered and active. One-time prices are skipped.
func offeringsFromPrices(prices []*stripe.Price, reg *registry.ProductRegistry) *models.Offerings {
	out := &models.Offerings{All: map[string]*models.Offering{}}

	for _, p := range prices {
		if p == nil || !p.Active || p.Recurring == nil || p.Product == nil {
			continue
		}
		entry, ok := reg.Find(p.Product.ID)
		if !ok || !entry.Active() {
			continue
		}

		offeringID := entry.OfferingOrDefault()
		o, ok := out.All[offeringID]
		if !ok {
			o = &models.Offering{Identifier: offeringID}
			out.All[offeringID] = o
		}

		title := entry.DisplayName
		if title == "" {
			title = p.Product.Name
		}
		amount := priceAmount(p.UnitAmount, string(p.Currency))
		o.Packages = append(o.Packages, models.Package{
			Identifier:         p.ID,
			PackageType:        packageTypeOf(entry, p.Recurring),
			OfferingIdentifier: offeringID,
			Product: models.Product{
				Identifier:   p.Product.ID,
				Title:        title,
				PriceString:  formatPrice(amount, string(p.Currency)),
				Price:        amount,
				CurrencyCode: strings.ToUpper(string(p.Currency)),
			},
		})
	}

	ids := make([]string, 0, len(out.All))
	for id, o := range out.All {
		sort.SliceStable(o.Packages, func(i, j int) bool {
			a, b := o.Packages[i], o.Packages[j]
			if packageOrder[a.PackageType] != packageOrder[b.PackageType] {
				return packageOrder[a.PackageType] < packageOrder[b.PackageType]
			}
			return a.Identifier < b.Identifier
		})
		ids = append(ids, id)
	}
	sort.Strings(ids)

	if o, ok := out.All[registry.DefaultOffering]; ok {
		out.Current = o
	} else if len(ids) > 0 {
		out.Current = out.All[ids[0]]
	}
	return out
}

func packageTypeOf(entry registry.Product, rec *stripe.PriceRecurring) models.PackageType {
	if entry.PackageType != "" {
		return models.ParsePackageType(entry.PackageType)
	}
	if rec.IntervalCount > 1 {
		return models.PackageTypeUnknown
	}
	return models.ParsePackageType(string(rec.Interval))
}

func priceAmount(unitAmount int64, currency string) float64 {
	if zeroDecimalCurrencies[strings.ToLower(currency)] {
		return float64(unitAmount)
	}
	return float64(unitAmount) / 100
}

func formatPrice(amount float64, currency string) string {
	c := strings.ToLower(currency)
	decimals := 2
	if zeroDecimalCurrencies[c] {
		decimals = 0
	}
	if sym, ok := currencySymbols[c]; ok {
		return fmt.Sprintf("%s%.*f", sym, decimals, amount)
	}
	return fmt.Sprintf("%s %.*f", strings.ToUpper(c), decimals, amount)
}

// snapshotFromSubscriptions grants the registry entitlements of every item
// on an active or trialing subscription. The latest period end wins when two
// items grant the same entitlement. raw is kept as the snapshot payload and
// may be nil.
func snapshotFromSubscriptions(appUserID string, subs []*stripe.Subscription, raw json.RawMessage, reg *registry.ProductRegistry, now time.Time) *models.CustomerInfo {
	grants := map[string]models.EntitlementInfo{}

	for _, sub := range subs {
		if sub == nil || sub.Items == nil {
			continue
		}
		if sub.Status != stripe.SubscriptionStatusActive && sub.Status != stripe.SubscriptionStatusTrialing {
			continue
		}
		for _, item := range sub.Items.Data {
			if item == nil || item.Price == nil || item.Price.Product == nil {
				continue
			}
			entry, ok := reg.Find(item.Price.Product.ID)
			if !ok {
				continue
			}
			for _, id := range entry.Entitlements {
				grant := models.EntitlementInfo{
					Identifier:        id,
					ProductIdentifier: entry.ID,
					PurchaseDate:      unixTime(sub.StartDate),
					ExpirationDate:    unixTime(item.CurrentPeriodEnd),
				}
				if prev, seen := grants[id]; seen && !laterExpiry(grant, prev) {
					continue
				}
				grants[id] = grant
			}
		}
	}

	active := make([]models.EntitlementInfo, 0, len(grants))
	for _, g := range grants {
		active = append(active, g)
	}

	return models.NewCustomerInfo(appUserID, now.UTC(), active, raw)
}

// laterExpiry reports whether a outlasts b. A nil expiry never ends.
func laterExpiry(a, b models.EntitlementInfo) bool {
	if b.ExpirationDate == nil {
		return false
	}
	if a.ExpirationDate == nil {
		return true
	}
	return a.ExpirationDate.After(*b.ExpirationDate)
}

func unixTime(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}

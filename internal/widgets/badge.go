package widgets

import (
	"fmt"
	"time"
)

// ExpiringSoonWindow is how close to expiry the badge starts warning.
const ExpiringSoonWindow = 7 * 24 * time.Hour

type BadgeView struct {
	Visible      bool
	Label        string
	ExpiresAt    *time.Time // nil for lifetime grants
	ExpiringSoon bool
}

type PremiumBadge struct {
	store         Store
	entitlementID string
}

func NewPremiumBadge(store Store, entitlementID string) *PremiumBadge {
	return &PremiumBadge{store: store, entitlementID: entitlementID}
}

// View renders the badge as of now. Visibility and label come from the same
// snapshot; hidden unless it holds the entitlement.
func (b *PremiumBadge) View(now time.Time) BadgeView {
	ent, ok := b.store.CustomerInfo().Entitlement(b.entitlementID)
	if !ok {
		return BadgeView{}
	}
	if ent.IsLifetime() {
		return BadgeView{Visible: true, Label: "Premium · Lifetime"}
	}

	expires := ent.ExpirationDate.UTC()
	return BadgeView{
		Visible:      true,
		Label:        fmt.Sprintf("Premium · until %s", expires.Format("Jan 2, 2006")),
		ExpiresAt:    &expires,
		ExpiringSoon: expires.Sub(now) <= ExpiringSoonWindow,
	}
}

// Package paywall is the view model behind the purchase screen. It reads
// the session synchronously and never talks to the vendor itself.
package paywall

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"purchase-sync/internal/models"
)

var (
	ErrBusy           = errors.New("paywall: an operation is already in progress")
	ErrNoSelection    = errors.New("paywall: no package selected")
	ErrUnknownPackage = errors.New("paywall: package not in current offering")
)

// Store is what the paywall needs from the purchase session.
type Store interface {
	Offerings() *models.Offerings
	Loading() bool
	LastError() string
	PurchasePackage(ctx context.Context, pkg models.Package) bool
	RestorePurchases(ctx context.Context) bool
}

type Row struct {
	Identifier  string
	Title       string
	PriceLabel  string
	PackageType models.PackageType
	Selected    bool
}

type View struct {
	Rows         []Row
	Loading      bool
	ErrorText    string
	CanPurchase  bool
	SavingsBadge string
}

type Paywall struct {
	store Store

	mu       sync.Mutex
	selected string
}

func New(store Store) *Paywall {
	return &Paywall{store: store}
}

func (p *Paywall) packages() []models.Package {
	return p.store.Offerings().CurrentPackages()
}

// Selected returns the package a purchase would buy. Without an explicit
// choice that is the annual package, else the first one.
func (p *Paywall) Selected() (models.Package, bool) {
	pkgs := p.packages()
	if len(pkgs) == 0 {
		return models.Package{}, false
	}

	p.mu.Lock()
	selected := p.selected
	p.mu.Unlock()

	for _, pkg := range pkgs {
		if pkg.Identifier == selected {
			return pkg, true
		}
	}
	for _, pkg := range pkgs {
		if pkg.PackageType == models.PackageTypeAnnual {
			return pkg, true
		}
	}
	return pkgs[0], true
}

// Select makes id the single selected package.
func (p *Paywall) Select(id string) error {
	for _, pkg := range p.packages() {
		if pkg.Identifier == id {
			p.mu.Lock()
			p.selected = id
			p.mu.Unlock()
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrUnknownPackage, id)
}

func (p *Paywall) View() View {
	pkgs := p.packages()
	selected, hasSelection := p.Selected()
	loading := p.store.Loading()

	v := View{
		Rows:        make([]Row, 0, len(pkgs)),
		Loading:     loading,
		ErrorText:   p.store.LastError(),
		CanPurchase: hasSelection && !loading,
	}
	for _, pkg := range pkgs {
		v.Rows = append(v.Rows, Row{
			Identifier:  pkg.Identifier,
			Title:       DisplayName(pkg),
			PriceLabel:  PriceLabel(pkg),
			PackageType: pkg.PackageType,
			Selected:    hasSelection && pkg.Identifier == selected.Identifier,
		})
	}

	offering := p.store.Offerings()
	if offering != nil && offering.Current != nil {
		annual, okA := offering.Current.PackageOfType(models.PackageTypeAnnual)
		monthly, okM := offering.Current.PackageOfType(models.PackageTypeMonthly)
		if okA && okM {
			if pct, ok := SavingsPercent(annual, monthly); ok {
				v.SavingsBadge = fmt.Sprintf("Save %d%%", pct)
			}
		}
	}
	return v
}

// Checkout returns the package a purchase would buy now, or why the paywall
// refuses to start one.
func (p *Paywall) Checkout() (models.Package, error) {
	if p.store.Loading() {
		return models.Package{}, ErrBusy
	}
	pkg, ok := p.Selected()
	if !ok {
		return models.Package{}, ErrNoSelection
	}
	return pkg, nil
}

// Purchase buys the selected package. The bool is the session's result;
// the error only reports why the paywall refused to start.
func (p *Paywall) Purchase(ctx context.Context) (bool, error) {
	pkg, err := p.Checkout()
	if err != nil {
		return false, err
	}
	return p.store.PurchasePackage(ctx, pkg), nil
}

func (p *Paywall) Restore(ctx context.Context) (bool, error) {
	if p.store.Loading() {
		return false, ErrBusy
	}
	return p.store.RestorePurchases(ctx), nil
}

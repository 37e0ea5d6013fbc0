package paywall

import (
	"math"

	"purchase-sync/internal/models"
)

// PriceLabel derives the display price from the package type and the
// vendor's price string only.
func PriceLabel(pkg models.Package) string {
	price := pkg.Product.PriceString
	switch pkg.PackageType {
	case models.PackageTypeLifetime:
		return price + " one-time"
	case models.PackageTypeAnnual:
		return price + "/year"
	case models.PackageTypeMonthly:
		return price + "/month"
	case models.PackageTypeWeekly:
		return price + "/week"
	}
	return price
}

// DisplayName is the row title: the product title when the vendor sent one,
// else a name for the package type, else the identifier.
func DisplayName(pkg models.Package) string {
	if pkg.Product.Title != "" {
		return pkg.Product.Title
	}
	switch pkg.PackageType {
	case models.PackageTypeAnnual:
		return "Annual"
	case models.PackageTypeMonthly:
		return "Monthly"
	case models.PackageTypeWeekly:
		return "Weekly"
	case models.PackageTypeLifetime:
		return "Lifetime"
	}
	return pkg.Identifier
}

// SavingsPercent is how much cheaper a year on the annual package is than
// twelve months on the monthly one, rounded to a whole percent. ok is false
// when either price is missing or the annual plan saves nothing.
func SavingsPercent(annual, monthly models.Package) (int, bool) {
	a, m := annual.Product.Price, monthly.Product.Price
	if a <= 0 || m <= 0 {
		return 0, false
	}
	if annual.Product.CurrencyCode != monthly.Product.CurrencyCode {
		return 0, false
	}
	pct := int(math.Round((1 - a/(m*12)) * 100))
	if pct <= 0 {
		return 0, false
	}
	return pct, true
}

package models

import "strings"

type PackageType string

const (
	PackageTypeAnnual   PackageType = "ANNUAL"
	PackageTypeMonthly  PackageType = "MONTHLY"
	PackageTypeWeekly   PackageType = "WEEKLY"
	PackageTypeLifetime PackageType = "LIFETIME"
	PackageTypeUnknown  PackageType = "UNKNOWN"
)

// ParsePackageType accepts the tags vendors commonly send ("$rc_annual",
// "annual", "year", "P1Y", ...). Anything unrecognised maps to UNKNOWN.
func ParsePackageType(tag string) PackageType {
	t := strings.ToLower(strings.TrimSpace(tag))
	t = strings.TrimPrefix(t, "$rc_")
	switch t {
	case "annual", "yearly", "year", "p1y":
		return PackageTypeAnnual
	case "monthly", "month", "p1m":
		return PackageTypeMonthly
	case "weekly", "week", "p1w":
		return PackageTypeWeekly
	case "lifetime", "one_time", "onetime":
		return PackageTypeLifetime
	}
	return PackageTypeUnknown
}

type Product struct {
	Identifier   string  `json:"identifier"`
	Title        string  `json:"title,omitempty"`
	PriceString  string  `json:"priceString"`
	Price        float64 `json:"price"`
	CurrencyCode string  `json:"currencyCode,omitempty"`
}

type Package struct {
	Identifier         string      `json:"identifier"`
	PackageType        PackageType `json:"packageType"`
	OfferingIdentifier string      `json:"offeringIdentifier,omitempty"`
	Product            Product     `json:"product"`
}

type Offering struct {
	Identifier  string    `json:"identifier"`
	Description string    `json:"description,omitempty"`
	Packages    []Package `json:"packages"`
}

// PackageOfType returns the first package with the given type.
func (o *Offering) PackageOfType(t PackageType) (Package, bool) {
	if o == nil {
		return Package{}, false
	}
	for _, p := range o.Packages {
		if p.PackageType == t {
			return p, true
		}
	}
	return Package{}, false
}

// Offerings is the purchasable catalog: a current offering plus alternates.
type Offerings struct {
	Current *Offering            `json:"current,omitempty"`
	All     map[string]*Offering `json:"all"`
}

// Package looks up a package by identifier in the current offering.
func (o *Offerings) Package(id string) (Package, bool) {
	if o == nil || o.Current == nil {
		return Package{}, false
	}
	for _, p := range o.Current.Packages {
		if p.Identifier == id {
			return p, true
		}
	}
	return Package{}, false
}

// CurrentPackages returns the current offering's packages, or nil.
func (o *Offerings) CurrentPackages() []Package {
	if o == nil || o.Current == nil {
		return nil
	}
	return o.Current.Packages
}

package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParsePackageType(t *testing.T) {
	tests := []struct {
		tag  string
		want PackageType
	}{
		{"$rc_annual", PackageTypeAnnual},
		{"P1Y", PackageTypeAnnual},
		{" Monthly ", PackageTypeMonthly},
		{"$rc_weekly", PackageTypeWeekly},
		{"one_time", PackageTypeLifetime},
		{"$rc_six_month", PackageTypeUnknown},
		{"", PackageTypeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.tag, func(t *testing.T) {
			assert.Equal(t, tt.want, ParsePackageType(tt.tag))
		})
	}
}

func TestCustomerInfo_NilSafe(t *testing.T) {
	var c *CustomerInfo

	assert.False(t, c.HasActive("premium"))
	_, ok := c.Entitlement("premium")
	assert.False(t, ok)
	assert.Nil(t, c.ActiveIdentifiers())
}

func TestNewCustomerInfo(t *testing.T) {
	exp := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	active := []EntitlementInfo{
		{Identifier: "premium", ExpirationDate: &exp},
		{Identifier: "pro"},
	}

	c := NewCustomerInfo("user-1", time.Now(), active, nil)
	active[0].Identifier = "mutated"

	assert.True(t, c.HasActive("premium"), "the snapshot does not alias the input slice")
	assert.ElementsMatch(t, []string{"premium", "pro"}, c.ActiveIdentifiers())

	pro, ok := c.Entitlement("pro")
	assert.True(t, ok)
	assert.True(t, pro.IsLifetime())
}

func TestOfferings_Lookups(t *testing.T) {
	def := &Offering{
		Identifier: "default",
		Packages: []Package{
			{Identifier: "$rc_monthly", PackageType: PackageTypeMonthly},
			{Identifier: "$rc_annual", PackageType: PackageTypeAnnual},
		},
	}
	o := &Offerings{Current: def, All: map[string]*Offering{"default": def}}

	pkg, ok := o.Package("$rc_annual")
	assert.True(t, ok)
	assert.Equal(t, PackageTypeAnnual, pkg.PackageType)

	_, ok = o.Package("missing")
	assert.False(t, ok)

	_, ok = def.PackageOfType(PackageTypeLifetime)
	assert.False(t, ok)

	var none *Offerings
	assert.Nil(t, none.CurrentPackages())
	_, ok = none.Package("$rc_annual")
	assert.False(t, ok)
}

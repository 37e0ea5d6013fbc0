package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"purchase-sync/internal/common/iap"
	"purchase-sync/internal/common/logger"
	"purchase-sync/internal/models"
	"purchase-sync/internal/purchases"
)

// ==========================
// Test Helper Functions
// ==========================

type stubClient struct {
	premium bool
}

func (c *stubClient) Initialize(ctx context.Context) error { return nil }

func (c *stubClient) FetchOfferings(ctx context.Context) (*models.Offerings, error) {
	def := &models.Offering{
		Identifier: "default",
		Packages: []models.Package{
			{Identifier: "$rc_monthly", PackageType: models.PackageTypeMonthly, Product: models.Product{Identifier: "app.monthly", PriceString: "$10.00", Price: 10, CurrencyCode: "USD"}},
			{Identifier: "$rc_annual", PackageType: models.PackageTypeAnnual, Product: models.Product{Identifier: "app.annual", PriceString: "$60.00", Price: 60, CurrencyCode: "USD"}},
			{Identifier: "$rc_weekly", PackageType: models.PackageTypeWeekly, Product: models.Product{Identifier: "app.weekly", PriceString: "$3.00", Price: 3, CurrencyCode: "USD"}},
		},
	}
	return &models.Offerings{Current: def, All: map[string]*models.Offering{"default": def}}, nil
}

func (c *stubClient) FetchCustomerInfo(ctx context.Context) (*models.CustomerInfo, error) {
	return c.snapshot(), nil
}

func (c *stubClient) Purchase(ctx context.Context, pkg models.Package) (*models.CustomerInfo, error) {
	switch pkg.PackageType {
	case models.PackageTypeMonthly:
		return nil, iap.NewCancelledError("Purchase was cancelled.")
	case models.PackageTypeWeekly:
		return nil, &iap.VendorError{Code: iap.CodeStoreProblem, Message: "Card declined"}
	}
	c.premium = true
	return c.snapshot(), nil
}

func (c *stubClient) Restore(ctx context.Context) (*models.CustomerInfo, error) {
	return c.snapshot(), nil
}

func (c *stubClient) Identify(ctx context.Context, userID string) (*models.CustomerInfo, error) {
	return nil, errors.New("identify unavailable")
}

func (c *stubClient) LogOut(ctx context.Context) (*models.CustomerInfo, error) {
	return c.snapshot(), nil
}

func (c *stubClient) snapshot() *models.CustomerInfo {
	var active []models.EntitlementInfo
	if c.premium {
		active = append(active, models.EntitlementInfo{Identifier: "premium"})
	}
	return models.NewCustomerInfo("user-1", time.Now(), active, nil)
}

func readySession(t *testing.T) *purchases.Session {
	s := purchases.New(&stubClient{}, purchases.WithLogger(logger.NewTestLogger(t)))
	t.Cleanup(s.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.WaitReady(ctx))
	return s
}

func runConsole(t *testing.T, input string) string {
	var out bytes.Buffer
	newConsole(readySession(t), strings.NewReader(input), &out, time.Second).run(context.Background())
	return out.String()
}

// ==========================
// Console Tests
// ==========================

func TestConsole_OfferingsAndSelection(t *testing.T) {
	out := runConsole(t, "offerings\nselect $rc_monthly\nselect nope\nquit\n")

	assert.Contains(t, out, "* $rc_annual")
	assert.Contains(t, out, "* $rc_monthly")
	assert.Contains(t, out, "Save 50%")
	assert.Contains(t, out, "package not in current offering")
}

func TestConsole_BuyFlow(t *testing.T) {
	out := runConsole(t, "select $rc_monthly\nbuy\nselect $rc_annual\nbuy\nquit\n")

	assert.Contains(t, out, "purchase cancelled")
	assert.Contains(t, out, "purchase succeeded")
	assert.Contains(t, out, "premium=true")
	assert.Contains(t, out, "[Premium · Lifetime]")
	assert.Contains(t, out, "~ premium unlocked")
	assert.Contains(t, out, "~ working...")
	assert.Contains(t, out, "~ idle")
}

func TestConsole_CancelAfterFailure(t *testing.T) {
	out := runConsole(t, "select $rc_weekly\nbuy\nselect $rc_monthly\nbuy\nquit\n")

	assert.Equal(t, 1, strings.Count(out, "purchase failed: Card declined"))
	assert.Contains(t, out, "~ error: Card declined")
	assert.Contains(t, out, "purchase cancelled")
}

func TestConsole_UnsubscribesOnExit(t *testing.T) {
	s := readySession(t)
	var out bytes.Buffer
	newConsole(s, strings.NewReader("quit\n"), &out, time.Second).run(context.Background())
	before := out.Len()

	pkg, ok := s.Offerings().Package("$rc_annual")
	require.True(t, ok)
	require.True(t, s.PurchasePackage(context.Background(), pkg))

	assert.Equal(t, before, out.Len(), "no transitions printed after the console exits")
}

// ==========================
// Registry Tests
// ==========================

func TestLoadRegistry(t *testing.T) {
	t.Run("sample registry", func(t *testing.T) {
		reg, err := loadRegistry(filepath.Join("..", "..", "configs", "products.json"))
		require.NoError(t, err)
		assert.NotEmpty(t, reg.Products)
	})

	t.Run("duplicate ids rejected", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "products.json")
		body := `{"version": "1.0.0", "products": [
  {"id": "prod_a", "displayName": "A", "entitlements": ["premium"]},
  {"id": "prod_a", "displayName": "A again", "entitlements": ["premium"]}
]}`
		require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

		_, err := loadRegistry(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid product registry")
	})

	t.Run("schema violation rejected", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "products.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"version": "1.0.0", "products": []}`), 0o600))

		_, err := loadRegistry(path)
		assert.Error(t, err)
	})
}

func TestConsole_PassiveCommands(t *testing.T) {
	out := runConsole(t, "login someone\nrefresh\nrestore\nlogin\nbogus\n")

	assert.Contains(t, out, "user=user-1")
	assert.NotContains(t, out, "error:", "login failures are not surfaced")
	assert.Contains(t, out, "restore: nothing_to_restore.")
	assert.Contains(t, out, "usage: login <user-id>")
	assert.Contains(t, out, `unknown command "bogus"`)
}

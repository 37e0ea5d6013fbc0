// Package billing implements the vendor purchase client on top of Stripe
// subscriptions. Recurring prices are the packages; active subscriptions
// grant the entitlements the product registry assigns to their products.
package billing

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	stripe "github.com/stripe/stripe-go/v82"

	"purchase-sync/internal/common/iap"
	"purchase-sync/internal/common/logger"
	"purchase-sync/internal/models"
	"purchase-sync/pkg/registry"
)

type StripeConfig struct {
	SecretKey string
	AppUserID string // empty starts an anonymous user
	Registry  *registry.ProductRegistry
}

// StripeProvider implements iap.Client using the Stripe API.
type StripeProvider struct {
	secretKey string
	registry  *registry.ProductRegistry
	api       stripeAPI
	logger    logger.Logger
	now       func() time.Time
	encode    func(v interface{}) ([]byte, error)

	mu         sync.RWMutex
	appUserID  string
	customerID string
	configured bool
}

var _ iap.Client = (*StripeProvider)(nil)

func NewStripeProvider(cfg StripeConfig, log logger.Logger) *StripeProvider {
	return &StripeProvider{
		secretKey: cfg.SecretKey,
		registry:  cfg.Registry,
		api:       sdkAPI{},
		logger:    log.WithFields(map[string]interface{}{"component": "iap-stripe"}),
		now:       time.Now,
		encode:    json.Marshal,
		appUserID: cfg.AppUserID,
	}
}

func (p *StripeProvider) AppUserID() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.appUserID
}

func (p *StripeProvider) IsAnonymous() bool {
	return strings.HasPrefix(p.AppUserID(), iap.AnonymousPrefix)
}

func (p *StripeProvider) Initialize(ctx context.Context) error {
	if p.secretKey == "" {
		return &iap.VendorError{Code: iap.CodeConfiguration, Message: "Missing Stripe secret key."}
	}
	if p.registry == nil {
		return &iap.VendorError{Code: iap.CodeConfiguration, Message: "Missing product registry."}
	}
	if _, ok := p.api.(sdkAPI); ok {
		stripe.Key = p.secretKey
	}

	p.mu.Lock()
	if p.appUserID == "" {
		p.appUserID = newAnonymousID()
	}
	p.configured = true
	id := p.appUserID
	p.mu.Unlock()

	p.logger.Info("stripe purchases configured", map[string]interface{}{
		"appUserId": id,
		"products":  len(p.registry.Products),
	})
	return nil
}

func (p *StripeProvider) FetchOfferings(ctx context.Context) (*models.Offerings, error) {
	if _, err := p.currentUser(); err != nil {
		return nil, err
	}
	prices, err := p.api.ListPrices(ctx)
	if err != nil {
		return nil, mapStripeError(err)
	}
	return offeringsFromPrices(prices, p.registry), nil
}

func (p *StripeProvider) FetchCustomerInfo(ctx context.Context) (*models.CustomerInfo, error) {
	id, err := p.currentUser()
	if err != nil {
		return nil, err
	}

	customerID, err := p.lookupCustomer(ctx, id, false)
	if err != nil {
		return nil, err
	}
	if customerID == "" {
		return p.snapshot(id, nil), nil
	}

	subs, err := p.api.ListSubscriptions(ctx, customerID)
	if err != nil {
		return nil, mapStripeError(err)
	}
	return p.snapshot(id, subs), nil
}

// snapshot maps subs to customer info. A payload that fails to encode is
// logged and the snapshot is returned without Raw.
func (p *StripeProvider) snapshot(appUserID string, subs []*stripe.Subscription) *models.CustomerInfo {
	var raw json.RawMessage
	if len(subs) > 0 {
		encoded, err := p.encode(subs)
		if err != nil {
			p.logger.Warn("failed to encode stripe subscriptions", map[string]interface{}{
				"appUserId": appUserID,
				"error":     err.Error(),
			})
		} else {
			raw = encoded
		}
	}
	return snapshotFromSubscriptions(appUserID, subs, raw, p.registry, p.now())
}

// Purchase subscribes the customer to the package's price. The package
// identifier is the Stripe price id.
func (p *StripeProvider) Purchase(ctx context.Context, pkg models.Package) (*models.CustomerInfo, error) {
	id, err := p.currentUser()
	if err != nil {
		return nil, err
	}
	if pkg.Identifier == "" {
		return nil, &iap.VendorError{Code: iap.CodePurchaseInvalid, Message: "Package has no price identifier."}
	}
	if entry, ok := p.registry.Find(pkg.Product.Identifier); !ok || !entry.Active() {
		return nil, &iap.VendorError{Code: iap.CodeProductNotAvailable, Message: "The product is not available for purchase."}
	}

	customerID, err := p.lookupCustomer(ctx, id, true)
	if err != nil {
		return nil, err
	}

	sub, err := p.api.CreateSubscription(ctx, customerID, pkg.Identifier)
	if err != nil {
		return nil, mapStripeError(err)
	}
	p.logger.Info("stripe subscription created", map[string]interface{}{
		"subscriptionId": sub.ID,
		"priceId":        pkg.Identifier,
		"status":         string(sub.Status),
	})

	return p.FetchCustomerInfo(ctx)
}

// Restore re-reads the customer's subscriptions; they live on the Stripe
// account, so there is nothing to transfer.
func (p *StripeProvider) Restore(ctx context.Context) (*models.CustomerInfo, error) {
	return p.FetchCustomerInfo(ctx)
}

func (p *StripeProvider) Identify(ctx context.Context, userID string) (*models.CustomerInfo, error) {
	if _, err := p.currentUser(); err != nil {
		return nil, err
	}
	userID = strings.TrimSpace(userID)
	if userID == "" || strings.HasPrefix(userID, iap.AnonymousPrefix) {
		return nil, &iap.VendorError{Code: iap.CodeInvalidAppUserID, Message: "Invalid app user id."}
	}

	p.mu.Lock()
	if p.appUserID != userID {
		p.appUserID = userID
		p.customerID = ""
	}
	p.mu.Unlock()

	return p.FetchCustomerInfo(ctx)
}

func (p *StripeProvider) LogOut(ctx context.Context) (*models.CustomerInfo, error) {
	if _, err := p.currentUser(); err != nil {
		return nil, err
	}
	if p.IsAnonymous() {
		return nil, &iap.VendorError{Code: iap.CodeLogOutAnonymousUser, Message: "LogOut was called but the current user is anonymous."}
	}

	p.mu.Lock()
	p.appUserID = newAnonymousID()
	p.customerID = ""
	p.mu.Unlock()

	return p.FetchCustomerInfo(ctx)
}

func (p *StripeProvider) currentUser() (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.configured {
		return "", &iap.VendorError{Code: iap.CodeNotConfigured, Message: "Purchases has not been configured."}
	}
	return p.appUserID, nil
}

// lookupCustomer resolves the Stripe customer for appUserID, creating one
// when create is set. An empty id means no customer exists yet.
func (p *StripeProvider) lookupCustomer(ctx context.Context, appUserID string, create bool) (string, error) {
	p.mu.RLock()
	cached := p.customerID
	p.mu.RUnlock()
	if cached != "" {
		return cached, nil
	}

	c, err := p.api.FindCustomer(ctx, appUserID)
	if err != nil {
		return "", mapStripeError(err)
	}
	if c == nil && create {
		if c, err = p.api.CreateCustomer(ctx, appUserID); err != nil {
			return "", mapStripeError(err)
		}
	}
	if c == nil {
		return "", nil
	}

	p.mu.Lock()
	if p.appUserID == appUserID {
		p.customerID = c.ID
	}
	p.mu.Unlock()
	return c.ID, nil
}

func newAnonymousID() string {
	return iap.AnonymousPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// mapStripeError converts Stripe API failures into vendor errors.
func mapStripeError(err error) error {
	var sErr *stripe.Error
	if !errors.As(err, &sErr) {
		return &iap.VendorError{Code: iap.CodeNetwork, Message: "Error performing request.", Retryable: true, Err: err}
	}

	vErr := &iap.VendorError{
		Code:       iap.CodeStoreProblem,
		Message:    sErr.Msg,
		StatusCode: sErr.HTTPStatusCode,
		Retryable:  sErr.HTTPStatusCode >= 500 || sErr.HTTPStatusCode == http.StatusTooManyRequests,
		Err:        err,
	}
	switch {
	case sErr.HTTPStatusCode == http.StatusUnauthorized || sErr.HTTPStatusCode == http.StatusForbidden:
		vErr.Code = iap.CodeInvalidCredentials
	case sErr.Code == stripe.ErrorCodeResourceMissing:
		vErr.Code = iap.CodeProductNotAvailable
	case sErr.Type == stripe.ErrorTypeCard:
		vErr.Code = iap.CodePurchaseNotAllowed
	case sErr.HTTPStatusCode >= 500:
		vErr.Code = iap.CodeUnexpectedResponse
	}
	return vErr
}

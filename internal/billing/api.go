package billing

import (
	"context"
	"fmt"
	"strings"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/customer"
	"github.com/stripe/stripe-go/v82/price"
	"github.com/stripe/stripe-go/v82/subscription"
)

// AppUserMetadataKey links a Stripe customer to the app user id.
const AppUserMetadataKey = "app_user_id"

// stripeAPI is the slice of the Stripe API the provider uses.
type stripeAPI interface {
	ListPrices(ctx context.Context) ([]*stripe.Price, error)
	FindCustomer(ctx context.Context, appUserID string) (*stripe.Customer, error)
	CreateCustomer(ctx context.Context, appUserID string) (*stripe.Customer, error)
	ListSubscriptions(ctx context.Context, customerID string) ([]*stripe.Subscription, error)
	CreateSubscription(ctx context.Context, customerID, priceID string) (*stripe.Subscription, error)
}

// sdkAPI calls Stripe through the package-level stripe-go clients.
type sdkAPI struct{}

func (sdkAPI) ListPrices(ctx context.Context) ([]*stripe.Price, error) {
	params := &stripe.PriceListParams{Active: stripe.Bool(true)}
	params.Context = ctx
	params.AddExpand("data.product")

	var prices []*stripe.Price
	it := price.List(params)
	for it.Next() {
		prices = append(prices, it.Price())
	}
	if err := it.Err(); err != nil {
		return nil, fmt.Errorf("billing: list stripe prices: %w", err)
	}
	return prices, nil
}

func (sdkAPI) FindCustomer(ctx context.Context, appUserID string) (*stripe.Customer, error) {
	params := &stripe.CustomerSearchParams{
		SearchParams: stripe.SearchParams{
			Query: customerSearchQuery(appUserID),
		},
	}
	params.Context = ctx

	it := customer.Search(params)
	if it.Next() {
		return it.Customer(), nil
	}
	if err := it.Err(); err != nil {
		return nil, fmt.Errorf("billing: search stripe customer: %w", err)
	}
	return nil, nil
}

// customerSearchQuery matches the customer by app user id metadata. Quotes
// in the id are escaped so they cannot end the string literal.
func customerSearchQuery(appUserID string) string {
	escaped := strings.ReplaceAll(appUserID, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `'`, `\'`)
	return fmt.Sprintf("metadata['%s']:'%s'", AppUserMetadataKey, escaped)
}

func (sdkAPI) CreateCustomer(ctx context.Context, appUserID string) (*stripe.Customer, error) {
	params := &stripe.CustomerParams{
		Metadata: map[string]string{AppUserMetadataKey: appUserID},
	}
	params.Context = ctx

	c, err := customer.New(params)
	if err != nil {
		return nil, fmt.Errorf("billing: create stripe customer: %w", err)
	}
	return c, nil
}

func (sdkAPI) ListSubscriptions(ctx context.Context, customerID string) ([]*stripe.Subscription, error) {
	params := &stripe.SubscriptionListParams{
		Customer: stripe.String(customerID),
		Status:   stripe.String("all"),
	}
	params.Context = ctx

	var subs []*stripe.Subscription
	it := subscription.List(params)
	for it.Next() {
		subs = append(subs, it.Subscription())
	}
	if err := it.Err(); err != nil {
		return nil, fmt.Errorf("billing: list stripe subscriptions: %w", err)
	}
	return subs, nil
}

func (sdkAPI) CreateSubscription(ctx context.Context, customerID, priceID string) (*stripe.Subscription, error) {
	params := &stripe.SubscriptionParams{
		Customer: stripe.String(customerID),
		Items: []*stripe.SubscriptionItemsParams{
			{Price: stripe.String(priceID)},
		},
		PaymentBehavior: stripe.String("error_if_incomplete"),
	}
	params.Context = ctx

	sub, err := subscription.New(params)
	if err != nil {
		return nil, fmt.Errorf("billing: create stripe subscription: %w", err)
	}
	return sub, nil
}

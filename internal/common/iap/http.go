package iap

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	commonhttp "purchase-sync/internal/common/http"
	"purchase-sync/internal/common/logger"
	"purchase-sync/internal/models"
)

// AnonymousPrefix marks app user ids minted locally for users that never logged in.
const AnonymousPrefix = "$anon:"

type HTTPConfig struct {
	BaseURL   string
	APIKey    string
	AppUserID string // empty starts an anonymous user
	Platform  string
	Timeout   time.Duration
}

// HTTPClient talks to the purchases REST backend.
type HTTPClient struct {
	config *HTTPConfig
	http   *commonhttp.Client
	logger logger.Logger
	now    func() time.Time

	mu         sync.RWMutex
	appUserID  string
	configured bool
}

func NewHTTPClient(cfg *HTTPConfig, log logger.Logger) *HTTPClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	hc := commonhttp.NewClient(timeout).
		WithHeader("Authorization", "Bearer "+cfg.APIKey).
		WithHeader("Content-Type", "application/json").
		WithHeader("Accept", "application/json")
	if cfg.Platform != "" {
		hc.WithHeader("X-Platform", cfg.Platform)
	}

	return &HTTPClient{
		config:    cfg,
		http:      hc,
		logger:    log.WithFields(map[string]interface{}{"component": "iap-http"}),
		now:       time.Now,
		appUserID: cfg.AppUserID,
	}
}

// AppUserID returns the identity calls are currently made for.
func (c *HTTPClient) AppUserID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.appUserID
}

// IsAnonymous reports whether the current identity was minted locally.
func (c *HTTPClient) IsAnonymous() bool {
	return strings.HasPrefix(c.AppUserID(), AnonymousPrefix)
}

func newAnonymousID() string {
	return AnonymousPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}

func (c *HTTPClient) Initialize(ctx context.Context) error {
	if c.config.BaseURL == "" || c.config.APIKey == "" {
		return &VendorError{Code: CodeConfiguration, Message: "Missing API key or backend URL."}
	}
	if _, err := url.Parse(c.config.BaseURL); err != nil {
		return &VendorError{Code: CodeConfiguration, Message: "Invalid backend URL.", Err: err}
	}

	c.mu.Lock()
	if c.appUserID == "" {
		c.appUserID = newAnonymousID()
	}
	c.configured = true
	id := c.appUserID
	c.mu.Unlock()

	c.logger.Info("purchases configured", map[string]interface{}{
		"appUserId": id,
		"anonymous": strings.HasPrefix(id, AnonymousPrefix),
	})
	return nil
}

func (c *HTTPClient) FetchOfferings(ctx context.Context) (*models.Offerings, error) {
	id, err := c.currentUser()
	if err != nil {
		return nil, err
	}

	body, err := c.do(ctx, http.MethodGet, "/v1/subscribers/"+url.PathEscape(id)+"/offerings", nil)
	if err != nil {
		return nil, err
	}
	if err := validateOfferings(body); err != nil {
		return nil, err
	}

	var resp offeringsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, newUnexpectedResponseError(err.Error())
	}
	return resp.toModel(), nil
}

func (c *HTTPClient) FetchCustomerInfo(ctx context.Context) (*models.CustomerInfo, error) {
	id, err := c.currentUser()
	if err != nil {
		return nil, err
	}
	return c.subscriberCall(ctx, http.MethodGet, "/v1/subscribers/"+url.PathEscape(id), nil)
}

func (c *HTTPClient) Purchase(ctx context.Context, pkg models.Package) (*models.CustomerInfo, error) {
	id, err := c.currentUser()
	if err != nil {
		return nil, err
	}
	if pkg.Product.Identifier == "" {
		return nil, &VendorError{Code: CodePurchaseInvalid, Message: "Package has no product identifier."}
	}

	req := purchaseRequest{
		AppUserID:          id,
		ProductID:          pkg.Product.Identifier,
		PackageIdentifier:  pkg.Identifier,
		OfferingIdentifier: pkg.OfferingIdentifier,
		Price:              pkg.Product.Price,
		Currency:           pkg.Product.CurrencyCode,
	}
	return c.subscriberCall(ctx, http.MethodPost, "/v1/receipts", req)
}

func (c *HTTPClient) Restore(ctx context.Context) (*models.CustomerInfo, error) {
	id, err := c.currentUser()
	if err != nil {
		return nil, err
	}
	return c.subscriberCall(ctx, http.MethodPost, "/v1/subscribers/"+url.PathEscape(id)+"/restore", struct{}{})
}

// Identify aliases the current (usually anonymous) identity to userID and
// switches subsequent calls to it.
func (c *HTTPClient) Identify(ctx context.Context, userID string) (*models.CustomerInfo, error) {
	current, err := c.currentUser()
	if err != nil {
		return nil, err
	}
	userID = strings.TrimSpace(userID)
	if userID == "" || strings.HasPrefix(userID, AnonymousPrefix) {
		return nil, &VendorError{Code: CodeInvalidAppUserID, Message: "Invalid app user id."}
	}
	if userID == current {
		return c.FetchCustomerInfo(ctx)
	}

	info, err := c.subscriberCall(ctx, http.MethodPost, "/v1/subscribers/identify", identifyRequest{
		AppUserID:    current,
		NewAppUserID: userID,
	})
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.appUserID = userID
	c.mu.Unlock()
	return info, nil
}

// LogOut switches to a freshly minted anonymous identity.
func (c *HTTPClient) LogOut(ctx context.Context) (*models.CustomerInfo, error) {
	if _, err := c.currentUser(); err != nil {
		return nil, err
	}
	if c.IsAnonymous() {
		return nil, &VendorError{Code: CodeLogOutAnonymousUser, Message: "LogOut was called but the current user is anonymous."}
	}

	anon := newAnonymousID()
	info, err := c.subscriberCall(ctx, http.MethodGet, "/v1/subscribers/"+url.PathEscape(anon), nil)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.appUserID = anon
	c.mu.Unlock()
	return info, nil
}

func (c *HTTPClient) currentUser() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.configured {
		return "", newNotConfiguredError()
	}
	return c.appUserID, nil
}

func (c *HTTPClient) subscriberCall(ctx context.Context, method, path string, payload interface{}) (*models.CustomerInfo, error) {
	body, err := c.do(ctx, method, path, payload)
	if err != nil {
		return nil, err
	}
	if err := validateSubscriber(body); err != nil {
		return nil, err
	}

	var resp subscriberResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, newUnexpectedResponseError(err.Error())
	}
	return resp.toModel(body, c.now()), nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, payload interface{}) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.config.BaseURL, "/")+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	start := c.now()
	resp, err := c.http.DoWithContext(ctx, req)
	if err != nil {
		return nil, newNetworkError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, newNetworkError(err)
	}

	c.logger.Debug("vendor request", map[string]interface{}{
		"method":     method,
		"path":       path,
		"status":     resp.StatusCode,
		"durationMs": c.now().Sub(start).Milliseconds(),
	})

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, decodeVendorError(resp.StatusCode, body)
	}
	return body, nil
}

func decodeVendorError(status int, body []byte) *VendorError {
	vErr := &VendorError{}
	if err := json.Unmarshal(body, vErr); err != nil || (vErr.Message == "" && vErr.Code == 0) {
		vErr = &VendorError{
			Code:    CodeUnexpectedResponse,
			Message: fmt.Sprintf("Backend returned status %d.", status),
		}
	}
	vErr.StatusCode = status
	vErr.Retryable = status >= 500 || status == http.StatusTooManyRequests
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		vErr.Code = CodeInvalidCredentials
	}
	return vErr
}

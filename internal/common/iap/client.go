// Package iap holds the vendor purchase client contract and its REST and
// caching implementations.
package iap

import (
	"context"
	"fmt"

	"purchase-sync/internal/models"
)

// Client is the black-box vendor surface the purchase session drives.
// Every call that returns a snapshot returns a complete one.
type Client interface {
	Initialize(ctx context.Context) error
	FetchOfferings(ctx context.Context) (*models.Offerings, error)
	FetchCustomerInfo(ctx context.Context) (*models.CustomerInfo, error)
	Purchase(ctx context.Context, pkg models.Package) (*models.CustomerInfo, error)
	Restore(ctx context.Context) (*models.CustomerInfo, error)
	Identify(ctx context.Context, userID string) (*models.CustomerInfo, error)
	LogOut(ctx context.Context) (*models.CustomerInfo, error)
}

// Vendor error codes, numbered the way the purchases backend reports them.
const (
	CodeUnknown             = 0
	CodePurchaseCancelled   = 1
	CodeStoreProblem        = 2
	CodePurchaseNotAllowed  = 3
	CodePurchaseInvalid     = 4
	CodeProductNotAvailable = 5
	CodeNetwork             = 10
	CodeInvalidCredentials  = 11
	CodeUnexpectedResponse  = 12
	CodeInvalidAppUserID    = 14
	CodeLogOutAnonymousUser = 22
	CodeConfiguration       = 23
	CodeNotConfigured       = 24
)

// VendorError is the failure shape of every vendor call.
type VendorError struct {
	Code          int    `json:"code"`
	Message       string `json:"message"`
	UserCancelled bool   `json:"user_cancelled,omitempty"`
	StatusCode    int    `json:"-"`
	Retryable     bool   `json:"-"`
	Err           error  `json:"-"`
}

func (e *VendorError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("VendorError[%d]: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("VendorError[%d]: %s", e.Code, e.Message)
}

func (e *VendorError) Unwrap() error { return e.Err }

// Cancelled reports a user-cancelled purchase.
func (e *VendorError) Cancelled() bool {
	return e.UserCancelled || e.Code == CodePurchaseCancelled
}

// UserMessage is the vendor-provided text for display.
func (e *VendorError) UserMessage() string { return e.Message }

// Misconfigured reports a failure caused by the client's own settings
// rather than the backend.
func (e *VendorError) Misconfigured() bool {
	return e.Code == CodeConfiguration || e.Code == CodeInvalidCredentials
}

// IsRetryable reports a transient failure (network, 5xx, rate limit).
func (e *VendorError) IsRetryable() bool { return e.Retryable }

// InvalidResponse reports a response body the client could not understand.
func (e *VendorError) InvalidResponse() bool {
	return e.Code == CodeUnexpectedResponse && !e.Retryable
}

func NewCancelledError(message string) *VendorError {
	if message == "" {
		message = "Purchase was cancelled."
	}
	return &VendorError{Code: CodePurchaseCancelled, Message: message, UserCancelled: true}
}

func newNetworkError(err error) *VendorError {
	return &VendorError{Code: CodeNetwork, Message: "Error performing request.", Retryable: true, Err: err}
}

func newUnexpectedResponseError(details string) *VendorError {
	return &VendorError{Code: CodeUnexpectedResponse, Message: "Received unexpected response from the backend: " + details}
}

func newNotConfiguredError() *VendorError {
	return &VendorError{Code: CodeNotConfigured, Message: "Purchases has not been configured. Call Initialize first."}
}

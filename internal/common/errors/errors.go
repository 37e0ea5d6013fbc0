// Package errors provides the standardized error taxonomy for purchase operations.
package errors

import (
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeInitializationFailed    ErrorCode = "INITIALIZATION_FAILED"
	ErrCodeFetchFailed             ErrorCode = "FETCH_FAILED"
	ErrCodePurchaseCancelled       ErrorCode = "PURCHASE_CANCELLED"
	ErrCodePurchaseFailed          ErrorCode = "PURCHASE_FAILED"
	ErrCodeRestoreFailed           ErrorCode = "RESTORE_FAILED"
	ErrCodeIdentityOperationFailed ErrorCode = "IDENTITY_OPERATION_FAILED"
	ErrCodeVendorUnavailable       ErrorCode = "VENDOR_UNAVAILABLE"
	ErrCodeInvalidVendorResponse   ErrorCode = "INVALID_VENDOR_RESPONSE"
	ErrCodeOperationInFlight       ErrorCode = "OPERATION_IN_FLIGHT"
	ErrCodeInvalidConfiguration    ErrorCode = "INVALID_CONFIGURATION"
	ErrCodeInternal                ErrorCode = "INTERNAL_ERROR"
)

// User-facing fallbacks when the vendor supplies no message.
const (
	MsgInitializationFailed = "Failed to initialize purchases"
	MsgPurchaseFailed       = "Purchase failed"
	MsgRestoreFailed        = "Restore failed"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	cause     error
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error {
	return e.cause
}

// ==========================
// 2. Error Constructors
// ==========================

// NewInitializationFailedError wraps any failure of the init sequence.
func NewInitializationFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeInitializationFailed,
		Message:   MsgInitializationFailed,
		Details:   detailsOf(err),
		Retryable: false,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewFetchFailedError is isolated and non-fatal: the fetched value resolves to absent.
func NewFetchFailedError(resource string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeFetchFailed,
		Message:   fmt.Sprintf("Failed to fetch %s", resource),
		Details:   detailsOf(err),
		Retryable: false,
		Metadata:  map[string]interface{}{"resource": resource},
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

func NewPurchaseCancelledError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodePurchaseCancelled,
		Message:   "Purchase cancelled by user",
		Details:   detailsOf(err),
		Retryable: false,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

func NewPurchaseFailedError(message string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodePurchaseFailed,
		Message:   message,
		Details:   detailsOf(err),
		Retryable: false,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

func NewRestoreFailedError(message string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeRestoreFailed,
		Message:   message,
		Details:   detailsOf(err),
		Retryable: false,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewIdentityOperationFailedError is logged only, never surfaced to the UI.
func NewIdentityOperationFailedError(operation string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeIdentityOperationFailed,
		Message:   fmt.Sprintf("Identity operation '%s' failed", operation),
		Details:   detailsOf(err),
		Retryable: false,
		Metadata:  map[string]interface{}{"operation": operation},
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

func NewVendorUnavailableError(service string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeVendorUnavailable,
		Message:   fmt.Sprintf("Vendor service '%s' unavailable", service),
		Details:   detailsOf(err),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

func NewInvalidVendorResponseError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidVendorResponse,
		Message:   "Vendor returned an invalid response",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewOperationInFlightError(operation string) *StandardError {
	return &StandardError{
		Code:      ErrCodeOperationInFlight,
		Message:   "Another purchase operation is in progress",
		Details:   fmt.Sprintf("operation: %s", operation),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

func NewInvalidConfigurationError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidConfiguration,
		Message:   "Invalid purchases configuration",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func detailsOf(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// ==========================
// 3. Utility Functions
// ==========================

// IsRetryableErrorCode checks if an error code is worth retrying by the caller.
// The session itself never retries.
func IsRetryableErrorCode(code ErrorCode) bool {
	switch code {
	case ErrCodeVendorUnavailable, ErrCodeOperationInFlight:
		return true
	default:
		return false
	}
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.HasPrefix(codeStr, "PURCHASE"), strings.HasPrefix(codeStr, "RESTORE"):
		return "TRANSACTION"
	case strings.HasPrefix(codeStr, "IDENTITY"):
		return "IDENTITY"
	case strings.HasPrefix(codeStr, "INITIALIZATION"), strings.HasPrefix(codeStr, "FETCH"):
		return "SYNC"
	case strings.Contains(codeStr, "VENDOR"):
		return "VENDOR"
	case strings.Contains(codeStr, "CONFIGURATION"):
		return "CONFIGURATION"
	default:
		return "OTHER"
	}
}

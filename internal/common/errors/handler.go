// internal/common/errors/handler.go
package errors

import (
	stderrors "errors"
	"time"
)

// Operation names used for classification and logging.
const (
	OpInitialize = "initialize"
	OpOfferings  = "fetchOfferings"
	OpCustomer   = "fetchCustomerInfo"
	OpPurchase   = "purchasePackage"
	OpRestore    = "restorePurchases"
	OpRefresh    = "refreshCustomerInfo"
	OpLogin      = "login"
	OpLogout     = "logout"
)

type Logger interface {
	Error(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
}

// ErrorHandler classifies operation failures and logs them in one place.
type ErrorHandler struct {
	logger Logger
}

func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// Handle normalizes err for operation op and logs it. Swallowed failures
// (refresh and identity switches) are logged at warn level.
func (h *ErrorHandler) Handle(op string, err error) *StandardError {
	stdErr := Classify(op, err)

	fields := map[string]interface{}{
		"operation":     op,
		"errorCode":     string(stdErr.Code),
		"errorCategory": GetErrorCategory(stdErr.Code),
		"message":       stdErr.Message,
		"details":       stdErr.Details,
		"retryable":     stdErr.Retryable,
	}

	switch stdErr.Code {
	case ErrCodeIdentityOperationFailed, ErrCodeFetchFailed, ErrCodePurchaseCancelled, ErrCodeVendorUnavailable:
		h.logger.Warn("Purchase operation failed", fields)
	default:
		h.logger.Error("Purchase operation failed", fields)
	}
	return stdErr
}

// Classify maps a failure of op into the taxonomy.
func Classify(op string, err error) *StandardError {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) && stdErr.Code == ErrCodeOperationInFlight {
		return stdErr
	}

	switch op {
	case OpOfferings, OpCustomer, OpRefresh:
		if isInvalidResponse(err) {
			return NewInvalidVendorResponseError(detailsOf(err))
		}
		if isRetryable(err) {
			return NewVendorUnavailableError(op, err)
		}
	}

	switch op {
	case OpInitialize:
		if isMisconfigured(err) {
			cfgErr := NewInvalidConfigurationError(detailsOf(err))
			cfgErr.cause = err
			return cfgErr
		}
		return NewInitializationFailedError(err)
	case OpOfferings:
		return NewFetchFailedError("offerings", err)
	case OpCustomer:
		return NewFetchFailedError("customer info", err)
	case OpPurchase:
		if IsUserCancelled(err) {
			return NewPurchaseCancelledError(err)
		}
		return NewPurchaseFailedError(UserMessage(err, MsgPurchaseFailed), err)
	case OpRestore:
		return NewRestoreFailedError(UserMessage(err, MsgRestoreFailed), err)
	case OpRefresh:
		return NewFetchFailedError("customer info", err)
	case OpLogin, OpLogout:
		return NewIdentityOperationFailedError(op, err)
	}

	if stdErr != nil {
		return stdErr
	}
	return &StandardError{
		Code:      ErrCodeInternal,
		Message:   "Unexpected error",
		Details:   detailsOf(err),
		Retryable: false,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// IsUserCancelled reports whether err, or anything it wraps, is a
// transaction the user backed out of.
func IsUserCancelled(err error) bool {
	var c interface{ Cancelled() bool }
	if stderrors.As(err, &c) {
		return c.Cancelled()
	}
	return false
}

// UserMessage picks the text shown to the user. A vendor error in the chain
// yields its message or fallback; any other error yields its text or fallback.
func UserMessage(err error, fallback string) string {
	if err == nil {
		return fallback
	}
	var m interface{ UserMessage() string }
	if stderrors.As(err, &m) {
		if msg := m.UserMessage(); msg != "" {
			return msg
		}
		return fallback
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return fallback
}

func isRetryable(err error) bool {
	var r interface{ IsRetryable() bool }
	return stderrors.As(err, &r) && r.IsRetryable()
}

func isInvalidResponse(err error) bool {
	var r interface{ InvalidResponse() bool }
	return stderrors.As(err, &r) && r.InvalidResponse()
}

func isMisconfigured(err error) bool {
	var r interface{ Misconfigured() bool }
	return stderrors.As(err, &r) && r.Misconfigured()
}

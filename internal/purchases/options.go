package purchases

import (
	"context"
	"time"

	"purchase-sync/internal/common/config"
	"purchase-sync/internal/common/logger"
)

// Observer receives one call per finished session operation and one per
// published state snapshot. *observability.Observability satisfies it.
type Observer interface {
	RecordOperation(ctx context.Context, operation, status string, duration time.Duration)
	RecordStateChange(ctx context.Context)
}

type Option func(*Session)

// WithEntitlementID sets the entitlement that makes a customer premium.
func WithEntitlementID(id string) Option {
	return func(s *Session) {
		if id != "" {
			s.entitlementID = id
		}
	}
}

func WithLogger(log logger.Logger) Option {
	return func(s *Session) {
		if log != nil {
			s.logger = log
		}
	}
}

func WithObserver(o Observer) Option {
	return func(s *Session) {
		s.observer = o
	}
}

// WithInFlightGuard makes PurchasePackage and RestorePurchases return false
// without touching state while another purchase or restore is running.
func WithInFlightGuard() Option {
	return func(s *Session) {
		s.guard = true
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		if now != nil {
			s.now = now
		}
	}
}

// FromConfig maps the purchases config section onto session options.
func FromConfig(cfg config.PurchasesConfig) []Option {
	opts := []Option{WithEntitlementID(cfg.EntitlementID)}
	if cfg.InFlightGuard {
		opts = append(opts, WithInFlightGuard())
	}
	return opts
}

package purchases

import (
	"context"

	commonerrors "purchase-sync/internal/common/errors"
	"purchase-sync/internal/common/metrics"
	"purchase-sync/internal/models"
)

// Outcome says how a purchase or restore ended.
type Outcome int

const (
	Succeeded Outcome = iota
	Failed
	Cancelled // the user backed out; LastError keeps its pre-call value
	Rejected  // another purchase or restore held the in-flight guard
)

func (o Outcome) String() string {
	switch o {
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	case Rejected:
		return "rejected"
	}
	return "unknown"
}

// PurchasePackage buys pkg. It returns true when the vendor accepted the
// purchase; the new customer snapshot is in State afterwards. A user who
// backs out of the purchase is not an error: LastError keeps the value it
// had before the call.
func (s *Session) PurchasePackage(ctx context.Context, pkg models.Package) bool {
	return s.Purchase(ctx, pkg) == Succeeded
}

// Purchase is PurchasePackage reporting why a purchase did not succeed.
func (s *Session) Purchase(ctx context.Context, pkg models.Package) Outcome {
	return s.transaction(ctx, commonerrors.OpPurchase, commonerrors.MsgPurchaseFailed, true,
		func(ctx context.Context) (*models.CustomerInfo, error) {
			return s.client.Purchase(ctx, pkg)
		})
}

// RestorePurchases asks the vendor for previously purchased entitlements.
// True means the call succeeded, not that anything was restored.
func (s *Session) RestorePurchases(ctx context.Context) bool {
	return s.transaction(ctx, commonerrors.OpRestore, commonerrors.MsgRestoreFailed, false, s.client.Restore) == Succeeded
}

// RefreshCustomerInfo re-fetches the customer snapshot. Failures are logged
// and leave state untouched.
func (s *Session) RefreshCustomerInfo(ctx context.Context) {
	s.passive(ctx, commonerrors.OpRefresh, s.client.FetchCustomerInfo)
}

// Login switches the vendor identity to userID. Failures are logged only.
func (s *Session) Login(ctx context.Context, userID string) {
	s.passive(ctx, commonerrors.OpLogin, func(ctx context.Context) (*models.CustomerInfo, error) {
		return s.client.Identify(ctx, userID)
	})
}

// Logout returns the vendor identity to an anonymous user. Failures are
// logged only.
func (s *Session) Logout(ctx context.Context) {
	s.passive(ctx, commonerrors.OpLogout, s.client.LogOut)
}

type vendorCall func(ctx context.Context) (*models.CustomerInfo, error)

// transaction runs a purchase or restore inside the loading window. Loading
// is released on every exit path, panics included.
func (s *Session) transaction(ctx context.Context, op, fallback string, suppressCancel bool, call vendorCall) (result Outcome) {
	previousErr, acquired := s.begin()
	if !acquired {
		s.errors.Handle(op, commonerrors.NewOperationInFlightError(op))
		s.record(ctx, op, metrics.OutcomeRejected, 0)
		return Rejected
	}

	start := s.now()
	outcome := metrics.OutcomeFailure

	defer func() {
		if r := recover(); r != nil {
			s.logPanic(op, r)
			result = Failed
			outcome = metrics.OutcomeFailure
			s.mutate(func() { s.state.LastError = fallback })
		}
		s.mutate(func() {
			s.pending--
			s.busy = false
		})
		s.record(ctx, op, outcome, s.now().Sub(start))
	}()

	info, err := call(ctx)
	if err != nil {
		s.errors.Handle(op, err)
		if suppressCancel && commonerrors.IsUserCancelled(err) {
			outcome = metrics.OutcomeCancelled
			s.mutate(func() { s.state.LastError = previousErr })
			return Cancelled
		}
		msg := commonerrors.UserMessage(err, fallback)
		s.mutate(func() { s.state.LastError = msg })
		return Failed
	}

	s.mutate(func() { s.state.CustomerInfo = info })
	outcome = metrics.OutcomeSuccess
	return Succeeded
}

// begin opens the loading window and clears LastError. With the in-flight
// guard enabled it refuses while another transaction holds the window.
func (s *Session) begin() (previousErr string, acquired bool) {
	s.mu.Lock()
	if s.guard && s.busy {
		s.mu.Unlock()
		return "", false
	}
	previousErr = s.state.LastError
	s.busy = true
	s.pending++
	s.state.LastError = ""
	s.mu.Unlock()

	s.mutate(func() {})
	return previousErr, true
}

func (s *Session) passive(ctx context.Context, op string, call vendorCall) {
	start := s.now()
	outcome := metrics.OutcomeFailure

	defer func() {
		if r := recover(); r != nil {
			s.logPanic(op, r)
			outcome = metrics.OutcomeFailure
		}
		s.record(ctx, op, outcome, s.now().Sub(start))
	}()

	info, err := call(ctx)
	if err != nil {
		s.errors.Handle(op, err)
		return
	}

	s.mutate(func() { s.state.CustomerInfo = info })
	outcome = metrics.OutcomeSuccess
}

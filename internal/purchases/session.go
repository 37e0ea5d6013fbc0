// Package purchases owns the purchase and subscription state of one
// application session. A Session initializes the vendor client
// asynchronously, derives the premium flag from the latest customer
// snapshot and exposes the mutating operations consumers call.
package purchases

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	commonerrors "purchase-sync/internal/common/errors"
	"purchase-sync/internal/common/iap"
	"purchase-sync/internal/common/logger"
	"purchase-sync/internal/common/metrics"
	"purchase-sync/internal/models"
)

const DefaultEntitlementID = "premium"

type subscriber struct {
	id uint64
	fn func(State)
}

type Session struct {
	client        iap.Client
	entitlementID string
	logger        logger.Logger
	errors        *commonerrors.ErrorHandler
	observer      Observer
	guard         bool
	now           func() time.Time

	pubMu   sync.Mutex // orders write -> gauge -> notify across goroutines
	mu      sync.RWMutex
	state   State
	pending int  // operations holding the loading window, init included
	busy    bool // a purchase or restore is running

	subMu   sync.Mutex
	subs    []subscriber
	nextSub uint64
	closed  bool

	ready      chan struct{}
	cancelInit context.CancelFunc
	closeOnce  sync.Once
}

// New creates the session and starts initialization in the background. The
// returned session is usable immediately; Loading stays true until
// initialization settles.
func New(client iap.Client, opts ...Option) *Session {
	s := &Session{
		client:        client,
		entitlementID: DefaultEntitlementID,
		logger:        logger.NewNoOpLogger(),
		now:           time.Now,
		ready:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithFields(map[string]interface{}{
		"component":     "purchases",
		"entitlementId": s.entitlementID,
	})
	s.errors = commonerrors.NewErrorHandler(s.logger)

	s.pending = 1
	s.state.Loading = true

	ctx, cancel := context.WithCancel(context.Background())
	s.cancelInit = cancel
	go s.initialize(ctx)

	return s
}

// EntitlementID is the entitlement that sets IsPremium.
func (s *Session) EntitlementID() string { return s.entitlementID }

// Ready is closed once initialization has settled, successfully or not.
func (s *Session) Ready() <-chan struct{} { return s.ready }

// WaitReady blocks until initialization settles or ctx is done.
func (s *Session) WaitReady(ctx context.Context) error {
	select {
	case <-s.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) initialize(ctx context.Context) {
	start := s.now()
	outcome := metrics.OutcomeSuccess

	defer func() {
		if r := recover(); r != nil {
			s.logPanic(commonerrors.OpInitialize, r)
			outcome = metrics.OutcomeFailure
			s.mutate(func() {
				s.state.Initialized = false
				s.state.LastError = commonerrors.MsgInitializationFailed
			})
		}
		s.mutate(func() { s.pending-- })
		s.record(ctx, commonerrors.OpInitialize, outcome, s.now().Sub(start))
		close(s.ready)
	}()

	if err := s.client.Initialize(ctx); err != nil {
		s.errors.Handle(commonerrors.OpInitialize, err)
		outcome = metrics.OutcomeFailure
		s.mutate(func() {
			s.state.Initialized = false
			s.state.LastError = commonerrors.MsgInitializationFailed
		})
		return
	}
	s.mutate(func() { s.state.Initialized = true })

	var (
		wg        sync.WaitGroup
		offerings *models.Offerings
		info      *models.CustomerInfo
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		defer s.recoverFetch(commonerrors.OpOfferings)
		o, err := s.client.FetchOfferings(ctx)
		if err != nil {
			s.errors.Handle(commonerrors.OpOfferings, err)
			return
		}
		offerings = o
	}()
	go func() {
		defer wg.Done()
		defer s.recoverFetch(commonerrors.OpCustomer)
		c, err := s.client.FetchCustomerInfo(ctx)
		if err != nil {
			s.errors.Handle(commonerrors.OpCustomer, err)
			return
		}
		info = c
	}()
	wg.Wait()

	s.mutate(func() {
		if offerings != nil {
			s.state.Offerings = offerings
		}
		if info != nil {
			s.state.CustomerInfo = info
		}
	})

	s.logger.Info("purchases initialized", map[string]interface{}{
		"offerings":    offerings != nil,
		"customerInfo": info != nil,
		"durationMs":   s.now().Sub(start).Milliseconds(),
	})
}

func (s *Session) recoverFetch(op string) {
	if r := recover(); r != nil {
		s.logPanic(op, r)
	}
}

func (s *Session) logPanic(op string, r interface{}) {
	s.logger.Error("purchase operation panicked", map[string]interface{}{
		"operation": op,
		"panic":     fmt.Sprintf("%v", r),
		"stack":     string(debug.Stack()),
	})
}

// ==========================
// Reads
// ==========================

// State returns a copy of the current state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// CheckEntitlement reports whether id is active in the current snapshot.
// False until a snapshot has been fetched.
func (s *Session) CheckEntitlement(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.CustomerInfo.HasActive(id)
}

func (s *Session) IsPremium() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.IsPremium
}

func (s *Session) CustomerInfo() *models.CustomerInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.CustomerInfo
}

func (s *Session) Offerings() *models.Offerings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Offerings
}

func (s *Session) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Loading
}

func (s *Session) LastError() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.LastError
}

func (s *Session) Initialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Initialized
}

// ==========================
// Mutation and notification
// ==========================

// mutate runs fn under the write lock, recomputes the derived fields and
// publishes the resulting snapshot. Subscribers see snapshots in write order.
func (s *Session) mutate(fn func()) {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()

	s.mu.Lock()
	fn()
	s.state.Loading = s.pending > 0
	s.state.IsPremium = s.state.CustomerInfo.HasActive(s.entitlementID)
	snapshot := s.state
	s.mu.Unlock()

	if snapshot.IsPremium {
		metrics.PremiumActive.Set(1)
	} else {
		metrics.PremiumActive.Set(0)
	}
	s.publish(snapshot)
}

// Subscribe registers fn to receive every state published after this call.
// fn runs on the goroutine that caused the change and must not block. It may
// read the session but must not call a mutating operation.
func (s *Session) Subscribe(fn func(State)) (unsubscribe func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	if s.closed {
		return func() {}
	}
	s.nextSub++
	id := s.nextSub
	s.subs = append(s.subs, subscriber{id: id, fn: fn})

	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
				return
			}
		}
	}
}

func (s *Session) publish(snapshot State) {
	s.subMu.Lock()
	if s.closed {
		s.subMu.Unlock()
		return
	}
	subs := make([]subscriber, len(s.subs))
	copy(subs, s.subs)
	s.subMu.Unlock()

	if s.observer != nil {
		s.observer.RecordStateChange(context.Background())
	}
	for _, sub := range subs {
		sub.fn(snapshot)
	}
}

// Close stops notifications, cancels a still-running initialization and
// waits for it to settle. Reads keep working afterwards.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.subMu.Lock()
		s.closed = true
		s.subs = nil
		s.subMu.Unlock()

		s.cancelInit()
		<-s.ready
	})
}

func (s *Session) record(ctx context.Context, op, outcome string, duration time.Duration) {
	metrics.PurchaseOperations.WithLabelValues(op, outcome).Inc()
	metrics.PurchaseOperationDuration.WithLabelValues(op).Observe(duration.Seconds())
	if s.observer != nil {
		s.observer.RecordOperation(ctx, op, outcome, duration)
	}
}

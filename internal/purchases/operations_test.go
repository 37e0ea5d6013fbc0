package purchases

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"purchase-sync/internal/common/iap"
	"purchase-sync/internal/models"
)

// ==========================
// PurchasePackage Tests
// ==========================

func TestPurchasePackage_GrantsPremium(t *testing.T) {
	expiry := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var got models.Package
	client := &fakeClient{
		purchase: func(ctx context.Context, pkg models.Package) (*models.CustomerInfo, error) {
			got = pkg
			return snapshot(expiring("premium", expiry)), nil
		},
	}
	s := newReadySession(t, client)
	require.False(t, s.IsPremium())

	ok := s.PurchasePackage(context.Background(), annualPackage())

	assert.True(t, ok)
	assert.True(t, s.IsPremium())
	assert.False(t, s.Loading())
	assert.Empty(t, s.LastError())
	assert.Equal(t, "$rc_annual", got.Identifier)

	ent, found := s.State().Entitlement("premium")
	require.True(t, found)
	assert.Equal(t, expiry, *ent.ExpirationDate)
}

func TestPurchasePackage_Failures(t *testing.T) {
	tests := []struct {
		name        string
		priorError  string
		err         error
		wantLastErr string
	}{
		{
			name:        "user cancelled keeps absent error",
			err:         iap.NewCancelledError(""),
			wantLastErr: "",
		},
		{
			name:        "user cancelled keeps prior error",
			priorError:  "Restore failed",
			err:         iap.NewCancelledError(""),
			wantLastErr: "Restore failed",
		},
		{
			name:        "cancelled flag on another code",
			err:         &iap.VendorError{Code: iap.CodeStoreProblem, Message: "cancelled by user", UserCancelled: true},
			wantLastErr: "",
		},
		{
			name:        "vendor message surfaces",
			err:         vendorFailure("The payment was declined."),
			wantLastErr: "The payment was declined.",
		},
		{
			name:        "wrapped vendor error",
			err:         fmt.Errorf("purchase: %w", vendorFailure("Product not available.")),
			wantLastErr: "Product not available.",
		},
		{
			name:        "empty vendor message falls back",
			err:         &iap.VendorError{Code: iap.CodeUnknown},
			wantLastErr: "Purchase failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fakeClient{
				restore: func(ctx context.Context) (*models.CustomerInfo, error) {
					return nil, errors.New("Restore failed")
				},
				purchase: func(ctx context.Context, pkg models.Package) (*models.CustomerInfo, error) {
					return nil, tt.err
				},
				customerInfo: func(ctx context.Context) (*models.CustomerInfo, error) {
					return snapshot(lifetime("themes")), nil
				},
			}
			s := newReadySession(t, client)
			if tt.priorError != "" {
				require.False(t, s.RestorePurchases(context.Background()))
				require.Equal(t, tt.priorError, s.LastError())
			}
			before := s.CustomerInfo()

			ok := s.PurchasePackage(context.Background(), annualPackage())

			assert.False(t, ok)
			assert.False(t, s.Loading())
			assert.Equal(t, tt.wantLastErr, s.LastError())
			assert.Same(t, before, s.CustomerInfo(), "failed purchase keeps the snapshot")
		})
	}
}

func TestPurchasePackage_FallbackMessage(t *testing.T) {
	client := &fakeClient{
		purchase: func(ctx context.Context, pkg models.Package) (*models.CustomerInfo, error) {
			return nil, emptyError{}
		},
	}
	s := newReadySession(t, client)

	assert.False(t, s.PurchasePackage(context.Background(), annualPackage()))
	assert.Equal(t, "Purchase failed", s.LastError())
}

func TestPurchasePackage_ClearsErrorAtStart(t *testing.T) {
	inCall := make(chan string, 1)
	client := &fakeClient{
		restore: func(ctx context.Context) (*models.CustomerInfo, error) {
			return nil, vendorFailure("offline")
		},
	}
	s := newReadySession(t, client)
	require.False(t, s.RestorePurchases(context.Background()))
	require.Equal(t, "offline", s.LastError())

	client.purchase = func(ctx context.Context, pkg models.Package) (*models.CustomerInfo, error) {
		inCall <- s.LastError()
		return snapshot(), nil
	}
	require.True(t, s.PurchasePackage(context.Background(), annualPackage()))
	assert.Empty(t, <-inCall, "error is cleared while the purchase runs")
	assert.Empty(t, s.LastError())
}

func TestPurchasePackage_LoadingWindow(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	client := &fakeClient{
		purchase: func(ctx context.Context, pkg models.Package) (*models.CustomerInfo, error) {
			close(entered)
			<-release
			return snapshot(), nil
		},
	}
	s := newReadySession(t, client)

	done := make(chan bool)
	go func() { done <- s.PurchasePackage(context.Background(), annualPackage()) }()

	<-entered
	assert.True(t, s.Loading())
	close(release)
	assert.True(t, <-done)
	assert.False(t, s.Loading())
}

func TestPurchasePackage_PanicReleasesLoading(t *testing.T) {
	client := &fakeClient{
		purchase: func(ctx context.Context, pkg models.Package) (*models.CustomerInfo, error) {
			panic("store sheet crashed")
		},
	}
	s := newReadySession(t, client)

	var ok bool
	require.NotPanics(t, func() {
		ok = s.PurchasePackage(context.Background(), annualPackage())
	})
	assert.False(t, ok)
	assert.False(t, s.Loading())
	assert.Equal(t, "Purchase failed", s.LastError())
}

// ==========================
// RestorePurchases Tests
// ==========================

func TestRestorePurchases(t *testing.T) {
	t.Run("empty snapshot succeeds without premium", func(t *testing.T) {
		client := &fakeClient{
			restore: func(ctx context.Context) (*models.CustomerInfo, error) {
				return snapshot(), nil
			},
		}
		s := newReadySession(t, client)

		ok := s.RestorePurchases(context.Background())

		assert.True(t, ok, "the call itself succeeded")
		assert.False(t, s.IsPremium(), "nothing was restored")
		assert.Empty(t, s.LastError())
		assert.False(t, s.Loading())
	})

	t.Run("restored entitlement", func(t *testing.T) {
		client := &fakeClient{
			restore: func(ctx context.Context) (*models.CustomerInfo, error) {
				return snapshot(lifetime("premium")), nil
			},
		}
		s := newReadySession(t, client)

		assert.True(t, s.RestorePurchases(context.Background()))
		assert.True(t, s.IsPremium())
	})

	t.Run("cancellation is not suppressed", func(t *testing.T) {
		client := &fakeClient{
			restore: func(ctx context.Context) (*models.CustomerInfo, error) {
				return nil, iap.NewCancelledError("Restore was cancelled.")
			},
		}
		s := newReadySession(t, client)

		assert.False(t, s.RestorePurchases(context.Background()))
		assert.Equal(t, "Restore was cancelled.", s.LastError())
		assert.False(t, s.Loading())
	})

	t.Run("fallback message", func(t *testing.T) {
		client := &fakeClient{
			restore: func(ctx context.Context) (*models.CustomerInfo, error) {
				return nil, emptyError{}
			},
		}
		s := newReadySession(t, client)

		assert.False(t, s.RestorePurchases(context.Background()))
		assert.Equal(t, "Restore failed", s.LastError())
	})

	t.Run("panic", func(t *testing.T) {
		client := &fakeClient{
			restore: func(ctx context.Context) (*models.CustomerInfo, error) {
				panic("nil receipt")
			},
		}
		s := newReadySession(t, client)

		assert.False(t, s.RestorePurchases(context.Background()))
		assert.False(t, s.Loading())
		assert.Equal(t, "Restore failed", s.LastError())
	})
}

// ==========================
// Passive Operation Tests
// ==========================

func TestPassiveOperations_SwallowFailures(t *testing.T) {
	failing := func(ctx context.Context) (*models.CustomerInfo, error) {
		return nil, vendorFailure("backend down")
	}

	tests := []struct {
		name string
		run  func(s *Session)
	}{
		{"refresh", func(s *Session) { s.RefreshCustomerInfo(context.Background()) }},
		{"login", func(s *Session) { s.Login(context.Background(), "user-9") }},
		{"logout", func(s *Session) { s.Logout(context.Background()) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fakeClient{
				customerInfo: func(ctx context.Context) (*models.CustomerInfo, error) {
					return snapshot(lifetime("premium")), nil
				},
			}
			s := newReadySession(t, client)
			before := s.CustomerInfo()

			client.customerInfo = failing
			client.identify = func(ctx context.Context, userID string) (*models.CustomerInfo, error) {
				return failing(ctx)
			}
			client.logOut = failing

			var loadingSeen bool
			unsubscribe := s.Subscribe(func(st State) {
				if st.Loading {
					loadingSeen = true
				}
			})
			defer unsubscribe()

			require.NotPanics(t, func() { tt.run(s) })

			assert.Empty(t, s.LastError())
			assert.Same(t, before, s.CustomerInfo(), "snapshot unchanged")
			assert.True(t, s.IsPremium())
			assert.False(t, loadingSeen, "no loading transition")
		})
	}
}

func TestPassiveOperations_Panic(t *testing.T) {
	client := &fakeClient{}
	s := newReadySession(t, client)

	client.identify = func(ctx context.Context, userID string) (*models.CustomerInfo, error) {
		panic("identity provider crashed")
	}

	require.NotPanics(t, func() { s.Login(context.Background(), "user-9") })
	assert.Empty(t, s.LastError())
}

func TestLoginLogout_ReplaceSnapshot(t *testing.T) {
	var identified string
	client := &fakeClient{
		identify: func(ctx context.Context, userID string) (*models.CustomerInfo, error) {
			identified = userID
			return models.NewCustomerInfo(userID, time.Now(), []models.EntitlementInfo{lifetime("premium")}, nil), nil
		},
		logOut: func(ctx context.Context) (*models.CustomerInfo, error) {
			return models.NewCustomerInfo("$anon:1", time.Now(), nil, nil), nil
		},
	}
	s := newReadySession(t, client)

	s.Login(context.Background(), "user-9")
	assert.Equal(t, "user-9", identified)
	assert.Equal(t, "user-9", s.CustomerInfo().AppUserID)
	assert.True(t, s.IsPremium())

	s.Logout(context.Background())
	assert.Equal(t, "$anon:1", s.CustomerInfo().AppUserID)
	assert.False(t, s.IsPremium())
}

func TestRefreshCustomerInfo_ReplacesSnapshot(t *testing.T) {
	client := &fakeClient{}
	s := newReadySession(t, client)
	require.False(t, s.IsPremium())

	client.customerInfo = func(ctx context.Context) (*models.CustomerInfo, error) {
		return snapshot(lifetime("premium")), nil
	}
	s.RefreshCustomerInfo(context.Background())

	assert.True(t, s.IsPremium())
	assert.ElementsMatch(t, []string{"premium"}, s.CustomerInfo().ActiveIdentifiers())
}

// ==========================
// Concurrency Tests
// ==========================

func TestPurchase_Outcome(t *testing.T) {
	var next error
	client := &fakeClient{
		purchase: func(ctx context.Context, pkg models.Package) (*models.CustomerInfo, error) {
			if next != nil {
				return nil, next
			}
			return snapshot(lifetime("premium")), nil
		},
	}
	s := newReadySession(t, client)
	ctx := context.Background()

	next = vendorFailure("Card declined")
	assert.Equal(t, Failed, s.Purchase(ctx, annualPackage()))
	assert.Equal(t, Failed, s.Purchase(ctx, annualPackage()), "a repeated failure with the same text is still a failure")
	assert.Equal(t, "Card declined", s.LastError())

	next = iap.NewCancelledError("cancelled")
	assert.Equal(t, Cancelled, s.Purchase(ctx, annualPackage()))
	assert.Equal(t, "Card declined", s.LastError(), "cancellation keeps the earlier error")

	next = nil
	assert.Equal(t, Succeeded, s.Purchase(ctx, annualPackage()))
	assert.Empty(t, s.LastError())

	assert.Equal(t, "cancelled", Cancelled.String())
	assert.Equal(t, "unknown", Outcome(9).String())
}

func TestInFlightGuard(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	client := &fakeClient{
		purchase: func(ctx context.Context, pkg models.Package) (*models.CustomerInfo, error) {
			close(entered)
			<-release
			return snapshot(lifetime("premium")), nil
		},
		restore: func(ctx context.Context) (*models.CustomerInfo, error) {
			t.Error("restore must not reach the vendor while a purchase is in flight")
			return nil, nil
		},
	}
	s := newReadySession(t, client, WithInFlightGuard())

	done := make(chan bool)
	go func() { done <- s.PurchasePackage(context.Background(), annualPackage()) }()
	<-entered

	assert.False(t, s.RestorePurchases(context.Background()), "rejected while busy")
	assert.Equal(t, Rejected, s.Purchase(context.Background(), annualPackage()))
	assert.True(t, s.Loading(), "rejection leaves the running purchase's window open")
	assert.Empty(t, s.LastError())

	close(release)
	assert.True(t, <-done)
	assert.False(t, s.Loading())
	assert.True(t, s.IsPremium())
	assert.Equal(t, int32(1), client.purchaseCalls.Load())
}

func TestConcurrentPurchasesWithoutGuard(t *testing.T) {
	client := &fakeClient{
		purchase: func(ctx context.Context, pkg models.Package) (*models.CustomerInfo, error) {
			return snapshot(lifetime("premium")), nil
		},
	}
	s := newReadySession(t, client)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.PurchasePackage(context.Background(), annualPackage())
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(8), client.purchaseCalls.Load())
	assert.False(t, s.Loading())
	assert.True(t, s.IsPremium())
}

// ==========================
// Helpers
// ==========================

type emptyError struct{}

func (emptyError) Error() string { return "" }

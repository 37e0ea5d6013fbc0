// cmd/purchase-sync/main.go
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"purchase-sync/internal/billing"
	"purchase-sync/internal/common/config"
	"purchase-sync/internal/common/database"
	"purchase-sync/internal/common/iap"
	"purchase-sync/internal/common/logger"
	"purchase-sync/internal/common/observability"
	"purchase-sync/internal/paywall"
	"purchase-sync/internal/purchases"
	"purchase-sync/internal/widgets"
	"purchase-sync/pkg/registry"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	bootLog := logger.New("info", "console", "stderr")

	cfg, err := config.Load()
	if err != nil {
		bootLog.Fatal("config load failed", zap.Error(err))
	}
	_ = bootLog.Sync()

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	defer zapLog.Sync()

	log := logger.NewZapAdapter(zapLog).WithFields(map[string]interface{}{
		"app":         cfg.App.Name,
		"version":     cfg.App.Version,
		"environment": cfg.App.Environment,
	})

	zapLog.Info("Starting purchase-sync...", zap.String("backend", cfg.Purchases.Backend))

	obs := observability.New(cfg.App.Name, log)
	defer obs.Shutdown()

	client, closeClient, err := buildClient(cfg, log, zapLog)
	if err != nil {
		zapLog.Fatal("purchase client setup failed", zap.Error(err))
	}
	defer closeClient()

	opts := append(purchases.FromConfig(cfg.Purchases),
		purchases.WithLogger(log),
		purchases.WithObserver(obs),
	)
	session := purchases.New(client, opts...)
	defer session.Close()

	if cfg.Metrics.Enabled {
		go serveMetrics(cfg.Metrics.Address, session, zapLog)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		c := newConsole(session, os.Stdin, os.Stdout, cfg.Purchases.RequestTimeout())
		c.run(ctx)
	}()

	select {
	case <-sigCh:
		zapLog.Info("Shutdown signal received, closing session...")
	case <-done:
	}
	cancel()

	zapLog.Info("purchase-sync stopped")
}

// buildClient selects the vendor backend and, when enabled, puts the Redis
// offerings cache in front of it.
func buildClient(cfg *config.Config, log logger.Logger, zapLog *zap.Logger) (iap.Client, func(), error) {
	var client iap.Client

	switch cfg.Purchases.Backend {
	case config.BackendStripe:
		reg, err := loadRegistry(cfg.Stripe.RegistryPath)
		if err != nil {
			return nil, nil, err
		}
		client = billing.NewStripeProvider(billing.StripeConfig{
			SecretKey: cfg.Stripe.SecretKey,
			AppUserID: cfg.Stripe.AppUserID,
			Registry:  reg,
		}, log)
	default:
		client = iap.NewHTTPClient(&iap.HTTPConfig{
			BaseURL:   cfg.Vendor.BaseURL,
			APIKey:    cfg.Vendor.APIKey,
			AppUserID: cfg.Vendor.AppUserID,
			Platform:  cfg.Vendor.Platform,
			Timeout:   cfg.Purchases.RequestTimeout(),
		}, log)
	}

	if !cfg.Cache.Enabled {
		return client, func() {}, nil
	}

	rdb := database.NewRedis(cfg.Database.Redis)
	err := retryWithBackoff(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		return rdb.Ping(ctx)
	}, 5, time.Second, zapLog, "Redis connection")
	if err != nil {
		// The cache is optional; run uncached rather than refuse to start.
		zapLog.Warn("offerings cache disabled", zap.Error(err))
		_ = rdb.Close()
		return client, func() {}, nil
	}
	zapLog.Info("Redis connected successfully", zap.String("address", cfg.Database.Redis.Address))

	cached := iap.NewCachedClient(client, rdb.Client, cfg.Cache.OfferingsCacheTTL(), log)
	return cached, func() {
		if err := rdb.Close(); err != nil {
			zapLog.Error("Error closing Redis client", zap.Error(err))
		}
	}, nil
}

// loadRegistry reads the product registry and rejects one that fails the
// schema or repeats a product id.
func loadRegistry(path string) (*registry.ProductRegistry, error) {
	reg, err := registry.LoadRegistry(path)
	if err != nil {
		return nil, fmt.Errorf("load product registry: %w", err)
	}
	if err := reg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid product registry %s: %w", path, err)
	}
	return reg, nil
}

func serveMetrics(addr string, session *purchases.Session, zapLog *zap.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		select {
		case <-session.Ready():
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"status":      "ready",
				"initialized": session.Initialized(),
			})
		default:
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{"status": "initializing"})
		}
	})
	mux.Handle("/metrics", promhttp.Handler())

	zapLog.Info("Health/Metrics server listening", zap.String("address", addr))
	if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
		zapLog.Error("Health/Metrics server failed", zap.Error(err))
	}
}

// ==========================
// Console
// ==========================

type console struct {
	session *purchases.Session
	paywall *paywall.Paywall
	restore *widgets.RestoreButton
	badge   *widgets.PremiumBadge
	in      *bufio.Scanner
	timeout time.Duration

	mu   sync.Mutex // guards out and last
	out  io.Writer
	last purchases.State
}

func newConsole(session *purchases.Session, in io.Reader, out io.Writer, timeout time.Duration) *console {
	return &console{
		session: session,
		paywall: paywall.New(session),
		restore: widgets.NewRestoreButton(session),
		badge:   widgets.NewPremiumBadge(session, session.EntitlementID()),
		in:      bufio.NewScanner(in),
		out:     out,
		timeout: timeout,
	}
}

func (c *console) run(ctx context.Context) {
	c.mu.Lock()
	unsubscribe := c.session.Subscribe(c.watch)
	c.last = c.session.State()
	c.mu.Unlock()
	defer unsubscribe()

	c.help()
	for {
		c.printf("> ")
		if !c.in.Scan() {
			return
		}
		fields := strings.Fields(c.in.Text())
		if len(fields) == 0 {
			continue
		}
		if fields[0] == "quit" || fields[0] == "exit" {
			return
		}
		c.dispatch(ctx, fields[0], fields[1:])
	}
}

// watch prints the state transitions a user would otherwise miss between
// commands, such as initialization settling in the background.
func (c *console) watch(st purchases.State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev := c.last
	c.last = st

	if st.Loading != prev.Loading {
		if st.Loading {
			fmt.Fprintln(c.out, "~ working...")
		} else {
			fmt.Fprintln(c.out, "~ idle")
		}
	}
	if st.IsPremium != prev.IsPremium {
		if st.IsPremium {
			fmt.Fprintln(c.out, "~ premium unlocked")
		} else {
			fmt.Fprintln(c.out, "~ premium ended")
		}
	}
	if st.LastError != prev.LastError && st.LastError != "" {
		fmt.Fprintf(c.out, "~ error: %s\n", st.LastError)
	}
}

func (c *console) printf(format string, args ...interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

func (c *console) dispatch(ctx context.Context, cmd string, args []string) {
	opCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	switch cmd {
	case "status":
		c.status()
	case "offerings":
		c.offerings()
	case "select":
		if len(args) != 1 {
			c.printf("usage: select <package-id>\n")
			return
		}
		if err := c.paywall.Select(args[0]); err != nil {
			c.printf("%v\n", err)
			return
		}
		c.offerings()
	case "buy":
		pkg, err := c.paywall.Checkout()
		if err != nil {
			c.printf("%v\n", err)
			return
		}
		c.report("purchase", c.session.Purchase(opCtx, pkg))
	case "restore":
		res := c.restore.Press(opCtx)
		c.printf("restore: %s. %s\n", res.Outcome, res.Message)
	case "refresh":
		c.session.RefreshCustomerInfo(opCtx)
		c.status()
	case "login":
		if len(args) != 1 {
			c.printf("usage: login <user-id>\n")
			return
		}
		c.session.Login(opCtx, args[0])
		c.status()
	case "logout":
		c.session.Logout(opCtx)
		c.status()
	case "help":
		c.help()
	default:
		c.printf("unknown command %q\n", cmd)
	}
}

func (c *console) report(op string, outcome purchases.Outcome) {
	switch outcome {
	case purchases.Succeeded:
		c.printf("%s succeeded\n", op)
	case purchases.Cancelled:
		c.printf("%s cancelled\n", op)
	case purchases.Rejected:
		c.printf("%s rejected: another purchase is in progress\n", op)
	default:
		c.printf("%s failed: %s\n", op, c.session.LastError())
	}
	c.status()
}

func (c *console) status() {
	st := c.session.State()
	var b strings.Builder
	fmt.Fprintf(&b, "initialized=%t loading=%t premium=%t\n", st.Initialized, st.Loading, st.IsPremium)
	if st.LastError != "" {
		fmt.Fprintf(&b, "error: %s\n", st.LastError)
	}
	if st.CustomerInfo != nil {
		ids := st.CustomerInfo.ActiveIdentifiers()
		sort.Strings(ids)
		fmt.Fprintf(&b, "user=%s entitlements=%s\n", st.CustomerInfo.AppUserID, strings.Join(ids, ","))
	}
	if v := c.badge.View(time.Now()); v.Visible {
		suffix := ""
		if v.ExpiringSoon {
			suffix = " (expiring soon)"
		}
		fmt.Fprintf(&b, "[%s]%s\n", v.Label, suffix)
	}
	c.printf("%s", b.String())
}

func (c *console) offerings() {
	v := c.paywall.View()
	if len(v.Rows) == 0 {
		c.printf("no offerings available\n")
		return
	}
	var b strings.Builder
	for _, row := range v.Rows {
		mark := " "
		if row.Selected {
			mark = "*"
		}
		fmt.Fprintf(&b, "%s %-24s %-10s %s\n", mark, row.Identifier, row.Title, row.PriceLabel)
	}
	if v.SavingsBadge != "" {
		fmt.Fprintln(&b, v.SavingsBadge)
	}
	c.printf("%s", b.String())
}

func (c *console) help() {
	c.printf("%s", `commands:
  status              show session state
  offerings           list the current offering
  select <package>    choose the package to buy
  buy                 purchase the selected package
  restore             restore previous purchases
  refresh             re-fetch customer info
  login <user-id>     switch to a known user
  logout              switch to an anonymous user
  quit
`)
}

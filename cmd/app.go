package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ferreteria/ordersync/internal/config"
	"github.com/ferreteria/ordersync/internal/connectivity"
	"github.com/ferreteria/ordersync/internal/metrics"
	"github.com/ferreteria/ordersync/internal/models"
	"github.com/ferreteria/ordersync/internal/notify"
	"github.com/ferreteria/ordersync/internal/remote"
	"github.com/ferreteria/ordersync/internal/services"
	"github.com/ferreteria/ordersync/internal/store"
	ordersync "github.com/ferreteria/ordersync/internal/sync"
)

// app is the wired client: one store, one remote client, one monitor and
// one sync controller sharing a listener registry.
type app struct {
	store    *store.Store
	remote   *remote.Client
	monitor  *connectivity.Monitor
	sync     *ordersync.Controller
	registry *notify.Registry
	metrics  *metrics.Collector
	session  services.Session

	providers *services.ProviderService
	orders    *services.OrderService
	branches  *services.BranchService
	users     *services.UserService
}

type appOptions struct {
	// interval overrides the configured probe interval.
	interval time.Duration
	metrics  *metrics.Collector
}

// openApp opens the local store and starts the connectivity monitor. When the
// initial probe finds the backend, queued mutations are replayed in the
// background; close waits for that replay.
func openApp(ctx context.Context, opts appOptions) (*app, error) {
	dir, err := resolveDataDir()
	if err != nil {
		return nil, err
	}
	st, err := store.Open(ctx, dir)
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}

	a := &app{
		store:    st,
		registry: notify.NewRegistry(),
		metrics:  opts.metrics,
	}

	creds, err := config.LoadAuth()
	if err != nil {
		slog.Warn("config: load credentials", "err", err)
	}
	a.session = sessionFromCredentials(creds)

	a.remote = remote.New(config.APIURL(), remote.TokenFunc(config.Token))
	a.remote.TTL = config.CacheTTL()
	a.remote.Metrics = a.metrics

	probeURL := config.ProbeURL()
	if probeURL == "" {
		probeURL = connectivity.DefaultProbeURL
	}
	interval := opts.interval
	if interval <= 0 {
		interval = config.ProbeInterval()
	}
	a.monitor = connectivity.New(
		connectivity.NewHTTPProber(probeURL, config.ProbeTimeout()),
		st,
		a.registry,
		connectivity.Options{
			Interval: interval,
			OnOnline: func(ctx context.Context) { a.sync.Drain(ctx) },
			Metrics:  a.metrics,
		},
	)
	a.sync = ordersync.New(st, a.remote, a.monitor, ordersync.Options{
		MaxAttempts: config.MaxAttempts(),
		Registry:    a.registry,
		Metrics:     a.metrics,
	})

	deps := services.Deps{
		Store:   st,
		Remote:  a.remote,
		Queue:   a.sync,
		Status:  a.monitor,
		Session: a.session,
	}
	a.providers = services.NewProviderService(deps)
	a.orders = services.NewOrderService(deps)
	a.branches = services.NewBranchService(deps)
	a.users = services.NewUserService(deps)
	a.registry.Add(&services.Refresher{Providers: a.providers, Orders: a.orders})

	if err := a.monitor.Start(ctx); err != nil {
		st.Close()
		return nil, err
	}
	return a, nil
}

// close lets a replay started by the initial probe finish, then stops the
// monitor and closes the store.
func (a *app) close() {
	a.monitor.Settle()
	a.monitor.Close()
	if err := a.store.Close(); err != nil {
		slog.Warn("store: close", "err", err)
	}
}

// withApp opens the app for the duration of fn.
func withApp(ctx context.Context, fn func(a *app) error) error {
	a, err := openApp(ctx, appOptions{})
	if err != nil {
		return err
	}
	defer a.close()
	return fn(a)
}

func resolveDataDir() (string, error) {
	if dataDir != "" {
		return dataDir, nil
	}
	return config.DataDir()
}

// tuiBackend drives the TUI monitor.
type tuiBackend struct {
	*connectivity.Monitor
	*ordersync.Controller
	store *store.Store
}

func (b tuiBackend) QueueStats(ctx context.Context) (store.QueueStats, error) {
	return b.store.QueueStats(ctx)
}

func sessionFromCredentials(c *config.Credentials) services.Session {
	if c == nil {
		return services.Session{}
	}
	return services.Session{
		UserID:     c.UserID,
		Email:      c.Email,
		UserName:   c.Name,
		Role:       models.Role(c.Role),
		BranchID:   c.BranchID,
		BranchName: c.BranchName,
	}
}

func credentialsFromSession(token string, s services.Session, now time.Time) *config.Credentials {
	return &config.Credentials{
		AccessToken: token,
		UserID:      s.UserID,
		Email:       s.Email,
		Name:        s.UserName,
		Role:        string(s.Role),
		BranchID:    s.BranchID,
		BranchName:  s.BranchName,
		SavedAt:     models.Timestamp(now),
	}
}

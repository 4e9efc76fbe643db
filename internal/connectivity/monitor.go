// Package connectivity decides whether the client is online. It probes a
// well-known endpoint on a schedule, honours a persisted manual offline
// override, and broadcasts status changes to registered listeners.
package connectivity

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ferreteria/ordersync/internal/metrics"
	"github.com/ferreteria/ordersync/internal/models"
	"github.com/ferreteria/ordersync/internal/notify"
	"golang.org/x/time/rate"
)

// Persisted flag keys.
const (
	KeyManualOffline = "manualOffline"
	KeyNetStatus     = "netStatus"
)

// DefaultInterval is the periodic probe interval.
const DefaultInterval = time.Minute

// StateStore persists the monitor flags across restarts.
type StateStore interface {
	GetMeta(ctx context.Context, key string) (string, bool, error)
	SetMeta(ctx context.Context, key, value string) error
}

// Options configure a Monitor. Zero values select defaults.
type Options struct {
	Interval time.Duration
	// OnOnline runs once for every transition into online.
	OnOnline func(ctx context.Context)
	// PlatformOnline reports the operating system's network hint at startup.
	// Nil means no hint is available.
	PlatformOnline func() bool
	// HintEvery and HintBurst limit probes triggered by Hint(true).
	HintEvery time.Duration
	HintBurst int
	Metrics   *metrics.Collector
}

// Monitor tracks connection status. It is safe for concurrent use.
type Monitor struct {
	prober   Prober
	state    StateStore
	registry *notify.Registry
	opts     Options
	limiter  *rate.Limiter

	mu      sync.Mutex
	status  models.ConnectionStatus
	manual  bool
	started bool
	closed  bool
	runCtx  context.Context
	cancel  context.CancelFunc

	probeMu sync.Mutex
	// transMu serializes whole transitions: swap, persist and delivery.
	// Listeners must not change the monitor's status from OnStatusChange.
	transMu   sync.Mutex
	wg        sync.WaitGroup
	callbacks sync.WaitGroup
}

// New builds a Monitor. registry may be shared with the sync controller; a
// nil registry gets a private one.
func New(prober Prober, state StateStore, registry *notify.Registry, opts Options) *Monitor {
	if registry == nil {
		registry = notify.NewRegistry()
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.HintEvery <= 0 {
		opts.HintEvery = 5 * time.Second
	}
	if opts.HintBurst <= 0 {
		opts.HintBurst = 1
	}
	return &Monitor{
		prober:   prober,
		state:    state,
		registry: registry,
		opts:     opts,
		limiter:  rate.NewLimiter(rate.Every(opts.HintEvery), opts.HintBurst),
		status:   models.StatusOffline,
	}
}

// Registry returns the listener registry status changes are delivered to.
func (m *Monitor) Registry() *notify.Registry { return m.registry }

// AddListener subscribes l to status changes.
func (m *Monitor) AddListener(l notify.Listener) { m.registry.Add(l) }

// RemoveListener unsubscribes l.
func (m *Monitor) RemoveListener(l notify.Listener) { m.registry.Remove(l) }

// Status returns the current connection status.
func (m *Monitor) Status() models.ConnectionStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// IsManualOffline reports whether the user pinned the client offline.
func (m *Monitor) IsManualOffline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.manual
}

// Load reads the persisted flags without probing or starting the loop.
// One-shot commands use it to report the last known state.
func (m *Monitor) Load(ctx context.Context) (lastStatus models.ConnectionStatus, err error) {
	manual, _, err := m.state.GetMeta(ctx, KeyManualOffline)
	if err != nil {
		return "", err
	}
	last, _, err := m.state.GetMeta(ctx, KeyNetStatus)
	if err != nil {
		return "", err
	}
	lastStatus = models.ParseConnectionStatus(last)

	m.mu.Lock()
	m.manual = manual == "1"
	if lastStatus != "" {
		m.status = lastStatus
	}
	if m.manual {
		m.status = models.StatusOffline
	}
	m.mu.Unlock()
	return lastStatus, nil
}

// Start restores persisted state, settles the initial status and starts
// periodic probing. It returns once the initial status is known.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return nil
	}
	m.started = true
	m.runCtx, m.cancel = context.WithCancel(context.WithoutCancel(ctx))
	m.mu.Unlock()

	last, err := m.Load(ctx)
	if err != nil {
		slog.Warn("connectivity: load state", "err", err)
	}

	switch {
	case m.IsManualOffline():
		m.setStatus(models.StatusOffline)
	case last == models.StatusOffline || (m.opts.PlatformOnline != nil && !m.opts.PlatformOnline()):
		m.setStatus(models.StatusOffline)
	default:
		m.forceStatus(models.StatusChecking)
		m.CheckNow(ctx)
	}

	m.wg.Add(1)
	go m.loop(m.runCtx)
	return nil
}

func (m *Monitor) loop(ctx context.Context) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !m.IsManualOffline() {
				m.CheckNow(ctx)
			}
		}
	}
}

// Close stops periodic probing and waits for any OnOnline callback still
// running. It is safe to call more than once.
func (m *Monitor) Close() {
	m.mu.Lock()
	m.closed = true
	cancel := m.cancel
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	m.wg.Wait()
	m.callbacks.Wait()
}

// Settle waits for OnOnline callbacks already started, without stopping
// the monitor.
func (m *Monitor) Settle() {
	m.callbacks.Wait()
}

// CheckNow probes immediately and returns whether the client is online.
// While manually offline it probes nothing and reports false.
func (m *Monitor) CheckNow(ctx context.Context) bool {
	m.probeMu.Lock()
	defer m.probeMu.Unlock()

	if m.IsManualOffline() {
		m.setStatus(models.StatusOffline)
		return false
	}
	if m.Status() != models.StatusOnline {
		m.setStatus(models.StatusChecking)
	}

	online := m.prober.Probe(ctx)
	m.opts.Metrics.RecordProbe(online)

	// The override may have been switched on while the probe ran.
	if m.IsManualOffline() {
		m.setStatus(models.StatusOffline)
		return false
	}
	if online {
		m.setStatus(models.StatusOnline)
	} else {
		m.setStatus(models.StatusOffline)
	}
	return online
}

// ToggleManualOffline flips the override and returns the new value.
func (m *Monitor) ToggleManualOffline(ctx context.Context) (bool, error) {
	next := !m.IsManualOffline()
	return next, m.SetManualOffline(ctx, next)
}

// SetManualOffline persists the override. Enabling pins the status offline;
// disabling runs a probe right away.
func (m *Monitor) SetManualOffline(ctx context.Context, manual bool) error {
	value := "0"
	if manual {
		value = "1"
	}
	if err := m.state.SetMeta(ctx, KeyManualOffline, value); err != nil {
		return err
	}
	m.mu.Lock()
	m.manual = manual
	m.mu.Unlock()

	slog.Info("connectivity: manual offline", "enabled", manual)
	if manual {
		m.setStatus(models.StatusOffline)
		return nil
	}
	m.CheckNow(ctx)
	return nil
}

// Hint feeds a platform network event. An offline hint sets offline; an
// online hint only triggers a probe, subject to rate limiting. Both are
// ignored while manually offline.
func (m *Monitor) Hint(ctx context.Context, online bool) {
	if m.IsManualOffline() {
		return
	}
	if !online {
		m.setStatus(models.StatusOffline)
		return
	}
	if !m.limiter.Allow() {
		slog.Debug("connectivity: online hint dropped by rate limit")
		return
	}
	m.CheckNow(ctx)
}

// setStatus applies s when it differs from the current status.
func (m *Monitor) setStatus(s models.ConnectionStatus) {
	m.transition(s, false)
}

// forceStatus publishes s even if it equals the current status. Used once at
// startup so listeners see the initial checking state.
func (m *Monitor) forceStatus(s models.ConnectionStatus) {
	m.transition(s, true)
}

func (m *Monitor) transition(s models.ConnectionStatus, force bool) {
	m.transMu.Lock()
	defer m.transMu.Unlock()

	m.mu.Lock()
	prev := m.status
	if prev == s && !force {
		m.mu.Unlock()
		return
	}
	m.status = s
	m.mu.Unlock()
	m.publish(prev, s)
}

func (m *Monitor) publish(prev, s models.ConnectionStatus) {
	if err := m.state.SetMeta(context.Background(), KeyNetStatus, string(s)); err != nil {
		slog.Warn("connectivity: persist status", "status", s, "err", err)
	}
	m.opts.Metrics.RecordStatus(s)
	slog.Debug("connectivity: status", "from", prev, "to", s)
	m.registry.StatusChanged(s)

	if s == models.StatusOnline && prev != models.StatusOnline {
		m.triggerOnline()
	}
}

func (m *Monitor) triggerOnline() {
	if m.opts.OnOnline == nil {
		return
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	ctx := m.runCtx
	if ctx == nil {
		ctx = context.Background()
	}
	m.callbacks.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.callbacks.Done()
		m.opts.OnOnline(ctx)
	}()
}

package connectivity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ferreteria/ordersync/internal/models"
	"github.com/ferreteria/ordersync/internal/notify"
	"go.uber.org/goleak"
)

type memState struct {
	mu   sync.Mutex
	vals map[string]string
}

func newMemState(kv ...string) *memState {
	s := &memState{vals: map[string]string{}}
	for i := 0; i+1 < len(kv); i += 2 {
		s.vals[kv[i]] = kv[i+1]
	}
	return s
}

func (s *memState) GetMeta(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.vals[key]
	return v, ok, nil
}

func (s *memState) SetMeta(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vals[key] = value
	return nil
}

func (s *memState) get(key string) string {
	v, _, _ := s.GetMeta(context.Background(), key)
	return v
}

type fakeProber struct {
	online atomic.Bool
	calls  atomic.Int32
}

func (p *fakeProber) Probe(context.Context) bool {
	p.calls.Add(1)
	return p.online.Load()
}

type statusLog struct {
	mu  sync.Mutex
	got []models.ConnectionStatus
}

func (l *statusLog) OnStatusChange(s models.ConnectionStatus) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.got = append(l.got, s)
}

func (l *statusLog) snapshot() []models.ConnectionStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]models.ConnectionStatus(nil), l.got...)
}

func equalStatuses(a, b []models.ConnectionStatus) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestStartProbesAndGoesOnline(t *testing.T) {
	defer goleak.VerifyNone(t)

	prober := &fakeProber{}
	prober.online.Store(true)
	var drains atomic.Int32
	log := &statusLog{}
	reg := notify.NewRegistry()
	reg.Add(log)

	m := New(prober, newMemState(), reg, Options{
		Interval: time.Hour,
		OnOnline: func(context.Context) { drains.Add(1) },
	})
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	m.Close()

	if m.Status() != models.StatusOnline {
		t.Errorf("status: got %q, want online", m.Status())
	}
	want := []models.ConnectionStatus{models.StatusChecking, models.StatusOnline}
	if got := log.snapshot(); !equalStatuses(got, want) {
		t.Errorf("notifications: got %v, want %v", got, want)
	}
	if drains.Load() != 1 {
		t.Errorf("drains: got %d, want 1", drains.Load())
	}
}

func TestStartOfflineWhenLastStatusOffline(t *testing.T) {
	defer goleak.VerifyNone(t)

	prober := &fakeProber{}
	prober.online.Store(true)
	m := New(prober, newMemState(KeyNetStatus, "offline"), nil, Options{Interval: time.Hour})
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer m.Close()

	if m.Status() != models.StatusOffline {
		t.Errorf("status: got %q, want offline", m.Status())
	}
	if prober.calls.Load() != 0 {
		t.Errorf("probe ran at startup %d times", prober.calls.Load())
	}
}

func TestStartOfflineOnPlatformHint(t *testing.T) {
	defer goleak.VerifyNone(t)

	prober := &fakeProber{}
	m := New(prober, newMemState(), nil, Options{
		Interval:       time.Hour,
		PlatformOnline: func() bool { return false },
	})
	m.Start(context.Background())
	defer m.Close()

	if m.Status() != models.StatusOffline || prober.calls.Load() != 0 {
		t.Errorf("got status %q after %d probes", m.Status(), prober.calls.Load())
	}
}

func TestManualOfflinePersistedAcrossStart(t *testing.T) {
	defer goleak.VerifyNone(t)

	prober := &fakeProber{}
	prober.online.Store(true)
	state := newMemState(KeyManualOffline, "1")
	m := New(prober, state, nil, Options{Interval: 5 * time.Millisecond})
	m.Start(context.Background())

	time.Sleep(30 * time.Millisecond)
	m.Close()

	if !m.IsManualOffline() {
		t.Error("manual flag not restored")
	}
	if m.Status() != models.StatusOffline {
		t.Errorf("status: got %q, want offline", m.Status())
	}
	if prober.calls.Load() != 0 {
		t.Errorf("probed %d times while manually offline", prober.calls.Load())
	}
}

func TestToggleManualOffline(t *testing.T) {
	defer goleak.VerifyNone(t)

	prober := &fakeProber{}
	prober.online.Store(true)
	state := newMemState()
	var drains atomic.Int32
	m := New(prober, state, nil, Options{
		Interval: time.Hour,
		OnOnline: func(context.Context) { drains.Add(1) },
	})
	ctx := context.Background()
	m.Start(ctx)

	on, err := m.ToggleManualOffline(ctx)
	if err != nil {
		t.Fatalf("toggle on: %v", err)
	}
	if !on || state.get(KeyManualOffline) != "1" || m.Status() != models.StatusOffline {
		t.Fatalf("after toggle on: manual=%v stored=%q status=%q", on, state.get(KeyManualOffline), m.Status())
	}
	if m.CheckNow(ctx) {
		t.Error("CheckNow reported online while manually offline")
	}
	probes := prober.calls.Load()

	off, err := m.ToggleManualOffline(ctx)
	if err != nil {
		t.Fatalf("toggle off: %v", err)
	}
	m.Close()

	if off || state.get(KeyManualOffline) != "0" {
		t.Errorf("after toggle off: manual=%v stored=%q", off, state.get(KeyManualOffline))
	}
	if prober.calls.Load() != probes+1 {
		t.Errorf("toggle off probes: got %d, want %d", prober.calls.Load(), probes+1)
	}
	if m.Status() != models.StatusOnline {
		t.Errorf("status: got %q, want online", m.Status())
	}
	if drains.Load() != 2 {
		t.Errorf("drains: got %d, want 2", drains.Load())
	}
}

func TestOnlineTriggersOncePerTransition(t *testing.T) {
	defer goleak.VerifyNone(t)

	prober := &fakeProber{}
	prober.online.Store(true)
	log := &statusLog{}
	reg := notify.NewRegistry()
	var drains atomic.Int32
	m := New(prober, newMemState(), reg, Options{
		Interval: time.Hour,
		OnOnline: func(context.Context) { drains.Add(1) },
	})
	ctx := context.Background()
	m.Start(ctx)
	reg.Add(log)

	m.CheckNow(ctx)
	m.CheckNow(ctx)
	prober.online.Store(false)
	m.CheckNow(ctx)
	m.CheckNow(ctx)
	prober.online.Store(true)
	m.CheckNow(ctx)
	m.Close()

	if drains.Load() != 2 {
		t.Errorf("drains: got %d, want 2", drains.Load())
	}
	want := []models.ConnectionStatus{
		models.StatusOffline,
		models.StatusChecking, models.StatusOffline,
		models.StatusChecking, models.StatusOnline,
	}
	if got := log.snapshot(); !equalStatuses(got, want) {
		t.Errorf("notifications: got %v, want %v", got, want)
	}
}

func TestPeriodicProbing(t *testing.T) {
	defer goleak.VerifyNone(t)

	prober := &fakeProber{}
	m := New(prober, newMemState(KeyNetStatus, "offline"), nil, Options{Interval: 5 * time.Millisecond})
	m.Start(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for prober.calls.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	m.Close()

	if prober.calls.Load() < 3 {
		t.Errorf("periodic probes: got %d, want at least 3", prober.calls.Load())
	}
}

func TestHints(t *testing.T) {
	defer goleak.VerifyNone(t)

	prober := &fakeProber{}
	prober.online.Store(true)
	m := New(prober, newMemState(), nil, Options{Interval: time.Hour, HintEvery: time.Hour, HintBurst: 1})
	ctx := context.Background()
	m.Start(ctx)
	defer m.Close()

	m.Hint(ctx, false)
	if m.Status() != models.StatusOffline {
		t.Fatalf("offline hint: got %q", m.Status())
	}

	before := prober.calls.Load()
	m.Hint(ctx, true)
	m.Hint(ctx, true)
	m.Hint(ctx, true)
	if got := prober.calls.Load() - before; got != 1 {
		t.Errorf("hint probes: got %d, want 1", got)
	}
	if m.Status() != models.StatusOnline {
		t.Errorf("online hint: got %q", m.Status())
	}
}

func TestHintsIgnoredWhileManual(t *testing.T) {
	prober := &fakeProber{}
	prober.online.Store(true)
	m := New(prober, newMemState(KeyManualOffline, "1"), nil, Options{Interval: time.Hour})
	ctx := context.Background()
	m.Start(ctx)
	defer m.Close()

	m.Hint(ctx, true)
	if prober.calls.Load() != 0 || m.Status() != models.StatusOffline {
		t.Errorf("got status %q after %d probes", m.Status(), prober.calls.Load())
	}
}

func TestHTTPProber(t *testing.T) {
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ok.Close()
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer bad.Close()
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer slow.Close()

	ctx := context.Background()
	if !NewHTTPProber(ok.URL, time.Second).Probe(ctx) {
		t.Error("2xx probe reported offline")
	}
	if NewHTTPProber(bad.URL, time.Second).Probe(ctx) {
		t.Error("503 probe reported online")
	}
	if NewHTTPProber(slow.URL, 20*time.Millisecond).Probe(ctx) {
		t.Error("timed out probe reported online")
	}

	dead := httptest.NewServer(http.NotFoundHandler())
	url := dead.URL
	dead.Close()
	if NewHTTPProber(url, time.Second).Probe(ctx) {
		t.Error("unreachable probe reported online")
	}
}

func TestSettleWaitsForOnlineCallback(t *testing.T) {
	defer goleak.VerifyNone(t)

	prober := &fakeProber{}
	prober.online.Store(true)
	var finished atomic.Bool
	m := New(prober, newMemState(), nil, Options{
		Interval: time.Hour,
		OnOnline: func(ctx context.Context) {
			time.Sleep(20 * time.Millisecond)
			finished.Store(ctx.Err() == nil)
		},
	})
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	m.Settle()
	if !finished.Load() {
		t.Error("Settle returned before the callback finished with a live context")
	}
	m.Close()
}

// gatedState blocks the write of one netStatus value until release is closed.
type gatedState struct {
	*memState
	value   string
	reached chan struct{}
	release chan struct{}
	once    sync.Once
}

func (s *gatedState) SetMeta(ctx context.Context, key, value string) error {
	if key == KeyNetStatus && value == s.value {
		s.once.Do(func() {
			close(s.reached)
			<-s.release
		})
	}
	return s.memState.SetMeta(ctx, key, value)
}

func TestTransitionsDeliverInOrder(t *testing.T) {
	defer goleak.VerifyNone(t)

	prober := &fakeProber{}
	prober.online.Store(true)
	state := &gatedState{
		memState: newMemState(),
		value:    string(models.StatusOnline),
		reached:  make(chan struct{}),
		release:  make(chan struct{}),
	}
	log := &statusLog{}
	reg := notify.NewRegistry()
	reg.Add(log)
	m := New(prober, state, reg, Options{Interval: time.Hour})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		m.CheckNow(context.Background())
	}()
	<-state.reached

	wg.Add(1)
	go func() {
		defer wg.Done()
		m.Hint(context.Background(), false)
	}()
	time.Sleep(20 * time.Millisecond)
	close(state.release)
	wg.Wait()

	got := log.snapshot()
	if len(got) == 0 || got[len(got)-1] != m.Status() {
		t.Fatalf("last notification %v does not match status %q", got, m.Status())
	}
	if persisted := state.get(KeyNetStatus); persisted != string(m.Status()) {
		t.Errorf("persisted %q, status %q", persisted, m.Status())
	}
	want := []models.ConnectionStatus{models.StatusChecking, models.StatusOnline, models.StatusOffline}
	if !equalStatuses(got, want) {
		t.Errorf("notifications: got %v, want %v", got, want)
	}
}

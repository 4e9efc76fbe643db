// Package monitor implements the live sync monitor TUI: connection state,
// queue depth, last drain result and the pending mutations.
package monitor

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/ferreteria/ordersync/internal/models"
	"github.com/ferreteria/ordersync/internal/notify"
	"github.com/ferreteria/ordersync/internal/store"
)

// Backend is what the monitor observes and drives.
type Backend interface {
	Status() models.ConnectionStatus
	IsManualOffline() bool
	ToggleManualOffline(ctx context.Context) (bool, error)
	CheckNow(ctx context.Context) bool
	ForceSyncNow(ctx context.Context) bool
	IsDraining() bool
	QueueStats(ctx context.Context) (store.QueueStats, error)
	Pending(ctx context.Context) ([]store.QueueItem, error)
}

// StatusMsg reports a connectivity transition.
type StatusMsg struct{ Status models.ConnectionStatus }

// SyncStartMsg reports that a drain began.
type SyncStartMsg struct{}

// SyncDoneMsg reports a finished drain.
type SyncDoneMsg struct{ Success bool }

// TickMsg triggers a data refresh
type TickMsg time.Time

type snapshotMsg struct {
	status   models.ConnectionStatus
	manual   bool
	draining bool
	stats    store.QueueStats
	pending  []store.QueueItem
	err      error
	at       time.Time
}

type flashMsg struct {
	text string
	err  error
}

type clearFlashMsg struct{}

// Listener forwards registry events into the program through send
// (usually (*tea.Program).Send).
func Listener(send func(tea.Msg)) *notify.Funcs {
	return &notify.Funcs{
		Status:   func(s models.ConnectionStatus) { send(StatusMsg{Status: s}) },
		Start:    func() { send(SyncStartMsg{}) },
		Complete: func(ok bool) { send(SyncDoneMsg{Success: ok}) },
	}
}

type keyMap struct {
	Offline key.Binding
	Sync    key.Binding
	Probe   key.Binding
	Quit    key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Offline, k.Sync, k.Probe, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding { return [][]key.Binding{k.ShortHelp()} }

var keys = keyMap{
	Offline: key.NewBinding(key.WithKeys("o"), key.WithHelp("o", "toggle offline")),
	Sync:    key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "sync now")),
	Probe:   key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "probe")),
	Quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

// Model is the Bubble Tea model of the sync monitor.
type Model struct {
	backend Backend
	timeout time.Duration

	Width  int
	Height int

	Status    models.ConnectionStatus
	Manual    bool
	Draining  bool
	Stats     store.QueueStats
	Pending   []store.QueueItem
	LastSync  time.Time
	LastOK    bool
	Synced    bool // at least one drain finished since start
	Flash     string
	Err       error
	Refreshed time.Time

	RefreshInterval time.Duration

	spinner spinner.Model
	help    help.Model
	now     func() time.Time
}

// MinWidth is the minimum terminal width for proper display
const MinWidth = 40

// NewModel creates a monitor model refreshing every interval.
func NewModel(b Backend, interval time.Duration) Model {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = checkingStyle
	return Model{
		backend:         b,
		timeout:         30 * time.Second,
		Status:          b.Status(),
		Manual:          b.IsManualOffline(),
		RefreshInterval: interval,
		spinner:         sp,
		help:            help.New(),
		now:             time.Now,
	}
}

// Init implements tea.Model
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.fetch(), m.scheduleTick(), m.spinner.Tick)
}

// Update implements tea.Model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case TickMsg:
		return m, tea.Batch(m.fetch(), m.scheduleTick())

	case snapshotMsg:
		m.Status = msg.status
		m.Manual = msg.manual
		m.Draining = msg.draining
		m.Stats = msg.stats
		m.Pending = msg.pending
		m.Err = msg.err
		m.Refreshed = msg.at
		return m, nil

	case StatusMsg:
		m.Status = msg.Status
		return m, m.fetch()

	case SyncStartMsg:
		m.Draining = true
		return m, nil

	case SyncDoneMsg:
		m.Draining = false
		m.Synced = true
		m.LastOK = msg.Success
		m.LastSync = m.now()
		return m, m.fetch()

	case flashMsg:
		m.Flash = msg.text
		if msg.err != nil {
			m.Flash = msg.err.Error()
		}
		return m, tea.Batch(m.fetch(), tea.Tick(3*time.Second, func(time.Time) tea.Msg { return clearFlashMsg{} }))

	case clearFlashMsg:
		m.Flash = ""
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, keys.Offline):
		return m, m.toggleOffline()
	case key.Matches(msg, keys.Sync):
		return m, m.syncNow()
	case key.Matches(msg, keys.Probe):
		return m, m.probe()
	}
	return m, nil
}

// View implements tea.Model
func (m Model) View() string {
	return m.renderView()
}

func (m Model) scheduleTick() tea.Cmd {
	return tea.Tick(m.RefreshInterval, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

func (m Model) fetch() tea.Cmd {
	b, timeout, now := m.backend, m.timeout, m.now
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		snap := snapshotMsg{
			status:   b.Status(),
			manual:   b.IsManualOffline(),
			draining: b.IsDraining(),
			at:       now(),
		}
		snap.stats, snap.err = b.QueueStats(ctx)
		if snap.err == nil {
			snap.pending, snap.err = b.Pending(ctx)
		}
		return snap
	}
}

func (m Model) toggleOffline() tea.Cmd {
	b, timeout := m.backend, m.timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		manual, err := b.ToggleManualOffline(ctx)
		if err != nil {
			return flashMsg{err: err}
		}
		if manual {
			return flashMsg{text: "working offline"}
		}
		return flashMsg{text: "back to automatic connectivity"}
	}
}

func (m Model) syncNow() tea.Cmd {
	b, timeout := m.backend, m.timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if !b.ForceSyncNow(ctx) {
			return flashMsg{text: "cannot sync while not online"}
		}
		return flashMsg{text: "sync finished"}
	}
}

func (m Model) probe() tea.Cmd {
	b, timeout := m.backend, m.timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if b.CheckNow(ctx) {
			return flashMsg{text: "backend reachable"}
		}
		return flashMsg{text: "backend unreachable"}
	}
}

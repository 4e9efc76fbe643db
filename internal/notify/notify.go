// Package notify delivers connectivity and sync lifecycle events to
// registered listeners.
package notify

import (
	"sync"

	"github.com/ferreteria/ordersync/internal/models"
)

// Listener observes connectivity status changes.
type Listener interface {
	OnStatusChange(status models.ConnectionStatus)
}

// SyncStartListener is implemented by listeners that want drain start events.
type SyncStartListener interface {
	OnSyncStart()
}

// SyncCompleteListener is implemented by listeners that want drain results.
type SyncCompleteListener interface {
	OnSyncComplete(success bool)
}

// Funcs adapts plain functions to a listener. Nil fields are skipped.
type Funcs struct {
	Status   func(models.ConnectionStatus)
	Start    func()
	Complete func(success bool)
}

func (f *Funcs) OnStatusChange(s models.ConnectionStatus) {
	if f.Status != nil {
		f.Status(s)
	}
}

func (f *Funcs) OnSyncStart() {
	if f.Start != nil {
		f.Start()
	}
}

func (f *Funcs) OnSyncComplete(success bool) {
	if f.Complete != nil {
		f.Complete(success)
	}
}

// Registry holds listeners and delivers events synchronously, in
// registration order, to the listeners registered when the event fires.
// Listeners may add or remove listeners (including themselves) while
// handling an event.
type Registry struct {
	mu        sync.Mutex
	listeners []Listener
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Add registers l. Adding the same listener twice has no effect.
func (r *Registry) Add(l Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.listeners {
		if existing == l {
			return
		}
	}
	r.listeners = append(r.listeners, l)
}

// Remove unregisters l.
func (r *Registry) Remove(l Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.listeners {
		if existing == l {
			r.listeners = append(r.listeners[:i:i], r.listeners[i+1:]...)
			return
		}
	}
}

// Len returns the number of registered listeners.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.listeners)
}

// Clear removes every listener.
func (r *Registry) Clear() {
	r.mu.Lock()
	r.listeners = nil
	r.mu.Unlock()
}

func (r *Registry) snapshot() []Listener {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Listener(nil), r.listeners...)
}

// StatusChanged notifies every listener of a new status.
func (r *Registry) StatusChanged(status models.ConnectionStatus) {
	for _, l := range r.snapshot() {
		l.OnStatusChange(status)
	}
}

// SyncStarted notifies listeners implementing SyncStartListener.
func (r *Registry) SyncStarted() {
	for _, l := range r.snapshot() {
		if sl, ok := l.(SyncStartListener); ok {
			sl.OnSyncStart()
		}
	}
}

// SyncCompleted notifies listeners implementing SyncCompleteListener.
func (r *Registry) SyncCompleted(success bool) {
	for _, l := range r.snapshot() {
		if cl, ok := l.(SyncCompleteListener); ok {
			cl.OnSyncComplete(success)
		}
	}
}

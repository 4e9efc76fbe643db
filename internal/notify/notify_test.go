package notify

import (
	"reflect"
	"testing"

	"github.com/ferreteria/ordersync/internal/models"
)

type statusOnly struct {
	got []models.ConnectionStatus
}

func (s *statusOnly) OnStatusChange(st models.ConnectionStatus) { s.got = append(s.got, st) }

func TestDeliveryOrder(t *testing.T) {
	r := NewRegistry()
	var order []string
	r.Add(&Funcs{Status: func(models.ConnectionStatus) { order = append(order, "a") }})
	r.Add(&Funcs{Status: func(models.ConnectionStatus) { order = append(order, "b") }})
	r.Add(&Funcs{Status: func(models.ConnectionStatus) { order = append(order, "c") }})

	r.StatusChanged(models.StatusOnline)

	if want := []string{"a", "b", "c"}; !reflect.DeepEqual(order, want) {
		t.Errorf("delivery order: got %v, want %v", order, want)
	}
}

func TestOptionalSyncEvents(t *testing.T) {
	r := NewRegistry()
	plain := &statusOnly{}
	var started int
	var results []bool
	full := &Funcs{Start: func() { started++ }, Complete: func(ok bool) { results = append(results, ok) }}
	r.Add(plain)
	r.Add(full)

	r.SyncStarted()
	r.SyncCompleted(true)
	r.SyncCompleted(false)

	if started != 1 {
		t.Errorf("sync start: got %d, want 1", started)
	}
	if want := []bool{true, false}; !reflect.DeepEqual(results, want) {
		t.Errorf("sync complete: got %v, want %v", results, want)
	}
	if len(plain.got) != 0 {
		t.Errorf("status-only listener received %v", plain.got)
	}
}

func TestRemoveDuringDelivery(t *testing.T) {
	r := NewRegistry()
	var calls int
	var self *Funcs
	self = &Funcs{Status: func(models.ConnectionStatus) {
		calls++
		r.Remove(self)
	}}
	after := &statusOnly{}
	r.Add(self)
	r.Add(after)

	r.StatusChanged(models.StatusOffline)
	r.StatusChanged(models.StatusOnline)

	if calls != 1 {
		t.Errorf("self-removing listener: got %d calls, want 1", calls)
	}
	if len(after.got) != 2 {
		t.Errorf("later listener: got %v, want two events", after.got)
	}
}

func TestAddIsIdempotent(t *testing.T) {
	r := NewRegistry()
	l := &statusOnly{}
	r.Add(l)
	r.Add(l)
	if r.Len() != 1 {
		t.Errorf("Len: got %d, want 1", r.Len())
	}
	r.Remove(l)
	r.Remove(l)
	if r.Len() != 0 {
		t.Errorf("Len after remove: got %d, want 0", r.Len())
	}
}

// Package sync replays mutations queued while offline against the remote API
// once connectivity is confirmed, in an order that creates referenced records
// before the records that point at them.
package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	gosync "sync"
	"sync/atomic"
	"time"

	"github.com/ferreteria/ordersync/internal/metrics"
	"github.com/ferreteria/ordersync/internal/models"
	"github.com/ferreteria/ordersync/internal/notify"
	"github.com/ferreteria/ordersync/internal/remote"
	"github.com/ferreteria/ordersync/internal/store"
)

// DefaultMaxAttempts is the number of failed replays after which an item is
// dead-lettered.
const DefaultMaxAttempts = 10

const remapKeyPrefix = "remap:"

// Remote is the subset of the API client used for replay.
type Remote interface {
	Post(ctx context.Context, path string, body, out any) error
	Patch(ctx context.Context, path string, body, out any) error
	Delete(ctx context.Context, path string, out any) error
}

// StatusSource reports the current connection status.
type StatusSource interface {
	Status() models.ConnectionStatus
}

// Options configure a Controller.
type Options struct {
	// MaxAttempts caps failed replays per item; 0 means unlimited.
	MaxAttempts int
	Registry    *notify.Registry
	Metrics     *metrics.Collector
}

// Controller owns the sync queue. It is safe for concurrent use; at most one
// drain runs at a time.
type Controller struct {
	store       *store.Store
	remote      Remote
	status      StatusSource
	registry    *notify.Registry
	metrics     *metrics.Collector
	maxAttempts int

	draining atomic.Bool

	mu    gosync.Mutex
	remap map[string]string
}

// New builds a Controller. Pass the monitor's registry in opts so that both
// status and sync events reach the same listeners.
func New(st *store.Store, rc Remote, status StatusSource, opts Options) *Controller {
	reg := opts.Registry
	if reg == nil {
		reg = notify.NewRegistry()
	}
	return &Controller{
		store:       st,
		remote:      rc,
		status:      status,
		registry:    reg,
		metrics:     opts.Metrics,
		maxAttempts: opts.MaxAttempts,
		remap:       make(map[string]string),
	}
}

// MaxAttempts returns the failure count at which items are dead-lettered.
func (c *Controller) MaxAttempts() int { return c.maxAttempts }

// AddListener subscribes l to sync start and completion events.
func (c *Controller) AddListener(l notify.Listener) { c.registry.Add(l) }

// RemoveListener unsubscribes l.
func (c *Controller) RemoveListener(l notify.Listener) { c.registry.Remove(l) }

// Enqueue validates and persists m.
func (c *Controller) Enqueue(ctx context.Context, m Mutation) (store.QueueItem, error) {
	if err := m.Validate(); err != nil {
		return store.QueueItem{}, err
	}
	payload, err := json.Marshal(m.Payload)
	if err != nil {
		return store.QueueItem{}, fmt.Errorf("encode %s %s payload: %w", m.Entity, m.Operation, err)
	}
	item, err := c.store.Enqueue(ctx, store.QueueItem{
		Operation: m.Operation,
		Entity:    m.Entity,
		Payload:   payload,
	})
	if err != nil {
		return item, err
	}
	slog.Debug("sync: queued", "id", item.ID, "entity", m.Entity, "op", m.Operation)
	c.recordDepth(ctx)
	return item, nil
}

// CancelPending drops unsynced items of entity that create, update or delete
// the provisional record tempID, so a record removed before it ever reached
// the server is never sent. It returns how many items were dropped.
func (c *Controller) CancelPending(ctx context.Context, entity models.EntityKind, tempID string) (int, error) {
	items, err := c.store.QueueItems(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, item := range items {
		if item.Synced || item.Entity != entity {
			continue
		}
		m, err := DecodeMutation(item)
		if err != nil || m.TargetID() != tempID {
			continue
		}
		if err := c.store.DeleteQueueItem(ctx, item.ID); err != nil {
			return n, err
		}
		n++
	}
	if n > 0 {
		slog.Debug("sync: cancelled pending items", "entity", entity, "tempId", tempID, "count", n)
		c.recordDepth(ctx)
	}
	return n, nil
}

// Pending returns items still waiting to be replayed.
func (c *Controller) Pending(ctx context.Context) ([]store.QueueItem, error) {
	return c.store.PendingItems(ctx)
}

// DeadLetters returns items that exhausted their attempts.
func (c *Controller) DeadLetters(ctx context.Context) ([]store.QueueItem, error) {
	return c.store.DeadLetters(ctx)
}

// RetryDeadLetters returns dead items to the queue with a fresh attempt count.
func (c *Controller) RetryDeadLetters(ctx context.Context) (int64, error) {
	n, err := c.store.RetryDeadLetters(ctx)
	if err == nil {
		c.recordDepth(ctx)
	}
	return n, err
}

// PurgeDeadLetters deletes dead items.
func (c *Controller) PurgeDeadLetters(ctx context.Context) (int64, error) {
	return c.store.PurgeDeadLetters(ctx)
}

// ForceSyncNow drains immediately. It returns false without doing anything
// when the client is not online.
func (c *Controller) ForceSyncNow(ctx context.Context) bool {
	if c.status.Status() != models.StatusOnline {
		slog.Warn("sync: cannot sync while not online", "status", c.status.Status())
		return false
	}
	c.Drain(ctx)
	return true
}

// IsDraining reports whether a drain is in progress.
func (c *Controller) IsDraining() bool { return c.draining.Load() }

// Drain replays every pending item and reports whether all of them
// succeeded. It does nothing and returns false when not online or when
// another drain is already running.
func (c *Controller) Drain(ctx context.Context) bool {
	if c.status.Status() != models.StatusOnline {
		return false
	}
	if !c.draining.CompareAndSwap(false, true) {
		slog.Debug("sync: drain already running")
		return false
	}
	defer c.draining.Store(false)

	start := time.Now()
	c.registry.SyncStarted()
	ok := c.drain(ctx)
	c.metrics.RecordDrain(ok, time.Since(start))
	c.registry.SyncCompleted(ok)
	return ok
}

func (c *Controller) drain(ctx context.Context) bool {
	items, err := c.store.PendingItems(ctx)
	if err != nil {
		slog.Error("sync: load pending", "err", err)
		return false
	}
	if len(items) == 0 {
		return true
	}
	sortByPriority(items)

	var synced, failed int
	for _, item := range items {
		if ctx.Err() != nil {
			slog.Warn("sync: drain interrupted", "remaining", len(items)-synced-failed)
			failed++
			break
		}
		if err := c.replay(ctx, item); err != nil {
			failed++
			c.recordFailure(ctx, item, err)
			continue
		}
		if err := c.store.MarkSynced(ctx, item.ID); err != nil {
			failed++
			slog.Error("sync: mark synced", "id", item.ID, "err", err)
			continue
		}
		synced++
		c.metrics.RecordItem(item.Entity, item.Operation, metrics.ResultOK)
	}

	if _, err := c.store.SweepSynced(ctx); err != nil {
		slog.Error("sync: sweep synced", "err", err)
	}
	c.pruneRemap(ctx)
	c.recordDepth(ctx)
	slog.Info("sync: drain finished", "synced", synced, "failed", failed)
	return failed == 0
}

// priority groups providers and branches first, then users, then orders.
func priority(k models.EntityKind) int {
	switch k {
	case models.EntityProvider, models.EntityBranch:
		return 1
	case models.EntityUser:
		return 2
	case models.EntityOrder:
		return 3
	}
	return 99
}

// sortByPriority orders items by tier, keeping enqueue order within a tier.
func sortByPriority(items []store.QueueItem) {
	sort.SliceStable(items, func(i, j int) bool {
		return priority(items[i].Entity) < priority(items[j].Entity)
	})
}

func (c *Controller) replay(ctx context.Context, item store.QueueItem) error {
	m, err := DecodeMutation(item)
	if err != nil {
		return err
	}
	if err := m.Payload.resolve(func(tempID string) (string, bool) { return c.lookup(ctx, tempID) }); err != nil {
		return err
	}

	req := m.Payload.request()
	var resp json.RawMessage
	switch req.method {
	case http.MethodPost:
		err = c.remote.Post(ctx, req.path, req.body, &resp)
	case http.MethodPatch:
		err = c.remote.Patch(ctx, req.path, req.body, &resp)
	case http.MethodDelete:
		err = c.remote.Delete(ctx, req.path, nil)
	}
	if err != nil {
		return err
	}

	switch m.Operation {
	case models.OpCreate:
		c.confirmCreate(ctx, m, resp)
	case models.OpUpdate:
		c.confirmUpdate(ctx, m, resp)
	case models.OpDelete:
		c.confirmDelete(ctx, m)
	}
	return nil
}

// confirmCreate records the server id for the mutation's temporary id and
// re-keys the provisional local record. Local failures are logged only: the
// server already holds the record.
func (c *Controller) confirmCreate(ctx context.Context, m Mutation, resp json.RawMessage) {
	tempID := m.TempID()
	if tempID == "" {
		return
	}
	var ids struct {
		ServerID string `json:"_id"`
		ID       string `json:"id"`
	}
	if len(resp) > 0 {
		if err := json.Unmarshal(resp, &ids); err != nil {
			slog.Warn("sync: decode create response", "entity", m.Entity, "tempId", tempID, "err", err)
		}
	}
	serverID := ids.ServerID
	if serverID == "" {
		serverID = ids.ID
	}
	if serverID == "" {
		slog.Warn("sync: create response carried no id", "entity", m.Entity, "tempId", tempID)
		return
	}
	c.remember(ctx, tempID, serverID)

	if err := c.rekey(ctx, m, tempID, serverID, resp); err != nil {
		slog.Warn("sync: re-key local record", "entity", m.Entity, "tempId", tempID, "id", serverID, "err", err)
		c.metrics.RecordItem(m.Entity, m.Operation, metrics.ResultLocal)
	}
}

func (c *Controller) rekey(ctx context.Context, m Mutation, tempID, serverID string, resp json.RawMessage) error {
	switch p := m.Payload.(type) {
	case *OrderCreate:
		var o models.Order
		if err := json.Unmarshal(resp, &o); err != nil {
			return err
		}
		o.ID = serverID
		return c.store.ReplaceOrder(ctx, tempID, o)
	case *ProviderCreate:
		var pr models.Provider
		if err := json.Unmarshal(resp, &pr); err != nil {
			return err
		}
		pr.ID = serverID
		if pr.Name == "" {
			pr.Name = p.Name
		}
		if !pr.Branch.IsSet() {
			pr.Branch = p.Branch
		}
		return c.store.ReplaceProvider(ctx, tempID, pr)
	case *BranchCreate:
		var b models.Branch
		if err := json.Unmarshal(resp, &b); err != nil {
			return err
		}
		b.ID = serverID
		if b.Name == "" {
			b.Name = p.Name
		}
		return c.store.ReplaceBranch(ctx, tempID, b)
	case *UserCreate:
		var u models.User
		if err := json.Unmarshal(resp, &u); err != nil {
			return err
		}
		u.ID = serverID
		u.Password = ""
		if u.Email == "" {
			u.Email, u.Name, u.Role, u.Branch = p.Email, p.Name, p.Role, p.Branch
		}
		return c.store.ReplaceUser(ctx, tempID, u)
	}
	return nil
}

// confirmUpdate folds the server's answer to a replayed UPDATE into the local
// record. An empty answer leaves the optimistic local copy as it is.
func (c *Controller) confirmUpdate(ctx context.Context, m Mutation, resp json.RawMessage) {
	if len(resp) == 0 {
		return
	}
	id := m.TargetID()
	var err error
	switch m.Entity {
	case models.EntityProvider:
		err = overlay(ctx, c.store, store.CollProviders, id, resp, func(p *models.Provider) {
			if n := p.Branch.Name(); n != "" {
				p.BranchName = n
			}
		})
	case models.EntityBranch:
		err = overlay[models.Branch](ctx, c.store, store.CollBranches, id, resp, nil)
	case models.EntityUser:
		err = overlay(ctx, c.store, store.CollUsers, id, resp, func(u *models.User) { u.Password = "" })
	case models.EntityOrder:
		err = overlay[models.Order](ctx, c.store, store.CollOrders, id, resp, nil)
	}
	if err != nil {
		slog.Warn("sync: save updated record", "entity", m.Entity, "id", id, "err", err)
		c.metrics.RecordItem(m.Entity, m.Operation, metrics.ResultLocal)
	}
}

// overlay decodes resp on top of the stored record id and saves the result.
// Fields missing from resp keep their local values; an absent record is left
// absent.
func overlay[T any](ctx context.Context, st *store.Store, collection, id string, resp json.RawMessage, fix func(*T)) error {
	rec, ok, err := st.Get(ctx, collection, id)
	if err != nil || !ok {
		return err
	}
	var v T
	if err := rec.Decode(&v); err != nil {
		return err
	}
	if err := json.Unmarshal(resp, &v); err != nil {
		return err
	}
	if fix != nil {
		fix(&v)
	}
	doc, err := store.NewRecord(id, v)
	if err != nil {
		return err
	}
	return st.Put(ctx, collection, doc)
}

// confirmDelete removes the record a replayed DELETE targeted, which a
// refresh may have stored again under its server id.
func (c *Controller) confirmDelete(ctx context.Context, m Mutation) {
	id := m.TargetID()
	if err := c.store.Delete(ctx, m.Entity.Collection(), id); err != nil {
		slog.Warn("sync: delete local record", "entity", m.Entity, "id", id, "err", err)
		c.metrics.RecordItem(m.Entity, m.Operation, metrics.ResultLocal)
	}
}

// lookup resolves a temporary id. The in-memory table is consulted first, then
// the copy persisted by an earlier process.
func (c *Controller) lookup(ctx context.Context, tempID string) (string, bool) {
	c.mu.Lock()
	id, ok := c.remap[tempID]
	c.mu.Unlock()
	if ok {
		return id, true
	}
	id, ok, err := c.store.GetMeta(ctx, remapKeyPrefix+tempID)
	if err != nil || !ok || id == "" {
		return "", false
	}
	c.mu.Lock()
	c.remap[tempID] = id
	c.mu.Unlock()
	return id, true
}

func (c *Controller) remember(ctx context.Context, tempID, serverID string) {
	c.mu.Lock()
	c.remap[tempID] = serverID
	c.mu.Unlock()
	if err := c.store.SetMeta(ctx, remapKeyPrefix+tempID, serverID); err != nil {
		slog.Warn("sync: persist id mapping", "tempId", tempID, "err", err)
	}
}

// Resolve returns the server id recorded for tempID.
func (c *Controller) Resolve(ctx context.Context, tempID string) (string, bool) {
	return c.lookup(ctx, tempID)
}

// ResetRemap forgets every recorded id mapping, in memory and persisted.
func (c *Controller) ResetRemap(ctx context.Context) error {
	c.mu.Lock()
	c.remap = make(map[string]string)
	c.mu.Unlock()
	if _, err := c.store.DeleteMetaPrefix(ctx, remapKeyPrefix); err != nil {
		return fmt.Errorf("reset id mappings: %w", err)
	}
	return nil
}

// pruneRemap drops mappings no item left in the queue refers to. Temporary
// ids are unique, so a payload refers to one exactly when it contains it as
// a JSON string.
func (c *Controller) pruneRemap(ctx context.Context) {
	mappings, err := c.store.MetaWithPrefix(ctx, remapKeyPrefix)
	if err != nil || len(mappings) == 0 {
		return
	}
	items, err := c.store.QueueItems(ctx)
	if err != nil {
		return
	}
	var stale []string
	for tempID := range mappings {
		quoted := []byte(`"` + tempID + `"`)
		referenced := false
		for _, item := range items {
			if bytes.Contains(item.Payload, quoted) {
				referenced = true
				break
			}
		}
		if !referenced {
			stale = append(stale, tempID)
		}
	}
	if len(stale) == 0 {
		return
	}
	keys := make([]string, len(stale))
	for i, id := range stale {
		keys[i] = remapKeyPrefix + id
	}
	if err := c.store.DeleteMeta(ctx, keys...); err != nil {
		slog.Warn("sync: prune id mappings", "err", err)
		return
	}
	c.mu.Lock()
	for _, id := range stale {
		delete(c.remap, id)
	}
	c.mu.Unlock()
	slog.Debug("sync: pruned id mappings", "count", len(stale))
}

func (c *Controller) recordFailure(ctx context.Context, item store.QueueItem, err error) {
	result := classify(err)
	c.metrics.RecordItem(item.Entity, item.Operation, result)

	dead, recErr := c.store.RecordFailure(ctx, item.ID, err.Error(), c.maxAttempts)
	if recErr != nil {
		slog.Error("sync: record failure", "id", item.ID, "err", recErr)
	}
	attrs := []any{"id", item.ID, "entity", item.Entity, "op", item.Operation, "result", result, "err", err}
	if status := remote.StatusOf(err); status >= 0 {
		attrs = append(attrs, "status", status)
	}
	if dead {
		c.metrics.RecordDeadLetter()
		slog.Warn("sync: item dead-lettered", attrs...)
		return
	}
	slog.Warn("sync: item failed", attrs...)
}

func classify(err error) string {
	switch {
	case errors.Is(err, ErrUnresolvedReference):
		return metrics.ResultUnresolved
	case remote.IsUnreachable(err):
		return metrics.ResultUnreachable
	case remote.IsRejected(err):
		return metrics.ResultRejected
	}
	return metrics.ResultLocal
}

func (c *Controller) recordDepth(ctx context.Context) {
	if c.metrics == nil {
		return
	}
	stats, err := c.store.QueueStats(ctx)
	if err != nil {
		return
	}
	c.metrics.RecordQueueDepth(stats.Pending)
}

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ferreteria/ordersync/internal/models"
	"github.com/google/uuid"
)

// QueueItem is one durable pending mutation.
type QueueItem struct {
	Seq        int64
	ID         string
	Operation  models.Operation
	Entity     models.EntityKind
	Payload    json.RawMessage
	QueuedAt   time.Time
	Synced     bool
	Attempts   int
	LastError  string
	DeadLetter bool
}

// QueueStats summarizes the queue.
type QueueStats struct {
	Pending int `json:"pending"`
	Dead    int `json:"dead"`
	Synced  int `json:"synced"`
}

// NewQueueID builds "<entity>-<op>-<unix ms>-<salt>". The salt keeps ids
// unique for mutations queued in the same millisecond.
func NewQueueID(entity models.EntityKind, op models.Operation, now time.Time) string {
	return fmt.Sprintf("%s-%s-%d-%s", entity, op, now.UnixMilli(), uuid.NewString()[:8])
}

const queueColumns = "seq, id, operation, entity, payload, queued_at, synced, attempts, last_error, dead"

// Enqueue appends item to the queue, assigning ID and QueuedAt when unset.
func (s *Store) Enqueue(ctx context.Context, item QueueItem) (QueueItem, error) {
	conn, err := s.db()
	if err != nil {
		return item, err
	}
	if !item.Entity.IsValid() {
		return item, fmt.Errorf("enqueue: invalid entity %q", item.Entity)
	}
	if !item.Operation.IsValid() {
		return item, fmt.Errorf("enqueue: invalid operation %q", item.Operation)
	}
	if item.QueuedAt.IsZero() {
		item.QueuedAt = time.Now()
	}
	if item.ID == "" {
		item.ID = NewQueueID(item.Entity, item.Operation, item.QueuedAt)
	}
	if len(item.Payload) == 0 {
		item.Payload = json.RawMessage("{}")
	}

	err = s.withWriteLock(func() error {
		res, err := conn.ExecContext(ctx,
			`INSERT INTO sync_queue (id, operation, entity, payload, queued_at, synced, attempts, last_error, dead)
			 VALUES (?, ?, ?, ?, ?, 0, 0, '', 0)`,
			item.ID, string(item.Operation), string(item.Entity), string(item.Payload), item.QueuedAt.UnixMilli())
		if err != nil {
			return fmt.Errorf("enqueue %s: %w", item.ID, err)
		}
		item.Seq, _ = res.LastInsertId()
		return nil
	})
	return item, err
}

// PendingItems returns unsynced items that are not dead-lettered, in enqueue order.
func (s *Store) PendingItems(ctx context.Context) ([]QueueItem, error) {
	return s.queryQueue(ctx, "WHERE synced = 0 AND dead = 0")
}

// DeadLetters returns items that exhausted their attempts.
func (s *Store) DeadLetters(ctx context.Context) ([]QueueItem, error) {
	return s.queryQueue(ctx, "WHERE synced = 0 AND dead = 1")
}

// QueueItems returns every item still in the queue, synced or not.
func (s *Store) QueueItems(ctx context.Context) ([]QueueItem, error) {
	return s.queryQueue(ctx, "")
}

func (s *Store) queryQueue(ctx context.Context, where string, args ...any) ([]QueueItem, error) {
	conn, err := s.db()
	if err != nil {
		return nil, err
	}
	rows, err := conn.QueryContext(ctx, "SELECT "+queueColumns+" FROM sync_queue "+where+" ORDER BY seq", args...)
	if err != nil {
		return nil, fmt.Errorf("query sync_queue: %w", err)
	}
	defer rows.Close()

	var items []QueueItem
	for rows.Next() {
		var (
			it               QueueItem
			op, entity, body string
			queuedAt         int64
			synced, dead     int
		)
		if err := rows.Scan(&it.Seq, &it.ID, &op, &entity, &body, &queuedAt, &synced, &it.Attempts, &it.LastError, &dead); err != nil {
			return nil, err
		}
		it.Operation = models.Operation(op)
		it.Entity = models.EntityKind(entity)
		it.Payload = json.RawMessage(body)
		it.QueuedAt = time.UnixMilli(queuedAt)
		it.Synced = synced == 1
		it.DeadLetter = dead == 1
		items = append(items, it)
	}
	return items, rows.Err()
}

// MarkSynced flags an item as replayed. It stays in the queue until SweepSynced.
func (s *Store) MarkSynced(ctx context.Context, id string) error {
	return s.execQueue(ctx, "UPDATE sync_queue SET synced = 1 WHERE id = ?", id)
}

// DeleteQueueItem removes an unsynced item without replaying it.
func (s *Store) DeleteQueueItem(ctx context.Context, id string) error {
	return s.execQueue(ctx, "DELETE FROM sync_queue WHERE id = ? AND synced = 0", id)
}

// SweepSynced deletes every synced item and returns how many were removed.
func (s *Store) SweepSynced(ctx context.Context) (int64, error) {
	return s.execQueueCount(ctx, "DELETE FROM sync_queue WHERE synced = 1")
}

// RecordFailure counts a failed replay of id. Once attempts reach
// maxAttempts (when positive) the item is dead-lettered; the return value
// reports whether that happened.
func (s *Store) RecordFailure(ctx context.Context, id, reason string, maxAttempts int) (bool, error) {
	conn, err := s.db()
	if err != nil {
		return false, err
	}
	var dead int
	err = s.withWriteLock(func() error {
		_, err := conn.ExecContext(ctx,
			`UPDATE sync_queue
			 SET attempts = attempts + 1,
			     last_error = ?,
			     dead = CASE WHEN ? > 0 AND attempts + 1 >= ? THEN 1 ELSE dead END
			 WHERE id = ?`,
			reason, maxAttempts, maxAttempts, id)
		if err != nil {
			return fmt.Errorf("record failure %s: %w", id, err)
		}
		return conn.QueryRowContext(ctx, "SELECT dead FROM sync_queue WHERE id = ?", id).Scan(&dead)
	})
	return dead == 1, err
}

// RetryDeadLetters returns dead-lettered items to the pending set with a
// fresh attempt budget.
func (s *Store) RetryDeadLetters(ctx context.Context) (int64, error) {
	return s.execQueueCount(ctx, "UPDATE sync_queue SET dead = 0, attempts = 0 WHERE dead = 1 AND synced = 0")
}

// PurgeDeadLetters deletes dead-lettered items.
func (s *Store) PurgeDeadLetters(ctx context.Context) (int64, error) {
	return s.execQueueCount(ctx, "DELETE FROM sync_queue WHERE dead = 1")
}

// QueueStats counts items by state.
func (s *Store) QueueStats(ctx context.Context) (QueueStats, error) {
	var st QueueStats
	conn, err := s.db()
	if err != nil {
		return st, err
	}
	err = conn.QueryRowContext(ctx, `SELECT
		COALESCE(SUM(CASE WHEN synced = 0 AND dead = 0 THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN synced = 0 AND dead = 1 THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN synced = 1 THEN 1 ELSE 0 END), 0)
		FROM sync_queue`).Scan(&st.Pending, &st.Dead, &st.Synced)
	if err != nil {
		return st, fmt.Errorf("queue stats: %w", err)
	}
	return st, nil
}

func (s *Store) execQueue(ctx context.Context, stmt string, args ...any) error {
	_, err := s.execQueueCount(ctx, stmt, args...)
	return err
}

func (s *Store) execQueueCount(ctx context.Context, stmt string, args ...any) (int64, error) {
	conn, err := s.db()
	if err != nil {
		return 0, err
	}
	var n int64
	err = s.withWriteLock(func() error {
		res, err := conn.ExecContext(ctx, stmt, args...)
		if err != nil {
			return fmt.Errorf("sync_queue: %w", err)
		}
		n, _ = res.RowsAffected()
		return nil
	})
	return n, err
}

// ErrQueueItemNotFound is returned when a queue item id does not exist.
var ErrQueueItemNotFound = errors.New("queue item not found")

// GetQueueItem returns a single queue item by id.
func (s *Store) GetQueueItem(ctx context.Context, id string) (QueueItem, error) {
	items, err := s.queryQueue(ctx, "WHERE id = ?", id)
	if err != nil {
		return QueueItem{}, err
	}
	if len(items) == 0 {
		return QueueItem{}, fmt.Errorf("%w: %s", ErrQueueItemNotFound, id)
	}
	return items[0], nil
}

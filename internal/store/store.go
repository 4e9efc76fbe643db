// Package store is the client-local durable store: one sqlite table per
// entity collection, the sync queue, and a small key/value table for
// persisted monitor flags.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/singleflight"
	_ "modernc.org/sqlite"
)

const dbFile = "ordersync.db"

var (
	// ErrNotInitialized is returned by operations issued before Init succeeded.
	ErrNotInitialized = errors.New("store not initialized")
	// ErrUnknownCollection is returned for collection names outside the schema.
	ErrUnknownCollection = errors.New("unknown collection")
)

// Store is the Local Store. It is safe for concurrent use.
type Store struct {
	dir    string
	opener func(ctx context.Context) (*sql.DB, error)

	init singleflight.Group
	mu   sync.RWMutex
	conn *sql.DB

	// writeMu serializes writers inside the process; the file lock
	// serializes writers across processes.
	writeMu  sync.Mutex
	lockPath string
}

// New returns a Store backed by <dir>/ordersync.db. Nothing is opened until Init.
func New(dir string) *Store {
	s := &Store{dir: dir, lockPath: filepath.Join(dir, lockFileName)}
	s.opener = s.openFile
	return s
}

// NewWithDB wraps an already-open connection. Init still runs migrations.
// There is no cross-process lock in this mode.
func NewWithDB(conn *sql.DB) *Store {
	conn.SetMaxOpenConns(1)
	return &Store{opener: func(context.Context) (*sql.DB, error) { return conn, nil }}
}

// Open is New followed by Init.
func Open(ctx context.Context, dir string) (*Store, error) {
	s := New(dir)
	if err := s.Init(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Init opens the database and runs migrations. Concurrent callers share a
// single in-flight open; once it succeeds later calls return immediately.
// A failed open is retried by the next call.
func (s *Store) Init(ctx context.Context) error {
	if s.ready() {
		return nil
	}
	// Cancelling ctx only stops this caller waiting; the shared open continues.
	openCtx := context.WithoutCancel(ctx)
	ch := s.init.DoChan("init", func() (any, error) {
		if s.ready() {
			return nil, nil
		}
		conn, err := s.opener(openCtx)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.conn = conn
		s.mu.Unlock()
		if _, err := s.RunMigrations(openCtx); err != nil {
			s.mu.Lock()
			s.conn = nil
			s.mu.Unlock()
			conn.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		return nil, nil
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Store) ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn != nil
}

func (s *Store) openFile(ctx context.Context) (*sql.DB, error) {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	conn, err := sql.Open("sqlite", filepath.Join(s.dir, dbFile))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	conn.SetMaxOpenConns(1)

	// WAL lets readers proceed while a write transaction is open
	if _, err := conn.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := conn.ExecContext(ctx, "PRAGMA busy_timeout=500"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := conn.ExecContext(ctx, "PRAGMA synchronous=NORMAL"); err != nil {
		slog.Warn("store: set synchronous mode", "err", err)
	}

	return conn, nil
}

// Conn returns the underlying connection, or nil before Init.
func (s *Store) Conn() *sql.DB {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn
}

func (s *Store) db() (*sql.DB, error) {
	conn := s.Conn()
	if conn == nil {
		return nil, ErrNotInitialized
	}
	return conn, nil
}

// Dir returns the data directory, empty for stores built with NewWithDB.
func (s *Store) Dir() string {
	return s.dir
}

// Close closes the database. The store can be re-initialized afterwards.
func (s *Store) Close() error {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}

// withWriteLock executes fn while holding the process and file write locks.
func (s *Store) withWriteLock(fn func() error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.lockPath == "" {
		return fn()
	}
	locker := newWriteLocker(s.lockPath)
	if err := locker.acquire(defaultTimeout); err != nil {
		return err
	}
	defer locker.release()
	return fn()
}

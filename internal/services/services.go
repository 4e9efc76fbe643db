// Package services implements the entity operations the CLI exposes. Every
// call decides online or offline first: online calls go to the backend and
// mirror the answer into the local store, offline calls write locally and
// queue the mutation for replay.
package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/ferreteria/ordersync/internal/models"
	"github.com/ferreteria/ordersync/internal/remote"
	"github.com/ferreteria/ordersync/internal/store"
	ordersync "github.com/ferreteria/ordersync/internal/sync"
)

var (
	// ErrNoBranch is returned for branch-scoped writes by a user without a branch.
	ErrNoBranch = errors.New("user has no branch assigned")
	// ErrNoSession is returned when an operation needs a signed-in user.
	ErrNoSession = errors.New("not logged in")
	// ErrOrderImmutable is returned by OrderService.Update: orders can only be
	// created or deleted.
	ErrOrderImmutable = errors.New("orders cannot be modified")
	// ErrNotFound is returned when a record exists neither remotely nor locally.
	ErrNotFound = errors.New("not found")
	// ErrInvalid wraps input validation failures.
	ErrInvalid = errors.New("invalid input")
)

// Remote is the backend API used by the services. *remote.Client implements it.
type Remote interface {
	Get(ctx context.Context, path string, out any) error
	Post(ctx context.Context, path string, body, out any) error
	Patch(ctx context.Context, path string, body, out any) error
	Delete(ctx context.Context, path string, out any) error
}

// Queue accepts mutations performed offline. *sync.Controller implements it.
type Queue interface {
	Enqueue(ctx context.Context, m ordersync.Mutation) (store.QueueItem, error)
	Resolve(ctx context.Context, tempID string) (string, bool)
	CancelPending(ctx context.Context, entity models.EntityKind, tempID string) (int, error)
}

// StatusSource reports the current connection status.
type StatusSource interface {
	Status() models.ConnectionStatus
}

// Session is the signed-in user. Admins have no branch.
type Session struct {
	UserID     string      `json:"id"`
	Email      string      `json:"email"`
	UserName   string      `json:"name"`
	Role       models.Role `json:"role"`
	BranchID   string      `json:"branchId,omitempty"`
	BranchName string      `json:"branchName,omitempty"`
}

// SessionFromAuth builds a Session from the login response user.
func SessionFromAuth(u remote.AuthUser) Session {
	return Session{
		UserID:     u.ID,
		Email:      u.Email,
		UserName:   u.Name,
		Role:       u.Role,
		BranchID:   u.Branch.ID(),
		BranchName: u.Branch.Name(),
	}
}

func (s Session) IsZero() bool  { return s.UserID == "" }
func (s Session) IsAdmin() bool { return s.Role == models.RoleAdmin }

// User returns the session user as an embedded reference.
func (s Session) User() models.Ref { return models.Embedded(s.UserID, s.UserName) }

// Branch returns the session branch as an embedded reference, unset for admins.
func (s Session) Branch() models.Ref {
	if s.BranchID == "" {
		return models.Ref{}
	}
	return models.Embedded(s.BranchID, s.BranchName)
}

// Deps are shared by every service.
type Deps struct {
	Store   *store.Store
	Remote  Remote
	Queue   Queue
	Status  StatusSource
	Session Session
	// Now defaults to time.Now.
	Now func() time.Time
}

type base struct {
	Deps
}

func (b base) online() bool {
	return b.Status != nil && b.Status.Status() == models.StatusOnline
}

func (b base) now() time.Time {
	if b.Now != nil {
		return b.Now()
	}
	return time.Now()
}

func (b base) enqueue(ctx context.Context, p ordersync.Payload) error {
	_, err := b.Queue.Enqueue(ctx, ordersync.NewMutation(p))
	return err
}

// deleteOffline removes id locally and queues del. A provisional record the
// server has never seen only has its pending items cancelled; one already
// replayed is deleted under its server id as well.
func (b base) deleteOffline(ctx context.Context, kind models.EntityKind, id string, del ordersync.Payload) error {
	coll := kind.Collection()
	if err := b.Store.Delete(ctx, coll, id); err != nil {
		return err
	}
	if !models.IsTempID(id) {
		return b.enqueue(ctx, del)
	}
	if serverID, ok := b.Queue.Resolve(ctx, id); ok {
		if err := b.Store.Delete(ctx, coll, serverID); err != nil {
			return err
		}
		return b.enqueue(ctx, del)
	}
	_, err := b.Queue.CancelPending(ctx, kind, id)
	return err
}

// fallback logs a failed online read before the local store answers instead.
func fallback(what string, err error) {
	slog.Warn("services: online read failed, using local data", "what", what, "err", err)
}

// notFound maps a remote 404 to ErrNotFound.
func notFound(err error) error {
	if errors.Is(err, remote.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), substr)
}

package store

import (
	"context"
	"fmt"

	"github.com/ferreteria/ordersync/internal/models"
)

func getTyped[T any](ctx context.Context, s *Store, collection, id string) (*T, error) {
	rec, ok, err := s.Get(ctx, collection, id)
	if err != nil || !ok {
		return nil, err
	}
	var v T
	if err := rec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode %s/%s: %w", collection, id, err)
	}
	return &v, nil
}

func listTyped[T any](ctx context.Context, s *Store, collection string, filter *IndexFilter) ([]T, error) {
	recs, err := s.GetAll(ctx, collection, filter)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(recs))
	for _, rec := range recs {
		var v T
		if err := rec.Decode(&v); err != nil {
			return nil, fmt.Errorf("decode %s/%s: %w", collection, rec.ID, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func putTyped[T any](ctx context.Context, s *Store, collection string, items []T, id func(T) string) error {
	recs := make([]Record, 0, len(items))
	for _, it := range items {
		rec, err := NewRecord(id(it), it)
		if err != nil {
			return err
		}
		recs = append(recs, rec)
	}
	return s.PutMany(ctx, collection, recs)
}

func branchFilter(branchID string) *IndexFilter {
	if branchID == "" {
		return nil
	}
	return &IndexFilter{Field: "branch", Value: branchID}
}

// --- Providers ---

func (s *Store) GetProvider(ctx context.Context, id string) (*models.Provider, error) {
	return getTyped[models.Provider](ctx, s, CollProviders, id)
}

// ListProviders returns providers of a branch, or all when branchID is empty.
func (s *Store) ListProviders(ctx context.Context, branchID string) ([]models.Provider, error) {
	return listTyped[models.Provider](ctx, s, CollProviders, branchFilter(branchID))
}

func (s *Store) SaveProviders(ctx context.Context, providers ...models.Provider) error {
	return putTyped(ctx, s, CollProviders, providers, func(p models.Provider) string { return p.ID })
}

func (s *Store) DeleteProvider(ctx context.Context, id string) error {
	return s.Delete(ctx, CollProviders, id)
}

// --- Branches ---

func (s *Store) GetBranch(ctx context.Context, id string) (*models.Branch, error) {
	return getTyped[models.Branch](ctx, s, CollBranches, id)
}

func (s *Store) ListBranches(ctx context.Context) ([]models.Branch, error) {
	return listTyped[models.Branch](ctx, s, CollBranches, nil)
}

func (s *Store) SaveBranches(ctx context.Context, branches ...models.Branch) error {
	return putTyped(ctx, s, CollBranches, branches, func(b models.Branch) string { return b.ID })
}

func (s *Store) DeleteBranch(ctx context.Context, id string) error {
	return s.Delete(ctx, CollBranches, id)
}

// --- Users ---

func (s *Store) GetUser(ctx context.Context, id string) (*models.User, error) {
	return getTyped[models.User](ctx, s, CollUsers, id)
}

// GetUserByEmail looks a user up through the unique email index.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	users, err := listTyped[models.User](ctx, s, CollUsers, &IndexFilter{Field: "email", Value: email})
	if err != nil || len(users) == 0 {
		return nil, err
	}
	return &users[0], nil
}

func (s *Store) ListUsers(ctx context.Context, branchID string) ([]models.User, error) {
	return listTyped[models.User](ctx, s, CollUsers, branchFilter(branchID))
}

func (s *Store) SaveUsers(ctx context.Context, users ...models.User) error {
	return putTyped(ctx, s, CollUsers, users, func(u models.User) string { return u.ID })
}

func (s *Store) DeleteUser(ctx context.Context, id string) error {
	return s.Delete(ctx, CollUsers, id)
}

// --- Orders ---

// OrderFilter narrows ListOrders. Empty fields match everything.
type OrderFilter struct {
	BranchID   string
	UserID     string
	ProviderID string
	Status     models.OrderStatus
}

func (f OrderFilter) conditions() []IndexFilter {
	var out []IndexFilter
	if f.BranchID != "" {
		out = append(out, IndexFilter{Field: "branch", Value: f.BranchID})
	}
	if f.ProviderID != "" {
		out = append(out, IndexFilter{Field: "provider", Value: f.ProviderID})
	}
	if f.UserID != "" {
		out = append(out, IndexFilter{Field: "user", Value: f.UserID})
	}
	if f.Status != "" {
		out = append(out, IndexFilter{Field: "status", Value: string(f.Status)})
	}
	return out
}

func (s *Store) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	return getTyped[models.Order](ctx, s, CollOrders, id)
}

// ListOrders uses the first filter field as the index lookup and applies
// the rest in memory.
func (s *Store) ListOrders(ctx context.Context, f OrderFilter) ([]models.Order, error) {
	conds := f.conditions()
	var first *IndexFilter
	if len(conds) > 0 {
		first = &conds[0]
	}
	orders, err := listTyped[models.Order](ctx, s, CollOrders, first)
	if err != nil || len(conds) < 2 {
		return orders, err
	}

	out := orders[:0]
	for _, o := range orders {
		if matchesOrder(o, conds[1:]) {
			out = append(out, o)
		}
	}
	return out, nil
}

func matchesOrder(o models.Order, conds []IndexFilter) bool {
	for _, c := range conds {
		var got string
		switch c.Field {
		case "branch":
			got = o.Branch.ID()
		case "provider":
			got = o.Provider.ID()
		case "user":
			got = o.User.ID()
		case "status":
			got = string(o.Status)
		}
		if got != c.Value {
			return false
		}
	}
	return true
}

func (s *Store) SaveOrders(ctx context.Context, orders ...models.Order) error {
	return putTyped(ctx, s, CollOrders, orders, func(o models.Order) string { return o.ID })
}

func (s *Store) DeleteOrder(ctx context.Context, id string) error {
	return s.Delete(ctx, CollOrders, id)
}

// ReplaceOrder stores the confirmed order and removes its provisional record
// in one transaction.
func (s *Store) ReplaceOrder(ctx context.Context, tempID string, confirmed models.Order) error {
	return s.replace(ctx, CollOrders, tempID, confirmed.ID, confirmed)
}

// ReplaceProvider re-keys a provisional provider under its confirmed id.
func (s *Store) ReplaceProvider(ctx context.Context, tempID string, confirmed models.Provider) error {
	return s.replace(ctx, CollProviders, tempID, confirmed.ID, confirmed)
}

func (s *Store) ReplaceBranch(ctx context.Context, tempID string, confirmed models.Branch) error {
	return s.replace(ctx, CollBranches, tempID, confirmed.ID, confirmed)
}

func (s *Store) ReplaceUser(ctx context.Context, tempID string, confirmed models.User) error {
	return s.replace(ctx, CollUsers, tempID, confirmed.ID, confirmed)
}

func (s *Store) replace(ctx context.Context, collection, oldID, newID string, v any) error {
	conn, err := s.db()
	if err != nil {
		return err
	}
	spec, err := lookup(collection)
	if err != nil {
		return err
	}
	rec, err := NewRecord(newID, v)
	if err != nil {
		return err
	}

	return s.withWriteLock(func() error {
		tx, err := conn.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback()

		// Delete first: the provisional user holds the same unique email.
		if oldID != newID {
			if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = ?", collection), oldID); err != nil {
				return fmt.Errorf("delete %s/%s: %w", collection, oldID, err)
			}
		}
		args := []any{rec.ID, string(rec.Doc)}
		for _, idx := range spec.indexes {
			args = append(args, nullable(fieldValue(rec.Doc, idx)))
		}
		if _, err := tx.ExecContext(ctx, upsertSQL(collection, spec), args...); err != nil {
			return fmt.Errorf("put %s/%s: %w", collection, newID, err)
		}
		return tx.Commit()
	})
}

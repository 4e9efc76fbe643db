package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ferreteria/ordersync/internal/models"
	"github.com/ferreteria/ordersync/internal/remote"
	"github.com/ferreteria/ordersync/internal/store"
	ordersync "github.com/ferreteria/ordersync/internal/sync"
)

// CreateOrder is the input for OrderService.Create. User and branch come
// from the session.
type CreateOrder struct {
	Provider models.Ref
	Date     string
	Status   models.OrderStatus
	Items    []models.OrderItem
}

func (c CreateOrder) validate() error {
	if !c.Provider.IsSet() || c.Provider.ID() == "" {
		return fmt.Errorf("%w: provider is required", ErrInvalid)
	}
	if len(c.Items) == 0 {
		return fmt.Errorf("%w: at least one item is required", ErrInvalid)
	}
	for i, it := range c.Items {
		if strings.TrimSpace(it.ProductCode) == "" || strings.TrimSpace(it.ProductName) == "" {
			return fmt.Errorf("%w: item %d needs a product code and name", ErrInvalid, i+1)
		}
		if it.Quantity <= 0 {
			return fmt.Errorf("%w: item %d quantity must be positive", ErrInvalid, i+1)
		}
	}
	if c.Status != "" && !c.Status.IsValid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalid, c.Status)
	}
	return nil
}

// OrderService manages purchase orders.
type OrderService struct{ base }

func NewOrderService(d Deps) *OrderService { return &OrderService{base{d}} }

// List returns orders of the session branch (all orders for admins), newest first.
func (s *OrderService) List(ctx context.Context) ([]models.Order, error) {
	path := remote.PathOrders
	if s.Session.BranchID != "" {
		path = remote.OrdersByBranchPath(s.Session.BranchID)
	}
	orders, err := s.listRemote(ctx, path, store.OrderFilter{BranchID: s.Session.BranchID})
	if err != nil {
		return nil, err
	}
	sortNewestFirst(orders)
	return orders, nil
}

func (s *OrderService) ListByProvider(ctx context.Context, providerID string) ([]models.Order, error) {
	return s.listRemote(ctx, remote.OrdersByProviderPath(providerID), store.OrderFilter{ProviderID: providerID})
}

func (s *OrderService) ListByBranch(ctx context.Context, branchID string) ([]models.Order, error) {
	return s.listRemote(ctx, remote.OrdersByBranchPath(branchID), store.OrderFilter{BranchID: branchID})
}

func (s *OrderService) listRemote(ctx context.Context, path string, local store.OrderFilter) ([]models.Order, error) {
	if s.online() {
		var orders []models.Order
		err := s.Remote.Get(ctx, path, &orders)
		if err == nil {
			if err := s.Store.SaveOrders(ctx, orders...); err != nil {
				return nil, err
			}
			return orders, nil
		}
		fallback("orders", err)
	}
	return s.Store.ListOrders(ctx, local)
}

// ListByDateRange returns orders dated within [start, end], inclusive.
func (s *OrderService) ListByDateRange(ctx context.Context, start, end time.Time) ([]models.Order, error) {
	orders, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	var out []models.Order
	for _, o := range orders {
		d, ok := parseOrderDate(o.Date)
		if !ok {
			continue
		}
		if !d.Before(start) && !d.After(end) {
			out = append(out, o)
		}
	}
	return out, nil
}

// Search matches provider, user and branch names and item codes or names.
func (s *OrderService) Search(ctx context.Context, q string) ([]models.Order, error) {
	orders, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(strings.TrimSpace(q))
	if needle == "" {
		return orders, nil
	}
	var out []models.Order
	for _, o := range orders {
		if matchOrder(o, needle) {
			out = append(out, o)
		}
	}
	return out, nil
}

func matchOrder(o models.Order, needle string) bool {
	if containsFold(o.InvoiceCode, needle) ||
		containsFold(o.Provider.Label(), needle) ||
		containsFold(o.User.Label(), needle) ||
		containsFold(o.Branch.Label(), needle) {
		return true
	}
	for _, it := range o.Items {
		if containsFold(it.ProductName, needle) || containsFold(it.ProductCode, needle) {
			return true
		}
	}
	return false
}

func (s *OrderService) Get(ctx context.Context, id string) (*models.Order, error) {
	if s.online() && !models.IsTempID(id) {
		var o models.Order
		err := s.Remote.Get(ctx, remote.OrderPath(id), &o)
		if err == nil {
			return &o, s.Store.SaveOrders(ctx, o)
		}
		fallback("order", err)
	}
	o, err := s.Store.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, fmt.Errorf("order %s: %w", id, ErrNotFound)
	}
	return o, nil
}

// Create places an order for the session user and branch. Offline, the order
// gets a temporary id and invoice code until it is replayed.
func (s *OrderService) Create(ctx context.Context, in CreateOrder) (*models.Order, error) {
	if s.Session.IsZero() {
		return nil, ErrNoSession
	}
	branch := s.Session.Branch()
	if !branch.IsSet() {
		return nil, ErrNoBranch
	}
	if err := in.validate(); err != nil {
		return nil, err
	}
	if in.Status == "" {
		in.Status = models.OrderPending
	}
	if in.Date == "" {
		in.Date = s.now().Format("2006-01-02")
	}
	provider, err := s.embedProvider(ctx, in.Provider)
	if err != nil {
		return nil, err
	}
	user := s.Session.User()

	if s.online() {
		body := map[string]any{
			"provider": provider,
			"user":     user,
			"branch":   branch,
			"date":     in.Date,
			"status":   in.Status,
			"items":    in.Items,
		}
		var o models.Order
		if err := s.Remote.Post(ctx, remote.PathOrders, body, &o); err != nil {
			return nil, err
		}
		return &o, s.Store.SaveOrders(ctx, o)
	}

	now := s.now()
	o := models.Order{
		ID:          models.NewTempID(),
		InvoiceCode: models.TempInvoiceCode(now),
		Provider:    provider,
		User:        user,
		Branch:      branch,
		Date:        in.Date,
		Status:      in.Status,
		Items:       in.Items,
		CreatedAt:   models.Timestamp(now),
	}
	if err := s.Store.SaveOrders(ctx, o); err != nil {
		return nil, err
	}
	err = s.enqueue(ctx, &ordersync.OrderCreate{
		TempID:   o.ID,
		Provider: provider,
		User:     user,
		Branch:   branch,
		Date:     in.Date,
		Status:   in.Status,
		Items:    in.Items,
	})
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// embedProvider fills in the provider name from the local store so the order
// can be listed offline.
func (s *OrderService) embedProvider(ctx context.Context, ref models.Ref) (models.Ref, error) {
	if ref.Kind() == models.RefEmbedded && ref.Name() != "" {
		return ref, nil
	}
	p, err := s.Store.GetProvider(ctx, ref.ID())
	if err != nil {
		return ref, err
	}
	if p == nil {
		return models.Embedded(ref.ID(), ""), nil
	}
	return models.Embedded(p.ID, p.Name), nil
}

// Update always fails: the backend does not allow modifying orders.
func (s *OrderService) Update(context.Context, string, CreateOrder) (*models.Order, error) {
	return nil, ErrOrderImmutable
}

func (s *OrderService) Delete(ctx context.Context, id string) error {
	if s.online() {
		if err := s.Remote.Delete(ctx, remote.OrderPath(id), nil); err != nil {
			return notFound(err)
		}
		return s.Store.DeleteOrder(ctx, id)
	}
	return s.deleteOffline(ctx, models.EntityOrder, id, &ordersync.OrderDelete{ID: id})
}

func sortNewestFirst(orders []models.Order) {
	sort.SliceStable(orders, func(i, j int) bool {
		return orders[i].CreatedAt > orders[j].CreatedAt
	})
}

func parseOrderDate(s string) (time.Time, bool) {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/ferreteria/ordersync/internal/models"
	"github.com/ferreteria/ordersync/internal/remote"
	ordersync "github.com/ferreteria/ordersync/internal/sync"
)

// ProviderService manages providers of the session branch.
type ProviderService struct{ base }

func NewProviderService(d Deps) *ProviderService { return &ProviderService{base{d}} }

// List returns the providers of the session branch, or all providers for admins.
func (s *ProviderService) List(ctx context.Context) ([]models.Provider, error) {
	if s.online() {
		path := remote.PathProviders
		if s.Session.BranchID != "" {
			path = remote.ProvidersByBranchPath(s.Session.BranchID)
		}
		var providers []models.Provider
		err := s.Remote.Get(ctx, path, &providers)
		if err == nil {
			if err := s.Store.SaveProviders(ctx, providers...); err != nil {
				return nil, err
			}
			return providers, nil
		}
		fallback("providers", err)
	}
	return s.Store.ListProviders(ctx, s.Session.BranchID)
}

func (s *ProviderService) Get(ctx context.Context, id string) (*models.Provider, error) {
	if s.online() && !models.IsTempID(id) {
		var p models.Provider
		err := s.Remote.Get(ctx, remote.ProviderPath(id), &p)
		if err == nil {
			return &p, s.Store.SaveProviders(ctx, p)
		}
		fallback("provider", err)
	}
	p, err := s.Store.GetProvider(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("provider %s: %w", id, ErrNotFound)
	}
	return p, nil
}

// Create adds a provider to the session branch.
func (s *ProviderService) Create(ctx context.Context, name string) (*models.Provider, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: provider name is required", ErrInvalid)
	}
	branch := s.Session.Branch()
	if !branch.IsSet() {
		return nil, ErrNoBranch
	}

	if s.online() {
		var p models.Provider
		body := map[string]any{"name": name, "branch": branch}
		if err := s.Remote.Post(ctx, remote.PathProviders, body, &p); err != nil {
			return nil, err
		}
		return &p, s.Store.SaveProviders(ctx, p)
	}

	p := models.Provider{
		ID:         models.NewTempID(),
		Name:       name,
		Branch:     models.Reference(branch.ID()),
		BranchName: branch.Name(),
		CreatedAt:  models.Timestamp(s.now()),
	}
	if err := s.Store.SaveProviders(ctx, p); err != nil {
		return nil, err
	}
	if err := s.enqueue(ctx, &ordersync.ProviderCreate{TempID: p.ID, Name: name, Branch: branch}); err != nil {
		return nil, err
	}
	return &p, nil
}

// Update renames a provider.
func (s *ProviderService) Update(ctx context.Context, id, name string) (*models.Provider, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: provider name is required", ErrInvalid)
	}

	if s.online() {
		var p models.Provider
		if err := s.Remote.Patch(ctx, remote.ProviderPath(id), map[string]any{"name": name}, &p); err != nil {
			return nil, notFound(err)
		}
		return &p, s.Store.SaveProviders(ctx, p)
	}

	p, err := s.Store.GetProvider(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("provider %s: %w", id, ErrNotFound)
	}
	p.Name = name
	if err := s.Store.SaveProviders(ctx, *p); err != nil {
		return nil, err
	}
	return p, s.enqueue(ctx, &ordersync.ProviderUpdate{ID: id, Name: name})
}

func (s *ProviderService) Delete(ctx context.Context, id string) error {
	if s.online() {
		if err := s.Remote.Delete(ctx, remote.ProviderPath(id), nil); err != nil {
			return notFound(err)
		}
		return s.Store.DeleteProvider(ctx, id)
	}
	return s.deleteOffline(ctx, models.EntityProvider, id, &ordersync.ProviderDelete{ID: id})
}

// Search matches providers by name. An empty query lists everything.
func (s *ProviderService) Search(ctx context.Context, q string) ([]models.Provider, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return s.List(ctx)
	}
	if s.online() {
		var providers []models.Provider
		err := s.Remote.Get(ctx, remote.ProviderSearchPath(q), &providers)
		if err == nil {
			return providers, nil
		}
		fallback("provider search", err)
	}
	all, err := s.Store.ListProviders(ctx, s.Session.BranchID)
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(q)
	var out []models.Provider
	for _, p := range all {
		if containsFold(p.Name, needle) {
			out = append(out, p)
		}
	}
	return out, nil
}

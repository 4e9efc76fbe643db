package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/ferreteria/ordersync/internal/models"
	"github.com/ferreteria/ordersync/internal/remote"
	ordersync "github.com/ferreteria/ordersync/internal/sync"
)

// BranchService manages store locations.
type BranchService struct{ base }

func NewBranchService(d Deps) *BranchService { return &BranchService{base{d}} }

func (s *BranchService) List(ctx context.Context) ([]models.Branch, error) {
	if s.online() {
		var branches []models.Branch
		err := s.Remote.Get(ctx, remote.PathBranches, &branches)
		if err == nil {
			return branches, s.Store.SaveBranches(ctx, branches...)
		}
		fallback("branches", err)
	}
	return s.Store.ListBranches(ctx)
}

func (s *BranchService) Get(ctx context.Context, id string) (*models.Branch, error) {
	if s.online() && !models.IsTempID(id) {
		var b models.Branch
		err := s.Remote.Get(ctx, remote.BranchPath(id), &b)
		if err == nil {
			return &b, s.Store.SaveBranches(ctx, b)
		}
		fallback("branch", err)
	}
	b, err := s.Store.GetBranch(ctx, id)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, fmt.Errorf("branch %s: %w", id, ErrNotFound)
	}
	return b, nil
}

func (s *BranchService) Create(ctx context.Context, name string) (*models.Branch, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: branch name is required", ErrInvalid)
	}
	if s.online() {
		var b models.Branch
		if err := s.Remote.Post(ctx, remote.PathBranches, map[string]any{"name": name}, &b); err != nil {
			return nil, err
		}
		return &b, s.Store.SaveBranches(ctx, b)
	}

	b := models.Branch{ID: models.NewTempID(), Name: name, CreatedAt: models.Timestamp(s.now())}
	if err := s.Store.SaveBranches(ctx, b); err != nil {
		return nil, err
	}
	return &b, s.enqueue(ctx, &ordersync.BranchCreate{TempID: b.ID, Name: name})
}

func (s *BranchService) Update(ctx context.Context, id, name string) (*models.Branch, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: branch name is required", ErrInvalid)
	}
	if s.online() {
		var b models.Branch
		if err := s.Remote.Patch(ctx, remote.BranchPath(id), map[string]any{"name": name}, &b); err != nil {
			return nil, notFound(err)
		}
		return &b, s.Store.SaveBranches(ctx, b)
	}

	b, err := s.Store.GetBranch(ctx, id)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, fmt.Errorf("branch %s: %w", id, ErrNotFound)
	}
	b.Name = name
	if err := s.Store.SaveBranches(ctx, *b); err != nil {
		return nil, err
	}
	return b, s.enqueue(ctx, &ordersync.BranchUpdate{ID: id, Name: name})
}

func (s *BranchService) Delete(ctx context.Context, id string) error {
	if s.online() {
		if err := s.Remote.Delete(ctx, remote.BranchPath(id), nil); err != nil {
			return notFound(err)
		}
		return s.Store.DeleteBranch(ctx, id)
	}
	return s.deleteOffline(ctx, models.EntityBranch, id, &ordersync.BranchDelete{ID: id})
}

// Search filters the branch list by name.
func (s *BranchService) Search(ctx context.Context, q string) ([]models.Branch, error) {
	branches, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(strings.TrimSpace(q))
	if needle == "" {
		return branches, nil
	}
	var out []models.Branch
	for _, b := range branches {
		if containsFold(b.Name, needle) {
			out = append(out, b)
		}
	}
	return out, nil
}

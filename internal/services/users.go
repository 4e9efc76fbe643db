package services

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"github.com/ferreteria/ordersync/internal/models"
	"github.com/ferreteria/ordersync/internal/remote"
	ordersync "github.com/ferreteria/ordersync/internal/sync"
)

// NewUser is the input for UserService.Create.
type NewUser struct {
	Email    string
	Name     string
	Password string
	Role     models.Role
	Branch   models.Ref
}

// UserChanges lists the fields to update; empty strings are left untouched.
type UserChanges struct {
	Email    string
	Name     string
	Password string
	Role     models.Role
	Branch   models.Ref
}

// UserService manages operator accounts. Passwords are sent to the backend
// but never stored locally.
type UserService struct{ base }

func NewUserService(d Deps) *UserService { return &UserService{base{d}} }

func (s *UserService) List(ctx context.Context) ([]models.User, error) {
	if s.online() {
		var users []models.User
		err := s.Remote.Get(ctx, remote.PathUsers, &users)
		if err == nil {
			stripPasswords(users)
			return users, s.Store.SaveUsers(ctx, users...)
		}
		fallback("users", err)
	}
	return s.Store.ListUsers(ctx, "")
}

func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	if s.online() && !models.IsTempID(id) {
		var u models.User
		err := s.Remote.Get(ctx, remote.UserPath(id), &u)
		if err == nil {
			u.Password = ""
			return &u, s.Store.SaveUsers(ctx, u)
		}
		fallback("user", err)
	}
	u, err := s.Store.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	return u, nil
}

func (in NewUser) validate() error {
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return fmt.Errorf("%w: email %q", ErrInvalid, in.Email)
	}
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalid)
	}
	if len(in.Password) < 6 {
		return fmt.Errorf("%w: password must have at least 6 characters", ErrInvalid)
	}
	switch in.Role {
	case models.RoleAdmin:
	case models.RoleUser:
		if !in.Branch.IsSet() {
			return fmt.Errorf("%w: users need a branch", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown role %q", ErrInvalid, in.Role)
	}
	return nil
}

func (s *UserService) Create(ctx context.Context, in NewUser) (*models.User, error) {
	if in.Role == "" {
		in.Role = models.RoleUser
	}
	in.Email = strings.TrimSpace(in.Email)
	if err := in.validate(); err != nil {
		return nil, err
	}

	if s.online() {
		body := map[string]any{"email": in.Email, "name": in.Name, "password": in.Password, "role": in.Role}
		if in.Branch.IsSet() {
			body["branch"] = in.Branch
		}
		var u models.User
		if err := s.Remote.Post(ctx, remote.PathUsers, body, &u); err != nil {
			return nil, err
		}
		u.Password = ""
		return &u, s.Store.SaveUsers(ctx, u)
	}

	if existing, err := s.Store.GetUserByEmail(ctx, in.Email); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, fmt.Errorf("%w: email %s already in use", ErrInvalid, in.Email)
	}
	u := models.User{
		ID:        models.NewTempID(),
		Email:     in.Email,
		Name:      in.Name,
		Role:      in.Role,
		Branch:    in.Branch,
		CreatedAt: models.Timestamp(s.now()),
	}
	if err := s.Store.SaveUsers(ctx, u); err != nil {
		return nil, err
	}
	err := s.enqueue(ctx, &ordersync.UserCreate{
		TempID:   u.ID,
		Email:    in.Email,
		Name:     in.Name,
		Password: in.Password,
		Role:     in.Role,
		Branch:   in.Branch,
	})
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *UserService) Update(ctx context.Context, id string, ch UserChanges) (*models.User, error) {
	if s.online() {
		body := map[string]any{}
		for k, v := range map[string]string{"email": ch.Email, "name": ch.Name, "password": ch.Password, "role": string(ch.Role)} {
			if v != "" {
				body[k] = v
			}
		}
		if ch.Branch.IsSet() {
			body["branch"] = ch.Branch
		}
		var u models.User
		if err := s.Remote.Patch(ctx, remote.UserPath(id), body, &u); err != nil {
			return nil, notFound(err)
		}
		u.Password = ""
		return &u, s.Store.SaveUsers(ctx, u)
	}

	u, err := s.Store.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	if ch.Email != "" {
		u.Email = ch.Email
	}
	if ch.Name != "" {
		u.Name = ch.Name
	}
	if ch.Role != "" {
		u.Role = ch.Role
	}
	if ch.Branch.IsSet() {
		u.Branch = ch.Branch
	}
	if err := s.Store.SaveUsers(ctx, *u); err != nil {
		return nil, err
	}
	return u, s.enqueue(ctx, &ordersync.UserUpdate{
		ID:       id,
		Email:    ch.Email,
		Name:     ch.Name,
		Password: ch.Password,
		Role:     ch.Role,
		Branch:   ch.Branch,
	})
}

func (s *UserService) Delete(ctx context.Context, id string) error {
	if s.online() {
		if err := s.Remote.Delete(ctx, remote.UserPath(id), nil); err != nil {
			return notFound(err)
		}
		return s.Store.DeleteUser(ctx, id)
	}
	return s.deleteOffline(ctx, models.EntityUser, id, &ordersync.UserDelete{ID: id})
}

// Search filters users by name or email.
func (s *UserService) Search(ctx context.Context, q string) ([]models.User, error) {
	users, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(strings.TrimSpace(q))
	if needle == "" {
		return users, nil
	}
	var out []models.User
	for _, u := range users {
		if containsFold(u.Name, needle) || containsFold(u.Email, needle) {
			out = append(out, u)
		}
	}
	return out, nil
}

func stripPasswords(users []models.User) {
	for i := range users {
		users[i].Password = ""
	}
}

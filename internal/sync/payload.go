package sync

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/ferreteria/ordersync/internal/models"
	"github.com/ferreteria/ordersync/internal/remote"
	"github.com/ferreteria/ordersync/internal/store"
)

// ErrUnresolvedReference is returned when a payload points at a temporary
// identifier whose own CREATE has not produced a server identifier yet.
var ErrUnresolvedReference = errors.New("unresolved temporary reference")

// Payload is the typed body of a queued mutation. The set of implementations
// is closed: one per entity and operation pair.
type Payload interface {
	Entity() models.EntityKind
	Operation() models.Operation
	// request builds the remote call after temporary ids were resolved.
	request() request
	// resolve rewrites temporary ids through lookup.
	resolve(lookup resolver) error
}

type request struct {
	method string
	path   string
	body   any
}

type resolver func(tempID string) (string, bool)

// Mutation is one entity change waiting to be replayed.
type Mutation struct {
	Entity    models.EntityKind
	Operation models.Operation
	Payload   Payload
}

// NewMutation wraps p, taking entity and operation from the payload type.
func NewMutation(p Payload) Mutation {
	return Mutation{Entity: p.Entity(), Operation: p.Operation(), Payload: p}
}

// Validate checks that entity and operation agree with the payload type.
func (m Mutation) Validate() error {
	if m.Payload == nil {
		return fmt.Errorf("mutation %s %s: missing payload", m.Entity, m.Operation)
	}
	if m.Payload.Entity() != m.Entity || m.Payload.Operation() != m.Operation {
		return fmt.Errorf("mutation %s %s: payload is %s %s", m.Entity, m.Operation, m.Payload.Entity(), m.Payload.Operation())
	}
	return nil
}

// TempID returns the provisional id carried by a CREATE, or "".
func (m Mutation) TempID() string {
	switch p := m.Payload.(type) {
	case *ProviderCreate:
		return p.TempID
	case *BranchCreate:
		return p.TempID
	case *UserCreate:
		return p.TempID
	case *OrderCreate:
		return p.TempID
	}
	return ""
}

// TargetID returns the id of the record m acts on: the provisional id for a
// CREATE, the record id for an UPDATE or DELETE.
func (m Mutation) TargetID() string {
	switch p := m.Payload.(type) {
	case *ProviderUpdate:
		return p.ID
	case *ProviderDelete:
		return p.ID
	case *BranchUpdate:
		return p.ID
	case *BranchDelete:
		return p.ID
	case *UserUpdate:
		return p.ID
	case *UserDelete:
		return p.ID
	case *OrderUpdate:
		return p.ID
	case *OrderDelete:
		return p.ID
	}
	return m.TempID()
}

// DecodeMutation turns a stored queue item back into its typed mutation.
func DecodeMutation(item store.QueueItem) (Mutation, error) {
	p, err := newPayload(item.Entity, item.Operation)
	if err != nil {
		return Mutation{}, err
	}
	if err := json.Unmarshal(item.Payload, p); err != nil {
		return Mutation{}, fmt.Errorf("decode %s %s payload: %w", item.Entity, item.Operation, err)
	}
	return NewMutation(p), nil
}

func newPayload(entity models.EntityKind, op models.Operation) (Payload, error) {
	switch entity {
	case models.EntityProvider:
		switch op {
		case models.OpCreate:
			return &ProviderCreate{}, nil
		case models.OpUpdate:
			return &ProviderUpdate{}, nil
		case models.OpDelete:
			return &ProviderDelete{}, nil
		}
	case models.EntityBranch:
		switch op {
		case models.OpCreate:
			return &BranchCreate{}, nil
		case models.OpUpdate:
			return &BranchUpdate{}, nil
		case models.OpDelete:
			return &BranchDelete{}, nil
		}
	case models.EntityUser:
		switch op {
		case models.OpCreate:
			return &UserCreate{}, nil
		case models.OpUpdate:
			return &UserUpdate{}, nil
		case models.OpDelete:
			return &UserDelete{}, nil
		}
	case models.EntityOrder:
		switch op {
		case models.OpCreate:
			return &OrderCreate{}, nil
		case models.OpUpdate:
			return &OrderUpdate{}, nil
		case models.OpDelete:
			return &OrderDelete{}, nil
		}
	}
	return nil, fmt.Errorf("unknown mutation %s %s", entity, op)
}

// resolveID maps id when it is temporary.
func resolveID(id string, lookup resolver) (string, error) {
	if !models.IsTempID(id) {
		return id, nil
	}
	serverID, ok := lookup(id)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnresolvedReference, id)
	}
	return serverID, nil
}

func resolveRef(r models.Ref, lookup resolver) (models.Ref, error) {
	if !r.IsTemp() {
		return r, nil
	}
	id, err := resolveID(r.ID(), lookup)
	if err != nil {
		return r, err
	}
	return r.WithID(id), nil
}

// --- Providers ---

type ProviderCreate struct {
	TempID string     `json:"tempId,omitempty"`
	Name   string     `json:"name"`
	Branch models.Ref `json:"branch"`
}

func (*ProviderCreate) Entity() models.EntityKind   { return models.EntityProvider }
func (*ProviderCreate) Operation() models.Operation { return models.OpCreate }

func (p *ProviderCreate) resolve(lookup resolver) (err error) {
	p.Branch, err = resolveRef(p.Branch, lookup)
	return err
}

func (p *ProviderCreate) request() request {
	return request{http.MethodPost, remote.PathProviders, struct {
		Name   string     `json:"name"`
		Branch models.Ref `json:"branch"`
	}{p.Name, p.Branch}}
}

type ProviderUpdate struct {
	ID     string     `json:"id"`
	Name   string     `json:"name,omitempty"`
	Branch models.Ref `json:"branch"`
}

func (*ProviderUpdate) Entity() models.EntityKind   { return models.EntityProvider }
func (*ProviderUpdate) Operation() models.Operation { return models.OpUpdate }

func (p *ProviderUpdate) resolve(lookup resolver) (err error) {
	if p.ID, err = resolveID(p.ID, lookup); err != nil {
		return err
	}
	p.Branch, err = resolveRef(p.Branch, lookup)
	return err
}

func (p *ProviderUpdate) request() request {
	body := map[string]any{}
	if p.Name != "" {
		body["name"] = p.Name
	}
	if p.Branch.IsSet() {
		body["branch"] = p.Branch
	}
	return request{http.MethodPatch, remote.ProviderPath(p.ID), body}
}

type ProviderDelete struct {
	ID string `json:"id"`
}

func (*ProviderDelete) Entity() models.EntityKind   { return models.EntityProvider }
func (*ProviderDelete) Operation() models.Operation { return models.OpDelete }

func (p *ProviderDelete) resolve(lookup resolver) (err error) {
	p.ID, err = resolveID(p.ID, lookup)
	return err
}

func (p *ProviderDelete) request() request {
	return request{http.MethodDelete, remote.ProviderPath(p.ID), nil}
}

// --- Branches ---

type BranchCreate struct {
	TempID string `json:"tempId,omitempty"`
	Name   string `json:"name"`
}

func (*BranchCreate) Entity() models.EntityKind   { return models.EntityBranch }
func (*BranchCreate) Operation() models.Operation { return models.OpCreate }
func (*BranchCreate) resolve(resolver) error      { return nil }

func (p *BranchCreate) request() request {
	return request{http.MethodPost, remote.PathBranches, map[string]any{"name": p.Name}}
}

type BranchUpdate struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (*BranchUpdate) Entity() models.EntityKind   { return models.EntityBranch }
func (*BranchUpdate) Operation() models.Operation { return models.OpUpdate }

func (p *BranchUpdate) resolve(lookup resolver) (err error) {
	p.ID, err = resolveID(p.ID, lookup)
	return err
}

func (p *BranchUpdate) request() request {
	return request{http.MethodPatch, remote.BranchPath(p.ID), map[string]any{"name": p.Name}}
}

type BranchDelete struct {
	ID string `json:"id"`
}

func (*BranchDelete) Entity() models.EntityKind   { return models.EntityBranch }
func (*BranchDelete) Operation() models.Operation { return models.OpDelete }

func (p *BranchDelete) resolve(lookup resolver) (err error) {
	p.ID, err = resolveID(p.ID, lookup)
	return err
}

func (p *BranchDelete) request() request {
	return request{http.MethodDelete, remote.BranchPath(p.ID), nil}
}

// --- Users ---

type UserCreate struct {
	TempID   string      `json:"tempId,omitempty"`
	Email    string      `json:"email"`
	Name     string      `json:"name"`
	Password string      `json:"password"`
	Role     models.Role `json:"role"`
	Branch   models.Ref  `json:"branch"`
}

func (*UserCreate) Entity() models.EntityKind   { return models.EntityUser }
func (*UserCreate) Operation() models.Operation { return models.OpCreate }

func (p *UserCreate) resolve(lookup resolver) (err error) {
	p.Branch, err = resolveRef(p.Branch, lookup)
	return err
}

func (p *UserCreate) request() request {
	body := map[string]any{
		"email":    p.Email,
		"name":     p.Name,
		"password": p.Password,
		"role":     p.Role,
	}
	if p.Branch.IsSet() {
		body["branch"] = p.Branch
	}
	return request{http.MethodPost, remote.PathUsers, body}
}

type UserUpdate struct {
	ID       string      `json:"id"`
	Email    string      `json:"email,omitempty"`
	Name     string      `json:"name,omitempty"`
	Password string      `json:"password,omitempty"`
	Role     models.Role `json:"role,omitempty"`
	Branch   models.Ref  `json:"branch"`
}

func (*UserUpdate) Entity() models.EntityKind   { return models.EntityUser }
func (*UserUpdate) Operation() models.Operation { return models.OpUpdate }

func (p *UserUpdate) resolve(lookup resolver) (err error) {
	if p.ID, err = resolveID(p.ID, lookup); err != nil {
		return err
	}
	p.Branch, err = resolveRef(p.Branch, lookup)
	return err
}

func (p *UserUpdate) request() request {
	body := map[string]any{}
	for k, v := range map[string]string{"email": p.Email, "name": p.Name, "password": p.Password, "role": string(p.Role)} {
		if v != "" {
			body[k] = v
		}
	}
	if p.Branch.IsSet() {
		body["branch"] = p.Branch
	}
	return request{http.MethodPatch, remote.UserPath(p.ID), body}
}

type UserDelete struct {
	ID string `json:"id"`
}

func (*UserDelete) Entity() models.EntityKind   { return models.EntityUser }
func (*UserDelete) Operation() models.Operation { return models.OpDelete }

func (p *UserDelete) resolve(lookup resolver) (err error) {
	p.ID, err = resolveID(p.ID, lookup)
	return err
}

func (p *UserDelete) request() request {
	return request{http.MethodDelete, remote.UserPath(p.ID), nil}
}

// --- Orders ---

// OrderCreate carries the embedded provider, user and branch so that the
// replayed body matches what an online create would have sent.
type OrderCreate struct {
	TempID   string             `json:"tempId,omitempty"`
	Provider models.Ref         `json:"provider"`
	User     models.Ref         `json:"user"`
	Branch   models.Ref         `json:"branch"`
	Date     string             `json:"date"`
	Status   models.OrderStatus `json:"status"`
	Items    []models.OrderItem `json:"items"`
}

func (*OrderCreate) Entity() models.EntityKind   { return models.EntityOrder }
func (*OrderCreate) Operation() models.Operation { return models.OpCreate }

func (p *OrderCreate) resolve(lookup resolver) (err error) {
	if p.Provider, err = resolveRef(p.Provider, lookup); err != nil {
		return fmt.Errorf("provider: %w", err)
	}
	if p.Branch, err = resolveRef(p.Branch, lookup); err != nil {
		return fmt.Errorf("branch: %w", err)
	}
	if p.User, err = resolveRef(p.User, lookup); err != nil {
		return fmt.Errorf("user: %w", err)
	}
	return nil
}

func (p *OrderCreate) request() request {
	return request{http.MethodPost, remote.PathOrders, struct {
		Provider models.Ref         `json:"provider"`
		User     models.Ref         `json:"user"`
		Branch   models.Ref         `json:"branch"`
		Date     string             `json:"date"`
		Status   models.OrderStatus `json:"status"`
		Items    []models.OrderItem `json:"items"`
	}{p.Provider, p.User, p.Branch, p.Date, p.Status, p.Items}}
}

type OrderUpdate struct {
	ID     string             `json:"id"`
	Status models.OrderStatus `json:"status"`
}

func (*OrderUpdate) Entity() models.EntityKind   { return models.EntityOrder }
func (*OrderUpdate) Operation() models.Operation { return models.OpUpdate }

func (p *OrderUpdate) resolve(lookup resolver) (err error) {
	p.ID, err = resolveID(p.ID, lookup)
	return err
}

func (p *OrderUpdate) request() request {
	return request{http.MethodPatch, remote.OrderPath(p.ID), map[string]any{"status": p.Status}}
}

type OrderDelete struct {
	ID string `json:"id"`
}

func (*OrderDelete) Entity() models.EntityKind   { return models.EntityOrder }
func (*OrderDelete) Operation() models.Operation { return models.OpDelete }

func (p *OrderDelete) resolve(lookup resolver) (err error) {
	p.ID, err = resolveID(p.ID, lookup)
	return err
}

func (p *OrderDelete) request() request {
	return request{http.MethodDelete, remote.OrderPath(p.ID), nil}
}

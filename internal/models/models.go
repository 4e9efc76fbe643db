package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// EntityKind identifies a collection of records.
type EntityKind string

const (
	EntityProvider EntityKind = "provider"
	EntityOrder    EntityKind = "order"
	EntityBranch   EntityKind = "branch"
	EntityUser     EntityKind = "user"
)

// AllEntityKinds lists every entity kind in collection order.
var AllEntityKinds = []EntityKind{EntityProvider, EntityOrder, EntityBranch, EntityUser}

// IsValid reports whether k is a known entity kind.
func (k EntityKind) IsValid() bool {
	switch k {
	case EntityProvider, EntityOrder, EntityBranch, EntityUser:
		return true
	}
	return false
}

// Collection returns the local collection name holding records of kind k.
func (k EntityKind) Collection() string {
	if k == EntityBranch {
		return "branches"
	}
	return string(k) + "s"
}

// Operation is a queued mutation type
type Operation string

const (
	OpCreate Operation = "CREATE"
	OpUpdate Operation = "UPDATE"
	OpDelete Operation = "DELETE"
)

// IsValid reports whether op is a known operation.
func (op Operation) IsValid() bool {
	return op == OpCreate || op == OpUpdate || op == OpDelete
}

// ConnectionStatus is the connectivity state observed by the monitor.
type ConnectionStatus string

const (
	StatusOnline   ConnectionStatus = "online"
	StatusOffline  ConnectionStatus = "offline"
	StatusChecking ConnectionStatus = "checking"
)

// ParseConnectionStatus converts a persisted status string. Unknown values
// yield an empty status.
func ParseConnectionStatus(s string) ConnectionStatus {
	switch ConnectionStatus(s) {
	case StatusOnline, StatusOffline, StatusChecking:
		return ConnectionStatus(s)
	}
	return ""
}

// Role is a user's permission level
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// OrderStatus represents purchase order status
type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderCompleted OrderStatus = "completed"
	OrderCancelled OrderStatus = "cancelled"
)

// IsValid reports whether s is a known order status.
func (s OrderStatus) IsValid() bool {
	return s == OrderPending || s == OrderCompleted || s == OrderCancelled
}

// Provider is a supplier orders are placed with.
type Provider struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Branch     Ref    `json:"branch"`
	BranchName string `json:"branchName,omitempty"`
	CreatedAt  string `json:"createdAt,omitempty"`
}

// Branch is a physical store location.
type Branch struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"createdAt,omitempty"`
}

// User is an operator account. Admins have no branch.
type User struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	Password  string `json:"password,omitempty"`
	Role      Role   `json:"role"`
	Branch    Ref    `json:"branch"`
	CreatedAt string `json:"createdAt,omitempty"`
}

// OrderItem is one product line of an order.
type OrderItem struct {
	ProductCode string `json:"productCode"`
	ProductName string `json:"productName"`
	Quantity    int    `json:"quantity"`
}

// Order is a purchase order. Provider, user and branch are stored embedded
// so orders can be listed offline without joins.
type Order struct {
	ID          string      `json:"id"`
	InvoiceCode string      `json:"invoiceCode"`
	Provider    Ref         `json:"provider"`
	User        Ref         `json:"user"`
	Branch      Ref         `json:"branch"`
	Date        string      `json:"date"`
	Status      OrderStatus `json:"status"`
	Items       []OrderItem `json:"items"`
	CreatedAt   string      `json:"createdAt,omitempty"`
}

// TotalQuantity sums the quantity of every item.
func (o Order) TotalQuantity() int {
	total := 0
	for _, it := range o.Items {
		total += it.Quantity
	}
	return total
}

// The backend identifies documents with "_id"; local records use "id".
// Each entity accepts either on decode.

func (p *Provider) UnmarshalJSON(data []byte) error {
	type alias Provider
	aux := struct {
		*alias
		ServerID string `json:"_id"`
	}{alias: (*alias)(p)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if p.ID == "" {
		p.ID = aux.ServerID
	}
	if p.BranchName == "" {
		p.BranchName = p.Branch.Name()
	}
	return nil
}

func (b *Branch) UnmarshalJSON(data []byte) error {
	type alias Branch
	aux := struct {
		*alias
		ServerID string `json:"_id"`
	}{alias: (*alias)(b)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if b.ID == "" {
		b.ID = aux.ServerID
	}
	return nil
}

func (u *User) UnmarshalJSON(data []byte) error {
	type alias User
	aux := struct {
		*alias
		ServerID string `json:"_id"`
	}{alias: (*alias)(u)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if u.ID == "" {
		u.ID = aux.ServerID
	}
	return nil
}

func (o *Order) UnmarshalJSON(data []byte) error {
	type alias Order
	aux := struct {
		*alias
		ServerID string `json:"_id"`
	}{alias: (*alias)(o)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if o.ID == "" {
		o.ID = aux.ServerID
	}
	return nil
}

// TempIDPrefix marks identifiers assigned locally before the server has
// confirmed a record.
const TempIDPrefix = "temp-"

// NewTempID returns a fresh temporary identifier.
func NewTempID() string {
	return fmt.Sprintf("%s%d-%s", TempIDPrefix, time.Now().UnixMilli(), uuid.NewString()[:8])
}

// IsTempID reports whether id was assigned locally.
func IsTempID(id string) bool {
	return strings.HasPrefix(id, TempIDPrefix)
}

// TempInvoiceCode returns the provisional invoice code for an order created
// offline at now: "TEMP-" followed by the last six digits of the unix millis.
func TempInvoiceCode(now time.Time) string {
	ms := strconv.FormatInt(now.UnixMilli(), 10)
	if len(ms) > 6 {
		ms = ms[len(ms)-6:]
	}
	return "TEMP-" + ms
}

// Timestamp formats t the way the backend does (RFC 3339, millisecond precision, UTC).
func Timestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}

package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// RefKind tells which shape a Ref holds.
type RefKind int

const (
	RefUnset RefKind = iota
	RefReference
	RefEmbedded
)

// Ref is a reference to another record that is either absent, a bare
// identifier, or an embedded {_id, name} pair.
//
// On the wire: null or "" is Unset, a JSON string is Reference, and an
// object is Embedded.
type Ref struct {
	kind RefKind
	id   string
	name string
}

// Reference returns a Ref holding only an identifier.
func Reference(id string) Ref {
	if id == "" {
		return Ref{}
	}
	return Ref{kind: RefReference, id: id}
}

// Embedded returns a Ref holding an identifier and display name.
func Embedded(id, name string) Ref {
	if id == "" && name == "" {
		return Ref{}
	}
	return Ref{kind: RefEmbedded, id: id, name: name}
}

func (r Ref) Kind() RefKind { return r.kind }
func (r Ref) ID() string    { return r.id }
func (r Ref) Name() string  { return r.name }
func (r Ref) IsSet() bool   { return r.kind != RefUnset }

// IsTemp reports whether the referenced identifier is temporary.
func (r Ref) IsTemp() bool { return r.IsSet() && IsTempID(r.id) }

// WithID returns a copy of r pointing at id, keeping its shape and name.
func (r Ref) WithID(id string) Ref {
	if r.kind == RefUnset {
		return Reference(id)
	}
	r.id = id
	return r
}

// Label returns the name when embedded, otherwise the identifier.
func (r Ref) Label() string {
	if r.name != "" {
		return r.name
	}
	return r.id
}

type embeddedRef struct {
	ID   string `json:"_id"`
	Name string `json:"name"`
}

func (r Ref) MarshalJSON() ([]byte, error) {
	switch r.kind {
	case RefReference:
		return json.Marshal(r.id)
	case RefEmbedded:
		return json.Marshal(embeddedRef{ID: r.id, Name: r.name})
	default:
		return []byte("null"), nil
	}
}

func (r *Ref) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*r = Ref{}
		return nil
	}
	switch data[0] {
	case '"':
		var id string
		if err := json.Unmarshal(data, &id); err != nil {
			return err
		}
		*r = Reference(id)
		return nil
	case '{':
		var obj struct {
			ServerID string `json:"_id"`
			ID       string `json:"id"`
			Name     string `json:"name"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		id := obj.ServerID
		if id == "" {
			id = obj.ID
		}
		*r = Embedded(id, obj.Name)
		return nil
	}
	return fmt.Errorf("ref: unexpected JSON %s", data)
}

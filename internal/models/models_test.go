package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestRefUnmarshalShapes(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantKind RefKind
		wantID   string
		wantName string
	}{
		{"null", `null`, RefUnset, "", ""},
		{"empty string", `""`, RefUnset, "", ""},
		{"reference", `"b1"`, RefReference, "b1", ""},
		{"embedded", `{"_id":"b1","name":"Centro"}`, RefEmbedded, "b1", "Centro"},
		{"embedded local id", `{"id":"b2","name":"Norte"}`, RefEmbedded, "b2", "Norte"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var r Ref
			if err := json.Unmarshal([]byte(tt.input), &r); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if r.Kind() != tt.wantKind || r.ID() != tt.wantID || r.Name() != tt.wantName {
				t.Errorf("got (%d,%q,%q), want (%d,%q,%q)", r.Kind(), r.ID(), r.Name(), tt.wantKind, tt.wantID, tt.wantName)
			}
		})
	}
}

func TestRefUnmarshalRejectsNumber(t *testing.T) {
	var r Ref
	if err := json.Unmarshal([]byte(`42`), &r); err == nil {
		t.Fatal("expected error for numeric ref")
	}
}

func TestRefMarshal(t *testing.T) {
	data, err := json.Marshal(struct {
		A Ref `json:"a"`
		B Ref `json:"b"`
		C Ref `json:"c"`
	}{Ref{}, Reference("p1"), Embedded("p2", "Tornillos SA")})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"a":null,"b":"p1","c":{"_id":"p2","name":"Tornillos SA"}}`
	if string(data) != want {
		t.Errorf("got %s, want %s", data, want)
	}
}

func TestRefWithIDKeepsShape(t *testing.T) {
	r := Embedded("temp-1", "Acme").WithID("real-1")
	if r.Kind() != RefEmbedded || r.ID() != "real-1" || r.Name() != "Acme" {
		t.Errorf("WithID embedded: got %+v", r)
	}
	if got := (Ref{}).WithID("x"); got.Kind() != RefReference || got.ID() != "x" {
		t.Errorf("WithID unset: got %+v", got)
	}
}

func TestOrderAcceptsServerID(t *testing.T) {
	raw := `{"_id":"o1","invoiceCode":"F-1","provider":{"_id":"p1","name":"Acme"},"user":{"_id":"u1","name":"Ana"},"branch":{"_id":"b1","name":"Centro"},"date":"2025-01-02","status":"pending","items":[{"productCode":"TOR001","productName":"Tornillo","quantity":50}]}`
	var o Order
	if err := json.Unmarshal([]byte(raw), &o); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if o.ID != "o1" {
		t.Errorf("ID: got %q, want o1", o.ID)
	}
	if o.Branch.ID() != "b1" || o.Provider.Name() != "Acme" {
		t.Errorf("refs: got branch %q provider %q", o.Branch.ID(), o.Provider.Name())
	}
	if o.TotalQuantity() != 50 {
		t.Errorf("TotalQuantity: got %d, want 50", o.TotalQuantity())
	}
}

func TestProviderBranchNameFromEmbedded(t *testing.T) {
	var p Provider
	if err := json.Unmarshal([]byte(`{"id":"p1","name":"Acme","branch":{"_id":"b1","name":"Centro"}}`), &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if p.BranchName != "Centro" {
		t.Errorf("BranchName: got %q, want Centro", p.BranchName)
	}
}

func TestTempIDs(t *testing.T) {
	a, b := NewTempID(), NewTempID()
	if !IsTempID(a) || !strings.HasPrefix(a, TempIDPrefix) {
		t.Errorf("NewTempID: %q lacks prefix", a)
	}
	if a == b {
		t.Errorf("NewTempID produced duplicate %q", a)
	}
	if IsTempID("64f1c2") {
		t.Error("IsTempID: server id reported as temporary")
	}
}

func TestTempInvoiceCode(t *testing.T) {
	now := time.UnixMilli(1735689600123)
	if got := TempInvoiceCode(now); got != "TEMP-600123" {
		t.Errorf("TempInvoiceCode: got %q, want TEMP-600123", got)
	}
}

func TestEntityKindCollection(t *testing.T) {
	if got := EntityBranch.Collection(); got != "branches" {
		t.Errorf("branch collection: got %q", got)
	}
	if EntityKind("widget").IsValid() {
		t.Error("unknown kind reported valid")
	}
}

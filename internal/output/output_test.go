package output

import (
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/x/ansi"
	"github.com/ferreteria/ordersync/internal/models"
	"github.com/ferreteria/ordersync/internal/store"
)

func sampleOrder() models.Order {
	return models.Order{
		ID:          "temp-1738300000000-abcd1234",
		InvoiceCode: "TEMP-000000",
		Provider:    models.Embedded("p1", "Tornillos SA"),
		User:        models.Embedded("u1", "Ana"),
		Branch:      models.Embedded("b1", "Centro"),
		Date:        "2025-01-31",
		Status:      models.OrderPending,
		Items: []models.OrderItem{
			{ProductCode: "T-100", ProductName: "Tornillo 3/8", Quantity: 40},
			{ProductCode: "A|2", ProductName: "Arandela", Quantity: 2},
		},
	}
}

func TestFormatAgo(t *testing.T) {
	now := time.Date(2025, 1, 31, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		then     time.Time
		expected string
	}{
		{now.Add(-5 * time.Minute), "5 minutes ago"},
		{now.Add(-3 * time.Hour), "3 hours ago"},
		{time.Time{}, "never"},
	}

	for _, tc := range tests {
		if got := FormatAgo(tc.then, now); got != tc.expected {
			t.Errorf("FormatAgo(%v) = %q, want %q", tc.then, got, tc.expected)
		}
	}
}

func TestFormatOrderStatus(t *testing.T) {
	for _, s := range []models.OrderStatus{models.OrderPending, models.OrderCompleted, models.OrderCancelled} {
		if got := FormatOrderStatus(s); !strings.Contains(got, string(s)) {
			t.Errorf("FormatOrderStatus(%q) = %q, should contain status", s, got)
		}
	}
	if got := FormatOrderStatus("weird"); got != "weird" {
		t.Errorf("FormatOrderStatus(unknown) = %q, want 'weird'", got)
	}
}

func TestFormatConnection(t *testing.T) {
	if got := FormatConnection(models.StatusOffline, true); !strings.Contains(got, "offline (manual)") {
		t.Errorf("FormatConnection manual = %q", got)
	}
	if got := FormatConnection("", false); !strings.Contains(got, "unknown") {
		t.Errorf("FormatConnection empty = %q", got)
	}
}

func TestFormatOrderShortMarksLocal(t *testing.T) {
	got := FormatOrderShort(sampleOrder())
	for _, want := range []string{"(local)", "TEMP-000000", "Tornillos SA", "2 items", "pending"} {
		if !strings.Contains(got, want) {
			t.Errorf("FormatOrderShort() = %q, missing %q", got, want)
		}
	}

	o := sampleOrder()
	o.ID = "srv-1"
	if got := FormatOrderShort(o); strings.Contains(got, "(local)") {
		t.Errorf("confirmed order marked local: %q", got)
	}
}

func TestFormatQueueItem(t *testing.T) {
	now := time.Date(2025, 1, 31, 12, 0, 0, 0, time.UTC)
	it := store.QueueItem{
		ID:        "order-CREATE-1",
		Operation: models.OpCreate,
		Entity:    models.EntityOrder,
		QueuedAt:  now.Add(-2 * time.Minute),
		Attempts:  1,
		LastError: strings.Repeat("x", 200),
	}
	got := FormatQueueItem(it, now)
	for _, want := range []string{"order-CREATE-1", "CREATE order", "2 minutes ago", "1 attempt", "…"} {
		if !strings.Contains(got, want) {
			t.Errorf("FormatQueueItem() = %q, missing %q", got, want)
		}
	}
	if strings.Contains(got, "1 attempts") {
		t.Errorf("FormatQueueItem() pluralized a single attempt: %q", got)
	}
}

func TestFormatQueueStats(t *testing.T) {
	if got := FormatQueueStats(store.QueueStats{Pending: 1200}); got != "1,200 pending" {
		t.Errorf("FormatQueueStats() = %q", got)
	}
	if got := FormatQueueStats(store.QueueStats{Pending: 1, Dead: 2}); !strings.Contains(got, "2 dead") {
		t.Errorf("FormatQueueStats() with dead = %q", got)
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("short", 10); got != "short" {
		t.Errorf("Truncate(short) = %q", got)
	}
	got := Truncate("a rather long error message", 10)
	if w := ansi.StringWidth(got); w > 10 {
		t.Errorf("Truncate width = %d, want <= 10 (%q)", w, got)
	}
	if !strings.HasSuffix(got, "…") {
		t.Errorf("Truncate(%q) missing ellipsis", got)
	}
}

func TestOrderMarkdown(t *testing.T) {
	md := OrderMarkdown(sampleOrder())
	for _, want := range []string{
		"# Order TEMP-000000",
		"waiting to sync",
		"| T-100 | Tornillo 3/8 | 40 |",
		`| A\|2 | Arandela | 2 |`,
		"**Total units:** 42",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("OrderMarkdown() missing %q:\n%s", want, md)
		}
	}
}

func TestRenderMarkdownWithWidth(t *testing.T) {
	if got, err := RenderMarkdownWithWidth("   ", 80); err != nil || got != "" {
		t.Fatalf("blank input: %q, %v", got, err)
	}
	got, err := RenderMarkdownWithWidth(OrderMarkdown(sampleOrder()), 80)
	if err != nil {
		t.Fatalf("RenderMarkdownWithWidth: %v", err)
	}
	if !strings.Contains(got, "Tornillos SA") {
		t.Errorf("rendered markdown missing provider:\n%s", got)
	}
}

func TestSectionHeader(t *testing.T) {
	if got := SectionHeader("items"); got != "\nITEMS:\n" {
		t.Errorf("SectionHeader(items) = %q", got)
	}
}

func TestIndentString(t *testing.T) {
	if got := IndentString("a\nb", 2); got != "  a\n  b" {
		t.Errorf("IndentString() = %q", got)
	}
	if got := IndentString("", 4); got != "" {
		t.Errorf("IndentString(empty) = %q", got)
	}
}

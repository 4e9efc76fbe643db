package input

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ferreteria/ordersync/internal/models"
	"github.com/spf13/pflag"
)

func TestParseItem(t *testing.T) {
	tests := []struct {
		spec string
		want models.OrderItem
	}{
		{"T-100:Tornillo 3/8:40", models.OrderItem{ProductCode: "T-100", ProductName: "Tornillo 3/8", Quantity: 40}},
		{" C1 : Cable 2:1 : 3 ", models.OrderItem{ProductCode: "C1", ProductName: "Cable 2:1", Quantity: 3}},
	}
	for _, tt := range tests {
		got, err := ParseItem(tt.spec)
		if err != nil {
			t.Errorf("ParseItem(%q): %v", tt.spec, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseItem(%q) = %+v, want %+v", tt.spec, got, tt.want)
		}
	}
}

func TestParseItemErrors(t *testing.T) {
	for _, spec := range []string{"", "T-100", "T-100:40", ":name:1", "c::1", "c:n:zero", "c:n:0", "c:n:-2"} {
		if _, err := ParseItem(spec); err == nil {
			t.Errorf("ParseItem(%q): expected error", spec)
		}
	}
}

func TestReadLinesFromReader(t *testing.T) {
	got := ReadLinesFromReader(strings.NewReader("a:b:1\n\n# comment\n  c:d:2  \n"))
	if len(got) != 2 || got[0] != "a:b:1" || got[1] != "c:d:2" {
		t.Errorf("ReadLinesFromReader() = %q", got)
	}
}

func TestItemsFlagWithFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "items.txt")
	if err := os.WriteFile(path, []byte("F1:Foco LED:10\nF2:Foco halógeno:5\n"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	var items ItemsFlag
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.Var(&items, "item", "order item")
	if err := fs.Parse([]string{"--item", "T-1:Tornillo:4", "--item", "@" + path}); err != nil {
		t.Fatalf("Parse: %v", err)
	}

	got, err := items.Items()
	if err != nil {
		t.Fatalf("Items: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d items, want 3: %+v", len(got), got)
	}
	if got[2].ProductName != "Foco halógeno" || got[2].Quantity != 5 {
		t.Errorf("file item = %+v", got[2])
	}
}

func TestItemsFlagRejectsBadSpec(t *testing.T) {
	var items ItemsFlag
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.SetOutput(&strings.Builder{})
	fs.Var(&items, "item", "order item")
	if err := fs.Parse([]string{"--item", "oops"}); err == nil {
		t.Error("expected parse error for malformed item")
	}
}

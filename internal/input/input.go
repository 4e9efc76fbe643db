// Package input provides helpers for reading flag values from stdin and files
// (@file syntax) and for parsing order item specs.
package input

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/ferreteria/ordersync/internal/models"
	"github.com/ferreteria/ordersync/internal/output"
	"github.com/spf13/pflag"
)

// ExpandFlagValues expands flag values that use - (stdin) or @file syntax.
// Returns the expanded values and whether stdin was consumed.
func ExpandFlagValues(values []string, stdinUsed bool) ([]string, bool) {
	var result []string
	for _, v := range values {
		if v == "-" {
			if stdinUsed {
				output.Warning("stdin already used, ignoring additional - flag")
				continue
			}
			stdinUsed = true
			result = append(result, ReadLinesFromReader(os.Stdin)...)
		} else if strings.HasPrefix(v, "@") {
			path := strings.TrimPrefix(v, "@")
			file, err := os.Open(path)
			if err != nil {
				output.Warning("failed to read %s: %v", path, err)
				continue
			}
			result = append(result, ReadLinesFromReader(file)...)
			file.Close()
		} else {
			result = append(result, v)
		}
	}
	return result, stdinUsed
}

// ReadLinesFromReader reads non-empty lines from a reader, skipping # comments.
func ReadLinesFromReader(r io.Reader) []string {
	var lines []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" && !strings.HasPrefix(line, "#") {
			lines = append(lines, line)
		}
	}
	return lines
}

// ParseItem parses "CODE:NAME:QTY". The name may itself contain colons.
func ParseItem(spec string) (models.OrderItem, error) {
	first := strings.Index(spec, ":")
	last := strings.LastIndex(spec, ":")
	if first < 0 || first == last {
		return models.OrderItem{}, fmt.Errorf("item %q: want CODE:NAME:QTY", spec)
	}
	code := strings.TrimSpace(spec[:first])
	name := strings.TrimSpace(spec[first+1 : last])
	qty, err := strconv.Atoi(strings.TrimSpace(spec[last+1:]))
	if err != nil {
		return models.OrderItem{}, fmt.Errorf("item %q: quantity: %w", spec, err)
	}
	if code == "" || name == "" {
		return models.OrderItem{}, fmt.Errorf("item %q: code and name are required", spec)
	}
	if qty <= 0 {
		return models.OrderItem{}, fmt.Errorf("item %q: quantity must be positive", spec)
	}
	return models.OrderItem{ProductCode: code, ProductName: name, Quantity: qty}, nil
}

// ParseItems parses every spec, stopping at the first invalid one.
func ParseItems(specs []string) ([]models.OrderItem, error) {
	items := make([]models.OrderItem, 0, len(specs))
	for _, s := range specs {
		it, err := ParseItem(s)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, nil
}

// ItemsFlag collects repeated --item values. Specs are kept raw so that
// - and @file can be expanded after flag parsing.
type ItemsFlag struct {
	Specs []string
}

var _ pflag.Value = (*ItemsFlag)(nil)

func (f *ItemsFlag) String() string { return strings.Join(f.Specs, ",") }

func (f *ItemsFlag) Set(v string) error {
	if v != "-" && !strings.HasPrefix(v, "@") {
		if _, err := ParseItem(v); err != nil {
			return err
		}
	}
	f.Specs = append(f.Specs, v)
	return nil
}

func (f *ItemsFlag) Type() string { return "CODE:NAME:QTY" }

// Items expands and parses the collected specs.
func (f *ItemsFlag) Items() ([]models.OrderItem, error) {
	specs, _ := ExpandFlagValues(f.Specs, false)
	return ParseItems(specs)
}

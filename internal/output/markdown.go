package output

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/ferreteria/ordersync/internal/models"
	"golang.org/x/term"
)

const (
	defaultMarkdownWidth = 80
	minMarkdownWidth     = 20
)

// TerminalWidth returns the current terminal width or a fallback when unavailable.
func TerminalWidth(fallback int) int {
	if fallback <= 0 {
		fallback = defaultMarkdownWidth
	}

	if width, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && width > 0 {
		return width
	}

	if cols := os.Getenv("COLUMNS"); cols != "" {
		if parsed, err := strconv.Atoi(cols); err == nil && parsed > 0 {
			return parsed
		}
	}

	return fallback
}

// IsTerminal reports whether stdin and stdout are attached to a terminal.
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

// OrderMarkdown renders an order as a markdown document.
func OrderMarkdown(o models.Order) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Order %s\n\n", o.InvoiceCode)
	if models.IsTempID(o.ID) {
		sb.WriteString("> Created offline, waiting to sync.\n\n")
	}
	fmt.Fprintf(&sb, "- **ID:** %s\n", o.ID)
	fmt.Fprintf(&sb, "- **Date:** %s\n", o.Date)
	fmt.Fprintf(&sb, "- **Status:** %s\n", o.Status)
	fmt.Fprintf(&sb, "- **Provider:** %s\n", o.Provider.Label())
	fmt.Fprintf(&sb, "- **Branch:** %s\n", o.Branch.Label())
	fmt.Fprintf(&sb, "- **Placed by:** %s\n", o.User.Label())

	sb.WriteString("\n## Items\n\n")
	sb.WriteString("| Code | Product | Qty |\n|---|---|---:|\n")
	for _, it := range o.Items {
		fmt.Fprintf(&sb, "| %s | %s | %d |\n", escapeCell(it.ProductCode), escapeCell(it.ProductName), it.Quantity)
	}
	fmt.Fprintf(&sb, "\n**Total units:** %d\n", o.TotalQuantity())
	return sb.String()
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

// RenderMarkdown renders markdown using Glamour with terminal-aware wrapping.
func RenderMarkdown(text string) (string, error) {
	return RenderMarkdownWithWidth(text, TerminalWidth(defaultMarkdownWidth))
}

// RenderMarkdownWithWidth renders markdown using Glamour with explicit wrapping.
func RenderMarkdownWithWidth(text string, width int) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", nil
	}
	if width < minMarkdownWidth {
		width = minMarkdownWidth
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", err
	}

	rendered, err := renderer.Render(text)
	if err != nil {
		return "", err
	}

	return strings.TrimRight(rendered, "\n"), nil
}

// Package output provides styled terminal output helpers (success, error,
// warning, record formatting) using lipgloss.
package output

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/dustin/go-humanize"
	"github.com/ferreteria/ordersync/internal/models"
	"github.com/ferreteria/ordersync/internal/store"
)

var (
	// Styles
	titleStyle   = lipgloss.NewStyle().Bold(true)
	subtleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	tempStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))
	orderStyles  = map[models.OrderStatus]lipgloss.Style{
		models.OrderPending:   lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		models.OrderCompleted: lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		models.OrderCancelled: lipgloss.NewStyle().Foreground(lipgloss.Color("242")),
	}
	connectionStyles = map[models.ConnectionStatus]lipgloss.Style{
		models.StatusOnline:   lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		models.StatusOffline:  lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		models.StatusChecking: lipgloss.NewStyle().Foreground(lipgloss.Color("45")),
	}
)

// Success prints a success message
func Success(format string, args ...interface{}) {
	fmt.Println(successStyle.Render(fmt.Sprintf(format, args...)))
}

// Error prints an error message
func Error(format string, args ...interface{}) {
	fmt.Println(errorStyle.Render("ERROR: " + fmt.Sprintf(format, args...)))
}

// Warning prints a warning message
func Warning(format string, args ...interface{}) {
	fmt.Println(warningStyle.Render("Warning: " + fmt.Sprintf(format, args...)))
}

// Info prints an info message
func Info(format string, args ...interface{}) {
	fmt.Println(fmt.Sprintf(format, args...))
}

// JSON outputs data as JSON
func JSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

// Error codes for structured JSON output
const (
	ErrCodeNotFound     = "not_found"
	ErrCodeInvalidInput = "invalid_input"
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeUnreachable  = "unreachable"
	ErrCodeRemoteError  = "remote_error"
	ErrCodeStoreError   = "store_error"
	ErrCodeNoSession    = "no_session"
	ErrCodeImmutable    = "immutable"
)

// JSONError outputs an error as JSON
func JSONError(code, message string) {
	data, _ := json.Marshal(map[string]any{
		"error": map[string]string{"code": code, "message": message},
	})
	fmt.Println(string(data))
}

// FormatOrderStatus formats an order status with color
func FormatOrderStatus(s models.OrderStatus) string {
	style, ok := orderStyles[s]
	if !ok {
		return string(s)
	}
	return style.Render(fmt.Sprintf("[%s]", s))
}

// FormatConnection renders the connection state, noting a manual override.
func FormatConnection(s models.ConnectionStatus, manual bool) string {
	label := string(s)
	if label == "" {
		label = "unknown"
	}
	if manual {
		label += " (manual)"
	}
	if style, ok := connectionStyles[s]; ok {
		return style.Render("● " + label)
	}
	return "○ " + label
}

// FormatID marks identifiers that have not been confirmed by the server.
func FormatID(id string) string {
	if models.IsTempID(id) {
		return tempStyle.Render(id + " (local)")
	}
	return titleStyle.Render(id)
}

// FormatOrderShort formats an order in one line
func FormatOrderShort(o models.Order) string {
	parts := []string{
		FormatID(o.ID),
		o.InvoiceCode,
		o.Date,
		o.Provider.Label(),
		subtleStyle.Render(fmt.Sprintf("%d items", len(o.Items))),
		FormatOrderStatus(o.Status),
	}
	return strings.Join(parts, "  ")
}

// FormatProviderShort formats a provider in one line
func FormatProviderShort(p models.Provider) string {
	branch := p.BranchName
	if branch == "" {
		branch = p.Branch.Label()
	}
	return strings.Join([]string{FormatID(p.ID), p.Name, subtleStyle.Render(branch)}, "  ")
}

// FormatBranchShort formats a branch in one line
func FormatBranchShort(b models.Branch) string {
	return FormatID(b.ID) + "  " + b.Name
}

// FormatUserShort formats a user in one line
func FormatUserShort(u models.User) string {
	parts := []string{FormatID(u.ID), u.Name, u.Email, subtleStyle.Render(string(u.Role))}
	if u.Branch.IsSet() {
		parts = append(parts, subtleStyle.Render(u.Branch.Label()))
	}
	return strings.Join(parts, "  ")
}

// FormatQueueItem formats one queued mutation relative to now.
func FormatQueueItem(it store.QueueItem, now time.Time) string {
	parts := []string{
		titleStyle.Render(it.ID),
		fmt.Sprintf("%s %s", it.Operation, it.Entity),
		subtleStyle.Render(FormatAgo(it.QueuedAt, now)),
	}
	if it.Attempts > 0 {
		parts = append(parts, warningStyle.Render(fmt.Sprintf("%d %s", it.Attempts, plural(it.Attempts, "attempt"))))
	}
	if it.LastError != "" {
		parts = append(parts, errorStyle.Render(Truncate(it.LastError, 60)))
	}
	return strings.Join(parts, "  ")
}

// FormatQueueStats summarizes queue counts.
func FormatQueueStats(s store.QueueStats) string {
	line := fmt.Sprintf("%s pending", humanize.Comma(int64(s.Pending)))
	if s.Dead > 0 {
		line += ", " + errorStyle.Render(fmt.Sprintf("%s dead", humanize.Comma(int64(s.Dead))))
	}
	return line
}

// FormatAgo formats t relative to now ("5 minutes ago").
func FormatAgo(t, now time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return humanize.RelTime(t, now, "ago", "from now")
}

// Truncate shortens s to width terminal cells, ending in an ellipsis.
func Truncate(s string, width int) string {
	if ansi.StringWidth(s) <= width {
		return s
	}
	return ansi.Truncate(s, width, "…")
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}

// SectionHeader returns a formatted section header for CLI output
// e.g., "\nITEMS:\n"
func SectionHeader(title string) string {
	return fmt.Sprintf("\n%s:\n", strings.ToUpper(title))
}

// IndentString indents each line in a string by the specified number of spaces
func IndentString(s string, spaces int) string {
	if s == "" {
		return ""
	}
	indent := strings.Repeat(" ", spaces)
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = indent + line
	}
	return strings.Join(lines, "\n")
}

package monitor

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/x/ansi"
	"github.com/ferreteria/ordersync/internal/models"
	"github.com/ferreteria/ordersync/internal/output"
)

func (m Model) renderView() string {
	width := m.Width
	if width == 0 {
		width = 80
	}
	if width < MinWidth {
		return "Terminal too narrow"
	}
	inner := width - 4

	var sb strings.Builder
	sb.WriteString(headerStyle.Render("ferreteria sync monitor"))
	sb.WriteString("\n\n")

	var body []string
	body = append(body, m.statusLine())
	body = append(body, fmt.Sprintf("Queue: %s", output.FormatQueueStats(m.Stats)))
	body = append(body, m.lastSyncLine())
	if m.Err != nil {
		body = append(body, failStyle.Render("Error: "+m.Err.Error()))
	}
	for i, line := range body {
		body[i] = ansi.Truncate(line, inner, "…")
	}
	sb.WriteString(panelStyle.Width(inner).Render(strings.Join(body, "\n")))
	sb.WriteString("\n")

	sb.WriteString(m.pendingPanel(inner))
	sb.WriteString("\n")

	if m.Flash != "" {
		sb.WriteString(flashStyle.Render(m.Flash))
		sb.WriteString("\n")
	}
	sb.WriteString(m.help.View(keys))
	return sb.String()
}

func (m Model) statusLine() string {
	label := string(m.Status)
	if label == "" {
		label = "unknown"
	}
	if m.Manual {
		label += " (manual)"
	}
	if style, ok := statusStyles[m.Status]; ok {
		label = style.Render(label)
	}
	line := "Connection: " + label
	if m.Status == models.StatusChecking || m.Draining {
		line = m.spinner.View() + " " + line
	}
	if m.Draining {
		line += "  " + checkingStyle.Render("syncing…")
	}
	return line
}

func (m Model) lastSyncLine() string {
	if !m.Synced {
		return "Last sync: " + subtleStyle.Render("none since start")
	}
	result := okStyle.Render("ok")
	if !m.LastOK {
		result = failStyle.Render("incomplete")
	}
	return fmt.Sprintf("Last sync: %s %s", result, subtleStyle.Render(output.FormatAgo(m.LastSync, m.now())))
}

func (m Model) pendingPanel(inner int) string {
	if len(m.Pending) == 0 {
		return panelStyle.Width(inner).Render(subtleStyle.Render("Nothing waiting to sync"))
	}
	limit := len(m.Pending)
	if m.Height > 0 {
		// header, status panel, help and borders
		if room := m.Height - 12; room < limit {
			limit = max(room, 1)
		}
	}
	now := m.now()
	lines := []string{fmt.Sprintf("Pending (%d)", len(m.Pending))}
	for _, it := range m.Pending[:limit] {
		lines = append(lines, ansi.Truncate(output.FormatQueueItem(it, now), inner, "…"))
	}
	if limit < len(m.Pending) {
		lines = append(lines, subtleStyle.Render(fmt.Sprintf("… and %d more", len(m.Pending)-limit)))
	}
	return panelStyle.Width(inner).Render(strings.Join(lines, "\n"))
}

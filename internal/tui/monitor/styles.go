package monitor

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/ferreteria/ordersync/internal/models"
)

var (
	mutedColor   = lipgloss.Color("241")
	successColor = lipgloss.Color("42")
	warningColor = lipgloss.Color("214")
	errorColor   = lipgloss.Color("196")

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Background(lipgloss.Color("237")).
			Foreground(lipgloss.Color("255")).
			Padding(0, 1)

	subtleStyle   = lipgloss.NewStyle().Foreground(mutedColor)
	okStyle       = lipgloss.NewStyle().Foreground(successColor)
	failStyle     = lipgloss.NewStyle().Foreground(errorColor)
	flashStyle    = lipgloss.NewStyle().Foreground(warningColor)
	checkingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("45"))

	statusStyles = map[models.ConnectionStatus]lipgloss.Style{
		models.StatusOnline:   okStyle.Bold(true),
		models.StatusOffline:  failStyle.Bold(true),
		models.StatusChecking: checkingStyle.Bold(true),
	}
)

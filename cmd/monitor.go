package cmd

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/ferreteria/ordersync/internal/tui/monitor"
	"github.com/spf13/cobra"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Live view of connectivity and the sync queue",
	Long: `Launch a live-updating TUI showing the connection status, queue depth,
the last sync result and the pending changes.

Key bindings:
  o  Toggle manual offline
  s  Sync now
  r  Probe connectivity
  q  Quit`,
	GroupID: "sync",
	RunE: func(cmd *cobra.Command, args []string) error {
		refresh, _ := cmd.Flags().GetDuration("refresh")
		probe, _ := cmd.Flags().GetDuration("interval")

		a, err := openApp(cmd.Context(), appOptions{interval: probe})
		if err != nil {
			return err
		}
		defer a.close()

		model := monitor.NewModel(tuiBackend{Monitor: a.monitor, Controller: a.sync, store: a.store}, refresh)
		p := tea.NewProgram(model, tea.WithAltScreen())
		listener := monitor.Listener(p.Send)
		a.registry.Add(listener)
		defer a.registry.Remove(listener)

		if _, err := p.Run(); err != nil {
			return fmt.Errorf("error running monitor: %w", err)
		}
		return nil
	},
}

func init() {
	monitorCmd.Flags().Duration("refresh", 2*time.Second, "screen refresh interval")
	monitorCmd.Flags().Duration("interval", 0, "connectivity probe interval (default from config)")
	rootCmd.AddCommand(monitorCmd)
}

package cmd

import (
	"fmt"
	"time"

	"github.com/ferreteria/ordersync/internal/models"
	"github.com/ferreteria/ordersync/internal/output"
	"github.com/ferreteria/ordersync/internal/store"
	"github.com/spf13/cobra"
)

type statusReport struct {
	Status        models.ConnectionStatus `json:"status"`
	ManualOffline bool                    `json:"manualOffline"`
	Queue         store.QueueStats        `json:"queue"`
	User          string                  `json:"user,omitempty"`
	Branch        string                  `json:"branch,omitempty"`
	OldestPending *time.Time              `json:"oldestPending,omitempty"`
}

var statusCmd = &cobra.Command{
	Use:     "status",
	Short:   "Show connection status and queue depth",
	GroupID: "core",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			ctx := cmd.Context()
			stats, err := a.store.QueueStats(ctx)
			if err != nil {
				return err
			}
			report := statusReport{
				Status:        a.monitor.Status(),
				ManualOffline: a.monitor.IsManualOffline(),
				Queue:         stats,
				User:          a.session.Email,
				Branch:        a.session.BranchName,
			}
			pending, err := a.sync.Pending(ctx)
			if err != nil {
				return err
			}
			if len(pending) > 0 {
				oldest := pending[0].QueuedAt
				report.OldestPending = &oldest
			}

			return printJSONOr(report, func() {
				fmt.Printf("Connection: %s\n", output.FormatConnection(report.Status, report.ManualOffline))
				fmt.Printf("Queue:      %s\n", output.FormatQueueStats(stats))
				if report.OldestPending != nil {
					fmt.Printf("Oldest:     %s\n", output.FormatAgo(*report.OldestPending, time.Now()))
				}
				if report.User == "" {
					fmt.Println("Session:    not logged in")
				} else {
					branch := report.Branch
					if branch == "" {
						branch = "all branches"
					}
					fmt.Printf("Session:    %s (%s)\n", report.User, branch)
				}
			})
		})
	},
}

var offlineCmd = &cobra.Command{
	Use:       "offline [toggle|on|off]",
	Short:     "Switch the manual offline override",
	Long:      `With no argument, toggles the override. While on, nothing is sent to the backend and every change is queued.`,
	GroupID:   "core",
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{"toggle", "on", "off"},
	RunE: func(cmd *cobra.Command, args []string) error {
		mode := "toggle"
		if len(args) == 1 {
			mode = args[0]
		}
		return withApp(cmd.Context(), func(a *app) error {
			ctx := cmd.Context()
			var err error
			switch mode {
			case "toggle":
				_, err = a.monitor.ToggleManualOffline(ctx)
			case "on":
				err = a.monitor.SetManualOffline(ctx, true)
			case "off":
				err = a.monitor.SetManualOffline(ctx, false)
			default:
				return fmt.Errorf("unknown mode %q (use toggle, on or off)", mode)
			}
			if err != nil {
				return err
			}
			manual := a.monitor.IsManualOffline()
			return printJSONOr(map[string]any{"manualOffline": manual, "status": a.monitor.Status()}, func() {
				if manual {
					output.Success("Working offline; changes will be queued")
				} else {
					output.Success("Manual offline disabled: %s", output.FormatConnection(a.monitor.Status(), false))
				}
			})
		})
	},
}

func init() {
	rootCmd.AddCommand(statusCmd, offlineCmd)
}

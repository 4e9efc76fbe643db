package cmd

import (
	"fmt"
	"time"

	"github.com/ferreteria/ordersync/internal/output"
	"github.com/ferreteria/ordersync/internal/store"
	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	Short:   "Replay queued changes now",
	GroupID: "sync",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			ctx := cmd.Context()
			// Let a replay started by the opening probe finish first.
			a.monitor.Settle()
			if !a.sync.ForceSyncNow(ctx) {
				return fmt.Errorf("cannot sync: %s", a.monitor.Status())
			}
			stats, err := a.store.QueueStats(ctx)
			if err != nil {
				return err
			}
			return printJSONOr(stats, func() {
				if stats.Pending == 0 && stats.Dead == 0 {
					output.Success("Everything synced")
					return
				}
				output.Warning("%s left in the queue", output.FormatQueueStats(stats))
			})
		})
	},
}

var syncQueueCmd = &cobra.Command{
	Use:   "queue",
	Short: "List changes waiting to be replayed",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			items, err := a.sync.Pending(cmd.Context())
			if err != nil {
				return err
			}
			return printQueue(items, "Nothing waiting to sync")
		})
	},
}

var syncDeadCmd = &cobra.Command{
	Use:   "dead",
	Short: "List changes that gave up after too many attempts",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			items, err := a.sync.DeadLetters(cmd.Context())
			if err != nil {
				return err
			}
			return printQueue(items, "No dead letters")
		})
	},
}

var syncRetryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Move dead letters back to the pending queue",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			n, err := a.sync.RetryDeadLetters(cmd.Context())
			if err != nil {
				return err
			}
			return printJSONOr(map[string]int64{"retried": n}, func() {
				output.Success("%d item(s) queued again", n)
			})
		})
	},
}

var syncPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete dead letters",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			n, err := a.sync.PurgeDeadLetters(cmd.Context())
			if err != nil {
				return err
			}
			return printJSONOr(map[string]int64{"purged": n}, func() {
				output.Success("%d dead letter(s) deleted", n)
			})
		})
	},
}

type queueEntry struct {
	ID        string    `json:"id"`
	Operation string    `json:"operation"`
	Entity    string    `json:"entity"`
	QueuedAt  time.Time `json:"queuedAt"`
	Attempts  int       `json:"attempts"`
	LastError string    `json:"lastError,omitempty"`
}

func printQueue(items []store.QueueItem, empty string) error {
	if jsonOutput {
		out := make([]queueEntry, 0, len(items))
		for _, it := range items {
			out = append(out, queueEntry{
				ID:        it.ID,
				Operation: string(it.Operation),
				Entity:    string(it.Entity),
				QueuedAt:  it.QueuedAt,
				Attempts:  it.Attempts,
				LastError: it.LastError,
			})
		}
		return output.JSON(out)
	}
	if len(items) == 0 {
		fmt.Println(empty)
		return nil
	}
	now := time.Now()
	for _, it := range items {
		fmt.Println(output.FormatQueueItem(it, now))
	}
	return nil
}

func init() {
	syncCmd.AddCommand(syncQueueCmd, syncDeadCmd, syncRetryCmd, syncPurgeCmd)
	rootCmd.AddCommand(syncCmd)
}

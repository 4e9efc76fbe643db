package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/ferreteria/ordersync/internal/metrics"
	"github.com/ferreteria/ordersync/internal/models"
	"github.com/ferreteria/ordersync/internal/notify"
	"github.com/spf13/cobra"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Keep probing and replay the queue whenever the backend is reachable",
	Long: `Runs in the foreground until interrupted. Every transition to online
drains the queue; --sync-every also retries on a schedule while online.
With --metrics-addr, Prometheus metrics are served on /metrics.`,
	GroupID: "sync",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		addr, _ := cmd.Flags().GetString("metrics-addr")
		probe, _ := cmd.Flags().GetDuration("interval")
		every, _ := cmd.Flags().GetDuration("sync-every")

		var collector *metrics.Collector
		if addr != "" {
			collector = metrics.NewCollector("ordersync")
		}
		a, err := openApp(ctx, appOptions{interval: probe, metrics: collector})
		if err != nil {
			return err
		}
		defer a.close()

		a.registry.Add(&notify.Funcs{
			Status: func(s models.ConnectionStatus) { slog.Info("daemon: status", "status", s) },
			Complete: func(ok bool) {
				slog.Info("daemon: sync finished", "success", ok)
			},
		})

		if collector != nil {
			srv := &http.Server{Addr: addr, Handler: metricsMux(collector), ReadHeaderTimeout: 5 * time.Second}
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					slog.Error("daemon: metrics server", "addr", addr, "err", err)
				}
			}()
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(shutdownCtx)
			}()
			slog.Info("daemon: serving metrics", "addr", addr)
		}

		slog.Info("daemon: started", "status", a.monitor.Status())
		var tick <-chan time.Time
		if every > 0 {
			t := time.NewTicker(every)
			defer t.Stop()
			tick = t.C
		}
		for {
			select {
			case <-ctx.Done():
				slog.Info("daemon: stopping")
				return nil
			case <-tick:
				if a.monitor.Status() == models.StatusOnline && !a.sync.IsDraining() {
					a.sync.Drain(ctx)
				}
			}
		}
	},
}

func metricsMux(c *metrics.Collector) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func init() {
	daemonCmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9464)")
	daemonCmd.Flags().Duration("interval", 0, "connectivity probe interval (default from config)")
	daemonCmd.Flags().Duration("sync-every", 5*time.Minute, "retry the queue on this schedule while online (0 disables)")
	rootCmd.AddCommand(daemonCmd)
}

package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/ferreteria/ordersync/internal/output"
	"github.com/ferreteria/ordersync/internal/remote"
	"github.com/ferreteria/ordersync/internal/services"
	"github.com/ferreteria/ordersync/internal/suggest"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var (
	version string

	jsonOutput bool
	verbose    bool
	logJSON    bool
	dataDir    string
)

// SetVersion sets the version string
func SetVersion(v string) {
	version = v
}

var rootCmd = &cobra.Command{
	Use:   "ferreteria",
	Short: "Offline-first purchase order client",
	Long: `ferreteria keeps providers, orders, branches and users in a local store,
talks to the backend while online and queues every change made offline for
replay once the connection returns.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging()
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		reportError(err)
		os.Exit(1)
	}
}

func setupLogging() {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if logJSON {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// reportError prints err in the selected output mode.
func reportError(err error) {
	if jsonOutput {
		output.JSONError(errorCode(err), err.Error())
		return
	}
	output.Error("%v", err)
}

// errorCode maps an error to its structured JSON code.
func errorCode(err error) string {
	switch {
	case errors.Is(err, services.ErrNotFound), errors.Is(err, remote.ErrNotFound):
		return output.ErrCodeNotFound
	case errors.Is(err, services.ErrInvalid):
		return output.ErrCodeInvalidInput
	case errors.Is(err, services.ErrNoSession), errors.Is(err, services.ErrNoBranch):
		return output.ErrCodeNoSession
	case errors.Is(err, services.ErrOrderImmutable):
		return output.ErrCodeImmutable
	case errors.Is(err, remote.ErrUnauthorized), errors.Is(err, remote.ErrForbidden):
		return output.ErrCodeUnauthorized
	case remote.IsUnreachable(err):
		return output.ErrCodeUnreachable
	case remote.StatusOf(err) > 0:
		return output.ErrCodeRemoteError
	}
	return output.ErrCodeStoreError
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.BoolVar(&jsonOutput, "json", false, "machine-readable JSON output")
	pf.BoolVarP(&verbose, "verbose", "v", false, "debug logging on stderr")
	pf.BoolVar(&logJSON, "log-json", false, "log as JSON instead of text")
	pf.StringVar(&dataDir, "data-dir", "", "local store directory (default ~/.local/share/ferreteria)")

	rootCmd.AddGroup(
		&cobra.Group{ID: "core", Title: "Core Commands:"},
		&cobra.Group{ID: "sync", Title: "Sync Commands:"},
		&cobra.Group{ID: "system", Title: "System Commands:"},
	)
	rootCmd.SetHelpCommandGroupID("system")
	rootCmd.SetCompletionCommandGroupID("system")
	rootCmd.SetFlagErrorFunc(flagError)
}

// flagError adds a hint or the closest known flag to unknown-flag errors.
func flagError(cmd *cobra.Command, err error) error {
	name, ok := strings.CutPrefix(err.Error(), "unknown flag: ")
	if !ok {
		return err
	}
	if hint := suggest.FlagHint(name); hint != "" {
		return fmt.Errorf("%w (hint: %s)", err, hint)
	}
	var known []string
	cmd.Flags().VisitAll(func(f *pflag.Flag) { known = append(known, "--"+f.Name) })
	if near := suggest.Closest(name, known); len(near) > 0 {
		return fmt.Errorf("%w (did you mean %s?)", err, strings.Join(near, ", "))
	}
	return err
}

// printJSONOr prints v as JSON in --json mode, otherwise runs text.
func printJSONOr(v any, text func()) error {
	if jsonOutput {
		return output.JSON(v)
	}
	text()
	return nil
}

func exactID(name string) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != 1 {
			return fmt.Errorf("%w: %s requires exactly one %s id", services.ErrInvalid, cmd.CommandPath(), name)
		}
		return nil
	}
}

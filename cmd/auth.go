package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ferreteria/ordersync/internal/config"
	"github.com/ferreteria/ordersync/internal/output"
	"github.com/ferreteria/ordersync/internal/remote"
	"github.com/ferreteria/ordersync/internal/services"
	"github.com/spf13/cobra"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in and store credentials",
	Long: `Signs in with --email and --password against the backend, or stores an
existing --token together with the user it belongs to (--user-json, the
"user" object of a login response).`,
	GroupID: "system",
	RunE: func(cmd *cobra.Command, args []string) error {
		token := flagString(cmd, "token")
		if token != "" {
			return storeToken(token, flagString(cmd, "user-json"))
		}

		email := flagString(cmd, "email")
		if email == "" {
			return fmt.Errorf("%w: --email or --token is required", services.ErrInvalid)
		}
		password := flagString(cmd, "password")
		if password == "" {
			pw, err := promptPassword("Password for " + email)
			if err != nil {
				return err
			}
			password = pw
		}

		client := remote.New(config.APIURL(), remote.StaticToken(""))
		resp, err := client.Login(cmd.Context(), email, password)
		if err != nil {
			return fmt.Errorf("login: %w", err)
		}
		return saveSession(resp.AccessToken, services.SessionFromAuth(resp.User))
	},
}

func storeToken(token, userJSON string) error {
	if userJSON == "" {
		return fmt.Errorf("%w: --user-json is required with --token", services.ErrInvalid)
	}
	var u remote.AuthUser
	if err := json.Unmarshal([]byte(userJSON), &u); err != nil {
		return fmt.Errorf("%w: --user-json: %v", services.ErrInvalid, err)
	}
	if u.ID == "" {
		return fmt.Errorf("%w: --user-json has no id", services.ErrInvalid)
	}
	return saveSession(token, services.SessionFromAuth(u))
}

func saveSession(token string, sess services.Session) error {
	if err := config.SaveAuth(credentialsFromSession(token, sess, time.Now())); err != nil {
		return err
	}
	return printJSONOr(sess, func() {
		branch := sess.BranchName
		if branch == "" {
			branch = "all branches"
		}
		output.Success("Logged in as %s (%s, %s)", sess.Email, sess.Role, branch)
	})
}

var logoutCmd = &cobra.Command{
	Use:     "logout",
	Short:   "Forget credentials and wipe local data",
	Long:    `Removes stored credentials and clears the local store, including changes that were never synced.`,
	GroupID: "system",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			ctx := cmd.Context()
			// A replay started by the opening probe gets to finish first.
			a.monitor.Settle()
			if stats, err := a.store.QueueStats(ctx); err == nil && stats.Pending > 0 {
				slog.Warn("logout: discarding unsynced changes", "pending", stats.Pending)
			}
			if err := a.store.ClearAll(ctx); err != nil {
				return fmt.Errorf("clear local store: %w", err)
			}
			a.remote.InvalidateCache()
			if err := a.sync.ResetRemap(ctx); err != nil {
				return err
			}
			if err := config.ClearAuth(); err != nil {
				return err
			}
			return printJSONOr(map[string]bool{"loggedOut": true}, func() {
				output.Success("Logged out; local data cleared")
			})
		})
	},
}

func init() {
	loginCmd.Flags().String("email", "", "account email")
	loginCmd.Flags().String("password", "", "account password (prompted when omitted)")
	loginCmd.Flags().String("token", "", "existing access token")
	loginCmd.Flags().String("user-json", "", "user object matching --token")
	rootCmd.AddCommand(loginCmd, logoutCmd)
}

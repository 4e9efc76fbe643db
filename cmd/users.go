package cmd

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/ferreteria/ordersync/internal/models"
	"github.com/ferreteria/ordersync/internal/output"
	"github.com/ferreteria/ordersync/internal/services"
	"github.com/spf13/cobra"
)

var usersCmd = &cobra.Command{
	Use:     "users",
	Aliases: []string{"user"},
	Short:   "Manage operator accounts",
	GroupID: "core",
}

var usersListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List users",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			users, err := a.users.List(cmd.Context())
			if err != nil {
				return err
			}
			return printList(users, output.FormatUserShort, "No users")
		})
	},
}

var usersSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Find users by name or email",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			users, err := a.users.Search(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printList(users, output.FormatUserShort, "No matching users")
		})
	},
}

var usersShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one user",
	Args:  exactID("user"),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			u, err := a.users.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSONOr(u, func() { fmt.Println(output.FormatUserShort(*u)) })
		})
	},
}

var usersCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Add a user",
	Long:  `Adds a user. Role "user" requires --branch. Without --password on a terminal, the password is prompted for.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		in := services.NewUser{
			Email:    flagString(cmd, "email"),
			Name:     flagString(cmd, "name"),
			Password: flagString(cmd, "password"),
			Role:     models.Role(flagString(cmd, "role")),
		}
		if id := flagString(cmd, "branch"); id != "" {
			in.Branch = models.Reference(id)
		}
		if in.Password == "" {
			pw, err := promptPassword("Password for " + in.Email)
			if err != nil {
				return err
			}
			in.Password = pw
		}
		return withApp(cmd.Context(), func(a *app) error {
			if in.Branch.IsSet() {
				in.Branch = embedBranch(cmd, a, in.Branch.ID())
			}
			u, err := a.users.Create(cmd.Context(), in)
			if err != nil {
				return err
			}
			return printJSONOr(u, func() { reportSaved(a, "Created user", u.ID) })
		})
	},
}

var usersUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Change a user's details",
	Args:  exactID("user"),
	RunE: func(cmd *cobra.Command, args []string) error {
		ch := services.UserChanges{
			Email:    flagString(cmd, "email"),
			Name:     flagString(cmd, "name"),
			Password: flagString(cmd, "password"),
			Role:     models.Role(flagString(cmd, "role")),
		}
		return withApp(cmd.Context(), func(a *app) error {
			if id := flagString(cmd, "branch"); id != "" {
				ch.Branch = embedBranch(cmd, a, id)
			}
			u, err := a.users.Update(cmd.Context(), args[0], ch)
			if err != nil {
				return err
			}
			return printJSONOr(u, func() { reportSaved(a, "Updated user", u.ID) })
		})
	},
}

var usersDeleteCmd = &cobra.Command{
	Use:     "delete <id>",
	Aliases: []string{"rm"},
	Short:   "Delete a user",
	Args:    exactID("user"),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			if err := a.users.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			return printJSONOr(map[string]string{"deleted": args[0]}, func() { reportSaved(a, "Deleted user", args[0]) })
		})
	},
}

func flagString(cmd *cobra.Command, name string) string {
	v, _ := cmd.Flags().GetString(name)
	return v
}

// embedBranch resolves a branch id to {id, name}, keeping the bare id when
// the branch is unknown.
func embedBranch(cmd *cobra.Command, a *app, id string) models.Ref {
	b, err := a.branches.Get(cmd.Context(), id)
	if err != nil {
		return models.Reference(id)
	}
	return models.Embedded(b.ID, b.Name)
}

var errNoPassword = errors.New("password required (use --password)")

// promptPassword asks for a password on a terminal.
func promptPassword(title string) (string, error) {
	if jsonOutput || !output.IsTerminal() {
		return "", errNoPassword
	}
	var pw string
	err := huh.NewInput().
		Title(title).
		EchoMode(huh.EchoModePassword).
		Value(&pw).
		Run()
	if err != nil {
		return "", err
	}
	if pw == "" {
		return "", errNoPassword
	}
	return pw, nil
}

func init() {
	for _, c := range []*cobra.Command{usersCreateCmd, usersUpdateCmd} {
		c.Flags().String("email", "", "email address")
		c.Flags().String("name", "", "display name")
		c.Flags().String("password", "", "password (prompted when omitted on create)")
		c.Flags().String("branch", "", "branch id")
	}
	usersCreateCmd.Flags().String("role", string(models.RoleUser), "role: user or admin")
	usersUpdateCmd.Flags().String("role", "", "role: user or admin")

	usersCmd.AddCommand(usersListCmd, usersSearchCmd, usersShowCmd,
		usersCreateCmd, usersUpdateCmd, usersDeleteCmd)
	rootCmd.AddCommand(usersCmd)
}

package cmd

import (
	"fmt"

	"github.com/ferreteria/ordersync/internal/models"
	"github.com/ferreteria/ordersync/internal/output"
	"github.com/spf13/cobra"
)

// printList prints records one per line, or as JSON.
func printList[T any](items []T, format func(T) string, empty string) error {
	if jsonOutput {
		if items == nil {
			items = []T{}
		}
		return output.JSON(items)
	}
	if len(items) == 0 {
		fmt.Println(empty)
		return nil
	}
	for _, it := range items {
		fmt.Println(format(it))
	}
	return nil
}

var providersCmd = &cobra.Command{
	Use:     "providers",
	Aliases: []string{"provider", "prov"},
	Short:   "Manage providers",
	GroupID: "core",
}

var providersListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List providers of your branch",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			providers, err := a.providers.List(cmd.Context())
			if err != nil {
				return err
			}
			return printList(providers, output.FormatProviderShort, "No providers")
		})
	},
}

var providersSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Find providers by name",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			providers, err := a.providers.Search(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printList(providers, output.FormatProviderShort, "No matching providers")
		})
	},
}

var providersShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one provider",
	Args:  exactID("provider"),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			p, err := a.providers.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSONOr(p, func() { fmt.Println(output.FormatProviderShort(*p)) })
		})
	},
}

var providersCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Add a provider to your branch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			p, err := a.providers.Create(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSONOr(p, func() { reportSaved(a, "Created provider", p.ID) })
		})
	},
}

var providersUpdateCmd = &cobra.Command{
	Use:   "update <id> <name>",
	Short: "Rename a provider",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			p, err := a.providers.Update(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return printJSONOr(p, func() { reportSaved(a, "Updated provider", p.ID) })
		})
	},
}

var providersDeleteCmd = &cobra.Command{
	Use:     "delete <id>",
	Aliases: []string{"rm"},
	Short:   "Delete a provider",
	Args:    exactID("provider"),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			if err := a.providers.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			return printJSONOr(map[string]string{"deleted": args[0]}, func() { reportSaved(a, "Deleted provider", args[0]) })
		})
	},
}

// reportSaved notes whether a change reached the backend or was queued.
func reportSaved(a *app, what, id string) {
	if models.IsTempID(id) || a.monitor.Status() != models.StatusOnline {
		output.Success("%s %s (offline, queued for sync)", what, output.FormatID(id))
		return
	}
	output.Success("%s %s", what, output.FormatID(id))
}

func init() {
	providersCmd.AddCommand(providersListCmd, providersSearchCmd, providersShowCmd,
		providersCreateCmd, providersUpdateCmd, providersDeleteCmd)
	rootCmd.AddCommand(providersCmd)
}

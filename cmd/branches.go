package cmd

import (
	"fmt"

	"github.com/ferreteria/ordersync/internal/output"
	"github.com/spf13/cobra"
)

var branchesCmd = &cobra.Command{
	Use:     "branches",
	Aliases: []string{"branch"},
	Short:   "Manage branches",
	GroupID: "core",
}

var branchesListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List branches",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			branches, err := a.branches.List(cmd.Context())
			if err != nil {
				return err
			}
			return printList(branches, output.FormatBranchShort, "No branches")
		})
	},
}

var branchesSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Find branches by name",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			branches, err := a.branches.Search(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printList(branches, output.FormatBranchShort, "No matching branches")
		})
	},
}

var branchesShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one branch",
	Args:  exactID("branch"),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			b, err := a.branches.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSONOr(b, func() { fmt.Println(output.FormatBranchShort(*b)) })
		})
	},
}

var branchesCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Add a branch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			b, err := a.branches.Create(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSONOr(b, func() { reportSaved(a, "Created branch", b.ID) })
		})
	},
}

var branchesUpdateCmd = &cobra.Command{
	Use:   "update <id> <name>",
	Short: "Rename a branch",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			b, err := a.branches.Update(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return printJSONOr(b, func() { reportSaved(a, "Updated branch", b.ID) })
		})
	},
}

var branchesDeleteCmd = &cobra.Command{
	Use:     "delete <id>",
	Aliases: []string{"rm"},
	Short:   "Delete a branch",
	Args:    exactID("branch"),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			if err := a.branches.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			return printJSONOr(map[string]string{"deleted": args[0]}, func() { reportSaved(a, "Deleted branch", args[0]) })
		})
	},
}

func init() {
	branchesCmd.AddCommand(branchesListCmd, branchesSearchCmd, branchesShowCmd,
		branchesCreateCmd, branchesUpdateCmd, branchesDeleteCmd)
	rootCmd.AddCommand(branchesCmd)
}

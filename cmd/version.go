package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:     "version",
	Short:   "Print the version",
	GroupID: "system",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("ferreteria", version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

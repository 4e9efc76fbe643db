package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ferreteria/ordersync/internal/config"
	"github.com/ferreteria/ordersync/internal/output"
	"github.com/ferreteria/ordersync/internal/suggest"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:     "config",
	Short:   "Manage ferreteria configuration",
	GroupID: "system",
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a config value (empty value clears it)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if err := cfg.Set(args[0], args[1]); err != nil {
			if !errors.Is(err, config.ErrUnknownKey) {
				return err
			}
			if near := suggest.Closest(args[0], config.Keys()); len(near) > 0 {
				return fmt.Errorf("%w (did you mean %s?)", err, strings.Join(near, ", "))
			}
			return fmt.Errorf("%w (keys: %s)", err, strings.Join(config.Keys(), ", "))
		}
		if err := config.Save(cfg); err != nil {
			return err
		}
		if !jsonOutput {
			output.Success("%s = %s", args[0], args[1])
		}
		return nil
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get [key]",
	Short: "Print config values stored in the file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		keys := config.Keys()
		if len(args) == 1 {
			keys = args
		}
		values := make(map[string]string, len(keys))
		for _, k := range keys {
			v, err := cfg.Get(k)
			if err != nil {
				return err
			}
			values[k] = v
		}
		if jsonOutput {
			return output.JSON(values)
		}
		if len(args) == 1 {
			fmt.Println(values[args[0]])
			return nil
		}
		for _, k := range keys {
			fmt.Printf("%s = %s\n", k, values[k])
		}
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file location",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := config.Path()
		if err != nil {
			return err
		}
		fmt.Println(path)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configSetCmd, configGetCmd, configPathCmd)
	rootCmd.AddCommand(configCmd)
}

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configGetCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Read and write configuration keys",
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration key",
	Example: `  # Mark the dev environment as the source of truth
  shelltide config set default.source_env dev`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := store()
		if err != nil {
			return err
		}
		cfg, err := s.Load()
		if err != nil {
			return err
		}
		if err := cfg.SetKey(args[0], args[1]); err != nil {
			return err
		}
		if err := s.Save(cfg); err != nil {
			return err
		}
		fmt.Printf("%s = %s\n", args[0], args[1])
		return nil
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print a configuration key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := store()
		if err != nil {
			return err
		}
		cfg, err := s.Load()
		if err != nil {
			return err
		}
		value, ok, err := cfg.GetKey(args[0])
		if err != nil {
			return err
		}
		if !ok {
			fmt.Printf("%s is not set\n", args[0])
			return nil
		}
		fmt.Println(value)
		return nil
	},
}

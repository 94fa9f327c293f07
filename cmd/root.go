package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shelltide/shelltide/internal/config"
	"github.com/shelltide/shelltide/internal/migrate"
)

var rootCmd = &cobra.Command{
	Use:   "shelltide",
	Short: "Shelltide rolls reviewed schema changes across database environments.",
	Long: `Shelltide rolls reviewed schema changes from a source environment across
your other database environments, one numbered change at a time, with a
revision marker checkpointed after each step.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(migrate.ExitCode(err))
	}
}

// configStore is swapped out by tests to point at a temp directory.
var configStore config.Store

func store() (config.Store, error) {
	if configStore != nil {
		return configStore, nil
	}
	s, err := config.DefaultStore()
	if err != nil {
		return nil, err
	}
	configStore = s
	return s, nil
}

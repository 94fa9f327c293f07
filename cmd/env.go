package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shelltide/shelltide/internal/config"
	"github.com/shelltide/shelltide/internal/migrate"
)

var (
	envAddProject  string
	envAddInstance string
)

func init() {
	rootCmd.AddCommand(envCmd)
	envCmd.AddCommand(envAddCmd)
	envCmd.AddCommand(envListCmd)
	envCmd.AddCommand(envRemoveCmd)

	envAddCmd.Flags().StringVar(&envAddProject, "project", "", "Platform project the environment belongs to")
	envAddCmd.Flags().StringVar(&envAddInstance, "instance", "", "Platform instance serving the environment")
	_ = envAddCmd.MarkFlagRequired("project")
	_ = envAddCmd.MarkFlagRequired("instance")
}

var envCmd = &cobra.Command{
	Use:   "env",
	Short: "Manage environment aliases",
}

var envAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add an environment alias for a (project, instance) pair",
	Args:  cobra.ExactArgs(1),
	RunE:  runEnvAdd,
}

func runEnvAdd(cmd *cobra.Command, args []string) error {
	name := args[0]
	sess, err := newSession()
	if err != nil {
		return err
	}

	// Verify both resources before recording the alias.
	if err := sess.adapter.Client.GetProject(cmd.Context(), envAddProject); err != nil {
		return migrate.Configf("project %q not reachable: %v", envAddProject, err)
	}
	if err := sess.adapter.Client.GetInstance(cmd.Context(), envAddInstance); err != nil {
		return migrate.Configf("instance %q not reachable: %v", envAddInstance, err)
	}

	sess.cfg.Environments[name] = config.Environment{
		Project:  envAddProject,
		Instance: envAddInstance,
	}
	if err := sess.store.Save(sess.cfg); err != nil {
		return err
	}
	fmt.Printf("Added environment %q (project %s, instance %s)\n", name, envAddProject, envAddInstance)
	return nil
}

var envListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured environments",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := store()
		if err != nil {
			return err
		}
		cfg, err := s.Load()
		if err != nil {
			return err
		}
		if len(cfg.Environments) == 0 {
			fmt.Println("No environments configured. Add one with `shelltide env add`.")
			return nil
		}
		for _, name := range cfg.EnvNames() {
			env := cfg.Environments[name]
			suffix := ""
			if name == cfg.DefaultSourceEnv {
				suffix = " (default source)"
			}
			fmt.Printf("%s\tproject=%s\tinstance=%s%s\n", name, env.Project, env.Instance, suffix)
		}
		return nil
	},
}

var envRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove an environment alias",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		s, err := store()
		if err != nil {
			return err
		}
		cfg, err := s.Load()
		if err != nil {
			return err
		}
		if _, ok := cfg.Environments[name]; !ok {
			return migrate.Configf("environment %q not found", name)
		}
		delete(cfg.Environments, name)
		if cfg.DefaultSourceEnv == name {
			cfg.DefaultSourceEnv = ""
		}
		if err := s.Save(cfg); err != nil {
			return err
		}
		fmt.Printf("Removed environment %q\n", name)
		return nil
	},
}

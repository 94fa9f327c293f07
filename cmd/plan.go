package cmd

import (
	"github.com/spf13/cobra"

	"github.com/shelltide/shelltide/internal/migrate"
)

var (
	planTo  string
	planOut string
)

func init() {
	rootCmd.AddCommand(planCmd)

	planCmd.Flags().StringVar(&planTo, "to", "LATEST", "Target change id or LATEST")
	planCmd.Flags().StringVar(&planOut, "out", "", "Write the validated plan to a JSON file")
}

var planCmd = &cobra.Command{
	Use:   "plan <source-database> <env>/<database>",
	Short: "Show the validated plan for a migration without executing it",
	Example: `  # What would migrating prod/app to LATEST do?
  shelltide plan app prod/app

  # Keep the plan for review
  shelltide plan app prod/app --to 244 --out plan.json`,
	Args: cobra.ExactArgs(2),
	RunE: runPlanCmd,
}

func runPlanCmd(cmd *cobra.Command, args []string) error {
	sess, err := newSession()
	if err != nil {
		return err
	}
	req, err := buildRequest(sess, args[0], args[1], planTo)
	if err != nil {
		return err
	}

	exec := &migrate.Executor{
		Revisions: sess.adapter,
		Catalog:   sess.adapter,
		Validator: sess.adapter,
		Applier:   sess.adapter,
	}
	plan, diff, err := exec.Plan(cmd.Context(), req)
	if err != nil {
		return err
	}
	printPlan(plan, diff)
	return writePlanFile(plan, planOut)
}

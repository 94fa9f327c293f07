package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/shelltide/shelltide/internal/journal"
	"github.com/shelltide/shelltide/internal/migrate"
	"github.com/shelltide/shelltide/internal/planfile"
)

var (
	migrateTo     string
	migrateDryRun bool
	migrateOut    string
)

func init() {
	rootCmd.AddCommand(migrateCmd)

	migrateCmd.Flags().StringVar(&migrateTo, "to", "LATEST", "Target change id or LATEST")
	migrateCmd.Flags().BoolVar(&migrateDryRun, "dry-run", false, "Plan and validate without executing anything")
	migrateCmd.Flags().StringVar(&migrateOut, "out", "", "Write the validated plan to a JSON file")
}

var migrateCmd = &cobra.Command{
	Use:   "migrate <source-database> <env>/<database>",
	Short: "Migrate a database to a target change from the source environment",
	Long: `Migrate a database to a target change. Pending changes are computed from
the source environment's changelog, validated as a batch, then applied one
at a time with the revision marker checkpointed after each success. A rerun
after a partial failure resumes from the checkpoint.`,
	Example: `  # Bring prod's app database up to everything done on dev
  shelltide migrate app prod/app --to LATEST

  # Stop at a specific change
  shelltide migrate app staging/app --to 244

  # See what would happen first
  shelltide migrate app prod/app --to LATEST --dry-run`,
	Args: cobra.ExactArgs(2),
	RunE: runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	sess, err := newSession()
	if err != nil {
		return err
	}
	req, err := buildRequest(sess, args[0], args[1], migrateTo)
	if err != nil {
		return err
	}

	exec := &migrate.Executor{
		Revisions: sess.adapter,
		Catalog:   sess.adapter,
		Validator: sess.adapter,
		Applier:   sess.adapter,
		Logf: func(format string, a ...any) {
			fmt.Printf(format+"\n", a...)
		},
	}

	if migrateDryRun {
		plan, diff, err := exec.Plan(cmd.Context(), req)
		if err != nil {
			return err
		}
		printPlan(plan, diff)
		return writePlanFile(plan, migrateOut)
	}

	j, err := journal.Open(sess.store.Dir())
	if err != nil {
		return err
	}
	defer func() { _ = j.Close() }()

	release, err := j.Acquire(cmd.Context(), journal.DefaultLockTTL)
	if err != nil {
		return err
	}
	defer func() { _ = release() }()

	exec.Journal = j
	// One planning pass under the lock; the file written is the plan executed.
	plan, diff, err := exec.Plan(cmd.Context(), req)
	if err != nil {
		return err
	}
	if err := writePlanFile(plan, migrateOut); err != nil {
		return err
	}

	res, err := exec.RunPlanned(cmd.Context(), req, plan, diff)
	if err != nil {
		return err
	}

	switch res.Outcome {
	case migrate.OutcomeAlreadySatisfied:
		// The executor already reported it.
	default:
		fmt.Printf("Done: applied %d change(s); %s is now at %s.\n",
			len(res.Applied), req.Target, res.Marker)
	}
	return nil
}

func buildRequest(sess *session, sourceDB, targetArg, toArg string) (migrate.Request, error) {
	srcRef, srcCoords, err := sess.sourceRef(sourceDB)
	if err != nil {
		return migrate.Request{}, err
	}
	tgtRef, tgtCoords, err := sess.targetRef(targetArg)
	if err != nil {
		return migrate.Request{}, err
	}
	to, err := migrate.ParseTargetSpec(toArg)
	if err != nil {
		return migrate.Request{}, err
	}
	return migrate.Request{
		Source:       srcRef,
		Target:       tgtRef,
		SourceCoords: srcCoords,
		TargetCoords: tgtCoords,
		To:           to,
	}, nil
}

func printPlan(plan *migrate.Plan, diff *migrate.DiffResult) {
	if diff.Satisfied {
		fmt.Printf("%s is already at #%d (requested #%d). Nothing to do.\n",
			plan.Target, diff.Current, diff.Requested)
		return
	}
	if len(plan.Changes) == 0 {
		fmt.Printf("No pending changes for %s; marker would advance to #%d.\n",
			plan.Target, diff.Requested)
		return
	}
	fmt.Printf("Plan for %s -> %s (target #%d), %d change(s):\n",
		plan.Source, plan.Target, diff.Requested, len(plan.Changes))
	for _, c := range plan.Changes {
		fmt.Printf("  #%-6d %s\n", c.ID, firstLine(c.Statement))
	}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[:idx] + " ..."
	}
	if len(s) > 80 {
		s = s[:77] + "..."
	}
	return s
}

func writePlanFile(plan *migrate.Plan, path string) error {
	if path == "" {
		return nil
	}
	if err := planfile.Write(path, planfile.FromPlan(plan, time.Now().UTC())); err != nil {
		return err
	}
	fmt.Printf("Wrote plan to %s\n", path)
	return nil
}

package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shelltide/shelltide/internal/config"
	"github.com/shelltide/shelltide/internal/migrate"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status [env[/database]]",
	Short: "Show how far each database is behind the source environment",
	Long: `Show, for every configured environment other than the source, how each
database compares to the most recent done change in the source
environment. Databases are taken
from the source environment's instance, so a database missing elsewhere
shows as NOT EXIST. An optional argument restricts the view to one
environment or one database.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	sess, err := newSession()
	if err != nil {
		return err
	}
	sourceName, sourceEnv, err := sess.cfg.SourceEnv()
	if err != nil {
		return err
	}

	filterEnv, filterDB := "", ""
	if len(args) == 1 {
		parts := strings.SplitN(args[0], "/", 2)
		filterEnv = parts[0]
		if len(parts) == 2 {
			filterDB = parts[1]
		}
		if _, ok := sess.cfg.Environments[filterEnv]; !ok {
			return migrate.Configf("environment %q not found in configuration", filterEnv)
		}
	}

	databases, err := sess.adapter.Client.ListDatabases(cmd.Context(), sourceEnv.Instance)
	if err != nil {
		return err
	}
	sort.Strings(databases)

	targets := statusTargets(sess.cfg, sourceName, filterEnv, filterDB, databases)
	if len(targets) == 0 {
		fmt.Println("Nothing to show: no databases matched.")
		return nil
	}

	reference := migrate.Coordinates{Project: sourceEnv.Project, Instance: sourceEnv.Instance}
	agg := &migrate.Aggregator{Revisions: sess.adapter, Catalog: sess.adapter}
	rows, refIssue, err := agg.Status(cmd.Context(), targets, reference)
	if err != nil {
		return err
	}

	fmt.Printf("Source: %s (project %s), latest done change #%d\n\n", sourceName, sourceEnv.Project, refIssue)
	fmt.Print(renderStatusTable(rows))
	return nil
}

// statusTargets expands the configured environments and databases into the
// rows to classify. The unfiltered view compares every other environment to
// the source, so the source itself is listed only when named explicitly.
func statusTargets(cfg *config.Config, sourceName, filterEnv, filterDB string, databases []string) []migrate.StatusTarget {
	var targets []migrate.StatusTarget
	for _, envName := range cfg.EnvNames() {
		if filterEnv != "" && envName != filterEnv {
			continue
		}
		if filterEnv == "" && envName == sourceName {
			continue
		}
		for _, db := range databases {
			if filterDB != "" && db != filterDB {
				continue
			}
			ref := migrate.DatabaseRef{Env: envName, Database: db}
			coords, err := cfg.Resolve(ref)
			if err != nil {
				targets = append(targets, migrate.StatusTarget{Ref: ref})
				continue
			}
			targets = append(targets, migrate.StatusTarget{Ref: ref, Coords: coords, Resolved: true})
		}
	}
	return targets
}

// renderStatusTable lays the rows out in fixed-width columns.
func renderStatusTable(rows []migrate.StatusRow) string {
	headers := [3]string{"ENVIRONMENT", "DATABASE", "LATEST CHANGELOG"}
	widths := [3]int{len(headers[0]), len(headers[1]), len(headers[2])}
	cells := make([][3]string, len(rows))
	for i, row := range rows {
		cells[i] = [3]string{row.Ref.Env, row.Ref.Database, row.Display()}
		for col, cell := range cells[i] {
			if len(cell) > widths[col] {
				widths[col] = len(cell)
			}
		}
	}

	var b strings.Builder
	writeRow := func(cols [3]string) {
		fmt.Fprintf(&b, "%-*s  %-*s  %-*s\n",
			widths[0], cols[0], widths[1], cols[1], widths[2], cols[2])
	}
	writeRow(headers)
	for _, row := range cells {
		writeRow(row)
	}
	return b.String()
}

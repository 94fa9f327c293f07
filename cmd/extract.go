package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/shelltide/shelltide/internal/migrate"
)

var (
	extractFrom int
	extractTo   string
	extractDir  string
)

func init() {
	rootCmd.AddCommand(extractCmd)

	extractCmd.Flags().IntVar(&extractFrom, "from", 0, "Lowest change id to extract (inclusive)")
	extractCmd.Flags().StringVar(&extractTo, "to", "LATEST", "Highest change id to extract, or LATEST")
	extractCmd.Flags().StringVar(&extractDir, "dir", "changes", "Directory to write the SQL files into")
}

var extractCmd = &cobra.Command{
	Use:   "extract <env>/<database>",
	Short: "Export applied change statements as SQL files",
	Long: `Export the statements recorded against a database into one numbered SQL
file per change, for review or for seeding another system.`,
	Example: `  # Everything applied to dev/app
  shelltide extract dev/app --dir changes/

  # A specific window
  shelltide extract dev/app --from 240 --to 244 --dir changes/`,
	Args: cobra.ExactArgs(1),
	RunE: runExtract,
}

func runExtract(cmd *cobra.Command, args []string) error {
	sess, err := newSession()
	if err != nil {
		return err
	}
	_, coords, err := sess.targetRef(args[0])
	if err != nil {
		return err
	}

	to, err := migrate.ParseTargetSpec(extractTo)
	if err != nil {
		return err
	}

	changes, err := sess.adapter.ListDone(cmd.Context(), coords)
	if err != nil {
		return err
	}

	upper := to.ID
	if to.Latest {
		for _, c := range changes {
			if c.ID > upper {
				upper = c.ID
			}
		}
	}

	if err := os.MkdirAll(extractDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	written := 0
	for _, c := range changes {
		if c.ID < extractFrom || c.ID > upper {
			continue
		}
		path := filepath.Join(extractDir, fmt.Sprintf("%d.sql", c.ID))
		if err := os.WriteFile(path, []byte(c.Statement+"\n"), 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
		written++
	}

	if written == 0 {
		fmt.Println("No changes in the requested range.")
		return nil
	}
	fmt.Printf("Wrote %d file(s) to %s\n", written, extractDir)
	return nil
}

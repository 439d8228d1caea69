package main

import (
	"github.com/spf13/cobra"

	"github.com/hallvard/papervault/internal/snapshot"
)

var migrateDryRun bool

func init() {
	migrateCmd.Flags().BoolVar(&migrateDryRun, "dry-run", false, "Report changes without writing them")
	rootCmd.AddCommand(migrateCmd)
}

var migrateCmd = &cobra.Command{
	Use:   "migrate <snapshot.db>",
	Short: "Upgrade a snapshot to the current schema",
	Long: `Migrate adds the tables and columns newer pv versions expect to an
older snapshot database. All changes are additive; existing rows are
never rewritten.

Examples:
  pv migrate catalog.db
  pv migrate catalog.db --dry-run`,
	Args: cobra.ExactArgs(1),
	RunE: runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	actions, err := snapshot.Migrate(resolvePath(args[0]), migrateDryRun, newLogger())
	if err != nil {
		exitWithError(ExitDataError, "migrating snapshot: %v", err)
	}

	if humanOutput {
		if len(actions) == 0 {
			outputHuman("Snapshot already at schema version %s\n", snapshot.SchemaVersion)
			return nil
		}
		verb := "Applied"
		if migrateDryRun {
			verb = "Would apply"
		}
		outputHuman("%s %d changes:\n", verb, len(actions))
		for _, a := range actions {
			outputHuman("  %s: %s\n", a.Component, a.Action)
		}
	} else {
		if actions == nil {
			actions = []snapshot.Action{}
		}
		outputJSON(actions)
	}
	return nil
}

package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/hallvard/papervault/internal/snapshot"
)

var (
	updateDB     string
	updateStatic string
	updateMode   string
	updateDryRun bool
)

func init() {
	updateCmd.Flags().StringVar(&updateDB, "db", "", "Snapshot database to update (required)")
	updateCmd.Flags().StringVar(&updateStatic, "static", "", "Static export tree root (required)")
	updateCmd.Flags().StringVar(&updateMode, "mode", "all", "What to reconcile: all, translations, summaries, or metadata")
	updateCmd.Flags().BoolVar(&updateDryRun, "dry-run", false, "Report changes without writing them")
	updateCmd.MarkFlagRequired("db")
	updateCmd.MarkFlagRequired("static")
	rootCmd.AddCommand(updateCmd)
}

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Reconcile the snapshot with the static export tree",
	Long: `Update scans the static export tree for translation and summary files
missing from the catalog and registers them. Metadata mode additionally
refills empty derived columns from stored summary blobs.

Examples:
  pv update --db catalog.db --static static/
  pv update --db catalog.db --static static/ --mode summaries --dry-run`,
	RunE: runUpdate,
}

func runUpdate(cmd *cobra.Command, args []string) error {
	mode, err := snapshot.ParseUpdateMode(updateMode)
	if err != nil {
		exitWithError(ExitError, "%v", err)
	}
	opts := snapshot.UpdateOptions{
		DBPath:    resolvePath(updateDB),
		StaticDir: resolvePath(updateStatic),
		Mode:      mode,
		DryRun:    updateDryRun,
	}

	stats, err := snapshot.Update(opts, newLogger())
	if err != nil {
		if errors.Is(err, snapshot.ErrSchemaMismatch) {
			exitWithError(ExitSchemaError, "snapshot: %v", err)
		}
		exitWithError(ExitDataError, "updating snapshot: %v", err)
	}

	if humanOutput {
		verb := "Added"
		if stats.DryRun {
			verb = "Would add"
		}
		outputHuman("%s %d translations (of %d on disk), %d summaries (of %d on disk)\n",
			verb, stats.TranslationsAdded, stats.TranslationsFound,
			stats.SummariesAdded, stats.SummariesFound)
		if stats.MetadataRefreshed > 0 {
			outputHuman("Metadata refreshed for %d papers\n", stats.MetadataRefreshed)
		}
		for _, p := range stats.OrphanedPaths {
			outputHuman("  orphan: %s\n", p)
		}
	} else {
		outputJSON(stats)
	}
	return nil
}

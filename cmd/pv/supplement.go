package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/hallvard/papervault/internal/snapshot"
)

var (
	supplementDB     string
	supplementStatic string
)

func init() {
	supplementCmd.Flags().StringVar(&supplementDB, "db", "", "Snapshot database to supplement (required)")
	supplementCmd.Flags().StringVar(&supplementStatic, "static", "", "Static export tree root (required)")
	supplementCmd.MarkFlagRequired("db")
	supplementCmd.MarkFlagRequired("static")
	rootCmd.AddCommand(supplementCmd)
}

var supplementCmd = &cobra.Command{
	Use:   "supplement <batch.json>...",
	Short: "Attach new summaries to existing papers",
	Long: `Supplement resolves each record in the given batches against the
snapshot and attaches its summary under the record's template tag.

Papers are matched by source hash, source path, or any known identity
key; a record that matches no paper is skipped and reported. Existing
summaries are never overwritten and no papers are created.

Examples:
  pv supplement run2.json --db catalog.db --static static/`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSupplement,
}

func runSupplement(cmd *cobra.Command, args []string) error {
	inputs := make([]string, len(args))
	for i, a := range args {
		inputs[i] = resolvePath(a)
	}
	opts := snapshot.SupplementOptions{
		InputPaths: inputs,
		DBPath:     resolvePath(supplementDB),
		StaticDir:  resolvePath(supplementStatic),
	}

	report, err := snapshot.Supplement(opts, newLogger())
	if err != nil {
		if errors.Is(err, snapshot.ErrSchemaMismatch) {
			exitWithError(ExitSchemaError, "snapshot: %v", err)
		}
		exitWithError(ExitDataError, "supplementing snapshot: %v", err)
	}

	if humanOutput {
		outputHuman("Supplemented %d/%d records (%d summaries added, %d already present)\n",
			report.Resolved, report.Records, report.SummariesAdded, report.SummariesKept)
		if report.Unresolved > 0 {
			outputHuman("%d records matched no paper:\n", report.Unresolved)
			for _, p := range report.UnresolvedPaths {
				outputHuman("  %s\n", p)
			}
		}
	} else {
		outputJSON(report)
	}
	return nil
}

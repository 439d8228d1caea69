package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hallvard/papervault/internal/config"
	"github.com/hallvard/papervault/internal/snapshot"
)

var (
	buildPrevious string
	buildWorkers  int
)

func init() {
	buildCmd.Flags().StringVar(&buildPrevious, "previous", "", "Prior snapshot database (overrides manifest)")
	buildCmd.Flags().IntVar(&buildWorkers, "workers", 0, "Asset hashing workers (overrides manifest)")
	rootCmd.AddCommand(buildCmd)
}

var buildCmd = &cobra.Command{
	Use:   "build <manifest.yaml>",
	Short: "Build a snapshot from extraction batches",
	Long: `Build merges the extraction batches named in a manifest into a fresh
snapshot database and static export tree. When a previous snapshot is
configured its paper identities, metadata, and artifacts carry over.

Examples:
  pv build catalog.yaml
  pv build catalog.yaml --previous snapshots/catalog.db`,
	Args: cobra.ExactArgs(1),
	RunE: runBuild,
}

func runBuild(cmd *cobra.Command, args []string) error {
	manifest, err := config.Load(resolvePath(args[0]))
	if err != nil {
		exitWithError(ExitConfigError, "loading manifest: %v", err)
	}

	opts := snapshot.OptionsFromManifest(manifest)
	if buildPrevious != "" {
		opts.PreviousDB = resolvePath(buildPrevious)
	}
	if buildWorkers > 0 {
		opts.Workers = buildWorkers
	}

	report, err := snapshot.Build(opts, newLogger())
	if err != nil {
		if errors.Is(err, snapshot.ErrSchemaMismatch) {
			exitWithError(ExitSchemaError, "previous snapshot: %v", err)
		}
		exitWithError(ExitDataError, "building snapshot: %v", err)
	}

	if humanOutput {
		printBuildReport(report)
	} else {
		outputJSON(report)
	}
	return nil
}

func printBuildReport(r *snapshot.Report) {
	outputHuman("Snapshot: %d papers (%d new, %d updated, %d carried over)\n",
		r.Papers, r.NewPapers, r.InheritedPapers, r.CarriedPapers)
	outputHuman("Assets: %d markdown, %d PDF, %d translations, %d summaries\n",
		r.MarkdownResolved, r.PDFResolved, r.TranslationsStored, r.SummariesStored)
	if r.ImagesStored > 0 || r.ImagesMissing > 0 {
		outputHuman("Images: %d localized, %d unresolved references\n",
			r.ImagesStored, r.ImagesMissing)
	}
	if r.PriorSnapshotError != "" {
		outputHuman("Warning: prior snapshot unusable: %s\n", r.PriorSnapshotError)
	}
	if len(r.Ambiguities) > 0 {
		outputHuman("\n%d ambiguous identities (first match kept):\n", len(r.Ambiguities))
		for _, a := range r.Ambiguities {
			outputHuman("  %s -> %s (also matched %v)\n", a.Title, a.ChosenID, a.OtherIDs)
		}
	}
	if len(r.AssetFailures) > 0 {
		outputHuman("\n%d asset failures:\n", len(r.AssetFailures))
		for _, f := range r.AssetFailures {
			outputHuman("  [%s] %s: %s\n", f.Kind, failurePath(f), f.Error)
		}
	}
}

func failurePath(f snapshot.AssetFailure) string {
	if f.Path != "" {
		return f.Path
	}
	return fmt.Sprintf("paper %s", f.PaperID)
}

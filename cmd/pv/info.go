package main

import (
	"github.com/spf13/cobra"

	"github.com/hallvard/papervault/internal/snapshot"
)

func init() {
	rootCmd.AddCommand(infoCmd)
}

var infoCmd = &cobra.Command{
	Use:   "info <snapshot.db>",
	Short: "Show snapshot statistics",
	Long: `Info reports paper, artifact, and facet counts for a snapshot.

Examples:
  pv info catalog.db
  pv info catalog.db --human`,
	Args: cobra.ExactArgs(1),
	RunE: runInfo,
}

func runInfo(cmd *cobra.Command, args []string) error {
	info, err := snapshot.ReadInfo(resolvePath(args[0]))
	if err != nil {
		exitWithError(ExitDataError, "reading snapshot: %v", err)
	}

	if humanOutput {
		outputHuman("Snapshot %s (schema %s)\n", info.Path, schemaLabel(info.SchemaVersion))
		outputHuman("  %d papers (%d with PDF, %d with markdown, %d with DOI)\n",
			info.Papers, info.WithPDF, info.WithMarkdown, info.WithDOI)
		outputHuman("  %d identity keys, %d summaries, %d translations, %d bibtex entries\n",
			info.Aliases, info.Summaries, info.Translations, info.BibtexEntries)
		outputHuman("  %d authors, %d venues, %d tags\n", info.Authors, info.Venues, info.Tags)
	} else {
		outputJSON(info)
	}
	return nil
}

func schemaLabel(version string) string {
	if version == "" {
		return "legacy"
	}
	return version
}

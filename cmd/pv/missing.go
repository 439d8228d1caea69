package main

import (
	"sort"

	"github.com/spf13/cobra"

	"github.com/hallvard/papervault/internal/snapshot"
)

var (
	missingKind     string
	missingTemplate string
	missingLang     string
)

func init() {
	missingCmd.Flags().StringVar(&missingKind, "kind", "",
		"list papers missing one artifact: source_md, pdf, template, or translation")
	missingCmd.Flags().StringVar(&missingTemplate, "template", "", "template tag (with --kind template)")
	missingCmd.Flags().StringVar(&missingLang, "lang", "", "language code (with --kind translation)")
	rootCmd.AddCommand(missingCmd)
}

var missingCmd = &cobra.Command{
	Use:   "missing <snapshot.db>",
	Short: "Report papers missing artifacts",
	Long: `Missing reports artifact coverage across a snapshot, or lists the
papers lacking one artifact so the list can feed a re-extraction run.

Examples:
  pv missing catalog.db
  pv missing catalog.db --kind pdf
  pv missing catalog.db --kind template --template deep
  pv missing catalog.db --kind translation --lang zh`,
	Args: cobra.ExactArgs(1),
	RunE: runMissing,
}

func runMissing(cmd *cobra.Command, args []string) error {
	dbPath := resolvePath(args[0])
	if missingKind == "" {
		return showMissingReport(dbPath)
	}

	kind, err := snapshot.ParseMissingKind(missingKind)
	if err != nil {
		exitWithError(ExitError, "%v", err)
	}
	papers, err := snapshot.ListMissing(dbPath, kind, missingTemplate, missingLang)
	if err != nil {
		exitWithError(ExitDataError, "listing missing %s: %v", kind, err)
	}

	if humanOutput {
		outputHuman("%d papers missing %s\n", len(papers), missingLabel(kind))
		for _, p := range papers {
			outputHuman("  %s  %s\n", p.PaperID, p.Title)
		}
	} else {
		outputJSON(papers)
	}
	return nil
}

func showMissingReport(dbPath string) error {
	report, err := snapshot.ReadMissingReport(dbPath)
	if err != nil {
		exitWithError(ExitDataError, "reading snapshot: %v", err)
	}

	if humanOutput {
		outputHuman("%d papers: %d missing source markdown, %d missing PDF\n",
			report.Papers, report.NoSourceMD, report.NoPDF)
		outputHuman("Template coverage:\n")
		printCoverage(report.TemplateCoverage, report.Papers)
		outputHuman("Translation coverage:\n")
		printCoverage(report.TranslationCoverage, report.Papers)
	} else {
		outputJSON(report)
	}
	return nil
}

func printCoverage(coverage map[string]int, total int) {
	if len(coverage) == 0 {
		outputHuman("  (none)\n")
		return
	}
	keys := make([]string, 0, len(coverage))
	for k := range coverage {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		outputHuman("  %-20s %d/%d\n", k, coverage[k], total)
	}
}

func missingLabel(kind snapshot.MissingKind) string {
	switch kind {
	case snapshot.MissingTemplate:
		return "template " + missingTemplate
	case snapshot.MissingTranslation:
		return "translation " + missingLang
	case snapshot.MissingPDF:
		return "a PDF"
	default:
		return "source markdown"
	}
}

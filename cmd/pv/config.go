package main

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/hallvard/papervault/internal/config"
)

func init() {
	rootCmd.AddCommand(configCmd)
}

var configCmd = &cobra.Command{
	Use:   "config <manifest.yaml> [key] [value]",
	Short: "Show, get, or set build manifest values",
	Long: `Config loads a manifest and prints the effective configuration with
all paths resolved, or gets/sets a single value.

Usage:
  pv config catalog.yaml                        # Show resolved manifest
  pv config catalog.yaml output_db              # Get specific value
  pv config catalog.yaml workers 8              # Set value

Keys:
  output_db           Snapshot catalog database path
  static_dir          Blob store root
  previous_db         Prior snapshot to inherit identities from
  workers             Asset-hashing worker pool size
  probe_pdf_metadata  Index PDFs by embedded title (true/false)`,
	Args: cobra.RangeArgs(1, 3),
	RunE: runConfig,
}

func runConfig(cmd *cobra.Command, args []string) error {
	path := resolvePath(args[0])
	if len(args) == 1 {
		return showConfig(path)
	}
	manifest, err := config.LoadRaw(path)
	if err != nil {
		exitWithError(ExitConfigError, "loading manifest: %v", err)
	}
	key := args[1]
	if len(args) == 2 {
		return getConfigValue(manifest, key)
	}
	return setConfigValue(path, manifest, key, args[2])
}

func showConfig(path string) error {
	manifest, err := config.Load(path)
	if err != nil {
		exitWithError(ExitConfigError, "loading manifest: %v", err)
	}

	if humanOutput {
		outputHuman("Inputs: %d batch files\n", len(manifest.Inputs))
		for _, p := range manifest.Inputs {
			outputHuman("  %s\n", p)
		}
		outputHuman("Output DB: %s\n", manifest.OutputDB)
		outputHuman("Static dir: %s\n", manifest.StaticDir)
		if manifest.PreviousDB != "" {
			outputHuman("Previous DB: %s\n", manifest.PreviousDB)
		}
		outputHuman("Markdown roots: %v\n", manifest.MDRoots)
		outputHuman("Translated roots: %v\n", manifest.TranslatedMDRoots)
		outputHuman("PDF roots: %v\n", manifest.PDFRoots)
		outputHuman("Workers: %d\n", manifest.EffectiveWorkers())
	} else {
		outputJSON(manifest)
	}
	return nil
}

func getConfigValue(manifest *config.Manifest, key string) error {
	var value string
	switch key {
	case "output_db":
		value = manifest.OutputDB
	case "static_dir":
		value = manifest.StaticDir
	case "previous_db":
		value = manifest.PreviousDB
	case "workers":
		value = strconv.Itoa(manifest.Workers)
	case "probe_pdf_metadata":
		value = strconv.FormatBool(manifest.ProbePDFMetadata)
	default:
		exitWithError(ExitError, "unknown configuration key: %s", key)
	}

	if humanOutput {
		outputHuman("%s\n", value)
	} else {
		outputJSON(map[string]string{key: value})
	}
	return nil
}

func setConfigValue(path string, manifest *config.Manifest, key, value string) error {
	switch key {
	case "output_db":
		manifest.OutputDB = value
	case "static_dir":
		manifest.StaticDir = value
	case "previous_db":
		manifest.PreviousDB = value
	case "workers":
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			exitWithError(ExitError, "workers must be a non-negative integer: %s", value)
		}
		manifest.Workers = n
	case "probe_pdf_metadata":
		b, err := strconv.ParseBool(value)
		if err != nil {
			exitWithError(ExitError, "probe_pdf_metadata must be true or false: %s", value)
		}
		manifest.ProbePDFMetadata = b
	default:
		exitWithError(ExitError, "unknown configuration key: %s", key)
	}

	if err := config.Save(path, manifest); err != nil {
		exitWithError(ExitConfigError, "%v", err)
	}

	if humanOutput {
		outputHuman("Set %s = %s\n", key, value)
	} else {
		outputJSON(StatusResponse{Status: "ok", Message: key + " updated"})
	}
	return nil
}

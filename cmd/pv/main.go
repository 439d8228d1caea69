// Package main provides the pv CLI entry point.
package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags
var Version = "dev"

// humanOutput controls whether to use human-readable output
var humanOutput bool

// verbose raises the log level from warn to debug
var verbose bool

func main() {
	godotenv.Load()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(ExitError)
	}
}

var rootCmd = &cobra.Command{
	Use:   "pv",
	Short: "Incremental paper catalog builder",
	Long: `pv merges paper extraction runs into a durable catalog: a SQLite
snapshot plus a content-addressed static export tree.

Paper identities are resolved across runs by DOI, BibTeX key, and
normalized-title fingerprints, so re-running a build against a previous
snapshot keeps every paper's id stable. All commands output JSON by
default for easy integration with other tools.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&humanOutput, "human", false, "Use human-readable output instead of JSON")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.Version = Version
}

// newLogger builds the CLI logger. Logs go to stderr so stdout stays pure
// JSON for pipelines.
func newLogger() zerolog.Logger {
	level := zerolog.WarnLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().Timestamp().Logger()
}

// resolvePath applies the PV_ROOT environment override to relative paths.
func resolvePath(path string) string {
	root := os.Getenv("PV_ROOT")
	if root == "" || path == "" || os.IsPathSeparator(path[0]) {
		return path
	}
	return root + string(os.PathSeparator) + path
}

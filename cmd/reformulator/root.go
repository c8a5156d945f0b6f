package main

import (
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"github.com/smarchal/reformulator/version"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "reformulator",
	Short: "Rewrite a CSV column through the OpenAI API in parallel",
	Long: `Reformulator batch-rewrites one text/HTML column of a CSV file by
sending each row's content to the OpenAI API and writing the result back
into an output CSV, preserving all other columns and row order.

Rows are processed by a bounded pool of concurrent workers with
exponential-backoff retries on transient API failures. Failed rows keep
their original value; the output file is always complete and ordered.`,
	Version: version.GitRelease,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./reformulator.yaml or ~/.reformulator/reformulator.yaml)",
	)
	rootCmd.PersistentFlags().BoolVarP(
		&verbose, "verbose", "v", false, "enable debug logging",
	)

	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		// A local .env may carry OPENAI_API_KEY; absence is fine.
		_ = godotenv.Load()

		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		})))
	}

	rootCmd.AddCommand(versionCmd)
}

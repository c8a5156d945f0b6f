package main

import (
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/smarchal/reformulator/internal/batch"
	"github.com/smarchal/reformulator/internal/config"
	"github.com/smarchal/reformulator/internal/rewrite"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Rewrite the target column of a CSV file",
	Long: `Load the input CSV, rewrite the target column row by row through the
OpenAI API, and write the result to the output CSV.

Per-row failures never abort the run: after retries are exhausted the row
keeps its original value and the batch continues. The command fails only
on configuration errors or when the output file cannot be written.

Examples:
  reformulator run -i courses.csv                  # rewrite 'moduledescription'
  reformulator run -i courses.csv -c summary -w 10 # another column, 10 workers
  reformulator run -i courses.csv -n 25 --dry-run  # exercise I/O on 25 rows, no API calls`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		logger := slog.Default()

		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		var rewriter rewrite.Rewriter
		if !cfg.DryRun {
			client, err := rewrite.NewOpenAIClient(rewrite.OpenAIConfig{
				APIKey: cfg.ResolveAPIKey(),
				Model:  cfg.Model,
			})
			if err != nil {
				return err
			}
			rewriter = client
			logger.Info("rewrite client ready",
				"provider", client.Name(),
				"model", cfg.Model,
				"api_key", config.MaskAPIKey(cfg.ResolveAPIKey()),
			)
		} else {
			logger.Info("dry run: no API calls will be made")
		}

		orch, err := batch.NewOrchestrator(batch.RunOptions{
			InputPath:  cfg.Input,
			OutputPath: cfg.Output,
			Column:     cfg.Column,
			Model:      cfg.Model,
			Workers:    cfg.Workers,
			Retry:      batch.RetryPolicy{MaxAttempts: uint(cfg.MaxRetries)},
			LimitRows:  cfg.LimitRows,
			DryRun:     cfg.DryRun,
			Delimiter:  cfg.DelimiterRune(),
			RateLimit:  cfg.RateLimit,
		}, rewriter, batch.NewLogProgress(logger, 0), logger)
		if err != nil {
			return err
		}

		if _, err := orch.Run(ctx); err != nil {
			return err
		}
		return nil
	},
}

func init() {
	runCmd.Flags().StringP("input", "i", "", "path to the source CSV file")
	runCmd.Flags().StringP("output", "o", "", "output CSV path (default: input with '_rewritten' suffix)")
	runCmd.Flags().StringP("column", "c", config.DefaultColumn, "name of the column to rewrite")
	runCmd.Flags().StringP("model", "m", config.DefaultModel, "OpenAI model identifier")
	runCmd.Flags().IntP("workers", "w", config.DefaultWorkers, "number of concurrent workers")
	runCmd.Flags().Int("max-retries", config.DefaultMaxRetries, "maximum attempts per row")
	runCmd.Flags().IntP("limit-rows", "n", 0, "process only the first N rows (0 = all)")
	runCmd.Flags().Bool("dry-run", false, "exercise the read/write pipeline without API calls")
	runCmd.Flags().String("delimiter", "", "force the CSV delimiter (auto-detected when empty)")
	runCmd.Flags().Float64("rate-limit", 0, "cap requests per second across workers (0 = none)")

	for flagName, key := range map[string]string{
		"input":       "input",
		"output":      "output",
		"column":      "column",
		"model":       "model",
		"workers":     "workers",
		"max-retries": "max_retries",
		"limit-rows":  "limit_rows",
		"dry-run":     "dry_run",
		"delimiter":   "delimiter",
		"rate-limit":  "rate_limit",
	} {
		if err := viper.BindPFlag(key, runCmd.Flags().Lookup(flagName)); err != nil {
			panic(err)
		}
	}

	rootCmd.AddCommand(runCmd)
}

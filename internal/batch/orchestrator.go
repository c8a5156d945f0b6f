package batch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/smarchal/reformulator/internal/csvio"
	"github.com/smarchal/reformulator/internal/rewrite"
)

// RunOptions is the validated configuration the orchestrator consumes.
type RunOptions struct {
	InputPath  string
	OutputPath string
	Column     string
	Model      string
	Workers    int
	Retry      RetryPolicy
	// LimitRows caps how many rows are loaded into the batch; rows beyond
	// the cap are excluded entirely. 0 means no limit.
	LimitRows int
	DryRun    bool
	// Delimiter forces the CSV separator; 0 means auto-detect.
	Delimiter rune
	// RateLimit bounds requests per second across workers; 0 means none.
	RateLimit float64
}

// Orchestrator owns one end-to-end run: load, dispatch, aggregate, write.
type Orchestrator struct {
	opts     RunOptions
	rewriter rewrite.Rewriter
	progress ProgressFunc
	logger   *slog.Logger
}

// NewOrchestrator creates an orchestrator. The rewriter may be nil only
// for dry runs.
func NewOrchestrator(opts RunOptions, rewriter rewrite.Rewriter, progress ProgressFunc, logger *slog.Logger) (*Orchestrator, error) {
	if opts.InputPath == "" {
		return nil, fmt.Errorf("input path is required")
	}
	if opts.Column == "" {
		return nil, fmt.Errorf("target column is required")
	}
	if !opts.DryRun && rewriter == nil {
		return nil, fmt.Errorf("rewriter is required unless running dry")
	}
	if logger == nil {
		logger = slog.Default()
	}
	opts.OutputPath = csvio.BuildOutputPath(opts.InputPath, opts.OutputPath)
	return &Orchestrator{
		opts:     opts,
		rewriter: rewriter,
		progress: progress,
		logger:   logger.With("component", "orchestrator"),
	}, nil
}

// OutputPath returns the resolved output destination.
func (o *Orchestrator) OutputPath() string {
	return o.opts.OutputPath
}

// Run executes the batch. Per-row failures are contained in the result;
// the returned error is non-nil only for configuration-level faults or a
// failed output write, the cases where the run must abort.
func (o *Orchestrator) Run(ctx context.Context) (*Result, error) {
	ds, err := csvio.Load(o.opts.InputPath, o.opts.Delimiter)
	if err != nil {
		return nil, err
	}

	if !containsColumn(ds.Header, o.opts.Column) {
		return nil, fmt.Errorf("column %q not found in %s (available: %s)",
			o.opts.Column, o.opts.InputPath, strings.Join(ds.Header, ", "))
	}

	if o.opts.LimitRows > 0 && o.opts.LimitRows < len(ds.Records) {
		o.logger.Info("row limit active",
			"processing", o.opts.LimitRows, "loaded", len(ds.Records))
		ds.Records = ds.Records[:o.opts.LimitRows]
	}

	rows := make([]Row, len(ds.Records))
	for i, fields := range ds.Records {
		rows[i] = Row{Index: i, Fields: fields}
	}

	o.logger.Info("batch loaded",
		"rows", len(rows),
		"input", o.opts.InputPath,
		"column", o.opts.Column,
		"dry_run", o.opts.DryRun,
	)

	var outcomes []Outcome
	if o.opts.DryRun {
		outcomes = make([]Outcome, len(rows))
		for i := range outcomes {
			outcomes[i] = Outcome{Status: StatusSkipped}
		}
	} else {
		pool, err := NewPool(PoolConfig{
			Workers:  o.opts.Workers,
			Column:   o.opts.Column,
			Model:    o.opts.Model,
			Rewriter: o.rewriter,
			Limiter:  rewrite.NewRateLimiter(o.opts.RateLimit),
			Retry:    o.opts.Retry,
			Progress: o.progress,
			Logger:   o.logger,
		})
		if err != nil {
			return nil, err
		}
		outcomes = pool.Run(ctx, rows)
	}

	// Apply outcomes back into the rows. Failed and skipped rows keep
	// their original value so the output file is always complete.
	for i, outcome := range outcomes {
		if outcome.Status == StatusSuccess {
			ds.Records[i][o.opts.Column] = outcome.Text
		}
	}

	if err := csvio.Save(o.opts.OutputPath, ds); err != nil {
		return nil, fmt.Errorf("failed to write output: %w", err)
	}

	result := aggregate(outcomes)
	o.logger.Info("batch complete",
		"output", o.opts.OutputPath,
		"total", result.Total,
		"succeeded", result.Succeeded,
		"failed", result.Failed,
		"skipped", result.Skipped,
	)
	return result, nil
}

func containsColumn(header []string, column string) bool {
	for _, name := range header {
		if name == column {
			return true
		}
	}
	return false
}

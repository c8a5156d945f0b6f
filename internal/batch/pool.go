package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"

	"github.com/smarchal/reformulator/internal/rewrite"
)

// ProgressFunc receives one event per completed row.
type ProgressFunc func(done, total int, outcome Outcome)

// PoolConfig configures a worker pool.
type PoolConfig struct {
	// Workers is the concurrency bound W (default 5).
	Workers int
	// Column is the target column whose value is rewritten.
	Column string
	// Model is the model identifier passed to the rewriter.
	Model string
	// Rewriter performs the actual rewrite calls.
	Rewriter rewrite.Rewriter
	// Limiter optionally bounds requests per second across all workers.
	Limiter *rewrite.RateLimiter
	// Retry bounds reattempts per row.
	Retry RetryPolicy
	// Progress is invoked after each row completes. Optional.
	Progress ProgressFunc
	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// Pool dispatches rows to a bounded number of workers. Each worker
// processes one row fully, including all its retries and backoff sleeps,
// before taking the next, which bounds in-flight API calls to Workers.
type Pool struct {
	workers  int
	column   string
	model    string
	rewriter rewrite.Rewriter
	limiter  *rewrite.RateLimiter
	retry    RetryPolicy
	progress ProgressFunc
	logger   *slog.Logger
}

// NewPool creates a worker pool.
func NewPool(cfg PoolConfig) (*Pool, error) {
	if cfg.Rewriter == nil {
		return nil, fmt.Errorf("rewriter is required")
	}
	if cfg.Column == "" {
		return nil, fmt.Errorf("target column is required")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 5
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		workers:  cfg.Workers,
		column:   cfg.Column,
		model:    cfg.Model,
		rewriter: cfg.Rewriter,
		limiter:  cfg.Limiter,
		retry:    cfg.Retry,
		progress: cfg.Progress,
		logger:   logger.With("component", "pool"),
	}, nil
}

// Run processes every row and returns one outcome per row, aligned with
// row indexes. Completion order across workers is unconstrained; outcomes
// land in pre-sized index-addressed slots, so no locking is needed on the
// result structure. Cancellation stops admitting new rows, lets in-flight
// ones drain, and marks the remainder Skipped.
func (p *Pool) Run(ctx context.Context, rows []Row) []Outcome {
	outcomes := make([]Outcome, len(rows))
	taken := make([]bool, len(rows))
	if len(rows) == 0 {
		return outcomes
	}

	jobs := make(chan Row)
	go func() {
		defer close(jobs)
		for _, row := range rows {
			select {
			case jobs <- row:
			case <-ctx.Done():
				return
			}
		}
	}()

	var done atomic.Int64
	var wg sync.WaitGroup
	for w := 0; w < p.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for row := range jobs {
				taken[row.Index] = true
				outcome := p.processRow(ctx, row)
				outcomes[row.Index] = outcome
				completed := int(done.Add(1))
				if p.progress != nil {
					p.progress(completed, len(rows), outcome)
				}
			}
		}()
	}
	wg.Wait()

	// Rows the feeder never handed out (graceful abort) keep their
	// original value.
	for i := range outcomes {
		if !taken[i] {
			outcomes[i] = Outcome{Status: StatusSkipped}
		}
	}
	return outcomes
}

// processRow runs the adapter-plus-retry loop for one row. Failures never
// escape as a fault for the whole batch; they are captured into the row's
// outcome.
func (p *Pool) processRow(ctx context.Context, row Row) Outcome {
	original := row.Fields[p.column]
	if strings.TrimSpace(original) == "" {
		// Empty cells are a no-op: no call is spent on them.
		return Outcome{Status: StatusSkipped}
	}

	attempts := 0
	var resp *rewrite.Response
	opts := append(p.retry.options(ctx), retry.OnRetry(func(n uint, err error) {
		p.logger.Warn("rewrite attempt failed, retrying",
			"row", row.Index, "attempt", n+1, "error", err)
	}))

	err := retry.Do(func() error {
		attempts++
		if err := p.limiter.Wait(ctx); err != nil {
			return rewrite.NewTransient("rate limit wait interrupted", err)
		}
		r, err := p.rewriter.Rewrite(ctx, &rewrite.Request{
			Model:     p.model,
			Text:      original,
			RequestID: uuid.New().String(),
		})
		if err != nil {
			return err
		}
		resp = r
		return nil
	}, opts...)

	if err != nil {
		if errors.Is(err, context.Canceled) {
			// Interrupted by an operator abort, not a row fault.
			return Outcome{Status: StatusSkipped, Attempts: attempts}
		}
		p.logger.Warn("row failed", "row", row.Index, "attempts", attempts, "error", err)
		return Outcome{Status: StatusFailed, Err: err, Attempts: attempts}
	}

	p.logger.Debug("row rewritten", "row", row.Index, "attempts", attempts,
		"request_id", resp.RequestID, "tokens", resp.TotalTokens)
	return Outcome{Status: StatusSuccess, Text: resp.RewrittenHTML, Attempts: attempts}
}

package batch

import (
	"context"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/smarchal/reformulator/internal/rewrite"
)

// Retry policy defaults.
const (
	DefaultMaxAttempts = 5
	DefaultBaseDelay   = 500 * time.Millisecond
	DefaultMaxDelay    = 30 * time.Second
)

// RetryPolicy bounds reattempts of a single row's rewrite. Only transient
// failures are retried; permanent failures give up immediately. The policy
// is stateless with respect to the batch.
type RetryPolicy struct {
	// MaxAttempts is the per-row attempt ceiling, including the first call.
	MaxAttempts uint
	// BaseDelay is the backoff delay before the first reattempt; each
	// subsequent reattempt doubles it.
	BaseDelay time.Duration
	// MaxDelay caps the backoff.
	MaxDelay time.Duration
}

// DefaultRetryPolicy returns the policy used when the operator does not
// override it.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		MaxDelay:    DefaultMaxDelay,
	}
}

// normalized fills zero fields with defaults and guards against the
// retry library treating zero attempts as unlimited.
func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts == 0 {
		p.MaxAttempts = 1
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultBaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultMaxDelay
	}
	return p
}

// options compiles the policy into retry-go options: exponential backoff
// from BaseDelay capped at MaxDelay, randomized jitter so concurrent
// workers do not retry in lockstep, transient-only reattempts, and
// context-aware sleeps so one row's backoff never stalls a shutdown.
func (p RetryPolicy) options(ctx context.Context) []retry.Option {
	p = p.normalized()
	return []retry.Option{
		retry.Context(ctx),
		retry.Attempts(p.MaxAttempts),
		retry.Delay(p.BaseDelay),
		retry.MaxDelay(p.MaxDelay),
		retry.DelayType(retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)),
		retry.MaxJitter(p.BaseDelay / 2),
		retry.RetryIf(rewrite.IsTransient),
		retry.LastErrorOnly(true),
	}
}

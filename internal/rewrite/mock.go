package rewrite

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"
)

const MockName = "mock"

// MockRewriter is a Rewriter for testing. Behavior can be scripted per
// call via Func; otherwise every call succeeds with a prefixed echo of
// the input after the configured latency.
type MockRewriter struct {
	// Latency simulates network time per call.
	Latency time.Duration
	// Func, when set, fully controls the response per call.
	Func func(ctx context.Context, req *Request) (*Response, error)

	requestCount atomic.Int64
	inFlight     atomic.Int64
	highWater    atomic.Int64
}

// NewMockRewriter creates a mock with a small default latency.
func NewMockRewriter() *MockRewriter {
	return &MockRewriter{Latency: 5 * time.Millisecond}
}

// Name returns the client identifier.
func (m *MockRewriter) Name() string {
	return MockName
}

// Rewrite executes the scripted behavior while tracking request count and
// the concurrent in-flight high-water mark.
func (m *MockRewriter) Rewrite(ctx context.Context, req *Request) (*Response, error) {
	m.requestCount.Add(1)
	cur := m.inFlight.Add(1)
	defer m.inFlight.Add(-1)
	for {
		prev := m.highWater.Load()
		if cur <= prev || m.highWater.CompareAndSwap(prev, cur) {
			break
		}
	}

	if m.Latency > 0 {
		select {
		case <-time.After(m.Latency):
		case <-ctx.Done():
			return nil, NewTransient("mock latency interrupted", ctx.Err())
		}
	}

	if m.Func != nil {
		return m.Func(ctx, req)
	}

	return &Response{
		RewrittenHTML: fmt.Sprintf("rewritten: %s", strings.TrimSpace(req.Text)),
		ModelUsed:     req.Model,
		RequestID:     req.RequestID,
		Duration:      m.Latency,
	}, nil
}

// RequestCount returns the number of calls made.
func (m *MockRewriter) RequestCount() int64 {
	return m.requestCount.Load()
}

// HighWaterMark returns the maximum number of concurrent in-flight calls
// observed.
func (m *MockRewriter) HighWaterMark() int64 {
	return m.highWater.Load()
}

// Reset clears counters.
func (m *MockRewriter) Reset() {
	m.requestCount.Store(0)
	m.highWater.Store(0)
}

var _ Rewriter = (*MockRewriter)(nil)

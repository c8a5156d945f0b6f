package batch

import (
	"testing"
	"time"
)

func TestRetryPolicy_Normalized(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		p := DefaultRetryPolicy()
		if p.MaxAttempts != 5 {
			t.Errorf("expected 5 attempts, got %d", p.MaxAttempts)
		}
		if p.BaseDelay != 500*time.Millisecond {
			t.Errorf("unexpected base delay %v", p.BaseDelay)
		}
		if p.MaxDelay != 30*time.Second {
			t.Errorf("unexpected max delay %v", p.MaxDelay)
		}
	})

	t.Run("zero attempts becomes one", func(t *testing.T) {
		p := RetryPolicy{}.normalized()
		if p.MaxAttempts != 1 {
			t.Errorf("expected 1 attempt, got %d", p.MaxAttempts)
		}
	})

	t.Run("zero delays filled with defaults", func(t *testing.T) {
		p := RetryPolicy{MaxAttempts: 3}.normalized()
		if p.BaseDelay != DefaultBaseDelay || p.MaxDelay != DefaultMaxDelay {
			t.Errorf("expected default delays, got %v / %v", p.BaseDelay, p.MaxDelay)
		}
	})
}

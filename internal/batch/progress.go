package batch

import (
	"log/slog"
	"sync"
	"time"
)

// DefaultProgressInterval throttles progress log lines.
const DefaultProgressInterval = time.Second

// NewLogProgress returns a ProgressFunc that logs completion percentage,
// throttled to one line per interval. The final row is always logged so
// a run never ends mid-bar.
func NewLogProgress(logger *slog.Logger, interval time.Duration) ProgressFunc {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = DefaultProgressInterval
	}

	var mu sync.Mutex
	var lastEmit time.Time

	return func(done, total int, _ Outcome) {
		mu.Lock()
		defer mu.Unlock()

		now := time.Now()
		if done < total && now.Sub(lastEmit) < interval {
			return
		}
		lastEmit = now

		percent := 100.0
		if total > 0 {
			percent = float64(done) / float64(total) * 100
		}
		logger.Info("progress",
			"percent", int(percent),
			"done", done,
			"total", total,
		)
	}
}

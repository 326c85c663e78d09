package history

import (
	"context"
	"time"
)

// Logger is the logging surface used by the pruner.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// PruneLoop deletes entries older than retention once immediately and then
// every interval until ctx is cancelled.
func (r *SQLiteRepository) PruneLoop(ctx context.Context, interval, retention time.Duration, logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}

	prune := func() {
		n, err := r.Prune(ctx, retention)
		if err != nil {
			if ctx.Err() == nil {
				logger.Error("pruning attribute history failed", "error", err)
			}
			return
		}
		if n > 0 {
			logger.Info("pruned attribute history", "rows", n, "retention", retention.String())
		}
	}

	prune()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prune()
		}
	}
}

// internal/app/system/tasks/jobs.go
package tasks

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// PresenceSweeper marks users offline after a period of silence.
type PresenceSweeper interface {
	SweepStale(ctx context.Context, timeout time.Duration) (int, error)
}

// RetryFlusher re-attempts queued notification writes.
type RetryFlusher interface {
	FlushRetries(ctx context.Context) int
	Pending() int
}

// PresenceSweepJob marks users offline when no heartbeat arrived within
// timeout. Browsers that close without logging out would otherwise stay
// online forever.
func PresenceSweepJob(users PresenceSweeper, logger *zap.Logger, timeout time.Duration) Job {
	return Job{
		Name:     "presence-sweep",
		Interval: 1 * time.Minute,
		Run: func(ctx context.Context) error {
			count, err := users.SweepStale(ctx, timeout)
			if err != nil {
				return err
			}
			if count > 0 {
				logger.Info("marked idle users offline",
					zap.Int("count", count),
					zap.Duration("timeout", timeout))
			}
			return nil
		},
	}
}

// NotificationRetryJob flushes the notification retry queue.
func NotificationRetryJob(n RetryFlusher, logger *zap.Logger, interval time.Duration) Job {
	return Job{
		Name:     "notification-retry",
		Interval: interval,
		Run: func(ctx context.Context) error {
			if n.Pending() == 0 {
				return nil
			}
			if delivered := n.FlushRetries(ctx); delivered > 0 {
				logger.Info("delivered queued notifications",
					zap.Int("count", delivered),
					zap.Int("remaining", n.Pending()))
			}
			return nil
		},
	}
}

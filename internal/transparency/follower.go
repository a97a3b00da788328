package transparency

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Follower keeps an Aggregator caught up with the ledger in the background.
// It never blocks decision-making: appends only nudge it over a buffered
// channel, and a poll interval covers missed nudges. Snapshots taken while it
// lags simply describe a slightly older prefix.
type Follower struct {
	agg    *Aggregator
	src    EventSource
	wake   <-chan int64
	poll   time.Duration
	logger *zap.Logger
}

const defaultPollInterval = time.Second

func NewFollower(agg *Aggregator, src EventSource, wake <-chan int64, poll time.Duration, logger *zap.Logger) *Follower {
	if poll <= 0 {
		poll = defaultPollInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Follower{agg: agg, src: src, wake: wake, poll: poll, logger: logger}
}

// Run consumes until ctx is cancelled. Catch-up errors are logged and
// retried on the next wake; the decision path is never affected.
func (f *Follower) Run(ctx context.Context) {
	ticker := time.NewTicker(f.poll)
	defer ticker.Stop()

	for {
		if err := f.agg.CatchUp(f.src); err != nil {
			f.logger.Warn("transparency catch-up failed",
				zap.Int64("cursor", f.agg.Cursor()),
				zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-f.wake:
		case <-ticker.C:
		}
	}
}

package tracker

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Poller drives the tracker on a fixed-period timer. Polls are single-flight:
// the loop runs one poll to completion before looking at the ticker again,
// and any tick that fired while a poll was in flight is dropped, not queued.
// Transport errors are logged and retried on the next tick; they never touch
// the cursor or the processed-key set.
type Poller struct {
	client   *Client
	tracker  *Tracker
	interval time.Duration
	logger   *zap.Logger
}

func NewPoller(client *Client, tracker *Tracker, interval time.Duration, logger *zap.Logger) *Poller {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Poller{client: client, tracker: tracker, interval: interval, logger: logger}
}

// Run blocks until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	// prime immediately so a fresh watcher catches up without waiting a tick
	p.pollOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.pollOnce(ctx)

			// drop the tick that may have fired during a slow poll
			select {
			case <-ticker.C:
			default:
			}
		}
	}
}

func (p *Poller) pollOnce(ctx context.Context) {
	res, err := p.client.Poll(ctx, p.tracker.Cursor())
	if err != nil {
		if ctx.Err() == nil {
			p.logger.Warn("poll failed, retrying next tick", zap.Error(err))
		}
		return
	}

	if err := p.tracker.OnBatch(ctx, res.Events); err != nil {
		p.logger.Warn("state persistence failed", zap.Error(err))
	}
}

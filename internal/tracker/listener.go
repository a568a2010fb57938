package tracker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/complyport/screening-relay/internal/model"
)

// Listener drives the tracker from the push channel. Events arrive as they
// are published, with no client-side polling timer; a dropped stream is
// reconnected after a fixed wait. Both listener and poller feed the same
// tracker, so a mode switch mid-session replays nothing.
type Listener struct {
	client    *Client
	tracker   *Tracker
	retryWait time.Duration
	logger    *zap.Logger
}

func NewListener(client *Client, tracker *Tracker, retryWait time.Duration, logger *zap.Logger) *Listener {
	if retryWait <= 0 {
		retryWait = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Listener{client: client, tracker: tracker, retryWait: retryWait, logger: logger}
}

// Run blocks until ctx is cancelled, reconnecting on stream errors. Each
// (re)connect starts with a one-shot catch-up poll so events published while
// the stream was down are not lost to this consumer.
func (l *Listener) Run(ctx context.Context) error {
	for {
		if res, err := l.client.Poll(ctx, l.tracker.Cursor()); err == nil {
			if err := l.tracker.OnBatch(ctx, res.Events); err != nil {
				l.logger.Warn("state persistence failed", zap.Error(err))
			}
		} else if ctx.Err() == nil {
			l.logger.Warn("catch-up poll failed", zap.Error(err))
		}

		err := l.client.Stream(ctx, func(evt model.Event) error {
			return l.tracker.OnBatch(ctx, []model.Event{evt})
		})

		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			l.logger.Warn("stream dropped, reconnecting", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(l.retryWait):
		}
	}
}

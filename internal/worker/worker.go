// Package worker implements the batch job consumer: a long-poll loop that
// leases one message at a time, heartbeats its visibility window while the
// job runs, and deletes the message on every outcome. Parallelism across
// jobs comes from running multiple worker processes against the same queue;
// the broker's lease is the only coordination between them.
package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/comets-analytics/comets-batch/internal/metrics"
	"github.com/comets-analytics/comets-batch/internal/queue"
)

// Handler processes one message body. Implementations must not panic as
// their error handling strategy; the loop recovers panics only as a last
// resort so the message still gets deleted.
type Handler interface {
	Handle(ctx context.Context, body []byte)
}

// Loop consumes job messages until its context is cancelled.
type Loop struct {
	consumer     queue.Consumer
	handler      Handler
	visibility   time.Duration
	pollInterval time.Duration
	receiveWait  time.Duration
	logger       *slog.Logger
}

// NewLoop creates a worker loop. visibility must match the queue's
// configured lease duration; pollInterval is the idle sleep between empty
// polls; receiveWait bounds a single long-poll receive call.
func NewLoop(consumer queue.Consumer, handler Handler, visibility, pollInterval, receiveWait time.Duration, logger *slog.Logger) *Loop {
	return &Loop{
		consumer:     consumer,
		handler:      handler,
		visibility:   visibility,
		pollInterval: pollInterval,
		receiveWait:  receiveWait,
		logger:       logger,
	}
}

// Run processes messages until ctx is cancelled. A single message-handling
// failure never terminates the loop; the only error returned is ctx.Err().
func (l *Loop) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		// Lease at most one message at a time: heartbeat correctness is
		// simple to reason about when exactly one lease is in flight.
		deliveries, err := l.consumer.Receive(ctx, 1, l.receiveWait)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			l.logger.Warn("receive failed", "error", err)
		}

		for _, d := range deliveries {
			l.process(ctx, d)
		}

		if len(deliveries) == 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(l.pollInterval):
			}
		}
	}
}

// process runs the handler for one delivery. Whatever the outcome, the
// heartbeat is stopped and the message deleted: with no dead-letter routing
// assumed, retry-on-failure is the handler's own responsibility, and leaving
// the message would only cause an infinite redelivery loop.
func (l *Loop) process(ctx context.Context, d queue.Delivery) {
	metrics.JobsReceived.Inc()

	hb := StartHeartbeat(d, l.visibility, l.logger)
	defer func() {
		hb.Stop()
		if err := d.Delete(ctx); err != nil {
			// Non-fatal: the broker's lease expiry is the safety net, at
			// the cost of a possible duplicate run.
			l.logger.Error("delete message failed", "error", err)
		}
	}()
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("handler panicked", "panic", r)
		}
	}()

	l.handler.Handle(ctx, d.Body())
}

package worker

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/comets-analytics/comets-batch/internal/metrics"
	"github.com/comets-analytics/comets-batch/internal/queue"
)

// Heartbeat keeps a leased message invisible to other consumers while its
// job is still running, without requiring an up-front bound on execution
// time. It runs on its own goroutine and extends the delivery's visibility
// window shortly before each expiry.
type Heartbeat struct {
	delivery queue.Delivery
	interval time.Duration
	logger   *slog.Logger
	stopped  atomic.Bool
	quit     chan struct{}
	done     chan struct{}
}

// StartHeartbeat begins extending the delivery's visibility window every
// visibility - 1s, so each extension lands before the lease would expire.
func StartHeartbeat(d queue.Delivery, visibility time.Duration, logger *slog.Logger) *Heartbeat {
	interval := visibility - time.Second
	if interval <= 0 {
		interval = visibility / 2
	}

	h := &Heartbeat{
		delivery: d,
		interval: interval,
		logger:   logger,
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go h.run()
	return h
}

func (h *Heartbeat) run() {
	defer close(h.done)

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-h.quit:
			return
		case <-ticker.C:
			if h.stopped.Load() {
				return
			}
			// An extension failure is not fatal to the job in progress: the
			// next tick retries, and if the lease truly lapses the broker
			// redelivers under at-least-once semantics.
			if err := h.delivery.Extend(context.Background()); err != nil {
				metrics.HeartbeatFailures.Inc()
				h.logger.Warn("visibility extension failed", "error", err)
				continue
			}
			metrics.HeartbeatExtensions.Inc()
		}
	}
}

// Stop signals the heartbeat and waits for its goroutine to exit. After
// Stop returns, no further extension calls are issued. Safe to call more
// than once.
func (h *Heartbeat) Stop() {
	if h.stopped.CompareAndSwap(false, true) {
		close(h.quit)
	}
	<-h.done
}

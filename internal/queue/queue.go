// Package queue provides abstractions for durable job-queue communication.
// It defines interfaces that let the producer and worker exchange job
// envelopes without being coupled to a specific broker implementation.
package queue

import (
	"context"
	"time"
)

// Delivery is one leased message. The lease exists only for the duration of
// a single worker iteration: the broker redelivers the message to another
// consumer if the visibility window lapses without an Extend or Delete.
type Delivery interface {
	// Body returns the raw message payload.
	Body() []byte

	// Extend renews the visibility window for this delivery, keeping the
	// message invisible to other consumers while work is still running.
	Extend(ctx context.Context) error

	// Delete permanently removes the message from the queue. Must be called
	// exactly once per processed delivery, whatever the processing outcome.
	Delete(ctx context.Context) error
}

// Producer sends job envelopes to the queue.
type Producer interface {
	// Send publishes one message. messageID doubles as the broker-side
	// deduplication key, so redundant sends within the dedup window are
	// dropped rather than duplicated.
	Send(ctx context.Context, messageID string, body []byte) error
}

// Consumer leases messages from the queue.
type Consumer interface {
	// Receive long-polls for up to max messages, waiting at most wait.
	// Returns an empty slice when the wait bound elapses without traffic.
	Receive(ctx context.Context, max int, wait time.Duration) ([]Delivery, error)
}

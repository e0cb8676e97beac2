// Package nats provides a NATS JetStream implementation of the queue
// interfaces, backing the job queue with a durable work-queue stream.
package nats

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/comets-analytics/comets-batch/internal/queue"
)

// Config holds JetStream queue configuration.
type Config struct {
	// URL is the NATS server URL (e.g., "nats://localhost:4222").
	URL string

	// Name is the client name for connection identification.
	Name string

	// Stream is the work-queue stream name.
	Stream string

	// Subject is the subject job envelopes are published to.
	Subject string

	// Consumer is the durable consumer name shared by worker processes.
	Consumer string

	// VisibilityTimeout is the consumer AckWait: how long a delivered
	// message stays invisible before the broker considers it abandoned.
	VisibilityTimeout time.Duration

	// MaxReconnects is the maximum number of reconnection attempts.
	// Use -1 for infinite reconnects.
	MaxReconnects int

	// ReconnectWait is the time to wait between reconnection attempts.
	ReconnectWait time.Duration

	// Timeout is the connection timeout.
	Timeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		URL:               nats.DefaultURL,
		Name:              "comets-batch",
		Stream:            "BATCH_JOBS",
		Subject:           "batch.jobs.models",
		Consumer:          "batch-processor",
		VisibilityTimeout: 30 * time.Second,
		MaxReconnects:     -1, // Infinite reconnects
		ReconnectWait:     2 * time.Second,
		Timeout:           5 * time.Second,
	}
}

// Client implements queue.Producer and queue.Consumer on JetStream.
type Client struct {
	conn     *nats.Conn
	js       jetstream.JetStream
	consumer jetstream.Consumer
	cfg      Config
}

// NewClient connects to NATS and ensures the work-queue stream and durable
// consumer exist. Startup failures here are fatal to the calling process by
// design: better to fail fast than run against a missing stream.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	stream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     cfg.Stream,
		Subjects: []string{cfg.Subject},
		// Work-queue retention: each message is delivered to exactly one
		// consumer and removed once acknowledged.
		Retention: jetstream.WorkQueuePolicy,
		Storage:   jetstream.FileStorage,
		// Duplicate publishes with the same message ID inside this window
		// are dropped by the broker.
		Duplicates: 10 * time.Minute,
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create/update stream %s: %w", cfg.Stream, err)
	}

	consumer, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:          cfg.Consumer,
		Durable:       cfg.Consumer,
		FilterSubject: cfg.Subject,
		AckWait:       cfg.VisibilityTimeout,
		AckPolicy:     jetstream.AckExplicitPolicy,
		// Handler-level error handling deletes failed messages itself, so
		// the redelivery cap only guards against worker crashes.
		MaxDeliver:    20,
		MaxAckPending: 100,
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create/update consumer %s: %w", cfg.Consumer, err)
	}

	return &Client{
		conn:     conn,
		js:       js,
		consumer: consumer,
		cfg:      cfg,
	}, nil
}

// Send publishes one job envelope with messageID as the dedup key.
func (c *Client) Send(ctx context.Context, messageID string, body []byte) error {
	_, err := c.js.Publish(ctx, c.cfg.Subject, body, jetstream.WithMsgID(messageID))
	if err != nil {
		return fmt.Errorf("publish to %s: %w", c.cfg.Subject, err)
	}
	return nil
}

// Receive fetches up to max messages, waiting at most wait for the first.
func (c *Client) Receive(ctx context.Context, max int, wait time.Duration) ([]queue.Delivery, error) {
	batch, err := c.consumer.Fetch(max, jetstream.FetchMaxWait(wait))
	if err != nil {
		return nil, fmt.Errorf("fetch from %s: %w", c.cfg.Consumer, err)
	}

	var deliveries []queue.Delivery
	for msg := range batch.Messages() {
		deliveries = append(deliveries, &delivery{msg: msg})
	}
	if err := batch.Error(); err != nil {
		return deliveries, fmt.Errorf("fetch from %s: %w", c.cfg.Consumer, err)
	}
	return deliveries, nil
}

// Close releases the NATS connection.
func (c *Client) Close() {
	c.conn.Close()
}

// IsConnected returns true if connected to NATS.
func (c *Client) IsConnected() bool {
	return c.conn.IsConnected()
}

// delivery adapts a JetStream message to queue.Delivery.
type delivery struct {
	msg jetstream.Msg
}

func (d *delivery) Body() []byte {
	return d.msg.Data()
}

// Extend resets the AckWait clock for this message.
func (d *delivery) Extend(ctx context.Context) error {
	if err := d.msg.InProgress(); err != nil {
		return fmt.Errorf("extend visibility: %w", err)
	}
	return nil
}

// Delete acknowledges the message, removing it from the work queue.
func (d *delivery) Delete(ctx context.Context) error {
	if err := d.msg.Ack(); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}

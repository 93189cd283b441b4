package events

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/meditrust/hospital-core/internal/monitoring"
	"github.com/meditrust/hospital-core/pkg/logger"
)

// Handler processes one decoded event. Implementations run their side
// effects inside a transaction that commits iff the handler returns nil; the
// ack happens only after that. Handlers must be idempotent keyed by eventId.
type Handler func(ctx context.Context, event Event) error

// ConsumerOptions bound a consumer's concurrency and per-message deadline.
type ConsumerOptions struct {
	Prefetch       int
	Handlers       int
	HandlerTimeout time.Duration
}

func (o ConsumerOptions) withDefaults() ConsumerOptions {
	if o.Prefetch <= 0 {
		o.Prefetch = 10
	}
	if o.Handlers <= 0 {
		o.Handlers = 4
	}
	if o.HandlerTimeout <= 0 {
		o.HandlerTimeout = 30 * time.Second
	}
	return o
}

// Consumer drains one queue with a bounded worker pool.
type Consumer struct {
	queue   QueueSpec
	handler Handler
	opts    ConsumerOptions
	logger  logger.Logger

	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewConsumer dials the broker, declares the queue's topology and prepares
// consumption. Start must be called to begin draining.
func NewConsumer(url string, queue QueueSpec, handler Handler, opts ConsumerOptions, log logger.Logger) (*Consumer, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("events: dial broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("events: open channel: %w", err)
	}
	if err := DeclareTopology(ch, []QueueSpec{queue}); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	o := opts.withDefaults()
	if err := ch.Qos(o.Prefetch, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("events: set qos: %w", err)
	}

	return &Consumer{
		queue:   queue,
		handler: handler,
		opts:    o,
		logger:  log.With("queue", queue.Name),
		conn:    conn,
		ch:      ch,
	}, nil
}

// Start consumes until the context is cancelled. Deliveries fan out to the
// bounded worker pool; per-aggregate ordering holds within the queue because
// the broker delivers one routing key's messages in order and handlers for
// the same aggregate land on the same snapshot row (last-write-wins).
func (c *Consumer) Start(ctx context.Context) error {
	deliveries, err := c.ch.Consume(c.queue.Name, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("events: consume %s: %w", c.queue.Name, err)
	}

	c.logger.Info("Consumer started",
		"prefetch", c.opts.Prefetch, "handlers", c.opts.Handlers)

	sem := make(chan struct{}, c.opts.Handlers)
	for {
		select {
		case <-ctx.Done():
			return c.close()
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("events: delivery channel closed for %s", c.queue.Name)
			}
			sem <- struct{}{}
			go func(d amqp.Delivery) {
				defer func() { <-sem }()
				c.handleDelivery(ctx, d)
			}(d)
		}
	}
}

// handleDelivery applies the consumption contract:
//   - undecodable or tenant-less messages are logged and dropped (acked), so
//     they never poison the queue;
//   - handler failure requeues once; a second failure routes the message to
//     the dead-letter queue via the DLX.
func (c *Consumer) handleDelivery(ctx context.Context, d amqp.Delivery) {
	event, err := Decode(d.RoutingKey, d.Body)
	if err != nil {
		c.logger.Warn("Dropping undecodable message", "routing_key", d.RoutingKey, "error", err)
		monitoring.RecordEventConsumed(c.queue.Name, d.RoutingKey, "dropped")
		_ = d.Ack(false)
		return
	}

	if event.Header().TenantID == "" {
		c.logger.Warn("Dropping event without tenant",
			"routing_key", d.RoutingKey, "event_id", event.Header().EventID)
		monitoring.RecordEventConsumed(c.queue.Name, d.RoutingKey, "dropped")
		_ = d.Ack(false)
		return
	}

	handlerCtx, cancel := context.WithTimeout(ctx, c.opts.HandlerTimeout)
	defer cancel()

	if err := c.handler(handlerCtx, event); err != nil {
		if d.Redelivered {
			c.logger.Error("Handler failed twice, dead-lettering",
				"routing_key", d.RoutingKey, "event_id", event.Header().EventID, "error", err)
			monitoring.RecordEventConsumed(c.queue.Name, d.RoutingKey, "dead_lettered")
			monitoring.RecordDeadLetter(d.RoutingKey)
			_ = d.Nack(false, false)
			return
		}
		c.logger.Warn("Handler failed, requeueing once",
			"routing_key", d.RoutingKey, "event_id", event.Header().EventID, "error", err)
		monitoring.RecordEventConsumed(c.queue.Name, d.RoutingKey, "requeued")
		_ = d.Nack(false, true)
		return
	}

	monitoring.RecordEventConsumed(c.queue.Name, d.RoutingKey, "processed")
	_ = d.Ack(false)
}

func (c *Consumer) close() error {
	if c.ch != nil {
		c.ch.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

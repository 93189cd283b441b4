package events

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/meditrust/hospital-core/internal/monitoring"
	"github.com/meditrust/hospital-core/pkg/logger"
)

// Publisher is the producer side of the event fabric. Publication happens
// after the local write commits; duplicates are allowed and consumers dedupe
// on eventId.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

const (
	publishBackoffBase = 100 * time.Millisecond
	publishTimeout     = 5 * time.Second
)

type amqpPublisher struct {
	url           string
	retries       int
	deadLetterDir string
	logger        logger.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewAMQPPublisher connects to the broker and declares the exchanges. The
// publisher survives broker restarts by re-dialing on the next publish.
func NewAMQPPublisher(url string, retries int, deadLetterDir string, log logger.Logger) (Publisher, error) {
	p := &amqpPublisher{
		url:           url,
		retries:       retries,
		deadLetterDir: deadLetterDir,
		logger:        log,
	}
	if err := p.connect(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *amqpPublisher) connect() error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return fmt.Errorf("events: dial broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("events: open channel: %w", err)
	}
	if err := DeclareTopology(ch, nil); err != nil {
		ch.Close()
		conn.Close()
		return err
	}
	p.conn = conn
	p.ch = ch
	return nil
}

// Publish sends the event with bounded exponential backoff. After the
// retries are exhausted the event is persisted to the local dead-letter
// directory so it is never silently lost.
func (p *amqpPublisher) Publish(ctx context.Context, event Event) error {
	body, err := Encode(event)
	if err != nil {
		return err
	}
	key := event.RoutingKey()

	var lastErr error
	for attempt := 0; attempt <= p.retries; attempt++ {
		if attempt > 0 {
			backoff := publishBackoffBase * time.Duration(1<<uint(attempt-1))
			jitter := time.Duration(rand.Int63n(int64(backoff)/2 + 1))
			select {
			case <-time.After(backoff + jitter):
			case <-ctx.Done():
				lastErr = ctx.Err()
			}
			if ctx.Err() != nil {
				break
			}
		}

		if lastErr = p.tryPublish(ctx, key, event.Header().EventID, body); lastErr == nil {
			monitoring.RecordEventPublished(key, true)
			return nil
		}
		p.logger.Warn("Event publish attempt failed",
			"routing_key", key, "attempt", attempt+1, "error", lastErr)
	}

	monitoring.RecordEventPublished(key, false)
	monitoring.RecordDeadLetter(key)
	if dlErr := p.writeDeadLetter(key, event.Header().EventID, body); dlErr != nil {
		p.logger.Error("Failed to persist dead-lettered event",
			"routing_key", key, "event_id", event.Header().EventID, "error", dlErr)
	}
	return fmt.Errorf("events: publish %s exhausted retries: %w", key, lastErr)
}

func (p *amqpPublisher) tryPublish(ctx context.Context, key, eventID string, body []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch == nil || p.ch.IsClosed() {
		if err := p.connect(); err != nil {
			return err
		}
	}

	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	return p.ch.PublishWithContext(pubCtx, DomainExchange, key, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    eventID,
		Timestamp:    time.Now(),
		Body:         body,
	})
}

// writeDeadLetter appends the undeliverable event to a local file queue for
// operator replay.
func (p *amqpPublisher) writeDeadLetter(key, eventID string, body []byte) error {
	if p.deadLetterDir == "" {
		return nil
	}
	if err := os.MkdirAll(p.deadLetterDir, 0o750); err != nil {
		return err
	}
	name := fmt.Sprintf("%d-%s-%s.json", time.Now().UnixNano(), key, eventID)
	return os.WriteFile(filepath.Join(p.deadLetterDir, name), body, 0o640)
}

func (p *amqpPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// MemoryPublisher records events in memory. Used by tests and by services
// running without a broker in development.
type MemoryPublisher struct {
	mu     sync.Mutex
	Events []Event
}

func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

func (m *MemoryPublisher) Publish(ctx context.Context, event Event) error {
	if _, err := Encode(event); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, event)
	return nil
}

func (m *MemoryPublisher) Close() error { return nil }

// ByRoutingKey returns the recorded events published under key.
func (m *MemoryPublisher) ByRoutingKey(key string) []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Event
	for _, e := range m.Events {
		if e.RoutingKey() == key {
			out = append(out, e)
		}
	}
	return out
}

// Package events defines the typed domain events, the broker topology, and
// the publish/consume contracts of the event fabric.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Envelope is the common header every domain event carries. It is embedded
// into each event struct so the wire format stays flat:
// {eventId, eventType, occurredAt, tenantId, ...payload}.
type Envelope struct {
	EventID    string    `json:"eventId"`
	EventType  string    `json:"eventType"`
	OccurredAt time.Time `json:"occurredAt"`
	TenantID   string    `json:"tenantId"`
}

// Event is implemented by every domain event.
type Event interface {
	// RoutingKey is the <aggregate>.<verb> key the event is published under.
	RoutingKey() string
	// Header exposes the shared envelope.
	Header() *Envelope
}

// Header implements Event for every struct embedding Envelope.
func (e *Envelope) Header() *Envelope { return e }

// NewEnvelope stamps a fresh envelope for a tenant-scoped event.
func NewEnvelope(eventType, tenantID string) Envelope {
	return Envelope{
		EventID:    uuid.NewString(),
		EventType:  eventType,
		OccurredAt: time.Now().UTC(),
		TenantID:   tenantID,
	}
}

// Decode deserializes a raw message into its typed event using the registry.
// Unknown event types return an error so consumers can drop them explicitly.
func Decode(routingKey string, body []byte) (Event, error) {
	factory, ok := registry[routingKey]
	if !ok {
		return nil, fmt.Errorf("events: unknown routing key %q", routingKey)
	}
	event := factory()
	if err := json.Unmarshal(body, event); err != nil {
		return nil, fmt.Errorf("events: decode %s: %w", routingKey, err)
	}
	return event, nil
}

// Encode serializes an event, stamping a fresh envelope when the caller left
// it empty.
func Encode(event Event) ([]byte, error) {
	h := event.Header()
	if h.EventID == "" {
		h.EventID = uuid.NewString()
	}
	if h.OccurredAt.IsZero() {
		h.OccurredAt = time.Now().UTC()
	}
	if h.EventType == "" {
		h.EventType = event.RoutingKey()
	}
	return json.Marshal(event)
}

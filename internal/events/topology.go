package events

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange layout: one topic exchange for domain events, one direct exchange
// for CDC-style updates, and a dead-letter exchange shared by all queues.
const (
	DomainExchange     = "hospital.events"
	CDCExchange        = "hospital.cdc"
	DeadLetterExchange = "hospital.events.dlx"
)

// QueueSpec names one consumer queue and the routing keys bound to it.
// Queues are named <consumer>.<event family>.
type QueueSpec struct {
	Name     string
	Bindings []string
}

// DeadLetterQueue returns the paired dead-letter queue name.
func (q QueueSpec) DeadLetterQueue() string { return q.Name + ".dlq" }

// DeclareTopology declares exchanges, queues and bindings on the channel.
// Declarations are idempotent; every service declares what it uses at boot.
func DeclareTopology(ch *amqp.Channel, queues []QueueSpec) error {
	if err := ch.ExchangeDeclare(DomainExchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", DomainExchange, err)
	}
	if err := ch.ExchangeDeclare(CDCExchange, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", CDCExchange, err)
	}
	if err := ch.ExchangeDeclare(DeadLetterExchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", DeadLetterExchange, err)
	}

	for _, q := range queues {
		args := amqp.Table{
			"x-dead-letter-exchange": DeadLetterExchange,
		}
		if _, err := ch.QueueDeclare(q.Name, true, false, false, false, args); err != nil {
			return fmt.Errorf("declare queue %s: %w", q.Name, err)
		}
		if _, err := ch.QueueDeclare(q.DeadLetterQueue(), true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare queue %s: %w", q.DeadLetterQueue(), err)
		}
		for _, key := range q.Bindings {
			if err := ch.QueueBind(q.Name, key, DomainExchange, false, nil); err != nil {
				return fmt.Errorf("bind %s to %s: %w", q.Name, key, err)
			}
			// Rejected messages keep their routing key through the DLX.
			if err := ch.QueueBind(q.DeadLetterQueue(), key, DeadLetterExchange, false, nil); err != nil {
				return fmt.Errorf("bind %s to %s: %w", q.DeadLetterQueue(), key, err)
			}
		}
	}
	return nil
}

// Standard queue layouts per consumer service.
var (
	// AuditQueue receives every domain event.
	AuditQueue = QueueSpec{
		Name:     "audit-service.events",
		Bindings: []string{"#"},
	}

	// AppointmentPatientQueue feeds the patient facts projection.
	AppointmentPatientQueue = QueueSpec{
		Name:     "appointment-service.patient",
		Bindings: []string{"patient.*"},
	}

	// AppointmentDoctorQueue feeds the doctor facts projection.
	AppointmentDoctorQueue = QueueSpec{
		Name:     "appointment-service.doctor",
		Bindings: []string{"doctor.*"},
	}

	// AppointmentCacheQueue receives broadcast cache invalidations.
	AppointmentCacheQueue = QueueSpec{
		Name:     "appointment-service.cache",
		Bindings: []string{KeyCacheInvalidate},
	}

	// AuthCacheQueue invalidates the RBAC resolution cache on RBAC writes
	// and broadcast flushes.
	AuthCacheQueue = QueueSpec{
		Name:     "auth-service.cache",
		Bindings: []string{KeyCacheInvalidate, KeyUserUpdated},
	}
)

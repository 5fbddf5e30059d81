package offq

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// Event describes something that happened to the queue during a pass.
type Event struct {
	Type      Outcome   `json:"type"`
	ActionID  string    `json:"action_id,omitempty"`
	Method    Method    `json:"method,omitempty"`
	Endpoint  string    `json:"endpoint,omitempty"`
	Status    int       `json:"status,omitempty"`
	Error     string    `json:"error,omitempty"`
	Remaining int       `json:"remaining"`
	Source    string    `json:"source,omitempty"`
	At        time.Time `json:"at"`
}

// EventPublisher sends queue events to NATS so the UI layer can observe
// deliveries, discards and stuck passes.
type EventPublisher struct {
	nc     NATSPublisher
	source string
}

// NewEventPublisher creates an event publisher. source identifies the device
// or process the queue belongs to.
func NewEventPublisher(nc NATSPublisher, source string) *EventPublisher {
	return &EventPublisher{nc: nc, source: source}
}

// Publish sends ev to the subject for its type.
func (p *EventPublisher) Publish(ev Event) error {
	if ev.Source == "" {
		ev.Source = p.source
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal queue event: %w", err)
	}

	subject := SubjectForOutcome(ev.Type)
	if err := p.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("publish to %s: %w", subject, err)
	}
	return nil
}

// Notify publishes ev and logs failures. Event delivery never affects a pass.
func (p *EventPublisher) Notify(ev Event) {
	if err := p.Publish(ev); err != nil {
		slog.Warn("offq publisher: failed to publish event",
			"type", ev.Type,
			"action_id", ev.ActionID,
			"error", err,
		)
	}
}

var _ Notifier = (*EventPublisher)(nil)

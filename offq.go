// Package offq provides an offline-first mutation queue and the sync engine
// that replays it against a REST backend once connectivity returns.
package offq

import (
	"encoding/json"
	"strings"
	"time"
)

// Method is an HTTP verb a queued action may carry. The queue only carries
// writes, so GET is not a valid Method.
type Method string

const (
	MethodPost   Method = "POST"
	MethodPut    Method = "PUT"
	MethodPatch  Method = "PATCH"
	MethodDelete Method = "DELETE"
)

// Valid reports whether m is one of the supported write verbs.
func (m Method) Valid() bool {
	switch m {
	case MethodPost, MethodPut, MethodPatch, MethodDelete:
		return true
	}
	return false
}

// ParseMethod normalizes s and returns the matching Method.
func ParseMethod(s string) (Method, bool) {
	m := Method(strings.ToUpper(strings.TrimSpace(s)))
	return m, m.Valid()
}

// QueuedAction is a single pending write operation.
type QueuedAction struct {
	ID         string            `json:"id"`
	Endpoint   string            `json:"endpoint"`
	Method     Method            `json:"method"`
	Body       json.RawMessage   `json:"body,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
	EnqueuedAt time.Time         `json:"enqueued_at"`
}

// SyncState is the state of the sync engine.
type SyncState int32

const (
	StateIdle SyncState = iota
	StateSyncing
)

func (s SyncState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSyncing:
		return "syncing"
	default:
		return "unknown"
	}
}

// Outcome is the classified result of replaying one action.
type Outcome string

const (
	OutcomeDelivered Outcome = "delivered"
	OutcomeDiscarded Outcome = "discarded"
	OutcomeHalted    Outcome = "halted"

	// EventPassCompleted is emitted when a pass drains its snapshot without
	// halting.
	EventPassCompleted Outcome = "pass_completed"
)

// NATS subjects for queue events.
const (
	SubjectConnectivity    = "offq.connectivity"
	SubjectActionDelivered = "offq.action.delivered"
	SubjectActionDiscarded = "offq.action.discarded"
	SubjectPassHalted      = "offq.pass.halted"
	SubjectPassCompleted   = "offq.pass.completed"
)

// DefaultQueueKey is the key the queue snapshot is stored under.
const DefaultQueueKey = "offq/queue"

// SubjectForOutcome returns the NATS subject an action outcome is published to.
func SubjectForOutcome(o Outcome) string {
	switch o {
	case OutcomeDelivered:
		return SubjectActionDelivered
	case OutcomeDiscarded:
		return SubjectActionDiscarded
	case OutcomeHalted:
		return SubjectPassHalted
	case EventPassCompleted:
		return SubjectPassCompleted
	default:
		return "offq.action.unknown"
	}
}

func cloneAction(a QueuedAction) QueuedAction {
	if a.Body != nil {
		a.Body = append(json.RawMessage(nil), a.Body...)
	}
	if a.Headers != nil {
		h := make(map[string]string, len(a.Headers))
		for k, v := range a.Headers {
			h[k] = v
		}
		a.Headers = h
	}
	return a
}

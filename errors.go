package offq

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrInvalidAction = errors.New("invalid action")
	ErrQueueFull     = errors.New("queue is full")
	ErrNotFound      = errors.New("not found")
)

// PersistenceError reports that the durable store could not be read or written.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// ClientRejected reports that the backend permanently rejected an action.
type ClientRejected struct {
	ActionID string
	Status   int
}

func (e *ClientRejected) Error() string {
	return fmt.Sprintf("action %s rejected by backend (%d)", e.ActionID, e.Status)
}

// TransientFailure reports a retryable failure. It ends the current pass but
// leaves the action queued.
type TransientFailure struct {
	ActionID string
	Status   int
	Err      error
}

func (e *TransientFailure) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("action %s: transient failure: %v", e.ActionID, e.Err)
	}
	return fmt.Sprintf("action %s: transient failure (%d)", e.ActionID, e.Status)
}

func (e *TransientFailure) Unwrap() error { return e.Err }

// IsTransient returns true if err is a TransientFailure.
func IsTransient(err error) bool {
	var tf *TransientFailure
	return errors.As(err, &tf)
}

// IsPersistence returns true if err is a PersistenceError.
func IsPersistence(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}

// Classify maps the result of a send attempt to an outcome and, for
// non-delivered outcomes, the error describing it.
//
// 408 and 429 are client-class codes but say nothing about the request being
// malformed, so they halt the pass instead of discarding the action.
func Classify(actionID string, status int, err error) (Outcome, error) {
	if err != nil {
		return OutcomeHalted, &TransientFailure{ActionID: actionID, Status: status, Err: err}
	}
	switch {
	case status >= 200 && status < 300:
		return OutcomeDelivered, nil
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests:
		return OutcomeHalted, &TransientFailure{ActionID: actionID, Status: status}
	case status >= 400 && status < 500:
		return OutcomeDiscarded, &ClientRejected{ActionID: actionID, Status: status}
	default:
		return OutcomeHalted, &TransientFailure{ActionID: actionID, Status: status}
	}
}

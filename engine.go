package offq

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// PassReport summarizes one replay pass.
type PassReport struct {
	Delivered int    `json:"delivered"`
	Discarded int    `json:"discarded"`
	Halted    bool   `json:"halted"`
	HaltedOn  string `json:"halted_on,omitempty"`
	Remaining int    `json:"remaining"`
	Err       error  `json:"-"`
}

// Engine drains the queue against the backend, one action at a time, in order.
// At most one pass runs at a time.
type Engine struct {
	queue    *Manager
	sender   Sender
	notifier Notifier

	state atomic.Int32
	wg    sync.WaitGroup
}

// NewEngine creates a sync engine. notifier may be nil.
func NewEngine(queue *Manager, sender Sender, notifier Notifier) *Engine {
	return &Engine{queue: queue, sender: sender, notifier: notifier}
}

// State returns the current engine state.
func (e *Engine) State() SyncState {
	return SyncState(e.state.Load())
}

// AttemptSync starts a pass in the background and reports whether it did.
// If a pass is already running the call is dropped, not queued. The pass runs
// on ctx, so callers whose ctx ends with the call should detach it first.
func (e *Engine) AttemptSync(ctx context.Context) bool {
	if !e.acquire() {
		return false
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.run(ctx)
	}()
	return true
}

// Sync runs a pass on the calling goroutine. The bool is false when another
// pass was already running, in which case nothing was done.
func (e *Engine) Sync(ctx context.Context) (PassReport, bool) {
	if !e.acquire() {
		return PassReport{}, false
	}
	return e.run(ctx), true
}

// Wait blocks until passes started by AttemptSync have finished.
func (e *Engine) Wait() {
	e.wg.Wait()
}

func (e *Engine) acquire() bool {
	if e.state.CompareAndSwap(int32(StateIdle), int32(StateSyncing)) {
		return true
	}
	passesTotal.WithLabelValues("skipped").Inc()
	slog.Debug("offq engine: pass already running, trigger dropped")
	return false
}

func (e *Engine) run(ctx context.Context) PassReport {
	defer e.state.Store(int32(StateIdle))

	start := time.Now()
	snapshot := e.queue.Snapshot()
	report := PassReport{}

	if len(snapshot) > 0 {
		slog.Info("offq engine: pass started", "pending", len(snapshot))
	}

	for _, a := range snapshot {
		if err := ctx.Err(); err != nil {
			e.halt(&report, a, err)
			break
		}

		status, sendErr := e.sender.Send(ctx, a)
		outcome, err := Classify(a.ID, status, sendErr)

		if outcome == OutcomeHalted {
			actionsTotal.WithLabelValues(string(OutcomeHalted)).Inc()
			e.halt(&report, a, err)
			break
		}

		// A response was received; the removal must be recorded even if the
		// pass context ends now.
		if rmErr := e.queue.Remove(context.WithoutCancel(ctx), a.ID); rmErr != nil {
			slog.Error("offq engine: failed to remove finished action",
				"id", a.ID,
				"outcome", outcome,
				"error", rmErr,
			)
			actionsTotal.WithLabelValues(string(OutcomeHalted)).Inc()
			e.halt(&report, a, rmErr)
			break
		}
		actionsTotal.WithLabelValues(string(outcome)).Inc()

		if outcome == OutcomeDiscarded {
			report.Discarded++
			slog.Warn("offq engine: discarded rejected action",
				"id", a.ID,
				"method", a.Method,
				"endpoint", a.Endpoint,
				"status", status,
			)
		} else {
			report.Delivered++
			slog.Debug("offq engine: delivered action", "id", a.ID, "status", status)
		}
		e.notify(Event{
			Type:     outcome,
			ActionID: a.ID,
			Method:   a.Method,
			Endpoint: a.Endpoint,
			Status:   status,
		})
	}

	report.Remaining = e.queue.Len()
	if report.Halted {
		passesTotal.WithLabelValues("halted").Inc()
	} else {
		passesTotal.WithLabelValues("completed").Inc()
		e.notify(Event{Type: EventPassCompleted, Remaining: report.Remaining})
	}

	if len(snapshot) > 0 {
		slog.Info("offq engine: pass finished",
			"delivered", report.Delivered,
			"discarded", report.Discarded,
			"halted", report.Halted,
			"remaining", report.Remaining,
			"duration", time.Since(start),
		)
	}
	return report
}

func (e *Engine) halt(report *PassReport, a QueuedAction, err error) {
	report.Halted = true
	report.HaltedOn = a.ID
	report.Err = err
	slog.Warn("offq engine: pass halted, action kept queued",
		"id", a.ID,
		"method", a.Method,
		"endpoint", a.Endpoint,
		"error", err,
	)
	ev := Event{
		Type:      OutcomeHalted,
		ActionID:  a.ID,
		Method:    a.Method,
		Endpoint:  a.Endpoint,
		Remaining: e.queue.Len(),
	}
	if err != nil {
		ev.Error = err.Error()
	}
	var tf *TransientFailure
	if errors.As(err, &tf) {
		ev.Status = tf.Status
	}
	e.notify(ev)
}

func (e *Engine) notify(ev Event) {
	if e.notifier == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	e.notifier.Notify(ev)
}

var _ Trigger = (*Engine)(nil)

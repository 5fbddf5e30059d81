package offq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Manager owns the in-memory queue and keeps it mirrored in a QueueStore.
// It is the only way work enters the queue (Enqueue) and the engine's only
// way to take it out (Remove).
type Manager struct {
	mu      sync.Mutex
	store   *QueueStore
	actions []QueuedAction
	maxLen  int

	now   func() time.Time
	newID func() (string, error)
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithMaxLen caps the number of queued actions. Zero means unlimited.
func WithMaxLen(n int) ManagerOption {
	return func(m *Manager) { m.maxLen = n }
}

// OpenManager loads the persisted queue and returns a Manager owning it.
func OpenManager(ctx context.Context, store *QueueStore, opts ...ManagerOption) (*Manager, error) {
	actions, err := store.Load(ctx)
	if err != nil {
		return nil, err
	}
	m := &Manager{
		store:   store,
		actions: actions,
		now:     func() time.Time { return time.Now().UTC() },
		newID:   newActionID,
	}
	for _, opt := range opts {
		opt(m)
	}
	queueLength.Set(float64(len(actions)))
	if len(actions) > 0 {
		slog.Info("offq queue: restored pending actions", "count", len(actions))
	}
	return m, nil
}

func newActionID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Enqueue records a new write operation and persists the queue. It never
// touches the network. The returned id identifies the action until it is
// delivered or discarded.
func (m *Manager) Enqueue(ctx context.Context, endpoint string, method Method, body any, headers map[string]string) (string, error) {
	action, err := m.buildAction(endpoint, method, body, headers)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.maxLen > 0 && len(m.actions) >= m.maxLen {
		return "", fmt.Errorf("%w (max %d)", ErrQueueFull, m.maxLen)
	}

	next := make([]QueuedAction, len(m.actions), len(m.actions)+1)
	copy(next, m.actions)
	next = append(next, action)

	if err := m.store.Save(ctx, next); err != nil {
		return "", err
	}
	m.actions = next

	queueLength.Set(float64(len(next)))
	actionsEnqueued.Inc()
	slog.Debug("offq queue: enqueued action",
		"id", action.ID,
		"method", action.Method,
		"endpoint", action.Endpoint,
	)
	return action.ID, nil
}

func (m *Manager) buildAction(endpoint string, method Method, body any, headers map[string]string) (QueuedAction, error) {
	if !method.Valid() {
		return QueuedAction{}, fmt.Errorf("%w: unsupported method %q", ErrInvalidAction, method)
	}
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" || !strings.HasPrefix(endpoint, "/") {
		return QueuedAction{}, fmt.Errorf("%w: endpoint must start with /", ErrInvalidAction)
	}

	raw, err := encodeBody(body)
	if err != nil {
		return QueuedAction{}, err
	}

	var hdrs map[string]string
	if len(headers) > 0 {
		hdrs = make(map[string]string, len(headers))
		for k, v := range headers {
			if strings.TrimSpace(k) == "" {
				return QueuedAction{}, fmt.Errorf("%w: empty header name", ErrInvalidAction)
			}
			hdrs[k] = v
		}
	}

	id, err := m.newID()
	if err != nil {
		return QueuedAction{}, fmt.Errorf("generate action id: %w", err)
	}

	return QueuedAction{
		ID:         id,
		Endpoint:   endpoint,
		Method:     method,
		Body:       raw,
		Headers:    hdrs,
		EnqueuedAt: m.now(),
	}, nil
}

func encodeBody(body any) (json.RawMessage, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return validJSON(b)
	case []byte:
		return validJSON(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("%w: body: %v", ErrInvalidAction, err)
		}
		return data, nil
	}
}

func validJSON(b []byte) (json.RawMessage, error) {
	if len(b) == 0 {
		return nil, nil
	}
	if !json.Valid(b) {
		return nil, fmt.Errorf("%w: body is not valid JSON", ErrInvalidAction)
	}
	return append(json.RawMessage(nil), b...), nil
}

// Snapshot returns a copy of the queue, head first.
func (m *Manager) Snapshot() []QueuedAction {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]QueuedAction, len(m.actions))
	for i, a := range m.actions {
		out[i] = cloneAction(a)
	}
	return out
}

// Len returns the number of queued actions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.actions)
}

// Oldest returns the enqueue time of the head action.
func (m *Manager) Oldest() (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.actions) == 0 {
		return time.Time{}, false
	}
	return m.actions[0].EnqueuedAt, true
}

// Remove deletes the action with id and persists the queue. If persisting
// fails the in-memory queue is left as it was.
func (m *Manager) Remove(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := -1
	for i := range m.actions {
		if m.actions[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("action %s: %w", id, ErrNotFound)
	}

	next := make([]QueuedAction, 0, len(m.actions)-1)
	next = append(next, m.actions[:idx]...)
	next = append(next, m.actions[idx+1:]...)

	if err := m.store.Save(ctx, next); err != nil {
		return err
	}
	m.actions = next
	queueLength.Set(float64(len(next)))
	return nil
}

package offq

import (
	"context"
	"sync"
	"testing"
)

// mockKV is a thread-safe in-memory KV with error injection for unit tests.
type mockKV struct {
	mu   sync.Mutex
	data map[string][]byte

	getErr    error
	setErr    error
	removeErr error

	setCalls    int
	removeCalls int
}

func newMockKV() *mockKV {
	return &mockKV{data: make(map[string][]byte)}
}

func (m *mockKV) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, false, m.getErr
	}
	v, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (m *mockKV) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setCalls++
	if m.setErr != nil {
		return m.setErr
	}
	m.data[key] = append([]byte(nil), value...)
	return nil
}

func (m *mockKV) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeCalls++
	if m.removeErr != nil {
		return m.removeErr
	}
	delete(m.data, key)
	return nil
}

func (m *mockKV) failWrites(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setErr = err
	m.removeErr = err
}

func (m *mockKV) raw(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok
}

// sendResult is one scripted response of mockSender.
type sendResult struct {
	status int
	err    error
}

// mockSender replays scripted results per endpoint and records every send.
// Endpoints without a script answer 200.
type mockSender struct {
	mu      sync.Mutex
	scripts map[string][]sendResult
	sent    []QueuedAction

	// When non-nil, every Send blocks until release is closed. entered
	// receives one value per Send before it blocks.
	release chan struct{}
	entered chan struct{}
}

func newMockSender() *mockSender {
	return &mockSender{scripts: make(map[string][]sendResult)}
}

func (m *mockSender) script(endpoint string, results ...sendResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripts[endpoint] = append(m.scripts[endpoint], results...)
}

func (m *mockSender) Send(ctx context.Context, a QueuedAction) (int, error) {
	m.mu.Lock()
	m.sent = append(m.sent, a)
	release, entered := m.release, m.entered
	var res sendResult
	if rs := m.scripts[a.Endpoint]; len(rs) > 0 {
		res = rs[0]
		m.scripts[a.Endpoint] = rs[1:]
	} else {
		res = sendResult{status: 200}
	}
	m.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	return res.status, res.err
}

func (m *mockSender) sentEndpoints() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.sent))
	for i, a := range m.sent {
		out[i] = a.Endpoint
	}
	return out
}

// mockNATS captures published messages for test assertions.
type mockNATS struct {
	mu       sync.Mutex
	messages []publishedMsg
	err      error
}

type publishedMsg struct {
	Subject string
	Data    []byte
}

func newMockNATS() *mockNATS {
	return &mockNATS{}
}

func (m *mockNATS) Publish(subject string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.messages = append(m.messages, publishedMsg{Subject: subject, Data: data})
	return nil
}

func (m *mockNATS) published() []publishedMsg {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]publishedMsg, len(m.messages))
	copy(cp, m.messages)
	return cp
}

// mockTrigger counts sync attempts. When busy is set every attempt is
// dropped, as if a pass were already running.
type mockTrigger struct {
	mu    sync.Mutex
	calls int
	busy  bool
}

func (m *mockTrigger) AttemptSync(context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return !m.busy
}

func (m *mockTrigger) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// mockNotifier records events.
type mockNotifier struct {
	mu     sync.Mutex
	events []Event
}

func (m *mockNotifier) Notify(ev Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
}

func (m *mockNotifier) types() []Outcome {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Outcome, len(m.events))
	for i, ev := range m.events {
		out[i] = ev.Type
	}
	return out
}

// newTestManager opens a Manager on kv and fails the test on error.
func newTestManager(t *testing.T, kv KV, opts ...ManagerOption) *Manager {
	t.Helper()
	m, err := OpenManager(context.Background(), NewQueueStore(kv, ""), opts...)
	if err != nil {
		t.Fatalf("open manager: %v", err)
	}
	return m
}

// mustEnqueue enqueues a POST to endpoint with a small body.
func mustEnqueue(t *testing.T, m *Manager, endpoint string) string {
	t.Helper()
	id, err := m.Enqueue(context.Background(), endpoint, MethodPost, map[string]string{"e": endpoint}, nil)
	if err != nil {
		t.Fatalf("enqueue %s: %v", endpoint, err)
	}
	return id
}

func endpoints(actions []QueuedAction) []string {
	out := make([]string, len(actions))
	for i, a := range actions {
		out[i] = a.Endpoint
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Verify interfaces at compile time.
var (
	_ KV            = (*mockKV)(nil)
	_ Sender        = (*mockSender)(nil)
	_ NATSPublisher = (*mockNATS)(nil)
	_ Trigger       = (*mockTrigger)(nil)
	_ Notifier      = (*mockNotifier)(nil)
)

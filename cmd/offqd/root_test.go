package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DarlingtonDeveloper/offq"
)

func TestRootCommand_Subcommands(t *testing.T) {
	root := NewRootCommand()

	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "inspect", "enqueue", "sync"} {
		assert.True(t, names[want], "missing subcommand %s", want)
	}

	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
	assert.NotNil(t, root.PersistentFlags().Lookup("addr"))
}

func TestEnqueueCommand_Flags(t *testing.T) {
	cmd := NewEnqueueCommand(&RootOptions{})
	for _, name := range []string{"endpoint", "method", "body", "header"} {
		assert.NotNil(t, cmd.Flags().Lookup(name), "missing flag %s", name)
	}
	assert.Equal(t, "POST", cmd.Flags().Lookup("method").DefValue)
}

// runRoot executes the root command with args and returns stdout.
func runRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestEnqueueCommand_PostsToDaemon(t *testing.T) {
	var got offq.EnqueueRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/queue/", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "act-1"})
	}))
	defer srv.Close()

	out, err := runRoot(t, "enqueue", "--addr", srv.URL,
		"-e", "/quiz/7/submit", "-m", "put", "-b", `{"a":1}`, "-H", "X-Client=cli")
	require.NoError(t, err)

	assert.Equal(t, "act-1\n", out)
	assert.Equal(t, "/quiz/7/submit", got.Endpoint)
	assert.Equal(t, "put", got.Method)
	assert.JSONEq(t, `{"a":1}`, string(got.Body))
	assert.Equal(t, "cli", got.Headers["X-Client"])
}

func TestEnqueueCommand_RejectsBadInput(t *testing.T) {
	_, err := runRoot(t, "enqueue", "--addr", "http://127.0.0.1:0", "-e", "/x", "-m", "GET")
	assert.Error(t, err)

	_, err = runRoot(t, "enqueue", "--addr", "http://127.0.0.1:0", "-e", "/x", "-b", "{nope")
	assert.Error(t, err)

	_, err = runRoot(t, "enqueue", "--addr", "http://127.0.0.1:0")
	assert.Error(t, err, "endpoint is required")
}

func TestSyncCommand(t *testing.T) {
	status := http.StatusAccepted
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/queue/sync", r.URL.Path)
		w.WriteHeader(status)
		if status == http.StatusAccepted {
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "started"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "already_syncing"})
	}))
	defer srv.Close()

	out, err := runRoot(t, "sync", "--addr", srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "started\n", out)

	status = http.StatusConflict
	_, err = runRoot(t, "sync", "--addr", srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "409")
}

func TestInspectCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.db")
	t.Setenv("OFFQ_STORE", "sqlite")
	t.Setenv("OFFQ_SQLITE_PATH", path)

	ctx := context.Background()
	kv, err := offq.OpenSQLiteKV(ctx, path)
	require.NoError(t, err)
	m, err := offq.OpenManager(ctx, offq.NewQueueStore(kv, ""))
	require.NoError(t, err)
	id, err := m.Enqueue(ctx, "/notes/9", offq.MethodPatch, map[string]string{"title": "x"}, nil)
	require.NoError(t, err)
	require.NoError(t, kv.Close())

	out, err := runRoot(t, "inspect")
	require.NoError(t, err)

	var actions []offq.QueuedAction
	require.NoError(t, json.Unmarshal([]byte(out), &actions))
	require.Len(t, actions, 1)
	assert.Equal(t, id, actions[0].ID)
	assert.Equal(t, offq.MethodPatch, actions[0].Method)
}

func TestServeCommand_RequiresBaseURL(t *testing.T) {
	t.Setenv("OFFQ_BASE_URL", "")
	_, err := runRoot(t, "serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OFFQ_BASE_URL")
}

func TestSetupLogging(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })
	var buf bytes.Buffer

	setupLogging(&buf, "debug", "json")
	slog.Debug("hello")
	assert.Contains(t, buf.String(), `"msg":"hello"`)

	buf.Reset()
	setupLogging(&buf, "warn", "text")
	slog.Debug("hidden")
	assert.Empty(t, buf.String())

	buf.Reset()
	setupLogging(&buf, "nonsense", "text")
	slog.Info("shown")
	assert.Contains(t, buf.String(), "msg=shown")
}

func TestNewTokenProvider(t *testing.T) {
	static := newTokenProvider(&offq.Config{Token: "abc"})
	tok, err := static.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc", tok)

	_, ok := newTokenProvider(&offq.Config{BaseURL: "http://x", TokenRefresh: "/refresh"}).(*offq.RefreshingToken)
	assert.True(t, ok)
}

func TestOpenKV_Memory(t *testing.T) {
	kv, closeKV, err := openKV(context.Background(), &offq.Config{Store: "memory"})
	require.NoError(t, err)
	defer closeKV()
	_, isMem := kv.(*offq.MemoryKV)
	assert.True(t, isMem)
}

package offq

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// Handler provides the local HTTP control API for the queue.
type Handler struct {
	ctx     context.Context
	queue   *Manager
	engine  *Engine
	monitor *Monitor
}

// NewHandler creates a queue control handler. Passes it starts run on ctx,
// not on the request context, so they outlive the request but stop with the
// daemon.
func NewHandler(ctx context.Context, queue *Manager, engine *Engine, monitor *Monitor) *Handler {
	return &Handler{ctx: ctx, queue: queue, engine: engine, monitor: monitor}
}

// Routes returns a chi.Router with all queue endpoints mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.handleList)
	r.Post("/", h.handleEnqueue)
	r.Get("/stats", h.handleStats)
	r.Post("/sync", h.handleSync)
	r.Post("/connectivity", h.handleConnectivity)
	return r
}

// EnqueueRequest is the body of POST /.
type EnqueueRequest struct {
	Endpoint string            `json:"endpoint"`
	Method   string            `json:"method"`
	Body     json.RawMessage   `json:"body,omitempty"`
	Headers  map[string]string `json:"headers,omitempty"`
}

// Stats is the body of GET /stats.
type Stats struct {
	Length           int        `json:"length"`
	State            string     `json:"state"`
	OldestEnqueuedAt *time.Time `json:"oldest_enqueued_at,omitempty"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.queue.Snapshot())
}

func (h *Handler) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	var req EnqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	method, ok := ParseMethod(req.Method)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unsupported method"})
		return
	}

	var body any
	if len(req.Body) > 0 && string(req.Body) != "null" {
		body = req.Body
	}

	id, err := h.queue.Enqueue(r.Context(), req.Endpoint, method, body, req.Headers)
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]string{"id": id})
	case errors.Is(err, ErrInvalidAction):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, ErrQueueFull):
		writeJSON(w, http.StatusInsufficientStorage, map[string]string{"error": "queue is full"})
	default:
		slog.Error("enqueue failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	st := Stats{
		Length: h.queue.Len(),
		State:  h.engine.State().String(),
	}
	if oldest, ok := h.queue.Oldest(); ok {
		st.OldestEnqueuedAt = &oldest
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *Handler) handleSync(w http.ResponseWriter, r *http.Request) {
	if !h.engine.AttemptSync(h.ctx) {
		writeJSON(w, http.StatusConflict, map[string]string{"status": "already_syncing"})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

func (h *Handler) handleConnectivity(w http.ResponseWriter, r *http.Request) {
	var status NetworkStatus
	if err := json.NewDecoder(r.Body).Decode(&status); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	triggered := h.monitor.Observe(h.ctx, status)
	writeJSON(w, http.StatusOK, map[string]bool{"triggered": triggered})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

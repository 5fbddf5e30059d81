package offq

import (
	"context"
	"encoding/json"
	"log/slog"
)

const recordVersion = 1

// queueRecord is the single serialized record the queue is persisted as.
type queueRecord struct {
	Version int            `json:"version"`
	Actions []QueuedAction `json:"actions"`
}

// QueueStore persists full queue snapshots in a KV under one key.
type QueueStore struct {
	kv  KV
	key string
}

// NewQueueStore creates a queue store. An empty key selects DefaultQueueKey.
func NewQueueStore(kv KV, key string) *QueueStore {
	if key == "" {
		key = DefaultQueueKey
	}
	return &QueueStore{kv: kv, key: key}
}

// Load returns the persisted queue. A missing or undecodable record yields an
// empty queue; only a storage read failure is an error.
func (s *QueueStore) Load(ctx context.Context) ([]QueuedAction, error) {
	data, ok, err := s.kv.Get(ctx, s.key)
	if err != nil {
		return nil, &PersistenceError{Op: "load", Err: err}
	}
	if !ok || len(data) == 0 {
		return []QueuedAction{}, nil
	}

	var rec queueRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		slog.Warn("offq store: corrupt queue record, starting empty",
			"key", s.key,
			"error", err,
		)
		return []QueuedAction{}, nil
	}
	if rec.Version != recordVersion {
		slog.Warn("offq store: unsupported queue record version, starting empty",
			"key", s.key,
			"version", rec.Version,
		)
		return []QueuedAction{}, nil
	}
	if rec.Actions == nil {
		rec.Actions = []QueuedAction{}
	}
	return rec.Actions, nil
}

// Save persists the full snapshot. An empty queue removes the record.
func (s *QueueStore) Save(ctx context.Context, actions []QueuedAction) error {
	if len(actions) == 0 {
		if err := s.kv.Remove(ctx, s.key); err != nil {
			return &PersistenceError{Op: "save", Err: err}
		}
		return nil
	}

	data, err := json.Marshal(queueRecord{Version: recordVersion, Actions: actions})
	if err != nil {
		return &PersistenceError{Op: "encode", Err: err}
	}
	if err := s.kv.Set(ctx, s.key, data); err != nil {
		return &PersistenceError{Op: "save", Err: err}
	}
	return nil
}

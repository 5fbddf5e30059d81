package offq

import "context"

// KV is the durable key-value storage the queue snapshot lives in.
// Concrete implementations are *MemoryKV, *SQLiteKV and *PGKV.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
}

// Sender issues one queued action against the backend and returns the
// response status code. The concrete implementation is *Client.
type Sender interface {
	Send(ctx context.Context, a QueuedAction) (int, error)
}

// Trigger starts a sync pass. The concrete implementation is *Engine.
type Trigger interface {
	AttemptSync(ctx context.Context) bool
}

// Notifier receives queue outcome events. The concrete implementation is
// *EventPublisher.
type Notifier interface {
	Notify(ev Event)
}

// NATSPublisher is the interface for publishing messages to NATS.
type NATSPublisher interface {
	Publish(subject string, data []byte) error
}

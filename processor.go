package offq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
)

// ConnectivityProcessor handles reachability messages published by the
// platform network-status bridge and feeds them to a Monitor.
type ConnectivityProcessor struct {
	monitor *Monitor
}

// NewConnectivityProcessor creates a processor feeding monitor.
func NewConnectivityProcessor(monitor *Monitor) *ConnectivityProcessor {
	return &ConnectivityProcessor{monitor: monitor}
}

// Process parses a raw status payload ({"connected":..,"internet_reachable":..})
// and hands it to the monitor. Malformed payloads are logged and dropped.
func (p *ConnectivityProcessor) Process(ctx context.Context, subject string, data []byte) {
	var status NetworkStatus
	if err := json.Unmarshal(data, &status); err != nil {
		slog.Warn("offq processor: malformed connectivity event",
			"subject", subject,
			"error", err,
		)
		return
	}
	p.monitor.Observe(ctx, status)
}

// Subscribe registers the processor on subject. Messages are handled with ctx,
// which should live as long as the subscription.
func (p *ConnectivityProcessor) Subscribe(ctx context.Context, nc *nats.Conn, subject string) (*nats.Subscription, error) {
	if subject == "" {
		subject = SubjectConnectivity
	}
	sub, err := nc.Subscribe(subject, func(msg *nats.Msg) {
		p.Process(ctx, msg.Subject, msg.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}
	return sub, nil
}

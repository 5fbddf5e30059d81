package offq

import (
	"context"
	"log/slog"
	"time"
)

// Pinger checks backend reachability. The concrete implementation is *Client.
type Pinger interface {
	Ping(ctx context.Context, path string) (reached bool, healthy bool)
}

// Prober periodically checks backend reachability and reports it to a
// Monitor. It stands in for a platform network-status feed when none exists.
type Prober struct {
	pinger   Pinger
	monitor  *Monitor
	path     string
	interval time.Duration
	done     chan struct{}
}

// DefaultProbeInterval is used when NewProber is given a non-positive interval.
const DefaultProbeInterval = 30 * time.Second

// NewProber creates a reachability prober hitting path every interval.
func NewProber(pinger Pinger, monitor *Monitor, path string, interval time.Duration) *Prober {
	if path == "" {
		path = "/health"
	}
	if interval <= 0 {
		interval = DefaultProbeInterval
	}
	return &Prober{
		pinger:   pinger,
		monitor:  monitor,
		path:     path,
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Start probes once immediately, then on every tick until ctx is cancelled.
func (p *Prober) Start(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	go func() {
		defer ticker.Stop()
		defer close(p.done)
		p.probe(ctx)
		for {
			select {
			case <-ticker.C:
				p.probe(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Wait blocks until the prober has stopped.
func (p *Prober) Wait() {
	<-p.done
}

func (p *Prober) probe(ctx context.Context) {
	reached, healthy := p.pinger.Ping(ctx, p.path)
	if ctx.Err() != nil {
		return
	}
	status := NetworkStatus{Connected: reached, InternetReachable: reached && healthy}
	slog.Debug("offq prober: probed backend",
		"path", p.path,
		"connected", status.Connected,
		"internet_reachable", status.InternetReachable,
	)
	p.monitor.Observe(ctx, status)
}

var _ Pinger = (*Client)(nil)

package offq

import (
	"context"
	"log/slog"
	"sync"
)

// NetworkStatus is a reachability report from the platform.
type NetworkStatus struct {
	Connected         bool `json:"connected"`
	InternetReachable bool `json:"internet_reachable"`
}

// Usable reports whether the network can carry requests to the backend.
func (s NetworkStatus) Usable() bool {
	return s.Connected && s.InternetReachable
}

// Monitor turns a stream of reachability reports into sync attempts. Only the
// transition from unusable to usable triggers; repeated usable reports (for
// example Wi-Fi handing over to cellular) do not.
type Monitor struct {
	mu      sync.Mutex
	usable  bool
	trigger Trigger
}

// NewMonitor creates a monitor. The network is assumed unusable until the
// first report, so a usable first report triggers a pass.
func NewMonitor(trigger Trigger) *Monitor {
	return &Monitor{trigger: trigger}
}

// Observe records s and calls AttemptSync on a qualifying transition. It
// returns whether a pass was started; a transition that finds a pass already
// running reports false.
func (m *Monitor) Observe(ctx context.Context, s NetworkStatus) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	was := m.usable
	m.usable = s.Usable()

	switch {
	case !was && m.usable:
		connectivityTransitions.WithLabelValues("up").Inc()
		slog.Info("offq monitor: network usable, attempting sync")
		return m.trigger.AttemptSync(ctx)
	case was && !m.usable:
		connectivityTransitions.WithLabelValues("down").Inc()
		slog.Info("offq monitor: network lost",
			"connected", s.Connected,
			"internet_reachable", s.InternetReachable,
		)
	}
	return false
}

// Usable returns the last observed usability.
func (m *Monitor) Usable() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.usable
}

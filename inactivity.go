package nudgechat

import (
	"log/slog"
	"sync"
	"time"

	"github.com/NudgeChat/nudgechat-go-sdk/wire"
)

// InactivityMonitor is a single-shot timer re-armed on every tracked user
// interaction and every successful send. When it fires after a quiet period
// with the connection open, it asks the backend to proactively continue the
// conversation, carrying lightweight context (e.g. a pending payment). It
// never fires while disconnected and never triggers a reconnect.
type InactivityMonitor struct {
	mu      sync.Mutex
	timer   *time.Timer
	stopped bool

	timeout   time.Duration
	connected func() bool
	context   func() string
	notify    func(wire.Outbound) error
}

func newInactivityMonitor(timeout time.Duration, connected func() bool, context func() string, notify func(wire.Outbound) error) *InactivityMonitor {
	return &InactivityMonitor{
		timeout:   timeout,
		connected: connected,
		context:   context,
		notify:    notify,
	}
}

// Touch records activity: the pending timer (if any) is cancelled and a
// fresh one armed. Stale timers never stack.
func (m *InactivityMonitor) Touch() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return
	}
	if m.timer != nil {
		m.timer.Stop()
	}
	m.timer = time.AfterFunc(m.timeout, m.fire)
}

func (m *InactivityMonitor) fire() {
	m.mu.Lock()
	m.timer = nil
	stopped := m.stopped
	m.mu.Unlock()
	if stopped || !m.connected() {
		return
	}
	tag := m.context()
	if err := m.notify(wire.NewInactive(tag)); err != nil {
		slog.Debug("inactivity nudge not sent", "error", err)
		return
	}
	slog.Debug("inactivity nudge sent", "context", tag)
}

// Pause cancels the pending timer without disabling the monitor; the next
// Touch arms it again. Used on intentional disconnect.
func (m *InactivityMonitor) Pause() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

// Stop disables the monitor permanently; subsequent Touch calls are no-ops.
func (m *InactivityMonitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

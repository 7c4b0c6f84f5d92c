package nudgechat

import (
	"sync"
	"time"
)

// typingState is the small idle→composing→idle machine behind the typing
// indicator. Two inputs drive it: chat-bearing frame arrival and the safety
// timeout armed on every outbound user message. Timers are always stopped
// before re-arming so stale timers never stack.
type typingState struct {
	mu        sync.Mutex
	composing bool

	composeDelay  time.Duration
	safetyTimeout time.Duration
	composeTimer  *time.Timer
	safetyTimer   *time.Timer

	emit func(EventKind)
}

func newTypingState(composeDelay, safetyTimeout time.Duration, emit func(EventKind)) *typingState {
	return &typingState{
		composeDelay:  composeDelay,
		safetyTimeout: safetyTimeout,
		emit:          emit,
	}
}

// frameArrived handles an inbound frame. Any arrival ends a composing
// period and disarms the safety timer; a chat-bearing frame additionally
// schedules the next composing signal after a short delay, driving the
// affordance for whatever the backend sends next.
func (t *typingState) frameArrived(chatBearing bool) {
	t.mu.Lock()
	if t.safetyTimer != nil {
		t.safetyTimer.Stop()
		t.safetyTimer = nil
	}
	if t.composeTimer != nil {
		t.composeTimer.Stop()
		t.composeTimer = nil
	}
	wasComposing := t.composing
	t.composing = false
	if chatBearing {
		t.composeTimer = time.AfterFunc(t.composeDelay, t.beginComposing)
	}
	t.mu.Unlock()

	if wasComposing {
		t.emit(EventTypingEnded)
	}
}

func (t *typingState) beginComposing() {
	t.mu.Lock()
	t.composing = true
	t.composeTimer = nil
	t.mu.Unlock()
	t.emit(EventTypingBegan)
}

// armSafety (re)arms the safety timer. If no inbound frame arrives before it
// fires, a typing-ended signal is emitted so the UI never shows an
// indefinite composing state.
func (t *typingState) armSafety() {
	t.mu.Lock()
	if t.safetyTimer != nil {
		t.safetyTimer.Stop()
	}
	t.safetyTimer = time.AfterFunc(t.safetyTimeout, t.safetyFired)
	t.mu.Unlock()
}

func (t *typingState) safetyFired() {
	t.mu.Lock()
	t.safetyTimer = nil
	t.composing = false
	t.mu.Unlock()
	t.emit(EventTypingEnded)
}

func (t *typingState) stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.safetyTimer != nil {
		t.safetyTimer.Stop()
		t.safetyTimer = nil
	}
	if t.composeTimer != nil {
		t.composeTimer.Stop()
		t.composeTimer = nil
	}
	t.composing = false
}

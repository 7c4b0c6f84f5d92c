package nudgechat

import (
	"sync"
	"testing"
	"time"

	"github.com/NudgeChat/nudgechat-go-sdk/store"
)

func testIdentity(t *testing.T) *store.Identity {
	t.Helper()
	d, err := store.OpenDurable(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { d.Close() })
	id, err := store.LoadIdentity(d, store.NewSession())
	if err != nil {
		t.Fatal(err)
	}
	return id
}

// eventRecorder collects dispatcher events safely across goroutines.
type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) handler() Handler {
	return func(ev Event) {
		r.mu.Lock()
		r.events = append(r.events, ev)
		r.mu.Unlock()
	}
}

func (r *eventRecorder) count(kind EventKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

func waitFor(t *testing.T, d time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestSubscribeRejectsDuplicateHandler(t *testing.T) {
	d := newDispatcher(testIdentity(t), time.Millisecond, time.Second)
	rec := &eventRecorder{}
	h := rec.handler()

	tok, err := d.Subscribe(h)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if _, err := d.Subscribe(h); err != ErrDuplicateHandler {
		t.Errorf("duplicate subscribe: got %v, want ErrDuplicateHandler", err)
	}

	// After unsubscribing, the same handler may register again.
	d.Unsubscribe(tok)
	if _, err := d.Subscribe(h); err != nil {
		t.Errorf("resubscribe after unsubscribe: %v", err)
	}
}

func TestDispatchFansOutToAllHandlers(t *testing.T) {
	d := newDispatcher(testIdentity(t), time.Millisecond, time.Second)
	a, b := &eventRecorder{}, &eventRecorder{}
	d.Subscribe(a.handler())
	d.Subscribe(b.handler())

	d.onFrame([]byte(`{"type":"message","text":"hi"}`))

	if a.count(EventFrame) != 1 || b.count(EventFrame) != 1 {
		t.Errorf("fan-out: a=%d b=%d, want 1 each", a.count(EventFrame), b.count(EventFrame))
	}
}

func TestDispatchSurvivesHandlerPanic(t *testing.T) {
	d := newDispatcher(testIdentity(t), time.Millisecond, time.Second)
	d.Subscribe(func(Event) { panic("boom") })
	rec := &eventRecorder{}
	d.Subscribe(rec.handler())

	d.onFrame([]byte(`{"type":"message","text":"hi"}`))

	if rec.count(EventFrame) != 1 {
		t.Error("handler after a panicking one did not receive the frame")
	}
}

func TestDispatchDropsMalformedFrames(t *testing.T) {
	d := newDispatcher(testIdentity(t), time.Millisecond, time.Second)
	rec := &eventRecorder{}
	d.Subscribe(rec.handler())

	d.onFrame([]byte(`{broken`))
	d.onFrame([]byte(`{"type":"mystery"}`))
	d.onFrame([]byte(`{"type":"message","text":"ok"}`))

	if got := rec.count(EventFrame); got != 1 {
		t.Errorf("only the valid frame should dispatch, got %d", got)
	}
}

func TestSessionInfoUpdatesIdentityAndSignalsReplacement(t *testing.T) {
	id := testIdentity(t)
	d := newDispatcher(id, time.Millisecond, time.Second)
	rec := &eventRecorder{}
	d.Subscribe(rec.handler())

	d.onFrame([]byte(`{"type":"session_info","session_id":"s1"}`))
	if id.SessionID() != "s1" {
		t.Fatalf("session id: got %q", id.SessionID())
	}
	if rec.count(EventNewSession) != 0 {
		t.Error("first assignment is not a replacement")
	}

	d.onFrame([]byte(`{"type":"session_info","session_id":"s2"}`))
	if id.SessionID() != "s2" {
		t.Fatalf("session id after replacement: got %q", id.SessionID())
	}
	if rec.count(EventNewSession) != 1 {
		t.Errorf("new-session events: got %d, want 1", rec.count(EventNewSession))
	}
}

func TestSetCookieUpdatesIdentityButNeverClearsIt(t *testing.T) {
	id := testIdentity(t)
	d := newDispatcher(id, time.Millisecond, time.Second)

	d.onFrame([]byte(`{"type":"set_cookie","cookie_id":"ck1"}`))
	if id.CookieID() != "ck1" {
		t.Fatalf("cookie: got %q", id.CookieID())
	}
	d.onFrame([]byte(`{"type":"set_cookie","cookie_id":""}`))
	if id.CookieID() != "ck1" {
		t.Errorf("empty set_cookie must not clear the cookie, got %q", id.CookieID())
	}
}

func TestTypingSynthesisAfterChatFrame(t *testing.T) {
	d := newDispatcher(testIdentity(t), 5*time.Millisecond, time.Second)
	defer d.stopTimers()
	rec := &eventRecorder{}
	d.Subscribe(rec.handler())

	d.onFrame([]byte(`{"type":"message","text":"hi"}`))

	waitFor(t, time.Second, "typing began", func() bool {
		return rec.count(EventTypingBegan) == 1
	})
}

func TestTypingSafetyTimerEndsComposing(t *testing.T) {
	d := newDispatcher(testIdentity(t), time.Millisecond, 15*time.Millisecond)
	defer d.stopTimers()
	rec := &eventRecorder{}
	d.Subscribe(rec.handler())

	d.armSafetyTimer()
	waitFor(t, time.Second, "typing ended", func() bool {
		return rec.count(EventTypingEnded) == 1
	})
}

func TestInboundFrameDisarmsSafetyTimer(t *testing.T) {
	d := newDispatcher(testIdentity(t), time.Millisecond, 30*time.Millisecond)
	defer d.stopTimers()
	rec := &eventRecorder{}
	d.Subscribe(rec.handler())

	d.armSafetyTimer()
	d.onFrame([]byte(`{"type":"message","text":"arrived in time"}`))

	time.Sleep(60 * time.Millisecond)
	if got := rec.count(EventTypingEnded); got != 0 {
		t.Errorf("safety timer fired despite inbound frame: %d ended events", got)
	}
}

func TestSafetyTimerRearmsNotStacks(t *testing.T) {
	d := newDispatcher(testIdentity(t), time.Millisecond, 20*time.Millisecond)
	defer d.stopTimers()
	rec := &eventRecorder{}
	d.Subscribe(rec.handler())

	// Re-arming three times quickly must yield a single firing.
	d.armSafetyTimer()
	d.armSafetyTimer()
	d.armSafetyTimer()

	time.Sleep(80 * time.Millisecond)
	if got := rec.count(EventTypingEnded); got != 1 {
		t.Errorf("stacked safety timers: got %d ended events, want 1", got)
	}
}

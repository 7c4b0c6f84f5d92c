package nudgechat

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/NudgeChat/nudgechat-go-sdk/wire"
)

func TestInactivityFiresExactlyOnceWhileConnected(t *testing.T) {
	var fired int32
	var lastContext atomic.Value
	m := newInactivityMonitor(15*time.Millisecond,
		func() bool { return true },
		func() string { return "payment pending" },
		func(o wire.Outbound) error {
			atomic.AddInt32(&fired, 1)
			lastContext.Store(o.Context)
			return nil
		},
	)
	defer m.Stop()

	m.Touch()
	time.Sleep(80 * time.Millisecond)

	if got := atomic.LoadInt32(&fired); got != 1 {
		t.Fatalf("single-shot: fired %d times, want 1", got)
	}
	if ctx, _ := lastContext.Load().(string); ctx != "payment pending" {
		t.Errorf("context tag: got %q", ctx)
	}
	if o := wire.NewInactive("payment pending"); o.Type != wire.TypeInactive {
		t.Errorf("frame type: %q", o.Type)
	}
}

func TestInactivityResetPreventsFiring(t *testing.T) {
	var fired int32
	m := newInactivityMonitor(30*time.Millisecond,
		func() bool { return true },
		func() string { return "" },
		func(wire.Outbound) error {
			atomic.AddInt32(&fired, 1)
			return nil
		},
	)
	defer m.Stop()

	m.Touch()
	for i := 0; i < 5; i++ {
		time.Sleep(10 * time.Millisecond)
		m.Touch() // interaction before expiry re-arms the timer
	}
	if got := atomic.LoadInt32(&fired); got != 0 {
		t.Fatalf("fired %d times despite resets", got)
	}

	time.Sleep(80 * time.Millisecond)
	if got := atomic.LoadInt32(&fired); got != 1 {
		t.Errorf("after quiet period: fired %d times, want 1", got)
	}
}

func TestInactivityNeverFiresWhileDisconnected(t *testing.T) {
	var fired int32
	m := newInactivityMonitor(10*time.Millisecond,
		func() bool { return false },
		func() string { return "" },
		func(wire.Outbound) error {
			atomic.AddInt32(&fired, 1)
			return nil
		},
	)
	defer m.Stop()

	m.Touch()
	time.Sleep(50 * time.Millisecond)
	if got := atomic.LoadInt32(&fired); got != 0 {
		t.Errorf("fired %d times while disconnected", got)
	}
}

func TestInactivityPauseAndStop(t *testing.T) {
	var fired int32
	m := newInactivityMonitor(10*time.Millisecond,
		func() bool { return true },
		func() string { return "" },
		func(wire.Outbound) error {
			atomic.AddInt32(&fired, 1)
			return nil
		},
	)

	m.Touch()
	m.Pause()
	time.Sleep(40 * time.Millisecond)
	if got := atomic.LoadInt32(&fired); got != 0 {
		t.Fatalf("fired after Pause")
	}

	// Touch after Pause re-arms.
	m.Touch()
	time.Sleep(40 * time.Millisecond)
	if got := atomic.LoadInt32(&fired); got != 1 {
		t.Fatalf("Touch after Pause: fired %d, want 1", got)
	}

	// Stop is permanent.
	m.Stop()
	m.Touch()
	time.Sleep(40 * time.Millisecond)
	if got := atomic.LoadInt32(&fired); got != 1 {
		t.Errorf("fired after Stop")
	}
}

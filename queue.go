package nudgechat

import (
	"sync"

	"github.com/NudgeChat/nudgechat-go-sdk/wire"
)

// outboundQueue buffers frames produced while the transport is not open and
// drains them FIFO on the next successful connection. Identity stamping
// happens inside sendNow at flush time, so a frame buffered before the
// identity was known still goes out complete.
type outboundQueue struct {
	mu     sync.Mutex
	frames []wire.Outbound

	sendNow func(wire.Outbound) error
	wake    func() // trigger a connect when buffering while idle
}

func newOutboundQueue(sendNow func(wire.Outbound) error, wake func()) *outboundQueue {
	return &outboundQueue{sendNow: sendNow, wake: wake}
}

// EnqueueOrSend transmits immediately when connected, otherwise buffers the
// frame and kicks off a connection attempt.
func (q *outboundQueue) EnqueueOrSend(o wire.Outbound) {
	if err := q.sendNow(o); err == nil {
		return
	}
	q.mu.Lock()
	q.frames = append(q.frames, o)
	q.mu.Unlock()
	q.wake()
}

// flush drains the buffer in FIFO order. If a send fails mid-drain (the
// connection died again), the failed frame and everything after it are put
// back at the front so the next flush preserves the original order.
func (q *outboundQueue) flush() {
	q.mu.Lock()
	pending := q.frames
	q.frames = nil
	q.mu.Unlock()

	for i, o := range pending {
		if err := q.sendNow(o); err != nil {
			q.mu.Lock()
			q.frames = append(pending[i:], q.frames...)
			q.mu.Unlock()
			return
		}
	}
}

// Depth returns the number of buffered frames.
func (q *outboundQueue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.frames)
}

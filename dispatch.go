package nudgechat

import (
	"encoding/json"
	"errors"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/NudgeChat/nudgechat-go-sdk/store"
	"github.com/NudgeChat/nudgechat-go-sdk/wire"
)

// EventKind distinguishes real inbound frames from the synthetic signals the
// dispatcher derives from arrival timing.
type EventKind int

const (
	// EventFrame carries a decoded inbound frame.
	EventFrame EventKind = iota
	// EventTypingBegan signals the "assistant is composing" affordance.
	EventTypingBegan
	// EventTypingEnded clears the composing affordance.
	EventTypingEnded
	// EventNewSession signals that the backend replaced the logical
	// session. Informational; a UI may suppress a duplicate greeting.
	EventNewSession
)

// Event is what subscribed handlers receive. Frame is populated for
// EventFrame and EventNewSession (the session_info frame that caused it).
type Event struct {
	Kind  EventKind
	Frame wire.Frame
}

// Handler consumes dispatcher events. Every handler observes every event:
// fan-out is simple multicast, not a priority pipeline.
type Handler func(Event)

// Token identifies a subscription for Unsubscribe.
type Token string

// ErrDuplicateHandler is returned when the same handler func value is
// subscribed twice, a coarse guard against accidental double registration
// when a consuming component re-renders.
var ErrDuplicateHandler = errors.New("nudgechat: handler already subscribed")

// Dispatcher parses inbound frames, applies identity side effects, tags
// chat-bearing frames with a dedup key, and multicasts to subscribers. It
// also synthesizes the typing indicator signals.
type Dispatcher struct {
	mu       sync.Mutex
	handlers map[Token]Handler
	order    []Token
	byFunc   map[uintptr]Token

	identity *store.Identity
	typing   *typingState
	now      func() time.Time
}

func newDispatcher(identity *store.Identity, composeDelay, safetyTimeout time.Duration) *Dispatcher {
	d := &Dispatcher{
		handlers: make(map[Token]Handler),
		byFunc:   make(map[uintptr]Token),
		identity: identity,
		now:      time.Now,
	}
	d.typing = newTypingState(composeDelay, safetyTimeout, d.emitTyping)
	return d
}

// Subscribe registers h and returns its token. A handler that is
// reference-identical to one already registered is rejected.
func (d *Dispatcher) Subscribe(h Handler) (Token, error) {
	ptr := reflect.ValueOf(h).Pointer()
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, dup := d.byFunc[ptr]; dup {
		return "", ErrDuplicateHandler
	}
	tok := Token(uuid.NewString())
	d.handlers[tok] = h
	d.order = append(d.order, tok)
	d.byFunc[ptr] = tok
	return tok, nil
}

// Unsubscribe removes the handler registered under t.
func (d *Dispatcher) Unsubscribe(t Token) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h, ok := d.handlers[t]
	if !ok {
		return
	}
	delete(d.handlers, t)
	delete(d.byFunc, reflect.ValueOf(h).Pointer())
	for i, tok := range d.order {
		if tok == t {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
}

// onFrame handles one raw inbound frame. Parse errors are logged and the
// frame dropped; nothing here panics outward.
func (d *Dispatcher) onFrame(raw []byte) {
	f, err := wire.Decode(raw, d.now())
	if err != nil {
		slog.Debug("dropping bad frame", "error", err)
		return
	}

	// Identity side effects run before fan-out so handlers observe the
	// updated triple.
	switch f.Type {
	case wire.TypeSessionInfo:
		changed, err := d.identity.SetSessionID(f.SessionID)
		if err != nil {
			slog.Warn("session id rejected", "error", err)
		} else if changed {
			slog.Info("backend started a new session", "session_id", f.SessionID)
			d.fanOut(Event{Kind: EventNewSession, Frame: f})
		}
	case wire.TypeSetCookie:
		if err := d.identity.SetCookieID(f.CookieID); err != nil {
			slog.Warn("cookie id rejected", "error", err)
		}
	}

	if f.DedupKey != "" {
		slog.Debug("chat frame", "dedup_key", f.DedupKey, "type", f.Type)
	}

	d.fanOut(Event{Kind: EventFrame, Frame: f})
	d.typing.frameArrived(f.ChatBearing())
}

// fanOut multicasts ev to every handler in registration order. A failure in
// one handler never prevents the rest from observing the event.
func (d *Dispatcher) fanOut(ev Event) {
	d.mu.Lock()
	hs := make([]Handler, 0, len(d.order))
	for _, tok := range d.order {
		hs = append(hs, d.handlers[tok])
	}
	d.mu.Unlock()

	for _, h := range hs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					slog.Warn("handler panicked", "panic", r)
				}
			}()
			h(ev)
		}()
	}
}

func (d *Dispatcher) emitTyping(kind EventKind) {
	d.fanOut(Event{Kind: kind})
}

// armSafetyTimer (re)arms the typing safety timer; called on every outbound
// user message.
func (d *Dispatcher) armSafetyTimer() { d.typing.armSafety() }

func (d *Dispatcher) stopTimers() { d.typing.stop() }

// frameTypeOf peeks at the type field of a raw frame for metrics labelling.
func frameTypeOf(raw []byte) string {
	var peek struct {
		Type string `json:"type"`
	}
	if json.Unmarshal(raw, &peek) != nil || peek.Type == "" {
		return "invalid"
	}
	return peek.Type
}

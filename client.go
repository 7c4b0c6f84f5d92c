// Package nudgechat provides a Go client for the NudgeChat assistant
// gateway. It maintains one durable logical conversation over WebSocket,
// survives reconnects with bounded exponential backoff, carries the
// visitor's identity triple across connections, and orchestrates the hosted
// checkout flow triggered by payment_link frames.
package nudgechat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/NudgeChat/nudgechat-go-sdk/checkout"
	"github.com/NudgeChat/nudgechat-go-sdk/store"
	"github.com/NudgeChat/nudgechat-go-sdk/wire"
)

// ConnectionState describes the transport connection lifecycle. StateError
// is a transient substate of disconnected entered on failure while a
// reconnect is pending.
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateError
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("ConnectionState(%d)", int(s))
	}
}

// ErrNotConnected is returned by direct sends while the transport is down.
// Callers that must not lose frames go through the outbound queue instead.
var ErrNotConnected = errors.New("nudgechat: not connected")

// Client owns the single transport connection and the components hanging
// off it. Create one per page session with New.
type Client struct {
	cfg      Config
	identity *store.Identity
	durable  store.Store
	session  store.Store

	mu        sync.Mutex
	conn      net.Conn
	state     ConnectionState
	attempt   int
	reconnect *time.Timer
	gen       int
	closing   bool
	stateSubs []func(ConnectionState)

	writeMu sync.Mutex

	// dial defaults to a gobwas ws.Dial wrapper; replaced in tests to
	// simulate transport failures.
	dial func(ctx context.Context, endpoint string) (net.Conn, error)

	queue      *outboundQueue
	dispatcher *Dispatcher
	conv       *Conversation
	payments   *PaymentOrchestrator
	idle       *InactivityMonitor
	api        *APIClient
	metrics    *metricSet
}

// New builds a Client from cfg, opening the durable store and loading (or
// first-creating) the identity triple. The connection is not opened; call
// Connect, or just SendMessage, which connects on demand.
func New(cfg Config) (*Client, error) {
	cfg = cfg.withDefaults()
	if cfg.Endpoint == "" {
		return nil, errors.New("nudgechat: Endpoint not configured")
	}

	durable, err := store.OpenDurable(cfg.DurablePath)
	if err != nil {
		return nil, err
	}
	session := store.NewSession()
	identity, err := store.LoadIdentity(durable, session)
	if err != nil {
		durable.Close()
		return nil, err
	}

	c := &Client{
		cfg:      cfg,
		identity: identity,
		durable:  durable,
		session:  session,
		state:    StateDisconnected,
		api:      NewAPIClient(cfg.APIEndpoint),
	}
	c.dial = func(ctx context.Context, endpoint string) (net.Conn, error) {
		conn, _, _, err := ws.Dial(ctx, endpoint)
		return conn, err
	}

	c.conv = NewConversation(session)
	c.queue = newOutboundQueue(c.send, c.connectIfIdle)
	c.dispatcher = newDispatcher(identity, cfg.ComposeDelay, cfg.TypingSafetyTimeout)
	c.payments = newPaymentOrchestrator(
		durable, identity, c.conv, c,
		checkout.NewVendor(cfg.CheckoutURL, cfg.CheckoutKey),
		c.api, cfg.CheckoutKey,
	)
	c.idle = newInactivityMonitor(cfg.InactivityTimeout, c.connectedNow, c.payments.PendingContext, c.send)
	c.metrics = newMetricSet(cfg.Registerer, func() float64 { return float64(c.queue.Depth()) })

	c.dispatcher.Subscribe(c.consume)
	return c, nil
}

// Connect opens the transport connection. It is idempotent: a no-op while
// already connecting or connected. A manual Connect also resets the
// reconnect attempt budget and cancels any pending automatic retry.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	c.attempt = 0
	c.closing = false
	if c.reconnect != nil {
		c.reconnect.Stop()
		c.reconnect = nil
	}
	c.mu.Unlock()
	return c.connect(ctx)
}

func (c *Client) connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateConnecting || c.state == StateConnected {
		c.mu.Unlock()
		return nil
	}
	c.setStateLocked(StateConnecting)
	c.mu.Unlock()

	conn, err := c.dial(ctx, c.cfg.Endpoint)
	if err != nil {
		slog.Warn("dial failed", "endpoint", c.cfg.Endpoint, "error", err)
		c.connectionFailed()
		return fmt.Errorf("nudgechat: dial: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.gen++
	gen := c.gen
	c.attempt = 0
	c.setStateLocked(StateConnected)
	c.mu.Unlock()

	slog.Info("connected to gateway", "endpoint", c.cfg.Endpoint)
	c.sendHandshake()
	c.queue.flush()
	go c.readLoop(conn, gen)
	return nil
}

// connectIfIdle starts a connection attempt unless one is already underway.
// Used by the outbound queue when a frame is buffered while offline. The
// buffered frame is an intentional user action, so it also lifts an earlier
// intentional Disconnect. If a concurrent connect won the race and already
// drained the queue before the frame was buffered, the connection is up and
// connect would short-circuit, so flush here instead.
func (c *Client) connectIfIdle() {
	c.mu.Lock()
	c.closing = false
	connected := c.state == StateConnected
	c.mu.Unlock()
	if connected {
		c.queue.flush()
		return
	}
	go c.connect(context.Background())
}

// Disconnect tears the connection down intentionally: the pending reconnect
// timer (if any) is cancelled so a retry cannot race the shutdown.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.closing = true
	if c.reconnect != nil {
		c.reconnect.Stop()
		c.reconnect = nil
	}
	conn := c.conn
	c.conn = nil
	c.setStateLocked(StateDisconnected)
	c.mu.Unlock()

	c.idle.Pause()
	c.dispatcher.stopTimers()
	if conn != nil {
		conn.Close()
	}
}

// Close disconnects and releases the durable store.
func (c *Client) Close() error {
	c.Disconnect()
	c.idle.Stop()
	return c.durable.Close()
}

// State returns the current connection state.
func (c *Client) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// OnStateChange registers a callback observing every state transition.
func (c *Client) OnStateChange(fn func(ConnectionState)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stateSubs = append(c.stateSubs, fn)
}

func (c *Client) connectedNow() bool { return c.State() == StateConnected }

// setStateLocked transitions the state and notifies subscribers. Callers
// hold c.mu.
func (c *Client) setStateLocked(s ConnectionState) {
	if c.state == s {
		return
	}
	c.state = s
	c.metrics.observeState(s)
	subs := make([]func(ConnectionState), len(c.stateSubs))
	copy(subs, c.stateSubs)
	go func() {
		for _, fn := range subs {
			fn(s)
		}
	}()
}

// backoffDelay returns the reconnect delay for the given attempt:
// min(max, base<<attempt).
func backoffDelay(attempt int, base, max time.Duration) time.Duration {
	d := base << uint(attempt)
	if d > max || d <= 0 {
		return max
	}
	return d
}

// connectionFailed routes both construction failures and mid-session errors
// through the same reconnect scheduler.
func (c *Client) connectionFailed() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closing {
		c.setStateLocked(StateDisconnected)
		return
	}
	c.setStateLocked(StateError)
	if c.attempt >= c.cfg.MaxReconnectAttempts {
		slog.Warn("reconnect budget exhausted, giving up until next Connect",
			"attempts", c.attempt)
		c.setStateLocked(StateDisconnected)
		return
	}
	delay := backoffDelay(c.attempt, c.cfg.ReconnectBase, c.cfg.ReconnectMax)
	c.attempt++
	c.metrics.observeReconnect()
	slog.Info("scheduling reconnect", "attempt", c.attempt, "delay", delay)
	c.reconnect = time.AfterFunc(delay, func() {
		c.mu.Lock()
		c.reconnect = nil
		if c.closing {
			// Disconnect raced the timer; stay down.
			c.mu.Unlock()
			return
		}
		if c.state == StateError {
			c.state = StateDisconnected
		}
		c.mu.Unlock()
		c.connect(context.Background())
	})
}

func (c *Client) readLoop(conn net.Conn, gen int) {
	for {
		data, err := wsutil.ReadServerText(conn)
		if err != nil {
			c.mu.Lock()
			stale := gen != c.gen
			closing := c.closing
			if !stale && !closing {
				c.conn = nil
			}
			c.mu.Unlock()
			if stale || closing {
				return
			}
			slog.Warn("read error, scheduling reconnect", "error", err)
			c.connectionFailed()
			return
		}
		c.dispatcher.onFrame(data)
		c.metrics.observeFrame(frameTypeOf(data))
	}
}

// sendHandshake transmits the identity side channel on a fresh connection.
// Not user-visible chat; the backend uses it to resume or replace the
// logical session.
func (c *Client) sendHandshake() {
	deviceID, cookieID, sessionID := c.identity.Snapshot()
	for _, f := range wire.NewIdentityFrames(deviceID, cookieID, sessionID, c.cfg.ClientInfo) {
		if err := c.send(f); err != nil {
			slog.Warn("handshake frame failed", "type", f.Type, "error", err)
			return
		}
	}
}

// send transmits one frame immediately, stamping the current identity. It
// fails with ErrNotConnected while the transport is down.
func (c *Client) send(o wire.Outbound) error {
	c.mu.Lock()
	conn := c.conn
	connected := c.state == StateConnected
	c.mu.Unlock()
	if !connected || conn == nil {
		return ErrNotConnected
	}

	deviceID, cookieID, sessionID := c.identity.Snapshot()
	o.StampIdentity(deviceID, cookieID, sessionID)
	data, err := o.Encode()
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	err = wsutil.WriteClientText(conn, data)
	c.writeMu.Unlock()
	if err != nil {
		slog.Warn("write error", "type", o.Type, "error", err)
		conn.Close()
		return fmt.Errorf("nudgechat: write: %w", err)
	}
	return nil
}

// SendMessage appends the user's message to the conversation optimistically,
// then sends it: immediately when connected, otherwise via the outbound
// queue (which triggers a connect). There is no rollback if the send
// ultimately fails; failures surface through the connection state.
func (c *Client) SendMessage(text string) {
	c.conv.Append(RoleUser, text)
	c.dispatcher.armSafetyTimer()
	c.queue.EnqueueOrSend(wire.NewMessage(text))
	c.idle.Touch()
}

// Touch records a user interaction (click, keypress, scroll) for the
// inactivity monitor.
func (c *Client) Touch() { c.idle.Touch() }

// Subscribe registers a frame/event handler with the inbound dispatcher.
func (c *Client) Subscribe(h Handler) (Token, error) { return c.dispatcher.Subscribe(h) }

// Unsubscribe removes a previously registered handler.
func (c *Client) Unsubscribe(t Token) { c.dispatcher.Unsubscribe(t) }

// Conversation returns the append-only message log.
func (c *Client) Conversation() *Conversation { return c.conv }

// Payments returns the payment orchestrator.
func (c *Client) Payments() *PaymentOrchestrator { return c.payments }

// consume is the client's own dispatcher subscription: it feeds assistant
// chat into the conversation model and payment notices into the
// orchestrator.
func (c *Client) consume(ev Event) {
	if ev.Kind != EventFrame {
		return
	}
	switch {
	case ev.Frame.ChatBearing():
		c.conv.Append(RoleAssistant, ev.Frame.Text)
	case ev.Frame.Type == wire.TypePaymentLink:
		c.payments.HandleLink(ev.Frame.Link)
	}
}

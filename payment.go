package nudgechat

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/NudgeChat/nudgechat-go-sdk/checkout"
	"github.com/NudgeChat/nudgechat-go-sdk/store"
	"github.com/NudgeChat/nudgechat-go-sdk/wire"
)

// PaymentState is the lifecycle of one checkout attempt.
type PaymentState int

const (
	PaymentNone PaymentState = iota
	PaymentLinkReceived
	PaymentSDKLoading
	PaymentCheckoutOpen
	PaymentSucceeded
	PaymentCancelled
	PaymentFailed
)

func (s PaymentState) String() string {
	switch s {
	case PaymentNone:
		return "none"
	case PaymentLinkReceived:
		return "linkReceived"
	case PaymentSDKLoading:
		return "sdkLoading"
	case PaymentCheckoutOpen:
		return "checkoutOpen"
	case PaymentSucceeded:
		return "succeeded"
	case PaymentCancelled:
		return "cancelled"
	case PaymentFailed:
		return "failed"
	default:
		return fmt.Sprintf("PaymentState(%d)", int(s))
	}
}

// PaymentSession tracks one checkout attempt from link receipt to terminal
// outcome.
type PaymentSession struct {
	RawLink  string
	OrderRef string
	State    PaymentState
}

// frameSender is the slice of the client the orchestrator writes through:
// status notifications go out directly on the transport, chat messages
// through the outbound queue.
type frameSender interface {
	send(wire.Outbound) error
}

// statusQuerier is the backend payment-status source of truth.
type statusQuerier interface {
	PaymentStatus(ctx context.Context, sessionID string) (PaymentStatusResult, error)
}

// PaymentOrchestrator bridges in-chat payment notices to the checkout
// vendor and reconciles the outcome with the local cache and the backend.
// Precedence is fixed: the backend always wins; the local completion flag is
// a latency optimization only.
type PaymentOrchestrator struct {
	mu      sync.Mutex
	session *PaymentSession
	active  checkout.Session
	cancel  context.CancelFunc

	durable  store.Store
	identity *store.Identity
	conv     *Conversation
	sender   frameSender
	provider checkout.Provider
	backend  statusQuerier

	prefill checkout.Prefill
	key     string
}

func newPaymentOrchestrator(
	durable store.Store,
	identity *store.Identity,
	conv *Conversation,
	sender frameSender,
	provider checkout.Provider,
	backend statusQuerier,
	key string,
) *PaymentOrchestrator {
	return &PaymentOrchestrator{
		durable:  durable,
		identity: identity,
		conv:     conv,
		sender:   sender,
		provider: provider,
		backend:  backend,
		key:      key,
	}
}

// SetPrefill sets customer fields passed to the checkout vendor.
func (p *PaymentOrchestrator) SetPrefill(pf checkout.Prefill) {
	p.mu.Lock()
	p.prefill = pf
	p.mu.Unlock()
}

// HandleLink accepts a payment_link frame. A new notice always supersedes
// the previous PaymentSession, even when the cached completion flag is
// already set, since the backend may legitimately request a second payment.
func (p *PaymentOrchestrator) HandleLink(link string) {
	if link == "" {
		slog.Warn("payment_link frame with empty link dropped")
		return
	}
	p.mu.Lock()
	cancel := p.cancel
	p.session = &PaymentSession{RawLink: link, State: PaymentLinkReceived}
	p.active = nil
	p.cancel = nil
	p.mu.Unlock()
	if cancel != nil {
		// Stop the superseded checkout; its callbacks are bound to the old
		// session and can no longer affect this one.
		cancel()
	}
	slog.Info("payment link received", "link", link,
		"cached_completion", p.HasCompletedPayment())
}

// Session returns a copy of the current payment session, or a zero session
// in state none.
func (p *PaymentOrchestrator) Session() PaymentSession {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session == nil {
		return PaymentSession{State: PaymentNone}
	}
	return *p.session
}

// ShowPopup reports whether the presentation layer should display the
// payment popup. Cancelled and failed attempts keep it available for retry;
// success and no-session hide it.
func (p *PaymentOrchestrator) ShowPopup() bool {
	switch p.Session().State {
	case PaymentLinkReceived, PaymentSDKLoading, PaymentCheckoutOpen, PaymentCancelled, PaymentFailed:
		return true
	default:
		return false
	}
}

// PaymentLink returns the raw link of the current session, "" when none.
func (p *PaymentOrchestrator) PaymentLink() string { return p.Session().RawLink }

// PendingContext returns the context tag for the inactivity nudge:
// "payment pending" while a checkout is in flight, "" otherwise.
func (p *PaymentOrchestrator) PendingContext() string {
	switch p.Session().State {
	case PaymentLinkReceived, PaymentSDKLoading, PaymentCheckoutOpen:
		return "payment pending"
	default:
		return ""
	}
}

// HasCompletedPayment reads the cached completion flag. It is a fast-path
// hint, never the source of truth; see Reconcile.
func (p *PaymentOrchestrator) HasCompletedPayment() bool {
	v, err := p.durable.Get(store.KeyPaymentCompleted)
	return err == nil && v == "true"
}

// Open drives the current session through the checkout vendor: extract the
// order reference, initialize the vendor (falling back to the direct link
// when that fails), and run the checkout to a terminal outcome. Every exit
// resolves to exactly one of succeeded, cancelled, or failed.
func (p *PaymentOrchestrator) Open(ctx context.Context) error {
	p.mu.Lock()
	s := p.session
	if s == nil {
		p.mu.Unlock()
		return fmt.Errorf("nudgechat: no payment session")
	}
	switch s.State {
	case PaymentSDKLoading, PaymentCheckoutOpen:
		p.mu.Unlock()
		return fmt.Errorf("nudgechat: checkout already open")
	case PaymentSucceeded:
		p.mu.Unlock()
		return fmt.Errorf("nudgechat: payment already completed")
	}

	ref, ok := ExtractOrderRef(s.RawLink)
	if !ok {
		s.State = PaymentFailed
		p.mu.Unlock()
		slog.Warn("no order reference in payment link", "link", s.RawLink)
		return fmt.Errorf("nudgechat: no order reference in %q", s.RawLink)
	}
	s.OrderRef = ref
	s.State = PaymentSDKLoading
	link := s.RawLink
	// Callbacks are bound to s so an outcome from a checkout that was later
	// superseded by a newer payment_link never touches the current session.
	opts := checkout.Options{
		Key:       p.key,
		OrderRef:  ref,
		Prefill:   p.prefill,
		OnSuccess: func(paymentID string) { p.onSuccess(s, paymentID) },
		OnDismiss: func() { p.onDismiss(s) },
	}
	p.mu.Unlock()

	sess, err := p.newSession(ctx, link, opts)
	if err != nil {
		p.transition(s, PaymentFailed)
		return err
	}
	sess.OnFailure(func(reason string) { p.onFailure(s, reason) })

	p.mu.Lock()
	if p.session != s {
		// Superseded by a newer payment_link while loading.
		p.mu.Unlock()
		return nil
	}
	s.State = PaymentCheckoutOpen
	openCtx, cancel := context.WithCancel(ctx)
	p.active = sess
	p.cancel = cancel
	p.mu.Unlock()

	go func() {
		defer cancel()
		if err := sess.Open(openCtx); err != nil && openCtx.Err() == nil {
			slog.Warn("checkout session ended with error", "error", err)
		}
	}()
	return nil
}

// newSession initializes the vendor and constructs the checkout session,
// dropping to the direct-link fallback when initialization fails.
func (p *PaymentOrchestrator) newSession(ctx context.Context, link string, opts checkout.Options) (checkout.Session, error) {
	if err := p.provider.Ensure(ctx); err != nil {
		slog.Warn("vendor initialization failed, using direct-link fallback", "error", err)
		sess, ferr := p.provider.Fallback(link, opts)
		if ferr != nil {
			return nil, fmt.Errorf("nudgechat: checkout fallback: %w", ferr)
		}
		return sess, nil
	}
	sess, err := p.provider.NewSession(opts)
	if err != nil {
		return nil, fmt.Errorf("nudgechat: checkout init: %w", err)
	}
	return sess, nil
}

// onSuccess reconciles a successful checkout callback: cache flag, advisory
// confirmation in the conversation, and a status notification to the
// backend. The confirmation text is advisory only; the backend is the
// authority that the charge cleared.
func (p *PaymentOrchestrator) onSuccess(s *PaymentSession, paymentID string) {
	if !p.transition(s, PaymentSucceeded) {
		slog.Debug("ignoring stale checkout success", "payment_id", paymentID)
		return
	}
	if err := p.durable.Set(store.KeyPaymentCompleted, "true"); err != nil {
		slog.Warn("could not cache payment completion", "error", err)
	}
	p.conv.Append(RoleAssistant, "Payment received! We are confirming it now.")
	p.notify(true, wire.PaymentStatusCompleted)
	slog.Info("payment succeeded", "payment_id", paymentID)
}

// onDismiss handles a checkout abandoned without completing. The backend is
// notified with a distinct status so the conversation can react instead of
// silently losing the cancellation.
func (p *PaymentOrchestrator) onDismiss(s *PaymentSession) {
	if !p.transition(s, PaymentCancelled) {
		return
	}
	p.notify(false, wire.PaymentStatusCancelled)
	slog.Info("payment cancelled by user")
}

func (p *PaymentOrchestrator) onFailure(s *PaymentSession, reason string) {
	if !p.transition(s, PaymentFailed) {
		return
	}
	slog.Warn("payment failed", "reason", reason)
}

// ClosePopup dismisses the popup. An in-flight attempt counts as a
// cancellation (with backend notification); in every case the
// PaymentSession resets to none.
func (p *PaymentOrchestrator) ClosePopup() {
	p.mu.Lock()
	s := p.session
	cancel := p.cancel
	p.session = nil
	p.active = nil
	p.cancel = nil
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if s == nil {
		return
	}
	switch s.State {
	case PaymentLinkReceived, PaymentSDKLoading, PaymentCheckoutOpen:
		p.notify(false, wire.PaymentStatusCancelled)
		slog.Info("payment popup dismissed mid-flight", "state", s.State.String())
	}
}

// Reconcile asks the backend for the authoritative payment status. A
// backend-confirmed completion is honoured even when the local cache was
// cleared; a backend not-completed answer clears a stale local flag.
func (p *PaymentOrchestrator) Reconcile(ctx context.Context) error {
	result, err := p.backend.PaymentStatus(ctx, p.identity.SessionID())
	if err != nil {
		return err
	}
	if result.PaymentCompleted {
		if err := p.durable.Set(store.KeyPaymentCompleted, "true"); err != nil {
			slog.Warn("could not cache payment completion", "error", err)
		}
		p.mu.Lock()
		if p.session != nil && p.session.State != PaymentSucceeded {
			p.session.State = PaymentSucceeded
		}
		p.mu.Unlock()
		return nil
	}
	if err := p.durable.Delete(store.KeyPaymentCompleted); err != nil {
		slog.Warn("could not clear stale payment flag", "error", err)
	}
	return nil
}

// transition moves s to st only while s is still the current session. It
// reports whether the transition applied; callbacks from a superseded
// checkout get false and must not act.
func (p *PaymentOrchestrator) transition(s *PaymentSession, st PaymentState) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session != s {
		return false
	}
	s.State = st
	return true
}

func (p *PaymentOrchestrator) notify(completed bool, status string) {
	if err := p.sender.send(wire.NewPaymentStatus(completed, status)); err != nil {
		slog.Warn("payment status notification failed", "status", status, "error", err)
	}
}

// Package checkout is the boundary to the hosted checkout vendor. The
// vendor is an external collaborator: this package specifies its lifecycle
// (one-time idempotent initialization, opening a checkout session, failure
// events) and a direct-link fallback for when initialization fails.
package checkout

import "context"

// Prefill carries optional customer fields shown pre-filled in the checkout.
type Prefill struct {
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	Contact string `json:"contact,omitempty"`
}

// Options configures one checkout session.
type Options struct {
	Key      string
	OrderRef string
	Prefill  Prefill

	// OnSuccess fires when the vendor reports the payment cleared, with the
	// vendor's payment id. Advisory: the conversation backend remains the
	// authority that the charge cleared.
	OnSuccess func(paymentID string)
	// OnDismiss fires when the customer abandons the checkout without
	// completing it.
	OnDismiss func()
}

// Session is one open checkout attempt, from Open to a terminal outcome.
type Session interface {
	// Open runs the checkout until it resolves. It blocks; run it on its
	// own goroutine. Exactly one of OnSuccess, OnDismiss, or a failure
	// callback fires before Open returns.
	Open(ctx context.Context) error
	// OnFailure subscribes to payment-error/payment-failed events.
	OnFailure(fn func(reason string))
}

// Provider is the vendor SDK surface the payment orchestrator drives.
type Provider interface {
	// Ensure performs the one-time initialization (the script-load
	// analogue). Idempotent: once it has succeeded it resolves
	// immediately; after a failure the next call retries.
	Ensure(ctx context.Context) error
	// NewSession constructs a checkout session for opts.
	NewSession(opts Options) (Session, error)
	// Fallback builds a session pointed directly at the raw payment link,
	// used when Ensure fails so checkout remains possible.
	Fallback(rawLink string, opts Options) (Session, error)
}

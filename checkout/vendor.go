package checkout

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// Vendor talks to the hosted checkout vendor over HTTP.
type Vendor struct {
	baseURL    string
	key        string
	httpClient *http.Client
	poll       time.Duration

	mu    sync.Mutex
	ready bool
}

// NewVendor creates a vendor client. baseURL is the vendor API root.
func NewVendor(baseURL, key string) *Vendor {
	return &Vendor{
		baseURL:    baseURL,
		key:        key,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		poll:       2 * time.Second,
	}
}

// Ensure verifies the vendor is reachable. Success is cached so subsequent
// calls resolve immediately; a failure leaves the next call free to retry.
func (v *Vendor) Ensure(ctx context.Context) error {
	v.mu.Lock()
	if v.ready {
		v.mu.Unlock()
		return nil
	}
	v.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.baseURL+"/v1/ping", nil)
	if err != nil {
		return err
	}
	resp, err := v.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("checkout: vendor unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("checkout: vendor ping: %d", resp.StatusCode)
	}

	v.mu.Lock()
	v.ready = true
	v.mu.Unlock()
	return nil
}

// NewSession constructs a hosted checkout session. The order reference is
// mandatory: a checkout with no order context must never open.
func (v *Vendor) NewSession(opts Options) (Session, error) {
	if opts.OrderRef == "" {
		return nil, errors.New("checkout: empty order reference")
	}
	return &hostedSession{vendor: v, opts: opts}, nil
}

// Fallback builds a direct-link session for rawLink, bypassing vendor
// initialization.
func (v *Vendor) Fallback(rawLink string, opts Options) (Session, error) {
	if rawLink == "" {
		return nil, errors.New("checkout: empty payment link")
	}
	return &fallbackSession{vendor: v, rawLink: rawLink, opts: opts}, nil
}

func (v *Vendor) doJSON(ctx context.Context, method, path string, reqBody, dest any) error {
	var body io.Reader
	if reqBody != nil {
		b, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("checkout: marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, v.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+v.key)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := v.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("checkout: %s %s: %d %s", method, path, resp.StatusCode, respBody)
	}
	if dest != nil {
		return json.Unmarshal(respBody, dest)
	}
	return nil
}

// hostedSession drives one vendor checkout session to a terminal outcome.
type hostedSession struct {
	vendor *Vendor
	opts   Options

	mu        sync.Mutex
	onFailure []func(reason string)
}

func (s *hostedSession) OnFailure(fn func(reason string)) {
	s.mu.Lock()
	s.onFailure = append(s.onFailure, fn)
	s.mu.Unlock()
}

func (s *hostedSession) fail(reason string) {
	s.mu.Lock()
	fns := make([]func(string), len(s.onFailure))
	copy(fns, s.onFailure)
	s.mu.Unlock()
	for _, fn := range fns {
		fn(reason)
	}
}

type sessionState struct {
	CheckoutID string `json:"checkout_id"`
	Status     string `json:"status"` // created | paid | dismissed | failed
	PaymentID  string `json:"payment_id,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// Open creates the vendor session and polls it until a terminal status.
// Cancelling ctx counts as a dismissal.
func (s *hostedSession) Open(ctx context.Context) error {
	var created sessionState
	err := s.vendor.doJSON(ctx, http.MethodPost, "/v1/checkout/sessions", map[string]any{
		"order_ref": s.opts.OrderRef,
		"prefill":   s.opts.Prefill,
	}, &created)
	if err != nil {
		s.fail(err.Error())
		return err
	}
	slog.Info("checkout opened", "order_ref", s.opts.OrderRef, "checkout_id", created.CheckoutID)

	ticker := time.NewTicker(s.vendor.poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if s.opts.OnDismiss != nil {
				s.opts.OnDismiss()
			}
			return ctx.Err()
		case <-ticker.C:
		}

		var st sessionState
		if err := s.vendor.doJSON(ctx, http.MethodGet, "/v1/checkout/sessions/"+created.CheckoutID, nil, &st); err != nil {
			slog.Warn("checkout poll failed", "error", err)
			continue
		}
		switch st.Status {
		case "paid":
			if s.opts.OnSuccess != nil {
				s.opts.OnSuccess(st.PaymentID)
			}
			return nil
		case "dismissed":
			if s.opts.OnDismiss != nil {
				s.opts.OnDismiss()
			}
			return nil
		case "failed":
			s.fail(st.Reason)
			return fmt.Errorf("checkout: payment failed: %s", st.Reason)
		}
	}
}

// fallbackSession points straight at the raw payment link inside the modal
// overlay. It has its own loading/error/retry substates: each Open attempt
// loads the link, and a load failure may simply be retried with another
// Open.
type fallbackSession struct {
	vendor  *Vendor
	rawLink string
	opts    Options

	mu        sync.Mutex
	onFailure []func(reason string)
}

func (s *fallbackSession) OnFailure(fn func(reason string)) {
	s.mu.Lock()
	s.onFailure = append(s.onFailure, fn)
	s.mu.Unlock()
}

func (s *fallbackSession) Open(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.rawLink, nil)
	if err != nil {
		return err
	}
	resp, err := s.vendor.httpClient.Do(req)
	if err == nil {
		resp.Body.Close()
	}
	if err != nil || resp.StatusCode >= 400 {
		s.mu.Lock()
		fns := make([]func(string), len(s.onFailure))
		copy(fns, s.onFailure)
		s.mu.Unlock()
		reason := "payment page unavailable"
		if err != nil {
			reason = err.Error()
		}
		for _, fn := range fns {
			fn(reason)
		}
		return fmt.Errorf("checkout: fallback load: %s", reason)
	}
	slog.Info("fallback checkout frame loaded", "link", s.rawLink)

	// Completion of the direct-link flow is observed through backend
	// reconciliation, not a vendor callback; loading the frame is this
	// session's whole job.
	return nil
}

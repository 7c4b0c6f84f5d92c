package nudgechat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// APIClient communicates with the gateway REST API. It works independently
// of the WebSocket client (no live connection needed) and serves as the
// authoritative source for payment status.
type APIClient struct {
	base       string
	httpClient *http.Client
}

// NewAPIClient creates a gateway API client. base is the REST root
// (e.g. "https://gw.example/api/v1").
func NewAPIClient(base string) *APIClient {
	return &APIClient{
		base:       base,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// PaymentStatusResult is the backend's record of a session's payment.
type PaymentStatusResult struct {
	PaymentCompleted bool   `json:"payment_completed"`
	PaymentStatus    string `json:"payment_status"`
}

// PaymentStatus queries the backend's record of payment status for a logical
// session. The backend, not the local cache, is the source of truth.
func (c *APIClient) PaymentStatus(ctx context.Context, sessionID string) (PaymentStatusResult, error) {
	var result PaymentStatusResult
	if sessionID == "" {
		return result, fmt.Errorf("nudgechat: no session to query")
	}
	err := c.doJSON(ctx, http.MethodGet, "/sessions/"+sessionID+"/payment", nil, &result)
	return result, err
}

// doJSON sends a request and decodes the JSON response into dest.
func (c *APIClient) doJSON(ctx context.Context, method, path string, reqBody, dest any) error {
	var body io.Reader
	if reqBody != nil {
		b, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("nudgechat: marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("nudgechat: api %s %s: %d %s", method, path, resp.StatusCode, respBody)
	}
	if dest != nil {
		return json.Unmarshal(respBody, dest)
	}
	return nil
}

package nudgechat

import (
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Config holds connection and behaviour parameters. The zero value is usable
// once Endpoint is set; everything else falls back to a default.
type Config struct {
	Endpoint    string // WebSocket URL of the assistant gateway (e.g. "wss://gw.example/ws")
	APIEndpoint string // REST API base URL, derived from Endpoint if empty

	CheckoutURL string // hosted checkout vendor base URL
	CheckoutKey string // vendor public key

	DurablePath string // sqlite file for the durable local store ("nudgechat.db")
	ClientInfo  string // free-form client/environment description sent at handshake

	ReconnectBase        time.Duration // first reconnect delay (1s)
	ReconnectMax         time.Duration // backoff ceiling (30s)
	MaxReconnectAttempts int           // scheduled attempts before giving up (5)

	InactivityTimeout   time.Duration // quiet period before the inactive nudge (60s)
	TypingSafetyTimeout time.Duration // max composing time without an inbound frame (15s)
	ComposeDelay        time.Duration // delay before the synthetic typing-began signal (40ms)

	// Registerer receives the client's Prometheus collectors. Leave nil to
	// disable metrics.
	Registerer prometheus.Registerer
}

const (
	defaultReconnectBase     = 1 * time.Second
	defaultReconnectMax      = 30 * time.Second
	defaultMaxReconnects     = 5
	defaultInactivityTimeout = 60 * time.Second
	defaultTypingSafety      = 15 * time.Second
	defaultComposeDelay      = 40 * time.Millisecond
	defaultDurablePath       = "nudgechat.db"
)

func (cfg Config) withDefaults() Config {
	if cfg.APIEndpoint == "" {
		cfg.APIEndpoint = deriveAPIBase(cfg.Endpoint)
	}
	if cfg.DurablePath == "" {
		cfg.DurablePath = defaultDurablePath
	}
	if cfg.ReconnectBase == 0 {
		cfg.ReconnectBase = defaultReconnectBase
	}
	if cfg.ReconnectMax == 0 {
		cfg.ReconnectMax = defaultReconnectMax
	}
	if cfg.MaxReconnectAttempts == 0 {
		cfg.MaxReconnectAttempts = defaultMaxReconnects
	}
	if cfg.InactivityTimeout == 0 {
		cfg.InactivityTimeout = defaultInactivityTimeout
	}
	if cfg.TypingSafetyTimeout == 0 {
		cfg.TypingSafetyTimeout = defaultTypingSafety
	}
	if cfg.ComposeDelay == 0 {
		cfg.ComposeDelay = defaultComposeDelay
	}
	return cfg
}

// deriveAPIBase maps the WebSocket endpoint to the gateway REST base:
// ws→http, wss→https, path replaced with /api/v1.
func deriveAPIBase(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return ""
	}
	scheme := "http"
	if u.Scheme == "wss" {
		scheme = "https"
	}
	return scheme + "://" + strings.TrimSuffix(u.Host, "/") + "/api/v1"
}

// Package store provides the client's local persistence: a durable store for
// identifiers that must survive restarts (device id, cookie id, payment
// completion flags) and a session-scoped store whose contents live only as
// long as the browsing context (session id, transcript snapshot).
package store

import "errors"

// ErrEmptyValue is returned when a caller tries to overwrite a persisted
// identifier with an empty value. Device and cookie ids, once obtained, are
// never silently cleared.
var ErrEmptyValue = errors.New("store: refusing to overwrite with empty value")

// Store is a small string key-value store.
type Store interface {
	Get(key string) (string, error)
	Set(key, value string) error
	Delete(key string) error
	Close() error
}

// Keys used by the client. Kept here so the durable and session stores share
// one vocabulary.
const (
	KeyDeviceID         = "device_id"
	KeyCookieID         = "cookie_id"
	KeySessionID        = "session_id"
	KeyPaymentCompleted = "payment_completed"
	KeyTranscript       = "transcript"
)

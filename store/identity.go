package store

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"runtime"
	"sync"

	"github.com/google/uuid"
)

// Identity is the triple of independently-scoped identifiers that correlate
// a visitor across reconnects and visits. DeviceID and CookieID are durable;
// SessionID is session-scoped and may legitimately change when the backend
// opens a new logical session.
type Identity struct {
	mu      sync.RWMutex
	durable Store
	session Store

	deviceID  string
	cookieID  string
	sessionID string
}

// LoadIdentity loads (or first-creates) the identity triple from the two
// stores. The device id is derived once from stable environment attributes
// plus a random salt and persisted indefinitely.
func LoadIdentity(durable, session Store) (*Identity, error) {
	id := &Identity{durable: durable, session: session}

	deviceID, err := durable.Get(KeyDeviceID)
	if err != nil {
		return nil, err
	}
	if deviceID == "" {
		deviceID = fingerprint()
		if err := durable.Set(KeyDeviceID, deviceID); err != nil {
			return nil, err
		}
	}
	id.deviceID = deviceID

	if id.cookieID, err = durable.Get(KeyCookieID); err != nil {
		return nil, err
	}
	if id.sessionID, err = session.Get(KeySessionID); err != nil {
		return nil, err
	}
	return id, nil
}

// Snapshot returns the current triple.
func (id *Identity) Snapshot() (deviceID, cookieID, sessionID string) {
	id.mu.RLock()
	defer id.mu.RUnlock()
	return id.deviceID, id.cookieID, id.sessionID
}

// DeviceID returns the durable device identifier.
func (id *Identity) DeviceID() string {
	id.mu.RLock()
	defer id.mu.RUnlock()
	return id.deviceID
}

// CookieID returns the durable visitor identifier, "" until assigned.
func (id *Identity) CookieID() string {
	id.mu.RLock()
	defer id.mu.RUnlock()
	return id.cookieID
}

// SessionID returns the current logical session id, "" until assigned.
func (id *Identity) SessionID() string {
	id.mu.RLock()
	defer id.mu.RUnlock()
	return id.sessionID
}

// SetCookieID records a backend-assigned cookie id. Empty values are
// rejected so an established identity is never silently lost.
func (id *Identity) SetCookieID(v string) error {
	if v == "" {
		return ErrEmptyValue
	}
	id.mu.Lock()
	defer id.mu.Unlock()
	if err := id.durable.Set(KeyCookieID, v); err != nil {
		return err
	}
	id.cookieID = v
	return nil
}

// SetSessionID records a backend-assigned session id and reports whether it
// replaced a different, previously held session.
func (id *Identity) SetSessionID(v string) (changed bool, err error) {
	if v == "" {
		return false, ErrEmptyValue
	}
	id.mu.Lock()
	defer id.mu.Unlock()
	changed = id.sessionID != "" && id.sessionID != v
	if err := id.session.Set(KeySessionID, v); err != nil {
		return false, err
	}
	id.sessionID = v
	return changed, nil
}

// fingerprint hashes stable environment attributes with a random salt into
// an effectively permanent per-profile device id.
func fingerprint() string {
	host, _ := os.Hostname()
	seed := fmt.Sprintf("%s|%s|%s|%s", runtime.GOOS, runtime.GOARCH, host, uuid.NewString())
	sum := sha256.Sum256([]byte(seed))
	return hex.EncodeToString(sum[:16])
}

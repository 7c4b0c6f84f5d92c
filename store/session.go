package store

import "sync"

// Session is the session-scoped store: it lives for the lifetime of the
// browsing context that created it and is discarded with it. The session id
// and the transcript snapshot live here; a new tab gets a fresh Session.
type Session struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewSession creates an empty session-scoped store.
func NewSession() *Session {
	return &Session{values: make(map[string]string)}
}

func (s *Session) Get(key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values[key], nil
}

// Set stores key. The session id is allowed to change (the backend is
// authoritative on whether a session is resumed or replaced), so no
// empty-value guard applies here beyond skipping no-op writes.
func (s *Session) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

func (s *Session) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}

func (s *Session) Close() error { return nil }

package nudgechat

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/oklog/ulid/v2"

	"github.com/NudgeChat/nudgechat-go-sdk/store"
)

// Role identifies the author of a conversation entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry in the conversation log. Entries are never mutated or
// removed once appended.
type Message struct {
	ID      string    `json:"id"`
	Role    Role      `json:"role"`
	Content string    `json:"content"`
	SentAt  time.Time `json:"sent_at"`
}

// Conversation is the append-only ordered log of exchanged messages.
// Ordering is insertion order: arrival order for assistant messages,
// submission order for user messages.
type Conversation struct {
	mu      sync.RWMutex
	entries []Message
	session store.Store
}

// NewConversation creates an empty log. The session store receives the
// transcript snapshot so a reload of the same browsing context can restore
// history.
func NewConversation(session store.Store) *Conversation {
	return &Conversation{session: session}
}

// Append is the only mutator. It returns the appended entry.
func (c *Conversation) Append(role Role, content string) Message {
	m := Message{
		ID:      ulid.Make().String(),
		Role:    role,
		Content: content,
		SentAt:  time.Now(),
	}
	c.mu.Lock()
	c.entries = append(c.entries, m)
	c.mu.Unlock()
	return m
}

// Messages returns a copy of the log in insertion order.
func (c *Conversation) Messages() []Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Message, len(c.entries))
	copy(out, c.entries)
	return out
}

// Len returns the number of entries.
func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Clear starts a fresh log. The old entries are discarded wholesale, never
// mutated in place.
func (c *Conversation) Clear() {
	c.mu.Lock()
	c.entries = nil
	c.mu.Unlock()
	c.session.Delete(store.KeyTranscript)
}

const snapshotCompressThreshold = 1024 // only compress transcripts > 1KB

var (
	snapEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	snapDecoder, _ = zstd.NewReader(nil)
)

// Snapshot persists the transcript to the session store, zstd-compressed
// when it is large enough to benefit.
func (c *Conversation) Snapshot() error {
	c.mu.RLock()
	data, err := json.Marshal(c.entries)
	c.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("nudgechat: snapshot transcript: %w", err)
	}

	marker := "r:"
	if len(data) > snapshotCompressThreshold {
		compressed := snapEncoder.EncodeAll(data, make([]byte, 0, len(data)))
		if len(compressed) < len(data) {
			data = compressed
			marker = "z:"
		}
	}
	return c.session.Set(store.KeyTranscript, marker+base64.StdEncoding.EncodeToString(data))
}

// Restore replaces the log with the transcript snapshot held in the session
// store. A missing snapshot leaves the log empty.
func (c *Conversation) Restore() error {
	raw, err := c.session.Get(store.KeyTranscript)
	if err != nil || raw == "" {
		return err
	}
	if len(raw) < 2 {
		return fmt.Errorf("nudgechat: malformed transcript snapshot")
	}
	marker, payload := raw[:2], raw[2:]
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return fmt.Errorf("nudgechat: decode transcript snapshot: %w", err)
	}
	if marker == "z:" {
		if data, err = snapDecoder.DecodeAll(data, nil); err != nil {
			return fmt.Errorf("nudgechat: decompress transcript snapshot: %w", err)
		}
	}
	var entries []Message
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("nudgechat: unmarshal transcript snapshot: %w", err)
	}
	c.mu.Lock()
	c.entries = entries
	c.mu.Unlock()
	return nil
}

package nudgechat

import (
	"strings"
	"testing"

	"github.com/NudgeChat/nudgechat-go-sdk/store"
)

func TestConversationAppendOnlyOrdering(t *testing.T) {
	c := NewConversation(store.NewSession())

	c.Append(RoleUser, "hello")
	c.Append(RoleAssistant, "hi, how can I help?")
	c.Append(RoleUser, "pricing?")

	msgs := c.Messages()
	if len(msgs) != 3 {
		t.Fatalf("len: got %d, want 3", len(msgs))
	}
	wantRoles := []Role{RoleUser, RoleAssistant, RoleUser}
	for i, m := range msgs {
		if m.Role != wantRoles[i] {
			t.Errorf("entry %d role: got %q, want %q", i, m.Role, wantRoles[i])
		}
		if m.ID == "" {
			t.Errorf("entry %d has no id", i)
		}
	}

	// ULIDs are lexicographically ordered with insertion.
	if !(msgs[0].ID < msgs[1].ID && msgs[1].ID < msgs[2].ID) {
		t.Errorf("ids not monotonic: %q %q %q", msgs[0].ID, msgs[1].ID, msgs[2].ID)
	}

	// Messages returns a copy; mutating it must not touch the log.
	msgs[0].Content = "tampered"
	if c.Messages()[0].Content != "hello" {
		t.Error("Messages() exposed internal state")
	}
}

func TestConversationClearStartsFresh(t *testing.T) {
	c := NewConversation(store.NewSession())
	c.Append(RoleUser, "a")
	c.Clear()
	if c.Len() != 0 {
		t.Errorf("len after clear: got %d", c.Len())
	}
	c.Append(RoleUser, "b")
	if got := c.Messages()[0].Content; got != "b" {
		t.Errorf("fresh log: got %q", got)
	}
}

func TestTranscriptSnapshotRoundTrip(t *testing.T) {
	session := store.NewSession()
	c := NewConversation(session)
	c.Append(RoleUser, "short one")
	c.Append(RoleAssistant, "short reply")

	if err := c.Snapshot(); err != nil {
		t.Fatalf("snapshot: %v", err)
	}

	restored := NewConversation(session)
	if err := restored.Restore(); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if restored.Len() != 2 {
		t.Fatalf("restored len: got %d, want 2", restored.Len())
	}
	if restored.Messages()[1].Content != "short reply" {
		t.Errorf("restored content: %q", restored.Messages()[1].Content)
	}
}

func TestTranscriptSnapshotCompressesLargeLogs(t *testing.T) {
	session := store.NewSession()
	c := NewConversation(session)
	filler := strings.Repeat("the assistant explains the registration process in detail ", 40)
	for i := 0; i < 10; i++ {
		c.Append(RoleAssistant, filler)
	}

	if err := c.Snapshot(); err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	raw, _ := session.Get(store.KeyTranscript)
	if !strings.HasPrefix(raw, "z:") {
		t.Errorf("large transcript should be compressed, marker %q", raw[:2])
	}

	restored := NewConversation(session)
	if err := restored.Restore(); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if restored.Len() != 10 {
		t.Fatalf("restored len: got %d, want 10", restored.Len())
	}
	if restored.Messages()[9].Content != filler {
		t.Error("restored content mismatch")
	}
}

func TestRestoreWithoutSnapshotLeavesLogEmpty(t *testing.T) {
	c := NewConversation(store.NewSession())
	if err := c.Restore(); err != nil {
		t.Fatalf("restore on empty store: %v", err)
	}
	if c.Len() != 0 {
		t.Errorf("len: got %d, want 0", c.Len())
	}
}

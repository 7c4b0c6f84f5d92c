package wire

import (
	"strings"
	"testing"
	"time"
)

func TestDecodeMessage(t *testing.T) {
	now := time.UnixMilli(1700000000000)
	f, err := Decode([]byte(`{"type":"message","text":"hello there"}`), now)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if f.Type != TypeMessage {
		t.Errorf("type: got %q, want %q", f.Type, TypeMessage)
	}
	if !f.ChatBearing() {
		t.Error("message with text should be chat-bearing")
	}
	if f.DedupKey != "1700000000000:hello there" {
		t.Errorf("dedup key: got %q", f.DedupKey)
	}
	if !f.ReceivedAt.Equal(now) {
		t.Errorf("received at: got %v, want %v", f.ReceivedAt, now)
	}
}

func TestDecodeKinds(t *testing.T) {
	cases := []struct {
		raw  string
		typ  string
		chat bool
	}{
		{`{"type":"message","text":"hi"}`, TypeMessage, true},
		{`{"type":"follow_up","text":"still there?"}`, TypeFollowUp, true},
		{`{"type":"payment_link","link":"https://pay.example/x"}`, TypePaymentLink, false},
		{`{"type":"session_info","session_id":"s1"}`, TypeSessionInfo, false},
		{`{"type":"set_cookie","cookie_id":"c1"}`, TypeSetCookie, false},
		{`{"type":"message"}`, TypeMessage, false}, // no text, not chat-bearing
	}
	for _, tc := range cases {
		f, err := Decode([]byte(tc.raw), time.Now())
		if err != nil {
			t.Fatalf("decode %s: %v", tc.raw, err)
		}
		if f.Type != tc.typ {
			t.Errorf("%s: type got %q, want %q", tc.raw, f.Type, tc.typ)
		}
		if f.ChatBearing() != tc.chat {
			t.Errorf("%s: chat-bearing got %v, want %v", tc.raw, f.ChatBearing(), tc.chat)
		}
	}
}

func TestDecodeRejectsUnknownAndMalformed(t *testing.T) {
	if _, err := Decode([]byte(`{"type":"presence"}`), time.Now()); err == nil {
		t.Error("expected error for unknown type")
	}
	if _, err := Decode([]byte(`{nope`), time.Now()); err == nil {
		t.Error("expected error for malformed JSON")
	}
}

func TestDedupKeyTruncates(t *testing.T) {
	long := strings.Repeat("x", 100)
	key := DedupKey(time.UnixMilli(5), long)
	want := "5:" + strings.Repeat("x", 24)
	if key != want {
		t.Errorf("got %q, want %q", key, want)
	}
}

func TestStampIdentity(t *testing.T) {
	o := NewMessage("hi")
	o.StampIdentity("dev1", "ck1", "sess1")
	if o.DeviceID != "dev1" || o.CookieID != "ck1" || o.SessionID != "sess1" {
		t.Errorf("identity not stamped: %+v", o)
	}

	// Already-set values survive restamping.
	o.StampIdentity("dev2", "ck2", "sess2")
	if o.DeviceID != "dev1" || o.SessionID != "sess1" {
		t.Errorf("restamp overwrote fields: %+v", o)
	}
}

func TestIdentityFrames(t *testing.T) {
	frames := NewIdentityFrames("dev1", "ck1", "prev-sess", "go-sdk/test")
	types := make([]string, len(frames))
	for i, f := range frames {
		types[i] = f.Type
	}
	want := []string{TypeDeviceID, TypeCookieID, TypeClientInfo, TypePreviousSessionID}
	if len(types) != len(want) {
		t.Fatalf("got %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Errorf("frame %d: got %q, want %q", i, types[i], want[i])
		}
	}

	// Unknown cookie and session are omitted on first contact.
	frames = NewIdentityFrames("dev1", "", "", "")
	if len(frames) != 1 || frames[0].Type != TypeDeviceID {
		t.Errorf("first contact should send device_id only, got %+v", frames)
	}
}

func TestPaymentStatusFrame(t *testing.T) {
	o := NewPaymentStatus(false, PaymentStatusCancelled)
	if o.PaymentCompleted == nil || *o.PaymentCompleted {
		t.Error("payment_completed should be explicit false")
	}
	if o.PaymentStatus != PaymentStatusCancelled || o.Status != PaymentStatusCancelled {
		t.Errorf("status fields: %+v", o)
	}
	if o.Timestamp == 0 {
		t.Error("timestamp not set")
	}
}

// Package wire defines the JSON frame types exchanged with the assistant
// gateway. Both directions are plain JSON text messages on the WebSocket;
// this package is the single source of truth for their shapes.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Inbound frame types.
const (
	TypeMessage     = "message"
	TypeFollowUp    = "follow_up"
	TypePaymentLink = "payment_link"
	TypeSessionInfo = "session_info"
	TypeSetCookie   = "set_cookie"
	TypeTyping      = "typing"
)

// Outbound frame types. TypeMessage is shared with the inbound set.
const (
	TypeInactive          = "inactive"
	TypePaymentStatus     = "payment_status"
	TypeDeviceID          = "device_id"
	TypeCookieID          = "cookie_id"
	TypeClientInfo        = "client_info"
	TypePreviousSessionID = "previous_session_id"
)

// Payment status values carried in a payment_status frame.
const (
	PaymentStatusCompleted = "completed"
	PaymentStatusCancelled = "cancelled"
	PaymentStatusFailed    = "failed"
)

var ErrUnknownType = errors.New("wire: unknown frame type")

// Frame is a decoded inbound frame. Kind-specific fields are populated
// according to Type; the rest stay zero.
type Frame struct {
	Type      string `json:"type"`
	Text      string `json:"text,omitempty"`
	Link      string `json:"link,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	CookieID  string `json:"cookie_id,omitempty"`

	// DedupKey correlates this frame in logs. It is synthesized at decode
	// time from arrival timestamp and a text prefix; it is not a delivery
	// guarantee and never suppresses genuinely repeated backend content.
	DedupKey string `json:"-"`

	// ReceivedAt is the local arrival time stamped at decode.
	ReceivedAt time.Time `json:"-"`
}

// ChatBearing reports whether the frame carries visible chat text.
func (f Frame) ChatBearing() bool {
	return (f.Type == TypeMessage || f.Type == TypeFollowUp) && f.Text != ""
}

const dedupPrefixLen = 24

// Decode parses one inbound frame and stamps arrival metadata.
func Decode(raw []byte, now time.Time) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return Frame{}, fmt.Errorf("wire: decode frame: %w", err)
	}
	switch f.Type {
	case TypeMessage, TypeFollowUp, TypePaymentLink, TypeSessionInfo, TypeSetCookie, TypeTyping:
	default:
		return Frame{}, fmt.Errorf("%w: %q", ErrUnknownType, f.Type)
	}
	f.ReceivedAt = now
	if f.ChatBearing() {
		f.DedupKey = DedupKey(now, f.Text)
	}
	return f, nil
}

// DedupKey builds the logging correlation tag for a chat-bearing frame:
// arrival time in unix millis plus the first few characters of the text.
func DedupKey(at time.Time, text string) string {
	prefix := text
	if len(prefix) > dedupPrefixLen {
		prefix = prefix[:dedupPrefixLen]
	}
	return fmt.Sprintf("%d:%s", at.UnixMilli(), prefix)
}

// Outbound is the superset shape of every client-to-gateway frame. Identity
// fields are stamped by the transport just before transmission so frames
// buffered while the identity was still unknown go out complete.
type Outbound struct {
	Type             string `json:"type"`
	Text             string `json:"text,omitempty"`
	Context          string `json:"context,omitempty"`
	Value            string `json:"value,omitempty"`
	PaymentCompleted *bool  `json:"payment_completed,omitempty"`
	PaymentStatus    string `json:"payment_status,omitempty"`
	Status           string `json:"status,omitempty"`
	Timestamp        int64  `json:"timestamp,omitempty"`

	SessionID string `json:"session_id,omitempty"`
	CookieID  string `json:"cookie_id,omitempty"`
	DeviceID  string `json:"device_id,omitempty"`
}

// StampIdentity fills the identity fields, leaving already-set values alone.
func (o *Outbound) StampIdentity(deviceID, cookieID, sessionID string) {
	if o.DeviceID == "" {
		o.DeviceID = deviceID
	}
	if o.CookieID == "" {
		o.CookieID = cookieID
	}
	if o.SessionID == "" {
		o.SessionID = sessionID
	}
}

// Encode serialises an outbound frame.
func (o Outbound) Encode() ([]byte, error) {
	b, err := json.Marshal(o)
	if err != nil {
		return nil, fmt.Errorf("wire: encode %s frame: %w", o.Type, err)
	}
	return b, nil
}

// NewMessage builds an outbound chat message frame.
func NewMessage(text string) Outbound {
	return Outbound{Type: TypeMessage, Text: text}
}

// NewPaymentStatus builds an outbound payment_status frame.
func NewPaymentStatus(completed bool, status string) Outbound {
	return Outbound{
		Type:             TypePaymentStatus,
		PaymentCompleted: &completed,
		PaymentStatus:    status,
		Status:           status,
		Timestamp:        time.Now().UnixMilli(),
	}
}

// NewInactive builds an outbound inactivity nudge with an optional context tag.
func NewInactive(context string) Outbound {
	return Outbound{Type: TypeInactive, Context: context}
}

// NewIdentityFrames builds the handshake side-channel frames sent on every
// new connection: device id, cookie id (when known), client info, and the
// previous session id (when one is held) to request session continuity.
func NewIdentityFrames(deviceID, cookieID, prevSessionID, clientInfo string) []Outbound {
	frames := []Outbound{{Type: TypeDeviceID, Value: deviceID, DeviceID: deviceID}}
	if cookieID != "" {
		frames = append(frames, Outbound{Type: TypeCookieID, Value: cookieID, CookieID: cookieID})
	}
	if clientInfo != "" {
		frames = append(frames, Outbound{Type: TypeClientInfo, Value: clientInfo})
	}
	if prevSessionID != "" {
		frames = append(frames, Outbound{Type: TypePreviousSessionID, Value: prevSessionID, SessionID: prevSessionID})
	}
	return frames
}

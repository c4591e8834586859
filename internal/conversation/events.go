// ABOUTME: Event frames exchanged with dashboard web clients over the live channel
// ABOUTME: {"event": name, "data": {...}} envelopes plus the payload shapes for each event

package conversation

import (
	"encoding/json"
	"time"
)

// Outbound event names
const (
	EventChatMessage    = "chat:message"
	EventChatTyping     = "chat:typing"
	EventChatError      = "chat:error"
	EventUserTyping     = "user:typing"
	EventSessionsStatus = "sessions:status"
	EventSessionSpawned = "session:spawned"
	EventSessionKilled  = "session:killed"
	EventGatewayStatus  = "gateway:status"
	EventGatewayEvent   = "gateway:event"
)

// Inbound event names
const (
	InboundChatMessage      = "chat:message"
	InboundTypingStart      = "typing:start"
	InboundTypingStop       = "typing:stop"
	InboundSessionSubscribe = "session:subscribe"
	InboundSessionUnsub     = "session:unsubscribe"
)

// Frame is the envelope for every message on the web channel.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ChatMessagePayload is a delivered chat turn.
type ChatMessagePayload struct {
	ID        string    `json:"id,omitempty"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// TypingPayload toggles the assistant typing indicator.
type TypingPayload struct {
	Typing bool `json:"typing"`
}

// ErrorPayload reports a failed chat submission to its sender.
type ErrorPayload struct {
	Message string `json:"message"`
}

// UserTypingPayload tells other clients the user is composing.
type UserTypingPayload struct {
	Typing bool `json:"typing"`
}

// GatewayStatusPayload reports the gateway connection state.
type GatewayStatusPayload struct {
	State string `json:"state"`
	Ready bool   `json:"ready"`
}

// SessionPayload names a session affected by spawn or kill.
type SessionPayload struct {
	SessionKey string          `json:"sessionKey"`
	Result     json.RawMessage `json:"result,omitempty"`
}

type submitPayload struct {
	Message string `json:"message"`
}

// Encode builds the wire bytes for an outbound event.
func Encode(event string, data any) ([]byte, error) {
	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		raw = b
	}
	return json.Marshal(Frame{Event: event, Data: raw})
}

// sessionKeyFrom accepts either a bare string or {"sessionKey": "..."}.
func sessionKeyFrom(data json.RawMessage) string {
	var key string
	if err := json.Unmarshal(data, &key); err == nil {
		return key
	}
	var obj struct {
		SessionKey string `json:"sessionKey"`
	}
	if err := json.Unmarshal(data, &obj); err == nil {
		return obj.SessionKey
	}
	return ""
}

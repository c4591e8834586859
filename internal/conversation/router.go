// ABOUTME: Message Router bridging the dashboard chat UI to the agent gateway
// ABOUTME: Persists both sides of each exchange and keeps every client's typing indicator consistent

package conversation

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/2389/coven-dashboard/internal/gateway"
	"github.com/2389/coven-dashboard/internal/store"
)

// MessageSender is what the router needs from the gateway client.
type MessageSender interface {
	SendMessage(ctx context.Context, text string) (string, error)
	URL() string
}

// RouterStore is what the router persists to.
type RouterStore interface {
	SaveChatMessage(ctx context.Context, msg *store.ChatMessage) error
	LogActivity(ctx context.Context, activityType, description, relatedID string) error
}

// Publisher delivers events to web clients.
type Publisher interface {
	Broadcast(event string, data any)
	BroadcastExcept(excludeID, event string, data any)
	SendTo(clientID, event string, data any) bool
	SubscribeSession(clientID, sessionKey string)
	UnsubscribeSession(clientID, sessionKey string)
}

// Error messages sent to the submitting client
const (
	ErrMsgEmpty       = "Empty message"
	ErrMsgSaveFailed  = "Failed to send message"
	ErrMsgBadRequest  = "Malformed message"
	activityChatLabel = "Chat with assistant"
)

// Router handles frames from web clients.
type Router struct {
	sender     MessageSender
	store      RouterStore
	pub        Publisher
	sessionKey string
	logger     *slog.Logger
	now        func() time.Time
}

// NewRouter creates a router for the given conversation session.
func NewRouter(sender MessageSender, st RouterStore, pub Publisher, sessionKey string, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	if sessionKey == "" {
		sessionKey = store.DefaultSessionKey
	}
	return &Router{
		sender:     sender,
		store:      st,
		pub:        pub,
		sessionKey: sessionKey,
		logger:     logger.With("component", "router"),
		now:        time.Now,
	}
}

// HandleFrame dispatches one inbound frame from clientID.
func (r *Router) HandleFrame(ctx context.Context, clientID string, raw []byte) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		r.logger.Debug("ignoring malformed client frame", "client_id", clientID, "error", err)
		r.pub.SendTo(clientID, EventChatError, ErrorPayload{Message: ErrMsgBadRequest})
		return
	}

	switch f.Event {
	case InboundChatMessage:
		var p submitPayload
		if len(f.Data) > 0 {
			if err := json.Unmarshal(f.Data, &p); err != nil {
				_ = json.Unmarshal(f.Data, &p.Message)
			}
		}
		r.HandleSubmit(ctx, clientID, p.Message)
	case InboundTypingStart:
		r.pub.BroadcastExcept(clientID, EventUserTyping, UserTypingPayload{Typing: true})
	case InboundTypingStop:
		r.pub.BroadcastExcept(clientID, EventUserTyping, UserTypingPayload{Typing: false})
	case InboundSessionSubscribe:
		r.pub.SubscribeSession(clientID, sessionKeyFrom(f.Data))
	case InboundSessionUnsub:
		r.pub.UnsubscribeSession(clientID, sessionKeyFrom(f.Data))
	default:
		r.logger.Debug("ignoring unknown client event", "client_id", clientID, "event", f.Event)
	}
}

// HandleSubmit routes one chat message from clientID through the gateway.
// Typing-stopped is always broadcast before the reply or the error, and
// errors go only to the submitting client.
func (r *Router) HandleSubmit(ctx context.Context, clientID, text string) {
	if strings.TrimSpace(text) == "" {
		r.pub.SendTo(clientID, EventChatError, ErrorPayload{Message: ErrMsgEmpty})
		return
	}

	userMsg := &store.ChatMessage{
		SessionKey: r.sessionKey,
		Role:       store.RoleUser,
		Content:    text,
		Timestamp:  r.now(),
	}
	if err := r.store.SaveChatMessage(ctx, userMsg); err != nil {
		r.logger.Error("failed to save user message", "error", err)
		r.fail(clientID, ErrMsgSaveFailed)
		return
	}

	r.pub.Broadcast(EventChatTyping, TypingPayload{Typing: true})

	r.logger.Info("sending message to gateway", "client_id", clientID, "preview", preview(text, 50))
	reply, err := r.sender.SendMessage(ctx, text)
	if err != nil {
		r.logger.Warn("chat message failed", "client_id", clientID, "error", err)
		r.fail(clientID, gateway.UserMessage(err, r.sender.URL()))
		return
	}

	r.pub.Broadcast(EventChatTyping, TypingPayload{Typing: false})

	assistantMsg := &store.ChatMessage{
		SessionKey: r.sessionKey,
		Role:       store.RoleAssistant,
		Content:    reply,
		Timestamp:  r.now(),
	}
	if err := r.store.SaveChatMessage(ctx, assistantMsg); err != nil {
		r.logger.Error("failed to save assistant reply", "error", err)
	}

	r.pub.Broadcast(EventChatMessage, ChatMessagePayload{
		ID:        assistantMsg.ID,
		Role:      store.RoleAssistant,
		Content:   reply,
		Timestamp: assistantMsg.Timestamp.UTC(),
	})

	if err := r.store.LogActivity(ctx, store.ActivityChatMessage, activityChatLabel, ""); err != nil {
		r.logger.Warn("failed to record chat activity", "error", err)
	}
}

func (r *Router) fail(clientID, message string) {
	r.pub.Broadcast(EventChatTyping, TypingPayload{Typing: false})
	r.pub.SendTo(clientID, EventChatError, ErrorPayload{Message: message})
}

func preview(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

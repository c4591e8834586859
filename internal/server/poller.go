// ABOUTME: Background loops relaying gateway state to web clients
// ABOUTME: Periodic session status broadcast and forwarding of unsolicited gateway events

package server

import (
	"context"
	"encoding/json"
	"time"

	"github.com/2389/coven-dashboard/internal/conversation"
	"github.com/2389/coven-dashboard/internal/gateway"
)

// pollSessions broadcasts sessions:status every interval until ctx ends.
func (s *Server) pollSessions(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	logger := s.logger.With("component", "poller")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.hub.Count() == 0 {
				continue
			}
			sessions := s.gateway.ListSessions(ctx)
			s.hub.Broadcast(conversation.EventSessionsStatus, sessions)
			logger.Debug("broadcast session status", "sessions", len(sessions))
		}
	}
}

// forwardGatewayEvents relays gateway pushes. Events naming a session go to
// clients subscribed to it; the rest go to everyone.
func (s *Server) forwardGatewayEvents(ctx context.Context) {
	for ev := range s.gateway.Subscribe(ctx) {
		if key := eventSessionKey(ev); key != "" {
			s.hub.PublishSession(key, conversation.EventGatewayEvent, ev)
			continue
		}
		s.hub.Broadcast(conversation.EventGatewayEvent, ev)
	}
}

func eventSessionKey(ev gateway.Event) string {
	var v struct {
		SessionKey string `json:"sessionKey"`
		Payload    struct {
			SessionKey string `json:"sessionKey"`
		} `json:"payload"`
	}
	if err := json.Unmarshal(ev.Raw, &v); err != nil {
		return ""
	}
	if v.Payload.SessionKey != "" {
		return v.Payload.SessionKey
	}
	return v.SessionKey
}

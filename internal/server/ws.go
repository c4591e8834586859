// ABOUTME: WebSocket endpoint for dashboard web clients
// ABOUTME: Token-authenticated upgrade, hub registration, and read/write pumps with ping/pong keepalive

package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/2389/coven-dashboard/internal/auth"
	"github.com/2389/coven-dashboard/internal/conversation"
	"github.com/2389/coven-dashboard/internal/gateway"
)

const (
	wsWriteWait      = 10 * time.Second
	wsPongWait       = 60 * time.Second
	wsPingPeriod     = (wsPongWait * 9) / 10
	wsMaxMessageSize = 64 * 1024
)

// handleWebSocket upgrades GET /ws?token=... and serves the client until it
// disconnects or the hub closes.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	authCtx, status, errMsg := auth.Authenticate(r, s.auth.Verifier())
	if authCtx == nil {
		s.sendJSONError(w, status, errMsg)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied.
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	clientID := uuid.New().String()
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	send := s.hub.Register(ctx, clientID)
	s.logger.Info("web client connected", "client_id", clientID, "username", authCtx.Username)

	state := s.gateway.State()
	s.hub.SendTo(clientID, conversation.EventGatewayStatus, conversation.GatewayStatusPayload{
		State: state.String(),
		Ready: state == gateway.StateReady,
	})

	go s.writePump(conn, send)
	s.readPump(ctx, conn, clientID)

	s.logger.Info("web client disconnected", "client_id", clientID)
}

// readPump reads frames until the connection fails.
func (s *Server) readPump(ctx context.Context, conn *websocket.Conn, clientID string) {
	conn.SetReadLimit(wsMaxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("web client read error", "client_id", clientID, "error", err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		s.dispatch(ctx, clientID, msg)
	}
}

// dispatch hands a frame to the router. Chat submissions wait on the
// gateway, so they run on their own goroutine and outlive the client: other
// clients still receive the reply if the sender leaves. Shutdown waits for them.
func (s *Server) dispatch(ctx context.Context, clientID string, msg []byte) {
	var f conversation.Frame
	if err := json.Unmarshal(msg, &f); err == nil && f.Event == conversation.InboundChatMessage {
		s.chatMu.Lock()
		if s.chatClosing {
			s.chatMu.Unlock()
			s.logger.Debug("dropping chat submission during shutdown", "client_id", clientID)
			return
		}
		s.chatWG.Add(1)
		s.chatMu.Unlock()

		go func() {
			defer s.chatWG.Done()
			s.router.HandleFrame(context.WithoutCancel(ctx), clientID, msg)
		}()
		return
	}
	s.router.HandleFrame(ctx, clientID, msg)
}

// writePump is the only writer on conn. It exits when send is closed or a
// write fails, and closes the connection either way.
func (s *Server) writePump(conn *websocket.Conn, send <-chan []byte) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case msg, ok := <-send:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server closing"))
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ABOUTME: End-to-end tests for the /ws live channel
// ABOUTME: Real WebSocket connections against an httptest server with a fake gateway

package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-dashboard/internal/conversation"
	"github.com/2389/coven-dashboard/internal/store"
)

func startWSServer(t *testing.T, env *testEnv) string {
	t.Helper()
	ts := httptest.NewServer(env.srv.Handler())
	t.Cleanup(ts.Close)
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func dialWS(t *testing.T, wsURL, token string) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL+"?token="+token, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) conversation.Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var f conversation.Frame
	require.NoError(t, json.Unmarshal(msg, &f))
	return f
}

func writeFrame(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(conversation.Frame{Event: event, Data: raw}))
}

func TestWebSocket_RejectsMissingToken(t *testing.T) {
	env := newTestEnv(t)
	wsURL := startWSServer(t, env)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("expected dial to fail without a token")
	}
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(wsURL+"?token=forged", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWebSocket_InitialGatewayStatus(t *testing.T) {
	env := newTestEnv(t)
	conn := dialWS(t, startWSServer(t, env), env.token)

	f := readFrame(t, conn)
	assert.Equal(t, conversation.EventGatewayStatus, f.Event)
	assert.JSONEq(t, `{"state":"ready","ready":true}`, string(f.Data))

	require.Eventually(t, func() bool { return env.srv.hub.Count() == 1 }, time.Second, 10*time.Millisecond)
}

func TestWebSocket_ChatRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	env.gw.reply = "hi"
	wsURL := startWSServer(t, env)

	sender := dialWS(t, wsURL, env.token)
	other := dialWS(t, wsURL, env.token)
	readFrame(t, sender)
	readFrame(t, other)

	writeFrame(t, sender, conversation.InboundChatMessage, map[string]string{"message": "hello"})

	for _, conn := range []*websocket.Conn{sender, other} {
		f := readFrame(t, conn)
		assert.Equal(t, conversation.EventChatTyping, f.Event)
		assert.JSONEq(t, `{"typing":true}`, string(f.Data))

		f = readFrame(t, conn)
		assert.Equal(t, conversation.EventChatTyping, f.Event)
		assert.JSONEq(t, `{"typing":false}`, string(f.Data))

		f = readFrame(t, conn)
		require.Equal(t, conversation.EventChatMessage, f.Event)
		var msg conversation.ChatMessagePayload
		require.NoError(t, json.Unmarshal(f.Data, &msg))
		assert.Equal(t, store.RoleAssistant, msg.Role)
		assert.Equal(t, "hi", msg.Content)
	}

	msgs := env.store.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "hello", msgs[0].Content)
	assert.Equal(t, "hi", msgs[1].Content)
}

func TestWebSocket_EmptyMessageErrorsSenderOnly(t *testing.T) {
	env := newTestEnv(t)
	wsURL := startWSServer(t, env)

	sender := dialWS(t, wsURL, env.token)
	other := dialWS(t, wsURL, env.token)
	readFrame(t, sender)
	readFrame(t, other)

	writeFrame(t, sender, conversation.InboundChatMessage, map[string]string{"message": "   "})

	f := readFrame(t, sender)
	assert.Equal(t, conversation.EventChatError, f.Event)

	// other should see nothing; a typing relay proves the channel is live
	writeFrame(t, sender, conversation.InboundTypingStart, nil)
	f = readFrame(t, other)
	assert.Equal(t, conversation.EventUserTyping, f.Event)
	assert.JSONEq(t, `{"typing":true}`, string(f.Data))

	assert.Empty(t, env.gw.messages)
}

func TestWebSocket_DisconnectUnregisters(t *testing.T) {
	env := newTestEnv(t)
	conn := dialWS(t, startWSServer(t, env), env.token)
	readFrame(t, conn)
	require.Eventually(t, func() bool { return env.srv.hub.Count() == 1 }, time.Second, 10*time.Millisecond)

	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = conn.Close()

	require.Eventually(t, func() bool { return env.srv.hub.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
}

// ABOUTME: Tests for the dashboard HTTP API handlers
// ABOUTME: Auth endpoints, token enforcement, gateway error mapping, chat, calendar and status

package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-dashboard/internal/auth"
	"github.com/2389/coven-dashboard/internal/briefing"
	"github.com/2389/coven-dashboard/internal/conversation"
	"github.com/2389/coven-dashboard/internal/gateway"
	"github.com/2389/coven-dashboard/internal/store"
)

func configureAccount(t *testing.T, st *store.MockStore, password string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, st.SetSetting(ctx, store.SettingUsername, "richard"))
	require.NoError(t, auth.SetPassword(ctx, st, password))
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	rec := env.doWithToken(t, http.MethodGet, "/health", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeBody[HealthResponse](t, rec)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "ready", resp.Gateway)
	assert.False(t, resp.Timestamp.IsZero())

	rec = env.doWithToken(t, http.MethodGet, "/api/health", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealth_DatabaseDown(t *testing.T) {
	env := newTestEnvWithStore(t, &pingStore{MockStore: store.NewMockStore(), pingErr: errBoom})

	rec := env.doWithToken(t, http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "degraded", decodeBody[HealthResponse](t, rec).Status)
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)
	configureAccount(t, env.store, "correct horse")

	tests := []struct {
		name       string
		body       any
		wantStatus int
	}{
		{"success", LoginRequest{Username: "richard", Password: "correct horse"}, http.StatusOK},
		{"username case-insensitive", LoginRequest{Username: "Richard", Password: "correct horse"}, http.StatusOK},
		{"wrong password", LoginRequest{Username: "richard", Password: "battery staple"}, http.StatusUnauthorized},
		{"wrong user", LoginRequest{Username: "mallory", Password: "correct horse"}, http.StatusUnauthorized},
		{"missing password", LoginRequest{Username: "richard"}, http.StatusBadRequest},
		{"invalid json", "{not json", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.doWithToken(t, http.MethodPost, "/api/auth/login", tt.body, "")
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantStatus != http.StatusOK {
				return
			}

			result := decodeBody[auth.LoginResult](t, rec)
			assert.Equal(t, "richard", result.Username)
			username, err := env.srv.auth.Verifier().Verify(result.Token)
			require.NoError(t, err)
			assert.Equal(t, "richard", username)
		})
	}
}

func TestLogin_NotConfigured(t *testing.T) {
	env := newTestEnv(t)

	rec := env.doWithToken(t, http.MethodPost, "/api/auth/login", LoginRequest{Username: "richard", Password: "whatever1"}, "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "init")
}

func TestVerify(t *testing.T) {
	env := newTestEnv(t)

	rec := env.doWithToken(t, http.MethodPost, "/api/auth/verify", VerifyRequest{Token: env.token}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, VerifyResponse{Valid: true, Username: "richard"}, decodeBody[VerifyResponse](t, rec))

	rec = env.doWithToken(t, http.MethodPost, "/api/auth/verify", VerifyRequest{Token: "garbage"}, "")
	assert.Equal(t, VerifyResponse{Valid: false}, decodeBody[VerifyResponse](t, rec))

	rec = env.doWithToken(t, http.MethodPost, "/api/auth/verify", VerifyRequest{}, "")
	assert.False(t, decodeBody[VerifyResponse](t, rec).Valid)
}

func TestChangePassword(t *testing.T) {
	env := newTestEnv(t)
	configureAccount(t, env.store, "correct horse")

	rec := env.do(t, http.MethodPost, "/api/auth/change-password", ChangePasswordRequest{CurrentPassword: "nope", NewPassword: "battery staple"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/auth/change-password", ChangePasswordRequest{CurrentPassword: "correct horse", NewPassword: "short"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), fmt.Sprintf("%d characters", auth.MinPasswordLength))

	rec = env.do(t, http.MethodPost, "/api/auth/change-password", ChangePasswordRequest{CurrentPassword: "correct horse", NewPassword: "battery staple"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.doWithToken(t, http.MethodPost, "/api/auth/login", LoginRequest{Username: "richard", Password: "battery staple"}, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	env := newTestEnv(t)

	routes := []struct{ method, path string }{
		{http.MethodGet, "/api/briefing"},
		{http.MethodGet, "/api/sessions"},
		{http.MethodPost, "/api/sessions/spawn"},
		{http.MethodDelete, "/api/sessions/worker-1"},
		{http.MethodGet, "/api/chat/history"},
		{http.MethodDelete, "/api/chat/clear"},
		{http.MethodGet, "/api/activity"},
		{http.MethodGet, "/api/calendar/today"},
		{http.MethodGet, "/api/system/status"},
		{http.MethodPost, "/api/auth/change-password"},
	}

	for _, rt := range routes {
		rec := env.doWithToken(t, rt.method, rt.path, nil, "")
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s %s without token: status %d, want 401", rt.method, rt.path, rec.Code)
		}
		rec = env.doWithToken(t, rt.method, rt.path, nil, "not-a-jwt")
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s %s with bad token: status %d, want 401", rt.method, rt.path, rec.Code)
		}
	}
}

func TestBriefing(t *testing.T) {
	env := newTestEnv(t)
	env.gw.reply = "Good morning, Ada. Nothing scheduled."

	rec := env.do(t, http.MethodGet, "/api/briefing", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeBody[BriefingResponse](t, rec)
	assert.True(t, resp.Success)
	assert.Equal(t, "Good morning, Ada. Nothing scheduled.", resp.Briefing)
	assert.Equal(t, briefing.SourceAI, resp.Source)
	assert.NotZero(t, resp.GeneratedAt)

	// cached: no second gateway call
	env.do(t, http.MethodGet, "/api/briefing", nil)
	assert.Len(t, env.gw.messages, 1)

	rec = env.do(t, http.MethodPost, "/api/briefing/refresh", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, env.gw.messages, 2)
}

func TestBriefing_TemplateWhenGatewayDown(t *testing.T) {
	env := newTestEnv(t)
	env.gw.err = gateway.ErrNotConnected

	rec := env.do(t, http.MethodGet, "/api/briefing", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeBody[BriefingResponse](t, rec)
	assert.Equal(t, briefing.SourceTemplate, resp.Source)
	assert.Contains(t, resp.Briefing, "Ada")
}

func TestSessions_List(t *testing.T) {
	env := newTestEnv(t)
	env.gw.sessions = []gateway.Session{{Key: "main", Name: "Main"}, {Key: "worker-1", Status: "running"}}

	rec := env.do(t, http.MethodGet, "/api/sessions", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	sessions := decodeBody[[]gateway.Session](t, rec)
	require.Len(t, sessions, 2)
	assert.Equal(t, "worker-1", sessions[1].Key)
}

func TestSessions_Spawn(t *testing.T) {
	env := newTestEnv(t)
	env.gw.result = json.RawMessage(`{"sessionKey":"worker-7","status":"starting"}`)
	hub := env.observe(t)

	rec := env.do(t, http.MethodPost, "/api/sessions/spawn", SpawnRequest{Name: "research", Prompt: "find things"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"sessionKey":"worker-7","status":"starting"}`, rec.Body.String())

	require.Len(t, env.gw.spawned, 1)
	assert.Equal(t, gateway.SpawnRequest{Name: "research", Prompt: "find things"}, env.gw.spawned[0])

	f := nextFrame(t, hub)
	assert.Equal(t, conversation.EventSessionSpawned, f.Event)
	var payload conversation.SessionPayload
	require.NoError(t, json.Unmarshal(f.Data, &payload))
	assert.Equal(t, "worker-7", payload.SessionKey)

	activity, err := env.store.ListActivity(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, activity, 1)
	assert.Equal(t, store.ActivitySessionSpawned, activity[0].Type)
	assert.Equal(t, "Spawned: research", activity[0].Description)
}

func TestSessions_SpawnRequiresName(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/sessions/spawn", SpawnRequest{Name: "  "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, env.gw.spawned)
}

func TestSessions_Kill(t *testing.T) {
	env := newTestEnv(t)
	hub := env.observe(t)

	rec := env.do(t, http.MethodDelete, "/api/sessions/worker-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"worker-1"}, env.gw.killed)

	f := nextFrame(t, hub)
	assert.Equal(t, conversation.EventSessionKilled, f.Event)
	assert.JSONEq(t, `{"sessionKey":"worker-1","result":{"ok":true}}`, string(f.Data))

	activity, _ := env.store.ListActivity(context.Background(), 10)
	require.Len(t, activity, 1)
	assert.Equal(t, store.ActivitySessionKilled, activity[0].Type)
	assert.Equal(t, "worker-1", activity[0].RelatedID)
}

func TestSessions_GatewayErrorStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not connected", gateway.ErrNotConnected, http.StatusServiceUnavailable},
		{"closed mid-call", fmt.Errorf("sessions.kill: %w", gateway.ErrConnectionClosed), http.StatusServiceUnavailable},
		{"timeout", fmt.Errorf("sessions.kill after 10s: %w", gateway.ErrTimeout), http.StatusGatewayTimeout},
		{"gateway rejected", &gateway.GatewayError{Method: "sessions.kill", Message: "no such session"}, http.StatusBadGateway},
		{"other", errBoom, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.gw.err = tt.err

			rec := env.do(t, http.MethodDelete, "/api/sessions/worker-1", nil)
			assert.Equal(t, tt.want, rec.Code)

			body := decodeBody[map[string]string](t, rec)
			assert.Equal(t, "Failed to kill session", body["error"])
			assert.NotEmpty(t, body["details"])

			activity, _ := env.store.ListActivity(context.Background(), 10)
			assert.Empty(t, activity)
		})
	}
}

func TestSessions_Details(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/sessions/worker-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"key":"worker-1"}`, rec.Body.String())
}

func TestSessions_Send(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/sessions/worker-1/send", SendToSessionRequest{Message: ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, env.gw.sent)

	rec = env.do(t, http.MethodPost, "/api/sessions/worker-1/send", SendToSessionRequest{Message: "status?"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/sessions/worker-1/send", SendToSessionRequest{Message: "status?", Timeout: 5})
	require.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, env.gw.sent, 2)
	assert.Equal(t, sentToSession{key: "worker-1", message: "status?", timeout: defaultSendTimeout}, env.gw.sent[0])
	assert.Equal(t, 5*time.Second, env.gw.sent[1].timeout)
}

func TestSessions_Logs(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/sessions/worker-1/logs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, gateway.DefaultLogLimit, env.gw.logsLimit)
	assert.JSONEq(t, `[{"line":"started"}]`, rec.Body.String())

	env.do(t, http.MethodGet, "/api/sessions/worker-1/logs?limit=5", nil)
	assert.Equal(t, 5, env.gw.logsLimit)

	env.do(t, http.MethodGet, "/api/sessions/worker-1/logs?limit=999999", nil)
	assert.Equal(t, maxListLimit, env.gw.logsLimit)
}

func TestMemorySearch(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/memory/search", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/memory/search?q=dentist", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"dentist"}, env.gw.queries)
	assert.JSONEq(t, `{"results":[{"text":"remembered"}]}`, rec.Body.String())
}

func seedChat(t *testing.T, st *store.MockStore) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	msgs := []*store.ChatMessage{
		{SessionKey: store.DefaultSessionKey, Role: store.RoleUser, Content: "remind me about the dentist", Timestamp: base},
		{SessionKey: store.DefaultSessionKey, Role: store.RoleAssistant, Content: "Dentist is Thursday at 3pm.", Timestamp: base.Add(time.Minute)},
		{SessionKey: "worker-1", Role: store.RoleUser, Content: "unrelated", Timestamp: base.Add(2 * time.Minute)},
	}
	for _, m := range msgs {
		require.NoError(t, st.SaveChatMessage(ctx, m))
	}
}

func TestChat_HistoryAndSearch(t *testing.T) {
	env := newTestEnv(t)
	seedChat(t, env.store)

	rec := env.do(t, http.MethodGet, "/api/chat/history", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	history := decodeBody[[]store.ChatMessage](t, rec)
	require.Len(t, history, 2)
	assert.Equal(t, "remind me about the dentist", history[0].Content)

	rec = env.do(t, http.MethodGet, "/api/chat/history?limit=1", nil)
	assert.Len(t, decodeBody[[]store.ChatMessage](t, rec), 1)

	rec = env.do(t, http.MethodGet, "/api/chat/search?q=DENTIST", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]store.ChatMessage](t, rec), 2)

	rec = env.do(t, http.MethodGet, "/api/chat/search?q=", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChat_HistoryStoreFailure(t *testing.T) {
	env := newTestEnv(t)
	env.store.Fail = func(op string) error {
		if op == "GetChatHistory" {
			return errBoom
		}
		return nil
	}

	rec := env.do(t, http.MethodGet, "/api/chat/history", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "boom")
}

func TestChat_Clear(t *testing.T) {
	env := newTestEnv(t)
	seedChat(t, env.store)

	rec := env.do(t, http.MethodDelete, "/api/chat/clear", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"deleted":2}`, rec.Body.String())

	remaining := env.store.Messages()
	require.Len(t, remaining, 1)
	assert.Equal(t, "worker-1", remaining[0].SessionKey)

	activity, _ := env.store.ListActivity(context.Background(), 10)
	require.Len(t, activity, 1)
	assert.Equal(t, store.ActivityChatCleared, activity[0].Type)
}

func TestChat_Export(t *testing.T) {
	env := newTestEnv(t)
	seedChat(t, env.store)

	rec := env.do(t, http.MethodGet, "/api/chat/export", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/markdown; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "chat-export.md")
	assert.True(t, strings.HasPrefix(rec.Body.String(), "# Coven Chat Export"))
	assert.Contains(t, rec.Body.String(), "Dentist is Thursday at 3pm.")
	assert.NotContains(t, rec.Body.String(), "unrelated")

	rec = env.do(t, http.MethodGet, "/api/chat/export?format=html", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "chat-export.html")
	assert.Contains(t, rec.Body.String(), "<h1>Coven Chat Export</h1>")
}

func TestActivity(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, env.store.LogActivity(ctx, store.ActivityChatMessage, fmt.Sprintf("message %d", i), ""))
	}

	rec := env.do(t, http.MethodGet, "/api/activity?limit=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]store.Activity](t, rec), 2)
}

func TestCalendar_CreateAndToday(t *testing.T) {
	env := newTestEnv(t)

	now := time.Now()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).Add(23*time.Hour + 30*time.Minute)

	rec := env.do(t, http.MethodPost, "/api/calendar/events", CalendarEventRequest{
		Summary:  "Late call",
		StartsAt: start,
		EndsAt:   start.Add(20 * time.Minute),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody[store.CalendarEvent](t, rec)
	assert.NotEmpty(t, created.ID)

	rec = env.do(t, http.MethodPost, "/api/calendar/events", CalendarEventRequest{
		Summary:  "Tomorrow",
		StartsAt: start.Add(24 * time.Hour),
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/calendar/today", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	today := decodeBody[CalendarTodayResponse](t, rec)
	assert.Equal(t, 1, today.Count)
	require.Len(t, today.Events, 1)
	assert.Equal(t, "Late call", today.Events[0].Summary)
}

func TestCalendar_CreateValidation(t *testing.T) {
	env := newTestEnv(t)
	start := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		body any
		want string
	}{
		{"missing summary", CalendarEventRequest{StartsAt: start}, "summary"},
		{"missing start", CalendarEventRequest{Summary: "x"}, "starts_at"},
		{"end before start", CalendarEventRequest{Summary: "x", StartsAt: start, EndsAt: start.Add(-time.Hour)}, "ends_at"},
		{"invalid json", "[", "invalid JSON"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/calendar/events", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.want)
		})
	}
}

func TestCalendar_CreateInvalidatesBriefing(t *testing.T) {
	env := newTestEnv(t)

	env.do(t, http.MethodGet, "/api/briefing", nil)
	env.do(t, http.MethodGet, "/api/briefing", nil)
	require.Len(t, env.gw.messages, 1)

	rec := env.do(t, http.MethodPost, "/api/calendar/events", CalendarEventRequest{Summary: "Standup", StartsAt: time.Now().Add(time.Hour)})
	require.Equal(t, http.StatusCreated, rec.Code)

	env.do(t, http.MethodGet, "/api/briefing", nil)
	assert.Len(t, env.gw.messages, 2)
}

func TestSystemStatus(t *testing.T) {
	env := newTestEnv(t)
	env.gw.state = gateway.StateConnecting
	env.observe(t)

	rec := env.do(t, http.MethodGet, "/api/system/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeBody[SystemStatusResponse](t, rec)
	assert.Equal(t, "online", resp.Dashboard)
	assert.Equal(t, "connected", resp.Database)
	assert.Equal(t, GatewayStatus{URL: "ws://gateway.test:18789", State: "connecting", Ready: false}, resp.Gateway)
	assert.Equal(t, 1, resp.Clients)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.observe(t)
	env.do(t, http.MethodGet, "/api/briefing", nil)

	rec := env.doWithToken(t, http.MethodGet, "/metrics", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "coven_dashboard_hub_clients 1")
	assert.Contains(t, body, `coven_dashboard_briefing_generations_total{source="ai"} 1`)
}

func TestQueryLimit(t *testing.T) {
	tests := []struct {
		query string
		want  int
	}{
		{"", 20},
		{"limit=abc", 20},
		{"limit=-3", 20},
		{"limit=7", 7},
		{"limit=5000", maxListLimit},
	}
	for _, tt := range tests {
		r, _ := http.NewRequest(http.MethodGet, "/x?"+tt.query, nil)
		if got := queryLimit(r, 20); got != tt.want {
			t.Errorf("queryLimit(%q) = %d, want %d", tt.query, got, tt.want)
		}
	}
}

func TestSessionKeyOf(t *testing.T) {
	assert.Equal(t, "a", sessionKeyOf(json.RawMessage(`{"sessionKey":"a","key":"b"}`)))
	assert.Equal(t, "b", sessionKeyOf(json.RawMessage(`{"key":"b"}`)))
	assert.Equal(t, "", sessionKeyOf(json.RawMessage(`"plain"`)))
	assert.Equal(t, "", sessionKeyOf(nil))
}

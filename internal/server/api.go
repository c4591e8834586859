// ABOUTME: HTTP API handlers for the dashboard: auth, briefing, sessions, chat, activity, calendar
// ABOUTME: JSON in and out; gateway failures map to 502/503/504 with a details field

package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/2389/coven-dashboard/internal/auth"
	"github.com/2389/coven-dashboard/internal/briefing"
	"github.com/2389/coven-dashboard/internal/conversation"
	"github.com/2389/coven-dashboard/internal/gateway"
	"github.com/2389/coven-dashboard/internal/store"
)

// Limits applied to list endpoints.
const (
	defaultActivityLimit = 20
	maxListLimit         = 1000
	exportLimit          = 1000
	defaultSendTimeout   = 60 * time.Second
)

// LoginRequest is the JSON request body for POST /api/auth/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// VerifyRequest is the JSON request body for POST /api/auth/verify.
type VerifyRequest struct {
	Token string `json:"token"`
}

// VerifyResponse is the JSON response for POST /api/auth/verify.
type VerifyResponse struct {
	Valid    bool   `json:"valid"`
	Username string `json:"username,omitempty"`
}

// ChangePasswordRequest is the JSON request body for POST /api/auth/change-password.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// BriefingResponse is the JSON response for the briefing endpoints.
type BriefingResponse struct {
	Success     bool   `json:"success"`
	Briefing    string `json:"briefing"`
	GeneratedAt int64  `json:"generatedAt"` // unix milliseconds
	Source      string `json:"source"`
}

// SpawnRequest is the JSON request body for POST /api/sessions/spawn.
type SpawnRequest struct {
	Name   string `json:"name"`
	Type   string `json:"type,omitempty"`
	Prompt string `json:"prompt,omitempty"`
}

// SendToSessionRequest is the JSON request body for POST /api/sessions/{key}/send.
// Timeout is in seconds.
type SendToSessionRequest struct {
	Message string `json:"message"`
	Timeout int    `json:"timeout,omitempty"`
}

// CalendarEventRequest is the JSON request body for POST /api/calendar/events.
type CalendarEventRequest struct {
	Summary  string    `json:"summary"`
	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at"`
	Location string    `json:"location,omitempty"`
}

// CalendarTodayResponse is the JSON response for GET /api/calendar/today.
type CalendarTodayResponse struct {
	Count  int                    `json:"count"`
	Events []*store.CalendarEvent `json:"events"`
}

// GatewayStatus describes the gateway connection in status responses.
type GatewayStatus struct {
	URL     string `json:"url"`
	State   string `json:"state"`
	Ready   bool   `json:"ready"`
	Pending int    `json:"pending"`
}

// SystemStatusResponse is the JSON response for GET /api/system/status.
type SystemStatusResponse struct {
	Dashboard string        `json:"dashboard"`
	Database  string        `json:"database"`
	Gateway   GatewayStatus `json:"gateway"`
	Clients   int           `json:"clients"`
	Uptime    float64       `json:"uptime"`
	Timestamp time.Time     `json:"timestamp"`
}

// HealthResponse is the JSON response for GET /health.
type HealthResponse struct {
	Status    string    `json:"status"`
	Gateway   string    `json:"gateway"`
	Uptime    float64   `json:"uptime"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	// Public
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	mux.HandleFunc("POST /api/auth/verify", s.handleVerify)

	// The socket authenticates itself from the token query parameter.
	mux.HandleFunc("GET /ws", s.handleWebSocket)

	requireAuth := auth.HTTPAuthMiddleware(s.auth.Verifier())
	protected := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, requireAuth(h))
	}

	protected("POST /api/auth/change-password", s.handleChangePassword)

	protected("GET /api/briefing", s.handleBriefing)
	protected("POST /api/briefing/refresh", s.handleBriefingRefresh)

	protected("GET /api/sessions", s.handleListSessions)
	protected("POST /api/sessions/spawn", s.handleSpawnSession)
	protected("GET /api/sessions/{key}", s.handleGetSession)
	protected("DELETE /api/sessions/{key}", s.handleKillSession)
	protected("POST /api/sessions/{key}/send", s.handleSendToSession)
	protected("GET /api/sessions/{key}/logs", s.handleSessionLogs)
	protected("GET /api/memory/search", s.handleMemorySearch)

	protected("GET /api/chat/history", s.handleChatHistory)
	protected("GET /api/chat/search", s.handleChatSearch)
	protected("DELETE /api/chat/clear", s.handleChatClear)
	protected("GET /api/chat/export", s.handleChatExport)

	protected("GET /api/activity", s.handleActivity)
	protected("GET /api/calendar/today", s.handleCalendarToday)
	protected("POST /api/calendar/events", s.handleCreateCalendarEvent)
	protected("GET /api/system/status", s.handleSystemStatus)

	if s.metrics != nil {
		mux.Handle("GET "+s.config.Metrics.Path, s.metrics.Handler())
	}
}

// sendJSON writes v as a JSON response.
func (s *Server) sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("failed to write response", "error", err)
	}
}

// sendJSONError writes a JSON error response.
func (s *Server) sendJSONError(w http.ResponseWriter, status int, message string) {
	s.sendJSON(w, status, map[string]string{"error": message})
}

// sendGatewayError maps a gateway failure to a status and writes message
// with the underlying error as details.
func (s *Server) sendGatewayError(w http.ResponseWriter, err error, message string) {
	status := http.StatusInternalServerError
	var ge *gateway.GatewayError
	switch {
	case gateway.IsConnectionError(err):
		status = http.StatusServiceUnavailable
	case errors.Is(err, gateway.ErrTimeout):
		status = http.StatusGatewayTimeout
	case errors.As(err, &ge):
		status = http.StatusBadGateway
	}
	s.logger.Warn(message, "error", err)
	s.sendJSON(w, status, map[string]string{"error": message, "details": err.Error()})
}

// queryLimit parses ?limit=, falling back to def and capping at maxListLimit.
func queryLimit(r *http.Request, def int) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 {
		return def
	}
	if n > maxListLimit {
		return maxListLimit
	}
	return n
}

func (s *Server) uptime() float64 {
	return time.Since(s.startedAt).Seconds()
}

func (s *Server) databaseStatus() string {
	pinger, ok := s.store.(interface{ Ping() error })
	if !ok {
		return "connected"
	}
	if err := pinger.Ping(); err != nil {
		s.logger.Warn("database ping failed", "error", err)
		return "error"
	}
	return "connected"
}

// handleHealth reports liveness. It does not require the gateway to be up.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:    "ok",
		Gateway:   s.gateway.State().String(),
		Uptime:    s.uptime(),
		Timestamp: time.Now().UTC(),
	}
	status := http.StatusOK
	if s.databaseStatus() != "connected" {
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	}
	s.sendJSON(w, status, resp)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Username == "" || req.Password == "" {
		s.sendJSONError(w, http.StatusBadRequest, "Username and password required")
		return
	}

	result, err := s.auth.Login(r.Context(), req.Username, req.Password)
	switch {
	case errors.Is(err, auth.ErrNotConfigured):
		s.sendJSONError(w, http.StatusInternalServerError, "User not configured. Run coven-dashboard init first.")
		return
	case errors.Is(err, auth.ErrInvalidCredentials):
		s.sendJSONError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	case err != nil:
		s.logger.Error("login failed", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "Login failed")
		return
	}

	s.sendJSON(w, http.StatusOK, result)
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Token == "" {
		s.sendJSON(w, http.StatusOK, VerifyResponse{Valid: false})
		return
	}

	username, err := s.auth.Verifier().Verify(req.Token)
	if err != nil {
		s.sendJSON(w, http.StatusOK, VerifyResponse{Valid: false})
		return
	}
	s.sendJSON(w, http.StatusOK, VerifyResponse{Valid: true, Username: username})
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.CurrentPassword == "" || req.NewPassword == "" {
		s.sendJSONError(w, http.StatusBadRequest, "Current and new password required")
		return
	}

	err := s.auth.ChangePassword(r.Context(), req.CurrentPassword, req.NewPassword)
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		s.sendJSONError(w, http.StatusUnauthorized, "Current password incorrect")
		return
	case errors.Is(err, auth.ErrWeakPassword):
		s.sendJSONError(w, http.StatusBadRequest, fmt.Sprintf("New password must be at least %d characters", auth.MinPasswordLength))
		return
	case errors.Is(err, auth.ErrNotConfigured):
		s.sendJSONError(w, http.StatusInternalServerError, "User not configured. Run coven-dashboard init first.")
		return
	case err != nil:
		s.logger.Error("password change failed", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "Failed to change password")
		return
	}

	s.sendJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleBriefing(w http.ResponseWriter, r *http.Request) {
	s.writeBriefing(w, s.briefing.Generate(r.Context()))
}

func (s *Server) handleBriefingRefresh(w http.ResponseWriter, r *http.Request) {
	s.writeBriefing(w, s.briefing.Refresh(r.Context()))
}

func (s *Server) writeBriefing(w http.ResponseWriter, snap *briefing.Snapshot) {
	s.sendJSON(w, http.StatusOK, BriefingResponse{
		Success:     true,
		Briefing:    snap.Text,
		GeneratedAt: snap.GeneratedAt.UnixMilli(),
		Source:      snap.Source,
	})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, s.gateway.ListSessions(r.Context()))
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	details, err := s.gateway.GetSessionDetails(r.Context(), r.PathValue("key"))
	if err != nil {
		s.sendGatewayError(w, err, "Failed to get session details")
		return
	}
	s.sendJSON(w, http.StatusOK, details)
}

func (s *Server) handleSpawnSession(w http.ResponseWriter, r *http.Request) {
	var req SpawnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		s.sendJSONError(w, http.StatusBadRequest, "Session name required")
		return
	}

	ctx := r.Context()
	result, err := s.gateway.SpawnSession(ctx, gateway.SpawnRequest{Name: req.Name, Type: req.Type, Prompt: req.Prompt})
	if err != nil {
		s.sendGatewayError(w, err, "Failed to spawn session")
		return
	}

	s.logActivity(r, store.ActivitySessionSpawned, "Spawned: "+req.Name, "")
	s.hub.Broadcast(conversation.EventSessionSpawned, conversation.SessionPayload{
		SessionKey: sessionKeyOf(result),
		Result:     result,
	})
	s.sendJSON(w, http.StatusOK, result)
}

func (s *Server) handleKillSession(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	result, err := s.gateway.KillSession(r.Context(), key)
	if err != nil {
		s.sendGatewayError(w, err, "Failed to kill session")
		return
	}

	s.logActivity(r, store.ActivitySessionKilled, "Killed: "+key, key)
	s.hub.Broadcast(conversation.EventSessionKilled, conversation.SessionPayload{SessionKey: key, Result: result})
	s.sendJSON(w, http.StatusOK, result)
}

func (s *Server) handleSendToSession(w http.ResponseWriter, r *http.Request) {
	var req SendToSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		s.sendJSONError(w, http.StatusBadRequest, "Message required")
		return
	}

	timeout := defaultSendTimeout
	if req.Timeout > 0 {
		timeout = time.Duration(req.Timeout) * time.Second
	}

	result, err := s.gateway.SendToSession(r.Context(), r.PathValue("key"), req.Message, timeout)
	if err != nil {
		s.sendGatewayError(w, err, "Failed to send message")
		return
	}
	s.sendJSON(w, http.StatusOK, result)
}

func (s *Server) handleSessionLogs(w http.ResponseWriter, r *http.Request) {
	logs := s.gateway.GetSessionLogs(r.Context(), r.PathValue("key"), queryLimit(r, gateway.DefaultLogLimit))
	s.sendJSON(w, http.StatusOK, logs)
}

func (s *Server) handleMemorySearch(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		s.sendJSONError(w, http.StatusBadRequest, "Search query required")
		return
	}
	s.sendJSON(w, http.StatusOK, s.gateway.SearchMemory(r.Context(), q))
}

func (s *Server) chatSessionKey() string {
	if key := s.config.Gateway.SessionKey; key != "" {
		return key
	}
	return store.DefaultSessionKey
}

func (s *Server) handleChatHistory(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.store.GetChatHistory(r.Context(), s.chatSessionKey(), queryLimit(r, store.DefaultHistoryLimit))
	if err != nil {
		s.logger.Error("failed to load chat history", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "Failed to load chat history")
		return
	}
	s.sendJSON(w, http.StatusOK, msgs)
}

func (s *Server) handleChatSearch(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		s.sendJSONError(w, http.StatusBadRequest, "Search query required")
		return
	}

	msgs, err := s.store.SearchChat(r.Context(), q, store.DefaultSearchLimit)
	if err != nil {
		s.logger.Error("chat search failed", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "Search failed")
		return
	}
	s.sendJSON(w, http.StatusOK, msgs)
}

func (s *Server) handleChatClear(w http.ResponseWriter, r *http.Request) {
	n, err := s.store.ClearChat(r.Context(), s.chatSessionKey())
	if err != nil {
		s.logger.Error("failed to clear chat", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "Failed to clear chat")
		return
	}

	s.logActivity(r, store.ActivityChatCleared, "Chat history cleared", "")
	s.sendJSON(w, http.StatusOK, map[string]any{"success": true, "deleted": n})
}

func (s *Server) handleChatExport(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.store.GetChatHistory(r.Context(), s.chatSessionKey(), exportLimit)
	if err != nil {
		s.logger.Error("failed to load chat for export", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "Export failed")
		return
	}

	now := time.Now()
	if r.URL.Query().Get("format") == "html" {
		page, err := conversation.ExportHTML(msgs, now, time.Local)
		if err != nil {
			s.logger.Error("failed to render chat export", "error", err)
			s.sendJSONError(w, http.StatusInternalServerError, "Export failed")
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Content-Disposition", "attachment; filename=chat-export.html")
		_, _ = w.Write(page)
		return
	}

	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename=chat-export.md")
	_, _ = w.Write([]byte(conversation.ExportMarkdown(msgs, now, time.Local)))
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	items, err := s.store.ListActivity(r.Context(), queryLimit(r, defaultActivityLimit))
	if err != nil {
		s.logger.Error("failed to load activity", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "Failed to load activity")
		return
	}
	s.sendJSON(w, http.StatusOK, items)
}

func (s *Server) handleCalendarToday(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	events, err := s.store.EventsBetween(r.Context(), start, start.AddDate(0, 0, 1))
	if err != nil {
		s.logger.Error("failed to load calendar", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "Failed to load calendar")
		return
	}
	s.sendJSON(w, http.StatusOK, CalendarTodayResponse{Count: len(events), Events: events})
}

func (s *Server) handleCreateCalendarEvent(w http.ResponseWriter, r *http.Request) {
	var req CalendarEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	switch {
	case strings.TrimSpace(req.Summary) == "":
		s.sendJSONError(w, http.StatusBadRequest, "summary is required")
		return
	case req.StartsAt.IsZero():
		s.sendJSONError(w, http.StatusBadRequest, "starts_at is required")
		return
	case !req.EndsAt.IsZero() && req.EndsAt.Before(req.StartsAt):
		s.sendJSONError(w, http.StatusBadRequest, "ends_at must not be before starts_at")
		return
	}

	ev := &store.CalendarEvent{
		Summary:  req.Summary,
		StartsAt: req.StartsAt,
		EndsAt:   req.EndsAt,
		Location: req.Location,
	}
	if err := s.store.CreateCalendarEvent(r.Context(), ev); err != nil {
		s.logger.Error("failed to create calendar event", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "Failed to create event")
		return
	}

	// Today's counts feed the briefing.
	s.briefing.Invalidate()
	s.sendJSON(w, http.StatusCreated, ev)
}

func (s *Server) handleSystemStatus(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, SystemStatusResponse{
		Dashboard: "online",
		Database:  s.databaseStatus(),
		Gateway: GatewayStatus{
			URL:     s.gateway.URL(),
			State:   s.gateway.State().String(),
			Ready:   s.gateway.Ready(),
			Pending: s.gateway.Pending(),
		},
		Clients:   s.hub.Count(),
		Uptime:    s.uptime(),
		Timestamp: time.Now().UTC(),
	})
}

// logActivity records an activity, logging rather than failing on error.
func (s *Server) logActivity(r *http.Request, activityType, description, relatedID string) {
	if err := s.store.LogActivity(r.Context(), activityType, description, relatedID); err != nil {
		s.logger.Warn("failed to record activity", "type", activityType, "error", err)
	}
}

// sessionKeyOf pulls a session key out of a gateway result, if it has one.
func sessionKeyOf(raw json.RawMessage) string {
	var v struct {
		SessionKey string `json:"sessionKey"`
		Key        string `json:"key"`
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return ""
	}
	if v.SessionKey != "" {
		return v.SessionKey
	}
	return v.Key
}

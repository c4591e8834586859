// ABOUTME: Application operations on the gateway: chat, session lifecycle, logs, memory search
// ABOUTME: Polling-backed calls degrade to empty results instead of returning errors

package gateway

import (
	"context"
	"encoding/json"
	"time"
)

// DefaultSessionType is used by SpawnSession when none is given.
const DefaultSessionType = "claude_code"

// DefaultLogLimit is used by GetSessionLogs when limit is not positive.
const DefaultLogLimit = 50

// Session is one entry of the gateway's session registry. The raw JSON is
// kept so callers can pass the gateway's full view through unchanged.
type Session struct {
	Key    string `json:"key"`
	Name   string `json:"name,omitempty"`
	Kind   string `json:"kind,omitempty"`
	Status string `json:"status,omitempty"`

	Raw json.RawMessage `json:"-"`
}

// MarshalJSON emits the gateway's raw object when available.
func (s Session) MarshalJSON() ([]byte, error) {
	if len(s.Raw) > 0 {
		return s.Raw, nil
	}
	type plain Session
	return json.Marshal(plain(s))
}

// SpawnRequest describes a new agent session.
type SpawnRequest struct {
	Name   string
	Type   string
	Prompt string
}

// LogEntry is one line of a session's log, as the gateway reports it.
type LogEntry = json.RawMessage

// MemorySearchResult is the reply to SearchMemory.
type MemorySearchResult struct {
	Results []json.RawMessage `json:"results"`
}

type sendParams struct {
	SessionKey string `json:"sessionKey"`
	Message    string `json:"message"`
}

type sessionParams struct {
	SessionKey string `json:"sessionKey"`
}

type spawnParams struct {
	Name          string `json:"name"`
	SessionType   string `json:"sessionType"`
	InitialPrompt string `json:"initialPrompt,omitempty"`
}

type logsParams struct {
	SessionKey string `json:"sessionKey"`
	Limit      int    `json:"limit"`
}

type memoryParams struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

// SendMessage sends text to the configured session and returns the
// assistant's reply text.
func (c *Client) SendMessage(ctx context.Context, text string) (string, error) {
	payload, err := c.request(ctx, MethodSessionsSend, sendParams{
		SessionKey: c.opts.SessionKey,
		Message:    text,
	}, c.opts.MessageTimeout)
	if err != nil {
		return "", err
	}
	return ExtractText(payload), nil
}

// SendToSession sends text to a specific session with a caller-chosen
// deadline and returns the raw reply payload.
func (c *Client) SendToSession(ctx context.Context, sessionKey, text string, timeout time.Duration) (json.RawMessage, error) {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return c.request(ctx, MethodSessionsSend, sendParams{SessionKey: sessionKey, Message: text}, timeout)
}

// ListSessions returns the gateway's active sessions. It never fails: any
// error, including not being connected, yields an empty list.
func (c *Client) ListSessions(ctx context.Context) []Session {
	if !c.Ready() {
		return []Session{}
	}

	payload, err := c.request(ctx, MethodSessionsList, struct{}{}, c.opts.ListTimeout)
	if err != nil {
		c.logger.Debug("listing sessions failed", "error", err)
		return []Session{}
	}
	return decodeSessions(payload)
}

// GetSessionDetails returns the gateway's description of one session.
func (c *Client) GetSessionDetails(ctx context.Context, sessionKey string) (json.RawMessage, error) {
	return c.request(ctx, MethodSessionsGet, sessionParams{SessionKey: sessionKey}, c.opts.ListTimeout)
}

// SpawnSession asks the gateway to provision a new session.
func (c *Client) SpawnSession(ctx context.Context, req SpawnRequest) (json.RawMessage, error) {
	sessionType := req.Type
	if sessionType == "" {
		sessionType = DefaultSessionType
	}
	c.logger.Info("spawning session", "name", req.Name, "type", sessionType)
	return c.request(ctx, MethodSessionsSpawn, spawnParams{
		Name:          req.Name,
		SessionType:   sessionType,
		InitialPrompt: req.Prompt,
	}, c.opts.SpawnTimeout)
}

// KillSession terminates a session.
func (c *Client) KillSession(ctx context.Context, sessionKey string) (json.RawMessage, error) {
	c.logger.Info("killing session", "session_key", sessionKey)
	return c.request(ctx, MethodSessionsKill, sessionParams{SessionKey: sessionKey}, c.opts.KillTimeout)
}

// GetSessionLogs returns up to limit log entries for a session, or an empty
// list on any failure.
func (c *Client) GetSessionLogs(ctx context.Context, sessionKey string, limit int) []LogEntry {
	if limit <= 0 {
		limit = DefaultLogLimit
	}
	if !c.Ready() {
		return []LogEntry{}
	}

	payload, err := c.request(ctx, MethodSessionsLogs, logsParams{SessionKey: sessionKey, Limit: limit}, c.opts.LogsTimeout)
	if err != nil {
		c.logger.Warn("fetching session logs failed", "session_key", sessionKey, "error", err)
		return []LogEntry{}
	}
	return decodeList(payload, "logs")
}

// SearchMemory queries the assistant's long-term memory. Failures yield an
// empty result set.
func (c *Client) SearchMemory(ctx context.Context, query string) *MemorySearchResult {
	empty := &MemorySearchResult{Results: []json.RawMessage{}}
	if !c.Ready() {
		return empty
	}

	payload, err := c.request(ctx, MethodMemorySearch, memoryParams{Query: query, Limit: 20}, c.opts.MemoryTimeout)
	if err != nil {
		c.logger.Warn("memory search failed", "error", err)
		return empty
	}

	var res MemorySearchResult
	if err := json.Unmarshal(payload, &res); err != nil || res.Results == nil {
		res.Results = decodeList(payload, "results")
	}
	return &res
}

func decodeSessions(payload json.RawMessage) []Session {
	items := decodeList(payload, "sessions")
	out := make([]Session, 0, len(items))
	for _, raw := range items {
		var s Session
		if err := json.Unmarshal(raw, &s); err != nil {
			continue
		}
		s.Raw = raw
		out = append(out, s)
	}
	return out
}

// decodeList accepts either a bare array or an object holding the array
// under key.
func decodeList(payload json.RawMessage, key string) []json.RawMessage {
	var items []json.RawMessage
	if err := json.Unmarshal(payload, &items); err == nil && items != nil {
		return items
	}

	var wrapped map[string]json.RawMessage
	if err := json.Unmarshal(payload, &wrapped); err == nil {
		if inner, ok := wrapped[key]; ok {
			if err := json.Unmarshal(inner, &items); err == nil && items != nil {
				return items
			}
		}
	}
	return []json.RawMessage{}
}

// ABOUTME: Wire frames exchanged with the agent gateway over the duplex socket
// ABOUTME: Requests, responses, unsolicited events, and the connect handshake parameters

package gateway

import (
	"bytes"
	"encoding/json"
	"strconv"
	"unicode/utf8"
)

// Frame types
const (
	FrameRequest  = "req"
	FrameResponse = "res"
	FrameEvent    = "event"
)

// Handshake constants
const (
	EventConnectChallenge = "connect.challenge"
	MethodConnect         = "connect"
	PayloadHelloOK        = "hello-ok"
	ProtocolVersion       = 3
)

// Application methods
const (
	MethodSessionsSend  = "sessions.send"
	MethodSessionsList  = "sessions.list"
	MethodSessionsGet   = "sessions.get"
	MethodSessionsSpawn = "sessions.spawn"
	MethodSessionsKill  = "sessions.kill"
	MethodSessionsLogs  = "sessions.logs"
	MethodMemorySearch  = "memory.search"
)

// RequestFrame is an outbound request: {type:"req", id, method, params}.
type RequestFrame struct {
	Type   string `json:"type"`
	ID     string `json:"id"`
	Method string `json:"method"`
	Params any    `json:"params"`
}

// Frame is the union of every inbound frame shape. Only the fields relevant
// to Type are populated.
type Frame struct {
	Type    string          `json:"type"`
	RawID   json.RawMessage `json:"id,omitempty"`
	OK      bool            `json:"ok,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   json.RawMessage `json:"error,omitempty"`
	Event   string          `json:"event,omitempty"`
}

// ID returns the correlation id as a string. Numeric ids are rendered in
// decimal so they can still be matched against string keys.
func (f *Frame) ID() string {
	raw := bytes.TrimSpace(f.RawID)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return string(raw)
}

// payloadType reads payload.type, used to recognize the hello acknowledgment.
func (f *Frame) payloadType() string {
	if len(f.Payload) == 0 {
		return ""
	}
	var p struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(f.Payload, &p); err != nil {
		return ""
	}
	return p.Type
}

// Event is an unsolicited push from the gateway.
type Event struct {
	Name string          `json:"event"`
	Raw  json.RawMessage `json:"raw"`
}

// ClientInfo identifies this process during the handshake.
type ClientInfo struct {
	ID       string `json:"id"`
	Version  string `json:"version"`
	Platform string `json:"platform"`
	Mode     string `json:"mode"`
}

// ConnectAuth carries the optional gateway token.
type ConnectAuth struct {
	Token string `json:"token,omitempty"`
}

// ConnectParams are the params of the connect request sent in answer to the
// challenge event.
type ConnectParams struct {
	MinProtocol int            `json:"minProtocol"`
	MaxProtocol int            `json:"maxProtocol"`
	Client      ClientInfo     `json:"client"`
	Role        string         `json:"role"`
	Scopes      []string       `json:"scopes"`
	Caps        []string       `json:"caps"`
	Commands    []string       `json:"commands"`
	Permissions map[string]any `json:"permissions"`
	Auth        ConnectAuth    `json:"auth"`
	Locale      string         `json:"locale"`
	UserAgent   string         `json:"userAgent"`
}

func newConnectParams(opts Options) ConnectParams {
	return ConnectParams{
		MinProtocol: ProtocolVersion,
		MaxProtocol: ProtocolVersion,
		Client: ClientInfo{
			ID:       opts.ClientID,
			Version:  opts.ClientVersion,
			Platform: opts.Platform,
			Mode:     "interactive",
		},
		Role:        "client",
		Scopes:      []string{},
		Caps:        []string{},
		Commands:    []string{},
		Permissions: map[string]any{},
		Auth:        ConnectAuth{Token: opts.Token},
		Locale:      "en-US",
		UserAgent:   opts.ClientID + "/" + opts.ClientVersion,
	}
}

// truncate shortens s for log output.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "…(" + strconv.Itoa(len(s)-n) + " more bytes)"
}

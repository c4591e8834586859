// ABOUTME: Error taxonomy for gateway calls and the user-presentable renderings
// ABOUTME: NotConnected, Timeout, GatewayError (ok=false replies), TransportError (socket failures)

package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors
var (
	ErrNotConnected     = errors.New("not connected to gateway")
	ErrTimeout          = errors.New("gateway request timed out")
	ErrConnectionClosed = errors.New("gateway connection closed")
)

// GatewayError is a reply that arrived with ok=false.
type GatewayError struct {
	Method  string
	Code    string
	Message string
}

func (e *GatewayError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("gateway %s failed (%s): %s", e.Method, e.Code, e.Message)
	}
	return fmt.Sprintf("gateway %s failed: %s", e.Method, e.Message)
}

// TransportError wraps a socket-level failure.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("gateway transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// parseGatewayError decodes the error member of a failed reply. Gateways send
// either a bare string or an object with code and message.
func parseGatewayError(method string, raw json.RawMessage) *GatewayError {
	ge := &GatewayError{Method: method, Message: "Unknown error"}
	if len(raw) == 0 {
		return ge
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s != "" {
			ge.Message = s
		}
		return ge
	}

	var obj struct {
		Code    json.RawMessage `json:"code"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		if obj.Message != "" {
			ge.Message = obj.Message
		}
		ge.Code = strings.Trim(string(obj.Code), `"`)
		return ge
	}

	ge.Message = string(raw)
	return ge
}

// IsConnectionError reports whether err means the gateway could not be
// reached, as opposed to a slow or failed request.
func IsConnectionError(err error) bool {
	var te *TransportError
	return errors.Is(err, ErrNotConnected) ||
		errors.Is(err, ErrConnectionClosed) ||
		errors.As(err, &te)
}

// UserMessage renders err as markdown suitable for showing in the chat UI.
func UserMessage(err error, gatewayURL string) string {
	if err == nil {
		return ""
	}

	if IsConnectionError(err) {
		return fmt.Sprintf("**Connection Error**\n\nNot connected to the agent gateway at `%s`.\n\n"+
			"Make sure the gateway is running and the WebSocket endpoint is accessible.", gatewayURL)
	}

	if errors.Is(err, ErrTimeout) {
		return "**Timeout**\n\nThe assistant is taking longer than expected to respond. " +
			"The request may still be processing."
	}

	var ge *GatewayError
	if errors.As(err, &ge) {
		return "**Error**\n\n" + ge.Message
	}

	return "**Error**\n\n" + err.Error()
}

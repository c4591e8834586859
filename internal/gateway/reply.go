// ABOUTME: Extracts assistant text from a sessions.send reply payload
// ABOUTME: Handles output[] message items, content[] parts, and plain text/message fields

package gateway

import (
	"encoding/json"
	"strings"
)

// NoResponse is returned by SendMessage when the reply carried no text.
const NoResponse = "No response"

type contentPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type outputItem struct {
	Type    string          `json:"type"`
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
	Text    string          `json:"text"`
}

type replyPayload struct {
	Output  []outputItem    `json:"output"`
	Content json.RawMessage `json:"content"`
	Text    string          `json:"text"`
	Message json.RawMessage `json:"message"`
	Reply   string          `json:"reply"`
}

// ExtractText joins every text segment of payload with newlines. An empty
// result becomes NoResponse.
func ExtractText(payload json.RawMessage) string {
	if text := strings.TrimSpace(strings.Join(textSegments(payload), "\n")); text != "" {
		return text
	}
	return NoResponse
}

func textSegments(payload json.RawMessage) []string {
	if len(payload) == 0 {
		return nil
	}

	var s string
	if err := json.Unmarshal(payload, &s); err == nil {
		return nonEmpty(s)
	}

	var p replyPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil
	}

	if len(p.Output) > 0 {
		var out []string
		for _, item := range p.Output {
			switch item.Type {
			case "message":
				out = append(out, partsText(item.Content)...)
			case "output_text", "text":
				out = append(out, nonEmpty(item.Text)...)
			}
		}
		return out
	}

	if parts := partsText(p.Content); len(parts) > 0 {
		return parts
	}
	if p.Text != "" {
		return nonEmpty(p.Text)
	}
	if p.Reply != "" {
		return nonEmpty(p.Reply)
	}
	if len(p.Message) > 0 {
		return textSegments(p.Message)
	}
	return nil
}

// partsText reads a content member that is either a string or a list of
// typed parts.
func partsText(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return nonEmpty(s)
	}

	var parts []contentPart
	if err := json.Unmarshal(raw, &parts); err != nil {
		return nil
	}
	var out []string
	for _, part := range parts {
		if part.Type == "output_text" || part.Type == "text" {
			out = append(out, nonEmpty(part.Text)...)
		}
	}
	return out
}

func nonEmpty(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return []string{s}
}

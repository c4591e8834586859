// ABOUTME: Chat message persistence: append, recent history, search, and bulk clear
// ABOUTME: Messages are append-only and ordered by timestamp then insertion order

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DefaultHistoryLimit is used when GetChatHistory is called without a limit.
const DefaultHistoryLimit = 100

// DefaultSearchLimit caps SearchChat results.
const DefaultSearchLimit = 50

// SaveChatMessage appends a message. ID and Timestamp are filled in when
// empty; SessionKey defaults to "main".
func (s *SQLiteStore) SaveChatMessage(ctx context.Context, msg *ChatMessage) error {
	if msg.Role != RoleUser && msg.Role != RoleAssistant {
		return ErrInvalidRole
	}
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.SessionKey == "" {
		msg.SessionKey = DefaultSessionKey
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	var metadata any
	if len(msg.Metadata) > 0 {
		b, err := json.Marshal(msg.Metadata)
		if err != nil {
			return fmt.Errorf("marshaling metadata: %w", err)
		}
		metadata = string(b)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chat_messages (id, session_key, role, content, metadata, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
	`, msg.ID, msg.SessionKey, msg.Role, msg.Content, metadata, formatTime(msg.Timestamp))
	if err != nil {
		return fmt.Errorf("inserting chat message: %w", err)
	}

	return nil
}

// GetChatHistory returns the newest limit messages of a session in
// chronological order.
func (s *SQLiteStore) GetChatHistory(ctx context.Context, sessionKey string, limit int) ([]*ChatMessage, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_key, role, content, metadata, timestamp
		FROM (
			SELECT rowid AS seq, id, session_key, role, content, metadata, timestamp
			FROM chat_messages
			WHERE session_key = ?
			ORDER BY timestamp DESC, seq DESC
			LIMIT ?
		)
		ORDER BY timestamp ASC, seq ASC
	`, sessionKey, limit)
	if err != nil {
		return nil, fmt.Errorf("querying chat history: %w", err)
	}
	defer rows.Close()

	return scanChatMessages(rows)
}

// SearchChat returns messages whose content contains query, newest first.
func (s *SQLiteStore) SearchChat(ctx context.Context, query string, limit int) ([]*ChatMessage, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_key, role, content, metadata, timestamp
		FROM chat_messages
		WHERE content LIKE ? ESCAPE '\'
		ORDER BY timestamp DESC, rowid DESC
		LIMIT ?
	`, "%"+escapeLike(query)+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("searching chat: %w", err)
	}
	defer rows.Close()

	return scanChatMessages(rows)
}

// ClearChat deletes every message of a session and reports how many were
// removed.
func (s *SQLiteStore) ClearChat(ctx context.Context, sessionKey string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM chat_messages WHERE session_key = ?`, sessionKey)
	if err != nil {
		return 0, fmt.Errorf("clearing chat: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting cleared messages: %w", err)
	}

	s.logger.Info("cleared chat history", "session_key", sessionKey, "deleted", n)
	return n, nil
}

func scanChatMessages(rows *sql.Rows) ([]*ChatMessage, error) {
	messages := []*ChatMessage{}
	for rows.Next() {
		var msg ChatMessage
		var metadata sql.NullString
		var ts string

		if err := rows.Scan(&msg.ID, &msg.SessionKey, &msg.Role, &msg.Content, &metadata, &ts); err != nil {
			return nil, fmt.Errorf("scanning chat message row: %w", err)
		}

		t, err := parseTime(ts)
		if err != nil {
			return nil, fmt.Errorf("parsing timestamp: %w", err)
		}
		msg.Timestamp = t

		if metadata.Valid && metadata.String != "" {
			if err := json.Unmarshal([]byte(metadata.String), &msg.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshaling metadata: %w", err)
			}
		}

		messages = append(messages, &msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chat messages: %w", err)
	}
	return messages, nil
}

// escapeLike escapes LIKE wildcards so query matches literally.
func escapeLike(q string) string {
	out := make([]rune, 0, len(q))
	for _, r := range q {
		if r == '%' || r == '_' || r == '\\' {
			out = append(out, '\\')
		}
		out = append(out, r)
	}
	return string(out)
}

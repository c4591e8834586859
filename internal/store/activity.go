// ABOUTME: Activity log persistence for the dashboard timeline
// ABOUTME: Append-only records of chats, session lifecycle, and account changes

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// LogActivity appends an activity record. relatedID may be empty.
func (s *SQLiteStore) LogActivity(ctx context.Context, activityType, description, relatedID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO activity_log (id, activity_type, description, related_id, timestamp)
		VALUES (?, ?, ?, ?, ?)
	`, uuid.New().String(), activityType, description, nullString(relatedID), formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("inserting activity: %w", err)
	}
	return nil
}

// ListActivity returns the most recent activity, newest first.
func (s *SQLiteStore) ListActivity(ctx context.Context, limit int) ([]*Activity, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, activity_type, description, related_id, timestamp
		FROM activity_log
		ORDER BY timestamp DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying activity: %w", err)
	}
	defer rows.Close()

	activities := []*Activity{}
	for rows.Next() {
		var a Activity
		var relatedID sql.NullString
		var ts string
		if err := rows.Scan(&a.ID, &a.Type, &a.Description, &relatedID, &ts); err != nil {
			return nil, fmt.Errorf("scanning activity row: %w", err)
		}
		a.RelatedID = relatedID.String
		if a.Timestamp, err = parseTime(ts); err != nil {
			return nil, fmt.Errorf("parsing timestamp: %w", err)
		}
		activities = append(activities, &a)
	}

	return activities, rows.Err()
}

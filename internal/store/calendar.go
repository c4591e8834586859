// ABOUTME: Local calendar event persistence
// ABOUTME: Events are stored in UTC and queried by half-open start-time windows

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreateCalendarEvent inserts an event. EndsAt defaults to StartsAt.
func (s *SQLiteStore) CreateCalendarEvent(ctx context.Context, ev *CalendarEvent) error {
	if ev.Summary == "" {
		return errors.New("calendar event summary is required")
	}
	if ev.StartsAt.IsZero() {
		return errors.New("calendar event start time is required")
	}
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.EndsAt.IsZero() {
		ev.EndsAt = ev.StartsAt
	}
	if ev.EndsAt.Before(ev.StartsAt) {
		return errors.New("calendar event ends before it starts")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO calendar_events (id, summary, starts_at, ends_at, location)
		VALUES (?, ?, ?, ?, ?)
	`, ev.ID, ev.Summary, formatTime(ev.StartsAt), formatTime(ev.EndsAt), nullString(ev.Location))
	if err != nil {
		return fmt.Errorf("inserting calendar event: %w", err)
	}
	return nil
}

// EventsBetween returns events that start in [from, to), earliest first.
func (s *SQLiteStore) EventsBetween(ctx context.Context, from, to time.Time) ([]*CalendarEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, summary, starts_at, ends_at, location
		FROM calendar_events
		WHERE starts_at >= ? AND starts_at < ?
		ORDER BY starts_at ASC
	`, formatTime(from), formatTime(to))
	if err != nil {
		return nil, fmt.Errorf("querying calendar events: %w", err)
	}
	defer rows.Close()

	events := []*CalendarEvent{}
	for rows.Next() {
		var ev CalendarEvent
		var startsAt, endsAt string
		var location sql.NullString
		if err := rows.Scan(&ev.ID, &ev.Summary, &startsAt, &endsAt, &location); err != nil {
			return nil, fmt.Errorf("scanning calendar row: %w", err)
		}
		ev.Location = location.String
		if ev.StartsAt, err = parseTime(startsAt); err != nil {
			return nil, fmt.Errorf("parsing starts_at: %w", err)
		}
		if ev.EndsAt, err = parseTime(endsAt); err != nil {
			return nil, fmt.Errorf("parsing ends_at: %w", err)
		}
		events = append(events, &ev)
	}

	return events, rows.Err()
}

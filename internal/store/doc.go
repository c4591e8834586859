// Package store provides persistent storage for the dashboard using SQLite.
//
// # Architecture
//
// Store is composed of small interfaces so consumers can depend on only
// what they use:
//
//   - ChatStore: the dashboard conversation (append, history, search, clear)
//   - ActivityStore: the activity timeline
//   - PlannerStore: tasks and projects read by the daily briefing
//   - CalendarStore: locally stored calendar events
//   - SettingsStore: login name, password hash, theme
//
// SQLiteStore implements all of them in a single struct. MockStore is an
// in-memory implementation for tests of other packages.
//
// # Data Model
//
//	chat_messages   id, session_key, role (user|assistant), content, metadata, timestamp
//	activity_log    id, activity_type, description, related_id, timestamp
//	tasks           id, title, priority, due_date (YYYY-MM-DD), completed, created_at
//	projects        id, title, description, status, priority, assignee, tags, position, created_at
//	calendar_events id, summary, starts_at, ends_at, location
//	user_settings   key, value
//
// Timestamps are stored as fixed-width UTC text so that ordering by the
// column is chronological. Chat records are never updated; ClearChat removes
// a whole session at once.
//
// # SQLite Configuration
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA busy_timeout=5000;
//
// Missing columns on older databases are added by runMigrations at open.
//
// # Errors
//
//   - ErrNotFound: requested setting or entity does not exist
//   - ErrInvalidRole: chat message role is not user or assistant
package store

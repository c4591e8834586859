// ABOUTME: Store interface and data types for coven-dashboard persistence
// ABOUTME: Chat messages, activity log, tasks, projects, calendar events, and user settings

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrInvalidRole is returned when a chat message has a role other than user or assistant
var ErrInvalidRole = errors.New("role must be user or assistant")

// Chat roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// DefaultSessionKey is the conversation the dashboard chat uses.
const DefaultSessionKey = "main"

// ChatMessage is one persisted turn of a conversation. Records are
// append-only; they are only ever removed in bulk by session key.
type ChatMessage struct {
	ID         string         `json:"id"`
	SessionKey string         `json:"session_key"`
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

// Activity types written by the dashboard
const (
	ActivityChatMessage    = "chat_message"
	ActivityChatCleared    = "chat_cleared"
	ActivitySessionSpawned = "session_spawned"
	ActivitySessionKilled  = "session_killed"
	ActivityPasswordChange = "password_change"
	ActivityLogin          = "login"
)

// Activity is one entry in the activity log
type Activity struct {
	ID          string    `json:"id"`
	Type        string    `json:"activity_type"`
	Description string    `json:"description"`
	RelatedID   string    `json:"related_id,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Task priorities
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

// DateLayout is the format of Task.DueDate.
const DateLayout = "2006-01-02"

// Task is a to-do item. DueDate is a calendar date (YYYY-MM-DD) or empty.
type Task struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Priority  string    `json:"priority"`
	DueDate   string    `json:"due_date,omitempty"`
	Completed bool      `json:"completed"`
	CreatedAt time.Time `json:"created_at"`
}

// Project statuses
const (
	ProjectBacklog    = "backlog"
	ProjectInProgress = "in_progress"
	ProjectBlocked    = "blocked"
	ProjectDone       = "done"
)

// Project is a card on the project board
type Project struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Status      string    `json:"status"`
	Priority    string    `json:"priority"`
	Assignee    string    `json:"assignee,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	Position    int       `json:"position"`
	CreatedAt   time.Time `json:"created_at"`
}

// CalendarEvent is a locally stored calendar entry
type CalendarEvent struct {
	ID       string    `json:"id"`
	Summary  string    `json:"summary"`
	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at"`
	Location string    `json:"location,omitempty"`
}

// Well-known user_settings keys
const (
	SettingUsername     = "username"
	SettingPasswordHash = "password_hash"
	SettingTheme        = "theme"
)

// ChatStore persists the dashboard conversation
type ChatStore interface {
	SaveChatMessage(ctx context.Context, msg *ChatMessage) error
	// GetChatHistory returns the newest limit messages, oldest first.
	GetChatHistory(ctx context.Context, sessionKey string, limit int) ([]*ChatMessage, error)
	SearchChat(ctx context.Context, query string, limit int) ([]*ChatMessage, error)
	ClearChat(ctx context.Context, sessionKey string) (int64, error)
}

// ActivityStore records what happened on the dashboard
type ActivityStore interface {
	LogActivity(ctx context.Context, activityType, description, relatedID string) error
	ListActivity(ctx context.Context, limit int) ([]*Activity, error)
}

// PlannerStore holds tasks and projects
type PlannerStore interface {
	CreateTask(ctx context.Context, task *Task) error
	TasksDueOn(ctx context.Context, date string) ([]*Task, error)
	OverdueTasks(ctx context.Context, today string) ([]*Task, error)
	HighPriorityTasks(ctx context.Context) ([]*Task, error)
	CompleteTask(ctx context.Context, id string) error

	CreateProject(ctx context.Context, project *Project) error
	ProjectsByStatus(ctx context.Context, status string) ([]*Project, error)
}

// CalendarStore holds local calendar events
type CalendarStore interface {
	CreateCalendarEvent(ctx context.Context, ev *CalendarEvent) error
	// EventsBetween returns events starting in [from, to), earliest first.
	EventsBetween(ctx context.Context, from, to time.Time) ([]*CalendarEvent, error)
}

// SettingsStore is a key/value table of user settings
type SettingsStore interface {
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
}

// Store is everything the dashboard persists
type Store interface {
	ChatStore
	ActivityStore
	PlannerStore
	CalendarStore
	SettingsStore

	// Close releases any resources held by the store
	Close() error
}

// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite and to inject failures per operation

package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Ensure MockStore implements Store.
var _ Store = (*MockStore)(nil)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu       sync.RWMutex
	messages []*ChatMessage
	activity []*Activity
	tasks    map[string]*Task
	projects map[string]*Project
	events   []*CalendarEvent
	settings map[string]string

	// Fail, when set, is consulted before each operation; a non-nil
	// return is reported as that operation's error.
	Fail func(op string) error
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		tasks:    make(map[string]*Task),
		projects: make(map[string]*Project),
		settings: make(map[string]string),
	}
}

func (m *MockStore) fail(op string) error {
	if m.Fail == nil {
		return nil
	}
	return m.Fail(op)
}

// SaveChatMessage stores a copy of msg.
func (m *MockStore) SaveChatMessage(ctx context.Context, msg *ChatMessage) error {
	if err := m.fail("SaveChatMessage"); err != nil {
		return err
	}
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

	m.mu.Lock()
	defer m.mu.Unlock()
	c := *msg
	m.messages = append(m.messages, &c)
	return nil
}

// GetChatHistory returns the newest limit messages, oldest first.
func (m *MockStore) GetChatHistory(ctx context.Context, sessionKey string, limit int) ([]*ChatMessage, error) {
	if err := m.fail("GetChatHistory"); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []*ChatMessage
	for _, msg := range m.messages {
		if msg.SessionKey == sessionKey {
			c := *msg
			matched = append(matched, &c)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Timestamp.Before(matched[j].Timestamp)
	})
	if len(matched) > limit {
		matched = matched[len(matched)-limit:]
	}
	if matched == nil {
		matched = []*ChatMessage{}
	}
	return matched, nil
}

// SearchChat returns messages containing query, newest first.
func (m *MockStore) SearchChat(ctx context.Context, query string, limit int) ([]*ChatMessage, error) {
	if err := m.fail("SearchChat"); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []*ChatMessage{}
	for i := len(m.messages) - 1; i >= 0 && len(out) < limit; i-- {
		if strings.Contains(strings.ToLower(m.messages[i].Content), strings.ToLower(query)) {
			c := *m.messages[i]
			out = append(out, &c)
		}
	}
	return out, nil
}

// ClearChat removes a session's messages.
func (m *MockStore) ClearChat(ctx context.Context, sessionKey string) (int64, error) {
	if err := m.fail("ClearChat"); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.messages[:0]
	var n int64
	for _, msg := range m.messages {
		if msg.SessionKey == sessionKey {
			n++
			continue
		}
		kept = append(kept, msg)
	}
	m.messages = kept
	return n, nil
}

// Messages returns a snapshot of every stored chat message in insertion order.
func (m *MockStore) Messages() []ChatMessage {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ChatMessage, len(m.messages))
	for i, msg := range m.messages {
		out[i] = *msg
	}
	return out
}

// LogActivity appends an activity record.
func (m *MockStore) LogActivity(ctx context.Context, activityType, description, relatedID string) error {
	if err := m.fail("LogActivity"); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.activity = append(m.activity, &Activity{
		ID:          uuid.New().String(),
		Type:        activityType,
		Description: description,
		RelatedID:   relatedID,
		Timestamp:   time.Now(),
	})
	return nil
}

// ListActivity returns the newest activity first.
func (m *MockStore) ListActivity(ctx context.Context, limit int) ([]*Activity, error) {
	if err := m.fail("ListActivity"); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []*Activity{}
	for i := len(m.activity) - 1; i >= 0 && len(out) < limit; i-- {
		c := *m.activity[i]
		out = append(out, &c)
	}
	return out, nil
}

// CreateTask stores a task.
func (m *MockStore) CreateTask(ctx context.Context, task *Task) error {
	if err := m.fail("CreateTask"); err != nil {
		return err
	}
	if task.ID == "" {
		task.ID = uuid.New().String()
	}
	if task.Priority == "" {
		task.Priority = PriorityMedium
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	c := *task
	m.tasks[c.ID] = &c
	return nil
}

// CompleteTask marks a task done.
func (m *MockStore) CompleteTask(ctx context.Context, id string) error {
	if err := m.fail("CompleteTask"); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return ErrNotFound
	}
	t.Completed = true
	return nil
}

// TasksDueOn returns open tasks due on date.
func (m *MockStore) TasksDueOn(ctx context.Context, date string) ([]*Task, error) {
	if err := m.fail("TasksDueOn"); err != nil {
		return nil, err
	}
	return m.filterTasks(func(t *Task) bool { return t.DueDate == date }), nil
}

// OverdueTasks returns open tasks due before today.
func (m *MockStore) OverdueTasks(ctx context.Context, today string) ([]*Task, error) {
	if err := m.fail("OverdueTasks"); err != nil {
		return nil, err
	}
	return m.filterTasks(func(t *Task) bool { return t.DueDate != "" && t.DueDate < today }), nil
}

// HighPriorityTasks returns open high-priority tasks.
func (m *MockStore) HighPriorityTasks(ctx context.Context) ([]*Task, error) {
	if err := m.fail("HighPriorityTasks"); err != nil {
		return nil, err
	}
	return m.filterTasks(func(t *Task) bool { return t.Priority == PriorityHigh }), nil
}

func (m *MockStore) filterTasks(keep func(*Task) bool) []*Task {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []*Task{}
	for _, t := range m.tasks {
		if !t.Completed && keep(t) {
			c := *t
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DueDate != out[j].DueDate {
			return out[i].DueDate < out[j].DueDate
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// CreateProject stores a project.
func (m *MockStore) CreateProject(ctx context.Context, p *Project) error {
	if err := m.fail("CreateProject"); err != nil {
		return err
	}
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.Status == "" {
		p.Status = ProjectBacklog
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	c := *p
	m.projects[c.ID] = &c
	return nil
}

// ProjectsByStatus returns projects in one board column.
func (m *MockStore) ProjectsByStatus(ctx context.Context, status string) ([]*Project, error) {
	if err := m.fail("ProjectsByStatus"); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []*Project{}
	for _, p := range m.projects {
		if p.Status == status {
			c := *p
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

// CreateCalendarEvent stores an event.
func (m *MockStore) CreateCalendarEvent(ctx context.Context, ev *CalendarEvent) error {
	if err := m.fail("CreateCalendarEvent"); err != nil {
		return err
	}
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.EndsAt.IsZero() {
		ev.EndsAt = ev.StartsAt
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	c := *ev
	m.events = append(m.events, &c)
	return nil
}

// EventsBetween returns events starting in [from, to).
func (m *MockStore) EventsBetween(ctx context.Context, from, to time.Time) ([]*CalendarEvent, error) {
	if err := m.fail("EventsBetween"); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []*CalendarEvent{}
	for _, ev := range m.events {
		if !ev.StartsAt.Before(from) && ev.StartsAt.Before(to) {
			c := *ev
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartsAt.Before(out[j].StartsAt) })
	return out, nil
}

// GetSetting returns a stored setting.
func (m *MockStore) GetSetting(ctx context.Context, key string) (string, error) {
	if err := m.fail("GetSetting"); err != nil {
		return "", err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.settings[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

// SetSetting stores a setting.
func (m *MockStore) SetSetting(ctx context.Context, key, value string) error {
	if err := m.fail("SetSetting"); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings[key] = value
	return nil
}

// Close is a no-op.
func (m *MockStore) Close() error {
	return nil
}

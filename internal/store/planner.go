// ABOUTME: Task and project persistence backing the daily briefing
// ABOUTME: Due-today, overdue, and high-priority task queries plus projects by board status

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreateTask inserts a task. Priority defaults to medium.
func (s *SQLiteStore) CreateTask(ctx context.Context, task *Task) error {
	if task.ID == "" {
		task.ID = uuid.New().String()
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now()
	}
	if task.Priority == "" {
		task.Priority = PriorityMedium
	}
	if task.DueDate != "" {
		if _, err := time.Parse(DateLayout, task.DueDate); err != nil {
			return fmt.Errorf("due date %q: %w", task.DueDate, err)
		}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, title, priority, due_date, completed, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, task.ID, task.Title, task.Priority, nullString(task.DueDate), boolToInt(task.Completed), formatTime(task.CreatedAt))
	if err != nil {
		return fmt.Errorf("inserting task: %w", err)
	}
	return nil
}

// CompleteTask marks a task done.
func (s *SQLiteStore) CompleteTask(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE tasks SET completed = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("completing task: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// TasksDueOn returns open tasks due on date (YYYY-MM-DD).
func (s *SQLiteStore) TasksDueOn(ctx context.Context, date string) ([]*Task, error) {
	return s.queryTasks(ctx, `due_date = ? AND completed = 0`, date)
}

// OverdueTasks returns open tasks due before today (YYYY-MM-DD).
func (s *SQLiteStore) OverdueTasks(ctx context.Context, today string) ([]*Task, error) {
	return s.queryTasks(ctx, `due_date IS NOT NULL AND due_date < ? AND completed = 0`, today)
}

// HighPriorityTasks returns open tasks marked high priority.
func (s *SQLiteStore) HighPriorityTasks(ctx context.Context) ([]*Task, error) {
	return s.queryTasks(ctx, `priority = ? AND completed = 0`, PriorityHigh)
}

func (s *SQLiteStore) queryTasks(ctx context.Context, where string, args ...any) ([]*Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, priority, due_date, completed, created_at
		FROM tasks
		WHERE `+where+`
		ORDER BY due_date ASC, created_at ASC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("querying tasks: %w", err)
	}
	defer rows.Close()

	tasks := []*Task{}
	for rows.Next() {
		var t Task
		var dueDate sql.NullString
		var completed int
		var createdAt string
		if err := rows.Scan(&t.ID, &t.Title, &t.Priority, &dueDate, &completed, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning task row: %w", err)
		}
		t.DueDate = dueDate.String
		t.Completed = completed != 0
		if t.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		tasks = append(tasks, &t)
	}

	return tasks, rows.Err()
}

// CreateProject inserts a project card. Status defaults to backlog and
// priority to medium.
func (s *SQLiteStore) CreateProject(ctx context.Context, p *Project) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	if p.Status == "" {
		p.Status = ProjectBacklog
	}
	if p.Priority == "" {
		p.Priority = PriorityMedium
	}

	var tags any
	if len(p.Tags) > 0 {
		b, err := json.Marshal(p.Tags)
		if err != nil {
			return fmt.Errorf("marshaling tags: %w", err)
		}
		tags = string(b)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO projects (id, title, description, status, priority, assignee, tags, position, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.Title, nullString(p.Description), p.Status, p.Priority, nullString(p.Assignee), tags, p.Position, formatTime(p.CreatedAt))
	if err != nil {
		return fmt.Errorf("inserting project: %w", err)
	}
	return nil
}

// ProjectsByStatus returns the projects in one board column, in board order.
func (s *SQLiteStore) ProjectsByStatus(ctx context.Context, status string) ([]*Project, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, description, status, priority, assignee, tags, position, created_at
		FROM projects
		WHERE status = ?
		ORDER BY position ASC, created_at ASC
	`, status)
	if err != nil {
		return nil, fmt.Errorf("querying projects: %w", err)
	}
	defer rows.Close()

	projects := []*Project{}
	for rows.Next() {
		var p Project
		var description, assignee, tags sql.NullString
		var createdAt string
		if err := rows.Scan(&p.ID, &p.Title, &description, &p.Status, &p.Priority, &assignee, &tags, &p.Position, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning project row: %w", err)
		}
		p.Description = description.String
		p.Assignee = assignee.String
		if tags.Valid && tags.String != "" {
			if err := json.Unmarshal([]byte(tags.String), &p.Tags); err != nil {
				return nil, fmt.Errorf("unmarshaling tags: %w", err)
			}
		}
		if p.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		projects = append(projects, &p)
	}

	return projects, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

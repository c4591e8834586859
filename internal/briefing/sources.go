// ABOUTME: Gathers task, project and calendar facts for a briefing from the local store
// ABOUTME: Each section is read independently; a failed section is logged and left out

package briefing

import (
	"context"
	"math"
	"time"

	"github.com/2389/coven-dashboard/internal/store"
)

// Sources are the stores a briefing reads. Either may be nil, in which case
// its sections are omitted.
type Sources struct {
	Planner  store.PlannerStore
	Calendar store.CalendarStore
}

func (s Sources) configured() int {
	n := 0
	if s.Planner != nil {
		n += 2 // tasks and projects
	}
	if s.Calendar != nil {
		n++
	}
	return n
}

// gather reads every configured section. ok is false only when sources were
// configured and every one of them failed.
func (a *Aggregator) gather(ctx context.Context, now time.Time) (f *facts, ok bool) {
	f = &facts{now: now}
	failed := 0

	if a.sources.Calendar != nil {
		c, err := a.calendarFacts(ctx, now)
		if err != nil {
			a.logger.Warn("failed to read calendar", "error", err)
			failed++
		} else {
			f.calendar = c
		}
	}

	if a.sources.Planner != nil {
		t, err := a.taskFacts(ctx, now)
		if err != nil {
			a.logger.Warn("failed to read tasks", "error", err)
			failed++
		} else {
			f.tasks = t
		}

		p, err := a.projectFacts(ctx)
		if err != nil {
			a.logger.Warn("failed to read projects", "error", err)
			failed++
		} else {
			f.projects = p
		}
	}

	total := a.sources.configured()
	return f, total == 0 || failed < total
}

func (a *Aggregator) calendarFacts(ctx context.Context, now time.Time) (*calendarFacts, error) {
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	events, err := a.sources.Calendar.EventsBetween(ctx, start, start.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}

	c := &calendarFacts{events: len(events)}
	for _, ev := range events {
		// Meetings already underway count as next until they end.
		end := ev.EndsAt
		if end.IsZero() {
			end = ev.StartsAt
		}
		if end.Before(now) {
			continue
		}
		c.next = &meeting{
			summary: ev.Summary,
			minutes: int(math.Round(ev.StartsAt.Sub(now).Minutes())),
		}
		break
	}
	return c, nil
}

func (a *Aggregator) taskFacts(ctx context.Context, now time.Time) (*taskFacts, error) {
	today := now.Format(store.DateLayout)
	p := a.sources.Planner

	due, err := p.TasksDueOn(ctx, today)
	if err != nil {
		return nil, err
	}
	overdue, err := p.OverdueTasks(ctx, today)
	if err != nil {
		return nil, err
	}
	high, err := p.HighPriorityTasks(ctx)
	if err != nil {
		return nil, err
	}
	return &taskFacts{dueToday: len(due), overdue: len(overdue), high: len(high)}, nil
}

func (a *Aggregator) projectFacts(ctx context.Context) (*projectFacts, error) {
	p := a.sources.Planner

	active, err := p.ProjectsByStatus(ctx, store.ProjectInProgress)
	if err != nil {
		return nil, err
	}
	blocked, err := p.ProjectsByStatus(ctx, store.ProjectBlocked)
	if err != nil {
		return nil, err
	}
	return &projectFacts{active: len(active), blocked: len(blocked)}, nil
}

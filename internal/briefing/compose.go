// ABOUTME: Text composition for daily briefings: greeting, context lines, template and fallback
// ABOUTME: Pure functions over gathered facts so wording can be tested without a store or gateway

package briefing

import (
	"fmt"
	"strings"
	"time"
)

// Period is the part of the day a briefing is written for.
type Period string

const (
	Morning   Period = "morning"
	Afternoon Period = "afternoon"
	Evening   Period = "evening"
	Night     Period = "night"
)

// PeriodAt classifies a local time of day.
func PeriodAt(t time.Time) Period {
	switch h := t.Hour(); {
	case h < 12:
		return Morning
	case h < 17:
		return Afternoon
	case h < 22:
		return Evening
	default:
		return Night
	}
}

// Greeting returns the salutation for a period.
func Greeting(p Period) string {
	switch p {
	case Morning:
		return "Good morning"
	case Afternoon:
		return "Good afternoon"
	default:
		return "Good evening"
	}
}

// SignOff returns the closing line for a period.
func SignOff(p Period) string {
	switch p {
	case Morning:
		return "Let's make it a great day! 🚀"
	case Afternoon:
		return "Keep up the great work! 💪"
	default:
		return "Time to wind down. 🌙"
	}
}

// FormatCountdown renders minutes until a meeting starts.
func FormatCountdown(minutes int) string {
	switch {
	case minutes < 0:
		return "In progress"
	case minutes == 0:
		return "Starting now"
	case minutes < 60:
		return fmt.Sprintf("%dm", minutes)
	}
	hours, mins := minutes/60, minutes%60
	if mins > 0 {
		return fmt.Sprintf("%dh %dm", hours, mins)
	}
	return fmt.Sprintf("%dh", hours)
}

type meeting struct {
	summary string
	minutes int
}

type calendarFacts struct {
	events int
	next   *meeting
}

type taskFacts struct {
	dueToday int
	overdue  int
	high     int
}

type projectFacts struct {
	active  int
	blocked int
}

// facts is everything gathered for one briefing. A nil section was not
// configured or could not be read.
type facts struct {
	now      time.Time
	calendar *calendarFacts
	tasks    *taskFacts
	projects *projectFacts
}

func (f *facts) period() Period { return PeriodAt(f.now) }

// contextLines is the compact summary handed to the assistant.
func contextLines(f *facts) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Today is %s.\n\n", f.now.Format("Monday, January 2"))

	if c := f.calendar; c != nil {
		if c.events > 0 {
			fmt.Fprintf(&b, "📅 Calendar: %d events today\n", c.events)
		} else {
			b.WriteString("📅 Calendar: No events scheduled today\n")
		}
		if c.next != nil {
			fmt.Fprintf(&b, "⏰ Next meeting: \"%s\" in %s\n", c.next.summary, FormatCountdown(c.next.minutes))
		}
	}

	if t := f.tasks; t != nil {
		if t.overdue > 0 {
			fmt.Fprintf(&b, "⚠️ %d overdue tasks need attention!\n", t.overdue)
		}
		if t.dueToday > 0 {
			fmt.Fprintf(&b, "✅ %d tasks due today\n", t.dueToday)
		}
		if t.high > 0 {
			fmt.Fprintf(&b, "🔥 %d high-priority tasks\n", t.high)
		}
	}

	if p := f.projects; p != nil {
		if p.active > 0 {
			fmt.Fprintf(&b, "📊 %d active projects\n", p.active)
		}
		if p.blocked > 0 {
			fmt.Fprintf(&b, "🚧 %d blocked projects need unblocking\n", p.blocked)
		}
	}

	return b.String()
}

func prompt(userName, context string) string {
	return fmt.Sprintf(`Generate a personalized morning briefing for %s. Be concise, actionable, and friendly.

%s
Format your response as a brief, conversational briefing that:
1. Starts with a warm greeting
2. Highlights the most important 2-3 things for today
3. Mentions any urgent items (overdue tasks, soon meetings)
4. Ends with an encouraging note

Keep it under 100 words. Be specific with numbers and times.`, userName, context)
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

// templateText writes the briefing without the assistant.
func templateText(userName string, f *facts) string {
	var parts []string

	if c := f.calendar; c != nil {
		if c.events > 0 {
			parts = append(parts, fmt.Sprintf("You have %d %s today", c.events, plural(c.events, "meeting", "meetings")))
			if c.next != nil {
				parts = append(parts, fmt.Sprintf("starting with \"%s\" in %s", c.next.summary, FormatCountdown(c.next.minutes)))
			}
		} else {
			parts = append(parts, "Your calendar is clear today")
		}
	}

	if t := f.tasks; t != nil {
		if t.overdue > 0 {
			parts = append(parts, fmt.Sprintf("**%d overdue tasks** need your attention", t.overdue))
		} else if t.dueToday > 0 {
			parts = append(parts, fmt.Sprintf("%d tasks are due today", t.dueToday))
		}
	}

	if p := f.projects; p != nil && p.blocked > 0 {
		parts = append(parts, fmt.Sprintf("%d %s blocked", p.blocked, plural(p.blocked, "project is", "projects are")))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s! ", Greeting(f.period()), userName)
	if len(parts) > 0 {
		b.WriteString(strings.Join(parts, ". "))
		b.WriteString(".")
	} else {
		b.WriteString("You have a clear schedule today. Perfect time for focused work!")
	}
	b.WriteString(" ")
	b.WriteString(SignOff(f.period()))
	return b.String()
}

// fallbackText is used when no data could be gathered at all.
func fallbackText(userName string, now time.Time) string {
	return fmt.Sprintf("%s %s! Ready to tackle the day? Check your calendar and tasks to see what's ahead. 🎯",
		Greeting(PeriodAt(now)), userName)
}

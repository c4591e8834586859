// ABOUTME: Tests for briefing wording helpers
// ABOUTME: Countdown formatting and time-of-day greetings

package briefing

import (
	"testing"
	"time"
)

func TestFormatCountdown(t *testing.T) {
	tests := []struct {
		minutes int
		want    string
	}{
		{-5, "In progress"},
		{0, "Starting now"},
		{1, "1m"},
		{59, "59m"},
		{60, "1h"},
		{90, "1h 30m"},
		{125, "2h 5m"},
		{180, "3h"},
	}
	for _, tt := range tests {
		if got := FormatCountdown(tt.minutes); got != tt.want {
			t.Errorf("FormatCountdown(%d) = %q, want %q", tt.minutes, got, tt.want)
		}
	}
}

func TestGreetingByHour(t *testing.T) {
	tests := []struct {
		hour     int
		period   Period
		greeting string
		signOff  string
	}{
		{0, Morning, "Good morning", "Let's make it a great day! 🚀"},
		{11, Morning, "Good morning", "Let's make it a great day! 🚀"},
		{12, Afternoon, "Good afternoon", "Keep up the great work! 💪"},
		{16, Afternoon, "Good afternoon", "Keep up the great work! 💪"},
		{17, Evening, "Good evening", "Time to wind down. 🌙"},
		{22, Night, "Good evening", "Time to wind down. 🌙"},
	}
	for _, tt := range tests {
		at := time.Date(2026, 3, 10, tt.hour, 30, 0, 0, time.UTC)
		p := PeriodAt(at)
		if p != tt.period {
			t.Errorf("PeriodAt(%02d:30) = %s, want %s", tt.hour, p, tt.period)
		}
		if g := Greeting(p); g != tt.greeting {
			t.Errorf("Greeting(%s) = %q, want %q", p, g, tt.greeting)
		}
		if s := SignOff(p); s != tt.signOff {
			t.Errorf("SignOff(%s) = %q, want %q", p, s, tt.signOff)
		}
	}
}

func TestNextMeetingInProgress(t *testing.T) {
	f := &facts{
		now:      time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC),
		calendar: &calendarFacts{events: 1, next: &meeting{summary: "1:1", minutes: -10}},
	}
	want := "Good afternoon Sam! You have 1 meeting today. starting with \"1:1\" in In progress. Keep up the great work! 💪"
	if got := templateText("Sam", f); got != want {
		t.Errorf("templateText() = %q, want %q", got, want)
	}
}

package settlement

import (
	"fmt"
	"strings"
	"time"
)

// Window is an inclusive reporting period.
type Window struct {
	From time.Time
	To   time.Time
}

// Contains reports whether t falls within the window, both ends included.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.From) && !t.After(w.To)
}

// Label names the window for display. Whole calendar months read
// "October 2026"; any other span reads "2026-10-01 - 2026-10-15".
func (w Window) Label() string {
	if m := MonthWindow(w.From); w.From.Equal(m.From) && w.To.Equal(m.To) {
		return w.From.Format("January 2006")
	}
	return w.From.Format("2006-01-02") + " - " + w.To.Format("2006-01-02")
}

// MonthWindow returns the calendar month containing t, from its first
// instant to its last nanosecond, in t's location.
func MonthWindow(t time.Time) Window {
	from := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	to := from.AddDate(0, 1, 0).Add(-time.Nanosecond)
	return Window{From: from, To: to}
}

// ParseMonth parses "YYYY-MM" into the month window in loc.
func ParseMonth(s string, loc *time.Location) (Window, error) {
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation("2006-01", strings.TrimSpace(s), loc)
	if err != nil {
		return Window{}, fmt.Errorf("invalid month %q, want YYYY-MM", s)
	}
	return MonthWindow(t), nil
}

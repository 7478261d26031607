package ports

import (
	"context"
	"time"

	"combolift/domain/combo"
)

// Window bounds the engagement rows fed into one analysis run
type Window struct {
	From time.Time
	To   time.Time
}

// TrailingWindow returns the window of the last days ending at now
func TrailingWindow(now time.Time, days int) Window {
	return Window{From: now.AddDate(0, 0, -days), To: now}
}

// Contains reports whether t falls inside [From, To)
func (w Window) Contains(t time.Time) bool {
	if !w.From.IsZero() && t.Before(w.From) {
		return false
	}
	if !w.To.IsZero() && !t.Before(w.To) {
		return false
	}
	return true
}

// EngagementLoader supplies the filtered rowset for one analysis window.
// Implementations own paging; callers receive the complete table.
type EngagementLoader interface {
	LoadEngagement(ctx context.Context, window Window) ([]combo.EngagementRow, error)
}

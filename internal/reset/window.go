package reset

import "time"

// Window is a half-open reminder interval [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

// WindowBefore builds the window that opens lead before anchor and stays open for width.
func WindowBefore(anchor time.Time, lead, width time.Duration) Window {
	start := anchor.Add(-lead)
	return Window{Start: start, End: start.Add(width)}
}

func (w Window) Contains(now time.Time) bool { return IsInWindow(now, w.Start, w.End) }

func (w Window) Closed(now time.Time) bool { return HasWindowClosed(now, w.End) }

// IsInWindow reports start <= now < end.
func IsInWindow(now, start, end time.Time) bool {
	return !now.Before(start) && now.Before(end)
}

// HasWindowClosed reports now >= end.
func HasWindowClosed(now, end time.Time) bool {
	return !now.Before(end)
}

// DailyAnchor returns the daily reset instant whose reminder window is the
// current or the next one: the first reset strictly after now+lead-width.
// The window of the returned anchor contains now iff anchor <= now+lead.
func DailyAnchor(tod TimeOfDay, now time.Time, lead, width time.Duration) (time.Time, error) {
	return ComputeNextOccurrence(tod, Daily, now.Add(lead-width), nil)
}

// DailyTag identifies the calendar occurrence of a daily reset.
func DailyTag(anchor time.Time) string {
	return anchor.Format("2006-01-02")
}

// WeeklyTag identifies a weekly reminder window by its opening hour.
func WeeklyTag(w Window) string {
	return w.Start.Format("2006-01-02-15")
}

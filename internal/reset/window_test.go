package reset

import (
	"testing"
	"time"
)

func TestIsInWindowBoundaries(t *testing.T) {
	start := time.Date(2024, 1, 1, 18, 0, 0, 0, time.UTC)
	end := start.Add(time.Minute)

	cases := []struct {
		name string
		now  time.Time
		in   bool
	}{
		{"before", start.Add(-time.Nanosecond), false},
		{"at start", start, true},
		{"inside", start.Add(30 * time.Second), true},
		{"just before end", end.Add(-time.Nanosecond), true},
		{"at end", end, false},
		{"after", end.Add(time.Second), false},
	}
	for _, tc := range cases {
		if got := IsInWindow(tc.now, start, end); got != tc.in {
			t.Fatalf("%s: IsInWindow = %v, want %v", tc.name, got, tc.in)
		}
	}

	if HasWindowClosed(end.Add(-time.Nanosecond), end) {
		t.Fatalf("window reported closed before end")
	}
	if !HasWindowClosed(end, end) {
		t.Fatalf("window not closed at end")
	}
}

func TestWindowBefore(t *testing.T) {
	next := time.Date(2024, 1, 6, 20, 0, 0, 0, time.UTC)
	w := WindowBefore(next, 48*time.Hour, 5*time.Minute)
	if want := time.Date(2024, 1, 4, 20, 0, 0, 0, time.UTC); !w.Start.Equal(want) {
		t.Fatalf("start = %v, want %v", w.Start, want)
	}
	if want := time.Date(2024, 1, 4, 20, 5, 0, 0, time.UTC); !w.End.Equal(want) {
		t.Fatalf("end = %v, want %v", w.End, want)
	}
	if got := WeeklyTag(w); got != "2024-01-04-20" {
		t.Fatalf("tag = %q", got)
	}
}

func TestDailyAnchor(t *testing.T) {
	loc := mustZone(t)
	tod := TimeOfDay{20, 0}
	lead, width := 2*time.Hour, time.Minute
	today := time.Date(2024, 1, 1, 20, 0, 0, 0, loc)
	tomorrow := today.AddDate(0, 0, 1)

	cases := []struct {
		name   string
		now    time.Time
		anchor time.Time
		in     bool
	}{
		{"morning", time.Date(2024, 1, 1, 9, 0, 0, 0, loc), today, false},
		{"just before window", time.Date(2024, 1, 1, 17, 59, 59, 0, loc), today, false},
		{"window start", time.Date(2024, 1, 1, 18, 0, 0, 0, loc), today, true},
		{"inside window", time.Date(2024, 1, 1, 18, 0, 45, 0, loc), today, true},
		{"window end", time.Date(2024, 1, 1, 18, 1, 0, 0, loc), tomorrow, false},
		{"after reset", time.Date(2024, 1, 1, 20, 30, 0, 0, loc), tomorrow, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			anchor, err := DailyAnchor(tod, tc.now, lead, width)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !anchor.Equal(tc.anchor) {
				t.Fatalf("anchor = %v, want %v", anchor, tc.anchor)
			}
			if got := WindowBefore(anchor, lead, width).Contains(tc.now); got != tc.in {
				t.Fatalf("in window = %v, want %v", got, tc.in)
			}
		})
	}
	if got := DailyTag(today); got != "2024-01-01" {
		t.Fatalf("daily tag = %q", got)
	}
}

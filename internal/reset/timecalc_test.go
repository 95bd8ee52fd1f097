package reset

import (
	"errors"
	"testing"
	"time"
)

func mustZone(t *testing.T) *time.Location {
	t.Helper()
	loc, err := LoadZone("")
	if err != nil {
		t.Fatalf("load zone: %v", err)
	}
	return loc
}

func weekdayPtr(wd time.Weekday) *time.Weekday { return &wd }

func TestComputeNextOccurrenceDailyScenarios(t *testing.T) {
	loc := mustZone(t)
	tod := TimeOfDay{Hour: 20, Minute: 0}

	cases := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{"before reset", time.Date(2024, 1, 1, 19, 59, 30, 0, loc), time.Date(2024, 1, 1, 20, 0, 0, 0, loc)},
		{"after reset", time.Date(2024, 1, 1, 20, 0, 1, 0, loc), time.Date(2024, 1, 2, 20, 0, 0, 0, loc)},
		{"exactly at reset", time.Date(2024, 1, 1, 20, 0, 0, 0, loc), time.Date(2024, 1, 2, 20, 0, 0, 0, loc)},
		{"month rollover", time.Date(2024, 1, 31, 21, 0, 0, 0, loc), time.Date(2024, 2, 1, 20, 0, 0, 0, loc)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ComputeNextOccurrence(tod, Daily, tc.now, nil)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Equal(tc.want) {
				t.Fatalf("next = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestComputeNextOccurrenceWeeklyScenarios(t *testing.T) {
	loc := mustZone(t)
	// 2024-01-01 is a Monday.
	cases := []struct {
		name    string
		now     time.Time
		tod     TimeOfDay
		weekday time.Weekday
		want    time.Time
	}{
		{"same day passed", time.Date(2024, 1, 1, 10, 0, 0, 0, loc), TimeOfDay{9, 0}, time.Monday, time.Date(2024, 1, 8, 9, 0, 0, 0, loc)},
		{"same day ahead", time.Date(2024, 1, 1, 8, 0, 0, 0, loc), TimeOfDay{9, 0}, time.Monday, time.Date(2024, 1, 1, 9, 0, 0, 0, loc)},
		{"same day exact", time.Date(2024, 1, 1, 9, 0, 0, 0, loc), TimeOfDay{9, 0}, time.Monday, time.Date(2024, 1, 8, 9, 0, 0, 0, loc)},
		{"later this week", time.Date(2024, 1, 1, 10, 0, 0, 0, loc), TimeOfDay{20, 0}, time.Thursday, time.Date(2024, 1, 4, 20, 0, 0, 0, loc)},
		{"wraps to next week", time.Date(2024, 1, 3, 10, 0, 0, 0, loc), TimeOfDay{20, 0}, time.Monday, time.Date(2024, 1, 8, 20, 0, 0, 0, loc)},
		{"sunday from saturday", time.Date(2024, 1, 6, 23, 30, 0, 0, loc), TimeOfDay{0, 15}, time.Sunday, time.Date(2024, 1, 7, 0, 15, 0, 0, loc)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ComputeNextOccurrence(tc.tod, Weekly, tc.now, weekdayPtr(tc.weekday))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Equal(tc.want) {
				t.Fatalf("next = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestComputeNextOccurrenceBounds(t *testing.T) {
	loc := mustZone(t)
	ranges := []struct {
		name  string
		start time.Time
		days  int
	}{
		{"utc", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), 14},
		{"spring forward", time.Date(2024, 3, 4, 0, 0, 0, 0, loc), 9},
		{"fall back", time.Date(2024, 10, 28, 0, 0, 0, 0, loc), 9},
	}
	tods := []TimeOfDay{{0, 0}, {1, 30}, {2, 30}, {9, 0}, {20, 0}, {23, 59}}
	for _, r := range ranges {
		t.Run(r.name, func(t *testing.T) {
			for step := 0; step < r.days*24*60; step += 37 {
				now := r.start.Add(time.Duration(step)*time.Minute + 13*time.Second)
				_, offset := now.Zone()
				fixed := time.FixedZone("", offset)
				for _, tod := range tods {
					got, err := ComputeNextOccurrence(tod, Daily, now, nil)
					if err != nil {
						t.Fatalf("daily: %v", err)
					}
					if !got.After(now) || got.After(now.Add(24*time.Hour)) {
						t.Fatalf("daily next %v out of (now, now+24h] for now=%v", got, now)
					}
					if got.Location() != now.Location() {
						t.Fatalf("daily next %v not in %v", got, now.Location())
					}
					for wd := time.Sunday; wd <= time.Saturday; wd++ {
						got, err := ComputeNextOccurrence(tod, Weekly, now, weekdayPtr(wd))
						if err != nil {
							t.Fatalf("weekly: %v", err)
						}
						if !got.After(now) || got.After(now.Add(7*24*time.Hour)) {
							t.Fatalf("weekly next %v out of (now, now+7d] for now=%v wd=%v", got, now, wd)
						}
						at := got.In(fixed)
						if at.Weekday() != wd || at.Hour() != tod.Hour || at.Minute() != tod.Minute {
							t.Fatalf("weekly next %v does not match %v %v at offset %d", got, wd, tod, offset)
						}
					}
				}
			}
		})
	}
}

func TestComputeNextOccurrenceIsPure(t *testing.T) {
	loc := mustZone(t)
	now := time.Date(2024, 5, 17, 13, 45, 0, 0, loc)
	wd := time.Wednesday
	a, err1 := ComputeNextOccurrence(TimeOfDay{20, 0}, Weekly, now, &wd)
	b, err2 := ComputeNextOccurrence(TimeOfDay{20, 0}, Weekly, now, &wd)
	if err1 != nil || err2 != nil {
		t.Fatalf("errors: %v %v", err1, err2)
	}
	if !a.Equal(b) {
		t.Fatalf("results differ: %v vs %v", a, b)
	}
}

func TestComputeNextOccurrenceAcrossDST(t *testing.T) {
	loc := mustZone(t)
	cases := []struct {
		name     string
		now      time.Time
		freq     Frequency
		weekday  *time.Weekday
		distance time.Duration
		wallHour int
	}{
		// 2024-03-10 02:00 EST -> 03:00 EDT.
		{"daily spring forward", time.Date(2024, 3, 9, 20, 30, 0, 0, loc), Daily, nil, 23*time.Hour + 30*time.Minute, 21},
		// 2024-11-03 02:00 EDT -> 01:00 EST.
		{"daily fall back", time.Date(2024, 11, 2, 20, 0, 30, 0, loc), Daily, nil, 23*time.Hour + 59*time.Minute + 30*time.Second, 19},
		{"weekly fall back", time.Date(2024, 10, 27, 20, 0, 30, 0, loc), Weekly, weekdayPtr(time.Sunday), 7*24*time.Hour - 30*time.Second, 19},
		{"daily after fall back", time.Date(2024, 11, 3, 12, 0, 0, 0, loc), Daily, nil, 8 * time.Hour, 20},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ComputeNextOccurrence(TimeOfDay{20, 0}, tc.freq, tc.now, tc.weekday)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if d := got.Sub(tc.now); d != tc.distance {
				t.Fatalf("distance = %v, want %v (next %v)", d, tc.distance, got)
			}
			if got.Hour() != tc.wallHour || got.Minute() != 0 {
				t.Fatalf("next = %v, want %02d:00 local", got, tc.wallHour)
			}
		})
	}
}

func TestNextWallClockKeepsLocalTime(t *testing.T) {
	loc := mustZone(t)
	now := time.Date(2024, 11, 2, 20, 0, 30, 0, loc)
	got, err := NextWallClock(TimeOfDay{20, 0}, Daily, now, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := time.Date(2024, 11, 3, 20, 0, 0, 0, loc)
	if !got.Equal(want) {
		t.Fatalf("next = %v, want %v", got, want)
	}
	if d := got.Sub(now); d != 24*time.Hour+59*time.Minute+30*time.Second {
		t.Fatalf("distance = %v", d)
	}
}

func TestComputeNextOccurrenceErrors(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	if _, err := ComputeNextOccurrence(TimeOfDay{20, 0}, Weekly, now, nil); !errors.Is(err, ErrMissingWeekday) {
		t.Fatalf("weekly without weekday: err = %v, want ErrMissingWeekday", err)
	}
	if _, err := ComputeNextOccurrence(TimeOfDay{24, 0}, Daily, now, nil); !errors.Is(err, ErrInvalidTimeFormat) {
		t.Fatalf("hour 24: err = %v, want ErrInvalidTimeFormat", err)
	}
	if _, err := ComputeNextOccurrence(TimeOfDay{10, 60}, Daily, now, nil); !errors.Is(err, ErrInvalidTimeFormat) {
		t.Fatalf("minute 60: err = %v, want ErrInvalidTimeFormat", err)
	}
	bad := time.Weekday(9)
	if _, err := ComputeNextOccurrence(TimeOfDay{10, 0}, Weekly, now, &bad); !errors.Is(err, ErrInvalidWeekday) {
		t.Fatalf("weekday 9: err = %v, want ErrInvalidWeekday", err)
	}
	// Daily ignores any weekday.
	wd := time.Friday
	if _, err := ComputeNextOccurrence(TimeOfDay{10, 0}, Daily, now, &wd); err != nil {
		t.Fatalf("daily with weekday: %v", err)
	}
}

func TestParseTimeOfDay(t *testing.T) {
	good := map[string]TimeOfDay{
		"20:00":   {20, 0},
		"09:05":   {9, 5},
		"9:05":    {9, 5},
		" 23:59 ": {23, 59},
		"00:00":   {0, 0},
	}
	for in, want := range good {
		got, err := ParseTimeOfDay(in)
		if err != nil {
			t.Fatalf("ParseTimeOfDay(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseTimeOfDay(%q) = %v, want %v", in, got, want)
		}
	}
	for _, in := range []string{"", "24:00", "12:60", "ab:cd", "1200", "12:5", "123:00", "-1:00"} {
		if _, err := ParseTimeOfDay(in); !errors.Is(err, ErrInvalidTimeFormat) {
			t.Fatalf("ParseTimeOfDay(%q): err = %v, want ErrInvalidTimeFormat", in, err)
		}
	}
}

func TestParseWeekday(t *testing.T) {
	for in, want := range map[string]time.Weekday{
		"monday":   time.Monday,
		"MONDAY":   time.Monday,
		" Sunday ": time.Sunday,
		"saturday": time.Saturday,
	} {
		got, err := ParseWeekday(in)
		if err != nil || got != want {
			t.Fatalf("ParseWeekday(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseWeekday("funday"); !errors.Is(err, ErrInvalidWeekday) {
		t.Fatalf("funday: err = %v, want ErrInvalidWeekday", err)
	}
	if _, err := ParseWeekday("mon"); !errors.Is(err, ErrInvalidWeekday) {
		t.Fatalf("mon: err = %v, want ErrInvalidWeekday", err)
	}
	if _, err := ParseWeekday("  "); !errors.Is(err, ErrMissingWeekday) {
		t.Fatalf("blank: err = %v, want ErrMissingWeekday", err)
	}
}

func TestRollForward(t *testing.T) {
	loc := mustZone(t)
	stored := time.Date(2024, 1, 4, 20, 0, 0, 0, loc) // Thursday

	now := time.Date(2024, 1, 3, 12, 0, 0, 0, loc)
	if got := RollForward(stored, now); !got.Equal(stored) {
		t.Fatalf("future occurrence changed: %v", got)
	}

	now = time.Date(2024, 2, 2, 9, 0, 0, 0, loc)
	got := RollForward(stored, now)
	want := time.Date(2024, 2, 8, 20, 0, 0, 0, loc)
	if !got.Equal(want) {
		t.Fatalf("rolled = %v, want %v", got, want)
	}

	now = time.Date(2024, 1, 4, 20, 0, 0, 0, loc)
	if got := RollForward(stored, now); !got.Equal(stored.AddDate(0, 0, 7)) {
		t.Fatalf("occurrence equal to now must roll: %v", got)
	}
}

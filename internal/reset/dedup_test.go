package reset

import (
	"testing"
	"time"
)

func TestDedupFiresOncePerWindowAtAnyGranularity(t *testing.T) {
	start := time.Date(2024, 1, 1, 18, 0, 0, 0, time.UTC)
	width := time.Minute
	w := Window{Start: start, End: start.Add(width)}
	key := FlagKey{EventID: "daily", Bucket: "2h"}

	for _, step := range []time.Duration{time.Second, 7 * time.Second, 15 * time.Second, 30 * time.Second, 59 * time.Second, time.Minute} {
		for offset := time.Duration(0); offset < step; offset += step/4 + time.Second {
			d := NewDedupState()
			fires := 0
			for now := start.Add(-5*time.Minute + offset); now.Before(start.Add(5 * time.Minute)); now = now.Add(step) {
				if d.Observe(key, w, DailyTag(start), 0, now) == Fire {
					fires++
				}
			}
			if fires != 1 {
				t.Fatalf("step=%v offset=%v: fires = %d, want 1", step, offset, fires)
			}
		}
	}
}

func TestDedupTwoTicksInsideWindow(t *testing.T) {
	start := time.Date(2024, 1, 1, 18, 0, 0, 0, time.UTC)
	w := Window{Start: start, End: start.Add(time.Minute)}
	key := FlagKey{EventID: "e1", Bucket: "48h"}
	d := NewDedupState()

	if got := d.Observe(key, w, "t", 0, start.Add(10*time.Second)); got != Fire {
		t.Fatalf("first tick = %v, want fire", got)
	}
	if got := d.Observe(key, w, "t", 0, start.Add(40*time.Second)); got != AlreadyServed {
		t.Fatalf("second tick = %v, want already_served", got)
	}
	if f, ok := d.Served(key); !ok || f.Tag != "t" {
		t.Fatalf("flag = %+v (ok=%v), want SERVED(t)", f, ok)
	}
}

func TestDedupResetsBeforeNextOccurrence(t *testing.T) {
	day1 := time.Date(2024, 1, 1, 18, 0, 0, 0, time.UTC)
	key := FlagKey{EventID: "daily", Bucket: "2h"}
	d := NewDedupState()

	w1 := Window{Start: day1, End: day1.Add(time.Minute)}
	if d.Observe(key, w1, "2024-01-01", 0, day1) != Fire {
		t.Fatalf("day 1 did not fire")
	}
	// Window closed: the next tick clears the flag even though now is outside any window.
	if got := d.Observe(key, w1, "2024-01-01", 0, w1.End); got != Idle {
		t.Fatalf("tick at end = %v, want idle", got)
	}
	if _, ok := d.Served(key); ok {
		t.Fatalf("flag still SERVED after window close")
	}

	day2 := day1.AddDate(0, 0, 1)
	w2 := Window{Start: day2, End: day2.Add(time.Minute)}
	if d.Observe(key, w2, "2024-01-02", 0, day2.Add(30*time.Second)) != Fire {
		t.Fatalf("day 2 did not fire")
	}
}

func TestDedupDifferentTagFiresAgain(t *testing.T) {
	start := time.Date(2024, 1, 1, 18, 0, 0, 0, time.UTC)
	w := Window{Start: start, End: start.Add(5 * time.Minute)}
	key := FlagKey{EventID: "e", Bucket: "24h"}
	d := NewDedupState()

	if d.Observe(key, w, "a", 0, start) != Fire {
		t.Fatalf("first observation did not fire")
	}
	if d.Observe(key, w, "b", 0, start.Add(time.Minute)) != Fire {
		t.Fatalf("new tag inside window did not fire")
	}
	if d.Observe(key, w, "b", 0, start.Add(2*time.Minute)) != AlreadyServed {
		t.Fatalf("repeat of new tag fired")
	}
}

func TestDedupClearDelay(t *testing.T) {
	start := time.Date(2024, 1, 1, 18, 0, 0, 0, time.UTC)
	w := Window{Start: start, End: start.Add(time.Minute)}
	key := FlagKey{EventID: "daily", Bucket: "2h"}
	d := NewDedupState()

	d.Observe(key, w, "x", 2*time.Hour, start)
	d.Observe(key, w, "x", 2*time.Hour, w.End.Add(time.Hour))
	if _, ok := d.Served(key); !ok {
		t.Fatalf("flag cleared before the clear delay elapsed")
	}
	d.Observe(key, w, "x", 2*time.Hour, w.End.Add(2*time.Hour))
	if _, ok := d.Served(key); ok {
		t.Fatalf("flag not cleared after the clear delay")
	}
}

func TestDedupSweep(t *testing.T) {
	start := time.Date(2024, 1, 1, 18, 0, 0, 0, time.UTC)
	d := NewDedupState()
	short := Window{Start: start, End: start.Add(time.Minute)}
	long := Window{Start: start, End: start.Add(10 * time.Minute)}
	d.Observe(FlagKey{EventID: "gone", Bucket: "48h"}, short, "a", 0, start)
	d.Observe(FlagKey{EventID: "kept", Bucket: "48h"}, long, "b", 0, start)

	if n := d.Sweep(start.Add(2 * time.Minute)); n != 1 {
		t.Fatalf("sweep cleared %d flags, want 1", n)
	}
	snap := d.Snapshot()
	if len(snap) != 1 || snap[0].Key.EventID != "kept" {
		t.Fatalf("snapshot = %+v", snap)
	}
}

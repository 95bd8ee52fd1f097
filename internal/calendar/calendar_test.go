package calendar

import (
	"strings"
	"testing"
	"time"

	ics "github.com/arran4/golang-ical"

	"resetbot/internal/reset"
)

func fixture(t *testing.T) (Settings, time.Time, reset.State) {
	t.Helper()
	loc, err := reset.LoadZone("")
	if err != nil {
		t.Fatal(err)
	}
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, loc) // Monday
	thu := time.Date(2024, 1, 4, 20, 0, 0, 0, loc)
	st := reset.State{
		Daily:  []reset.Event{{Name: "Ursus", Slots: []string{"14:00", "21:00"}}},
		Weekly: []reset.Event{{Name: "Zakum", Time: "20:00", Day: "thursday", Timestamp: thu.Unix()}},
	}
	st.Normalize()
	return Settings{Location: loc, DailyTime: reset.TimeOfDay{Hour: 20}, Name: "Resets"}, now, st
}

func TestUpcomingOrdersAndLimits(t *testing.T) {
	s, now, st := fixture(t)

	got, err := Upcoming(st, s, now, 24*time.Hour, 0)
	if err != nil {
		t.Fatalf("Upcoming: %v", err)
	}
	want := []string{"14:00", "reset", "21:00"}
	if len(got) != len(want) {
		t.Fatalf("got %d occurrences, want %d: %+v", len(got), len(want), got)
	}
	for i, w := range want {
		if got[i].Label != w {
			t.Fatalf("occurrence %d label = %q, want %q", i, got[i].Label, w)
		}
	}
	if got[1].At.Hour() != 20 {
		t.Fatalf("reset occurrence = %v", got[1].At)
	}

	week, err := Upcoming(st, s, now, 7*24*time.Hour, 0)
	if err != nil {
		t.Fatal(err)
	}
	var zakum int
	for _, o := range week {
		if o.Event.Name == "Zakum" {
			zakum++
			if o.At.Weekday() != time.Thursday || o.At.Hour() != 20 {
				t.Fatalf("weekly occurrence = %v", o.At)
			}
		}
	}
	if zakum != 1 {
		t.Fatalf("weekly occurrences = %d, want 1", zakum)
	}

	first2, _ := Upcoming(st, s, now, 7*24*time.Hour, 2)
	if len(first2) != 2 {
		t.Fatalf("limit ignored: %d", len(first2))
	}
}

func TestUpcomingRollsPassedWeeklyForward(t *testing.T) {
	s, now, st := fixture(t)
	now = now.AddDate(0, 0, 10) // Thursday 2024-01-11, stored Thursday long gone

	got, err := Upcoming(reset.State{Weekly: st.Weekly}, s, now, 7*24*time.Hour, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("got %+v", got)
	}
	want := time.Date(2024, 1, 11, 20, 0, 0, 0, s.Location)
	if !got[0].At.Equal(want) {
		t.Fatalf("At = %v, want %v", got[0].At, want)
	}
}

func TestUpcomingKeepsWallClockAcrossDST(t *testing.T) {
	s, _, _ := fixture(t)
	now := time.Date(2024, 3, 9, 21, 0, 0, 0, s.Location) // DST starts 2024-03-10
	got, err := Upcoming(reset.State{Daily: []reset.Event{{Name: "A", Frequency: reset.Daily}}}, s, now, 48*time.Hour, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d occurrences", len(got))
	}
	for _, o := range got {
		if o.At.Hour() != 20 || o.At.Minute() != 0 {
			t.Fatalf("occurrence drifted: %v", o.At)
		}
	}
}

func TestExportParses(t *testing.T) {
	s, now, st := fixture(t)

	out, err := Export(st, s, now)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	cal, err := ics.ParseCalendar(strings.NewReader(out))
	if err != nil {
		t.Fatalf("ParseCalendar: %v\n%s", err, out)
	}
	events := cal.Events()
	// Ursus: reset + 2 slots, Zakum: 1.
	if len(events) != 4 {
		t.Fatalf("events = %d, want 4\n%s", len(events), out)
	}

	var weekly int
	for _, ev := range events {
		rr := ev.GetProperty(ics.ComponentPropertyRrule)
		if rr == nil {
			t.Fatalf("event without RRULE")
		}
		if strings.Contains(rr.Value, "FREQ=WEEKLY") {
			weekly++
			if sum := ev.GetProperty(ics.ComponentPropertySummary); sum == nil || sum.Value != "Zakum reset" {
				t.Fatalf("weekly summary = %+v", sum)
			}
		}
	}
	if weekly != 1 {
		t.Fatalf("weekly rules = %d", weekly)
	}
	if !strings.Contains(out, "TZID=America/New_York") {
		t.Fatalf("export lacks TZID:\n%s", out)
	}
}

func TestRulesRejectsBadWeekly(t *testing.T) {
	s, now, _ := fixture(t)
	_, err := Rules(reset.Event{Name: "X", Frequency: reset.Weekly, Day: "funday", Time: "20:00"}, s, now)
	if err == nil {
		t.Fatalf("expected error")
	}
}

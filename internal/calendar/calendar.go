// Package calendar expands reset events into concrete occurrences and
// exports them as an iCalendar feed.
//
// Every event maps to one or more recurrence rules: a daily event recurs at
// the shared daily reset time and at each of its slots, a weekly event recurs
// on its weekday. Rules are anchored in the reference zone so the wall-clock
// time survives DST changes.
package calendar

import (
	"fmt"
	"sort"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	"resetbot/internal/reset"
)

const (
	productID   = "-//resetbot//resets//EN"
	eventLength = 30 * time.Minute
	maxPerRule  = 500
)

type Settings struct {
	Location  *time.Location
	DailyTime reset.TimeOfDay
	Name      string
}

// Rule is one recurrence of an event. Suffix tells apart the rules of a
// daily event with slots.
type Rule struct {
	Event  reset.Event
	Suffix string
	Label  string
	Option rrule.ROption
}

// Occurrence is one expanded instance.
type Occurrence struct {
	Event reset.Event
	Label string
	At    time.Time
}

// Rules returns the recurrence rules of e, each starting at its first
// occurrence after now.
func Rules(e reset.Event, s Settings, now time.Time) ([]Rule, error) {
	loc := s.Location
	if loc == nil {
		loc = now.Location()
	}
	now = now.In(loc)

	switch e.Frequency {
	case reset.Daily:
		first, err := reset.NextWallClock(s.DailyTime, reset.Daily, now, nil)
		if err != nil {
			return nil, err
		}
		out := []Rule{{Event: e, Suffix: "reset", Label: "reset", Option: dailyOption(first)}}
		slots, err := e.SlotTimes()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", e.Name, err)
		}
		for _, tod := range slots {
			at, err := reset.NextWallClock(tod, reset.Daily, now, nil)
			if err != nil {
				return nil, err
			}
			out = append(out, Rule{
				Event:  e,
				Suffix: "slot-" + strings.ReplaceAll(tod.String(), ":", ""),
				Label:  tod.String(),
				Option: dailyOption(at),
			})
		}
		return out, nil

	case reset.Weekly:
		first := reset.RollForward(e.NextOccurrence(loc), now)
		if first.IsZero() {
			tod, wd, err := e.Schedule()
			if err != nil {
				return nil, fmt.Errorf("%s: %w", e.Name, err)
			}
			if first, err = reset.NextWallClock(tod, reset.Weekly, now, &wd); err != nil {
				return nil, err
			}
		}
		return []Rule{{Event: e, Suffix: "weekly", Label: "reset", Option: rrule.ROption{
			Freq:      rrule.WEEKLY,
			Byweekday: []rrule.Weekday{weekday(first.Weekday())},
			Byhour:    []int{first.Hour()},
			Byminute:  []int{first.Minute()},
			Bysecond:  []int{0},
			Dtstart:   first,
		}}}, nil

	default:
		return nil, fmt.Errorf("%s: unknown frequency %q", e.Name, e.Frequency)
	}
}

func dailyOption(first time.Time) rrule.ROption {
	return rrule.ROption{
		Freq:     rrule.DAILY,
		Byhour:   []int{first.Hour()},
		Byminute: []int{first.Minute()},
		Bysecond: []int{0},
		Dtstart:  first,
	}
}

func weekday(wd time.Weekday) rrule.Weekday {
	switch wd {
	case time.Monday:
		return rrule.MO
	case time.Tuesday:
		return rrule.TU
	case time.Wednesday:
		return rrule.WE
	case time.Thursday:
		return rrule.TH
	case time.Friday:
		return rrule.FR
	case time.Saturday:
		return rrule.SA
	default:
		return rrule.SU
	}
}

// Upcoming lists occurrences in (now, now+horizon], soonest first, at most
// limit entries (limit <= 0 means no limit). Events whose rules cannot be
// built are skipped and reported in the returned error.
func Upcoming(st reset.State, s Settings, now time.Time, horizon time.Duration, limit int) ([]Occurrence, error) {
	if horizon <= 0 {
		horizon = 7 * 24 * time.Hour
	}
	until := now.Add(horizon)

	var (
		out  []Occurrence
		errs []string
	)
	for _, list := range [][]reset.Event{st.Daily, st.Weekly} {
		for _, e := range list {
			rules, err := Rules(e, s, now)
			if err != nil {
				errs = append(errs, err.Error())
				continue
			}
			for _, r := range rules {
				rr, err := rrule.NewRRule(r.Option)
				if err != nil {
					errs = append(errs, fmt.Sprintf("%s: %v", e.Name, err))
					continue
				}
				times := rr.Between(now, until, true)
				if len(times) > maxPerRule {
					times = times[:maxPerRule]
				}
				for _, t := range times {
					if !t.After(now) {
						continue
					}
					out = append(out, Occurrence{Event: e, Label: r.Label, At: t})
				}
			}
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].At.Equal(out[j].At) {
			return out[i].At.Before(out[j].At)
		}
		return out[i].Event.Key() < out[j].Event.Key()
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	if len(errs) > 0 {
		return out, fmt.Errorf("calendar: %s", strings.Join(errs, "; "))
	}
	return out, nil
}

// Export renders st as an iCalendar document with one recurring VEVENT per rule.
func Export(st reset.State, s Settings, now time.Time) (string, error) {
	loc := s.Location
	if loc == nil {
		loc = now.Location()
	}

	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId(productID)
	if s.Name != "" {
		cal.SetXWRCalName(s.Name)
	}
	cal.SetXWRTimezone(loc.String())

	tzid := &ics.KeyValues{Key: string(ics.ParameterTzid), Value: []string{loc.String()}}
	for _, list := range [][]reset.Event{st.Daily, st.Weekly} {
		for _, e := range list {
			rules, err := Rules(e, s, now)
			if err != nil {
				return "", err
			}
			for _, r := range rules {
				ev := cal.AddEvent(uid(e, r.Suffix))
				ev.SetDtStampTime(now.UTC())
				start := r.Option.Dtstart.In(loc)
				ev.SetProperty(ics.ComponentPropertyDtStart, start.Format(icsLocalFormat), tzid)
				ev.SetProperty(ics.ComponentPropertyDtEnd, start.Add(eventLength).Format(icsLocalFormat), tzid)
				ev.SetSummary(summary(e, r))
				ev.AddRrule(r.Option.RRuleString())
			}
		}
	}
	return cal.Serialize(), nil
}

const icsLocalFormat = "20060102T150405"

func uid(e reset.Event, suffix string) string {
	id := e.ID
	if id == "" {
		id = string(e.Frequency) + ":" + e.Key()
	}
	return strings.NewReplacer(":", "-", " ", "-").Replace(id) + "-" + suffix + "@resetbot"
}

func summary(e reset.Event, r Rule) string {
	name := strings.TrimSpace(e.Name)
	if e.Emoji != "" && !strings.HasPrefix(e.Emoji, "<") && !strings.HasPrefix(e.Emoji, ":") {
		name = e.Emoji + " " + name
	}
	if r.Label != "reset" {
		return name + " (" + r.Label + ")"
	}
	return name + " reset"
}

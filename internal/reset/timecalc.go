package reset

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrInvalidTimeFormat = errors.New("invalid time format")
	ErrInvalidWeekday    = errors.New("invalid weekday")
	ErrMissingWeekday    = errors.New("missing weekday")
)

// Frequency is the recurrence class of an event.
type Frequency string

const (
	Daily  Frequency = "daily"
	Weekly Frequency = "weekly"
)

// TimeOfDay is a wall-clock hour and minute in the reference zone.
type TimeOfDay struct {
	Hour   int
	Minute int
}

func (t TimeOfDay) Valid() bool {
	return t.Hour >= 0 && t.Hour <= 23 && t.Minute >= 0 && t.Minute <= 59
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// On returns the instant at t on the calendar day of day, in day's location.
func (t TimeOfDay) On(day time.Time) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, t.Hour, t.Minute, 0, 0, day.Location())
}

// ParseTimeOfDay parses "HH:MM" (24h). A single-digit hour is accepted.
func ParseTimeOfDay(raw string) (TimeOfDay, error) {
	s := strings.TrimSpace(raw)
	hh, mm, ok := strings.Cut(s, ":")
	if !ok || len(hh) == 0 || len(hh) > 2 || len(mm) != 2 {
		return TimeOfDay{}, fmt.Errorf("%w: %q (want HH:MM)", ErrInvalidTimeFormat, raw)
	}
	h, err := strconv.Atoi(hh)
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidTimeFormat, raw)
	}
	m, err := strconv.Atoi(mm)
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidTimeFormat, raw)
	}
	t := TimeOfDay{Hour: h, Minute: m}
	if !t.Valid() {
		return TimeOfDay{}, fmt.Errorf("%w: %q out of range", ErrInvalidTimeFormat, raw)
	}
	return t, nil
}

var weekdayNames = map[string]time.Weekday{
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
	"sunday":    time.Sunday,
}

// ParseWeekday accepts the seven English weekday names, case-insensitive.
func ParseWeekday(raw string) (time.Weekday, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return 0, ErrMissingWeekday
	}
	wd, ok := weekdayNames[s]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidWeekday, raw)
	}
	return wd, nil
}

// WeekdayName returns the canonical lower-case name stored for wd.
func WeekdayName(wd time.Weekday) string {
	return strings.ToLower(wd.String())
}

// ComputeNextOccurrence returns the first instant strictly after now at tod.
// Day arithmetic runs at now's current UTC offset, so the result is at most
// 24h (Daily) or 7 days (Weekly) ahead even across a DST change; the wall
// clock of the result then shifts by the DST delta. weekday is required for
// Weekly and ignored for Daily.
func ComputeNextOccurrence(tod TimeOfDay, freq Frequency, now time.Time, weekday *time.Weekday) (time.Time, error) {
	_, offset := now.Zone()
	next, err := nextAt(tod, freq, now, weekday, time.FixedZone("", offset))
	if err != nil {
		return time.Time{}, err
	}
	return next.In(now.Location()), nil
}

// NextWallClock is ComputeNextOccurrence with day arithmetic in now's
// location: the result always reads tod on a local clock, and a DST day
// makes it up to an hour further away. Recurrence rules use it.
func NextWallClock(tod TimeOfDay, freq Frequency, now time.Time, weekday *time.Weekday) (time.Time, error) {
	return nextAt(tod, freq, now, weekday, now.Location())
}

func nextAt(tod TimeOfDay, freq Frequency, now time.Time, weekday *time.Weekday, loc *time.Location) (time.Time, error) {
	if !tod.Valid() {
		return time.Time{}, fmt.Errorf("%w: %02d:%02d out of range", ErrInvalidTimeFormat, tod.Hour, tod.Minute)
	}
	now = now.In(loc)
	y, m, d := now.Date()

	switch freq {
	case Daily:
		candidate := time.Date(y, m, d, tod.Hour, tod.Minute, 0, 0, loc)
		if !candidate.After(now) {
			candidate = time.Date(y, m, d+1, tod.Hour, tod.Minute, 0, 0, loc)
		}
		return candidate, nil

	case Weekly:
		if weekday == nil {
			return time.Time{}, ErrMissingWeekday
		}
		target := *weekday
		if target < time.Sunday || target > time.Saturday {
			return time.Time{}, fmt.Errorf("%w: %d", ErrInvalidWeekday, int(target))
		}
		delta := (int(target) - int(now.Weekday()) + 7) % 7
		if delta == 0 && !time.Date(y, m, d, tod.Hour, tod.Minute, 0, 0, loc).After(now) {
			delta = 7
		}
		return time.Date(y, m, d+delta, tod.Hour, tod.Minute, 0, 0, loc), nil

	default:
		return time.Time{}, fmt.Errorf("unknown frequency %q", freq)
	}
}

// RollForward advances a stored weekly occurrence by whole weeks until it is
// strictly after now. Occurrences already in the future are returned as is.
func RollForward(next, now time.Time) time.Time {
	if next.IsZero() || next.After(now) {
		return next
	}
	loc := now.Location()
	next = next.In(loc)
	if weeks := int(now.Sub(next) / (7 * 24 * time.Hour)); weeks > 1 {
		next = next.AddDate(0, 0, 7*(weeks-1))
	}
	for !next.After(now) {
		next = next.AddDate(0, 0, 7)
	}
	return next
}

package reset

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Event is one tracked reset task.
//
// Weekly events persist the human-entered Time/Day next to the resolved
// Timestamp (epoch seconds); both must be rewritten together on edit. Daily
// events use the shared daily reset time and may list extra Slots.
type Event struct {
	ID        string    `json:"id,omitempty"`
	Name      string    `json:"name"`
	Emoji     string    `json:"emoji"`
	Time      string    `json:"time,omitempty"`
	Day       string    `json:"day,omitempty"`
	Timestamp int64     `json:"timestamp,omitempty"`
	Slots     []string  `json:"slots,omitempty"`
	Frequency Frequency `json:"-"`
}

// NameKey is the case-insensitive identity of a name within its frequency class.
func NameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func (e Event) Key() string { return NameKey(e.Name) }

// Schedule parses the weekly time and weekday fields.
func (e Event) Schedule() (TimeOfDay, time.Weekday, error) {
	tod, err := ParseTimeOfDay(e.Time)
	if err != nil {
		return TimeOfDay{}, 0, err
	}
	wd, err := ParseWeekday(e.Day)
	if err != nil {
		return TimeOfDay{}, 0, err
	}
	return tod, wd, nil
}

// NextOccurrence returns the stored weekly timestamp in loc.
func (e Event) NextOccurrence(loc *time.Location) time.Time {
	if e.Timestamp == 0 {
		return time.Time{}
	}
	t := time.Unix(e.Timestamp, 0)
	if loc != nil {
		t = t.In(loc)
	}
	return t
}

// SlotTimes parses the optional extra daily times.
func (e Event) SlotTimes() ([]TimeOfDay, error) {
	out := make([]TimeOfDay, 0, len(e.Slots))
	for _, s := range e.Slots {
		tod, err := ParseTimeOfDay(s)
		if err != nil {
			return nil, err
		}
		out = append(out, tod)
	}
	return out, nil
}

func (e Event) Validate() error {
	if strings.TrimSpace(e.Name) == "" {
		return errors.New("name is required")
	}
	switch e.Frequency {
	case Daily:
		if _, err := e.SlotTimes(); err != nil {
			return fmt.Errorf("%s: slots: %w", e.Name, err)
		}
	case Weekly:
		if _, _, err := e.Schedule(); err != nil {
			return fmt.Errorf("%s: %w", e.Name, err)
		}
		if e.Timestamp <= 0 {
			return fmt.Errorf("%s: missing timestamp", e.Name)
		}
	default:
		return fmt.Errorf("%s: unknown frequency %q", e.Name, e.Frequency)
	}
	return nil
}

// State is the persisted event collection, kept in insertion order.
type State struct {
	Daily  []Event `json:"daily"`
	Weekly []Event `json:"weekly"`
}

// Normalize stamps frequencies, fills derived IDs for records written
// without one and replaces nil lists with empty ones.
func (s *State) Normalize() {
	if s.Daily == nil {
		s.Daily = []Event{}
	}
	if s.Weekly == nil {
		s.Weekly = []Event{}
	}
	for i := range s.Daily {
		s.Daily[i].Frequency = Daily
		if s.Daily[i].ID == "" {
			s.Daily[i].ID = string(Daily) + ":" + s.Daily[i].Key()
		}
	}
	for i := range s.Weekly {
		s.Weekly[i].Frequency = Weekly
		if s.Weekly[i].ID == "" {
			s.Weekly[i].ID = string(Weekly) + ":" + s.Weekly[i].Key()
		}
	}
}

// Clone returns a deep copy; callers may mutate it freely.
func (s State) Clone() State {
	out := State{
		Daily:  make([]Event, len(s.Daily)),
		Weekly: make([]Event, len(s.Weekly)),
	}
	copy(out.Daily, s.Daily)
	copy(out.Weekly, s.Weekly)
	for i := range out.Daily {
		out.Daily[i].Slots = append([]string(nil), s.Daily[i].Slots...)
	}
	for i := range out.Weekly {
		out.Weekly[i].Slots = append([]string(nil), s.Weekly[i].Slots...)
	}
	return out
}

// List returns the events of one frequency class.
func (s *State) List(freq Frequency) *[]Event {
	if freq == Weekly {
		return &s.Weekly
	}
	return &s.Daily
}

// Find looks name up case-insensitively, daily events first.
func (s State) Find(name string) (Frequency, int, bool) {
	key := NameKey(name)
	for i, e := range s.Daily {
		if e.Key() == key {
			return Daily, i, true
		}
	}
	for i, e := range s.Weekly {
		if e.Key() == key {
			return Weekly, i, true
		}
	}
	return "", -1, false
}

func (s State) Len() int { return len(s.Daily) + len(s.Weekly) }

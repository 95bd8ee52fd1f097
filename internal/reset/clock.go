package reset

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"
)

const DefaultZone = "America/New_York"

// Clock yields the current instant in the reference zone.
type Clock interface {
	Now() time.Time
}

type zoneClock struct{ loc *time.Location }

// NewClock returns a wall clock pinned to loc.
func NewClock(loc *time.Location) Clock {
	if loc == nil {
		loc = time.UTC
	}
	return zoneClock{loc: loc}
}

func (c zoneClock) Now() time.Time { return time.Now().In(c.loc) }

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// LoadZone resolves the reference zone, defaulting to America/New_York.
func LoadZone(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultZone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", name, err)
	}
	return loc, nil
}

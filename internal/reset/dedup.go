package reset

import (
	"sort"
	"time"
)

// FlagKey identifies one dedup flag: an event and one of its reminder buckets.
type FlagKey struct {
	EventID string
	Bucket  string
}

// Flag is the SERVED state of a key. Absent keys are UNSERVED.
type Flag struct {
	Tag      string
	ServedAt time.Time
	ClearAt  time.Time
}

type Decision int

const (
	// Idle: now is outside the window, nothing to do.
	Idle Decision = iota
	// Fire: the caller must send exactly one reminder.
	Fire
	// AlreadyServed: the window is open but this occurrence was served.
	AlreadyServed
)

func (d Decision) String() string {
	switch d {
	case Fire:
		return "fire"
	case AlreadyServed:
		return "already_served"
	default:
		return "idle"
	}
}

// DedupState tracks which reminder windows were served.
//
// It lives only in memory and is owned by a single scheduler; it is not safe
// for concurrent use. A restart starts every key UNSERVED again.
type DedupState struct {
	flags map[FlagKey]Flag
}

func NewDedupState() *DedupState {
	return &DedupState{flags: map[FlagKey]Flag{}}
}

// Observe drives the state machine for key at now.
//
// A SERVED flag whose clear time has passed returns to UNSERVED first. Inside
// the window an UNSERVED key (or one served under another tag) fires and
// becomes SERVED(tag) until w.End+clearDelay.
func (d *DedupState) Observe(key FlagKey, w Window, tag string, clearDelay time.Duration, now time.Time) Decision {
	if f, ok := d.flags[key]; ok && HasWindowClosed(now, f.ClearAt) {
		delete(d.flags, key)
	}
	if !w.Contains(now) {
		return Idle
	}
	if f, ok := d.flags[key]; ok && f.Tag == tag {
		return AlreadyServed
	}
	if clearDelay < 0 {
		clearDelay = 0
	}
	d.flags[key] = Flag{Tag: tag, ServedAt: now, ClearAt: w.End.Add(clearDelay)}
	return Fire
}

// Served reports the flag currently held for key.
func (d *DedupState) Served(key FlagKey) (Flag, bool) {
	f, ok := d.flags[key]
	return f, ok
}

// Sweep clears every flag whose clear time has passed, including flags of
// events that no longer exist. It returns the number of cleared flags.
func (d *DedupState) Sweep(now time.Time) int {
	n := 0
	for k, f := range d.flags {
		if HasWindowClosed(now, f.ClearAt) {
			delete(d.flags, k)
			n++
		}
	}
	return n
}

func (d *DedupState) Len() int { return len(d.flags) }

// FlagEntry is a read-only view of one SERVED flag.
type FlagEntry struct {
	Key  FlagKey
	Flag Flag
}

// Snapshot lists SERVED flags ordered by clear time.
func (d *DedupState) Snapshot() []FlagEntry {
	out := make([]FlagEntry, 0, len(d.flags))
	for k, f := range d.flags {
		out = append(out, FlagEntry{Key: k, Flag: f})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Flag.ClearAt.Equal(out[j].Flag.ClearAt) {
			return out[i].Flag.ClearAt.Before(out[j].Flag.ClearAt)
		}
		if out[i].Key.EventID != out[j].Key.EventID {
			return out[i].Key.EventID < out[j].Key.EventID
		}
		return out[i].Key.Bucket < out[j].Key.Bucket
	})
	return out
}

// Package resets owns every mutation of the tracked event lists. Mutations
// are serialized, validated, persisted, audited and followed by a board
// refresh.
package resets

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"resetbot/internal/eventbus"
	"resetbot/internal/reset"
	"resetbot/internal/storage"
	logx "resetbot/pkg/logx"
)

var (
	ErrNotFound      = errors.New("reset not found")
	ErrDuplicateName = errors.New("a reset with that name already exists")
	ErrInvalidInput  = errors.New("invalid input")
)

// Store is the persistence surface of the service.
type Store interface {
	storage.EventStore
	AppendAudit(ctx context.Context, e storage.AuditEntry) error
}

// BoardRefresher re-renders the boards after a change.
type BoardRefresher interface {
	Refresh(ctx context.Context, st reset.State) error
}

// Actor is who asked for a mutation.
type Actor struct {
	Transport string
	ID        string
	Name      string
	ChatID    string
}

type DailyInput struct {
	Name  string
	Emoji string
	Slots []string
}

type WeeklyInput struct {
	Name  string
	Time  string
	Day   string
	Emoji string
}

// EditInput carries the fields to change; nil leaves a field as stored.
type EditInput struct {
	Name  *string
	Time  *string
	Day   *string
	Emoji *string
	Slots *[]string
}

func (in EditInput) Empty() bool {
	return in.Name == nil && in.Time == nil && in.Day == nil && in.Emoji == nil && in.Slots == nil
}

// Change is the Data of events.changed bus events.
type Change struct {
	Action string      `json:"action"`
	Event  reset.Event `json:"event"`
}

type Service struct {
	mu sync.Mutex

	store  Store
	boards BoardRefresher
	clock  reset.Clock
	bus    eventbus.Bus
	log    logx.Logger
	newID  func() string
}

func New(store Store, boards BoardRefresher, clock reset.Clock, bus eventbus.Bus, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		store:  store,
		boards: boards,
		clock:  clock,
		bus:    bus,
		log:    log,
		newID:  uuid.NewString,
	}
}

// List returns the current event lists.
func (s *Service) List(ctx context.Context) (reset.State, error) {
	st, err := s.store.Load(ctx)
	if err != nil {
		return reset.State{}, err
	}
	st.Normalize()
	return st, nil
}

func (s *Service) AddDaily(ctx context.Context, actor Actor, in DailyInput) (reset.Event, error) {
	e := reset.Event{
		Name:      strings.TrimSpace(in.Name),
		Emoji:     reset.SanitizeEmoji(in.Emoji),
		Slots:     cleanSlots(in.Slots),
		Frequency: reset.Daily,
	}
	return s.mutate(ctx, actor, "adddaily", e.Name, func(st *reset.State) (reset.Event, error) {
		if err := checkEvent(e); err != nil {
			return reset.Event{}, err
		}
		if hasName(st.Daily, e.Name, -1) {
			return reset.Event{}, fmt.Errorf("%w: daily %q", ErrDuplicateName, e.Name)
		}
		e.ID = s.newID()
		st.Daily = append(st.Daily, e)
		return e, nil
	})
}

func (s *Service) AddWeekly(ctx context.Context, actor Actor, in WeeklyInput) (reset.Event, error) {
	name := strings.TrimSpace(in.Name)
	return s.mutate(ctx, actor, "addweekly", name, func(st *reset.State) (reset.Event, error) {
		tod, err := reset.ParseTimeOfDay(in.Time)
		if err != nil {
			return reset.Event{}, err
		}
		wd, err := reset.ParseWeekday(in.Day)
		if err != nil {
			return reset.Event{}, err
		}
		next, err := reset.ComputeNextOccurrence(tod, reset.Weekly, s.clock.Now(), &wd)
		if err != nil {
			return reset.Event{}, err
		}
		e := reset.Event{
			Name:      name,
			Emoji:     reset.SanitizeEmoji(in.Emoji),
			Time:      tod.String(),
			Day:       reset.WeekdayName(wd),
			Timestamp: next.Unix(),
			Frequency: reset.Weekly,
		}
		if err := checkEvent(e); err != nil {
			return reset.Event{}, err
		}
		if hasName(st.Weekly, e.Name, -1) {
			return reset.Event{}, fmt.Errorf("%w: weekly %q", ErrDuplicateName, e.Name)
		}
		e.ID = s.newID()
		st.Weekly = append(st.Weekly, e)
		return e, nil
	})
}

// Delete removes the event called name, looking at daily events first.
func (s *Service) Delete(ctx context.Context, actor Actor, name string) (reset.Event, error) {
	name = strings.TrimSpace(name)
	return s.mutate(ctx, actor, "deletereset", name, func(st *reset.State) (reset.Event, error) {
		freq, i, ok := st.Find(name)
		if !ok {
			return reset.Event{}, fmt.Errorf("%w: %q", ErrNotFound, name)
		}
		list := st.List(freq)
		e := (*list)[i]
		*list = append((*list)[:i], (*list)[i+1:]...)
		return e, nil
	})
}

// Edit changes the event called name. For weekly events a missing time or
// day keeps the stored one, and the next occurrence is recomputed whenever
// either is given.
func (s *Service) Edit(ctx context.Context, actor Actor, name string, in EditInput) (reset.Event, error) {
	name = strings.TrimSpace(name)
	return s.mutate(ctx, actor, "editreset", name, func(st *reset.State) (reset.Event, error) {
		if in.Empty() {
			return reset.Event{}, fmt.Errorf("%w: nothing to change", ErrInvalidInput)
		}
		freq, i, ok := st.Find(name)
		if !ok {
			return reset.Event{}, fmt.Errorf("%w: %q", ErrNotFound, name)
		}
		list := st.List(freq)
		e := (*list)[i]

		if in.Name != nil {
			newName := strings.TrimSpace(*in.Name)
			if hasName(*list, newName, i) {
				return reset.Event{}, fmt.Errorf("%w: %s %q", ErrDuplicateName, freq, newName)
			}
			e.Name = newName
		}
		if in.Emoji != nil {
			e.Emoji = reset.SanitizeEmoji(*in.Emoji)
		}

		switch freq {
		case reset.Daily:
			if in.Time != nil || in.Day != nil {
				return reset.Event{}, fmt.Errorf("%w: time and day apply to weekly resets only", ErrInvalidInput)
			}
			if in.Slots != nil {
				e.Slots = cleanSlots(*in.Slots)
			}
		case reset.Weekly:
			if in.Slots != nil {
				return reset.Event{}, fmt.Errorf("%w: slots apply to daily resets only", ErrInvalidInput)
			}
			if in.Time != nil || in.Day != nil {
				if err := reschedule(&e, in, s.clock); err != nil {
					return reset.Event{}, err
				}
			}
		}

		if err := checkEvent(e); err != nil {
			return reset.Event{}, err
		}
		(*list)[i] = e
		return e, nil
	})
}

func reschedule(e *reset.Event, in EditInput, clock reset.Clock) error {
	rawTime, rawDay := e.Time, e.Day
	if in.Time != nil {
		rawTime = *in.Time
	}
	if in.Day != nil {
		rawDay = *in.Day
	}
	tod, err := reset.ParseTimeOfDay(rawTime)
	if err != nil {
		return err
	}
	wd, err := reset.ParseWeekday(rawDay)
	if err != nil {
		return err
	}
	next, err := reset.ComputeNextOccurrence(tod, reset.Weekly, clock.Now(), &wd)
	if err != nil {
		return err
	}
	e.Time = tod.String()
	e.Day = reset.WeekdayName(wd)
	e.Timestamp = next.Unix()
	return nil
}

// RollForwardPassed rewrites stored weekly occurrences that are no longer in
// the future. It returns how many were advanced.
func (s *Service) RollForwardPassed(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.store.Load(ctx)
	if err != nil {
		return 0, err
	}
	st.Normalize()
	now := s.clock.Now()

	n := 0
	for i, e := range st.Weekly {
		stored := e.NextOccurrence(now.Location())
		if stored.IsZero() || stored.After(now) {
			continue
		}
		st.Weekly[i].Timestamp = reset.RollForward(stored, now).Unix()
		n++
	}
	if n == 0 {
		return 0, nil
	}
	if err := s.store.Save(ctx, st); err != nil {
		return 0, err
	}
	s.log.Debug("weekly occurrences rolled forward", logx.Int("count", n))
	return n, nil
}

// RefreshBoards re-renders the boards from the stored lists.
func (s *Service) RefreshBoards(ctx context.Context) error {
	if s.boards == nil {
		return nil
	}
	st, err := s.List(ctx)
	if err != nil {
		return err
	}
	return s.boards.Refresh(ctx, st)
}

func (s *Service) mutate(ctx context.Context, actor Actor, action, target string, fn func(st *reset.State) (reset.Event, error)) (reset.Event, error) {
	e, st, err := s.apply(ctx, fn)
	s.audit(ctx, actor, action, target, err)
	if err != nil {
		return reset.Event{}, err
	}

	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: eventbus.TypeEventsChanged, Time: s.clock.Now(), Data: Change{Action: action, Event: e}})
	}
	s.log.Info("resets changed", logx.String("action", action), logx.String("name", e.Name), logx.String("id", e.ID), logx.String("actor", actor.ID))

	if s.boards != nil {
		if berr := s.boards.Refresh(ctx, st); berr != nil {
			s.log.Warn("board refresh after change failed", logx.String("action", action), logx.Err(berr))
		}
	}
	return e, nil
}

func (s *Service) apply(ctx context.Context, fn func(st *reset.State) (reset.Event, error)) (reset.Event, reset.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.store.Load(ctx)
	if err != nil {
		return reset.Event{}, reset.State{}, err
	}
	st.Normalize()
	next := st.Clone()
	e, err := fn(&next)
	if err != nil {
		return reset.Event{}, reset.State{}, err
	}
	if err := s.store.Save(ctx, next); err != nil {
		return reset.Event{}, reset.State{}, err
	}
	return e, next, nil
}

func (s *Service) audit(ctx context.Context, actor Actor, action, target string, err error) {
	entry := storage.AuditEntry{
		At:        s.clock.Now(),
		Transport: actor.Transport,
		ActorID:   actor.ID,
		ActorName: actor.Name,
		ChatID:    actor.ChatID,
		Action:    action,
		Target:    target,
		OK:        err == nil,
	}
	if err != nil {
		entry.Error = err.Error()
	}
	if aerr := s.store.AppendAudit(ctx, entry); aerr != nil {
		s.log.Warn("audit append failed", logx.String("action", action), logx.Err(aerr))
	}
}

func checkEvent(e reset.Event) error {
	if err := e.Validate(); err != nil {
		if errors.Is(err, reset.ErrInvalidTimeFormat) || errors.Is(err, reset.ErrInvalidWeekday) || errors.Is(err, reset.ErrMissingWeekday) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	return nil
}

func hasName(list []reset.Event, name string, skip int) bool {
	key := reset.NameKey(name)
	for i, e := range list {
		if i != skip && e.Key() == key {
			return true
		}
	}
	return false
}

func cleanSlots(in []string) []string {
	var out []string
	for _, s := range in {
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// Package boards keeps the two persistent board messages (daily and weekly)
// in sync with the event lists. A board is edited in place; when its message
// is gone it is posted again and the new reference is stored.
package boards

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"resetbot/internal/eventbus"
	"resetbot/internal/render"
	"resetbot/internal/reset"
	"resetbot/internal/storage"
	"resetbot/internal/transport"
	logx "resetbot/pkg/logx"
)

// Messenger is the adapter surface boards need.
type Messenger interface {
	SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error)
	EditText(ctx context.Context, ref transport.MessageRef, text string, opt *transport.SendOptions) error
}

type Settings struct {
	Target    transport.ChatTarget
	DailyTime reset.TimeOfDay
}

// Update is the Data of board.* bus events.
type Update struct {
	Kind string               `json:"kind"`
	Ref  transport.MessageRef `json:"ref"`
	At   time.Time            `json:"at"`
}

type Maintainer struct {
	// mu serializes refreshes so two callers never post the same board twice.
	mu sync.Mutex

	smu      sync.RWMutex
	settings Settings

	store storage.BoardStore
	msgr  Messenger
	clock reset.Clock
	bus   eventbus.Bus
	log   logx.Logger
}

func New(settings Settings, store storage.BoardStore, msgr Messenger, clock reset.Clock, bus eventbus.Bus, log logx.Logger) *Maintainer {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Maintainer{settings: settings, store: store, msgr: msgr, clock: clock, bus: bus, log: log}
}

func (m *Maintainer) Apply(s Settings) {
	m.smu.Lock()
	m.settings = s
	m.smu.Unlock()
}

func (m *Maintainer) current() Settings {
	m.smu.RLock()
	defer m.smu.RUnlock()
	return m.settings
}

// Refresh re-renders both boards from st. Both are attempted; errors are joined.
func (m *Maintainer) Refresh(ctx context.Context, st reset.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.current()
	if s.Target.IsZero() {
		return errors.New("boards: no target channel configured")
	}
	now := m.clock.Now()
	resetAt, err := reset.ComputeNextOccurrence(s.DailyTime, reset.Daily, now, nil)
	if err != nil {
		return fmt.Errorf("boards: daily reset time: %w", err)
	}

	errDaily := m.refreshOne(ctx, s.Target, storage.BoardDaily, render.DailyBoard(st.Daily, resetAt, now))
	errWeekly := m.refreshOne(ctx, s.Target, storage.BoardWeekly, render.WeeklyBoard(st.Weekly, now))
	return errors.Join(errDaily, errWeekly)
}

func (m *Maintainer) refreshOne(ctx context.Context, target transport.ChatTarget, kind, text string) error {
	opt := &transport.SendOptions{ParseMode: "HTML", DisablePreview: true}

	ref, ok, err := m.store.BoardRef(ctx, kind)
	if err != nil {
		return fmt.Errorf("boards: %s: load ref: %w", kind, err)
	}
	// A board that lives in another channel than the configured one is re-posted.
	if ok && ref.Target() == target {
		err := m.msgr.EditText(ctx, ref, text, opt)
		if err == nil {
			m.publish(eventbus.TypeBoardUpdated, kind, ref)
			return nil
		}
		if !errors.Is(err, transport.ErrMessageNotFound) {
			return fmt.Errorf("boards: %s: edit: %w", kind, err)
		}
		m.log.Info("board message missing; recreating", logx.String("board", kind), logx.String("message_id", ref.MessageID))
	}

	newRef, err := m.msgr.SendText(ctx, target, text, opt)
	if err != nil {
		return fmt.Errorf("boards: %s: post: %w", kind, err)
	}
	if err := m.store.SetBoardRef(ctx, kind, newRef); err != nil {
		return fmt.Errorf("boards: %s: save ref: %w", kind, err)
	}
	m.publish(eventbus.TypeBoardRecreated, kind, newRef)
	return nil
}

func (m *Maintainer) publish(typ, kind string, ref transport.MessageRef) {
	if m.bus == nil {
		return
	}
	now := m.clock.Now()
	m.bus.Publish(eventbus.Event{Type: typ, Time: now, Data: Update{Kind: kind, Ref: ref, At: now}})
}

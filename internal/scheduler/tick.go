package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"resetbot/internal/notifier"
	"resetbot/internal/render"
	"resetbot/internal/reset"
	logx "resetbot/pkg/logx"
)

// Tick evaluates every reminder window at now. It never returns an error:
// a store failure skips the tick and per-event failures are logged and
// counted while the remaining events are still evaluated.
func (s *Service) Tick(ctx context.Context, now time.Time) TickReport {
	if ctx == nil {
		ctx = context.Background()
	}
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	cfg := s.current()
	if loc := cfg.Timing.Location; loc != nil {
		now = now.In(loc)
	}
	rep := TickReport{At: now}
	s.ticks.Add(1)
	s.lastTick = now

	st, err := s.store.Load(ctx)
	if err != nil {
		s.skipped.Add(1)
		rep.Skipped = true
		s.log.Warn("store unavailable; tick skipped", logx.Err(err))
		return rep
	}
	st.Normalize()

	rep.Cleared = s.dedup.Sweep(now)

	s.guard(&rep, DailyEventID, func() { s.evalDaily(ctx, cfg, st.Daily, now, &rep) })
	for _, e := range st.Weekly {
		s.guard(&rep, e.ID, func() { s.evalWeekly(ctx, cfg, e, now, &rep) })
	}

	if rep.Fired > 0 || rep.Failed > 0 || rep.Panics > 0 {
		s.log.Debug("tick done",
			logx.Time("at", now),
			logx.Int("fired", rep.Fired),
			logx.Int("failed", rep.Failed),
			logx.Int("panics", rep.Panics),
		)
	}
	return rep
}

func (s *Service) guard(rep *TickReport, id string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			rep.Panics++
			s.failed.Add(1)
			s.log.Error("panic while evaluating reset",
				logx.String("event_id", id),
				logx.Any("panic", r),
				logx.Stack(string(debug.Stack())),
			)
		}
	}()
	fn()
}

// evalDaily drives the single daily digest. Nothing fires without daily events.
func (s *Service) evalDaily(ctx context.Context, cfg Config, events []reset.Event, now time.Time, rep *TickReport) {
	if len(events) == 0 {
		return
	}
	t := cfg.Timing
	anchor, err := reset.DailyAnchor(t.DailyTime, now, t.DailyLead, t.DailyWindow)
	if err != nil {
		s.log.Warn("daily reset time invalid", logx.Err(err))
		rep.Failed++
		return
	}
	w := reset.WindowBefore(anchor, t.DailyLead, t.DailyWindow)
	key := reset.FlagKey{EventID: DailyEventID, Bucket: t.DailyLead.String()}
	if s.dedup.Observe(key, w, reset.DailyTag(anchor), t.DailyClearDelay, now) != reset.Fire {
		return
	}
	s.send(ctx, cfg, key, render.DailyReminder(t.Mention, events, anchor, now), rep)
}

// evalWeekly checks every lead window of one weekly event against its
// (rolled forward) next occurrence. An event stored without a timestamp
// falls back to its time and day fields.
func (s *Service) evalWeekly(ctx context.Context, cfg Config, e reset.Event, now time.Time, rep *TickReport) {
	t := cfg.Timing
	next, err := weeklyOccurrence(e, now)
	if err != nil {
		s.log.Warn("weekly reset schedule invalid", logx.String("event_id", e.ID), logx.String("name", e.Name), logx.Err(err))
		rep.Failed++
		return
	}
	for _, lead := range t.WeeklyLeads {
		w := reset.WindowBefore(next, lead, t.WeeklyWindow)
		key := reset.FlagKey{EventID: e.ID, Bucket: lead.String()}
		if s.dedup.Observe(key, w, reset.WeeklyTag(w), t.WeeklyClearDelay, now) != reset.Fire {
			continue
		}
		s.send(ctx, cfg, key, render.WeeklyReminder(t.Mention, e, next, now), rep)
	}
}

func weeklyOccurrence(e reset.Event, now time.Time) (time.Time, error) {
	if next := reset.RollForward(e.NextOccurrence(now.Location()), now); !next.IsZero() {
		return next, nil
	}
	tod, wd, err := e.Schedule()
	if err != nil {
		return time.Time{}, err
	}
	return reset.ComputeNextOccurrence(tod, reset.Weekly, now, &wd)
}

// send delivers one reminder. The flag stays SERVED whatever the outcome.
func (s *Service) send(ctx context.Context, cfg Config, key reset.FlagKey, text string, rep *TickReport) {
	content := notifier.Content{Key: fmt.Sprintf("%s/%s", key.EventID, key.Bucket), Text: text}
	if _, err := s.notifier.SendReminder(ctx, cfg.Target, content); err != nil {
		rep.Failed++
		s.failed.Add(1)
		s.log.Warn("reminder delivery failed", logx.String("key", content.Key), logx.Err(err))
		return
	}
	rep.Fired++
	s.fired.Add(1)
	s.log.Info("reminder sent", logx.String("key", content.Key))
}

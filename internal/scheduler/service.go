package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"resetbot/internal/config"
	"resetbot/internal/notifier"
	"resetbot/internal/reset"
	"resetbot/internal/storage"
	logx "resetbot/pkg/logx"
)

func New(cfg Config, store storage.EventStore, n notifier.Notifier, boards BoardJob, clock reset.Clock, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if clock == nil {
		clock = reset.NewClock(cfg.Timing.Location)
	}
	return &Service{
		cfg:      cfg,
		store:    store,
		notifier: n,
		boards:   boards,
		clock:    clock,
		log:      log,
		dedup:    reset.NewDedupState(),
	}
}

func (s *Service) current() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Apply swaps timing and target. The cron schedule is rebuilt when the poll
// interval, board refresh spec or zone changed.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.cfg
	s.cfg = cfg
	if s.c == nil {
		return
	}
	if old.Timing.PollInterval != cfg.Timing.PollInterval ||
		old.Timing.BoardRefresh != cfg.Timing.BoardRefresh ||
		zoneName(old.Timing.Location) != zoneName(cfg.Timing.Location) {
		if err := s.restartLocked(); err != nil {
			s.log.Error("scheduler restart failed", logx.Err(err))
		}
	}
}

func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}
	s.runCtx, s.runCancel = context.WithCancel(ctx)
	if err := s.startCronLocked(); err != nil {
		s.runCancel()
		s.runCtx, s.runCancel = nil, nil
		return err
	}
	s.log.Info("scheduler started",
		logx.String("tz", zoneName(s.cfg.Timing.Location)),
		logx.Duration("poll", s.cfg.Timing.PollInterval),
		logx.String("board_refresh", s.cfg.Timing.BoardRefresh),
	)
	return nil
}

// Stop halts the schedule and waits for a running tick until ctx expires.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	cancel := s.runCancel
	s.c = nil
	s.runCtx, s.runCancel = nil, nil
	s.mu.Unlock()

	if c == nil {
		return
	}
	start := time.Now()
	done := c.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.log.Warn("scheduler stop timed out; tick still running")
	}
	if cancel != nil {
		cancel()
	}
	s.log.Info("scheduler stopped", logx.Duration("took", time.Since(start)))
}

func (s *Service) restartLocked() error {
	if s.c != nil {
		s.c.Stop()
		s.c = nil
	}
	return s.startCronLocked()
}

func (s *Service) startCronLocked() error {
	cfg := s.cfg
	loc := cfg.Timing.Location
	if loc == nil {
		loc = time.Local
	}
	if cfg.Timing.PollInterval <= 0 {
		return fmt.Errorf("scheduler: poll interval must be > 0")
	}
	cl := cronLogger{log: s.log}
	c := cron.New(
		cron.WithParser(config.CronParser()),
		cron.WithLocation(loc),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	runCtx := s.runCtx
	pollID, err := c.AddFunc("@every "+cfg.Timing.PollInterval.String(), func() {
		s.Tick(runCtx, s.clock.Now())
	})
	if err != nil {
		return fmt.Errorf("scheduler: poll schedule: %w", err)
	}
	var boardID cron.EntryID
	if spec := cfg.Timing.BoardRefresh; spec != "" && s.boards != nil {
		boardID, err = c.AddFunc(spec, func() { s.RunBoardRefresh(runCtx) })
		if err != nil {
			return fmt.Errorf("scheduler: board refresh %q: %w", spec, err)
		}
	}

	s.c, s.pollID, s.boardID = c, pollID, boardID
	c.Start()
	return nil
}

// RunBoardRefresh advances passed weekly occurrences and re-renders the boards.
func (s *Service) RunBoardRefresh(ctx context.Context) {
	if s.boards == nil || ctx == nil {
		return
	}
	if n, err := s.boards.RollForwardPassed(ctx); err != nil {
		s.log.Warn("weekly roll forward failed", logx.Err(err))
	} else if n > 0 {
		s.log.Info("weekly resets rolled forward", logx.Int("count", n))
	}
	if err := s.boards.RefreshBoards(ctx); err != nil {
		s.log.Warn("board refresh failed", logx.Err(err))
	}
}

func (s *Service) Status() Status {
	s.mu.Lock()
	cfg := s.cfg
	c := s.c
	pollID, boardID := s.pollID, s.boardID
	s.mu.Unlock()

	st := Status{
		Running:      c != nil,
		Timezone:     zoneName(cfg.Timing.Location),
		PollInterval: cfg.Timing.PollInterval,
		BoardRefresh: cfg.Timing.BoardRefresh,
		Ticks:        s.ticks.Load(),
		Skipped:      s.skipped.Load(),
		Fired:        s.fired.Load(),
		Failed:       s.failed.Load(),
	}
	if c != nil {
		st.NextTick = c.Entry(pollID).Next
		if boardID != 0 {
			st.NextBoardRefresh = c.Entry(boardID).Next
		}
	}

	s.tickMu.Lock()
	st.LastTick = s.lastTick
	st.Served = s.dedup.Snapshot()
	s.tickMu.Unlock()
	return st
}

func zoneName(loc *time.Location) string {
	if loc == nil {
		return ""
	}
	return loc.String()
}

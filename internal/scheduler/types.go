package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"resetbot/internal/config"
	"resetbot/internal/notifier"
	"resetbot/internal/reset"
	"resetbot/internal/storage"
	"resetbot/internal/transport"
	logx "resetbot/pkg/logx"
)

// DailyEventID is the dedup identity of the shared daily digest.
const DailyEventID = "daily"

type Config struct {
	Timing config.Timing
	Target transport.ChatTarget
}

// BoardJob is run by the board refresh schedule.
type BoardJob interface {
	RollForwardPassed(ctx context.Context) (int, error)
	RefreshBoards(ctx context.Context) error
}

// TickReport summarizes one evaluation pass.
type TickReport struct {
	At      time.Time
	Skipped bool // store unavailable
	Cleared int  // flags swept back to UNSERVED
	Fired   int
	Failed  int
	Panics  int
}

type Status struct {
	Running      bool
	Timezone     string
	PollInterval time.Duration
	NextTick     time.Time
	LastTick     time.Time

	BoardRefresh     string
	NextBoardRefresh time.Time

	Ticks   uint64
	Skipped uint64
	Fired   uint64
	Failed  uint64

	Served []reset.FlagEntry
}

type Service struct {
	mu  sync.Mutex
	cfg Config

	c         *cron.Cron
	pollID    cron.EntryID
	boardID   cron.EntryID
	runCtx    context.Context
	runCancel context.CancelFunc

	// tickMu serializes ticks; dedup is only touched while it is held.
	tickMu   sync.Mutex
	dedup    *reset.DedupState
	lastTick time.Time

	store    storage.EventStore
	notifier notifier.Notifier
	boards   BoardJob
	clock    reset.Clock
	log      logx.Logger

	ticks   atomic.Uint64
	skipped atomic.Uint64
	fired   atomic.Uint64
	failed  atomic.Uint64
}

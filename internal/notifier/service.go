package notifier

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"resetbot/internal/eventbus"
	"resetbot/internal/transport"
	logx "resetbot/pkg/logx"
)

// Sender is the adapter surface the notifier needs.
type Sender interface {
	SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error)
}

// Service is the transport-backed Notifier. Safe for concurrent use.
type Service struct {
	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter

	sender Sender
	log    logx.Logger
	bus    eventbus.Bus

	sent   atomic.Uint64
	failed atomic.Uint64

	hmu     sync.Mutex
	history []HistoryItem
}

var _ Notifier = (*Service)(nil)

func New(cfg Config, sender Sender, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{sender: sender, log: log, bus: bus}
	s.Apply(cfg)
	return s
}

// Apply swaps rate, timeout and history size at runtime.
func (s *Service) Apply(cfg Config) {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 1
	}
	if cfg.Burst <= 0 {
		cfg.Burst = cfg.RatePerSec
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 100
	}
	s.mu.Lock()
	s.cfg = cfg
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.Burst)
	s.mu.Unlock()
}

// SendReminder makes exactly one delivery attempt.
func (s *Service) SendReminder(ctx context.Context, target transport.ChatTarget, content Content) (Outcome, error) {
	s.mu.Lock()
	cfg := s.cfg
	lim := s.limiter
	s.mu.Unlock()

	start := time.Now()
	if target.IsZero() {
		return Outcome{}, s.fail(target, content, fmt.Errorf("%w: no target chat", ErrDeliveryFailed))
	}
	if s.sender == nil {
		return Outcome{}, s.fail(target, content, fmt.Errorf("%w: no transport", ErrDeliveryFailed))
	}

	callCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	if err := lim.Wait(callCtx); err != nil {
		return Outcome{}, s.fail(target, content, fmt.Errorf("%w: rate limit: %w", ErrDeliveryFailed, err))
	}

	ref, err := s.sender.SendText(callCtx, target, content.Text, &transport.SendOptions{ParseMode: "HTML", DisablePreview: true})
	if err != nil {
		return Outcome{}, s.fail(target, content, fmt.Errorf("%w: %w", ErrDeliveryFailed, err))
	}

	out := Outcome{Ref: ref, At: time.Now(), Took: time.Since(start)}
	s.sent.Add(1)
	s.record(HistoryItem{At: out.At, Key: content.Key, OK: true})
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: eventbus.TypeReminderSent, Time: out.At, Data: ReminderEvent{
			Key: content.Key, ChatID: target.ChatID, ThreadID: target.ThreadID, At: out.At,
		}})
	}
	s.log.Debug("reminder sent", logx.String("key", content.Key), logx.Duration("took", out.Took))
	return out, nil
}

func (s *Service) fail(target transport.ChatTarget, content Content, err error) error {
	now := time.Now()
	s.failed.Add(1)
	s.record(HistoryItem{At: now, Key: content.Key, OK: false, Error: err.Error()})
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: eventbus.TypeReminderFailed, Time: now, Data: ReminderEvent{
			Key: content.Key, ChatID: target.ChatID, ThreadID: target.ThreadID, At: now, Error: err.Error(),
		}})
	}
	return err
}

func (s *Service) record(it HistoryItem) {
	s.mu.Lock()
	limit := s.cfg.HistorySize
	s.mu.Unlock()

	s.hmu.Lock()
	s.history = append(s.history, it)
	if len(s.history) > limit {
		s.history = s.history[len(s.history)-limit:]
	}
	s.hmu.Unlock()
}

// History returns recent delivery attempts, oldest first.
func (s *Service) History() []HistoryItem {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	return append([]HistoryItem(nil), s.history...)
}

type Stats struct {
	Sent   uint64
	Failed uint64
}

func (s *Service) Stats() Stats {
	return Stats{Sent: s.sent.Load(), Failed: s.failed.Load()}
}

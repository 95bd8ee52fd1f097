package notifier

import (
	"context"
	"errors"
	"time"

	"resetbot/internal/transport"
)

// ErrDeliveryFailed wraps every transport error returned by SendReminder.
var ErrDeliveryFailed = errors.New("reminder delivery failed")

// Notifier is the delivery contract the scheduler depends on.
type Notifier interface {
	SendReminder(ctx context.Context, target transport.ChatTarget, content Content) (Outcome, error)
}

// Content is a fully rendered reminder.
type Content struct {
	// Key identifies the firing (event + bucket) for logs and history.
	Key  string
	Text string // HTML
}

type Outcome struct {
	Ref  transport.MessageRef
	At   time.Time
	Took time.Duration
}

type Config struct {
	RatePerSec  int
	Burst       int
	Timeout     time.Duration
	HistorySize int
}

type HistoryItem struct {
	At    time.Time `json:"at"`
	Key   string    `json:"key"`
	OK    bool      `json:"ok"`
	Error string    `json:"error,omitempty"`
}

// ReminderEvent is the Data of reminder.* bus events.
type ReminderEvent struct {
	Key      string    `json:"key"`
	ChatID   string    `json:"chat_id"`
	ThreadID string    `json:"thread_id,omitempty"`
	At       time.Time `json:"at"`
	Error    string    `json:"error,omitempty"`
}

package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"resetbot/internal/reset"
	"resetbot/internal/transport"
)

// ErrStoreUnavailable marks a failed load or save of the event lists.
var ErrStoreUnavailable = errors.New("store unavailable")

// Board kinds.
const (
	BoardDaily  = "daily"
	BoardWeekly = "weekly"
)

// Config configures storage.
//
// Driver values: "file" (default), "sqlite", "badger".
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// EventStore loads and saves the two ordered event lists.
type EventStore interface {
	Load(ctx context.Context) (reset.State, error)
	Save(ctx context.Context, st reset.State) error
}

// BoardStore remembers which message shows each board.
type BoardStore interface {
	BoardRef(ctx context.Context, kind string) (transport.MessageRef, bool, error)
	SetBoardRef(ctx context.Context, kind string, ref transport.MessageRef) error
}

type Store interface {
	EventStore
	BoardStore
	AppendAudit(ctx context.Context, e AuditEntry) error
	Close() error
}

// AuditEntry records one command mutation.
type AuditEntry struct {
	At        time.Time `json:"at"`
	Transport string    `json:"transport,omitempty"`
	ActorID   string    `json:"actor_id"`
	ActorName string    `json:"actor_name,omitempty"`
	ChatID    string    `json:"chat_id,omitempty"`
	Action    string    `json:"action"`
	Target    string    `json:"target"`
	OK        bool      `json:"ok"`
	Error     string    `json:"error,omitempty"`
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, op, err)
}

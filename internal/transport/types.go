package transport

import (
	"context"
	"errors"
)

// ErrMessageNotFound is returned by EditText when the referenced message no
// longer exists and must be re-created by the caller.
var ErrMessageNotFound = errors.New("transport: message not found")

type UpdateKind string

const (
	UpdateMessage UpdateKind = "message"
)

type Update struct {
	Kind    UpdateKind
	Message *Message
}

// Message is an inbound chat message or slash command. IDs are opaque
// strings so telegram (numeric) and slack (alphanumeric) share one shape.
type Message struct {
	Transport    string
	ID           string
	ChatID       string
	ThreadID     string // telegram forum topic / slack thread ts ("" if none)
	FromID       string
	FromUsername string
	Text         string
	IsGroup      bool
}

type ChatTarget struct {
	ChatID   string
	ThreadID string
}

func (t ChatTarget) IsZero() bool { return t.ChatID == "" }

type MessageRef struct {
	ChatID    string
	ThreadID  string
	MessageID string
}

func (r MessageRef) IsZero() bool { return r.ChatID == "" || r.MessageID == "" }

func (r MessageRef) Target() ChatTarget { return ChatTarget{ChatID: r.ChatID, ThreadID: r.ThreadID} }

// SendOptions carries formatting hints. Text is HTML when ParseMode is
// "HTML"; adapters without HTML support convert it.
type SendOptions struct {
	ParseMode      string
	DisablePreview bool
}

type Adapter interface {
	Name() string
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	EditText(ctx context.Context, ref MessageRef, text string, opt *SendOptions) error
}

// BotCommand represents a single bot command menu entry.
type BotCommand struct {
	Command     string
	Description string
}

// CommandMenuUpdater is an optional interface that adapters can implement
// to update platform-specific bot command menus (e.g. Telegram /menu list).
type CommandMenuUpdater interface {
	UpdateMenuCommands(ctx context.Context, cmds []BotCommand) error
}

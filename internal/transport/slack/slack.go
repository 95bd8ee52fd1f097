// Package slack is the slack-go backed chat adapter. Replies and reminders
// go out through the Web API; commands come in as slash commands on an HTTP
// endpoint served by internal/web.
package slack

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/slack-go/slack"

	"resetbot/internal/transport"
	logx "resetbot/pkg/logx"
)

const Name = "slack"

type Config struct {
	BotToken      string
	SigningSecret string
	// Umbrella is a slash command whose text is itself a command line,
	// e.g. "/resetbot adddaily Ursus". Default "/resetbot".
	Umbrella string
}

// api is the Web API surface the adapter uses; *slack.Client satisfies it.
type api interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
	UpdateMessageContext(ctx context.Context, channelID, timestamp string, options ...slack.MsgOption) (string, string, string, error)
}

type Adapter struct {
	cfg Config
	log logx.Logger
	api api

	out     atomic.Value // chan<- transport.Update
	runMu   sync.Mutex
	running bool
	dropped atomic.Uint64
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.BotToken) == "" {
		return nil, errors.New("slack bot token is empty")
	}
	if strings.TrimSpace(cfg.SigningSecret) == "" {
		return nil, errors.New("slack signing secret is empty")
	}
	return newAdapter(cfg, slack.New(cfg.BotToken), log), nil
}

func newAdapter(cfg Config, client api, log logx.Logger) *Adapter {
	if log.IsZero() {
		log = logx.Nop()
	}
	if strings.TrimSpace(cfg.Umbrella) == "" {
		cfg.Umbrella = "/resetbot"
	}
	a := &Adapter{cfg: cfg, log: log, api: client}
	var nilOut chan<- transport.Update
	a.out.Store(nilOut)
	return a
}

func (a *Adapter) Name() string { return Name }

// Start only records out; slash commands arrive through SlashHandler.
func (a *Adapter) Start(ctx context.Context, out chan<- transport.Update) error {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	a.running = true
	a.out.Store(out)
	a.log.Info("slack adapter ready")
	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	if !a.running {
		return nil
	}
	a.running = false
	var nilOut chan<- transport.Update
	a.out.Store(nilOut)
	if n := a.dropped.Swap(0); n > 0 {
		a.log.Warn("slash commands dropped (channel full)", logx.Uint64("count", n))
	}
	return nil
}

func (a *Adapter) forward(m *transport.Message) bool {
	out, _ := a.out.Load().(chan<- transport.Update)
	if out == nil {
		return false
	}
	select {
	case out <- transport.Update{Kind: transport.UpdateMessage, Message: m}:
		return true
	default:
		a.dropped.Add(1)
		return false
	}
}

func msgOptions(to transport.ChatTarget, text string, opt *transport.SendOptions) []slack.MsgOption {
	if opt != nil && strings.EqualFold(opt.ParseMode, "HTML") {
		text = toMrkdwn(text)
	}
	opts := []slack.MsgOption{slack.MsgOptionText(text, false), slack.MsgOptionAsUser(false)}
	if to.ThreadID != "" {
		opts = append(opts, slack.MsgOptionTS(to.ThreadID))
	}
	if opt != nil && opt.DisablePreview {
		opts = append(opts, slack.MsgOptionDisableLinkUnfurl())
	}
	return opts
}

func (a *Adapter) SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error) {
	if to.IsZero() {
		return transport.MessageRef{}, errors.New("slack: empty channel")
	}
	channel, ts, err := a.api.PostMessageContext(ctx, to.ChatID, msgOptions(to, text, opt)...)
	if err != nil {
		return transport.MessageRef{}, fmt.Errorf("slack post: %w", err)
	}
	if channel == "" {
		channel = to.ChatID
	}
	return transport.MessageRef{ChatID: channel, ThreadID: to.ThreadID, MessageID: ts}, nil
}

func (a *Adapter) EditText(ctx context.Context, ref transport.MessageRef, text string, opt *transport.SendOptions) error {
	if ref.IsZero() {
		return transport.ErrMessageNotFound
	}
	opts := msgOptions(transport.ChatTarget{ChatID: ref.ChatID}, text, opt)
	_, _, _, err := a.api.UpdateMessageContext(ctx, ref.ChatID, ref.MessageID, opts...)
	return classifyEditError(err)
}

func classifyEditError(err error) error {
	if err == nil {
		return nil
	}
	switch msg := err.Error(); {
	case strings.Contains(msg, "message_not_found"),
		strings.Contains(msg, "cant_update_message"),
		strings.Contains(msg, "channel_not_found"):
		return fmt.Errorf("%w: %w", transport.ErrMessageNotFound, err)
	default:
		return fmt.Errorf("slack update: %w", err)
	}
}

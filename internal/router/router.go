// Package router turns inbound chat messages into command invocations: it
// tokenizes the text, walks the command tree, parses flags, checks owner
// access and runs the handler through a middleware chain on a bounded worker
// pool.
package router

import (
	"context"
	"errors"
	"html"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"resetbot/internal/runtime/supervisor"
	"resetbot/internal/transport"
	logx "resetbot/pkg/logx"
)

type Access int

const (
	AccessEveryone Access = iota
	AccessOwnerOnly
)

type Command struct {
	// Route is a space separated path, e.g. "resets" or "board refresh".
	Route       string
	Aliases     []string
	Description string
	Usage       string
	Access      Access
	Timeout     time.Duration
	Handle      HandlerFunc
}

// Replier is the adapter surface handlers reply through.
type Replier interface {
	SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error)
}

type Request struct {
	Message transport.Message
	Chat    transport.ChatTarget

	Path      []string
	Command   string
	Args      []string // positionals
	RawArgs   []string
	Flags     map[string]string
	BoolFlags map[string]bool
	ReqID     string

	Logger  logx.Logger
	replier Replier
}

// Reply sends HTML text back to the chat the command came from.
func (r *Request) Reply(ctx context.Context, text string) error {
	if r.replier == nil {
		return errors.New("router: no replier")
	}
	_, err := r.replier.SendText(ctx, r.Chat, text, &transport.SendOptions{ParseMode: "HTML", DisablePreview: true})
	return err
}

// Flag returns a value flag and whether it was given.
func (r *Request) Flag(name string) (string, bool) {
	v, ok := r.Flags[name]
	return v, ok
}

// UserError carries a message that is safe to show in chat.
type UserError struct {
	Message string
	Err     error
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *UserError) Unwrap() error { return e.Err }

// Userf builds a UserError whose message is HTML escaped.
func Userf(err error, msg string) error {
	return &UserError{Message: html.EscapeString(msg), Err: err}
}

func AsUserError(err error) (*UserError, bool) {
	var ue *UserError
	if errors.As(err, &ue) {
		return ue, true
	}
	return nil, false
}

type Router struct {
	mu     sync.RWMutex
	root   *cmdNode
	alias  map[string]*cmdNode
	owners map[string]struct{}
	cmds   []Command

	log     logx.Logger
	replier Replier
	menu    transport.CommandMenuUpdater
	jobs    chan func()

	runMu sync.Mutex
	sup   *supervisor.Supervisor
}

func New(log logx.Logger, replier Replier, owners []string) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	r := &Router{
		root:    newRoot(),
		alias:   map[string]*cmdNode{},
		log:     log,
		replier: replier,
		jobs:    make(chan func(), 256),
	}
	if up, ok := replier.(transport.CommandMenuUpdater); ok {
		r.menu = up
	}
	r.SetOwners(owners)
	return r
}

// SetOwners replaces the owner list; safe during hot reload.
func (r *Router) SetOwners(owners []string) {
	set := make(map[string]struct{}, len(owners))
	for _, o := range owners {
		if o = strings.TrimSpace(o); o != "" {
			set[o] = struct{}{}
		}
	}
	r.mu.Lock()
	r.owners = set
	r.mu.Unlock()
}

func (r *Router) IsOwner(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.owners[id]
	return ok
}

// SetRegistry installs cmds plus the built-in help command.
func (r *Router) SetRegistry(cmds []Command) {
	help := Command{
		Route:       "help",
		Aliases:     []string{"h", "start"},
		Description: "show the command list",
		Usage:       "/help [command]",
		Handle: func(ctx context.Context, req *Request) error {
			return req.Reply(ctx, r.helpText(req.Args))
		},
	}
	cmds = append(append([]Command(nil), cmds...), help)

	root := newRoot()
	alias := map[string]*cmdNode{}
	for _, c := range cmds {
		route := splitRoute(c.Route)
		if len(route) == 0 || c.Handle == nil {
			continue
		}
		root.add(route, c)
		leaf := root.find(route)
		if name, ok := menuName(route); ok && (len(route) > 1 || name != route[0]) {
			if _, exists := alias[name]; !exists {
				alias[name] = leaf
			}
		}
		for _, a := range c.Aliases {
			a = strings.ToLower(strings.TrimSpace(a))
			if a == "" || strings.Contains(a, " ") {
				continue
			}
			alias[a] = leaf
		}
	}

	r.mu.Lock()
	r.root = root
	r.alias = alias
	r.cmds = cmds
	r.mu.Unlock()
}

// SyncMenu pushes the command list to adapters that keep a command menu.
func (r *Router) SyncMenu(ctx context.Context) error {
	if r.menu == nil {
		return nil
	}
	r.mu.RLock()
	root, cmds := r.root, r.cmds
	r.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return r.menu.UpdateMenuCommands(ctx, buildMenu(root, cmds))
}

// DispatchLoop consumes updates until ctx is done or updates is closed.
func (r *Router) DispatchLoop(ctx context.Context, updates <-chan transport.Update) error {
	workers := runtime.NumCPU()
	if workers < 2 {
		workers = 2
	}
	if workers > 8 {
		workers = 8
	}
	sup := supervisor.NewSupervisor(ctx, supervisor.WithLogger(r.log))
	r.runMu.Lock()
	r.sup = sup
	r.runMu.Unlock()

	for i := 0; i < workers; i++ {
		sup.GoRestart("command.worker."+strconv.Itoa(i), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job := <-r.jobs:
					job()
				}
			}
		},
			supervisor.WithRestartBackoff(200*time.Millisecond, 5*time.Second),
			supervisor.WithPublishFirstError(true),
		)
	}
	r.log.Info("command dispatcher started", logx.Int("workers", workers))

	defer func() {
		sup.Cancel()
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		r.runMu.Lock()
		r.sup = nil
		r.runMu.Unlock()
		r.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			job := r.prepare(ctx, up)
			if job == nil {
				continue
			}
			select {
			case r.jobs <- job:
			default:
				if up.Message != nil {
					r.sendPlain(ctx, targetOf(up.Message), "Busy, try again in a moment.")
				}
			}
		}
	}
}

// Handle runs up inline and reports whether it was a command.
func (r *Router) Handle(ctx context.Context, up transport.Update) bool {
	job := r.prepare(ctx, up)
	if job == nil {
		return false
	}
	job()
	return true
}

// Supervisor returns the worker supervisor while the loop runs.
func (r *Router) Supervisor() *supervisor.Supervisor {
	r.runMu.Lock()
	defer r.runMu.Unlock()
	return r.sup
}

func targetOf(m *transport.Message) transport.ChatTarget {
	return transport.ChatTarget{ChatID: m.ChatID, ThreadID: m.ThreadID}
}

func (r *Router) sendPlain(ctx context.Context, to transport.ChatTarget, text string) {
	if r.replier == nil {
		return
	}
	if _, err := r.replier.SendText(ctx, to, text, nil); err != nil {
		r.log.Warn("reply failed", logx.Err(err))
	}
}

// prepare resolves up into a runnable job, or nil when it is not a command.
func (r *Router) prepare(ctx context.Context, up transport.Update) func() {
	if up.Kind != transport.UpdateMessage || up.Message == nil {
		return nil
	}
	msg := up.Message
	text := strings.TrimSpace(msg.Text)
	if !strings.HasPrefix(text, "/") {
		return nil
	}
	parts := tokenizeCommandLine(text)
	if len(parts) == 0 {
		return nil
	}
	word := strings.ToLower(strings.TrimPrefix(parts[0], "/"))
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}
	if word == "" {
		return nil
	}
	args := parts[1:]

	r.mu.RLock()
	root, alias := r.root, r.alias
	r.mu.RUnlock()

	var (
		node *cmdNode
		path []string
	)
	if leaf, ok := alias[word]; ok && leaf != nil && leaf.cmd != nil {
		node = leaf
		path = splitRoute(leaf.cmd.Route)
	} else {
		cur, ok := root.child(word)
		if !ok {
			return func() { r.sendPlain(ctx, targetOf(msg), "Unknown command. Try /help") }
		}
		path = []string{word}
		for len(args) > 0 && !strings.HasPrefix(args[0], "-") {
			next, ok := cur.child(strings.ToLower(args[0]))
			if !ok {
				break
			}
			cur = next
			path = append(path, next.name)
			args = args[1:]
		}
		node = cur
	}

	if node.cmd == nil {
		help := r.helpText(path)
		return func() {
			if _, err := r.replier.SendText(ctx, targetOf(msg), help, &transport.SendOptions{ParseMode: "HTML", DisablePreview: true}); err != nil {
				r.log.Warn("reply failed", logx.Err(err))
			}
		}
	}
	cmd := *node.cmd

	if cmd.Access == AccessOwnerOnly && !r.IsOwner(msg.FromID) {
		r.log.Info("command denied", logx.String("cmd", cmd.Route), logx.String("from_id", msg.FromID))
		return func() { r.sendPlain(ctx, targetOf(msg), "⛔ Only bot owners can do that.") }
	}

	pos, flags, bools := parseFlags(args)
	rid := newReqID()
	req := &Request{
		Message:   *msg,
		Chat:      targetOf(msg),
		Path:      path,
		Command:   cmd.Route,
		Args:      pos,
		RawArgs:   args,
		Flags:     flags,
		BoolFlags: bools,
		ReqID:     rid,
		replier:   r.replier,
		Logger: r.log.With(
			logx.String("rid", rid),
			logx.String("transport", msg.Transport),
			logx.String("chat_id", msg.ChatID),
			logx.String("from_id", msg.FromID),
			logx.String("cmd", cmd.Route),
		),
	}
	timeout := cmd.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	final := Chain(cmd.Handle,
		MWRequestLog(),
		MWReplyError(),
		MWPanicRecover(),
		MWTimeout(timeout),
	)
	return func() { _ = final(ctx, req) }
}

// Package commands holds the chat commands of the bot.
package commands

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	"resetbot/internal/calendar"
	"resetbot/internal/config"
	"resetbot/internal/notifier"
	"resetbot/internal/render"
	"resetbot/internal/reset"
	"resetbot/internal/resets"
	"resetbot/internal/router"
	"resetbot/internal/scheduler"
)

// Resets is the mutation surface the commands drive.
type Resets interface {
	List(ctx context.Context) (reset.State, error)
	AddDaily(ctx context.Context, actor resets.Actor, in resets.DailyInput) (reset.Event, error)
	AddWeekly(ctx context.Context, actor resets.Actor, in resets.WeeklyInput) (reset.Event, error)
	Delete(ctx context.Context, actor resets.Actor, name string) (reset.Event, error)
	Edit(ctx context.Context, actor resets.Actor, name string, in resets.EditInput) (reset.Event, error)
}

// Scheduler is what /status and /refreshboards need from the poll loop.
type Scheduler interface {
	Status() scheduler.Status
	RunBoardRefresh(ctx context.Context)
}

type DeliveryStats interface {
	Stats() notifier.Stats
}

type Deps struct {
	Resets    Resets
	Scheduler Scheduler
	Notifier  DeliveryStats
	Clock     reset.Clock
	// Timing returns the live reset timing; it changes on config reload.
	Timing func() config.Timing
}

const (
	defaultUpcoming = 10
	maxUpcoming     = 50
)

type Handlers struct {
	d Deps
}

func New(d Deps) *Handlers {
	if d.Timing == nil {
		d.Timing = config.DefaultTiming
	}
	if d.Clock == nil {
		d.Clock = reset.NewClock(d.Timing().Location)
	}
	return &Handlers{d: d}
}

func (h *Handlers) Commands() []router.Command {
	return []router.Command{
		{
			Route:       "adddaily",
			Description: "track a daily reset",
			Usage:       "/adddaily <name> [emoji] [--slots HH:MM,HH:MM]",
			Access:      router.AccessOwnerOnly,
			Handle:      h.addDaily,
		},
		{
			Route:       "addweekly",
			Description: "track a weekly reset",
			Usage:       "/addweekly <name> <HH:MM> <weekday> [emoji]",
			Access:      router.AccessOwnerOnly,
			Handle:      h.addWeekly,
		},
		{
			Route:       "deletereset",
			Aliases:     []string{"delreset"},
			Description: "stop tracking a reset",
			Usage:       "/deletereset <name>",
			Access:      router.AccessOwnerOnly,
			Handle:      h.deleteReset,
		},
		{
			Route:       "editreset",
			Description: "change a tracked reset",
			Usage:       "/editreset <name> [--name N] [--time HH:MM] [--day D] [--emoji E] [--slots HH:MM,...]",
			Access:      router.AccessOwnerOnly,
			Handle:      h.editReset,
		},
		{
			Route:       "refreshboards",
			Description: "re-render the reset boards now",
			Usage:       "/refreshboards",
			Access:      router.AccessOwnerOnly,
			Timeout:     time.Minute,
			Handle:      h.refreshBoards,
		},
		{
			Route:       "resets",
			Description: "list tracked resets",
			Usage:       "/resets",
			Handle:      h.list,
		},
		{
			Route:       "upcoming",
			Aliases:     []string{"next"},
			Description: "next reset occurrences",
			Usage:       "/upcoming [count]",
			Handle:      h.upcoming,
		},
		{
			Route:       "status",
			Description: "scheduler and delivery state",
			Usage:       "/status",
			Handle:      h.status,
		},
	}
}

func actorOf(req *router.Request) resets.Actor {
	m := req.Message
	name := m.FromUsername
	if name == "" {
		name = m.FromID
	}
	return resets.Actor{Transport: m.Transport, ID: m.FromID, Name: name, ChatID: m.ChatID}
}

func (h *Handlers) addDaily(ctx context.Context, req *router.Request) error {
	if len(req.Args) == 0 {
		return router.Userf(nil, "Usage: /adddaily <name> [emoji] [--slots HH:MM,HH:MM]")
	}
	in := resets.DailyInput{Name: req.Args[0]}
	if len(req.Args) > 1 {
		in.Emoji = strings.Join(req.Args[1:], " ")
	}
	if v, ok := req.Flag("slots"); ok {
		in.Slots = strings.Split(v, ",")
	}
	e, err := h.d.Resets.AddDaily(ctx, actorOf(req), in)
	if err != nil {
		return userError(err)
	}
	return req.Reply(ctx, "✅ Added daily reset "+eventLabel(e)+".")
}

func (h *Handlers) addWeekly(ctx context.Context, req *router.Request) error {
	if len(req.Args) < 3 {
		return router.Userf(nil, "Usage: /addweekly <name> <HH:MM> <weekday> [emoji]")
	}
	in := resets.WeeklyInput{Name: req.Args[0], Time: req.Args[1], Day: req.Args[2]}
	if len(req.Args) > 3 {
		in.Emoji = strings.Join(req.Args[3:], " ")
	}
	e, err := h.d.Resets.AddWeekly(ctx, actorOf(req), in)
	if err != nil {
		return userError(err)
	}
	next := e.NextOccurrence(h.d.Timing().Location)
	return req.Reply(ctx, fmt.Sprintf("✅ Added weekly reset %s, next %s.", eventLabel(e), render.DayClock(next)))
}

func (h *Handlers) deleteReset(ctx context.Context, req *router.Request) error {
	name := strings.Join(req.Args, " ")
	if strings.TrimSpace(name) == "" {
		return router.Userf(nil, "Usage: /deletereset <name>")
	}
	e, err := h.d.Resets.Delete(ctx, actorOf(req), name)
	if err != nil {
		return userError(err)
	}
	return req.Reply(ctx, fmt.Sprintf("🗑️ Removed %s reset %s.", e.Frequency, eventLabel(e)))
}

func (h *Handlers) editReset(ctx context.Context, req *router.Request) error {
	name := strings.Join(req.Args, " ")
	if strings.TrimSpace(name) == "" {
		return router.Userf(nil, "Usage: /editreset <name> [--name N] [--time HH:MM] [--day D] [--emoji E] [--slots HH:MM,...]")
	}
	var in resets.EditInput
	if v, ok := req.Flag("name"); ok {
		in.Name = &v
	}
	if v, ok := req.Flag("time"); ok {
		in.Time = &v
	}
	if v, ok := req.Flag("day"); ok {
		in.Day = &v
	}
	if v, ok := req.Flag("emoji"); ok {
		in.Emoji = &v
	} else if req.BoolFlags["emoji"] {
		empty := ""
		in.Emoji = &empty
	}
	if v, ok := req.Flag("slots"); ok {
		slots := strings.Split(v, ",")
		in.Slots = &slots
	} else if req.BoolFlags["slots"] {
		slots := []string{}
		in.Slots = &slots
	}
	if in.Empty() {
		return router.Userf(nil, "Nothing to change. Pass at least one of --name, --time, --day, --emoji or --slots.")
	}
	e, err := h.d.Resets.Edit(ctx, actorOf(req), name, in)
	if err != nil {
		return userError(err)
	}
	return req.Reply(ctx, "✏️ Updated "+eventLabel(e)+".")
}

func (h *Handlers) refreshBoards(ctx context.Context, req *router.Request) error {
	if h.d.Scheduler == nil {
		return router.Userf(nil, "Scheduler is not running.")
	}
	h.d.Scheduler.RunBoardRefresh(ctx)
	return req.Reply(ctx, "🔄 Boards refreshed.")
}

func (h *Handlers) list(ctx context.Context, req *router.Request) error {
	st, err := h.d.Resets.List(ctx)
	if err != nil {
		return router.Userf(err, "Could not read the reset list.")
	}
	tm := h.d.Timing()
	now := h.d.Clock.Now().In(tm.Location)
	resetAt, err := reset.ComputeNextOccurrence(tm.DailyTime, reset.Daily, now, nil)
	if err != nil {
		return err
	}
	return req.Reply(ctx, render.DailyBoard(st.Daily, resetAt, now)+"\n\n"+render.WeeklyBoard(st.Weekly, now))
}

func (h *Handlers) upcoming(ctx context.Context, req *router.Request) error {
	limit := defaultUpcoming
	if len(req.Args) > 0 {
		n, err := strconv.Atoi(req.Args[0])
		if err != nil || n <= 0 {
			return router.Userf(err, "Count must be a positive number.")
		}
		limit = min(n, maxUpcoming)
	}
	st, err := h.d.Resets.List(ctx)
	if err != nil {
		return router.Userf(err, "Could not read the reset list.")
	}
	tm := h.d.Timing()
	now := h.d.Clock.Now().In(tm.Location)
	occ, err := calendar.Upcoming(st, calendar.Settings{Location: tm.Location, DailyTime: tm.DailyTime}, now, 0, limit)
	if err != nil {
		return err
	}
	items := make([]render.UpcomingItem, 0, len(occ))
	for _, o := range occ {
		items = append(items, render.UpcomingItem{Event: o.Event, At: o.At})
	}
	return req.Reply(ctx, render.Upcoming(items, now))
}

func (h *Handlers) status(ctx context.Context, req *router.Request) error {
	var b strings.Builder
	b.WriteString("📊 <b>Status</b>\n")
	if h.d.Scheduler != nil {
		s := h.d.Scheduler.Status()
		state := "stopped"
		if s.Running {
			state = "running"
		}
		fmt.Fprintf(&b, "\nScheduler: <b>%s</b> (%s, every %s)", state, html.EscapeString(s.Timezone), s.PollInterval)
		if !s.LastTick.IsZero() {
			fmt.Fprintf(&b, "\nLast tick: %s", render.DayClock(s.LastTick))
		}
		if !s.NextTick.IsZero() {
			fmt.Fprintf(&b, "\nNext tick: %s", render.DayClock(s.NextTick))
		}
		fmt.Fprintf(&b, "\nTicks: %d (skipped %d) · reminders %d (failed %d)", s.Ticks, s.Skipped, s.Fired, s.Failed)
		if s.BoardRefresh != "" {
			fmt.Fprintf(&b, "\nBoard refresh: <code>%s</code>", html.EscapeString(s.BoardRefresh))
			if !s.NextBoardRefresh.IsZero() {
				fmt.Fprintf(&b, " next %s", render.DayClock(s.NextBoardRefresh))
			}
		}
		if len(s.Served) > 0 {
			b.WriteString("\n\n<b>Served</b>")
			for _, f := range s.Served {
				fmt.Fprintf(&b, "\n• <code>%s/%s</code> until %s",
					html.EscapeString(f.Key.EventID), html.EscapeString(f.Key.Bucket), render.DayClock(f.Flag.ClearAt))
			}
		}
	}
	if h.d.Notifier != nil {
		ns := h.d.Notifier.Stats()
		fmt.Fprintf(&b, "\n\nDelivery: sent %d, failed %d", ns.Sent, ns.Failed)
	}
	return req.Reply(ctx, b.String())
}

func eventLabel(e reset.Event) string {
	name := "<b>" + html.EscapeString(e.Name) + "</b>"
	if e.Emoji != "" {
		return html.EscapeString(e.Emoji) + " " + name
	}
	return name
}

// userError maps service errors to chat-safe messages.
func userError(err error) error {
	switch {
	case errors.Is(err, resets.ErrNotFound):
		return router.Userf(err, "No reset with that name.")
	case errors.Is(err, resets.ErrDuplicateName):
		return router.Userf(err, "A reset with that name already exists.")
	case errors.Is(err, reset.ErrInvalidTimeFormat):
		return router.Userf(err, "Time must be HH:MM (24h), e.g. 20:00.")
	case errors.Is(err, reset.ErrInvalidWeekday), errors.Is(err, reset.ErrMissingWeekday):
		return router.Userf(err, "Weekday must be a full day name, e.g. thursday.")
	case errors.Is(err, resets.ErrInvalidInput):
		return router.Userf(err, invalidMessage(err))
	default:
		return err
	}
}

// invalidMessage keeps the innermost detail of an ErrInvalidInput chain.
func invalidMessage(err error) string {
	msg := err.Error()
	if i := strings.LastIndex(msg, ": "); i >= 0 && i+2 < len(msg) {
		return "Invalid input: " + msg[i+2:]
	}
	return "Invalid input."
}

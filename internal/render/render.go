// Package render turns reset events into the HTML shown on boards and in
// reminders. Telegram consumes it directly; the slack adapter converts it.
package render

import (
	"fmt"
	"html"
	"strings"
	"time"

	"resetbot/internal/reset"
)

const (
	DailyBoardTitle  = "🍄 <u><b>DAILY RESET</b></u>"
	WeeklyBoardTitle = "🍄 <u><b>WEEKLY RESETS</b></u>"
)

// Relative formats d as "in 1d 4h", "in 35m" or "now".
func Relative(d time.Duration) string {
	if d < time.Minute {
		return "now"
	}
	d = d.Truncate(time.Minute)
	days := d / (24 * time.Hour)
	d -= days * 24 * time.Hour
	hours := d / time.Hour
	mins := (d - hours*time.Hour) / time.Minute

	var parts []string
	if days > 0 {
		parts = append(parts, fmt.Sprintf("%dd", days))
	}
	if hours > 0 {
		parts = append(parts, fmt.Sprintf("%dh", hours))
	}
	if mins > 0 && days == 0 {
		parts = append(parts, fmt.Sprintf("%dm", mins))
	}
	return "in " + strings.Join(parts, " ")
}

// Clock formats t as "20:00 EST".
func Clock(t time.Time) string { return t.Format("15:04 MST") }

// DayClock formats t as "Thu 20:00 EST".
func DayClock(t time.Time) string { return t.Format("Mon 15:04 MST") }

func label(e reset.Event) string {
	name := "<b>" + html.EscapeString(strings.TrimSpace(e.Name)) + "</b>"
	if e.Emoji == "" {
		return name
	}
	return html.EscapeString(e.Emoji) + " " + name
}

// slotTimes returns the next occurrence of every slot of a daily event.
func slotTimes(e reset.Event, now time.Time) []time.Time {
	tods, err := e.SlotTimes()
	if err != nil {
		return nil
	}
	out := make([]time.Time, 0, len(tods))
	for _, tod := range tods {
		t, err := reset.ComputeNextOccurrence(tod, reset.Daily, now, nil)
		if err == nil {
			out = append(out, t)
		}
	}
	return out
}

// DailyBoard lists the daily events under the next reset time.
func DailyBoard(events []reset.Event, resetAt, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s — %s (%s)\n", DailyBoardTitle, Relative(resetAt.Sub(now)), Clock(resetAt))
	if len(events) == 0 {
		b.WriteString("\n<i>No daily resets tracked.</i>")
		return b.String()
	}
	for _, e := range events {
		b.WriteString("\n")
		b.WriteString(label(e))
		if slots := slotTimes(e, now); len(slots) > 0 {
			rel := make([]string, 0, len(slots))
			for _, t := range slots {
				rel = append(rel, Relative(t.Sub(now)))
			}
			b.WriteString("\n   " + strings.Join(rel, " · "))
		}
	}
	return b.String()
}

// WeeklyBoard lists weekly events with their (rolled forward) next reset.
func WeeklyBoard(events []reset.Event, now time.Time) string {
	var b strings.Builder
	b.WriteString(WeeklyBoardTitle + "\n")
	if len(events) == 0 {
		b.WriteString("\n<i>No weekly resets tracked.</i>")
		return b.String()
	}
	for _, e := range events {
		next := reset.RollForward(e.NextOccurrence(now.Location()), now)
		fmt.Fprintf(&b, "\n%s\n   %s (%s)", label(e), Relative(next.Sub(now)), DayClock(next))
	}
	return b.String()
}

func withMention(mention, body string) string {
	if mention = strings.TrimSpace(mention); mention == "" {
		return body
	}
	return html.EscapeString(mention) + "\n" + body
}

// DailyReminder is the single digest sent before the daily reset.
func DailyReminder(mention string, events []reset.Event, resetAt, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "⏰ <b>Daily Reset Reminder!</b>\nReset %s (%s)\n", Relative(resetAt.Sub(now)), Clock(resetAt))
	for _, e := range events {
		b.WriteString("\n")
		b.WriteString(label(e))
		if slots := slotTimes(e, now); len(slots) > 0 {
			at := make([]string, 0, len(slots))
			for _, t := range slots {
				at = append(at, Clock(t))
			}
			b.WriteString(" — " + strings.Join(at, " &amp; "))
		} else {
			b.WriteString(" — Don't forget to clear!")
		}
	}
	return withMention(mention, b.String())
}

// WeeklyReminder announces one weekly reset.
func WeeklyReminder(mention string, e reset.Event, next, now time.Time) string {
	body := fmt.Sprintf("⏰ <b>Weekly Reset Reminder!</b>\n%s resets %s (%s)",
		label(e), Relative(next.Sub(now)), DayClock(next))
	return withMention(mention, body)
}

// UpcomingItem is one row of the /upcoming listing.
type UpcomingItem struct {
	Event reset.Event
	At    time.Time
}

func Upcoming(items []UpcomingItem, now time.Time) string {
	if len(items) == 0 {
		return "<i>Nothing scheduled.</i>"
	}
	var b strings.Builder
	b.WriteString("<b>Upcoming resets</b>\n")
	for _, it := range items {
		fmt.Fprintf(&b, "\n%s — %s, %s", label(it.Event), DayClock(it.At), Relative(it.At.Sub(now)))
	}
	return b.String()
}

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"resetbot/internal/reset"
	"resetbot/internal/transport"
)

const (
	TransportTelegram = "telegram"
	TransportSlack    = "slack"

	DefaultPollInterval = 30 * time.Second
	DefaultBoardRefresh = "@every 1h"
	DefaultMention      = "@here"
	DefaultHTTPAddr     = "127.0.0.1:8080"
)

// Timing is the parsed form of the reset section.
type Timing struct {
	Location     *time.Location
	PollInterval time.Duration

	DailyTime       reset.TimeOfDay
	DailyLead       time.Duration
	DailyWindow     time.Duration
	DailyClearDelay time.Duration

	WeeklyLeads      []time.Duration
	WeeklyWindow     time.Duration
	WeeklyClearDelay time.Duration

	Mention      string
	BoardRefresh string
}

// DefaultTiming matches the reminder cadence the community is used to.
func DefaultTiming() Timing {
	loc, _ := reset.LoadZone("")
	return Timing{
		Location:         loc,
		PollInterval:     DefaultPollInterval,
		DailyTime:        reset.TimeOfDay{Hour: 20},
		DailyLead:        2 * time.Hour,
		DailyWindow:      time.Minute,
		DailyClearDelay:  2 * time.Hour,
		WeeklyLeads:      []time.Duration{48 * time.Hour, 24 * time.Hour},
		WeeklyWindow:     5 * time.Minute,
		WeeklyClearDelay: 0,
		Mention:          DefaultMention,
		BoardRefresh:     DefaultBoardRefresh,
	}
}

// ResolveTiming parses and validates the reset section.
func (c *Config) ResolveTiming() (Timing, error) {
	t := DefaultTiming()
	if c == nil {
		return t, nil
	}
	r := c.Reset
	var err error

	if strings.TrimSpace(r.Timezone) != "" {
		if t.Location, err = reset.LoadZone(r.Timezone); err != nil {
			return Timing{}, fmt.Errorf("reset.timezone: %w", err)
		}
	}
	if t.PollInterval, err = ParseDurationOrDefault("reset.poll_interval", r.PollInterval, t.PollInterval); err != nil {
		return Timing{}, err
	}
	if strings.TrimSpace(r.Daily.Time) != "" {
		if t.DailyTime, err = reset.ParseTimeOfDay(r.Daily.Time); err != nil {
			return Timing{}, fmt.Errorf("reset.daily.time: %w", err)
		}
	}
	if t.DailyLead, err = ParseDurationOrDefault("reset.daily.lead", r.Daily.Lead, t.DailyLead); err != nil {
		return Timing{}, err
	}
	if t.DailyWindow, err = ParseDurationOrDefault("reset.daily.window", r.Daily.Window, t.DailyWindow); err != nil {
		return Timing{}, err
	}
	if t.DailyClearDelay, err = parseDurationAllowZero("reset.daily.clear_delay", r.Daily.ClearDelay, t.DailyClearDelay); err != nil {
		return Timing{}, err
	}
	if len(r.Weekly.Leads) > 0 {
		t.WeeklyLeads = make([]time.Duration, 0, len(r.Weekly.Leads))
		seen := map[time.Duration]bool{}
		for i, raw := range r.Weekly.Leads {
			d, err := ParseDurationField(fmt.Sprintf("reset.weekly.leads[%d]", i), raw)
			if err != nil {
				return Timing{}, err
			}
			if d <= 0 {
				return Timing{}, fmt.Errorf("reset.weekly.leads[%d]: must be > 0", i)
			}
			if seen[d] {
				return Timing{}, fmt.Errorf("reset.weekly.leads[%d]: duplicate lead %s", i, d)
			}
			seen[d] = true
			t.WeeklyLeads = append(t.WeeklyLeads, d)
		}
	}
	if t.WeeklyWindow, err = ParseDurationOrDefault("reset.weekly.window", r.Weekly.Window, t.WeeklyWindow); err != nil {
		return Timing{}, err
	}
	if t.WeeklyClearDelay, err = parseDurationAllowZero("reset.weekly.clear_delay", r.Weekly.ClearDelay, t.WeeklyClearDelay); err != nil {
		return Timing{}, err
	}
	if r.Mention != nil {
		t.Mention = strings.TrimSpace(*r.Mention)
	}
	if s := strings.TrimSpace(r.BoardRefresh); s != "" {
		t.BoardRefresh = s
	}

	if err := t.validate(); err != nil {
		return Timing{}, err
	}
	return t, nil
}

func (t Timing) validate() error {
	var errs []error
	if t.PollInterval >= t.DailyWindow {
		errs = append(errs, fmt.Errorf("reset.poll_interval (%s) must be smaller than reset.daily.window (%s)", t.PollInterval, t.DailyWindow))
	}
	if t.PollInterval >= t.WeeklyWindow {
		errs = append(errs, fmt.Errorf("reset.poll_interval (%s) must be smaller than reset.weekly.window (%s)", t.PollInterval, t.WeeklyWindow))
	}
	if t.DailyLead >= 24*time.Hour {
		errs = append(errs, fmt.Errorf("reset.daily.lead (%s) must be under 24h", t.DailyLead))
	}
	if t.DailyWindow+t.DailyClearDelay >= 24*time.Hour {
		errs = append(errs, fmt.Errorf("reset.daily.window + clear_delay must be under 24h"))
	}
	for _, lead := range t.WeeklyLeads {
		if lead <= t.WeeklyWindow {
			errs = append(errs, fmt.Errorf("reset.weekly.leads: %s must exceed the window (%s)", lead, t.WeeklyWindow))
		}
		if lead > 7*24*time.Hour {
			errs = append(errs, fmt.Errorf("reset.weekly.leads: %s exceeds one week", lead))
		}
	}
	if t.WeeklyWindow+t.WeeklyClearDelay >= 7*24*time.Hour {
		errs = append(errs, fmt.Errorf("reset.weekly.window + clear_delay must be under 7d"))
	}
	if err := ValidateCronSpec(t.BoardRefresh); err != nil {
		errs = append(errs, fmt.Errorf("reset.board_refresh: %w", err))
	}
	return errors.Join(errs...)
}

// ValidateCronSpec accepts 5-field cron, descriptors and "@every <dur>".
func ValidateCronSpec(spec string) error {
	spec = strings.TrimSpace(spec)
	if strings.HasPrefix(spec, "@every ") {
		d, err := time.ParseDuration(strings.TrimSpace(strings.TrimPrefix(spec, "@every ")))
		if err != nil {
			return err
		}
		if d <= 0 {
			return fmt.Errorf("@every duration must be > 0")
		}
		return nil
	}
	_, err := CronParser().Parse(spec)
	return err
}

// CronParser is the parser shared by config validation and the scheduler.
func CronParser() cron.Parser {
	return cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
}

// ActiveTransport returns the configured transport name.
func (c *Config) ActiveTransport() string {
	s := strings.ToLower(strings.TrimSpace(c.Transport))
	if s == "" {
		return TransportTelegram
	}
	return s
}

// Owners returns the owner user IDs of the active transport.
func (c *Config) Owners() []string {
	var ids []string
	if c.ActiveTransport() == TransportSlack {
		ids = c.Slack.OwnerUserIDs
	} else {
		ids = c.Telegram.OwnerUserIDs
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if s := strings.TrimSpace(id); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (c *Config) ReminderTarget() transport.ChatTarget {
	return transport.ChatTarget{
		ChatID:   strings.TrimSpace(c.Channels.Reminders.ChatID),
		ThreadID: strings.TrimSpace(c.Channels.Reminders.ThreadID),
	}
}

func (c *Config) BoardTarget() transport.ChatTarget {
	if c.Channels.Boards == nil || strings.TrimSpace(c.Channels.Boards.ChatID) == "" {
		return c.ReminderTarget()
	}
	return transport.ChatTarget{
		ChatID:   strings.TrimSpace(c.Channels.Boards.ChatID),
		ThreadID: strings.TrimSpace(c.Channels.Boards.ThreadID),
	}
}

// NotifierSettings is the notifier section with defaults applied.
type NotifierSettings struct {
	RatePerSec  int
	Burst       int
	Timeout     time.Duration
	HistorySize int
}

func (c *Config) NotifierSettings() (NotifierSettings, error) {
	out := NotifierSettings{RatePerSec: 1, Burst: 3, Timeout: 15 * time.Second, HistorySize: 100}
	n := c.Notifier
	if n == nil {
		return out, nil
	}
	if n.RatePerSec > 0 {
		out.RatePerSec = n.RatePerSec
	}
	if n.Burst > 0 {
		out.Burst = n.Burst
	}
	if n.HistorySize > 0 {
		out.HistorySize = n.HistorySize
	}
	d, err := ParseDurationOrDefault("notifier.timeout", n.Timeout, out.Timeout)
	if err != nil {
		return NotifierSettings{}, err
	}
	out.Timeout = d
	return out, nil
}

// HTTPAddr returns the listen address, or "" when the server is disabled.
func (c *Config) HTTPAddr() string {
	if c.HTTP == nil || !c.HTTP.Enabled {
		return ""
	}
	if s := strings.TrimSpace(c.HTTP.Addr); s != "" {
		return s
	}
	return DefaultHTTPAddr
}

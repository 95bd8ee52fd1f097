package config

// Config is the on-disk configuration (JSON, or YAML coerced to JSON).
//
// Optional sections are pointers so "omitted" falls back to runtime defaults.
type Config struct {
	// Transport selects the chat adapter: "telegram" (default) or "slack".
	Transport string         `json:"transport,omitempty"`
	Telegram  TelegramConfig `json:"telegram"`
	Slack     SlackConfig    `json:"slack,omitempty"`
	Channels  ChannelsConfig `json:"channels"`
	Logging   LoggingConfig  `json:"logging"`
	Reset     ResetConfig    `json:"reset"`

	Notifier *NotifierConfig `json:"notifier,omitempty"`
	Storage  *StorageConfig  `json:"storage,omitempty"`
	HTTP     *HTTPConfig     `json:"http,omitempty"`
}

type TelegramConfig struct {
	Token        string   `json:"token"`
	OwnerUserIDs []string `json:"owner_user_ids"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type SlackConfig struct {
	BotToken      string   `json:"bot_token,omitempty"`
	SigningSecret string   `json:"signing_secret,omitempty"`
	OwnerUserIDs  []string `json:"owner_user_ids,omitempty"`
}

// ChannelRef addresses a chat (and optional thread/topic) on the active transport.
type ChannelRef struct {
	ChatID   string `json:"chat_id"`
	ThreadID string `json:"thread_id,omitempty"`
}

// ChannelsConfig names where reminders and the two boards are posted.
// Boards defaults to Reminders when omitted.
type ChannelsConfig struct {
	Reminders ChannelRef  `json:"reminders"`
	Boards    *ChannelRef `json:"boards,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
	Chat    LoggingChat `json:"chat"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingChat struct {
	Enabled    bool   `json:"enabled"`
	ChatID     string `json:"chat_id,omitempty"`
	ThreadID   string `json:"thread_id,omitempty"`
	MinLevel   string `json:"min_level,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

// ResetConfig controls reset timing. Durations are Go duration strings.
//
// Defaults:
//   - timezone: America/New_York
//   - poll_interval: 30s
//   - daily: time 20:00, lead 2h, window 1m, clear_delay 2h
//   - weekly: leads [48h, 24h], window 5m, clear_delay 0s
//   - mention: "@here"
//   - board_refresh: "@every 1h"
type ResetConfig struct {
	Timezone     string       `json:"timezone,omitempty"`
	PollInterval string       `json:"poll_interval,omitempty"`
	Daily        DailyConfig  `json:"daily"`
	Weekly       WeeklyConfig `json:"weekly"`
	// Mention prefixes every reminder. nil means "@here"; "" disables it.
	Mention      *string `json:"mention,omitempty"`
	BoardRefresh string  `json:"board_refresh,omitempty"`
}

type DailyConfig struct {
	Time       string `json:"time,omitempty"`
	Lead       string `json:"lead,omitempty"`
	Window     string `json:"window,omitempty"`
	ClearDelay string `json:"clear_delay,omitempty"`
}

type WeeklyConfig struct {
	Leads      []string `json:"leads,omitempty"`
	Window     string   `json:"window,omitempty"`
	ClearDelay string   `json:"clear_delay,omitempty"`
}

// NotifierConfig controls reminder delivery.
//
// Delivery is never retried; rate_per_sec only spaces sends out.
type NotifierConfig struct {
	RatePerSec  int    `json:"rate_per_sec,omitempty"`
	Burst       int    `json:"burst,omitempty"`
	Timeout     string `json:"timeout,omitempty"`
	HistorySize int    `json:"history_size,omitempty"`
}

// StorageConfig selects the event store.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/resetbot.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite
}

// HTTPConfig controls the health/calendar/slack endpoint server.
type HTTPConfig struct {
	Enabled     bool   `json:"enabled"`
	Addr        string `json:"addr,omitempty"` // default: "127.0.0.1:8080"
	ReadTimeout string `json:"read_timeout,omitempty"`
	// Pprof mounts net/http/pprof under /debug/pprof/. Keep the addr on loopback.
	Pprof bool `json:"pprof,omitempty"`
}

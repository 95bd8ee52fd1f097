package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	logx "resetbot/pkg/logx"
)

// Env overrides for secrets; they win over the file.
const (
	EnvTelegramToken      = "RESETBOT_TELEGRAM_TOKEN"
	EnvSlackBotToken      = "RESETBOT_SLACK_BOT_TOKEN"
	EnvSlackSigningSecret = "RESETBOT_SLACK_SIGNING_SECRET"
)

// ApplyEnv fills secrets from the environment.
func ApplyEnv(cfg *Config) {
	if cfg == nil {
		return
	}
	if v := strings.TrimSpace(os.Getenv(EnvTelegramToken)); v != "" {
		cfg.Telegram.Token = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvSlackBotToken)); v != "" {
		cfg.Slack.BotToken = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvSlackSigningSecret)); v != "" {
		cfg.Slack.SigningSecret = v
	}
}

// Validate checks the whole config. It reports every problem at once.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error

	switch cfg.ActiveTransport() {
	case TransportTelegram:
		if strings.TrimSpace(cfg.Telegram.Token) == "" {
			errs = append(errs, errors.New("telegram.token is required (or set "+EnvTelegramToken+")"))
		}
		if _, err := ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout); err != nil {
			errs = append(errs, err)
		}
	case TransportSlack:
		if strings.TrimSpace(cfg.Slack.BotToken) == "" {
			errs = append(errs, errors.New("slack.bot_token is required (or set "+EnvSlackBotToken+")"))
		}
		if strings.TrimSpace(cfg.Slack.SigningSecret) == "" {
			errs = append(errs, errors.New("slack.signing_secret is required (or set "+EnvSlackSigningSecret+")"))
		}
		if cfg.HTTPAddr() == "" {
			errs = append(errs, errors.New("slack transport needs http.enabled for slash commands"))
		}
	default:
		errs = append(errs, fmt.Errorf("transport: unknown %q (want telegram or slack)", cfg.Transport))
	}

	if cfg.ReminderTarget().IsZero() {
		errs = append(errs, errors.New("channels.reminders.chat_id is required"))
	}
	if !logx.ValidLevel(cfg.Logging.Level) {
		errs = append(errs, fmt.Errorf("logging.level: unknown level %q", cfg.Logging.Level))
	}
	if cfg.Logging.Chat.Enabled && !logx.ValidLevel(cfg.Logging.Chat.MinLevel) {
		errs = append(errs, fmt.Errorf("logging.chat.min_level: unknown level %q", cfg.Logging.Chat.MinLevel))
	}
	if _, err := cfg.ResolveTiming(); err != nil {
		errs = append(errs, err)
	}
	if _, err := cfg.NotifierSettings(); err != nil {
		errs = append(errs, err)
	}
	if s := cfg.Storage; s != nil {
		switch strings.ToLower(strings.TrimSpace(s.Driver)) {
		case "", "file", "sqlite", "badger":
		default:
			errs = append(errs, fmt.Errorf("storage.driver: unknown %q (want file, sqlite or badger)", s.Driver))
		}
		if _, err := ParseDurationField("storage.busy_timeout", s.BusyTimeout); err != nil {
			errs = append(errs, err)
		}
	}
	if h := cfg.HTTP; h != nil {
		if _, err := ParseDurationField("http.read_timeout", h.ReadTimeout); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

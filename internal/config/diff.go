package config

import (
	"reflect"
	"sort"
	"strings"

	logx "resetbot/pkg/logx"
)

// SummarizeConfigChange returns the changed sections, safe log attrs (never
// secrets) and the subset of changed sections that only take effect after a
// restart.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field, []string) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 8)
	restart := make([]string, 0, 4)
	attrs := make([]logx.Field, 0, 16)

	if oldCfg.ActiveTransport() != newCfg.ActiveTransport() {
		changed = append(changed, "transport")
		restart = append(restart, "transport")
		attrs = append(attrs, logx.String("transport", newCfg.ActiveTransport()))
	}

	tgSecret := strings.TrimSpace(oldCfg.Telegram.Token) != strings.TrimSpace(newCfg.Telegram.Token) ||
		strings.TrimSpace(oldCfg.Telegram.PollTimeout) != strings.TrimSpace(newCfg.Telegram.PollTimeout)
	if tgSecret || !reflect.DeepEqual(oldCfg.Telegram.OwnerUserIDs, newCfg.Telegram.OwnerUserIDs) {
		changed = append(changed, "telegram")
		if tgSecret {
			restart = append(restart, "telegram")
		}
		attrs = append(attrs,
			logx.Int("telegram.owner_count", len(newCfg.Telegram.OwnerUserIDs)),
			logx.Bool("telegram.token_changed", strings.TrimSpace(oldCfg.Telegram.Token) != strings.TrimSpace(newCfg.Telegram.Token)),
		)
	}

	slackSecret := strings.TrimSpace(oldCfg.Slack.BotToken) != strings.TrimSpace(newCfg.Slack.BotToken) ||
		strings.TrimSpace(oldCfg.Slack.SigningSecret) != strings.TrimSpace(newCfg.Slack.SigningSecret)
	if slackSecret || !reflect.DeepEqual(oldCfg.Slack.OwnerUserIDs, newCfg.Slack.OwnerUserIDs) {
		changed = append(changed, "slack")
		if slackSecret {
			restart = append(restart, "slack")
		}
		attrs = append(attrs, logx.Int("slack.owner_count", len(newCfg.Slack.OwnerUserIDs)))
	}

	if oldCfg.ReminderTarget() != newCfg.ReminderTarget() || oldCfg.BoardTarget() != newCfg.BoardTarget() {
		changed = append(changed, "channels")
		attrs = append(attrs,
			logx.String("channels.reminders", newCfg.ReminderTarget().ChatID),
			logx.String("channels.boards", newCfg.BoardTarget().ChatID),
		)
	}

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.chat_enabled", newCfg.Logging.Chat.Enabled),
		)
	}

	if !reflect.DeepEqual(oldCfg.Reset, newCfg.Reset) {
		changed = append(changed, "reset")
		attrs = append(attrs,
			logx.String("reset.timezone", strings.TrimSpace(newCfg.Reset.Timezone)),
			logx.String("reset.poll_interval", strings.TrimSpace(newCfg.Reset.PollInterval)),
			logx.String("reset.daily.time", strings.TrimSpace(newCfg.Reset.Daily.Time)),
			logx.Int("reset.weekly.lead_count", len(newCfg.Reset.Weekly.Leads)),
			logx.String("reset.board_refresh", strings.TrimSpace(newCfg.Reset.BoardRefresh)),
		)
	}

	oN, _ := oldCfg.NotifierSettings()
	nN, _ := newCfg.NotifierSettings()
	if oN != nN {
		changed = append(changed, "notifier")
		attrs = append(attrs,
			logx.Int("notifier.rate_per_sec", nN.RatePerSec),
			logx.Int("notifier.burst", nN.Burst),
			logx.Duration("notifier.timeout", nN.Timeout),
		)
	}

	var oS, nS StorageConfig
	if oldCfg.Storage != nil {
		oS = *oldCfg.Storage
	}
	if newCfg.Storage != nil {
		nS = *newCfg.Storage
	}
	if oS != nS {
		changed = append(changed, "storage")
		restart = append(restart, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(nS.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(nS.Path) != ""),
		)
	}

	if oldCfg.HTTPAddr() != newCfg.HTTPAddr() {
		changed = append(changed, "http")
		restart = append(restart, "http")
		attrs = append(attrs, logx.String("http.addr", newCfg.HTTPAddr()))
	}

	sort.Strings(changed)
	sort.Strings(restart)
	return changed, attrs, restart
}

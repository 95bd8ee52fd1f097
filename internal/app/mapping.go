package app

import (
	"strings"
	"time"

	"resetbot/internal/boards"
	"resetbot/internal/config"
	"resetbot/internal/notifier"
	"resetbot/internal/scheduler"
	"resetbot/internal/storage"
	"resetbot/internal/web"
	logx "resetbot/pkg/logx"
)

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	if cfg.Storage == nil {
		return storage.Config{Driver: "file", Path: storage.DefaultPath}, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" {
		driver = "file"
	}
	out := storage.Config{Driver: driver, Path: strings.TrimSpace(sc.Path)}
	if driver == "sqlite" || driver == "sqlite3" {
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, err
		}
		out.BusyTimeout = busy
	}
	return out, nil
}

func mapLogConfig(cfg *config.Config) logx.Config {
	l := cfg.Logging
	return logx.Config{
		Level:   l.Level,
		Console: l.Console,
		File:    logx.FileConfig{Enabled: l.File.Enabled, Path: l.File.Path},
		Chat: logx.ChatConfig{
			Enabled:    l.Chat.Enabled,
			ChatID:     l.Chat.ChatID,
			ThreadID:   l.Chat.ThreadID,
			MinLevel:   l.Chat.MinLevel,
			RatePerSec: l.Chat.RatePerSec,
		},
	}
}

func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	ns, err := cfg.NotifierSettings()
	if err != nil {
		return notifier.Config{}, err
	}
	return notifier.Config{
		RatePerSec:  ns.RatePerSec,
		Burst:       ns.Burst,
		Timeout:     ns.Timeout,
		HistorySize: ns.HistorySize,
	}, nil
}

func mapSchedulerConfig(cfg *config.Config, tm config.Timing) scheduler.Config {
	return scheduler.Config{Timing: tm, Target: cfg.ReminderTarget()}
}

func mapBoardSettings(cfg *config.Config, tm config.Timing) boards.Settings {
	return boards.Settings{Target: cfg.BoardTarget(), DailyTime: tm.DailyTime}
}

func mapWebConfig(cfg *config.Config) (web.Config, bool, error) {
	addr := cfg.HTTPAddr()
	if addr == "" {
		return web.Config{}, false, nil
	}
	rt, err := config.ParseDurationOrDefault("http.read_timeout", cfg.HTTP.ReadTimeout, 10*time.Second)
	if err != nil {
		return web.Config{}, false, err
	}
	return web.Config{Addr: addr, ReadTimeout: rt, Pprof: cfg.HTTP.Pprof}, true, nil
}

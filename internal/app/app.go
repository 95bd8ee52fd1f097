package app

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"resetbot/internal/boards"
	"resetbot/internal/commands"
	"resetbot/internal/config"
	"resetbot/internal/eventbus"
	"resetbot/internal/notifier"
	"resetbot/internal/reset"
	"resetbot/internal/resets"
	"resetbot/internal/router"
	"resetbot/internal/runtime/supervisor"
	"resetbot/internal/scheduler"
	"resetbot/internal/storage"
	"resetbot/internal/transport"
	"resetbot/internal/transport/slack"
	"resetbot/internal/transport/telegram"
	"resetbot/internal/web"
	logx "resetbot/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	adapter transport.Adapter

	notif  *notifier.Service
	boards *boards.Maintainer
	resets *resets.Service
	sched  *scheduler.Service
	router *router.Router
	web    *web.Server

	timing  atomic.Pointer[config.Timing]
	updates chan transport.Update
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	tm, err := cfg.ResolveTiming()
	if err != nil {
		return nil, err
	}

	a := &App{cfgPath: cfgPath, cfgm: cfgm, updates: make(chan transport.Update, 256)}
	a.timing.Store(&tm)

	// The adapter is built with a console logger; it is also the chat log sink.
	bootLog := logx.NewConsole("INFO").With(logx.String("comp", cfg.ActiveTransport()))
	var slashHandler *slack.Adapter
	switch cfg.ActiveTransport() {
	case config.TransportSlack:
		sa, err := slack.New(slack.Config{
			BotToken:      cfg.Slack.BotToken,
			SigningSecret: cfg.Slack.SigningSecret,
		}, bootLog)
		if err != nil {
			return nil, err
		}
		a.adapter, slashHandler = sa, sa
	default:
		pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
		if err != nil {
			return nil, err
		}
		ta, err := telegram.New(telegram.Config{Token: cfg.Telegram.Token, PollTimeout: pollTimeout}, bootLog)
		if err != nil {
			return nil, err
		}
		a.adapter = ta
	}

	logSvc, log := logx.New(mapLogConfig(cfg), a.adapter)
	a.logs = logSvc
	a.log = log.With(logx.String("comp", "app"))
	a.bus = eventbus.New()

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	a.store = store
	a.log.Info("storage opened", logx.String("driver", sc.Driver))

	clock := reset.ClockFunc(func() time.Time { return time.Now().In(a.currentTiming().Location) })

	ncfg, err := mapNotifierConfig(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	a.notif = notifier.New(ncfg, a.adapter, log.With(logx.String("comp", "notifier")), a.bus)
	a.boards = boards.New(mapBoardSettings(cfg, tm), store, a.adapter, clock, a.bus, log.With(logx.String("comp", "boards")))
	a.resets = resets.New(store, a.boards, clock, a.bus, log.With(logx.String("comp", "resets")))
	a.sched = scheduler.New(mapSchedulerConfig(cfg, tm), store, a.notif, a.resets, clock, log.With(logx.String("comp", "scheduler")))

	a.router = router.New(log.With(logx.String("comp", "router")), a.adapter, cfg.Owners())
	a.router.SetRegistry(commands.New(commands.Deps{
		Resets:    a.resets,
		Scheduler: a.sched,
		Notifier:  a.notif,
		Clock:     clock,
		Timing:    a.currentTiming,
	}).Commands())

	wc, enabled, err := mapWebConfig(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	if enabled {
		d := web.Deps{
			Resets:    a.resets,
			Scheduler: a.sched,
			Clock:     clock,
			Timing:    a.currentTiming,
		}
		if slashHandler != nil {
			d.Slack = slashHandler.SlashHandler()
		}
		a.web = web.New(wc, d, log.With(logx.String("comp", "web")))
	}
	return a, nil
}

func (a *App) currentTiming() config.Timing {
	if tm := a.timing.Load(); tm != nil {
		return *tm
	}
	return config.DefaultTiming()
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.NewSupervisor(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if _, err := mapStorageConfig(cfg); err != nil {
			return err
		}
		if _, err := mapNotifierConfig(cfg); err != nil {
			return err
		}
		if _, _, err := mapWebConfig(cfg); err != nil {
			return err
		}
		return nil
	})

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}
	if err := a.router.SyncMenu(a.sup.Context()); err != nil {
		a.log.Warn("command menu sync failed", logx.Err(err))
	}
	if a.web != nil {
		if err := a.web.Start(a.sup.Context()); err != nil {
			return fmt.Errorf("http: %w", err)
		}
	}
	if err := a.sched.Start(a.sup.Context()); err != nil {
		return err
	}

	a.sup.Go("router.dispatch", func(c context.Context) error {
		return a.router.DispatchLoop(c, a.updates)
	})
	// Boards are brought up to date once at boot; the cron entry keeps them there.
	a.sup.Go0("boards.initial", a.sched.RunBoardRefresh)

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config in the channel.
				for drained := false; !drained; {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						drained = true
					}
				}
				a.applyConfig(lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})
	a.sup.Go0("systemd.watchdog", a.watchdogLoop)

	sdNotify(a.log, daemon.SdNotifyReady)
	a.log.Info("app started", logx.String("transport", a.adapter.Name()))
	return nil
}

// applyConfig pushes a validated config into the running services.
func (a *App) applyConfig(oldCfg, newCfg *config.Config) {
	sections, attrs, restart := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Debug("config change summary", fields...)
	if len(restart) > 0 {
		a.log.Warn("config sections changed that need a restart", logx.String("sections", strings.Join(restart, ",")))
	}

	a.logs.Apply(mapLogConfig(newCfg))
	a.router.SetOwners(newCfg.Owners())

	if ncfg, err := mapNotifierConfig(newCfg); err != nil {
		a.log.Warn("invalid notifier config; keeping previous", logx.Err(err))
	} else {
		a.notif.Apply(ncfg)
	}

	tm, err := newCfg.ResolveTiming()
	if err != nil {
		a.log.Warn("invalid reset config; keeping previous timing", logx.Err(err))
		tm = a.currentTiming()
	} else {
		a.timing.Store(&tm)
	}
	a.boards.Apply(mapBoardSettings(newCfg, tm))
	a.sched.Apply(mapSchedulerConfig(newCfg, tm))

	if slices.Contains(sections, "channels") || slices.Contains(sections, "reset") {
		a.sup.Go0("boards.reload", a.sched.RunBoardRefresh)
	}
	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	if reason == "" {
		reason = StopUnknown
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	sdNotify(a.log, daemon.SdNotifyStopping)

	a.sup.Cancel()

	// step bounds one shutdown stage so a stuck component cannot stall the rest.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx := ctx
		if dl, ok := ctx.Deadline(); ok {
			if rem := time.Until(dl); rem < max {
				max = rem
			}
		}
		if max > 0 {
			var cancel context.CancelFunc
			stepCtx, cancel = context.WithTimeout(ctx, max)
			defer cancel()
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Duration("elapsed", time.Since(start)),
			)
			go func() {
				err := <-done
				a.log.Info("stop step finished after deadline",
					logx.String("name", name), logx.Duration("took", time.Since(start)), logx.Err(err))
			}()
		}
	}

	step("scheduler", 3*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("web", 2*time.Second, func(c context.Context) error {
		if a.web != nil {
			return a.web.Stop(c)
		}
		return nil
	})
	step("adapter", 3*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	step("supervisor", 3*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	step("storage", time.Second, func(context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}

package app

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	logx "resetbot/pkg/logx"
)

// sdNotify is a no-op outside systemd (NOTIFY_SOCKET unset).
func sdNotify(log logx.Logger, state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		log.Debug("sd_notify failed", logx.String("state", state), logx.Err(err))
		return
	}
	if sent {
		log.Debug("sd_notify", logx.String("state", state))
	}
}

// watchdogLoop pings the systemd watchdog at half its interval while the
// scheduler keeps ticking. A stuck poll loop stops the pings and lets
// systemd restart the unit.
func (a *App) watchdogLoop(ctx context.Context) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval <= 0 {
		return
	}
	every := interval / 2
	a.log.Info("systemd watchdog enabled", logx.Duration("interval", interval))

	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if !a.healthy(interval) {
				a.log.Warn("scheduler looks stalled; skipping watchdog ping")
				continue
			}
			sdNotify(a.log, daemon.SdNotifyWatchdog)
		}
	}
}

// healthy reports whether the scheduler ticked within max plus one poll
// interval.
func (a *App) healthy(max time.Duration) bool {
	st := a.sched.Status()
	if !st.Running {
		return false
	}
	if st.LastTick.IsZero() {
		return true
	}
	return time.Since(st.LastTick) <= max+st.PollInterval
}

// Package web serves the small HTTP surface of the bot: a health probe, the
// iCalendar feed of tracked resets and, for slack, the slash command
// endpoint.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	hpprof "net/http/pprof"
	"strings"
	"sync"
	"time"

	"resetbot/internal/calendar"
	"resetbot/internal/config"
	"resetbot/internal/reset"
	"resetbot/internal/runtime/supervisor"
	"resetbot/internal/scheduler"
	logx "resetbot/pkg/logx"
)

type Config struct {
	Addr        string
	ReadTimeout time.Duration
	Pprof       bool
}

type Lister interface {
	List(ctx context.Context) (reset.State, error)
}

type StatusSource interface {
	Status() scheduler.Status
}

type Deps struct {
	Resets    Lister
	Scheduler StatusSource
	Clock     reset.Clock
	Timing    func() config.Timing
	// Slack is mounted at /slack/commands when set.
	Slack http.Handler
	// CalendarName is the X-WR-CALNAME of the feed.
	CalendarName string
}

type Server struct {
	mu  sync.Mutex
	cfg Config
	h   http.Handler
	log logx.Logger

	srv *http.Server
	sup *supervisor.Supervisor
}

func New(cfg Config, d Deps, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	return &Server{cfg: cfg, h: Handler(d, cfg.Pprof, log), log: log}
}

// Handler builds the route table.
func Handler(d Deps, pprof bool, log logx.Logger) http.Handler {
	if d.Timing == nil {
		d.Timing = config.DefaultTiming
	}
	if d.Clock == nil {
		d.Clock = reset.NewClock(d.Timing().Location)
	}
	if strings.TrimSpace(d.CalendarName) == "" {
		d.CalendarName = "Resets"
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		health(w, d)
	})
	mux.HandleFunc("GET /resets.ics", func(w http.ResponseWriter, r *http.Request) {
		feed(w, r, d, log)
	})
	if d.Slack != nil {
		mux.Handle("POST /slack/commands", d.Slack)
	}
	if pprof {
		mux.HandleFunc("/debug/pprof/", hpprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", hpprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", hpprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", hpprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", hpprof.Trace)
	}
	return mux
}

type healthBody struct {
	OK        bool      `json:"ok"`
	Scheduler string    `json:"scheduler"`
	Timezone  string    `json:"timezone,omitempty"`
	LastTick  time.Time `json:"last_tick,omitzero"`
	NextTick  time.Time `json:"next_tick,omitzero"`
	Ticks     uint64    `json:"ticks"`
	Skipped   uint64    `json:"skipped"`
	Fired     uint64    `json:"fired"`
	Failed    uint64    `json:"failed"`
}

func health(w http.ResponseWriter, d Deps) {
	body := healthBody{OK: true, Scheduler: "disabled"}
	if d.Scheduler != nil {
		st := d.Scheduler.Status()
		body.Scheduler = "stopped"
		if st.Running {
			body.Scheduler = "running"
		}
		body.OK = st.Running
		body.Timezone = st.Timezone
		body.LastTick, body.NextTick = st.LastTick, st.NextTick
		body.Ticks, body.Skipped, body.Fired, body.Failed = st.Ticks, st.Skipped, st.Fired, st.Failed
	}
	w.Header().Set("Content-Type", "application/json")
	if !body.OK {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(body)
}

func feed(w http.ResponseWriter, r *http.Request, d Deps, log logx.Logger) {
	st, err := d.Resets.List(r.Context())
	if err != nil {
		log.Warn("calendar feed: load failed", logx.Err(err))
		http.Error(w, "store unavailable", http.StatusServiceUnavailable)
		return
	}
	tm := d.Timing()
	out, err := calendar.Export(st, calendar.Settings{
		Location:  tm.Location,
		DailyTime: tm.DailyTime,
		Name:      d.CalendarName,
	}, d.Clock.Now())
	if err != nil {
		log.Warn("calendar feed: export failed", logx.Err(err))
		http.Error(w, "export failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `inline; filename="resets.ics"`)
	_, _ = w.Write([]byte(out))
}

// Start binds the listener and serves under a restart loop.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sup != nil {
		return nil
	}
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:           s.h,
		ReadTimeout:       s.cfg.ReadTimeout,
		ReadHeaderTimeout: s.cfg.ReadTimeout,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       time.Minute,
	}
	s.srv = srv
	s.sup = supervisor.NewSupervisor(ctx,
		supervisor.WithLogger(s.log),
		supervisor.WithCancelOnError(false),
	)
	s.log.Info("http listening", logx.String("addr", ln.Addr().String()))
	s.sup.Go("http.serve", func(c context.Context) error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv, sup := s.srv, s.sup
	s.srv, s.sup = nil, nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	err := srv.Shutdown(ctx)
	if err != nil {
		_ = srv.Close()
	}
	sup.Cancel()
	_ = sup.Wait(ctx)
	s.log.Info("http stopped")
	return err
}

package command

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/tokmesh-client/internal/cli/output"
	"github.com/yndnr/tokmesh-client/internal/client/config"
	"github.com/yndnr/tokmesh-client/internal/core/events"
	"github.com/yndnr/tokmesh-client/internal/core/service"
	"github.com/yndnr/tokmesh-client/internal/infra/confloader"
	"github.com/yndnr/tokmesh-client/internal/infra/shutdown"
	"github.com/yndnr/tokmesh-client/internal/platform"
	"github.com/yndnr/tokmesh-client/internal/storage"
	"github.com/yndnr/tokmesh-client/internal/telemetry/logger"
	"github.com/yndnr/tokmesh-client/internal/telemetry/metric"
)

// shutdownTimeout bounds the cleanup hooks of watch.
const shutdownTimeout = 10 * time.Second

// WatchCommand keeps the session fresh until interrupted.
func WatchCommand() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Keep the session refreshed and monitored until interrupted",
		Description: "Restores the stored session, refreshes it before expiry, validates it\n" +
			"periodically and follows changes made by other processes. Events are\n" +
			"printed one per line. Without a stored session, watch waits for one.",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "metrics-addr",
				Usage: "Serve Prometheus metrics on this address (overrides metrics.addr)",
			},
			&cli.DurationFlag{
				Name:  "duration",
				Usage: "Exit after this long (0 runs until interrupted)",
			},
		},
		Action: withRuntime(watch),
	}
}

// eventLine is the machine-readable form of one event.
type eventLine struct {
	Time      time.Time `json:"time" yaml:"time"`
	Type      string    `json:"type" yaml:"type"`
	SessionID string    `json:"session_id,omitempty" yaml:"session_id,omitempty"`
	UserID    string    `json:"user_id,omitempty" yaml:"user_id,omitempty"`
	Conflict  string    `json:"conflict,omitempty" yaml:"conflict,omitempty"`
	Error     string    `json:"error,omitempty" yaml:"error,omitempty"`
}

func newEventLine(e events.Event) eventLine {
	line := eventLine{Time: e.Time.UTC(), Type: string(e.Type)}
	if e.Session != nil {
		line.SessionID = e.Session.SessionID
		line.UserID = e.Session.User.ID
	}
	if e.Conflict != nil {
		line.Conflict = string(e.Conflict.Type)
	}
	if e.Err != nil {
		line.Error = e.Err.Error()
	}
	return line
}

// String is the table-mode rendering.
func (l eventLine) String() string {
	s := l.Time.Format(output.TimeLayout) + "  " + l.Type
	if l.SessionID != "" {
		s += "  session=" + l.SessionID
	}
	if l.Conflict != "" {
		s += "  conflict=" + l.Conflict
	}
	if l.Error != "" {
		s += "  error=" + l.Error
	}
	return s
}

// eventPrinter serializes event output from concurrent publishers.
type eventPrinter struct {
	mu sync.Mutex
	rt *runtime
}

func (p *eventPrinter) print(e events.Event) {
	line := newEventLine(e)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.rt.flags.Output.IsMachineReadable() {
		if err := p.rt.flags.Formatter().Format(p.rt.out, line); err != nil {
			p.rt.log.Warn("print event", "error", err)
		}
		return
	}
	fmt.Fprintln(p.rt.out, line.String())
}

func watch(c *cli.Context, rt *runtime) error {
	ctx := c.Context
	if d := c.Duration("duration"); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	printer := &eventPrinter{rt: rt}
	unsubscribe := rt.manager.Events().Subscribe(printer.print)
	defer unsubscribe()

	// 1. Session
	if res := rt.manager.RestoreSession(ctx); !res.Success {
		rt.log.Info("no stored session, waiting for one")
	}

	// 2. Monitor
	visibility := platform.NewSignals()
	monitor := newMonitor(rt, visibility)

	handler := shutdown.NewHandler(shutdownTimeout)
	handler.OnShutdown(func(context.Context) error {
		monitor.Stop()
		return nil
	})

	if err := monitor.Start(ctx); err != nil {
		return fmt.Errorf("start monitor: %w", err)
	}

	// 3. Metrics
	addr := c.String("metrics-addr")
	if addr == "" {
		addr = rt.cfg.Metrics.Addr
	}
	if addr != "" {
		srv, err := serveMetrics(rt, addr)
		if err != nil {
			handler.Shutdown()
			return err
		}
		handler.OnShutdown(srv.Shutdown)
	}

	// 4. Config hot reload
	if path := rt.loader.FilePath(); path != "" {
		w, err := watchConfig(rt, path)
		if err != nil {
			rt.log.Warn("config hot reload disabled", "path", path, "error", err)
		} else {
			handler.OnShutdown(func(context.Context) error { return w.Stop() })
		}
	}

	// 5. Client certificate renewal; runtime.Close stops the watcher
	if rt.certs != nil {
		rt.certs.StartAsync()
	}

	// 6. Resume from suspension counts as becoming visible
	stopResume := notifyResume(visibility)
	handler.OnShutdown(func(context.Context) error {
		stopResume()
		return nil
	})

	rt.log.Info("watching session", "key", rt.store.Key(), "metrics_addr", addr)
	err := handler.Wait(ctx)

	if rerr := rt.render(output.NewStatusView(monitor.Status())); rerr != nil {
		rt.log.Warn("print status", "error", rerr)
	}
	return err
}

// newMonitor wires the monitor to the store, a connectivity probe and
// the visibility signals.
func newMonitor(rt *runtime, visibility *platform.Signals) *service.SessionMonitor {
	deps := service.MonitorDeps{
		Changes:           rt.store,
		VisibilitySignals: visibility,
	}
	if addr := config.ProbeAddress(rt.cfg); addr != "" {
		deps.NetworkProbe = platform.NewTCPProbe(addr, rt.cfg.Monitor.ProbeTimeout)
	}

	return service.NewSessionMonitor(rt.manager, rt.remote, config.ToMonitorConfig(rt.cfg), deps,
		service.WithClock(rt.clock),
		service.WithLogger(rt.log),
		service.WithRecorder(rt.metrics),
		service.WithBus(rt.manager.Events()),
	)
}

// serveMetrics registers the TTL gauge and backend metrics, then serves
// /metrics on addr.
func serveMetrics(rt *runtime, addr string) (*http.Server, error) {
	registry := rt.metrics.Registry()
	registry.MustRegister(metric.NewTTLCollector(func() (time.Time, bool) {
		rec := rt.manager.CurrentSession()
		if rec == nil {
			return time.Time{}, false
		}
		return rec.ExpiresAtTime(), true
	}, rt.clock.Now))
	if b, ok := rt.backend.(*storage.BadgerBackend); ok {
		b.RegisterMetrics(registry)
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen metrics: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", rt.metrics.Handler())
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			rt.log.Error("metrics server stopped", "error", err)
		}
	}()
	rt.log.Info("serving metrics", "addr", ln.Addr().String())
	return srv, nil
}

// watchConfig applies log.level changes from the config file without a
// restart. Other settings take effect on the next start.
func watchConfig(rt *runtime, path string) (*confloader.Watcher, error) {
	w, err := confloader.NewWatcher(confloader.WithWatcherLogger(logger.AsSlog(rt.log)))
	if err != nil {
		return nil, err
	}
	if err := w.Watch(path); err != nil {
		w.Stop()
		return nil, err
	}

	w.OnChange(func(string) {
		cfg, err := config.Reload(rt.loader)
		if err != nil {
			rt.log.Warn("config reload rejected", "error", err)
			return
		}
		if cfg.Log.Level != logger.GetLevel() {
			logger.SetLevel(cfg.Log.Level)
			rt.log.Info("log level changed", "level", cfg.Log.Level)
		}
	})
	w.StartAsync()
	return w, nil
}

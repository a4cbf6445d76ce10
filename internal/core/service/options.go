package service

import (
	"github.com/jonboulle/clockwork"

	"github.com/yndnr/tokmesh-client/internal/core/events"
	"github.com/yndnr/tokmesh-client/internal/telemetry/logger"
)

// deps are the collaborators shared by SessionManager and SessionMonitor.
type deps struct {
	clock    clockwork.Clock
	logger   logger.Logger
	recorder Recorder
	bus      *events.Bus
}

func newDeps(component string, opts []Option) deps {
	d := deps{}
	for _, opt := range opts {
		opt(&d)
	}
	if d.clock == nil {
		d.clock = clockwork.NewRealClock()
	}
	if d.logger == nil {
		d.logger = logger.Default()
	}
	d.logger = d.logger.With("component", component)
	if d.recorder == nil {
		d.recorder = nopRecorder{}
	}
	if d.bus == nil {
		d.bus = events.NewBus(d.logger)
	}
	return d
}

// Option configures a SessionManager or SessionMonitor.
type Option func(*deps)

// WithClock sets the clock used for expiry arithmetic and timers.
func WithClock(clock clockwork.Clock) Option {
	return func(d *deps) {
		d.clock = clock
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(d *deps) {
		d.logger = l
	}
}

// WithRecorder reports measurements to r.
func WithRecorder(r Recorder) Option {
	return func(d *deps) {
		d.recorder = r
	}
}

// WithBus publishes events on bus. Manager and monitor normally share one.
func WithBus(bus *events.Bus) Option {
	return func(d *deps) {
		d.bus = bus
	}
}

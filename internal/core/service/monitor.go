package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/yndnr/tokmesh-client/internal/core/domain"
	"github.com/yndnr/tokmesh-client/internal/core/events"
	"github.com/yndnr/tokmesh-client/internal/storage"
	"github.com/yndnr/tokmesh-client/internal/telemetry/logger"
)

// SessionSource is the part of SessionManager the monitor drives.
type SessionSource interface {
	CurrentSession() *domain.SessionRecord
	ClearSession(ctx context.Context)
	AdoptSession(ctx context.Context, rec *domain.SessionRecord) error
	ReassertSession(ctx context.Context) bool
}

// ChangeSource delivers changes of the shared session key.
// Implemented by storage.Store.
type ChangeSource interface {
	Key() string
	Watch(fn func(storage.StoreChange)) (func(), error)
}

// NetworkProbe reports current connectivity.
type NetworkProbe interface {
	Probe(ctx context.Context) domain.NetworkStatus
}

// SignalSource pushes boolean transitions (online/offline, visible/hidden).
// Subscribe returns a function that removes fn.
type SignalSource interface {
	Subscribe(fn func(on bool)) func()
}

// MonitorDeps are the optional collaborators of a SessionMonitor. A nil
// field disables the feature that needs it.
type MonitorDeps struct {
	Changes           ChangeSource
	NetworkProbe      NetworkProbe
	NetworkSignals    SignalSource
	VisibilitySignals SignalSource
}

// MonitorConfig configures a SessionMonitor.
type MonitorConfig struct {
	ValidityCheckInterval time.Duration
	NetworkCheckInterval  time.Duration
	HeartbeatInterval     time.Duration

	EnableNetworkMonitoring    bool
	EnableVisibilityMonitoring bool
	EnableStorageMonitoring    bool
	EnableHeartbeat            bool
}

// DefaultMonitorConfig returns the default monitor configuration.
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		ValidityCheckInterval:      5 * time.Minute,
		NetworkCheckInterval:       30 * time.Second,
		HeartbeatInterval:          60 * time.Second,
		EnableNetworkMonitoring:    true,
		EnableVisibilityMonitoring: true,
		EnableStorageMonitoring:    true,
		EnableHeartbeat:            true,
	}
}

// SessionMonitor watches an active session: periodic remote validation,
// connectivity and visibility transitions, a heartbeat, and changes of
// the shared session record written by other processes.
type SessionMonitor struct {
	source    SessionSource
	validator SessionValidator
	cfg       MonitorConfig
	deps      MonitorDeps

	clock    clockwork.Clock
	logger   logger.Logger
	recorder Recorder
	bus      *events.Bus

	// lifeMu serializes Start and Stop.
	lifeMu sync.Mutex

	// gate is held for reading by every callback and for writing by Stop
	// while it clears running, so no callback runs after Stop returns.
	gate    sync.RWMutex
	running atomic.Bool

	mu        sync.Mutex
	network   domain.NetworkStatus
	visible   bool
	stats     domain.MonitoringStats
	cancel    context.CancelFunc
	disposers []func()

	wg sync.WaitGroup
}

// NewSessionMonitor creates a monitor over source. validator may be nil,
// in which case validity checks only test local expiry.
func NewSessionMonitor(source SessionSource, validator SessionValidator, cfg MonitorConfig, deps MonitorDeps, opts ...Option) *SessionMonitor {
	d := newDeps("session-monitor", opts)

	defaults := DefaultMonitorConfig()
	if cfg.ValidityCheckInterval <= 0 {
		cfg.ValidityCheckInterval = defaults.ValidityCheckInterval
	}
	if cfg.NetworkCheckInterval <= 0 {
		cfg.NetworkCheckInterval = defaults.NetworkCheckInterval
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = defaults.HeartbeatInterval
	}

	return &SessionMonitor{
		source:    source,
		validator: validator,
		cfg:       cfg,
		deps:      deps,
		clock:     d.clock,
		logger:    d.logger,
		recorder:  d.recorder,
		bus:       d.bus,
		network:   domain.NetworkStatus{IsOnline: true, ConnectionType: domain.ConnectionUnknown},
		visible:   true,
	}
}

// Events returns the bus monitor events are published on.
func (m *SessionMonitor) Events() *events.Bus {
	return m.bus
}

func (m *SessionMonitor) publish(e events.Event) {
	if e.Time.IsZero() {
		e.Time = m.clock.Now()
	}
	m.bus.Publish(e)
}

// ============================================================================
// Lifecycle
// ============================================================================

// Start begins monitoring. Calling Start on a running monitor is a no-op.
// The monitor keeps running after ctx is cancelled; use Stop.
func (m *SessionMonitor) Start(ctx context.Context) error {
	m.lifeMu.Lock()

	if m.running.Load() {
		m.lifeMu.Unlock()
		return nil
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	now := m.clock.Now().UnixMilli()

	// 1. Reset state
	m.mu.Lock()
	m.stats = domain.MonitoringStats{StartTime: now, LastActivity: now}
	m.network = domain.NetworkStatus{IsOnline: true, ConnectionType: domain.ConnectionUnknown}
	m.visible = true
	m.cancel = cancel
	m.disposers = nil
	m.mu.Unlock()

	m.running.Store(true)

	// 2. Timers
	m.every(runCtx, m.cfg.ValidityCheckInterval, func(ctx context.Context) {
		m.CheckSessionValidity(ctx)
	})
	if m.cfg.EnableNetworkMonitoring && m.deps.NetworkProbe != nil {
		m.every(runCtx, m.cfg.NetworkCheckInterval, m.probeNetwork)
	}
	if m.cfg.EnableHeartbeat {
		m.every(runCtx, m.cfg.HeartbeatInterval, func(context.Context) {
			m.heartbeat()
		})
	}

	// 3. Listeners
	var disposers []func()
	if m.cfg.EnableNetworkMonitoring && m.deps.NetworkSignals != nil {
		disposers = append(disposers, m.deps.NetworkSignals.Subscribe(func(online bool) {
			m.guard(func() {
				status := domain.NetworkStatus{IsOnline: online, ConnectionType: domain.ConnectionUnknown}
				if !online {
					status.ConnectionType = domain.ConnectionNone
				}
				m.setNetwork(status)
			})
		}))
	}
	if m.cfg.EnableVisibilityMonitoring && m.deps.VisibilitySignals != nil {
		disposers = append(disposers, m.deps.VisibilitySignals.Subscribe(func(visible bool) {
			m.guard(func() {
				m.setVisible(runCtx, visible)
			})
		}))
	}
	if m.cfg.EnableStorageMonitoring && m.deps.Changes != nil {
		stop, err := m.deps.Changes.Watch(func(change storage.StoreChange) {
			m.guard(func() {
				m.HandleStorageChange(runCtx, change)
			})
		})
		if err != nil {
			m.logger.Warn("storage monitoring unavailable", "error", err)
		} else {
			disposers = append(disposers, stop)
		}
	}

	m.mu.Lock()
	m.disposers = disposers
	m.mu.Unlock()
	m.lifeMu.Unlock()

	m.logger.Info("monitoring started",
		"validity_check_interval", m.cfg.ValidityCheckInterval,
		"network_check_interval", m.cfg.NetworkCheckInterval,
		"heartbeat_interval", m.cfg.HeartbeatInterval)
	m.publish(events.Event{Type: events.MonitoringStarted})
	return nil
}

// Stop ends monitoring: listeners are removed, timers stopped and every
// callback has returned when Stop returns. Calling Stop on a stopped
// monitor is a no-op. Stop must not be called from an event handler
// running on a monitor callback.
func (m *SessionMonitor) Stop() {
	m.lifeMu.Lock()

	if !m.running.Load() {
		m.lifeMu.Unlock()
		return
	}

	// 1. Remove listeners and cancel in-flight work
	m.mu.Lock()
	disposers := m.disposers
	cancel := m.cancel
	m.disposers = nil
	m.cancel = nil
	m.mu.Unlock()

	for _, dispose := range disposers {
		dispose()
	}
	cancel()

	// 2. Wait out running callbacks, then join the loops
	m.gate.Lock()
	m.running.Store(false)
	m.gate.Unlock()
	m.wg.Wait()

	m.lifeMu.Unlock()

	m.logger.Info("monitoring stopped")
	m.publish(events.Event{Type: events.MonitoringStopped})
}

// guard runs fn if the monitor is running.
func (m *SessionMonitor) guard(fn func()) {
	m.gate.RLock()
	defer m.gate.RUnlock()
	if !m.running.Load() {
		return
	}
	fn()
}

// every runs fn on each tick until ctx is cancelled. The ticker is
// created before every returns so that ticks are never lost.
func (m *SessionMonitor) every(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	ticker := m.clock.NewTicker(interval)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				m.guard(func() { fn(ctx) })
			}
		}
	}()
}

func (m *SessionMonitor) touch() {
	m.mu.Lock()
	m.stats.LastActivity = m.clock.Now().UnixMilli()
	m.mu.Unlock()
}

// ============================================================================
// Validity
// ============================================================================

// CheckSessionValidity validates the current session with the remote
// service. It returns false without a remote call when there is no
// session or it has expired locally. A failed validation publishes
// ValidityCheckFailed; it never clears the session.
func (m *SessionMonitor) CheckSessionValidity(ctx context.Context) bool {
	rec := m.source.CurrentSession()
	if rec == nil || rec.IsExpiredAt(m.clock.Now()) {
		return false
	}

	m.mu.Lock()
	m.stats.ValidityChecks++
	m.stats.LastActivity = m.clock.Now().UnixMilli()
	m.mu.Unlock()

	if m.validator == nil {
		m.recorder.RecordValidityCheck(true)
		return true
	}

	if _, err := m.validator.Validate(ctx, rec.AccessToken); err != nil {
		m.recorder.RecordValidityCheck(false)
		m.logger.Warn("session validity check failed", "session_id", rec.SessionID, "error", err)
		m.publish(events.Event{
			Type:    events.ValidityCheckFailed,
			Session: rec,
			Err:     domain.ErrValidityCheck.WithCause(err),
		})
		return false
	}

	m.recorder.RecordValidityCheck(true)
	m.logger.Debug("session valid", "session_id", rec.SessionID)
	return true
}

func (m *SessionMonitor) setVisible(ctx context.Context, visible bool) {
	m.mu.Lock()
	wasVisible := m.visible
	m.visible = visible
	m.mu.Unlock()

	if visible && !wasVisible {
		m.logger.Debug("application visible, checking session")
		m.touch()
		m.CheckSessionValidity(ctx)
	}
}

// ============================================================================
// Network
// ============================================================================

func (m *SessionMonitor) probeNetwork(ctx context.Context) {
	m.setNetwork(m.deps.NetworkProbe.Probe(ctx))
}

// setNetwork records status and publishes NetworkOffline or NetworkOnline
// when connectivity flips.
func (m *SessionMonitor) setNetwork(status domain.NetworkStatus) {
	m.mu.Lock()
	was := m.network.IsOnline
	m.network = status
	edge := was != status.IsOnline
	if edge {
		m.stats.LastActivity = m.clock.Now().UnixMilli()
		if !status.IsOnline {
			m.stats.NetworkDisconnections++
		}
	}
	m.mu.Unlock()

	if !edge {
		return
	}
	if status.IsOnline {
		m.logger.Info("network online", "connection_type", status.ConnectionType)
		m.publish(events.Event{Type: events.NetworkOnline})
		return
	}
	m.logger.Warn("network offline")
	m.recorder.RecordNetworkDisconnection()
	m.publish(events.Event{Type: events.NetworkOffline})
}

// ============================================================================
// Heartbeat
// ============================================================================

func (m *SessionMonitor) heartbeat() {
	rec := m.source.CurrentSession()
	if rec == nil {
		return
	}

	m.mu.Lock()
	m.stats.Heartbeats++
	m.stats.LastActivity = m.clock.Now().UnixMilli()
	m.mu.Unlock()

	m.recorder.RecordHeartbeat()
	m.publish(events.Event{Type: events.SessionHeartbeat, Session: rec})
}

// ============================================================================
// Status
// ============================================================================

// Status returns a snapshot of the monitor state.
func (m *SessionMonitor) Status() domain.MonitoringStatus {
	m.mu.Lock()
	status := domain.MonitoringStatus{
		IsActive:      m.running.Load(),
		NetworkStatus: m.network,
		Stats:         m.stats,
	}
	m.mu.Unlock()

	status.CurrentSession = m.source.CurrentSession()
	return status
}

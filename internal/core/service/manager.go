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

// State is the lifecycle state of a SessionManager.
type State string

const (
	StateUninitialized   State = "uninitialized"
	StateRestoring       State = "restoring"
	StateActive          State = "active"
	StateUnauthenticated State = "unauthenticated"
	StateRefreshing      State = "refreshing"
	StateCleared         State = "cleared"
)

// ManagerConfig configures refresh scheduling and persistence.
type ManagerConfig struct {
	// RefreshThreshold is how long before expiry the refresh fires.
	RefreshThreshold time.Duration

	// MaxRetryAttempts is the total number of refresh calls per refresh.
	MaxRetryAttempts int

	// RetryDelay is the wait after the first failed attempt; it doubles
	// after each further failure.
	RetryDelay time.Duration

	// EnablePersistence writes sessions to the store. When false sessions
	// live in memory only.
	EnablePersistence bool
}

// DefaultManagerConfig returns the default manager configuration.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		RefreshThreshold:  5 * time.Minute,
		MaxRetryAttempts:  3,
		RetryDelay:        time.Second,
		EnablePersistence: true,
	}
}

// RestoreResult is the outcome of RestoreSession.
type RestoreResult struct {
	Success       bool
	RequiresLogin bool
	Session       *domain.SessionRecord
}

// SessionManager owns the authoritative in-memory session.
//
// Records are immutable once installed: every mutation replaces the
// current pointer. Each replacement bumps an epoch so that a refresh
// started for an older record cannot install its result.
type SessionManager struct {
	store  *storage.Store
	remote RemoteSessionService
	cfg    ManagerConfig

	clock    clockwork.Clock
	logger   logger.Logger
	recorder Recorder
	bus      *events.Bus

	// writeMu orders store writes with in-memory replacements. It is
	// taken before mu and never held while publishing.
	writeMu sync.Mutex

	mu            sync.Mutex
	current       *domain.SessionRecord
	state         State
	epoch         uint64
	timer         clockwork.Timer
	timerStop     chan struct{}
	sessionCtx    context.Context
	sessionCancel context.CancelFunc
	closed        bool

	refreshing atomic.Bool
	wg         sync.WaitGroup
}

// NewSessionManager creates a manager. store may be nil, in which case
// sessions are kept in memory only.
func NewSessionManager(store *storage.Store, remote RemoteSessionService, cfg ManagerConfig, opts ...Option) *SessionManager {
	d := newDeps("session-manager", opts)

	defaults := DefaultManagerConfig()
	if cfg.MaxRetryAttempts <= 0 {
		cfg.MaxRetryAttempts = defaults.MaxRetryAttempts
	}
	if cfg.RetryDelay < 0 {
		cfg.RetryDelay = 0
	}
	if cfg.RefreshThreshold < 0 {
		cfg.RefreshThreshold = 0
	}

	return &SessionManager{
		store:    store,
		remote:   remote,
		cfg:      cfg,
		clock:    d.clock,
		logger:   d.logger,
		recorder: d.recorder,
		bus:      d.bus,
		state:    StateUninitialized,
	}
}

// Events returns the bus lifecycle events are published on.
func (m *SessionManager) Events() *events.Bus {
	return m.bus
}

// Config returns the effective configuration.
func (m *SessionManager) Config() ManagerConfig {
	return m.cfg
}

func (m *SessionManager) persistent() bool {
	return m.cfg.EnablePersistence && m.store != nil
}

func (m *SessionManager) publish(e events.Event) {
	if e.Time.IsZero() {
		e.Time = m.clock.Now()
	}
	m.bus.Publish(e)
}

// ============================================================================
// Persist / Restore / Clear
// ============================================================================

// PersistSession validates payload, stores it as the current session and
// schedules its refresh. It fails with domain.ErrInvalidSessionData when a
// required field is missing, in which case nothing changes. A store
// failure is logged and the session is kept in memory.
func (m *SessionManager) PersistSession(ctx context.Context, payload *domain.SessionPayload) (*domain.SessionRecord, error) {
	// 1. Validate and build the record; a reused session ID is replaced
	m.mu.Lock()
	if payload != nil && m.current != nil && payload.SessionID == m.current.SessionID {
		payload = payload.Clone()
		payload.SessionID = ""
	}
	m.mu.Unlock()
	rec, err := domain.NewSessionRecord(payload, m.clock.Now())
	if err != nil {
		m.logger.Warn("rejected session payload", "error", err)
		return nil, err
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	// 2. Write through to the store
	if m.persistent() && !m.store.Persist(ctx, rec) {
		m.logger.Warn("session kept in memory only", "session_id", rec.SessionID)
	}

	// 3. Install and schedule
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, domain.ErrInvalidArgument.WithDetails("session manager is closed")
	}
	m.installLocked(rec, m.refreshDelay(rec))
	m.mu.Unlock()

	m.logger.Info("session persisted",
		"session_id", rec.SessionID,
		"user_id", rec.User.ID,
		"expires_at", rec.ExpiresAtTime())
	m.recorder.SetSessionActive(true)

	return rec.Clone(), nil
}

// RestoreSession loads the stored session. A valid record becomes current
// and SessionRestored is published; an absent, malformed or expired record
// yields RequiresLogin.
func (m *SessionManager) RestoreSession(ctx context.Context) RestoreResult {
	m.mu.Lock()
	m.state = StateRestoring
	m.mu.Unlock()

	var rec *domain.SessionRecord
	if m.persistent() {
		rec = m.store.Restore(ctx)
	}

	if rec == nil {
		m.mu.Lock()
		if m.current == nil {
			m.state = StateUnauthenticated
		} else {
			m.state = StateActive
		}
		m.mu.Unlock()
		m.logger.Debug("no session to restore")
		return RestoreResult{RequiresLogin: true}
	}

	m.writeMu.Lock()
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		m.writeMu.Unlock()
		return RestoreResult{RequiresLogin: true}
	}
	m.installLocked(rec, m.refreshDelay(rec))
	m.mu.Unlock()
	m.writeMu.Unlock()

	m.logger.Info("session restored",
		"session_id", rec.SessionID,
		"user_id", rec.User.ID,
		"expires_at", rec.ExpiresAtTime())
	m.recorder.SetSessionActive(true)
	m.publish(events.Event{Type: events.SessionRestored, Session: rec.Clone()})

	return RestoreResult{Success: true, Session: rec.Clone()}
}

// ClearSession cancels the pending refresh, removes the stored record and
// forgets the current session. It is idempotent and publishes
// SessionCleared on every call.
func (m *SessionManager) ClearSession(ctx context.Context) {
	m.clear(ctx, 0, false)
	m.publish(events.Event{Type: events.SessionCleared})
}

// clear drops the current session. With matchEpoch it only does so if
// the epoch is still epoch, and reports whether it cleared.
func (m *SessionManager) clear(ctx context.Context, epoch uint64, matchEpoch bool) bool {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	m.mu.Lock()
	if matchEpoch && m.epoch != epoch {
		m.mu.Unlock()
		return false
	}
	prev := m.current
	m.stopTimerLocked()
	m.cancelSessionLocked()
	m.epoch++
	m.current = nil
	m.state = StateCleared
	m.mu.Unlock()

	if m.persistent() {
		m.store.Clear(ctx)
	}

	if prev != nil {
		m.logger.Info("session cleared", "session_id", prev.SessionID)
	}
	m.recorder.SetSessionActive(false)
	return true
}

// ============================================================================
// Cross-process convergence
// ============================================================================

// AdoptSession makes rec, written by another process, the current session
// without writing it back. It fails if rec is invalid or expired.
func (m *SessionManager) AdoptSession(ctx context.Context, rec *domain.SessionRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	if rec.IsExpiredAt(m.clock.Now()) {
		return domain.ErrSessionExpired.WithDetails(rec.SessionID)
	}
	rec = rec.Clone()

	m.writeMu.Lock()
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		m.writeMu.Unlock()
		return domain.ErrInvalidArgument.WithDetails("session manager is closed")
	}
	m.installLocked(rec, m.refreshDelay(rec))
	m.mu.Unlock()
	m.writeMu.Unlock()

	m.logger.Info("adopted session from shared store",
		"session_id", rec.SessionID,
		"user_id", rec.User.ID)
	m.recorder.SetSessionActive(true)
	m.publish(events.Event{Type: events.SessionAdopted, Session: rec.Clone()})
	return nil
}

// ReassertSession writes the current session back to the store so other
// processes converge on it. It reports whether a record was written.
func (m *SessionManager) ReassertSession(ctx context.Context) bool {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	m.mu.Lock()
	rec := m.current
	m.mu.Unlock()

	if rec == nil || !m.persistent() {
		return false
	}
	ok := m.store.Persist(ctx, rec)
	m.logger.Info("reasserted local session", "session_id", rec.SessionID, "written", ok)
	return ok
}

// ============================================================================
// Accessors
// ============================================================================

// CurrentSession returns a copy of the current session, or nil.
func (m *SessionManager) CurrentSession() *domain.SessionRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current.Clone()
}

// HasValidSession reports whether a session exists and has not expired.
func (m *SessionManager) HasValidSession() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current != nil && !m.current.IsExpiredAt(m.clock.Now())
}

// AccessToken returns the current access token, or "" without a session.
func (m *SessionManager) AccessToken() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return ""
	}
	return m.current.AccessToken
}

// State returns the lifecycle state.
func (m *SessionManager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Close stops the refresh timer, cancels any refresh in flight and waits
// for background work to finish. The stored session is kept.
func (m *SessionManager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.stopTimerLocked()
	m.cancelSessionLocked()
	m.mu.Unlock()

	m.wg.Wait()
}

// ============================================================================
// Scheduling
// ============================================================================

// installLocked replaces the current session and reschedules its refresh.
func (m *SessionManager) installLocked(rec *domain.SessionRecord, delay time.Duration) {
	m.cancelSessionLocked()
	m.epoch++
	m.current = rec
	m.state = StateActive
	m.sessionCtx, m.sessionCancel = context.WithCancel(context.Background())
	m.scheduleLocked(delay)
}

func (m *SessionManager) cancelSessionLocked() {
	if m.sessionCancel != nil {
		m.sessionCancel()
		m.sessionCancel = nil
		m.sessionCtx = nil
	}
}

// refreshDelay is max(0, expires_at - now - refreshThreshold).
func (m *SessionManager) refreshDelay(rec *domain.SessionRecord) time.Duration {
	d := rec.ExpiresAtTime().Sub(m.clock.Now()) - m.cfg.RefreshThreshold
	if d < 0 {
		return 0
	}
	return d
}

// minRefreshInterval bounds how soon a refreshed session is refreshed again.
const minRefreshInterval = time.Second

// refreshedDelay is refreshDelay for a record just returned by the
// identity service. Tokens that live no longer than the threshold would
// otherwise be refreshed again at once, so the delay is at least half the
// new TTL and never below minRefreshInterval.
func (m *SessionManager) refreshedDelay(rec *domain.SessionRecord) time.Duration {
	d := m.refreshDelay(rec)
	floor := rec.TTL(m.clock.Now()) / 2
	if floor < minRefreshInterval {
		floor = minRefreshInterval
	}
	if d >= floor {
		return d
	}
	m.logger.Warn("session lifetime is within the refresh threshold",
		"session_id", rec.SessionID,
		"ttl", rec.TTL(m.clock.Now()),
		"refresh_threshold", m.cfg.RefreshThreshold,
		"next_refresh_in", floor)
	return floor
}

func (m *SessionManager) scheduleLocked(delay time.Duration) {
	m.stopTimerLocked()
	if m.current == nil || m.closed {
		return
	}

	timer := m.clock.NewTimer(delay)
	stop := make(chan struct{})
	m.timer = timer
	m.timerStop = stop
	epoch := m.epoch

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		select {
		case <-timer.Chan():
			m.onRefreshTimer(epoch)
		case <-stop:
		}
	}()

	m.logger.Debug("refresh scheduled",
		"session_id", m.current.SessionID,
		"in", delay)
}

func (m *SessionManager) stopTimerLocked() {
	if m.timer == nil {
		return
	}
	m.timer.Stop()
	close(m.timerStop)
	m.timer = nil
	m.timerStop = nil
}

func (m *SessionManager) onRefreshTimer(epoch uint64) {
	m.mu.Lock()
	stale := m.epoch != epoch || m.closed
	m.mu.Unlock()
	if stale {
		return
	}
	if err := m.RefreshSession(context.Background()); err != nil {
		m.logger.Debug("scheduled refresh ended", "error", err)
	}
}

package service

import (
	"context"
	"time"

	"github.com/yndnr/tokmesh-client/internal/core/domain"
	"github.com/yndnr/tokmesh-client/internal/core/events"
	"github.com/yndnr/tokmesh-client/internal/telemetry/logger"
)

// RefreshSession exchanges the current refresh token for a new session.
//
// At most one refresh runs at a time; a call made while another is in
// flight returns nil immediately, as does a call without a session.
// Transient failures are retried up to MaxRetryAttempts calls in total,
// waiting RetryDelay, 2*RetryDelay, 4*RetryDelay... between them. A
// permanent failure or exhausted retries clear the session after
// publishing RefreshError and SessionExpired.
//
// A result that arrives after the session was cleared or replaced is
// discarded.
func (m *SessionManager) RefreshSession(ctx context.Context) error {
	if !m.refreshing.CompareAndSwap(false, true) {
		m.logger.Debug("refresh already in flight")
		return nil
	}
	defer m.refreshing.Store(false)

	// 1. Snapshot the session being refreshed
	m.mu.Lock()
	if m.current == nil || m.closed {
		m.mu.Unlock()
		return nil
	}
	base := m.current
	epoch := m.epoch
	sessionCtx := m.sessionCtx
	m.stopTimerLocked()
	m.state = StateRefreshing
	m.mu.Unlock()

	// Clearing or replacing the session aborts the refresh.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if sessionCtx != nil {
		stop := context.AfterFunc(sessionCtx, cancel)
		defer stop()
	}

	ctx = logger.WithLogger(ctx, m.logger)
	ctx = logger.WithSessionID(logger.WithOperation(ctx, "refresh"), base.SessionID)
	log := logger.L(ctx)

	// 2. Call the remote service with bounded retries
	var lastErr error
	for attempt := 1; attempt <= m.cfg.MaxRetryAttempts; attempt++ {
		m.recorder.RecordRefreshAttempt()

		rec, err := m.refreshOnce(ctx, base)
		if err == nil {
			return m.completeRefresh(ctx, epoch, rec)
		}
		lastErr = err

		if ctx.Err() != nil {
			break
		}
		if domain.IsPermanent(err) {
			log.Warn("refresh rejected", "attempt", attempt, "error", err)
			break
		}
		if attempt == m.cfg.MaxRetryAttempts {
			log.Warn("refresh failed", "attempt", attempt, "error", err)
			break
		}

		m.recorder.RecordRefreshOutcome(outcomeRetry)
		wait := m.retryWait(attempt)
		log.Info("refresh failed, retrying", "attempt", attempt, "retry_in", wait, "error", err)

		select {
		case <-m.clock.After(wait):
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}
	}

	// 3. Aborted by the caller or by a session change
	if ctx.Err() != nil {
		m.mu.Lock()
		if m.epoch == epoch && !m.closed {
			m.state = StateActive
			m.scheduleLocked(m.refreshDelay(m.current))
		}
		m.mu.Unlock()
		log.Debug("refresh aborted", "error", ctx.Err())
		return ctx.Err()
	}

	return m.failRefresh(epoch, base, lastErr)
}

// refreshOnce performs a single remote call and builds the new record.
// Fields the service omits are carried over from base.
func (m *SessionManager) refreshOnce(ctx context.Context, base *domain.SessionRecord) (*domain.SessionRecord, error) {
	payload, err := m.remote.Refresh(ctx, base.RefreshToken)
	if err != nil {
		return nil, err
	}
	if payload == nil {
		return nil, domain.ErrRefreshTransient.WithDetails("empty refresh response")
	}

	payload = payload.Clone()
	if payload.RefreshToken == "" {
		payload.RefreshToken = base.RefreshToken
	}
	if payload.User == nil {
		u := base.User
		payload.User = &u
	}

	// Every refresh gets its own session ID so peers sharing the store see
	// the rotated tokens as a change.
	if payload.SessionID == base.SessionID {
		payload.SessionID = ""
	}

	rec, err := domain.NewSessionRecord(payload, m.clock.Now())
	if err != nil {
		return nil, domain.ErrRefreshTransient.WithCause(err)
	}
	return rec, nil
}

// retryWait is RetryDelay * 2^(attempt-1).
func (m *SessionManager) retryWait(attempt int) time.Duration {
	shift := attempt - 1
	if shift > 16 {
		shift = 16
	}
	return m.cfg.RetryDelay << shift
}

func (m *SessionManager) completeRefresh(ctx context.Context, epoch uint64, rec *domain.SessionRecord) error {
	m.writeMu.Lock()

	m.mu.Lock()
	stale := m.epoch != epoch || m.closed
	m.mu.Unlock()
	if stale {
		m.writeMu.Unlock()
		m.logger.Info("discarded refresh result for replaced session", "session_id", rec.SessionID)
		return nil
	}

	if m.persistent() && !m.store.Persist(context.WithoutCancel(ctx), rec) {
		m.logger.Warn("refreshed session kept in memory only", "session_id", rec.SessionID)
	}

	m.mu.Lock()
	m.installLocked(rec, m.refreshedDelay(rec))
	m.mu.Unlock()
	m.writeMu.Unlock()

	m.logger.Info("session refreshed",
		"session_id", rec.SessionID,
		"expires_at", rec.ExpiresAtTime())
	m.recorder.RecordRefreshOutcome(outcomeSuccess)
	m.publish(events.Event{Type: events.SessionRefreshed, Session: rec.Clone()})
	return nil
}

func (m *SessionManager) failRefresh(epoch uint64, base *domain.SessionRecord, cause error) error {
	m.mu.Lock()
	stale := m.epoch != epoch || m.closed
	m.mu.Unlock()
	if stale {
		return nil
	}

	m.recorder.RecordRefreshOutcome(outcomeExhausted)
	err := domain.ErrRefreshTerminal.WithCause(cause)

	m.logger.Error("session refresh gave up", "session_id", base.SessionID, "error", cause)
	m.publish(events.Event{Type: events.RefreshError, Session: base.Clone(), Err: err})
	m.publish(events.Event{Type: events.SessionExpired, Session: base.Clone(), Err: err})

	if m.clear(context.Background(), epoch, true) {
		m.publish(events.Event{Type: events.SessionCleared})
	}
	return err
}

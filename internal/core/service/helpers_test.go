package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/yndnr/tokmesh-client/internal/core/domain"
	"github.com/yndnr/tokmesh-client/internal/core/events"
	"github.com/yndnr/tokmesh-client/internal/storage"
	"github.com/yndnr/tokmesh-client/internal/telemetry/logger"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// fakeClock is the part of the clockwork fake clock the tests drive.
type fakeClock interface {
	clockwork.Clock
	Advance(d time.Duration)
}

func newFakeClock() fakeClock {
	return clockwork.NewFakeClockAt(testNow)
}

func testPayload(now time.Time, userID string, ttl time.Duration) *domain.SessionPayload {
	return &domain.SessionPayload{
		AccessToken:  "tmtk_access_" + userID,
		RefreshToken: "tmrt_refresh_" + userID,
		ExpiresAt:    now.Add(ttl).UnixMilli(),
		User:         &domain.User{ID: userID, Email: userID + "@example.com", Name: userID},
	}
}

func testRecord(now time.Time, userID, sessionID string, ttl time.Duration) *domain.SessionRecord {
	return &domain.SessionRecord{
		AccessToken:   "tmtk_access_" + sessionID,
		RefreshToken:  "tmrt_refresh_" + sessionID,
		ExpiresAt:     now.Add(ttl).UnixMilli(),
		User:          domain.User{ID: userID, Email: userID + "@example.com"},
		LastRefreshed: now.UnixMilli(),
		SessionID:     sessionID,
	}
}

func newTestStore(backend storage.Backend, clock clockwork.Clock) *storage.Store {
	return storage.NewStore(backend,
		storage.WithClock(clock),
		storage.WithLogger(logger.AsSlog(logger.Nop())))
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// ============================================================================
// Mocks
// ============================================================================

type mockRemote struct {
	refreshCalls  atomic.Int32
	validateCalls atomic.Int32

	refreshFn  func(ctx context.Context, call int, refreshToken string) (*domain.SessionPayload, error)
	validateFn func(ctx context.Context, accessToken string) (*domain.SessionPayload, error)
}

func (m *mockRemote) Refresh(ctx context.Context, refreshToken string) (*domain.SessionPayload, error) {
	call := int(m.refreshCalls.Add(1))
	if m.refreshFn == nil {
		return nil, domain.ErrRefreshTransient
	}
	return m.refreshFn(ctx, call, refreshToken)
}

func (m *mockRemote) Validate(ctx context.Context, accessToken string) (*domain.SessionPayload, error) {
	m.validateCalls.Add(1)
	if m.validateFn == nil {
		return nil, nil
	}
	return m.validateFn(ctx, accessToken)
}

type mockRecorder struct {
	mu        sync.Mutex
	active    bool
	attempts  int
	outcomes  []string
	checks    map[bool]int
	beats     int
	offline   int
	conflicts []string
}

func newMockRecorder() *mockRecorder {
	return &mockRecorder{checks: make(map[bool]int)}
}

func (r *mockRecorder) SetSessionActive(active bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = active
}

func (r *mockRecorder) RecordRefreshAttempt() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts++
}

func (r *mockRecorder) RecordRefreshOutcome(outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}

func (r *mockRecorder) RecordValidityCheck(valid bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checks[valid]++
}

func (r *mockRecorder) RecordHeartbeat() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.beats++
}

func (r *mockRecorder) RecordNetworkDisconnection() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.offline++
}

func (r *mockRecorder) RecordConflict(conflictType string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conflicts = append(r.conflicts, conflictType)
}

// eventLog records every event published on a bus.
type eventLog struct {
	mu     sync.Mutex
	events []events.Event
}

func newEventLog(bus *events.Bus) *eventLog {
	l := &eventLog{}
	bus.Subscribe(func(e events.Event) {
		l.mu.Lock()
		l.events = append(l.events, e)
		l.mu.Unlock()
	})
	return l
}

func (l *eventLog) types() []events.Type {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]events.Type, len(l.events))
	for i, e := range l.events {
		out[i] = e.Type
	}
	return out
}

func (l *eventLog) count(t events.Type) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

func (l *eventLog) last(t events.Type) (events.Event, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(l.events) - 1; i >= 0; i-- {
		if l.events[i].Type == t {
			return l.events[i], true
		}
	}
	return events.Event{}, false
}

// managerFixture wires a manager to a memory-backed store.
type managerFixture struct {
	clock    clockwork.Clock
	backend  *storage.MemoryBackend
	store    *storage.Store
	remote   *mockRemote
	recorder *mockRecorder
	manager  *SessionManager
	log      *eventLog
}

func newManagerFixture(t *testing.T, clock clockwork.Clock, cfg ManagerConfig) *managerFixture {
	t.Helper()
	f := &managerFixture{
		clock:    clock,
		backend:  storage.NewMemoryBackend(),
		remote:   &mockRemote{},
		recorder: newMockRecorder(),
	}
	f.store = newTestStore(f.backend, clock)
	f.manager = NewSessionManager(f.store, f.remote, cfg,
		WithClock(clock),
		WithLogger(logger.Nop()),
		WithRecorder(f.recorder))
	f.log = newEventLog(f.manager.Events())
	t.Cleanup(func() {
		f.manager.Close()
		f.backend.Close()
	})
	return f
}

func fastConfig() ManagerConfig {
	return ManagerConfig{
		RefreshThreshold:  5 * time.Minute,
		MaxRetryAttempts:  3,
		RetryDelay:        time.Millisecond,
		EnablePersistence: true,
	}
}

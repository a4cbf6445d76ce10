package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spaolacci/murmur3"

	"github.com/yndnr/tokmesh-client/internal/core/domain"
)

// DefaultKey is the key the session record is stored under.
const DefaultKey = "tokmesh.session"

// ErrWatchUnsupported is returned by Store.Watch when the backend cannot
// report changes.
var ErrWatchUnsupported = errors.New("storage: backend does not support watching")

const watchReadTimeout = 5 * time.Second

// WriteRecorder receives store write outcomes. Implemented by
// metric.SessionMetrics.
type WriteRecorder interface {
	RecordStoreWrite(ok bool)
}

// StoreChange is a decoded change of the session key.
type StoreChange struct {
	Key string

	// Record is the decoded record; nil when Removed or Malformed.
	Record *domain.SessionRecord

	// Removed is true when the key no longer exists.
	Removed bool

	// Malformed is true when the value could not be decoded.
	Malformed bool
}

// state identifies what the store last knew the key to hold.
type state struct {
	present bool
	sum     uint32
}

func stateOf(raw []byte) state {
	return state{present: true, sum: murmur3.Sum32(raw)}
}

var absent = state{}

// Store persists exactly one session record under a fixed key.
type Store struct {
	backend  Backend
	key      string
	sealer   Sealer
	clock    clockwork.Clock
	logger   *slog.Logger
	recorder WriteRecorder

	mu     sync.Mutex
	synced bool
	last   state

	watchMu sync.Mutex
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithKey overrides DefaultKey.
func WithKey(key string) StoreOption {
	return func(s *Store) {
		if key != "" {
			s.key = key
		}
	}
}

// WithSealer encrypts values at rest.
func WithSealer(sealer Sealer) StoreOption {
	return func(s *Store) {
		s.sealer = sealer
	}
}

// WithClock sets the clock used for expiry checks.
func WithClock(clock clockwork.Clock) StoreOption {
	return func(s *Store) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) StoreOption {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithWriteRecorder reports write outcomes to r.
func WithWriteRecorder(r WriteRecorder) StoreOption {
	return func(s *Store) {
		s.recorder = r
	}
}

// NewStore creates a store over backend. A nil backend is allowed and
// behaves as storage that is permanently unavailable.
func NewStore(backend Backend, opts ...StoreOption) *Store {
	s := &Store{
		backend: backend,
		key:     DefaultKey,
		clock:   clockwork.NewRealClock(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Key returns the storage key.
func (s *Store) Key() string {
	return s.key
}

// Persist writes rec. It reports false when the record could not be
// written for any reason, and never panics.
func (s *Store) Persist(ctx context.Context, rec *domain.SessionRecord) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("session store persist panicked", "panic", fmt.Sprint(r))
			ok = false
		}
		if s.recorder != nil {
			s.recorder.RecordStoreWrite(ok)
		}
	}()

	if rec == nil {
		return false
	}
	if s.backend == nil {
		s.logger.Warn("session store unavailable", "error", domain.ErrStorageUnavailable.WithDetails("no backend"))
		return false
	}

	raw, err := s.encode(rec)
	if err != nil {
		s.logger.Error("session store encode failed", "error", err)
		return false
	}
	// Marked before the write so the watch echo of this write is dropped.
	prev := s.swapSynced(stateOf(raw))
	if err := s.backend.Set(ctx, s.key, raw); err != nil {
		s.revertSynced(prev)
		s.logger.Warn("session store write failed",
			"key", s.key,
			"error", domain.ErrStorageUnavailable.WithCause(err))
		return false
	}
	return true
}

// Restore reads the record. It returns nil when the key is absent, the
// value is malformed or the record has expired; the latter two evict the
// key.
func (s *Store) Restore(ctx context.Context) (rec *domain.SessionRecord) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("session store restore panicked", "panic", fmt.Sprint(r))
			rec = nil
		}
	}()

	rec, err := s.Load(ctx)
	switch {
	case err == nil:
	case errors.Is(err, ErrKeyNotFound):
		return nil
	case errors.Is(err, domain.ErrStorageCorrupt):
		s.logger.Warn("evicting malformed session record", "key", s.key, "error", err)
		s.evict(ctx)
		return nil
	default:
		s.logger.Warn("session store read failed", "key", s.key, "error", err)
		return nil
	}

	if rec.IsExpiredAt(s.clock.Now()) {
		s.logger.Info("evicting expired session record",
			"key", s.key,
			"session_id", rec.SessionID,
			"expired_at", rec.ExpiresAtTime())
		s.evict(ctx)
		return nil
	}
	return rec
}

// Load reads and decodes the record without evicting anything.
// It returns ErrKeyNotFound when absent, an error wrapping
// domain.ErrStorageCorrupt when malformed, and
// domain.ErrStorageUnavailable when the backend fails.
func (s *Store) Load(ctx context.Context) (*domain.SessionRecord, error) {
	if s.backend == nil {
		return nil, domain.ErrStorageUnavailable.WithDetails("no backend")
	}
	raw, err := s.backend.Get(ctx, s.key)
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			s.markSynced(absent)
			return nil, ErrKeyNotFound
		}
		return nil, domain.ErrStorageUnavailable.WithCause(err)
	}
	s.markSynced(stateOf(raw))
	return s.Decode(raw)
}

// Clear removes the record. Backend failures are logged, never returned.
func (s *Store) Clear(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("session store clear panicked", "panic", fmt.Sprint(r))
		}
	}()
	s.evict(ctx)
}

func (s *Store) evict(ctx context.Context) {
	if s.backend == nil {
		return
	}
	prev := s.swapSynced(absent)
	if err := s.backend.Delete(ctx, s.key); err != nil {
		s.revertSynced(prev)
		s.logger.Warn("session store delete failed",
			"key", s.key,
			"error", domain.ErrStorageUnavailable.WithCause(err))
	}
}

// Decode parses a raw stored value, opening it first if sealed.
func (s *Store) Decode(raw []byte) (*domain.SessionRecord, error) {
	if IsSealed(raw) {
		if s.sealer == nil {
			return nil, domain.ErrStorageCorrupt.WithDetails("sealed value but no sealing secret configured")
		}
		opened, err := s.sealer.Open(raw)
		if err != nil {
			return nil, domain.ErrStorageCorrupt.WithCause(err)
		}
		raw = opened
	}

	var rec domain.SessionRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, domain.ErrStorageCorrupt.WithCause(err)
	}
	if err := rec.Validate(); err != nil {
		return nil, domain.ErrStorageCorrupt.WithCause(err)
	}
	return &rec, nil
}

func (s *Store) encode(rec *domain.SessionRecord) ([]byte, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("marshal session record: %w", err)
	}
	if s.sealer != nil {
		return s.sealer.Seal(raw)
	}
	return raw, nil
}

type syncMark struct {
	synced bool
	last   state
}

func (s *Store) markSynced(st state) {
	s.swapSynced(st)
}

func (s *Store) swapSynced(st state) syncMark {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := syncMark{synced: s.synced, last: s.last}
	s.synced = true
	s.last = st
	return prev
}

func (s *Store) revertSynced(prev syncMark) {
	s.mu.Lock()
	s.synced = prev.synced
	s.last = prev.last
	s.mu.Unlock()
}

// observe records st and reports whether it differs from what the store
// last knew.
func (s *Store) observe(st state) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.synced && s.last == st {
		return false
	}
	s.synced = true
	s.last = st
	return true
}

// Watch calls fn for every change of the session key made through another
// handle on the same storage. The key is re-read on each notification, so
// fn sees the current value; notifications that do not change what this
// store last read or wrote (including echoes of its own writes) are
// dropped. fn is never called concurrently.
func (s *Store) Watch(fn func(StoreChange)) (func(), error) {
	w, ok := s.backend.(Watcher)
	if !ok || s.backend == nil {
		return nil, ErrWatchUnsupported
	}
	return w.Watch(func(c Change) {
		if c.Key != s.key {
			return
		}
		s.handleChange(fn)
	})
}

func (s *Store) handleChange(fn func(StoreChange)) {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), watchReadTimeout)
	defer cancel()

	raw, err := s.backend.Get(ctx, s.key)
	change := StoreChange{Key: s.key}
	var st state
	switch {
	case err == nil:
		st = stateOf(raw)
	case errors.Is(err, ErrKeyNotFound):
		st = absent
		change.Removed = true
	default:
		s.logger.Warn("session store re-read after change failed", "key", s.key, "error", err)
		return
	}

	if !s.observe(st) {
		return
	}

	if !change.Removed {
		rec, err := s.Decode(raw)
		if err != nil {
			change.Malformed = true
		} else {
			change.Record = rec
		}
	}
	fn(change)
}

// Close closes the backend.
func (s *Store) Close() error {
	if s.backend == nil {
		return nil
	}
	return s.backend.Close()
}

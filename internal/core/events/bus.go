// Package events delivers session lifecycle events to the owning
// application.
//
// Subscribe returns a disposer; calling it removes the handler. Delivery
// is synchronous on the publishing goroutine, in subscription order, and a
// panicking handler never reaches the publisher.
package events

import (
	"fmt"
	"sync"
	"time"

	"github.com/yndnr/tokmesh-client/internal/core/domain"
	"github.com/yndnr/tokmesh-client/internal/telemetry/logger"
)

// Type identifies an event.
type Type string

const (
	SessionRestored     Type = "session_restored"
	SessionRefreshed    Type = "session_refreshed"
	SessionExpired      Type = "session_expired"
	SessionCleared      Type = "session_cleared"
	SessionAdopted      Type = "session_adopted"
	RefreshError        Type = "refresh_error"
	NetworkOffline      Type = "network_offline"
	NetworkOnline       Type = "network_online"
	SessionConflict     Type = "session_conflict"
	SessionHeartbeat    Type = "session_heartbeat"
	MonitoringStarted   Type = "monitoring_started"
	MonitoringStopped   Type = "monitoring_stopped"
	ValidityCheckFailed Type = "validity_check_failed"
)

// Event is a single notification. Only the fields relevant to Type are set.
type Event struct {
	Type     Type
	Session  *domain.SessionRecord
	Err      error
	Conflict *domain.SessionConflict
	Time     time.Time
}

// Handler receives events.
type Handler func(Event)

type subscription struct {
	id      uint64
	handler Handler
	types   map[Type]bool
}

func (s *subscription) wants(t Type) bool {
	return len(s.types) == 0 || s.types[t]
}

// Bus is a synchronous publish/subscribe hub. The zero value is not
// usable; construct with NewBus.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   []*subscription
	logger logger.Logger
}

// NewBus creates an empty bus. A nil logger discards handler panics.
func NewBus(l logger.Logger) *Bus {
	if l == nil {
		l = logger.Nop()
	}
	return &Bus{logger: l}
}

// Subscribe registers h for the given types, or for every type when none
// are given. The returned function removes the subscription and is safe
// to call more than once.
func (b *Bus) Subscribe(h Handler, types ...Type) func() {
	sub := &subscription{handler: h}
	if len(types) > 0 {
		sub.types = make(map[Type]bool, len(types))
		for _, t := range types {
			sub.types[t] = true
		}
	}

	b.mu.Lock()
	b.nextID++
	sub.id = b.nextID
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(sub.id) })
	}
}

func (b *Bus) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == id {
			// Copy so snapshots held by in-progress Publish calls stay intact.
			subs := make([]*subscription, 0, len(b.subs)-1)
			subs = append(subs, b.subs[:i]...)
			b.subs = append(subs, b.subs[i+1:]...)
			return
		}
	}
}

// Publish delivers e to every matching subscriber. Time is stamped when zero.
func (b *Bus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	b.mu.RLock()
	subs := b.subs
	b.mu.RUnlock()

	for _, s := range subs {
		if s.wants(e.Type) {
			b.deliver(s, e)
		}
	}
}

// Len returns the number of active subscriptions.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (b *Bus) deliver(s *subscription, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				"event", string(e.Type),
				"panic", fmt.Sprint(r))
		}
	}()
	s.handler(e)
}

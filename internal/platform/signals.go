package platform

import (
	"context"
	"sync"
)

// Signals fans boolean transitions out to subscribers.
//
// Subscribers run synchronously on the goroutine calling Set, in
// subscription order. A subscriber may unsubscribe itself.
type Signals struct {
	mu     sync.Mutex
	nextID uint64
	subs   []signalSub
	last   *bool
}

type signalSub struct {
	id uint64
	fn func(bool)
}

// NewSignals creates an empty fan-out.
func NewSignals() *Signals {
	return &Signals{}
}

// Subscribe registers fn and returns a function that removes it.
// The returned function is safe to call more than once.
func (s *Signals) Subscribe(fn func(on bool)) func() {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	subs := make([]signalSub, len(s.subs), len(s.subs)+1)
	copy(subs, s.subs)
	s.subs = append(subs, signalSub{id: id, fn: fn})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { s.remove(id) })
	}
}

func (s *Signals) remove(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	subs := make([]signalSub, 0, len(s.subs))
	for _, sub := range s.subs {
		if sub.id != id {
			subs = append(subs, sub)
		}
	}
	s.subs = subs
}

// Set delivers on to every subscriber.
func (s *Signals) Set(on bool) {
	s.mu.Lock()
	subs := s.subs
	s.last = &on
	s.mu.Unlock()

	for _, sub := range subs {
		sub.fn(on)
	}
}

// Last returns the last value passed to Set.
func (s *Signals) Last() (on, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return false, false
	}
	return *s.last, true
}

// Len returns the number of subscribers.
func (s *Signals) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// Pump forwards values from ch to Set until ch is closed or ctx ends.
func (s *Signals) Pump(ctx context.Context, ch <-chan bool) {
	for {
		select {
		case <-ctx.Done():
			return
		case on, ok := <-ch:
			if !ok {
				return
			}
			s.Set(on)
		}
	}
}

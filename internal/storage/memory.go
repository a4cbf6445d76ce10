package storage

import (
	"context"
	"sync"
)

// MemoryBackend is an in-process Backend. Every Store sharing one
// MemoryBackend behaves like a separate process sharing one store: each
// write is broadcast to all watchers.
type MemoryBackend struct {
	mu       sync.RWMutex
	data     map[string][]byte
	watchers map[uint64]*mailbox
	nextID   uint64
	closed   bool
}

// NewMemoryBackend creates an empty memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		data:     make(map[string][]byte),
		watchers: make(map[uint64]*mailbox),
	}
}

// Get retrieves a copy of the value stored under key.
func (m *MemoryBackend) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	v, ok := m.data[key]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return append([]byte(nil), v...), nil
}

// Set stores a copy of value and notifies watchers.
func (m *MemoryBackend) Set(ctx context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.data[key] = append([]byte(nil), value...)
	m.broadcastLocked(Change{Key: key, Op: OpSet})
	return nil
}

// Delete removes key and notifies watchers if it existed.
func (m *MemoryBackend) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if _, ok := m.data[key]; !ok {
		return nil
	}
	delete(m.data, key)
	m.broadcastLocked(Change{Key: key, Op: OpDelete})
	return nil
}

// Watch implements Watcher. Changes are delivered in write order on a
// dedicated goroutine per watcher, so fn may call back into the backend.
func (m *MemoryBackend) Watch(fn func(Change)) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}

	m.nextID++
	id := m.nextID
	mb := newMailbox(fn)
	m.watchers[id] = mb

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.watchers, id)
			m.mu.Unlock()
			mb.close()
		})
	}, nil
}

// Close stops all watchers. Further operations return ErrClosed.
func (m *MemoryBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	for id, mb := range m.watchers {
		mb.close()
		delete(m.watchers, id)
	}
	return nil
}

func (m *MemoryBackend) broadcastLocked(c Change) {
	for _, mb := range m.watchers {
		mb.post(c)
	}
}

// mailbox is an unbounded FIFO drained by one goroutine.
type mailbox struct {
	mu     sync.Mutex
	queue  []Change
	notify chan struct{}
	done   chan struct{}
	once   sync.Once
}

func newMailbox(fn func(Change)) *mailbox {
	mb := &mailbox{
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go mb.run(fn)
	return mb
}

func (mb *mailbox) post(c Change) {
	mb.mu.Lock()
	mb.queue = append(mb.queue, c)
	mb.mu.Unlock()

	select {
	case mb.notify <- struct{}{}:
	default:
	}
}

func (mb *mailbox) close() {
	mb.once.Do(func() { close(mb.done) })
}

func (mb *mailbox) run(fn func(Change)) {
	for {
		select {
		case <-mb.done:
			return
		case <-mb.notify:
		}

		mb.mu.Lock()
		batch := mb.queue
		mb.queue = nil
		mb.mu.Unlock()

		for _, c := range batch {
			select {
			case <-mb.done:
				return
			default:
			}
			fn(c)
		}
	}
}

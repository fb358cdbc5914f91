// Package memo provides an in-memory key/value store with idle expiry and an
// LRU capacity ceiling.
package memo

import (
	"container/list"
	"sync"
	"time"
)

const (
	// DefaultTTL is how long an entry survives without being read or written.
	DefaultTTL = 60 * time.Minute
	// DefaultCapacity bounds memory in long-running servers; the least
	// recently used entries are evicted first.
	DefaultCapacity = 10000
	// cleanupTick is the interval between background expired-entry sweeps.
	cleanupTick = 30 * time.Second
)

type entry[V any] struct {
	key        string
	value      V
	lastAccess time.Time
	listElem   *list.Element
}

// Store is safe for concurrent use. The zero value is not usable; call New.
type Store[V any] struct {
	mu       sync.Mutex
	entries  map[string]*entry[V]
	lru      *list.List
	ttl      time.Duration
	capacity int
	now      func() time.Time
	stopCh   chan struct{}
	done     chan struct{}
	once     sync.Once
}

// New creates a store with TTL and capacity limits. Non-positive values fall
// back to the defaults. The caller must call Close to stop the background
// cleanup goroutine.
func New[V any](ttl time.Duration, capacity int) *Store[V] {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	s := &Store[V]{
		entries:  make(map[string]*entry[V]),
		lru:      list.New(),
		ttl:      ttl,
		capacity: capacity,
		now:      time.Now,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
	go s.cleanupLoop()
	return s
}

// Close stops the background cleanup goroutine and waits for it to finish.
// It is safe to call more than once.
func (s *Store[V]) Close() {
	s.once.Do(func() {
		close(s.stopCh)
		<-s.done
	})
}

func (s *Store[V]) cleanupLoop() {
	defer close(s.done)
	ticker := time.NewTicker(cleanupTick)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.mu.Lock()
			s.cleanupExpiredLocked(s.now())
			s.mu.Unlock()
		case <-s.stopCh:
			return
		}
	}
}

// Put stores value under key, replacing any previous value.
func (s *Store[V]) Put(key string, value V) {
	if key == "" {
		return
	}
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		e = &entry[V]{key: key}
		s.entries[key] = e
	}
	e.value = value
	e.lastAccess = now
	s.touchLocked(e)
	s.evictIfNeededLocked()
}

// Get returns the value for key. Expired entries are reported missing even
// before the background sweep removes them.
func (s *Store[V]) Get(key string) (V, bool) {
	var zero V
	if key == "" {
		return zero, false
	}
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return zero, false
	}
	if now.Sub(e.lastAccess) > s.ttl {
		s.removeLocked(e)
		return zero, false
	}
	e.lastAccess = now
	s.touchLocked(e)
	return e.value, true
}

// Delete removes key if present.
func (s *Store[V]) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[key]; ok {
		s.removeLocked(e)
	}
}

// Len returns current entry count.
func (s *Store[V]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// touchLocked moves or inserts an entry's element to the front of the LRU list.
func (s *Store[V]) touchLocked(e *entry[V]) {
	if e.listElem != nil {
		s.lru.MoveToFront(e.listElem)
	} else {
		e.listElem = s.lru.PushFront(e)
	}
}

func (s *Store[V]) removeLocked(e *entry[V]) {
	if e.listElem != nil {
		s.lru.Remove(e.listElem)
		e.listElem = nil
	}
	delete(s.entries, e.key)
}

func (s *Store[V]) cleanupExpiredLocked(now time.Time) {
	for _, e := range s.entries {
		if now.Sub(e.lastAccess) > s.ttl {
			s.removeLocked(e)
		}
	}
}

func (s *Store[V]) evictIfNeededLocked() {
	for len(s.entries) > s.capacity {
		back := s.lru.Back()
		if back == nil {
			return
		}
		s.removeLocked(back.Value.(*entry[V]))
	}
}

package chatconn

import (
	"sync"
	"sync/atomic"
)

type listener[T any] struct {
	fn     func(T)
	active atomic.Bool
}

// listenerSet is a registration list whose snapshot can be delivered while
// entries are being removed.
type listenerSet[T any] struct {
	mu      sync.Mutex
	entries []*listener[T]
}

func (s *listenerSet[T]) add(fn func(T)) func() {
	l := &listener[T]{fn: fn}
	l.active.Store(true)

	s.mu.Lock()
	s.entries = append(s.entries, l)
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.active.Store(false)
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, e := range s.entries {
				if e == l {
					s.entries = append(s.entries[:i:i], s.entries[i+1:]...)
					break
				}
			}
		})
	}
}

func (s *listenerSet[T]) emit(v T) {
	s.mu.Lock()
	snapshot := make([]*listener[T], len(s.entries))
	copy(snapshot, s.entries)
	s.mu.Unlock()

	for _, l := range snapshot {
		// Listeners removed earlier in this round are skipped.
		if l.active.Load() {
			l.fn(v)
		}
	}
}

func (s *listenerSet[T]) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

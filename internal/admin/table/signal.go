package table

import "sync"

// Signal is a refresh counter. Raising it notifies every subscriber with the new
// value; controllers re-fetch whenever the value they last saw changes.
type Signal struct {
	mu    sync.Mutex
	value uint64
	next  int
	subs  map[int]func(uint64)
}

// Value returns the current counter.
func (s *Signal) Value() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

// Raise increments the counter and notifies subscribers outside the lock.
func (s *Signal) Raise() uint64 {
	s.mu.Lock()
	s.value++
	v := s.value
	subs := make([]func(uint64), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()
	for _, fn := range subs {
		fn(v)
	}
	return v
}

// Subscribe registers fn and returns a function that removes it.
func (s *Signal) Subscribe(fn func(uint64)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subs == nil {
		s.subs = map[int]func(uint64){}
	}
	id := s.next
	s.next++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

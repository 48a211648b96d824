package session

import (
	"sync"

	"posadmin/backend/internal/domain"
)

// Store owns the process-wide session record. It starts empty with
// IsResolving set, so consumers hold at the access gate until the first
// identity event has been reconciled. Only the Reconciler writes it.
type Store struct {
	mu      sync.RWMutex
	current domain.Session
	pending string
	nextID  int
	subs    map[int]func(domain.Session)
}

func NewStore() *Store {
	return &Store{
		current: domain.Session{IsResolving: true},
		subs:    make(map[int]func(domain.Session)),
	}
}

func (s *Store) Current() domain.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// OnChange registers fn to run on every session transition. The returned
// handle releases the registration.
func (s *Store) OnChange(fn func(domain.Session)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// setPending records the subject the reconciler is currently resolving for.
// In-flight resolutions compare against it before writing, so a result that
// arrives after its subject was superseded is discarded.
func (s *Store) setPending(subjectID string) {
	s.mu.Lock()
	s.pending = subjectID
	s.mu.Unlock()
}

// setIfPending writes the session only if subjectID is still the pending
// subject, all under one lock so a concurrent event cannot slip between the
// check and the write. Reports whether the write happened.
func (s *Store) setIfPending(subjectID string, next domain.Session) bool {
	s.mu.Lock()
	if s.pending != subjectID {
		s.mu.Unlock()
		return false
	}
	s.current = next
	fns := make([]func(domain.Session), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(next)
	}
	return true
}

// set replaces the session record and notifies subscribers. Callbacks run
// outside the lock with a value copy.
func (s *Store) set(next domain.Session) {
	s.mu.Lock()
	s.current = next
	fns := make([]func(domain.Session), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(next)
	}
}

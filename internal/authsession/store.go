package authsession

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned for unknown or already-removed session IDs.
// Callers must treat it as "ask the client to restart", never as a fault.
var ErrNotFound = errors.New("session not found")

// reapInterval bounds how often the idle reaper scans the store.
const reapInterval = time.Minute

// Store is the process-wide registry of authentication sessions. The map
// lock only guards membership; per-session state is serialized by each
// session's own mutex, so submissions on different sessions never contend.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	policy      Policy
	idleTimeout time.Duration

	stop     chan struct{}
	stopOnce sync.Once
}

// NewStore creates a session store. When idleTimeout is positive a
// background reaper evicts sessions idle beyond that bound, so abandoned
// sessions cannot grow the store forever.
func NewStore(policy Policy, idleTimeout time.Duration) *Store {
	s := &Store{
		sessions:    make(map[string]*Session),
		policy:      policy,
		idleTimeout: idleTimeout,
		stop:        make(chan struct{}),
	}
	if idleTimeout > 0 {
		go s.reapLoop()
	}
	return s
}

// Create inserts a new active session with a fresh unique key and the
// store's policy snapshot. boundIdentity is empty for identification mode.
func (s *Store) Create(boundIdentity string) *Session {
	now := time.Now()
	session := &Session{
		id:            uuid.NewString(),
		boundIdentity: boundIdentity,
		status:        StatusActive,
		policy:        s.policy,
		createdAt:     now,
		lastActivity:  now,
	}

	s.mu.Lock()
	s.sessions[session.id] = session
	s.mu.Unlock()

	return session
}

// Get retrieves a session by ID and refreshes its idle timer. Returns
// ErrNotFound for unknown keys.
func (s *Store) Get(id string) (*Session, error) {
	s.mu.RLock()
	session, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	session.touch()
	return session, nil
}

// Remove deletes a session. Returns false when the key was not present,
// which makes end-session idempotent for callers.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return false
	}
	delete(s.sessions, id)
	return true
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Stop terminates the reaper goroutine. Safe to call more than once.
func (s *Store) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *Store) reapLoop() {
	interval := s.idleTimeout / 2
	if interval > reapInterval {
		interval = reapInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			if n := s.reapIdle(time.Now()); n > 0 {
				log.Printf("evicted %d idle authentication session(s)", n)
			}
		}
	}
}

// reapIdle evicts sessions idle beyond the configured bound and returns
// how many were removed.
func (s *Store) reapIdle(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, session := range s.sessions {
		if session.idleFor(now) > s.idleTimeout {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

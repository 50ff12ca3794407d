// Package authsession implements the progressive multi-frame authentication
// protocol. A session accumulates consecutive single-frame match results
// until it either authenticates an identity or exhausts its frame budget.
package authsession

import (
	"sync"
	"time"
)

// Status is the lifecycle state of a session.
type Status string

const (
	StatusActive        Status = "active"
	StatusAuthenticated Status = "authenticated"
	StatusExhausted     Status = "exhausted"
)

// Policy is the decision configuration snapshotted into each session at
// creation. A session keeps its policy for its whole lifetime even if the
// server configuration changes.
type Policy struct {
	RequiredConsecutiveMatches int
	MatchDistanceThreshold     float64
	MaxFrameAttempts           int
}

// Session tracks one authentication attempt across multiple submitted
// frames. All mutation goes through ApplyFrame, which serializes
// concurrent submissions on the same session.
type Session struct {
	mu sync.Mutex

	id            string
	boundIdentity string // empty in identification mode

	resolvedIdentity   string
	consecutiveMatches int
	frameAttempts      int
	status             Status

	policy       Policy
	createdAt    time.Time
	lastActivity time.Time
}

// Progress is a consistent snapshot of a session's counters and status.
type Progress struct {
	Status             Status
	ResolvedIdentity   string
	ConsecutiveMatches int
	FrameAttempts      int
	RequiredMatches    int
	MaxFrameAttempts   int
	FallbackRequired   bool
}

// ID returns the session's lookup key.
func (s *Session) ID() string {
	return s.id
}

// BoundIdentity returns the claimed identity for verification-mode
// sessions, or empty for identification mode.
func (s *Session) BoundIdentity() string {
	return s.boundIdentity
}

// Policy returns the session's configuration snapshot.
func (s *Session) Policy() Policy {
	return s.policy
}

// Snapshot returns the current progress without mutating the session.
func (s *Session) Snapshot() Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Progress {
	return Progress{
		Status:             s.status,
		ResolvedIdentity:   s.resolvedIdentity,
		ConsecutiveMatches: s.consecutiveMatches,
		FrameAttempts:      s.frameAttempts,
		RequiredMatches:    s.policy.RequiredConsecutiveMatches,
		MaxFrameAttempts:   s.policy.MaxFrameAttempts,
		FallbackRequired:   s.status == StatusExhausted,
	}
}

// ApplyFrame runs the transition function for one frame-match result.
// matched reports whether the frame matched any candidate; identity names
// the matched candidate when it did. The counter pair updates atomically:
// two racing submissions on the same session serialize here, and a frame
// applied after a terminal transition is a no-op returning the terminal
// snapshot. The second return reports whether this call moved the session
// into a terminal state; exactly one of any number of racing final frames
// observes it true, so terminal side effects (audit, token) run once.
func (s *Session) ApplyFrame(identity string, matched bool) (Progress, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastActivity = time.Now()
	if s.status != StatusActive {
		return s.snapshotLocked(), false
	}

	s.frameAttempts++

	switch {
	case !matched:
		s.consecutiveMatches = 0
		s.resolvedIdentity = ""
	case s.resolvedIdentity == "" || s.resolvedIdentity == identity:
		s.resolvedIdentity = identity
		s.consecutiveMatches++
	default:
		// A different identity than the current leader: the new identity
		// becomes the sole leader with a run of one. Two alternating
		// identities can never both accumulate toward the threshold.
		s.resolvedIdentity = identity
		s.consecutiveMatches = 1
	}

	transitioned := false
	if s.consecutiveMatches >= s.policy.RequiredConsecutiveMatches {
		s.status = StatusAuthenticated
		transitioned = true
	} else if s.frameAttempts >= s.policy.MaxFrameAttempts {
		s.status = StatusExhausted
		transitioned = true
	}

	return s.snapshotLocked(), transitioned
}

// touch refreshes the idle timer. Called on lookups so a session being
// actively polled is not reaped mid-flight.
func (s *Session) touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

// idleFor reports how long the session has been without activity.
func (s *Session) idleFor(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastActivity)
}

package authsession

import (
	"testing"
	"time"
)

func testPolicy() Policy {
	return Policy{
		RequiredConsecutiveMatches: 3,
		MatchDistanceThreshold:     0.4,
		MaxFrameAttempts:           50,
	}
}

func newTestSession(policy Policy, boundIdentity string) *Session {
	now := time.Now()
	return &Session{
		id:            "test-session",
		boundIdentity: boundIdentity,
		status:        StatusActive,
		policy:        policy,
		createdAt:     now,
		lastActivity:  now,
	}
}

func TestThreeConsecutiveMatchesAuthenticate(t *testing.T) {
	s := newTestSession(testPolicy(), "")

	var p Progress
	for i := 0; i < 3; i++ {
		p, _ = s.ApplyFrame("alice", true)
	}

	if p.Status != StatusAuthenticated {
		t.Fatalf("expected authenticated after 3 matches, got %s", p.Status)
	}
	if p.ResolvedIdentity != "alice" {
		t.Errorf("expected resolved identity alice, got %q", p.ResolvedIdentity)
	}
	if p.FrameAttempts != 3 {
		t.Errorf("expected 3 frame attempts, got %d", p.FrameAttempts)
	}
}

func TestMissResetsRun(t *testing.T) {
	s := newTestSession(testPolicy(), "")

	s.ApplyFrame("alice", true)
	s.ApplyFrame("alice", true)
	p, _ := s.ApplyFrame("", false)

	if p.ConsecutiveMatches != 0 {
		t.Errorf("expected count reset to 0 after miss, got %d", p.ConsecutiveMatches)
	}
	if p.ResolvedIdentity != "" {
		t.Errorf("expected resolved identity cleared, got %q", p.ResolvedIdentity)
	}
	if p.Status != StatusActive {
		t.Errorf("expected still active, got %s", p.Status)
	}

	// The run must restart from scratch: authenticated only on frame 6.
	s.ApplyFrame("alice", true)
	s.ApplyFrame("alice", true)
	p, _ = s.ApplyFrame("alice", true)

	if p.Status != StatusAuthenticated {
		t.Fatalf("expected authenticated after fresh run of 3, got %s", p.Status)
	}
	if p.FrameAttempts != 6 {
		t.Errorf("expected 6 frame attempts, got %d", p.FrameAttempts)
	}
}

func TestDifferentIdentityBecomesLeaderWithRunOfOne(t *testing.T) {
	s := newTestSession(testPolicy(), "")

	s.ApplyFrame("alice", true)
	p, _ := s.ApplyFrame("bob", true)

	if p.ConsecutiveMatches != 1 {
		t.Errorf("expected run of 1 for the new leader, got %d", p.ConsecutiveMatches)
	}
	if p.ResolvedIdentity != "bob" {
		t.Errorf("expected bob as leader, got %q", p.ResolvedIdentity)
	}
}

func TestAlternatingIdentitiesNeverAuthenticate(t *testing.T) {
	s := newTestSession(Policy{RequiredConsecutiveMatches: 3, MaxFrameAttempts: 50}, "")

	identities := []string{"alice", "bob", "alice", "bob", "alice", "bob"}
	var p Progress
	for _, id := range identities {
		p, _ = s.ApplyFrame(id, true)
	}

	if p.Status != StatusActive {
		t.Fatalf("alternating identities must not authenticate, got %s", p.Status)
	}
	if p.ConsecutiveMatches != 1 {
		t.Errorf("expected run of 1, got %d", p.ConsecutiveMatches)
	}
}

func TestExhaustionAtMaxAttempts(t *testing.T) {
	s := newTestSession(Policy{RequiredConsecutiveMatches: 3, MaxFrameAttempts: 5}, "")

	var p Progress
	for i := 0; i < 5; i++ {
		p, _ = s.ApplyFrame("", false)
	}

	if p.Status != StatusExhausted {
		t.Fatalf("expected exhausted at attempt 5, got %s", p.Status)
	}
	if !p.FallbackRequired {
		t.Error("expected fallback flag on exhaustion")
	}
	if p.FrameAttempts != 5 {
		t.Errorf("expected exactly 5 attempts, got %d", p.FrameAttempts)
	}
}

func TestAuthenticationWinsOnFinalAttempt(t *testing.T) {
	// The success check runs before the exhaustion check: a match completing
	// the run on the very last allowed frame authenticates.
	s := newTestSession(Policy{RequiredConsecutiveMatches: 3, MaxFrameAttempts: 3}, "")

	s.ApplyFrame("alice", true)
	s.ApplyFrame("alice", true)
	p, _ := s.ApplyFrame("alice", true)

	if p.Status != StatusAuthenticated {
		t.Fatalf("expected authenticated on final attempt, got %s", p.Status)
	}
}

func TestTerminalStateIsFrozen(t *testing.T) {
	s := newTestSession(Policy{RequiredConsecutiveMatches: 1, MaxFrameAttempts: 10}, "")

	p, _ := s.ApplyFrame("alice", true)
	if p.Status != StatusAuthenticated {
		t.Fatalf("expected authenticated, got %s", p.Status)
	}

	after, _ := s.ApplyFrame("bob", true)
	if after.Status != StatusAuthenticated {
		t.Errorf("terminal state must not change, got %s", after.Status)
	}
	if after.ResolvedIdentity != "alice" {
		t.Errorf("terminal identity must not change, got %q", after.ResolvedIdentity)
	}
	if after.FrameAttempts != p.FrameAttempts {
		t.Errorf("attempts must not advance after terminal state: %d != %d", after.FrameAttempts, p.FrameAttempts)
	}
}

func TestTerminalTransitionReportedExactlyOnce(t *testing.T) {
	s := newTestSession(Policy{RequiredConsecutiveMatches: 2, MaxFrameAttempts: 10}, "")

	if _, transitioned := s.ApplyFrame("alice", true); transitioned {
		t.Error("a non-terminal frame must not report a transition")
	}
	if _, transitioned := s.ApplyFrame("alice", true); !transitioned {
		t.Error("the authenticating frame must report the transition")
	}
	if _, transitioned := s.ApplyFrame("alice", true); transitioned {
		t.Error("frames after the terminal state must not report a transition")
	}

	s = newTestSession(Policy{RequiredConsecutiveMatches: 2, MaxFrameAttempts: 2}, "")
	s.ApplyFrame("", false)
	if _, transitioned := s.ApplyFrame("", false); !transitioned {
		t.Error("the exhausting frame must report the transition")
	}
	if _, transitioned := s.ApplyFrame("", false); transitioned {
		t.Error("frames after exhaustion must not report a transition")
	}
}

func TestCounterInvariantsHoldThroughRandomRuns(t *testing.T) {
	policy := Policy{RequiredConsecutiveMatches: 3, MaxFrameAttempts: 7}
	s := newTestSession(policy, "")

	frames := []struct {
		identity string
		matched  bool
	}{
		{"alice", true}, {"", false}, {"bob", true}, {"alice", true},
		{"alice", true}, {"", false}, {"carol", true},
	}

	for _, f := range frames {
		p, _ := s.ApplyFrame(f.identity, f.matched)
		if p.ConsecutiveMatches < 0 || p.ConsecutiveMatches > policy.RequiredConsecutiveMatches {
			t.Fatalf("consecutive count out of range: %d", p.ConsecutiveMatches)
		}
		if p.FrameAttempts < 0 || p.FrameAttempts > policy.MaxFrameAttempts {
			t.Fatalf("attempt count out of range: %d", p.FrameAttempts)
		}
		if (p.ResolvedIdentity != "") != (p.ConsecutiveMatches > 0) {
			t.Fatalf("resolved identity %q inconsistent with count %d", p.ResolvedIdentity, p.ConsecutiveMatches)
		}
	}
}

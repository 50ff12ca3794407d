package authsession

import (
	"context"
	"errors"
	"testing"

	"github.com/rouzd/facegate/internal/recognizer"
)

// scriptedMatcher returns one queued result per Compare call, keyed by the
// reference bytes it receives.
type scriptedMatcher struct {
	results map[string]recognizer.MatchResult
	errs    map[string]error
	calls   []string
}

func (m *scriptedMatcher) Compare(ctx context.Context, probe, reference []byte) (recognizer.MatchResult, error) {
	key := string(reference)
	m.calls = append(m.calls, key)
	if err := m.errs[key]; err != nil {
		return recognizer.MatchResult{}, err
	}
	return m.results[key], nil
}

func candidateSet(identities ...string) []Candidate {
	candidates := make([]Candidate, len(identities))
	for i, id := range identities {
		candidates[i] = Candidate{Identity: id, Reference: []byte("ref-" + id)}
	}
	return candidates
}

func TestFindMatchReturnsFirstHit(t *testing.T) {
	matcher := &scriptedMatcher{results: map[string]recognizer.MatchResult{
		"ref-alice": {Matched: false, Distance: 0.9},
		"ref-bob":   {Matched: true, Distance: 0.2},
		"ref-carol": {Matched: true, Distance: 0.1},
	}}

	match, ok := FindMatch(context.Background(), matcher, []byte("face"), 0.4, candidateSet("alice", "bob", "carol"))
	if !ok {
		t.Fatal("expected a match")
	}
	if match.Identity != "bob" {
		t.Errorf("expected first qualifying candidate bob, got %q", match.Identity)
	}
	if len(matcher.calls) != 2 {
		t.Errorf("expected short-circuit after bob, got %d calls", len(matcher.calls))
	}
}

func TestFindMatchRequiresDistanceUnderThreshold(t *testing.T) {
	matcher := &scriptedMatcher{results: map[string]recognizer.MatchResult{
		// Matcher says yes but the distance is not under the threshold.
		"ref-alice": {Matched: true, Distance: 0.4},
	}}

	if _, ok := FindMatch(context.Background(), matcher, []byte("face"), 0.4, candidateSet("alice")); ok {
		t.Error("distance equal to threshold must not match")
	}
}

func TestFindMatchSwallowsPerCandidateErrors(t *testing.T) {
	matcher := &scriptedMatcher{
		results: map[string]recognizer.MatchResult{
			"ref-bob": {Matched: true, Distance: 0.1},
		},
		errs: map[string]error{
			"ref-alice": errors.New("unreadable reference image"),
		},
	}

	match, ok := FindMatch(context.Background(), matcher, []byte("face"), 0.4, candidateSet("alice", "bob"))
	if !ok {
		t.Fatal("a failing candidate must not abort evaluation of the rest")
	}
	if match.Identity != "bob" {
		t.Errorf("expected bob, got %q", match.Identity)
	}
}

func TestFindMatchEmptyCandidateSet(t *testing.T) {
	matcher := &scriptedMatcher{}
	if _, ok := FindMatch(context.Background(), matcher, []byte("face"), 0.4, nil); ok {
		t.Error("empty candidate set must report no match")
	}
	if len(matcher.calls) != 0 {
		t.Errorf("no comparisons expected, got %d", len(matcher.calls))
	}
}

func TestFindMatchStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	matcher := &scriptedMatcher{results: map[string]recognizer.MatchResult{
		"ref-alice": {Matched: true, Distance: 0.1},
	}}

	if _, ok := FindMatch(ctx, matcher, []byte("face"), 0.4, candidateSet("alice")); ok {
		t.Error("cancelled context must not produce a match")
	}
	if len(matcher.calls) != 0 {
		t.Errorf("no comparisons expected after cancellation, got %d", len(matcher.calls))
	}
}

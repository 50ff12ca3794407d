package authsession

import (
	"context"
	"log"

	"github.com/rouzd/facegate/internal/recognizer"
)

// Candidate pairs an identity with its enrolled reference image.
type Candidate struct {
	Identity  string
	Reference []byte
}

// Match is a successful candidate match for one frame.
type Match struct {
	Identity string
	Distance float64
}

// FindMatch compares the face region against each candidate in order and
// returns the first one the matcher accepts under the distance threshold.
// At most one identity is ever attributed to a frame. A comparison failure
// on one candidate counts as a non-match for that candidate and evaluation
// continues; only the frame as a whole reports "no match" when the set is
// exhausted or empty.
func FindMatch(ctx context.Context, m recognizer.Matcher, face []byte, threshold float64, candidates []Candidate) (Match, bool) {
	for _, candidate := range candidates {
		if ctx.Err() != nil {
			return Match{}, false
		}

		result, err := m.Compare(ctx, face, candidate.Reference)
		if err != nil {
			log.Printf("face comparison against %q failed, treating as non-match: %v", candidate.Identity, err)
			continue
		}
		if result.Matched && result.Distance < threshold {
			return Match{Identity: candidate.Identity, Distance: result.Distance}, true
		}
	}
	return Match{}, false
}

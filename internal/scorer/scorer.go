// Package scorer compares a candidate object file against a target and
// returns a nonnegative integer distance, with PENALTY_INF for an
// unusable candidate.
package scorer

import (
	"context"
	"fmt"

	"github.com/permuter-search/permuter/internal/evalproto"
)

// Scorer is the pluggable comparison boundary; a real implementation
// shells out to the job's scoring tool (objdump diffing, etc.). It is an
// external collaborator per spec.md §1 and is intentionally an
// interface so tests can substitute a stub.
type Scorer interface {
	Score(ctx context.Context, candidateO, targetO []byte) (score int, hash string, err error)
}

// Stub is a deterministic in-memory Scorer for tests: it scores by byte
// distance from the target, never errors, and never returns PenaltyInf
// unless DefaultsToPenalty is set. It has no role outside test fixtures.
type Stub struct {
	DefaultsToPenalty bool
	FixedScore        *int
}

func (s *Stub) Score(_ context.Context, candidateO, targetO []byte) (int, string, error) {
	if s.DefaultsToPenalty {
		return evalproto.PenaltyInf, "", nil
	}
	if s.FixedScore != nil {
		return *s.FixedScore, hashBytes(candidateO), nil
	}
	return byteDistance(candidateO, targetO), hashBytes(candidateO), nil
}

func byteDistance(a, b []byte) int {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	dist := 0
	for i := 0; i < n; i++ {
		var av, bv byte
		if i < len(a) {
			av = a[i]
		}
		if i < len(b) {
			bv = b[i]
		}
		if av != bv {
			dist++
		}
	}
	return dist
}

// hashBytes is FNV-1a, just enough to give the stub a stable per-byte-
// content identity for dedup/display in tests.
func hashBytes(b []byte) string {
	var h uint64 = 14695981039346656037
	for _, c := range b {
		h ^= uint64(c)
		h *= 1099511628211
	}
	return fmt.Sprintf("%016x", h)
}

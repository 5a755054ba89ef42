// Package permuter owns the coordinator-local Permuter data model: a
// job's identity, baseline score, seed iterator, and the improvement
// accounting required by best_score's monotonicity invariant.
package permuter

import (
	"context"
	"sync"

	"github.com/permuter-search/permuter/internal/compiler"
	"github.com/permuter-search/permuter/internal/evalproto"
	"github.com/permuter-search/permuter/internal/scorer"
)

// Improvement classifies a WorkDone result for user-visible messages.
type Improvement int

const (
	ImprovementNone Improvement = iota
	ImprovementStrictBest
	ImprovementTieBest
	ImprovementBelowBaseline
	ImprovementSameScoreDifferentAsm
)

// Policy carries the per-permuter flags that influence dispatch and
// output behavior.
type Policy struct {
	NeedAllSources bool
	KeepProb       float64
	StackDiffs     bool
}

// Permuter is the coordinator-local view of one job: its identity, base
// source, compiler/scorer handles, monotonically non-increasing best
// score, and seed iterator. All mutable state is behind mu so the
// coordinator main loop and any short-circuiting worker-local
// record_result can serialize safely.
type Permuter struct {
	Index      int
	Dir        string
	FnName     string
	UniqueName string

	BaseSource []byte
	Compiler   *compiler.Compiler
	Scorer     scorer.Scorer

	Policy Policy
	Seeds  SeedIterator

	mu        sync.Mutex
	bestScore int
	bestHash  string
	baseScore int
}

// New constructs a Permuter with its best_score initialized to
// baseScore, matching the original's one-time baseline computation at
// startup.
func New(index int, dir, fnName, uniqueName string, baseSource []byte, c *compiler.Compiler, s scorer.Scorer, policy Policy, seeds SeedIterator, baseScore int) *Permuter {
	return &Permuter{
		Index:      index,
		Dir:        dir,
		FnName:     fnName,
		UniqueName: uniqueName,
		BaseSource: baseSource,
		Compiler:   c,
		Scorer:     s,
		Policy:     policy,
		Seeds:      seeds,
		bestScore:  baseScore,
		baseScore:  baseScore,
	}
}

// BestScore returns the current best score observed so far.
func (p *Permuter) BestScore() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bestScore
}

// BaseScore returns the one-time baseline score computed at startup.
func (p *Permuter) BaseScore() int {
	return p.baseScore
}

// ShouldOutput reports whether a candidate result is an improvement, a
// tie, or NeedAllSources is set, and if so atomically commits the new
// best score. It never raises best_score back up: the monotonic
// invariant is enforced here, the single mutation point. A result whose
// score matches the current best is further split by hash into a true
// tie (identical assembly) versus "different asm, same score" (spec.md
// §4.4), since two permutations can compile to the same score without
// being the same candidate.
func (p *Permuter) ShouldOutput(result evalproto.CandidateResult) (bool, Improvement) {
	if p.Policy.NeedAllSources {
		return true, p.classify(result.Score, result.Hash)
	}
	if result.IsPenalty() {
		return false, ImprovementNone
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	switch {
	case result.Score < p.bestScore:
		wasBase := p.bestScore == p.baseScore
		p.bestScore = result.Score
		p.bestHash = result.Hash
		if wasBase && result.Score == p.baseScore {
			return true, ImprovementTieBest
		}
		return true, ImprovementStrictBest
	case result.Score == p.bestScore:
		return true, p.tieOrDifferentAsm(result.Hash)
	case result.Score < p.baseScore:
		return true, ImprovementBelowBaseline
	default:
		return false, ImprovementNone
	}
}

func (p *Permuter) classify(score int, hash string) Improvement {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case score < p.bestScore:
		p.bestScore = score
		p.bestHash = hash
		return ImprovementStrictBest
	case score == p.bestScore:
		return p.tieOrDifferentAsm(hash)
	case score < p.baseScore:
		return ImprovementBelowBaseline
	default:
		return ImprovementNone
	}
}

// tieOrDifferentAsm distinguishes a true tie from "different asm, same
// score" by comparing against the hash recorded for the current best
// score. Callers must hold p.mu. An empty hash on either side (a scorer
// that doesn't report one) can't be compared, so it's treated as a tie
// rather than guessed at.
func (p *Permuter) tieOrDifferentAsm(hash string) Improvement {
	if p.bestHash != "" && hash != "" && hash != p.bestHash {
		return ImprovementSameScoreDifferentAsm
	}
	return ImprovementTieBest
}

// Evaluate runs the out-of-scope permute->compile->score pipeline for
// one seed. The permuter-generation step itself is an external
// collaborator (spec.md §1); evalSource is the pure function hook a
// caller provides to produce candidate source from (base, seed).
func (p *Permuter) Evaluate(ctx context.Context, seed evalproto.Seed, targetO []byte, evalSource func(base []byte, seed evalproto.Seed) (string, error)) evalproto.EvalResult {
	source, err := evalSource(p.BaseSource, seed)
	if err != nil {
		return evalproto.ErrorResult(&evalproto.EvalError{ExcStr: err.Error(), Seed: seed})
	}

	obj, err := p.Compiler.Compile(ctx, source)
	if err != nil {
		return evalproto.ErrorResult(&evalproto.EvalError{ExcStr: err.Error(), Seed: seed})
	}

	score, hash, err := p.Scorer.Score(ctx, obj, targetO)
	if err != nil {
		return evalproto.ErrorResult(&evalproto.EvalError{ExcStr: err.Error(), Seed: seed})
	}

	cand := evalproto.CandidateResult{Score: score, Hash: hash}
	if p.Policy.NeedAllSources || score <= p.BestScore() {
		src := source
		cand.Source = &src
	}
	return evalproto.CandidateEvalResult(cand)
}

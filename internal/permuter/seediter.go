package permuter

import (
	"math/rand"

	"github.com/permuter-search/permuter/internal/evalproto"
)

// SeedIterator produces the next seed tuple for one permuter. Next
// returns ok == false once the iterator is exhausted; a permuter is
// removed from the fair round-robin rotation the first time its
// iterator reports exhaustion.
type SeedIterator interface {
	Next() (seed evalproto.Seed, ok bool)
}

// ForcedSeedIterator reproduces a prior failure: it yields exactly one
// seed tuple, then ends. Used for --seed KEEP,RNG.
type ForcedSeedIterator struct {
	seed evalproto.Seed
	done bool
}

func NewForcedSeedIterator(keep, rng int64) *ForcedSeedIterator {
	return &ForcedSeedIterator{seed: evalproto.Seed{Keep: keep, RNG: rng}}
}

func (f *ForcedSeedIterator) Next() (evalproto.Seed, bool) {
	if f.done {
		return evalproto.Seed{}, false
	}
	f.done = true
	return f.seed, true
}

// DeterministicSeedIterator walks a finite, pre-enumerated seed space
// exactly once.
type DeterministicSeedIterator struct {
	seeds []int64
	pos   int
}

func NewDeterministicSeedIterator(seeds []int64) *DeterministicSeedIterator {
	return &DeterministicSeedIterator{seeds: seeds}
}

func (d *DeterministicSeedIterator) Next() (evalproto.Seed, bool) {
	if d.pos >= len(d.seeds) {
		return evalproto.Seed{}, false
	}
	s := evalproto.Seed{Keep: 0, RNG: d.seeds[d.pos]}
	d.pos++
	return s, true
}

// RandomizedSeedIterator yields uniformly-random 64-bit seeds forever.
// With probability KeepProb it sets Keep to a nonzero marker, instructing
// the permuter to continue mutating its own previous output instead of
// starting over from the original base source.
type RandomizedSeedIterator struct {
	rng      *rand.Rand
	keepProb float64
}

func NewRandomizedSeedIterator(rng *rand.Rand, keepProb float64) *RandomizedSeedIterator {
	return &RandomizedSeedIterator{rng: rng, keepProb: keepProb}
}

func (r *RandomizedSeedIterator) Next() (evalproto.Seed, bool) {
	keep := int64(0)
	if r.rng.Float64() < r.keepProb {
		keep = 1
	}
	return evalproto.Seed{Keep: keep, RNG: r.rng.Int63()}, true
}

package permuter

import "github.com/permuter-search/permuter/internal/evalproto"

// IndexedSeed is what the round robin yields: the permuter index plus
// its next seed tuple.
type IndexedSeed struct {
	Index int
	Seed  evalproto.Seed
}

// RoundRobin interleaves N permuters' seed iterators in strict rotation:
// each Next() call advances to the next non-exhausted permuter in
// rotation order and returns its next seed. A permuter is dropped from
// the rotation the first time its own iterator reports exhaustion. This
// guarantees that between two successive yields of permuter i, every
// other still-live permuter yields exactly once.
type RoundRobin struct {
	perms []*Permuter
	pos   int
}

// NewRoundRobin builds a round robin over perms in the given order. The
// order is the rotation order; callers that want deterministic output
// should pass permuters already sorted by index.
func NewRoundRobin(perms []*Permuter) *RoundRobin {
	live := make([]*Permuter, len(perms))
	copy(live, perms)
	return &RoundRobin{perms: live}
}

// Next returns the next (permuter index, seed) pair, or ok == false once
// every permuter's iterator is exhausted.
func (r *RoundRobin) Next() (IndexedSeed, bool) {
	for len(r.perms) > 0 {
		if r.pos >= len(r.perms) {
			r.pos = 0
		}
		p := r.perms[r.pos]
		seed, ok := p.Seeds.Next()
		if !ok {
			r.perms = append(r.perms[:r.pos], r.perms[r.pos+1:]...)
			continue
		}
		r.pos++
		return IndexedSeed{Index: p.Index, Seed: seed}, true
	}
	return IndexedSeed{}, false
}

// Len reports how many permuters remain live in the rotation.
func (r *RoundRobin) Len() int {
	return len(r.perms)
}

package coordinator

import (
	"context"
	"fmt"

	"github.com/permuter-search/permuter/internal/evalproto"
	"github.com/permuter-search/permuter/internal/permuter"
)

// EvalSourceFunc produces candidate C source from a permuter's base
// source and a seed tuple. The permutation algorithm itself is the
// out-of-scope external collaborator spec.md §1 names; this is the pure
// function hook it's invoked through.
type EvalSourceFunc func(base []byte, seed evalproto.Seed) (string, error)

// LocalEvaluator adapts the coordinator-local Permuter list into the
// workerpool.Evaluator interface, routing each (permIndex, seed) task to
// its owning permuter's Evaluate method against that job's own
// target.o.
type LocalEvaluator struct {
	perms      []*permuter.Permuter
	targetO    [][]byte
	evalSource EvalSourceFunc
}

// NewLocalEvaluator builds an Evaluator over perms, where targetO[i] is
// the compiled target object for perms[i]'s job directory.
func NewLocalEvaluator(perms []*permuter.Permuter, targetO [][]byte, evalSource EvalSourceFunc) *LocalEvaluator {
	return &LocalEvaluator{perms: perms, targetO: targetO, evalSource: evalSource}
}

// Evaluate implements workerpool.Evaluator.
func (e *LocalEvaluator) Evaluate(ctx context.Context, permIndex int, seed evalproto.Seed) evalproto.EvalResult {
	if permIndex < 0 || permIndex >= len(e.perms) {
		return evalproto.ErrorResult(&evalproto.EvalError{
			ExcStr: fmt.Sprintf("unknown permuter index %d", permIndex),
			Seed:   seed,
		})
	}
	p := e.perms[permIndex]
	return p.Evaluate(ctx, seed, e.targetO[permIndex], e.evalSource)
}

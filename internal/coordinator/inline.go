package coordinator

import (
	"context"

	"github.com/permuter-search/permuter/internal/evalproto"
	"github.com/permuter-search/permuter/internal/jobdir"
	"github.com/permuter-search/permuter/internal/permuter"
)

// RunInline is the `-j 1` single-threaded debug path: it runs
// permute->compile->score inline on the calling goroutine without
// spinning up the worker-pool machinery at all, "to make the permuter
// easier to debug" (original_source/src/main.py's special case for
// threads == 1 and not use_network). targetO[i] is perms[i]'s compiled
// target object.
func RunInline(ctx context.Context, perms []*permuter.Permuter, targetO [][]byte, evalSource func(base []byte, seed evalproto.Seed) (string, error), opts Options) (foundZero bool, err error) {
	rr := permuter.NewRoundRobin(perms)

	for {
		select {
		case <-ctx.Done():
			return foundZero, nil
		default:
		}

		is, ok := rr.Next()
		if !ok {
			return foundZero, nil
		}

		p := perms[is.Index]
		result := p.Evaluate(ctx, is.Seed, targetO[is.Index], evalSource)

		if result.IsError() {
			if opts.AbortExceptions {
				return foundZero, result.Err
			}
			if opts.OnMessage != nil {
				opts.OnMessage("", result.Err.Error())
			}
			continue
		}

		cand := *result.Candidate
		output, improvement := p.ShouldOutput(cand)
		outDir := ""
		if output && cand.Source != nil {
			dir, werr := jobdir.WriteOutput(p.Dir, cand.Score, *cand.Source, "", p.BaseSource)
			if werr != nil {
				return foundZero, werr
			}
			outDir = dir
		}
		if opts.OnResult != nil {
			opts.OnResult(ResultEvent{Permuter: p, Result: result, Improvement: improvement, Output: output, OutputDir: outDir})
		}

		if cand.Score == 0 {
			foundZero = true
			if opts.StopOnZero {
				return foundZero, nil
			}
		}
	}
}

package workerpool

import (
	"sync"

	"github.com/permuter-search/permuter/internal/evalproto"
)

// lifecycleCoordinator runs the pool's shutdown sequence exactly once,
// in the deterministic order the teacher's engine uses: cancel first so
// no worker blocks waiting for new work, then wait for every worker to
// observe cancellation and return, then close the channel downstream
// consumers range over.
type lifecycleCoordinator struct {
	cancel   func()
	inflight *sync.WaitGroup
	feedback chan evalproto.Feedback

	once sync.Once
}

func newLifecycleCoordinator(cancel func(), inflight *sync.WaitGroup, feedback chan evalproto.Feedback) *lifecycleCoordinator {
	return &lifecycleCoordinator{cancel: cancel, inflight: inflight, feedback: feedback}
}

func (lc *lifecycleCoordinator) Close() {
	lc.once.Do(func() {
		lc.cancel()
		lc.inflight.Wait()
		close(lc.feedback)
	})
}

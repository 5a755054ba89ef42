package workerpool

import (
	"context"
	"fmt"
	"sync"

	"github.com/permuter-search/permuter/internal/evalproto"
	"github.com/permuter-search/permuter/internal/workerpool/metrics"
)

// Pool owns T persistent local worker goroutines sharing one task queue
// and one feedback channel. Unlike the teacher's generic Workers[R],
// which checks a worker object out of a pool.Pool per task, each local
// worker here is a long-lived loop for the run's whole lifetime (spec.md
// §3: "Worker processes are forked once and live for the run").
type Pool struct {
	tasks    chan evalproto.Task
	feedback chan evalproto.Feedback

	numWorkers int
	evaluator  Evaluator
	inflight   sync.WaitGroup

	metrics metrics.Provider

	lifecycle *lifecycleCoordinator
}

// NewPool constructs a pool of numWorkers local workers, all evaluating
// through evaluator, sharing a task queue buffered to tasksBufferSize.
// Metrics are discarded by default; use WithMetrics to record them.
func NewPool(numWorkers int, evaluator Evaluator, tasksBufferSize int, opts ...PoolOption) *Pool {
	if numWorkers <= 0 {
		panic(fmt.Sprintf("workerpool: numWorkers must be positive, got %d", numWorkers))
	}
	p := &Pool{
		tasks:      make(chan evalproto.Task, tasksBufferSize),
		feedback:   make(chan evalproto.Feedback, numWorkers*2),
		numWorkers: numWorkers,
		evaluator:  evaluator,
		metrics:    metrics.NewNoopProvider(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// PoolOption configures a Pool at construction time.
type PoolOption func(*Pool)

// WithMetrics records per-worker evaluation counts, in-flight gauge, and
// timing through provider instead of discarding them.
func WithMetrics(provider metrics.Provider) PoolOption {
	return func(p *Pool) { p.metrics = provider }
}

// Start spawns the worker goroutines. Start must be called once; the
// pool stops accepting meaningful work once ctx is canceled, though
// workers still drain their current task before observing cancellation.
func (p *Pool) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)

	p.lifecycle = newLifecycleCoordinator(cancel, &p.inflight, p.feedback)

	for i := 0; i < p.numWorkers; i++ {
		who := fmt.Sprintf("local-%d", i)
		w := newWorker(who, p.tasks, p.feedback, p.evaluator, p.metrics)

		p.inflight.Add(1)
		go func(w *worker) {
			defer p.inflight.Done()
			w.run(ctx)
		}(w)
	}
}

// Tasks returns the send side of the shared task queue.
func (p *Pool) Tasks() chan<- evalproto.Task {
	return p.tasks
}

// Feedback returns the receive side of the shared feedback channel.
func (p *Pool) Feedback() <-chan evalproto.Feedback {
	return p.feedback
}

// Close cancels outstanding workers, waits for them to exit, and closes
// the feedback channel. Safe to call multiple times; the shutdown
// sequence runs exactly once.
func (p *Pool) Close() {
	p.lifecycle.Close()
}

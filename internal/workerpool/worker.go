// Package workerpool adapts the teacher's generic task/result/error
// channel plumbing into T persistent local worker loops implementing the
// non-blocking-then-blocking dequeue discipline: a worker probes its
// task queue without blocking, and only requests more work and blocks
// once it finds the queue empty. This lets the coordinator detect queue
// underrun without timers.
package workerpool

import (
	"context"
	"fmt"
	"time"

	"github.com/permuter-search/permuter/internal/evalproto"
	"github.com/permuter-search/permuter/internal/workerpool/metrics"
)

// Evaluator runs one (permuter, seed) task to completion.
// coordinator.LocalEvaluator implements it over the Permuters; it is an
// interface here so worker tests can substitute a stub.
type Evaluator interface {
	Evaluate(ctx context.Context, permIndex int, seed evalproto.Seed) evalproto.EvalResult
}

// worker runs one persistent loop reading from tasks and writing to
// feedback until it receives a Finished task or ctx is done.
type worker struct {
	who       string
	tasks     <-chan evalproto.Task
	feedback  chan<- evalproto.Feedback
	evaluator Evaluator

	inflight  metrics.UpDownCounter
	completed metrics.Counter
	duration  metrics.Histogram
}

func newWorker(who string, tasks <-chan evalproto.Task, feedback chan<- evalproto.Feedback, evaluator Evaluator, provider metrics.Provider) *worker {
	attrs := metrics.WithAttributes(map[string]string{"worker": who})
	return &worker{
		who:       who,
		tasks:     tasks,
		feedback:  feedback,
		evaluator: evaluator,
		inflight:  provider.UpDownCounter("permuter.worker.inflight", attrs, metrics.WithUnit("1")),
		completed: provider.Counter("permuter.worker.evaluations", attrs, metrics.WithUnit("1")),
		duration:  provider.Histogram("permuter.worker.eval_duration", attrs, metrics.WithUnit("seconds")),
	}
}

// run implements spec.md §4.2 step by step:
//  1. Non-blocking dequeue. If empty, emit NeedMoreWork and dequeue
//     blocking instead. The first successful dequeue after starvation
//     reverts to non-blocking for the next iteration.
//  2. Finished task: forward Finished and return.
//  3. Otherwise evaluate and emit WorkDone.
func (w *worker) run(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			w.feedback <- evalproto.Message(w.who, fmt.Sprintf("worker panicked: %v", r))
			w.feedback <- evalproto.Finished(w.who, "panic")
		}
	}()

	for {
		task, ok := w.dequeue(ctx)
		if !ok {
			return
		}

		if task.Finished {
			w.feedback <- evalproto.Finished(w.who, task.Reason)
			return
		}

		w.inflight.Add(1)
		start := time.Now()
		result := w.evaluator.Evaluate(ctx, task.PermIndex, task.Seed)
		w.duration.Record(time.Since(start).Seconds())
		w.inflight.Add(-1)
		w.completed.Add(1)

		select {
		case w.feedback <- evalproto.WorkDone(w.who, task.PermIndex, result):
		case <-ctx.Done():
			return
		}
	}
}

// dequeue tries a non-blocking receive first; on empty, it signals
// NeedMoreWork and falls back to a blocking receive.
func (w *worker) dequeue(ctx context.Context) (evalproto.Task, bool) {
	select {
	case t, ok := <-w.tasks:
		if !ok {
			return evalproto.Task{}, false
		}
		return t, true
	default:
	}

	select {
	case w.feedback <- evalproto.NeedMoreWork(w.who):
	case <-ctx.Done():
		return evalproto.Task{}, false
	}

	select {
	case t, ok := <-w.tasks:
		if !ok {
			return evalproto.Task{}, false
		}
		return t, true
	case <-ctx.Done():
		return evalproto.Task{}, false
	}
}

// Package coordinator drives the distributed search: it owns the
// permuter list, the local worker pool, zero or more remote sessions,
// and the Feeding/Draining/Stopped state machine that turns a shared
// feedback stream into output directories and exit status.
package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/permuter-search/permuter/internal/evalproto"
	"github.com/permuter-search/permuter/internal/jobdir"
	"github.com/permuter-search/permuter/internal/permuter"
)

// State is the coordinator's top-level state machine position.
type State int

const (
	Feeding State = iota
	Draining
	Stopped
)

func (s State) String() string {
	switch s {
	case Feeding:
		return "Feeding"
	case Draining:
		return "Draining"
	case Stopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

// WorkSource is anything that consumes Tasks and produces Feedback: the
// local worker pool and each remote session implement it uniformly so
// the main loop doesn't need to special-case either.
type WorkSource interface {
	Tasks() chan<- evalproto.Task
	Feedback() <-chan evalproto.Feedback
	Close()
}

// Options configures one coordinator run.
type Options struct {
	StopOnZero      bool
	AbortExceptions bool
	NeedAllSources  bool

	// StuckThreshold is the interval after which a second cancellation
	// signal is treated as "stuck" (spec.md §4.3; default 5s).
	StuckThreshold time.Duration

	// OnMessage/OnResult let the caller (internal/ui) observe progress
	// without the coordinator importing a display package directly.
	OnMessage func(who, text string)
	OnResult  func(ResultEvent)
}

// ResultEvent is emitted for every scored WorkDone, win or not, so a
// caller can drive timing stats and status lines.
type ResultEvent struct {
	Permuter    *permuter.Permuter
	Result      evalproto.EvalResult
	Improvement permuter.Improvement
	Output      bool
	OutputDir   string
}

// Coordinator runs the main loop described in spec.md §4.3.
type Coordinator struct {
	perms   []*permuter.Permuter
	rr      *permuter.RoundRobin
	sources []WorkSource

	opts Options

	state         State
	activeSources int
	zeroLocked    bool
	lastHeartbeat time.Time
}

// New builds a coordinator over perms and the given work sources (local
// pool first, then remote sessions, by convention).
func New(perms []*permuter.Permuter, sources []WorkSource, opts Options) *Coordinator {
	if opts.StuckThreshold == 0 {
		opts.StuckThreshold = 5 * time.Second
	}
	return &Coordinator{
		perms:         perms,
		rr:            permuter.NewRoundRobin(perms),
		sources:       sources,
		opts:          opts,
		state:         Feeding,
		activeSources: len(sources),
	}
}

// Run executes the Feeding -> Draining -> Stopped loop until every
// source reports Finished, returning true iff a zero score was found.
// Cancellation of ctx begins draining; spec.md §4.3's "stuck process"
// hard-exit is the caller's responsibility (internal/ui / cmd) since it
// needs direct access to os.Exit and signal counting.
func (c *Coordinator) Run(ctx context.Context) (foundZero bool, err error) {
	feedback := fanIn(c.sources)
	c.lastHeartbeat = time.Now()

	// Prime the queue: in production the first feedback the loop reads
	// is each worker's own NeedMoreWork, emitted because it starts with
	// an empty queue (spec.md §4.2). Feeding one task per source up
	// front gets the same rotation going without relying on that signal
	// reaching every kind of WorkSource identically.
	if c.state == Feeding {
		for range c.sources {
			c.feedNext()
		}
	}

	for c.state != Stopped {
		select {
		case <-ctx.Done():
			c.beginDraining()
		case fb, ok := <-feedback:
			if !ok {
				c.state = Stopped
				continue
			}
			c.lastHeartbeat = time.Now()
			if err := c.handleFeedback(fb); err != nil {
				return foundZero, err
			}
			if fb.Kind == evalproto.FeedbackWorkDone && !fb.Result.IsError() &&
				fb.Result.Candidate != nil && fb.Result.Candidate.Score == 0 {
				foundZero = true
			}
		}

		if c.state == Feeding {
			c.feedNext()
		}
	}

	for _, s := range c.sources {
		s.Close()
	}
	return foundZero, nil
}

func (c *Coordinator) handleFeedback(fb evalproto.Feedback) error {
	switch fb.Kind {
	case evalproto.FeedbackMessage:
		if c.opts.OnMessage != nil {
			c.opts.OnMessage(fb.Who, fb.Text)
		}

	case evalproto.FeedbackFinished:
		c.activeSources--
		if c.activeSources <= 0 {
			c.state = Stopped
		}

	case evalproto.FeedbackNeedMoreWork:
		// No result to charge; step 2 of the loop will feed more work.

	case evalproto.FeedbackWorkDone:
		if err := c.applyWorkDone(fb); err != nil {
			return err
		}
	}
	return nil
}

func (c *Coordinator) applyWorkDone(fb evalproto.Feedback) error {
	if c.zeroLocked {
		// The terminal zero condition is already locked in: late WorkDones
		// arriving during drain are no longer scored.
		return nil
	}

	if fb.PermIndex < 0 || fb.PermIndex >= len(c.perms) {
		return fmt.Errorf("coordinator: WorkDone for unknown permuter index %d", fb.PermIndex)
	}
	p := c.perms[fb.PermIndex]

	if fb.Result.IsError() {
		if c.opts.AbortExceptions {
			return fmt.Errorf("coordinator: aborting on evaluation error: %w", fb.Result.Err)
		}
		if c.opts.OnMessage != nil {
			c.opts.OnMessage(fb.Who, fb.Result.Err.Error())
		}
		return nil
	}

	cand := *fb.Result.Candidate
	output, improvement := p.ShouldOutput(cand)

	outDir := ""
	if output && cand.Source != nil {
		diff := "" // diff generation is the ui package's concern; recorded empty here.
		dir, err := jobdir.WriteOutput(p.Dir, cand.Score, *cand.Source, diff, p.BaseSource)
		if err != nil {
			return fmt.Errorf("coordinator: writing output dir: %w", err)
		}
		outDir = dir
	}

	if c.opts.OnResult != nil {
		c.opts.OnResult(ResultEvent{Permuter: p, Result: fb.Result, Improvement: improvement, Output: output, OutputDir: outDir})
	}

	if cand.Score == 0 && c.opts.StopOnZero && !c.zeroLocked {
		c.zeroLocked = true
		c.beginDraining()
	}
	return nil
}

func (c *Coordinator) feedNext() {
	is, ok := c.rr.Next()
	if !ok {
		c.beginDraining()
		return
	}
	task := evalproto.NewWorkTask(is.Index, is.Seed)
	for _, s := range c.sources {
		select {
		case s.Tasks() <- task:
			return
		default:
		}
	}
	// All sources' queues are momentarily full; block on the first one.
	// In practice the non-blocking-then-blocking discipline on the
	// worker side means this is rare and bounded by queue depth.
	if len(c.sources) > 0 {
		c.sources[0].Tasks() <- task
	}
}

func (c *Coordinator) beginDraining() {
	if c.state == Draining || c.state == Stopped {
		return
	}
	c.state = Draining
	for _, s := range c.sources {
		s.Tasks() <- evalproto.NewFinishedTask("")
	}
}

// HeartbeatAge reports how long it has been since the main loop last
// made progress, for the stuck-process check in spec.md §4.3.
func (c *Coordinator) HeartbeatAge() time.Duration {
	return time.Since(c.lastHeartbeat)
}

// fanIn merges every source's feedback channel into one, closing the
// merged channel once all sources' channels are closed.
func fanIn(sources []WorkSource) <-chan evalproto.Feedback {
	out := make(chan evalproto.Feedback)
	if len(sources) == 0 {
		close(out)
		return out
	}

	remaining := len(sources)
	done := make(chan struct{}, len(sources))

	for _, s := range sources {
		go func(s WorkSource) {
			for fb := range s.Feedback() {
				out <- fb
			}
			done <- struct{}{}
		}(s)
	}

	go func() {
		for range done {
			remaining--
			if remaining == 0 {
				close(out)
				return
			}
		}
	}()

	return out
}

package server

import (
	"context"
	"fmt"
	"sync"

	"github.com/permuter-search/permuter/internal/evalproto"
)

// Evaluator is the server's handle onto the sandboxed evaluator
// subprocess (implemented by EvaluatorProc). Add/Work/Remove are
// fire-and-forget: the evaluator's own asynchronous replies arrive back
// on the main queue as PermInitSuccess/Fail, WorkDone, and NeedMoreWork
// activities, never as return values here.
type Evaluator interface {
	Add(handle string, data PermuterData) error
	Work(handle string, seed evalproto.Seed) error
	Remove(handle string) error
}

// outputSink is how the server delivers an Output back to the NetThread
// that owns ThreadID; internal/server's NetThread registers one per
// session.
type outputSink interface {
	Send(Output)
}

// Server owns one long-lived evaluator and the active-handle set across
// all connected sessions. It is single-threaded at the decision
// boundary: every activity is processed by one goroutine reading
// mainQueue. mu still guards the active and sinks maps, since NetThread
// goroutines register and unregister their sinks concurrently.
type Server struct {
	mainQueue chan Activity
	evaluator Evaluator
	sinks     map[int]outputSink

	mu     sync.Mutex
	active map[string]int // handle -> owning thread id

	minPriority float64
	onIdle      func()
}

// New constructs a Server. RegisterThread/UnregisterThread manage the
// sinks map as sessions come and go.
func New(evaluator Evaluator, minPriority float64, onIdle func()) *Server {
	return &Server{
		mainQueue:   make(chan Activity, 256),
		evaluator:   evaluator,
		sinks:       make(map[int]outputSink),
		active:      make(map[string]int),
		minPriority: minPriority,
		onIdle:      onIdle,
	}
}

// Enqueue posts an Activity to the main queue. Safe for concurrent
// callers (NetThread read-loops, the evaluator read-loop).
func (s *Server) Enqueue(a Activity) {
	s.mainQueue <- a
}

// SetEvaluator binds the sandboxed evaluator after construction, since
// internal/server.EvaluatorProc needs a *Server to post Activities back
// into and the Server needs an Evaluator to call Add/Work/Remove on:
// callers build the Server first with a nil Evaluator, then the
// EvaluatorProc, then wire them together here.
func (s *Server) SetEvaluator(evaluator Evaluator) {
	s.evaluator = evaluator
}

// RegisterThread attaches a sink a NetThread uses to receive Outputs.
func (s *Server) RegisterThread(threadID int, sink outputSink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sinks[threadID] = sink
}

func (s *Server) UnregisterThread(threadID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sinks, threadID)
}

// Run processes activities until a Shutdown activity or ctx is done.
func (s *Server) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case a := <-s.mainQueue:
			if !s.handle(a) {
				return
			}
			if len(s.mainQueue) == 0 && s.activeCount() == 0 && s.onIdle != nil {
				s.onIdle()
			}
		}
	}
}

func (s *Server) activeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// handle dispatches one Activity; it returns false only on Shutdown.
func (s *Server) handle(a Activity) bool {
	switch a.Kind {
	case ActivityAddPermuter:
		s.mu.Lock()
		if _, exists := s.active[a.Handle]; exists {
			s.mu.Unlock()
			panic(fmt.Sprintf("server: AddPermuter for duplicate handle %q", a.Handle))
		}
		s.active[a.Handle] = a.ThreadID
		s.mu.Unlock()
		if a.Priority < s.minPriority {
			s.removeHandle(a.Handle)
			s.emit(a.ThreadID, Output{Kind: OutputInitFail, ThreadID: a.ThreadID, Handle: a.Handle, Reason: "client priority below server minimum"})
			return true
		}
		if err := s.evaluator.Add(a.Handle, a.Data); err != nil {
			s.removeHandle(a.Handle)
			s.emit(a.ThreadID, Output{Kind: OutputInitFail, ThreadID: a.ThreadID, Handle: a.Handle, Reason: err.Error()})
		}

	case ActivityRemovePermuter:
		// Silently ignored for a handle never added: removes can race
		// with server-initiated disconnects (spec.md §9's documented
		// asymmetry with AddPermuter, which raises on duplicates).
		if !s.isActive(a.Handle) {
			return true
		}
		s.removeHandle(a.Handle)
		_ = s.evaluator.Remove(a.Handle)

	case ActivityWork:
		if !s.isActive(a.Handle) {
			s.emit(a.ThreadID, Output{Kind: OutputNeedMoreWork, ThreadID: a.ThreadID})
			return true
		}
		_ = s.evaluator.Work(a.Handle, a.Seed)

	case ActivityImmediateDisconnect:
		// Garbage from the client; no reply, thread is torn down by its
		// owner.

	case ActivityDisconnect:
		for _, h := range s.handlesForThread(a.ThreadID) {
			s.removeHandle(h)
			_ = s.evaluator.Remove(h)
		}
		s.emit(a.ThreadID, Output{Kind: OutputDisconnect, ThreadID: a.ThreadID, Reason: a.Reason})

	case ActivityPermInitFail:
		threadID := s.ownerOf(a.Handle)
		s.removeHandle(a.Handle)
		s.emit(threadID, Output{Kind: OutputInitFail, ThreadID: threadID, Handle: a.Handle, Reason: a.Reason})

	case ActivityPermInitSuccess:
		threadID := s.ownerOf(a.Handle)
		s.emit(threadID, Output{Kind: OutputInitSuccess, ThreadID: threadID, Handle: a.Handle})

	case ActivityWorkDone:
		if !s.isActive(a.Handle) {
			return true
		}
		threadID := s.ownerOf(a.Handle)
		s.emit(threadID, Output{Kind: OutputResult, ThreadID: threadID, Handle: a.Handle, Result: a.Result})

	case ActivityNeedMoreWork:
		threadID := s.ownerOf(a.Handle)
		if threadID == 0 {
			s.broadcast(Output{Kind: OutputNeedMoreWork})
			return true
		}
		s.emit(threadID, Output{Kind: OutputNeedMoreWork, ThreadID: threadID})

	case ActivityNetThreadDisconnected:
		for _, h := range s.handlesForThread(a.ThreadID) {
			s.removeHandle(h)
			_ = s.evaluator.Remove(h)
		}
		s.UnregisterThread(a.ThreadID)

	case ActivityHeartbeat:
		// No state mutation; reserved for UI/tray liveness.

	case ActivityShutdown:
		s.broadcast(Output{Kind: OutputShutdown})
		return false
	}
	return true
}

func (s *Server) isActive(handle string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.active[handle]
	return ok
}

func (s *Server) ownerOf(handle string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active[handle]
}

func (s *Server) removeHandle(handle string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, handle)
}

func (s *Server) handlesForThread(threadID int) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for h, t := range s.active {
		if t == threadID {
			out = append(out, h)
		}
	}
	return out
}

func (s *Server) emit(threadID int, out Output) {
	s.mu.Lock()
	sink, ok := s.sinks[threadID]
	s.mu.Unlock()
	if ok {
		sink.Send(out)
	}
}

func (s *Server) broadcast(out Output) {
	s.mu.Lock()
	sinks := make([]outputSink, 0, len(s.sinks))
	for _, sink := range s.sinks {
		sinks = append(sinks, sink)
	}
	s.mu.Unlock()
	for _, sink := range sinks {
		sink.Send(out)
	}
}

package server

import (
	"fmt"
	"io"
	"sync"

	"github.com/permuter-search/permuter/internal/evalproto"
	"github.com/permuter-search/permuter/internal/wire"
)

// rwPair adapts a separate stdin writer and stdout reader (what
// internal/sandbox.Evaluator exposes) into the single io.ReadWriter
// wire.Conn wants.
type rwPair struct {
	io.Reader
	io.Writer
}

// EvaluatorProc implements the Evaluator interface by driving the
// sandboxed subprocess's JSON protocol (spec.md §4.6) over the same
// encrypted-frame Conn as a network session, keyed by the secret the
// subprocess was started with. Add/Work/Remove write a request frame
// and return immediately; replies (init/result/need_work) are read by a
// dedicated loop goroutine and translated into Activities posted to the
// owning Server, never returned here.
type EvaluatorProc struct {
	conn   *wire.Conn
	server *Server

	mu      sync.Mutex
	pending map[string]bool // handle -> source blob expected to follow this result
}

// NewEvaluatorProc wraps stdin/stdout under key and wires results back
// into srv's main queue.
func NewEvaluatorProc(srv *Server, stdin io.Writer, stdout io.Reader, key *[wire.KeySize]byte) *EvaluatorProc {
	conn := wire.NewPresharedConn(rwPair{Reader: stdout, Writer: stdin}, key, wire.DirectionClient)
	return &EvaluatorProc{conn: conn, server: srv, pending: make(map[string]bool)}
}

// Add sends the add request followed by the two raw frames (source,
// target object) spec.md §4.6 describes.
func (e *EvaluatorProc) Add(handle string, data PermuterData) error {
	req := evalproto.EvaluatorRequest{
		Type:             evalproto.EvaluatorMsgAdd,
		ID:               handle,
		FnName:           data.FnName,
		Filename:         data.Filename,
		KeepProb:         data.KeepProb,
		StackDifferences: data.StackDifferences,
		CompileScript:    string(data.CompileScript),
	}
	if err := e.conn.SendJSON(req); err != nil {
		return fmt.Errorf("server: sending add for %q: %w", handle, err)
	}
	if err := e.conn.SendRaw(data.Source); err != nil {
		return fmt.Errorf("server: sending source for %q: %w", handle, err)
	}
	if err := e.conn.SendRaw(data.TargetOBin); err != nil {
		return fmt.Errorf("server: sending target object for %q: %w", handle, err)
	}
	return nil
}

// Work sends one work request for handle at seed.
func (e *EvaluatorProc) Work(handle string, seed evalproto.Seed) error {
	req := evalproto.EvaluatorRequest{Type: evalproto.EvaluatorMsgWork, ID: handle, Seed: seed.RNG, Keep: seed.Keep}
	if err := e.conn.SendJSON(req); err != nil {
		return fmt.Errorf("server: sending work for %q: %w", handle, err)
	}
	return nil
}

// Remove sends a remove request for handle.
func (e *EvaluatorProc) Remove(handle string) error {
	req := evalproto.EvaluatorRequest{Type: evalproto.EvaluatorMsgRemove, ID: handle}
	if err := e.conn.SendJSON(req); err != nil {
		return fmt.Errorf("server: sending remove for %q: %w", handle, err)
	}
	return nil
}

// ReadLoop tails the evaluator's replies until the subprocess exits or
// the connection fails, translating each into an Activity on srv's main
// queue. On EOF or a framing error it enqueues Shutdown: the main loop
// then sends every session a disconnect ("server shutting down") and
// stops.
func (e *EvaluatorProc) ReadLoop() {
	for {
		var resp evalproto.EvaluatorResponse
		if err := e.conn.ReceiveJSON(&resp); err != nil {
			e.server.Enqueue(Shutdown())
			return
		}

		switch resp.Type {
		case evalproto.EvaluatorMsgInit:
			if resp.Success {
				e.server.Enqueue(PermInitSuccess(resp.ID))
			} else {
				e.server.Enqueue(PermInitFail(resp.ID, resp.Reason))
			}

		case evalproto.EvaluatorMsgResult:
			result := e.decodeResult(resp)
			if resp.HasSource {
				raw, err := e.conn.ReceiveRaw()
				if err == nil {
					src, derr := wire.DecompressSource(raw)
					if derr == nil && result.Candidate != nil {
						s := string(src)
						result.Candidate.Source = &s
					}
				}
			}
			e.server.Enqueue(WorkDoneActivity(resp.ID, result))

		case evalproto.EvaluatorMsgNeedWork:
			e.server.Enqueue(NeedMoreWorkActivity())
		}
	}
}

func (e *EvaluatorProc) decodeResult(resp evalproto.EvaluatorResponse) evalproto.EvalResult {
	if resp.IsError {
		return evalproto.ErrorResult(&evalproto.EvalError{ExcStr: resp.ExcStr})
	}
	return evalproto.CandidateEvalResult(evalproto.CandidateResult{
		Score:         resp.Score,
		Hash:          resp.Hash,
		ProfilerStats: resp.Profiler,
	})
}

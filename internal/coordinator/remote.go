package coordinator

import (
	"fmt"
	"io"
	"net"
	"os"
	"sync"

	"github.com/permuter-search/permuter/internal/evalproto"
	"github.com/permuter-search/permuter/internal/permuter"
	"github.com/permuter-search/permuter/internal/wire"
)

// RemoteSession is the coordinator's per-server connector (spec.md
// §4.5): one encrypted session, a reader goroutine translating server
// messages into Feedback, and a writer goroutine draining the shared
// Tasks channel onto the wire. It implements WorkSource so the main
// loop treats it exactly like the local worker pool.
type RemoteSession struct {
	who  string
	conn io.Closer

	tasks    chan evalproto.Task
	feedback chan evalproto.Feedback

	closeOnce sync.Once
}

// DialRemoteSession connects to addr, performs the client handshake
// under id against serverKeys, registers every permuter in perms with
// the server at the given priority, and starts the reader/writer
// goroutines. The session's feedback identifies itself in user-visible
// messages by addr.
func DialRemoteSession(addr string, id *wire.Identity, serverKeys wire.AuthorizedKeys, priority float64, perms []*permuter.Permuter, targetO [][]byte) (*RemoteSession, error) {
	nc, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("remote %s: dialing: %w", addr, err)
	}

	conn, err := wire.NewClientConn(nc, id, serverKeys)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("remote %s: handshake: %w", addr, err)
	}

	handles := make([]string, len(perms))
	handleIndex := make(map[string]int, len(perms))
	for i, p := range perms {
		handles[i] = p.UniqueName
		handleIndex[p.UniqueName] = i

		compileScript, err := os.ReadFile(p.Compiler.ScriptPath)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("remote %s: reading compile script for %s: %w", addr, p.UniqueName, err)
		}
		compressed, err := wire.CompressSource(p.BaseSource)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("remote %s: compressing source for %s: %w", addr, p.UniqueName, err)
		}

		add := evalproto.ClientMsg{
			Type:             evalproto.ClientMsgAdd,
			ID:               p.UniqueName,
			FnName:           p.FnName,
			Filename:         p.UniqueName + ".c",
			KeepProb:         p.Policy.KeepProb,
			StackDifferences: p.Policy.StackDiffs,
			CompileScript:    string(compileScript),
			Priority:         priority,
		}
		if err := conn.SendJSON(add); err != nil {
			conn.Close()
			return nil, fmt.Errorf("remote %s: sending add for %s: %w", addr, p.UniqueName, err)
		}
		if err := conn.SendRaw(compressed); err != nil {
			conn.Close()
			return nil, fmt.Errorf("remote %s: sending source for %s: %w", addr, p.UniqueName, err)
		}
		if err := conn.SendRaw(targetO[i]); err != nil {
			conn.Close()
			return nil, fmt.Errorf("remote %s: sending target object for %s: %w", addr, p.UniqueName, err)
		}
	}

	rs := &RemoteSession{
		who:      addr,
		conn:     conn,
		tasks:    make(chan evalproto.Task, 8),
		feedback: make(chan evalproto.Feedback, 8),
	}

	done := make(chan struct{})
	go rs.readLoop(conn, handleIndex, done)
	go rs.writeLoop(conn, handles, done)

	return rs, nil
}

func (rs *RemoteSession) readLoop(conn *wire.Conn, handleIndex map[string]int, done chan struct{}) {
	defer close(rs.feedback)
	defer close(done)

	for {
		var msg evalproto.ServerMsg
		if err := conn.ReceiveJSON(&msg); err != nil {
			rs.feedback <- evalproto.Finished(rs.who, err.Error())
			return
		}

		switch msg.Type {
		case evalproto.ServerMsgNeedWork:
			rs.feedback <- evalproto.NeedMoreWork(rs.who)

		case evalproto.ServerMsgUpdate:
			switch msg.Subtype {
			case evalproto.UpdateInitFailed:
				rs.feedback <- evalproto.Message(rs.who, fmt.Sprintf("permuter %s failed to init on %s: %s", msg.ID, rs.who, msg.Reason))
			case evalproto.UpdateInitDone:
				// No user-visible action; the permuter is now live on the server.
			case evalproto.UpdateDisconnect:
				rs.feedback <- evalproto.Finished(rs.who, msg.Reason)
				return
			case evalproto.UpdateWork:
				idx, ok := handleIndex[msg.ID]
				if !ok {
					continue
				}
				result := rs.decodeResult(conn, msg)
				rs.feedback <- evalproto.WorkDone(rs.who, idx, result)
			}
		}
	}
}

func (rs *RemoteSession) decodeResult(conn *wire.Conn, msg evalproto.ServerMsg) evalproto.EvalResult {
	if msg.IsError {
		return evalproto.ErrorResult(&evalproto.EvalError{ExcStr: msg.ExcStr})
	}
	cand := evalproto.CandidateResult{Score: msg.Score, Hash: msg.Hash, ProfilerStats: msg.Profiler}
	if msg.HasSource {
		raw, err := conn.ReceiveRaw()
		if err == nil {
			if src, derr := wire.DecompressSource(raw); derr == nil {
				s := string(src)
				cand.Source = &s
			}
		}
	}
	return evalproto.CandidateEvalResult(cand)
}

func (rs *RemoteSession) writeLoop(conn *wire.Conn, handles []string, done chan struct{}) {
	for {
		select {
		case <-done:
			return
		case t := <-rs.tasks:
			if t.Finished {
				return
			}
			if t.PermIndex < 0 || t.PermIndex >= len(handles) {
				continue
			}
			msg := evalproto.ClientMsg{Type: evalproto.ClientMsgWork, ID: handles[t.PermIndex], Seed: t.Seed.RNG, Keep: t.Seed.Keep}
			if err := conn.SendJSON(msg); err != nil {
				return
			}
		}
	}
}

// Tasks implements WorkSource.
func (rs *RemoteSession) Tasks() chan<- evalproto.Task { return rs.tasks }

// Feedback implements WorkSource.
func (rs *RemoteSession) Feedback() <-chan evalproto.Feedback { return rs.feedback }

// Close tears down the underlying connection, which unblocks the reader
// loop with an error and lets it finish the Finished(reason) handshake.
func (rs *RemoteSession) Close() {
	rs.closeOnce.Do(func() {
		_ = rs.conn.Close()
	})
}

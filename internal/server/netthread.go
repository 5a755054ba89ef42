package server

import (
	"fmt"

	"github.com/permuter-search/permuter/internal/evalproto"
	"github.com/permuter-search/permuter/internal/wire"
)

// NetThread is the server-side session I/O endpoint spec.md calls out
// in §9's cyclic-ownership note: it owns one client's wire.Conn and is
// known to the rest of the system only by its integer ThreadID, never
// by reference, so Activity/Output values can cross the main queue
// without the NetThread and the queue holding references to each other.
type NetThread struct {
	ID     int
	conn   *wire.Conn
	server *Server
}

// NewNetThread registers a sink for threadID and returns the NetThread
// that owns conn. Call Run to start relaying; the session ends when Run
// returns. NetThread has no Close method; closing conn ends Run.
func NewNetThread(id int, conn *wire.Conn, srv *Server) *NetThread {
	nt := &NetThread{ID: id, conn: conn, server: srv}
	srv.RegisterThread(id, nt)
	return nt
}

// Send implements outputSink: it translates one Output into the wire
// message shape spec.md §6 defines and writes it to the client.
func (nt *NetThread) Send(out Output) {
	switch out.Kind {
	case OutputInitFail:
		_ = nt.conn.SendJSON(evalproto.ServerMsg{Type: evalproto.ServerMsgUpdate, Subtype: evalproto.UpdateInitFailed, ID: out.Handle, Reason: out.Reason})

	case OutputInitSuccess:
		_ = nt.conn.SendJSON(evalproto.ServerMsg{Type: evalproto.ServerMsgUpdate, Subtype: evalproto.UpdateInitDone, ID: out.Handle})

	case OutputDisconnect:
		_ = nt.conn.SendJSON(evalproto.ServerMsg{Type: evalproto.ServerMsgUpdate, Subtype: evalproto.UpdateDisconnect, Reason: out.Reason})

	case OutputNeedMoreWork:
		_ = nt.conn.SendJSON(evalproto.ServerMsg{Type: evalproto.ServerMsgNeedWork})

	case OutputResult:
		nt.sendResult(out)

	case OutputShutdown:
		_ = nt.conn.SendJSON(evalproto.ServerMsg{Type: evalproto.ServerMsgUpdate, Subtype: evalproto.UpdateDisconnect, Reason: "server shutting down"})
	}
}

func (nt *NetThread) sendResult(out Output) {
	msg := evalproto.ServerMsg{Type: evalproto.ServerMsgUpdate, Subtype: evalproto.UpdateWork, ID: out.Handle}
	r := out.Result
	if r.IsError() {
		msg.IsError = true
		msg.ExcStr = r.Err.ExcStr
	} else if r.Candidate != nil {
		msg.Score = r.Candidate.Score
		msg.Hash = r.Candidate.Hash
		msg.Profiler = r.Candidate.ProfilerStats
		msg.HasSource = r.Candidate.Source != nil
	}
	if err := nt.conn.SendJSON(msg); err != nil {
		return
	}
	if msg.HasSource {
		compressed, err := wire.CompressSource([]byte(*r.Candidate.Source))
		if err == nil {
			_ = nt.conn.SendRaw(compressed)
		}
	}
}

// Run reads client messages until EOF or a protocol violation,
// translating each into an Activity on the server's main queue. It
// returns once the session ends, unregistering the thread from the
// server on the way out.
func (nt *NetThread) Run() {
	defer nt.server.UnregisterThread(nt.ID)

	for {
		var msg evalproto.ClientMsg
		if err := nt.conn.ReceiveJSON(&msg); err != nil {
			nt.server.Enqueue(NetThreadDisconnected(nt.ID))
			return
		}

		switch msg.Type {
		case evalproto.ClientMsgHeartbeat:
			nt.server.Enqueue(Heartbeat(nt.ID))

		case evalproto.ClientMsgAdd:
			source, err := nt.conn.ReceiveRaw()
			if err != nil {
				nt.server.Enqueue(NetThreadDisconnected(nt.ID))
				return
			}
			targetO, err := nt.conn.ReceiveRaw()
			if err != nil {
				nt.server.Enqueue(NetThreadDisconnected(nt.ID))
				return
			}
			decompressed, err := wire.DecompressSource(source)
			if err != nil {
				nt.server.Enqueue(ImmediateDisconnect(nt.ID, "malformed compressed source"))
				return
			}
			data := PermuterData{
				FnName:           msg.FnName,
				Filename:         msg.Filename,
				KeepProb:         msg.KeepProb,
				StackDifferences: msg.StackDifferences,
				CompileScript:    []byte(msg.CompileScript),
				Source:           decompressed,
				TargetOBin:       targetO,
			}
			nt.server.Enqueue(AddPermuter(nt.ID, msg.ID, data, msg.Priority))

		case evalproto.ClientMsgWork:
			nt.server.Enqueue(Work(nt.ID, msg.ID, evalproto.Seed{Keep: msg.Keep, RNG: msg.Seed}))

		case evalproto.ClientMsgRemove:
			nt.server.Enqueue(RemovePermuter(nt.ID, msg.ID))

		default:
			nt.server.Enqueue(ImmediateDisconnect(nt.ID, fmt.Sprintf("bad message type %q", msg.Type)))
			return
		}
	}
}

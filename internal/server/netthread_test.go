package server

import (
	"net"
	"testing"
	"time"

	"github.com/permuter-search/permuter/internal/evalproto"
	"github.com/permuter-search/permuter/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestNetThread(t *testing.T, srv *Server) (*NetThread, *wire.Conn) {
	t.Helper()
	serverSide, clientSide := net.Pipe()

	var key [wire.KeySize]byte
	for i := range key {
		key[i] = byte(i + 1)
	}

	serverConn := wire.NewPresharedConn(serverSide, &key, wire.DirectionServer)
	clientConn := wire.NewPresharedConn(clientSide, &key, wire.DirectionClient)
	t.Cleanup(func() {
		serverSide.Close()
		clientSide.Close()
	})

	nt := NewNetThread(1, serverConn, srv)
	go nt.Run()
	return nt, clientConn
}

func TestNetThread_AddTranslatesToAddPermuterActivity(t *testing.T) {
	eval := &fakeEvaluator{}
	srv := New(eval, 0, nil)
	cancel := runServer(t, srv)
	defer cancel()

	_, clientConn := newTestNetThread(t, srv)

	compressedSource, err := wire.CompressSource([]byte("int f(void){return 0;}"))
	require.NoError(t, err)

	require.NoError(t, clientConn.SendJSON(evalproto.ClientMsg{
		Type: evalproto.ClientMsgAdd, ID: "h1", FnName: "f", Priority: 1,
	}))
	require.NoError(t, clientConn.SendRaw(compressedSource))
	require.NoError(t, clientConn.SendRaw([]byte("target-object-bytes")))

	require.Eventually(t, func() bool {
		return eval.addCalls == 1
	}, time.Second, 10*time.Millisecond, "expected the evaluator to see one Add call")
}

func TestNetThread_Send_ResultIncludesCompressedSource(t *testing.T) {
	eval := &fakeEvaluator{}
	srv := New(eval, 0, nil)

	nt, clientConn := newTestNetThread(t, srv)

	src := "int g(void){return 1;}"
	nt.Send(Output{
		Kind:   OutputResult,
		Handle: "h1",
		Result: evalproto.CandidateEvalResult(evalproto.CandidateResult{Score: 2, Hash: "h", Source: &src}),
	})

	var msg evalproto.ServerMsg
	require.NoError(t, clientConn.ReceiveJSON(&msg))
	assert.Equal(t, evalproto.ServerMsgUpdate, msg.Type)
	assert.Equal(t, evalproto.UpdateWork, msg.Subtype)
	assert.Equal(t, 2, msg.Score)
	assert.True(t, msg.HasSource)

	raw, err := clientConn.ReceiveRaw()
	require.NoError(t, err)
	decompressed, err := wire.DecompressSource(raw)
	require.NoError(t, err)
	assert.Equal(t, src, string(decompressed))
}

func TestNetThread_Run_DisconnectOnProtocolViolation(t *testing.T) {
	eval := &fakeEvaluator{}
	srv := New(eval, 0, nil)
	cancel := runServer(t, srv)
	defer cancel()

	_, clientConn := newTestNetThread(t, srv)

	require.NoError(t, clientConn.SendJSON(evalproto.ClientMsg{Type: "not-a-real-type"}))

	// The NetThread ends its own session on a bad message type; Run's
	// return is observed here as the thread's sink being unregistered.
	require.Eventually(t, func() bool {
		srv.mu.Lock()
		defer srv.mu.Unlock()
		_, ok := srv.sinks[1]
		return !ok
	}, time.Second, 10*time.Millisecond, "expected the NetThread to unregister after the protocol violation")
}

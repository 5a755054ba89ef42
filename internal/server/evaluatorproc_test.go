package server

import (
	"io"
	"testing"
	"time"

	"github.com/permuter-search/permuter/internal/evalproto"
	"github.com/permuter-search/permuter/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestEvaluatorProc wires up an EvaluatorProc against an in-process
// "evaluator" conn over io.Pipe, both keyed with the same preshared
// secret, mirroring the real subprocess IPC channel without a Docker
// container. fromEvalW is returned so a test can close it to simulate
// the evaluator subprocess dying mid-session.
func newTestEvaluatorProc(t *testing.T, srv *Server) (evalProc *EvaluatorProc, testConn *wire.Conn, fromEvalW io.WriteCloser) {
	t.Helper()
	toEvalR, toEvalW := io.Pipe()
	fromEvalR, fromEvalWriter := io.Pipe()

	var key [wire.KeySize]byte
	for i := range key {
		key[i] = byte(i)
	}

	evalProc = NewEvaluatorProc(srv, toEvalW, fromEvalR, &key)
	testConn = wire.NewPresharedConn(rwPair{Reader: toEvalR, Writer: fromEvalWriter}, &key, wire.DirectionServer)
	return evalProc, testConn, fromEvalWriter
}

func TestEvaluatorProc_AddSendsRequestThenSourceThenTargetO(t *testing.T) {
	srv := New(nil, 0, nil)
	evalProc, testConn, _ := newTestEvaluatorProc(t, srv)

	done := make(chan struct{})
	go func() {
		defer close(done)
		err := evalProc.Add("h1", PermuterData{
			FnName:     "f",
			Filename:   "h1.c",
			Source:     []byte("int f(void){return 0;}"),
			TargetOBin: []byte("obj-bytes"),
		})
		assert.NoError(t, err)
	}()

	var req evalproto.EvaluatorRequest
	require.NoError(t, testConn.ReceiveJSON(&req))
	assert.Equal(t, evalproto.EvaluatorMsgAdd, req.Type)
	assert.Equal(t, "h1", req.ID)
	assert.Equal(t, "f", req.FnName)

	source, err := testConn.ReceiveRaw()
	require.NoError(t, err)
	assert.Equal(t, "int f(void){return 0;}", string(source))

	targetO, err := testConn.ReceiveRaw()
	require.NoError(t, err)
	assert.Equal(t, "obj-bytes", string(targetO))

	<-done
}

func TestEvaluatorProc_ReadLoopTranslatesInitSuccess(t *testing.T) {
	srv := New(nil, 0, nil)
	sink := newFakeSink()
	srv.RegisterThread(1, sink)
	srv.active["h1"] = 1
	cancel := runServer(t, srv)
	defer cancel()

	evalProc, testConn, _ := newTestEvaluatorProc(t, srv)
	go evalProc.ReadLoop()

	require.NoError(t, testConn.SendJSON(evalproto.EvaluatorResponse{
		Type: evalproto.EvaluatorMsgInit, ID: "h1", Success: true,
	}))

	select {
	case out := <-sink.outputs:
		assert.Equal(t, OutputInitSuccess, out.Kind)
		assert.Equal(t, "h1", out.Handle)
	case <-time.After(time.Second):
		t.Fatal("expected OutputInitSuccess")
	}
}

func TestEvaluatorProc_ReadLoopTranslatesResultWithSource(t *testing.T) {
	srv := New(nil, 0, nil)
	sink := newFakeSink()
	srv.RegisterThread(1, sink)
	srv.active["h1"] = 1
	cancel := runServer(t, srv)
	defer cancel()

	evalProc, testConn, _ := newTestEvaluatorProc(t, srv)
	go evalProc.ReadLoop()

	compressed, err := wire.CompressSource([]byte("int g(void){return 1;}"))
	require.NoError(t, err)

	require.NoError(t, testConn.SendJSON(evalproto.EvaluatorResponse{
		Type: evalproto.EvaluatorMsgResult, ID: "h1", Score: 3, Hash: "abc", HasSource: true,
	}))
	require.NoError(t, testConn.SendRaw(compressed))

	select {
	case out := <-sink.outputs:
		require.Equal(t, OutputResult, out.Kind)
		require.NotNil(t, out.Result.Candidate)
		assert.Equal(t, 3, out.Result.Candidate.Score)
		require.NotNil(t, out.Result.Candidate.Source)
		assert.Equal(t, "int g(void){return 1;}", *out.Result.Candidate.Source)
	case <-time.After(time.Second):
		t.Fatal("expected OutputResult")
	}
}

func TestEvaluatorProc_ReadLoopDeathShutsServerDown(t *testing.T) {
	srv := New(nil, 0, nil)
	sink := newFakeSink()
	srv.RegisterThread(1, sink)
	evalProc, _, fromEvalW := newTestEvaluatorProc(t, srv)
	cancel := runServer(t, srv)
	defer cancel()

	go evalProc.ReadLoop()
	fromEvalW.Close()

	select {
	case out := <-sink.outputs:
		assert.Equal(t, OutputShutdown, out.Kind)
	case <-time.After(time.Second):
		t.Fatal("expected OutputShutdown once the evaluator subprocess dies")
	}
}

package server

import (
	"context"
	"testing"
	"time"

	"github.com/permuter-search/permuter/internal/evalproto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEvaluator struct {
	addCalls, workCalls, removeCalls int
}

func (f *fakeEvaluator) Add(string, PermuterData) error       { f.addCalls++; return nil }
func (f *fakeEvaluator) Work(string, evalproto.Seed) error    { f.workCalls++; return nil }
func (f *fakeEvaluator) Remove(string) error                  { f.removeCalls++; return nil }

type fakeSink struct {
	outputs chan Output
}

func newFakeSink() *fakeSink { return &fakeSink{outputs: make(chan Output, 16)} }

func (s *fakeSink) Send(o Output) { s.outputs <- o }

func runServer(t *testing.T, srv *Server) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	go srv.Run(ctx)
	return cancel
}

func TestServer_WorkOnInactiveHandleProducesNeedMoreWorkOnly(t *testing.T) {
	eval := &fakeEvaluator{}
	srv := New(eval, 0, nil)
	sink := newFakeSink()
	srv.RegisterThread(1, sink)
	cancel := runServer(t, srv)
	defer cancel()

	srv.Enqueue(Work(1, "never-added", evalproto.Seed{RNG: 1}))

	select {
	case out := <-sink.outputs:
		assert.Equal(t, OutputNeedMoreWork, out.Kind)
	case <-time.After(time.Second):
		t.Fatal("expected OutputNeedMoreWork")
	}
	assert.Equal(t, 0, eval.workCalls, "evaluator must not be contacted for an inactive handle")
}

func TestServer_AddPermuterDuplicateHandlePanics(t *testing.T) {
	eval := &fakeEvaluator{}
	srv := New(eval, 0, nil)
	srv.active["h1"] = 1

	assert.Panics(t, func() {
		srv.handle(AddPermuter(1, "h1", PermuterData{}, 0))
	})
}

func TestServer_AddPermuterBelowMinPriorityRejected(t *testing.T) {
	eval := &fakeEvaluator{}
	srv := New(eval, 5, nil)
	sink := newFakeSink()
	srv.RegisterThread(1, sink)
	cancel := runServer(t, srv)
	defer cancel()

	srv.Enqueue(AddPermuter(1, "h1", PermuterData{}, 1))

	select {
	case out := <-sink.outputs:
		assert.Equal(t, OutputInitFail, out.Kind)
		assert.Equal(t, "client priority below server minimum", out.Reason)
	case <-time.After(time.Second):
		t.Fatal("expected OutputInitFail")
	}
	assert.Equal(t, 0, eval.addCalls, "evaluator must not be contacted below the priority floor")
	assert.False(t, srv.isActive("h1"))
}

func TestServer_RemovePermuterNeverAddedIsIgnored(t *testing.T) {
	eval := &fakeEvaluator{}
	srv := New(eval, 0, nil)

	cont := srv.handle(RemovePermuter(1, "ghost"))
	assert.True(t, cont)
	assert.Equal(t, 0, eval.removeCalls)
}

func TestServer_DisconnectRemovesOnlyOwnedHandles(t *testing.T) {
	eval := &fakeEvaluator{}
	srv := New(eval, 0, nil)
	sinkA := newFakeSink()
	sinkB := newFakeSink()
	srv.RegisterThread(1, sinkA)
	srv.RegisterThread(2, sinkB)
	cancel := runServer(t, srv)
	defer cancel()

	srv.Enqueue(AddPermuter(1, "a1", PermuterData{}, 0))
	srv.Enqueue(AddPermuter(2, "b1", PermuterData{}, 0))
	time.Sleep(50 * time.Millisecond)

	srv.Enqueue(Disconnect(1, "kicked"))
	time.Sleep(50 * time.Millisecond)

	assert.False(t, srv.isActive("a1"))
	assert.True(t, srv.isActive("b1"))
}

func TestServer_Shutdown(t *testing.T) {
	eval := &fakeEvaluator{}
	srv := New(eval, 0, nil)
	sink := newFakeSink()
	srv.RegisterThread(1, sink)

	cont := srv.handle(Shutdown())
	assert.False(t, cont)
}

func TestServer_IdleNotification(t *testing.T) {
	eval := &fakeEvaluator{}
	idleCalled := make(chan struct{}, 1)
	srv := New(eval, 0, func() {
		select {
		case idleCalled <- struct{}{}:
		default:
		}
	})
	cancel := runServer(t, srv)
	defer cancel()

	srv.Enqueue(Heartbeat(1))

	require.Eventually(t, func() bool {
		select {
		case <-idleCalled:
			return true
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond)
}

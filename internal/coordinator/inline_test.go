package coordinator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/permuter-search/permuter/internal/compiler"
	"github.com/permuter-search/permuter/internal/evalproto"
	"github.com/permuter-search/permuter/internal/permuter"
	"github.com/permuter-search/permuter/internal/scorer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func passthroughCompileScript(t *testing.T) (dir, script string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("compile.sh requires a POSIX shell")
	}
	dir = t.TempDir()
	script = filepath.Join(dir, "compile.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\ncp \"$1\" \"$2\"\n"), 0o755))
	return dir, script
}

func TestRunInline_SingleThreadedForcedSeed(t *testing.T) {
	dir, script := passthroughCompileScript(t)
	seeds := permuter.NewForcedSeedIterator(0, 42)
	fixedScore := 0
	p := permuter.New(0, dir, "f", "f", []byte("base"), compiler.New(dir, script), &scorer.Stub{FixedScore: &fixedScore}, permuter.Policy{}, seeds, 100)

	calls := 0
	evalSource := func(base []byte, seed evalproto.Seed) (string, error) {
		calls++
		assert.Equal(t, int64(42), seed.RNG)
		return "int f(void){return 0;}", nil
	}

	foundZero, err := RunInline(context.Background(), []*permuter.Permuter{p}, [][]byte{[]byte("target")}, evalSource, Options{})
	require.NoError(t, err)
	assert.True(t, foundZero)
	assert.Equal(t, 1, calls)
}

func TestRunInline_StopsOnZero(t *testing.T) {
	dir, script := passthroughCompileScript(t)
	seeds := permuter.NewDeterministicSeedIterator([]int64{1, 2, 3})
	scores := []int{50, 0, 50}
	scoreIdx := 0

	p := permuter.New(0, dir, "f", "f", []byte("base"), compiler.New(dir, script), scorerFunc(func() (int, string, error) {
		s := scores[scoreIdx]
		scoreIdx++
		return s, "h", nil
	}), permuter.Policy{}, seeds, 100)

	evalSource := func(base []byte, seed evalproto.Seed) (string, error) {
		return "src", nil
	}

	foundZero, err := RunInline(context.Background(), []*permuter.Permuter{p}, [][]byte{[]byte("target")}, evalSource, Options{StopOnZero: true})
	require.NoError(t, err)
	assert.True(t, foundZero)
	assert.Equal(t, 2, scoreIdx, "must stop immediately after the zero score, not continue to the 3rd seed")
}

func TestRunInline_AbortOnException(t *testing.T) {
	dir, script := passthroughCompileScript(t)
	seeds := permuter.NewDeterministicSeedIterator([]int64{1})
	p := permuter.New(0, dir, "f", "f", []byte("base"), compiler.New(dir, script), &scorer.Stub{}, permuter.Policy{}, seeds, 100)

	evalSource := func(base []byte, seed evalproto.Seed) (string, error) {
		return "", errors.New("evalSource boom")
	}

	_, err := RunInline(context.Background(), []*permuter.Permuter{p}, [][]byte{[]byte("target")}, evalSource, Options{AbortExceptions: true})
	assert.Error(t, err)
}

type scorerFunc func() (int, string, error)

func (f scorerFunc) Score(_ context.Context, _, _ []byte) (int, string, error) {
	return f()
}

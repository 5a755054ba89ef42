package coordinator

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/permuter-search/permuter/internal/compiler"
	"github.com/permuter-search/permuter/internal/evalproto"
	"github.com/permuter-search/permuter/internal/permuter"
	"github.com/permuter-search/permuter/internal/scorer"
)

func writePassthroughScript(t *testing.T) (dir, script string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	dir = t.TempDir()
	script = filepath.Join(dir, "compile.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\ncp \"$1\" \"$2\"\n"), 0o755))
	return dir, script
}

func TestLocalEvaluator_RoutesByPermuterIndex(t *testing.T) {
	dir, script := writePassthroughScript(t)

	fixed := 3
	p0 := permuter.New(0, dir, "fn0", "fn0", []byte("base0"), compiler.New(dir, script), &scorer.Stub{FixedScore: &fixed}, permuter.Policy{}, permuter.NewDeterministicSeedIterator([]int64{1}), 10)
	p1 := permuter.New(1, dir, "fn1", "fn1", []byte("base1"), compiler.New(dir, script), &scorer.Stub{FixedScore: &fixed}, permuter.Policy{}, permuter.NewDeterministicSeedIterator([]int64{2}), 10)

	var sourceSeen []byte
	ev := NewLocalEvaluator(
		[]*permuter.Permuter{p0, p1},
		[][]byte{[]byte("target0"), []byte("target1")},
		func(base []byte, seed evalproto.Seed) (string, error) {
			sourceSeen = base
			return string(base), nil
		},
	)

	result := ev.Evaluate(context.Background(), 1, evalproto.Seed{RNG: 2})
	require.False(t, result.IsError())
	assert.Equal(t, "base1", string(sourceSeen))
	assert.Equal(t, fixed, result.Candidate.Score)
}

func TestLocalEvaluator_UnknownIndexIsError(t *testing.T) {
	ev := NewLocalEvaluator(nil, nil, func(base []byte, seed evalproto.Seed) (string, error) {
		return "", nil
	})

	result := ev.Evaluate(context.Background(), 5, evalproto.Seed{})
	require.True(t, result.IsError())
	assert.Contains(t, result.Err.ExcStr, "unknown permuter index")
}

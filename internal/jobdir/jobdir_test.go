package jobdir

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeJobDir(t *testing.T, withFnName bool) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "base.c"), []byte("int f(void){return 0;}"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "target.o"), []byte{0x7f, 'E', 'L', 'F'}, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "compile.sh"), []byte("#!/bin/sh\necho ok\n"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "scorer.sh"), []byte("#!/bin/sh\necho 0 hash\n"), 0o755))
	if withFnName {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "function.txt"), []byte("f\n"), 0o644))
	}
	return dir
}

func TestLoad_Success(t *testing.T) {
	dir := writeJobDir(t, true)
	job, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "f", job.FnName)
	assert.Equal(t, filepath.Base(dir), job.UniqueName)
	assert.NotEmpty(t, job.BaseSource)
	assert.NotEmpty(t, job.TargetO)
}

func TestLoad_NoFnName(t *testing.T) {
	dir := writeJobDir(t, false)
	job, err := Load(dir)
	require.NoError(t, err)
	assert.Empty(t, job.FnName)
}

func TestLoad_MissingBase(t *testing.T) {
	dir := t.TempDir()
	_, err := Load(dir)
	assert.Error(t, err)
}

func TestLoad_NonExecutableCompileScript(t *testing.T) {
	dir := writeJobDir(t, false)
	require.NoError(t, os.Chmod(filepath.Join(dir, "compile.sh"), 0o644))
	_, err := Load(dir)
	assert.ErrorContains(t, err, "not executable")
}

func TestLoad_NonExecutableScorerScript(t *testing.T) {
	dir := writeJobDir(t, false)
	require.NoError(t, os.Chmod(filepath.Join(dir, "scorer.sh"), 0o644))
	_, err := Load(dir)
	assert.ErrorContains(t, err, "not executable")
}

func TestDisambiguateNames(t *testing.T) {
	jobs := []*Job{
		{Dir: "a", FnName: "foo", UniqueName: "a"},
		{Dir: "b", FnName: "foo", UniqueName: "b"},
		{Dir: "c", FnName: "bar", UniqueName: "c"},
	}
	DisambiguateNames(jobs)
	assert.Equal(t, "foo (a)", jobs[0].UniqueName)
	assert.Equal(t, "foo (b)", jobs[1].UniqueName)
	assert.Equal(t, "c", jobs[2].UniqueName)
}

func TestWriteOutput_CollisionFree(t *testing.T) {
	dir := t.TempDir()
	out1, err := WriteOutput(dir, 10, "src1", "diff1", []byte("base"))
	require.NoError(t, err)
	out2, err := WriteOutput(dir, 10, "src2", "diff2", []byte("base"))
	require.NoError(t, err)
	assert.NotEqual(t, out1, out2)

	data, err := os.ReadFile(filepath.Join(out1, "source.c"))
	require.NoError(t, err)
	assert.Equal(t, "src1", string(data))

	scoreData, err := os.ReadFile(filepath.Join(out2, "score.txt"))
	require.NoError(t, err)
	assert.Equal(t, "10\n", string(scoreData))
}

// Package compiler invokes a job's compile.sh against a candidate
// source and returns the resulting object bytes or a failure.
package compiler

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/permuter-search/permuter/internal/workerpool/pool"
)

// Compiler runs one job directory's compile.sh against candidate C
// source and returns the produced object file bytes. A single Compiler
// is shared by every worker evaluating its permuter, so concurrent
// Compile calls are routed through a small fixed-capacity pool of
// reusable scratch directories (internal/workerpool/pool.NewFixed)
// instead of paying an os.MkdirTemp/os.RemoveAll pair per candidate:
// capacity is bounded at GOMAXPROCS since compiling is CPU-bound and
// more concurrent compiles than cores never improves throughput.
type Compiler struct {
	Dir        string
	ScriptPath string

	scratch pool.Pool
}

func New(dir, scriptPath string) *Compiler {
	capacity := runtime.GOMAXPROCS(0)
	if capacity < 1 {
		capacity = 1
	}
	return &Compiler{
		Dir:        dir,
		ScriptPath: scriptPath,
		scratch: pool.NewFixed(uint(capacity), func() interface{} {
			dir, err := os.MkdirTemp("", "permuter-compile-*")
			if err != nil {
				return ""
			}
			return dir
		}),
	}
}

// Compile checks out a scratch directory, writes source into it, runs
// compile.sh <source> <output.o>, and returns the compiled bytes.
// Compile errors are reported as plain errors; the caller wraps them
// into an evalproto.EvalError with the reproducer seed.
func (c *Compiler) Compile(ctx context.Context, source string) ([]byte, error) {
	scratch, _ := c.scratch.Get().(string)
	if scratch == "" {
		d, err := os.MkdirTemp("", "permuter-compile-*")
		if err != nil {
			return nil, fmt.Errorf("compiler: scratch dir: %w", err)
		}
		scratch = d
	}
	defer c.scratch.Put(scratch)

	srcPath := filepath.Join(scratch, "out.c")
	outPath := filepath.Join(scratch, "out.o")
	defer os.Remove(srcPath)
	defer os.Remove(outPath)

	if err := os.WriteFile(srcPath, []byte(source), 0o644); err != nil {
		return nil, fmt.Errorf("compiler: writing candidate source: %w", err)
	}

	cmd := exec.CommandContext(ctx, c.ScriptPath, srcPath, outPath)
	cmd.Dir = c.Dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("compile.sh failed: %w: %s", err, stderr.String())
	}

	obj, err := os.ReadFile(outPath)
	if err != nil {
		return nil, fmt.Errorf("compiler: compile.sh did not produce %s: %w", outPath, err)
	}
	return obj, nil
}

package scorer

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// Exec invokes an external scoring tool as a subprocess, the real
// counterpart to Stub: candidate and target object files are written to
// a scratch directory and the script is run as
// `scorer.sh <candidate.o> <target.o>`, printing "<score> <hash>" on
// stdout. A nonzero exit or malformed stdout is a scorer failure
// (spec.md §7 kind 3), not a fatal error.
type Exec struct {
	ScriptPath string
}

func NewExec(scriptPath string) *Exec {
	return &Exec{ScriptPath: scriptPath}
}

func (e *Exec) Score(ctx context.Context, candidateO, targetO []byte) (int, string, error) {
	scratch, err := os.MkdirTemp("", "permuter-score-*")
	if err != nil {
		return 0, "", fmt.Errorf("scorer: scratch dir: %w", err)
	}
	defer os.RemoveAll(scratch)

	candPath := filepath.Join(scratch, "candidate.o")
	targetPath := filepath.Join(scratch, "target.o")
	if err := os.WriteFile(candPath, candidateO, 0o644); err != nil {
		return 0, "", fmt.Errorf("scorer: writing candidate object: %w", err)
	}
	if err := os.WriteFile(targetPath, targetO, 0o644); err != nil {
		return 0, "", fmt.Errorf("scorer: writing target object: %w", err)
	}

	cmd := exec.CommandContext(ctx, e.ScriptPath, candPath, targetPath)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return 0, "", fmt.Errorf("scorer script failed: %w: %s", err, stderr.String())
	}

	fields := strings.Fields(stdout.String())
	if len(fields) < 1 {
		return 0, "", fmt.Errorf("scorer: empty output from %s", e.ScriptPath)
	}
	score, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, "", fmt.Errorf("scorer: malformed score %q: %w", fields[0], err)
	}

	hash := ""
	if len(fields) > 1 {
		hash = fields[1]
	}
	return score, hash, nil
}

// Package jobdir loads and validates the on-disk job directory layout
// and writes improvement output directories.
package jobdir

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Job is one loaded job directory: a base source, a target object, a
// compile script, a scorer script, and an optional target function name.
type Job struct {
	Dir        string
	BaseSource []byte
	TargetO    []byte
	CompileSh  string // absolute path, confirmed executable
	ScorerSh   string // absolute path, confirmed executable
	FnName     string // empty if function.txt absent
	UniqueName string // dir basename, disambiguated by the caller on collision
}

// Load validates and reads dir's base.c, target.o, compile.sh, scorer.sh,
// and the optional function.txt, returning a fatal configuration error
// (spec.md §7 kind 1) on any missing or malformed file.
//
// scorer.sh is not part of spec.md §6's job directory layout, which
// names only base.c/target.o/compile.sh/function.txt: the spec treats
// the scorer as an opaque subprocess invocation (§1) without specifying
// how a concrete implementation locates the script to invoke. Since
// compile.sh already establishes the convention of a per-job executable
// for the other opaque subprocess (the compiler), scorer.sh follows the
// same convention here rather than hardcoding a path or a single global
// scorer shared across every job directory.
func Load(dir string) (*Job, error) {
	base, err := os.ReadFile(filepath.Join(dir, "base.c"))
	if err != nil {
		return nil, fmt.Errorf("jobdir %s: reading base.c: %w", dir, err)
	}

	targetO, err := os.ReadFile(filepath.Join(dir, "target.o"))
	if err != nil {
		return nil, fmt.Errorf("jobdir %s: reading target.o: %w", dir, err)
	}

	compileSh := filepath.Join(dir, "compile.sh")
	if err := checkExecutable(compileSh); err != nil {
		return nil, fmt.Errorf("jobdir %s: compile.sh: %w", dir, err)
	}

	scorerSh := filepath.Join(dir, "scorer.sh")
	if err := checkExecutable(scorerSh); err != nil {
		return nil, fmt.Errorf("jobdir %s: scorer.sh: %w", dir, err)
	}

	fnName := ""
	if data, err := os.ReadFile(filepath.Join(dir, "function.txt")); err == nil {
		fnName = strings.TrimSpace(string(data))
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("jobdir %s: reading function.txt: %w", dir, err)
	}

	return &Job{
		Dir:        dir,
		BaseSource: base,
		TargetO:    targetO,
		CompileSh:  compileSh,
		ScorerSh:   scorerSh,
		FnName:     fnName,
		UniqueName: filepath.Base(filepath.Clean(dir)),
	}, nil
}

func checkExecutable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return errors.New("is a directory, not a file")
	}
	if info.Mode()&0o111 == 0 {
		return errors.New("not executable")
	}
	return nil
}

// DisambiguateNames sets the UniqueName of every job whose FnName
// collides with another job's to "FnName (Dir)", matching the original's
// display convention for duplicate target function names across job
// directories. Jobs with an empty or unique FnName keep their UniqueName.
func DisambiguateNames(jobs []*Job) {
	byFn := make(map[string][]*Job)
	for _, j := range jobs {
		byFn[j.FnName] = append(byFn[j.FnName], j)
	}
	for fn, group := range byFn {
		if fn == "" || len(group) < 2 {
			continue
		}
		for _, j := range group {
			j.UniqueName = fmt.Sprintf("%s (%s)", fn, j.Dir)
		}
	}
}

// WriteOutput writes a collision-free output-{score}-{ctr} directory
// under the job's directory containing source.c, base.c, score.txt, and
// diff.txt. It tries increasing ctr values starting at 1 until the mkdir
// succeeds, so concurrent writers from the same run never clobber each
// other's output.
func WriteOutput(dir string, score int, source, diff string, baseSource []byte) (string, error) {
	for ctr := 1; ; ctr++ {
		outDir := filepath.Join(dir, fmt.Sprintf("output-%d-%d", score, ctr))
		if err := os.Mkdir(outDir, 0o755); err != nil {
			if os.IsExist(err) {
				continue
			}
			return "", fmt.Errorf("creating output dir: %w", err)
		}

		if err := os.WriteFile(filepath.Join(outDir, "source.c"), []byte(source), 0o644); err != nil {
			return "", err
		}
		if err := os.WriteFile(filepath.Join(outDir, "base.c"), baseSource, 0o644); err != nil {
			return "", err
		}
		if err := os.WriteFile(filepath.Join(outDir, "score.txt"), []byte(fmt.Sprintf("%d\n", score)), 0o644); err != nil {
			return "", err
		}
		if err := os.WriteFile(filepath.Join(outDir, "diff.txt"), []byte(diff), 0o644); err != nil {
			return "", err
		}
		return outDir, nil
	}
}

package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/permuter-search/permuter/internal/compiler"
	"github.com/permuter-search/permuter/internal/coordinator"
	"github.com/permuter-search/permuter/internal/evalproto"
	"github.com/permuter-search/permuter/internal/identity"
	"github.com/permuter-search/permuter/internal/jobdir"
	"github.com/permuter-search/permuter/internal/permuter"
	"github.com/permuter-search/permuter/internal/scorer"
	"github.com/permuter-search/permuter/internal/ui"
	"github.com/permuter-search/permuter/internal/wire"
	"github.com/permuter-search/permuter/internal/workerpool"
	"github.com/permuter-search/permuter/internal/workerpool/metrics"
)

func runMain(cmd *cobra.Command, o *runOptions) error {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).With().Timestamp().Logger()
	printer := ui.NewPrinter(os.Stdout, log, ui.WithShowErrors(o.ShowErrors), ui.WithShowTimings(o.ShowTimings))

	if o.Vouch {
		return runVouch(o, printer)
	}

	if o.Priority < wire.MinPriority || o.Priority > wire.MaxPriority {
		return fmt.Errorf("permuter: --priority %g out of range [%g, %g]", o.Priority, wire.MinPriority, wire.MaxPriority)
	}
	if o.KeepProb < 0 || o.KeepProb > 1 {
		return fmt.Errorf("permuter: --keep-prob %g out of range [0, 1]", o.KeepProb)
	}
	if len(o.Directories) == 0 {
		return fmt.Errorf("permuter: at least one job directory is required")
	}

	threads := o.Threads
	if threads == 0 && !o.UseNetwork {
		threads = 1
	}

	jobs := make([]*jobdir.Job, 0, len(o.Directories))
	for _, dir := range o.Directories {
		job, err := jobdir.Load(dir)
		if err != nil {
			return err
		}
		jobs = append(jobs, job)
	}
	jobdir.DisambiguateNames(jobs)

	perms := make([]*permuter.Permuter, len(jobs))
	targetOs := make([][]byte, len(jobs))
	for i, job := range jobs {
		seeds, err := buildSeedIterator(o, i)
		if err != nil {
			return err
		}

		c := compiler.New(job.Dir, job.CompileSh)
		s := scorer.NewExec(job.ScorerSh)

		baseObj, err := c.Compile(context.Background(), string(job.BaseSource))
		if err != nil {
			return fmt.Errorf("permuter: %s: compiling base source: %w", job.Dir, err)
		}
		baseScore, _, err := s.Score(context.Background(), baseObj, job.TargetO)
		if err != nil {
			return fmt.Errorf("permuter: %s: scoring base source: %w", job.Dir, err)
		}

		policy := permuter.Policy{KeepProb: o.KeepProb, StackDiffs: o.StackDiffs, NeedAllSources: o.PrintDiffs}
		perms[i] = permuter.New(i, job.Dir, job.FnName, job.UniqueName, job.BaseSource, c, s, policy, seeds, baseScore)
		targetOs[i] = job.TargetO
	}

	names := make([]string, len(perms))
	baseScores := make([]int, len(perms))
	for i, p := range perms {
		names[i] = p.UniqueName
		baseScores[i] = p.BaseScore()
	}
	printer.AnnounceBaseScores(names, baseScores)

	hb := newHeartbeat()
	onResult := resultHandler(printer, o)

	opts := coordinator.Options{
		StopOnZero:      o.StopOnZero,
		AbortExceptions: o.AbortExceptions,
		NeedAllSources:  o.PrintDiffs,
		OnMessage: func(who, text string) {
			hb.touch()
			printer.Message(who, text)
		},
		OnResult: func(ev coordinator.ResultEvent) {
			hb.touch()
			onResult(ev)
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	installInterruptHandler(cancel, printer, hb, opts.StuckThreshold)

	if threads == 1 && !o.UseNetwork {
		foundZero, err := coordinator.RunInline(ctx, perms, targetOs, evaluateSource, opts)
		return finish(foundZero, err)
	}

	var sources []coordinator.WorkSource
	if threads > 0 {
		evaluator := coordinator.NewLocalEvaluator(perms, targetOs, evaluateSource)
		pool := workerpool.NewPool(threads, evaluator, threads*2, workerpool.WithMetrics(metrics.NewBasicProvider()))
		pool.Start(ctx)
		sources = append(sources, pool)
	}

	if o.UseNetwork {
		remoteSources := dialRemoteSessions(o, perms, targetOs, printer)
		if len(remoteSources) == 0 && threads == 0 {
			return fmt.Errorf("permuter: no remote evaluator servers connected and no local worker threads configured (-j)")
		}
		sources = append(sources, remoteSources...)
	}

	co := coordinator.New(perms, sources, opts)
	foundZero, err := co.Run(ctx)
	return finish(foundZero, err)
}

// dialRemoteSessions connects to every server in o.Servers, registering
// all of perms on each, and returns a WorkSource per server that dialed
// and handshook successfully. A server that fails to dial or to
// authenticate is skipped with a printer message rather than aborting
// the whole run, matching spec.md §7 kind 5's per-server failure
// handling: the coordinator keeps going on whatever sources remain.
func dialRemoteSessions(o *runOptions, perms []*permuter.Permuter, targetOs [][]byte, printer *ui.Printer) []coordinator.WorkSource {
	if len(o.Servers) == 0 {
		printer.Message("permuter", "-J given but no --server addresses configured; continuing with local workers only")
		return nil
	}

	id, err := identity.LoadOrCreate()
	if err != nil {
		printer.Message("permuter", fmt.Sprintf("loading client identity: %s", err))
		return nil
	}

	var authorizedServers wire.AuthorizedKeys
	if o.AuthorizedKeys != "" {
		kl, err := identity.LoadKeyList(o.AuthorizedKeys)
		if err != nil {
			printer.Message("permuter", err.Error())
			return nil
		}
		authorizedServers = kl
	}

	var sources []coordinator.WorkSource
	for _, addr := range o.Servers {
		rs, err := coordinator.DialRemoteSession(addr, id.Wire(), authorizedServers, o.Priority, perms, targetOs)
		if err != nil {
			printer.Message("permuter", fmt.Sprintf("%s: %s", addr, err))
			continue
		}
		sources = append(sources, rs)
	}
	return sources
}

func finish(foundZero bool, err error) error {
	if err != nil {
		return err
	}
	if foundZero {
		fmt.Println("Found zero score! Exiting.")
	}
	return nil
}

func resultHandler(printer *ui.Printer, o *runOptions) func(coordinator.ResultEvent) {
	return func(ev coordinator.ResultEvent) {
		if ev.Result.IsError() {
			printer.ErrorDetail(ev.Permuter.UniqueName, "", ev.Result.Err.Error())
			return
		}
		cand := ev.Result.Candidate
		switch ev.Improvement {
		case permuter.ImprovementStrictBest, permuter.ImprovementBelowBaseline:
			printer.Improved(ev.Permuter.UniqueName, cand.Score, false)
		case permuter.ImprovementTieBest:
			printer.Improved(ev.Permuter.UniqueName, cand.Score, true)
		case permuter.ImprovementSameScoreDifferentAsm:
			printer.Message(ev.Permuter.UniqueName, fmt.Sprintf("different asm, same score = %d", cand.Score))
		}
		if ev.Output && ev.OutputDir != "" {
			fmt.Printf("wrote to %s\n", ev.OutputDir)
		}
		if o.PrintDiffs && cand.Source != nil {
			_ = printer.PauseForDiff()
		}
	}
}

// evaluateSource is the out-of-scope permutation algorithm's invocation
// point: given a permuter's preprocessed base source and a seed tuple,
// it must produce a candidate C source string. The algorithm itself is
// an external collaborator per spec.md §1; a real deployment supplies it
// by linking against (or shelling out to) the actual permuter engine.
// Here it is the identity transform, so every candidate is the base
// source itself — enough to exercise compile/score/output wiring end to
// end without reimplementing out-of-scope permutation logic.
func evaluateSource(base []byte, seed evalproto.Seed) (string, error) {
	return string(base), nil
}

func buildSeedIterator(o *runOptions, permIndex int) (permuter.SeedIterator, error) {
	if o.Seed == "" {
		src := rand.New(rand.NewSource(time.Now().UnixNano() + int64(permIndex)))
		return permuter.NewRandomizedSeedIterator(src, o.KeepProb), nil
	}

	parts := strings.Split(o.Seed, ",")
	switch len(parts) {
	case 1:
		rng, err := strconv.ParseInt(parts[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("permuter: malformed --seed %q: %w", o.Seed, err)
		}
		return permuter.NewForcedSeedIterator(0, rng), nil
	case 2:
		keep, err := strconv.ParseInt(parts[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("permuter: malformed --seed %q: %w", o.Seed, err)
		}
		rng, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("permuter: malformed --seed %q: %w", o.Seed, err)
		}
		return permuter.NewForcedSeedIterator(keep, rng), nil
	default:
		return nil, fmt.Errorf("permuter: malformed --seed %q: expected RNG or KEEP,RNG", o.Seed)
	}
}

// heartbeat tracks, in nanoseconds since the Unix epoch, the last time
// the main loop made observable progress (a result or message), the
// same signal the original's last_time resets on every main-loop
// iteration.
type heartbeat struct {
	lastNano atomic.Int64
}

func newHeartbeat() *heartbeat {
	h := &heartbeat{}
	h.touch()
	return h
}

func (h *heartbeat) touch() { h.lastNano.Store(time.Now().UnixNano()) }

func (h *heartbeat) age() time.Duration {
	return time.Since(time.Unix(0, h.lastNano.Load()))
}

// installInterruptHandler mirrors the original's KeyboardInterrupt
// handling: the first Ctrl-C begins draining via cancel(); a second one
// is classified as "stuck" or "clean" based on how long it has been
// since the main loop last made progress, and hard-exits accordingly.
func installInterruptHandler(cancel context.CancelFunc, printer *ui.Printer, hb *heartbeat, stuckThreshold time.Duration) {
	if stuckThreshold == 0 {
		stuckThreshold = 5 * time.Second
	}
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigCh
		cancel()
		<-sigCh
		code := printer.ReportCancellation(hb.age(), stuckThreshold)
		os.Exit(code)
	}()
}

func runVouch(o *runOptions, printer *ui.Printer) error {
	if len(o.Directories) == 0 {
		return fmt.Errorf("permuter: --vouch requires a directory-service address as its first argument")
	}
	ds := newHTTPDirectoryService(o.Directories[0])
	blob, err := identity.Vouch(ds)
	if err != nil {
		return fmt.Errorf("permuter: vouch failed: %w", err)
	}
	fmt.Println(blob)
	return nil
}

// Command permuter is the coordinator CLI: it drives a distributed
// search for assembly-matching compiler-output permutations across one
// or more job directories, optionally fanning work out to remote
// evaluator servers.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	o := &runOptions{}

	cmd := &cobra.Command{
		Use:   "permuter <job-dir>...",
		Short: "Search for assembly-matching compiler-output permutations",
		Long: `permuter compiles and scores randomized or enumerated variants of a
function's C source against a target object file, across one or more
job directories, using local worker processes and optionally remote
evaluator servers.`,
		Args: cobra.MinimumNArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			o.Directories = args
			return runMain(cmd, o)
		},
	}

	f := cmd.Flags()
	f.BoolVar(&o.ShowErrors, "show-errors", false, "print evaluator exception text as it occurs")
	f.BoolVar(&o.ShowTimings, "show-timings", false, "print per-candidate evaluation timing")
	f.BoolVar(&o.PrintDiffs, "print-diffs", false, "print and pause on every improving diff")
	f.BoolVar(&o.AbortExceptions, "abort-exceptions", false, "abort the run on the first evaluation error")
	f.BoolVar(&o.StopOnZero, "stop-on-zero", false, "stop once any permuter reaches a zero score")
	f.BoolVar(&o.StackDiffs, "stack-diffs", false, "include stack-slot differences in diffs")
	f.Float64Var(&o.KeepProb, "keep-prob", defaultKeepProb, "probability the randomizer continues mutating its own last output")
	f.StringVar(&o.Seed, "seed", "", "reproduce a prior run: RNG or KEEP,RNG")
	_ = f.MarkHidden("seed")
	f.IntVarP(&o.Threads, "threads", "j", 0, "local worker count (default 1 unless -J, else 0)")
	f.BoolVarP(&o.UseNetwork, "network", "J", false, "enable remote evaluator servers")
	f.Float64Var(&o.Priority, "priority", defaultPriority, "priority this client advertises to evaluator servers")
	f.BoolVar(&o.Vouch, "vouch", false, "give someone access to this permuter server (one-shot identity grant)")
	f.StringSliceVar(&o.Servers, "server", nil, "evaluator server address to use with -J (host:port, repeatable); normally sourced from the directory service's signed server list")
	f.StringVar(&o.AuthorizedKeys, "authorized-keys", "", "path to a file of base64 Ed25519 public keys this client trusts as evaluator servers")

	cmd.AddCommand(newServeCommand())

	return cmd
}

const (
	defaultKeepProb = 0.6
	defaultPriority = 1.0
)

type runOptions struct {
	Directories []string

	ShowErrors      bool
	ShowTimings     bool
	PrintDiffs      bool
	AbortExceptions bool
	StopOnZero      bool
	StackDiffs      bool
	KeepProb        float64
	Seed            string
	Threads         int
	UseNetwork      bool
	Priority        float64
	Vouch           bool
	Servers         []string
	AuthorizedKeys  string
}

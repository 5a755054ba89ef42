package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/permuter-search/permuter/internal/identity"
	"github.com/permuter-search/permuter/internal/sandbox"
	"github.com/permuter-search/permuter/internal/server"
	"github.com/permuter-search/permuter/internal/wire"
)

type serveOptions struct {
	Listen         string
	Image          string
	NumCores       int
	MaxMemoryGB    float64
	SrcMountPath   string
	MinPriority    float64
	AuthorizedKeys string
}

// newServeCommand builds the evaluator-host subcommand (spec.md §4.6):
// it starts one sandboxed evaluator subprocess and accepts concurrent
// client sessions against it until killed.
func newServeCommand() *cobra.Command {
	o := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run an evaluator server: one sandboxed evaluator, many client sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), o)
		},
	}

	f := cmd.Flags()
	f.StringVar(&o.Listen, "listen", ":6328", "address to accept client connections on")
	f.StringVar(&o.Image, "image", "permuter-evaluator", "docker image implementing the evaluator contract")
	f.IntVar(&o.NumCores, "cores", 1, "cores granted to the sandboxed evaluator")
	f.Float64Var(&o.MaxMemoryGB, "max-memory-gb", 1.0, "memory limit granted to the sandboxed evaluator")
	f.StringVar(&o.SrcMountPath, "src-mount", "", "host directory mounted read-only at /src inside the sandbox")
	f.Float64Var(&o.MinPriority, "min-priority", wire.MinPriority, "reject clients advertising a priority below this")
	f.StringVar(&o.AuthorizedKeys, "authorized-keys", "", "path to a file of base64 Ed25519 public keys this server accepts clients from (default: accept any)")

	return cmd
}

func runServe(ctx context.Context, o *serveOptions) error {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).With().Timestamp().Logger()

	id, err := identity.LoadOrCreate()
	if err != nil {
		return fmt.Errorf("permuter serve: loading server identity: %w", err)
	}

	var authorizedClients wire.AuthorizedKeys
	if o.AuthorizedKeys != "" {
		kl, err := identity.LoadKeyList(o.AuthorizedKeys)
		if err != nil {
			return fmt.Errorf("permuter serve: %w", err)
		}
		authorizedClients = kl
	}

	var secret [wire.KeySize]byte
	if _, err := rand.Read(secret[:]); err != nil {
		return fmt.Errorf("permuter serve: generating evaluator secret: %w", err)
	}

	sandboxCfg := sandbox.Config{
		Image:        o.Image,
		NumCores:     o.NumCores,
		MaxMemoryGB:  o.MaxMemoryGB,
		Secret:       secret,
		SrcMountPath: o.SrcMountPath,
	}
	ev, err := sandbox.Start(ctx, sandboxCfg, os.Stderr)
	if err != nil {
		return fmt.Errorf("permuter serve: starting sandboxed evaluator: %w", err)
	}
	defer ev.Close(context.Background())

	onIdle := func() { log.Debug().Msg("evaluator server idle") }
	srv := server.New(nil, o.MinPriority, onIdle)

	evalProc := server.NewEvaluatorProc(srv, ev.Stdin(), ev.Stdout(), &secret)
	srv.SetEvaluator(evalProc)
	go evalProc.ReadLoop()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go srv.Run(runCtx)

	ln, err := net.Listen("tcp", o.Listen)
	if err != nil {
		return fmt.Errorf("permuter serve: listening on %s: %w", o.Listen, err)
	}
	defer ln.Close()

	log.Info().Str("addr", o.Listen).Msg("evaluator server listening")
	return server.Listen(ln, srv, id.Wire(), authorizedClients)
}

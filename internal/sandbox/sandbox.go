// Package sandbox starts, attaches to, and tears down the sandboxed
// evaluator subprocess inside a Docker container, per spec.md §6's
// evaluator image contract.
package sandbox

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/permuter-search/permuter/internal/wire"
)

// Config is the evaluator image contract from spec.md §6.
type Config struct {
	Image        string
	NumCores     int
	MaxMemoryGB  float64
	Secret       [32]byte
	SrcMountPath string // host path mounted read-only at /src
}

// Evaluator is a running sandboxed evaluator subprocess: its stdin/stdout
// are exposed as a single attach stream, already demultiplexed from
// Docker's framing by Start.
type Evaluator struct {
	docker      *client.Client
	containerID string

	stdin  io.WriteCloser
	stdout io.Reader
}

// Start launches the container with the exact resource limits and
// mounts spec.md §6 requires (nano_cpus, mem_limit, read_only tmpfs,
// network disabled), attaches to it, demultiplexes the attach stream via
// internal/wire, and performs the startup sanity handshake: send 1,000
// NUL bytes, expect the identical echo back, then send
// {"num_cores": N}. Any deviation is a fatal sandbox startup failure
// (spec.md §7 kind 7).
func Start(ctx context.Context, cfg Config, stderr io.Writer) (*Evaluator, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("sandbox: creating docker client: %w", err)
	}

	resp, err := cli.ContainerCreate(ctx, &container.Config{
		Image:        cfg.Image,
		Env:          []string{fmt.Sprintf("SECRET=%s", base64.StdEncoding.EncodeToString(cfg.Secret[:]))},
		AttachStdin:  true,
		AttachStdout: true,
		AttachStderr: true,
		OpenStdin:    true,
		NetworkDisabled: true,
	}, &container.HostConfig{
		NanoCPUs:   int64(float64(cfg.NumCores) * 1e9),
		Memory:     int64(cfg.MaxMemoryGB * (1 << 30)),
		ReadonlyRootfs: true,
		Tmpfs:      map[string]string{"/tmp": "size=1G,exec"},
		Binds:      []string{fmt.Sprintf("%s:/src:ro", cfg.SrcMountPath)},
	}, nil, nil, "")
	if err != nil {
		return nil, fmt.Errorf("sandbox: creating container: %w", err)
	}

	attach, err := cli.ContainerAttach(ctx, resp.ID, types.ContainerAttachOptions{
		Stream: true, Stdin: true, Stdout: true, Stderr: true,
	})
	if err != nil {
		return nil, fmt.Errorf("sandbox: attaching to container: %w", err)
	}

	if err := cli.ContainerStart(ctx, resp.ID, types.ContainerStartOptions{}); err != nil {
		return nil, fmt.Errorf("sandbox: starting container: %w", err)
	}

	stdoutR, stdoutW := io.Pipe()
	go func() {
		_ = wire.DemuxDockerStream(attach.Reader, stdoutW, stderr)
		stdoutW.Close()
	}()

	ev := &Evaluator{docker: cli, containerID: resp.ID, stdin: attach.Conn, stdout: stdoutR}

	if err := sanityHandshake(ev.stdin, ev.stdout, cfg.NumCores); err != nil {
		_ = ev.Close(context.Background())
		return nil, fmt.Errorf("sandbox: startup sanity check failed: %w", err)
	}

	return ev, nil
}

// sanityMagicLen is the NUL-byte count the original's start_evaluator
// sends and expects echoed back before trusting the evaluator process.
const sanityMagicLen = 1000

// sanityHandshake runs the startup sanity check against any stdin/stdout
// pair, independent of Docker, so it can be exercised directly in tests.
func sanityHandshake(stdin io.Writer, stdout io.Reader, numCores int) error {
	magic := bytes.Repeat([]byte{0}, sanityMagicLen)
	if _, err := stdin.Write(magic); err != nil {
		return fmt.Errorf("writing sanity magic: %w", err)
	}

	echo := make([]byte, sanityMagicLen)
	if _, err := io.ReadFull(stdout, echo); err != nil {
		return fmt.Errorf("reading sanity echo: %w", err)
	}
	if !bytes.Equal(magic, echo) {
		return fmt.Errorf("evaluator echoed back mismatched bytes")
	}

	payload, err := json.Marshal(struct {
		NumCores int `json:"num_cores"`
	}{NumCores: numCores})
	if err != nil {
		return err
	}
	if _, err := stdin.Write(payload); err != nil {
		return fmt.Errorf("writing num_cores handshake: %w", err)
	}
	return nil
}

// Stdin/Stdout expose the demultiplexed evaluator stream for
// internal/server's read-eval-loop to layer JSON messages over.
func (e *Evaluator) Stdin() io.Writer { return e.stdin }
func (e *Evaluator) Stdout() io.Reader { return e.stdout }

// Close tears down the container, stopping it with a short grace period
// before forcing a kill.
func (e *Evaluator) Close(ctx context.Context) error {
	timeout := 5 * time.Second
	timeoutSeconds := int(timeout.Seconds())
	if err := e.docker.ContainerStop(ctx, e.containerID, container.StopOptions{Timeout: &timeoutSeconds}); err != nil {
		return fmt.Errorf("sandbox: stopping container: %w", err)
	}
	return nil
}

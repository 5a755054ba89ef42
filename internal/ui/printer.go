// Package ui renders the permuter's human-facing progress output and
// wires structured fields (permuter name, seed, score, handle) through
// zerolog, mirroring the original's Printer/Profiler split: plain text
// for the terminal, structured events for --show-errors/--show-timings
// detail and the server's activity log.
package ui

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Printer owns the terminal-facing side of progress reporting: the
// overwritten status line, base-score announcements, and the
// --print-diffs interactive pause.
type Printer struct {
	out         io.Writer
	in          io.Reader
	log         zerolog.Logger
	showErrors  bool
	showTimings bool

	lastLineLen int
}

// Option configures a Printer.
type Option func(*Printer)

// WithInput overrides the reader PauseForDiff blocks on (stdin by default).
func WithInput(r io.Reader) Option {
	return func(p *Printer) { p.in = r }
}

// WithShowErrors enables verbose error detail on the status stream.
func WithShowErrors(show bool) Option {
	return func(p *Printer) { p.showErrors = show }
}

// WithShowTimings enables per-candidate timing detail.
func WithShowTimings(show bool) Option {
	return func(p *Printer) { p.showTimings = show }
}

// NewPrinter builds a Printer writing human text to out and structured
// events to log.
func NewPrinter(out io.Writer, log zerolog.Logger, opts ...Option) *Printer {
	p := &Printer{out: out, in: os.Stdin, log: log}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// AnnounceBaseScores prints "[name] base score = N" for every permuter
// before the run starts, in job-directory order.
func (p *Printer) AnnounceBaseScores(names []string, scores []int) {
	for i, name := range names {
		fmt.Fprintf(p.out, "[%s] base score = %d\n", name, scores[i])
		p.log.Info().Str("permuter", name).Int("base_score", scores[i]).Msg("base score")
	}
}

// Status overwrites the current status line with msg, matching the
// original's carriage-return progress style.
func (p *Printer) Status(msg string) {
	pad := p.lastLineLen - len(msg)
	if pad < 0 {
		pad = 0
	}
	fmt.Fprintf(p.out, "\r%s%*s", msg, pad, "")
	p.lastLineLen = len(msg)
}

// EndStatus terminates the current overwritten status line with a
// newline so subsequent non-status output doesn't collide with it.
func (p *Printer) EndStatus() {
	if p.lastLineLen > 0 {
		fmt.Fprintln(p.out)
		p.lastLineLen = 0
	}
}

// Improved reports a new best (or tied) score for a permuter.
func (p *Printer) Improved(name string, score int, tie bool) {
	p.EndStatus()
	word := "improved"
	if tie {
		word = "tied"
	}
	fmt.Fprintf(p.out, "[%s] %s score = %d\n", name, word, score)
	p.log.Info().Str("permuter", name).Int("score", score).Bool("tie", tie).Msg(word)
}

// Message relays a text message from a worker or remote session
// (spec.md Message feedback kind).
func (p *Printer) Message(who, text string) {
	p.EndStatus()
	fmt.Fprintf(p.out, "[%s] %s\n", who, text)
	p.log.Info().Str("who", who).Msg(text)
}

// ErrorDetail prints a candidate's evaluator exception text when
// --show-errors is set; always logged structurally regardless.
func (p *Printer) ErrorDetail(permuter string, seedText string, excStr string) {
	p.log.Debug().Str("permuter", permuter).Str("seed", seedText).Msg(excStr)
	if p.showErrors {
		p.EndStatus()
		fmt.Fprintf(p.out, "[%s] (%s) %s\n", permuter, seedText, excStr)
	}
}

// Timing prints a candidate evaluation's wall-clock duration when
// --show-timings is set; always logged structurally regardless.
func (p *Printer) Timing(permuter string, seedText string, d time.Duration) {
	p.log.Debug().Str("permuter", permuter).Str("seed", seedText).Dur("elapsed", d).Msg("evaluated")
	if p.showTimings {
		p.EndStatus()
		fmt.Fprintf(p.out, "[%s] (%s) took %s\n", permuter, seedText, d)
	}
}

// PauseForDiff blocks until a single byte is read from the configured
// input, mirroring the original's --print-diffs "Press any key to
// continue..." prompt.
func (p *Printer) PauseForDiff() error {
	fmt.Fprint(p.out, "Press any key to continue...")
	buf := make([]byte, 1)
	_, err := p.in.Read(buf)
	fmt.Fprintln(p.out)
	if err != nil && err != io.EOF {
		return fmt.Errorf("ui: reading diff pause input: %w", err)
	}
	return nil
}

// StuckProcessExitCode and StuckProcessMessage/ExitingMessage carry the
// original's KeyboardInterrupt handling verbatim: a second interrupt
// more than the heartbeat threshold after the last main-loop iteration
// is treated as a stuck process.
const (
	StuckProcessMessage = "Aborting stuck process."
	ExitingMessage      = "Exiting."

	StuckProcessExitCode = 1
	CleanExitCode        = 0
)

// ReportCancellation prints and logs the appropriate message for a
// second interrupt, choosing between the stuck-process and clean-exit
// wording based on how long it has been since the last recorded
// heartbeat.
func (p *Printer) ReportCancellation(heartbeatAge, stuckThreshold time.Duration) int {
	p.EndStatus()
	if heartbeatAge > stuckThreshold {
		fmt.Fprintln(p.out, StuckProcessMessage)
		p.log.Warn().Dur("heartbeat_age", heartbeatAge).Msg(StuckProcessMessage)
		return StuckProcessExitCode
	}
	fmt.Fprintln(p.out, ExitingMessage)
	p.log.Info().Msg(ExitingMessage)
	return CleanExitCode
}

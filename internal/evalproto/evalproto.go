// Package evalproto defines the tagged-union message vocabulary shared
// between permuters, local workers, remote sessions, and the coordinator.
package evalproto

import "fmt"

// PenaltyInf is the sentinel score meaning "unusable result": a compile
// failure, a scorer crash, or any candidate the scorer refuses to rank.
// It always compares worse than every real score.
const PenaltyInf = 1 << 30

// Seed is the reproducer tuple a permuter's iterator hands to evaluate().
// Keep != 0 instructs the permuter to mutate its own previous output
// instead of the original base source.
type Seed struct {
	Keep int64
	RNG  int64
}

func (s Seed) String() string {
	return fmt.Sprintf("%d,%d", s.Keep, s.RNG)
}

// Task is the one-way coordinator->worker message. A zero-value Task is
// never valid on the wire; use NewWorkTask / NewFinishedTask.
type Task struct {
	PermIndex int
	Seed      Seed
	Finished  bool
	Reason    string
}

// NewWorkTask builds a work-unit task for permuter index i.
func NewWorkTask(i int, seed Seed) Task {
	return Task{PermIndex: i, Seed: seed}
}

// NewFinishedTask builds the Finished sentinel, optionally carrying a
// human-readable reason (e.g. "shutting down", "server disconnected").
func NewFinishedTask(reason string) Task {
	return Task{Finished: true, Reason: reason}
}

// FeedbackKind tags the Feedback union.
type FeedbackKind int

const (
	FeedbackWorkDone FeedbackKind = iota
	FeedbackNeedMoreWork
	FeedbackMessage
	FeedbackFinished
)

func (k FeedbackKind) String() string {
	switch k {
	case FeedbackWorkDone:
		return "WorkDone"
	case FeedbackNeedMoreWork:
		return "NeedMoreWork"
	case FeedbackMessage:
		return "Message"
	case FeedbackFinished:
		return "Finished"
	default:
		return "Unknown"
	}
}

// Feedback is the worker->coordinator message: a tagged union of
// WorkDone(permIndex, result), NeedMoreWork, Message(text), and
// Finished(reason?). Who identifies the originating worker/session for
// display purposes; it is empty for local workers.
type Feedback struct {
	Kind      FeedbackKind
	PermIndex int
	Result    EvalResult
	Text      string
	Reason    string
	Who       string
}

func WorkDone(who string, permIndex int, result EvalResult) Feedback {
	return Feedback{Kind: FeedbackWorkDone, Who: who, PermIndex: permIndex, Result: result}
}

func NeedMoreWork(who string) Feedback {
	return Feedback{Kind: FeedbackNeedMoreWork, Who: who}
}

func Message(who, text string) Feedback {
	return Feedback{Kind: FeedbackMessage, Who: who, Text: text}
}

func Finished(who, reason string) Feedback {
	return Feedback{Kind: FeedbackFinished, Who: who, Reason: reason}
}

// EvalError carries a permuter/compiler/scorer failure plus the seed
// tuple needed to reproduce it.
type EvalError struct {
	ExcStr string
	Seed   Seed
}

func (e *EvalError) Error() string {
	return fmt.Sprintf("%s (reproduce with --seed %s)", e.ExcStr, e.Seed)
}

// CandidateResult is a scored evaluation. Source is non-nil only when the
// candidate is an improvement, a tie, or the caller requested all
// sources (need_all_sources); omitting it otherwise is the bandwidth
// optimization spec.md's design notes call out.
type CandidateResult struct {
	Score         int
	Hash          string
	ProfilerStats map[string]float64
	Source        *string
}

// IsPenalty reports whether the result is the unusable sentinel.
func (c CandidateResult) IsPenalty() bool {
	return c.Score >= PenaltyInf
}

// EvalResult is either an EvalError or a CandidateResult; exactly one of
// Err/Candidate is non-nil.
type EvalResult struct {
	Err       *EvalError
	Candidate *CandidateResult
}

func ErrorResult(err *EvalError) EvalResult {
	return EvalResult{Err: err}
}

func CandidateEvalResult(c CandidateResult) EvalResult {
	return EvalResult{Candidate: &c}
}

// IsError reports whether this result is an EvalError.
func (r EvalResult) IsError() bool {
	return r.Err != nil
}

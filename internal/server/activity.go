// Package server implements the evaluator-host runtime: one sandboxed
// evaluator subprocess multiplexed across concurrent client sessions via
// stable string handles, coordinated by a single-threaded main queue.
package server

import "github.com/permuter-search/permuter/internal/evalproto"

// ActivityKind tags the Activity union the main queue consumes.
type ActivityKind int

const (
	ActivityAddPermuter ActivityKind = iota
	ActivityRemovePermuter
	ActivityWork
	ActivityImmediateDisconnect
	ActivityDisconnect
	ActivityPermInitFail
	ActivityPermInitSuccess
	ActivityWorkDone
	ActivityNeedMoreWork
	ActivityNetThreadDisconnected
	ActivityHeartbeat
	ActivityShutdown
)

// PermuterData is the wire form of a permuter sent once at session add
// and immutable thereafter (spec.md §3).
type PermuterData struct {
	FnName           string
	Filename         string
	KeepProb         float64
	StackDifferences bool
	CompileScript    []byte
	Source           []byte
	TargetOBin       []byte
}

// Activity is the tagged union the server's single-threaded main queue
// consumes. ThreadID identifies the originating NetThread by integer id
// rather than by reference, breaking the cyclic-ownership risk spec.md
// §9 calls out (the NetThread would otherwise hold a reference to the
// queue that holds events referencing it back).
type Activity struct {
	Kind     ActivityKind
	ThreadID int
	Handle   string

	Data     PermuterData
	Seed     evalproto.Seed
	Result   evalproto.EvalResult
	Reason   string
	Priority float64
}

func AddPermuter(threadID int, handle string, data PermuterData, priority float64) Activity {
	return Activity{Kind: ActivityAddPermuter, ThreadID: threadID, Handle: handle, Data: data, Priority: priority}
}

func RemovePermuter(threadID int, handle string) Activity {
	return Activity{Kind: ActivityRemovePermuter, ThreadID: threadID, Handle: handle}
}

func Work(threadID int, handle string, seed evalproto.Seed) Activity {
	return Activity{Kind: ActivityWork, ThreadID: threadID, Handle: handle, Seed: seed}
}

func ImmediateDisconnect(threadID int, reason string) Activity {
	return Activity{Kind: ActivityImmediateDisconnect, ThreadID: threadID, Reason: reason}
}

func Disconnect(threadID int, reason string) Activity {
	return Activity{Kind: ActivityDisconnect, ThreadID: threadID, Reason: reason}
}

func PermInitFail(handle, reason string) Activity {
	return Activity{Kind: ActivityPermInitFail, Handle: handle, Reason: reason}
}

func PermInitSuccess(handle string) Activity {
	return Activity{Kind: ActivityPermInitSuccess, Handle: handle}
}

func WorkDoneActivity(handle string, result evalproto.EvalResult) Activity {
	return Activity{Kind: ActivityWorkDone, Handle: handle, Result: result}
}

func NeedMoreWorkActivity() Activity {
	return Activity{Kind: ActivityNeedMoreWork}
}

func NetThreadDisconnected(threadID int) Activity {
	return Activity{Kind: ActivityNetThreadDisconnected, ThreadID: threadID}
}

func Heartbeat(threadID int) Activity {
	return Activity{Kind: ActivityHeartbeat, ThreadID: threadID}
}

func Shutdown() Activity {
	return Activity{Kind: ActivityShutdown}
}

// OutputKind tags the Output union the server emits back toward a
// NetThread for relay to its client.
type OutputKind int

const (
	OutputInitFail OutputKind = iota
	OutputInitSuccess
	OutputDisconnect
	OutputNeedMoreWork
	OutputWork
	OutputResult
	OutputShutdown
)

// Output is what the main queue hands back to a specific NetThread (by
// ThreadID) to translate into a wire message.
type Output struct {
	Kind     OutputKind
	ThreadID int
	Handle   string
	Reason   string
	Seed     evalproto.Seed
	Result   evalproto.EvalResult
}

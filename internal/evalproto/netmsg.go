package evalproto

// This file defines the JSON message vocabulary spec.md §4.7/§6 layers
// over the encrypted frame transport between a coordinator's remote
// session and a server's NetThread. Both sides marshal/unmarshal these
// shapes directly; internal/wire only supplies the framing and
// encryption underneath.

// ClientMsgType tags the client->server JSON message types.
type ClientMsgType string

const (
	ClientMsgHeartbeat ClientMsgType = "heartbeat"
	ClientMsgAdd       ClientMsgType = "add"
	ClientMsgWork      ClientMsgType = "work"
	ClientMsgRemove    ClientMsgType = "remove"
)

// ClientMsg is the envelope for every client->server message. Add is
// followed by two raw (non-JSON) frames: compressed source, then the
// target object bytes, per spec.md §6/§4.7. Fields irrelevant to Type
// are left zero.
type ClientMsg struct {
	Type ClientMsgType `json:"type"`
	ID   string        `json:"id,omitempty"`

	FnName           string  `json:"fn_name,omitempty"`
	Filename         string  `json:"filename,omitempty"`
	KeepProb         float64 `json:"keep_prob,omitempty"`
	StackDifferences bool    `json:"stack_differences,omitempty"`
	CompileScript    string  `json:"compile_script,omitempty"`

	Seed     int64   `json:"seed,omitempty"`
	Keep     int64   `json:"keep,omitempty"`
	Priority float64 `json:"priority,omitempty"`
}

// ServerMsgType tags the server->client JSON message types.
type ServerMsgType string

const (
	ServerMsgUpdate   ServerMsgType = "update"
	ServerMsgNeedWork ServerMsgType = "need_work"
)

// UpdateSubtype tags the "update" message's subtype, matching
// spec.md §6's init_failed / init_done / disconnect / work taxonomy.
type UpdateSubtype string

const (
	UpdateInitFailed UpdateSubtype = "init_failed"
	UpdateInitDone   UpdateSubtype = "init_done"
	UpdateDisconnect UpdateSubtype = "disconnect"
	UpdateWork       UpdateSubtype = "work"
)

// ServerMsg is the envelope for every server->client message. A
// result ("update"/"work") is optionally followed by one raw frame
// carrying the zlib-compressed candidate source, per the need_source
// bandwidth optimization spec.md §9 calls out; HasSource tells the
// reader whether to expect it.
type ServerMsg struct {
	Type    ServerMsgType `json:"type"`
	Subtype UpdateSubtype `json:"subtype,omitempty"`
	ID      string        `json:"id,omitempty"`
	Reason  string        `json:"reason,omitempty"`

	Success bool `json:"success,omitempty"`

	HasSource bool               `json:"has_source,omitempty"`
	Score     int                `json:"score,omitempty"`
	Hash      string             `json:"hash,omitempty"`
	TimeUs    int64              `json:"time_us,omitempty"`
	Profiler  map[string]float64 `json:"profiler_stats,omitempty"`
	IsError   bool               `json:"is_error,omitempty"`
	ExcStr    string             `json:"exc_str,omitempty"`
}

// EvaluatorMsgType tags the server<->evaluator JSON protocol (spec.md
// §4.6), distinct from the client<->server protocol above because the
// evaluator is a local subprocess, not a network peer.
type EvaluatorMsgType string

const (
	EvaluatorMsgAdd      EvaluatorMsgType = "add"
	EvaluatorMsgWork     EvaluatorMsgType = "work"
	EvaluatorMsgRemove   EvaluatorMsgType = "remove"
	EvaluatorMsgInit     EvaluatorMsgType = "init"
	EvaluatorMsgResult   EvaluatorMsgType = "result"
	EvaluatorMsgNeedWork EvaluatorMsgType = "need_work"
)

// EvaluatorRequest is server->evaluator: add (followed by two raw
// frames: source, target_o_bin), work, or remove.
type EvaluatorRequest struct {
	Type EvaluatorMsgType `json:"type"`
	ID   string           `json:"id,omitempty"`

	FnName           string  `json:"fn_name,omitempty"`
	Filename         string  `json:"filename,omitempty"`
	KeepProb         float64 `json:"keep_prob,omitempty"`
	StackDifferences bool    `json:"stack_differences,omitempty"`
	CompileScript    string  `json:"compile_script,omitempty"`

	Seed int64 `json:"seed,omitempty"`
	Keep int64 `json:"keep,omitempty"`
}

// EvaluatorResponse is evaluator->server: init, result (optionally
// followed by one raw frame with the compressed source), or need_work.
type EvaluatorResponse struct {
	Type    EvaluatorMsgType `json:"type"`
	ID      string           `json:"id,omitempty"`
	Success bool             `json:"success,omitempty"`
	Reason  string           `json:"reason,omitempty"`

	TimeUs    int64              `json:"time_us,omitempty"`
	HasSource bool               `json:"has_source,omitempty"`
	Score     int                `json:"score,omitempty"`
	Hash      string             `json:"hash,omitempty"`
	Profiler  map[string]float64 `json:"profiler_stats,omitempty"`
	IsError   bool               `json:"is_error,omitempty"`
	ExcStr    string             `json:"exc_str,omitempty"`
}

package wire

// MinPriority and MaxPriority bound the --priority flag and the
// network_priority advertised in a session's add messages
// (spec.md §6). Both peers must agree on these bounds since priority
// values cross the wire uninterpreted.
const (
	MinPriority = 0.0
	MaxPriority = 100.0
)

// Package emit provides pluggable observability for graph execution: a
// single Event shape and an Emitter interface with backends for logging,
// buffering, and distributed tracing.
package emit

// Event is a single observability event raised during a run.
//
// Events cover both run-level occurrences (Step is zero, NodeID is empty)
// and per-node occurrences within a superstep.
type Event struct {
	// RunID identifies the run that produced this event.
	RunID string

	// Step is the superstep index (1-indexed.) Zero for run_start and
	// run_error, and for the checkpoint_write of a fresh run's input-seeding
	// commit; run_complete carries the last step reached.
	Step int

	// NodeID names the node this event concerns. Empty for run-level and
	// superstep-level events.
	NodeID string

	// Channel names the channel this event concerns. The run loop's own
	// events leave it empty.
	Channel string

	// Msg is a short, machine-greppable event name. The runtime emits
	// "run_start", "node_end", "checkpoint_write", "run_error" and
	// "run_complete".
	Msg string

	// Meta carries event-specific structured data. Keys the runtime sets:
	// "duration_ms", "status", "error".
	Meta map[string]interface{}
}

// Package pregel implements a Pregel/BSP-style graph execution runtime:
// named channels with well-defined update semantics, a superstep scheduler
// that runs eligible nodes concurrently, and a checkpoint protocol that
// persists channel state between steps.
package pregel

import (
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// Construction errors. These are reported eagerly when a Graph is built,
// never at run time.
var (
	// ErrUnknownChannel is returned when a node references a channel name
	// that was never declared on the graph.
	ErrUnknownChannel = errors.New("pregel: node references unknown channel")

	// ErrNoOutputWriter is returned when the graph's configured output
	// channels have no node writing to them.
	ErrNoOutputWriter = errors.New("pregel: no node writes to the configured output channel")

	// ErrNoInputSubscriber is returned when no node subscribes to any of
	// the graph's configured input channels.
	ErrNoInputSubscriber = errors.New("pregel: no node subscribes to the configured input channel")

	// ErrDuplicateNode is returned when two nodes are registered under the
	// same name.
	ErrDuplicateNode = errors.New("pregel: duplicate node name")
)

// Run-time errors.
var (
	// ErrInvalidUpdate is returned by a channel's Update when it received
	// writes that violate its update rule (e.g. more than one write to a
	// LastValue channel in a single step). The step that produced it is
	// aborted and no state changes are committed.
	ErrInvalidUpdate = errors.New("pregel: invalid update")

	// ErrEmpty is returned by Invoke when its single output channel has
	// never been written and carries no seed value (Channel.Read itself
	// reports that case as ok == false).
	ErrEmpty = errors.New("pregel: channel is empty")

	// ErrRecursionExceeded is returned when the step budget is exhausted
	// without the run reaching a natural halt.
	ErrRecursionExceeded = errors.New("pregel: recursion limit exceeded")

	// ErrNoProgress is returned when a step produces no writes and the run
	// has no other way to proceed; the run loop treats this as a natural
	// halt rather than surfacing it, but backends may use it internally.
	ErrNoProgress = errors.New("pregel: no progress, runnable set is empty")

	// ErrCheckpointerRequired is returned when a thread_id is configured
	// but no checkpoint store was attached to the graph.
	ErrCheckpointerRequired = errors.New("pregel: thread_id given but no checkpoint store configured")

	// ErrNotWritable is returned when something attempts to write to a
	// Context channel, which only accepts a value via scoped acquisition.
	ErrNotWritable = errors.New("pregel: channel does not accept writes")
)

// RunError wraps a failure that aborted a single step, identifying which
// node (or channel) caused it. When more than one concurrently dispatched
// task fails in the same step, the remaining causes are attached so a
// caller can inspect every failure instead of only the first.
type RunError struct {
	// RunID identifies the run the error occurred in.
	RunID string

	// Step is the superstep index during which the failure occurred.
	Step int

	// NodeID names the node whose callable failed, or the channel whose
	// Update rejected its writes. Empty when the recursion limit is
	// exceeded.
	NodeID string

	// Cause is the first error encountered.
	Cause error

	// Others collects any additional causes observed in the same step,
	// via github.com/hashicorp/go-multierror so callers can Unwrap or
	// range over every failure rather than only the first.
	Others *multierror.Error
}

func (e *RunError) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("pregel: run %s step %d: node %s: %v", e.RunID, e.Step, e.NodeID, e.Cause)
	}
	return fmt.Sprintf("pregel: run %s step %d: %v", e.RunID, e.Step, e.Cause)
}

func (e *RunError) Unwrap() error { return e.Cause }

// addCause appends an additional failure observed in the same step as e.
func (e *RunError) addCause(nodeID string, err error) {
	wrapped := fmt.Errorf("node %s: %w", nodeID, err)
	e.Others = multierror.Append(e.Others, wrapped)
}

// ConstructionError reports a problem found while compiling a graph, named
// so callers can tell build-time failures apart from run-time ones without
// string matching.
type ConstructionError struct {
	Message string
	Cause   error
}

func (e *ConstructionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("pregel: construction error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("pregel: construction error: %s", e.Message)
}

func (e *ConstructionError) Unwrap() error { return e.Cause }

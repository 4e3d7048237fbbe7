package pregel

import (
	"time"

	"github.com/flowstate/pregel/checkpoint"
	"github.com/flowstate/pregel/emit"
)

// Option configures a Graph at construction time.
//
// Functional options keep Graph's constructor extensible without breaking
// callers as new knobs are added:
//
//	g, err := pregel.NewGraph(
//	    pregel.WithCheckpointer(store),
//	    pregel.WithRecursionLimit(50),
//	    pregel.WithMaxConcurrentNodes(16),
//	)
//
// Options are applied in call order, so a later Option overrides an
// earlier one that sets the same field. NewGraph accepts only Option
// values; there is no constructor that takes an Options struct.
type Option func(*graphConfig) error

// graphConfig collects Options before they are frozen onto a Graph.
type graphConfig struct {
	opts Options
}

// Options holds every configurable knob for a Graph as a plain struct; the
// Option functions passed to NewGraph fill it in.
type Options struct {
	// Checkpointer persists state between steps and across process
	// restarts. If nil, runs are in-memory only and cannot be resumed
	// after the process exits.
	Checkpointer checkpoint.Store

	// RecursionLimit caps the number of supersteps a single run may
	// execute before it fails with ErrRecursionExceeded. Zero means no
	// limit, which is dangerous for graphs with cycles.
	RecursionLimit int

	// MaxConcurrentNodes bounds how many nodes may execute in parallel
	// within a single step. Zero means unbounded (one goroutine per
	// runnable node).
	MaxConcurrentNodes int

	// DefaultNodeTimeout caps a single node invocation when the node
	// itself specifies no NodePolicy.Timeout. Zero disables the default.
	DefaultNodeTimeout time.Duration

	// Emitter receives lifecycle events (run_start, node_end,
	// checkpoint_write, run_error, run_complete); there are no step-start
	// or node-start events. If nil, a NullEmitter is used.
	Emitter emit.Emitter

	// Metrics receives Prometheus observations. If nil, metrics are not
	// recorded.
	Metrics *PrometheusMetrics

	// InputChannels lists the channels seeded from Invoke's input value
	// when the caller does not specify per-channel writes explicitly. If
	// empty, the single reserved channel "input" is used.
	InputChannels []string

	// OutputChannels lists the channels read to build Invoke's return
	// value. If empty, the single reserved channel "output" is used.
	OutputChannels []string

	// Interrupt lists channel names that pause the run after a step that
	// writes to them commits, returning ErrInterrupted with enough state
	// for a caller to resume.
	Interrupt []string
}

// WithCheckpointer sets the Store used to persist and resume runs.
//
// Default: nil (no persistence; Stream/Invoke cannot resume after restart).
func WithCheckpointer(store checkpoint.Store) Option {
	return func(cfg *graphConfig) error {
		cfg.opts.Checkpointer = store
		return nil
	}
}

// WithRecursionLimit caps the number of supersteps a run may execute.
//
// Default: 25 (set by NewGraph when no Option overrides it). Graphs with
// cycles must set this explicitly or risk running
// forever; when the limit is reached the run loop sets ChannelIsLastStep
// before admitting the final step, then fails with ErrRecursionExceeded if
// the graph is still runnable afterward.
func WithRecursionLimit(n int) Option {
	return func(cfg *graphConfig) error {
		if n < 0 {
			return &ConstructionError{Message: "recursion limit must be >= 0"}
		}
		cfg.opts.RecursionLimit = n
		return nil
	}
}

// WithMaxConcurrentNodes bounds how many nodes execute concurrently within
// one step, backed by an ants.Pool.
//
// Default: 0 (unbounded — one goroutine per runnable node per step).
func WithMaxConcurrentNodes(n int) Option {
	return func(cfg *graphConfig) error {
		cfg.opts.MaxConcurrentNodes = n
		return nil
	}
}

// WithDefaultNodeTimeout sets the execution deadline applied to nodes that
// do not declare their own NodePolicy.Timeout.
//
// Default: 0 (disabled).
func WithDefaultNodeTimeout(d time.Duration) Option {
	return func(cfg *graphConfig) error {
		cfg.opts.DefaultNodeTimeout = d
		return nil
	}
}

// WithEmitter sets the lifecycle event sink.
//
// Default: emit.NullEmitter{}.
func WithEmitter(e emit.Emitter) Option {
	return func(cfg *graphConfig) error {
		cfg.opts.Emitter = e
		return nil
	}
}

// WithMetrics attaches a PrometheusMetrics collector.
//
// Default: nil (no metrics recorded).
func WithMetrics(m *PrometheusMetrics) Option {
	return func(cfg *graphConfig) error {
		cfg.opts.Metrics = m
		return nil
	}
}

// WithInputChannels overrides which channels Invoke seeds from its input
// argument.
//
// Default: []string{"input"}.
func WithInputChannels(names ...string) Option {
	return func(cfg *graphConfig) error {
		cfg.opts.InputChannels = names
		return nil
	}
}

// WithOutputChannels overrides which channels Invoke reads to build its
// return value.
//
// Default: []string{"output"}.
func WithOutputChannels(names ...string) Option {
	return func(cfg *graphConfig) error {
		cfg.opts.OutputChannels = names
		return nil
	}
}

// WithInterrupt marks channel names that pause the run once a step commits
// a write to them.
//
// Default: nil (no interrupts).
func WithInterrupt(channelNames ...string) Option {
	return func(cfg *graphConfig) error {
		cfg.opts.Interrupt = channelNames
		return nil
	}
}

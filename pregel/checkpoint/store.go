// Package checkpoint defines the abstract, thread_id-keyed checkpoint
// store contract (C3) and ships three interchangeable backends: an
// in-memory store for tests and short-lived runs, and two SQL-backed
// stores (SQLite, MySQL) for durable, resumable execution. The store is
// the only stateful dependency the core run loop has; every backend
// implements the same contract so the loop never special-cases one.
package checkpoint

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound reports that no checkpoint exists for a thread (and, if set,
// step). The Store backends in this package do not return it: their Get
// reports a missing checkpoint as ok == false with a nil error.
var ErrNotFound = errors.New("checkpoint: not found")

// Config identifies which checkpoint a Get/Put call targets.
type Config struct {
	// ThreadID identifies the linear history of checkpoints to operate on.
	ThreadID string

	// Step optionally pins the call to a specific step instead of the
	// latest one. nil means "the most recent checkpoint for ThreadID".
	Step *int
}

// Checkpoint is an immutable snapshot of every channel's value at the end
// of one committed step, keyed by thread.
type Checkpoint struct {
	ThreadID string `json:"thread_id"`
	Step     int    `json:"step"`

	// ChannelValues holds each channel's Checkpoint()-produced blob, keyed
	// by channel name. A channel absent from this map was never written.
	ChannelValues map[string][]byte `json:"channel_values"`

	// Versions is the monotonic per-channel version used by the planner to
	// determine which channels changed relative to the prior checkpoint.
	Versions map[string]uint64 `json:"versions"`

	// IdempotencyKey is a hash of (ThreadID, Step, Versions) computed by
	// the run loop and stored alongside the checkpoint. The backends do not
	// check it; they keep one checkpoint per (ThreadID, Step), so a retried
	// Put for the same step replaces the earlier one.
	IdempotencyKey string `json:"idempotency_key"`

	Timestamp time.Time `json:"timestamp"`
}

// Store provides persistence for channel state, keyed by thread_id.
//
// Ordering: within a single thread, the sequence of committed checkpoints
// is strictly monotonic in Step. Put must be atomic — a concurrent Get
// always observes either the previous checkpoint in full or the new one in
// full, never a mix. Concurrent runs against the same thread_id have
// undefined interleaving at the application layer; it is the store's job
// only to make each individual Put atomic.
type Store interface {
	// Put persists checkpoint, becoming the new latest checkpoint for its
	// ThreadID. Last put wins.
	Put(ctx context.Context, checkpoint Checkpoint) error

	// Get retrieves a checkpoint for cfg.ThreadID — the latest one, or the
	// one at cfg.Step if set. ok is false (with a nil error) if none
	// exists.
	Get(ctx context.Context, cfg Config) (cp Checkpoint, ok bool, err error)
}

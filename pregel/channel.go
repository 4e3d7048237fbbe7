package pregel

import (
	"context"
	"fmt"

	"github.com/bytedance/sonic"
)

// Channel is a typed slot with a specific update rule. It is the only
// medium of inter-node communication: nodes never see each other directly,
// only the channels they are wired to.
//
// Every built-in variant (LastValue, Topic, BinaryOperatorAggregate,
// Context) implements this same four-method contract rather than sharing
// behavior through an inheritance chain, so adding a new channel kind never
// requires touching the executor.
type Channel interface {
	// Read returns the channel's current visible value. ok is false when
	// the channel has never been written and carries no seed (Empty).
	Read() (value any, ok bool, err error)

	// Update applies every write collected for this channel during one
	// step. It is called at most once per step, with all writes that
	// targeted the channel in that step. changed reports whether the
	// channel should participate in the next step's runnable set.
	// ErrInvalidUpdate aborts the step with no state change.
	Update(writes []any) (changed bool, err error)

	// Checkpoint serializes the channel's current state to an opaque blob.
	Checkpoint() ([]byte, error)

	// Restore replaces the channel's state from a blob previously produced
	// by Checkpoint, preserving the "has been written" flag used for Empty
	// detection.
	Restore(data []byte) error
}

// Factory constructs a fresh, empty instance of a channel kind. Graphs are
// built from a name -> Factory map so every Run gets its own channel
// instances seeded from a restored checkpoint or from scratch.
type Factory func() Channel

// ChannelIsLastStep is the reserved system channel the run loop writes
// `true` into on the final admitted step of a recursion-limited run.
const ChannelIsLastStep = "is_last_step"

// --- LastValue ---------------------------------------------------------

// lastValueState is the JSON-serializable snapshot of a LastValue channel.
type lastValueState[T any] struct {
	Written bool `json:"written"`
	Value   T    `json:"value"`
}

// lastValue holds the most recently written value. Writing more than once
// per step is an error (I2); reading before any write fails with Empty.
type lastValue[T any] struct {
	value   T
	written bool
}

// NewLastValue returns a Factory for a LastValue<T> channel.
func NewLastValue[T any]() Factory {
	return func() Channel { return &lastValue[T]{} }
}

func (c *lastValue[T]) Read() (any, bool, error) {
	if !c.written {
		return nil, false, nil
	}
	return c.value, true, nil
}

func (c *lastValue[T]) Update(writes []any) (bool, error) {
	if len(writes) == 0 {
		return false, nil
	}
	if len(writes) > 1 {
		return false, ErrInvalidUpdate
	}
	v, ok := writes[0].(T)
	if !ok {
		return false, fmt.Errorf("%w: expected %T, got %T", ErrInvalidUpdate, v, writes[0])
	}
	c.value = v
	c.written = true
	return true, nil
}

func (c *lastValue[T]) Checkpoint() ([]byte, error) {
	return sonic.Marshal(lastValueState[T]{Written: c.written, Value: c.value})
}

func (c *lastValue[T]) Restore(data []byte) error {
	var s lastValueState[T]
	if err := sonic.Unmarshal(data, &s); err != nil {
		return err
	}
	c.value, c.written = s.Value, s.Written
	return nil
}

// --- Topic ---------------------------------------------------------------

// topicState is the JSON-serializable snapshot of a Topic channel.
type topicState[T any] struct {
	History       []T `json:"history,omitempty"`
	LastStepWrite []T `json:"last_step_write"`
}

// topic appends every write made to it during a step. Depending on its
// configuration it either accumulates the full history (accumulate=true)
// or only exposes the writes from the most recently committed step
// (accumulate=false, the default), optionally deduplicating.
type topic[T comparable] struct {
	accumulate bool
	unique     bool

	history []T // only populated when accumulate
	last    []T // writes from the last step that touched this channel
	seen    map[T]struct{}
}

// TopicOption configures a Topic channel.
type TopicOption func(*topicConfig)

type topicConfig struct {
	accumulate bool
	unique     bool
}

// WithAccumulate makes the Topic's visible value the entire write history
// across all steps instead of only the most recent step's writes.
func WithAccumulate() TopicOption { return func(c *topicConfig) { c.accumulate = true } }

// WithUnique deduplicates writes against everything previously seen on
// this channel.
func WithUnique() TopicOption { return func(c *topicConfig) { c.unique = true } }

// NewTopic returns a Factory for a Topic<T> channel. T must be comparable
// to support WithUnique's dedup set; channels over non-comparable element
// types should wrap them in a comparable key type.
func NewTopic[T comparable](opts ...TopicOption) Factory {
	cfg := topicConfig{}
	for _, o := range opts {
		o(&cfg)
	}
	return func() Channel {
		t := &topic[T]{accumulate: cfg.accumulate, unique: cfg.unique}
		if cfg.unique {
			t.seen = make(map[T]struct{})
		}
		return t
	}
}

func (c *topic[T]) Read() (any, bool, error) {
	if c.accumulate {
		return append([]T(nil), c.history...), true, nil
	}
	return append([]T(nil), c.last...), true, nil
}

func (c *topic[T]) Update(writes []any) (bool, error) {
	if len(writes) == 0 {
		// A non-accumulating Topic's visible value is only the last
		// committed step's writes (spec C1); with no writes this step,
		// that view goes empty rather than keeping the previous step's.
		c.last = nil
		return false, nil
	}
	fresh := make([]T, 0, len(writes))
	for _, w := range writes {
		v, ok := w.(T)
		if !ok {
			return false, fmt.Errorf("%w: expected %T, got %T", ErrInvalidUpdate, v, w)
		}
		if c.unique {
			if _, dup := c.seen[v]; dup {
				continue
			}
			c.seen[v] = struct{}{}
		}
		fresh = append(fresh, v)
	}
	c.last = fresh
	if c.accumulate {
		c.history = append(c.history, fresh...)
	}
	return len(fresh) > 0 || len(writes) > 0, nil
}

// clearIfUntouched resets the last-step view for a step that produced no
// writes to this channel at all, so a non-accumulating Topic doesn't keep
// exposing a prior step's writes across an intervening empty step (C1).
func (c *topic[T]) clearIfUntouched() {
	c.last = nil
}

func (c *topic[T]) Checkpoint() ([]byte, error) {
	return sonic.Marshal(topicState[T]{History: c.history, LastStepWrite: c.last})
}

func (c *topic[T]) Restore(data []byte) error {
	var s topicState[T]
	if err := sonic.Unmarshal(data, &s); err != nil {
		return err
	}
	c.history, c.last = s.History, s.LastStepWrite
	if c.unique {
		c.seen = make(map[T]struct{}, len(c.history))
		for _, v := range c.history {
			c.seen[v] = struct{}{}
		}
	}
	return nil
}

// --- BinaryOperatorAggregate ----------------------------------------------

// aggState is the JSON-serializable snapshot of a BinaryOperatorAggregate.
type aggState[T any] struct {
	Value T `json:"value"`
}

// binop folds every write into an accumulated value via an associative
// operator, starting from a seed. It never reads Empty: the seed is the
// value until the first write.
type binop[T any] struct {
	seed  T
	value T
	op    func(acc, write T) T
}

// NewBinaryOperatorAggregate returns a Factory for a
// BinaryOperatorAggregate<T> channel that folds writes into seed via op.
// op must be associative so the result does not depend on write order.
func NewBinaryOperatorAggregate[T any](seed T, op func(acc, write T) T) Factory {
	return func() Channel {
		return &binop[T]{seed: seed, value: seed, op: op}
	}
}

func (c *binop[T]) Read() (any, bool, error) { return c.value, true, nil }

func (c *binop[T]) Update(writes []any) (bool, error) {
	if len(writes) == 0 {
		return false, nil
	}
	for _, w := range writes {
		v, ok := w.(T)
		if !ok {
			return false, fmt.Errorf("%w: expected %T, got %T", ErrInvalidUpdate, v, w)
		}
		c.value = c.op(c.value, v)
	}
	return true, nil
}

func (c *binop[T]) Checkpoint() ([]byte, error) {
	return sonic.Marshal(aggState[T]{Value: c.value})
}

func (c *binop[T]) Restore(data []byte) error {
	var s aggState[T]
	if err := sonic.Unmarshal(data, &s); err != nil {
		return err
	}
	c.value = s.Value
	return nil
}

// --- Context ---------------------------------------------------------------

// AcquireFunc acquires a scoped resource at run start. The returned release
// function is guaranteed to run exactly once on every run exit path
// (natural completion, error, interrupt, or cancellation).
type AcquireFunc[T any] func(ctx context.Context) (T, func(), error)

// ctxChannel is a resource acquired once at run start and released at run
// end. It accepts no writes and participates in no write frame; if
// acquisition fails the error is returned at run start, and Read returns
// it as well.
type ctxChannel[T any] struct {
	value      T
	acquired   bool
	acquireErr error
	acquireFn  AcquireFunc[T]
	release    func()
}

// NewContext returns a Factory for a Context<T> channel. acquire is called
// exactly once, by Run, when the channel is first instantiated.
func NewContext[T any](acquire AcquireFunc[T]) Factory {
	return func() Channel {
		return &ctxChannel[T]{acquireErr: errNotYetAcquired, acquireFn: acquire}
	}
}

// errNotYetAcquired marks a Context channel that Run has not yet acquired.
var errNotYetAcquired = fmt.Errorf("pregel: context channel not yet acquired")

func (c *ctxChannel[T]) acquire(ctx context.Context) error {
	v, release, err := c.acquireFn(ctx)
	if err != nil {
		c.acquireErr = err
		return err
	}
	c.value, c.acquired, c.release, c.acquireErr = v, true, release, nil
	return nil
}

func (c *ctxChannel[T]) releaseNow() {
	if c.release != nil {
		c.release()
	}
}

func (c *ctxChannel[T]) Read() (any, bool, error) {
	if c.acquireErr != nil {
		return nil, false, c.acquireErr
	}
	return c.value, true, nil
}

func (c *ctxChannel[T]) Update([]any) (bool, error) { return false, ErrNotWritable }

func (c *ctxChannel[T]) Checkpoint() ([]byte, error) { return nil, nil }

func (c *ctxChannel[T]) Restore([]byte) error { return nil }

// acquirer is implemented by channels that need scoped acquisition at run
// start (currently only Context channels). The run loop type-asserts each
// channel against this interface rather than special-casing Context by
// name.
type acquirer interface {
	acquire(ctx context.Context) error
	releaseNow()
}

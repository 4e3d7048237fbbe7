package pregel

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/flowstate/pregel/checkpoint"
	"github.com/flowstate/pregel/emit"
)

// RunConfig scopes a single Invoke/Stream/Batch call.
type RunConfig struct {
	// ThreadID, when non-empty, makes the run resumable: the graph must
	// have a Checkpointer configured, the latest checkpoint for this
	// thread (if any) is restored before step one, and every committed
	// step is persisted under this thread.
	ThreadID string

	// RunID identifies this particular execution for logging and metrics.
	// Defaults to a fresh random ID.
	RunID string
}

// Run holds the live, mutable state of one graph execution: instantiated
// channels, the current step, and per-channel versions. A Run is created
// fresh by Invoke/Stream/Batch and discarded when they return; persistence
// across process restarts goes through ThreadID and the Checkpointer, not
// through keeping a Run alive.
type Run struct {
	graph    *Graph
	channels map[string]Channel
	versions map[string]uint64

	threadID string
	runID    string
	step     int
}

// ErrInterrupted is returned by Invoke/Stream when a step wrote to a
// channel named in Options.Interrupt. The Run can be resumed by calling
// Invoke again with a nil input and the same ThreadID once a checkpoint
// store is configured; the nodes triggered by that channel are re-planned
// as runnable on the next call.
var ErrInterrupted = errors.New("pregel: run interrupted after a step wrote to an interrupt-listed channel")

func (g *Graph) newRun(ctx context.Context, cfg RunConfig) (*Run, error) {
	if !g.compiled {
		if err := g.Compile(); err != nil {
			return nil, err
		}
	}
	if cfg.ThreadID != "" && g.opts.Checkpointer == nil {
		return nil, ErrCheckpointerRequired
	}

	run := &Run{
		graph:    g,
		channels: make(map[string]Channel, len(g.channels)),
		versions: make(map[string]uint64, len(g.channels)),
		threadID: cfg.ThreadID,
		runID:    cfg.RunID,
	}
	if run.runID == "" {
		run.runID = newRunID()
	}

	for name, factory := range g.channels {
		run.channels[name] = factory()
	}

	if cfg.ThreadID != "" {
		cp, ok, err := g.opts.Checkpointer.Get(ctx, checkpoint.Config{ThreadID: cfg.ThreadID})
		if err != nil {
			return nil, err
		}
		if ok {
			for name, blob := range cp.ChannelValues {
				if ch, known := run.channels[name]; known {
					if err := ch.Restore(blob); err != nil {
						return nil, err
					}
				}
			}
			run.versions = cp.Versions
			run.step = cp.Step
		}
	}

	for _, ch := range run.channels {
		if acq, ok := ch.(acquirer); ok {
			if err := acq.acquire(ctx); err != nil {
				g.releaseAll(run)
				return nil, err
			}
		}
	}

	return run, nil
}

func (g *Graph) releaseAll(run *Run) {
	for _, ch := range run.channels {
		if acq, ok := ch.(acquirer); ok {
			acq.releaseNow()
		}
	}
}

// Invoke runs the graph to completion (or until interrupted/erroring) and
// returns the value read from the configured output channels: the single
// channel's value if there is exactly one, or a map[string]any keyed by
// channel name otherwise.
func (g *Graph) Invoke(ctx context.Context, input any, cfgs ...RunConfig) (any, error) {
	cfg := firstConfig(cfgs)
	run, err := g.newRun(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer g.releaseAll(run)

	g.emit(emit.Event{RunID: run.runID, Msg: "run_start"})

	if err := g.runToCompletion(ctx, run, input); err != nil {
		g.emit(emit.Event{RunID: run.runID, Msg: "run_error", Meta: map[string]interface{}{"error": err.Error()}})
		return nil, err
	}

	g.emit(emit.Event{RunID: run.runID, Step: run.step, Msg: "run_complete"})
	return g.readOutput(run)
}

// Batch runs Invoke once per input, concurrently, bounded by
// Options.MaxConcurrentNodes (0 means unbounded). Each input gets its own
// Run, and its own RunID unless cfgs supplies one per index. An error from
// any single run is reported at that index; if the worker pool cannot be
// created, its error is reported at every index.
func (g *Graph) Batch(ctx context.Context, inputs []any, cfgs ...[]RunConfig) ([]any, []error) {
	var perInput []RunConfig
	if len(cfgs) > 0 {
		perInput = cfgs[0]
	}

	outputs := make([]any, len(inputs))
	errs := make([]error, len(inputs))
	var wg sync.WaitGroup
	wg.Add(len(inputs))

	run := func(i int) {
		defer wg.Done()
		var cfg RunConfig
		if i < len(perInput) {
			cfg = perInput[i]
		}
		out, err := g.Invoke(ctx, inputs[i], cfg)
		outputs[i], errs[i] = out, err
	}

	if g.opts.MaxConcurrentNodes > 0 {
		pool, err := ants.NewPoolWithFunc(g.opts.MaxConcurrentNodes, func(a interface{}) {
			run(a.(int))
		})
		if err != nil {
			for i := range errs {
				errs[i] = err
			}
			wg.Add(-len(inputs))
			return outputs, errs
		}
		defer pool.Release()
		for i := range inputs {
			if submitErr := pool.Invoke(i); submitErr != nil {
				wg.Done()
				errs[i] = submitErr
			}
		}
	} else {
		for i := range inputs {
			go run(i)
		}
	}
	wg.Wait()

	return outputs, errs
}

// StreamEvent is emitted during Stream for the commit that seeds the input
// and then once per completed superstep.
type StreamEvent struct {
	Step    int
	Writes  map[string][]any
	Err     error
	Final   bool
	Output  any
}

// Stream runs the graph like Invoke but reports one StreamEvent per
// committed superstep on the returned channel, which is closed after the
// final event (Final == true) or the first error.
func (g *Graph) Stream(ctx context.Context, input any, cfgs ...RunConfig) (<-chan StreamEvent, error) {
	cfg := firstConfig(cfgs)
	run, err := g.newRun(ctx, cfg)
	if err != nil {
		return nil, err
	}

	out := make(chan StreamEvent, 1)
	go func() {
		defer close(out)
		defer g.releaseAll(run)

		g.emit(emit.Event{RunID: run.runID, Msg: "run_start"})
		onStep := func(step int, writes map[string][]any) {
			out <- StreamEvent{Step: step, Writes: writes}
		}
		if err := g.runToCompletionStreaming(ctx, run, input, onStep); err != nil {
			out <- StreamEvent{Step: run.step, Err: err, Final: true}
			g.emit(emit.Event{RunID: run.runID, Msg: "run_error", Meta: map[string]interface{}{"error": err.Error()}})
			return
		}
		output, err := g.readOutput(run)
		out <- StreamEvent{Step: run.step, Output: output, Err: err, Final: true}
		g.emit(emit.Event{RunID: run.runID, Step: run.step, Msg: "run_complete"})
	}()
	return out, nil
}

func (g *Graph) runToCompletion(ctx context.Context, run *Run, input any) error {
	return g.runToCompletionStreaming(ctx, run, input, nil)
}

func (g *Graph) runToCompletionStreaming(ctx context.Context, run *Run, input any, onStep func(step int, writes map[string][]any)) error {
	// run.step is only nonzero here when newRun restored an existing
	// checkpoint. With a nil input this call resumes a run that previously
	// paused because a step touched an Options.Interrupt channel: re-seeding
	// the input channel would re-trigger every input-subscribed node a
	// second time, so the interrupt channels themselves are treated as
	// "changed" and planning picks up exactly where it left off (they are
	// exactly the channels whose write caused the prior pause). A non-nil
	// input on a restored thread is seeded like a fresh run, on top of the
	// restored channel state.
	var changed map[string]bool
	if run.step > 0 && input == nil {
		changed = g.resumedTriggers()
	} else {
		seedWrites, c, err := g.seedInput(run, input)
		if err != nil {
			return err
		}
		if err := g.commit(ctx, run, seedWrites); err != nil {
			return err
		}
		if onStep != nil {
			onStep(run.step, seedWrites)
		}
		changed = c
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		runnable := g.planner.planStep(changed)
		if len(runnable) == 0 {
			return nil
		}

		run.step++
		if g.opts.RecursionLimit > 0 && run.step >= g.opts.RecursionLimit {
			g.markLastStep(run)
		}

		start := time.Now()
		writes, err := g.executeStep(ctx, run, runnable)
		if err != nil {
			g.recordSuperstepMetric(run, start, "error")
			return err
		}
		g.recordSuperstepMetric(run, start, "success")

		if err := g.commit(ctx, run, writes); err != nil {
			return err
		}
		changed = changedChannelNames(writes)

		if onStep != nil {
			onStep(run.step, writes)
		}

		if g.opts.RecursionLimit > 0 && run.step >= g.opts.RecursionLimit {
			if remaining := g.planner.planStep(changed); len(remaining) > 0 {
				return &RunError{RunID: run.runID, Step: run.step, Cause: ErrRecursionExceeded}
			}
			return nil
		}

		// Interrupt check (§4.5 point 8): if this step touched any channel
		// named in Options.Interrupt, pause after the commit above has
		// already persisted it, so a resumed run sees the write that
		// triggered the pause.
		if g.touchedInterrupt(changed) {
			return ErrInterrupted
		}
	}
}

// touchedInterrupt reports whether changed (the channels touched by the
// step just committed) intersects Options.Interrupt.
func (g *Graph) touchedInterrupt(changed map[string]bool) bool {
	for _, ch := range g.opts.Interrupt {
		if changed[ch] {
			return true
		}
	}
	return false
}

// resumedTriggers treats every Options.Interrupt channel as freshly changed,
// since those are exactly the channels whose write caused the prior pause;
// used to resume a run without re-seeding its input.
func (g *Graph) resumedTriggers() map[string]bool {
	changed := make(map[string]bool, len(g.opts.Interrupt))
	for _, ch := range g.opts.Interrupt {
		changed[ch] = true
	}
	return changed
}

func (g *Graph) markLastStep(run *Run) {
	ch, ok := run.channels[ChannelIsLastStep]
	if !ok {
		return
	}
	_, _ = ch.Update([]any{true})
}

func changedChannelNames(writes map[string][]any) map[string]bool {
	changed := make(map[string]bool, len(writes))
	for ch := range writes {
		changed[ch] = true
	}
	return changed
}

// seedInput writes input into the graph's input channels, following the
// declared Options.InputChannels: a single input channel takes the whole
// input value directly; multiple input channels expect input to be a
// map[string]any keyed by channel name.
func (g *Graph) seedInput(run *Run, input any) (map[string][]any, map[string]bool, error) {
	writes := make(map[string][]any)
	if len(g.opts.InputChannels) == 1 {
		writes[g.opts.InputChannels[0]] = []any{input}
	} else {
		m, ok := input.(map[string]any)
		if !ok {
			return nil, nil, &ConstructionError{Message: "input must be map[string]any when multiple input channels are configured"}
		}
		for _, ch := range g.opts.InputChannels {
			if v, present := m[ch]; present {
				writes[ch] = []any{v}
			}
		}
	}
	return writes, changedChannelNames(writes), nil
}

func (g *Graph) readOutput(run *Run) (any, error) {
	if len(g.opts.OutputChannels) == 1 {
		val, ok, err := run.channels[g.opts.OutputChannels[0]].Read()
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrEmpty
		}
		return val, nil
	}

	out := make(map[string]any, len(g.opts.OutputChannels))
	for _, ch := range g.opts.OutputChannels {
		val, ok, err := run.channels[ch].Read()
		if err != nil {
			return nil, err
		}
		if ok {
			out[ch] = val
		}
	}
	return out, nil
}

// clearableChannel is implemented by channel kinds whose visible value must
// reset when a step produces no writes for them at all (currently only the
// non-accumulating Topic, per spec C1: "the list of writes from the last
// committed step only, cleared at the start of each commit").
type clearableChannel interface {
	clearIfUntouched()
}

// commit applies writes to their target channels, bumps versions for
// channels that reported a change, clears untouched channels that need it,
// and persists a checkpoint when the run is thread-scoped.
func (g *Graph) commit(ctx context.Context, run *Run, writes map[string][]any) error {
	for name, vals := range writes {
		ch, ok := run.channels[name]
		if !ok {
			continue
		}
		changedNow, err := ch.Update(vals)
		if err != nil {
			if g.opts.Metrics != nil {
				g.opts.Metrics.IncrementUpdateRejections(run.runID, name)
			}
			return &RunError{RunID: run.runID, Step: run.step, NodeID: name, Cause: err}
		}
		if changedNow {
			run.versions[name]++
		}
	}

	for name, ch := range run.channels {
		if _, touched := writes[name]; touched {
			continue
		}
		if cc, ok := ch.(clearableChannel); ok {
			cc.clearIfUntouched()
		}
	}

	if run.threadID == "" || g.opts.Checkpointer == nil {
		return nil
	}
	return g.persist(ctx, run)
}

func (g *Graph) persist(ctx context.Context, run *Run) error {
	values := make(map[string][]byte, len(run.channels))
	for name, ch := range run.channels {
		blob, err := ch.Checkpoint()
		if err != nil {
			return err
		}
		values[name] = blob
	}

	cp := checkpoint.Checkpoint{
		ThreadID:       run.threadID,
		Step:           run.step,
		ChannelValues:  values,
		Versions:       run.versions,
		IdempotencyKey: computeIdempotencyKey(run.threadID, run.step, run.versions),
		Timestamp:      time.Now(),
	}
	if err := g.opts.Checkpointer.Put(ctx, cp); err != nil {
		return err
	}
	if g.opts.Metrics != nil {
		g.opts.Metrics.IncrementCheckpointWrites(run.runID)
	}
	g.emit(emit.Event{RunID: run.runID, Step: run.step, Msg: "checkpoint_write"})
	return nil
}

func (g *Graph) recordSuperstepMetric(run *Run, start time.Time, status string) {
	if g.opts.Metrics != nil {
		g.opts.Metrics.RecordSuperstepLatency(run.runID, time.Since(start), status)
	}
}

func firstConfig(cfgs []RunConfig) RunConfig {
	if len(cfgs) > 0 {
		return cfgs[0]
	}
	return RunConfig{}
}

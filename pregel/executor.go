package pregel

import (
	"context"
	"reflect"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/flowstate/pregel/emit"
)

// invocation is one callable dispatch: either the whole node (scalar/joined
// subscription) or one element of a fanout-each subscription.
type invocation struct {
	nodeName string
	input    any
	writers  []Writer
	policy   *NodePolicy
}

// executeStep runs every invocation derived from runnable concurrently,
// bounded by Options.MaxConcurrentNodes (0 means unbounded), and merges their writes per
// channel. A failing invocation does not cancel its siblings within the
// same step; every failure is collected so the caller sees the full
// picture, matching the "gather, then decide" superstep contract.
func (g *Graph) executeStep(ctx context.Context, run *Run, runnable []string) (map[string][]any, error) {
	invocations, err := g.buildInvocations(run, runnable)
	if err != nil {
		return nil, err
	}
	if len(invocations) == 0 {
		return nil, nil
	}

	results := make([]invocationResult, len(invocations))
	var wg sync.WaitGroup
	wg.Add(len(invocations))

	dispatch := func(idx int) {
		defer wg.Done()
		results[idx] = g.runInvocation(ctx, run, invocations[idx])
	}

	if g.opts.MaxConcurrentNodes > 0 {
		pool, perr := ants.NewPoolWithFunc(g.opts.MaxConcurrentNodes, func(i interface{}) {
			dispatch(i.(int))
		})
		if perr != nil {
			return nil, perr
		}
		defer pool.Release()
		for i := range invocations {
			if submitErr := pool.Invoke(i); submitErr != nil {
				wg.Done()
				results[i] = invocationResult{node: invocations[i].nodeName, err: submitErr}
			}
		}
	} else {
		for i := range invocations {
			go dispatch(i)
		}
	}
	wg.Wait()

	return g.mergeResults(run, results)
}

type invocationResult struct {
	node    string
	writes  map[string][]any
	err     error
	latency time.Duration
}

func (g *Graph) buildInvocations(run *Run, runnable []string) ([]invocation, error) {
	var invocations []invocation
	for _, name := range runnable {
		node := g.nodes[name]
		policy := g.policies[name]

		switch node.Subscription.mode {
		case scalarMode, joinedMode:
			in, err := readSubscription(run.channels, node.Subscription)
			if err != nil {
				return nil, &RunError{RunID: run.runID, Step: run.step, NodeID: name, Cause: err}
			}
			invocations = append(invocations, invocation{nodeName: name, input: in, writers: node.Writers, policy: policy})

		case fanoutEachMode:
			ch := node.Subscription.primary[0]
			val, ok, err := run.channels[ch].Read()
			if err != nil {
				return nil, &RunError{RunID: run.runID, Step: run.step, NodeID: name, Cause: err}
			}
			if !ok {
				continue
			}
			rv := reflect.ValueOf(val)
			if rv.Kind() != reflect.Slice {
				invocations = append(invocations, invocation{nodeName: name, input: val, writers: node.Writers, policy: policy})
				continue
			}
			for i := 0; i < rv.Len(); i++ {
				invocations = append(invocations, invocation{nodeName: name, input: rv.Index(i).Interface(), writers: node.Writers, policy: policy})
			}
		}
	}
	return invocations, nil
}

// readSubscription packages a node's readable channels into its callable
// input: the bare value for a scalar subscription, or a map[string]any for
// a joined one.
func readSubscription(channels map[string]Channel, sub Subscription) (any, error) {
	if sub.mode == scalarMode {
		ch := sub.primary[0]
		val, ok, err := channels[ch].Read()
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}
		return val, nil
	}

	in := make(map[string]any, len(sub.ReadChannels()))
	for _, name := range sub.ReadChannels() {
		val, ok, err := channels[name].Read()
		if err != nil {
			return nil, err
		}
		if ok {
			in[name] = val
		}
	}
	return in, nil
}

func (g *Graph) runInvocation(ctx context.Context, run *Run, inv invocation) invocationResult {
	start := time.Now()

	timeout := g.opts.DefaultNodeTimeout
	if inv.policy != nil && inv.policy.Timeout > 0 {
		timeout = inv.policy.Timeout
	}
	callCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	node := g.nodes[inv.nodeName]
	out, err := runWithPolicy(callCtx, inv.policy, func(ctx context.Context) (any, error) {
		return node.Callable(ctx, inv.input)
	})
	latency := time.Since(start)

	status := "success"
	if err != nil {
		status = "error"
	}
	if g.opts.Metrics != nil {
		g.opts.Metrics.RecordNodeLatency(run.runID, inv.nodeName, latency, status)
	}
	g.emit(emit.Event{
		RunID: run.runID, Step: run.step, NodeID: inv.nodeName,
		Msg: "node_end", Meta: map[string]interface{}{"duration_ms": latency.Milliseconds(), "status": status},
	})

	if err != nil {
		return invocationResult{node: inv.nodeName, err: err, latency: latency}
	}

	writes := make(map[string][]any)
	for _, w := range inv.writers {
		for ch, vals := range w.Apply(out) {
			writes[ch] = append(writes[ch], vals...)
		}
	}
	return invocationResult{node: inv.nodeName, writes: writes, latency: latency}
}

// mergeResults combines every invocation's writes into one per-channel map
// and aggregates failures into a single RunError.
func (g *Graph) mergeResults(run *Run, results []invocationResult) (map[string][]any, error) {
	merged := make(map[string][]any)
	var runErr *RunError

	for _, r := range results {
		if r.err != nil {
			if runErr == nil {
				runErr = &RunError{RunID: run.runID, Step: run.step, NodeID: r.node, Cause: r.err}
			} else {
				runErr.addCause(r.node, r.err)
			}
			continue
		}
		for ch, vals := range r.writes {
			merged[ch] = append(merged[ch], vals...)
		}
	}

	if runErr != nil {
		return nil, runErr
	}
	return merged, nil
}

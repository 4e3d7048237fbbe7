package pregel

import (
	"context"
	"reflect"
)

// Callable is the opaque transducer at the heart of a Node. It receives the
// packaged read snapshot of the node's subscriptions and returns an
// arbitrary intermediate value that the node's Writers then project into
// channel writes. The core never inspects what a Callable does internally;
// nodes may be pure functions or perform arbitrary I/O.
type Callable func(ctx context.Context, in any) (any, error)

// subscriptionMode distinguishes the three subscribe_to forms of §4.2.
type subscriptionMode int

const (
	// scalarMode reads a single channel; the callable is invoked once per
	// step with that channel's value directly as input.
	scalarMode subscriptionMode = iota
	// joinedMode reads a set of channels; the callable is invoked once per
	// step with a map[string]any of channel -> value.
	joinedMode
	// fanoutEachMode reads one sequence-valued channel and invokes the
	// callable once per element, concurrently.
	fanoutEachMode
)

// Subscription describes which channels feed a node and which of them
// trigger it. Joined channels (added via NodeBuilder.Join) are read but
// never trigger the node on their own.
type Subscription struct {
	mode      subscriptionMode
	primary   []string // subscribe_to / subscribe_to_each argument(s)
	joined    []string // Join() additions: read-only, non-triggering
}

// Triggers returns the channels whose update makes the node runnable.
func (s Subscription) Triggers() []string {
	return append([]string(nil), s.primary...)
}

// ReadChannels returns every channel the node reads (triggers + joined).
func (s Subscription) ReadChannels() []string {
	out := append([]string(nil), s.primary...)
	return append(out, s.joined...)
}

// Writer projects a node's callable output into named channel writes.
// Channels lists every channel name this writer can target, known up front
// at construction time so Graph.Compile can validate it without invoking
// Apply. Most writers produce a single-element write list per channel; a
// fanout writer (built with Fanout) interprets the output as a sequence and
// returns one write per element, letting a single invocation append many
// values to a Topic channel.
type Writer struct {
	Channels []string
	Apply    func(output any) map[string][]any
}

// WriteTo writes the callable's entire output to a single channel (writer
// form w1).
func WriteTo(channel string) Writer {
	return Writer{
		Channels: []string{channel},
		Apply: func(output any) map[string][]any {
			return map[string][]any{channel: {output}}
		},
	}
}

// WriteToProjected writes proj(output) to a single channel.
func WriteToProjected(channel string, proj func(output any) any) Writer {
	return Writer{
		Channels: []string{channel},
		Apply: func(output any) map[string][]any {
			return map[string][]any{channel: {proj(output)}}
		},
	}
}

// WriteToMap declares a set of (channel -> value) writes from one
// invocation. Each value in spec is either a constant (written as-is,
// writer form w3) or a func(output any) any projection (writer form w2),
// distinguished by type switch, mirroring write_to(name, **kwargs) in the
// original implementation this runtime is modeled on.
func WriteToMap(spec map[string]any) Writer {
	channels := make([]string, 0, len(spec))
	for ch := range spec {
		channels = append(channels, ch)
	}
	return Writer{
		Channels: channels,
		Apply: func(output any) map[string][]any {
			writes := make(map[string][]any, len(spec))
			for channel, v := range spec {
				if proj, ok := v.(func(any) any); ok {
					writes[channel] = []any{proj(output)}
				} else {
					writes[channel] = []any{v}
				}
			}
			return writes
		},
	}
}

// Fanout interprets the callable's output as a slice of any element type and
// emits one write per element to channel (writer form w4). Falls back to a
// single write if output is not a slice.
func Fanout(channel string) Writer {
	return Writer{
		Channels: []string{channel},
		Apply: func(output any) map[string][]any {
			rv := reflect.ValueOf(output)
			if !rv.IsValid() || rv.Kind() != reflect.Slice {
				return map[string][]any{channel: {output}}
			}
			items := make([]any, rv.Len())
			for i := range items {
				items[i] = rv.Index(i).Interface()
			}
			return map[string][]any{channel: items}
		},
	}
}

// Node is a named, stateless processing unit: all memory lives in channels,
// never in the node itself. It is produced by NodeBuilder rather than
// implemented directly, so the executor can inspect its subscriptions and
// writers without reflection.
type Node struct {
	Name         string
	Subscription Subscription
	Callable     Callable
	Writers      []Writer
}

// NodeBuilder assembles a Node via the wiring primitives of §6:
// subscribe_to / subscribe_to_each / join / write_to.
type NodeBuilder struct {
	sub      Subscription
	callable Callable
	writers  []Writer
}

// SubscribeTo declares a scalar (single name) or joined (multiple names)
// read. All named channels are triggers.
func SubscribeTo(names ...string) *NodeBuilder {
	mode := scalarMode
	if len(names) > 1 {
		mode = joinedMode
	}
	return &NodeBuilder{sub: Subscription{mode: mode, primary: names}}
}

// SubscribeToEach declares a fanout-each read over a single sequence-valued
// channel: the node is invoked once per element, independently and
// concurrently within the step.
func SubscribeToEach(name string) *NodeBuilder {
	return &NodeBuilder{sub: Subscription{mode: fanoutEachMode, primary: []string{name}}}
}

// Join augments the subscription with additional read-only channels. An
// update to a joined channel alone does not wake the node.
func (b *NodeBuilder) Join(names ...string) *NodeBuilder {
	b.sub.joined = append(b.sub.joined, names...)
	if len(b.sub.primary)+len(b.sub.joined) > 1 && b.sub.mode == scalarMode {
		b.sub.mode = joinedMode
	}
	return b
}

// Do sets the node's callable.
func (b *NodeBuilder) Do(fn Callable) *NodeBuilder {
	b.callable = fn
	return b
}

// WriteTo declares one or more writers that project the callable's output
// into channel writes.
func (b *NodeBuilder) WriteTo(writers ...Writer) *NodeBuilder {
	b.writers = append(b.writers, writers...)
	return b
}

// Build finalizes the node under the given name. Channel-name validity
// against the enclosing graph is checked by Graph.Compile, not here, since
// a NodeBuilder has no view of the channel set.
func (b *NodeBuilder) Build(name string) (*Node, error) {
	if b.callable == nil {
		return nil, &ConstructionError{Message: "node " + name + " has no callable; call Do(...)"}
	}
	if len(b.sub.primary) == 0 {
		return nil, &ConstructionError{Message: "node " + name + " has no subscription; call SubscribeTo/SubscribeToEach"}
	}
	return &Node{Name: name, Subscription: b.sub, Callable: b.callable, Writers: b.writers}, nil
}

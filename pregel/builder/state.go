package builder

import (
	"context"
	"reflect"

	"github.com/bytedance/sonic"

	"github.com/flowstate/pregel"
)

// StateUpdate is a partial update to a StateGraph's typed state: node
// callables return only the fields they touched rather than a whole new
// state value, mirroring the original's dict-returning node convention.
type StateUpdate map[string]any

// StateGraph compiles a struct-typed state machine: every exported field of
// S becomes its own pregel channel — a reducer channel when the field is
// tagged `pregel:"accumulate"`, a LastValue otherwise — so node callables
// read and write named fields instead of channels directly.
type StateGraph[S any] struct {
	fieldNames []string
	fieldType  map[string]reflect.Type
	accumulate map[string]bool

	nodes      map[string]func(ctx context.Context, state S) (StateUpdate, error)
	order      []string
	edges      map[string]string
	conditions map[string]conditionalStateEdge[S]
	entry      string
}

type conditionalStateEdge[S any] struct {
	router  func(state S) string
	targets []string
}

// NewStateGraph inspects S's exported fields once and returns a ready
// StateGraph builder.
func NewStateGraph[S any]() *StateGraph[S] {
	var zero S
	t := reflect.TypeOf(zero)

	g := &StateGraph[S]{
		fieldType:  make(map[string]reflect.Type),
		accumulate: make(map[string]bool),
		nodes:      make(map[string]func(context.Context, S) (StateUpdate, error)),
		edges:      make(map[string]string),
		conditions: make(map[string]conditionalStateEdge[S]),
	}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.PkgPath != "" { // unexported
			continue
		}
		g.fieldNames = append(g.fieldNames, f.Name)
		g.fieldType[f.Name] = f.Type
		if tag, ok := f.Tag.Lookup("pregel"); ok && tag == "accumulate" {
			g.accumulate[f.Name] = true
		}
	}
	return g
}

// AddNode registers fn under id, receiving the fully assembled current
// state and returning only the fields it changed.
func (g *StateGraph[S]) AddNode(id string, fn func(ctx context.Context, state S) (StateUpdate, error)) *StateGraph[S] {
	if _, exists := g.nodes[id]; !exists {
		g.order = append(g.order, id)
	}
	g.nodes[id] = fn
	if g.entry == "" {
		g.entry = id
	}
	return g
}

// SetEntry overrides which node receives the graph's initial state.
func (g *StateGraph[S]) SetEntry(id string) *StateGraph[S] { g.entry = id; return g }

// AddEdge wires an unconditional transition from one node to the next.
func (g *StateGraph[S]) AddEdge(from, to string) *StateGraph[S] {
	g.edges[from] = to
	return g
}

// AddConditionalEdge wires a branching transition: router inspects from's
// resulting state and returns the key of the node to run next, or END.
func (g *StateGraph[S]) AddConditionalEdge(from string, router func(state S) string, targets ...string) *StateGraph[S] {
	g.conditions[from] = conditionalStateEdge[S]{router: router, targets: targets}
	return g
}

// Compile lowers the state machine to a pregel.Graph. "input" seeds the
// entry node with the initial S value; every other node is triggered by a
// "step:<id>" signal channel its predecessor writes, and reads the current
// state by joining every field channel; "output" carries the final merged
// state once a router or edge-less node reaches END.
func (g *StateGraph[S]) Compile(opts ...pregel.Option) (*pregel.Graph, error) {
	if g.entry == "" {
		return nil, &pregel.ConstructionError{Message: "builder: state graph has no entry node"}
	}

	pg, err := pregel.NewGraph(opts...)
	if err != nil {
		return nil, err
	}
	pg.AddChannel("input", pregel.NewLastValue[any]())
	pg.AddChannel("output", pregel.NewLastValue[any]())
	for _, name := range g.fieldNames {
		if g.accumulate[name] {
			pg.AddChannel(fieldChannel(name), newReflectAccumulatorFactory(g.fieldType[name]))
		} else {
			pg.AddChannel(fieldChannel(name), pregel.NewLastValue[any]())
		}
	}
	for _, id := range g.order {
		if id != g.entry || g.loopsToEntry() {
			pg.AddChannel(stepChannel(id), pregel.NewLastValue[any]())
		}
	}

	for _, id := range g.order {
		node, err := g.buildNode(id)
		if err != nil {
			return nil, err
		}
		if err := pg.AddNode(node); err != nil {
			return nil, err
		}
	}

	if err := pg.Compile(); err != nil {
		return nil, err
	}
	return pg, nil
}

func (g *StateGraph[S]) buildNode(id string) (*pregel.Node, error) {
	fn := g.nodes[id]

	fieldChannels := make([]string, 0, len(g.fieldNames))
	for _, name := range g.fieldNames {
		fieldChannels = append(fieldChannels, fieldChannel(name))
	}

	var sub *pregel.NodeBuilder
	switch {
	case id == g.entry && g.loopsToEntry():
		// entry is also the target of a loop-back edge: it must wake on
		// either the caller's seed ("input") or its own step signal, so it
		// subscribes to both and joins every field to read the current state.
		sub = pregel.SubscribeTo("input", stepChannel(id)).Join(fieldChannels...)
	case id == g.entry:
		sub = pregel.SubscribeTo("input")
	default:
		sub = pregel.SubscribeTo(stepChannel(id)).Join(fieldChannels...)
	}

	callable := pregel.Callable(func(ctx context.Context, in any) (any, error) {
		var state S
		if id == g.entry {
			if s, ok := in.(S); ok {
				state = s
			} else if m, ok := in.(map[string]any); ok {
				// A loop-back invocation carries its own step signal
				// alongside the (persistently readable) seed; once that
				// signal is present the current field values, not the
				// original seed, are the node's state.
				if _, looped := m[stepChannel(id)]; looped {
					state = g.decodeState(in)
				} else if seed, ok := m["input"].(S); ok {
					state = seed
				} else {
					state = g.decodeState(in)
				}
			}
		} else {
			state = g.decodeState(in)
		}
		update, err := fn(ctx, state)
		if err != nil {
			return nil, err
		}
		return stateOutput[S]{update: update, merged: g.mergeState(state, update)}, nil
	})

	channels := make([]string, 0, len(g.fieldNames)+2)
	for _, name := range g.fieldNames {
		channels = append(channels, fieldChannel(name))
	}
	channels = append(channels, "output")
	if c, ok := g.conditions[id]; ok {
		for _, t := range c.targets {
			if t != END {
				channels = append(channels, stepChannel(t))
			}
		}
	} else if to, ok := g.edges[id]; ok {
		channels = append(channels, stepChannel(to))
	}

	writer := pregel.Writer{
		Channels: channels,
		Apply: func(output any) map[string][]any {
			out := output.(stateOutput[S])
			writes := make(map[string][]any, len(out.update)+1)
			for key, v := range out.update {
				if _, known := g.fieldType[key]; known {
					writes[fieldChannel(key)] = []any{v}
				}
			}
			if c, ok := g.conditions[id]; ok {
				key := c.router(out.merged)
				if key == END {
					writes["output"] = []any{out.merged}
				} else {
					writes[stepChannel(key)] = []any{true}
				}
				return writes
			}
			if to, ok := g.edges[id]; ok {
				writes[stepChannel(to)] = []any{true}
				return writes
			}
			writes["output"] = []any{out.merged}
			return writes
		},
	}

	return sub.Do(callable).WriteTo(writer).Build(id)
}

// stateOutput carries both a node's partial update (for per-field channel
// writes) and its fully assembled resulting state (for an END write or
// request the merged snapshot).
type stateOutput[S any] struct {
	update StateUpdate
	merged S
}

// decodeState assembles S from a joined-subscription read, ignoring the
// trigger entry contributed by the "step:<id>" signal channel.
func (g *StateGraph[S]) decodeState(in any) S {
	var state S
	m, ok := in.(map[string]any)
	if !ok {
		return state
	}
	v := reflect.ValueOf(&state).Elem()
	for _, name := range g.fieldNames {
		val, present := m[fieldChannel(name)]
		if !present || val == nil {
			continue
		}
		fv := v.FieldByName(name)
		rv := reflect.ValueOf(val)
		if fv.IsValid() && fv.CanSet() && rv.Type().AssignableTo(fv.Type()) {
			fv.Set(rv)
		}
	}
	return state
}

// mergeState applies update onto state, folding accumulate-tagged fields
// (slice append, map merge) instead of overwriting them, so a writer hitting
// END emits a coherent full snapshot rather than just the last delta.
func (g *StateGraph[S]) mergeState(state S, update StateUpdate) S {
	merged := state
	v := reflect.ValueOf(&merged).Elem()
	for key, val := range update {
		fv := v.FieldByName(key)
		if !fv.IsValid() || !fv.CanSet() || val == nil {
			continue
		}
		rv := reflect.ValueOf(val)
		if !rv.Type().AssignableTo(fv.Type()) {
			continue
		}
		if g.accumulate[key] {
			switch fv.Kind() {
			case reflect.Slice:
				fv.Set(reflect.AppendSlice(fv, rv))
				continue
			case reflect.Map:
				if fv.IsNil() {
					fv.Set(reflect.MakeMap(fv.Type()))
				}
				iter := rv.MapRange()
				for iter.Next() {
					fv.SetMapIndex(iter.Key(), iter.Value())
				}
				continue
			}
		}
		fv.Set(rv)
	}
	return merged
}

// loopsToEntry reports whether any edge or conditional edge targets the
// entry node, which means the entry must be able to wake on its own step
// signal in addition to the caller's initial seed.
func (g *StateGraph[S]) loopsToEntry() bool {
	for _, to := range g.edges {
		if to == g.entry {
			return true
		}
	}
	for _, c := range g.conditions {
		for _, t := range c.targets {
			if t == g.entry {
				return true
			}
		}
	}
	return false
}

func fieldChannel(name string) string { return "field:" + name }
func stepChannel(id string) string    { return "step:" + id }

// reflectAccumulator is a pregel.Channel for a StateGraph field tagged
// `pregel:"accumulate"`: slice writes are appended, map writes are merged,
// anything else falls back to last-write-wins. Field types are only known
// at StateGraph construction time via reflection, not at compile time, so
// this cannot be expressed as one of the generic channel constructors in
// package pregel the way a fixed-type caller would use
// NewBinaryOperatorAggregate directly.
type reflectAccumulator struct {
	typ     reflect.Type
	value   reflect.Value
	written bool
}

func newReflectAccumulatorFactory(typ reflect.Type) pregel.Factory {
	return func() pregel.Channel {
		return &reflectAccumulator{typ: typ, value: reflect.Zero(typ)}
	}
}

func (c *reflectAccumulator) Read() (any, bool, error) {
	if !c.written {
		return nil, false, nil
	}
	return c.value.Interface(), true, nil
}

func (c *reflectAccumulator) Update(writes []any) (bool, error) {
	if len(writes) == 0 {
		return false, nil
	}
	for _, w := range writes {
		wv := reflect.ValueOf(w)
		switch c.typ.Kind() {
		case reflect.Slice:
			if c.value.IsNil() {
				c.value = reflect.MakeSlice(c.typ, 0, wv.Len())
			}
			c.value = reflect.AppendSlice(c.value, wv)
		case reflect.Map:
			if c.value.IsNil() {
				c.value = reflect.MakeMap(c.typ)
			}
			iter := wv.MapRange()
			for iter.Next() {
				c.value.SetMapIndex(iter.Key(), iter.Value())
			}
		default:
			c.value = wv
		}
	}
	c.written = true
	return true, nil
}

func (c *reflectAccumulator) Checkpoint() ([]byte, error) {
	if !c.written {
		return sonic.Marshal(nil)
	}
	return sonic.Marshal(c.value.Interface())
}

func (c *reflectAccumulator) Restore(data []byte) error {
	ptr := reflect.New(c.typ)
	if err := sonic.Unmarshal(data, ptr.Interface()); err != nil {
		return err
	}
	c.value = ptr.Elem()
	c.written = string(data) != "null"
	return nil
}

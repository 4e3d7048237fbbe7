// Package builder lowers declarative node/edge graph descriptions into the
// raw channel/node primitives of package pregel, the way a caller of the
// original LangGraph-style API expects to build a workflow without naming a
// single channel directly.
package builder

import (
	"context"

	"github.com/flowstate/pregel"
)

// END is the sentinel target a router or edge may name to mean "route to
// the graph's output channel and halt", mirroring the original's END
// constant.
const END = "__end__"

// edge is an unconditional connection from one node to the next.
type edge struct {
	to string
}

// conditionalEdge routes dynamically: router inspects a node's output and
// names the next node (or END) by key; targets lists every key router may
// return, which Compile needs up front to wire the receiving nodes'
// subscriptions and this node's candidate writer channels.
type conditionalEdge struct {
	router  func(output any) string
	targets []string
}

// Graph is the low-level builder: explicit node IDs wired by AddEdge /
// AddConditionalEdge, compiling to one pregel.Node and one pregel.LastValue
// channel per node, analogous to the teacher's Engine[S].Add/Connect pair
// but without the typed-state constraint — node output is carried as any,
// exactly as pregel.Callable does.
type Graph struct {
	nodes      map[string]pregel.Callable
	order      []string
	edges      map[string]edge
	conditions map[string]conditionalEdge
	entry      string
}

// NewGraph returns an empty low-level Graph builder.
func NewGraph() *Graph {
	return &Graph{
		nodes:      make(map[string]pregel.Callable),
		edges:      make(map[string]edge),
		conditions: make(map[string]conditionalEdge),
	}
}

// AddNode registers fn under id. The first node added becomes the entry
// point unless SetEntry overrides it.
func (g *Graph) AddNode(id string, fn pregel.Callable) *Graph {
	if _, exists := g.nodes[id]; !exists {
		g.order = append(g.order, id)
	}
	g.nodes[id] = fn
	if g.entry == "" {
		g.entry = id
	}
	return g
}

// SetEntry overrides which node receives the graph's input channel.
func (g *Graph) SetEntry(id string) *Graph {
	g.entry = id
	return g
}

// AddEdge wires an unconditional transition: once from's callable returns,
// its output becomes to's input on the next step. from may have at most one
// unconditional edge; use AddConditionalEdge for branching.
func (g *Graph) AddEdge(from, to string) *Graph {
	g.edges[from] = edge{to: to}
	return g
}

// AddConditionalEdge wires a branching transition: router inspects from's
// output and returns the key of the node to run next (or END to halt with
// that output as the graph's result). targets must list every key router
// can return so Compile can wire the receiving subscriptions.
func (g *Graph) AddConditionalEdge(from string, router func(output any) string, targets ...string) *Graph {
	g.conditions[from] = conditionalEdge{router: router, targets: targets}
	return g
}

// Compile lowers the node/edge description to a pregel.Graph: one
// pregel.LastValue[any] channel named "node:<id>" per node carries that
// node's most recent output, the reserved "input"/"output" channels seed
// and collect the run, and each node's Writer fans its output to every
// channel its edge or router could target.
func (g *Graph) Compile(opts ...pregel.Option) (*pregel.Graph, error) {
	if g.entry == "" {
		return nil, &pregel.ConstructionError{Message: "builder: graph has no entry node"}
	}

	incoming := make(map[string][]string) // node id -> triggering channel names
	incoming[g.entry] = append(incoming[g.entry], "input")

	for from, e := range g.edges {
		incoming[e.to] = append(incoming[e.to], nodeChannel(from))
	}
	for from, c := range g.conditions {
		for _, target := range c.targets {
			if target == END {
				continue
			}
			incoming[target] = append(incoming[target], nodeChannel(from))
		}
	}

	pg, err := pregel.NewGraph(opts...)
	if err != nil {
		return nil, err
	}
	pg.AddChannel("input", pregel.NewLastValue[any]())
	pg.AddChannel("output", pregel.NewLastValue[any]())
	for _, id := range g.order {
		pg.AddChannel(nodeChannel(id), pregel.NewLastValue[any]())
	}

	for _, id := range g.order {
		node, err := g.buildNode(id, incoming[id])
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

func (g *Graph) buildNode(id string, incomingChannels []string) (*pregel.Node, error) {
	if len(incomingChannels) == 0 {
		return nil, &pregel.ConstructionError{Message: "builder: node " + id + " is unreachable (no edge or entry points to it)"}
	}

	fn := g.nodes[id]
	callable := pregel.Callable(func(ctx context.Context, in any) (any, error) {
		return fn(ctx, unwrapJoined(in))
	})

	writer := g.buildWriter(id)

	var sub *pregel.NodeBuilder
	if len(incomingChannels) == 1 {
		sub = pregel.SubscribeTo(incomingChannels[0])
	} else {
		sub = pregel.SubscribeTo(incomingChannels...)
	}
	return sub.Do(callable).WriteTo(writer).Build(id)
}

// unwrapJoined collapses a joined-subscription read (map[string]any keyed
// by channel name) down to the single value a builder.Graph callable
// expects: a node reachable from more than one upstream still only ever
// receives one live value per step, since at most one predecessor fires
// into a given step in an edge-routed graph.
func unwrapJoined(in any) any {
	m, ok := in.(map[string]any)
	if !ok {
		return in
	}
	for _, v := range m {
		return v
	}
	return nil
}

func (g *Graph) buildWriter(id string) pregel.Writer {
	if c, ok := g.conditions[id]; ok {
		channels := make([]string, 0, len(c.targets))
		for _, t := range c.targets {
			if t == END {
				channels = append(channels, "output")
				continue
			}
			channels = append(channels, nodeChannel(t))
		}
		router := c.router
		return pregel.Writer{
			Channels: channels,
			Apply: func(output any) map[string][]any {
				key := router(output)
				if key == END {
					return map[string][]any{"output": {output}}
				}
				return map[string][]any{nodeChannel(key): {output}}
			},
		}
	}
	if e, ok := g.edges[id]; ok {
		return pregel.WriteTo(nodeChannel(e.to))
	}
	return pregel.WriteTo("output")
}

func nodeChannel(id string) string {
	return "node:" + id
}

package builder

import (
	"context"

	"github.com/flowstate/pregel"
	"github.com/flowstate/pregel/model"
)

// MessageGraph compiles a conversation-history state machine: a single
// accumulating Topic[model.Message] channel named "messages" is the whole
// state, and node callables receive the history so far and return the
// message(s) to append, the way a chat-oriented graph in the original is
// built around one growing message list rather than an arbitrary struct.
type MessageGraph struct {
	nodes      map[string]func(ctx context.Context, history []model.Message) ([]model.Message, error)
	order      []string
	edges      map[string]string
	conditions map[string]conditionalMessageEdge
	entry      string
}

type conditionalMessageEdge struct {
	router  func(history []model.Message) string
	targets []string
}

// NewMessageGraph returns an empty MessageGraph builder.
func NewMessageGraph() *MessageGraph {
	return &MessageGraph{
		nodes:      make(map[string]func(context.Context, []model.Message) ([]model.Message, error)),
		edges:      make(map[string]string),
		conditions: make(map[string]conditionalMessageEdge),
	}
}

// AddNode registers fn under id: it receives the conversation so far and
// returns the message(s) it contributes.
func (g *MessageGraph) AddNode(id string, fn func(ctx context.Context, history []model.Message) ([]model.Message, error)) *MessageGraph {
	if _, exists := g.nodes[id]; !exists {
		g.order = append(g.order, id)
	}
	g.nodes[id] = fn
	if g.entry == "" {
		g.entry = id
	}
	return g
}

// SetEntry overrides which node receives the graph's seed message(s).
func (g *MessageGraph) SetEntry(id string) *MessageGraph { g.entry = id; return g }

// AddEdge wires an unconditional transition from one node to the next.
func (g *MessageGraph) AddEdge(from, to string) *MessageGraph {
	g.edges[from] = to
	return g
}

// AddConditionalEdge wires a branching transition: router inspects the
// conversation after from ran and returns the key of the node to run next,
// or END.
func (g *MessageGraph) AddConditionalEdge(from string, router func(history []model.Message) string, targets ...string) *MessageGraph {
	g.conditions[from] = conditionalMessageEdge{router: router, targets: targets}
	return g
}

// Compile lowers the message graph to a pregel.Graph. "input" seeds the
// conversation with the caller's initial message(s); "messages" accumulates
// every turn; "output" carries the full history once a router or
// edge-less node reaches END.
func (g *MessageGraph) Compile(opts ...pregel.Option) (*pregel.Graph, error) {
	if g.entry == "" {
		return nil, &pregel.ConstructionError{Message: "builder: message graph has no entry node"}
	}

	pg, err := pregel.NewGraph(opts...)
	if err != nil {
		return nil, err
	}
	pg.AddChannel("input", pregel.NewLastValue[any]())
	pg.AddChannel("output", pregel.NewLastValue[any]())
	pg.AddChannel("messages", pregel.NewTopic[model.Message](pregel.WithAccumulate()))
	for _, id := range g.order {
		if id != g.entry {
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

func (g *MessageGraph) buildNode(id string) (*pregel.Node, error) {
	fn := g.nodes[id]

	sub := pregel.SubscribeTo("input").Join("messages")
	if id != g.entry {
		sub = pregel.SubscribeTo(stepChannel(id)).Join("messages")
	}

	callable := pregel.Callable(func(ctx context.Context, in any) (any, error) {
		history := historyOf(in)
		var seeded []model.Message
		if id == g.entry {
			if seed, ok := in.(map[string]any)["input"].(model.Message); ok {
				seeded = []model.Message{seed}
			} else if seeds, ok := in.(map[string]any)["input"].([]model.Message); ok {
				seeded = seeds
			}
			history = append(history, seeded...)
		}
		contributed, err := fn(ctx, history)
		if err != nil {
			return nil, err
		}
		full := append(append([]model.Message(nil), history...), contributed...)
		return messageOutput{contributed: append(append([]model.Message(nil), seeded...), contributed...), full: full}, nil
	})

	channels := []string{"messages", "output"}
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
			out := output.(messageOutput)
			writes := make(map[string][]any)
			for _, m := range out.contributed {
				writes["messages"] = append(writes["messages"], m)
			}
			if c, ok := g.conditions[id]; ok {
				key := c.router(out.full)
				if key == END {
					writes["output"] = []any{out.full}
				} else {
					writes[stepChannel(key)] = []any{true}
				}
				return writes
			}
			if to, ok := g.edges[id]; ok {
				writes[stepChannel(to)] = []any{true}
				return writes
			}
			writes["output"] = []any{out.full}
			return writes
		},
	}

	return sub.Do(callable).WriteTo(writer).Build(id)
}

// messageOutput carries both the message(s) one invocation contributed (for
// the "messages" Topic write; for the entry node this includes the seed
// message(s) it received as input) and the full resulting history (for
// routing decisions and an END write).
type messageOutput struct {
	contributed []model.Message
	full        []model.Message
}

// historyOf extracts the "messages" entry from a joined-subscription read.
func historyOf(in any) []model.Message {
	m, ok := in.(map[string]any)
	if !ok {
		return nil
	}
	history, _ := m["messages"].([]model.Message)
	return history
}

package pregel

import (
	"github.com/flowstate/pregel/emit"
)

// Graph is a compiled set of channels and nodes. It is built once via
// AddChannel/AddNode/Compile and then used to create any number of
// independent Runs; a Graph itself holds no run-time state.
type Graph struct {
	channels map[string]Factory
	nodes    map[string]*Node
	policies map[string]*NodePolicy
	order    []string // node declaration order, for deterministic planning

	compiled bool
	planner  *planner
	opts     Options
}

// NewGraph creates an empty, uncompiled Graph configured by opts.
func NewGraph(opts ...Option) (*Graph, error) {
	cfg := &graphConfig{opts: Options{RecursionLimit: 25}}
	for _, o := range opts {
		if err := o(cfg); err != nil {
			return nil, &ConstructionError{Message: "applying option", Cause: err}
		}
	}
	if cfg.opts.Emitter == nil {
		cfg.opts.Emitter = emit.NewNullEmitter()
	}
	if len(cfg.opts.InputChannels) == 0 {
		cfg.opts.InputChannels = []string{"input"}
	}
	if len(cfg.opts.OutputChannels) == 0 {
		cfg.opts.OutputChannels = []string{"output"}
	}
	return &Graph{
		channels: make(map[string]Factory),
		nodes:    make(map[string]*Node),
		policies: make(map[string]*NodePolicy),
		opts:     cfg.opts,
	}, nil
}

// AddChannel registers a named channel factory. Must be called before
// Compile.
func (g *Graph) AddChannel(name string, factory Factory) *Graph {
	g.channels[name] = factory
	return g
}

// AddNode registers n with no special execution policy.
func (g *Graph) AddNode(n *Node) error {
	return g.AddNodeWithPolicy(n, nil)
}

// AddNodeWithPolicy registers n along with its timeout/retry/idempotency
// policy. Returns ErrDuplicateNode if a node under the same name already
// exists.
func (g *Graph) AddNodeWithPolicy(n *Node, policy *NodePolicy) error {
	if _, exists := g.nodes[n.Name]; exists {
		return &ConstructionError{Message: "node " + n.Name, Cause: ErrDuplicateNode}
	}
	if policy != nil && policy.RetryPolicy != nil {
		if err := policy.RetryPolicy.Validate(); err != nil {
			return &ConstructionError{Message: "node " + n.Name + " retry policy", Cause: err}
		}
	}
	g.nodes[n.Name] = n
	g.policies[n.Name] = policy
	g.order = append(g.order, n.Name)
	return nil
}

// Compile validates the wired graph and freezes its planning structures.
// Call it after every AddChannel/AddNode call; Invoke, Stream and Batch
// compile a graph that has not been compiled yet. It must be re-run if
// channels or nodes change after compiling.
func (g *Graph) Compile() error {
	if err := g.validate(); err != nil {
		return err
	}
	g.planner = newPlanner(g.nodes, g.order)
	g.compiled = true
	return nil
}

func (g *Graph) validate() error {
	for _, n := range g.nodes {
		for _, ch := range n.Subscription.ReadChannels() {
			if _, ok := g.channels[ch]; !ok {
				return &ConstructionError{Message: "node " + n.Name + " reads undeclared channel " + ch, Cause: ErrUnknownChannel}
			}
		}
	}

	writesTo := make(map[string]bool)
	for _, n := range g.nodes {
		for _, w := range n.Writers {
			for _, ch := range w.Channels {
				writesTo[ch] = true
			}
		}
	}
	for ch := range writesTo {
		if _, ok := g.channels[ch]; !ok {
			return &ConstructionError{Message: "node writes undeclared channel " + ch, Cause: ErrUnknownChannel}
		}
	}

	anyInputSubscriber := false
	for _, n := range g.nodes {
		for _, in := range g.opts.InputChannels {
			for _, trig := range n.Subscription.Triggers() {
				if trig == in {
					anyInputSubscriber = true
				}
			}
		}
	}
	if !anyInputSubscriber {
		return &ConstructionError{Message: "no node subscribes to an input channel", Cause: ErrNoInputSubscriber}
	}

	anyOutputWriter := false
	for out := range writesTo {
		for _, o := range g.opts.OutputChannels {
			if out == o {
				anyOutputWriter = true
			}
		}
	}
	if !anyOutputWriter {
		return &ConstructionError{Message: "no node writes to an output channel", Cause: ErrNoOutputWriter}
	}

	return nil
}

func (g *Graph) emit(e emit.Event) {
	g.opts.Emitter.Emit(e)
}

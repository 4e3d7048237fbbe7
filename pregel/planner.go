package pregel

// planner computes, for each superstep, the set of nodes that are runnable
// given which channels changed since the previous step, and does so
// deterministically so the same channel history always produces the same
// execution order within a step.
type planner struct {
	nodeOrder []string          // declaration order, for deterministic tie-breaks
	triggers  map[string][]string // channel name -> node names it triggers
}

// newPlanner indexes every node's trigger set so planStep never has to walk
// the full node list.
func newPlanner(nodes map[string]*Node, order []string) *planner {
	p := &planner{
		nodeOrder: append([]string(nil), order...),
		triggers:  make(map[string][]string),
	}
	for _, name := range order {
		n := nodes[name]
		for _, ch := range n.Subscription.Triggers() {
			p.triggers[ch] = append(p.triggers[ch], name)
		}
	}
	return p
}

// planStep returns the node names runnable this step, in declaration order
// with duplicates removed, given the set of channels that changed in the
// prior step. A nil or empty changed set yields no runnable nodes. On the
// first step, callers pass the seeded input channel names as "changed", so
// every node whose trigger set intersects them is runnable and this rule
// needs no special case.
func (p *planner) planStep(changed map[string]bool) []string {
	runnable := make(map[string]bool, len(p.nodeOrder))
	for ch := range changed {
		for _, node := range p.triggers[ch] {
			runnable[node] = true
		}
	}
	ordered := make([]string, 0, len(runnable))
	for _, name := range p.nodeOrder {
		if runnable[name] {
			ordered = append(ordered, name)
		}
	}
	return ordered
}

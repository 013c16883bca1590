package nodeflow

import "github.com/randalmurphal/nodeflow/pkg/nodeflow/observability"

// Edge is a dependency between two nodes: To reads from From.
type Edge struct {
	From *Node
	To   *Node
}

// Plan is the outcome of a scheduling pass.
type Plan struct {
	// Initial holds nodes selected by their own policy and dirty flag.
	Initial []*Node
	// PotentiallyDirty holds descendants pulled in because an ancestor
	// will recompute.
	PotentiallyDirty []*Node
	// Order is the execution order: every node after its in-set ancestors,
	// except across DroppedEdges.
	Order []*Node
	// DroppedEdges are dependency edges ignored to break cycles.
	DroppedEdges []Edge
}

// Schedule decides which nodes a workflow pass executes and in what order.
// It only reads node state; a session applies the plan's dirty marking
// when it executes the plan.
//
// AlwaysDirty nodes are always selected. NeverDirty nodes are selected
// only while their cache is empty. Other nodes are selected when dirty.
// Every descendant of a selected node is then added as potentially dirty,
// except NeverDirty descendants. The selection is ordered topologically;
// an edge closing a cycle is logged and ignored.
func (g *Graph) Schedule() *Plan {
	ancestors, descendants := g.dependencyMaps()
	nodes := g.Nodes()
	plan := &Plan{}
	selected := make(map[*Node]bool)

	for _, n := range nodes {
		n.mu.RLock()
		include := false
		switch n.policy {
		case AlwaysDirty:
			include = true
		case NeverDirty:
			include = len(n.cache) == 0
		default:
			include = n.dirty
		}
		n.mu.RUnlock()
		if include {
			selected[n] = true
			plan.Initial = append(plan.Initial, n)
		}
	}

	queue := append([]*Node(nil), plan.Initial...)
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, d := range descendants[cur] {
			if selected[d] {
				continue
			}
			d.mu.RLock()
			never := d.policy == NeverDirty
			d.mu.RUnlock()
			if never {
				continue
			}
			selected[d] = true
			plan.PotentiallyDirty = append(plan.PotentiallyDirty, d)
			queue = append(queue, d)
		}
	}

	const (
		unvisited = iota
		visiting
		done
	)
	mark := make(map[*Node]int, len(selected))
	var visit func(n *Node)
	visit = func(n *Node) {
		mark[n] = visiting
		for _, a := range ancestors[n] {
			if !selected[a] {
				continue
			}
			switch mark[a] {
			case visiting:
				plan.DroppedEdges = append(plan.DroppedEdges, Edge{From: a, To: n})
				observability.LogCycleEdgeDropped(g.logger, a.Title(), n.Title())
			case unvisited:
				visit(a)
			}
		}
		mark[n] = done
		plan.Order = append(plan.Order, n)
	}
	for _, n := range nodes {
		if selected[n] && mark[n] == unvisited {
			visit(n)
		}
	}
	return plan
}

// mark forces the plan's selections dirty so every scheduled node
// re-reads its inputs, and records which nodes were pulled in as
// potentially dirty.
func (p *Plan) mark(nodes []*Node) {
	for _, n := range nodes {
		n.mu.Lock()
		n.potentiallyDirty = false
		n.mu.Unlock()
	}
	for _, n := range p.Initial {
		n.mu.Lock()
		if n.policy == AlwaysDirty {
			n.dirty = true
		}
		n.mu.Unlock()
	}
	for _, n := range p.PotentiallyDirty {
		n.mu.Lock()
		n.potentiallyDirty = true
		n.dirty = true
		if !n.processing {
			n.status = StatusReady
		}
		n.mu.Unlock()
	}
}

package nodeflow

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/randalmurphal/nodeflow/pkg/nodeflow/observability"
)

// Graph holds a set of nodes and the links between their ports.
//
// Graph is safe for concurrent use. Node membership and port links are
// guarded by the graph lock; per-node state is guarded by each node's own
// lock. Dirty propagation never holds the graph lock while taking a node
// lock for writing.
//
// Example:
//
//	g := nodeflow.NewGraph(nodeflow.WithLogger(logger))
//	text, _ := g.AddNode(nodes.StaticText("hello"))
//	join, _ := g.AddNode(nodes.Join())
//	_ = g.Connect(text.Output("Text"), join.Input("Input 1"))
type Graph struct {
	mu    sync.RWMutex
	nodes []*Node
	byID  map[string]*Node

	logger   *slog.Logger
	settings Settings
	metrics  observability.MetricsRecorder
	spans    observability.SpanManager
	notifier Notifier

	running atomic.Bool
}

// NewGraph creates an empty graph.
func NewGraph(opts ...Option) *Graph {
	g := &Graph{
		byID:     make(map[string]*Node),
		logger:   slog.Default(),
		settings: DefaultSettings(),
		metrics:  observability.NoopMetrics{},
		spans:    observability.NoopSpanManager{},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Logger returns the graph's logger.
func (g *Graph) Logger() *slog.Logger { return g.logger }

// Settings returns the execution settings.
func (g *Graph) Settings() Settings { return g.settings }

// Metrics returns the graph's metrics recorder.
func (g *Graph) Metrics() observability.MetricsRecorder { return g.metrics }

// Running reports whether a workflow session is active.
func (g *Graph) Running() bool { return g.running.Load() }

// Add inserts n into the graph. The node keeps its current state; nodes
// fresh from NewNode are dirty with status Ready.
func (g *Graph) Add(n *Node) error {
	if n == nil {
		return fmt.Errorf("add node: %w", ErrNodeNotFound)
	}
	g.mu.Lock()
	if _, exists := g.byID[n.id]; exists {
		g.mu.Unlock()
		return fmt.Errorf("add node %s: %w", n.id, ErrDuplicateNode)
	}
	if other := n.graph.Load(); other != nil && other != g {
		g.mu.Unlock()
		return fmt.Errorf("add node %s: node belongs to another graph", n.id)
	}
	n.graph.Store(g)
	g.nodes = append(g.nodes, n)
	g.byID[n.id] = n
	g.mu.Unlock()

	n.notify()
	return nil
}

// AddNode builds a node from spec and adds it.
func (g *Graph) AddNode(spec NodeSpec) (*Node, error) {
	n, err := NewNode(spec)
	if err != nil {
		return nil, err
	}
	if err := g.Add(n); err != nil {
		return nil, err
	}
	return n, nil
}

// Remove severs every link of the node and removes it from the graph.
// An in-flight execution is stopped first.
func (g *Graph) Remove(id string) error {
	n, ok := g.Node(id)
	if !ok {
		return fmt.Errorf("remove node %s: %w", id, ErrNodeNotFound)
	}
	n.Stop()
	for _, p := range n.inputs {
		g.Disconnect(p)
	}
	for _, p := range n.outputs {
		g.Disconnect(p)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.byID, id)
	for i, cur := range g.nodes {
		if cur == n {
			g.nodes = append(g.nodes[:i], g.nodes[i+1:]...)
			break
		}
	}
	n.graph.Store(nil)
	return nil
}

// Node returns the node with the given ID.
func (g *Graph) Node(id string) (*Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.byID[id]
	return n, ok
}

// Nodes returns the nodes in insertion order.
func (g *Graph) Nodes() []*Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]*Node(nil), g.nodes...)
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// Connect links an output port to an input port; the arguments may come
// in either order. The link is refused when both ports have the same
// direction, when their kinds are incompatible, or when either node is
// not in this graph. A previous link into the input is severed, and the
// input's node is marked dirty.
func (g *Graph) Connect(a, b *Port) error {
	if a == nil || b == nil {
		return &ConnectionError{From: portLabel(a), To: portLabel(b), Reason: "missing port"}
	}
	if a.dir == b.dir {
		return &ConnectionError{From: a.String(), To: b.String(), Reason: "both ports are " + a.dir.String() + "s"}
	}
	out, in := a, b
	if out.dir == Input {
		out, in = b, a
	}
	if !out.kind.CompatibleWith(in.kind) {
		return &ConnectionError{
			From:   a.String(),
			To:     b.String(),
			Reason: fmt.Sprintf("kind %s is not compatible with %s", out.kind, in.kind),
		}
	}
	if out.node.Graph() != g || in.node.Graph() != g {
		return &ConnectionError{From: a.String(), To: b.String(), Reason: "ports belong to different graphs"}
	}

	g.mu.Lock()
	if len(in.links) == 1 && in.links[0] == out {
		g.mu.Unlock()
		return nil
	}
	for _, prev := range in.links {
		prev.links = removePort(prev.links, in)
	}
	in.links = []*Port{out}
	out.links = append(out.links, in)
	g.mu.Unlock()

	g.logger.Debug("ports connected",
		slog.String("from", out.String()),
		slog.String("to", in.String()),
	)
	in.node.MarkDirty()
	return nil
}

// Disconnect severs every link of p and marks each former downstream
// node dirty. Disconnecting an unlinked port is a no-op.
func (g *Graph) Disconnect(p *Port) {
	if p == nil {
		return
	}
	var affected []*Node

	g.mu.Lock()
	for _, other := range p.links {
		other.links = removePort(other.links, p)
		if p.dir == Output {
			affected = append(affected, other.node)
		}
	}
	if p.dir == Input && len(p.links) > 0 {
		affected = append(affected, p.node)
	}
	p.links = nil
	g.mu.Unlock()

	for _, n := range affected {
		n.MarkDirty()
	}
}

// Ancestors returns the distinct nodes n reads from directly.
func (g *Graph) Ancestors(n *Node) []*Node { return n.upstream() }

// Descendants returns the distinct nodes reading from n directly.
func (g *Graph) Descendants(n *Node) []*Node { return n.downstream() }

// TerminalNodes returns nodes whose outputs feed nothing.
func (g *Graph) TerminalNodes() []*Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []*Node
	for _, n := range g.nodes {
		terminal := true
		for _, p := range n.outputs {
			if len(p.links) > 0 {
				terminal = false
				break
			}
		}
		if terminal {
			out = append(out, n)
		}
	}
	return out
}

// ProcessingNodes returns nodes that are currently executing.
func (g *Graph) ProcessingNodes() []*Node {
	var out []*Node
	for _, n := range g.Nodes() {
		if n.Processing() {
			out = append(out, n)
		}
	}
	return out
}

// Links returns every output→input link in graph order.
func (g *Graph) Links() []Link {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []Link
	for _, n := range g.nodes {
		for _, p := range n.outputs {
			for _, in := range p.links {
				out = append(out, Link{From: p, To: in})
			}
		}
	}
	return out
}

// Link is a connection from an output port to an input port.
type Link struct {
	From *Port
	To   *Port
}

// dependencyMaps derives ancestor and descendant adjacency from the
// current port links. Lists follow port order and contain no duplicates.
func (g *Graph) dependencyMaps() (ancestors, descendants map[*Node][]*Node) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	ancestors = make(map[*Node][]*Node, len(g.nodes))
	descendants = make(map[*Node][]*Node, len(g.nodes))
	for _, n := range g.nodes {
		seen := make(map[*Node]bool)
		for _, p := range n.inputs {
			for _, l := range p.links {
				if !seen[l.node] {
					seen[l.node] = true
					ancestors[n] = append(ancestors[n], l.node)
				}
			}
		}
		seen = make(map[*Node]bool)
		for _, p := range n.outputs {
			for _, l := range p.links {
				if !seen[l.node] {
					seen[l.node] = true
					descendants[n] = append(descendants[n], l.node)
				}
			}
		}
	}
	return ancestors, descendants
}

func removePort(ports []*Port, p *Port) []*Port {
	out := ports[:0]
	for _, cur := range ports {
		if cur != p {
			out = append(out, cur)
		}
	}
	return out
}

func portLabel(p *Port) string {
	if p == nil {
		return "<nil>"
	}
	return p.String()
}

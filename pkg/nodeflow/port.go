package nodeflow

// Direction says whether a port receives or produces values.
type Direction int

const (
	// Input ports read one upstream value.
	Input Direction = iota
	// Output ports publish an entry of their node's cache.
	Output
)

// String returns "input" or "output".
func (d Direction) String() string {
	if d == Output {
		return "output"
	}
	return "input"
}

// Port is a typed connection point on a node.
//
// An input port has at most one link. An output port may feed any number
// of inputs. Links are guarded by the owning graph's lock; a port whose
// node is not in a graph has no links.
type Port struct {
	id    string
	name  string
	dir   Direction
	kind  DataKind
	node  *Node
	links []*Port
}

// ID returns the port's unique identifier.
func (p *Port) ID() string { return p.id }

// Name returns the port name, unique per direction within its node.
func (p *Port) Name() string { return p.name }

// Direction returns Input or Output.
func (p *Port) Direction() Direction { return p.dir }

// Kind returns the data kind the port carries.
func (p *Port) Kind() DataKind { return p.kind }

// Node returns the owning node.
func (p *Port) Node() *Node { return p.node }

// String renders the port as "title.name".
func (p *Port) String() string {
	return p.node.Title() + "." + p.name
}

// Links returns the ports this port is linked to.
func (p *Port) Links() []*Port {
	g := p.node.Graph()
	if g == nil {
		return nil
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*Port, len(p.links))
	copy(out, p.links)
	return out
}

// IsConnected reports whether the port has at least one link.
func (p *Port) IsConnected() bool {
	return len(p.Links()) > 0
}

// upstream returns the output port feeding an input port, or nil.
func (p *Port) upstream() *Port {
	if p.dir != Input {
		return nil
	}
	g := p.node.Graph()
	if g == nil {
		return nil
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	if len(p.links) == 0 {
		return nil
	}
	return p.links[0]
}

// Connect links p with other and reports whether the link was made.
// See Graph.Connect for the rules and the reason a link is refused.
func (p *Port) Connect(other *Port) bool {
	g := p.node.Graph()
	if g == nil {
		return false
	}
	return g.Connect(p, other) == nil
}

// Disconnect severs every link of p. Former downstream nodes are marked
// dirty.
func (p *Port) Disconnect() {
	if g := p.node.Graph(); g != nil {
		g.Disconnect(p)
	}
}

// Value returns the current value seen through the port. An output port
// yields its node's cache entry. An input port yields the linked output's
// cache entry, or the kind's empty default when unconnected or when the
// upstream node has not produced the entry yet. Value never triggers
// computation.
func (p *Port) Value() any {
	if p.dir == Output {
		v, _ := p.node.CachedValue(p.name)
		return v
	}
	up := p.upstream()
	if up == nil {
		return p.kind.Empty()
	}
	if v, ok := up.node.CachedValue(up.name); ok {
		return v
	}
	return p.kind.Empty()
}

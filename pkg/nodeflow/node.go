package nodeflow

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/randalmurphal/nodeflow/pkg/nodeflow/config"
)

// Status lines set by the engine. Bodies may set their own progress text
// through ExecContext.SetStatus.
const (
	StatusReady      = "Ready"
	StatusProcessing = "Processing"
	StatusComplete   = "Complete"
	StatusCached     = "Complete (cached)"
	StatusStopped    = "Stopped"
)

// Outputs maps output port names to values.
type Outputs = map[string]any

// Body is the execution logic of a node type.
//
// Synchronous bodies return the node's outputs. Asynchronous bodies
// (NodeSpec.Async) start background work, return a placeholder, and later
// call ExecContext.Complete exactly once.
type Body interface {
	Execute(ec *ExecContext) (Outputs, error)
}

// BodyFunc adapts a function to the Body interface.
type BodyFunc func(ec *ExecContext) (Outputs, error)

// Execute calls f(ec).
func (f BodyFunc) Execute(ec *ExecContext) (Outputs, error) {
	return f(ec)
}

// PortSpec declares a port on a node type.
type PortSpec struct {
	Name string   `json:"name" yaml:"name"`
	Kind DataKind `json:"kind" yaml:"kind"`
}

// NodeSpec describes a node to create.
type NodeSpec struct {
	// ID is optional; a UUID is generated when empty.
	ID string
	// Type is the registry tag of the node type.
	Type string
	// Title is the display name. Defaults to Type.
	Title string
	// Inputs and Outputs declare the ports in display order.
	Inputs  []PortSpec
	Outputs []PortSpec
	// Properties are the initial property values.
	Properties map[string]any
	// Policy is the recalculation policy.
	Policy Policy
	// Async marks bodies that complete through ExecContext.Complete.
	Async bool
	// Body is the execution logic. Required.
	Body Body
}

// Node is a processing unit in a Graph.
//
// All mutable state is guarded by the node's mutex. A node is created
// dirty, with an empty cache and status Ready.
type Node struct {
	id       string
	typeName string
	inputs   []*Port
	outputs  []*Port
	body     Body
	async    bool
	graph    atomic.Pointer[Graph]

	mu               sync.RWMutex
	title            string
	props            map[string]any
	policy           Policy
	cache            Outputs
	dirty            bool
	processing       bool
	processingDone   bool
	potentiallyDirty bool
	status           string
	fault            error
	run              uint64
	idle             chan struct{}
	cancel           func()
}

// NewNode builds a node from spec.
func NewNode(spec NodeSpec) (*Node, error) {
	if spec.Body == nil {
		return nil, errors.New("node body cannot be nil")
	}
	id := spec.ID
	if id == "" {
		id = uuid.New().String()
	}
	title := spec.Title
	if title == "" {
		title = spec.Type
	}
	n := &Node{
		id:       id,
		typeName: spec.Type,
		body:     spec.Body,
		async:    spec.Async,
		title:    title,
		props:    copyMap(spec.Properties),
		policy:   spec.Policy,
		cache:    Outputs{},
		dirty:    true,
		status:   StatusReady,
	}
	if n.props == nil {
		n.props = map[string]any{}
	}
	var err error
	if n.inputs, err = n.buildPorts(spec.Inputs, Input); err != nil {
		return nil, err
	}
	if n.outputs, err = n.buildPorts(spec.Outputs, Output); err != nil {
		return nil, err
	}
	return n, nil
}

func (n *Node) buildPorts(specs []PortSpec, dir Direction) ([]*Port, error) {
	ports := make([]*Port, 0, len(specs))
	seen := make(map[string]bool, len(specs))
	for _, ps := range specs {
		if ps.Name == "" {
			return nil, fmt.Errorf("%s port name cannot be empty", dir)
		}
		if seen[ps.Name] {
			return nil, fmt.Errorf("duplicate %s port %q", dir, ps.Name)
		}
		seen[ps.Name] = true
		kind := ps.Kind
		if kind == "" {
			kind = KindAny
		}
		ports = append(ports, &Port{
			id:   uuid.New().String(),
			name: ps.Name,
			dir:  dir,
			kind: kind,
			node: n,
		})
	}
	return ports, nil
}

// ID returns the node's unique identifier.
func (n *Node) ID() string { return n.id }

// Type returns the node type tag.
func (n *Node) Type() string { return n.typeName }

// IsAsync reports whether the node completes asynchronously.
func (n *Node) IsAsync() bool { return n.async }

// Graph returns the graph the node belongs to, or nil.
func (n *Node) Graph() *Graph { return n.graph.Load() }

// Inputs returns the input ports in display order.
func (n *Node) Inputs() []*Port { return append([]*Port(nil), n.inputs...) }

// Outputs returns the output ports in display order.
func (n *Node) Outputs() []*Port { return append([]*Port(nil), n.outputs...) }

// Input returns the input port with the given name, or nil.
func (n *Node) Input(name string) *Port { return findPort(n.inputs, name) }

// Output returns the output port with the given name, or nil.
func (n *Node) Output(name string) *Port { return findPort(n.outputs, name) }

func findPort(ports []*Port, name string) *Port {
	for _, p := range ports {
		if p.name == name {
			return p
		}
	}
	return nil
}

// Title returns the display name.
func (n *Node) Title() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.title
}

// SetTitle changes the display name.
func (n *Node) SetTitle(title string) {
	n.mu.Lock()
	n.title = title
	n.mu.Unlock()
	n.notify()
}

// Policy returns the recalculation policy.
func (n *Node) Policy() Policy {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.policy
}

// SetPolicy changes the recalculation policy and marks the node dirty,
// subject to the new policy.
func (n *Node) SetPolicy(p Policy) {
	n.mu.Lock()
	n.policy = p
	n.mu.Unlock()
	n.MarkDirty()
}

// Properties returns a snapshot of the node's properties.
func (n *Node) Properties() config.Config {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return config.New(copyMap(n.props))
}

// Property returns a single property value.
func (n *Node) Property(name string) (any, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	v, ok := n.props[name]
	return copyValue(v), ok
}

// SetProperty stores a property value and marks the node dirty. A
// NeverDirty node with a populated cache keeps its cache.
func (n *Node) SetProperty(name string, value any) {
	n.mu.Lock()
	n.props[name] = copyValue(value)
	n.mu.Unlock()
	n.MarkDirty()
}

// Status returns the status line.
func (n *Node) Status() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.status
}

// Fault returns the fault recorded by the last execution, or nil.
func (n *Node) Fault() error {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.fault
}

// Dirty reports whether the node needs recomputation.
func (n *Node) Dirty() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.dirty
}

// Processing reports whether the node is executing.
func (n *Node) Processing() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.processing
}

// ProcessingDone reports whether the last execution reached completion.
func (n *Node) ProcessingDone() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.processingDone
}

// PotentiallyDirty reports whether the last scheduling pass included the
// node because one of its ancestors was dirty.
func (n *Node) PotentiallyDirty() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.potentiallyDirty
}

// Cache returns a deep copy of the output cache.
func (n *Node) Cache() Outputs {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return copyMap(n.cache)
}

// CachedValue returns a deep copy of one cache entry.
func (n *Node) CachedValue(name string) (any, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	v, ok := n.cache[name]
	return copyValue(v), ok
}

// MarkDirty flags the node for recomputation and propagates to every node
// reading from its outputs. It is a no-op for a NeverDirty node with a
// populated cache and for a node that is already dirty, which also makes
// propagation terminate on cycles.
func (n *Node) MarkDirty() {
	n.mu.Lock()
	if n.policy == NeverDirty && len(n.cache) > 0 {
		n.mu.Unlock()
		return
	}
	if n.dirty {
		n.mu.Unlock()
		return
	}
	n.dirty = true
	if !n.processing {
		n.status = StatusReady
	}
	n.mu.Unlock()

	n.notify()
	for _, d := range n.downstream() {
		d.MarkDirty()
	}
}

// Reset clears the output cache and marks the node dirty.
func (n *Node) Reset() {
	n.mu.Lock()
	if n.processing {
		n.mu.Unlock()
		return
	}
	n.cache = Outputs{}
	n.fault = nil
	n.dirty = false
	n.mu.Unlock()
	n.MarkDirty()
}

// Stop cancels an in-flight execution. The body observes cancellation
// through its ExecContext; any completion it reports afterwards is
// discarded. The node is left dirty with status Stopped and no fault.
// Stop reports whether there was anything to stop.
func (n *Node) Stop() bool {
	n.mu.Lock()
	if !n.processing {
		n.mu.Unlock()
		return false
	}
	n.processing = false
	n.processingDone = false
	n.dirty = true
	n.status = StatusStopped
	cancel := n.cancel
	n.cancel = nil
	n.closeIdleLocked()
	n.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	n.notify()
	return true
}

// NodeState is the persistable part of a node.
type NodeState struct {
	Properties     map[string]any
	Policy         Policy
	Dirty          bool
	ProcessingDone bool
	Cache          Outputs
}

// State captures the node for persistence. The cache is included only
// when withCache is set.
func (n *Node) State(withCache bool) NodeState {
	n.mu.RLock()
	defer n.mu.RUnlock()
	st := NodeState{
		Properties:     copyMap(n.props),
		Policy:         n.policy,
		Dirty:          n.dirty,
		ProcessingDone: n.processingDone,
	}
	if withCache {
		st.Cache = copyMap(n.cache)
	}
	return st
}

// Restore applies persisted state. The dirty flag is revalidated against
// the policy the same way a scheduling pass decides what to run:
// AlwaysDirty nodes are dirty, NeverDirty nodes are dirty only without a
// cache, and any node without a cache is dirty.
func (n *Node) Restore(st NodeState) {
	n.mu.Lock()
	if st.Properties != nil {
		n.props = copyMap(st.Properties)
	}
	n.policy = st.Policy
	n.cache = copyMap(st.Cache)
	if n.cache == nil {
		n.cache = Outputs{}
	}
	n.processing = false
	n.processingDone = st.ProcessingDone
	n.fault = nil
	switch {
	case n.policy == AlwaysDirty, len(n.cache) == 0:
		n.dirty = true
	case n.policy == NeverDirty:
		n.dirty = false
	default:
		n.dirty = st.Dirty
	}
	if n.dirty {
		n.status = StatusReady
	} else {
		n.status = StatusCached
	}
	n.mu.Unlock()
	n.notify()
}

// downstream returns the distinct nodes linked from n's outputs.
func (n *Node) downstream() []*Node {
	g := n.Graph()
	if g == nil {
		return nil
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []*Node
	seen := make(map[*Node]bool)
	for _, p := range n.outputs {
		for _, l := range p.links {
			if !seen[l.node] {
				seen[l.node] = true
				out = append(out, l.node)
			}
		}
	}
	return out
}

// upstream returns the distinct nodes feeding n's inputs.
func (n *Node) upstream() []*Node {
	g := n.Graph()
	if g == nil {
		return nil
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []*Node
	seen := make(map[*Node]bool)
	for _, p := range n.inputs {
		for _, l := range p.links {
			if !seen[l.node] {
				seen[l.node] = true
				out = append(out, l.node)
			}
		}
	}
	return out
}

func (n *Node) notify() {
	if g := n.Graph(); g != nil && g.notifier != nil {
		g.notifier.NodeChanged(n)
	}
}

// closeIdleLocked releases waiters. Caller holds n.mu.
func (n *Node) closeIdleLocked() {
	if n.idle != nil {
		close(n.idle)
		n.idle = nil
	}
}

// resetStale clears a processing flag left behind by a run that already
// reached completion.
func (n *Node) resetStale() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.processing || !n.processingDone {
		return false
	}
	n.processing = false
	n.closeIdleLocked()
	return true
}

package workflow

import (
	"errors"
	"fmt"

	"github.com/randalmurphal/nodeflow/pkg/nodeflow"
	"github.com/randalmurphal/nodeflow/pkg/nodeflow/registry"
)

// ValidateTypes checks the definition against reg: every node type is
// registered and every connection names ports the node types declare.
// Structural validation runs first.
func (d *Definition) ValidateTypes(reg *registry.Registry) error {
	if err := d.Validate(); err != nil {
		return err
	}

	specs := make(map[string]nodeflow.NodeSpec, len(d.Nodes))
	var errs []error
	for i, n := range d.Nodes {
		spec, err := reg.Spec(n.Type)
		if err != nil {
			errs = append(errs, fmt.Errorf("nodes[%d].type: %w", i, err))
			continue
		}
		specs[n.ID] = spec
	}
	for i, c := range d.Connections {
		if spec, ok := specs[c.From]; ok && !hasPort(spec.Outputs, c.Output) {
			errs = append(errs, fmt.Errorf("connections[%d].output: node %q (%s) has no output %q", i, c.From, spec.Type, c.Output))
		}
		if spec, ok := specs[c.To]; ok && !hasPort(spec.Inputs, c.Input) {
			errs = append(errs, fmt.Errorf("connections[%d].input: node %q (%s) has no input %q", i, c.To, spec.Type, c.Input))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidDefinition, errors.Join(errs...))
	}
	return nil
}

func hasPort(ports []nodeflow.PortSpec, name string) bool {
	for _, p := range ports {
		if p.Name == name {
			return true
		}
	}
	return false
}

// Build validates d against reg and creates the graph it describes.
// Properties in the document override the node type's defaults. Persisted
// node state is applied after all connections are made, so restored dirty
// flags are not clobbered by connection-time invalidation.
func Build(d *Definition, reg *registry.Registry, opts ...nodeflow.Option) (*nodeflow.Graph, error) {
	if err := d.ValidateTypes(reg); err != nil {
		return nil, err
	}

	g := nodeflow.NewGraph(opts...)
	for _, nd := range d.Nodes {
		spec, err := reg.Spec(nd.Type)
		if err != nil {
			return nil, err
		}
		spec.ID = nd.ID
		if nd.Title != "" {
			spec.Title = nd.Title
		}
		if nd.Policy != "" {
			if spec.Policy, err = nodeflow.ParsePolicy(nd.Policy); err != nil {
				return nil, fmt.Errorf("node %s: %w", nd.ID, err)
			}
		}
		if spec.Properties == nil {
			spec.Properties = make(map[string]any, len(nd.Properties))
		}
		for k, v := range nd.Properties {
			spec.Properties[k] = v
		}
		if _, err := g.AddNode(spec); err != nil {
			return nil, fmt.Errorf("node %s: %w", nd.ID, err)
		}
	}

	for _, c := range d.Connections {
		from, _ := g.Node(c.From)
		to, _ := g.Node(c.To)
		if err := g.Connect(from.Output(c.Output), to.Input(c.Input)); err != nil {
			return nil, fmt.Errorf("connect %s: %w", c, err)
		}
	}

	for _, nd := range d.Nodes {
		if !nd.hasState() {
			continue
		}
		n, _ := g.Node(nd.ID)
		st := n.State(false)
		st.ProcessingDone = nd.ProcessingDone
		st.Dirty = true
		if nd.Dirty != nil {
			st.Dirty = *nd.Dirty
		}
		st.Cache = nd.Cache
		n.Restore(st)
	}
	return g, nil
}

// Export describes g as a document. Node state is always written; the
// output caches only when withCache is set. Nodes keep graph order and
// connections follow node and port order.
func Export(g *nodeflow.Graph, withCache bool) *Definition {
	d := &Definition{Version: Version}
	for _, n := range g.Nodes() {
		st := n.State(withCache)
		dirty := st.Dirty
		nd := NodeDef{
			ID:             n.ID(),
			Type:           n.Type(),
			Title:          n.Title(),
			Policy:         st.Policy.String(),
			Properties:     st.Properties,
			Dirty:          &dirty,
			ProcessingDone: st.ProcessingDone,
		}
		if len(nd.Properties) == 0 {
			nd.Properties = nil
		}
		if withCache && len(st.Cache) > 0 {
			nd.Cache = st.Cache
		}
		d.Nodes = append(d.Nodes, nd)
	}
	for _, l := range g.Links() {
		d.Connections = append(d.Connections, ConnectionDef{
			From:   l.From.Node().ID(),
			Output: l.From.Name(),
			To:     l.To.Node().ID(),
			Input:  l.To.Name(),
		})
	}
	return d
}

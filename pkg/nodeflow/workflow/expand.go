package workflow

import (
	"errors"
	"fmt"

	"github.com/randalmurphal/nodeflow/pkg/nodeflow/template"
)

// Expand returns a copy of d with ${NAME} references in node titles and
// properties resolved by exp. Cached outputs are left as stored.
func (d *Definition) Expand(exp *template.Expander) (*Definition, error) {
	out := *d
	out.Nodes = make([]NodeDef, len(d.Nodes))
	var errs []error
	for i, n := range d.Nodes {
		title, err := exp.Expand(n.Title)
		if err != nil {
			errs = append(errs, fmt.Errorf("nodes[%d].title: %w", i, err))
		}
		props, err := exp.ExpandMap(n.Properties)
		if err != nil {
			errs = append(errs, fmt.Errorf("nodes[%d].properties.%w", i, err))
		}
		n.Title = title
		n.Properties = props
		out.Nodes[i] = n
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return &out, nil
}

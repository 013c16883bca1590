// Package registry maps node type names to node factories.
//
// A Registry is an explicit value passed to whatever builds graphs, such
// as workflow.Build or the CLI; there is no global registry.
//
// # Basic Usage
//
//	reg := registry.New()
//	reg.MustRegister(registry.Entry{
//	    Type:     "static_text",
//	    Category: "Text",
//	    Factory:  nodes.StaticText,
//	})
//
//	node, err := reg.Create(graph, "static_text", "", "Greeting")
//
// Factories are called once per node and must return a new Body each
// time. Types and Entries return sorted results so listings are stable.
package registry

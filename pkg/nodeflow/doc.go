/*
Package nodeflow is a dataflow workflow engine: nodes with typed ports,
linked output to input, recomputed only when their inputs change.

# Overview

A Graph holds Nodes. Each node has ordered input and output Ports, a
property map, and an output cache keyed by output port name. Linking an
output to an input makes the downstream node read the upstream node's
cache entry. Changes travel as dirty flags: a property edit, a new link,
or a changed output marks the node and everything downstream of it dirty,
and only dirty nodes run their Body again.

	g := nodeflow.NewGraph(nodeflow.WithLogger(logger))

	greet, _ := g.AddNode(nodeflow.NodeSpec{
	    Type:       "static_text",
	    Title:      "Greeting",
	    Outputs:    []nodeflow.PortSpec{{Name: "Text", Kind: nodeflow.KindString}},
	    Properties: map[string]any{"text": "hello"},
	    Body: nodeflow.BodyFunc(func(ec *nodeflow.ExecContext) (nodeflow.Outputs, error) {
	        return nodeflow.Outputs{"Text": ec.Props().String("text", "")}, nil
	    }),
	})

	res, err := nodeflow.NewSession(g).Run(ctx)

Ready-made node types live in the nodes subpackage.

# Recalculation Policies

Every node carries a Policy:
  - DirtyIfInputsChange (default): runs when marked dirty.
  - AlwaysDirty: runs on every workflow pass, and its descendants with it.
  - NeverDirty: runs once; with a populated cache it ignores edits and
    upstream changes until Reset.

# Execution

Node.Compute evaluates one node on demand, computing dirty upstream nodes
first. A cycle met this way faults the node with a CycleError naming the
chain of titles.

Session.ExecuteWorkflow runs a whole pass in the background: it selects
nodes by policy and dirty flag, adds every descendant of a selected node,
orders them topologically (an edge closing a cycle is logged and ignored),
executes them one at a time, and reports a Result to the callback exactly
once. Only one session runs per graph; a second request gets
ErrAlreadyRunning.

# Faults

A failing body never aborts a session. Its error is recorded on the node
(Node.Fault), the status becomes "Error: ..." and descendants that read
from it fault with a DependencyFaultError wrapping the original error.
Independent nodes keep running. Panics in a body are recovered into
PanicError.

# Asynchronous Nodes

A NodeSpec with Async set may start background work, return a
placeholder, and finish later with ExecContext.Complete. The node stays
processing until then; sessions wait for it, bounded by
Settings.AsyncTimeout. Node.Stop cancels the execution's context, marks the
node Stopped, and discards any completion that arrives afterwards.

# Observability

Structured logs use slog with session_id, node_id and node_title fields.
WithMetrics and WithTracing turn on OpenTelemetry instruments and spans
through the global providers; see the observability subpackage.
*/
package nodeflow

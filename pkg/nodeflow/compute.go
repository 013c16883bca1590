package nodeflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/randalmurphal/nodeflow/pkg/nodeflow/config"
	"github.com/randalmurphal/nodeflow/pkg/nodeflow/observability"
	"go.opentelemetry.io/otel/trace"
)

// runEnv carries per-run services through dependency resolution.
type runEnv struct {
	graph     *Graph
	logger    *slog.Logger
	sessionID string
	// scheduled runs rely on topological order instead of recursing into
	// upstream nodes.
	scheduled bool
}

func (g *Graph) onDemandEnv() *runEnv {
	return &runEnv{graph: g, logger: g.logger}
}

// Compute evaluates the node on demand, recursively computing any upstream
// node that is dirty, and returns a copy of its outputs. Faults are
// recorded on the node (see Fault) and yield empty outputs. An
// asynchronous node returns its placeholder and keeps processing until
// its body completes.
func (n *Node) Compute(ctx context.Context) Outputs {
	g := n.Graph()
	if g == nil {
		g = NewGraph()
	}
	return n.compute(ctx, g.onDemandEnv(), nil)
}

func (n *Node) compute(ctx context.Context, env *runEnv, path []*Node) Outputs {
	n.mu.Lock()
	if n.processing {
		out := copyMap(n.cache)
		n.mu.Unlock()
		return out
	}
	if len(n.cache) > 0 && (n.policy == NeverDirty || (n.policy != AlwaysDirty && !n.dirty)) {
		n.status = StatusCached
		out := copyMap(n.cache)
		n.mu.Unlock()
		n.notify()
		return out
	}
	n.run++
	gen := n.run
	n.processing = true
	n.processingDone = false
	n.fault = nil
	n.status = StatusProcessing
	n.idle = make(chan struct{})
	runCtx, cancel := context.WithCancel(ctx)
	n.cancel = cancel
	props := config.New(copyMap(n.props))
	title := n.title
	n.mu.Unlock()
	n.notify()

	logger := observability.EnrichLogger(env.logger, env.sessionID, n.id, title)
	spanCtx, span := env.graph.spans.StartNodeSpan(runCtx, title)

	ec := &ExecContext{
		Context: spanCtx,
		node:    n,
		props:   props,
		logger:  logger,
		gen:     gen,
		env:     env,
		span:    span,
		elapsed: observability.TimedOperation(),
	}

	path = append(path[:len(path):len(path)], n)
	inputs, linked, err := n.resolveInputs(ctx, env, path)
	if err != nil {
		ec.finish(nil, err)
		return Outputs{}
	}
	ec.inputs = inputs
	ec.linked = linked

	observability.LogNodeStart(logger, n.id)
	out, err := n.invoke(ec)
	if err != nil {
		var pe *PanicError
		if !errors.As(err, &pe) {
			err = &NodeError{NodeID: n.id, Op: "execute", Err: err}
		}
		ec.finish(nil, err)
		return Outputs{}
	}
	if !n.async {
		ec.finish(out, nil)
		return copyMap(out)
	}

	n.mu.RLock()
	stillRunning := n.processing && n.run == gen
	n.mu.RUnlock()
	if stillRunning {
		return copyMap(out)
	}
	return n.Cache()
}

func (n *Node) invoke(ec *ExecContext) (out Outputs, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{NodeID: n.id, Value: r, Stack: string(debug.Stack())}
		}
	}()
	return n.body.Execute(ec)
}

// resolveInputs makes sure every linked upstream node has produced a value
// and collects the input values.
func (n *Node) resolveInputs(ctx context.Context, env *runEnv, path []*Node) (map[string]any, map[string]bool, error) {
	values := make(map[string]any, len(n.inputs))
	linked := make(map[string]bool, len(n.inputs))
	for _, in := range n.inputs {
		up := in.upstream()
		if up == nil {
			values[in.name] = in.kind.Empty()
			continue
		}
		linked[in.name] = true
		if err := n.resolveUpstream(ctx, env, path, up.node); err != nil {
			return nil, nil, err
		}
		if v, ok := up.node.CachedValue(up.name); ok {
			values[in.name] = v
		} else {
			values[in.name] = in.kind.Empty()
		}
	}
	return values, linked, nil
}

func (n *Node) resolveUpstream(ctx context.Context, env *runEnv, path []*Node, up *Node) error {
	for i, p := range path {
		if p == up {
			chain := make([]string, 0, len(path)-i+1)
			for _, q := range path[i:] {
				chain = append(chain, q.Title())
			}
			chain = append(chain, up.Title())
			return &CycleError{Chain: chain}
		}
	}
	if !env.scheduled {
		up.compute(ctx, env, path)
	}
	if up.Processing() {
		start := time.Now()
		if err := up.waitIdle(ctx, env.graph.settings.InputTimeout); err != nil {
			if errors.Is(err, ErrDependencyTimeout) {
				return &DependencyTimeoutError{NodeID: n.id, Upstream: up.Title(), Waited: time.Since(start)}
			}
			return err
		}
	}
	if f := up.Fault(); f != nil {
		return &DependencyFaultError{NodeID: n.id, Upstream: up.Title(), Err: f}
	}
	return nil
}

// waitIdle blocks until the node leaves processing, the timeout elapses
// (ErrDependencyTimeout), or ctx is done.
func (n *Node) waitIdle(ctx context.Context, timeout time.Duration) error {
	n.mu.RLock()
	ch := n.idle
	busy := n.processing
	n.mu.RUnlock()
	if !busy || ch == nil {
		return nil
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ch:
		return nil
	case <-timer.C:
		return ErrDependencyTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ExecContext is handed to a Body for one execution. It embeds the run's
// context, which is cancelled when the node is stopped.
type ExecContext struct {
	context.Context

	node    *Node
	props   config.Config
	inputs  map[string]any
	linked  map[string]bool
	logger  *slog.Logger
	gen     uint64
	env     *runEnv
	span    trace.Span
	elapsed func() time.Duration

	// doneStatus replaces StatusComplete on success; guarded by node.mu.
	doneStatus string
}

// Node returns the executing node.
func (c *ExecContext) Node() *Node { return c.node }

// Props returns the node's properties as of the start of the execution.
func (c *ExecContext) Props() config.Config { return c.props }

// Logger returns a logger enriched with node_id, node_title and session_id.
func (c *ExecContext) Logger() *slog.Logger { return c.logger }

// Input returns the value read through the named input port. Unconnected
// inputs read as their kind's empty default.
func (c *ExecContext) Input(name string) any {
	return c.inputs[name]
}

// InputString returns the named input formatted as a string. nil reads as
// the empty string.
func (c *ExecContext) InputString(name string) string {
	switch v := c.inputs[name].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// Connected reports whether the named input port is linked.
func (c *ExecContext) Connected(name string) bool {
	return c.linked[name]
}

// Stopped reports whether the execution has been cancelled.
func (c *ExecContext) Stopped() bool {
	return c.Err() != nil
}

// SetStatus updates the node's status line while the execution is still
// current.
func (c *ExecContext) SetStatus(status string) {
	n := c.node
	n.mu.Lock()
	if n.run != c.gen || !n.processing {
		n.mu.Unlock()
		return
	}
	n.status = status
	n.mu.Unlock()
	n.notify()
}

// SetCompleteStatus sets the status shown after a successful completion
// of this execution, in place of StatusComplete.
func (c *ExecContext) SetCompleteStatus(status string) {
	c.node.mu.Lock()
	c.doneStatus = status
	c.node.mu.Unlock()
}

// Complete finishes an asynchronous execution. A non-nil result replaces
// the cache; a non-nil err is recorded as the node's fault. Completions
// arriving after Stop or after a newer execution started are discarded.
// Complete reports whether the completion was applied.
func (c *ExecContext) Complete(result Outputs, err error) bool {
	if err != nil {
		var ne *NodeError
		if !errors.As(err, &ne) {
			err = &NodeError{NodeID: c.node.id, Op: "complete", Err: err}
		}
	}
	return c.finish(result, err)
}

// finish applies the single completion transition shared by synchronous
// and asynchronous executions.
func (c *ExecContext) finish(result Outputs, err error) bool {
	n := c.node
	env := c.env
	g := env.graph

	n.mu.Lock()
	if n.run != c.gen || !n.processing {
		n.mu.Unlock()
		c.logger.Debug("discarding stale completion")
		return false
	}
	changed := false
	if err == nil || result != nil {
		next := copyMap(result)
		if next == nil {
			next = Outputs{}
		}
		changed = !outputsEqual(n.cache, next)
		n.cache = next
	}
	if err != nil {
		n.fault = err
		n.status = errorStatus(err, g.settings.StatusMaxLen)
	} else {
		n.dirty = false
		n.status = StatusComplete
		if c.doneStatus != "" {
			n.status = c.doneStatus
		}
	}
	n.processing = false
	n.processingDone = true
	propagate := changed && n.policy != NeverDirty
	cancel := n.cancel
	n.cancel = nil
	n.closeIdleLocked()
	n.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	elapsed := c.elapsed()
	g.metrics.RecordNodeExecution(c.Context, n.id, elapsed, err)
	g.spans.EndSpanWithError(c.span, err)
	if err != nil {
		observability.LogNodeError(c.logger, n.id, err)
	} else {
		observability.LogNodeComplete(c.logger, n.id, elapsed)
	}

	n.notify()
	if propagate {
		for _, d := range n.downstream() {
			d.MarkDirty()
		}
	}
	return true
}

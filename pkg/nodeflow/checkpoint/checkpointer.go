package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/randalmurphal/nodeflow/pkg/nodeflow"
	"github.com/randalmurphal/nodeflow/pkg/nodeflow/observability"
)

// Checkpointer saves and restores the nodes of a graph through a Store.
type Checkpointer struct {
	store     Store
	codec     Codec
	compress  bool
	withCache bool
	logger    *slog.Logger
}

// Option configures a Checkpointer.
type Option func(*Checkpointer)

// WithCodec sets the snapshot codec. Default: JSONCodec.
func WithCodec(c Codec) Option {
	return func(cp *Checkpointer) { cp.codec = c }
}

// WithCompression enables zstd compression of encoded snapshots.
func WithCompression(enabled bool) Option {
	return func(cp *Checkpointer) { cp.compress = enabled }
}

// WithCache controls whether node output caches are persisted.
// Default: true.
func WithCache(enabled bool) Option {
	return func(cp *Checkpointer) { cp.withCache = enabled }
}

// WithLogger sets the logger used for snapshot events.
// Default: the graph's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(cp *Checkpointer) { cp.logger = logger }
}

// New creates a Checkpointer on store.
func New(store Store, opts ...Option) *Checkpointer {
	cp := &Checkpointer{
		store:     store,
		codec:     JSONCodec{},
		withCache: true,
	}
	for _, opt := range opts {
		opt(cp)
	}
	return cp
}

// Store returns the underlying store.
func (cp *Checkpointer) Store() Store { return cp.store }

func (cp *Checkpointer) loggerFor(g *nodeflow.Graph) *slog.Logger {
	if cp.logger != nil {
		return cp.logger
	}
	return g.Logger()
}

// SaveNode persists a single node of g.
func (cp *Checkpointer) SaveNode(ctx context.Context, workflowID string, g *nodeflow.Graph, n *nodeflow.Node) error {
	logger := cp.loggerFor(g)
	data, err := Encode(cp.codec, NewSnapshot(workflowID, n, cp.withCache), cp.compress)
	if err != nil {
		observability.LogSnapshotError(logger, workflowID, n.ID(), "encode", err)
		return fmt.Errorf("snapshot %s: %w", n.ID(), err)
	}
	if err := cp.store.Save(workflowID, n.ID(), data); err != nil {
		observability.LogSnapshotError(logger, workflowID, n.ID(), "save", err)
		return fmt.Errorf("snapshot %s: %w", n.ID(), err)
	}
	observability.LogSnapshot(logger, workflowID, n.ID(), len(data))
	g.Metrics().RecordSnapshot(ctx, n.ID(), int64(len(data)))
	return nil
}

// SaveGraph persists every node of g. Snapshots of nodes no longer in
// the graph are removed. Nodes that fail to save do not stop the others;
// their errors are joined.
func (cp *Checkpointer) SaveGraph(ctx context.Context, workflowID string, g *nodeflow.Graph) error {
	var errs []error
	present := make(map[string]bool)
	for _, n := range g.Nodes() {
		present[n.ID()] = true
		if err := cp.SaveNode(ctx, workflowID, g, n); err != nil {
			errs = append(errs, err)
		}
	}

	logger := cp.loggerFor(g)
	infos, err := cp.store.List(workflowID)
	if err != nil {
		observability.LogSnapshotError(logger, workflowID, "", "list", err)
		errs = append(errs, fmt.Errorf("list snapshots: %w", err))
	}
	for _, info := range infos {
		if present[info.NodeID] {
			continue
		}
		if err := cp.store.Delete(workflowID, info.NodeID); err != nil {
			observability.LogSnapshotError(logger, workflowID, info.NodeID, "delete", err)
			errs = append(errs, fmt.Errorf("prune %s: %w", info.NodeID, err))
		}
	}
	return errors.Join(errs...)
}

// Load returns the decoded snapshot of a node.
func (cp *Checkpointer) Load(workflowID, nodeID string) (*Snapshot, error) {
	data, err := cp.store.Load(workflowID, nodeID)
	if err != nil {
		return nil, err
	}
	return Decode(cp.codec, data)
}

// Snapshots returns every snapshot of a workflow in save order.
func (cp *Checkpointer) Snapshots(workflowID string) ([]*Snapshot, error) {
	infos, err := cp.store.List(workflowID)
	if err != nil {
		return nil, err
	}
	out := make([]*Snapshot, 0, len(infos))
	for _, info := range infos {
		s, err := cp.Load(workflowID, info.NodeID)
		if err != nil {
			return nil, fmt.Errorf("snapshot %s: %w", info.NodeID, err)
		}
		out = append(out, s)
	}
	return out, nil
}

// RestoreGraph applies saved snapshots to the matching nodes of g and
// returns how many were restored. Nodes without a snapshot are left
// alone. A snapshot whose node type differs from the node's is skipped
// with an error. Restoring while a session runs is refused.
func (cp *Checkpointer) RestoreGraph(ctx context.Context, workflowID string, g *nodeflow.Graph) (int, error) {
	if g.Running() {
		return 0, nodeflow.ErrAlreadyRunning
	}
	logger := cp.loggerFor(g)

	var errs []error
	restored := 0
	for _, n := range g.Nodes() {
		if err := ctx.Err(); err != nil {
			return restored, err
		}
		snap, err := cp.Load(workflowID, n.ID())
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err == nil && snap.Type != n.Type() {
			err = fmt.Errorf("node type %q does not match snapshot type %q", n.Type(), snap.Type)
		}
		var st nodeflow.NodeState
		if err == nil {
			st, err = snap.State()
		}
		if err != nil {
			observability.LogSnapshotError(logger, workflowID, n.ID(), "restore", err)
			errs = append(errs, fmt.Errorf("restore %s: %w", n.ID(), err))
			continue
		}
		if snap.Title != "" {
			n.SetTitle(snap.Title)
		}
		n.Restore(st)
		restored++
	}
	return restored, errors.Join(errs...)
}

// AutoSave returns a session completion callback that saves g after each
// run and then calls next, if non-nil. Save failures are logged; next is
// called regardless.
func (cp *Checkpointer) AutoSave(workflowID string, g *nodeflow.Graph, next func(nodeflow.Result)) func(nodeflow.Result) {
	return func(res nodeflow.Result) {
		if err := cp.SaveGraph(context.Background(), workflowID, g); err != nil {
			cp.loggerFor(g).Warn("autosave failed",
				slog.String("workflow_id", workflowID),
				slog.String("session_id", res.SessionID),
				slog.String("error", err.Error()),
			)
		}
		if next != nil {
			next(res)
		}
	}
}

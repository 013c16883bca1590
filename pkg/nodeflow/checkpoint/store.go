// Package checkpoint persists node state so a workflow can be reopened
// without recomputing nodes whose cached outputs are still valid.
package checkpoint

import (
	"errors"
	"time"
)

// Store persists encoded node snapshots keyed by (workflowID, nodeID).
// Implementations must be safe for concurrent use.
type Store interface {
	// Save stores a snapshot for a node of a workflow.
	// Overwrites if a snapshot for (workflowID, nodeID) already exists.
	Save(workflowID, nodeID string, data []byte) error

	// Load retrieves a snapshot.
	// Returns ErrNotFound if the snapshot doesn't exist.
	Load(workflowID, nodeID string) ([]byte, error)

	// List returns all snapshots of a workflow, ordered by sequence.
	// Returns empty slice (not error) if the workflow has no snapshots.
	List(workflowID string) ([]Info, error)

	// Delete removes a specific snapshot.
	// Returns nil if the snapshot doesn't exist.
	Delete(workflowID, nodeID string) error

	// DeleteWorkflow removes all snapshots of a workflow.
	DeleteWorkflow(workflowID string) error

	// Close releases any resources (connections, files).
	Close() error
}

// Info provides metadata without loading the snapshot.
type Info struct {
	WorkflowID string
	NodeID     string
	Sequence   int
	Timestamp  time.Time
	Size       int64
}

// Sentinel errors for checkpoint operations.
var (
	// ErrNotFound indicates a snapshot doesn't exist.
	ErrNotFound = errors.New("snapshot not found")

	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("checkpoint store closed")

	// ErrUnsupportedVersion indicates a snapshot written by a newer format.
	ErrUnsupportedVersion = errors.New("unsupported snapshot version")
)

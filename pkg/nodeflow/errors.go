package nodeflow

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sentinel errors for graph editing.
var (
	// ErrConnectionRejected indicates a port pair cannot be linked.
	ErrConnectionRejected = errors.New("connection rejected")

	// ErrNodeNotFound indicates a lookup referenced a node that is not in the graph.
	ErrNodeNotFound = errors.New("node not found")

	// ErrDuplicateNode indicates a node with the same ID is already in the graph.
	ErrDuplicateNode = errors.New("duplicate node ID")

	// ErrPortNotFound indicates a lookup referenced a port the node does not have.
	ErrPortNotFound = errors.New("port not found")
)

// Sentinel errors for execution.
var (
	// ErrCyclicDependency indicates on-demand evaluation revisited a node
	// already on the resolution path.
	ErrCyclicDependency = errors.New("cyclic dependency")

	// ErrDependencyTimeout indicates an upstream node stayed in processing
	// longer than the configured wait.
	ErrDependencyTimeout = errors.New("dependency timeout")

	// ErrDependencyFault indicates an upstream node ended in a fault.
	ErrDependencyFault = errors.New("dependency fault")

	// ErrAlreadyRunning indicates a workflow session is already active.
	ErrAlreadyRunning = errors.New("workflow already running")
)

// ConnectionError describes why a link between two ports was refused.
type ConnectionError struct {
	// From is the port Connect was called on.
	From string
	// To is the port passed to Connect.
	To string
	// Reason is a short human-readable explanation.
	Reason string
}

// Error implements the error interface.
func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect %s -> %s: %s", e.From, e.To, e.Reason)
}

// Unwrap returns ErrConnectionRejected for errors.Is support.
func (e *ConnectionError) Unwrap() error {
	return ErrConnectionRejected
}

// CycleError reports the chain of node titles that closed a cycle during
// on-demand dependency resolution.
type CycleError struct {
	// Chain holds node titles in resolution order; the last entry repeats
	// an earlier one.
	Chain []string
}

// Error implements the error interface.
func (e *CycleError) Error() string {
	return "cyclic dependency: " + strings.Join(e.Chain, " -> ")
}

// Unwrap returns ErrCyclicDependency for errors.Is support.
func (e *CycleError) Unwrap() error {
	return ErrCyclicDependency
}

// DependencyTimeoutError reports an upstream node that did not leave
// processing within the wait budget.
type DependencyTimeoutError struct {
	// NodeID is the node that was waiting.
	NodeID string
	// Upstream is the title of the stalled node.
	Upstream string
	// Waited is how long the wait lasted.
	Waited time.Duration
}

// Error implements the error interface.
func (e *DependencyTimeoutError) Error() string {
	return fmt.Sprintf("timed out after %s waiting for %q", e.Waited, e.Upstream)
}

// Unwrap returns ErrDependencyTimeout for errors.Is support.
func (e *DependencyTimeoutError) Unwrap() error {
	return ErrDependencyTimeout
}

// DependencyFaultError reports that an upstream node ended in a fault.
// errors.Is matches ErrDependencyFault; errors.Unwrap yields the upstream
// fault so the chain can be followed to its origin.
type DependencyFaultError struct {
	// NodeID is the node whose input could not be resolved.
	NodeID string
	// Upstream is the title of the faulted node.
	Upstream string
	// Err is the upstream fault.
	Err error
}

// Error implements the error interface.
func (e *DependencyFaultError) Error() string {
	return fmt.Sprintf("dependency %q failed: %v", e.Upstream, e.Err)
}

// Is reports whether target is ErrDependencyFault.
func (e *DependencyFaultError) Is(target error) bool {
	return target == ErrDependencyFault
}

// Unwrap returns the upstream fault.
func (e *DependencyFaultError) Unwrap() error {
	return e.Err
}

// NodeError wraps an error returned by a node's execution body.
type NodeError struct {
	// NodeID is the identifier of the node that failed.
	NodeID string
	// Op is the operation that failed ("execute", "complete").
	Op string
	// Err is the underlying error from the body.
	Err error
}

// Error implements the error interface.
func (e *NodeError) Error() string {
	return fmt.Sprintf("node %s: %s: %v", e.NodeID, e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *NodeError) Unwrap() error {
	return e.Err
}

// PanicError captures a panic recovered from an execution body.
type PanicError struct {
	// NodeID is the identifier of the node that panicked.
	NodeID string
	// Value is the value passed to panic().
	Value any
	// Stack is the stack trace at the point of panic.
	Stack string
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("node %s panicked: %v", e.NodeID, e.Value)
}

// errorStatus renders a fault as a short status line.
func errorStatus(err error, max int) string {
	msg := err.Error()
	if r := []rune(msg); max > 0 && len(r) > max {
		msg = string(r[:max])
	}
	return "Error: " + msg + "..."
}

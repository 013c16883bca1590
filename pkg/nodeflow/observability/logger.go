// Package observability provides structured logging, metrics, and tracing
// for nodeflow sessions and node executions.
//
// Logging uses slog; metrics and tracing use OpenTelemetry with the global
// providers. Metrics and tracing are opt-in and have no-op implementations
// when disabled. Every log helper accepts a nil logger and does nothing.
package observability

import (
	"log/slog"
	"time"
)

// EnrichLogger returns a logger carrying session and node identity. An
// empty sessionID is left out, as for on-demand computes.
//
//	nodeLog := EnrichLogger(logger, "5d1c...", "a31f...", "Join")
//	nodeLog.Info("joining") // includes session_id, node_id, node_title
func EnrichLogger(logger *slog.Logger, sessionID, nodeID, title string) *slog.Logger {
	if logger == nil {
		return nil
	}
	logger = logger.With(
		slog.String("node_id", nodeID),
		slog.String("node_title", title),
	)
	if sessionID != "" {
		logger = logger.With(slog.String("session_id", sessionID))
	}
	return logger
}

// LogSessionStart logs the start of a workflow session.
func LogSessionStart(logger *slog.Logger, sessionID string) {
	if logger == nil {
		return
	}
	logger.Info("workflow session starting",
		slog.String("session_id", sessionID),
	)
}

// LogSessionComplete logs a successful workflow session.
func LogSessionComplete(logger *slog.Logger, sessionID string, duration time.Duration, processed int) {
	if logger == nil {
		return
	}
	logger.Info("workflow session completed",
		slog.String("session_id", sessionID),
		slog.Float64("duration_ms", millis(duration)),
		slog.Int("nodes_processed", processed),
	)
}

// LogSessionError logs a workflow session that ended unsuccessfully.
func LogSessionError(logger *slog.Logger, sessionID string, err error, duration time.Duration) {
	if logger == nil {
		return
	}
	logger.Error("workflow session failed",
		slog.String("session_id", sessionID),
		slog.String("error", err.Error()),
		slog.Float64("duration_ms", millis(duration)),
	)
}

// LogNodeStart logs the start of a node execution.
func LogNodeStart(logger *slog.Logger, nodeID string) {
	if logger == nil {
		return
	}
	logger.Debug("node starting",
		slog.String("node_id", nodeID),
	)
}

// LogNodeComplete logs a successful node execution.
func LogNodeComplete(logger *slog.Logger, nodeID string, duration time.Duration) {
	if logger == nil {
		return
	}
	logger.Debug("node completed",
		slog.String("node_id", nodeID),
		slog.Float64("duration_ms", millis(duration)),
	)
}

// LogNodeError logs a node fault. Faults stay on the node, so this is a
// warning rather than an error.
func LogNodeError(logger *slog.Logger, nodeID string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("node faulted",
		slog.String("node_id", nodeID),
		slog.String("error", err.Error()),
	)
}

// LogCycleEdgeDropped logs a dependency edge ignored while ordering a
// cyclic workflow.
func LogCycleEdgeDropped(logger *slog.Logger, from, to string) {
	if logger == nil {
		return
	}
	logger.Warn("dependency cycle detected, ignoring edge",
		slog.String("from", from),
		slog.String("to", to),
	)
}

// LogSnapshot logs a persisted node snapshot.
func LogSnapshot(logger *slog.Logger, workflowID, nodeID string, sizeBytes int) {
	if logger == nil {
		return
	}
	logger.Debug("snapshot saved",
		slog.String("workflow_id", workflowID),
		slog.String("node_id", nodeID),
		slog.Int("size_bytes", sizeBytes),
	)
}

// LogSnapshotError logs a snapshot failure.
func LogSnapshotError(logger *slog.Logger, workflowID, nodeID, op string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("snapshot failed",
		slog.String("workflow_id", workflowID),
		slog.String("node_id", nodeID),
		slog.String("operation", op),
		slog.String("error", err.Error()),
	)
}

// TimedOperation returns a function reporting the time elapsed since
// TimedOperation was called.
func TimedOperation() func() time.Duration {
	start := time.Now()
	return func() time.Duration {
		return time.Since(start)
	}
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

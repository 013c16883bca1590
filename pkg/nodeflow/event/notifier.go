package event

import (
	"context"
	"log/slog"

	"github.com/randalmurphal/nodeflow/pkg/nodeflow"
)

const source = "nodeflow"

// NewNotifier returns a nodeflow.Notifier publishing a NodeChanged event
// for every notification. Publish errors are logged and dropped; use a
// non-blocking bus so slow subscribers never stall execution.
func NewNotifier(bus Bus, logger *slog.Logger) nodeflow.Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return nodeflow.NotifierFunc(func(n *nodeflow.Node) {
		payload := NodeChanged{
			NodeID:     n.ID(),
			Title:      n.Title(),
			Status:     n.Status(),
			Dirty:      n.Dirty(),
			Processing: n.Processing(),
		}
		if f := n.Fault(); f != nil {
			payload.Fault = f.Error()
		}
		if err := bus.Publish(context.Background(), New(TypeNodeChanged, source, "", payload)); err != nil {
			logger.Debug("node change not published",
				slog.String("node_id", payload.NodeID),
				slog.String("error", err.Error()),
			)
		}
	})
}

// SessionReporter returns a completion callback for
// nodeflow.Session.ExecuteWorkflow that publishes a SessionCompleted event
// and then calls next, if non-nil.
func SessionReporter(bus Bus, next func(nodeflow.Result)) func(nodeflow.Result) {
	return func(res nodeflow.Result) {
		payload := SessionCompleted{
			SessionID: res.SessionID,
			Success:   res.Success,
			Message:   res.Message,
			Processed: res.Processed,
			Running:   res.Running,
			Faulted:   res.Faulted,
			Duration:  res.Duration,
		}
		_ = bus.Publish(context.Background(), New(TypeSessionCompleted, source, res.SessionID, payload))
		if next != nil {
			next(res)
		}
	}
}

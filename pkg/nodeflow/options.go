package nodeflow

import (
	"log/slog"
	"time"

	"github.com/randalmurphal/nodeflow/pkg/nodeflow/config"
	"github.com/randalmurphal/nodeflow/pkg/nodeflow/observability"
)

// Default wait budgets and status formatting.
const (
	DefaultInputTimeout = 30 * time.Second
	DefaultAsyncTimeout = time.Hour
	DefaultStatusMaxLen = 20
)

// Settings tunes execution behaviour for a graph.
type Settings struct {
	// InputTimeout bounds how long an input read waits for an upstream
	// node that is still processing.
	InputTimeout time.Duration
	// AsyncTimeout bounds how long a workflow session waits for an
	// asynchronous node to complete.
	AsyncTimeout time.Duration
	// StatusMaxLen is how many characters of a fault message are kept in
	// the node status line.
	StatusMaxLen int
}

// DefaultSettings returns the default execution settings.
func DefaultSettings() Settings {
	return Settings{
		InputTimeout: DefaultInputTimeout,
		AsyncTimeout: DefaultAsyncTimeout,
		StatusMaxLen: DefaultStatusMaxLen,
	}
}

// SettingsFromConfig reads settings from a config section. Recognised keys
// are input_timeout, async_timeout and status_max_len; anything missing
// keeps its default.
func SettingsFromConfig(cfg config.Config) Settings {
	d := DefaultSettings()
	return Settings{
		InputTimeout: cfg.Duration("input_timeout", d.InputTimeout),
		AsyncTimeout: cfg.Duration("async_timeout", d.AsyncTimeout),
		StatusMaxLen: cfg.Int("status_max_len", d.StatusMaxLen),
	}
}

// Option configures a Graph.
type Option func(*Graph)

// WithLogger sets the logger used for engine diagnostics and structured
// lifecycle logs. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(g *Graph) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithSettings replaces the execution settings. Zero fields keep their
// defaults.
func WithSettings(s Settings) Option {
	return func(g *Graph) {
		if s.InputTimeout > 0 {
			g.settings.InputTimeout = s.InputTimeout
		}
		if s.AsyncTimeout > 0 {
			g.settings.AsyncTimeout = s.AsyncTimeout
		}
		if s.StatusMaxLen > 0 {
			g.settings.StatusMaxLen = s.StatusMaxLen
		}
	}
}

// WithMetrics enables OpenTelemetry metrics using the global meter provider.
// Default: disabled.
func WithMetrics(enabled bool) Option {
	return func(g *Graph) {
		if enabled {
			g.metrics = observability.NewMetricsRecorder()
		} else {
			g.metrics = observability.NoopMetrics{}
		}
	}
}

// WithTracing enables OpenTelemetry spans for sessions and node
// executions using the global tracer provider. Default: disabled.
func WithTracing(enabled bool) Option {
	return func(g *Graph) {
		if enabled {
			g.spans = observability.NewSpanManager()
		} else {
			g.spans = observability.NoopSpanManager{}
		}
	}
}

// WithNotifier registers the collaborator told about every node status or
// cache change.
func WithNotifier(n Notifier) Option {
	return func(g *Graph) {
		g.notifier = n
	}
}

// Notifier is told when a node's visible state changes. Implementations
// must not block and must not call back into the graph while holding
// their own locks.
type Notifier interface {
	NodeChanged(n *Node)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(n *Node)

// NodeChanged calls f(n).
func (f NotifierFunc) NodeChanged(n *Node) {
	f(n)
}

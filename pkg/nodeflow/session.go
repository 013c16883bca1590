package nodeflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/randalmurphal/nodeflow/pkg/nodeflow/observability"
)

// Result is the outcome of one workflow session.
type Result struct {
	// SessionID identifies the session in logs and traces.
	SessionID string
	// Success is false when a node faulted or the session was cancelled.
	Success bool
	// Message is a one-line summary for the user.
	Message string
	// Processed is the number of nodes executed.
	Processed int
	// Running is the number of nodes still processing when the session
	// finished.
	Running int
	// Faulted lists the titles of nodes that ended in a fault.
	Faulted []string
	// Plan is the schedule that was executed. nil when the session failed
	// before scheduling.
	Plan *Plan
	// Duration is the wall time of the session.
	Duration time.Duration
}

// Session executes workflow passes over a graph. At most one session runs
// per graph at a time.
type Session struct {
	graph    *Graph
	dispatch func(func())

	mu   sync.Mutex
	done chan struct{}
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithDispatcher sets how the completion callback is delivered, for
// example by posting it to a UI event loop. Default: called directly on
// the session goroutine.
func WithDispatcher(dispatch func(func())) SessionOption {
	return func(s *Session) {
		if dispatch != nil {
			s.dispatch = dispatch
		}
	}
}

// NewSession creates a session runner for g.
func NewSession(g *Graph, opts ...SessionOption) *Session {
	s := &Session{
		graph:    g,
		dispatch: func(f func()) { f() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ExecuteWorkflow starts a workflow pass on a background goroutine and
// returns immediately. onComplete is invoked exactly once with the result.
// ErrAlreadyRunning is returned, without touching any state, if a session
// is already active on the graph.
func (s *Session) ExecuteWorkflow(ctx context.Context, onComplete func(Result)) error {
	if !s.graph.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	done := make(chan struct{})
	s.mu.Lock()
	s.done = done
	s.mu.Unlock()

	go func() {
		res := s.execute(ctx)
		s.graph.running.Store(false)
		close(done)
		if onComplete != nil {
			s.dispatch(func() { onComplete(res) })
		}
	}()
	return nil
}

// Run executes a workflow pass on the calling goroutine.
func (s *Session) Run(ctx context.Context) (Result, error) {
	if !s.graph.running.CompareAndSwap(false, true) {
		return Result{}, ErrAlreadyRunning
	}
	defer s.graph.running.Store(false)
	return s.execute(ctx), nil
}

// Wait blocks until the session started by ExecuteWorkflow has finished.
func (s *Session) Wait() {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (s *Session) execute(ctx context.Context) (res Result) {
	g := s.graph
	sessionID := uuid.New().String()
	elapsed := observability.TimedOperation()
	logger := g.logger.With(slog.String("session_id", sessionID))

	observability.LogSessionStart(logger, sessionID)
	ctx, span := g.spans.StartSessionSpan(ctx, sessionID)

	defer func() {
		if r := recover(); r != nil {
			res = Result{Success: false, Message: fmt.Sprintf("workflow execution failed: %v", r)}
		}
		res.SessionID = sessionID
		res.Duration = elapsed()
		g.metrics.RecordSessionRun(ctx, res.Success, res.Duration)
		var runErr error
		if !res.Success {
			runErr = errors.New(res.Message)
			observability.LogSessionError(logger, sessionID, runErr, res.Duration)
		} else {
			observability.LogSessionComplete(logger, sessionID, res.Duration, res.Processed)
		}
		g.spans.EndSpanWithError(span, runErr)
	}()

	for _, n := range g.Nodes() {
		if n.resetStale() {
			logger.Debug("reset stale processing flag", slog.String("node_id", n.ID()))
		}
	}

	plan := g.Schedule()
	plan.mark(g.Nodes())
	res.Plan = plan
	if len(plan.Order) == 0 {
		res.Success = true
		res.Message = "workflow up to date"
		return res
	}

	env := &runEnv{graph: g, logger: g.logger, sessionID: sessionID, scheduled: true}
	for _, n := range plan.Order {
		if err := ctx.Err(); err != nil {
			res.Message = fmt.Sprintf("workflow cancelled after %d nodes: %v", res.Processed, err)
			return res
		}
		if n.Processing() {
			continue
		}
		n.compute(ctx, env, nil)
		res.Processed++
		if n.async && n.Processing() {
			if err := n.waitIdle(ctx, g.settings.AsyncTimeout); err != nil {
				logger.Warn("async node did not complete",
					slog.String("node_id", n.ID()),
					slog.String("node_title", n.Title()),
					slog.String("error", err.Error()),
				)
			}
		}
	}

	for _, n := range plan.Order {
		if n.Fault() != nil {
			res.Faulted = append(res.Faulted, n.Title())
		}
	}
	res.Running = len(g.ProcessingNodes())

	switch {
	case len(res.Faulted) > 0:
		res.Message = fmt.Sprintf("workflow completed with %d faulted nodes: %s",
			len(res.Faulted), strings.Join(res.Faulted, ", "))
	case res.Running > 0:
		res.Success = true
		res.Message = fmt.Sprintf("workflow partially complete, %d nodes still running", res.Running)
	default:
		res.Success = true
		res.Message = fmt.Sprintf("workflow executed successfully (%d nodes processed)", res.Processed)
	}
	return res
}

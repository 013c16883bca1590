package nodeflow

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// captureHandler records log lines for assertions.
type captureHandler struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (h *captureHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *captureHandler) Handle(_ context.Context, r slog.Record) error {
	data := map[string]any{"level": r.Level.String(), "msg": r.Message}
	r.Attrs(func(a slog.Attr) bool {
		data[a.Key] = a.Value.Any()
		return true
	})
	h.mu.Lock()
	defer h.mu.Unlock()
	return json.NewEncoder(&h.buf).Encode(data)
}

func (h *captureHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *captureHandler) WithGroup(string) slog.Handler      { return h }

func (h *captureHandler) contains(msg string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return strings.Contains(h.buf.String(), msg)
}

func newTestGraph(t *testing.T, opts ...Option) (*Graph, *captureHandler) {
	t.Helper()
	h := &captureHandler{}
	opts = append([]Option{WithLogger(slog.New(h))}, opts...)
	return NewGraph(opts...), h
}

// counter counts body invocations.
type counter struct{ n atomic.Int32 }

func (c *counter) inc()       { c.n.Add(1) }
func (c *counter) get() int32 { return c.n.Load() }

// addSource adds a node with one string output "Text" taken from the
// "text" property.
func addSource(t *testing.T, g *Graph, title string, policy Policy, calls *counter) *Node {
	t.Helper()
	n, err := g.AddNode(NodeSpec{
		Type:       "source",
		Title:      title,
		Outputs:    []PortSpec{{Name: "Text", Kind: KindString}},
		Properties: map[string]any{"text": title},
		Policy:     policy,
		Body: BodyFunc(func(ec *ExecContext) (Outputs, error) {
			if calls != nil {
				calls.inc()
			}
			return Outputs{"Text": ec.Props().String("text", "")}, nil
		}),
	})
	require.NoError(t, err)
	return n
}

// addRelay adds a node copying input "In" to output "Out".
func addRelay(t *testing.T, g *Graph, title string, policy Policy, calls *counter) *Node {
	t.Helper()
	n, err := g.AddNode(NodeSpec{
		Type:    "relay",
		Title:   title,
		Inputs:  []PortSpec{{Name: "In", Kind: KindString}},
		Outputs: []PortSpec{{Name: "Out", Kind: KindString}},
		Policy:  policy,
		Body: BodyFunc(func(ec *ExecContext) (Outputs, error) {
			if calls != nil {
				calls.inc()
			}
			return Outputs{"Out": ec.InputString("In")}, nil
		}),
	})
	require.NoError(t, err)
	return n
}

// asyncHandle lets a test finish an asynchronous execution.
type asyncHandle struct {
	mu  sync.Mutex
	ecs []*ExecContext
}

func (h *asyncHandle) last() *ExecContext {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.ecs) == 0 {
		return nil
	}
	return h.ecs[len(h.ecs)-1]
}

// addAsync adds an asynchronous node whose executions are parked in the
// returned handle until the test completes them.
func addAsync(t *testing.T, g *Graph, title string) (*Node, *asyncHandle) {
	t.Helper()
	h := &asyncHandle{}
	n, err := g.AddNode(NodeSpec{
		Type:    "async",
		Title:   title,
		Inputs:  []PortSpec{{Name: "In", Kind: KindString}},
		Outputs: []PortSpec{{Name: "Out", Kind: KindString}},
		Async:   true,
		Body: BodyFunc(func(ec *ExecContext) (Outputs, error) {
			h.mu.Lock()
			h.ecs = append(h.ecs, ec)
			h.mu.Unlock()
			return Outputs{"Out": "pending"}, nil
		}),
	})
	require.NoError(t, err)
	return n, h
}

func connect(t *testing.T, g *Graph, from *Node, out string, to *Node, in string) {
	t.Helper()
	require.NoError(t, g.Connect(from.Output(out), to.Input(in)))
}

func runSession(t *testing.T, g *Graph) Result {
	t.Helper()
	res, err := NewSession(g).Run(context.Background())
	require.NoError(t, err)
	return res
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond)
}

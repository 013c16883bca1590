package nodeflow

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeReturnsCacheWhenClean(t *testing.T) {
	g, _ := newTestGraph(t)
	calls := &counter{}
	a := addSource(t, g, "A", DirtyIfInputsChange, calls)

	out := a.Compute(t.Context())
	assert.Equal(t, Outputs{"Text": "A"}, out)
	assert.Equal(t, StatusComplete, a.Status())
	assert.True(t, a.ProcessingDone())

	out = a.Compute(t.Context())
	assert.Equal(t, Outputs{"Text": "A"}, out)
	assert.Equal(t, int32(1), calls.get(), "clean node must not re-run its body")
	assert.Equal(t, StatusCached, a.Status())
}

func TestAlwaysDirtyRecomputes(t *testing.T) {
	g, _ := newTestGraph(t)
	calls := &counter{}
	a := addSource(t, g, "A", AlwaysDirty, calls)

	a.Compute(t.Context())
	a.Compute(t.Context())
	assert.Equal(t, int32(2), calls.get())
}

func TestComputeResolvesUpstreamOnDemand(t *testing.T) {
	g, _ := newTestGraph(t)
	aCalls, bCalls := &counter{}, &counter{}
	a := addSource(t, g, "A", DirtyIfInputsChange, aCalls)
	b := addRelay(t, g, "B", DirtyIfInputsChange, bCalls)
	connect(t, g, a, "Text", b, "In")

	out := b.Compute(t.Context())
	assert.Equal(t, Outputs{"Out": "A"}, out)
	assert.Equal(t, int32(1), aCalls.get())
	assert.False(t, a.Dirty())
}

func TestChangePropagation(t *testing.T) {
	g, _ := newTestGraph(t)
	a := addSource(t, g, "A", DirtyIfInputsChange, nil)
	b := addRelay(t, g, "B", DirtyIfInputsChange, nil)
	connect(t, g, a, "Text", b, "In")
	runSession(t, g)
	require.False(t, b.Dirty())

	t.Run("unchanged output leaves downstream clean", func(t *testing.T) {
		a.mu.Lock()
		a.dirty = true
		a.mu.Unlock()
		a.Compute(t.Context())
		assert.False(t, b.Dirty())
	})

	t.Run("changed output marks downstream dirty", func(t *testing.T) {
		a.mu.Lock()
		a.props["text"] = "A2"
		a.dirty = true
		a.mu.Unlock()
		a.Compute(t.Context())
		assert.True(t, b.Dirty())
		assert.Equal(t, Outputs{"Out": "A2"}, b.Compute(t.Context()))
	})
}

func TestNeverDirtyDoesNotPropagateChanges(t *testing.T) {
	g, _ := newTestGraph(t)
	a := addSource(t, g, "A", NeverDirty, nil)
	b := addRelay(t, g, "B", DirtyIfInputsChange, nil)
	connect(t, g, a, "Text", b, "In")

	a.Compute(t.Context())
	b.Compute(t.Context())
	require.False(t, b.Dirty())

	a.Reset()
	assert.True(t, b.Dirty(), "reset marks descendants dirty through MarkDirty")
	b.Compute(t.Context())

	a.mu.Lock()
	a.props["text"] = "other"
	a.dirty = true
	a.cache = Outputs{}
	a.mu.Unlock()
	a.Compute(t.Context())
	assert.False(t, b.Dirty(), "never-dirty node must not mark descendants on change")
}

func TestSyncFaultIsRecorded(t *testing.T) {
	g, _ := newTestGraph(t)
	n, err := g.AddNode(NodeSpec{
		Type:    "fail",
		Title:   "Fail",
		Outputs: []PortSpec{{Name: "Out"}},
		Body: BodyFunc(func(*ExecContext) (Outputs, error) {
			return nil, errors.New("regex compile failed: missing closing paren")
		}),
	})
	require.NoError(t, err)

	out := n.Compute(t.Context())
	assert.Empty(t, out)
	assert.False(t, n.Processing())
	assert.True(t, n.Dirty())

	var ne *NodeError
	require.ErrorAs(t, n.Fault(), &ne)
	assert.Equal(t, n.ID(), ne.NodeID)
	assert.Equal(t, "execute", ne.Op)

	status := n.Status()
	assert.True(t, strings.HasPrefix(status, "Error: "))
	assert.True(t, strings.HasSuffix(status, "..."))
	assert.Equal(t, len("Error: ")+DefaultStatusMaxLen+len("..."), len(status))
}

func TestPanicBecomesFault(t *testing.T) {
	g, _ := newTestGraph(t)
	n, err := g.AddNode(NodeSpec{
		Type: "panic",
		Body: BodyFunc(func(*ExecContext) (Outputs, error) {
			panic("boom")
		}),
	})
	require.NoError(t, err)

	assert.NotPanics(t, func() { n.Compute(t.Context()) })
	var pe *PanicError
	require.ErrorAs(t, n.Fault(), &pe)
	assert.Equal(t, "boom", pe.Value)
	assert.NotEmpty(t, pe.Stack)
}

func TestFaultClearsOnRecompute(t *testing.T) {
	g, _ := newTestGraph(t)
	fail := true
	n, err := g.AddNode(NodeSpec{
		Type:    "flaky",
		Outputs: []PortSpec{{Name: "Out"}},
		Body: BodyFunc(func(*ExecContext) (Outputs, error) {
			if fail {
				return nil, errors.New("flaky")
			}
			return Outputs{"Out": 1}, nil
		}),
	})
	require.NoError(t, err)

	n.Compute(t.Context())
	require.Error(t, n.Fault())
	fail = false
	n.Compute(t.Context())
	assert.NoError(t, n.Fault())
	assert.Equal(t, StatusComplete, n.Status())
}

func TestOnDemandCycleFaults(t *testing.T) {
	g, _ := newTestGraph(t)
	a := addRelay(t, g, "A", DirtyIfInputsChange, nil)
	b := addRelay(t, g, "B", DirtyIfInputsChange, nil)
	connect(t, g, a, "Out", b, "In")
	connect(t, g, b, "Out", a, "In")

	done := make(chan struct{})
	go func() {
		a.Compute(t.Context())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("on-demand compute over a cycle did not terminate")
	}

	var cycle *CycleError
	require.ErrorAs(t, b.Fault(), &cycle)
	assert.Equal(t, []string{"A", "B", "A"}, cycle.Chain)
	assert.ErrorIs(t, b.Fault(), ErrCyclicDependency)

	assert.ErrorIs(t, a.Fault(), ErrDependencyFault)
	assert.ErrorIs(t, a.Fault(), ErrCyclicDependency, "dependency fault chains the upstream cause")
	assert.False(t, a.Processing())
	assert.False(t, b.Processing())
}

func TestDependencyFaultNamesUpstream(t *testing.T) {
	g, _ := newTestGraph(t)
	bad, err := g.AddNode(NodeSpec{
		Type:    "bad",
		Title:   "Bad",
		Outputs: []PortSpec{{Name: "Text", Kind: KindString}},
		Body: BodyFunc(func(*ExecContext) (Outputs, error) {
			return nil, errors.New("no")
		}),
	})
	require.NoError(t, err)
	b := addRelay(t, g, "B", DirtyIfInputsChange, nil)
	connect(t, g, bad, "Text", b, "In")

	b.Compute(t.Context())
	var df *DependencyFaultError
	require.ErrorAs(t, b.Fault(), &df)
	assert.Equal(t, "Bad", df.Upstream)
	assert.Equal(t, b.ID(), df.NodeID)
}

func TestDependencyTimeout(t *testing.T) {
	g, _ := newTestGraph(t, WithSettings(Settings{InputTimeout: 30 * time.Millisecond}))
	slow, _ := addAsync(t, g, "Slow")
	b := addRelay(t, g, "B", DirtyIfInputsChange, nil)
	connect(t, g, slow, "Out", b, "In")

	b.Compute(t.Context())

	var te *DependencyTimeoutError
	require.ErrorAs(t, b.Fault(), &te)
	assert.Equal(t, "Slow", te.Upstream)
	assert.ErrorIs(t, b.Fault(), ErrDependencyTimeout)
	assert.True(t, slow.Processing())
}

func TestNotifierSeesStatusChanges(t *testing.T) {
	var statuses []string
	g, _ := newTestGraph(t, WithNotifier(NotifierFunc(func(n *Node) {
		statuses = append(statuses, n.Status())
	})))
	a := addSource(t, g, "A", DirtyIfInputsChange, nil)
	statuses = nil

	a.Compute(t.Context())
	assert.Contains(t, statuses, StatusProcessing)
	assert.Contains(t, statuses, StatusComplete)
}

func TestNodeLogsCarryIdentity(t *testing.T) {
	decode := func(t *testing.T, buf *bytes.Buffer, msg string) map[string]any {
		t.Helper()
		for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
			var rec map[string]any
			require.NoError(t, json.Unmarshal([]byte(line), &rec))
			if rec["msg"] == msg {
				return rec
			}
		}
		t.Fatalf("no %q record in %s", msg, buf.String())
		return nil
	}
	newLogged := func() (*Graph, *bytes.Buffer) {
		var buf bytes.Buffer
		logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
		return NewGraph(WithLogger(logger)), &buf
	}

	t.Run("session", func(t *testing.T) {
		g, buf := newLogged()
		a := addSource(t, g, "A", DirtyIfInputsChange, nil)
		res := runSession(t, g)

		rec := decode(t, buf, "node completed")
		assert.Equal(t, a.ID(), rec["node_id"])
		assert.Equal(t, "A", rec["node_title"])
		assert.Equal(t, res.SessionID, rec["session_id"])
		assert.Contains(t, rec, "duration_ms")
	})

	t.Run("on demand", func(t *testing.T) {
		g, buf := newLogged()
		addSource(t, g, "B", DirtyIfInputsChange, nil).Compute(t.Context())

		rec := decode(t, buf, "node completed")
		assert.Equal(t, "B", rec["node_title"])
		assert.NotContains(t, rec, "session_id")
	})
}

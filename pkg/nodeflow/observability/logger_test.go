package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testHandler captures log records as JSON lines.
type testHandler struct {
	mu    *sync.Mutex
	buf   *bytes.Buffer
	attrs []slog.Attr
}

func newTestHandler() *testHandler {
	return &testHandler{mu: &sync.Mutex{}, buf: &bytes.Buffer{}}
}

func (h *testHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *testHandler) Handle(_ context.Context, r slog.Record) error {
	data := map[string]any{
		"level": r.Level.String(),
		"msg":   r.Message,
	}
	for _, attr := range h.attrs {
		data[attr.Key] = attr.Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		data[a.Key] = a.Value.Any()
		return true
	})
	h.mu.Lock()
	defer h.mu.Unlock()
	return json.NewEncoder(h.buf).Encode(data)
}

func (h *testHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &testHandler{mu: h.mu, buf: h.buf, attrs: merged}
}

func (h *testHandler) WithGroup(string) slog.Handler { return h }

func (h *testHandler) lastRecord() map[string]any {
	h.mu.Lock()
	defer h.mu.Unlock()
	lines := bytes.Split(bytes.TrimSpace(h.buf.Bytes()), []byte("\n"))
	if len(lines) == 0 || len(lines[len(lines)-1]) == 0 {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(lines[len(lines)-1], &m); err != nil {
		return nil
	}
	return m
}

func TestEnrichLogger(t *testing.T) {
	t.Run("adds session and node identity", func(t *testing.T) {
		h := newTestHandler()
		enriched := EnrichLogger(slog.New(h), "sess-1", "node-1", "Join")
		enriched.Info("working")

		record := h.lastRecord()
		require.NotNil(t, record)
		assert.Equal(t, "sess-1", record["session_id"])
		assert.Equal(t, "node-1", record["node_id"])
		assert.Equal(t, "Join", record["node_title"])
		assert.Equal(t, "working", record["msg"])
	})

	t.Run("omits empty session", func(t *testing.T) {
		h := newTestHandler()
		EnrichLogger(slog.New(h), "", "node-2", "Split").Info("on demand")

		record := h.lastRecord()
		require.NotNil(t, record)
		assert.NotContains(t, record, "session_id")
		assert.Equal(t, "node-2", record["node_id"])
	})

	t.Run("nil logger returns nil", func(t *testing.T) {
		assert.Nil(t, EnrichLogger(nil, "s", "n", "t"))
	})
}

func TestLogHelpers(t *testing.T) {
	tests := []struct {
		name   string
		log    func(l *slog.Logger)
		level  string
		msg    string
		fields map[string]any
	}{
		{
			name:   "session start",
			log:    func(l *slog.Logger) { LogSessionStart(l, "s-1") },
			level:  "INFO",
			msg:    "workflow session starting",
			fields: map[string]any{"session_id": "s-1"},
		},
		{
			name:   "session complete",
			log:    func(l *slog.Logger) { LogSessionComplete(l, "s-2", 12500*time.Microsecond, 3) },
			level:  "INFO",
			msg:    "workflow session completed",
			fields: map[string]any{"session_id": "s-2", "duration_ms": 12.5, "nodes_processed": float64(3)},
		},
		{
			name:   "session error",
			log:    func(l *slog.Logger) { LogSessionError(l, "s-3", errors.New("boom"), 4*time.Millisecond) },
			level:  "ERROR",
			msg:    "workflow session failed",
			fields: map[string]any{"session_id": "s-3", "error": "boom"},
		},
		{
			name:   "node start",
			log:    func(l *slog.Logger) { LogNodeStart(l, "n-1") },
			level:  "DEBUG",
			msg:    "node starting",
			fields: map[string]any{"node_id": "n-1"},
		},
		{
			name:   "node complete",
			log:    func(l *slog.Logger) { LogNodeComplete(l, "n-2", 7*time.Millisecond) },
			level:  "DEBUG",
			msg:    "node completed",
			fields: map[string]any{"node_id": "n-2", "duration_ms": float64(7)},
		},
		{
			name:   "node error",
			log:    func(l *slog.Logger) { LogNodeError(l, "n-3", errors.New("bad regex")) },
			level:  "WARN",
			msg:    "node faulted",
			fields: map[string]any{"node_id": "n-3", "error": "bad regex"},
		},
		{
			name:   "cycle edge",
			log:    func(l *slog.Logger) { LogCycleEdgeDropped(l, "A", "B") },
			level:  "WARN",
			msg:    "dependency cycle detected, ignoring edge",
			fields: map[string]any{"from": "A", "to": "B"},
		},
		{
			name:   "snapshot",
			log:    func(l *slog.Logger) { LogSnapshot(l, "wf", "n-4", 128) },
			level:  "DEBUG",
			msg:    "snapshot saved",
			fields: map[string]any{"workflow_id": "wf", "size_bytes": float64(128)},
		},
		{
			name:   "snapshot error",
			log:    func(l *slog.Logger) { LogSnapshotError(l, "wf", "n-5", "save", errors.New("disk full")) },
			level:  "WARN",
			msg:    "snapshot failed",
			fields: map[string]any{"operation": "save", "error": "disk full"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler()
			tt.log(slog.New(h))

			record := h.lastRecord()
			require.NotNil(t, record)
			assert.Equal(t, tt.level, record["level"])
			assert.Equal(t, tt.msg, record["msg"])
			for k, v := range tt.fields {
				assert.Equal(t, v, record[k], "field %s", k)
			}
		})

		t.Run(tt.name+" with nil logger", func(t *testing.T) {
			assert.NotPanics(t, func() { tt.log(nil) })
		})
	}
}

func TestTimedOperation(t *testing.T) {
	done := TimedOperation()
	time.Sleep(15 * time.Millisecond)
	assert.GreaterOrEqual(t, done(), 10*time.Millisecond)
}

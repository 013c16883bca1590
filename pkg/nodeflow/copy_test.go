package nodeflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyValueDetachesContainers(t *testing.T) {
	tests := []struct {
		name   string
		value  func() any
		mutate func(v any)
	}{
		{
			name:   "slice of maps",
			value:  func() any { return []map[string]any{{"name": "a"}} },
			mutate: func(v any) { v.([]map[string]any)[0]["name"] = "b" },
		},
		{
			name:   "nested string slices",
			value:  func() any { return [][]string{{"x", "y"}} },
			mutate: func(v any) { v.([][]string)[0][1] = "z" },
		},
		{
			name:   "float slice",
			value:  func() any { return []float64{1, 2} },
			mutate: func(v any) { v.([]float64)[0] = 9 },
		},
		{
			name:   "typed map",
			value:  func() any { return map[string]int{"n": 1} },
			mutate: func(v any) { v.(map[string]int)["n"] = 2 },
		},
		{
			name:   "map of any holding typed slice",
			value:  func() any { return map[string]any{"cols": []int{1, 2}} },
			mutate: func(v any) { v.(map[string]any)["cols"].([]int)[0] = 7 },
		},
		{
			name: "array of maps",
			value: func() any {
				return [2]map[string]string{{"k": "v"}, {"k": "w"}}
			},
			mutate: func(v any) {
				arr := v.([2]map[string]string)
				arr[0]["k"] = "changed"
			},
		},
		{
			name: "pointer to slice",
			value: func() any {
				s := []int{1}
				return &s
			},
			mutate: func(v any) { (*v.(*[]int))[0] = 5 },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orig := tt.value()
			cp := copyValue(orig)
			require.Equal(t, tt.value(), cp)

			tt.mutate(cp)
			assert.Equal(t, tt.value(), orig, "original changed through the copy")
		})
	}
}

func TestCopyValueKeepsNil(t *testing.T) {
	var m map[string]int
	var s []float64
	assert.Nil(t, copyValue(m).(map[string]int))
	assert.Nil(t, copyValue(s).([]float64))
	assert.Nil(t, copyValue(nil))
}

func TestCacheIsolatedFromBodiesAndConsumers(t *testing.T) {
	g, _ := newTestGraph(t)
	rows := []map[string]any{{"name": "a"}}
	src, err := g.AddNode(NodeSpec{
		Type:    "rows",
		Title:   "Rows",
		Outputs: []PortSpec{{Name: "Rows", Kind: KindArray}},
		Body: BodyFunc(func(*ExecContext) (Outputs, error) {
			return Outputs{"Rows": rows}, nil
		}),
	})
	require.NoError(t, err)
	sink, err := g.AddNode(NodeSpec{
		Type:    "editor",
		Title:   "Editor",
		Inputs:  []PortSpec{{Name: "In", Kind: KindArray}},
		Outputs: []PortSpec{{Name: "Out", Kind: KindString}},
		Body: BodyFunc(func(ec *ExecContext) (Outputs, error) {
			in := ec.Input("In").([]map[string]any)
			in[0]["name"] = "edited downstream"
			return Outputs{"Out": "done"}, nil
		}),
	})
	require.NoError(t, err)
	connect(t, g, src, "Rows", sink, "In")

	res := runSession(t, g)
	require.True(t, res.Success, res.Message)

	got, ok := src.CachedValue("Rows")
	require.True(t, ok)
	assert.Equal(t, "a", got.([]map[string]any)[0]["name"])

	// The body reuses its buffer; the cache keeps the value it returned.
	rows[0]["name"] = "edited in body"
	got, _ = src.CachedValue("Rows")
	assert.Equal(t, "a", got.([]map[string]any)[0]["name"])

	// A recompute sees the edit as a change and propagates it.
	src.MarkDirty()
	runSession(t, g)
	assert.False(t, sink.Dirty())
	got, _ = src.CachedValue("Rows")
	assert.Equal(t, "edited in body", got.([]map[string]any)[0]["name"])
}

func TestChangedNestedOutputMarksDownstreamDirty(t *testing.T) {
	g, _ := newTestGraph(t)
	rows := []map[string]any{{"name": "a"}}
	src, err := g.AddNode(NodeSpec{
		Type:    "rows",
		Title:   "Rows",
		Outputs: []PortSpec{{Name: "Rows", Kind: KindArray}},
		Body: BodyFunc(func(*ExecContext) (Outputs, error) {
			return Outputs{"Rows": rows}, nil
		}),
	})
	require.NoError(t, err)
	calls := &counter{}
	sink, err := g.AddNode(NodeSpec{
		Type:    "reader",
		Title:   "Reader",
		Inputs:  []PortSpec{{Name: "In", Kind: KindArray}},
		Outputs: []PortSpec{{Name: "Out", Kind: KindString}},
		Body: BodyFunc(func(*ExecContext) (Outputs, error) {
			calls.inc()
			return Outputs{"Out": "read"}, nil
		}),
	})
	require.NoError(t, err)
	connect(t, g, src, "Rows", sink, "In")
	runSession(t, g)
	require.Equal(t, int32(1), calls.get())

	rows[0]["name"] = "b"
	src.mu.Lock()
	src.dirty = true
	src.mu.Unlock()
	src.Compute(t.Context())

	assert.True(t, sink.Dirty())
}

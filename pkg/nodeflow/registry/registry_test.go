package registry

import (
	"fmt"
	"sync"
	"testing"

	"github.com/randalmurphal/nodeflow/pkg/nodeflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func textFactory(title string) Factory {
	return func() nodeflow.NodeSpec {
		return nodeflow.NodeSpec{
			Title:   title,
			Outputs: []nodeflow.PortSpec{{Name: "Text", Kind: nodeflow.KindString}},
			Body: nodeflow.BodyFunc(func(ec *nodeflow.ExecContext) (nodeflow.Outputs, error) {
				return nodeflow.Outputs{"Text": title}, nil
			}),
		}
	}
}

func TestNew(t *testing.T) {
	r := New()
	assert.NotNil(t, r)
	assert.Equal(t, 0, r.Len())
	assert.Empty(t, r.Types())
}

func TestRegisterAndGet(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(Entry{Type: "text", Category: "Text", Factory: textFactory("Text")}))

	e, ok := r.Get("text")
	require.True(t, ok)
	assert.Equal(t, "Text", e.Category)
	assert.True(t, r.Has("text"))
	assert.False(t, r.Has("missing"))

	_, ok = r.Get("missing")
	assert.False(t, ok)
}

func TestRegisterRejects(t *testing.T) {
	tests := []struct {
		name  string
		entry Entry
	}{
		{"empty type", Entry{Factory: textFactory("x")}},
		{"nil factory", Entry{Type: "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, New().Register(tt.entry))
		})
	}
}

func TestRegisterDuplicate(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(Entry{Type: "text", Factory: textFactory("a")}))
	err := r.Register(Entry{Type: "text", Factory: textFactory("b")})
	assert.ErrorIs(t, err, ErrDuplicateType)

	assert.Panics(t, func() {
		r.MustRegister(Entry{Type: "text", Factory: textFactory("c")})
	})
}

func TestTypesAndCategories(t *testing.T) {
	r := New()
	r.MustRegister(Entry{Type: "split", Category: "Text", Factory: textFactory("Split")})
	r.MustRegister(Entry{Type: "prompt", Category: "LLM", Factory: textFactory("Prompt")})
	r.MustRegister(Entry{Type: "join", Category: "Text", Factory: textFactory("Join")})

	assert.Equal(t, []string{"join", "prompt", "split"}, r.Types())

	var order []string
	for _, e := range r.Entries() {
		order = append(order, e.Type)
	}
	assert.Equal(t, []string{"prompt", "join", "split"}, order)

	text := r.ByCategory("Text")
	require.Len(t, text, 2)
	assert.Equal(t, "join", text[0].Type)
	assert.Empty(t, r.ByCategory("Missing"))
}

func TestSpec(t *testing.T) {
	r := New()
	r.MustRegister(Entry{Type: "text", Factory: textFactory("Greeting")})

	spec, err := r.Spec("text")
	require.NoError(t, err)
	assert.Equal(t, "text", spec.Type)
	assert.Equal(t, "Greeting", spec.Title)

	_, err = r.Spec("missing")
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestCreate(t *testing.T) {
	r := New()
	r.MustRegister(Entry{Type: "text", Factory: textFactory("Greeting")})
	g := nodeflow.NewGraph()

	n, err := r.Create(g, "text", "n1", "")
	require.NoError(t, err)
	assert.Equal(t, "n1", n.ID())
	assert.Equal(t, "text", n.Type())
	assert.Equal(t, "Greeting", n.Title())

	n2, err := r.Create(g, "text", "", "Other")
	require.NoError(t, err)
	assert.Equal(t, "Other", n2.Title())
	assert.NotEqual(t, n.ID(), n2.ID())
	assert.Equal(t, 2, g.Len())

	_, err = r.Create(g, "text", "n1", "")
	assert.ErrorIs(t, err, nodeflow.ErrDuplicateNode)

	_, err = r.Create(g, "missing", "", "")
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestConcurrentAccess(t *testing.T) {
	r := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_ = r.Register(Entry{Type: fmt.Sprintf("type-%d", i), Factory: textFactory("x")})
		}(i)
		go func() {
			defer wg.Done()
			_ = r.Types()
			_, _ = r.Get("type-1")
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, r.Len())
}

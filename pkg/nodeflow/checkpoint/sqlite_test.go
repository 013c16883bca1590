package checkpoint_test

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/randalmurphal/nodeflow/pkg/nodeflow/checkpoint"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteStoreSurvivesReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "state.db")

	first, err := checkpoint.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, first.Save("greeting", "hello", []byte("persistent")))
	require.NoError(t, first.Close())

	second, err := checkpoint.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer second.Close()
	data, err := second.Load("greeting", "hello")
	require.NoError(t, err)
	assert.Equal(t, []byte("persistent"), data)
}

func TestSQLiteStoreInvalidPath(t *testing.T) {
	_, err := checkpoint.NewSQLiteStore("/nonexistent/path/db.sqlite")
	assert.Error(t, err)
}

func TestSQLiteStoreConcurrentSessions(t *testing.T) {
	store, err := checkpoint.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			wf := fmt.Sprintf("workflow-%d", w)
			for i := 0; i < 10; i++ {
				node := fmt.Sprintf("node-%d", i%3)
				assert.NoError(t, store.Save(wf, node, []byte(node)))
				_, err := store.List(wf)
				assert.NoError(t, err)
			}
		}(w)
	}
	wg.Wait()

	for w := 0; w < 8; w++ {
		infos, err := store.List(fmt.Sprintf("workflow-%d", w))
		require.NoError(t, err)
		assert.Len(t, infos, 3)
	}
}

func TestSQLiteStoreLargeResponse(t *testing.T) {
	store, err := checkpoint.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	response := []byte(strings.Repeat("token ", 200_000))
	require.NoError(t, store.Save("chat", "prompt", response))

	loaded, err := store.Load("chat", "prompt")
	require.NoError(t, err)
	assert.Equal(t, response, loaded)

	infos, err := store.List("chat")
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, int64(len(response)), infos[0].Size)
}

func TestSQLiteStoreRestoreAfterReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "state.db")

	store, err := checkpoint.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	cp := checkpoint.New(store, checkpoint.WithCodec(checkpoint.MsgpackCodec{}), checkpoint.WithCompression(true))

	g, src := newTextGraph(t, "persisted")
	runGraph(t, g)
	require.NoError(t, cp.SaveGraph(context.Background(), "wf", g))
	require.NoError(t, store.Close())

	store, err = checkpoint.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer store.Close()
	cp = checkpoint.New(store, checkpoint.WithCodec(checkpoint.MsgpackCodec{}))

	g2, src2 := newTextGraph(t, "")
	n, err := cp.RestoreGraph(context.Background(), "wf", g2)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	text, _ := src2.Property("text")
	assert.Equal(t, "persisted", text)
	assert.False(t, src2.Dirty())
	assert.Equal(t, src.Cache(), src2.Cache())
}

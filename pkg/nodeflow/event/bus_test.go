package event_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/randalmurphal/nodeflow/pkg/nodeflow/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusDeliversMatchingTypes(t *testing.T) {
	bus := event.NewBus(event.BusConfig{BufferSize: 10})
	defer bus.Close()

	var received atomic.Int32
	sub, err := bus.Subscribe([]string{event.TypeNodeChanged}, event.HandlerFunc(func(context.Context, event.Event) error {
		received.Add(1)
		return nil
	}))
	require.NoError(t, err)
	defer sub.Unsubscribe()

	require.NoError(t, bus.Publish(context.Background(), event.New(event.TypeNodeChanged, "test", "", event.NodeChanged{NodeID: "a"})))
	require.NoError(t, bus.Publish(context.Background(), event.New("other", "test", "", 1)))

	assert.Eventually(t, func() bool { return received.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), received.Load())
}

func TestBusSubscribeAllPreservesOrder(t *testing.T) {
	bus := event.NewBus(event.BusConfig{})
	defer bus.Close()

	var mu sync.Mutex
	var types []string
	_, err := bus.SubscribeAll(event.HandlerFunc(func(_ context.Context, evt event.Event) error {
		mu.Lock()
		types = append(types, evt.Type())
		mu.Unlock()
		return nil
	}))
	require.NoError(t, err)

	for _, typ := range []string{"a", "b", "c"} {
		require.NoError(t, bus.Publish(context.Background(), event.New(typ, "test", "", struct{}{})))
	}

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(types) == 3
	}, time.Second, 5*time.Millisecond)
	mu.Lock()
	assert.Equal(t, []string{"a", "b", "c"}, types)
	mu.Unlock()
}

func TestBusUnsubscribe(t *testing.T) {
	bus := event.NewBus(event.BusConfig{})
	defer bus.Close()

	var received atomic.Int32
	sub, err := bus.SubscribeAll(event.HandlerFunc(func(context.Context, event.Event) error {
		received.Add(1)
		return nil
	}))
	require.NoError(t, err)

	sub.Unsubscribe()
	sub.Unsubscribe()
	require.NoError(t, bus.Publish(context.Background(), event.New("a", "test", "", 0)))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(0), received.Load())
}

func TestBusNonBlockingDrops(t *testing.T) {
	var dropped atomic.Int32
	block := make(chan struct{})
	bus := event.NewBus(event.BusConfig{
		BufferSize:  1,
		NonBlocking: true,
		OnDrop:      func(event.Event, string) { dropped.Add(1) },
	})
	defer bus.Close()
	defer close(block)

	_, err := bus.SubscribeAll(event.HandlerFunc(func(context.Context, event.Event) error {
		<-block
		return nil
	}))
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, bus.Publish(context.Background(), event.New("a", "test", "", i)))
	}
	assert.GreaterOrEqual(t, dropped.Load(), int32(3))
}

func TestBusOnError(t *testing.T) {
	errs := make(chan error, 1)
	bus := event.NewBus(event.BusConfig{
		OnError: func(_ event.Event, _ string, err error) { errs <- err },
	})
	defer bus.Close()

	_, err := bus.SubscribeAll(event.HandlerFunc(func(context.Context, event.Event) error {
		return errors.New("handler failed")
	}))
	require.NoError(t, err)
	require.NoError(t, bus.Publish(context.Background(), event.New("a", "test", "", 0)))

	select {
	case err := <-errs:
		assert.EqualError(t, err, "handler failed")
	case <-time.After(time.Second):
		t.Fatal("OnError not called")
	}
}

func TestBusClosed(t *testing.T) {
	bus := event.NewBus(event.BusConfig{})
	require.NoError(t, bus.Close())
	require.NoError(t, bus.Close())

	assert.ErrorIs(t, bus.Publish(context.Background(), event.New("a", "test", "", 0)), event.ErrBusClosed)
	_, err := bus.SubscribeAll(event.HandlerFunc(func(context.Context, event.Event) error { return nil }))
	assert.ErrorIs(t, err, event.ErrBusClosed)
}

func TestTypedHandler(t *testing.T) {
	bus := event.NewBus(event.BusConfig{})
	defer bus.Close()

	got := make(chan event.NodeChanged, 1)
	_, err := bus.SubscribeAll(event.TypedHandler(func(_ context.Context, meta event.Metadata, p event.NodeChanged) error {
		assert.Equal(t, event.TypeNodeChanged, meta.EventType)
		got <- p
		return nil
	}))
	require.NoError(t, err)

	require.NoError(t, bus.Publish(context.Background(), event.New("other", "test", "", "ignored")))
	require.NoError(t, bus.Publish(context.Background(), event.New(event.TypeNodeChanged, "test", "", event.NodeChanged{Title: "Join"})))

	select {
	case p := <-got:
		assert.Equal(t, "Join", p.Title)
	case <-time.After(time.Second):
		t.Fatal("typed handler not called")
	}
}

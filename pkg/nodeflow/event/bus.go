package event

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
)

// ErrBusClosed is returned when publishing to or subscribing on a closed bus.
var ErrBusClosed = errors.New("event bus closed")

// Bus distributes events to subscribers.
type Bus interface {
	// Publish delivers evt to every matching subscription.
	Publish(ctx context.Context, evt Event) error

	// Subscribe registers handler for the given event types.
	Subscribe(types []string, handler Handler) (Subscription, error)

	// SubscribeAll registers handler for every event type.
	SubscribeAll(handler Handler) (Subscription, error)

	// Close stops delivery and releases all subscriptions.
	Close() error
}

// Subscription is an active registration on a Bus.
type Subscription interface {
	Unsubscribe()
}

// BusConfig configures a LocalBus.
type BusConfig struct {
	// BufferSize is the per-subscription queue length. Default: 256.
	BufferSize int

	// NonBlocking drops events for subscribers whose queue is full
	// instead of blocking the publisher. Node change notifications are
	// published from engine goroutines, so notifiers default to it.
	NonBlocking bool

	// OnDrop is called for each event dropped in non-blocking mode.
	OnDrop func(evt Event, subscriberID string)

	// OnError is called when a handler returns an error.
	OnError func(evt Event, subscriberID string, err error)
}

// DefaultBusConfig is the configuration used for zero fields.
var DefaultBusConfig = BusConfig{
	BufferSize: 256,
}

// LocalBus is an in-memory Bus. Each subscription has its own queue and
// goroutine, so events reach one subscriber in publish order.
type LocalBus struct {
	config BusConfig

	mu        sync.RWMutex
	byType    map[string]map[string]*subscription
	wildcards map[string]*subscription
	all       map[string]*subscription

	nextID  atomic.Int64
	closed  atomic.Bool
	closeCh chan struct{}
}

var _ Bus = (*LocalBus)(nil)

// NewBus creates a LocalBus.
func NewBus(config BusConfig) *LocalBus {
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultBusConfig.BufferSize
	}
	return &LocalBus{
		config:    config,
		byType:    make(map[string]map[string]*subscription),
		wildcards: make(map[string]*subscription),
		all:       make(map[string]*subscription),
		closeCh:   make(chan struct{}),
	}
}

type subscription struct {
	id      string
	types   []string
	handler Handler
	events  chan Event
	done    chan struct{}
	once    sync.Once
	bus     *LocalBus
}

// Publish delivers evt to each matching subscription's queue.
func (b *LocalBus) Publish(ctx context.Context, evt Event) error {
	if b.closed.Load() {
		return ErrBusClosed
	}

	b.mu.RLock()
	subs := make([]*subscription, 0, len(b.wildcards)+len(b.byType[evt.Type()]))
	for _, s := range b.byType[evt.Type()] {
		subs = append(subs, s)
	}
	for _, s := range b.wildcards {
		subs = append(subs, s)
	}
	b.mu.RUnlock()

	for _, s := range subs {
		if b.config.NonBlocking {
			select {
			case s.events <- evt:
			default:
				if b.config.OnDrop != nil {
					b.config.OnDrop(evt, s.id)
				}
			}
			continue
		}
		select {
		case s.events <- evt:
		case <-s.done:
		case <-ctx.Done():
			return ctx.Err()
		case <-b.closeCh:
			return ErrBusClosed
		}
	}
	return nil
}

// Subscribe registers handler for the given event types.
func (b *LocalBus) Subscribe(types []string, handler Handler) (Subscription, error) {
	return b.subscribe(types, handler)
}

// SubscribeAll registers handler for every event type.
func (b *LocalBus) SubscribeAll(handler Handler) (Subscription, error) {
	return b.subscribe(nil, handler)
}

func (b *LocalBus) subscribe(types []string, handler Handler) (*subscription, error) {
	if b.closed.Load() {
		return nil, ErrBusClosed
	}
	s := &subscription{
		id:      strconv.FormatInt(b.nextID.Add(1), 10),
		types:   append([]string(nil), types...),
		handler: handler,
		events:  make(chan Event, b.config.BufferSize),
		done:    make(chan struct{}),
		bus:     b,
	}

	b.mu.Lock()
	b.all[s.id] = s
	if len(types) == 0 {
		b.wildcards[s.id] = s
	} else {
		for _, t := range types {
			if b.byType[t] == nil {
				b.byType[t] = make(map[string]*subscription)
			}
			b.byType[t][s.id] = s
		}
	}
	b.mu.Unlock()

	go s.process()
	return s, nil
}

// Close stops every subscription. Queued events that were not yet
// handled are discarded.
func (b *LocalBus) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(b.closeCh)

	b.mu.Lock()
	subs := make([]*subscription, 0, len(b.all))
	for _, s := range b.all {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		s.stop()
	}
	return nil
}

func (s *subscription) process() {
	for {
		select {
		case evt := <-s.events:
			if err := s.handler.Handle(context.Background(), evt); err != nil && s.bus.config.OnError != nil {
				s.bus.config.OnError(evt, s.id, err)
			}
		case <-s.done:
			return
		}
	}
}

// Unsubscribe removes the subscription. It is safe to call more than once.
func (s *subscription) Unsubscribe() {
	b := s.bus
	b.mu.Lock()
	delete(b.all, s.id)
	delete(b.wildcards, s.id)
	for _, t := range s.types {
		delete(b.byType[t], s.id)
	}
	b.mu.Unlock()
	s.stop()
}

func (s *subscription) stop() {
	s.once.Do(func() { close(s.done) })
}

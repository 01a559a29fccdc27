package store

import (
	"context"
	"sync"

	"bookmylawn/internal/events"
)

// Notifier carries "partition changed" signals between writers and subscribers.
type Notifier interface {
	Notify(ctx context.Context, partitionKey string) error
	Listen(ctx context.Context, partitionKey string) (Listener, error)
}

// Listener receives change signals for one partition. Signals coalesce:
// several changes before a read show up as one.
type Listener interface {
	C() <-chan struct{}
	// Err yields a value when the channel breaks; no further signals follow.
	Err() <-chan error
	Close() error
}

// MemoryNotifier delivers signals inside one process over an EventBus.
type MemoryNotifier struct {
	bus *events.EventBus
}

func NewMemoryNotifier(bus *events.EventBus) *MemoryNotifier {
	if bus == nil {
		bus = events.NewEventBus()
	}
	return &MemoryNotifier{bus: bus}
}

func (n *MemoryNotifier) Notify(_ context.Context, partitionKey string) error {
	n.bus.Publish(&events.Event{Type: events.EventRecordsChanged + partitionKey})
	return nil
}

func (n *MemoryNotifier) Listen(_ context.Context, partitionKey string) (Listener, error) {
	l := &memoryListener{
		signals: make(chan struct{}, 1),
		errs:    make(chan error),
	}
	l.unsubscribe = n.bus.Subscribe(events.EventRecordsChanged+partitionKey, func(*events.Event) error {
		signal(l.signals)
		return nil
	})
	return l, nil
}

type memoryListener struct {
	signals     chan struct{}
	errs        chan error
	unsubscribe func()
	once        sync.Once
}

func (l *memoryListener) C() <-chan struct{} { return l.signals }

// Err never fires: an in-process bus cannot break.
func (l *memoryListener) Err() <-chan error { return l.errs }

func (l *memoryListener) Close() error {
	l.once.Do(l.unsubscribe)
	return nil
}

// signal делает неблокирующую отправку в буфер из одного элемента
func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

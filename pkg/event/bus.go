package event

import (
	"sync"
)

// Bus implements Emitter with fan-out to subscribers.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[Type][]subscription
	allSubs     []subscription
	nextID      int
}

type subscription struct {
	id      int
	handler Handler
}

// NewBus creates a new event bus.
func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[Type][]subscription),
	}
}

// Emit sends an event to all relevant subscribers. Handlers run on their own
// goroutines so a slow subscriber cannot stall the lifecycle engine.
func (b *Bus) Emit(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subscribers[event.Type] {
		go sub.handler(event)
	}
	for _, sub := range b.allSubs {
		go sub.handler(event)
	}
}

// EmitSync sends an event synchronously, blocking until all handlers return.
func (b *Bus) EmitSync(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subscribers[event.Type] {
		sub.handler(event)
	}
	for _, sub := range b.allSubs {
		sub.handler(event)
	}
}

// Subscribe registers a handler for a specific event type.
// Returns an unsubscribe function.
func (b *Bus) Subscribe(eventType Type, handler Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.subscribers[eventType] = append(b.subscribers[eventType], subscription{id: id, handler: handler})

	return func() {
		b.unsubscribe(eventType, id)
	}
}

// SubscribeAll registers a handler for all events.
// Returns an unsubscribe function.
func (b *Bus) SubscribeAll(handler Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.allSubs = append(b.allSubs, subscription{id: id, handler: handler})

	return func() {
		b.unsubscribeAll(id)
	}
}

func (b *Bus) unsubscribe(eventType Type, id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subscribers[eventType]
	for i, sub := range subs {
		if sub.id == id {
			b.subscribers[eventType] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

func (b *Bus) unsubscribeAll(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, sub := range b.allSubs {
		if sub.id == id {
			b.allSubs = append(b.allSubs[:i], b.allSubs[i+1:]...)
			return
		}
	}
}

// SubscriberCount returns the total number of subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	count := len(b.allSubs)
	for _, subs := range b.subscribers {
		count += len(subs)
	}
	return count
}

// Clear removes all subscribers.
func (b *Bus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.subscribers = make(map[Type][]subscription)
	b.allSubs = nil
}

// ensure Bus implements Emitter
var _ Emitter = (*Bus)(nil)

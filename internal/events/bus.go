// Package events is the typed publish/subscribe bus owned by the database
// orchestrator. Handlers run synchronously on the publishing goroutine, in
// subscription order.
package events

import (
	"context"
	"reflect"
	"sync"
)

// Bus routes events by their Go type.
type Bus struct {
	mu     sync.RWMutex
	routes map[reflect.Type][]*route
	nextID uint64
	closed bool
}

type route struct {
	id      uint64
	handler func(ctx context.Context, event any)
}

// Subscription removes its handler from the bus.
type Subscription struct {
	bus *Bus
	key reflect.Type
	id  uint64
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{routes: make(map[reflect.Type][]*route)}
}

// Subscribe registers fn for events of type T.
// Subscribing to a closed bus returns an inert subscription.
func Subscribe[T any](bus *Bus, fn func(ctx context.Context, event T)) *Subscription {
	key := reflect.TypeFor[T]()

	bus.mu.Lock()
	defer bus.mu.Unlock()

	if bus.closed {
		return &Subscription{}
	}

	bus.nextID++
	r := &route{
		id: bus.nextID,
		handler: func(ctx context.Context, event any) {
			fn(ctx, event.(T))
		},
	}
	bus.routes[key] = append(bus.routes[key], r)

	return &Subscription{bus: bus, key: key, id: r.id}
}

// Publish delivers event to every handler subscribed to T and reports how
// many handlers ran.
func Publish[T any](ctx context.Context, bus *Bus, event T) int {
	key := reflect.TypeFor[T]()

	bus.mu.RLock()
	routes := append([]*route(nil), bus.routes[key]...)
	bus.mu.RUnlock()

	for _, r := range routes {
		r.handler(ctx, event)
	}

	return len(routes)
}

// Unsubscribe is idempotent.
func (s *Subscription) Unsubscribe() {
	if s == nil || s.bus == nil {
		return
	}

	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()

	routes := s.bus.routes[s.key]
	for i, r := range routes {
		if r.id == s.id {
			s.bus.routes[s.key] = append(routes[:i:i], routes[i+1:]...)
			break
		}
	}
	if len(s.bus.routes[s.key]) == 0 {
		delete(s.bus.routes, s.key)
	}
	s.bus = nil
}

// Close drops every subscription; later publishes reach nobody.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.routes = make(map[reflect.Type][]*route)
	b.closed = true
}

// Group collects subscriptions that share a lifetime.
type Group struct {
	mu   sync.Mutex
	subs []*Subscription
}

// Add keeps s for a later UnsubscribeAll.
func (g *Group) Add(s ...*Subscription) {
	g.mu.Lock()
	g.subs = append(g.subs, s...)
	g.mu.Unlock()
}

// UnsubscribeAll tears down every subscription in the group.
func (g *Group) UnsubscribeAll() {
	g.mu.Lock()
	subs := g.subs
	g.subs = nil
	g.mu.Unlock()

	for _, s := range subs {
		s.Unsubscribe()
	}
}

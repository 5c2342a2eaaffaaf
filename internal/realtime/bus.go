package realtime

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
)

// Handler receives one fanned-out event. Payload is the untouched wire
// payload; subscribers decode what they need.
type Handler func(eventType string, payload json.RawMessage)

// Bus is the type-keyed publish/subscribe registry that decouples UI
// consumers from the channel: any component can subscribe to an event
// type without the dispatcher knowing it exists. The bus outlives
// individual channel instances, so subscriptions survive reconnects.
type Bus struct {
	mu   sync.RWMutex
	subs map[string]map[string]Handler
}

func NewBus() *Bus {
	return &Bus{subs: make(map[string]map[string]Handler)}
}

// Subscribe registers a handler for one event type and returns the
// handle used to unsubscribe.
func (b *Bus) Subscribe(eventType string, h Handler) Subscription {
	id := uuid.NewString()
	b.mu.Lock()
	if b.subs[eventType] == nil {
		b.subs[eventType] = make(map[string]Handler)
	}
	b.subs[eventType][id] = h
	b.mu.Unlock()
	return Subscription{bus: b, eventType: eventType, id: id}
}

// Publish delivers the payload to every subscriber of the type.
// Delivery is synchronous and sequential: events keep the order the
// transport delivered them in.
func (b *Bus) Publish(eventType string, payload json.RawMessage) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs[eventType]))
	for _, h := range b.subs[eventType] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()
	for _, h := range handlers {
		h(eventType, payload)
	}
}

// Subscription is the unsubscribe handle returned by Subscribe.
type Subscription struct {
	bus       *Bus
	eventType string
	id        string
}

func (s Subscription) Unsubscribe() {
	if s.bus == nil {
		return
	}
	s.bus.mu.Lock()
	delete(s.bus.subs[s.eventType], s.id)
	if len(s.bus.subs[s.eventType]) == 0 {
		delete(s.bus.subs, s.eventType)
	}
	s.bus.mu.Unlock()
}

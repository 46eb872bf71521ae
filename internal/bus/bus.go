package bus

import (
	"context"
	"sync"
)

const defaultQueueSize = 256

// MessageBus is the in-process pub/sub hub connecting channel adapters to
// the router. Inbound messages flow over a buffered channel; outbound
// delivery goes through internal/outboundqueue directly rather than back
// through the bus. Broadcast events fan out to the handlers registered with
// Subscribe; no component of the gateway registers one.
type MessageBus struct {
	inbound chan InboundMessage

	mu   sync.RWMutex
	subs map[string]EventHandler
}

// NewMessageBus creates a MessageBus with a default-sized buffered queue.
func NewMessageBus() *MessageBus {
	return &MessageBus{
		inbound: make(chan InboundMessage, defaultQueueSize),
		subs:    make(map[string]EventHandler),
	}
}

// PublishInbound enqueues a message from a channel adapter for the router.
// Blocks if the queue is full — callers that must not block should run this
// in a goroutine.
func (b *MessageBus) PublishInbound(msg InboundMessage) {
	b.inbound <- msg
}

// ConsumeInbound blocks until a message is available or ctx is cancelled.
func (b *MessageBus) ConsumeInbound(ctx context.Context) (InboundMessage, bool) {
	select {
	case msg := <-b.inbound:
		return msg, true
	case <-ctx.Done():
		return InboundMessage{}, false
	}
}

// Subscribe registers a handler for broadcast events under id.
// A later Subscribe with the same id replaces the previous handler.
func (b *MessageBus) Subscribe(id string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[id] = handler
}

// Unsubscribe removes a handler registered under id.
func (b *MessageBus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, id)
}

// Broadcast delivers an event to every subscriber. A panicking handler is
// recovered and ignored so one bad subscriber cannot break the others.
func (b *MessageBus) Broadcast(event Event) {
	b.mu.RLock()
	handlers := make([]EventHandler, 0, len(b.subs))
	for _, h := range b.subs {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		func(handler EventHandler) {
			defer func() { _ = recover() }()
			handler(event)
		}(h)
	}
}

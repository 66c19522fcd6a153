// internal/pkg/events/bus.go
package events

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// OrderCreated is published after a checkout transaction commits.
// PaymentMethod carries the stored enum value for subscribers that dispatch
// on it; PaymentMethodLabel is the human-facing name for message text.
type OrderCreated struct {
	OrderID            uint
	OrderNumber        string
	TotalAmount        int64
	CustomerName       string
	PaymentMethod      string
	PaymentMethodLabel string
	CreatedAt          time.Time
}

// Handler consumes a published event. Handlers must not assume delivery;
// dispatch is at-most-once.
type Handler func(event OrderCreated)

// Bus is an in-process dispatcher for order events. Subscribers are
// registered during startup wiring; Publish never blocks the caller.
type Bus struct {
	logger *logrus.Logger
	events chan OrderCreated

	mu       sync.RWMutex
	handlers []Handler

	startOnce sync.Once
	closeOnce sync.Once
	done      chan struct{}
}

// NewBus creates a bus with the given delivery buffer size
func NewBus(logger *logrus.Logger, bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Bus{
		logger: logger,
		events: make(chan OrderCreated, bufferSize),
		done:   make(chan struct{}),
	}
}

// Subscribe registers a handler for subsequent events
func (b *Bus) Subscribe(handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, handler)
}

// Start launches the delivery goroutine
func (b *Bus) Start() {
	b.startOnce.Do(func() {
		go b.deliver()
	})
}

// Publish enqueues an event. If the buffer is full the event is dropped
// and logged; order processing must never wait on notifications.
func (b *Bus) Publish(event OrderCreated) {
	select {
	case b.events <- event:
	default:
		b.logger.WithField("order_number", event.OrderNumber).
			Warn("Event buffer full, dropping order notification")
	}
}

// Close stops delivery after draining already-queued events
func (b *Bus) Close() {
	b.closeOnce.Do(func() {
		close(b.events)
		<-b.done
	})
}

func (b *Bus) deliver() {
	defer close(b.done)
	for event := range b.events {
		b.mu.RLock()
		handlers := make([]Handler, len(b.handlers))
		copy(handlers, b.handlers)
		b.mu.RUnlock()

		for _, handler := range handlers {
			b.invoke(handler, event)
		}
	}
}

// invoke shields the delivery loop from a panicking subscriber
func (b *Bus) invoke(handler Handler, event OrderCreated) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.WithFields(logrus.Fields{
				"order_number": event.OrderNumber,
				"panic":        r,
			}).Error("Order event handler panicked")
		}
	}()
	handler(event)
}

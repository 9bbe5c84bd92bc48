// Package events fans the order-flow engine's domain events out to
// caller-registered handlers without letting a slow or panicking handler
// block (or re-enter) the transaction that produced the event.
//
// Each event kind gets its own bounded-buffer channel and a single
// dispatcher goroutine. Publishing blocks when a channel's buffer is
// full (backpressure); dispatching a handler never blocks the producer,
// since each invocation runs on its own goroutine.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tarigateway/reconciler/internal/tari"
)

// Kind identifies a domain event type.
type Kind string

const (
	KindNewOrder         Kind = "new_order"
	KindOrderPaid        Kind = "order_paid"
	KindOrderAnnulled    Kind = "order_annulled"
	KindOrderModified    Kind = "order_modified"
	KindOrderClaimed     Kind = "order_claimed"
	KindPaymentReceived  Kind = "payment_received"
	KindPaymentConfirmed Kind = "payment_confirmed"
)

var allKinds = []Kind{
	KindNewOrder,
	KindOrderPaid,
	KindOrderAnnulled,
	KindOrderModified,
	KindOrderClaimed,
	KindPaymentReceived,
	KindPaymentConfirmed,
}

// Envelope wraps a published event with its kind and arrival time. The
// Payload is one of the *Event structs below, matching Kind.
type Envelope struct {
	Kind    Kind
	Payload interface{}
	At      time.Time
}

// NewOrderEvent accompanies KindNewOrder.
type NewOrderEvent struct{ Order tari.Order }

// OrderPaidEvent accompanies KindOrderPaid.
type OrderPaidEvent struct{ Order tari.Order }

// OrderAnnulledEvent accompanies KindOrderAnnulled. Order.Status is the
// terminal status the order was annulled into, OrderExpired or
// OrderCancelled.
type OrderAnnulledEvent struct{ Order tari.Order }

// OrderModifiedEvent accompanies KindOrderModified.
type OrderModifiedEvent struct{ Order tari.Order }

// OrderClaimedEvent accompanies KindOrderClaimed.
type OrderClaimedEvent struct {
	Order   tari.Order
	Address tari.Address
}

// PaymentReceivedEvent accompanies KindPaymentReceived.
type PaymentReceivedEvent struct{ Payment tari.Payment }

// PaymentConfirmedEvent accompanies KindPaymentConfirmed.
type PaymentConfirmedEvent struct{ Payment tari.Payment }

// Handler processes a single delivered event. A returned error is
// logged, not retried: a handler error or panic still counts as
// delivered.
type Handler func(ctx context.Context, env Envelope) error

// Bus is the engine's event fan-out. The zero value is not usable; call
// NewBus.
type Bus struct {
	logger   zerolog.Logger
	buffer   int
	mu       sync.RWMutex
	channels map[Kind]chan Envelope
	handlers map[Kind][]Handler
	wg       sync.WaitGroup
	started  bool
	closed   bool
}

// NewBus constructs a Bus with one buffer-sized channel per event kind.
func NewBus(logger zerolog.Logger, buffer int) *Bus {
	if buffer <= 0 {
		buffer = 64
	}
	b := &Bus{
		logger:   logger,
		buffer:   buffer,
		channels: make(map[Kind]chan Envelope, len(allKinds)),
		handlers: make(map[Kind][]Handler),
	}
	for _, k := range allKinds {
		b.channels[k] = make(chan Envelope, buffer)
	}
	return b
}

// Subscribe registers a handler for kind. Must be called before Start;
// subscribing after Start is not safe against a concurrently running
// dispatcher.
func (b *Bus) Subscribe(kind Kind, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[kind] = append(b.handlers[kind], h)
}

// Start spawns one dispatcher goroutine per event kind.
func (b *Bus) Start(ctx context.Context) {
	b.mu.Lock()
	if b.started {
		b.mu.Unlock()
		return
	}
	b.started = true
	b.mu.Unlock()

	for _, k := range allKinds {
		b.wg.Add(1)
		go b.dispatch(ctx, k)
	}
}

// dispatch drains one kind's channel until it is closed, spawning each
// subscribed handler on its own goroutine per delivered envelope.
func (b *Bus) dispatch(ctx context.Context, kind Kind) {
	defer b.wg.Done()

	ch := b.channels[kind]
	for env := range ch {
		b.mu.RLock()
		handlers := b.handlers[kind]
		b.mu.RUnlock()

		for _, h := range handlers {
			b.wg.Add(1)
			go func(h Handler, env Envelope) {
				defer b.wg.Done()
				defer b.recoverPanic(kind)
				if err := h(ctx, env); err != nil {
					b.logger.Error().
						Str("event_kind", string(kind)).
						Err(err).
						Msg("events.handler_error")
				}
			}(h, env)
		}
	}
}

// recoverPanic recovers a panicking handler so one bad subscriber never
// takes down the dispatcher.
func (b *Bus) recoverPanic(kind Kind) {
	if r := recover(); r != nil {
		b.logger.Error().
			Str("event_kind", string(kind)).
			Interface("panic", r).
			Msg("events.handler_panicked")
	}
}

// Publish sends an event onto kind's channel, blocking if the buffer is
// full or until ctx is cancelled.
func (b *Bus) Publish(ctx context.Context, kind Kind, payload interface{}) {
	b.mu.RLock()
	closed := b.closed
	ch := b.channels[kind]
	b.mu.RUnlock()
	if closed || ch == nil {
		return
	}

	env := Envelope{Kind: kind, Payload: payload, At: time.Now()}
	select {
	case ch <- env:
	case <-ctx.Done():
	}
}

// Close closes every producer channel so dispatchers drain in-flight
// sends and exit, then waits for all in-flight handler invocations to
// finish.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for _, ch := range b.channels {
		close(ch)
	}
	b.mu.Unlock()

	b.wg.Wait()
}

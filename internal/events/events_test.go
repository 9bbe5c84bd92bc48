package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tarigateway/reconciler/internal/tari"
)

func TestBus_PublishDeliversToHandler(t *testing.T) {
	bus := NewBus(zerolog.Nop(), 4)

	var mu sync.Mutex
	var got tari.Order
	done := make(chan struct{})

	bus.Subscribe(KindNewOrder, func(ctx context.Context, env Envelope) error {
		mu.Lock()
		got = env.Payload.(NewOrderEvent).Order
		mu.Unlock()
		close(done)
		return nil
	})

	ctx := context.Background()
	bus.Start(ctx)
	defer bus.Close()

	order := tari.Order{OrderID: "O1"}
	bus.Publish(ctx, KindNewOrder, NewOrderEvent{Order: order})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handler was not invoked in time")
	}

	mu.Lock()
	defer mu.Unlock()
	if got.OrderID != "O1" {
		t.Errorf("expected order id O1, got %s", got.OrderID)
	}
}

func TestBus_HandlerPanicDoesNotCrashDispatcher(t *testing.T) {
	bus := NewBus(zerolog.Nop(), 4)

	recovered := make(chan struct{})
	bus.Subscribe(KindOrderPaid, func(ctx context.Context, env Envelope) error {
		panic("boom")
	})
	bus.Subscribe(KindOrderPaid, func(ctx context.Context, env Envelope) error {
		close(recovered)
		return nil
	})

	ctx := context.Background()
	bus.Start(ctx)
	defer bus.Close()

	bus.Publish(ctx, KindOrderPaid, OrderPaidEvent{Order: tari.Order{OrderID: "O2"}})

	select {
	case <-recovered:
	case <-time.After(time.Second):
		t.Fatal("second handler never ran after first handler panicked")
	}
}

func TestBus_CloseDrainsThenReturns(t *testing.T) {
	bus := NewBus(zerolog.Nop(), 1)
	var count int32
	var mu sync.Mutex
	bus.Subscribe(KindOrderModified, func(ctx context.Context, env Envelope) error {
		mu.Lock()
		count++
		mu.Unlock()
		return nil
	})

	ctx := context.Background()
	bus.Start(ctx)
	bus.Publish(ctx, KindOrderModified, OrderModifiedEvent{})
	bus.Close()

	mu.Lock()
	defer mu.Unlock()
	if count != 1 {
		t.Errorf("expected handler to run exactly once before close returned, got %d", count)
	}
}

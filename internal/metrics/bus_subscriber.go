package metrics

import (
	"context"

	"github.com/tarigateway/reconciler/internal/events"
)

// SubscribeBus registers the counters that are fed from domain events.
// Must be called before bus.Start, like any other subscriber.
func SubscribeBus(bus *events.Bus, m *Metrics) {
	bus.Subscribe(events.KindNewOrder, func(_ context.Context, env events.Envelope) error {
		if e, ok := env.Payload.(events.NewOrderEvent); ok {
			m.OrdersIngestedTotal.WithLabelValues(string(e.Order.Status)).Inc()
		}
		return nil
	})
	bus.Subscribe(events.KindOrderPaid, func(_ context.Context, env events.Envelope) error {
		if e, ok := env.Payload.(events.OrderPaidEvent); ok {
			m.OrdersPaidTotal.WithLabelValues(e.Order.Currency).Inc()
		}
		return nil
	})
	bus.Subscribe(events.KindOrderAnnulled, func(_ context.Context, env events.Envelope) error {
		if e, ok := env.Payload.(events.OrderAnnulledEvent); ok {
			m.OrdersAnnulledTotal.WithLabelValues(string(e.Order.Status)).Inc()
		}
		return nil
	})
	bus.Subscribe(events.KindOrderClaimed, func(_ context.Context, env events.Envelope) error {
		m.OrderClaimsTotal.Inc()
		return nil
	})
	bus.Subscribe(events.KindPaymentReceived, func(_ context.Context, env events.Envelope) error {
		if e, ok := env.Payload.(events.PaymentReceivedEvent); ok {
			m.ObservePaymentReceived(string(e.Payment.PaymentType), int64(e.Payment.Amount))
		}
		return nil
	})
	bus.Subscribe(events.KindPaymentConfirmed, func(_ context.Context, env events.Envelope) error {
		if e, ok := env.Payload.(events.PaymentConfirmedEvent); ok {
			m.PaymentsConfirmedTotal.WithLabelValues(string(e.Payment.Status)).Inc()
		}
		return nil
	})
}

package engine

import (
	"context"
	"time"

	"github.com/tarigateway/reconciler/internal/engineerr"
	"github.com/tarigateway/reconciler/internal/events"
	"github.com/tarigateway/reconciler/internal/tari"
)

// ExpireNow runs one expiry pass on demand: every order in fromStatus
// older than olderThan moves to Expired, each emitting OrderAnnulled.
// Exposed to the admin adapter's "expire" operation in addition to the
// periodic expiry.Worker tick.
func (e *Engine) ExpireNow(ctx context.Context, fromStatus tari.OrderStatus, olderThan time.Duration) ([]tari.Order, error) {
	expired, err := e.store.ExpireOrders(ctx, fromStatus, olderThan)
	if err != nil {
		return nil, err
	}
	for _, order := range expired {
		e.publish(ctx, events.KindOrderAnnulled, events.OrderAnnulledEvent{Order: order})
	}
	return expired, nil
}

// UpdatePrice changes an order's total_price. Only legal while the order
// is New; a price decrease may immediately make the order payable, so
// settlement is re-run for the order's customer afterward.
func (e *Engine) UpdatePrice(ctx context.Context, orderID string, newPrice tari.MicroTari) (tari.Order, error) {
	if !newPrice.IsPositive() {
		return tari.Order{}, engineerr.New(engineerr.CodeOrderModificationForbidden, "new_price must be positive")
	}

	order, err := e.store.FetchOrderByID(ctx, orderID)
	if err != nil {
		return tari.Order{}, err
	}
	if order.Status != tari.OrderNew {
		return order, engineerr.New(engineerr.CodeOrderModificationForbidden, "price change requires New status")
	}

	order, err = e.store.ModifyOrder(ctx, orderID, tari.OrderPatch{TotalPrice: &newPrice})
	if err != nil {
		return tari.Order{}, err
	}

	e.publish(ctx, events.KindOrderModified, events.OrderModifiedEvent{Order: order})

	if settled, err := e.settleMultiAddress(ctx, order); err == nil {
		order = settled
	}

	return order, nil
}

// UpdateMemo changes an order's memo. Permitted in any non-terminal
// state; memo changes never affect settlement.
func (e *Engine) UpdateMemo(ctx context.Context, orderID string, memo string) (tari.Order, error) {
	order, err := e.store.FetchOrderByID(ctx, orderID)
	if err != nil {
		return tari.Order{}, err
	}
	if order.IsTerminal() {
		return order, engineerr.New(engineerr.CodeOrderModificationForbidden, "order is in a terminal state")
	}

	order, err = e.store.ModifyOrder(ctx, orderID, tari.OrderPatch{Memo: &memo})
	if err != nil {
		return tari.Order{}, err
	}

	e.publish(ctx, events.KindOrderModified, events.OrderModifiedEvent{Order: order})
	return order, nil
}

// ReassignCustomer moves an order to a different customer_id. Forbidden
// once the order is Paid. Settlement is re-run under the new customer
// since the set of balances reachable from the order has changed.
func (e *Engine) ReassignCustomer(ctx context.Context, orderID string, newCustomerID string) (tari.Order, error) {
	order, err := e.store.FetchOrderByID(ctx, orderID)
	if err != nil {
		return tari.Order{}, err
	}
	if order.Status == tari.OrderPaid {
		return order, engineerr.New(engineerr.CodeOrderModificationForbidden, "cannot reassign a paid order")
	}

	order, err = e.store.ModifyOrder(ctx, orderID, tari.OrderPatch{CustomerID: &newCustomerID})
	if err != nil {
		return tari.Order{}, err
	}

	e.publish(ctx, events.KindOrderModified, events.OrderModifiedEvent{Order: order})

	if order.Status == tari.OrderNew {
		if settled, err := e.settleMultiAddress(ctx, order); err == nil {
			order = settled
		}
	}

	return order, nil
}

// MarkNewOrderAsPaid issues an internal credit-note for exactly the
// order's total_price under its customer, then runs multi-address
// settlement. Only legal from New. The settlement that follows a
// freshly-issued exact credit-note must always succeed; a failure here
// indicates a bug in the credit-note or settlement path, not a business
// condition, so it is surfaced as a backend error rather than
// InsufficientFunds.
func (e *Engine) MarkNewOrderAsPaid(ctx context.Context, orderID string, reason string) (tari.Order, error) {
	order, err := e.store.FetchOrderByID(ctx, orderID)
	if err != nil {
		return tari.Order{}, err
	}
	if order.Status != tari.OrderNew {
		return order, engineerr.New(engineerr.CodeOrderModificationForbidden, "mark_paid requires New status")
	}

	if _, err := e.store.CreditNote(ctx, order.CustomerID, order.TotalPrice, reason); err != nil {
		return order, err
	}

	settled, err := e.settleMultiAddress(ctx, order)
	if err != nil {
		return order, engineerr.BackendError("credit-note settlement did not pay order: " + err.Error())
	}

	return settled, nil
}

// CreditNote issues an administrative credit of amount under customerID's
// deterministically derived dummy address, then
// attempts to pay any of that customer's open orders the credit now
// covers. Unlike MarkNewOrderAsPaid, settlement failure here (the credit
// doesn't cover any open order yet) is not an error; the balance still
// lands.
func (e *Engine) CreditNote(ctx context.Context, customerID string, amount tari.MicroTari, reason string) (tari.Payment, error) {
	payment, err := e.store.CreditNote(ctx, customerID, amount, reason)
	if err != nil {
		return tari.Payment{}, err
	}

	e.publish(ctx, events.KindPaymentReceived, events.PaymentReceivedEvent{Payment: payment})
	e.settleSingleAddress(ctx, payment.Sender)

	return payment, nil
}

// Cancel moves any non-Paid order to Cancelled.
func (e *Engine) Cancel(ctx context.Context, orderID string, reason string) (tari.Order, error) {
	order, err := e.store.FetchOrderByID(ctx, orderID)
	if err != nil {
		return tari.Order{}, err
	}

	if _, err := nextOrderStatus(order.Status, eventAdminCancel); err != nil {
		return order, err
	}

	order, err = e.store.UpdateOrderStatus(ctx, orderID, tari.OrderCancelled)
	if err != nil {
		return tari.Order{}, err
	}

	e.logger.Info().Str("order_id", orderID).Str("reason", reason).Msg("engine.order_cancelled")
	e.publish(ctx, events.KindOrderAnnulled, events.OrderAnnulledEvent{Order: order})
	return order, nil
}

// Reset moves an Expired or Cancelled order back to New without
// attempting any automatic payment.
func (e *Engine) Reset(ctx context.Context, orderID string) (tari.Order, error) {
	order, err := e.store.FetchOrderByID(ctx, orderID)
	if err != nil {
		return tari.Order{}, err
	}

	if _, err := nextOrderStatus(order.Status, eventAdminReset); err != nil {
		return order, err
	}

	order, err = e.store.UpdateOrderStatus(ctx, orderID, tari.OrderNew)
	if err != nil {
		return tari.Order{}, err
	}

	e.publish(ctx, events.KindOrderModified, events.OrderModifiedEvent{Order: order})
	return order, nil
}

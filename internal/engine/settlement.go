package engine

import (
	"context"

	"github.com/tarigateway/reconciler/internal/engineerr"
	"github.com/tarigateway/reconciler/internal/events"
	"github.com/tarigateway/reconciler/internal/tari"
)

// settleSingleAddress implements the single-address settlement variant,
// triggered by a payment or claim from one address. It walks that
// address's payable orders oldest-first, paying as many as the
// address's balance covers, and returns the orders that transitioned to
// Paid.
func (e *Engine) settleSingleAddress(ctx context.Context, address tari.Address) ([]tari.Order, error) {
	balance, err := e.store.FetchAddressBalance(ctx, address)
	if err != nil {
		return nil, err
	}

	// An ambiguous customer link surfaces here; it is not fatal to the
	// caller's originating operation, it just means this settlement
	// attempt makes no progress.
	orders, err := e.store.FetchPayableOrdersForAddress(ctx, address)
	if err != nil {
		return nil, err
	}

	remaining := balance.CurrentBalance
	var paid []tari.Order
	for _, order := range orders {
		if remaining < order.TotalPrice {
			break
		}

		if _, err := nextOrderStatus(order.Status, eventSettle); err != nil {
			continue
		}

		if _, err := e.store.InsertSettlement(ctx, tari.SettlementJournalEntry{
			OrderID:        order.OrderID,
			PaymentAddress: address,
			Amount:         order.TotalPrice,
			SettlementType: tari.SettlementSingle,
		}); err != nil {
			return paid, err
		}

		updated, err := e.store.UpdateOrderStatus(ctx, order.OrderID, tari.OrderPaid)
		if err != nil {
			return paid, err
		}

		next, err := remaining.Sub(order.TotalPrice)
		if err != nil {
			return paid, engineerr.DatabaseError(err.Error())
		}
		remaining = next

		paid = append(paid, updated)
	}

	for _, order := range paid {
		e.publish(ctx, events.KindOrderPaid, events.OrderPaidEvent{Order: order})
	}
	return paid, nil
}

// settleMultiAddress implements the multi-address settlement variant,
// triggered when a specific order needs payment from any of the
// customer's addresses (admin fulfillment or post-reassignment). It
// spends from the largest balances first and fails with
// CodeInsufficientFunds (non-fatal) if the customer's addresses don't
// together cover the order's price.
func (e *Engine) settleMultiAddress(ctx context.Context, order tari.Order) (tari.Order, error) {
	if _, err := nextOrderStatus(order.Status, eventSettle); err != nil {
		return order, err
	}

	balances, err := e.store.BalancesForCustomerID(ctx, order.CustomerID)
	if err != nil {
		return order, err
	}

	var total tari.MicroTari
	for _, b := range balances {
		sum, err := total.Add(b.CurrentBalance)
		if err != nil {
			return order, engineerr.DatabaseError(err.Error())
		}
		total = sum
	}
	if total < order.TotalPrice {
		return order, engineerr.New(engineerr.CodeInsufficientFunds, "customer balances do not cover order total")
	}

	settlementType := tari.SettlementMultiple
	if len(balances) > 0 && balances[0].CurrentBalance >= order.TotalPrice {
		settlementType = tari.SettlementSingle
	}

	remainingDue := order.TotalPrice
	for _, b := range balances {
		if remainingDue.IsZero() {
			break
		}
		amount := b.CurrentBalance.Min(remainingDue)
		if amount.IsZero() {
			continue
		}

		if _, err := e.store.InsertSettlement(ctx, tari.SettlementJournalEntry{
			OrderID:        order.OrderID,
			PaymentAddress: b.Address,
			Amount:         amount,
			SettlementType: settlementType,
		}); err != nil {
			return order, err
		}

		due, err := remainingDue.Sub(amount)
		if err != nil {
			return order, engineerr.DatabaseError(err.Error())
		}
		remainingDue = due
	}

	updated, err := e.store.UpdateOrderStatus(ctx, order.OrderID, tari.OrderPaid)
	if err != nil {
		return order, err
	}

	e.publish(ctx, events.KindOrderPaid, events.OrderPaidEvent{Order: updated})
	return updated, nil
}

package engine

import (
	"context"

	"github.com/tarigateway/reconciler/internal/engineerr"
	"github.com/tarigateway/reconciler/internal/events"
	"github.com/tarigateway/reconciler/internal/memoparse"
	"github.com/tarigateway/reconciler/internal/persistence"
	"github.com/tarigateway/reconciler/internal/tari"
)

// ProcessNewPayment ingests an on-chain or manual payment notification.
// It is idempotent on txid (the primary replay defense, enforced by the
// store) and always credits the sender's balance before attempting
// settlement, regardless of whether the memo resolves to an order.
func (e *Engine) ProcessNewPayment(ctx context.Context, in persistence.NewPayment) (tari.Payment, error) {
	payment, err := e.store.InsertPayment(ctx, in)
	if err != nil {
		if ee, ok := err.(*engineerr.Error); ok && ee.Code == engineerr.CodePaymentAlreadyExists {
			return payment, nil
		}
		return tari.Payment{}, err
	}

	if orderID, ok := memoparse.ExtractOrderID(payment.Memo); ok {
		e.linkPaymentToOrder(ctx, payment.Sender, orderID)
	}

	if _, err := e.store.CreditBalance(ctx, payment.Sender, payment.Amount); err != nil {
		return payment, err
	}

	e.publish(ctx, events.KindPaymentReceived, events.PaymentReceivedEvent{Payment: payment})

	if e.cfg.SettleOnReceived {
		e.settleSingleAddress(ctx, payment.Sender)
	}

	return payment, nil
}

// linkPaymentToOrder links sender to the referenced order's customer.
// The link is skipped when the order doesn't exist, and when sender
// already belongs to a different customer: a memo referencing a foreign
// order still credits the balance, but it must not graft a second
// customer onto the address, which would leave every later settlement
// attempt for the legitimate customer failing as ambiguous.
func (e *Engine) linkPaymentToOrder(ctx context.Context, sender tari.Address, orderID string) {
	order, err := e.store.FetchOrderByID(ctx, orderID)
	if err != nil {
		return
	}

	customers, err := e.store.CustomersForAddress(ctx, sender)
	if err != nil {
		return
	}
	for _, c := range customers {
		if c != order.CustomerID {
			e.logger.Warn().
				Str("order_id", orderID).
				Str("order_customer_id", order.CustomerID).
				Str("linked_customer_id", c).
				Msg("engine.payment_memo_foreign_order_ignored")
			return
		}
	}

	_ = e.store.LinkAddressToCustomer(ctx, sender, order.CustomerID)
}

// ConfirmPayment transitions a Received payment to Confirmed and
// re-attempts single-address settlement, since a newly confirmed payment
// may newly be enough to pay orders that were held for confirmation under
// SettleOnReceived=false.
func (e *Engine) ConfirmPayment(ctx context.Context, txid string) (tari.Payment, error) {
	payment, err := e.store.UpdatePaymentStatus(ctx, txid, tari.PaymentConfirmed)
	if err != nil {
		return tari.Payment{}, err
	}

	e.publish(ctx, events.KindPaymentConfirmed, events.PaymentConfirmedEvent{Payment: payment})
	e.settleSingleAddress(ctx, payment.Sender)

	return payment, nil
}

// CancelPayment transitions a Received payment to Cancelled. The
// already-credited balance is not reversed: only
// Received->{Confirmed,Cancelled} is a legal status move, and balance
// debits happen only through settlement, never through payment status.
func (e *Engine) CancelPayment(ctx context.Context, txid string) (tari.Payment, error) {
	return e.store.UpdatePaymentStatus(ctx, txid, tari.PaymentCancelled)
}

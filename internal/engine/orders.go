package engine

import (
	"context"

	"github.com/tarigateway/reconciler/internal/engineerr"
	"github.com/tarigateway/reconciler/internal/events"
	"github.com/tarigateway/reconciler/internal/persistence"
	"github.com/tarigateway/reconciler/internal/sig"
	"github.com/tarigateway/reconciler/internal/tari"
)

// NewOrderInput is the input to ProcessNewOrder. Claim is optional: a
// storefront may submit an order together with the memo signature the
// customer's wallet already produced, in which case the order starts
// life as New instead of Unclaimed.
type NewOrderInput struct {
	Order persistence.NewOrder
	Claim *OrderClaim
}

// OrderClaim pairs a wallet address with the memo signature binding it
// to an order_id.
type OrderClaim struct {
	Address   tari.Address
	Signature sig.Signature
}

// ProcessNewOrder ingests a storefront-originated order. It is idempotent
// on order_id: replaying the same order_id returns the existing order
// rather than erroring.
func (e *Engine) ProcessNewOrder(ctx context.Context, in NewOrderInput) (tari.Order, error) {
	order, created, err := e.store.InsertOrder(ctx, in.Order)
	if err != nil {
		return tari.Order{}, err
	}
	if !created {
		return order, nil
	}

	e.publish(ctx, events.KindNewOrder, events.NewOrderEvent{Order: order})

	if in.Claim == nil {
		return order, nil
	}
	if err := sig.VerifyMemo(in.Claim.Address, order.OrderID, in.Claim.Signature); err != nil {
		// An order with an unverifiable claim still ingests successfully;
		// it simply stays Unclaimed pending a real claim_order call.
		return order, nil
	}

	order, err = e.claimVerified(ctx, order, in.Claim.Address, nil)
	if err != nil {
		return order, err
	}

	// An order arriving with its claim already embedded settles against
	// the whole customer, not just the claiming address: the customer
	// may already hold credit linked to a different address.
	if settled, serr := e.settleMultiAddress(ctx, order); serr == nil {
		order = settled
	}
	return order, nil
}

// ClaimOrder binds a wallet address to an order once the wallet's memo
// signature verifies, moving the order to New and attempting
// single-address settlement immediately in case the claiming address
// already holds enough balance to cover it. allowed is the set of
// statuses the order may be claimed from; pass nil to allow only the
// default Unclaimed (a caller holding Role::Write-equivalent privilege
// may widen it to admit re-claiming a New or Expired order).
func (e *Engine) ClaimOrder(ctx context.Context, orderID string, address tari.Address, signature sig.Signature, allowed []tari.OrderStatus) (tari.Order, error) {
	if err := sig.VerifyMemo(address, orderID, signature); err != nil {
		return tari.Order{}, engineerr.New(engineerr.CodeInvalidSignature, err.Error())
	}

	order, err := e.store.FetchOrderByID(ctx, orderID)
	if err != nil {
		return tari.Order{}, err
	}

	order, err = e.claimVerified(ctx, order, address, allowed)
	if err != nil {
		return order, err
	}

	if paid, serr := e.settleSingleAddress(ctx, address); serr == nil {
		for _, p := range paid {
			if p.OrderID == order.OrderID {
				order = p
			}
		}
	}

	return order, nil
}

// claimVerified transitions order to New under address, assuming the
// memo signature has already verified and order.Status is one of
// allowed (nil meaning "Unclaimed only"). It links the address to the
// order's customer but leaves settlement to the caller, since
// ProcessNewOrder and ClaimOrder settle by different algorithms (§4.3.4
// vs §4.3.3).
func (e *Engine) claimVerified(ctx context.Context, order tari.Order, address tari.Address, allowed []tari.OrderStatus) (tari.Order, error) {
	if _, err := nextOrderStatus(order.Status, eventClaim, allowed...); err != nil {
		return order, err
	}

	if err := e.store.LinkAddressToCustomer(ctx, address, order.CustomerID); err != nil {
		return order, err
	}
	if err := e.store.LinkAddressToOrder(ctx, order.OrderID, address); err != nil {
		return order, err
	}

	order, err := e.store.UpdateOrderStatus(ctx, order.OrderID, tari.OrderNew)
	if err != nil {
		return order, err
	}

	e.publish(ctx, events.KindOrderClaimed, events.OrderClaimedEvent{Order: order, Address: address})

	return order, nil
}

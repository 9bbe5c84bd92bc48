// Package queryapi exposes the read-only projections a dashboard or
// support tool runs against: order/payment lookups, address and
// customer balances, creditor listings, and the combined
// orders+payments+settlements history for one order. It never mutates
// state; every method is a direct pass-through to persistence.Store /
// persistence.QueryStore.
package queryapi

import (
	"context"

	"github.com/tarigateway/reconciler/internal/persistence"
	"github.com/tarigateway/reconciler/internal/tari"
)

// Adapter is the query adapter. Construct with New.
type Adapter struct {
	store      persistence.Store
	queryStore persistence.QueryStore
}

// New constructs an Adapter. store and queryStore are typically the
// same backend value, accepted separately so a caller can compose a
// Store that doesn't itself implement QueryStore with a dedicated
// read-replica implementation if one is ever needed.
func New(store persistence.Store, queryStore persistence.QueryStore) *Adapter {
	return &Adapter{store: store, queryStore: queryStore}
}

// OrderByID looks up a single order.
func (a *Adapter) OrderByID(ctx context.Context, orderID string) (tari.Order, error) {
	return a.store.FetchOrderByID(ctx, orderID)
}

// OrdersForAddress lists every order reachable from address via its
// customer links.
func (a *Adapter) OrdersForAddress(ctx context.Context, address tari.Address, page persistence.Pagination) ([]tari.Order, error) {
	return a.queryStore.ListOrdersForAddress(ctx, address, page)
}

// OrdersByFilter lists orders matching filter.
func (a *Adapter) OrdersByFilter(ctx context.Context, filter persistence.OrderFilter, page persistence.Pagination) ([]tari.Order, error) {
	return a.queryStore.ListOrdersByFilter(ctx, filter, page)
}

// PaymentsForAddress lists every payment sent from address.
func (a *Adapter) PaymentsForAddress(ctx context.Context, address tari.Address, page persistence.Pagination) ([]tari.Payment, error) {
	return a.queryStore.ListPaymentsForAddress(ctx, address, page)
}

// AddressBalance returns address's current derived balance.
func (a *Adapter) AddressBalance(ctx context.Context, address tari.Address) (tari.AddressBalance, error) {
	return a.store.FetchAddressBalance(ctx, address)
}

// CustomerBalance returns a customer's total outstanding order balance
// across its non-terminal orders.
func (a *Adapter) CustomerBalance(ctx context.Context, customerID string) (tari.CustomerOrderBalance, error) {
	return a.queryStore.CustomerOrderBalance(ctx, customerID)
}

// Creditors lists every address with a positive current balance,
// balance-descending.
func (a *Adapter) Creditors(ctx context.Context, page persistence.Pagination) ([]tari.AddressBalance, error) {
	return a.queryStore.ListCreditors(ctx, page)
}

// CustomerIDs lists every distinct customer_id with at least one order.
func (a *Adapter) CustomerIDs(ctx context.Context, page persistence.Pagination) ([]string, error) {
	return a.queryStore.ListCustomerIDs(ctx, page)
}

// Addresses lists every address with a recorded customer link.
func (a *Adapter) Addresses(ctx context.Context, page persistence.Pagination) ([]tari.Address, error) {
	return a.queryStore.ListAddresses(ctx, page)
}

// History returns the combined orders+payments+settlements projection
// for one order.
func (a *Adapter) History(ctx context.Context, orderID string) (persistence.OrderHistory, error) {
	return a.queryStore.OrderHistory(ctx, orderID)
}

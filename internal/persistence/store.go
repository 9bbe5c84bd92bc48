// Package persistence defines the atomic operation set the order-flow
// engine runs against, and provides the in-memory implementation of it;
// the Postgres and MongoDB implementations live in package storage.
package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/tarigateway/reconciler/internal/tari"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("persistence: not found")

// NewOrder is the input to InsertOrder.
type NewOrder struct {
	OrderID    string
	CustomerID string
	Memo       string
	TotalPrice tari.MicroTari
	Currency   string
}

// NewPayment is the input to InsertPayment.
type NewPayment struct {
	TxID        string
	Sender      tari.Address
	Amount      tari.MicroTari
	Memo        string
	OrderID     string
	PaymentType tari.PaymentType
}

// Store captures every persistence operation the engine needs. Each
// method is one commit boundary: partial failure rolls back.
type Store interface {
	InsertOrder(ctx context.Context, order NewOrder) (tari.Order, bool, error)
	FetchOrderByID(ctx context.Context, orderID string) (tari.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID string, status tari.OrderStatus) (tari.Order, error)
	ModifyOrder(ctx context.Context, orderID string, patch tari.OrderPatch) (tari.Order, error)

	InsertPayment(ctx context.Context, payment NewPayment) (tari.Payment, error)
	FetchPaymentByTxID(ctx context.Context, txid string) (tari.Payment, error)
	UpdatePaymentStatus(ctx context.Context, txid string, status tari.PaymentStatus) (tari.Payment, error)
	CreditNote(ctx context.Context, customerID string, amount tari.MicroTari, reason string) (tari.Payment, error)

	LinkAddressToCustomer(ctx context.Context, address tari.Address, customerID string) error
	LinkAddressToOrder(ctx context.Context, orderID string, address tari.Address) error
	CustomersForAddress(ctx context.Context, address tari.Address) ([]string, error)
	FetchPayableOrdersForAddress(ctx context.Context, address tari.Address) ([]tari.Order, error)

	CreditBalance(ctx context.Context, address tari.Address, amount tari.MicroTari) (tari.AddressBalance, error)
	InsertSettlement(ctx context.Context, entry tari.SettlementJournalEntry) (tari.SettlementJournalEntry, error)
	FetchAddressBalance(ctx context.Context, address tari.Address) (tari.AddressBalance, error)
	BalancesForCustomerID(ctx context.Context, customerID string) ([]tari.AddressBalance, error)

	ExpireOrders(ctx context.Context, fromStatus tari.OrderStatus, olderThan time.Duration) ([]tari.Order, error)

	AuthLogUpsert(ctx context.Context, address tari.Address, nonce int64) error

	RegisterWallet(ctx context.Context, address tari.Address, ipAddress string, initialNonce int64) (tari.WalletAuth, error)
	DeregisterWallet(ctx context.Context, address tari.Address) error
	WalletAuthLookup(ctx context.Context, address tari.Address) (tari.WalletAuth, error)
	WalletNonceUpdate(ctx context.Context, address tari.Address, nonce int64) error

	RoleSetAssign(ctx context.Context, address tari.Address, roles ...tari.Role) (tari.RoleSet, error)
	RoleSetRemove(ctx context.Context, address tari.Address, roles ...tari.Role) (tari.RoleSet, error)
	RoleSetFetch(ctx context.Context, address tari.Address) (tari.RoleSet, error)

	SetExchangeRate(ctx context.Context, currency string, rate int64) (tari.ExchangeRate, error)
	LatestExchangeRate(ctx context.Context, currency string) (tari.ExchangeRate, error)

	Close() error
}

// Pagination bounds a listing query. A zero Limit means "use the
// backend's default page size".
type Pagination struct {
	Limit  int
	Offset int
}

// OrderFilter narrows an orders_by_filter query. Zero-value fields are
// unconstrained; CreatedAfter/CreatedBefore are inclusive/exclusive
// bounds respectively and are ignored when zero.
type OrderFilter struct {
	Memo          string
	CustomerID    string
	Currency      string
	Status        tari.OrderStatus
	CreatedAfter  time.Time
	CreatedBefore time.Time
}

// OrderHistory is the combined orders+payments+settlements projection
// for one order.
type OrderHistory struct {
	Order       tari.Order
	Payments    []tari.Payment
	Settlements []tari.SettlementJournalEntry
}

// QueryStore is the read-only projection set the query adapter runs
// against. Every Store backend also satisfies QueryStore.
type QueryStore interface {
	ListOrdersByFilter(ctx context.Context, filter OrderFilter, page Pagination) ([]tari.Order, error)
	ListOrdersForAddress(ctx context.Context, address tari.Address, page Pagination) ([]tari.Order, error)
	ListPaymentsForAddress(ctx context.Context, address tari.Address, page Pagination) ([]tari.Payment, error)
	ListCreditors(ctx context.Context, page Pagination) ([]tari.AddressBalance, error)
	ListCustomerIDs(ctx context.Context, page Pagination) ([]string, error)
	ListAddresses(ctx context.Context, page Pagination) ([]tari.Address, error)
	CustomerOrderBalance(ctx context.Context, customerID string) (tari.CustomerOrderBalance, error)
	OrderHistory(ctx context.Context, orderID string) (OrderHistory, error)
}

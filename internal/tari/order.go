package tari

import "time"

// OrderStatus is the lifecycle state of an Order.
type OrderStatus string

const (
	OrderUnclaimed OrderStatus = "unclaimed"
	OrderNew       OrderStatus = "new"
	OrderPaid      OrderStatus = "paid"
	OrderCancelled OrderStatus = "cancelled"
	OrderExpired   OrderStatus = "expired"
)

// Order is a storefront order awaiting or having received settlement.
//
// Invariants: TotalPrice > 0; once Status is OrderPaid the order is
// terminal except through administrative unwind; price cannot be
// modified once Status is one of {Paid, Cancelled, Expired}.
type Order struct {
	ID         int64
	OrderID    string
	CustomerID string
	Memo       string
	TotalPrice MicroTari
	Currency   string
	CreatedAt  time.Time
	UpdatedAt  time.Time
	Status     OrderStatus
}

// IsTerminal reports whether the order's status no longer accepts
// ordinary (non-administrative) mutation.
func (o Order) IsTerminal() bool {
	switch o.Status {
	case OrderPaid, OrderCancelled, OrderExpired:
		return true
	default:
		return false
	}
}

// OrderPatch describes the mutable fields of modify_order. A nil pointer
// field means "leave unchanged".
type OrderPatch struct {
	Memo       *string
	TotalPrice *MicroTari
	Currency   *string
	Status     *OrderStatus
	CustomerID *string
}

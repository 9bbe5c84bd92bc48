package tari

import "time"

// PaymentType distinguishes on-chain transfers from administrative credits.
type PaymentType string

const (
	PaymentOnChain PaymentType = "on_chain"
	PaymentManual  PaymentType = "manual"
)

// PaymentStatus is the lifecycle state of a Payment.
type PaymentStatus string

const (
	PaymentReceived  PaymentStatus = "received"
	PaymentConfirmed PaymentStatus = "confirmed"
	PaymentCancelled PaymentStatus = "cancelled"
)

// Payment is an inbound transfer, on-chain or administrative.
//
// Invariants: TxID is globally unique (the replay defense); Status may
// transition only Received->Confirmed or Received->Cancelled; Amount
// never changes after insert.
type Payment struct {
	TxID        string
	Sender      Address
	Amount      MicroTari
	Memo        string
	OrderID     string
	PaymentType PaymentType
	Status      PaymentStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CanTransitionTo reports whether moving from the payment's current
// status to next is a permitted transition.
func (p Payment) CanTransitionTo(next PaymentStatus) bool {
	if p.Status != PaymentReceived {
		return false
	}
	return next == PaymentConfirmed || next == PaymentCancelled
}

// SettlementType records whether an order's price was covered by one
// address or split across several.
type SettlementType string

const (
	SettlementSingle   SettlementType = "single"
	SettlementMultiple SettlementType = "multiple"
)

// SettlementJournalEntry is an append-only record of funds applied to an
// order's price. The sum of entries for an order_id equals that order's
// total_price at the instant it becomes Paid.
type SettlementJournalEntry struct {
	ID             int64
	OrderID        string
	PaymentAddress Address
	Amount         MicroTari
	SettlementType SettlementType
	CreatedAt      time.Time
}

// AddressBalance is a derived projection maintained alongside payments
// and settlements.
//
// Invariant: CurrentBalance = sum(confirmed credits) - sum(settlements);
// CurrentBalance >= 0.
type AddressBalance struct {
	Address       Address
	TotalReceived MicroTari
	CurrentBalance MicroTari
	LastUpdate    time.Time
}

// CustomerOrderBalance is a derived projection: the sum of total_price
// over a customer's open (non-terminal) orders.
type CustomerOrderBalance struct {
	CustomerID string
	Balance    MicroTari
}

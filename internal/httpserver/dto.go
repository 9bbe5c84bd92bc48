package httpserver

import (
	"net/url"
	"time"

	"github.com/tarigateway/reconciler/internal/persistence"
	"github.com/tarigateway/reconciler/internal/tari"
)

// None of tari.Address or tari.MicroTari carry JSON marshaling of their
// own, so every response here is built as an explicit DTO rather than
// marshaling a domain type directly.

type orderDTO struct {
	ID         int64     `json:"id"`
	OrderID    string    `json:"order_id"`
	CustomerID string    `json:"customer_id"`
	Memo       string    `json:"memo"`
	TotalPrice int64     `json:"total_price"`
	Currency   string    `json:"currency"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func newOrderDTO(o tari.Order) orderDTO {
	return orderDTO{
		ID:         o.ID,
		OrderID:    o.OrderID,
		CustomerID: o.CustomerID,
		Memo:       o.Memo,
		TotalPrice: int64(o.TotalPrice),
		Currency:   o.Currency,
		Status:     string(o.Status),
		CreatedAt:  o.CreatedAt,
		UpdatedAt:  o.UpdatedAt,
	}
}

func newOrderDTOs(orders []tari.Order) []orderDTO {
	out := make([]orderDTO, len(orders))
	for i, o := range orders {
		out[i] = newOrderDTO(o)
	}
	return out
}

type paymentDTO struct {
	TxID        string    `json:"txid"`
	Sender      string    `json:"sender"`
	Amount      int64     `json:"amount"`
	Memo        string    `json:"memo"`
	OrderID     string    `json:"order_id"`
	PaymentType string    `json:"payment_type"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func newPaymentDTO(p tari.Payment) paymentDTO {
	return paymentDTO{
		TxID:        p.TxID,
		Sender:      p.Sender.String(),
		Amount:      int64(p.Amount),
		Memo:        p.Memo,
		OrderID:     p.OrderID,
		PaymentType: string(p.PaymentType),
		Status:      string(p.Status),
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func newPaymentDTOs(payments []tari.Payment) []paymentDTO {
	out := make([]paymentDTO, len(payments))
	for i, p := range payments {
		out[i] = newPaymentDTO(p)
	}
	return out
}

type settlementEntryDTO struct {
	ID             int64     `json:"id"`
	OrderID        string    `json:"order_id"`
	PaymentAddress string    `json:"payment_address"`
	Amount         int64     `json:"amount"`
	SettlementType string    `json:"settlement_type"`
	CreatedAt      time.Time `json:"created_at"`
}

func newSettlementEntryDTOs(entries []tari.SettlementJournalEntry) []settlementEntryDTO {
	out := make([]settlementEntryDTO, len(entries))
	for i, e := range entries {
		out[i] = settlementEntryDTO{
			ID:             e.ID,
			OrderID:        e.OrderID,
			PaymentAddress: e.PaymentAddress.String(),
			Amount:         int64(e.Amount),
			SettlementType: string(e.SettlementType),
			CreatedAt:      e.CreatedAt,
		}
	}
	return out
}

type orderHistoryDTO struct {
	Order       orderDTO             `json:"order"`
	Payments    []paymentDTO         `json:"payments"`
	Settlements []settlementEntryDTO `json:"settlements"`
}

func newOrderHistoryDTO(h persistence.OrderHistory) orderHistoryDTO {
	return orderHistoryDTO{
		Order:       newOrderDTO(h.Order),
		Payments:    newPaymentDTOs(h.Payments),
		Settlements: newSettlementEntryDTOs(h.Settlements),
	}
}

type addressBalanceDTO struct {
	Address        string    `json:"address"`
	TotalReceived  int64     `json:"total_received"`
	CurrentBalance int64     `json:"current_balance"`
	LastUpdate     time.Time `json:"last_update"`
}

func newAddressBalanceDTO(b tari.AddressBalance) addressBalanceDTO {
	return addressBalanceDTO{
		Address:        b.Address.String(),
		TotalReceived:  int64(b.TotalReceived),
		CurrentBalance: int64(b.CurrentBalance),
		LastUpdate:     b.LastUpdate,
	}
}

func newAddressBalanceDTOs(balances []tari.AddressBalance) []addressBalanceDTO {
	out := make([]addressBalanceDTO, len(balances))
	for i, b := range balances {
		out[i] = newAddressBalanceDTO(b)
	}
	return out
}

type customerBalanceDTO struct {
	CustomerID string `json:"customer_id"`
	Balance    int64  `json:"balance"`
}

func newCustomerBalanceDTO(b tari.CustomerOrderBalance) customerBalanceDTO {
	return customerBalanceDTO{CustomerID: b.CustomerID, Balance: int64(b.Balance)}
}

type walletAuthDTO struct {
	Address   string `json:"address"`
	IPAddress string `json:"ip_address"`
	LastNonce int64  `json:"last_nonce"`
}

func newWalletAuthDTO(wa tari.WalletAuth) walletAuthDTO {
	return walletAuthDTO{Address: wa.Address.String(), IPAddress: wa.IPAddress, LastNonce: wa.LastNonce}
}

type exchangeRateDTO struct {
	BaseCurrency string    `json:"base_currency"`
	Rate         int64     `json:"rate"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func newExchangeRateDTO(r tari.ExchangeRate) exchangeRateDTO {
	return exchangeRateDTO{BaseCurrency: r.BaseCurrency, Rate: r.Rate, UpdatedAt: r.UpdatedAt}
}

func roleStrings(set tari.RoleSet) []string {
	roles := set.Slice()
	out := make([]string, len(roles))
	for i, r := range roles {
		out[i] = string(r)
	}
	return out
}

func parsePagination(limitStr, offsetStr string) persistence.Pagination {
	return persistence.Pagination{
		Limit:  atoiDefault(limitStr, 0),
		Offset: atoiDefault(offsetStr, 0),
	}
}

func buildOrderFilter(q url.Values) persistence.OrderFilter {
	filter := persistence.OrderFilter{
		Memo:       q.Get("memo"),
		CustomerID: q.Get("customer_id"),
		Currency:   q.Get("currency"),
		Status:     tari.OrderStatus(q.Get("status")),
	}
	if after := q.Get("created_after"); after != "" {
		if t, err := time.Parse(time.RFC3339, after); err == nil {
			filter.CreatedAfter = t
		}
	}
	if before := q.Get("created_before"); before != "" {
		if t, err := time.Parse(time.RFC3339, before); err == nil {
			filter.CreatedBefore = t
		}
	}
	return filter
}

package persistence

import (
	"context"
	"sort"

	"github.com/tarigateway/reconciler/internal/engineerr"
	"github.com/tarigateway/reconciler/internal/tari"
)

// paginate applies page to a slice already in its natural sort order.
func paginate[T any](items []T, page Pagination) []T {
	limit := page.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := page.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return nil
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

// ListOrdersByFilter returns every order matching filter, oldest-first,
// paginated.
func (m *MemoryStore) ListOrdersByFilter(_ context.Context, filter OrderFilter, page Pagination) ([]tari.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []tari.Order
	for _, order := range m.orders {
		if filter.Memo != "" && order.Memo != filter.Memo {
			continue
		}
		if filter.CustomerID != "" && order.CustomerID != filter.CustomerID {
			continue
		}
		if filter.Currency != "" && order.Currency != filter.Currency {
			continue
		}
		if filter.Status != "" && order.Status != filter.Status {
			continue
		}
		if !filter.CreatedAfter.IsZero() && order.CreatedAt.Before(filter.CreatedAfter) {
			continue
		}
		if !filter.CreatedBefore.IsZero() && !order.CreatedAt.Before(filter.CreatedBefore) {
			continue
		}
		out = append(out, *order)
	}
	sortOrdersOldestFirst(out)
	return paginate(out, page), nil
}

// ListOrdersForAddress returns every order reachable from address via its
// customer links, regardless of status, oldest-first, paginated. Unlike
// FetchPayableOrdersForAddress this is a read projection: an address
// linked to more than one customer returns the union rather than
// erroring.
func (m *MemoryStore) ListOrdersForAddress(_ context.Context, address tari.Address, page Pagination) ([]tari.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	customers := m.addressLinks[address]
	var out []tari.Order
	for _, order := range m.orders {
		if _, ok := customers[order.CustomerID]; ok {
			out = append(out, *order)
		}
	}
	sortOrdersOldestFirst(out)
	return paginate(out, page), nil
}

// ListPaymentsForAddress returns every payment sent from address,
// oldest-first, paginated.
func (m *MemoryStore) ListPaymentsForAddress(_ context.Context, address tari.Address, page Pagination) ([]tari.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []tari.Payment
	for _, p := range m.payments {
		if p.Sender == address {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return paginate(out, page), nil
}

// ListCreditors returns every address with a positive current balance,
// balance-descending, paginated.
func (m *MemoryStore) ListCreditors(_ context.Context, page Pagination) ([]tari.AddressBalance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []tari.AddressBalance
	for _, bal := range m.balances {
		if bal.CurrentBalance.IsPositive() {
			out = append(out, *bal)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CurrentBalance > out[j].CurrentBalance })
	return paginate(out, page), nil
}

// ListCustomerIDs returns every distinct customer_id that owns at least
// one order, sorted, paginated.
func (m *MemoryStore) ListCustomerIDs(_ context.Context, page Pagination) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[string]struct{})
	for _, order := range m.orders {
		seen[order.CustomerID] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return paginate(out, page), nil
}

// ListAddresses returns every address with a recorded customer link,
// sorted by base58 form, paginated.
func (m *MemoryStore) ListAddresses(_ context.Context, page Pagination) ([]tari.Address, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]tari.Address, 0, len(m.addressLinks))
	for addr := range m.addressLinks {
		out = append(out, addr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return paginate(out, page), nil
}

// CustomerOrderBalance sums total_price over customerID's open
// (non-terminal) orders.
func (m *MemoryStore) CustomerOrderBalance(_ context.Context, customerID string) (tari.CustomerOrderBalance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var total tari.MicroTari
	for _, order := range m.orders {
		if order.CustomerID != customerID || order.IsTerminal() {
			continue
		}
		sum, err := total.Add(order.TotalPrice)
		if err != nil {
			return tari.CustomerOrderBalance{}, engineerr.DatabaseError(err.Error())
		}
		total = sum
	}
	return tari.CustomerOrderBalance{CustomerID: customerID, Balance: total}, nil
}

// OrderHistory returns orderID together with every payment that
// references it by memo and every settlement entry recorded against it.
func (m *MemoryStore) OrderHistory(_ context.Context, orderID string) (OrderHistory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	order, ok := m.orders[orderID]
	if !ok {
		return OrderHistory{}, engineerr.OrderNotFound(orderID)
	}

	var payments []tari.Payment
	for _, p := range m.payments {
		if p.OrderID == orderID {
			payments = append(payments, *p)
		}
	}
	sort.Slice(payments, func(i, j int) bool { return payments[i].CreatedAt.Before(payments[j].CreatedAt) })

	var settlements []tari.SettlementJournalEntry
	for _, s := range m.settlements {
		if s.OrderID == orderID {
			settlements = append(settlements, s)
		}
	}
	sort.Slice(settlements, func(i, j int) bool { return settlements[i].ID < settlements[j].ID })

	return OrderHistory{Order: *order, Payments: payments, Settlements: settlements}, nil
}

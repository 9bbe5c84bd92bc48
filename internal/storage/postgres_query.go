package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/tarigateway/reconciler/internal/engineerr"
	"github.com/tarigateway/reconciler/internal/persistence"
	"github.com/tarigateway/reconciler/internal/tari"
)

// applyPage appends LIMIT/OFFSET to query, defaulting Limit to 50.
func applyPage(query string, page persistence.Pagination, nextArg int) (string, int, int) {
	limit := page.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := page.Offset
	if offset < 0 {
		offset = 0
	}
	return fmt.Sprintf("%s LIMIT $%d OFFSET $%d", query, nextArg, nextArg+1), limit, offset
}

// ListOrdersByFilter implements persistence.QueryStore.
func (p *PostgresStore) ListOrdersByFilter(ctx context.Context, filter persistence.OrderFilter, page persistence.Pagination) ([]tari.Order, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	var where []string
	var args []interface{}
	add := func(clause string, value interface{}) {
		args = append(args, value)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if filter.Memo != "" {
		add("memo = $%d", filter.Memo)
	}
	if filter.CustomerID != "" {
		add("customer_id = $%d", filter.CustomerID)
	}
	if filter.Currency != "" {
		add("currency = $%d", filter.Currency)
	}
	if filter.Status != "" {
		add("status = $%d", string(filter.Status))
	}
	if !filter.CreatedAfter.IsZero() {
		add("created_at >= $%d", filter.CreatedAfter)
	}
	if !filter.CreatedBefore.IsZero() {
		add("created_at < $%d", filter.CreatedBefore)
	}

	query := fmt.Sprintf(`SELECT %s FROM %s`, orderColumns, p.names.Orders)
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at ASC, id ASC"
	query, limit, offset := applyPage(query, page, len(args)+1)
	args = append(args, limit, offset)

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, engineerr.DatabaseError(err.Error())
	}
	defer rows.Close()

	var out []tari.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, engineerr.DatabaseError(err.Error())
		}
		out = append(out, order)
	}
	return out, rows.Err()
}

// ListOrdersForAddress implements persistence.QueryStore.
func (p *PostgresStore) ListOrdersForAddress(ctx context.Context, address tari.Address, page persistence.Pagination) ([]tari.Order, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	query := fmt.Sprintf(`SELECT %s FROM %s o
		WHERE o.customer_id IN (SELECT customer_id FROM %s WHERE address = $1)
		ORDER BY o.created_at ASC, o.id ASC`, orderColumns, p.names.Orders, p.names.CustomerLinks)
	query, limit, offset := applyPage(query, page, 2)

	rows, err := p.db.QueryContext(ctx, query, address.String(), limit, offset)
	if err != nil {
		return nil, engineerr.DatabaseError(err.Error())
	}
	defer rows.Close()

	var out []tari.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, engineerr.DatabaseError(err.Error())
		}
		out = append(out, order)
	}
	return out, rows.Err()
}

// ListPaymentsForAddress implements persistence.QueryStore.
func (p *PostgresStore) ListPaymentsForAddress(ctx context.Context, address tari.Address, page persistence.Pagination) ([]tari.Payment, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE sender = $1 ORDER BY created_at ASC`, paymentColumns, p.names.Payments)
	query, limit, offset := applyPage(query, page, 2)

	rows, err := p.db.QueryContext(ctx, query, address.String(), limit, offset)
	if err != nil {
		return nil, engineerr.DatabaseError(err.Error())
	}
	defer rows.Close()

	var out []tari.Payment
	for rows.Next() {
		payment, err := scanPayment(rows)
		if err != nil {
			return nil, engineerr.DatabaseError(err.Error())
		}
		out = append(out, payment)
	}
	return out, rows.Err()
}

// ListCreditors implements persistence.QueryStore.
func (p *PostgresStore) ListCreditors(ctx context.Context, page persistence.Pagination) ([]tari.AddressBalance, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	query := fmt.Sprintf(`SELECT address, total_received, current_balance, last_update FROM %s
		WHERE current_balance > 0 ORDER BY current_balance DESC`, p.names.Balances)
	query, limit, offset := applyPage(query, page, 1)

	rows, err := p.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, engineerr.DatabaseError(err.Error())
	}
	defer rows.Close()

	var out []tari.AddressBalance
	for rows.Next() {
		var addrStr string
		var total, current int64
		var lastUpdate interface{}
		if err := rows.Scan(&addrStr, &total, &current, &lastUpdate); err != nil {
			return nil, engineerr.DatabaseError(err.Error())
		}
		addr, err := tari.ParseAddress(addrStr)
		if err != nil {
			return nil, engineerr.DatabaseError(err.Error())
		}
		bal := tari.AddressBalance{Address: addr, TotalReceived: tari.MicroTari(total), CurrentBalance: tari.MicroTari(current)}
		out = append(out, bal)
	}
	return out, rows.Err()
}

// ListCustomerIDs implements persistence.QueryStore.
func (p *PostgresStore) ListCustomerIDs(ctx context.Context, page persistence.Pagination) ([]string, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	query := fmt.Sprintf(`SELECT DISTINCT customer_id FROM %s ORDER BY customer_id`, p.names.Orders)
	query, limit, offset := applyPage(query, page, 1)

	rows, err := p.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, engineerr.DatabaseError(err.Error())
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, engineerr.DatabaseError(err.Error())
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// ListAddresses implements persistence.QueryStore.
func (p *PostgresStore) ListAddresses(ctx context.Context, page persistence.Pagination) ([]tari.Address, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	query := fmt.Sprintf(`SELECT DISTINCT address FROM %s ORDER BY address`, p.names.CustomerLinks)
	query, limit, offset := applyPage(query, page, 1)

	rows, err := p.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, engineerr.DatabaseError(err.Error())
	}
	defer rows.Close()

	var out []tari.Address
	for rows.Next() {
		var addrStr string
		if err := rows.Scan(&addrStr); err != nil {
			return nil, engineerr.DatabaseError(err.Error())
		}
		addr, err := tari.ParseAddress(addrStr)
		if err != nil {
			return nil, engineerr.DatabaseError(err.Error())
		}
		out = append(out, addr)
	}
	return out, rows.Err()
}

// CustomerOrderBalance implements persistence.QueryStore.
func (p *PostgresStore) CustomerOrderBalance(ctx context.Context, customerID string) (tari.CustomerOrderBalance, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	query := fmt.Sprintf(`SELECT COALESCE(SUM(total_price), 0) FROM %s
		WHERE customer_id = $1 AND status NOT IN ($2, $3, $4)`, p.names.Orders)
	var sum int64
	err := p.db.QueryRowContext(ctx, query, customerID, string(tari.OrderPaid), string(tari.OrderCancelled), string(tari.OrderExpired)).Scan(&sum)
	if err != nil {
		return tari.CustomerOrderBalance{}, engineerr.DatabaseError(err.Error())
	}
	return tari.CustomerOrderBalance{CustomerID: customerID, Balance: tari.MicroTari(sum)}, nil
}

// OrderHistory implements persistence.QueryStore.
func (p *PostgresStore) OrderHistory(ctx context.Context, orderID string) (persistence.OrderHistory, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	order, err := p.FetchOrderByID(ctx, orderID)
	if err != nil {
		return persistence.OrderHistory{}, err
	}

	paymentQuery := fmt.Sprintf(`SELECT %s FROM %s WHERE order_id = $1 ORDER BY created_at ASC`, paymentColumns, p.names.Payments)
	prows, err := p.db.QueryContext(ctx, paymentQuery, orderID)
	if err != nil {
		return persistence.OrderHistory{}, engineerr.DatabaseError(err.Error())
	}
	defer prows.Close()
	var payments []tari.Payment
	for prows.Next() {
		payment, err := scanPayment(prows)
		if err != nil {
			return persistence.OrderHistory{}, engineerr.DatabaseError(err.Error())
		}
		payments = append(payments, payment)
	}
	if err := prows.Err(); err != nil {
		return persistence.OrderHistory{}, engineerr.DatabaseError(err.Error())
	}

	settlementQuery := fmt.Sprintf(`SELECT id, order_id, payment_address, amount, settlement_type, created_at
		FROM %s WHERE order_id = $1 ORDER BY id ASC`, p.names.Settlements)
	srows, err := p.db.QueryContext(ctx, settlementQuery, orderID)
	if err != nil {
		return persistence.OrderHistory{}, engineerr.DatabaseError(err.Error())
	}
	defer srows.Close()
	var settlements []tari.SettlementJournalEntry
	for srows.Next() {
		var entry tari.SettlementJournalEntry
		var addrStr, settlementType string
		var amount int64
		if err := srows.Scan(&entry.ID, &entry.OrderID, &addrStr, &amount, &settlementType, &entry.CreatedAt); err != nil {
			return persistence.OrderHistory{}, engineerr.DatabaseError(err.Error())
		}
		addr, err := tari.ParseAddress(addrStr)
		if err != nil {
			return persistence.OrderHistory{}, engineerr.DatabaseError(err.Error())
		}
		entry.PaymentAddress = addr
		entry.Amount = tari.MicroTari(amount)
		entry.SettlementType = tari.SettlementType(settlementType)
		settlements = append(settlements, entry)
	}
	if err := srows.Err(); err != nil {
		return persistence.OrderHistory{}, engineerr.DatabaseError(err.Error())
	}

	return persistence.OrderHistory{Order: order, Payments: payments, Settlements: settlements}, nil
}

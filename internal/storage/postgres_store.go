package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/tarigateway/reconciler/internal/config"
	"github.com/tarigateway/reconciler/internal/dbpool"
	"github.com/tarigateway/reconciler/internal/dummyaddr"
	"github.com/tarigateway/reconciler/internal/engineerr"
	"github.com/tarigateway/reconciler/internal/metrics"
	"github.com/tarigateway/reconciler/internal/persistence"
	"github.com/tarigateway/reconciler/internal/tari"
)

// PostgresStore implements persistence.Store against database/sql +
// github.com/lib/pq: configurable table names, CREATE TABLE IF NOT
// EXISTS bootstrap, and ON CONFLICT-based idempotent inserts in place
// of read-then-write.
//
// Address balances are maintained by Postgres triggers rather than
// application code: InsertPayment-adjacent credits and InsertSettlement
// debits each append to a log table, and a trigger on that log table
// folds the delta into address_balances. This is the SQL-trigger option
// named alongside Memory's application-level maintenance.
type PostgresStore struct {
	db      *sql.DB
	names   tableNames
	network byte
	metrics *metrics.Metrics
}

// NewPostgresStore opens a shared connection pool to databaseURL via
// internal/dbpool and bootstraps the schema.
func NewPostgresStore(databaseURL string, pool config.PostgresPoolConfig, names tableNames) (*PostgresStore, error) {
	shared, err := dbpool.NewSharedPool(databaseURL, pool)
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), DefaultQueryTimeout)
	defer cancel()

	store := NewPostgresStoreWithDB(shared.DB(), names)
	if err := store.bootstrap(ctx); err != nil {
		shared.Close()
		return nil, err
	}
	return store, nil
}

// NewPostgresStoreWithDB wraps an already-open *sql.DB, letting tests
// supply a connection without reopening the driver.
func NewPostgresStoreWithDB(db *sql.DB, names tableNames) *PostgresStore {
	return &PostgresStore{db: db, names: names, network: tari.NetworkMainNet}
}

func (p *PostgresStore) Close() error { return p.db.Close() }

// SetMetrics attaches a collector for query timings. A nil receiver
// field just skips observation.
func (p *PostgresStore) SetMetrics(m *metrics.Metrics) { p.metrics = m }

func (p *PostgresStore) measure(operation string) func() {
	return metrics.MeasureDBQuery(p.metrics, operation, "postgres")
}

func (p *PostgresStore) bootstrap(ctx context.Context) error {
	n := p.names
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id BIGSERIAL PRIMARY KEY,
			order_id TEXT NOT NULL UNIQUE,
			customer_id TEXT NOT NULL,
			memo TEXT NOT NULL DEFAULT '',
			total_price BIGINT NOT NULL,
			currency TEXT NOT NULL,
			status TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, n.Orders),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_status_idx ON %s (status, updated_at)`, n.Orders, n.Orders),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_customer_idx ON %s (customer_id)`, n.Orders, n.Orders),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			txid TEXT PRIMARY KEY,
			sender TEXT NOT NULL,
			amount BIGINT NOT NULL,
			memo TEXT NOT NULL DEFAULT '',
			order_id TEXT NOT NULL DEFAULT '',
			payment_type TEXT NOT NULL,
			status TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, n.Payments),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_order_idx ON %s (order_id)`, n.Payments, n.Payments),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			address TEXT NOT NULL,
			customer_id TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (address, customer_id)
		)`, n.CustomerLinks),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			address TEXT PRIMARY KEY,
			total_received BIGINT NOT NULL DEFAULT 0,
			current_balance BIGINT NOT NULL DEFAULT 0,
			last_update TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, n.Balances),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id BIGSERIAL PRIMARY KEY,
			address TEXT NOT NULL,
			amount BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, n.BalanceCredits),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id BIGSERIAL PRIMARY KEY,
			order_id TEXT NOT NULL,
			payment_address TEXT NOT NULL,
			amount BIGINT NOT NULL,
			settlement_type TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, n.Settlements),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_order_idx ON %s (order_id)`, n.Settlements, n.Settlements),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			address TEXT PRIMARY KEY,
			last_nonce BIGINT NOT NULL
		)`, n.AuthLogs),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			address TEXT PRIMARY KEY,
			ip_address TEXT NOT NULL,
			last_nonce BIGINT NOT NULL
		)`, n.WalletAuths),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			address TEXT NOT NULL,
			role TEXT NOT NULL,
			PRIMARY KEY (address, role)
		)`, n.Roles),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id BIGSERIAL PRIMARY KEY,
			currency TEXT NOT NULL,
			rate BIGINT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, n.ExchangeRates),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_currency_idx ON %s (currency, updated_at DESC)`, n.ExchangeRates, n.ExchangeRates),

		// apply_balance_credit folds a balance_credits row into
		// address_balances as soon as it is inserted.
		fmt.Sprintf(`CREATE OR REPLACE FUNCTION apply_balance_credit() RETURNS TRIGGER AS $body$
		BEGIN
			INSERT INTO %s (address, total_received, current_balance, last_update)
			VALUES (NEW.address, NEW.amount, NEW.amount, now())
			ON CONFLICT (address) DO UPDATE SET
				total_received = %s.total_received + NEW.amount,
				current_balance = %s.current_balance + NEW.amount,
				last_update = now();
			RETURN NEW;
		END;
		$body$ LANGUAGE plpgsql`, n.Balances, n.Balances, n.Balances),
		fmt.Sprintf(`DROP TRIGGER IF EXISTS %s_apply_credit ON %s`, n.BalanceCredits, n.BalanceCredits),
		fmt.Sprintf(`CREATE TRIGGER %s_apply_credit AFTER INSERT ON %s
			FOR EACH ROW EXECUTE FUNCTION apply_balance_credit()`, n.BalanceCredits, n.BalanceCredits),

		// apply_settlement_debit folds a settlements row into the
		// payer address's current_balance.
		fmt.Sprintf(`CREATE OR REPLACE FUNCTION apply_settlement_debit() RETURNS TRIGGER AS $body$
		BEGIN
			UPDATE %s SET current_balance = current_balance - NEW.amount, last_update = now()
			WHERE address = NEW.payment_address;
			RETURN NEW;
		END;
		$body$ LANGUAGE plpgsql`, n.Balances),
		fmt.Sprintf(`DROP TRIGGER IF EXISTS %s_apply_debit ON %s`, n.Settlements, n.Settlements),
		fmt.Sprintf(`CREATE TRIGGER %s_apply_debit AFTER INSERT ON %s
			FOR EACH ROW EXECUTE FUNCTION apply_settlement_debit()`, n.Settlements, n.Settlements),
	}

	for _, stmt := range stmts {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("storage: bootstrap schema: %w", err)
		}
	}
	return nil
}

const orderColumns = "id, order_id, customer_id, memo, total_price, currency, status, created_at, updated_at"

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(row rowScanner) (tari.Order, error) {
	var o tari.Order
	var totalPrice int64
	var status string
	if err := row.Scan(&o.ID, &o.OrderID, &o.CustomerID, &o.Memo, &totalPrice, &o.Currency, &status, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return tari.Order{}, err
	}
	o.TotalPrice = tari.MicroTari(totalPrice)
	o.Status = tari.OrderStatus(status)
	return o, nil
}

const paymentColumns = "txid, sender, amount, memo, order_id, payment_type, status, created_at, updated_at"

func scanPayment(row rowScanner) (tari.Payment, error) {
	var p tari.Payment
	var sender string
	var amount int64
	var paymentType, status string
	if err := row.Scan(&p.TxID, &sender, &amount, &p.Memo, &p.OrderID, &paymentType, &status, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return tari.Payment{}, err
	}
	addr, err := tari.ParseAddress(sender)
	if err != nil {
		return tari.Payment{}, err
	}
	p.Sender = addr
	p.Amount = tari.MicroTari(amount)
	p.PaymentType = tari.PaymentType(paymentType)
	p.Status = tari.PaymentStatus(status)
	return p, nil
}

func scanBalance(row rowScanner, address tari.Address) (tari.AddressBalance, error) {
	var total, current int64
	var lastUpdate time.Time
	if err := row.Scan(&total, &current, &lastUpdate); err != nil {
		return tari.AddressBalance{}, err
	}
	return tari.AddressBalance{Address: address, TotalReceived: tari.MicroTari(total), CurrentBalance: tari.MicroTari(current), LastUpdate: lastUpdate}, nil
}

// --- Orders ---

func (p *PostgresStore) InsertOrder(ctx context.Context, in persistence.NewOrder) (tari.Order, bool, error) {
	defer p.measure("insert_order")()
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	query := fmt.Sprintf(`INSERT INTO %s (order_id, customer_id, memo, total_price, currency, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (order_id) DO NOTHING
		RETURNING %s`, p.names.Orders, orderColumns)
	row := p.db.QueryRowContext(ctx, query, in.OrderID, in.CustomerID, in.Memo, int64(in.TotalPrice), in.Currency, string(tari.OrderUnclaimed))
	order, err := scanOrder(row)
	if err == sql.ErrNoRows {
		existing, ferr := p.FetchOrderByID(ctx, in.OrderID)
		if ferr != nil {
			return tari.Order{}, false, ferr
		}
		return existing, false, nil
	}
	if err != nil {
		return tari.Order{}, false, engineerr.DatabaseError(err.Error())
	}
	return order, true, nil
}

func (p *PostgresStore) FetchOrderByID(ctx context.Context, orderID string) (tari.Order, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE order_id = $1`, orderColumns, p.names.Orders)
	order, err := scanOrder(p.db.QueryRowContext(ctx, query, orderID))
	if err == sql.ErrNoRows {
		return tari.Order{}, engineerr.OrderNotFound(orderID)
	}
	if err != nil {
		return tari.Order{}, engineerr.DatabaseError(err.Error())
	}
	return order, nil
}

func (p *PostgresStore) UpdateOrderStatus(ctx context.Context, orderID string, status tari.OrderStatus) (tari.Order, error) {
	defer p.measure("update_order_status")()
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	query := fmt.Sprintf(`UPDATE %s SET status = $1, updated_at = now() WHERE order_id = $2 RETURNING %s`, p.names.Orders, orderColumns)
	order, err := scanOrder(p.db.QueryRowContext(ctx, query, string(status), orderID))
	if err == sql.ErrNoRows {
		return tari.Order{}, engineerr.OrderNotFound(orderID)
	}
	if err != nil {
		return tari.Order{}, engineerr.DatabaseError(err.Error())
	}
	return order, nil
}

func (p *PostgresStore) ModifyOrder(ctx context.Context, orderID string, patch tari.OrderPatch) (tari.Order, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	var sets []string
	var args []interface{}
	add := func(column string, value interface{}) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if patch.Memo != nil {
		add("memo", *patch.Memo)
	}
	if patch.TotalPrice != nil {
		add("total_price", int64(*patch.TotalPrice))
	}
	if patch.Currency != nil {
		add("currency", *patch.Currency)
	}
	if patch.Status != nil {
		add("status", string(*patch.Status))
	}
	if patch.CustomerID != nil {
		add("customer_id", *patch.CustomerID)
	}
	if len(sets) == 0 {
		return p.FetchOrderByID(ctx, orderID)
	}
	sets = append(sets, "updated_at = now()")
	args = append(args, orderID)

	query := fmt.Sprintf(`UPDATE %s SET %s WHERE order_id = $%d RETURNING %s`,
		p.names.Orders, strings.Join(sets, ", "), len(args), orderColumns)
	order, err := scanOrder(p.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return tari.Order{}, engineerr.OrderNotFound(orderID)
	}
	if err != nil {
		return tari.Order{}, engineerr.DatabaseError(err.Error())
	}
	return order, nil
}

// --- Payments ---

func (p *PostgresStore) InsertPayment(ctx context.Context, in persistence.NewPayment) (tari.Payment, error) {
	defer p.measure("insert_payment")()
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	query := fmt.Sprintf(`INSERT INTO %s (txid, sender, amount, memo, order_id, payment_type, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (txid) DO NOTHING
		RETURNING %s`, p.names.Payments, paymentColumns)
	row := p.db.QueryRowContext(ctx, query, in.TxID, in.Sender.String(), int64(in.Amount), in.Memo, in.OrderID, string(in.PaymentType), string(tari.PaymentReceived))
	payment, err := scanPayment(row)
	if err == sql.ErrNoRows {
		existing, ferr := p.FetchPaymentByTxID(ctx, in.TxID)
		if ferr != nil {
			return tari.Payment{}, ferr
		}
		return existing, engineerr.PaymentAlreadyExists(in.TxID)
	}
	if err != nil {
		return tari.Payment{}, engineerr.DatabaseError(err.Error())
	}
	return payment, nil
}

func (p *PostgresStore) FetchPaymentByTxID(ctx context.Context, txid string) (tari.Payment, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE txid = $1`, paymentColumns, p.names.Payments)
	payment, err := scanPayment(p.db.QueryRowContext(ctx, query, txid))
	if err == sql.ErrNoRows {
		return tari.Payment{}, engineerr.PaymentNotFound(txid)
	}
	if err != nil {
		return tari.Payment{}, engineerr.DatabaseError(err.Error())
	}
	return payment, nil
}

func (p *PostgresStore) UpdatePaymentStatus(ctx context.Context, txid string, status tari.PaymentStatus) (tari.Payment, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	query := fmt.Sprintf(`UPDATE %s SET status = $1, updated_at = now() WHERE txid = $2 AND status = $3 RETURNING %s`,
		p.names.Payments, paymentColumns)
	row := p.db.QueryRowContext(ctx, query, string(status), txid, string(tari.PaymentReceived))
	payment, err := scanPayment(row)
	if err == nil {
		return payment, nil
	}
	if err != sql.ErrNoRows {
		return tari.Payment{}, engineerr.DatabaseError(err.Error())
	}

	existing, ferr := p.FetchPaymentByTxID(ctx, txid)
	if ferr != nil {
		return tari.Payment{}, ferr
	}
	if !existing.CanTransitionTo(status) {
		return tari.Payment{}, engineerr.New(engineerr.CodePaymentStatusUpdate, "payment status transition not permitted")
	}
	return existing, nil
}

// CreditNote inserts a Manual/Confirmed payment from the customer's
// derived dummy address, and links that address to the customer, as one
// committed transaction.
func (p *PostgresStore) CreditNote(ctx context.Context, customerID string, amount tari.MicroTari, reason string) (tari.Payment, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	addr, err := dummyaddr.Derive(customerID, p.network)
	if err != nil {
		return tari.Payment{}, engineerr.BackendError(err.Error())
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return tari.Payment{}, engineerr.DatabaseError(err.Error())
	}
	defer tx.Rollback()

	linkQuery := fmt.Sprintf(`INSERT INTO %s (address, customer_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, p.names.CustomerLinks)
	if _, err := tx.ExecContext(ctx, linkQuery, addr.String(), customerID); err != nil {
		return tari.Payment{}, engineerr.DatabaseError(err.Error())
	}

	txid := fmt.Sprintf("credit:%s:%s:%d", customerID, reason, time.Now().UTC().UnixNano())
	insertQuery := fmt.Sprintf(`INSERT INTO %s (txid, sender, amount, memo, order_id, payment_type, status)
		VALUES ($1, $2, $3, $4, '', $5, $6) RETURNING %s`, p.names.Payments, paymentColumns)
	row := tx.QueryRowContext(ctx, insertQuery, txid, addr.String(), int64(amount), reason, string(tari.PaymentManual), string(tari.PaymentConfirmed))
	payment, err := scanPayment(row)
	if err != nil {
		return tari.Payment{}, engineerr.DatabaseError(err.Error())
	}

	creditQuery := fmt.Sprintf(`INSERT INTO %s (address, amount) VALUES ($1, $2)`, p.names.BalanceCredits)
	if _, err := tx.ExecContext(ctx, creditQuery, addr.String(), int64(amount)); err != nil {
		return tari.Payment{}, engineerr.DatabaseError(err.Error())
	}

	if err := tx.Commit(); err != nil {
		return tari.Payment{}, engineerr.DatabaseError(err.Error())
	}
	return payment, nil
}

// --- Address/customer linkage ---

func (p *PostgresStore) LinkAddressToCustomer(ctx context.Context, address tari.Address, customerID string) error {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	query := fmt.Sprintf(`INSERT INTO %s (address, customer_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, p.names.CustomerLinks)
	if _, err := p.db.ExecContext(ctx, query, address.String(), customerID); err != nil {
		return engineerr.DatabaseError(err.Error())
	}
	return nil
}

func (p *PostgresStore) CustomersForAddress(ctx context.Context, address tari.Address) ([]string, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	query := fmt.Sprintf(`SELECT DISTINCT customer_id FROM %s WHERE address = $1 ORDER BY customer_id`, p.names.CustomerLinks)
	rows, err := p.db.QueryContext(ctx, query, address.String())
	if err != nil {
		return nil, engineerr.DatabaseError(err.Error())
	}
	defer rows.Close()

	customers := make([]string, 0, 1)
	for rows.Next() {
		var customerID string
		if err := rows.Scan(&customerID); err != nil {
			return nil, engineerr.DatabaseError(err.Error())
		}
		customers = append(customers, customerID)
	}
	if err := rows.Err(); err != nil {
		return nil, engineerr.DatabaseError(err.Error())
	}
	return customers, nil
}

func (p *PostgresStore) LinkAddressToOrder(ctx context.Context, orderID string, address tari.Address) error {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	order, err := p.FetchOrderByID(ctx, orderID)
	if err != nil {
		return err
	}
	return p.LinkAddressToCustomer(ctx, address, order.CustomerID)
}

// FetchPayableOrdersForAddress returns New-status orders reachable from
// address via its customer links. An address linked to more than one
// customer is ambiguous, matching the in-memory backend's behavior.
func (p *PostgresStore) FetchPayableOrdersForAddress(ctx context.Context, address tari.Address) ([]tari.Order, error) {
	defer p.measure("fetch_payable_orders")()
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	countQuery := fmt.Sprintf(`SELECT COUNT(DISTINCT customer_id) FROM %s WHERE address = $1`, p.names.CustomerLinks)
	var distinctCustomers int
	if err := p.db.QueryRowContext(ctx, countQuery, address.String()).Scan(&distinctCustomers); err != nil {
		return nil, engineerr.DatabaseError(err.Error())
	}
	if distinctCustomers == 0 {
		return nil, nil
	}
	if distinctCustomers > 1 {
		return nil, engineerr.New(engineerr.CodeAmbiguousCustomerLink, "address linked to multiple customers")
	}

	query := fmt.Sprintf(`SELECT %s FROM %s o
		WHERE o.customer_id = (SELECT customer_id FROM %s WHERE address = $1 LIMIT 1)
		AND o.status = $2
		ORDER BY o.created_at ASC, o.id ASC`, orderColumns, p.names.Orders, p.names.CustomerLinks)
	rows, err := p.db.QueryContext(ctx, query, address.String(), string(tari.OrderNew))
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

// --- Balances and settlement ---

func (p *PostgresStore) CreditBalance(ctx context.Context, address tari.Address, amount tari.MicroTari) (tari.AddressBalance, error) {
	defer p.measure("credit_balance")()
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	query := fmt.Sprintf(`INSERT INTO %s (address, amount) VALUES ($1, $2)`, p.names.BalanceCredits)
	if _, err := p.db.ExecContext(ctx, query, address.String(), int64(amount)); err != nil {
		return tari.AddressBalance{}, engineerr.DatabaseError(err.Error())
	}
	return p.FetchAddressBalance(ctx, address)
}

func (p *PostgresStore) InsertSettlement(ctx context.Context, entry tari.SettlementJournalEntry) (tari.SettlementJournalEntry, error) {
	defer p.measure("insert_settlement")()
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	query := fmt.Sprintf(`INSERT INTO %s (order_id, payment_address, amount, settlement_type)
		VALUES ($1, $2, $3, $4) RETURNING id, created_at`, p.names.Settlements)
	row := p.db.QueryRowContext(ctx, query, entry.OrderID, entry.PaymentAddress.String(), int64(entry.Amount), string(entry.SettlementType))
	if err := row.Scan(&entry.ID, &entry.CreatedAt); err != nil {
		return tari.SettlementJournalEntry{}, engineerr.DatabaseError(err.Error())
	}
	return entry, nil
}

func (p *PostgresStore) FetchAddressBalance(ctx context.Context, address tari.Address) (tari.AddressBalance, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	query := fmt.Sprintf(`SELECT total_received, current_balance, last_update FROM %s WHERE address = $1`, p.names.Balances)
	bal, err := scanBalance(p.db.QueryRowContext(ctx, query, address.String()), address)
	if err == sql.ErrNoRows {
		return tari.AddressBalance{Address: address}, nil
	}
	if err != nil {
		return tari.AddressBalance{}, engineerr.DatabaseError(err.Error())
	}
	return bal, nil
}

func (p *PostgresStore) BalancesForCustomerID(ctx context.Context, customerID string) ([]tari.AddressBalance, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	query := fmt.Sprintf(`SELECT l.address, COALESCE(b.total_received, 0), COALESCE(b.current_balance, 0), COALESCE(b.last_update, now())
		FROM %s l LEFT JOIN %s b ON b.address = l.address
		WHERE l.customer_id = $1
		ORDER BY COALESCE(b.current_balance, 0) DESC`, p.names.CustomerLinks, p.names.Balances)
	rows, err := p.db.QueryContext(ctx, query, customerID)
	if err != nil {
		return nil, engineerr.DatabaseError(err.Error())
	}
	defer rows.Close()

	var out []tari.AddressBalance
	for rows.Next() {
		var addrStr string
		var total, current int64
		var lastUpdate time.Time
		if err := rows.Scan(&addrStr, &total, &current, &lastUpdate); err != nil {
			return nil, engineerr.DatabaseError(err.Error())
		}
		addr, err := tari.ParseAddress(addrStr)
		if err != nil {
			return nil, engineerr.DatabaseError(err.Error())
		}
		out = append(out, tari.AddressBalance{Address: addr, TotalReceived: tari.MicroTari(total), CurrentBalance: tari.MicroTari(current), LastUpdate: lastUpdate})
	}
	return out, rows.Err()
}

// --- Expiry ---

func (p *PostgresStore) ExpireOrders(ctx context.Context, fromStatus tari.OrderStatus, olderThan time.Duration) ([]tari.Order, error) {
	defer p.measure("expire_orders")()
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	cutoff := time.Now().Add(-olderThan)
	query := fmt.Sprintf(`UPDATE %s SET status = $1, updated_at = now()
		WHERE status = $2 AND updated_at < $3
		RETURNING %s`, p.names.Orders, orderColumns)
	rows, err := p.db.QueryContext(ctx, query, string(tari.OrderExpired), string(fromStatus), cutoff)
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

// --- Auth / wallet-auth ---

func (p *PostgresStore) AuthLogUpsert(ctx context.Context, address tari.Address, nonce int64) error {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	query := fmt.Sprintf(`INSERT INTO %s (address, last_nonce) VALUES ($1, $2)
		ON CONFLICT (address) DO UPDATE SET last_nonce = $2
		WHERE %s.last_nonce < $2`, p.names.AuthLogs, p.names.AuthLogs)
	res, err := p.db.ExecContext(ctx, query, address.String(), nonce)
	if err != nil {
		return engineerr.DatabaseError(err.Error())
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return engineerr.DatabaseError(err.Error())
	}
	if affected == 0 {
		var existing int64
		checkQuery := fmt.Sprintf(`SELECT last_nonce FROM %s WHERE address = $1`, p.names.AuthLogs)
		if scanErr := p.db.QueryRowContext(ctx, checkQuery, address.String()).Scan(&existing); scanErr == nil {
			return engineerr.New(engineerr.CodeInvalidNonce, "nonce must strictly increase")
		}
	}
	return nil
}

func (p *PostgresStore) RegisterWallet(ctx context.Context, address tari.Address, ipAddress string, initialNonce int64) (tari.WalletAuth, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	query := fmt.Sprintf(`INSERT INTO %s (address, ip_address, last_nonce) VALUES ($1, $2, $3)
		ON CONFLICT (address) DO UPDATE SET ip_address = $2, last_nonce = $3`, p.names.WalletAuths)
	if _, err := p.db.ExecContext(ctx, query, address.String(), ipAddress, initialNonce); err != nil {
		return tari.WalletAuth{}, engineerr.DatabaseError(err.Error())
	}
	return tari.WalletAuth{Address: address, IPAddress: ipAddress, LastNonce: initialNonce}, nil
}

func (p *PostgresStore) DeregisterWallet(ctx context.Context, address tari.Address) error {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	query := fmt.Sprintf(`DELETE FROM %s WHERE address = $1`, p.names.WalletAuths)
	if _, err := p.db.ExecContext(ctx, query, address.String()); err != nil {
		return engineerr.DatabaseError(err.Error())
	}
	return nil
}

func (p *PostgresStore) WalletAuthLookup(ctx context.Context, address tari.Address) (tari.WalletAuth, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	query := fmt.Sprintf(`SELECT ip_address, last_nonce FROM %s WHERE address = $1`, p.names.WalletAuths)
	var wa tari.WalletAuth
	wa.Address = address
	err := p.db.QueryRowContext(ctx, query, address.String()).Scan(&wa.IPAddress, &wa.LastNonce)
	if err == sql.ErrNoRows {
		return tari.WalletAuth{}, engineerr.New(engineerr.CodeWalletNotFound, "wallet not registered")
	}
	if err != nil {
		return tari.WalletAuth{}, engineerr.DatabaseError(err.Error())
	}
	return wa, nil
}

func (p *PostgresStore) WalletNonceUpdate(ctx context.Context, address tari.Address, nonce int64) error {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	query := fmt.Sprintf(`UPDATE %s SET last_nonce = $1 WHERE address = $2 AND last_nonce < $1`, p.names.WalletAuths)
	res, err := p.db.ExecContext(ctx, query, nonce, address.String())
	if err != nil {
		return engineerr.DatabaseError(err.Error())
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return engineerr.DatabaseError(err.Error())
	}
	if affected > 0 {
		return nil
	}
	if _, err := p.WalletAuthLookup(ctx, address); err != nil {
		return err
	}
	return engineerr.New(engineerr.CodeInvalidNonce, "nonce must strictly increase")
}

// --- Roles ---

func (p *PostgresStore) RoleSetAssign(ctx context.Context, address tari.Address, roles ...tari.Role) (tari.RoleSet, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, engineerr.DatabaseError(err.Error())
	}
	defer tx.Rollback()

	query := fmt.Sprintf(`INSERT INTO %s (address, role) VALUES ($1, $2) ON CONFLICT DO NOTHING`, p.names.Roles)
	for _, r := range roles {
		if _, err := tx.ExecContext(ctx, query, address.String(), string(r)); err != nil {
			return nil, engineerr.DatabaseError(err.Error())
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, engineerr.DatabaseError(err.Error())
	}
	return p.RoleSetFetch(ctx, address)
}

func (p *PostgresStore) RoleSetRemove(ctx context.Context, address tari.Address, roles ...tari.Role) (tari.RoleSet, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, engineerr.DatabaseError(err.Error())
	}
	defer tx.Rollback()

	query := fmt.Sprintf(`DELETE FROM %s WHERE address = $1 AND role = $2`, p.names.Roles)
	for _, r := range roles {
		if _, err := tx.ExecContext(ctx, query, address.String(), string(r)); err != nil {
			return nil, engineerr.DatabaseError(err.Error())
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, engineerr.DatabaseError(err.Error())
	}
	return p.RoleSetFetch(ctx, address)
}

func (p *PostgresStore) RoleSetFetch(ctx context.Context, address tari.Address) (tari.RoleSet, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	query := fmt.Sprintf(`SELECT role FROM %s WHERE address = $1`, p.names.Roles)
	rows, err := p.db.QueryContext(ctx, query, address.String())
	if err != nil {
		return nil, engineerr.DatabaseError(err.Error())
	}
	defer rows.Close()

	set := tari.RoleSet{}
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, engineerr.DatabaseError(err.Error())
		}
		set = set.Add(tari.Role(role))
	}
	return set, rows.Err()
}

// --- Exchange rates ---

func (p *PostgresStore) SetExchangeRate(ctx context.Context, currency string, rate int64) (tari.ExchangeRate, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	query := fmt.Sprintf(`INSERT INTO %s (currency, rate) VALUES ($1, $2) RETURNING updated_at`, p.names.ExchangeRates)
	er := tari.ExchangeRate{BaseCurrency: currency, Rate: rate}
	if err := p.db.QueryRowContext(ctx, query, currency, rate).Scan(&er.UpdatedAt); err != nil {
		return tari.ExchangeRate{}, engineerr.DatabaseError(err.Error())
	}
	return er, nil
}

func (p *PostgresStore) LatestExchangeRate(ctx context.Context, currency string) (tari.ExchangeRate, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	query := fmt.Sprintf(`SELECT rate, updated_at FROM %s WHERE currency = $1 ORDER BY updated_at DESC, id DESC LIMIT 1`, p.names.ExchangeRates)
	er := tari.ExchangeRate{BaseCurrency: currency}
	err := p.db.QueryRowContext(ctx, query, currency).Scan(&er.Rate, &er.UpdatedAt)
	if err == sql.ErrNoRows {
		return tari.ExchangeRate{}, engineerr.New(engineerr.CodeUnsupportedCurrency, "no rate for currency "+currency)
	}
	if err != nil {
		return tari.ExchangeRate{}, engineerr.DatabaseError(err.Error())
	}
	return er, nil
}

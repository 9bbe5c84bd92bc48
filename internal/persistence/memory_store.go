package persistence

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tarigateway/reconciler/internal/dummyaddr"
	"github.com/tarigateway/reconciler/internal/engineerr"
	"github.com/tarigateway/reconciler/internal/tari"
)

// MemoryStore is an in-memory Store implementation suitable for tests
// and single-instance development. It loses all state on restart.
type MemoryStore struct {
	mu sync.Mutex

	orders      map[string]*tari.Order // order_id -> order
	orderSeq    int64
	payments    map[string]*tari.Payment // txid -> payment
	settlements []tari.SettlementJournalEntry
	settlementSeq int64

	balances      map[tari.Address]*tari.AddressBalance
	addressLinks  map[tari.Address]map[string]struct{} // address -> set of customer_id
	customerAddrs map[string]map[tari.Address]struct{} // customer_id -> set of address

	authLogs    map[tari.Address]int64
	walletAuths map[tari.Address]*tari.WalletAuth
	roleSets    map[tari.Address]tari.RoleSet

	exchangeRates map[string]tari.ExchangeRate

	dummyNetwork byte
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orders:        make(map[string]*tari.Order),
		payments:      make(map[string]*tari.Payment),
		balances:      make(map[tari.Address]*tari.AddressBalance),
		addressLinks:  make(map[tari.Address]map[string]struct{}),
		customerAddrs: make(map[string]map[tari.Address]struct{}),
		authLogs:      make(map[tari.Address]int64),
		walletAuths:   make(map[tari.Address]*tari.WalletAuth),
		roleSets:      make(map[tari.Address]tari.RoleSet),
		exchangeRates: make(map[string]tari.ExchangeRate),
		dummyNetwork:  tari.NetworkMainNet,
	}
}

func (m *MemoryStore) Close() error { return nil }

// --- Orders ---

func (m *MemoryStore) InsertOrder(_ context.Context, in NewOrder) (tari.Order, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.orders[in.OrderID]; ok {
		return *existing, false, nil
	}

	m.orderSeq++
	now := time.Now()
	order := &tari.Order{
		ID:         m.orderSeq,
		OrderID:    in.OrderID,
		CustomerID: in.CustomerID,
		Memo:       in.Memo,
		TotalPrice: in.TotalPrice,
		Currency:   in.Currency,
		CreatedAt:  now,
		UpdatedAt:  now,
		Status:     tari.OrderUnclaimed,
	}
	m.orders[in.OrderID] = order
	return *order, true, nil
}

func (m *MemoryStore) FetchOrderByID(_ context.Context, orderID string) (tari.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	order, ok := m.orders[orderID]
	if !ok {
		return tari.Order{}, engineerr.OrderNotFound(orderID)
	}
	return *order, nil
}

func (m *MemoryStore) UpdateOrderStatus(_ context.Context, orderID string, status tari.OrderStatus) (tari.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	order, ok := m.orders[orderID]
	if !ok {
		return tari.Order{}, engineerr.OrderNotFound(orderID)
	}
	order.Status = status
	order.UpdatedAt = time.Now()
	return *order, nil
}

func (m *MemoryStore) ModifyOrder(_ context.Context, orderID string, patch tari.OrderPatch) (tari.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	order, ok := m.orders[orderID]
	if !ok {
		return tari.Order{}, engineerr.OrderNotFound(orderID)
	}
	if patch.Memo != nil {
		order.Memo = *patch.Memo
	}
	if patch.TotalPrice != nil {
		order.TotalPrice = *patch.TotalPrice
	}
	if patch.Currency != nil {
		order.Currency = *patch.Currency
	}
	if patch.Status != nil {
		order.Status = *patch.Status
	}
	if patch.CustomerID != nil {
		order.CustomerID = *patch.CustomerID
	}
	order.UpdatedAt = time.Now()
	return *order, nil
}

// --- Payments ---

func (m *MemoryStore) InsertPayment(_ context.Context, in NewPayment) (tari.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.payments[in.TxID]; ok {
		return *existing, engineerr.PaymentAlreadyExists(in.TxID)
	}

	now := time.Now()
	payment := &tari.Payment{
		TxID:        in.TxID,
		Sender:      in.Sender,
		Amount:      in.Amount,
		Memo:        in.Memo,
		OrderID:     in.OrderID,
		PaymentType: in.PaymentType,
		Status:      tari.PaymentReceived,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	m.payments[in.TxID] = payment
	return *payment, nil
}

func (m *MemoryStore) FetchPaymentByTxID(_ context.Context, txid string) (tari.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	payment, ok := m.payments[txid]
	if !ok {
		return tari.Payment{}, engineerr.PaymentNotFound(txid)
	}
	return *payment, nil
}

func (m *MemoryStore) UpdatePaymentStatus(_ context.Context, txid string, status tari.PaymentStatus) (tari.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	payment, ok := m.payments[txid]
	if !ok {
		return tari.Payment{}, engineerr.PaymentNotFound(txid)
	}
	if !payment.CanTransitionTo(status) {
		return tari.Payment{}, engineerr.New(engineerr.CodePaymentStatusUpdate, "payment status transition not permitted")
	}
	payment.Status = status
	payment.UpdatedAt = time.Now()
	return *payment, nil
}

// CreditNote inserts a Manual/Confirmed payment from the customer's
// derived dummy address, crediting its balance, and links that address
// to the customer so multi-address settlement can reach it.
func (m *MemoryStore) CreditNote(ctx context.Context, customerID string, amount tari.MicroTari, reason string) (tari.Payment, error) {
	addr, err := dummyaddr.Derive(customerID, m.dummyNetwork)
	if err != nil {
		return tari.Payment{}, engineerr.BackendError(err.Error())
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.linkLocked(addr, customerID)

	txid := "credit:" + customerID + ":" + reason + ":" + time.Now().UTC().Format(time.RFC3339Nano)
	now := time.Now()
	payment := &tari.Payment{
		TxID:        txid,
		Sender:      addr,
		Amount:      amount,
		Memo:        reason,
		PaymentType: tari.PaymentManual,
		Status:      tari.PaymentConfirmed,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	m.payments[txid] = payment

	if err := m.creditBalanceLocked(addr, amount); err != nil {
		return tari.Payment{}, err
	}

	return *payment, nil
}

// CreditBalance credits amount onto address's balance, e.g. on receipt of
// an on-chain payment. It is the application-level maintenance of the
// AddressBalance projection for this backend.
func (m *MemoryStore) CreditBalance(_ context.Context, address tari.Address, amount tari.MicroTari) (tari.AddressBalance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.creditBalanceLocked(address, amount); err != nil {
		return tari.AddressBalance{}, err
	}
	return *m.balances[address], nil
}

func (m *MemoryStore) creditBalanceLocked(addr tari.Address, amount tari.MicroTari) error {
	bal, ok := m.balances[addr]
	if !ok {
		bal = &tari.AddressBalance{Address: addr}
		m.balances[addr] = bal
	}
	total, err := bal.TotalReceived.Add(amount)
	if err != nil {
		return engineerr.New(engineerr.CodeDatabaseError, err.Error())
	}
	current, err := bal.CurrentBalance.Add(amount)
	if err != nil {
		return engineerr.New(engineerr.CodeDatabaseError, err.Error())
	}
	bal.TotalReceived = total
	bal.CurrentBalance = current
	bal.LastUpdate = time.Now()
	return nil
}

func (m *MemoryStore) debitBalanceLocked(addr tari.Address, amount tari.MicroTari) error {
	bal, ok := m.balances[addr]
	if !ok {
		return engineerr.New(engineerr.CodeInsufficientFunds, "no balance for address")
	}
	current, err := bal.CurrentBalance.Sub(amount)
	if err != nil || current.IsNegative() {
		return engineerr.New(engineerr.CodeInsufficientFunds, "insufficient balance")
	}
	bal.CurrentBalance = current
	bal.LastUpdate = time.Now()
	return nil
}

// --- Linking ---

func (m *MemoryStore) linkLocked(address tari.Address, customerID string) {
	if _, ok := m.addressLinks[address]; !ok {
		m.addressLinks[address] = make(map[string]struct{})
	}
	m.addressLinks[address][customerID] = struct{}{}

	if _, ok := m.customerAddrs[customerID]; !ok {
		m.customerAddrs[customerID] = make(map[tari.Address]struct{})
	}
	m.customerAddrs[customerID][address] = struct{}{}
}

func (m *MemoryStore) LinkAddressToCustomer(_ context.Context, address tari.Address, customerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.linkLocked(address, customerID)
	return nil
}

func (m *MemoryStore) LinkAddressToOrder(_ context.Context, orderID string, address tari.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	order, ok := m.orders[orderID]
	if !ok {
		return engineerr.OrderNotFound(orderID)
	}
	m.linkLocked(address, order.CustomerID)
	return nil
}

// CustomersForAddress returns the customer ids address is linked to.
// An unlinked address yields an empty slice, not an error.
func (m *MemoryStore) CustomersForAddress(_ context.Context, address tari.Address) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	customers := make([]string, 0, len(m.addressLinks[address]))
	for c := range m.addressLinks[address] {
		customers = append(customers, c)
	}
	sort.Strings(customers)
	return customers, nil
}

// FetchPayableOrdersForAddress returns all New orders reachable from
// address via its customer links, oldest-first, breaking ties by
// internal id; Unclaimed orders are not included. An address linked to
// more than one customer is ambiguous and fails CodeAmbiguousCustomerLink.
func (m *MemoryStore) FetchPayableOrdersForAddress(_ context.Context, address tari.Address) ([]tari.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	customers := m.addressLinks[address]
	if len(customers) == 0 {
		return nil, nil
	}
	if len(customers) > 1 {
		return nil, engineerr.New(engineerr.CodeAmbiguousCustomerLink, "address linked to multiple customers")
	}

	var customerID string
	for c := range customers {
		customerID = c
	}

	var out []tari.Order
	for _, order := range m.orders {
		if order.CustomerID != customerID {
			continue
		}
		// Unclaimed orders are not yet payable: they require a claim first.
		if order.Status != tari.OrderNew {
			continue
		}
		out = append(out, *order)
	}
	sortOrdersOldestFirst(out)
	return out, nil
}

func sortOrdersOldestFirst(orders []tari.Order) {
	sort.Slice(orders, func(i, j int) bool {
		if orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].ID < orders[j].ID
		}
		return orders[i].CreatedAt.Before(orders[j].CreatedAt)
	})
}

// --- Settlement ---

func (m *MemoryStore) InsertSettlement(_ context.Context, entry tari.SettlementJournalEntry) (tari.SettlementJournalEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.settlementSeq++
	entry.ID = m.settlementSeq
	entry.CreatedAt = time.Now()

	if err := m.debitBalanceLocked(entry.PaymentAddress, entry.Amount); err != nil {
		return tari.SettlementJournalEntry{}, err
	}

	m.settlements = append(m.settlements, entry)
	return entry, nil
}

func (m *MemoryStore) FetchAddressBalance(_ context.Context, address tari.Address) (tari.AddressBalance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	bal, ok := m.balances[address]
	if !ok {
		return tari.AddressBalance{Address: address}, nil
	}
	return *bal, nil
}

func (m *MemoryStore) BalancesForCustomerID(_ context.Context, customerID string) ([]tari.AddressBalance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	addrs := m.customerAddrs[customerID]
	out := make([]tari.AddressBalance, 0, len(addrs))
	for addr := range addrs {
		if bal, ok := m.balances[addr]; ok {
			out = append(out, *bal)
		} else {
			out = append(out, tari.AddressBalance{Address: addr})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CurrentBalance > out[j].CurrentBalance
	})
	return out, nil
}

// --- Expiry ---

func (m *MemoryStore) ExpireOrders(_ context.Context, fromStatus tari.OrderStatus, olderThan time.Duration) ([]tari.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-olderThan)
	var expired []tari.Order
	for _, order := range m.orders {
		if order.Status != fromStatus {
			continue
		}
		if order.UpdatedAt.After(cutoff) {
			continue
		}
		order.Status = tari.OrderExpired
		order.UpdatedAt = time.Now()
		expired = append(expired, *order)
	}
	sortOrdersOldestFirst(expired)
	return expired, nil
}

// --- Auth / wallet-auth ---

func (m *MemoryStore) AuthLogUpsert(_ context.Context, address tari.Address, nonce int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if last, ok := m.authLogs[address]; ok && nonce <= last {
		return engineerr.New(engineerr.CodeInvalidNonce, "nonce must strictly increase")
	}
	m.authLogs[address] = nonce
	return nil
}

func (m *MemoryStore) RegisterWallet(_ context.Context, address tari.Address, ipAddress string, initialNonce int64) (tari.WalletAuth, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	wa := &tari.WalletAuth{Address: address, IPAddress: ipAddress, LastNonce: initialNonce}
	m.walletAuths[address] = wa
	return *wa, nil
}

func (m *MemoryStore) DeregisterWallet(_ context.Context, address tari.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.walletAuths, address)
	return nil
}

func (m *MemoryStore) WalletAuthLookup(_ context.Context, address tari.Address) (tari.WalletAuth, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	wa, ok := m.walletAuths[address]
	if !ok {
		return tari.WalletAuth{}, engineerr.New(engineerr.CodeWalletNotFound, "wallet not registered")
	}
	return *wa, nil
}

func (m *MemoryStore) WalletNonceUpdate(_ context.Context, address tari.Address, nonce int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	wa, ok := m.walletAuths[address]
	if !ok {
		return engineerr.New(engineerr.CodeWalletNotFound, "wallet not registered")
	}
	if nonce <= wa.LastNonce {
		return engineerr.New(engineerr.CodeInvalidNonce, "nonce must strictly increase")
	}
	wa.LastNonce = nonce
	return nil
}

// --- Roles ---

func (m *MemoryStore) RoleSetAssign(_ context.Context, address tari.Address, roles ...tari.Role) (tari.RoleSet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	set := m.roleSets[address]
	for _, r := range roles {
		set = set.Add(r)
	}
	m.roleSets[address] = set
	return set, nil
}

func (m *MemoryStore) RoleSetRemove(_ context.Context, address tari.Address, roles ...tari.Role) (tari.RoleSet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	set := m.roleSets[address]
	for _, r := range roles {
		set = set.Remove(r)
	}
	m.roleSets[address] = set
	return set, nil
}

func (m *MemoryStore) RoleSetFetch(_ context.Context, address tari.Address) (tari.RoleSet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.roleSets[address], nil
}

// --- Exchange rates ---

func (m *MemoryStore) SetExchangeRate(_ context.Context, currency string, rate int64) (tari.ExchangeRate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	er := tari.ExchangeRate{BaseCurrency: currency, Rate: rate, UpdatedAt: time.Now()}
	m.exchangeRates[currency] = er
	return er, nil
}

func (m *MemoryStore) LatestExchangeRate(_ context.Context, currency string) (tari.ExchangeRate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	er, ok := m.exchangeRates[currency]
	if !ok {
		return tari.ExchangeRate{}, engineerr.New(engineerr.CodeUnsupportedCurrency, "no rate for currency "+currency)
	}
	return er, nil
}

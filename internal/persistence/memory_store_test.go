package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/tarigateway/reconciler/internal/engineerr"
	"github.com/tarigateway/reconciler/internal/sig"
	"github.com/tarigateway/reconciler/internal/tari"
)

func testAddress(t *testing.T) tari.Address {
	t.Helper()
	key, err := sig.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return key.Address(tari.NetworkMainNet)
}

// Inserting the same order twice produces exactly one row
// and returns it identically the second time.
func TestMemoryStore_InsertOrder_IdempotentOnOrderID(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	in := NewOrder{OrderID: "O1", CustomerID: "alice", TotalPrice: 100, Currency: "XTR"}
	first, created, err := m.InsertOrder(ctx, in)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if !created {
		t.Fatal("first insert should report created=true")
	}

	second, created, err := m.InsertOrder(ctx, in)
	if err != nil {
		t.Fatalf("insert (replay): %v", err)
	}
	if created {
		t.Fatal("replayed insert should report created=false")
	}
	if first != second {
		t.Fatalf("replayed insert returned a different row: %+v vs %+v", first, second)
	}
}

// Inserting the same payment twice produces exactly one row;
// the second call fails with the idempotency-signal error.
func TestMemoryStore_InsertPayment_RejectsDuplicateTxID(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	addr := testAddress(t)

	in := NewPayment{TxID: "T1", Sender: addr, Amount: 100}
	if _, err := m.InsertPayment(ctx, in); err != nil {
		t.Fatalf("insert: %v", err)
	}

	_, err := m.InsertPayment(ctx, in)
	ee, ok := err.(*engineerr.Error)
	if !ok || ee.Code != engineerr.CodePaymentAlreadyExists {
		t.Fatalf("err = %v, want CodePaymentAlreadyExists", err)
	}
}

func TestMemoryStore_UpdatePaymentStatus_OnlyReceivedTransitions(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	addr := testAddress(t)

	if _, err := m.InsertPayment(ctx, NewPayment{TxID: "T1", Sender: addr, Amount: 100}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	if _, err := m.UpdatePaymentStatus(ctx, "T1", tari.PaymentConfirmed); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if _, err := m.UpdatePaymentStatus(ctx, "T1", tari.PaymentCancelled); err == nil {
		t.Fatal("transitioning an already-Confirmed payment should fail")
	}
}

// AuthLogUpsert accepts a monotone sequence and rejects any
// out-of-order nonce, leaving stored state unchanged.
func TestMemoryStore_AuthLogUpsert_RejectsNonIncreasingNonce(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	addr := testAddress(t)

	if err := m.AuthLogUpsert(ctx, addr, 1); err != nil {
		t.Fatalf("upsert 1: %v", err)
	}
	if err := m.AuthLogUpsert(ctx, addr, 5); err != nil {
		t.Fatalf("upsert 5: %v", err)
	}
	if err := m.AuthLogUpsert(ctx, addr, 5); err == nil {
		t.Fatal("equal nonce should be rejected")
	}
	if err := m.AuthLogUpsert(ctx, addr, 3); err == nil {
		t.Fatal("lower nonce should be rejected")
	}
	// State must be unchanged by the rejected attempts: 6 is still legal.
	if err := m.AuthLogUpsert(ctx, addr, 6); err != nil {
		t.Fatalf("upsert 6 after rejected attempts: %v", err)
	}
}

func TestMemoryStore_WalletNonceUpdate_RejectsNonIncreasingNonce(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	addr := testAddress(t)

	if _, err := m.RegisterWallet(ctx, addr, "1.2.3.4", 0); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := m.WalletNonceUpdate(ctx, addr, 1); err != nil {
		t.Fatalf("nonce 1: %v", err)
	}
	if err := m.WalletNonceUpdate(ctx, addr, 1); err == nil {
		t.Fatal("repeated nonce should be rejected")
	}
	if err := m.WalletNonceUpdate(ctx, addr, 2); err != nil {
		t.Fatalf("nonce 2: %v", err)
	}
}

// current_balance never goes negative; a settlement larger
// than the balance fails rather than driving it negative.
func TestMemoryStore_InsertSettlement_RejectsOverdraft(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	addr := testAddress(t)

	if _, err := m.CreditBalance(ctx, addr, 50); err != nil {
		t.Fatalf("credit: %v", err)
	}

	_, err := m.InsertSettlement(ctx, tari.SettlementJournalEntry{
		OrderID: "O1", PaymentAddress: addr, Amount: 100, SettlementType: tari.SettlementSingle,
	})
	if err == nil {
		t.Fatal("settling more than the current balance should fail")
	}

	bal, err := m.FetchAddressBalance(ctx, addr)
	if err != nil {
		t.Fatalf("fetch balance: %v", err)
	}
	if bal.CurrentBalance != 50 {
		t.Fatalf("balance = %v, want unchanged 50", bal.CurrentBalance)
	}
}

func TestMemoryStore_CreditBalance_AccumulatesTotalAndCurrent(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	addr := testAddress(t)

	if _, err := m.CreditBalance(ctx, addr, 30); err != nil {
		t.Fatalf("credit 1: %v", err)
	}
	if _, err := m.CreditBalance(ctx, addr, 20); err != nil {
		t.Fatalf("credit 2: %v", err)
	}

	bal, err := m.FetchAddressBalance(ctx, addr)
	if err != nil {
		t.Fatalf("fetch balance: %v", err)
	}
	if bal.TotalReceived != 50 || bal.CurrentBalance != 50 {
		t.Fatalf("balance = %+v, want total=50 current=50", bal)
	}
}

// Linking is idempotent and CustomersForAddress reports every linked
// customer, sorted; an unlinked address yields an empty slice.
func TestMemoryStore_CustomersForAddress(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	addr := testAddress(t)

	customers, err := m.CustomersForAddress(ctx, addr)
	if err != nil {
		t.Fatalf("customers for unlinked address: %v", err)
	}
	if len(customers) != 0 {
		t.Fatalf("customers = %v, want none", customers)
	}

	for _, c := range []string{"bob", "alice", "bob"} {
		if err := m.LinkAddressToCustomer(ctx, addr, c); err != nil {
			t.Fatalf("link %s: %v", c, err)
		}
	}

	customers, err = m.CustomersForAddress(ctx, addr)
	if err != nil {
		t.Fatalf("customers for address: %v", err)
	}
	if len(customers) != 2 || customers[0] != "alice" || customers[1] != "bob" {
		t.Fatalf("customers = %v, want [alice bob]", customers)
	}
}

func TestMemoryStore_FetchPayableOrdersForAddress_AmbiguousWhenMultipleCustomers(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	addr := testAddress(t)

	if err := m.LinkAddressToCustomer(ctx, addr, "alice"); err != nil {
		t.Fatalf("link alice: %v", err)
	}
	if err := m.LinkAddressToCustomer(ctx, addr, "bob"); err != nil {
		t.Fatalf("link bob: %v", err)
	}

	_, err := m.FetchPayableOrdersForAddress(ctx, addr)
	ee, ok := err.(*engineerr.Error)
	if !ok || ee.Code != engineerr.CodeAmbiguousCustomerLink {
		t.Fatalf("err = %v, want CodeAmbiguousCustomerLink", err)
	}
}

func TestMemoryStore_FetchPayableOrdersForAddress_SkipsUnclaimedAndSortsOldestFirst(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	addr := testAddress(t)

	if err := m.LinkAddressToCustomer(ctx, addr, "alice"); err != nil {
		t.Fatalf("link: %v", err)
	}
	if _, _, err := m.InsertOrder(ctx, NewOrder{OrderID: "unclaimed", CustomerID: "alice", TotalPrice: 10, Currency: "XTR"}); err != nil {
		t.Fatalf("insert unclaimed: %v", err)
	}
	if _, _, err := m.InsertOrder(ctx, NewOrder{OrderID: "first", CustomerID: "alice", TotalPrice: 10, Currency: "XTR"}); err != nil {
		t.Fatalf("insert first: %v", err)
	}
	if _, err := m.UpdateOrderStatus(ctx, "first", tari.OrderNew); err != nil {
		t.Fatalf("force first New: %v", err)
	}
	if _, _, err := m.InsertOrder(ctx, NewOrder{OrderID: "second", CustomerID: "alice", TotalPrice: 10, Currency: "XTR"}); err != nil {
		t.Fatalf("insert second: %v", err)
	}
	if _, err := m.UpdateOrderStatus(ctx, "second", tari.OrderNew); err != nil {
		t.Fatalf("force second New: %v", err)
	}

	orders, err := m.FetchPayableOrdersForAddress(ctx, addr)
	if err != nil {
		t.Fatalf("fetch payable orders: %v", err)
	}
	if len(orders) != 2 {
		t.Fatalf("orders = %+v, want exactly [first, second]", orders)
	}
	if orders[0].OrderID != "first" || orders[1].OrderID != "second" {
		t.Fatalf("orders not oldest-first by internal id: %+v", orders)
	}
}

func TestMemoryStore_BalancesForCustomerID_SortedDescending(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	x, y := testAddress(t), testAddress(t)

	if err := m.LinkAddressToCustomer(ctx, x, "dave"); err != nil {
		t.Fatalf("link x: %v", err)
	}
	if err := m.LinkAddressToCustomer(ctx, y, "dave"); err != nil {
		t.Fatalf("link y: %v", err)
	}
	if _, err := m.CreditBalance(ctx, x, 60); err != nil {
		t.Fatalf("credit x: %v", err)
	}
	if _, err := m.CreditBalance(ctx, y, 80); err != nil {
		t.Fatalf("credit y: %v", err)
	}

	balances, err := m.BalancesForCustomerID(ctx, "dave")
	if err != nil {
		t.Fatalf("balances: %v", err)
	}
	if len(balances) != 2 || balances[0].Address != y || balances[1].Address != x {
		t.Fatalf("balances not descending by current_balance: %+v", balances)
	}
}

// An order idle past the expiry cutoff is reaped; one that is not
// idle long enough is left alone.
func TestMemoryStore_ExpireOrders_OnlyPastCutoff(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	if _, _, err := m.InsertOrder(ctx, NewOrder{OrderID: "stale", CustomerID: "erin", TotalPrice: 10, Currency: "XTR"}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, _, err := m.InsertOrder(ctx, NewOrder{OrderID: "fresh", CustomerID: "erin", TotalPrice: 10, Currency: "XTR"}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	// Both orders were just inserted, so neither has been idle for a day.
	expired, err := m.ExpireOrders(ctx, tari.OrderUnclaimed, 24*time.Hour)
	if err != nil {
		t.Fatalf("expire orders (fresh pass): %v", err)
	}
	if len(expired) != 0 {
		t.Fatalf("expired = %+v, want none before the cutoff", expired)
	}

	// A negative duration pushes the cutoff into the future, so every
	// Unclaimed order looks stale without needing to sleep in the test.
	expired, err = m.ExpireOrders(ctx, tari.OrderUnclaimed, -1*time.Hour)
	if err != nil {
		t.Fatalf("expire orders: %v", err)
	}
	if len(expired) != 2 {
		t.Fatalf("expired = %+v, want both orders reaped", expired)
	}

	// A second pass with a very long timeout should be a no-op: nothing
	// is Unclaimed anymore.
	expired, err = m.ExpireOrders(ctx, tari.OrderUnclaimed, 24*time.Hour)
	if err != nil {
		t.Fatalf("expire orders (second pass): %v", err)
	}
	if len(expired) != 0 {
		t.Fatalf("expired = %+v, want none on second pass", expired)
	}
}

func TestMemoryStore_RoleSet_AssignRemoveFetchAreIdempotent(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	addr := testAddress(t)

	if _, err := m.RoleSetAssign(ctx, addr, tari.RoleWrite, tari.RoleWrite); err != nil {
		t.Fatalf("assign: %v", err)
	}
	set, err := m.RoleSetFetch(ctx, addr)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if !set.Has(tari.RoleWrite) {
		t.Fatal("expected RoleWrite to be assigned")
	}

	if _, err := m.RoleSetRemove(ctx, addr, tari.RoleWrite); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := m.RoleSetRemove(ctx, addr, tari.RoleWrite); err != nil {
		t.Fatalf("remove twice: %v", err)
	}
	set, err = m.RoleSetFetch(ctx, addr)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if set.Has(tari.RoleWrite) {
		t.Fatal("expected RoleWrite to be removed")
	}
}

func TestMemoryStore_LatestExchangeRate_ReturnsMostRecent(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	if _, err := m.SetExchangeRate(ctx, "USD", 100); err != nil {
		t.Fatalf("set rate 1: %v", err)
	}
	if _, err := m.SetExchangeRate(ctx, "USD", 110); err != nil {
		t.Fatalf("set rate 2: %v", err)
	}

	rate, err := m.LatestExchangeRate(ctx, "USD")
	if err != nil {
		t.Fatalf("latest rate: %v", err)
	}
	if rate.Rate != 110 {
		t.Fatalf("rate = %v, want 110 (most recent)", rate.Rate)
	}
}

func TestMemoryStore_LatestExchangeRate_UnsupportedCurrency(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	_, err := m.LatestExchangeRate(ctx, "ZZZ")
	ee, ok := err.(*engineerr.Error)
	if !ok || ee.Code != engineerr.CodeUnsupportedCurrency {
		t.Fatalf("err = %v, want CodeUnsupportedCurrency", err)
	}
}

func TestMemoryStore_CreditNote_DerivesDeterministicAddress(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	first, err := m.CreditNote(ctx, "alice", 100, "goodwill")
	if err != nil {
		t.Fatalf("credit note 1: %v", err)
	}
	second, err := m.CreditNote(ctx, "alice", 50, "goodwill again")
	if err != nil {
		t.Fatalf("credit note 2: %v", err)
	}
	if first.Sender != second.Sender {
		t.Fatalf("dummy address not deterministic: %v vs %v", first.Sender, second.Sender)
	}

	bal, err := m.FetchAddressBalance(ctx, first.Sender)
	if err != nil {
		t.Fatalf("fetch balance: %v", err)
	}
	if bal.CurrentBalance != 150 {
		t.Fatalf("balance = %v, want 150 (both credits landed on the same address)", bal.CurrentBalance)
	}
}

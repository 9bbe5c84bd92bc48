package engine

import (
	"context"
	"testing"

	"github.com/tarigateway/reconciler/internal/persistence"
	"github.com/tarigateway/reconciler/internal/tari"
)

// A payment delivered twice under the same txid credits the balance
// exactly once and returns success (not an error) the second time.
func TestProcessNewPayment_ReplayIsIdempotent(t *testing.T) {
	e := testEngine()
	ctx := context.Background()
	addr := testKey(t).Address(tari.NetworkMainNet)

	in := persistence.NewPayment{TxID: "T1", Sender: addr, Amount: 100}

	if _, err := e.ProcessNewPayment(ctx, in); err != nil {
		t.Fatalf("first payment: %v", err)
	}
	if _, err := e.ProcessNewPayment(ctx, in); err != nil {
		t.Fatalf("replayed payment should succeed as a no-op, got: %v", err)
	}

	bal, err := e.store.FetchAddressBalance(ctx, addr)
	if err != nil {
		t.Fatalf("fetch balance: %v", err)
	}
	if bal.CurrentBalance != 100 {
		t.Fatalf("balance = %v, want 100 (credited once)", bal.CurrentBalance)
	}
}

func TestProcessNewPayment_MemoReferencingForeignCustomerStillCreditsButNoLink(t *testing.T) {
	e := testEngine()
	ctx := context.Background()
	key := testKey(t)
	addr := key.Address(tari.NetworkMainNet)

	// addr is alice's wallet: claim and pay O1 so the link is
	// established the ordinary way.
	mustNewOrder(t, e, ctx, "O1", "alice", 100)
	claimSig, err := key.SignMemo(addr, "O1")
	if err != nil {
		t.Fatalf("sign memo: %v", err)
	}
	if _, err := e.ClaimOrder(ctx, "O1", addr, claimSig, nil); err != nil {
		t.Fatalf("claim order: %v", err)
	}
	if _, err := e.ProcessNewPayment(ctx, persistence.NewPayment{
		TxID: "T1", Sender: addr, Amount: 100, Memo: "[O1]",
	}); err != nil {
		t.Fatalf("process first payment: %v", err)
	}

	// A later payment from addr references O2, which belongs to bob.
	// It still credits addr's balance, but must not link addr to bob:
	// a second customer on the address would make every later
	// settlement attempt for alice fail as ambiguous.
	mustNewOrder(t, e, ctx, "O2", "bob", 80)
	if _, err := e.ProcessNewPayment(ctx, persistence.NewPayment{
		TxID: "T2", Sender: addr, Amount: 50, Memo: "payment for [O2]",
	}); err != nil {
		t.Fatalf("process second payment: %v", err)
	}

	bal, err := e.store.FetchAddressBalance(ctx, addr)
	if err != nil {
		t.Fatalf("fetch balance: %v", err)
	}
	if bal.CurrentBalance != 50 {
		t.Fatalf("balance = %v, want 50 (100 credited and settled, 50 credited)", bal.CurrentBalance)
	}

	customers, err := e.store.CustomersForAddress(ctx, addr)
	if err != nil {
		t.Fatalf("customers for address: %v", err)
	}
	if len(customers) != 1 || customers[0] != "alice" {
		t.Fatalf("customers = %v, want [alice] (foreign-order link skipped)", customers)
	}

	// Settlement for alice's address still works: a fresh claimed order
	// is paid from the residual 50, rather than failing on an
	// ambiguous second link.
	mustNewOrder(t, e, ctx, "O3", "alice", 50)
	claimSig, err = key.SignMemo(addr, "O3")
	if err != nil {
		t.Fatalf("sign memo: %v", err)
	}
	order, err := e.ClaimOrder(ctx, "O3", addr, claimSig, nil)
	if err != nil {
		t.Fatalf("claim order: %v", err)
	}
	if order.Status != tari.OrderPaid {
		t.Fatalf("status = %v, want Paid (settlement unimpeded by foreign memo)", order.Status)
	}
}

func TestConfirmPayment_OnlyReceivedTransitions(t *testing.T) {
	e := testEngine()
	ctx := context.Background()
	addr := testKey(t).Address(tari.NetworkMainNet)

	if _, err := e.ProcessNewPayment(ctx, persistence.NewPayment{TxID: "T1", Sender: addr, Amount: 100}); err != nil {
		t.Fatalf("process new payment: %v", err)
	}

	p, err := e.ConfirmPayment(ctx, "T1")
	if err != nil {
		t.Fatalf("confirm payment: %v", err)
	}
	if p.Status != tari.PaymentConfirmed {
		t.Fatalf("status = %v, want Confirmed", p.Status)
	}

	// A second confirm or a cancel after confirmation is illegal.
	if _, err := e.ConfirmPayment(ctx, "T1"); err == nil {
		t.Fatal("re-confirming an already-confirmed payment should fail")
	}
	if _, err := e.CancelPayment(ctx, "T1"); err == nil {
		t.Fatal("cancelling an already-confirmed payment should fail")
	}
}

func TestCancelPayment_DoesNotReverseCreditedBalance(t *testing.T) {
	e := testEngine()
	ctx := context.Background()
	addr := testKey(t).Address(tari.NetworkMainNet)

	if _, err := e.ProcessNewPayment(ctx, persistence.NewPayment{TxID: "T1", Sender: addr, Amount: 100}); err != nil {
		t.Fatalf("process new payment: %v", err)
	}
	if _, err := e.CancelPayment(ctx, "T1"); err != nil {
		t.Fatalf("cancel payment: %v", err)
	}

	bal, err := e.store.FetchAddressBalance(ctx, addr)
	if err != nil {
		t.Fatalf("fetch balance: %v", err)
	}
	if bal.CurrentBalance != 100 {
		t.Fatalf("balance = %v, want 100 (cancel does not debit)", bal.CurrentBalance)
	}
}

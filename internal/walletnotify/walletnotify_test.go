package walletnotify

import (
	"context"
	"fmt"
	"testing"

	"github.com/rs/zerolog"

	"github.com/tarigateway/reconciler/internal/canonicaljson"
	"github.com/tarigateway/reconciler/internal/engine"
	"github.com/tarigateway/reconciler/internal/persistence"
	"github.com/tarigateway/reconciler/internal/sig"
	"github.com/tarigateway/reconciler/internal/tari"
	"github.com/tarigateway/reconciler/internal/walletauth"
)

func testAdapter(t *testing.T) (*Adapter, sig.PrivateKey, tari.Address) {
	t.Helper()
	store := persistence.NewMemoryStore()
	eng := engine.New(store, nil, engine.Config{SettleOnReceived: true}, zerolog.Nop())
	auth := walletauth.New(store, zerolog.Nop())
	key, err := sig.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	addr := key.Address(tari.NetworkMainNet)
	if _, err := store.RegisterWallet(context.Background(), addr, "1.2.3.4", 0); err != nil {
		t.Fatalf("register wallet: %v", err)
	}
	return New(auth, eng), key, addr
}

// canonicalize mirrors what admit does to payload bytes before hashing,
// so tests sign exactly what the adapter will verify.
func canonicalize(t *testing.T, raw []byte) []byte {
	t.Helper()
	tree, err := canonicaljson.Decode(raw)
	if err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	out, err := canonicaljson.Marshal(tree)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return out
}

func buildPaymentMessage(t *testing.T, key sig.PrivateKey, addr tari.Address, nonce int64, payment string) []byte {
	t.Helper()
	canonical := canonicalize(t, []byte(payment))
	s, err := key.SignWallet(addr, nonce, canonical)
	if err != nil {
		t.Fatalf("sign wallet: %v", err)
	}
	return []byte(fmt.Sprintf(`{"payment":%s,"auth":{"address":%q,"nonce":%d,"signature":%q}}`,
		payment, addr.String(), nonce, s.Encode()))
}

func buildConfirmationMessage(t *testing.T, key sig.PrivateKey, addr tari.Address, nonce int64, confirmation string) []byte {
	t.Helper()
	canonical := canonicalize(t, []byte(confirmation))
	s, err := key.SignWallet(addr, nonce, canonical)
	if err != nil {
		t.Fatalf("sign wallet: %v", err)
	}
	return []byte(fmt.Sprintf(`{"confirmation":%s,"auth":{"address":%q,"nonce":%d,"signature":%q}}`,
		confirmation, addr.String(), nonce, s.Encode()))
}

// authEnvelopeJSON renders the auth block signed over signedPayment, for
// embedding alongside a different (tampered) payment body.
func authEnvelopeJSON(t *testing.T, key sig.PrivateKey, addr tari.Address, nonce int64, signedPayment string) string {
	t.Helper()
	canonical := canonicalize(t, []byte(signedPayment))
	s, err := key.SignWallet(addr, nonce, canonical)
	if err != nil {
		t.Fatalf("sign wallet: %v", err)
	}
	return fmt.Sprintf(`{"address":%q,"nonce":%d,"signature":%q}`, addr.String(), nonce, s.Encode())
}

func TestHandlePayment_AdmitsAndRecordsPayment(t *testing.T) {
	a, key, addr := testAdapter(t)

	payment := fmt.Sprintf(`{"txid":"T1","sender":%q,"amount":500,"memo":"","order_id":""}`, addr.String())
	raw := buildPaymentMessage(t, key, addr, 1, payment)

	p, err := a.HandlePayment(context.Background(), raw, "1.2.3.4")
	if err != nil {
		t.Fatalf("handle payment: %v", err)
	}
	if p.TxID != "T1" {
		t.Fatalf("txid = %q, want T1", p.TxID)
	}
	if p.Amount != 500 {
		t.Fatalf("amount = %v, want 500", p.Amount)
	}
}

func TestHandlePayment_RejectsBadSignature(t *testing.T) {
	a, key, addr := testAdapter(t)

	signedPayment := fmt.Sprintf(`{"txid":"T1","sender":%q,"amount":500,"memo":"","order_id":""}`, addr.String())
	auth := authEnvelopeJSON(t, key, addr, 1, signedPayment)

	// Swap in a different amount after signing, so the canonical bytes
	// the adapter re-derives from the message no longer match auth's
	// signature.
	tamperedPayment := fmt.Sprintf(`{"txid":"T1","sender":%q,"amount":999999,"memo":"","order_id":""}`, addr.String())
	tampered := []byte(fmt.Sprintf(`{"payment":%s,"auth":%s}`, tamperedPayment, auth))

	_, err := a.HandlePayment(context.Background(), tampered, "1.2.3.4")
	if err == nil {
		t.Fatal("expected a tampered payment to fail admission")
	}
}

func TestHandlePayment_RejectsIPMismatch(t *testing.T) {
	a, key, addr := testAdapter(t)

	payment := fmt.Sprintf(`{"txid":"T1","sender":%q,"amount":500,"memo":"","order_id":""}`, addr.String())
	raw := buildPaymentMessage(t, key, addr, 1, payment)

	_, err := a.HandlePayment(context.Background(), raw, "9.9.9.9")
	if err == nil {
		t.Fatal("expected a mismatched peer IP to be rejected")
	}
}

func TestHandleConfirmation_TransitionsReceivedPayment(t *testing.T) {
	a, key, addr := testAdapter(t)
	ctx := context.Background()

	payment := fmt.Sprintf(`{"txid":"T1","sender":%q,"amount":500,"memo":"","order_id":""}`, addr.String())
	if _, err := a.HandlePayment(ctx, buildPaymentMessage(t, key, addr, 1, payment), "1.2.3.4"); err != nil {
		t.Fatalf("handle payment: %v", err)
	}

	confirmation := `{"txid":"T1"}`
	p, err := a.HandleConfirmation(ctx, buildConfirmationMessage(t, key, addr, 2, confirmation), "1.2.3.4")
	if err != nil {
		t.Fatalf("handle confirmation: %v", err)
	}
	if p.Status != tari.PaymentConfirmed {
		t.Fatalf("status = %v, want Confirmed", p.Status)
	}
}

func TestHandlePayment_MalformedJSONRejected(t *testing.T) {
	a, _, _ := testAdapter(t)
	_, err := a.HandlePayment(context.Background(), []byte(`not json`), "1.2.3.4")
	if err == nil {
		t.Fatal("expected malformed JSON to be rejected")
	}
}

// Package walletnotify decodes the wallet notification adapter's two wire
// message kinds, admits them through walletauth, and only then hands
// off into the order-flow engine: validate everything about the inbound
// message first, only touch application state once verification has
// fully succeeded.
package walletnotify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tarigateway/reconciler/internal/canonicaljson"
	"github.com/tarigateway/reconciler/internal/engine"
	"github.com/tarigateway/reconciler/internal/persistence"
	"github.com/tarigateway/reconciler/internal/sig"
	"github.com/tarigateway/reconciler/internal/tari"
	"github.com/tarigateway/reconciler/internal/walletauth"
)

// authEnvelope is the WalletSignature wrapper shared by both message
// kinds: the claimed signer, the nonce it signed over, and the signature
// itself.
type authEnvelope struct {
	Address   string `json:"address"`
	Nonce     int64  `json:"nonce"`
	Signature string `json:"signature"`
}

// paymentMessage is wire kind 1: a payment notification.
type paymentMessage struct {
	Payment json.RawMessage `json:"payment"`
	Auth    authEnvelope    `json:"auth"`
}

// paymentBody is the decoded form of paymentMessage.Payment.
type paymentBody struct {
	TxID    string `json:"txid"`
	Sender  string `json:"sender"`
	Amount  int64  `json:"amount"`
	Memo    string `json:"memo"`
	OrderID string `json:"order_id"`
}

// confirmationMessage is wire kind 2: a transaction confirmation.
type confirmationMessage struct {
	Confirmation json.RawMessage `json:"confirmation"`
	Auth         authEnvelope    `json:"auth"`
}

// confirmationBody is the decoded form of confirmationMessage.Confirmation.
type confirmationBody struct {
	TxID string `json:"txid"`
}

// Adapter decodes and admits wallet notifications, then dispatches into
// the order-flow engine.
type Adapter struct {
	auth *walletauth.Authenticator
	eng  *engine.Engine
}

// New constructs an Adapter.
func New(auth *walletauth.Authenticator, eng *engine.Engine) *Adapter {
	return &Adapter{auth: auth, eng: eng}
}

// HandlePayment admits and processes a payment notification. peerIP is
// the already-resolved caller address (any X-Forwarded-For/Forwarded
// trust decision has already been applied by the caller).
func (a *Adapter) HandlePayment(ctx context.Context, raw []byte, peerIP string) (tari.Payment, error) {
	var msg paymentMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return tari.Payment{}, fmt.Errorf("walletnotify: malformed payment message: %w", err)
	}

	if _, err := a.admit(ctx, msg.Auth, msg.Payment, peerIP); err != nil {
		return tari.Payment{}, err
	}

	var body paymentBody
	if err := json.Unmarshal(msg.Payment, &body); err != nil {
		return tari.Payment{}, fmt.Errorf("walletnotify: malformed payment body: %w", err)
	}
	sender, err := tari.ParseAddress(body.Sender)
	if err != nil {
		return tari.Payment{}, fmt.Errorf("walletnotify: malformed sender address: %w", err)
	}

	return a.eng.ProcessNewPayment(ctx, persistence.NewPayment{
		TxID:        body.TxID,
		Sender:      sender,
		Amount:      tari.MicroTari(body.Amount),
		Memo:        body.Memo,
		OrderID:     body.OrderID,
		PaymentType: tari.PaymentOnChain,
	})
}

// HandleConfirmation admits and processes a transaction confirmation.
func (a *Adapter) HandleConfirmation(ctx context.Context, raw []byte, peerIP string) (tari.Payment, error) {
	var msg confirmationMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return tari.Payment{}, fmt.Errorf("walletnotify: malformed confirmation message: %w", err)
	}

	if _, err := a.admit(ctx, msg.Auth, msg.Confirmation, peerIP); err != nil {
		return tari.Payment{}, err
	}

	var body confirmationBody
	if err := json.Unmarshal(msg.Confirmation, &body); err != nil {
		return tari.Payment{}, fmt.Errorf("walletnotify: malformed confirmation body: %w", err)
	}

	return a.eng.ConfirmPayment(ctx, body.TxID)
}

// admit re-serializes payload into canonical bytes and runs it through
// walletauth.Admit, so the signature is checked over exactly the bytes
// the notifying wallet signed.
func (a *Adapter) admit(ctx context.Context, auth authEnvelope, payload json.RawMessage, peerIP string) (walletauth.Notification, error) {
	address, err := tari.ParseAddress(auth.Address)
	if err != nil {
		return walletauth.Notification{}, fmt.Errorf("walletnotify: malformed auth address: %w", err)
	}
	signature, err := sig.Decode(auth.Signature)
	if err != nil {
		return walletauth.Notification{}, fmt.Errorf("walletnotify: malformed auth signature: %w", err)
	}

	tree, err := canonicaljson.Decode(payload)
	if err != nil {
		return walletauth.Notification{}, fmt.Errorf("walletnotify: malformed payload: %w", err)
	}
	canonical, err := canonicaljson.Marshal(tree)
	if err != nil {
		return walletauth.Notification{}, fmt.Errorf("walletnotify: %w", err)
	}

	n := walletauth.Notification{
		Address:          address,
		Nonce:            auth.Nonce,
		Signature:        signature,
		CanonicalPayload: canonical,
	}
	if err := a.auth.Admit(ctx, n, peerIP); err != nil {
		return walletauth.Notification{}, err
	}
	return n, nil
}

// Package walletauth admits payment and confirmation notifications from
// authorized hot wallets. It implements the five-step procedure
// verbatim: verify the wallet signature, look up the wallet
// registration, pin the peer IP, enforce strict nonce monotonicity, and
// atomically stamp the new nonce. None of this is re-entrant into the
// order-flow engine; a caller only proceeds into engine.ProcessNewPayment
// /ConfirmPayment after Admit succeeds.
//
// Follows a verify-then-stamp shape: resolve an identity from the
// request, check it against stored state, then record the new state
// for next time.
package walletauth

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/tarigateway/reconciler/internal/engineerr"
	"github.com/tarigateway/reconciler/internal/logger"
	"github.com/tarigateway/reconciler/internal/persistence"
	"github.com/tarigateway/reconciler/internal/sig"
	"github.com/tarigateway/reconciler/internal/tari"
)

// Notification is the minimal shape every admitted message shares: the
// signer's claimed address, the signature's nonce, the wire signature
// itself, and the exact canonical bytes that were signed over (the
// payload committed to by sig.VerifyWallet).
type Notification struct {
	Address          tari.Address
	Nonce            int64
	Signature        sig.Signature
	CanonicalPayload []byte
}

// Authenticator admits wallet notifications against a persistence.Store
// of wallet registrations.
type Authenticator struct {
	store  persistence.Store
	logger zerolog.Logger
}

// New constructs an Authenticator over store.
func New(store persistence.Store, logger zerolog.Logger) *Authenticator {
	return &Authenticator{store: store, logger: logger}
}

// Admit runs the full five-step admission procedure for one notification
// arriving from peerIP. peerIP has already been resolved by the caller
// (the HTTP adapter), including any X-Forwarded-For/Forwarded trust
// decision. Admit itself only ever sees a final string.
func (a *Authenticator) Admit(ctx context.Context, n Notification, peerIP string) error {
	// Step 1: verify the wallet signature over the payload.
	if err := sig.VerifyWallet(n.Address, n.Nonce, n.CanonicalPayload, n.Signature); err != nil {
		return engineerr.New(engineerr.CodeInvalidSignature, err.Error())
	}

	// Step 2: fetch the wallet registration.
	wa, err := a.store.WalletAuthLookup(ctx, n.Address)
	if err != nil {
		return err
	}

	// Step 3: peer IP must match the registered IP.
	if wa.IPAddress != peerIP {
		a.logger.Warn().
			Str("address", logger.TruncateAddress(n.Address.String())).
			Str("registered_ip", wa.IPAddress).
			Str("peer_ip", peerIP).
			Msg("walletauth.ip_mismatch")
		return engineerr.New(engineerr.CodeInvalidIPAddress, "peer IP does not match registered wallet IP")
	}

	// Step 4/5: nonce must strictly increase; the store enforces this
	// atomically with the stamp so a concurrent notification that raced
	// ahead loses the race rather than silently admitting both.
	if err := a.store.WalletNonceUpdate(ctx, n.Address, n.Nonce); err != nil {
		return err
	}

	return nil
}

// Register adds a wallet registration. Idempotent re-registration simply
// overwrites the IP/nonce (the store's RegisterWallet semantics).
// Audit logging of registrations is the caller's job (internal/adminapi);
// this package only performs the persistence-level operation.
func (a *Authenticator) Register(ctx context.Context, address tari.Address, ipAddress string, initialNonce int64) (tari.WalletAuth, error) {
	wa, err := a.store.RegisterWallet(ctx, address, ipAddress, initialNonce)
	if err != nil {
		return tari.WalletAuth{}, err
	}
	a.logger.Info().Str("address", logger.TruncateAddress(address.String())).Str("ip_address", ipAddress).Msg("walletauth.registered")
	return wa, nil
}

// Deregister removes a wallet registration.
func (a *Authenticator) Deregister(ctx context.Context, address tari.Address) error {
	if err := a.store.DeregisterWallet(ctx, address); err != nil {
		return err
	}
	a.logger.Info().Str("address", logger.TruncateAddress(address.String())).Msg("walletauth.deregistered")
	return nil
}

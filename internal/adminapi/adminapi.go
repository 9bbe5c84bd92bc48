// Package adminapi exposes one Go method per administrative operation
// ({mark_paid, cancel, expire, modify_memo, modify_price,
// reassign_customer, reset, credit_note, register_wallet,
// deregister_wallet, assign_roles, remove_roles, set_exchange_rate}).
// Each is a thin call into engine/roles/exchangerate; the two operations
// that touch something the admin surface itself treats as an external
// collaborator (registering or deregistering a wallet, which triggers
// an audit-log delivery) run behind circuitbreaker.Manager the same
// way outbound RPC calls elsewhere in the codebase are guarded.
package adminapi

import (
	"context"
	"fmt"
	"time"

	"github.com/tarigateway/reconciler/internal/circuitbreaker"
	"github.com/tarigateway/reconciler/internal/engine"
	"github.com/tarigateway/reconciler/internal/exchangerate"
	"github.com/tarigateway/reconciler/internal/roles"
	"github.com/tarigateway/reconciler/internal/tari"
	"github.com/tarigateway/reconciler/internal/walletauth"
)

// Notifier delivers an audit-log entry for a wallet registration change.
// Implementations are expected to call out to a downstream log sink or
// webhook; adminapi only guards the call with a circuit breaker.
type Notifier interface {
	Notify(ctx context.Context, event string, details map[string]interface{}) error
}

// NoopNotifier discards every audit event. Used when no downstream sink
// is configured.
type NoopNotifier struct{}

// Notify implements Notifier by doing nothing.
func (NoopNotifier) Notify(context.Context, string, map[string]interface{}) error { return nil }

// Adapter is the admin adapter. Construct with New.
type Adapter struct {
	engine   *engine.Engine
	wallets  *walletauth.Authenticator
	roles    *roles.Engine
	rates    *exchangerate.Store
	breaker  *circuitbreaker.Manager
	notifier Notifier
}

// New constructs an Adapter over its collaborators.
func New(eng *engine.Engine, wallets *walletauth.Authenticator, rolesEngine *roles.Engine, rates *exchangerate.Store, breaker *circuitbreaker.Manager, notifier Notifier) *Adapter {
	if notifier == nil {
		notifier = NoopNotifier{}
	}
	return &Adapter{engine: eng, wallets: wallets, roles: rolesEngine, rates: rates, breaker: breaker, notifier: notifier}
}

// MarkPaid issues a credit note for an order's full total_price and
// settles it.
func (a *Adapter) MarkPaid(ctx context.Context, orderID, reason string) (tari.Order, error) {
	return a.engine.MarkNewOrderAsPaid(ctx, orderID, reason)
}

// Cancel moves a non-Paid order to Cancelled.
func (a *Adapter) Cancel(ctx context.Context, orderID, reason string) (tari.Order, error) {
	return a.engine.Cancel(ctx, orderID, reason)
}

// Expire runs one on-demand expiry pass over orders in fromStatus older
// than olderThan.
func (a *Adapter) Expire(ctx context.Context, fromStatus tari.OrderStatus, olderThan time.Duration) ([]tari.Order, error) {
	return a.engine.ExpireNow(ctx, fromStatus, olderThan)
}

// ModifyMemo changes an order's memo.
func (a *Adapter) ModifyMemo(ctx context.Context, orderID, memo string) (tari.Order, error) {
	return a.engine.UpdateMemo(ctx, orderID, memo)
}

// ModifyPrice changes an order's total_price.
func (a *Adapter) ModifyPrice(ctx context.Context, orderID string, newPrice tari.MicroTari) (tari.Order, error) {
	return a.engine.UpdatePrice(ctx, orderID, newPrice)
}

// ReassignCustomer moves an order to a different customer_id.
func (a *Adapter) ReassignCustomer(ctx context.Context, orderID, newCustomerID string) (tari.Order, error) {
	return a.engine.ReassignCustomer(ctx, orderID, newCustomerID)
}

// Reset moves an Expired or Cancelled order back to New.
func (a *Adapter) Reset(ctx context.Context, orderID string) (tari.Order, error) {
	return a.engine.Reset(ctx, orderID)
}

// CreditNote issues an administrative credit under customerID's
// deterministically derived dummy address.
func (a *Adapter) CreditNote(ctx context.Context, customerID string, amount tari.MicroTari, reason string) (tari.Payment, error) {
	return a.engine.CreditNote(ctx, customerID, amount, reason)
}

// RegisterWallet registers a hot wallet's address, IP, and starting
// nonce, then delivers an audit-log entry behind the webhook-delivery
// breaker.
func (a *Adapter) RegisterWallet(ctx context.Context, address tari.Address, ipAddress string, initialNonce int64) (tari.WalletAuth, error) {
	wa, err := a.wallets.Register(ctx, address, ipAddress, initialNonce)
	if err != nil {
		return tari.WalletAuth{}, err
	}

	_, _ = a.breaker.Execute(circuitbreaker.ServiceWebhookDelivery, func() (interface{}, error) {
		return nil, a.notifier.Notify(ctx, "wallet_registered", map[string]interface{}{
			"address":    address.String(),
			"ip_address": ipAddress,
		})
	})

	return wa, nil
}

// DeregisterWallet removes a hot wallet's registration, then delivers an
// audit-log entry behind the webhook-delivery breaker.
func (a *Adapter) DeregisterWallet(ctx context.Context, address tari.Address) error {
	if err := a.wallets.Deregister(ctx, address); err != nil {
		return err
	}

	_, _ = a.breaker.Execute(circuitbreaker.ServiceWebhookDelivery, func() (interface{}, error) {
		return nil, a.notifier.Notify(ctx, "wallet_deregistered", map[string]interface{}{
			"address": address.String(),
		})
	})

	return nil
}

// AssignRoles adds roles to address's role set.
func (a *Adapter) AssignRoles(ctx context.Context, address tari.Address, roleList ...tari.Role) (tari.RoleSet, error) {
	return a.roles.AssignRoles(ctx, address, roleList...)
}

// RemoveRoles removes roles from address's role set.
func (a *Adapter) RemoveRoles(ctx context.Context, address tari.Address, roleList ...tari.Role) (tari.RoleSet, error) {
	return a.roles.RemoveRoles(ctx, address, roleList...)
}

// SetExchangeRate records a new observed rate for currency.
func (a *Adapter) SetExchangeRate(ctx context.Context, currency string, rate int64) (tari.ExchangeRate, error) {
	if rate <= 0 {
		return tari.ExchangeRate{}, fmt.Errorf("adminapi: rate must be positive")
	}
	return a.rates.SetRate(ctx, currency, rate)
}

// Package roles backs session-token issuance for HTTP clients: per
// address it tracks a monotone login nonce and a set of Roles,
// independent of the wallet-auth engine's own nonce tracking.
package roles

import (
	"context"

	"github.com/tarigateway/reconciler/internal/persistence"
	"github.com/tarigateway/reconciler/internal/tari"
)

// Engine answers role-membership and login-nonce questions for the HTTP
// surface. It does not mint or parse session tokens itself.
type Engine struct {
	store persistence.Store
}

// NewEngine constructs a role/auth Engine over store.
func NewEngine(store persistence.Store) *Engine {
	return &Engine{store: store}
}

// UpsertNonce bumps address's login nonce if strictly greater than the
// stored value, failing with engineerr.CodeInvalidNonce otherwise. Used
// at login to reject replayed or out-of-order auth attempts.
func (e *Engine) UpsertNonce(ctx context.Context, address tari.Address, nonce int64) error {
	return e.store.AuthLogUpsert(ctx, address, nonce)
}

// AssignRoles adds roles to address's set, idempotently.
func (e *Engine) AssignRoles(ctx context.Context, address tari.Address, roles ...tari.Role) (tari.RoleSet, error) {
	return e.store.RoleSetAssign(ctx, address, roles...)
}

// RemoveRoles removes roles from address's set, idempotently.
func (e *Engine) RemoveRoles(ctx context.Context, address tari.Address, roles ...tari.Role) (tari.RoleSet, error) {
	return e.store.RoleSetRemove(ctx, address, roles...)
}

// HasRoles reports whether address's role set carries every role in
// required.
func (e *Engine) HasRoles(ctx context.Context, address tari.Address, required ...tari.Role) (bool, error) {
	set, err := e.store.RoleSetFetch(ctx, address)
	if err != nil {
		return false, err
	}
	return set.HasAll(required...), nil
}

// Roles returns address's current role set.
func (e *Engine) Roles(ctx context.Context, address tari.Address) (tari.RoleSet, error) {
	return e.store.RoleSetFetch(ctx, address)
}

package roles

import (
	"context"
	"testing"

	"github.com/tarigateway/reconciler/internal/persistence"
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

func TestEngine_AssignAndHasRoles(t *testing.T) {
	ctx := context.Background()
	e := NewEngine(persistence.NewMemoryStore())
	addr := testAddress(t)

	if _, err := e.AssignRoles(ctx, addr, tari.RoleWrite, tari.RoleReadAll); err != nil {
		t.Fatalf("assign roles: %v", err)
	}

	ok, err := e.HasRoles(ctx, addr, tari.RoleWrite)
	if err != nil {
		t.Fatalf("has roles: %v", err)
	}
	if !ok {
		t.Fatal("expected address to have RoleWrite after assignment")
	}

	ok, err = e.HasRoles(ctx, addr, tari.RoleSuperAdmin)
	if err != nil {
		t.Fatalf("has roles: %v", err)
	}
	if ok {
		t.Fatal("expected address not to have RoleSuperAdmin")
	}
}

func TestEngine_RemoveRolesIsIdempotent(t *testing.T) {
	ctx := context.Background()
	e := NewEngine(persistence.NewMemoryStore())
	addr := testAddress(t)

	if _, err := e.AssignRoles(ctx, addr, tari.RoleWrite); err != nil {
		t.Fatalf("assign roles: %v", err)
	}
	if _, err := e.RemoveRoles(ctx, addr, tari.RoleWrite); err != nil {
		t.Fatalf("remove roles: %v", err)
	}
	// Removing again should not error.
	if _, err := e.RemoveRoles(ctx, addr, tari.RoleWrite); err != nil {
		t.Fatalf("remove roles twice: %v", err)
	}

	ok, err := e.HasRoles(ctx, addr, tari.RoleWrite)
	if err != nil {
		t.Fatalf("has roles: %v", err)
	}
	if ok {
		t.Fatal("expected RoleWrite to be removed")
	}
}

func TestEngine_UpsertNonceRejectsNonIncreasing(t *testing.T) {
	ctx := context.Background()
	e := NewEngine(persistence.NewMemoryStore())
	addr := testAddress(t)

	if err := e.UpsertNonce(ctx, addr, 5); err != nil {
		t.Fatalf("upsert nonce: %v", err)
	}
	if err := e.UpsertNonce(ctx, addr, 5); err == nil {
		t.Fatal("expected error on non-increasing nonce")
	}
	if err := e.UpsertNonce(ctx, addr, 6); err != nil {
		t.Fatalf("upsert nonce: %v", err)
	}
}

package auth

import (
	"context"
	"testing"
)

func TestPrincipalContextRoundTrip(t *testing.T) {
	tenantID := "tenant-1"
	p := Principal{UserID: "user-1", TenantID: &tenantID, Role: RoleAdmin}

	ctx := ContextWithPrincipal(context.Background(), p)
	got, ok := PrincipalFromContext(ctx)
	if !ok {
		t.Fatal("expected principal in context")
	}
	if got.UserID != "user-1" || got.Role != RoleAdmin || *got.TenantID != tenantID {
		t.Fatalf("unexpected principal: %+v", got)
	}

	if _, ok := PrincipalFromContext(context.Background()); ok {
		t.Fatal("unexpected principal in empty context")
	}
}

func TestTenantContextRoundTrip(t *testing.T) {
	ctx := ContextWithTenant(context.Background(), "tenant-1")
	got, ok := TenantFromContext(ctx)
	if !ok || got != "tenant-1" {
		t.Fatalf("unexpected tenant: %q ok=%v", got, ok)
	}

	// Binding an empty tenant is a no-op (SUPER_ADMIN passes unbound).
	ctx = ContextWithTenant(context.Background(), "")
	if _, ok := TenantFromContext(ctx); ok {
		t.Fatal("empty tenant must not bind")
	}
}

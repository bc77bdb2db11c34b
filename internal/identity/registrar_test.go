package identity_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/aquatrace/aquatrace/internal/identity"
)

var ctx = context.Background()

func newTestRegistrar(t *testing.T) *identity.Registrar {
	t.Helper()
	tokens := identity.NewTokenIssuer(newTestKey(t), "https://node.aquatrace.example", time.Hour)
	return identity.NewRegistrar(identity.NewMemoryCredentialStore(), tokens, zap.NewNop())
}

func TestRegistrar_enrollAndExchange(t *testing.T) {
	tokens := identity.NewTokenIssuer(newTestKey(t), "https://node.aquatrace.example", time.Hour)
	reg := identity.NewRegistrar(identity.NewMemoryCredentialStore(), tokens, zap.NewNop())

	key, err := reg.Enroll(ctx, "lab-tech-1")
	if err != nil {
		t.Fatalf("Enroll() error: %v", err)
	}
	if len(key) != 64 {
		t.Errorf("access key length: got %d, want 64 hex chars", len(key))
	}

	token, err := reg.IssueToken(ctx, "lab-tech-1", key)
	if err != nil {
		t.Fatalf("IssueToken() error: %v", err)
	}

	claims, err := tokens.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error: %v", err)
	}
	if claims.Identity != "lab-tech-1" {
		t.Errorf("Identity: got %q, want %q", claims.Identity, "lab-tech-1")
	}
}

func TestRegistrar_rejectsEmptyIdentity(t *testing.T) {
	reg := newTestRegistrar(t)

	if _, err := reg.Enroll(ctx, ""); err == nil {
		t.Error("expected error for empty identity, got nil")
	}
}

func TestRegistrar_wrongKey(t *testing.T) {
	reg := newTestRegistrar(t)

	if _, err := reg.Enroll(ctx, "lab-tech-1"); err != nil {
		t.Fatal(err)
	}

	_, err := reg.IssueToken(ctx, "lab-tech-1", "not-the-key")
	if !errors.Is(err, identity.ErrBadCredentials) {
		t.Errorf("got %v, want ErrBadCredentials", err)
	}
}

func TestRegistrar_unknownIdentity(t *testing.T) {
	reg := newTestRegistrar(t)

	// Unknown identity and bad key are indistinguishable to the caller.
	_, err := reg.IssueToken(ctx, "nobody", "whatever")
	if !errors.Is(err, identity.ErrBadCredentials) {
		t.Errorf("got %v, want ErrBadCredentials", err)
	}
}

func TestRegistrar_reenrollRotatesKey(t *testing.T) {
	reg := newTestRegistrar(t)

	oldKey, err := reg.Enroll(ctx, "lab-tech-1")
	if err != nil {
		t.Fatal(err)
	}
	newKey, err := reg.Enroll(ctx, "lab-tech-1")
	if err != nil {
		t.Fatal(err)
	}
	if oldKey == newKey {
		t.Fatal("re-enrollment returned the same access key")
	}

	if _, err := reg.IssueToken(ctx, "lab-tech-1", oldKey); !errors.Is(err, identity.ErrBadCredentials) {
		t.Errorf("old key still works after rotation: %v", err)
	}
	if _, err := reg.IssueToken(ctx, "lab-tech-1", newKey); err != nil {
		t.Errorf("new key rejected: %v", err)
	}
}

func TestRegistrar_list(t *testing.T) {
	reg := newTestRegistrar(t)

	for _, id := range []string{"lab-tech-1", "tanker-1"} {
		if _, err := reg.Enroll(ctx, id); err != nil {
			t.Fatal(err)
		}
	}

	creds, err := reg.List(ctx)
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(creds) != 2 {
		t.Fatalf("got %d credentials, want 2", len(creds))
	}
	for _, cred := range creds {
		if cred.KeyHash == "" {
			t.Errorf("credential %q has empty key hash", cred.Identity)
		}
	}
}

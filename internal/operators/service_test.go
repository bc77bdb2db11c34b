package operators_test

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/aquatrace/aquatrace/internal/operators"
)

var ctx = context.Background()

func newTestService() *operators.Service {
	return operators.NewService(operators.NewMemoryRepository(), zap.NewNop())
}

func TestSignup_createsOperator(t *testing.T) {
	svc := newTestService()

	op, err := svc.Signup(ctx, "sam@waterworks.example", "correct horse", "Sam")
	if err != nil {
		t.Fatalf("Signup() error: %v", err)
	}
	if op.ID.String() == "" {
		t.Error("operator has no ID")
	}
	if op.PasswordHash == "" || op.PasswordHash == "correct horse" {
		t.Error("password not hashed")
	}
}

func TestSignup_validation(t *testing.T) {
	svc := newTestService()

	if _, err := svc.Signup(ctx, "", "longenough", "x"); err == nil {
		t.Error("expected error for empty email")
	}
	if _, err := svc.Signup(ctx, "a@b.example", "short", "x"); err == nil {
		t.Error("expected error for short password")
	}
}

func TestSignup_duplicateEmail(t *testing.T) {
	svc := newTestService()

	if _, err := svc.Signup(ctx, "sam@waterworks.example", "correct horse", "Sam"); err != nil {
		t.Fatal(err)
	}
	_, err := svc.Signup(ctx, "sam@waterworks.example", "other password", "Sam 2")
	if !errors.Is(err, operators.ErrDuplicateEmail) {
		t.Errorf("got %v, want ErrDuplicateEmail", err)
	}
}

func TestLogin(t *testing.T) {
	svc := newTestService()

	created, err := svc.Signup(ctx, "sam@waterworks.example", "correct horse", "Sam")
	if err != nil {
		t.Fatal(err)
	}

	op, err := svc.Login(ctx, "sam@waterworks.example", "correct horse")
	if err != nil {
		t.Fatalf("Login() error: %v", err)
	}
	if op.ID != created.ID {
		t.Errorf("logged in as %s, want %s", op.ID, created.ID)
	}

	if _, err := svc.Login(ctx, "sam@waterworks.example", "wrong"); err == nil {
		t.Error("expected error for wrong password")
	}
	if _, err := svc.Login(ctx, "nobody@waterworks.example", "correct horse"); err == nil {
		t.Error("expected error for unknown email")
	}
}

func TestGetOrCreateFromOAuth_newOperator(t *testing.T) {
	svc := newTestService()

	op, created, err := svc.GetOrCreateFromOAuth(ctx, "google", "g-123", "sam@waterworks.example", "Sam")
	if err != nil {
		t.Fatalf("GetOrCreateFromOAuth() error: %v", err)
	}
	if !created {
		t.Error("expected created=true for first login")
	}
	if op.PasswordHash != "" {
		t.Error("oauth operator should have no password hash")
	}

	// Password login is unavailable for OAuth-only accounts.
	if _, err := svc.Login(ctx, "sam@waterworks.example", "anything"); err == nil {
		t.Error("expected password login to fail for oauth-only account")
	}
}

func TestGetOrCreateFromOAuth_existingLink(t *testing.T) {
	svc := newTestService()

	first, _, err := svc.GetOrCreateFromOAuth(ctx, "github", "gh-9", "sam@waterworks.example", "Sam")
	if err != nil {
		t.Fatal(err)
	}

	again, created, err := svc.GetOrCreateFromOAuth(ctx, "github", "gh-9", "sam@waterworks.example", "Sam")
	if err != nil {
		t.Fatal(err)
	}
	if created {
		t.Error("expected created=false for repeat login")
	}
	if again.ID != first.ID {
		t.Errorf("got operator %s, want %s", again.ID, first.ID)
	}
}

func TestGetOrCreateFromOAuth_linksByEmail(t *testing.T) {
	svc := newTestService()

	signedUp, err := svc.Signup(ctx, "sam@waterworks.example", "correct horse", "Sam")
	if err != nil {
		t.Fatal(err)
	}

	// An OAuth login with the same email attaches to the password account.
	op, created, err := svc.GetOrCreateFromOAuth(ctx, "google", "g-777", "sam@waterworks.example", "Sam")
	if err != nil {
		t.Fatal(err)
	}
	if created {
		t.Error("expected created=false when linking by email")
	}
	if op.ID != signedUp.ID {
		t.Errorf("got operator %s, want %s", op.ID, signedUp.ID)
	}

	// The link is persistent: the next OAuth login resolves directly.
	direct, _, err := svc.GetOrCreateFromOAuth(ctx, "google", "g-777", "other@waterworks.example", "Sam")
	if err != nil {
		t.Fatal(err)
	}
	if direct.ID != signedUp.ID {
		t.Errorf("link lookup got %s, want %s", direct.ID, signedUp.ID)
	}
}

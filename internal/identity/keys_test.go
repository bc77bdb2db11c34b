package identity_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/aquatrace/aquatrace/internal/identity"
)

func TestKeyManager_createThenLoad(t *testing.T) {
	if testing.Short() {
		t.Skip("4096-bit key generation is slow")
	}
	dir := t.TempDir()

	km := identity.NewKeyManager(dir)
	if err := km.LoadOrCreate(); err != nil {
		t.Fatalf("LoadOrCreate() error: %v", err)
	}
	if km.Key() == nil {
		t.Fatal("no key after create")
	}

	info, err := os.Stat(filepath.Join(dir, "signing.key"))
	if err != nil {
		t.Fatalf("key file not written: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("key file mode: got %o, want 600", perm)
	}

	// A second manager over the same directory loads the same key.
	km2 := identity.NewKeyManager(dir)
	if err := km2.LoadOrCreate(); err != nil {
		t.Fatalf("reload error: %v", err)
	}
	if km2.Key().N.Cmp(km.Key().N) != 0 {
		t.Error("reloaded key differs from created key")
	}
}

func TestKeyManager_loadMissing(t *testing.T) {
	km := identity.NewKeyManager(t.TempDir())
	if err := km.Load(); err == nil {
		t.Error("expected error loading from empty directory, got nil")
	}
}

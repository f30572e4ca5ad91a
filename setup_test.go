package customerauth_test

import (
	"context"
	"path/filepath"
	"testing"

	customerauth "github.com/goliatone/go-customer-auth"
)

func TestOpen_AssemblesServiceAgainstSQLiteFile(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "customer-auth.db")

	svc, err := customerauth.Open(ctx, dbPath, customerauth.DefaultConfig())
	if err != nil {
		t.Fatalf("expected service, got error: %v", err)
	}

	deps := svc.Dependencies()
	if deps.EndpointResolver == nil {
		t.Fatalf("expected endpoint resolver to be wired")
	}
	if deps.FlowEngine == nil {
		t.Fatalf("expected flow engine to be wired")
	}
	if deps.SecretProvider == nil {
		t.Fatalf("expected secret provider to be wired")
	}
	if deps.AuthorizationStore == nil || deps.EndpointCacheStore == nil || deps.MasterKeyStore == nil {
		t.Fatalf("expected sqlite stores to be wired")
	}

	listed, err := svc.ListAuthorizations(ctx)
	if err != nil {
		t.Fatalf("expected empty listing from fresh store, got error: %v", err)
	}
	if len(listed) != 0 {
		t.Fatalf("expected no authorizations, got %d", len(listed))
	}

	sealed, err := deps.SecretProvider.Encrypt(ctx, []byte("token-material"))
	if err != nil {
		t.Fatalf("expected encrypt to succeed: %v", err)
	}
	opened, err := deps.SecretProvider.Decrypt(ctx, sealed)
	if err != nil {
		t.Fatalf("expected decrypt to succeed: %v", err)
	}
	if string(opened) != "token-material" {
		t.Fatalf("expected round trip plaintext, got %q", opened)
	}
}

func TestOpen_ReopensExistingStoreWithSameMasterKey(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "customer-auth.db")

	first, err := customerauth.Open(ctx, dbPath, customerauth.DefaultConfig())
	if err != nil {
		t.Fatalf("expected first open to succeed: %v", err)
	}
	sealed, err := first.Dependencies().SecretProvider.Encrypt(ctx, []byte("persisted-secret"))
	if err != nil {
		t.Fatalf("expected encrypt to succeed: %v", err)
	}

	second, err := customerauth.Open(ctx, dbPath, customerauth.DefaultConfig())
	if err != nil {
		t.Fatalf("expected reopen to succeed: %v", err)
	}
	opened, err := second.Dependencies().SecretProvider.Decrypt(ctx, sealed)
	if err != nil {
		t.Fatalf("expected decrypt with reloaded master key to succeed: %v", err)
	}
	if string(opened) != "persisted-secret" {
		t.Fatalf("expected reloaded key to open prior envelope, got %q", opened)
	}
}

func TestOpen_RequiresStorePath(t *testing.T) {
	if _, err := customerauth.Open(context.Background(), "   ", customerauth.DefaultConfig()); err == nil {
		t.Fatalf("expected error for blank store path")
	}
}

package core

import (
	"context"
	"testing"
	"time"
)

func TestMemoryDomainLockerBlocksUntilRelease(t *testing.T) {
	locker := NewMemoryDomainLocker()
	first, err := locker.Acquire(context.Background(), "shop.example.com", time.Minute)
	if err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}

	acquired := make(chan error, 1)
	go func() {
		handle, acquireErr := locker.Acquire(context.Background(), "shop.example.com", time.Minute)
		if acquireErr == nil {
			_ = handle.Unlock(context.Background())
		}
		acquired <- acquireErr
	}()

	select {
	case <-acquired:
		t.Fatalf("second acquire should block while the lock is held")
	case <-time.After(20 * time.Millisecond):
	}

	if err := first.Unlock(context.Background()); err != nil {
		t.Fatalf("unlock failed: %v", err)
	}
	select {
	case acquireErr := <-acquired:
		if acquireErr != nil {
			t.Fatalf("second acquire failed after release: %v", acquireErr)
		}
	case <-time.After(time.Second):
		t.Fatalf("second acquire did not proceed after release")
	}
}

func TestMemoryDomainLockerRespectsContextCancellation(t *testing.T) {
	locker := NewMemoryDomainLocker()
	handle, err := locker.Acquire(context.Background(), "shop.example.com", time.Minute)
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	defer func() { _ = handle.Unlock(context.Background()) }()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := locker.Acquire(ctx, "shop.example.com", time.Minute); err == nil {
		t.Fatalf("expected acquire to fail when ctx expires while the lock is held")
	}
}

func TestMemoryDomainLockerTakesOverExpiredHolder(t *testing.T) {
	locker := NewMemoryDomainLocker()
	stale, err := locker.Acquire(context.Background(), "shop.example.com", 10*time.Millisecond)
	if err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	second, err := locker.Acquire(ctx, "shop.example.com", time.Minute)
	if err != nil {
		t.Fatalf("expected takeover of an expired holder, got %v", err)
	}

	// The stale handle must not release the lock out from under the new holder.
	_ = stale.Unlock(context.Background())
	shortCtx, shortCancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer shortCancel()
	if _, err := locker.Acquire(shortCtx, "shop.example.com", time.Minute); err == nil {
		t.Fatalf("expected lock to stay held after a stale unlock")
	}

	_ = second.Unlock(context.Background())
}

func TestMemoryDomainLockerDomainsAreIndependent(t *testing.T) {
	locker := NewMemoryDomainLocker()
	first, err := locker.Acquire(context.Background(), "alpha.example", time.Minute)
	if err != nil {
		t.Fatalf("acquire alpha failed: %v", err)
	}
	defer func() { _ = first.Unlock(context.Background()) }()

	other, err := locker.Acquire(context.Background(), "beta.example", time.Minute)
	if err != nil {
		t.Fatalf("acquire beta should not block on alpha: %v", err)
	}
	_ = other.Unlock(context.Background())
}

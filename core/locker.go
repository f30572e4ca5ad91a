package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

type domainLockContextKey struct{}

func contextWithDomainLock(ctx context.Context, domain string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, domainLockContextKey{}, strings.TrimSpace(strings.ToLower(domain)))
}

func domainLockHeld(ctx context.Context, domain string) bool {
	if ctx == nil {
		return false
	}
	held, ok := ctx.Value(domainLockContextKey{}).(string)
	return ok && held == strings.TrimSpace(strings.ToLower(domain))
}

// MemoryDomainLocker serializes refresh work per merchant domain inside a
// single process. Acquire blocks until the current holder releases or its TTL
// lapses, so a crashed holder cannot wedge the domain forever.
type MemoryDomainLocker struct {
	mu    sync.Mutex
	locks map[string]*domainLock
	nowFn func() time.Time
}

// domainLock is a one-token semaphore. The generation counter invalidates the
// handle of a holder whose TTL lapsed, so its late Unlock cannot release a
// lock that was already taken over.
type domainLock struct {
	ch      chan struct{}
	expires time.Time
	gen     uint64
}

func NewMemoryDomainLocker() *MemoryDomainLocker {
	return &MemoryDomainLocker{
		locks: make(map[string]*domainLock),
		nowFn: func() time.Time { return time.Now().UTC() },
	}
}

func (l *MemoryDomainLocker) Acquire(ctx context.Context, domain string, ttl time.Duration) (LockHandle, error) {
	if l == nil {
		return nil, fmt.Errorf("core: domain locker is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	domain = strings.TrimSpace(strings.ToLower(domain))
	if domain == "" {
		return nil, fmt.Errorf("core: domain is required for lock acquisition")
	}
	if ttl <= 0 {
		ttl = DefaultRefreshLockTTL
	}

	l.mu.Lock()
	entry, ok := l.locks[domain]
	if !ok {
		entry = &domainLock{ch: make(chan struct{}, 1)}
		entry.ch <- struct{}{}
		l.locks[domain] = entry
	}
	l.mu.Unlock()

	for {
		l.mu.Lock()
		expires := entry.expires
		l.mu.Unlock()

		var timer *time.Timer
		var stale <-chan time.Time
		if !expires.IsZero() {
			timer = time.NewTimer(expires.Sub(l.nowFn()))
			stale = timer.C
		}

		select {
		case <-entry.ch:
			if timer != nil {
				timer.Stop()
			}
			return l.claim(entry, domain, ttl), nil
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil, fmt.Errorf("core: lock wait canceled for domain %q: %w", domain, ctx.Err())
		case <-stale:
			l.mu.Lock()
			if !entry.expires.IsZero() && !l.nowFn().Before(entry.expires) {
				// The holder outlived its TTL. Drain a token released in the
				// meantime, then take over.
				select {
				case <-entry.ch:
				default:
				}
				l.mu.Unlock()
				return l.claim(entry, domain, ttl), nil
			}
			l.mu.Unlock()
		}
	}
}

func (l *MemoryDomainLocker) claim(entry *domainLock, domain string, ttl time.Duration) *memoryLockHandle {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry.gen++
	entry.expires = l.nowFn().Add(ttl)
	return &memoryLockHandle{locker: l, domain: domain, gen: entry.gen}
}

type memoryLockHandle struct {
	locker *MemoryDomainLocker
	domain string
	gen    uint64
	once   sync.Once
}

func (h *memoryLockHandle) Unlock(_ context.Context) error {
	if h == nil || h.locker == nil {
		return nil
	}
	h.once.Do(func() {
		h.locker.mu.Lock()
		defer h.locker.mu.Unlock()
		entry, ok := h.locker.locks[h.domain]
		if !ok || entry.gen != h.gen {
			return
		}
		entry.expires = time.Time{}
		select {
		case entry.ch <- struct{}{}:
		default:
		}
	})
	return nil
}

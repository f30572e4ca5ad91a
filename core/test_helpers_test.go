package core

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
	"time"
)

type testSecretProvider struct{}

func (testSecretProvider) Encrypt(_ context.Context, plaintext []byte) ([]byte, error) {
	encoded := base64.StdEncoding.EncodeToString(plaintext)
	return []byte("enc:" + encoded), nil
}

func (testSecretProvider) Decrypt(_ context.Context, ciphertext []byte) ([]byte, error) {
	value := strings.TrimSpace(string(ciphertext))
	if !strings.HasPrefix(value, "enc:") {
		return nil, fmt.Errorf("test secret provider: invalid ciphertext")
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, "enc:"))
	if err != nil {
		return nil, fmt.Errorf("test secret provider: decode ciphertext: %w", err)
	}
	return decoded, nil
}

func testEnvelope(plaintext string) string {
	return "enc:" + base64.StdEncoding.EncodeToString([]byte(plaintext))
}

type memoryAuthorizationStore struct {
	mu        sync.Mutex
	next      int
	byDomain  map[string]Authorization
	readDelay time.Duration

	upsertCalls int
	deleteCalls int
}

func newMemoryAuthorizationStore() *memoryAuthorizationStore {
	return &memoryAuthorizationStore{byDomain: map[string]Authorization{}}
}

func (s *memoryAuthorizationStore) Upsert(_ context.Context, in UpsertAuthorizationInput) (Authorization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upsertCalls++

	now := time.Now().UTC()
	record, ok := s.byDomain[in.Domain]
	if !ok {
		s.next++
		record = Authorization{
			ID:        fmt.Sprintf("auth_%d", s.next),
			Domain:    in.Domain,
			CreatedAt: now,
		}
	}
	record.Endpoint = in.Endpoint
	record.CustomerID = in.CustomerID
	record.CustomerEmail = in.CustomerEmail
	record.AccessTokenEnvelope = in.AccessTokenEnvelope
	record.RefreshTokenEnvelope = in.RefreshTokenEnvelope
	record.ExpiresAt = in.ExpiresAt
	record.Scopes = append([]string(nil), in.Scopes...)
	record.UpdatedAt = now
	s.byDomain[in.Domain] = record
	return record, nil
}

func (s *memoryAuthorizationStore) GetByDomain(_ context.Context, domain string) (Authorization, bool, error) {
	if s.readDelay > 0 {
		time.Sleep(s.readDelay)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.byDomain[domain]
	return record, ok, nil
}

func (s *memoryAuthorizationStore) List(context.Context) ([]Authorization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Authorization, 0, len(s.byDomain))
	for _, record := range s.byDomain {
		out = append(out, record)
	}
	return out, nil
}

func (s *memoryAuthorizationStore) DeleteByDomain(_ context.Context, domain string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteCalls++
	delete(s.byDomain, domain)
	return nil
}

func (s *memoryAuthorizationStore) seed(record Authorization) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byDomain[record.Domain] = record
}

func (s *memoryAuthorizationStore) get(domain string) (Authorization, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.byDomain[domain]
	return record, ok
}

type fakeFlowEngine struct {
	mu sync.Mutex

	authorizeFn func(ctx context.Context, req FlowRequest) (TokenGrant, error)
	refreshFn   func(ctx context.Context, endpoint, refreshToken string) (TokenGrant, error)
	revokeFn    func(ctx context.Context, endpoint, token string) error

	authorizeCalls int
	refreshCalls   int
	revokeCalls    int

	lastRefreshToken string
	lastRevokedToken string
}

func (f *fakeFlowEngine) Authorize(ctx context.Context, req FlowRequest) (TokenGrant, error) {
	f.mu.Lock()
	f.authorizeCalls++
	fn := f.authorizeFn
	f.mu.Unlock()
	if fn == nil {
		return TokenGrant{}, fmt.Errorf("fake flow engine: authorize not configured")
	}
	return fn(ctx, req)
}

func (f *fakeFlowEngine) Refresh(ctx context.Context, endpoint, refreshToken string) (TokenGrant, error) {
	f.mu.Lock()
	f.refreshCalls++
	f.lastRefreshToken = refreshToken
	fn := f.refreshFn
	f.mu.Unlock()
	if fn == nil {
		return TokenGrant{}, fmt.Errorf("fake flow engine: refresh not configured")
	}
	return fn(ctx, endpoint, refreshToken)
}

func (f *fakeFlowEngine) Revoke(ctx context.Context, endpoint, token string) error {
	f.mu.Lock()
	f.revokeCalls++
	f.lastRevokedToken = token
	fn := f.revokeFn
	f.mu.Unlock()
	if fn == nil {
		return nil
	}
	return fn(ctx, endpoint, token)
}

type fakeResolver struct {
	mu sync.Mutex

	endpoint     string
	source       EndpointSource
	capabilities *CapabilityDescriptor
	resolveErr   error

	resolveCalls int
}

func (r *fakeResolver) Resolve(_ context.Context, domain string) (ResolvedEndpoint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolveCalls++
	if r.resolveErr != nil {
		return ResolvedEndpoint{}, r.resolveErr
	}
	source := r.source
	if source == "" {
		source = EndpointSourceWellKnown
	}
	return ResolvedEndpoint{Domain: domain, Endpoint: r.endpoint, Source: source}, nil
}

func (r *fakeResolver) FetchCapabilities(context.Context, string) (*CapabilityDescriptor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.capabilities, nil
}

func newTestService(t interface {
	Helper()
	Fatalf(format string, args ...any)
}, store *memoryAuthorizationStore, flow *fakeFlowEngine, resolver *fakeResolver, extra ...Option) *Service {
	t.Helper()
	options := []Option{
		WithSecretProvider(testSecretProvider{}),
		WithAuthorizationStore(store),
	}
	if flow != nil {
		options = append(options, WithFlowEngine(flow))
	}
	if resolver != nil {
		options = append(options, WithEndpointResolver(resolver))
	}
	options = append(options, extra...)

	service, err := NewService(Config{}, options...)
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	return service
}

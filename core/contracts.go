package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// EndpointSource names the discovery chain step that produced an endpoint.
type EndpointSource string

const (
	EndpointSourceOverride  EndpointSource = "override"
	EndpointSourceDemo      EndpointSource = "demo"
	EndpointSourceCache     EndpointSource = "cache"
	EndpointSourceDNS       EndpointSource = "dns"
	EndpointSourceWellKnown EndpointSource = "well_known"
	EndpointSourceHeader    EndpointSource = "header"
)

type ResolvedEndpoint struct {
	Domain   string
	Endpoint string
	Source   EndpointSource
}

// EndpointResolver maps a merchant domain to a protocol endpoint through the
// prioritized discovery chain, using the endpoint cache store as write-back
// cache for network-discovered results.
type EndpointResolver interface {
	Resolve(ctx context.Context, domain string) (ResolvedEndpoint, error)
	// FetchCapabilities is non-fatal: a nil descriptor with nil error means
	// the endpoint is usable but scope validation is unavailable.
	FetchCapabilities(ctx context.Context, endpoint string) (*CapabilityDescriptor, error)
}

// FlowRequest describes one out-of-band authorize-and-poll sequence.
type FlowRequest struct {
	Domain       string
	Endpoint     string
	Email        string
	Scopes       []string
	Capabilities *CapabilityDescriptor
}

// FlowEngine drives the PKCE authorization-code exchange against a resolved
// endpoint. Authorize blocks through the poll loop and honors ctx
// cancellation; Refresh and Revoke are single round trips.
type FlowEngine interface {
	Authorize(ctx context.Context, req FlowRequest) (TokenGrant, error)
	Refresh(ctx context.Context, endpoint string, refreshToken string) (TokenGrant, error)
	Revoke(ctx context.Context, endpoint string, token string) error
}

// UpsertAuthorizationInput carries the mutable fields of an authorization.
// The store preserves ID and CreatedAt when the domain already exists.
type UpsertAuthorizationInput struct {
	Domain               string
	Endpoint             string
	CustomerID           string
	CustomerEmail        string
	AccessTokenEnvelope  string
	RefreshTokenEnvelope string
	ExpiresAt            time.Time
	Scopes               []string
}

type AuthorizationStore interface {
	Upsert(ctx context.Context, in UpsertAuthorizationInput) (Authorization, error)
	GetByDomain(ctx context.Context, domain string) (Authorization, bool, error)
	List(ctx context.Context) ([]Authorization, error)
	DeleteByDomain(ctx context.Context, domain string) error
}

type EndpointCacheStore interface {
	Put(ctx context.Context, entry EndpointCacheEntry) error
	Get(ctx context.Context, domain string) (EndpointCacheEntry, bool, error)
	DeleteByDomain(ctx context.Context, domain string) error
}

type MasterKeyStore interface {
	Load(ctx context.Context) (MasterKeyRecord, bool, error)
	Create(ctx context.Context, record MasterKeyRecord) (MasterKeyRecord, error)
}

// SecretProvider performs authenticated encryption of opaque secrets. Decrypt
// fails closed: a tampered envelope yields an error and no partial output.
type SecretProvider interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
}

type StoreProvider interface {
	AuthorizationStore() AuthorizationStore
	EndpointCacheStore() EndpointCacheStore
	MasterKeyStore() MasterKeyStore
}

type RepositoryStoreFactory interface {
	BuildStores(persistenceClient any) (StoreProvider, error)
}

type LockHandle interface {
	Unlock(ctx context.Context) error
}

// DomainLocker serializes the refresh-on-read path per merchant domain so two
// concurrent callers cannot both observe near-expiry and double-rotate the
// refresh token. Acquire blocks until the holder releases or its TTL lapses,
// or ctx is canceled. Domains are independent; no cross-domain locking exists.
type DomainLocker interface {
	Acquire(ctx context.Context, domain string, ttl time.Duration) (LockHandle, error)
}

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

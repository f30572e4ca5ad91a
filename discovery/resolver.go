// Package discovery resolves merchant domains to customer-context protocol
// endpoints through a prioritized chain: config override, demo endpoint,
// cached result, DNS TXT record, well-known document, and finally a response
// header probe. Network-discovered endpoints are written back to the cache.
package discovery

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-customer-auth/core"
)

type Option func(*Resolver)

type Resolver struct {
	cfg        core.DiscoveryConfig
	cache      core.EndpointCacheStore
	httpClient *http.Client
	lookupTXT  func(ctx context.Context, name string) ([]string, error)
	logger     core.Logger
	nowFn      func() time.Time
}

func WithCacheStore(store core.EndpointCacheStore) Option {
	return func(r *Resolver) {
		r.cache = store
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(r *Resolver) {
		if client != nil {
			r.httpClient = client
		}
	}
}

func WithTXTLookup(lookup func(ctx context.Context, name string) ([]string, error)) Option {
	return func(r *Resolver) {
		if lookup != nil {
			r.lookupTXT = lookup
		}
	}
}

func WithLogger(logger core.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Resolver) {
		if now != nil {
			r.nowFn = now
		}
	}
}

func New(cfg core.DiscoveryConfig, opts ...Option) *Resolver {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = core.DefaultCacheTTL
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = core.DefaultProbeTimeout
	}
	resolver := &Resolver{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.ProbeTimeout},
		lookupTXT:  net.DefaultResolver.LookupTXT,
		logger:     glog.Ensure(nil),
		nowFn:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(resolver)
	}
	return resolver
}

// Resolve walks the discovery chain and returns the first hit. Override and
// demo endpoints short-circuit for every domain and are never cached; hits
// from DNS or HTTP probes are written back with the configured TTL.
func (r *Resolver) Resolve(ctx context.Context, domain string) (core.ResolvedEndpoint, error) {
	domain, err := core.NormalizeDomain(domain)
	if err != nil {
		return core.ResolvedEndpoint{}, err
	}

	if endpoint := strings.TrimSpace(r.cfg.OverrideEndpoint); endpoint != "" {
		return core.ResolvedEndpoint{Domain: domain, Endpoint: endpoint, Source: core.EndpointSourceOverride}, nil
	}
	if endpoint := strings.TrimSpace(r.cfg.DemoEndpoint); endpoint != "" {
		return core.ResolvedEndpoint{Domain: domain, Endpoint: endpoint, Source: core.EndpointSourceDemo}, nil
	}

	if r.cache != nil {
		entry, found, cacheErr := r.cache.Get(ctx, domain)
		if cacheErr != nil {
			return core.ResolvedEndpoint{}, cacheErr
		}
		if found && !entry.Expired(r.now()) {
			return core.ResolvedEndpoint{Domain: domain, Endpoint: entry.Endpoint, Source: core.EndpointSourceCache}, nil
		}
	}

	endpoint, found, err := r.lookupEndpointTXT(ctx, domain)
	if err != nil {
		return core.ResolvedEndpoint{}, core.DiscoveryTransportError(domain, err)
	}
	if found {
		r.writeBack(ctx, domain, endpoint)
		return core.ResolvedEndpoint{Domain: domain, Endpoint: endpoint, Source: core.EndpointSourceDNS}, nil
	}

	if endpoint, found := r.probeWellKnown(ctx, domain); found {
		r.writeBack(ctx, domain, endpoint)
		return core.ResolvedEndpoint{Domain: domain, Endpoint: endpoint, Source: core.EndpointSourceWellKnown}, nil
	}

	if endpoint, found := r.probeHeader(ctx, domain); found {
		r.writeBack(ctx, domain, endpoint)
		return core.ResolvedEndpoint{Domain: domain, Endpoint: endpoint, Source: core.EndpointSourceHeader}, nil
	}

	return core.ResolvedEndpoint{}, core.DiscoveryNotFoundError(domain)
}

func (r *Resolver) writeBack(ctx context.Context, domain, endpoint string) {
	if r.cache == nil {
		return
	}
	err := r.cache.Put(ctx, core.EndpointCacheEntry{
		Domain:       domain,
		Endpoint:     endpoint,
		DiscoveredAt: r.now(),
		TTL:          r.cfg.CacheTTL,
	})
	if err != nil && r.logger != nil {
		r.logger.Error("discovery: endpoint cache write failed", "domain", domain, "error", err)
	}
}

func (r *Resolver) now() time.Time {
	if r.nowFn == nil {
		return time.Now().UTC()
	}
	return r.nowFn().UTC()
}

func validEndpoint(value string) bool {
	parsed, err := url.Parse(strings.TrimSpace(value))
	if err != nil {
		return false
	}
	return parsed.Scheme == "https" && parsed.Host != ""
}

var _ core.EndpointResolver = (*Resolver)(nil)

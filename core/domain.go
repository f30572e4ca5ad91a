package core

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

var (
	ErrInvalidDomain           = errors.New("core: invalid merchant domain")
	ErrAuthorizationNotFound   = errors.New("core: authorization not found")
	ErrEndpointCacheMiss       = errors.New("core: endpoint cache miss")
	ErrMasterKeyNotProvisioned = errors.New("core: master key not provisioned")
)

// MasterKeyID is the identity of the singleton master key row. The key is
// created exactly once and never rotated by normal operation.
const MasterKeyID = "master"

// Authorization is the per-merchant-domain customer grant. Domain is the
// unique key: there is exactly zero or one record per domain. Token fields
// hold opaque secret envelopes produced by the crypto engine and are never
// stored in the clear. CreatedAt survives re-authorization; UpdatedAt moves
// on every upsert.
type Authorization struct {
	ID                   string
	Domain               string
	Endpoint             string
	CustomerID           string
	CustomerEmail        string
	AccessTokenEnvelope  string
	RefreshTokenEnvelope string
	ExpiresAt            time.Time
	Scopes               []string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// EndpointCacheEntry caches one discovery result per domain. An entry whose
// age exceeds TTL is semantically absent and must trigger rediscovery.
type EndpointCacheEntry struct {
	Domain       string
	Endpoint     string
	Capabilities *CapabilityDescriptor
	DiscoveredAt time.Time
	TTL          time.Duration
}

func (e EndpointCacheEntry) Expired(now time.Time) bool {
	if e.DiscoveredAt.IsZero() || e.TTL <= 0 {
		return true
	}
	return now.UTC().Sub(e.DiscoveredAt.UTC()) > e.TTL
}

// MasterKeyRecord is the process-wide singleton holding the symmetric key
// material, read once per process start and cached by the key engine.
type MasterKeyRecord struct {
	ID          string
	KeyMaterial []byte
	CreatedAt   time.Time
}

// RateLimitHint carries optional merchant-advertised throttling guidance.
type RateLimitHint struct {
	RequestsPerMinute int `json:"requests_per_minute,omitempty"`
	Burst             int `json:"burst,omitempty"`
}

// CapabilityDescriptor is merchant-advertised endpoint metadata. It is only
// used to validate requested scopes before starting a flow; a nil descriptor
// means "cannot validate, proceed optimistically".
type CapabilityDescriptor struct {
	ScopesSupported               []string       `json:"scopes_supported,omitempty"`
	AuthorizationEndpoint         string         `json:"authorization_endpoint,omitempty"`
	TokenEndpoint                 string         `json:"token_endpoint,omitempty"`
	RevocationEndpoint            string         `json:"revocation_endpoint,omitempty"`
	GrantTypesSupported           []string       `json:"grant_types_supported,omitempty"`
	CodeChallengeMethodsSupported []string       `json:"code_challenge_methods_supported,omitempty"`
	RateLimit                     *RateLimitHint `json:"rate_limit,omitempty"`
}

// UnsupportedScopes returns the requested scopes absent from the descriptor's
// supported set. A nil descriptor or empty supported list validates nothing.
func (d *CapabilityDescriptor) UnsupportedScopes(requested []string) []string {
	if d == nil || len(d.ScopesSupported) == 0 {
		return nil
	}
	supported := make(map[string]struct{}, len(d.ScopesSupported))
	for _, scope := range d.ScopesSupported {
		supported[strings.TrimSpace(scope)] = struct{}{}
	}
	missing := []string{}
	for _, scope := range NormalizeScopes(requested) {
		if _, ok := supported[scope]; !ok {
			missing = append(missing, scope)
		}
	}
	return missing
}

// TokenGrant is the quadruple-plus-identity returned by a successful
// exchange or refresh at the merchant token endpoint.
type TokenGrant struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	ExpiresIn    int64
	Scope        string
	CustomerID   string
	Email        string
}

// ExpiryFrom derives the absolute expiry from the server-reported lifetime
// added to the moment of issuance.
func (g TokenGrant) ExpiryFrom(issuedAt time.Time) time.Time {
	lifetime := g.ExpiresIn
	if lifetime <= 0 {
		lifetime = 0
	}
	return issuedAt.UTC().Add(time.Duration(lifetime) * time.Second)
}

// GrantedScopes splits the space-delimited scope string into a normalized set.
func (g TokenGrant) GrantedScopes() []string {
	return NormalizeScopes(strings.Fields(g.Scope))
}

// NormalizeDomain lowercases and validates a merchant domain. Schemes, paths
// and embedded whitespace are rejected so the domain stays usable as a store
// key and a DNS label.
func NormalizeDomain(domain string) (string, error) {
	trimmed := strings.ToLower(strings.TrimSpace(domain))
	if trimmed == "" {
		return "", fmt.Errorf("%w: domain is required", ErrInvalidDomain)
	}
	if strings.Contains(trimmed, "://") || strings.ContainsAny(trimmed, "/ \t") {
		return "", fmt.Errorf("%w: %q must be a bare host name", ErrInvalidDomain, domain)
	}
	return trimmed, nil
}

// NormalizeScopes trims, dedupes, and sorts so scope comparison is
// order-irrelevant.
func NormalizeScopes(scopes []string) []string {
	seen := make(map[string]struct{}, len(scopes))
	out := make([]string, 0, len(scopes))
	for _, scope := range scopes {
		trimmed := strings.TrimSpace(scope)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	sort.Strings(out)
	return out
}

// SameScopeSet compares two scope lists as sets.
func SameScopeSet(left, right []string) bool {
	l := NormalizeScopes(left)
	r := NormalizeScopes(right)
	if len(l) != len(r) {
		return false
	}
	for i := range l {
		if l[i] != r[i] {
			return false
		}
	}
	return true
}

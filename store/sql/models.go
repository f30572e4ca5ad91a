package sqlstore

import (
	"time"

	"github.com/uptrace/bun"

	"github.com/goliatone/go-customer-auth/core"
)

type authorizationRecord struct {
	bun.BaseModel `bun:"table:customer_authorizations,alias:ca"`

	ID                   string    `bun:"id,pk"`
	Domain               string    `bun:"domain,notnull,unique"`
	Endpoint             string    `bun:"endpoint,notnull"`
	CustomerID           string    `bun:"customer_id"`
	CustomerEmail        string    `bun:"customer_email,notnull"`
	AccessTokenEnvelope  string    `bun:"access_token_envelope,notnull"`
	RefreshTokenEnvelope string    `bun:"refresh_token_envelope,notnull"`
	ExpiresAt            time.Time `bun:"expires_at,nullzero"`
	Scopes               []string  `bun:"scopes,type:jsonb,notnull"`
	CreatedAt            time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt            time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func (r *authorizationRecord) toDomain() core.Authorization {
	if r == nil {
		return core.Authorization{}
	}
	return core.Authorization{
		ID:                   r.ID,
		Domain:               r.Domain,
		Endpoint:             r.Endpoint,
		CustomerID:           r.CustomerID,
		CustomerEmail:        r.CustomerEmail,
		AccessTokenEnvelope:  r.AccessTokenEnvelope,
		RefreshTokenEnvelope: r.RefreshTokenEnvelope,
		ExpiresAt:            r.ExpiresAt,
		Scopes:               append([]string(nil), r.Scopes...),
		CreatedAt:            r.CreatedAt,
		UpdatedAt:            r.UpdatedAt,
	}
}

type endpointCacheRecord struct {
	bun.BaseModel `bun:"table:endpoint_cache,alias:ec"`

	ID           string                     `bun:"id,pk"`
	Domain       string                     `bun:"domain,notnull,unique"`
	Endpoint     string                     `bun:"endpoint,notnull"`
	Capabilities *core.CapabilityDescriptor `bun:"capabilities,type:jsonb"`
	DiscoveredAt time.Time                  `bun:"discovered_at,nullzero,notnull"`
	TTLSeconds   int64                      `bun:"ttl_seconds,notnull"`
	CreatedAt    time.Time                  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt    time.Time                  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func (r *endpointCacheRecord) toDomain() core.EndpointCacheEntry {
	if r == nil {
		return core.EndpointCacheEntry{}
	}
	return core.EndpointCacheEntry{
		Domain:       r.Domain,
		Endpoint:     r.Endpoint,
		Capabilities: r.Capabilities,
		DiscoveredAt: r.DiscoveredAt,
		TTL:          time.Duration(r.TTLSeconds) * time.Second,
	}
}

type masterKeyRecord struct {
	bun.BaseModel `bun:"table:master_keys,alias:mk"`

	ID          string    `bun:"id,pk"`
	KeyMaterial []byte    `bun:"key_material,notnull"`
	CreatedAt   time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

func (r *masterKeyRecord) toDomain() core.MasterKeyRecord {
	if r == nil {
		return core.MasterKeyRecord{}
	}
	return core.MasterKeyRecord{
		ID:          r.ID,
		KeyMaterial: append([]byte(nil), r.KeyMaterial...),
		CreatedAt:   r.CreatedAt,
	}
}

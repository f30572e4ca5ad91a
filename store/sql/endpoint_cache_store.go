package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-customer-auth/core"
)

type EndpointCacheStore struct {
	db   *bun.DB
	repo repository.Repository[*endpointCacheRecord]
}

// Put overwrites any previous entry for the domain. Unlike authorizations
// there is nothing to preserve across rewrites; the newest discovery wins.
func (s *EndpointCacheStore) Put(ctx context.Context, entry core.EndpointCacheEntry) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: endpoint cache store is not configured")
	}
	domain := strings.TrimSpace(entry.Domain)
	if domain == "" {
		return fmt.Errorf("sqlstore: domain is required")
	}
	if strings.TrimSpace(entry.Endpoint) == "" {
		return fmt.Errorf("sqlstore: endpoint is required")
	}
	now := time.Now().UTC()

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record, err := findEndpointCacheTx(ctx, tx, domain)
		if err != nil {
			return err
		}
		if record == nil {
			record = &endpointCacheRecord{
				ID:        uuid.NewString(),
				Domain:    domain,
				CreatedAt: now,
			}
			applyEndpointCacheEntry(record, entry, now)
			if _, insertErr := tx.NewInsert().Model(record).Exec(ctx); insertErr != nil {
				if !isUniqueViolation(insertErr) {
					return insertErr
				}
				record, err = findEndpointCacheTx(ctx, tx, domain)
				if err != nil {
					return err
				}
				if record == nil {
					return insertErr
				}
			} else {
				return nil
			}
		}

		applyEndpointCacheEntry(record, entry, now)
		_, updateErr := tx.NewUpdate().Model(record).Where("id = ?", record.ID).Exec(ctx)
		return updateErr
	})
}

func (s *EndpointCacheStore) Get(ctx context.Context, domain string) (core.EndpointCacheEntry, bool, error) {
	if s == nil || s.repo == nil {
		return core.EndpointCacheEntry{}, false, fmt.Errorf("sqlstore: endpoint cache store is not configured")
	}
	domain = strings.TrimSpace(domain)
	if domain == "" {
		return core.EndpointCacheEntry{}, false, fmt.Errorf("sqlstore: domain is required")
	}

	records, _, err := s.repo.List(ctx,
		repository.SelectBy("domain", "=", domain),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.EndpointCacheEntry{}, false, err
	}
	if len(records) == 0 {
		return core.EndpointCacheEntry{}, false, nil
	}
	return records[0].toDomain(), true, nil
}

func (s *EndpointCacheStore) DeleteByDomain(ctx context.Context, domain string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: endpoint cache store is not configured")
	}
	domain = strings.TrimSpace(domain)
	if domain == "" {
		return fmt.Errorf("sqlstore: domain is required")
	}
	_, err := s.db.NewDelete().
		Model((*endpointCacheRecord)(nil)).
		Where("domain = ?", domain).
		Exec(ctx)
	return err
}

func applyEndpointCacheEntry(record *endpointCacheRecord, entry core.EndpointCacheEntry, now time.Time) {
	record.Endpoint = strings.TrimSpace(entry.Endpoint)
	record.Capabilities = entry.Capabilities
	record.DiscoveredAt = entry.DiscoveredAt.UTC()
	if record.DiscoveredAt.IsZero() {
		record.DiscoveredAt = now
	}
	ttl := entry.TTL
	if ttl <= 0 {
		ttl = core.DefaultCacheTTL
	}
	record.TTLSeconds = int64(ttl / time.Second)
	record.UpdatedAt = now
}

func findEndpointCacheTx(ctx context.Context, tx bun.Tx, domain string) (*endpointCacheRecord, error) {
	record := &endpointCacheRecord{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.domain = ?", domain).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return record, nil
}

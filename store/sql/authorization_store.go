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

type AuthorizationStore struct {
	db   *bun.DB
	repo repository.Repository[*authorizationRecord]
}

// Upsert keys on domain: an existing record keeps its ID and CreatedAt and
// has every mutable column replaced; a missing domain is inserted fresh.
func (s *AuthorizationStore) Upsert(ctx context.Context, in core.UpsertAuthorizationInput) (core.Authorization, error) {
	if s == nil || s.db == nil {
		return core.Authorization{}, fmt.Errorf("sqlstore: authorization store is not configured")
	}
	domain := strings.TrimSpace(in.Domain)
	if domain == "" {
		return core.Authorization{}, fmt.Errorf("sqlstore: domain is required")
	}
	if strings.TrimSpace(in.CustomerEmail) == "" {
		return core.Authorization{}, fmt.Errorf("sqlstore: customer email is required")
	}
	now := time.Now().UTC()

	var out core.Authorization
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record, err := findAuthorizationTx(ctx, tx, domain)
		if err != nil {
			return err
		}
		if record == nil {
			record = &authorizationRecord{
				ID:        uuid.NewString(),
				Domain:    domain,
				CreatedAt: now,
			}
			applyAuthorizationInput(record, in, now)
			if _, insertErr := tx.NewInsert().Model(record).Exec(ctx); insertErr != nil {
				if isUniqueViolation(insertErr) {
					record, err = findAuthorizationTx(ctx, tx, domain)
					if err != nil {
						return err
					}
					if record == nil {
						return insertErr
					}
				} else {
					return insertErr
				}
			} else {
				out = record.toDomain()
				return nil
			}
		}

		applyAuthorizationInput(record, in, now)
		if _, updateErr := tx.NewUpdate().Model(record).Where("id = ?", record.ID).Exec(ctx); updateErr != nil {
			return updateErr
		}
		out = record.toDomain()
		return nil
	})
	if err != nil {
		return core.Authorization{}, err
	}
	return out, nil
}

func (s *AuthorizationStore) GetByDomain(ctx context.Context, domain string) (core.Authorization, bool, error) {
	if s == nil || s.repo == nil {
		return core.Authorization{}, false, fmt.Errorf("sqlstore: authorization store is not configured")
	}
	domain = strings.TrimSpace(domain)
	if domain == "" {
		return core.Authorization{}, false, fmt.Errorf("sqlstore: domain is required")
	}

	records, _, err := s.repo.List(ctx,
		repository.SelectBy("domain", "=", domain),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.Authorization{}, false, err
	}
	if len(records) == 0 {
		return core.Authorization{}, false, nil
	}
	return records[0].toDomain(), true, nil
}

func (s *AuthorizationStore) List(ctx context.Context) ([]core.Authorization, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: authorization store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.OrderBy("updated_at DESC"),
	)
	if err != nil {
		return nil, err
	}
	out := make([]core.Authorization, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

func (s *AuthorizationStore) DeleteByDomain(ctx context.Context, domain string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: authorization store is not configured")
	}
	domain = strings.TrimSpace(domain)
	if domain == "" {
		return fmt.Errorf("sqlstore: domain is required")
	}
	_, err := s.db.NewDelete().
		Model((*authorizationRecord)(nil)).
		Where("domain = ?", domain).
		Exec(ctx)
	return err
}

func applyAuthorizationInput(record *authorizationRecord, in core.UpsertAuthorizationInput, now time.Time) {
	record.Endpoint = strings.TrimSpace(in.Endpoint)
	record.CustomerID = strings.TrimSpace(in.CustomerID)
	record.CustomerEmail = strings.TrimSpace(in.CustomerEmail)
	record.AccessTokenEnvelope = in.AccessTokenEnvelope
	record.RefreshTokenEnvelope = in.RefreshTokenEnvelope
	record.ExpiresAt = in.ExpiresAt.UTC()
	record.Scopes = core.NormalizeScopes(in.Scopes)
	record.UpdatedAt = now
}

func findAuthorizationTx(ctx context.Context, tx bun.Tx, domain string) (*authorizationRecord, error) {
	record := &authorizationRecord{}
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

func isUniqueViolation(err error) bool {
	message := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(message, "unique constraint failed") ||
		strings.Contains(message, "duplicate key value violates unique constraint")
}

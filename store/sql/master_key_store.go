package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"

	"github.com/goliatone/go-customer-auth/core"
)

// MasterKeyStore persists the singleton master key row. There is no update
// path: the key is written once and only ever read back.
type MasterKeyStore struct {
	db *bun.DB
}

func (s *MasterKeyStore) Load(ctx context.Context) (core.MasterKeyRecord, bool, error) {
	if s == nil || s.db == nil {
		return core.MasterKeyRecord{}, false, fmt.Errorf("sqlstore: master key store is not configured")
	}

	record := &masterKeyRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", core.MasterKeyID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return core.MasterKeyRecord{}, false, nil
		}
		return core.MasterKeyRecord{}, false, err
	}
	return record.toDomain(), true, nil
}

func (s *MasterKeyStore) Create(ctx context.Context, in core.MasterKeyRecord) (core.MasterKeyRecord, error) {
	if s == nil || s.db == nil {
		return core.MasterKeyRecord{}, fmt.Errorf("sqlstore: master key store is not configured")
	}
	if len(in.KeyMaterial) == 0 {
		return core.MasterKeyRecord{}, fmt.Errorf("sqlstore: key material is required")
	}
	id := strings.TrimSpace(in.ID)
	if id == "" {
		id = core.MasterKeyID
	}
	createdAt := in.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	record := &masterKeyRecord{
		ID:          id,
		KeyMaterial: append([]byte(nil), in.KeyMaterial...),
		CreatedAt:   createdAt,
	}
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		// Lost provisioning races resolve to the winner's key.
		if isUniqueViolation(err) {
			existing, found, loadErr := s.Load(ctx)
			if loadErr == nil && found {
				return existing, nil
			}
		}
		return core.MasterKeyRecord{}, err
	}
	return record.toDomain(), nil
}

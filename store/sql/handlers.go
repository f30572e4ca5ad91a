package sqlstore

import (
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

func authorizationHandlers() repository.ModelHandlers[*authorizationRecord] {
	return repository.ModelHandlers[*authorizationRecord]{
		NewRecord: func() *authorizationRecord {
			return &authorizationRecord{}
		},
		GetID: func(record *authorizationRecord) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.ID)
		},
		SetID: func(record *authorizationRecord, id uuid.UUID) {
			if record == nil {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record *authorizationRecord) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.ID)
		},
	}
}

func endpointCacheHandlers() repository.ModelHandlers[*endpointCacheRecord] {
	return repository.ModelHandlers[*endpointCacheRecord]{
		NewRecord: func() *endpointCacheRecord {
			return &endpointCacheRecord{}
		},
		GetID: func(record *endpointCacheRecord) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.ID)
		},
		SetID: func(record *endpointCacheRecord, id uuid.UUID) {
			if record == nil {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record *endpointCacheRecord) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.ID)
		},
	}
}

func parseUUID(value string) uuid.UUID {
	parsed, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return uuid.Nil
	}
	return parsed
}

package sqlstore

import (
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

func cacheRecordHandlers() repository.ModelHandlers[*cacheRecordRow] {
	return repository.ModelHandlers[*cacheRecordRow]{
		NewRecord: func() *cacheRecordRow {
			return &cacheRecordRow{}
		},
		GetID: func(record *cacheRecordRow) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.ID)
		},
		SetID: func(record *cacheRecordRow, id uuid.UUID) {
			if record == nil {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "record_key"
		},
		GetIdentifierValue: func(record *cacheRecordRow) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.RecordKey)
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

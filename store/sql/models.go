package sqlstore

import (
	"time"

	"github.com/heartbeatlive/go-heartbeat/core"
	"github.com/uptrace/bun"
)

type cacheRecordRow struct {
	bun.BaseModel `bun:"table:heartbeat_cache_records,alias:hcr"`

	ID        string         `bun:"id,pk"`
	RecordKey string         `bun:"record_key,notnull"`
	Fields    map[string]any `bun:"fields,type:jsonb,notnull"`
	CreatedAt time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func (r *cacheRecordRow) toDomain() core.PersistedRecord {
	if r == nil {
		return core.PersistedRecord{}
	}
	return core.PersistedRecord{Key: r.RecordKey, Fields: copyAnyMap(r.Fields)}
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

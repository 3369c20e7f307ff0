package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/heartbeatlive/go-heartbeat/core"
	"github.com/uptrace/bun"
)

var recordNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://heartbeat.live/cache-record"))

// RecordID is the stable row id for a record key.
func RecordID(key string) string {
	return uuid.NewSHA1(recordNamespace, []byte(strings.TrimSpace(key))).String()
}

// RecordPersister keeps normalized cache records in a SQL table, one row per
// record key.
type RecordPersister struct {
	db   *bun.DB
	repo repository.Repository[*cacheRecordRow]
	now  func() time.Time
}

func NewRecordPersister(db *bun.DB) (*RecordPersister, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*cacheRecordRow](db, cacheRecordHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid cache record repository wiring: %w", err)
		}
	}
	return &RecordPersister{
		db:   db,
		repo: repo,
		now:  func() time.Time { return time.Now().UTC() },
	}, nil
}

// LoadRecords returns every stored record ordered by key.
func (p *RecordPersister) LoadRecords(ctx context.Context) ([]core.PersistedRecord, error) {
	if p == nil || p.db == nil {
		return nil, fmt.Errorf("sqlstore: record persister is not configured")
	}
	var rows []*cacheRecordRow
	if err := p.db.NewSelect().
		Model(&rows).
		OrderExpr("?TableAlias.record_key ASC").
		Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]core.PersistedRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

// SaveRecords upserts records in a single transaction. Fields replace what
// was stored for the key.
func (p *RecordPersister) SaveRecords(ctx context.Context, records []core.PersistedRecord) error {
	if p == nil || p.db == nil {
		return fmt.Errorf("sqlstore: record persister is not configured")
	}
	if len(records) == 0 {
		return nil
	}
	for _, record := range records {
		if strings.TrimSpace(record.Key) == "" {
			return core.NewBadInputError("sqlstore: record key is required", nil)
		}
	}
	now := p.now()
	return p.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for _, record := range records {
			key := strings.TrimSpace(record.Key)
			existing, err := findCacheRecordTx(ctx, tx, key)
			if err != nil {
				return err
			}
			if existing == nil {
				row := &cacheRecordRow{
					ID:        RecordID(key),
					RecordKey: key,
					Fields:    copyAnyMap(record.Fields),
					CreatedAt: now,
					UpdatedAt: now,
				}
				if _, err := p.repo.CreateTx(ctx, tx, row); err != nil {
					return fmt.Errorf("sqlstore: insert cache record %q: %w", key, err)
				}
				continue
			}
			if _, err := tx.NewUpdate().
				Model((*cacheRecordRow)(nil)).
				Set("fields = ?", copyAnyMap(record.Fields)).
				Set("updated_at = ?", now).
				Where("id = ?", existing.ID).
				Exec(ctx); err != nil {
				return fmt.Errorf("sqlstore: update cache record %q: %w", key, err)
			}
		}
		return nil
	})
}

func findCacheRecordTx(ctx context.Context, tx bun.Tx, key string) (*cacheRecordRow, error) {
	row := &cacheRecordRow{}
	err := tx.NewSelect().
		Model(row).
		Where("?TableAlias.record_key = ?", key).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return row, nil
}

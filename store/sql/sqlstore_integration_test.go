package sqlstore_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/heartbeatlive/go-heartbeat/cache"
	"github.com/heartbeatlive/go-heartbeat/core"
	sqlstore "github.com/heartbeatlive/go-heartbeat/store/sql"
)

func openSQLiteStore(t *testing.T) *sqlstore.Store {
	t.Helper()
	dsn := fmt.Sprintf("file:heartbeat-test-%d?mode=memory&cache=shared", time.Now().UnixNano())
	store, err := sqlstore.Open(context.Background(), dsn)
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestMigrationSmokeApplySQLite(t *testing.T) {
	store := openSQLiteStore(t)

	var tableName string
	if err := store.DB().NewRaw(
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?",
		"heartbeat_cache_records",
	).Scan(context.Background(), &tableName); err != nil {
		t.Fatalf("query sqlite master: %v", err)
	}
	if tableName != "heartbeat_cache_records" {
		t.Fatalf("expected heartbeat_cache_records table, got %q", tableName)
	}
}

func TestRecordPersister_SaveLoadAndReplace(t *testing.T) {
	ctx := context.Background()
	persister := openSQLiteStore(t).RecordPersister()
	if persister == nil {
		t.Fatalf("expected record persister from factory")
	}

	if err := persister.SaveRecords(ctx, []core.PersistedRecord{
		{Key: "Profile:1", Fields: map[string]any{"__typename": "Profile", "displayName": "Ann"}},
		{Key: "ROOT", Fields: map[string]any{"profile": map[string]any{"__ref": "Profile:1"}}},
	}); err != nil {
		t.Fatalf("save records: %v", err)
	}
	if err := persister.SaveRecords(ctx, []core.PersistedRecord{
		{Key: "Profile:1", Fields: map[string]any{"__typename": "Profile", "displayName": "Bea"}},
	}); err != nil {
		t.Fatalf("replace record: %v", err)
	}

	records, err := persister.LoadRecords(ctx)
	if err != nil {
		t.Fatalf("load records: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].Key != "Profile:1" || records[0].Fields["displayName"] != "Bea" {
		t.Fatalf("expected replaced profile first, got %#v", records[0])
	}
	ref, ok := records[1].Fields["profile"].(map[string]any)
	if !ok || ref["__ref"] != "Profile:1" {
		t.Fatalf("expected reference to survive the round trip, got %#v", records[1].Fields)
	}
}

func TestRecordPersister_RejectsBlankKey(t *testing.T) {
	persister := openSQLiteStore(t).RecordPersister()
	err := persister.SaveRecords(context.Background(), []core.PersistedRecord{{Key: "  "}})
	if !core.HasTextCode(err, core.ErrorBadInput) {
		t.Fatalf("expected bad input error, got %v", err)
	}
}

func TestRecordPersister_RestoresCacheStore(t *testing.T) {
	ctx := context.Background()
	persister := openSQLiteStore(t).RecordPersister()

	first := cache.NewStore(cache.WithPersister(persister))
	changes := first.Merge(cache.Normalize("ROOT", map[string]any{
		"profile": map[string]any{"__typename": "Profile", "id": "7", "displayName": "Cy"},
	}))
	if err := first.Persist(ctx, changes.Records()); err != nil {
		t.Fatalf("persist: %v", err)
	}

	restored := cache.NewStore(cache.WithPersister(persister))
	count, err := restored.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if count != first.Len() {
		t.Fatalf("expected %d restored records, got %d", first.Len(), count)
	}
	data, _, ok := restored.Read("ROOT")
	if !ok {
		t.Fatalf("expected ROOT to be readable after restore")
	}
	profile := data["profile"].(map[string]any)
	if profile["displayName"] != "Cy" {
		t.Fatalf("unexpected restored profile %#v", profile)
	}
}

func TestOpen_RequiresDSN(t *testing.T) {
	if _, err := sqlstore.Open(context.Background(), " "); !core.HasTextCode(err, core.ErrorBadInput) {
		t.Fatalf("expected bad input error, got %v", err)
	}
}

func TestDriverForDSN(t *testing.T) {
	cases := map[string]string{
		"postgres://user@localhost/heartbeat": sqlstore.DriverPostgres,
		"POSTGRESQL://localhost/heartbeat":    sqlstore.DriverPostgres,
		"file:cache.db":                       sqlstore.DriverSQLite,
		"/tmp/heartbeat.db":                   sqlstore.DriverSQLite,
	}
	for dsn, want := range cases {
		if got := sqlstore.DriverForDSN(dsn); got != want {
			t.Fatalf("DriverForDSN(%q) = %q, want %q", dsn, got, want)
		}
	}
}

func TestRecordID_IsStablePerKey(t *testing.T) {
	if sqlstore.RecordID("Profile:1") != sqlstore.RecordID(" Profile:1 ") {
		t.Fatalf("expected trimmed keys to share an id")
	}
	if sqlstore.RecordID("Profile:1") == sqlstore.RecordID("Profile:2") {
		t.Fatalf("expected distinct keys to get distinct ids")
	}
}

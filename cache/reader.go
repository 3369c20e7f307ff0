package cache

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/heartbeatlive/go-heartbeat/core"
)

const responseCacheKeyPrefix = "heartbeat::response::v1"

// ResponseReader serves assembled operation results from the normalized
// store through a read-through cache. Entries are dropped whenever a record
// they were assembled from changes.
type ResponseReader struct {
	store *Store
	cache repositorycache.CacheService

	mu         sync.Mutex
	dependents map[string]map[string]struct{}
}

func NewResponseReader(store *Store, cacheService repositorycache.CacheService) (*ResponseReader, error) {
	if store == nil {
		return nil, fmt.Errorf("cache: normalized store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("cache: response cache service is required")
	}
	return &ResponseReader{
		store:      store,
		cache:      cacheService,
		dependents: map[string]map[string]struct{}{},
	}, nil
}

// NewCacheService builds the in-memory read-through cache used by the reader.
func NewCacheService(ttl time.Duration) (repositorycache.CacheService, error) {
	config := repositorycache.DefaultConfig()
	if ttl > 0 {
		config.TTL = ttl
	}
	return repositorycache.NewCacheService(config)
}

// ResponseCacheKey returns heartbeat::response::v1::<root record key>, with
// the record key URL-path escaped.
func ResponseCacheKey(op core.Operation) string {
	return strings.Join([]string{responseCacheKeyPrefix, url.PathEscape(RootKey(op))}, "::")
}

func (r *ResponseReader) Store() *Store {
	if r == nil {
		return nil
	}
	return r.store
}

// assembledResponse is what the read-through cache holds: the assembled data
// plus the records and store version it was built from.
type assembledResponse struct {
	Data    map[string]any
	Deps    []string
	Version uint64
}

// Read returns the cached result for op or a cache-miss error. A cached
// assembly whose records changed after it was built is dropped and the result
// is rebuilt from the store.
func (r *ResponseReader) Read(ctx context.Context, op core.Operation) (*core.Response, error) {
	if r == nil || r.store == nil || r.cache == nil {
		return nil, core.NewInternalError("cache: response reader is not configured", nil)
	}
	rootKey := RootKey(op)
	cacheKey := ResponseCacheKey(op)

	entry, err := repositorycache.GetOrFetch(ctx, r.cache, cacheKey, func(context.Context) (assembledResponse, error) {
		return r.assemble(op, rootKey, cacheKey)
	})
	if err != nil {
		if core.IsCacheMiss(err) {
			return nil, err
		}
		return nil, core.NewCacheMissError(op.Name)
	}
	if r.store.ChangedSince(entry.Deps, entry.Version) {
		if err := r.cache.Delete(ctx, cacheKey); err != nil {
			return nil, err
		}
		entry, err = r.assemble(op, rootKey, cacheKey)
		if err != nil {
			return nil, err
		}
	}
	resp := &core.Response{Data: entry.Data, Source: core.SourceCache}
	return resp.Clone(), nil
}

func (r *ResponseReader) assemble(op core.Operation, rootKey string, cacheKey string) (assembledResponse, error) {
	data, deps, version, ok := r.store.ReadVersion(rootKey)
	if !ok {
		return assembledResponse{}, core.NewCacheMissError(op.Name)
	}
	r.track(cacheKey, deps)
	return assembledResponse{Data: data, Deps: deps, Version: version}, nil
}

// Write normalizes data under the operation's root record and merges it.
func (r *ResponseReader) Write(ctx context.Context, op core.Operation, data map[string]any) (ChangeSet, error) {
	if data == nil {
		return ChangeSet{}, nil
	}
	return r.WriteRecords(ctx, Normalize(RootKey(op), data))
}

// WriteRecords merges already normalized records, evicts cached results that
// depended on any changed record and persists the changed records.
func (r *ResponseReader) WriteRecords(ctx context.Context, records []Record) (ChangeSet, error) {
	if r == nil || r.store == nil {
		return nil, core.NewInternalError("cache: response reader is not configured", nil)
	}
	if len(records) == 0 {
		return ChangeSet{}, nil
	}
	changes := r.store.Merge(records)
	if changes.Empty() {
		return changes, nil
	}
	keys := changes.Records()
	if err := r.invalidate(ctx, keys); err != nil {
		return changes, err
	}
	if err := r.store.Persist(ctx, keys); err != nil {
		return changes, err
	}
	return changes, nil
}

func (r *ResponseReader) track(cacheKey string, deps []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, dep := range deps {
		keys, ok := r.dependents[dep]
		if !ok {
			keys = map[string]struct{}{}
			r.dependents[dep] = keys
		}
		keys[cacheKey] = struct{}{}
	}
}

func (r *ResponseReader) invalidate(ctx context.Context, records []string) error {
	r.mu.Lock()
	stale := map[string]struct{}{}
	for _, record := range records {
		for cacheKey := range r.dependents[record] {
			stale[cacheKey] = struct{}{}
		}
		delete(r.dependents, record)
	}
	r.mu.Unlock()

	for cacheKey := range stale {
		if err := r.cache.Delete(ctx, cacheKey); err != nil {
			return err
		}
	}
	return nil
}

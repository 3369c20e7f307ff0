package cache

import (
	"context"
	"reflect"
	"sort"
	"sync"

	"github.com/heartbeatlive/go-heartbeat/core"
)

const maxReadDepth = 64

// ChangeSet lists the "<record>.<field>" keys touched by a merge.
type ChangeSet map[string]map[string]struct{}

func (c ChangeSet) Empty() bool {
	return len(c) == 0
}

// Records returns the changed record keys in sorted order.
func (c ChangeSet) Records() []string {
	out := make([]string, 0, len(c))
	for key := range c {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}

// Fields returns the changed "<record>.<field>" keys in sorted order.
func (c ChangeSet) Fields() []string {
	out := []string{}
	for key, fields := range c {
		for field := range fields {
			out = append(out, key+"."+field)
		}
	}
	sort.Strings(out)
	return out
}

func (c ChangeSet) add(key string, field string) {
	fields, ok := c[key]
	if !ok {
		fields = map[string]struct{}{}
		c[key] = fields
	}
	fields[field] = struct{}{}
}

// Store is the normalized record store shared by all chain executions.
type Store struct {
	mu        sync.RWMutex
	records   map[string]map[string]any
	persister core.RecordPersister

	// version increases on every merge that changes a field; versions holds
	// the version at which each record last changed.
	version  uint64
	versions map[string]uint64
}

type StoreOption func(*Store)

func WithPersister(persister core.RecordPersister) StoreOption {
	return func(s *Store) {
		s.persister = persister
	}
}

func NewStore(opts ...StoreOption) *Store {
	store := &Store{records: map[string]map[string]any{}, versions: map[string]uint64{}}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store
}

// Merge applies records field by field, last write wins. Fields whose value
// is unchanged are not reported, so re-merging the same records is a no-op.
func (s *Store) Merge(records []Record) ChangeSet {
	changes := ChangeSet{}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, record := range records {
		if record.Key == "" {
			continue
		}
		current, ok := s.records[record.Key]
		if !ok {
			current = map[string]any{}
			s.records[record.Key] = current
		}
		for field, value := range record.Fields {
			existing, exists := current[field]
			if exists && reflect.DeepEqual(existing, value) {
				continue
			}
			current[field] = value
			changes.add(record.Key, field)
		}
	}
	if !changes.Empty() {
		s.version++
		for key := range changes {
			s.versions[key] = s.version
		}
	}
	return changes
}

func (s *Store) Record(key string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fields, ok := s.records[key]
	if !ok {
		return Record{}, false
	}
	copied := make(map[string]any, len(fields))
	for field, value := range fields {
		copied[field] = value
	}
	return Record{Key: key, Fields: copied}, true
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = map[string]map[string]any{}
	s.versions = map[string]uint64{}
	s.version++
}

// Read rebuilds the data tree rooted at key, following references. It also
// returns every record key the result depends on. A dangling reference is a
// miss.
func (s *Store) Read(key string) (map[string]any, []string, bool) {
	data, deps, _, ok := s.ReadVersion(key)
	return data, deps, ok
}

// ReadVersion is Read plus the store version the result was assembled at.
func (s *Store) ReadVersion(key string) (map[string]any, []string, uint64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	deps := map[string]struct{}{}
	data, ok := s.readObject(key, deps, 0)
	if !ok {
		return nil, nil, s.version, false
	}
	keys := make([]string, 0, len(deps))
	for dep := range deps {
		keys = append(keys, dep)
	}
	sort.Strings(keys)
	return data, keys, s.version, true
}

// ChangedSince reports whether any of keys was changed or removed after
// version.
func (s *Store) ChangedSince(keys []string, version uint64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, key := range keys {
		if _, ok := s.records[key]; !ok {
			return true
		}
		if s.versions[key] > version {
			return true
		}
	}
	return false
}

func (s *Store) readObject(key string, deps map[string]struct{}, depth int) (map[string]any, bool) {
	if depth > maxReadDepth {
		return nil, false
	}
	fields, ok := s.records[key]
	if !ok {
		return nil, false
	}
	deps[key] = struct{}{}
	out := make(map[string]any, len(fields))
	for field, value := range fields {
		resolved, ok := s.readValue(value, deps, depth+1)
		if !ok {
			return nil, false
		}
		out[field] = resolved
	}
	return out, true
}

func (s *Store) readValue(value any, deps map[string]struct{}, depth int) (any, bool) {
	switch typed := value.(type) {
	case Reference:
		return s.readObject(typed.Key, deps, depth)
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			resolved, ok := s.readValue(item, deps, depth)
			if !ok {
				return nil, false
			}
			out[i] = resolved
		}
		return out, true
	default:
		return typed, true
	}
}

// Load merges persisted records into memory and returns how many were read.
func (s *Store) Load(ctx context.Context) (int, error) {
	if s == nil || s.persister == nil {
		return 0, nil
	}
	persisted, err := s.persister.LoadRecords(ctx)
	if err != nil {
		return 0, err
	}
	records := make([]Record, 0, len(persisted))
	for _, item := range persisted {
		records = append(records, Record{Key: item.Key, Fields: decodeFields(item.Fields)})
	}
	s.Merge(records)
	return len(records), nil
}

// Persist writes the named records through the configured persister.
func (s *Store) Persist(ctx context.Context, keys []string) error {
	if s == nil || s.persister == nil || len(keys) == 0 {
		return nil
	}
	out := make([]core.PersistedRecord, 0, len(keys))
	for _, key := range keys {
		record, ok := s.Record(key)
		if !ok {
			continue
		}
		out = append(out, core.PersistedRecord{Key: key, Fields: encodeFields(record.Fields)})
	}
	if len(out) == 0 {
		return nil
	}
	return s.persister.SaveRecords(ctx, out)
}

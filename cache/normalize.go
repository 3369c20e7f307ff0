package cache

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/heartbeatlive/go-heartbeat/core"
)

const (
	typenameField = "__typename"
	idField       = "id"
	rootKeyPrefix = "OPERATION"
)

// Reference points at another normalized record.
type Reference struct {
	Key string
}

// Record is one normalized cache entry. Nested entities are stored as
// Reference values (or slices containing them).
type Record struct {
	Key    string
	Fields map[string]any
}

// RootKey is the record key under which an operation's top-level fields are
// stored.
func RootKey(op core.Operation) string {
	kind := strings.ToUpper(string(op.Kind))
	if kind == "" {
		kind = strings.ToUpper(string(core.OperationQuery))
	}
	return rootKeyPrefix + ":" + kind + ":" + op.CacheKey()
}

// EntityKey returns "<__typename>:<id>" when both are present.
func EntityKey(object map[string]any) (string, bool) {
	typename, _ := object[typenameField].(string)
	if strings.TrimSpace(typename) == "" {
		return "", false
	}
	var id string
	switch typed := object[idField].(type) {
	case string:
		id = typed
	case float64:
		id = strconv.FormatFloat(typed, 'f', -1, 64)
	case nil:
		return "", false
	default:
		id = fmt.Sprint(typed)
	}
	if strings.TrimSpace(id) == "" {
		return "", false
	}
	return typename + ":" + id, true
}

// Normalize flattens data into records keyed by entity identity. Objects
// without identity are keyed by their path below the parent record. When an
// entity appears more than once the later occurrence wins per field.
func Normalize(rootKey string, data map[string]any) []Record {
	n := normalizer{records: map[string]map[string]any{}}
	n.object(rootKey, data)
	out := make([]Record, 0, len(n.order))
	for _, key := range n.order {
		out = append(out, Record{Key: key, Fields: n.records[key]})
	}
	return out
}

type normalizer struct {
	records map[string]map[string]any
	order   []string
}

func (n *normalizer) object(key string, object map[string]any) {
	fields, ok := n.records[key]
	if !ok {
		fields = map[string]any{}
		n.records[key] = fields
		n.order = append(n.order, key)
	}
	for name, value := range object {
		fields[name] = n.value(key+"."+name, value)
	}
}

func (n *normalizer) value(path string, value any) any {
	switch typed := value.(type) {
	case map[string]any:
		key, ok := EntityKey(typed)
		if !ok {
			key = path
		}
		n.object(key, typed)
		return Reference{Key: key}
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = n.value(path+"."+strconv.Itoa(i), item)
		}
		return out
	default:
		return typed
	}
}

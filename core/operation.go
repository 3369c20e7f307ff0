package core

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
)

type OperationKind string

const (
	OperationQuery    OperationKind = "query"
	OperationMutation OperationKind = "mutation"
)

// Operation is an immutable GraphQL operation descriptor. Document is treated
// as opaque text; the result shape is chosen by the caller when decoding.
type Operation struct {
	Name      string
	Document  string
	Variables map[string]any
	Kind      OperationKind
}

func NewQuery(name string, document string, variables map[string]any) Operation {
	return Operation{
		Name:      strings.TrimSpace(name),
		Document:  document,
		Variables: cloneVariables(variables),
		Kind:      OperationQuery,
	}
}

func NewMutation(name string, document string, variables map[string]any) Operation {
	return Operation{
		Name:      strings.TrimSpace(name),
		Document:  document,
		Variables: cloneVariables(variables),
		Kind:      OperationMutation,
	}
}

func (o Operation) IsMutation() bool {
	return o.Kind == OperationMutation
}

func (o Operation) Validate() error {
	if strings.TrimSpace(o.Name) == "" {
		return NewBadInputError("core: operation name is required", nil)
	}
	if strings.TrimSpace(o.Document) == "" {
		return NewBadInputError("core: operation document is required", map[string]any{"operation": o.Name})
	}
	switch o.Kind {
	case OperationQuery, OperationMutation:
	default:
		return NewBadInputError("core: unsupported operation kind", map[string]any{
			"operation": o.Name,
			"kind":      string(o.Kind),
		})
	}
	return nil
}

// DocumentHash is the hex SHA-256 of the document text, used as the
// persisted query identifier.
func (o Operation) DocumentHash() string {
	sum := sha256.Sum256([]byte(o.Document))
	return hex.EncodeToString(sum[:])
}

// CacheKey discriminates cached results by document and variables. Map keys
// are marshalled in sorted order so equal variable sets share a key.
func (o Operation) CacheKey() string {
	hasher := sha256.New()
	hasher.Write([]byte(o.Document))
	hasher.Write([]byte{0})
	if len(o.Variables) > 0 {
		encoded, err := json.Marshal(o.Variables)
		if err == nil {
			hasher.Write(encoded)
		}
	}
	return hex.EncodeToString(hasher.Sum(nil))
}

func cloneVariables(variables map[string]any) map[string]any {
	if len(variables) == 0 {
		return map[string]any{}
	}
	cloned := make(map[string]any, len(variables))
	for key, value := range variables {
		cloned[key] = value
	}
	return cloned
}

package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/heartbeatlive/go-heartbeat/core"
)

const KindGraphQL = "graphql"

const (
	MetadataQuery              = "query"
	MetadataOperationName      = "operation_name"
	MetadataVariables          = "variables"
	MetadataPersistedQueryHash = "persisted_query_hash"
)

const persistedQueryVersion = 1

// NewOperationRequest describes op for the GraphQL adapter. The document is
// sent when includeDocument is set; the persisted query hash when
// includeHash is set. At least one of them must be requested.
func NewOperationRequest(op core.Operation, includeDocument bool, includeHash bool, headers map[string]string, timeout time.Duration) Request {
	metadata := map[string]any{
		MetadataOperationName: op.Name,
		MetadataVariables:     op.Variables,
	}
	if includeDocument {
		metadata[MetadataQuery] = op.Document
	}
	if includeHash {
		metadata[MetadataPersistedQueryHash] = op.DocumentHash()
	}
	return Request{
		Method:   http.MethodPost,
		Headers:  headers,
		Metadata: metadata,
		Timeout:  timeout,
	}
}

type GraphQLAdapter struct {
	Endpoint string
	REST     *RESTAdapter
}

func NewGraphQLAdapter(endpoint string, client HTTPDoer) *GraphQLAdapter {
	return &GraphQLAdapter{
		Endpoint: strings.TrimSpace(endpoint),
		REST:     NewRESTAdapter(client),
	}
}

func (*GraphQLAdapter) Kind() string {
	return KindGraphQL
}

func (a *GraphQLAdapter) Do(ctx context.Context, req Request) (Response, error) {
	if a == nil || a.REST == nil {
		return Response{}, transportError(
			"transport: graphql adapter requires a rest adapter",
			goerrors.CategoryInternal,
			http.StatusInternalServerError,
			map[string]any{"adapter": KindGraphQL},
		)
	}

	endpoint := strings.TrimSpace(req.URL)
	if endpoint == "" {
		endpoint = a.Endpoint
	}
	if endpoint == "" {
		return Response{}, transportError(
			"transport: graphql endpoint is required",
			goerrors.CategoryBadInput,
			http.StatusBadRequest,
			map[string]any{"adapter": KindGraphQL},
		)
	}

	query, hasQuery := readGraphQLQuery(req)
	hash := readGraphQLString(req.Metadata, MetadataPersistedQueryHash)
	if !hasQuery && hash == "" {
		return Response{}, transportError(
			"transport: graphql query or persisted query hash is required",
			goerrors.CategoryBadInput,
			http.StatusBadRequest,
			map[string]any{"adapter": KindGraphQL, "endpoint": endpoint},
		)
	}
	payload := map[string]any{}
	if hasQuery {
		payload["query"] = query
	}
	if hash != "" {
		payload["extensions"] = map[string]any{
			"persistedQuery": map[string]any{
				"version":    persistedQueryVersion,
				"sha256Hash": hash,
			},
		}
	}
	if operationName := readGraphQLString(req.Metadata, MetadataOperationName); operationName != "" {
		payload["operationName"] = operationName
	}
	if variables, ok := readGraphQLVariables(req.Metadata); ok {
		payload["variables"] = variables
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return Response{}, transportWrapError(
			err,
			goerrors.CategoryBadInput,
			"transport: marshal graphql payload",
			http.StatusBadRequest,
			map[string]any{"adapter": KindGraphQL, "endpoint": endpoint},
		)
	}

	headers := map[string]string{"Content-Type": "application/json", "Accept": "application/json"}
	for key, value := range req.Headers {
		headers[key] = value
	}

	response, err := a.REST.Do(ctx, Request{
		Method:               "POST",
		URL:                  endpoint,
		Headers:              headers,
		Body:                 body,
		Metadata:             req.Metadata,
		Timeout:              req.Timeout,
		MaxResponseBodyBytes: req.MaxResponseBodyBytes,
	})
	if err != nil {
		return Response{}, transportWrapError(
			err,
			goerrors.CategoryExternal,
			"transport: graphql request failed",
			http.StatusBadGateway,
			map[string]any{"adapter": KindGraphQL, "endpoint": endpoint},
		)
	}
	response.Metadata = ensureMetadata(response.Metadata)
	response.Metadata["kind"] = KindGraphQL
	return response, nil
}

func readGraphQLQuery(req Request) (string, bool) {
	if query := readGraphQLString(req.Metadata, MetadataQuery); query != "" {
		return query, true
	}
	if len(req.Body) == 0 {
		return "", false
	}
	query := strings.TrimSpace(string(req.Body))
	if query == "" {
		return "", false
	}
	return query, true
}

func readGraphQLString(metadata map[string]any, key string) string {
	if len(metadata) == 0 {
		return ""
	}
	value, ok := metadata[key]
	if !ok || value == nil {
		return ""
	}
	text := strings.TrimSpace(fmt.Sprint(value))
	if text == "<nil>" {
		return ""
	}
	return text
}

func readGraphQLVariables(metadata map[string]any) (map[string]any, bool) {
	if len(metadata) == 0 {
		return nil, false
	}
	value, ok := metadata[MetadataVariables]
	if !ok || value == nil {
		return nil, false
	}
	if typed, ok := value.(map[string]any); ok {
		if len(typed) == 0 {
			return map[string]any{}, true
		}
		cloned := make(map[string]any, len(typed))
		for key, item := range typed {
			cloned[key] = item
		}
		return cloned, true
	}
	return nil, false
}

func ensureMetadata(metadata map[string]any) map[string]any {
	if len(metadata) == 0 {
		return map[string]any{}
	}
	return metadata
}

var _ Adapter = (*GraphQLAdapter)(nil)

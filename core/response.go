package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

type ResponseSource string

const (
	SourceNetwork ResponseSource = "network"
	SourceCache   ResponseSource = "cache"
)

// GraphQLError is a single entry of the response "errors" list.
type GraphQLError struct {
	Message    string         `json:"message"`
	Path       []any          `json:"path,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

// Code returns extensions.code, or an empty string.
func (e GraphQLError) Code() string {
	return e.ExtensionString("code")
}

func (e GraphQLError) ExtensionString(key string) string {
	if len(e.Extensions) == 0 {
		return ""
	}
	value, ok := e.Extensions[key].(string)
	if !ok {
		return ""
	}
	return value
}

func (e GraphQLError) PathStrings() []string {
	if len(e.Path) == 0 {
		return nil
	}
	out := make([]string, 0, len(e.Path))
	for _, segment := range e.Path {
		out = append(out, pathSegment(segment))
	}
	return out
}

func (e GraphQLError) HasPathSegment(segment string) bool {
	for _, item := range e.Path {
		if pathSegment(item) == segment {
			return true
		}
	}
	return false
}

func (e GraphQLError) Error() string {
	if len(e.Path) == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s (path: %s)", e.Message, strings.Join(e.PathStrings(), "."))
}

type Response struct {
	Data       map[string]any `json:"data,omitempty"`
	Errors     []GraphQLError `json:"errors,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`

	Source     ResponseSource    `json:"-"`
	StatusCode int               `json:"-"`
	Headers    map[string]string `json:"-"`
}

// FindErrorWithPath returns the first error whose path contains segment.
func (r *Response) FindErrorWithPath(segment string) (GraphQLError, bool) {
	if r == nil {
		return GraphQLError{}, false
	}
	for _, item := range r.Errors {
		if item.HasPathSegment(segment) {
			return item, true
		}
	}
	return GraphQLError{}, false
}

// FindErrorWithCode returns the first error whose extensions.code matches.
func (r *Response) FindErrorWithCode(code string) (GraphQLError, bool) {
	if r == nil {
		return GraphQLError{}, false
	}
	for _, item := range r.Errors {
		if item.Code() == code {
			return item, true
		}
	}
	return GraphQLError{}, false
}

func (r *Response) HasErrors() bool {
	return r != nil && len(r.Errors) > 0
}

// Field returns a top-level data field.
func (r *Response) Field(name string) (any, bool) {
	if r == nil || r.Data == nil {
		return nil, false
	}
	value, ok := r.Data[name]
	if !ok || value == nil {
		return nil, false
	}
	return value, true
}

func (r *Response) Clone() *Response {
	if r == nil {
		return nil
	}
	cloned := *r
	cloned.Data = cloneJSONMap(r.Data)
	cloned.Extensions = cloneJSONMap(r.Extensions)
	if len(r.Errors) > 0 {
		cloned.Errors = make([]GraphQLError, len(r.Errors))
		for i, item := range r.Errors {
			cloned.Errors[i] = GraphQLError{
				Message:    item.Message,
				Path:       append([]any(nil), item.Path...),
				Extensions: cloneJSONMap(item.Extensions),
			}
		}
	}
	if len(r.Headers) > 0 {
		cloned.Headers = make(map[string]string, len(r.Headers))
		for key, value := range r.Headers {
			cloned.Headers[key] = value
		}
	}
	return &cloned
}

// DecodeResponse parses a GraphQL response envelope. A body that is not a
// JSON object or carries neither data nor errors is rejected.
func DecodeResponse(body []byte) (*Response, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, NewParseError(nil, "core: empty graphql response body", nil)
	}
	var envelope struct {
		Data       json.RawMessage `json:"data"`
		Errors     []GraphQLError  `json:"errors"`
		Extensions map[string]any  `json:"extensions"`
	}
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return nil, NewParseError(err, "core: decode graphql response", map[string]any{"body_bytes": len(trimmed)})
	}
	out := &Response{Errors: envelope.Errors, Extensions: envelope.Extensions}
	if len(envelope.Data) > 0 && !bytes.Equal(envelope.Data, []byte("null")) {
		if err := json.Unmarshal(envelope.Data, &out.Data); err != nil {
			return nil, NewParseError(err, "core: decode graphql data", nil)
		}
	}
	if out.Data == nil && len(out.Errors) == 0 {
		return nil, NewParseError(nil, "core: graphql response has neither data nor errors", nil)
	}
	return out, nil
}

// DecodeData converts the response data into the caller's expected shape.
func DecodeData[T any](resp *Response) (T, error) {
	var out T
	if resp == nil || resp.Data == nil {
		return out, NewParseError(nil, "core: response has no data", nil)
	}
	encoded, err := json.Marshal(resp.Data)
	if err != nil {
		return out, NewParseError(err, "core: encode response data", nil)
	}
	if err := json.Unmarshal(encoded, &out); err != nil {
		return out, NewParseError(err, "core: decode response data", nil)
	}
	return out, nil
}

// Result is delivered exactly once to asynchronous completion callbacks.
type Result struct {
	Response *Response
	Err      error
}

func pathSegment(segment any) string {
	switch typed := segment.(type) {
	case string:
		return typed
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case int:
		return strconv.Itoa(typed)
	case json.Number:
		return typed.String()
	default:
		return fmt.Sprint(typed)
	}
}

func cloneJSONMap(input map[string]any) map[string]any {
	if input == nil {
		return nil
	}
	out := make(map[string]any, len(input))
	for key, value := range input {
		out[key] = cloneJSONValue(value)
	}
	return out
}

func cloneJSONValue(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		return cloneJSONMap(typed)
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = cloneJSONValue(item)
		}
		return out
	default:
		return typed
	}
}

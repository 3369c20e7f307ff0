package core

import (
	stderrors "errors"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ErrorBadInput          = "HEARTBEAT_BAD_INPUT"
	ErrorValidation        = "HEARTBEAT_VALIDATION"
	ErrorConfigInvalid     = "HEARTBEAT_CONFIG_INVALID"
	ErrorTransport         = "HEARTBEAT_TRANSPORT_ERROR"
	ErrorHTTPStatus        = "HEARTBEAT_HTTP_STATUS"
	ErrorParse             = "HEARTBEAT_PARSE_ERROR"
	ErrorCacheMiss         = "HEARTBEAT_CACHE_MISS"
	ErrorRateLimited       = "HEARTBEAT_RATE_LIMITED"
	ErrorAuthWrongPassword = "HEARTBEAT_AUTH_WRONG_PASSWORD"
	ErrorAuthFailed        = "HEARTBEAT_AUTH_FAILED"
	ErrorAuthCancelled     = "HEARTBEAT_AUTH_CANCELLED"
	ErrorInternal          = "HEARTBEAT_INTERNAL_ERROR"
)

func NewBadInputError(message string, metadata map[string]any) *goerrors.Error {
	return newTaggedError(message, goerrors.CategoryBadInput, ErrorBadInput, http.StatusBadRequest, metadata)
}

func NewInternalError(message string, metadata map[string]any) *goerrors.Error {
	return newTaggedError(message, goerrors.CategoryInternal, ErrorInternal, http.StatusInternalServerError, metadata)
}

func NewCacheMissError(operation string) *goerrors.Error {
	return newTaggedError(
		"core: no cached result for operation",
		goerrors.CategoryNotFound,
		ErrorCacheMiss,
		http.StatusNotFound,
		map[string]any{"operation": operation},
	)
}

func NewParseError(source error, message string, metadata map[string]any) *goerrors.Error {
	var err *goerrors.Error
	if source == nil {
		err = goerrors.New(message, goerrors.CategoryBadInput)
	} else {
		err = goerrors.Wrap(source, goerrors.CategoryBadInput, message)
	}
	err = err.WithCode(http.StatusBadGateway).WithTextCode(ErrorParse)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

// NewStatusError reports a non-2xx HTTP status. It is never retryable.
func NewStatusError(status int, metadata map[string]any) *goerrors.Error {
	fields := map[string]any{"status_code": status}
	for key, value := range metadata {
		fields[key] = value
	}
	return goerrors.New("core: unexpected http status "+http.StatusText(status), goerrors.CategoryExternal).
		WithCode(status).
		WithTextCode(ErrorHTTPStatus).
		WithMetadata(fields)
}

func NewValidationError(message string, fields ...goerrors.FieldError) *goerrors.Error {
	return goerrors.NewValidation(message, fields...).
		WithCode(http.StatusBadRequest).
		WithTextCode(ErrorValidation)
}

// ServiceErrorConvertible is implemented by typed errors that know their
// rich error envelope.
type ServiceErrorConvertible interface {
	ToServiceError() *goerrors.Error
}

// TextCode returns the first text code found along the error chain.
func TextCode(err error) string {
	for current := err; current != nil; current = stderrors.Unwrap(current) {
		switch typed := current.(type) {
		case ServiceErrorConvertible:
			if mapped := typed.ToServiceError(); mapped != nil && strings.TrimSpace(mapped.TextCode) != "" {
				return mapped.TextCode
			}
		case *goerrors.RetryableError:
			if typed.BaseError != nil && strings.TrimSpace(typed.TextCode) != "" {
				return typed.TextCode
			}
		case *goerrors.Error:
			if strings.TrimSpace(typed.TextCode) != "" {
				return typed.TextCode
			}
		}
	}
	return ""
}

func HasTextCode(err error, code string) bool {
	for current := err; current != nil; current = stderrors.Unwrap(current) {
		switch typed := current.(type) {
		case ServiceErrorConvertible:
			if mapped := typed.ToServiceError(); mapped != nil && mapped.TextCode == code {
				return true
			}
		case *goerrors.RetryableError:
			if typed.BaseError != nil && typed.TextCode == code {
				return true
			}
		case *goerrors.Error:
			if typed.TextCode == code {
				return true
			}
		}
	}
	return false
}

// IsRetryable reports whether err carries a retryable marker anywhere in its
// chain.
func IsRetryable(err error) bool {
	var retryable *goerrors.RetryableError
	if !goerrors.As(err, &retryable) {
		return false
	}
	return retryable.IsRetryable()
}

func IsTransportError(err error) bool {
	return HasTextCode(err, ErrorTransport) || HasTextCode(err, ErrorHTTPStatus)
}

func IsParseError(err error) bool {
	return HasTextCode(err, ErrorParse)
}

func IsCacheMiss(err error) bool {
	return HasTextCode(err, ErrorCacheMiss)
}

// MapError normalizes any error into a rich error with a stable text code
// and status.
func MapError(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	var convertible ServiceErrorConvertible
	if goerrors.As(err, &convertible) {
		if mapped := convertible.ToServiceError(); mapped != nil {
			return ensureErrorEnvelope(mapped)
		}
	}
	var retryable *goerrors.RetryableError
	if goerrors.As(err, &retryable) && retryable.BaseError != nil {
		var outer *goerrors.Error
		if !goerrors.As(err, &outer) {
			return ensureErrorEnvelope(retryable.BaseError)
		}
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureErrorEnvelope(richErr)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"):
		return ensureErrorEnvelope(goerrors.New(err.Error(), goerrors.CategoryBadInput).WithTextCode(ErrorBadInput))
	}
	return ensureErrorEnvelope(goerrors.MapToError(err, goerrors.DefaultErrorMappers()))
}

func newTaggedError(
	message string,
	category goerrors.Category,
	textCode string,
	code int,
	metadata map[string]any,
) *goerrors.Error {
	err := goerrors.New(message, category).
		WithCode(code).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func ensureErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = statusForCategory(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = textCodeForCategory(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func textCodeForCategory(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput:
		return ErrorBadInput
	case goerrors.CategoryValidation:
		return ErrorValidation
	case goerrors.CategoryNotFound:
		return ErrorCacheMiss
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return ErrorAuthFailed
	case goerrors.CategoryExternal:
		return ErrorTransport
	default:
		return ErrorInternal
	}
}

func statusForCategory(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

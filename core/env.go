package core

import (
	"context"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	EnvServerHost        = "SERVER_HOST"
	EnvServerScheme      = "SERVER_SCHEME"
	EnvGraphQLPath       = "HEARTBEAT_GRAPHQL_PATH"
	EnvRequestTimeout    = "HEARTBEAT_REQUEST_TIMEOUT"
	EnvMaxRetries        = "HEARTBEAT_MAX_RETRIES"
	EnvPersistedQueries  = "HEARTBEAT_PERSISTED_QUERIES"
	EnvRateLimit         = "HEARTBEAT_RATE_LIMIT"
	EnvRateBurst         = "HEARTBEAT_RATE_BURST"
	EnvCacheTTL          = "HEARTBEAT_CACHE_TTL"
	EnvReconcileDelay    = "HEARTBEAT_RECONCILE_DELAY"
	EnvReconcileAttempts = "HEARTBEAT_RECONCILE_ATTEMPTS"
)

// EnvConfigLoader reads the client settings from process environment
// variables. Typed values are parsed here so the raw map is already typed.
type EnvConfigLoader struct {
	Lookup func(key string) (string, bool)
}

func NewEnvConfigLoader() EnvConfigLoader {
	return EnvConfigLoader{Lookup: os.LookupEnv}
}

func (l EnvConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	lookup := l.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	read := func(key string) (string, bool) {
		value, ok := lookup(key)
		if !ok {
			return "", false
		}
		value = strings.TrimSpace(value)
		return value, value != ""
	}

	raw := map[string]any{}
	if value, ok := read(EnvServerHost); ok {
		raw["server_host"] = value
	}
	if value, ok := read(EnvServerScheme); ok {
		raw["server_scheme"] = strings.ToLower(value)
	}
	if value, ok := read(EnvGraphQLPath); ok {
		raw["graphql_path"] = value
	}
	if value, ok := read(EnvRequestTimeout); ok {
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return nil, envParseError(EnvRequestTimeout, value, err)
		}
		raw["request_timeout"] = parsed
	}
	if value, ok := read(EnvCacheTTL); ok {
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return nil, envParseError(EnvCacheTTL, value, err)
		}
		raw["cache_ttl"] = parsed
	}
	if value, ok := read(EnvPersistedQueries); ok {
		enabled, err := strconv.ParseBool(value)
		if err != nil {
			return nil, envParseError(EnvPersistedQueries, value, err)
		}
		raw["disable_persisted_queries"] = !enabled
	}
	if value, ok := read(EnvMaxRetries); ok {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return nil, envParseError(EnvMaxRetries, value, err)
		}
		if parsed == 0 {
			parsed = -1
		}
		raw["retry"] = map[string]any{"max_retries": parsed}
	}

	rateLimit := map[string]any{}
	if value, ok := read(EnvRateLimit); ok {
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, envParseError(EnvRateLimit, value, err)
		}
		rateLimit["requests_per_second"] = parsed
	}
	if value, ok := read(EnvRateBurst); ok {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return nil, envParseError(EnvRateBurst, value, err)
		}
		rateLimit["burst"] = parsed
	}
	if len(rateLimit) > 0 {
		raw["rate_limit"] = rateLimit
	}

	reconcile := map[string]any{}
	if value, ok := read(EnvReconcileDelay); ok {
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return nil, envParseError(EnvReconcileDelay, value, err)
		}
		reconcile["delay"] = parsed
	}
	if value, ok := read(EnvReconcileAttempts); ok {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return nil, envParseError(EnvReconcileAttempts, value, err)
		}
		reconcile["max_attempts"] = parsed
	}
	if len(reconcile) > 0 {
		raw["reconcile"] = reconcile
	}
	return raw, nil
}

func envParseError(key string, value string, err error) error {
	wrapped := NewBadInputError("core: invalid environment value for "+key, map[string]any{
		"variable": key,
		"value":    value,
	})
	wrapped.Source = err
	return wrapped
}

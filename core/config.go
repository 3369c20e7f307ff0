package core

import (
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

const (
	DefaultGraphQLPath          = "/graphql"
	DefaultRequestTimeout       = 30 * time.Second
	DefaultMaxRetries           = 3
	DefaultRetryInitialBackoff  = 250 * time.Millisecond
	DefaultRetryMaxBackoff      = 5 * time.Second
	DefaultReconcileDelay       = 3 * time.Second
	DefaultReconcileMaxAttempts = 10
	DefaultCacheTTL             = time.Minute
)

type RetryConfig struct {
	// MaxRetries counts extra attempts after the first one. Negative disables
	// retries; zero selects the default.
	MaxRetries     int           `koanf:"max_retries" mapstructure:"max_retries"`
	InitialBackoff time.Duration `koanf:"initial_backoff" mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `koanf:"max_backoff" mapstructure:"max_backoff"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `koanf:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int     `koanf:"burst" mapstructure:"burst"`
}

type ReconcileConfig struct {
	Delay       time.Duration `koanf:"delay" mapstructure:"delay"`
	MaxAttempts int           `koanf:"max_attempts" mapstructure:"max_attempts"`
}

type Config struct {
	ServerHost              string          `koanf:"server_host" mapstructure:"server_host"`
	ServerScheme            string          `koanf:"server_scheme" mapstructure:"server_scheme"`
	GraphQLPath             string          `koanf:"graphql_path" mapstructure:"graphql_path"`
	RequestTimeout          time.Duration   `koanf:"request_timeout" mapstructure:"request_timeout"`
	DisablePersistedQueries bool            `koanf:"disable_persisted_queries" mapstructure:"disable_persisted_queries"`
	CacheTTL                time.Duration   `koanf:"cache_ttl" mapstructure:"cache_ttl"`
	Retry                   RetryConfig     `koanf:"retry" mapstructure:"retry"`
	RateLimit               RateLimitConfig `koanf:"rate_limit" mapstructure:"rate_limit"`
	Reconcile               ReconcileConfig `koanf:"reconcile" mapstructure:"reconcile"`
}

// DefaultConfig leaves the server coordinates empty: they have no sensible
// default and must come from the environment.
func DefaultConfig() Config {
	return Config{
		GraphQLPath:    DefaultGraphQLPath,
		RequestTimeout: DefaultRequestTimeout,
		CacheTTL:       DefaultCacheTTL,
		Retry: RetryConfig{
			MaxRetries:     DefaultMaxRetries,
			InitialBackoff: DefaultRetryInitialBackoff,
			MaxBackoff:     DefaultRetryMaxBackoff,
		},
		Reconcile: ReconcileConfig{
			Delay:       DefaultReconcileDelay,
			MaxAttempts: DefaultReconcileMaxAttempts,
		},
	}
}

func (c Config) Validate() error {
	fields := []goerrors.FieldError{}
	if strings.TrimSpace(c.ServerHost) == "" {
		fields = append(fields, goerrors.FieldError{Field: "server_host", Message: "SERVER_HOST is required"})
	}
	scheme := strings.TrimSpace(c.ServerScheme)
	if scheme == "" {
		fields = append(fields, goerrors.FieldError{Field: "server_scheme", Message: "SERVER_SCHEME is required"})
	} else if scheme != "http" && scheme != "https" {
		fields = append(fields, goerrors.FieldError{Field: "server_scheme", Message: "must be http or https", Value: scheme})
	}
	if c.RequestTimeout < 0 {
		fields = append(fields, goerrors.FieldError{Field: "request_timeout", Message: "must not be negative"})
	}
	if c.RateLimit.RequestsPerSecond < 0 {
		fields = append(fields, goerrors.FieldError{Field: "rate_limit.requests_per_second", Message: "must not be negative"})
	}
	if c.Reconcile.MaxAttempts < 0 {
		fields = append(fields, goerrors.FieldError{Field: "reconcile.max_attempts", Message: "must not be negative"})
	}
	if len(fields) == 0 {
		return nil
	}
	return goerrors.NewValidation("core: invalid client configuration", fields...).
		WithTextCode(ErrorConfigInvalid)
}

// Endpoint is the GraphQL endpoint URL: <scheme>://<host>/graphql.
func (c Config) Endpoint() string {
	path := strings.TrimSpace(c.GraphQLPath)
	if path == "" {
		path = DefaultGraphQLPath
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return strings.TrimSpace(c.ServerScheme) + "://" + strings.TrimSpace(c.ServerHost) + path
}

func (c Config) MaxRetries() int {
	switch {
	case c.Retry.MaxRetries < 0:
		return 0
	case c.Retry.MaxRetries == 0:
		return DefaultMaxRetries
	default:
		return c.Retry.MaxRetries
	}
}

func (c Config) PersistedQueriesEnabled() bool {
	return !c.DisablePersistedQueries
}

package heartbeat

import "github.com/heartbeatlive/go-heartbeat/core"

type Config = core.Config

type Option = core.Option

type Operation = core.Operation

type Response = core.Response

type Result = core.Result

type CachePolicy = core.CachePolicy

const (
	ReturnCacheDataElseFetch     = core.ReturnCacheDataElseFetch
	FetchIgnoringCacheData       = core.FetchIgnoringCacheData
	FetchIgnoringCacheCompletely = core.FetchIgnoringCacheCompletely
	ReturnCacheDataDontFetch     = core.ReturnCacheDataDontFetch
)

var (
	WithLogger           = core.WithLogger
	WithLoggerProvider   = core.WithLoggerProvider
	WithMetricsRecorder  = core.WithMetricsRecorder
	WithErrorMapper      = core.WithErrorMapper
	WithConfigProvider   = core.WithConfigProvider
	WithOptionsResolver  = core.WithOptionsResolver
	WithIdentityProvider = core.WithIdentityProvider
	WithHTTPClient       = core.WithHTTPClient
	WithPacer            = core.WithPacer
	WithRecordPersister  = core.WithRecordPersister
	WithBackoffScheduler = core.WithBackoffScheduler
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	opts "github.com/goliatone/go-options"
)

type ErrorMapper func(err error) *goerrors.Error

type clientBuilder struct {
	runtimeConfig    Config
	logger           Logger
	loggerProvider   LoggerProvider
	metricsRecorder  MetricsRecorder
	errorMapper      ErrorMapper
	configProvider   ConfigProvider
	optionsResolver  OptionsResolver
	identityProvider IdentityProvider
	httpClient       HTTPDoer
	pacer            Pacer
	recordPersister  RecordPersister
	backoff          BackoffScheduler
}

type Option func(*clientBuilder)

func WithLogger(logger Logger) Option {
	return func(b *clientBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *clientBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *clientBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithErrorMapper(mapper ErrorMapper) Option {
	return func(b *clientBuilder) {
		b.errorMapper = mapper
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *clientBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *clientBuilder) {
		b.optionsResolver = resolver
	}
}

func WithIdentityProvider(provider IdentityProvider) Option {
	return func(b *clientBuilder) {
		b.identityProvider = provider
	}
}

func WithHTTPClient(client HTTPDoer) Option {
	return func(b *clientBuilder) {
		b.httpClient = client
	}
}

func WithPacer(pacer Pacer) Option {
	return func(b *clientBuilder) {
		b.pacer = pacer
	}
}

func WithRecordPersister(persister RecordPersister) Option {
	return func(b *clientBuilder) {
		b.recordPersister = persister
	}
}

func WithBackoffScheduler(scheduler BackoffScheduler) Option {
	return func(b *clientBuilder) {
		b.backoff = scheduler
	}
}

// Dependencies is the resolved wiring handed to the client and its chain.
// Optional collaborators stay nil when not configured.
type Dependencies struct {
	Config           Config
	Logger           Logger
	LoggerProvider   LoggerProvider
	MetricsRecorder  MetricsRecorder
	ErrorMapper      ErrorMapper
	ConfigProvider   ConfigProvider
	OptionsResolver  OptionsResolver
	IdentityProvider IdentityProvider
	HTTPClient       HTTPDoer
	Pacer            Pacer
	RecordPersister  RecordPersister
	Backoff          BackoffScheduler
}

// ResolveDependencies applies options over the defaults and resolves the
// final configuration as defaults < loaded < runtime.
func ResolveDependencies(ctx context.Context, runtime Config, options ...Option) (Dependencies, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	builder := defaultClientBuilder(runtime)
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("heartbeat", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("heartbeat"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.metricsRecorder == nil {
		builder.metricsRecorder = discardMetrics{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = MapError
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(ctx, defaults)
	if err != nil {
		return Dependencies{}, builder.errorMapper(err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return Dependencies{}, builder.errorMapper(err)
	}

	if builder.backoff == nil {
		builder.backoff = ExponentialBackoffScheduler{
			Initial: finalConfig.Retry.InitialBackoff,
			Max:     finalConfig.Retry.MaxBackoff,
		}
	}

	return Dependencies{
		Config:           finalConfig,
		Logger:           logger,
		LoggerProvider:   provider,
		MetricsRecorder:  builder.metricsRecorder,
		ErrorMapper:      builder.errorMapper,
		ConfigProvider:   builder.configProvider,
		OptionsResolver:  builder.optionsResolver,
		IdentityProvider: builder.identityProvider,
		HTTPClient:       builder.httpClient,
		Pacer:            builder.pacer,
		RecordPersister:  builder.recordPersister,
		Backoff:          builder.backoff,
	}, nil
}

func defaultClientBuilder(runtime Config) clientBuilder {
	loggerProvider, logger := glog.Resolve("heartbeat", nil, nil)
	return clientBuilder{
		runtimeConfig:   runtime,
		loggerProvider:  loggerProvider,
		logger:          logger,
		metricsRecorder: discardMetrics{},
		errorMapper:     MapError,
		configProvider:  NewCfgxConfigProvider(nil),
		optionsResolver: GoOptionsResolver{},
	}
}

type StaticRawConfigLoader struct {
	Values map[string]any
}

func (l StaticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

// Load builds the loaded layer without validating it: required values may
// still arrive from the runtime layer.
func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = StaticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw, cfgx.WithDefaults(defaults))
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	defaultLayer := configToLayerMap(defaults, true)
	loadedLayer := configToLayerMap(loaded, false)
	runtimeLayer := configToLayerMap(runtime, false)

	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			defaultLayer,
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			loadedLayer,
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			runtimeLayer,
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return Config{}, richErr
		}
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	setString := func(key string, value string) {
		if includeZero || strings.TrimSpace(value) != "" {
			layer[key] = strings.TrimSpace(value)
		}
	}
	setString("server_host", cfg.ServerHost)
	setString("server_scheme", cfg.ServerScheme)
	setString("graphql_path", cfg.GraphQLPath)
	if includeZero || cfg.RequestTimeout != 0 {
		layer["request_timeout"] = cfg.RequestTimeout
	}
	if includeZero || cfg.CacheTTL != 0 {
		layer["cache_ttl"] = cfg.CacheTTL
	}
	if includeZero || cfg.DisablePersistedQueries {
		layer["disable_persisted_queries"] = cfg.DisablePersistedQueries
	}

	retry := map[string]any{}
	if includeZero || cfg.Retry.MaxRetries != 0 {
		retry["max_retries"] = cfg.Retry.MaxRetries
	}
	if includeZero || cfg.Retry.InitialBackoff != 0 {
		retry["initial_backoff"] = cfg.Retry.InitialBackoff
	}
	if includeZero || cfg.Retry.MaxBackoff != 0 {
		retry["max_backoff"] = cfg.Retry.MaxBackoff
	}
	if len(retry) > 0 {
		layer["retry"] = retry
	}

	rateLimit := map[string]any{}
	if includeZero || cfg.RateLimit.RequestsPerSecond != 0 {
		rateLimit["requests_per_second"] = cfg.RateLimit.RequestsPerSecond
	}
	if includeZero || cfg.RateLimit.Burst != 0 {
		rateLimit["burst"] = cfg.RateLimit.Burst
	}
	if len(rateLimit) > 0 {
		layer["rate_limit"] = rateLimit
	}

	reconcile := map[string]any{}
	if includeZero || cfg.Reconcile.Delay != 0 {
		reconcile["delay"] = cfg.Reconcile.Delay
	}
	if includeZero || cfg.Reconcile.MaxAttempts != 0 {
		reconcile["max_attempts"] = cfg.Reconcile.MaxAttempts
	}
	if len(reconcile) > 0 {
		layer["reconcile"] = reconcile
	}
	return layer
}

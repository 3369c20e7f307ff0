package heartbeat

import (
	"context"
	"net/http"
	"strings"
	"sync"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/heartbeatlive/go-heartbeat/cache"
	"github.com/heartbeatlive/go-heartbeat/chain"
	"github.com/heartbeatlive/go-heartbeat/core"
	"github.com/heartbeatlive/go-heartbeat/ratelimit"
	"github.com/heartbeatlive/go-heartbeat/reconcile"
	"github.com/heartbeatlive/go-heartbeat/transport"
)

// Client runs GraphQL operations through the interceptor chain. It is safe
// for concurrent use; concurrent calls are independent and never
// deduplicated.
type Client struct {
	config core.Config
	deps   core.Dependencies
	logger glog.Logger
	chain  *chain.Chain
	store  *cache.Store

	// mu orders inflight.Add against Close so Wait never races a new call.
	mu       sync.Mutex
	closed   bool
	inflight sync.WaitGroup
}

// NewClient resolves configuration and collaborators, restores persisted
// cache records and builds the chain once.
func NewClient(cfg core.Config, opts ...core.Option) (*Client, error) {
	ctx := context.Background()
	deps, err := core.ResolveDependencies(ctx, cfg, opts...)
	if err != nil {
		return nil, err
	}
	config := deps.Config

	var storeOpts []cache.StoreOption
	if deps.RecordPersister != nil {
		storeOpts = append(storeOpts, cache.WithPersister(deps.RecordPersister))
	}
	store := cache.NewStore(storeOpts...)
	if restored, loadErr := store.Load(ctx); loadErr != nil {
		deps.Logger.Warn("heartbeat: persisted cache records not restored", "error", loadErr)
	} else if restored > 0 {
		deps.Logger.Debug("heartbeat: restored cache records", "count", restored)
	}

	cacheService, err := cache.NewCacheService(config.CacheTTL)
	if err != nil {
		return nil, core.NewInternalError("heartbeat: response cache unavailable", map[string]any{"error": err.Error()})
	}
	reader, err := cache.NewResponseReader(store, cacheService)
	if err != nil {
		return nil, deps.ErrorMapper(err)
	}

	endpoint := config.Endpoint()
	var status chain.StatusObserver
	pacer := deps.Pacer
	if pacer == nil {
		local := ratelimit.NewPacer(config.RateLimit)
		local.Endpoint = endpoint
		pacer, status = local, local
	} else if observer, ok := pacer.(chain.StatusObserver); ok {
		status = observer
	}

	var httpClient transport.HTTPDoer = http.DefaultClient
	if deps.HTTPClient != nil {
		httpClient = deps.HTTPClient
	}

	built, err := chain.NewDefault(chain.Stages{
		Identity:   deps.IdentityProvider,
		MaxRetries: config.MaxRetries(),
		Backoff:    deps.Backoff,
		Reader:     reader,
		Writer:     reader,
		Adapter:    transport.NewGraphQLAdapter(endpoint, httpClient),
		Pacer:      pacer,
		Status:     status,
		Timeout:    config.RequestTimeout,
	},
		chain.WithObserver(core.NewObserver(deps.Logger, deps.MetricsRecorder, "heartbeat")),
		chain.WithPersistedQueries(config.PersistedQueriesEnabled()),
	)
	if err != nil {
		return nil, err
	}

	return &Client{
		config: config,
		deps:   deps,
		logger: deps.Logger,
		chain:  built,
		store:  store,
	}, nil
}

// Fetch runs a query. The policy defaults to ReturnCacheDataElseFetch.
func (c *Client) Fetch(ctx context.Context, op core.Operation, policy ...core.CachePolicy) (*core.Response, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	if err := op.Validate(); err != nil {
		return nil, err
	}
	if op.IsMutation() {
		return nil, core.NewBadInputError("heartbeat: fetch does not accept mutations", map[string]any{
			"operation": op.Name,
		})
	}
	selected := core.DefaultCachePolicy
	if len(policy) > 0 {
		selected = policy[0].Normalize()
	}
	return c.chain.Run(ctx, op, selected)
}

// Perform runs a mutation. Mutations never read the cache; their results
// are still normalized into it.
func (c *Client) Perform(ctx context.Context, op core.Operation) (*core.Response, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	if err := op.Validate(); err != nil {
		return nil, err
	}
	if !op.IsMutation() {
		return nil, core.NewBadInputError("heartbeat: perform only accepts mutations", map[string]any{
			"operation": op.Name,
		})
	}
	return c.chain.Run(ctx, op, core.FetchIgnoringCacheData)
}

// FetchAsync runs Fetch on its own goroutine and calls callback exactly once.
func (c *Client) FetchAsync(ctx context.Context, op core.Operation, policy core.CachePolicy, callback func(core.Result)) {
	c.async(callback, func() (*core.Response, error) {
		return c.Fetch(ctx, op, policy)
	})
}

// PerformAsync runs Perform on its own goroutine and calls callback exactly
// once.
func (c *Client) PerformAsync(ctx context.Context, op core.Operation, callback func(core.Result)) {
	c.async(callback, func() (*core.Response, error) {
		return c.Perform(ctx, op)
	})
}

func (c *Client) async(callback func(core.Result), run func() (*core.Response, error)) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		go func() {
			if callback != nil {
				callback(core.Result{Err: c.ready()})
			}
		}()
		return
	}
	c.inflight.Add(1)
	c.mu.Unlock()
	go func() {
		defer c.inflight.Done()
		resp, err := run()
		if callback != nil {
			callback(core.Result{Response: resp, Err: err})
		}
	}()
}

// NewReconciler builds a reconciler that performs through this client with
// the configured delay and attempt budget.
func (c *Client) NewReconciler(opts ...reconcile.Option) (*reconcile.Reconciler, error) {
	base := []reconcile.Option{
		reconcile.WithDelay(c.config.Reconcile.Delay),
		reconcile.WithMaxAttempts(c.config.Reconcile.MaxAttempts),
		reconcile.WithLogger(c.logger),
	}
	return reconcile.New(c, append(base, opts...)...)
}

func (c *Client) Endpoint() string {
	return c.config.Endpoint()
}

func (c *Client) Config() core.Config {
	return c.config
}

// Store is the normalized cache shared by every operation of this client.
func (c *Client) Store() *cache.Store {
	return c.store
}

func (c *Client) Identity() core.IdentityProvider {
	return c.deps.IdentityProvider
}

// Close rejects new calls and waits for async calls in flight.
func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	wasOpen := !c.closed
	c.closed = true
	c.mu.Unlock()
	if wasOpen {
		c.logger.Debug("heartbeat: client closing", "endpoint", strings.TrimSpace(c.Endpoint()))
	}
	c.inflight.Wait()
	return nil
}

func (c *Client) ready() error {
	if c == nil || c.chain == nil {
		return core.NewInternalError("heartbeat: client is not configured", nil)
	}
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return core.NewBadInputError("heartbeat: client is closed", nil)
	}
	return nil
}

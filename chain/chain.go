// Package chain runs GraphQL operations through an ordered list of
// interceptors. Each interceptor may advance, short-circuit, suspend, or
// restart the remaining stages through Execution.Replay.
package chain

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/heartbeatlive/go-heartbeat/core"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	StageAuthorization  = "authorization"
	StageRetry          = "retry"
	StageCacheRead      = "cache_read"
	StageNetwork        = "network"
	StageResponseCode   = "response_code"
	StageParsing        = "parsing"
	StagePersistedQuery = "persisted_query"
	StageCacheWrite     = "cache_write"
)

const tracerName = "github.com/heartbeatlive/go-heartbeat/chain"

// maxPasses bounds replays so a misbehaving stage cannot loop forever.
const maxPasses = 32

// DeclaredOrder lists the default stage names in execution order.
var DeclaredOrder = []string{
	StageAuthorization,
	StageRetry,
	StageCacheRead,
	StageNetwork,
	StageResponseCode,
	StageParsing,
	StagePersistedQuery,
	StageCacheWrite,
}

// Proceed hands control to the next stage. It may be called at most once.
type Proceed func(ctx context.Context) (*core.Response, error)

type Interceptor interface {
	Name() string
	Intercept(ctx context.Context, exec *Execution, proceed Proceed) (*core.Response, error)
}

type InterceptorFunc func(ctx context.Context, exec *Execution, proceed Proceed) (*core.Response, error)

type namedInterceptor struct {
	name string
	fn   InterceptorFunc
}

// NewInterceptor adapts fn into an Interceptor called name.
func NewInterceptor(name string, fn InterceptorFunc) Interceptor {
	return namedInterceptor{name: name, fn: fn}
}

func (i namedInterceptor) Name() string {
	return i.name
}

func (i namedInterceptor) Intercept(ctx context.Context, exec *Execution, proceed Proceed) (*core.Response, error) {
	return i.fn(ctx, exec, proceed)
}

type Option func(*Chain)

func WithObserver(observer *core.Observer) Option {
	return func(c *Chain) {
		if observer != nil {
			c.observer = observer
		}
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(c *Chain) {
		if tracer != nil {
			c.tracer = tracer
		}
	}
}

// WithPersistedQueries makes the first request of every execution send only
// the document hash.
func WithPersistedQueries(enabled bool) Option {
	return func(c *Chain) {
		c.persistedQueries = enabled
	}
}

func WithIDGenerator(next func() string) Option {
	return func(c *Chain) {
		if next != nil {
			c.newID = next
		}
	}
}

type Chain struct {
	interceptors     []Interceptor
	index            map[string]int
	observer         *core.Observer
	tracer           trace.Tracer
	newID            func() string
	persistedQueries bool
}

// New builds a chain from interceptors in the given order. Names must be
// non-empty and unique.
func New(interceptors []Interceptor, opts ...Option) (*Chain, error) {
	if len(interceptors) == 0 {
		return nil, core.NewBadInputError("chain: at least one interceptor is required", nil)
	}
	c := &Chain{
		interceptors: make([]Interceptor, 0, len(interceptors)),
		index:        make(map[string]int, len(interceptors)),
		newID:        func() string { return uuid.NewString() },
	}
	for position, interceptor := range interceptors {
		if interceptor == nil {
			return nil, core.NewBadInputError("chain: interceptor is nil", map[string]any{"position": position})
		}
		name := strings.TrimSpace(interceptor.Name())
		if name == "" {
			return nil, core.NewBadInputError("chain: interceptor name is required", map[string]any{"position": position})
		}
		if _, exists := c.index[name]; exists {
			return nil, core.NewBadInputError("chain: duplicate interceptor", map[string]any{"stage": name})
		}
		c.index[name] = position
		c.interceptors = append(c.interceptors, interceptor)
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	if c.observer == nil {
		c.observer = core.NewObserver(nil, nil, "heartbeat")
	}
	if c.tracer == nil {
		c.tracer = otel.Tracer(tracerName)
	}
	return c, nil
}

// Names returns the stage names in execution order.
func (c *Chain) Names() []string {
	if c == nil {
		return nil
	}
	names := make([]string, len(c.interceptors))
	for i, interceptor := range c.interceptors {
		names[i] = interceptor.Name()
	}
	return names
}

// Run executes op under policy and returns the single outcome.
func (c *Chain) Run(ctx context.Context, op core.Operation, policy core.CachePolicy) (*core.Response, error) {
	resp, _, err := c.Execute(ctx, op, policy)
	return resp, err
}

// Execute is Run that also returns the finished execution for inspection.
func (c *Chain) Execute(ctx context.Context, op core.Operation, policy core.CachePolicy) (*core.Response, *Execution, error) {
	if c == nil {
		return nil, nil, core.NewInternalError("chain: chain is nil", nil)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := op.Validate(); err != nil {
		return nil, nil, err
	}
	policy = policy.Normalize()

	exec := newExecution(c, c.newID(), op, policy)
	startedAt := time.Now()

	ctx, span := c.tracer.Start(ctx, "heartbeat.chain "+op.Name, trace.WithAttributes(
		attribute.String("graphql.operation.name", op.Name),
		attribute.String("graphql.operation.type", string(op.Kind)),
		attribute.String("heartbeat.cache_policy", string(policy)),
		attribute.String("heartbeat.execution_id", exec.ID),
	))
	exec.span = span
	defer span.End()

	resp, err := exec.runPass(ctx, 0)
	if err == nil && resp == nil {
		err = core.NewInternalError("chain: execution completed without a response", map[string]any{"stage_trace": exec.Trace()})
	}

	fields := map[string]any{
		"execution_id":   exec.ID,
		"operation_name": op.Name,
		"policy":         string(policy),
		"passes":         exec.Passes(),
		"stages":         strings.Join(exec.Trace(), ","),
	}
	if resp != nil {
		fields["source"] = string(resp.Source)
		span.SetAttributes(attribute.String("heartbeat.response_source", string(resp.Source)))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.observer.Observe(ctx, startedAt, "chain", err, fields)
		return nil, exec, err
	}
	c.observer.Observe(ctx, startedAt, "chain", nil, fields)
	return resp, exec, nil
}

func (c *Chain) position(stage string) (int, bool) {
	position, ok := c.index[strings.TrimSpace(stage)]
	return position, ok
}

func panicProceedTwice(stage string) {
	panic(fmt.Sprintf("chain: stage %q called proceed more than once", stage))
}

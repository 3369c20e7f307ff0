package chain

import (
	"context"
	"maps"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/heartbeatlive/go-heartbeat/cache"
	"github.com/heartbeatlive/go-heartbeat/core"
	"github.com/heartbeatlive/go-heartbeat/transport"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Execution carries the mutable request state of one Run across stages and
// passes.
type Execution struct {
	ID        string
	Operation core.Operation
	Policy    core.CachePolicy

	chain *Chain
	span  trace.Span

	mu                sync.Mutex
	headers           map[string]string
	includeDocument   bool
	includeHash       bool
	persistedFallback bool
	attempts          int
	raw               *transport.Response
	response          *core.Response
	records           []cache.Record
	pass              int
	visited           map[string]struct{}
	trace             []string
}

func newExecution(c *Chain, id string, op core.Operation, policy core.CachePolicy) *Execution {
	return &Execution{
		ID:              id,
		Operation:       op,
		Policy:          policy,
		chain:           c,
		headers:         map[string]string{},
		includeDocument: !c.persistedQueries,
		includeHash:     c.persistedQueries,
		visited:         map[string]struct{}{},
	}
}

// Replay starts a fresh pass at fromStage. Request state (headers, payload
// mode, fallback flag) is kept; the previous pass's response is discarded.
func (e *Execution) Replay(ctx context.Context, fromStage string) (*core.Response, error) {
	position, ok := e.chain.position(fromStage)
	if !ok {
		return nil, core.NewInternalError("chain: replay target is not part of the chain", map[string]any{"stage": fromStage})
	}
	return e.runPass(ctx, position)
}

// ReplayAfter starts a fresh pass at the stage following stage.
func (e *Execution) ReplayAfter(ctx context.Context, stage string) (*core.Response, error) {
	position, ok := e.chain.position(stage)
	if !ok {
		return nil, core.NewInternalError("chain: replay target is not part of the chain", map[string]any{"stage": stage})
	}
	return e.runPass(ctx, position+1)
}

func (e *Execution) runPass(ctx context.Context, from int) (*core.Response, error) {
	e.mu.Lock()
	if e.pass >= maxPasses {
		e.mu.Unlock()
		return nil, core.NewInternalError("chain: too many passes", map[string]any{"passes": e.pass})
	}
	e.pass++
	e.visited = map[string]struct{}{}
	e.raw = nil
	e.response = nil
	e.records = nil
	e.mu.Unlock()
	return e.run(ctx, from)
}

func (e *Execution) run(ctx context.Context, position int) (*core.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if position >= len(e.chain.interceptors) {
		return e.complete()
	}
	interceptor := e.chain.interceptors[position]
	name := interceptor.Name()

	e.mu.Lock()
	if _, seen := e.visited[name]; seen {
		e.mu.Unlock()
		return nil, core.NewInternalError("chain: stage ran twice in one pass", map[string]any{"stage": name})
	}
	e.visited[name] = struct{}{}
	e.trace = append(e.trace, name)
	pass := e.pass
	e.mu.Unlock()

	if e.span != nil {
		e.span.AddEvent("stage "+name, trace.WithAttributes(attribute.Int("heartbeat.pass", pass)))
	}

	var used atomic.Bool
	proceed := func(ctx context.Context) (*core.Response, error) {
		if !used.CompareAndSwap(false, true) {
			panicProceedTwice(name)
		}
		return e.run(ctx, position+1)
	}
	return interceptor.Intercept(ctx, e, proceed)
}

func (e *Execution) complete() (*core.Response, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.response == nil {
		return nil, core.NewInternalError("chain: no stage produced a response", map[string]any{"stage_trace": append([]string(nil), e.trace...)})
	}
	return e.response, nil
}

// Trace lists visited stage names in order, across all passes.
func (e *Execution) Trace() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.trace...)
}

func (e *Execution) Passes() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pass
}

func (e *Execution) SetHeader(name string, value string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.headers[name] = value
}

func (e *Execution) Header(name string) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.headers[name]
}

func (e *Execution) Headers() map[string]string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return maps.Clone(e.headers)
}

// Payload reports whether the next request carries the document text and
// the persisted-query hash.
func (e *Execution) Payload() (includeDocument bool, includeHash bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.includeDocument, e.includeHash
}

func (e *Execution) SetPayload(includeDocument bool, includeHash bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.includeDocument = includeDocument
	e.includeHash = includeHash
}

// UsePersistedFallback marks the persisted-query fallback as taken. It
// returns false when the fallback was already used.
func (e *Execution) UsePersistedFallback() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.persistedFallback {
		return false
	}
	e.persistedFallback = true
	return true
}

func (e *Execution) PersistedFallbackUsed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.persistedFallback
}

// Attempts counts network requests issued so far.
func (e *Execution) Attempts() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.attempts
}

func (e *Execution) recordAttempt() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.attempts++
	return e.attempts
}

func (e *Execution) HTTPResponse() *transport.Response {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.raw
}

func (e *Execution) SetHTTPResponse(resp *transport.Response) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.raw = resp
}

func (e *Execution) Response() *core.Response {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.response
}

func (e *Execution) SetResponse(resp *core.Response) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.response = resp
}

func (e *Execution) Records() []cache.Record {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.records
}

func (e *Execution) SetRecords(records []cache.Record) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.records = records
}

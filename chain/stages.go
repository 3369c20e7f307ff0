package chain

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/heartbeatlive/go-heartbeat/cache"
	"github.com/heartbeatlive/go-heartbeat/core"
	"github.com/heartbeatlive/go-heartbeat/transport"
)

const (
	HeaderAuthorization = "Authorization"
	HeaderRequestID     = "X-Request-ID"
	HeaderOperationName = "X-Operation-Name"
)

const (
	persistedQueryNotFound         = "PersistedQueryNotFound"
	persistedQueryNotFoundCode     = "PERSISTED_QUERY_NOT_FOUND"
	persistedQueryNotSupported     = "PersistedQueryNotSupported"
	persistedQueryNotSupportedCode = "PERSISTED_QUERY_NOT_SUPPORTED"
)

type CacheReader interface {
	Read(ctx context.Context, op core.Operation) (*core.Response, error)
}

type CacheWriter interface {
	WriteRecords(ctx context.Context, records []cache.Record) (cache.ChangeSet, error)
}

// StatusObserver is told about every HTTP status the network returns.
type StatusObserver interface {
	ObserveStatus(status int, headers map[string]string)
}

// AuthorizationInterceptor attaches a bearer token for the signed-in
// identity. Requests go out unauthenticated when nobody is signed in or the
// token cannot be minted.
type AuthorizationInterceptor struct {
	Identity core.IdentityProvider
}

func (AuthorizationInterceptor) Name() string { return StageAuthorization }

func (i AuthorizationInterceptor) Intercept(ctx context.Context, exec *Execution, proceed Proceed) (*core.Response, error) {
	if i.Identity == nil {
		return proceed(ctx)
	}
	identity, ok := i.Identity.CurrentIdentity(ctx)
	if !ok || identity.IsZero() {
		exec.log(ctx, "debug", "no identity, sending unauthenticated request", nil)
		return proceed(ctx)
	}
	token, err := i.Identity.MintToken(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		exec.log(ctx, "warn", "token mint failed, sending unauthenticated request", map[string]any{
			"identity_id": identity.ID,
			"error":       err.Error(),
		})
		return proceed(ctx)
	}
	if token = strings.TrimSpace(token); token != "" {
		exec.SetHeader(HeaderAuthorization, "Bearer "+token)
	}
	return proceed(ctx)
}

// RetryInterceptor replays the stages after it when they fail with a
// retryable error.
type RetryInterceptor struct {
	MaxRetries int
	Backoff    core.BackoffScheduler
	Wait       func(ctx context.Context, delay time.Duration) error
}

func (RetryInterceptor) Name() string { return StageRetry }

func (i RetryInterceptor) Intercept(ctx context.Context, exec *Execution, proceed Proceed) (*core.Response, error) {
	resp, err := proceed(ctx)
	for attempt := 1; err != nil && core.IsRetryable(err) && attempt <= i.MaxRetries; attempt++ {
		delay := i.delay(attempt)
		exec.log(ctx, "warn", "retrying after transport failure", map[string]any{
			"attempt":  attempt,
			"delay_ms": delay.Milliseconds(),
			"error":    err.Error(),
		})
		if waitErr := i.wait(ctx, delay); waitErr != nil {
			return nil, waitErr
		}
		resp, err = exec.ReplayAfter(ctx, StageRetry)
	}
	return resp, err
}

func (i RetryInterceptor) delay(attempt int) time.Duration {
	if i.Backoff == nil {
		return core.ExponentialBackoffScheduler{}.NextDelay(attempt)
	}
	return i.Backoff.NextDelay(attempt)
}

func (i RetryInterceptor) wait(ctx context.Context, delay time.Duration) error {
	if i.Wait != nil {
		return i.Wait(ctx, delay)
	}
	return core.WaitWithContext(ctx, delay)
}

// CacheReadInterceptor answers from the normalized cache when the policy
// allows it.
type CacheReadInterceptor struct {
	Reader CacheReader
}

func (CacheReadInterceptor) Name() string { return StageCacheRead }

func (i CacheReadInterceptor) Intercept(ctx context.Context, exec *Execution, proceed Proceed) (*core.Response, error) {
	if !exec.Policy.ReadsCache() {
		return proceed(ctx)
	}
	if i.Reader == nil {
		if !exec.Policy.AllowsNetwork() {
			return nil, core.NewCacheMissError(exec.Operation.Name)
		}
		return proceed(ctx)
	}
	resp, err := i.Reader.Read(ctx, exec.Operation)
	if err == nil && resp != nil {
		resp.Source = core.SourceCache
		exec.SetResponse(resp)
		return resp, nil
	}
	if !exec.Policy.AllowsNetwork() {
		if err == nil {
			err = core.NewCacheMissError(exec.Operation.Name)
		}
		return nil, err
	}
	if err != nil && !core.IsCacheMiss(err) {
		exec.log(ctx, "warn", "cache read failed, falling back to network", map[string]any{"error": err.Error()})
	}
	return proceed(ctx)
}

// NetworkInterceptor sends the operation over HTTP and stores the raw
// response on the execution.
type NetworkInterceptor struct {
	Adapter transport.Adapter
	Pacer   core.Pacer
	Timeout time.Duration
}

func (NetworkInterceptor) Name() string { return StageNetwork }

func (i NetworkInterceptor) Intercept(ctx context.Context, exec *Execution, proceed Proceed) (*core.Response, error) {
	if i.Adapter == nil {
		return nil, core.NewInternalError("chain: network adapter is not configured", nil)
	}
	if i.Pacer != nil {
		if err := i.Pacer.Wait(ctx); err != nil {
			return nil, err
		}
	}

	headers := exec.Headers()
	headers[HeaderRequestID] = uuid.NewString()
	headers[HeaderOperationName] = exec.Operation.Name
	includeDocument, includeHash := exec.Payload()
	attempt := exec.recordAttempt()

	req := transport.NewOperationRequest(exec.Operation, includeDocument, includeHash, headers, i.Timeout)
	exec.log(ctx, "debug", "sending operation", map[string]any{
		"attempt":          attempt,
		"request_id":       headers[HeaderRequestID],
		"include_document": includeDocument,
		"include_hash":     includeHash,
	})
	raw, err := i.Adapter.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	exec.SetHTTPResponse(&raw)
	return proceed(ctx)
}

// ResponseCodeInterceptor fails the execution on any non-2xx status.
type ResponseCodeInterceptor struct {
	Observer StatusObserver
}

func (ResponseCodeInterceptor) Name() string { return StageResponseCode }

func (i ResponseCodeInterceptor) Intercept(ctx context.Context, exec *Execution, proceed Proceed) (*core.Response, error) {
	raw := exec.HTTPResponse()
	if raw == nil {
		return nil, core.NewInternalError("chain: no http response to inspect", map[string]any{"stage": StageResponseCode})
	}
	if i.Observer != nil {
		i.Observer.ObserveStatus(raw.StatusCode, raw.Headers)
	}
	if raw.StatusCode < 200 || raw.StatusCode > 299 {
		return nil, core.NewStatusError(raw.StatusCode, map[string]any{
			"operation_name": exec.Operation.Name,
			"body_bytes":     len(raw.Body),
		})
	}
	return proceed(ctx)
}

// ParsingInterceptor decodes the GraphQL envelope and normalizes its data.
type ParsingInterceptor struct{}

func (ParsingInterceptor) Name() string { return StageParsing }

func (ParsingInterceptor) Intercept(ctx context.Context, exec *Execution, proceed Proceed) (*core.Response, error) {
	raw := exec.HTTPResponse()
	if raw == nil {
		return nil, core.NewInternalError("chain: no http response to parse", map[string]any{"stage": StageParsing})
	}
	resp, err := core.DecodeResponse(raw.Body)
	if err != nil {
		return nil, err
	}
	resp.Source = core.SourceNetwork
	resp.StatusCode = raw.StatusCode
	resp.Headers = raw.Headers
	exec.SetResponse(resp)
	if resp.Data != nil {
		exec.SetRecords(cache.Normalize(cache.RootKey(exec.Operation), resp.Data))
	}
	return proceed(ctx)
}

// PersistedQueryInterceptor resends the full document once when the server
// does not know the persisted query hash.
type PersistedQueryInterceptor struct{}

func (PersistedQueryInterceptor) Name() string { return StagePersistedQuery }

func (PersistedQueryInterceptor) Intercept(ctx context.Context, exec *Execution, proceed Proceed) (*core.Response, error) {
	notFound, notSupported := persistedQueryFailure(exec.Response())
	if !notFound && !notSupported {
		return proceed(ctx)
	}
	if !exec.UsePersistedFallback() {
		exec.log(ctx, "warn", "persisted query rejected after fallback", nil)
		return proceed(ctx)
	}
	exec.log(ctx, "info", "persisted query unknown, resending document", map[string]any{
		"not_supported": notSupported,
	})
	exec.SetPayload(true, !notSupported)
	return exec.Replay(ctx, StageNetwork)
}

func persistedQueryFailure(resp *core.Response) (notFound bool, notSupported bool) {
	if resp == nil {
		return false, false
	}
	for _, gqlErr := range resp.Errors {
		switch {
		case gqlErr.Message == persistedQueryNotFound, gqlErr.Code() == persistedQueryNotFoundCode:
			notFound = true
		case gqlErr.Message == persistedQueryNotSupported, gqlErr.Code() == persistedQueryNotSupportedCode:
			notSupported = true
		}
	}
	return notFound, notSupported
}

// CacheWriteInterceptor merges the records produced by parsing into the
// normalized store.
type CacheWriteInterceptor struct {
	Writer CacheWriter
}

func (CacheWriteInterceptor) Name() string { return StageCacheWrite }

func (i CacheWriteInterceptor) Intercept(ctx context.Context, exec *Execution, proceed Proceed) (*core.Response, error) {
	if i.Writer == nil || !exec.Policy.WritesCache() {
		return proceed(ctx)
	}
	resp := exec.Response()
	if resp == nil || resp.Source != core.SourceNetwork {
		return proceed(ctx)
	}
	records := exec.Records()
	if len(records) == 0 {
		return proceed(ctx)
	}
	changes, err := i.Writer.WriteRecords(ctx, records)
	if err != nil {
		exec.log(ctx, "warn", "cache write failed", map[string]any{"error": err.Error()})
		return proceed(ctx)
	}
	if !changes.Empty() {
		exec.log(ctx, "debug", "cache updated", map[string]any{"records": changes.Records()})
	}
	return proceed(ctx)
}

func (e *Execution) log(ctx context.Context, level string, message string, fields map[string]any) {
	if e == nil || e.chain == nil || e.chain.observer == nil {
		return
	}
	merged := map[string]any{
		"execution_id":   e.ID,
		"operation_name": e.Operation.Name,
	}
	for key, value := range fields {
		merged[key] = value
	}
	e.chain.observer.Log(ctx, level, message, merged)
}

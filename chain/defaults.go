package chain

import (
	"context"
	"time"

	"github.com/heartbeatlive/go-heartbeat/core"
	"github.com/heartbeatlive/go-heartbeat/transport"
)

// Stages collects the collaborators of the default interceptors. Nil
// collaborators disable the behaviour they back; Adapter is required.
type Stages struct {
	Identity   core.IdentityProvider
	MaxRetries int
	Backoff    core.BackoffScheduler
	Wait       func(ctx context.Context, delay time.Duration) error
	Reader     CacheReader
	Writer     CacheWriter
	Adapter    transport.Adapter
	Pacer      core.Pacer
	Status     StatusObserver
	Timeout    time.Duration
}

// Interceptors returns the default stages in declared order.
func (s Stages) Interceptors() []Interceptor {
	return []Interceptor{
		AuthorizationInterceptor{Identity: s.Identity},
		RetryInterceptor{MaxRetries: s.MaxRetries, Backoff: s.Backoff, Wait: s.Wait},
		CacheReadInterceptor{Reader: s.Reader},
		NetworkInterceptor{Adapter: s.Adapter, Pacer: s.Pacer, Timeout: s.Timeout},
		ResponseCodeInterceptor{Observer: s.Status},
		ParsingInterceptor{},
		PersistedQueryInterceptor{},
		CacheWriteInterceptor{Writer: s.Writer},
	}
}

// NewDefault builds the standard eight-stage chain.
func NewDefault(stages Stages, opts ...Option) (*Chain, error) {
	if stages.Adapter == nil {
		return nil, core.NewBadInputError("chain: network adapter is required", nil)
	}
	return New(stages.Interceptors(), opts...)
}

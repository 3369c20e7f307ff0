package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/heartbeatlive/go-heartbeat/core"
	"golang.org/x/time/rate"
)

// State is what the pacer learned from the most recent responses.
type State struct {
	Limit          int
	Remaining      int
	ResetAt        *time.Time
	RetryAfter     *time.Duration
	ThrottledUntil *time.Time
	LastStatus     int
	Attempts       int
	UpdatedAt      time.Time
}

type ThrottledError struct {
	Endpoint   string
	RetryAfter time.Duration
}

func (e ThrottledError) Error() string {
	return fmt.Sprintf("ratelimit: endpoint %q throttled for %s", strings.TrimSpace(e.Endpoint), e.RetryAfter)
}

func (e ThrottledError) ToServiceError() *goerrors.Error {
	metadata := map[string]any{"endpoint": strings.TrimSpace(e.Endpoint)}
	if e.RetryAfter > 0 {
		metadata["retry_after_ms"] = e.RetryAfter.Milliseconds()
	}
	return goerrors.New(e.Error(), goerrors.CategoryRateLimit).
		WithCode(http.StatusTooManyRequests).
		WithTextCode(core.ErrorRateLimited).
		WithMetadata(metadata)
}

// Pacer spaces outgoing requests with a token bucket and holds them back
// while the server has asked the client to slow down.
type Pacer struct {
	Endpoint       string
	Now            func() time.Time
	Sleep          func(ctx context.Context, delay time.Duration) error
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// MaxWait bounds how long Wait blocks on a server throttle window.
	// Longer windows fail with ThrottledError. Zero waits for any window.
	MaxWait time.Duration

	limiter *rate.Limiter

	mu    sync.Mutex
	state State
}

// NewPacer builds a pacer from cfg. A zero rate leaves local pacing off and
// only server throttling applies.
func NewPacer(cfg core.RateLimitConfig) *Pacer {
	p := &Pacer{
		Now:            func() time.Time { return time.Now().UTC() },
		Sleep:          core.WaitWithContext,
		InitialBackoff: time.Second,
		MaxBackoff:     time.Minute,
	}
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		p.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return p
}

func (p *Pacer) Wait(ctx context.Context) error {
	if p == nil {
		return nil
	}
	if delay := p.throttleDelay(); delay > 0 {
		if p.MaxWait > 0 && delay > p.MaxWait {
			return ThrottledError{Endpoint: p.Endpoint, RetryAfter: delay}
		}
		if err := p.sleep(ctx, delay); err != nil {
			return err
		}
	}
	if p.limiter != nil {
		return p.limiter.Wait(ctx)
	}
	return ctx.Err()
}

// ObserveStatus records the rate limit headers and throttle signals of one
// response.
func (p *Pacer) ObserveStatus(status int, headers map[string]string) {
	if p == nil {
		return
	}
	now := p.now()
	p.mu.Lock()
	defer p.mu.Unlock()

	state := p.state
	state.LastStatus = status
	state.UpdatedAt = now

	limit, hasLimit := parseHeaderInt(headers, "x-ratelimit-limit")
	if hasLimit {
		state.Limit = limit
	}
	remaining, hasRemaining := parseHeaderInt(headers, "x-ratelimit-remaining")
	if hasRemaining {
		state.Remaining = remaining
	}
	resetAt, hasResetAt := parseHeaderResetAt(headers)
	if hasResetAt {
		state.ResetAt = &resetAt
	}
	retryAfter, hasRetryAfter := parseRetryAfter(headers, now)
	if hasRetryAfter {
		state.RetryAfter = &retryAfter
	} else {
		state.RetryAfter = nil
	}

	if isThrottledResponse(status, state.Remaining, hasRemaining, hasResetAt, hasLimit, hasRetryAfter) {
		state.Attempts++
		delay := retryAfter
		if !hasRetryAfter {
			delay = p.nextBackoff(state.Attempts)
		}
		until := now.Add(delay)
		state.ThrottledUntil = &until
	} else {
		state.Attempts = 0
		state.ThrottledUntil = nil
	}
	p.state = state
}

func (p *Pacer) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Pacer) throttleDelay() time.Duration {
	now := p.now()
	p.mu.Lock()
	defer p.mu.Unlock()
	if until := p.state.ThrottledUntil; until != nil && now.Before(*until) {
		return until.Sub(now)
	}
	if p.state.Remaining == 0 && p.state.ResetAt != nil && now.Before(*p.state.ResetAt) {
		return p.state.ResetAt.Sub(now)
	}
	return 0
}

func (p *Pacer) now() time.Time {
	if p.Now != nil {
		return p.Now().UTC()
	}
	return time.Now().UTC()
}

func (p *Pacer) sleep(ctx context.Context, delay time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, delay)
	}
	return core.WaitWithContext(ctx, delay)
}

func (p *Pacer) nextBackoff(attempt int) time.Duration {
	return core.ExponentialBackoffScheduler{Initial: p.InitialBackoff, Max: p.MaxBackoff}.NextDelay(attempt)
}

func isThrottledResponse(
	statusCode int,
	remaining int,
	hasRemaining bool,
	hasResetAt bool,
	hasLimit bool,
	hasRetryAfter bool,
) bool {
	if statusCode == http.StatusTooManyRequests {
		return true
	}
	if statusCode >= 500 {
		return false
	}
	return remaining == 0 && hasRemaining && (hasResetAt || hasLimit || hasRetryAfter)
}

func parseRetryAfter(headers map[string]string, now time.Time) (time.Duration, bool) {
	raw := headerValue(headers, "retry-after")
	if raw == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(raw); err == nil {
		if seconds <= 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	if retryAt, err := httpDate(raw); err == nil && retryAt.After(now) {
		return retryAt.Sub(now), true
	}
	return 0, false
}

func parseHeaderInt(headers map[string]string, key string) (int, bool) {
	value := headerValue(headers, key)
	if value == "" {
		return 0, false
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, false
	}
	return parsed, true
}

func parseHeaderResetAt(headers map[string]string) (time.Time, bool) {
	value := headerValue(headers, "x-ratelimit-reset")
	if value == "" {
		return time.Time{}, false
	}
	unix, err := strconv.ParseInt(value, 10, 64)
	if err != nil || unix <= 0 {
		return time.Time{}, false
	}
	return time.Unix(unix, 0).UTC(), true
}

// httpDate accepts the HTTP date formats plus RFC1123 with a named or
// numeric zone other than GMT.
func httpDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("ratelimit: empty http date")
	}
	if parsed, err := http.ParseTime(value); err == nil {
		return parsed.UTC(), nil
	}
	if parsed, err := time.Parse(time.RFC1123, value); err == nil {
		return parsed.UTC(), nil
	}
	if parsed, err := time.Parse(time.RFC1123Z, value); err == nil {
		return parsed.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("ratelimit: invalid http date %q", value)
}

func headerValue(headers map[string]string, key string) string {
	for existing, value := range headers {
		if strings.EqualFold(strings.TrimSpace(existing), key) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

var _ core.Pacer = (*Pacer)(nil)

package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/heartbeatlive/go-heartbeat/core"
)

func newTestPacer(now *time.Time) (*Pacer, *[]time.Duration) {
	pacer := NewPacer(core.RateLimitConfig{})
	pacer.Endpoint = "http://localhost:8080/graphql"
	pacer.Now = func() time.Time { return *now }
	slept := []time.Duration{}
	pacer.Sleep = func(_ context.Context, delay time.Duration) error {
		slept = append(slept, delay)
		return nil
	}
	return pacer, &slept
}

func TestPacer_WaitPassesWithoutState(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	pacer, slept := newTestPacer(&now)

	if err := pacer.Wait(context.Background()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(*slept) != 0 {
		t.Fatalf("expected no sleep, got %v", *slept)
	}
}

func TestPacer_ObserveStatusParsesHeaders(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	pacer, _ := newTestPacer(&now)

	pacer.ObserveStatus(200, map[string]string{
		"X-RateLimit-Limit":     "5000",
		"X-RateLimit-Remaining": "4999",
		"X-RateLimit-Reset":     "1700000045",
	})

	state := pacer.State()
	if state.Limit != 5000 || state.Remaining != 4999 {
		t.Fatalf("unexpected limits %+v", state)
	}
	if state.ResetAt == nil || !state.ResetAt.Equal(now.Add(45*time.Second)) {
		t.Fatalf("expected reset at +45s, got %+v", state.ResetAt)
	}
	if state.ThrottledUntil != nil {
		t.Fatalf("expected no throttle window")
	}
}

func TestPacer_429UsesRetryAfter(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	pacer, slept := newTestPacer(&now)

	pacer.ObserveStatus(429, map[string]string{"Retry-After": "10"})

	state := pacer.State()
	if state.Attempts != 1 {
		t.Fatalf("expected attempts 1, got %d", state.Attempts)
	}
	if state.ThrottledUntil == nil || state.ThrottledUntil.Sub(now) != 10*time.Second {
		t.Fatalf("expected 10s throttle window, got %+v", state.ThrottledUntil)
	}
	if err := pacer.Wait(context.Background()); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if len(*slept) != 1 || (*slept)[0] != 10*time.Second {
		t.Fatalf("expected a 10s wait, got %v", *slept)
	}
}

func TestPacer_RetryAfterHTTPDate(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	pacer, _ := newTestPacer(&now)

	pacer.ObserveStatus(503, map[string]string{"Retry-After": now.Add(30 * time.Second).Format(time.RFC1123)})

	state := pacer.State()
	if state.RetryAfter == nil || *state.RetryAfter != 30*time.Second {
		t.Fatalf("expected retry after 30s, got %+v", state.RetryAfter)
	}
	if state.ThrottledUntil != nil {
		t.Fatalf("server errors do not open a throttle window")
	}
}

func TestHTTPDate_Formats(t *testing.T) {
	want := time.Unix(1_700_000_030, 0).UTC()
	cases := map[string]string{
		"gmt":      want.Format(http.TimeFormat),
		"utc zone": want.Format(time.RFC1123),
		"offset":   want.In(time.FixedZone("", 2*60*60)).Format(time.RFC1123Z),
	}
	for name, value := range cases {
		t.Run(name, func(t *testing.T) {
			got, err := httpDate(value)
			if err != nil {
				t.Fatalf("parse %q: %v", value, err)
			}
			if !got.Equal(want) {
				t.Fatalf("expected %v, got %v", want, got)
			}
		})
	}
	if _, err := httpDate("tomorrow"); err == nil {
		t.Fatalf("expected invalid date error")
	}
}

func TestPacer_AdaptiveBackoffWithoutRetryAfter(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	pacer, _ := newTestPacer(&now)
	pacer.InitialBackoff = 2 * time.Second
	pacer.MaxBackoff = 30 * time.Second

	pacer.ObserveStatus(429, nil)
	now = now.Add(3 * time.Second)
	pacer.ObserveStatus(429, nil)

	state := pacer.State()
	if state.Attempts != 2 {
		t.Fatalf("expected attempts 2, got %d", state.Attempts)
	}
	if got := state.ThrottledUntil.Sub(now); got != 4*time.Second {
		t.Fatalf("expected adaptive delay of 4s, got %s", got)
	}
}

func TestPacer_SuccessClearsThrottle(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	pacer, _ := newTestPacer(&now)
	pacer.ObserveStatus(429, nil)

	now = now.Add(12 * time.Second)
	pacer.ObserveStatus(200, nil)

	state := pacer.State()
	if state.Attempts != 0 || state.ThrottledUntil != nil {
		t.Fatalf("expected throttle cleared, got %+v", state)
	}
}

func TestPacer_MaxWaitFailsFast(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	pacer, slept := newTestPacer(&now)
	pacer.MaxWait = time.Second
	pacer.ObserveStatus(429, map[string]string{"Retry-After": "20"})

	err := pacer.Wait(context.Background())
	var throttled ThrottledError
	if !errors.As(err, &throttled) {
		t.Fatalf("expected ThrottledError, got %T %v", err, err)
	}
	if throttled.RetryAfter != 20*time.Second {
		t.Fatalf("expected 20s retry after, got %s", throttled.RetryAfter)
	}
	if len(*slept) != 0 {
		t.Fatalf("expected no sleep, got %v", *slept)
	}
	mapped := throttled.ToServiceError()
	if mapped.TextCode != core.ErrorRateLimited || mapped.Code != 429 {
		t.Fatalf("unexpected service error %+v", mapped)
	}
	if !core.HasTextCode(err, core.ErrorRateLimited) {
		t.Fatalf("expected core.HasTextCode to see the rate limit code")
	}
}

func TestPacer_TokenBucketHonoursContext(t *testing.T) {
	pacer := NewPacer(core.RateLimitConfig{RequestsPerSecond: 0.001, Burst: 1})
	if err := pacer.Wait(context.Background()); err != nil {
		t.Fatalf("first request should use the burst: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := pacer.Wait(ctx); err == nil {
		t.Fatalf("expected second request to be held back")
	}
}

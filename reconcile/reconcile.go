// Package reconcile pushes a locally chosen value to the backend until the
// backend acknowledges it or the attempt budget runs out.
//
// Each attempt performs one mutation. A failed call, or a response that is
// not acknowledged, schedules the next attempt after a fixed delay. Giving up
// is logged and never reported to the caller.
package reconcile

import (
	"context"
	"sync"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/heartbeatlive/go-heartbeat/core"
	"github.com/heartbeatlive/go-heartbeat/operations"
)

const (
	DefaultDelay       = 3 * time.Second
	DefaultMaxAttempts = 10
)

// Performer sends a mutation. heartbeat.Client satisfies it.
type Performer interface {
	Perform(ctx context.Context, op core.Operation) (*core.Response, error)
}

// Scheduler runs fn once after delay. The returned function stops a pending
// run and reports whether it did.
type Scheduler interface {
	Schedule(delay time.Duration, fn func()) (stop func() bool)
}

type SchedulerFunc func(delay time.Duration, fn func()) func() bool

func (f SchedulerFunc) Schedule(delay time.Duration, fn func()) func() bool {
	return f(delay, fn)
}

// TimerScheduler schedules with time.AfterFunc.
type TimerScheduler struct{}

func (TimerScheduler) Schedule(delay time.Duration, fn func()) func() bool {
	return time.AfterFunc(delay, fn).Stop
}

// RetryState is the observable progress of one reconciliation.
type RetryState struct {
	Attempt      int
	Value        string
	Done         bool
	Acknowledged bool
}

type Option func(*Reconciler)

func WithDelay(delay time.Duration) Option {
	return func(r *Reconciler) {
		if delay >= 0 {
			r.delay = delay
		}
	}
}

func WithMaxAttempts(attempts int) Option {
	return func(r *Reconciler) {
		if attempts > 0 {
			r.maxAttempts = attempts
		}
	}
}

func WithScheduler(scheduler Scheduler) Option {
	return func(r *Reconciler) {
		if scheduler != nil {
			r.scheduler = scheduler
		}
	}
}

func WithLogger(logger glog.Logger) Option {
	return func(r *Reconciler) {
		r.logger = glog.Ensure(logger)
	}
}

// WithOperation replaces the mutation builder and the acknowledgement check.
func WithOperation(build func(value string) core.Operation, acknowledged func(*core.Response) bool) Option {
	return func(r *Reconciler) {
		if build != nil {
			r.build = build
		}
		if acknowledged != nil {
			r.acknowledged = acknowledged
		}
	}
}

// Reconciler defaults to the profile display name mutation.
type Reconciler struct {
	performer    Performer
	scheduler    Scheduler
	delay        time.Duration
	maxAttempts  int
	logger       glog.Logger
	build        func(string) core.Operation
	acknowledged func(*core.Response) bool
}

func New(performer Performer, opts ...Option) (*Reconciler, error) {
	if performer == nil {
		return nil, core.NewBadInputError("reconcile: performer is required", nil)
	}
	r := &Reconciler{
		performer:    performer,
		scheduler:    TimerScheduler{},
		delay:        DefaultDelay,
		maxAttempts:  DefaultMaxAttempts,
		logger:       glog.Nop(),
		build:        operations.UpdateProfileDisplayName,
		acknowledged: operations.DisplayNameUpdated,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r, nil
}

// Reconcile starts attempt 0 in the background and returns immediately.
// Cancelling ctx stops any further attempts.
func (r *Reconciler) Reconcile(ctx context.Context, value string) *Task {
	task := &Task{
		reconciler: r,
		done:       make(chan struct{}),
		state:      RetryState{Value: value},
	}
	go task.attempt(ctx, 0)
	return task
}

// Task tracks one reconciliation.
type Task struct {
	reconciler *Reconciler
	done       chan struct{}
	finish     sync.Once

	mu      sync.Mutex
	state   RetryState
	stop    func() bool
	stopped bool
}

// Done is closed once the value is acknowledged or abandoned.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

func (t *Task) State() RetryState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Stop cancels a scheduled retry. An attempt already in flight completes
// but schedules nothing further.
func (t *Task) Stop() {
	t.mu.Lock()
	t.stopped = true
	stop := t.stop
	t.stop = nil
	t.mu.Unlock()
	if stop != nil {
		stop()
	}
	t.complete(false)
}

func (t *Task) attempt(ctx context.Context, attempt int) {
	r := t.reconciler
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.state.Attempt = attempt
	value := t.state.Value
	t.stop = nil
	t.mu.Unlock()

	resp, err := r.performer.Perform(ctx, r.build(value))
	if err == nil && r.acknowledged(resp) {
		r.logger.Debug("reconcile acknowledged", "attempt", attempt)
		t.complete(true)
		return
	}

	next := attempt + 1
	if next >= r.maxAttempts {
		r.logger.Warn("reconcile abandoned", "attempts", next, "error", err)
		t.complete(false)
		return
	}
	if ctx.Err() != nil {
		r.logger.Debug("reconcile cancelled", "attempt", attempt, "error", ctx.Err())
		t.complete(false)
		return
	}
	r.logger.Debug("reconcile retry scheduled", "attempt", next, "delay", r.delay, "error", err)

	t.mu.Lock()
	stopped := t.stopped
	t.mu.Unlock()
	if stopped {
		return
	}
	stop := r.scheduler.Schedule(r.delay, func() { t.attempt(ctx, next) })

	t.mu.Lock()
	if !t.state.Done && t.state.Attempt == attempt {
		t.stop = stop
	}
	t.mu.Unlock()
}

func (t *Task) complete(acknowledged bool) {
	t.finish.Do(func() {
		t.mu.Lock()
		t.state.Done = true
		t.state.Acknowledged = acknowledged
		t.mu.Unlock()
		close(t.done)
	})
}

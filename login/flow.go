// Package login sequences sign-in, sign-up and password recovery against the
// identity provider and the GraphQL backend.
//
// A Flow owns a Snapshot. Actions mutate it only through Flow.transition and
// every change is pushed to subscribers. Reaching an authenticated session
// ends the flow; that is observed through the identity provider, never set
// by an action directly.
package login

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/heartbeatlive/go-heartbeat/auth"
	"github.com/heartbeatlive/go-heartbeat/core"
	"github.com/heartbeatlive/go-heartbeat/identity"
	"github.com/heartbeatlive/go-heartbeat/operations"
	"github.com/heartbeatlive/go-heartbeat/reconcile"
)

var (
	ErrInvalidState = errors.New("login: action not available in current state")
	ErrBusy         = errors.New("login: another action is in progress")
	ErrClosed       = errors.New("login: flow closed")
)

// Executor runs GraphQL operations. heartbeat.Client satisfies it.
type Executor interface {
	Fetch(ctx context.Context, op core.Operation, policy ...core.CachePolicy) (*core.Response, error)
	Perform(ctx context.Context, op core.Operation) (*core.Response, error)
}

type Reconciler interface {
	Reconcile(ctx context.Context, value string) *reconcile.Task
}

type Dependencies struct {
	Client     Executor
	Identity   identity.Provider
	Reconciler Reconciler
	Logger     glog.Logger
}

type Option func(*Flow)

// WithNonceGenerator replaces the random source used for Apple sign-in
// nonces.
func WithNonceGenerator(generator auth.NonceGenerator) Option {
	return func(f *Flow) {
		f.nonces = generator
	}
}

type Flow struct {
	client     Executor
	identity   identity.Provider
	reconciler Reconciler
	logger     glog.Logger
	nonces     auth.NonceGenerator

	mu           sync.Mutex
	snapshot     Snapshot
	listeners    map[int]func(Snapshot)
	nextListener int
	apple        *auth.AppleRequest
	tasks        []*reconcile.Task
	unsubscribe  func()
	closed       bool
}

func NewFlow(deps Dependencies, opts ...Option) (*Flow, error) {
	if deps.Client == nil {
		return nil, core.NewBadInputError("login: graphql client is required", nil)
	}
	if deps.Identity == nil {
		return nil, core.NewBadInputError("login: identity provider is required", nil)
	}
	if deps.Reconciler == nil {
		return nil, core.NewBadInputError("login: reconciler is required", nil)
	}
	f := &Flow{
		client:     deps.Client,
		identity:   deps.Identity,
		reconciler: deps.Reconciler,
		logger:     glog.Ensure(deps.Logger),
		snapshot:   Snapshot{State: EmailPrompt{}},
		listeners:  map[int]func(Snapshot){},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	if current, ok := deps.Identity.CurrentIdentity(context.Background()); ok && !current.IsZero() {
		f.snapshot.Authenticated = true
	}
	f.unsubscribe = deps.Identity.OnIdentityChanged(f.identityChanged)
	return f, nil
}

func (f *Flow) Snapshot() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshot.clone()
}

func (f *Flow) State() State {
	return f.Snapshot().State
}

// Subscribe registers listener for every future snapshot.
func (f *Flow) Subscribe(listener func(Snapshot)) (cancel func()) {
	if listener == nil {
		return func() {}
	}
	f.mu.Lock()
	id := f.nextListener
	f.nextListener++
	f.listeners[id] = listener
	f.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.listeners, id)
			f.mu.Unlock()
		})
	}
}

// Close detaches the flow from the identity provider and stops pending
// display name retries.
func (f *Flow) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	unsubscribe := f.unsubscribe
	tasks := f.tasks
	f.tasks = nil
	f.listeners = map[int]func(Snapshot){}
	f.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	for _, task := range tasks {
		task.Stop()
	}
}

// GoBack returns to EmailPrompt from any other prompt.
func (f *Flow) GoBack() {
	f.transition(func(s *Snapshot) {
		if s.State.Kind() == KindEmailPrompt {
			return
		}
		s.State = EmailPrompt{}
		s.Form = Form{}
		s.Recovery = Recovery{}
	})
}

func (f *Flow) SubmitEmail(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if _, err := f.begin(KindEmailPrompt); err != nil {
		return err
	}
	if err := validateEmail(email); err != nil {
		f.invalid(err)
		return nil
	}

	resp, err := f.client.Fetch(ctx, operations.CheckEmailReserved(email), core.FetchIgnoringCacheCompletely)
	if err != nil {
		f.logger.Warn("email reservation check failed", "error", err)
		f.fail(MessageConnectivity)
		return nil
	}
	reserved, ok := operations.EmailReserved(resp)
	if !ok {
		f.logger.Warn("email reservation check returned no result", "errors", len(resp.Errors))
		f.fail(MessageEmailCheckFailed)
		return nil
	}

	f.transition(func(s *Snapshot) {
		if reserved {
			s.State = PasswordPrompt{Email: email}
		} else {
			s.State = RegistrationPrompt{Email: email}
		}
		s.Form = Form{}
	})
	return nil
}

func (f *Flow) SubmitPassword(ctx context.Context, password string) error {
	state, err := f.begin(KindPasswordPrompt)
	if err != nil {
		return err
	}
	if err := validatePassword(password); err != nil {
		f.invalid(err)
		return nil
	}

	if _, err := f.identity.SignIn(ctx, EmailOf(state), password); err != nil {
		if identity.IsWrongPassword(err) {
			f.transition(func(s *Snapshot) {
				s.Form = Form{Invalid: map[Field]bool{FieldPassword: true}, Message: MessageWrongPassword}
			})
			return nil
		}
		f.logger.Warn("sign in failed", "error", err)
		f.fail(MessageAuthFailed)
		return nil
	}
	f.transition(func(s *Snapshot) { s.Form = Form{} })
	return nil
}

type RegistrationInput struct {
	DisplayName  string
	Password     string
	Confirmation string
}

// SubmitRegistration creates the account and hands the display name to the
// reconciler without waiting for it.
func (f *Flow) SubmitRegistration(ctx context.Context, input RegistrationInput) error {
	state, err := f.begin(KindRegistrationPrompt)
	if err != nil {
		return err
	}
	if err := validateRegistration(input); err != nil {
		f.invalid(err)
		return nil
	}

	if _, err := f.identity.CreateAccount(ctx, EmailOf(state), input.Password); err != nil {
		f.logger.Warn("create account failed", "error", err)
		f.fail(MessageAuthFailed)
		return nil
	}

	task := f.reconciler.Reconcile(context.WithoutCancel(ctx), input.DisplayName)
	f.mu.Lock()
	closed := f.closed
	if !closed {
		f.tasks = append(f.tasks, task)
	}
	f.mu.Unlock()
	if closed && task != nil {
		task.Stop()
	}

	f.transition(func(s *Snapshot) { s.Form = Form{} })
	return nil
}

// begin checks the current state and marks the form as loading.
func (f *Flow) begin(kind Kind) (State, error) {
	var state State
	err := f.transitionIf(func(s *Snapshot) error {
		if err := f.available(s, kind); err != nil {
			return err
		}
		state = s.State
		s.Form = Form{Loading: true}
		return nil
	})
	return state, err
}

func (f *Flow) invalid(err error) {
	fields, message := invalidFields(err)
	f.transition(func(s *Snapshot) {
		s.Form = Form{Invalid: fields, Message: message}
	})
}

func (f *Flow) fail(message string) {
	f.transition(func(s *Snapshot) {
		s.Form = Form{Message: message}
	})
}

func (f *Flow) identityChanged(current core.Identity) {
	authenticated := !current.IsZero()
	f.transition(func(s *Snapshot) {
		s.Authenticated = authenticated
	})
	if authenticated {
		f.logger.Info("identity established", "identity_id", current.ID)
	}
}

func (f *Flow) transition(mutate func(*Snapshot)) {
	_ = f.transitionIf(func(s *Snapshot) error {
		mutate(s)
		return nil
	})
}

// transitionIf is the only writer of the flow snapshot. When mutate returns
// an error the snapshot must be left untouched and nothing is published.
// Listeners run after the lock is released, in subscription order.
func (f *Flow) transitionIf(mutate func(*Snapshot) error) error {
	f.mu.Lock()
	before := f.snapshot.State.Kind()
	if err := mutate(&f.snapshot); err != nil {
		f.mu.Unlock()
		return err
	}
	after := f.snapshot.State.Kind()
	published := f.snapshot.clone()
	ids := make([]int, 0, len(f.listeners))
	for id := range f.listeners {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	listeners := make([]func(Snapshot), 0, len(ids))
	for _, id := range ids {
		listeners = append(listeners, f.listeners[id])
	}
	f.mu.Unlock()

	if before != after {
		f.logger.Debug("login state changed", "from", string(before), "to", string(after))
	}
	for _, listener := range listeners {
		listener(published)
	}
	return nil
}

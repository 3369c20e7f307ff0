package login

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/heartbeatlive/go-heartbeat/auth"
	"github.com/heartbeatlive/go-heartbeat/core"
	"github.com/heartbeatlive/go-heartbeat/identity"
	"github.com/heartbeatlive/go-heartbeat/reconcile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type reply struct {
	body string
	err  error
}

// fakeClient answers operations by name from scripted replies. The last
// reply for a name repeats.
type fakeClient struct {
	mu       sync.Mutex
	replies  map[string][]reply
	calls    []core.Operation
	policies []core.CachePolicy
}

func newFakeClient() *fakeClient {
	return &fakeClient{replies: map[string][]reply{}}
}

func (c *fakeClient) script(name string, replies ...reply) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.replies[name] = append(c.replies[name], replies...)
}

func (c *fakeClient) Fetch(ctx context.Context, op core.Operation, policy ...core.CachePolicy) (*core.Response, error) {
	c.mu.Lock()
	if len(policy) > 0 {
		c.policies = append(c.policies, policy[0])
	}
	c.mu.Unlock()
	return c.answer(op)
}

func (c *fakeClient) Perform(_ context.Context, op core.Operation) (*core.Response, error) {
	return c.answer(op)
}

func (c *fakeClient) answer(op core.Operation) (*core.Response, error) {
	c.mu.Lock()
	c.calls = append(c.calls, op)
	queue := c.replies[op.Name]
	var next reply
	switch len(queue) {
	case 0:
		c.mu.Unlock()
		return nil, errors.New("no scripted reply for " + op.Name)
	case 1:
		next = queue[0]
	default:
		next = queue[0]
		c.replies[op.Name] = queue[1:]
	}
	c.mu.Unlock()
	if next.err != nil {
		return nil, next.err
	}
	return core.DecodeResponse([]byte(next.body))
}

func (c *fakeClient) count(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := 0
	for _, op := range c.calls {
		if op.Name == name {
			total++
		}
	}
	return total
}

type recordingScheduler struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *recordingScheduler) Schedule(delay time.Duration, fn func()) func() bool {
	s.mu.Lock()
	s.delays = append(s.delays, delay)
	s.mu.Unlock()
	fn()
	return func() bool { return false }
}

type fixture struct {
	flow      *Flow
	client    *fakeClient
	provider  *identity.StaticProvider
	scheduler *recordingScheduler
}

func newFixture(t *testing.T, opts ...Option) fixture {
	t.Helper()
	client := newFakeClient()
	provider := identity.NewStaticProvider()
	scheduler := &recordingScheduler{}
	reconciler, err := reconcile.New(client, reconcile.WithScheduler(scheduler))
	require.NoError(t, err)
	flow, err := NewFlow(Dependencies{Client: client, Identity: provider, Reconciler: reconciler}, opts...)
	require.NoError(t, err)
	t.Cleanup(flow.Close)
	return fixture{flow: flow, client: client, provider: provider, scheduler: scheduler}
}

func (f fixture) enterPasswordPrompt(t *testing.T, email string) {
	t.Helper()
	f.client.script("CheckEmailReserved", reply{body: `{"data":{"checkEmailReserved":true}}`})
	require.NoError(t, f.flow.SubmitEmail(context.Background(), email))
	require.Equal(t, PasswordPrompt{Email: email}, f.flow.State())
}

func TestFlow_ReservedEmailGoesToPasswordPrompt(t *testing.T) {
	fx := newFixture(t)
	fx.client.script("CheckEmailReserved", reply{body: `{"data":{"checkEmailReserved":true}}`})

	require.NoError(t, fx.flow.SubmitEmail(context.Background(), "a@b.com"))

	snapshot := fx.flow.Snapshot()
	assert.Equal(t, PasswordPrompt{Email: "a@b.com"}, snapshot.State)
	assert.False(t, snapshot.Form.Loading)
	assert.Empty(t, snapshot.Form.Message)
	assert.Equal(t, []core.CachePolicy{core.FetchIgnoringCacheCompletely}, fx.client.policies)
}

func TestFlow_FreeEmailGoesToRegistrationPrompt(t *testing.T) {
	fx := newFixture(t)
	fx.client.script("CheckEmailReserved", reply{body: `{"data":{"checkEmailReserved":false}}`})

	require.NoError(t, fx.flow.SubmitEmail(context.Background(), "a@b.com"))

	assert.Equal(t, RegistrationPrompt{Email: "a@b.com"}, fx.flow.State())
}

func TestFlow_EmailValidation(t *testing.T) {
	cases := []struct {
		name    string
		email   string
		message string
	}{
		{name: "empty", email: "", message: MessageEmailInvalid},
		{name: "malformed", email: "not-an-email", message: MessageEmailInvalid},
		{name: "too long", email: strings.Repeat("a", 195) + "@b.com", message: MessageEmailTooLong},
		{name: "too long and malformed", email: strings.Repeat("a", 201), message: MessageEmailTooLong},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fx := newFixture(t)

			require.NoError(t, fx.flow.SubmitEmail(context.Background(), tc.email))

			snapshot := fx.flow.Snapshot()
			assert.Equal(t, EmailPrompt{}, snapshot.State)
			assert.True(t, snapshot.Form.IsInvalid(FieldEmail))
			assert.Equal(t, tc.message, snapshot.Form.Message)
			assert.False(t, snapshot.Form.Loading)
			assert.Zero(t, fx.client.count("CheckEmailReserved"))
		})
	}
}

func TestFlow_EmailCheckFailures(t *testing.T) {
	t.Run("transport failure", func(t *testing.T) {
		fx := newFixture(t)
		fx.client.script("CheckEmailReserved", reply{err: core.NewStatusError(502, nil)})

		require.NoError(t, fx.flow.SubmitEmail(context.Background(), "a@b.com"))

		snapshot := fx.flow.Snapshot()
		assert.Equal(t, EmailPrompt{}, snapshot.State)
		assert.Equal(t, MessageConnectivity, snapshot.Form.Message)
		assert.False(t, snapshot.Form.Loading)
	})
	t.Run("missing field", func(t *testing.T) {
		fx := newFixture(t)
		fx.client.script("CheckEmailReserved", reply{body: `{"data":{}}`})

		require.NoError(t, fx.flow.SubmitEmail(context.Background(), "a@b.com"))

		snapshot := fx.flow.Snapshot()
		assert.Equal(t, EmailPrompt{}, snapshot.State)
		assert.Equal(t, MessageEmailCheckFailed, snapshot.Form.Message)
	})
}

func TestFlow_WrongPasswordKeepsPasswordPrompt(t *testing.T) {
	fx := newFixture(t)
	fx.provider.AddAccount("a@b.com", "correct-password")
	fx.enterPasswordPrompt(t, "a@b.com")

	require.NoError(t, fx.flow.SubmitPassword(context.Background(), "wrong-password"))

	snapshot := fx.flow.Snapshot()
	assert.Equal(t, PasswordPrompt{Email: "a@b.com"}, snapshot.State)
	assert.True(t, snapshot.Form.IsInvalid(FieldPassword))
	assert.Equal(t, MessageWrongPassword, snapshot.Form.Message)
	assert.False(t, snapshot.Form.Loading)
	assert.False(t, snapshot.Authenticated)
}

func TestFlow_SignInIsObservedThroughIdentity(t *testing.T) {
	fx := newFixture(t)
	fx.provider.AddAccount("a@b.com", "correct-password")
	fx.enterPasswordPrompt(t, "a@b.com")

	require.NoError(t, fx.flow.SubmitPassword(context.Background(), "correct-password"))

	snapshot := fx.flow.Snapshot()
	assert.True(t, snapshot.Authenticated)
	assert.Equal(t, PasswordPrompt{Email: "a@b.com"}, snapshot.State)
	assert.Empty(t, snapshot.Form.Message)
}

func TestFlow_UnknownAccountShowsGenericFailure(t *testing.T) {
	fx := newFixture(t)
	fx.enterPasswordPrompt(t, "a@b.com")

	require.NoError(t, fx.flow.SubmitPassword(context.Background(), "some-password"))

	snapshot := fx.flow.Snapshot()
	assert.Equal(t, MessageAuthFailed, snapshot.Form.Message)
	assert.False(t, snapshot.Form.IsInvalid(FieldPassword))
}

func TestFlow_ShortPasswordNeverSignsIn(t *testing.T) {
	fx := newFixture(t)
	fx.enterPasswordPrompt(t, "a@b.com")

	require.NoError(t, fx.flow.SubmitPassword(context.Background(), "short"))

	snapshot := fx.flow.Snapshot()
	assert.True(t, snapshot.Form.IsInvalid(FieldPassword))
	assert.Equal(t, MessagePasswordTooShort, snapshot.Form.Message)
}

func TestFlow_RegistrationHandsOffDisplayName(t *testing.T) {
	fx := newFixture(t)
	fx.client.script("CheckEmailReserved", reply{body: `{"data":{"checkEmailReserved":false}}`})
	fx.client.script("UpdateProfileDisplayName",
		reply{body: `{"data":null,"errors":[{"message":"profile not ready","path":["updateProfileDisplayName"]}]}`},
		reply{body: `{"data":{"updateProfileDisplayName":{"__typename":"Profile","id":"p1","displayName":"Ada"}}}`},
	)
	require.NoError(t, fx.flow.SubmitEmail(context.Background(), "new@b.com"))

	require.NoError(t, fx.flow.SubmitRegistration(context.Background(), RegistrationInput{
		DisplayName:  "Ada",
		Password:     "password1",
		Confirmation: "password1",
	}))
	assert.False(t, fx.flow.Snapshot().Form.Loading)

	fx.flow.mu.Lock()
	require.Len(t, fx.flow.tasks, 1)
	task := fx.flow.tasks[0]
	fx.flow.mu.Unlock()

	select {
	case <-task.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("display name reconciliation did not finish")
	}
	state := task.State()
	assert.True(t, state.Acknowledged)
	assert.Equal(t, 1, state.Attempt)
	assert.Equal(t, 2, fx.client.count("UpdateProfileDisplayName"))
	assert.Equal(t, []time.Duration{reconcile.DefaultDelay}, fx.scheduler.delays)
	assert.True(t, fx.flow.Snapshot().Authenticated)
}

func TestFlow_RegistrationValidation(t *testing.T) {
	cases := []struct {
		name    string
		input   RegistrationInput
		field   Field
		message string
	}{
		{name: "short name", input: RegistrationInput{DisplayName: "Al", Password: "password1", Confirmation: "password1"}, field: FieldDisplayName, message: MessageNameTooShort},
		{name: "short password", input: RegistrationInput{DisplayName: "Ada", Password: "pass", Confirmation: "pass"}, field: FieldPassword, message: MessagePasswordTooShort},
		{name: "mismatch", input: RegistrationInput{DisplayName: "Ada", Password: "password1", Confirmation: "password2"}, field: FieldConfirmation, message: MessagePasswordsMismatch},
		{name: "missing confirmation", input: RegistrationInput{DisplayName: "Ada", Password: "password1"}, field: FieldConfirmation, message: MessagePasswordsMismatch},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fx := newFixture(t)
			fx.client.script("CheckEmailReserved", reply{body: `{"data":{"checkEmailReserved":false}}`})
			require.NoError(t, fx.flow.SubmitEmail(context.Background(), "new@b.com"))

			require.NoError(t, fx.flow.SubmitRegistration(context.Background(), tc.input))

			snapshot := fx.flow.Snapshot()
			assert.True(t, snapshot.Form.IsInvalid(tc.field))
			assert.Equal(t, tc.message, snapshot.Form.Message)
			assert.False(t, snapshot.Authenticated)
		})
	}
}

func TestFlow_PasswordRecoveryAlreadyRequestedOffersRetry(t *testing.T) {
	fx := newFixture(t)
	fx.enterPasswordPrompt(t, "x@y.com")
	fx.client.script("SendResetPasswordEmail",
		reply{body: `{"data":null,"errors":[{"message":"already made","path":["sendResetPasswordEmail"],"extensions":{"code":"user.reset_password_request.already_made"}}]}`},
		reply{body: `{"data":{"sendResetPasswordEmail":true}}`},
	)

	require.NoError(t, fx.flow.ForgotPassword(context.Background()))

	snapshot := fx.flow.Snapshot()
	assert.Equal(t, PasswordRecoveryPrompt{Email: "x@y.com"}, snapshot.State)
	assert.Equal(t, StyleInfo, snapshot.Recovery.Style)
	assert.Equal(t, MessageRecoveryAlreadySent, snapshot.Recovery.Message)
	assert.True(t, snapshot.Recovery.CanRetry)
	assert.Equal(t, 1, fx.client.count("SendResetPasswordEmail"))

	require.NoError(t, fx.flow.RetryPasswordRecovery(context.Background()))

	snapshot = fx.flow.Snapshot()
	assert.Equal(t, 2, fx.client.count("SendResetPasswordEmail"))
	assert.Equal(t, 2, snapshot.Recovery.Sends)
	assert.Equal(t, MessageRecoverySent, snapshot.Recovery.Message)
	assert.False(t, snapshot.Recovery.CanRetry)

	assert.ErrorIs(t, fx.flow.RetryPasswordRecovery(context.Background()), ErrInvalidState)
	assert.Equal(t, 2, fx.client.count("SendResetPasswordEmail"))
}

func TestFlow_PasswordRecoveryOutcomes(t *testing.T) {
	cases := []struct {
		name     string
		reply    reply
		style    Style
		message  string
		canRetry bool
	}{
		{
			name:    "sent",
			reply:   reply{body: `{"data":{"sendResetPasswordEmail":true}}`},
			style:   StyleInfo,
			message: MessageRecoverySent,
		},
		{
			name:    "not found with email",
			reply:   reply{body: `{"errors":[{"message":"nope","extensions":{"code":"user.not_found.by_email","email":"other@y.com"}}]}`},
			style:   StyleDanger,
			message: "Account with email other@y.com was not found.",
		},
		{
			name:    "not found without email",
			reply:   reply{body: `{"errors":[{"message":"nope","extensions":{"code":"user.not_found.by_email"}}]}`},
			style:   StyleDanger,
			message: "Account with email x@y.com was not found.",
		},
		{
			name:     "transport failure",
			reply:    reply{err: core.NewStatusError(503, nil)},
			style:    StyleDanger,
			message:  MessageRecoveryFailed,
			canRetry: true,
		},
		{
			name:     "unknown code",
			reply:    reply{body: `{"errors":[{"message":"boom","extensions":{"code":"internal"}}]}`},
			style:    StyleDanger,
			message:  MessageRecoveryFailed,
			canRetry: true,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fx := newFixture(t)
			fx.enterPasswordPrompt(t, "x@y.com")
			fx.client.script("SendResetPasswordEmail", tc.reply)

			require.NoError(t, fx.flow.ForgotPassword(context.Background()))

			snapshot := fx.flow.Snapshot()
			assert.Equal(t, tc.style, snapshot.Recovery.Style)
			assert.Equal(t, tc.message, snapshot.Recovery.Message)
			assert.Equal(t, tc.canRetry, snapshot.Recovery.CanRetry)
			assert.False(t, snapshot.Form.Loading)
			assert.False(t, snapshot.Recovery.Sending)
		})
	}
}

func TestFlow_GoBack(t *testing.T) {
	fx := newFixture(t)
	fx.enterPasswordPrompt(t, "a@b.com")

	fx.flow.GoBack()

	assert.Equal(t, EmailPrompt{}, fx.flow.State())
	assert.ErrorIs(t, fx.flow.SubmitPassword(context.Background(), "password1"), ErrInvalidState)
}

func TestFlow_SubscribersSeeEveryTransition(t *testing.T) {
	fx := newFixture(t)
	var kinds []Kind
	var loading []bool
	cancel := fx.flow.Subscribe(func(snapshot Snapshot) {
		kinds = append(kinds, snapshot.State.Kind())
		loading = append(loading, snapshot.Form.Loading)
	})
	fx.client.script("CheckEmailReserved", reply{body: `{"data":{"checkEmailReserved":false}}`})

	require.NoError(t, fx.flow.SubmitEmail(context.Background(), "a@b.com"))
	cancel()
	fx.flow.GoBack()

	assert.Equal(t, []Kind{KindEmailPrompt, KindRegistrationPrompt}, kinds)
	assert.Equal(t, []bool{true, false}, loading)
}

func appleIdentityToken(t *testing.T, nonce string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"iss":   "https://appleid.apple.com",
		"sub":   "apple-user",
		"email": "apple@example.com",
	}
	if nonce != "" {
		claims["nonce"] = nonce
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-key"))
	require.NoError(t, err)
	return token
}

func TestFlow_AppleSignIn(t *testing.T) {
	fx := newFixture(t, WithNonceGenerator(auth.NonceGenerator{Reader: bytes.NewReader(bytes.Repeat([]byte{0x01}, 64))}))

	request, err := fx.flow.BeginAppleSignIn()
	require.NoError(t, err)
	assert.Len(t, request.RawNonce, auth.NonceLength)
	assert.Equal(t, auth.HashNonce(request.RawNonce), request.HashedNonce)

	require.NoError(t, fx.flow.CompleteAppleSignIn(context.Background(), AppleAuthorization{
		IdentityToken: appleIdentityToken(t, request.HashedNonce),
	}))

	snapshot := fx.flow.Snapshot()
	assert.True(t, snapshot.Authenticated)
	assert.Empty(t, snapshot.Form.Message)
	current, ok := fx.provider.CurrentIdentity(context.Background())
	require.True(t, ok)
	assert.Equal(t, "apple:apple-user", current.ID)
}

func TestFlow_AppleSignInWithoutNonceClaim(t *testing.T) {
	fx := newFixture(t)
	_, err := fx.flow.BeginAppleSignIn()
	require.NoError(t, err)

	require.NoError(t, fx.flow.CompleteAppleSignIn(context.Background(), AppleAuthorization{
		IdentityToken: appleIdentityToken(t, ""),
	}))

	snapshot := fx.flow.Snapshot()
	assert.True(t, snapshot.Authenticated)
	assert.Empty(t, snapshot.Form.Message)
}

func TestFlow_AppleSignInFailures(t *testing.T) {
	t.Run("cancelled is silent", func(t *testing.T) {
		fx := newFixture(t)
		_, err := fx.flow.BeginAppleSignIn()
		require.NoError(t, err)

		require.NoError(t, fx.flow.CompleteAppleSignIn(context.Background(), AppleAuthorization{Err: identity.Cancelled()}))

		snapshot := fx.flow.Snapshot()
		assert.Empty(t, snapshot.Form.Message)
		assert.False(t, snapshot.Form.Loading)
		assert.False(t, snapshot.Authenticated)
	})
	t.Run("nonce mismatch", func(t *testing.T) {
		fx := newFixture(t)
		_, err := fx.flow.BeginAppleSignIn()
		require.NoError(t, err)

		require.NoError(t, fx.flow.CompleteAppleSignIn(context.Background(), AppleAuthorization{
			IdentityToken: appleIdentityToken(t, auth.HashNonce("someone-else")),
		}))

		snapshot := fx.flow.Snapshot()
		assert.Equal(t, MessageAuthFailed, snapshot.Form.Message)
		assert.False(t, snapshot.Authenticated)
	})
	t.Run("authorization error", func(t *testing.T) {
		fx := newFixture(t)
		_, err := fx.flow.BeginAppleSignIn()
		require.NoError(t, err)

		require.NoError(t, fx.flow.CompleteAppleSignIn(context.Background(), AppleAuthorization{Err: errors.New("apple unavailable")}))

		assert.Equal(t, MessageAuthFailed, fx.flow.Snapshot().Form.Message)
	})
	t.Run("no pending request", func(t *testing.T) {
		fx := newFixture(t)

		require.NoError(t, fx.flow.CompleteAppleSignIn(context.Background(), AppleAuthorization{IdentityToken: "token"}))

		assert.Equal(t, MessageAuthFailed, fx.flow.Snapshot().Form.Message)
	})
}

func TestNewFlow_RequiresDependencies(t *testing.T) {
	_, err := NewFlow(Dependencies{})
	assert.True(t, core.HasTextCode(err, core.ErrorBadInput))
}

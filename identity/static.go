package identity

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/heartbeatlive/go-heartbeat/auth"
	"github.com/heartbeatlive/go-heartbeat/core"
)

// StaticProvider keeps accounts in memory. It backs the CLI when a session
// token is passed directly and stands in for a real provider in tests.
type StaticProvider struct {
	session *Session

	mu       sync.Mutex
	accounts map[string]string
}

func NewStaticProvider() *StaticProvider {
	return &StaticProvider{session: NewSession(), accounts: map[string]string{}}
}

// NewStaticProviderWithToken returns a provider already signed in as
// identity, minting token for every request.
func NewStaticProviderWithToken(identity core.Identity, token string) *StaticProvider {
	provider := NewStaticProvider()
	provider.session.Set(identity, strings.TrimSpace(token))
	return provider
}

// AddAccount registers an email/password pair that SignIn accepts.
func (p *StaticProvider) AddAccount(email string, password string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.accounts[normalizeEmail(email)] = password
}

func (p *StaticProvider) CurrentIdentity(context.Context) (core.Identity, bool) {
	return p.session.Current()
}

func (p *StaticProvider) MintToken(context.Context) (string, error) {
	if _, ok := p.session.Current(); !ok {
		return "", Failed(ErrNotSignedIn)
	}
	token := p.session.Token()
	if token == "" {
		return "", Failed(errors.New("identity: no token for current session"))
	}
	return token, nil
}

func (p *StaticProvider) SignIn(_ context.Context, email string, password string) (core.Identity, error) {
	key := normalizeEmail(email)
	p.mu.Lock()
	stored, ok := p.accounts[key]
	p.mu.Unlock()
	if !ok {
		return core.Identity{}, Failed(errors.New("identity: unknown account"))
	}
	if stored != password {
		return core.Identity{}, WrongPassword(nil)
	}
	identity := core.Identity{ID: "static:" + key, Email: key}
	p.session.Set(identity, "static-token:"+key)
	return identity, nil
}

func (p *StaticProvider) CreateAccount(_ context.Context, email string, password string) (core.Identity, error) {
	key := normalizeEmail(email)
	p.mu.Lock()
	if _, exists := p.accounts[key]; exists {
		p.mu.Unlock()
		return core.Identity{}, Failed(errors.New("identity: account already exists"))
	}
	p.accounts[key] = password
	p.mu.Unlock()

	identity := core.Identity{ID: "static:" + key, Email: key}
	p.session.Set(identity, "static-token:"+key)
	return identity, nil
}

func (p *StaticProvider) SignInWithExternalCredential(_ context.Context, credential core.ExternalCredential) (core.Identity, error) {
	claims, err := auth.ParseIdentityToken(credential.IDToken)
	if err != nil {
		return core.Identity{}, Failed(err)
	}
	if claims.Subject == "" {
		return core.Identity{}, Failed(errors.New("identity: external token has no subject"))
	}
	provider := strings.TrimSpace(credential.Provider)
	if provider == "" {
		provider = auth.AppleProvider
	}
	identity := core.Identity{ID: provider + ":" + claims.Subject, Email: claims.Email}
	p.session.Set(identity, "static-token:"+identity.ID)
	return identity, nil
}

func (p *StaticProvider) SignOut(context.Context) error {
	p.session.Clear()
	return nil
}

func (p *StaticProvider) OnIdentityChanged(listener func(core.Identity)) func() {
	return p.session.Subscribe(listener)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

var _ Provider = (*StaticProvider)(nil)

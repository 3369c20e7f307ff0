package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/heartbeatlive/go-heartbeat/core"
	kratos "github.com/ory/kratos-client-go"
)

const (
	defaultKratosTimeout = 30 * time.Second
	passwordMethod       = "password"
	oidcMethod           = "oidc"
	defaultOIDCProvider  = "apple"

	// Kratos UI message id for "the provided credentials are invalid".
	kratosInvalidCredentials = 4000006
)

type KratosConfig struct {
	PublicURL  string
	HTTPClient *http.Client
	// TokenizeTemplate names a Kratos session-to-JWT template. When empty
	// MintToken returns the session token itself.
	TokenizeTemplate string
	Logger           core.Logger
}

// KratosProvider signs users in through Ory Kratos native (API) flows.
type KratosProvider struct {
	api      *kratos.APIClient
	session  *Session
	template string
	logger   core.Logger
}

func NewKratosProvider(cfg KratosConfig) (*KratosProvider, error) {
	publicURL := strings.TrimRight(strings.TrimSpace(cfg.PublicURL), "/")
	if publicURL == "" {
		return nil, core.NewBadInputError("identity: kratos public url is required", nil)
	}
	configuration := kratos.NewConfiguration()
	configuration.Servers = kratos.ServerConfigurations{{URL: publicURL}}
	configuration.HTTPClient = cfg.HTTPClient
	if configuration.HTTPClient == nil {
		configuration.HTTPClient = &http.Client{Timeout: defaultKratosTimeout}
	}
	if configuration.DefaultHeader == nil {
		configuration.DefaultHeader = map[string]string{}
	}
	configuration.DefaultHeader["Accept"] = "application/json"

	return &KratosProvider{
		api:      kratos.NewAPIClient(configuration),
		session:  NewSession(),
		template: strings.TrimSpace(cfg.TokenizeTemplate),
		logger:   glog.Ensure(cfg.Logger),
	}, nil
}

func (p *KratosProvider) CurrentIdentity(context.Context) (core.Identity, bool) {
	return p.session.Current()
}

func (p *KratosProvider) MintToken(ctx context.Context) (string, error) {
	token := p.session.Token()
	if token == "" {
		return "", Failed(ErrNotSignedIn)
	}
	if p.template == "" {
		return token, nil
	}
	session, httpResp, err := p.api.FrontendAPI.ToSession(ctx).
		XSessionToken(token).
		TokenizeAs(p.template).
		Execute()
	if err != nil {
		if statusOf(httpResp) == http.StatusUnauthorized {
			p.session.Clear()
		}
		return "", Failed(err)
	}
	tokenized := strings.TrimSpace(session.GetTokenized())
	if tokenized == "" {
		return "", Failed(fmt.Errorf("identity: kratos returned no tokenized session for template %q", p.template))
	}
	return tokenized, nil
}

func (p *KratosProvider) SignIn(ctx context.Context, email string, password string) (core.Identity, error) {
	flow, httpResp, err := p.api.FrontendAPI.CreateNativeLoginFlow(ctx).Execute()
	if err != nil {
		return core.Identity{}, p.classify(err, httpResp, "create_login_flow")
	}
	body := kratos.UpdateLoginFlowWithPasswordMethod{
		Identifier: strings.TrimSpace(email),
		Method:     passwordMethod,
		Password:   password,
	}
	result, httpResp, err := p.api.FrontendAPI.UpdateLoginFlow(ctx).
		Flow(flow.GetId()).
		UpdateLoginFlowBody(kratos.UpdateLoginFlowWithPasswordMethodAsUpdateLoginFlowBody(&body)).
		Execute()
	if err != nil {
		return core.Identity{}, p.classify(err, httpResp, "submit_login_flow")
	}
	session := result.GetSession()
	return p.establish(identityFromKratos(session.GetIdentity()), result.GetSessionToken())
}

func (p *KratosProvider) CreateAccount(ctx context.Context, email string, password string) (core.Identity, error) {
	flow, httpResp, err := p.api.FrontendAPI.CreateNativeRegistrationFlow(ctx).Execute()
	if err != nil {
		return core.Identity{}, p.classify(err, httpResp, "create_registration_flow")
	}
	body := kratos.UpdateRegistrationFlowWithPasswordMethod{
		Method:   passwordMethod,
		Password: password,
		Traits:   map[string]interface{}{"email": strings.TrimSpace(email)},
	}
	result, httpResp, err := p.api.FrontendAPI.UpdateRegistrationFlow(ctx).
		Flow(flow.GetId()).
		UpdateRegistrationFlowBody(kratos.UpdateRegistrationFlowWithPasswordMethodAsUpdateRegistrationFlowBody(&body)).
		Execute()
	if err != nil {
		return core.Identity{}, p.classify(err, httpResp, "submit_registration_flow")
	}
	return p.establish(identityFromKratos(result.GetIdentity()), result.GetSessionToken())
}

func (p *KratosProvider) SignInWithExternalCredential(ctx context.Context, credential core.ExternalCredential) (core.Identity, error) {
	if strings.TrimSpace(credential.IDToken) == "" {
		return core.Identity{}, Failed(errors.New("identity: external id token is required"))
	}
	provider := strings.TrimSpace(credential.Provider)
	if provider == "" {
		provider = defaultOIDCProvider
	}
	flow, httpResp, err := p.api.FrontendAPI.CreateNativeLoginFlow(ctx).Execute()
	if err != nil {
		return core.Identity{}, p.classify(err, httpResp, "create_login_flow")
	}
	body := kratos.UpdateLoginFlowWithOidcMethod{
		Method:   oidcMethod,
		Provider: provider,
		IdToken:  &credential.IDToken,
	}
	if credential.RawNonce != "" {
		body.IdTokenNonce = &credential.RawNonce
	}
	result, httpResp, err := p.api.FrontendAPI.UpdateLoginFlow(ctx).
		Flow(flow.GetId()).
		UpdateLoginFlowBody(kratos.UpdateLoginFlowWithOidcMethodAsUpdateLoginFlowBody(&body)).
		Execute()
	if err != nil {
		return core.Identity{}, p.classify(err, httpResp, "submit_oidc_login_flow")
	}
	session := result.GetSession()
	return p.establish(identityFromKratos(session.GetIdentity()), result.GetSessionToken())
}

// Restore resumes a session from a previously issued session token.
func (p *KratosProvider) Restore(ctx context.Context, token string) (core.Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return core.Identity{}, Failed(ErrNotSignedIn)
	}
	session, httpResp, err := p.api.FrontendAPI.ToSession(ctx).XSessionToken(token).Execute()
	if err != nil {
		return core.Identity{}, p.classify(err, httpResp, "restore_session")
	}
	return p.establish(identityFromKratos(session.GetIdentity()), token)
}

func (p *KratosProvider) SignOut(ctx context.Context) error {
	token := p.session.Token()
	if token == "" {
		return nil
	}
	httpResp, err := p.api.FrontendAPI.PerformNativeLogout(ctx).
		PerformNativeLogoutBody(*kratos.NewPerformNativeLogoutBody(token)).
		Execute()
	p.session.Clear()
	if err != nil && statusOf(httpResp) != http.StatusUnauthorized {
		return Failed(err)
	}
	return nil
}

func (p *KratosProvider) OnIdentityChanged(listener func(core.Identity)) func() {
	return p.session.Subscribe(listener)
}

func (p *KratosProvider) establish(identity core.Identity, token string) (core.Identity, error) {
	if identity.IsZero() {
		return core.Identity{}, Failed(errors.New("identity: kratos session has no identity"))
	}
	p.session.Set(identity, token)
	return identity, nil
}

func (p *KratosProvider) classify(err error, httpResp *http.Response, operation string) error {
	status := statusOf(httpResp)
	var apiErr *kratos.GenericOpenAPIError
	if errors.As(err, &apiErr) && hasKratosMessage(apiErr.Body(), kratosInvalidCredentials) {
		p.logger.Debug("kratos rejected credentials", "operation", operation, "http_status", status)
		return WrongPassword(err)
	}
	p.logger.Warn("kratos request failed", "operation", operation, "http_status", status, "error", err)
	return Failed(err)
}

func statusOf(resp *http.Response) int {
	if resp == nil {
		return 0
	}
	return resp.StatusCode
}

type kratosUIMessage struct {
	ID   int64  `json:"id"`
	Text string `json:"text"`
	Type string `json:"type"`
}

type kratosUIBody struct {
	UI struct {
		Messages []kratosUIMessage `json:"messages"`
		Nodes    []struct {
			Messages []kratosUIMessage `json:"messages"`
		} `json:"nodes"`
	} `json:"ui"`
}

func hasKratosMessage(body []byte, id int64) bool {
	if len(body) == 0 {
		return false
	}
	var parsed kratosUIBody
	if err := json.Unmarshal(body, &parsed); err != nil {
		return false
	}
	for _, message := range parsed.UI.Messages {
		if message.ID == id {
			return true
		}
	}
	for _, node := range parsed.UI.Nodes {
		for _, message := range node.Messages {
			if message.ID == id {
				return true
			}
		}
	}
	return false
}

func identityFromKratos(identity kratos.Identity) core.Identity {
	traits, _ := identity.GetTraits().(map[string]interface{})
	return core.Identity{
		ID:          strings.TrimSpace(identity.GetId()),
		Email:       readTrait(traits, "email"),
		DisplayName: readTrait(traits, "display_name", "name"),
	}
}

func readTrait(traits map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		switch typed := traits[key].(type) {
		case string:
			if trimmed := strings.TrimSpace(typed); trimmed != "" {
				return trimmed
			}
		case map[string]interface{}:
			parts := make([]string, 0, 2)
			for _, part := range []string{"first", "last"} {
				if value, ok := typed[part].(string); ok && strings.TrimSpace(value) != "" {
					parts = append(parts, strings.TrimSpace(value))
				}
			}
			if len(parts) > 0 {
				return strings.Join(parts, " ")
			}
		}
	}
	return ""
}

var _ Provider = (*KratosProvider)(nil)

package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
	"github.com/heartbeatlive/go-heartbeat/core"
)

const AppleProvider = "apple"

// AppleRequest is handed to the platform authorization UI. Only the hashed
// nonce leaves the process; the raw nonce is kept for the credential
// exchange.
type AppleRequest struct {
	RawNonce    string
	HashedNonce string
}

func NewAppleRequest() (AppleRequest, error) {
	return NewAppleRequestWith(NonceGenerator{})
}

func NewAppleRequestWith(generator NonceGenerator) (AppleRequest, error) {
	raw, err := generator.Generate(NonceLength)
	if err != nil {
		return AppleRequest{}, err
	}
	return AppleRequest{RawNonce: raw, HashedNonce: HashNonce(raw)}, nil
}

// Credential builds the provider exchange payload for the identity token
// returned by Apple.
func (r AppleRequest) Credential(identityToken string) core.ExternalCredential {
	return core.ExternalCredential{
		Provider: AppleProvider,
		IDToken:  strings.TrimSpace(identityToken),
		RawNonce: r.RawNonce,
	}
}

type IdentityTokenClaims struct {
	Subject string
	Issuer  string
	Email   string
	Nonce   string
}

// ParseIdentityToken reads the claims of an identity token without checking
// its signature. The identity provider verifies the signature during the
// credential exchange.
func ParseIdentityToken(token string) (IdentityTokenClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return IdentityTokenClaims{}, identityTokenError("auth: identity token is required", nil)
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return IdentityTokenClaims{}, identityTokenError("auth: identity token is malformed", err)
	}
	subject, _ := claims.GetSubject()
	issuer, _ := claims.GetIssuer()
	return IdentityTokenClaims{
		Subject: strings.TrimSpace(subject),
		Issuer:  strings.TrimSpace(issuer),
		Email:   claimString(claims, "email"),
		Nonce:   claimString(claims, "nonce"),
	}, nil
}

func claimString(claims jwt.MapClaims, name string) string {
	value, _ := claims[name].(string)
	return strings.TrimSpace(value)
}

// VerifyIdentityTokenNonce checks that the token's nonce claim matches the
// hashed nonce sent with the authorization request. A token without a nonce
// claim is accepted; the raw nonce still travels with the credential and the
// identity provider checks it during the exchange.
func VerifyIdentityTokenNonce(token string, hashedNonce string) (IdentityTokenClaims, error) {
	claims, err := ParseIdentityToken(token)
	if err != nil {
		return IdentityTokenClaims{}, err
	}
	if claims.Nonce == "" {
		return claims, nil
	}
	hashedNonce = strings.TrimSpace(hashedNonce)
	if hashedNonce == "" {
		return IdentityTokenClaims{}, identityTokenError("auth: identity token nonce is missing", nil)
	}
	if subtle.ConstantTimeCompare([]byte(claims.Nonce), []byte(hashedNonce)) != 1 {
		return IdentityTokenClaims{}, identityTokenError("auth: identity token nonce mismatch", nil)
	}
	return claims, nil
}

func identityTokenError(message string, source error) *goerrors.Error {
	var err *goerrors.Error
	if source == nil {
		err = goerrors.New(message, goerrors.CategoryAuth)
	} else {
		err = goerrors.Wrap(source, goerrors.CategoryAuth, message)
	}
	return err.WithCode(http.StatusUnauthorized).WithTextCode(core.ErrorAuthFailed)
}

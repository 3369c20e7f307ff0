package login

import (
	"context"

	"github.com/heartbeatlive/go-heartbeat/auth"
	"github.com/heartbeatlive/go-heartbeat/identity"
)

// AppleAuthorization is what the platform returns from the Apple
// authorization request. Err wrapping identity.ErrUserCancelled means the
// user dismissed the sheet.
type AppleAuthorization struct {
	IdentityToken string
	Err           error
}

// BeginAppleSignIn generates a fresh nonce pair. HashedNonce goes into the
// authorization request; the raw nonce stays with the flow.
func (f *Flow) BeginAppleSignIn() (auth.AppleRequest, error) {
	request, err := auth.NewAppleRequestWith(f.nonces)
	if err != nil {
		f.logger.Error("apple nonce generation failed", "error", err)
		f.fail(MessageAuthFailed)
		return auth.AppleRequest{}, err
	}
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return auth.AppleRequest{}, ErrClosed
	}
	f.apple = &request
	f.mu.Unlock()
	return request, nil
}

// CompleteAppleSignIn exchanges the Apple identity token for a provider
// session. Cancellation is silent; every other failure shows the generic
// authentication message.
func (f *Flow) CompleteAppleSignIn(ctx context.Context, authorization AppleAuthorization) error {
	f.mu.Lock()
	request := f.apple
	f.apple = nil
	closed := f.closed
	f.mu.Unlock()
	if closed {
		return ErrClosed
	}

	if authorization.Err != nil {
		if identity.IsCancelled(authorization.Err) {
			f.logger.Debug("apple sign in cancelled")
			f.transition(func(s *Snapshot) { s.Form = Form{} })
			return nil
		}
		f.logger.Warn("apple authorization failed", "error", authorization.Err)
		f.fail(MessageAuthFailed)
		return nil
	}
	if request == nil {
		f.logger.Warn("apple authorization without a pending request")
		f.fail(MessageAuthFailed)
		return nil
	}

	f.transition(func(s *Snapshot) { s.Form = Form{Loading: true} })
	if _, err := auth.VerifyIdentityTokenNonce(authorization.IdentityToken, request.HashedNonce); err != nil {
		f.logger.Warn("apple identity token rejected", "error", err)
		f.fail(MessageAuthFailed)
		return nil
	}
	if _, err := f.identity.SignInWithExternalCredential(ctx, request.Credential(authorization.IdentityToken)); err != nil {
		if identity.IsCancelled(err) {
			f.transition(func(s *Snapshot) { s.Form = Form{} })
			return nil
		}
		f.logger.Warn("apple credential exchange failed", "error", err)
		f.fail(MessageAuthFailed)
		return nil
	}
	f.transition(func(s *Snapshot) { s.Form = Form{} })
	return nil
}

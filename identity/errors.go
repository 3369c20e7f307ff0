package identity

import (
	"errors"
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	"github.com/heartbeatlive/go-heartbeat/core"
)

var (
	ErrWrongPassword = errors.New("identity: wrong password")
	ErrAuthFailed    = errors.New("identity: authentication failed")
	ErrUserCancelled = errors.New("identity: cancelled by user")
	ErrNotSignedIn   = errors.New("identity: not signed in")
)

// AuthError is returned by providers for every failed sign-in, account
// creation or token request. Reason is one of the package sentinels.
type AuthError struct {
	Reason error
	Cause  error
}

func (e *AuthError) Error() string {
	reason := e.reason()
	if e == nil || e.Cause == nil {
		return reason.Error()
	}
	return reason.Error() + ": " + e.Cause.Error()
}

func (e *AuthError) Unwrap() error {
	if e == nil {
		return nil
	}
	if e.Cause == nil {
		return e.reason()
	}
	return errors.Join(e.reason(), e.Cause)
}

func (e *AuthError) ToServiceError() *goerrors.Error {
	reason := e.reason()
	textCode := core.ErrorAuthFailed
	code := http.StatusUnauthorized
	switch {
	case errors.Is(reason, ErrWrongPassword):
		textCode = core.ErrorAuthWrongPassword
	case errors.Is(reason, ErrUserCancelled):
		textCode = core.ErrorAuthCancelled
		code = http.StatusBadRequest
	}
	return goerrors.New(e.Error(), goerrors.CategoryAuth).
		WithCode(code).
		WithTextCode(textCode)
}

func (e *AuthError) reason() error {
	if e == nil || e.Reason == nil {
		return ErrAuthFailed
	}
	return e.Reason
}

func WrongPassword(cause error) error {
	return &AuthError{Reason: ErrWrongPassword, Cause: cause}
}

func Failed(cause error) error {
	return &AuthError{Reason: ErrAuthFailed, Cause: cause}
}

func Cancelled() error {
	return &AuthError{Reason: ErrUserCancelled}
}

func IsWrongPassword(err error) bool {
	return errors.Is(err, ErrWrongPassword)
}

func IsCancelled(err error) bool {
	return errors.Is(err, ErrUserCancelled)
}

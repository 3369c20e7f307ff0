package command

import (
	"strings"

	"github.com/heartbeatlive/go-heartbeat/core"
	"github.com/heartbeatlive/go-heartbeat/login"
)

const (
	TypePerform               = "heartbeat.command.perform"
	TypeSubmitEmail           = "heartbeat.command.login.submit_email"
	TypeSubmitPassword        = "heartbeat.command.login.submit_password"
	TypeSubmitRegistration    = "heartbeat.command.login.submit_registration"
	TypeForgotPassword        = "heartbeat.command.login.forgot_password"
	TypeRetryPasswordRecovery = "heartbeat.command.login.retry_password_recovery"
	TypeGoBack                = "heartbeat.command.login.go_back"
	TypeCompleteAppleSignIn   = "heartbeat.command.login.complete_apple_sign_in"
)

type PerformMessage struct {
	Operation core.Operation
}

func (PerformMessage) Type() string { return TypePerform }

func (m PerformMessage) Validate() error {
	if err := m.Operation.Validate(); err != nil {
		return commandWrapValidation(err, "command: invalid operation")
	}
	if !m.Operation.IsMutation() {
		return commandValidationError("operation.kind", "perform requires a mutation")
	}
	return nil
}

type SubmitEmailMessage struct {
	Email string
}

func (SubmitEmailMessage) Type() string { return TypeSubmitEmail }

// Validate only rejects a missing payload. Format checks belong to the
// flow, which reports them on the form.
func (m SubmitEmailMessage) Validate() error {
	if strings.TrimSpace(m.Email) == "" {
		return commandValidationError("email", "email is required")
	}
	return nil
}

type SubmitPasswordMessage struct {
	Password string
}

func (SubmitPasswordMessage) Type() string { return TypeSubmitPassword }

func (m SubmitPasswordMessage) Validate() error {
	if m.Password == "" {
		return commandValidationError("password", "password is required")
	}
	return nil
}

type SubmitRegistrationMessage struct {
	Input login.RegistrationInput
}

func (SubmitRegistrationMessage) Type() string { return TypeSubmitRegistration }

func (m SubmitRegistrationMessage) Validate() error {
	if strings.TrimSpace(m.Input.DisplayName) == "" {
		return commandValidationError("display_name", "display name is required")
	}
	return nil
}

type ForgotPasswordMessage struct{}

func (ForgotPasswordMessage) Type() string { return TypeForgotPassword }

type RetryPasswordRecoveryMessage struct{}

func (RetryPasswordRecoveryMessage) Type() string { return TypeRetryPasswordRecovery }

type GoBackMessage struct{}

func (GoBackMessage) Type() string { return TypeGoBack }

type CompleteAppleSignInMessage struct {
	Authorization login.AppleAuthorization
}

func (CompleteAppleSignInMessage) Type() string { return TypeCompleteAppleSignIn }

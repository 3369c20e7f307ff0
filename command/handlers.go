package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/heartbeatlive/go-heartbeat/core"
	"github.com/heartbeatlive/go-heartbeat/login"
)

type Performer interface {
	Perform(ctx context.Context, op core.Operation) (*core.Response, error)
}

// LoginFlow is the action surface of login.Flow.
type LoginFlow interface {
	Snapshot() login.Snapshot
	SubmitEmail(ctx context.Context, email string) error
	SubmitPassword(ctx context.Context, password string) error
	SubmitRegistration(ctx context.Context, input login.RegistrationInput) error
	ForgotPassword(ctx context.Context) error
	RetryPasswordRecovery(ctx context.Context) error
	GoBack()
	CompleteAppleSignIn(ctx context.Context, authorization login.AppleAuthorization) error
}

type PerformCommand struct {
	performer Performer
}

func NewPerformCommand(performer Performer) *PerformCommand {
	return &PerformCommand{performer: performer}
}

// Execute stores the response, path errors included, in the result
// collector.
func (c *PerformCommand) Execute(ctx context.Context, msg PerformMessage) error {
	if c == nil || c.performer == nil {
		return commandDependencyError("command: performer is required")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	resp, err := c.performer.Perform(ctx, msg.Operation)
	if err != nil {
		return err
	}
	storeResult(ctx, resp)
	return nil
}

type SubmitEmailCommand struct {
	flow LoginFlow
}

func NewSubmitEmailCommand(flow LoginFlow) *SubmitEmailCommand {
	return &SubmitEmailCommand{flow: flow}
}

func (c *SubmitEmailCommand) Execute(ctx context.Context, msg SubmitEmailMessage) error {
	if c == nil || c.flow == nil {
		return commandDependencyError("command: login flow is required")
	}
	return finish(ctx, c.flow, c.flow.SubmitEmail(ctx, msg.Email))
}

type SubmitPasswordCommand struct {
	flow LoginFlow
}

func NewSubmitPasswordCommand(flow LoginFlow) *SubmitPasswordCommand {
	return &SubmitPasswordCommand{flow: flow}
}

func (c *SubmitPasswordCommand) Execute(ctx context.Context, msg SubmitPasswordMessage) error {
	if c == nil || c.flow == nil {
		return commandDependencyError("command: login flow is required")
	}
	return finish(ctx, c.flow, c.flow.SubmitPassword(ctx, msg.Password))
}

type SubmitRegistrationCommand struct {
	flow LoginFlow
}

func NewSubmitRegistrationCommand(flow LoginFlow) *SubmitRegistrationCommand {
	return &SubmitRegistrationCommand{flow: flow}
}

func (c *SubmitRegistrationCommand) Execute(ctx context.Context, msg SubmitRegistrationMessage) error {
	if c == nil || c.flow == nil {
		return commandDependencyError("command: login flow is required")
	}
	return finish(ctx, c.flow, c.flow.SubmitRegistration(ctx, msg.Input))
}

type ForgotPasswordCommand struct {
	flow LoginFlow
}

func NewForgotPasswordCommand(flow LoginFlow) *ForgotPasswordCommand {
	return &ForgotPasswordCommand{flow: flow}
}

func (c *ForgotPasswordCommand) Execute(ctx context.Context, _ ForgotPasswordMessage) error {
	if c == nil || c.flow == nil {
		return commandDependencyError("command: login flow is required")
	}
	return finish(ctx, c.flow, c.flow.ForgotPassword(ctx))
}

type RetryPasswordRecoveryCommand struct {
	flow LoginFlow
}

func NewRetryPasswordRecoveryCommand(flow LoginFlow) *RetryPasswordRecoveryCommand {
	return &RetryPasswordRecoveryCommand{flow: flow}
}

func (c *RetryPasswordRecoveryCommand) Execute(ctx context.Context, _ RetryPasswordRecoveryMessage) error {
	if c == nil || c.flow == nil {
		return commandDependencyError("command: login flow is required")
	}
	return finish(ctx, c.flow, c.flow.RetryPasswordRecovery(ctx))
}

type GoBackCommand struct {
	flow LoginFlow
}

func NewGoBackCommand(flow LoginFlow) *GoBackCommand {
	return &GoBackCommand{flow: flow}
}

func (c *GoBackCommand) Execute(ctx context.Context, _ GoBackMessage) error {
	if c == nil || c.flow == nil {
		return commandDependencyError("command: login flow is required")
	}
	c.flow.GoBack()
	return finish(ctx, c.flow, nil)
}

type CompleteAppleSignInCommand struct {
	flow LoginFlow
}

func NewCompleteAppleSignInCommand(flow LoginFlow) *CompleteAppleSignInCommand {
	return &CompleteAppleSignInCommand{flow: flow}
}

func (c *CompleteAppleSignInCommand) Execute(ctx context.Context, msg CompleteAppleSignInMessage) error {
	if c == nil || c.flow == nil {
		return commandDependencyError("command: login flow is required")
	}
	return finish(ctx, c.flow, c.flow.CompleteAppleSignIn(ctx, msg.Authorization))
}

// finish stores the snapshot reached by a flow action.
func finish(ctx context.Context, flow LoginFlow, err error) error {
	if err != nil {
		return err
	}
	storeResult(ctx, flow.Snapshot())
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}

package login

import (
	"context"
	"fmt"

	"github.com/heartbeatlive/go-heartbeat/core"
	"github.com/heartbeatlive/go-heartbeat/operations"
)

const (
	MessageRecoverySent           = "We have sent you an email with instructions to reset your password."
	MessageRecoveryAlreadySent    = "A password reset email has already been sent recently. Please, check your inbox."
	MessageRecoveryFailed         = "Failed to send the password reset email. Please, try again."
	messageRecoveryUserNotFoundAt = "Account with email %s was not found."
)

// ForgotPassword moves from PasswordPrompt to PasswordRecoveryPrompt and
// sends the reset email right away.
func (f *Flow) ForgotPassword(ctx context.Context) error {
	err := f.transitionIf(func(s *Snapshot) error {
		if err := f.available(s, KindPasswordPrompt); err != nil {
			return err
		}
		s.State = PasswordRecoveryPrompt{Email: EmailOf(s.State)}
		s.Form = Form{}
		s.Recovery = Recovery{Armed: true}
		return nil
	})
	if err != nil {
		return err
	}
	return f.sendRecovery(ctx)
}

// RetryPasswordRecovery re-arms the reset email after an outcome that
// offered a retry and sends it once more.
func (f *Flow) RetryPasswordRecovery(ctx context.Context) error {
	err := f.transitionIf(func(s *Snapshot) error {
		if err := f.available(s, KindPasswordRecoveryPrompt); err != nil {
			return err
		}
		if !s.Recovery.CanRetry {
			return fmt.Errorf("%w: retry not offered", ErrInvalidState)
		}
		s.Recovery.Armed = true
		s.Recovery.CanRetry = false
		return nil
	})
	if err != nil {
		return err
	}
	return f.sendRecovery(ctx)
}

// sendRecovery fires the armed reset mutation. Disarming happens under the
// lock so a single arm never produces two sends.
func (f *Flow) sendRecovery(ctx context.Context) error {
	var email string
	err := f.transitionIf(func(s *Snapshot) error {
		if s.State.Kind() != KindPasswordRecoveryPrompt || !s.Recovery.Armed || s.Recovery.Sending {
			return fmt.Errorf("%w: recovery not armed", ErrInvalidState)
		}
		email = EmailOf(s.State)
		s.Recovery = Recovery{Sending: true, Sends: s.Recovery.Sends + 1}
		s.Form = Form{Loading: true}
		return nil
	})
	if err != nil {
		return err
	}

	resp, err := f.client.Perform(ctx, operations.SendResetPasswordEmail(email))
	outcome := recoveryOutcome(email, resp, err)
	if err != nil {
		f.logger.Warn("password reset request failed", "error", err)
	}
	f.transition(func(s *Snapshot) {
		if s.State.Kind() != KindPasswordRecoveryPrompt {
			return
		}
		outcome.Sends = s.Recovery.Sends
		s.Recovery = outcome
		s.Form = Form{}
	})
	return nil
}

func recoveryOutcome(email string, resp *core.Response, err error) Recovery {
	if err != nil {
		return Recovery{Message: MessageRecoveryFailed, Style: StyleDanger, CanRetry: true}
	}
	if operations.ResetEmailSent(resp) {
		return Recovery{Message: MessageRecoverySent, Style: StyleInfo}
	}
	if item, ok := resp.FindErrorWithCode(operations.CodeUserNotFoundByEmail); ok {
		address := item.ExtensionString("email")
		if address == "" {
			address = email
		}
		return Recovery{Message: fmt.Sprintf(messageRecoveryUserNotFoundAt, address), Style: StyleDanger}
	}
	if _, ok := resp.FindErrorWithCode(operations.CodeResetPasswordAlreadyRequested); ok {
		return Recovery{Message: MessageRecoveryAlreadySent, Style: StyleInfo, CanRetry: true}
	}
	return Recovery{Message: MessageRecoveryFailed, Style: StyleDanger, CanRetry: true}
}

// available reports whether an action for kind may start. Callers hold the
// flow lock.
func (f *Flow) available(s *Snapshot, kind Kind) error {
	switch {
	case f.closed:
		return ErrClosed
	case s.Form.Loading:
		return ErrBusy
	case s.State.Kind() != kind:
		return fmt.Errorf("%w: %s", ErrInvalidState, s.State.Kind())
	}
	return nil
}

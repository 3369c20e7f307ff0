package command

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/heartbeatlive/go-heartbeat/login"
)

var (
	_ gocmd.Commander[PerformMessage]               = (*PerformCommand)(nil)
	_ gocmd.Commander[SubmitEmailMessage]           = (*SubmitEmailCommand)(nil)
	_ gocmd.Commander[SubmitPasswordMessage]        = (*SubmitPasswordCommand)(nil)
	_ gocmd.Commander[SubmitRegistrationMessage]    = (*SubmitRegistrationCommand)(nil)
	_ gocmd.Commander[ForgotPasswordMessage]        = (*ForgotPasswordCommand)(nil)
	_ gocmd.Commander[RetryPasswordRecoveryMessage] = (*RetryPasswordRecoveryCommand)(nil)
	_ gocmd.Commander[GoBackMessage]                = (*GoBackCommand)(nil)
	_ gocmd.Commander[CompleteAppleSignInMessage]   = (*CompleteAppleSignInCommand)(nil)

	_ LoginFlow = (*login.Flow)(nil)
)

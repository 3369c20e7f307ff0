package gocommand

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
	"github.com/heartbeatlive/go-heartbeat/command"
	"github.com/heartbeatlive/go-heartbeat/core"
	"github.com/heartbeatlive/go-heartbeat/login"
	"github.com/heartbeatlive/go-heartbeat/query"
)

// Client is the fetch/perform surface of heartbeat.Client.
type Client interface {
	query.Fetcher
	command.Performer
}

// LoginFlow is the action and snapshot surface of login.Flow.
type LoginFlow interface {
	command.LoginFlow
	query.SnapshotReader
}

// Subscriptions releases a group of dispatcher subscriptions together.
type Subscriptions []commanddispatcher.Subscription

func (s Subscriptions) Unsubscribe() {
	for _, subscription := range s {
		if subscription != nil {
			subscription.Unsubscribe()
		}
	}
}

// RegisterClientHandlers exposes fetch, perform and the email reservation
// check on the dispatcher.
func RegisterClientHandlers(registrar *Registrar, client Client, runnerOpts ...runner.Option) (Subscriptions, error) {
	return registerAll(
		func() (commanddispatcher.Subscription, error) {
			return registerCommand[command.PerformMessage](registrar, command.NewPerformCommand(client), runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return registerQuery[query.FetchMessage, *core.Response](registrar, query.NewFetchQuery(client), runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return registerQuery[query.CheckEmailReservedMessage, query.EmailReservation](registrar, query.NewCheckEmailReservedQuery(client), runnerOpts...)
		},
	)
}

// RegisterFlowHandlers exposes every login flow action on the dispatcher.
func RegisterFlowHandlers(registrar *Registrar, flow LoginFlow, runnerOpts ...runner.Option) (Subscriptions, error) {
	return registerAll(
		func() (commanddispatcher.Subscription, error) {
			return registerCommand[command.SubmitEmailMessage](registrar, command.NewSubmitEmailCommand(flow), runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return registerCommand[command.SubmitPasswordMessage](registrar, command.NewSubmitPasswordCommand(flow), runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return registerCommand[command.SubmitRegistrationMessage](registrar, command.NewSubmitRegistrationCommand(flow), runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return registerCommand[command.ForgotPasswordMessage](registrar, command.NewForgotPasswordCommand(flow), runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return registerCommand[command.RetryPasswordRecoveryMessage](registrar, command.NewRetryPasswordRecoveryCommand(flow), runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return registerCommand[command.GoBackMessage](registrar, command.NewGoBackCommand(flow), runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return registerCommand[command.CompleteAppleSignInMessage](registrar, command.NewCompleteAppleSignInCommand(flow), runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return registerQuery[query.LoginSnapshotMessage, login.Snapshot](registrar, query.NewLoginSnapshotQuery(flow), runnerOpts...)
		},
	)
}

// registerAll runs each registration in order and unsubscribes everything
// already registered when one fails.
func registerAll(steps ...func() (commanddispatcher.Subscription, error)) (Subscriptions, error) {
	subs := make(Subscriptions, 0, len(steps))
	for _, step := range steps {
		sub, err := step()
		if err != nil {
			subs.Unsubscribe()
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

// Perform dispatches a mutation and returns the stored response.
func Perform(ctx context.Context, op core.Operation) (*core.Response, error) {
	collector := gocmd.NewResult[*core.Response]()
	if err := Dispatch(gocmd.ContextWithResult(ctx, collector), command.PerformMessage{Operation: op}); err != nil {
		return nil, err
	}
	resp, _ := collector.Load()
	return resp, nil
}

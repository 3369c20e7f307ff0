package heartbeat

import (
	"context"

	"github.com/heartbeatlive/go-heartbeat/command"
	"github.com/heartbeatlive/go-heartbeat/core"
	"github.com/heartbeatlive/go-heartbeat/login"
	"github.com/heartbeatlive/go-heartbeat/query"
)

// CommandQueryClient is the part of Client the handlers need.
type CommandQueryClient interface {
	query.Fetcher
	command.Performer
}

type Commands struct {
	Perform               *command.PerformCommand
	SubmitEmail           *command.SubmitEmailCommand
	SubmitPassword        *command.SubmitPasswordCommand
	SubmitRegistration    *command.SubmitRegistrationCommand
	ForgotPassword        *command.ForgotPasswordCommand
	RetryPasswordRecovery *command.RetryPasswordRecoveryCommand
	GoBack                *command.GoBackCommand
	CompleteAppleSignIn   *command.CompleteAppleSignInCommand
}

type Queries struct {
	Fetch              *query.FetchQuery
	CheckEmailReserved *query.CheckEmailReservedQuery
	LoginSnapshot      *query.LoginSnapshotQuery
}

// Facade groups the go-command handlers of a client and, optionally, a
// login flow.
type Facade struct {
	client   CommandQueryClient
	flow     *login.Flow
	commands Commands
	queries  Queries
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	flow *login.Flow
}

// WithLoginFlow exposes the flow actions and snapshot through the facade.
func WithLoginFlow(flow *login.Flow) FacadeOption {
	return func(options *facadeOptions) {
		options.flow = flow
	}
}

func NewFacade(client CommandQueryClient, opts ...FacadeOption) (*Facade, error) {
	if client == nil {
		return nil, core.NewBadInputError("heartbeat: client is required", nil)
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}

	facade := &Facade{client: client, flow: cfg.flow}
	facade.commands = Commands{Perform: command.NewPerformCommand(client)}
	facade.queries = Queries{
		Fetch:              query.NewFetchQuery(client),
		CheckEmailReserved: query.NewCheckEmailReservedQuery(client),
	}
	if flow := cfg.flow; flow != nil {
		facade.commands.SubmitEmail = command.NewSubmitEmailCommand(flow)
		facade.commands.SubmitPassword = command.NewSubmitPasswordCommand(flow)
		facade.commands.SubmitRegistration = command.NewSubmitRegistrationCommand(flow)
		facade.commands.ForgotPassword = command.NewForgotPasswordCommand(flow)
		facade.commands.RetryPasswordRecovery = command.NewRetryPasswordRecoveryCommand(flow)
		facade.commands.GoBack = command.NewGoBackCommand(flow)
		facade.commands.CompleteAppleSignIn = command.NewCompleteAppleSignInCommand(flow)
		facade.queries.LoginSnapshot = query.NewLoginSnapshotQuery(flow)
	}
	return facade, nil
}

// NewLoginFlow wires a login flow to the client, its identity provider and a
// reconciler built from the client configuration.
func (c *Client) NewLoginFlow(opts ...login.Option) (*login.Flow, error) {
	provider := c.Identity()
	if provider == nil {
		return nil, core.NewBadInputError("heartbeat: identity provider is required for the login flow", nil)
	}
	reconciler, err := c.NewReconciler()
	if err != nil {
		return nil, err
	}
	return login.NewFlow(login.Dependencies{
		Client:     c,
		Identity:   provider,
		Reconciler: reconciler,
		Logger:     c.logger,
	}, opts...)
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Client() CommandQueryClient {
	if f == nil {
		return nil
	}
	return f.client
}

func (f *Facade) Flow() *login.Flow {
	if f == nil {
		return nil
	}
	return f.flow
}

// Snapshot returns the login snapshot, or false when no flow is attached.
func (f *Facade) Snapshot(ctx context.Context) (login.Snapshot, bool) {
	if f == nil || f.queries.LoginSnapshot == nil {
		return login.Snapshot{}, false
	}
	snapshot, err := f.queries.LoginSnapshot.Query(ctx, query.LoginSnapshotMessage{})
	if err != nil {
		return login.Snapshot{}, false
	}
	return snapshot, true
}

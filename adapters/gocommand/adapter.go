// Package gocommand exposes the client and the login flow as go-command
// handlers on the package level dispatcher.
package gocommand

import (
	"context"
	"fmt"

	"github.com/goliatone/go-command"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
)

// Registrar records each handler in a go-command registry and subscribes it
// on the dispatcher. A failed registration leaves no subscription behind.
type Registrar struct {
	registry *command.Registry
}

func NewRegistrar(registry *command.Registry) *Registrar {
	if registry == nil {
		registry = command.NewRegistry()
	}
	return &Registrar{registry: registry}
}

func (r *Registrar) Registry() *command.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

func (r *Registrar) ready() error {
	if r == nil || r.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return nil
}

func registerCommand[T any](r *Registrar, cmd command.Commander[T], runnerOpts ...runner.Option) (commanddispatcher.Subscription, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	if cmd == nil {
		return nil, fmt.Errorf("gocommand: command is required")
	}
	return r.subscribe(cmd, commanddispatcher.SubscribeCommand(cmd, runnerOpts...))
}

func registerQuery[T any, R any](r *Registrar, qry command.Querier[T, R], runnerOpts ...runner.Option) (commanddispatcher.Subscription, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	if qry == nil {
		return nil, fmt.Errorf("gocommand: query is required")
	}
	return r.subscribe(qry, commanddispatcher.SubscribeQuery(qry, runnerOpts...))
}

func (r *Registrar) subscribe(handler any, subscription commanddispatcher.Subscription) (commanddispatcher.Subscription, error) {
	if err := r.registry.RegisterCommand(handler); err != nil {
		if subscription != nil {
			subscription.Unsubscribe()
		}
		return nil, err
	}
	return subscription, nil
}

// Dispatch sends msg to the command subscribed for its type.
func Dispatch[T any](ctx context.Context, msg T) error {
	return commanddispatcher.Dispatch(ctx, msg)
}

// Query runs the query subscribed for msg's type.
func Query[T any, R any](ctx context.Context, msg T) (R, error) {
	return commanddispatcher.Query[T, R](ctx, msg)
}

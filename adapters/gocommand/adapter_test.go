package gocommand

import (
	"context"
	"errors"
	"testing"

	"github.com/goliatone/go-command"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
)

type releaseFunc func()

func (f releaseFunc) Unsubscribe() { f() }

type pingMessage struct {
	ID string
}

func (pingMessage) Type() string { return "heartbeat.test.ping" }

type echoMessage struct {
	Value string
}

func (echoMessage) Type() string { return "heartbeat.test.echo" }

func TestRegistrar_CommandIsRegisteredAndDispatched(t *testing.T) {
	registrar := NewRegistrar(nil)
	var received []string

	cmd := command.CommandFunc[pingMessage](func(_ context.Context, msg pingMessage) error {
		received = append(received, msg.ID)
		return nil
	})
	sub, err := registerCommand[pingMessage](registrar, cmd)
	if err != nil {
		t.Fatalf("register command: %v", err)
	}
	defer sub.Unsubscribe()

	if err := Dispatch(context.Background(), pingMessage{ID: "m1"}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(received) != 1 || received[0] != "m1" {
		t.Fatalf("expected one delivery of m1, got %v", received)
	}
	if registrar.Registry() == nil {
		t.Fatalf("expected default registry")
	}
}

func TestRegistrar_QueryReturnsResult(t *testing.T) {
	registrar := NewRegistrar(command.NewRegistry())
	qry := command.QueryFunc[echoMessage, string](func(_ context.Context, msg echoMessage) (string, error) {
		return "echo:" + msg.Value, nil
	})
	sub, err := registerQuery[echoMessage, string](registrar, qry)
	if err != nil {
		t.Fatalf("register query: %v", err)
	}
	defer sub.Unsubscribe()

	got, err := Query[echoMessage, string](context.Background(), echoMessage{Value: "hi"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if got != "echo:hi" {
		t.Fatalf("expected echo:hi, got %q", got)
	}
}

func TestRegistrar_RequiresConfiguration(t *testing.T) {
	var registrar *Registrar
	cmd := command.CommandFunc[pingMessage](func(context.Context, pingMessage) error { return nil })
	if _, err := registerCommand[pingMessage](registrar, cmd); err == nil {
		t.Fatalf("expected nil registrar to fail")
	}
	if _, err := registerCommand[pingMessage](NewRegistrar(nil), nil); err == nil {
		t.Fatalf("expected nil command to fail")
	}
}

func TestRegisterAll_UnsubscribesOnFailure(t *testing.T) {
	unsubscribed := 0
	first := releaseFunc(func() { unsubscribed++ })
	_, err := registerAll(
		func() (commanddispatcher.Subscription, error) { return first, nil },
		func() (commanddispatcher.Subscription, error) { return nil, errors.New("boom") },
	)
	if err == nil {
		t.Fatalf("expected registration failure")
	}
	if unsubscribed != 1 {
		t.Fatalf("expected earlier subscription to be released, got %d", unsubscribed)
	}
}

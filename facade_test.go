package heartbeat

import (
	"context"
	"testing"

	"github.com/heartbeatlive/go-heartbeat/command"
	"github.com/heartbeatlive/go-heartbeat/core"
	"github.com/heartbeatlive/go-heartbeat/identity"
	"github.com/heartbeatlive/go-heartbeat/login"
	"github.com/heartbeatlive/go-heartbeat/operations"
	"github.com/heartbeatlive/go-heartbeat/query"
	"github.com/heartbeatlive/go-heartbeat/reconcile"
)

type stubFacadeClient struct {
	fetched   []string
	performed []string
	body      string
}

func (c *stubFacadeClient) Fetch(_ context.Context, op core.Operation, _ ...core.CachePolicy) (*core.Response, error) {
	c.fetched = append(c.fetched, op.Name)
	return core.DecodeResponse([]byte(c.body))
}

func (c *stubFacadeClient) Perform(_ context.Context, op core.Operation) (*core.Response, error) {
	c.performed = append(c.performed, op.Name)
	return core.DecodeResponse([]byte(`{"data":{"updateProfileDisplayName":{"__typename":"Profile","id":"1","displayName":"Ann"}}}`))
}

func TestNewFacade_WiresClientHandlers(t *testing.T) {
	client := &stubFacadeClient{body: `{"data":{"checkEmailReserved":false}}`}
	facade, err := NewFacade(client)
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}

	commands := facade.Commands()
	if commands.Perform == nil {
		t.Fatalf("expected perform command to be wired")
	}
	if commands.SubmitEmail != nil {
		t.Fatalf("expected flow commands to stay nil without a flow")
	}
	queries := facade.Queries()
	if queries.Fetch == nil || queries.CheckEmailReserved == nil {
		t.Fatalf("expected client queries to be wired")
	}
	if _, ok := facade.Snapshot(context.Background()); ok {
		t.Fatalf("expected no snapshot without a flow")
	}

	reservation, err := queries.CheckEmailReserved.Query(context.Background(), query.CheckEmailReservedMessage{Email: "a@b.com"})
	if err != nil {
		t.Fatalf("check email: %v", err)
	}
	if reservation.Reserved {
		t.Fatalf("expected unreserved email")
	}
	if err := commands.Perform.Execute(context.Background(), command.PerformMessage{
		Operation: operations.UpdateProfileDisplayName("Ann"),
	}); err != nil {
		t.Fatalf("perform command: %v", err)
	}
	if len(client.performed) != 1 || client.performed[0] != "UpdateProfileDisplayName" {
		t.Fatalf("unexpected perform delegation %v", client.performed)
	}
}

func TestNewFacade_WiresFlowHandlers(t *testing.T) {
	client := &stubFacadeClient{body: `{"data":{"checkEmailReserved":true}}`}
	reconciler, err := reconcile.New(client)
	if err != nil {
		t.Fatalf("new reconciler: %v", err)
	}
	flow, err := login.NewFlow(login.Dependencies{
		Client:     client,
		Identity:   identity.NewStaticProvider(),
		Reconciler: reconciler,
	})
	if err != nil {
		t.Fatalf("new flow: %v", err)
	}
	t.Cleanup(flow.Close)

	facade, err := NewFacade(client, WithLoginFlow(flow))
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}
	if facade.Flow() != flow {
		t.Fatalf("expected flow to be retained")
	}
	if err := facade.Commands().SubmitEmail.Execute(context.Background(), command.SubmitEmailMessage{Email: "a@b.com"}); err != nil {
		t.Fatalf("submit email: %v", err)
	}
	snapshot, ok := facade.Snapshot(context.Background())
	if !ok {
		t.Fatalf("expected snapshot from flow")
	}
	if snapshot.State != (login.PasswordPrompt{Email: "a@b.com"}) {
		t.Fatalf("unexpected state %#v", snapshot.State)
	}
	if err := facade.Commands().GoBack.Execute(context.Background(), command.GoBackMessage{}); err != nil {
		t.Fatalf("go back: %v", err)
	}
	if _, isEmail := flow.State().(login.EmailPrompt); !isEmail {
		t.Fatalf("expected email prompt after going back, got %#v", flow.State())
	}
}

func TestNewFacade_RequiresClient(t *testing.T) {
	facade, err := NewFacade(nil)
	if err == nil {
		t.Fatalf("expected nil client error")
	}
	if facade != nil {
		t.Fatalf("expected nil facade on error")
	}
}

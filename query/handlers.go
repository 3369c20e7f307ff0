package query

import (
	"context"
	"strings"

	"github.com/heartbeatlive/go-heartbeat/core"
	"github.com/heartbeatlive/go-heartbeat/login"
	"github.com/heartbeatlive/go-heartbeat/operations"
)

type Fetcher interface {
	Fetch(ctx context.Context, op core.Operation, policy ...core.CachePolicy) (*core.Response, error)
}

type SnapshotReader interface {
	Snapshot() login.Snapshot
}

type FetchQuery struct {
	fetcher Fetcher
}

func NewFetchQuery(fetcher Fetcher) *FetchQuery {
	return &FetchQuery{fetcher: fetcher}
}

func (q *FetchQuery) Query(ctx context.Context, msg FetchMessage) (*core.Response, error) {
	if q == nil || q.fetcher == nil {
		return nil, queryDependencyError("query: fetcher is required")
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return q.fetcher.Fetch(ctx, msg.Operation, msg.Policy)
}

type EmailReservation struct {
	Email    string
	Reserved bool
}

type CheckEmailReservedQuery struct {
	fetcher Fetcher
}

func NewCheckEmailReservedQuery(fetcher Fetcher) *CheckEmailReservedQuery {
	return &CheckEmailReservedQuery{fetcher: fetcher}
}

// Query always goes to the network; reservation status is not cached.
func (q *CheckEmailReservedQuery) Query(ctx context.Context, msg CheckEmailReservedMessage) (EmailReservation, error) {
	if q == nil || q.fetcher == nil {
		return EmailReservation{}, queryDependencyError("query: fetcher is required")
	}
	if err := msg.Validate(); err != nil {
		return EmailReservation{}, err
	}
	email := strings.TrimSpace(msg.Email)
	resp, err := q.fetcher.Fetch(ctx, operations.CheckEmailReserved(email), core.FetchIgnoringCacheCompletely)
	if err != nil {
		return EmailReservation{}, err
	}
	reserved, ok := operations.EmailReserved(resp)
	if !ok {
		metadata := map[string]any{"field": operations.FieldCheckEmailReserved}
		if len(resp.Errors) > 0 {
			metadata["graphql_error"] = resp.Errors[0].Error()
		}
		return EmailReservation{}, core.NewParseError(nil, "query: email reservation missing from response", metadata)
	}
	return EmailReservation{Email: email, Reserved: reserved}, nil
}

type LoginSnapshotQuery struct {
	reader SnapshotReader
}

func NewLoginSnapshotQuery(reader SnapshotReader) *LoginSnapshotQuery {
	return &LoginSnapshotQuery{reader: reader}
}

func (q *LoginSnapshotQuery) Query(_ context.Context, _ LoginSnapshotMessage) (login.Snapshot, error) {
	if q == nil || q.reader == nil {
		return login.Snapshot{}, queryDependencyError("query: login snapshot reader is required")
	}
	return q.reader.Snapshot(), nil
}

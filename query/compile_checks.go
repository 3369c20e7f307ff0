package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/heartbeatlive/go-heartbeat/core"
	"github.com/heartbeatlive/go-heartbeat/login"
)

var (
	_ gocmd.Querier[FetchMessage, *core.Response]                = (*FetchQuery)(nil)
	_ gocmd.Querier[CheckEmailReservedMessage, EmailReservation] = (*CheckEmailReservedQuery)(nil)
	_ gocmd.Querier[LoginSnapshotMessage, login.Snapshot]        = (*LoginSnapshotQuery)(nil)

	_ SnapshotReader = (*login.Flow)(nil)
)

package query

import (
	"strings"

	"github.com/heartbeatlive/go-heartbeat/core"
)

const (
	TypeFetch              = "heartbeat.query.fetch"
	TypeCheckEmailReserved = "heartbeat.query.check_email_reserved"
	TypeLoginSnapshot      = "heartbeat.query.login.snapshot"
)

type FetchMessage struct {
	Operation core.Operation
	Policy    core.CachePolicy
}

func (FetchMessage) Type() string { return TypeFetch }

func (m FetchMessage) Validate() error {
	if strings.TrimSpace(m.Operation.Name) == "" {
		return queryValidationError("operation.name", "operation name is required")
	}
	if strings.TrimSpace(m.Operation.Document) == "" {
		return queryValidationError("operation.document", "operation document is required")
	}
	if m.Operation.IsMutation() {
		return queryValidationError("operation.kind", "fetch requires a query")
	}
	return nil
}

type CheckEmailReservedMessage struct {
	Email string
}

func (CheckEmailReservedMessage) Type() string { return TypeCheckEmailReserved }

func (m CheckEmailReservedMessage) Validate() error {
	if strings.TrimSpace(m.Email) == "" {
		return queryValidationError("email", "email is required")
	}
	return nil
}

type LoginSnapshotMessage struct{}

func (LoginSnapshotMessage) Type() string { return TypeLoginSnapshot }

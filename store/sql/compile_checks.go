package sqlstore

import "github.com/heartbeatlive/go-heartbeat/core"

var _ core.RecordPersister = (*RecordPersister)(nil)

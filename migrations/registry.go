// Package migrations locates the embedded SQL migrations for the persisted
// cache record table.
package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"strings"

	heartbeat "github.com/heartbeatlive/go-heartbeat"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

const rootPath = "data/sql/migrations"

// Source is the migration set for one dialect.
type Source struct {
	Dialect string
	Path    string
	FS      fs.FS
}

// RegisterFunc receives the migration files for the selected dialect.
type RegisterFunc func(ctx context.Context, fsys fs.FS) error

// ForDialect resolves the migrations for dialect. Postgres files live at the
// root of data/sql/migrations and sqlite files in its sqlite directory. An
// optional root replaces the embedded files.
func ForDialect(dialect string, root ...fs.FS) (Source, error) {
	fsys := heartbeat.GetMigrationsFS()
	if len(root) > 0 && root[0] != nil {
		fsys = root[0]
	}

	path := rootPath
	switch strings.ToLower(strings.TrimSpace(dialect)) {
	case DialectPostgres:
		dialect = DialectPostgres
	case DialectSQLite:
		dialect = DialectSQLite
		path = rootPath + "/sqlite"
	default:
		return Source{}, fmt.Errorf("migrations: unsupported dialect %q", dialect)
	}

	sub, err := fs.Sub(fsys, path)
	if err != nil {
		return Source{}, fmt.Errorf("migrations: resolve %s: %w", path, err)
	}
	matches, err := fs.Glob(sub, "*.up.sql")
	if err != nil {
		return Source{}, fmt.Errorf("migrations: glob %s: %w", path, err)
	}
	if len(matches) == 0 {
		return Source{}, fmt.Errorf("migrations: %s has no *.up.sql files", path)
	}
	return Source{Dialect: dialect, Path: path, FS: sub}, nil
}

// Register hands the migrations for dialect to register.
func Register(ctx context.Context, dialect string, register RegisterFunc) (Source, error) {
	if register == nil {
		return Source{}, fmt.Errorf("migrations: register function is required")
	}
	source, err := ForDialect(dialect)
	if err != nil {
		return Source{}, err
	}
	if err := register(ctx, source.FS); err != nil {
		return source, fmt.Errorf("migrations: register %s (%s): %w", source.Dialect, source.Path, err)
	}
	return source, nil
}

package db

import (
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/codecommand/codecommand/internal/db/dialect"
)

// Options selects and parameterizes the storage backend.
type Options struct {
	Driver   string // "sqlite" or "postgres"
	Path     string // sqlite file path
	DSN      string // postgres connection string
	MaxConns int    // postgres only
	MinConns int    // postgres only
}

// Open builds the read/write Pool for the configured backend.
//
// SQLite gets a dedicated single-connection writer plus a read-only pool;
// Postgres uses one natively-pooled connection set for both roles.
func Open(opts Options) (*Pool, error) {
	switch strings.ToLower(opts.Driver) {
	case "", "sqlite":
		writerRaw, err := OpenSQLite(opts.Path)
		if err != nil {
			return nil, err
		}
		readerRaw, err := OpenSQLiteReader(opts.Path)
		if err != nil {
			_ = writerRaw.Close()
			return nil, err
		}
		writer := sqlx.NewDb(writerRaw, dialect.SQLite3)
		reader := sqlx.NewDb(readerRaw, dialect.SQLite3)
		return NewPool(writer, reader), nil

	case "postgres":
		raw, err := OpenPostgres(opts.DSN, opts.MaxConns, opts.MinConns)
		if err != nil {
			return nil, err
		}
		conn := sqlx.NewDb(raw, dialect.PGX)
		return NewPool(conn, conn), nil

	default:
		return nil, fmt.Errorf("unsupported database driver: %s", opts.Driver)
	}
}

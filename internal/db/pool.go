package db

import "github.com/jmoiron/sqlx"

// Pool pairs a write connection with a read connection pool.
//
// SQLite runs in WAL mode: many readers may proceed concurrently while all
// writes funnel through a single connection (MaxOpenConns=1), which avoids
// SQLITE_BUSY under write contention. PostgreSQL pools connections natively,
// so Writer and Reader share one *sqlx.DB there.
type Pool struct {
	writer *sqlx.DB
	reader *sqlx.DB
}

// NewPool creates a Pool from separate writer and reader connections.
func NewPool(writer, reader *sqlx.DB) *Pool {
	return &Pool{writer: writer, reader: reader}
}

// Writer returns the pool used for INSERT, UPDATE, DELETE, and transactions.
func (p *Pool) Writer() *sqlx.DB { return p.writer }

// Reader returns the pool used for SELECT queries. Under SQLite these are
// read-only connections that see consistent WAL snapshots.
func (p *Pool) Reader() *sqlx.DB { return p.reader }

// DriverName returns the sqlx driver name of the underlying connections.
func (p *Pool) DriverName() string { return p.writer.DriverName() }

// Close closes both pools, tolerating the shared-connection Postgres case.
func (p *Pool) Close() error {
	wErr := p.writer.Close()
	if p.reader != p.writer {
		if rErr := p.reader.Close(); rErr != nil && wErr == nil {
			return rErr
		}
	}
	return wErr
}

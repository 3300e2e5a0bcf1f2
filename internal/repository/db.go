package repository

import (
	"context"
	"database/sql"
)

// scanner covers *sql.Row and *sql.Rows, execer covers *sql.DB and *sql.Tx.
type scanner interface {
	Scan(dest ...any) error
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

package postgres

import (
	"context"
	"database/sql"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
)

// DB exposes a pgx pool through database/sql so repositories can be driven
// by sqlmock in tests.
type DB struct {
	SQL *sql.DB
}

func New(pool *pgxpool.Pool) *DB {
	return &DB{SQL: stdlib.OpenDBFromPool(pool)}
}

func NewFromSQL(db *sql.DB) *DB {
	return &DB{SQL: db}
}

func (db *DB) Ping(ctx context.Context) error {
	return db.SQL.PingContext(ctx)
}

// Close releases the database/sql handle. The underlying pool is owned and
// closed by the caller that created it.
func (db *DB) Close() error {
	if db.SQL != nil {
		return db.SQL.Close()
	}
	return nil
}

package postgres

import (
	"context"
	_ "embed"
)

//go:embed schema.sql
var Schema string

// ApplySchema creates the tables the gate reads from. Statements are
// idempotent.
func (db *DB) ApplySchema(ctx context.Context) error {
	if _, err := db.SQL.ExecContext(ctx, Schema); err != nil {
		return errFailedApplySchema(err)
	}
	return nil
}

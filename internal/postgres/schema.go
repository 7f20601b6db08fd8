package postgres

import (
	"context"
	_ "embed"
)

//go:embed schema.sql
var schema string

// Migrate creates the finance tables when they do not exist
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return dbError(err, "failed to apply database schema")
	}
	db.logger.Infow("database schema applied")
	return nil
}

// Schema returns the DDL applied by Migrate
func Schema() string {
	return schema
}

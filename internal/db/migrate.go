package db

import (
	"context"
	_ "embed"
	"fmt"
)

//go:embed migrations/001_schema.sql
var schemaSQL string

// Schema returns the DDL the services expect.
func Schema() string {
	return schemaSQL
}

// Migrate applies the schema. Every statement is idempotent.
func Migrate(ctx context.Context, q Querier) error {
	if _, err := q.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

package postgres

import (
	"context"
	_ "embed"
	"fmt"

	"stockledger/pkg/logger"
)

//go:embed schema.sql
var schemaSQL string

// Migrate applies the embedded schema. It is safe to run on every start.
func Migrate(ctx context.Context, pool *Pool) error {
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	logger.Info(ctx, "database schema applied")
	return nil
}

package database

import (
	"context"
	"fmt"

	"entgo.io/ent/dialect/sql"
)

// CreateGINIndexes creates full-text search GIN indexes for PostgreSQL.
// This enables searching historical pipeline runs by their original
// natural-language question from the admin/debug surface.
func CreateGINIndexes(ctx context.Context, driver *sql.Driver) error {
	db := driver.DB()

	_, err := db.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS idx_pipeline_runs_user_query_gin
		ON pipeline_runs USING gin(to_tsvector('english', user_query))`)
	if err != nil {
		return fmt.Errorf("failed to create user_query GIN index: %w", err)
	}

	return nil
}

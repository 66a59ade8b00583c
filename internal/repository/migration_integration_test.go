//go:build integration

package repository

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	_ "github.com/lib/pq"

	"github.com/tracklink/tracklink/internal/testutil"
)

// ============================================================================
// Migration Integration Tests
//
// These run the migration SQL through database/sql with the pq driver, the
// same path a plain `psql -f` deploy or an external migration runner takes,
// independent of the pgx pool the repositories use.
// ============================================================================

func TestIntegrationMigration_ApplyAllTables(t *testing.T) {
	ctx, db := newMigrationTestEnv(t)

	tables := []string{
		"artists",
		"releases",
		"landing_events",
	}

	for _, table := range tables {
		t.Run(table, func(t *testing.T) {
			exists, err := tableExists(ctx, db, table)
			if err != nil {
				t.Fatalf("tableExists failed: %v", err)
			}
			if !exists {
				t.Errorf("Table %q should exist after migrations", table)
			}
		})
	}
}

func TestIntegrationMigration_EventsTableSchema(t *testing.T) {
	ctx, db := newMigrationTestEnv(t)

	expectedColumns := []string{
		"id",
		"event_id",
		"event_name",
		"request_path",
		"attribution",
		"context",
		"route",
		"identity",
		"fbp",
		"fbc",
		"forward_status",
		"forward_error",
		"created_at",
	}

	for _, column := range expectedColumns {
		t.Run(column, func(t *testing.T) {
			exists, err := columnExists(ctx, db, "landing_events", column)
			if err != nil {
				t.Fatalf("columnExists failed: %v", err)
			}
			if !exists {
				t.Errorf("Column %q should exist on landing_events", column)
			}
		})
	}
}

func TestIntegrationMigration_Reapply(t *testing.T) {
	ctx, db := newMigrationTestEnv(t)

	// migrations are IF NOT EXISTS guarded; applying again must not fail
	if err := applyMigrations(ctx, db); err != nil {
		t.Fatalf("reapply migrations: %v", err)
	}
}

func tableExists(ctx context.Context, db *sql.DB, table string) (bool, error) {
	var exists bool
	err := db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM information_schema.tables
			WHERE table_schema = 'public' AND table_name = $1
		)
	`, table).Scan(&exists)
	return exists, err
}

func columnExists(ctx context.Context, db *sql.DB, table, column string) (bool, error) {
	var exists bool
	err := db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM information_schema.columns
			WHERE table_schema = 'public' AND table_name = $1 AND column_name = $2
		)
	`, table, column).Scan(&exists)
	return exists, err
}

func applyMigrations(ctx context.Context, db *sql.DB) error {
	root, err := testutil.ProjectRoot()
	if err != nil {
		return err
	}
	for _, name := range []string{"000001_releases.up.sql", "000002_events.up.sql"} {
		script, err := os.ReadFile(filepath.Join(root, "migrations", name))
		if err != nil {
			return err
		}
		if _, err := db.ExecContext(ctx, string(script)); err != nil {
			return err
		}
	}
	return nil
}

func newMigrationTestEnv(t *testing.T) (context.Context, *sql.DB) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration tests in short mode")
	}

	ctx := context.Background()
	dbURL := testutil.RequireEnv(t, "DATABASE_URL")

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})

	if err := db.PingContext(ctx); err != nil {
		t.Fatalf("ping db: %v", err)
	}

	if err := applyMigrations(ctx, db); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}

	return ctx, db
}

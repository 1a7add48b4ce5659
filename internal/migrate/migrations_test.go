package migrate

import (
	"context"
	"path/filepath"
	"testing"

	"slotline/internal/db"
)

func TestMigrateJournalsEachMigration(t *testing.T) {
	ctx := context.Background()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer conn.Close()

	if err := Migrate(ctx, conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	v, err := Version(ctx, conn)
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if v != 1 {
		t.Fatalf("schema version = %d, want 1", v)
	}

	var name, appliedAt string
	row := conn.QueryRowContext(ctx, `SELECT name, applied_at FROM schema_migrations WHERE version=1`)
	if err := row.Scan(&name, &appliedAt); err != nil {
		t.Fatalf("journal row: %v", err)
	}
	if filepath.Ext(name) != ".sql" {
		t.Fatalf("journaled name = %q, want a .sql filename", name)
	}
	if appliedAt == "" {
		t.Fatal("journal row missing applied_at")
	}
}

func TestMigrateIsRerunSafe(t *testing.T) {
	ctx := context.Background()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer conn.Close()

	if err := Migrate(ctx, conn); err != nil {
		t.Fatalf("first migrate: %v", err)
	}
	if err := Migrate(ctx, conn); err != nil {
		t.Fatalf("second migrate: %v", err)
	}

	var rows int
	if err := conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations`).Scan(&rows); err != nil {
		t.Fatalf("count journal: %v", err)
	}
	if rows != 1 {
		t.Fatalf("journal rows = %d, want 1", rows)
	}
}

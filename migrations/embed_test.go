package migrations

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/nerrad567/keymux/internal/infrastructure/config"
	"github.com/nerrad567/keymux/internal/infrastructure/database"
)

func TestEmbeddedMigrationsApply(t *testing.T) {
	db, err := database.Open(config.DatabaseConfig{
		Path:        filepath.Join(t.TempDir(), "keymux.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer db.Close() //nolint:errcheck // test cleanup

	ctx := context.Background()
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	var count int
	if err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='device_sessions'",
	).Scan(&count); err != nil {
		t.Fatalf("query error: %v", err)
	}
	if count != 1 {
		t.Error("device_sessions table not created")
	}

	if err := db.MigrateDown(ctx, migrationsFS); err != nil {
		t.Fatalf("MigrateDown() error = %v", err)
	}
}

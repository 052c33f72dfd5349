package database

import (
	"context"
	"testing"
	"testing/fstest"
)

func testMigrations() fstest.MapFS {
	return fstest.MapFS{
		"20260301_090000_create_widgets.up.sql":   {Data: []byte("CREATE TABLE widgets (id INTEGER PRIMARY KEY, name TEXT NOT NULL);")},
		"20260301_090000_create_widgets.down.sql": {Data: []byte("DROP TABLE widgets;")},
		"20260302_100000_add_gadgets.up.sql":      {Data: []byte("CREATE TABLE gadgets (id INTEGER PRIMARY KEY);")},
		"README.md":                               {Data: []byte("not a migration")},
	}
}

func tableExists(t *testing.T, db *DB, name string) bool {
	t.Helper()
	var count int
	err := db.QueryRowContext(context.Background(),
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", name,
	).Scan(&count)
	if err != nil {
		t.Fatalf("query sqlite_master: %v", err)
	}
	return count == 1
}

func TestMigrateFS(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	fsys := testMigrations()

	_, pending, err := db.MigrationStatus(ctx, fsys)
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	if len(pending) != 2 || pending[0].Name != "create_widgets" {
		t.Fatalf("pending = %+v, want create_widgets then add_gadgets", pending)
	}

	if err := db.MigrateFS(ctx, fsys); err != nil {
		t.Fatalf("MigrateFS() error = %v", err)
	}
	if !tableExists(t, db, "widgets") || !tableExists(t, db, "gadgets") {
		t.Fatal("migrated tables missing")
	}

	applied, pending, err := db.MigrationStatus(ctx, fsys)
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	if len(applied) != 2 || len(pending) != 0 {
		t.Errorf("applied = %d, pending = %d; want 2, 0", len(applied), len(pending))
	}

	if err := db.MigrateFS(ctx, fsys); err != nil {
		t.Fatalf("second MigrateFS() error = %v", err)
	}
}

func TestMigrateDown(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	fsys := testMigrations()
	delete(fsys, "20260302_100000_add_gadgets.up.sql")

	if err := db.MigrateFS(ctx, fsys); err != nil {
		t.Fatalf("MigrateFS() error = %v", err)
	}
	if err := db.MigrateDown(ctx, fsys); err != nil {
		t.Fatalf("MigrateDown() error = %v", err)
	}
	if tableExists(t, db, "widgets") {
		t.Error("widgets should have been dropped")
	}

	applied, _, err := db.MigrationStatus(ctx, fsys)
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	if len(applied) != 0 {
		t.Errorf("applied = %d after rollback, want 0", len(applied))
	}
}

func TestMigrateFS_NoMigrations(t *testing.T) {
	db := openTestDB(t)
	if err := db.MigrateFS(context.Background(), nil); err != nil {
		t.Fatalf("MigrateFS(nil) error = %v", err)
	}
	if err := db.MigrateFS(context.Background(), fstest.MapFS{}); err != nil {
		t.Fatalf("MigrateFS(empty) error = %v", err)
	}
}

func TestMigrateFS_BrokenMigrationStops(t *testing.T) {
	db := openTestDB(t)
	fsys := testMigrations()
	fsys["20260302_100000_add_gadgets.up.sql"] = &fstest.MapFile{Data: []byte("CREATE TABLE (")}

	if err := db.MigrateFS(context.Background(), fsys); err == nil {
		t.Fatal("MigrateFS() expected error")
	}
	if !tableExists(t, db, "widgets") {
		t.Error("earlier migration should stay committed")
	}
}

func TestLoadMigrations_DownWithoutUp(t *testing.T) {
	fsys := fstest.MapFS{
		"20260301_090000_orphan.down.sql": {Data: []byte("DROP TABLE x;")},
	}
	if _, err := loadMigrations(fsys); err == nil {
		t.Error("loadMigrations() expected error for down file without up file")
	}
}

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		name        string
		filename    string
		wantVersion string
		wantIsUp    bool
		wantOk      bool
	}{
		{"valid up", "20260118_120000_create_device_sessions.up.sql", "20260118_120000", true, true},
		{"valid down", "20260118_120000_create_device_sessions.down.sql", "20260118_120000", false, true},
		{"not sql", "readme.txt", "", false, false},
		{"missing direction", "20260118_120000_create.sql", "", false, false},
		{"invalid format", "invalid.up.sql", "", false, false},
		{"short version", "2026_12_x.up.sql", "", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			version, isUp, ok := parseMigrationFilename(tt.filename)
			if ok != tt.wantOk {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOk)
			}
			if ok && (version != tt.wantVersion || isUp != tt.wantIsUp) {
				t.Errorf("got (%q, %v), want (%q, %v)", version, isUp, tt.wantVersion, tt.wantIsUp)
			}
		})
	}
}

func TestMigrationName(t *testing.T) {
	tests := map[string]string{
		"20260118_120000_create_device_sessions.up.sql": "create_device_sessions",
		"20260118_120000_initial.down.sql":              "initial",
	}
	for in, want := range tests {
		if got := migrationName(in); got != want {
			t.Errorf("migrationName(%q) = %q, want %q", in, got, want)
		}
	}
}

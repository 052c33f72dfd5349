package device

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const testSessionSchema = `
CREATE TABLE device_sessions (
	id TEXT PRIMARY KEY,
	path TEXT NOT NULL,
	name TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	error TEXT NOT NULL DEFAULT '',
	started_at TEXT NOT NULL,
	ended_at TEXT
)`

func openSessionDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", "file:"+filepath.Join(t.TempDir(), "sessions.db"))
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if _, err := db.Exec(testSessionSchema); err != nil {
		t.Fatalf("creating schema: %v", err)
	}
	return db
}

func TestSQLiteSessionRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLiteSessionRepository(openSessionDB(t))

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"s1", "s2", "s3"} {
		err := repo.Start(ctx, Session{
			ID:        id,
			Path:      "/dev/input/event1",
			Name:      "Test Keyboard",
			StartedAt: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("Start(%s) error = %v", id, err)
		}
	}

	if err := repo.Finish(ctx, "s2", SessionFailed, "read failed", base.Add(10*time.Minute)); err != nil {
		t.Fatalf("Finish() error = %v", err)
	}

	sessions, err := repo.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(sessions) != 3 {
		t.Fatalf("len(Recent()) = %d, want 3", len(sessions))
	}
	if sessions[0].ID != "s3" {
		t.Errorf("Recent()[0].ID = %q, want s3", sessions[0].ID)
	}

	s2 := sessions[1]
	if s2.Status != SessionFailed || s2.Error != "read failed" || s2.EndedAt == nil {
		t.Errorf("s2 = %+v, want failed with end time", s2)
	}
	if sessions[0].Status != SessionActive || sessions[0].EndedAt != nil {
		t.Errorf("s3 = %+v, want active without end time", sessions[0])
	}
}

func TestSQLiteSessionRepository_Validation(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLiteSessionRepository(openSessionDB(t))

	tests := []struct {
		name    string
		session Session
	}{
		{name: "missing id", session: Session{Path: "/dev/input/event0"}},
		{name: "missing path", session: Session{ID: "x"}},
		{name: "bad status", session: Session{ID: "x", Path: "/dev/input/event0", Status: "paused"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := repo.Start(ctx, tt.session); !errors.Is(err, ErrInvalidSession) {
				t.Errorf("Start() error = %v, want ErrInvalidSession", err)
			}
		})
	}

	if err := repo.Finish(ctx, "missing", SessionClosed, "", time.Now()); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Finish() error = %v, want ErrSessionNotFound", err)
	}
}

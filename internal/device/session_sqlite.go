package device

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const (
	defaultSessionLimit = 50
	maxSessionLimit     = 500
)

// SQLiteSessionRepository implements SessionRepository using SQLite.
type SQLiteSessionRepository struct {
	db *sql.DB
}

// NewSQLiteSessionRepository creates a repository over an open connection.
// The device_sessions table must already exist (see migrations).
func NewSQLiteSessionRepository(db *sql.DB) *SQLiteSessionRepository {
	return &SQLiteSessionRepository{db: db}
}

// Start inserts a new session row.
func (r *SQLiteSessionRepository) Start(ctx context.Context, s Session) error {
	if s.ID == "" || s.Path == "" {
		return fmt.Errorf("%w: id and path are required", ErrInvalidSession)
	}
	if s.Status == "" {
		s.Status = SessionActive
	}
	if !s.Status.IsValid() {
		return fmt.Errorf("%w: status %q", ErrInvalidSession, s.Status)
	}
	if s.StartedAt.IsZero() {
		s.StartedAt = time.Now()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO device_sessions (id, path, name, status, error, started_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		s.ID,
		string(s.Path),
		s.Name,
		string(s.Status),
		s.Error,
		s.StartedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting device session: %w", err)
	}
	return nil
}

// Finish updates the terminal status of a session.
func (r *SQLiteSessionRepository) Finish(ctx context.Context, id string, status SessionStatus, errMsg string, endedAt time.Time) error {
	if !status.IsValid() {
		return fmt.Errorf("%w: status %q", ErrInvalidSession, status)
	}

	res, err := r.db.ExecContext(ctx,
		`UPDATE device_sessions SET status = ?, error = ?, ended_at = ? WHERE id = ?`,
		string(status),
		errMsg,
		endedAt.UTC().Format(time.RFC3339Nano),
		id,
	)
	if err != nil {
		return fmt.Errorf("updating device session: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// Recent returns up to limit sessions ordered newest first
// (default 50, max 500).
func (r *SQLiteSessionRepository) Recent(ctx context.Context, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = defaultSessionLimit
	}
	if limit > maxSessionLimit {
		limit = maxSessionLimit
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, path, name, status, error, started_at, ended_at
		 FROM device_sessions
		 ORDER BY started_at DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying device sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]Session, 0, limit)
	for rows.Next() {
		var (
			s         Session
			path      string
			status    string
			startedAt string
			endedAt   sql.NullString
		)
		if err := rows.Scan(&s.ID, &path, &s.Name, &status, &s.Error, &startedAt, &endedAt); err != nil {
			return nil, fmt.Errorf("scanning device session: %w", err)
		}
		s.Path = Path(path)
		s.Status = SessionStatus(status)

		if s.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt); err != nil {
			return nil, fmt.Errorf("parsing started_at: %w", err)
		}
		if endedAt.Valid && endedAt.String != "" {
			t, err := time.Parse(time.RFC3339Nano, endedAt.String)
			if err != nil {
				return nil, fmt.Errorf("parsing ended_at: %w", err)
			}
			s.EndedAt = &t
		}

		sessions = append(sessions, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating device sessions: %w", err)
	}
	return sessions, nil
}

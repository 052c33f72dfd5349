package device

import (
	"context"
	"time"
)

// SessionStatus is the lifecycle state of a capture session.
type SessionStatus string

const (
	// SessionActive means the device is captured and being read.
	SessionActive SessionStatus = "active"

	// SessionClosed means the reader stopped cleanly (shutdown).
	SessionClosed SessionStatus = "closed"

	// SessionFailed means the reader terminated on an error.
	SessionFailed SessionStatus = "failed"

	// SessionRejected means the device was opened but refused (unsupported
	// or the daemon's own output device).
	SessionRejected SessionStatus = "rejected"
)

// IsValid reports whether s is a known status.
func (s SessionStatus) IsValid() bool {
	switch s {
	case SessionActive, SessionClosed, SessionFailed, SessionRejected:
		return true
	}
	return false
}

// Session records one attempt to capture a device node.
type Session struct {
	ID        string        `json:"id"`
	Path      Path          `json:"path"`
	Name      string        `json:"name,omitempty"`
	Status    SessionStatus `json:"status"`
	Error     string        `json:"error,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	EndedAt   *time.Time    `json:"ended_at,omitempty"`
}

// SessionRepository persists capture sessions.
//
// Implementations must be safe for concurrent use; every reader goroutine
// records its own session.
type SessionRepository interface {
	// Start records a new session. ID and StartedAt must be set.
	Start(ctx context.Context, s Session) error

	// Finish marks a session as ended with the given status and error text.
	// Returns ErrSessionNotFound if no such session exists.
	Finish(ctx context.Context, id string, status SessionStatus, errMsg string, endedAt time.Time) error

	// Recent returns the newest sessions first.
	Recent(ctx context.Context, limit int) ([]Session, error)
}

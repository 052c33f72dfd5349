package orchestrator

import "errors"

var (
	// ErrNoDevices is returned by Run in static mode when no device was
	// captured.
	ErrNoDevices = errors.New("orchestrator: no devices captured")

	// ErrAlreadyRunning is returned when Run is called twice.
	ErrAlreadyRunning = errors.New("orchestrator: already running")
)

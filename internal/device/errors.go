package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrWatchDisabled) {
//	    // registry was built without hot-plug support
//	}
var (
	// ErrWatchDisabled is returned by Watch when the registry was created
	// without watching enabled.
	ErrWatchDisabled = errors.New("device: watch not enabled")

	// ErrWatchFailed is returned when the filesystem notification mechanism
	// cannot be set up or stops delivering events.
	ErrWatchFailed = errors.New("device: watch failed")

	// ErrSessionNotFound is returned when a session ID does not exist.
	ErrSessionNotFound = errors.New("device: session not found")

	// ErrInvalidSession is returned when session fields fail validation.
	ErrInvalidSession = errors.New("device: invalid session")
)

package input

import (
	"errors"
	"fmt"
	"io/fs"

	"golang.org/x/sys/unix"

	"github.com/nerrad567/keymux/internal/device"
)

// Domain errors for the input package.
var (
	// ErrUnsupportedDevice is returned for devices that cannot be remapped,
	// such as touchpads and other devices reporting absolute axes.
	ErrUnsupportedDevice = errors.New("input: unsupported device")

	// ErrSelfDevice is returned when asked to capture the daemon's own
	// virtual output device. It wraps ErrUnsupportedDevice.
	ErrSelfDevice = fmt.Errorf("%w: device is our own output", ErrUnsupportedDevice)

	// ErrPermissionDenied is returned when the node could not be opened
	// within the retry budget because of missing permissions.
	ErrPermissionDenied = errors.New("input: permission denied (is the user in the `input` group?)")

	// ErrDesync is returned when the kernel dropped events for a device.
	ErrDesync = errors.New("input: event stream desynchronised")

	// ErrClosed is returned by Read after Close.
	ErrClosed = errors.New("input: source closed")
)

// Error records a failed operation on a device node.
type Error struct {
	Path device.Path
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsPermissionDenied reports whether err is an access error that may clear
// up once udev has applied the node's permissions.
func IsPermissionDenied(err error) bool {
	return errors.Is(err, unix.EACCES) ||
		errors.Is(err, unix.EPERM) ||
		errors.Is(err, fs.ErrPermission)
}

// IsUnsupported reports whether err is a device rejection rather than a
// failure.
func IsUnsupported(err error) bool {
	return errors.Is(err, ErrUnsupportedDevice)
}

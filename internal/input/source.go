package input

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	evdev "github.com/holoplot/go-evdev"

	"github.com/nerrad567/keymux/internal/device"
	"github.com/nerrad567/keymux/internal/retry"
)

// Device is the subset of an evdev device a Source needs.
// *evdev.InputDevice satisfies it.
type Device interface {
	Name() (string, error)
	CapableTypes() []evdev.EvType
	Grab() error
	Ungrab() error
	ReadOne() (*evdev.InputEvent, error)
	Close() error
}

// Opener opens a device node for reading and writing.
type Opener func(path string) (Device, error)

// OpenEvdev opens a node with go-evdev.
func OpenEvdev(path string) (Device, error) {
	d, err := evdev.Open(path)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// Logger defines the logging interface used by sources.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options configures Open.
type Options struct {
	// SelfName is the name of the daemon's own output device. Devices with
	// this name are refused.
	SelfName string

	// Retry bounds the open loop. Zero value means retry.DefaultPolicy().
	Retry retry.Policy

	// Opener overrides how nodes are opened. Defaults to OpenEvdev.
	Opener Opener

	Logger Logger
}

// Source is an exclusively grabbed input device.
//
// Read must be called from a single goroutine. Close may be called from
// any goroutine and unblocks a pending Read.
type Source struct {
	path   device.Path
	name   string
	dev    Device
	logger Logger

	closeOnce sync.Once
	closeErr  error
	mu        sync.Mutex
	closed    bool
}

// Open opens, validates and grabs the device at path.
//
// Permission errors are retried according to opts.Retry; anything else
// fails immediately. Refused devices return an error wrapping
// ErrUnsupportedDevice.
func Open(ctx context.Context, path device.Path, opts Options) (*Source, error) {
	opener := opts.Opener
	if opener == nil {
		opener = OpenEvdev
	}
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	policy := opts.Retry
	if policy.MaxAttempts == 0 {
		policy = retry.DefaultPolicy()
	}

	var src *Source
	attempt := func() error {
		s, err := tryOpen(path, opener, opts.SelfName)
		if err != nil {
			return err
		}
		src = s
		return nil
	}

	notify := func(n int, err error, wait time.Duration) {
		logger.Debug("device not accessible yet, retrying",
			"path", path, "attempt", n, "wait", wait, "error", err)
	}

	err := retry.Do(ctx, policy, IsPermissionDenied, attempt, notify)
	if err != nil {
		if errors.Is(err, retry.ErrExhausted) {
			return nil, &Error{Path: path, Op: "open", Err: fmt.Errorf("%w: %w", ErrPermissionDenied, err)}
		}
		var ie *Error
		if errors.As(err, &ie) {
			return nil, err
		}
		return nil, &Error{Path: path, Op: "open", Err: err}
	}

	src.logger = logger
	logger.Info("device captured", "path", path, "name", src.name)
	return src, nil
}

// tryOpen performs one open-validate-grab cycle. The device is closed on
// any failure.
func tryOpen(path device.Path, opener Opener, selfName string) (*Source, error) {
	dev, err := opener(string(path))
	if err != nil {
		return nil, err
	}

	name, err := Check(dev, selfName)
	if err != nil {
		dev.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, &Error{Path: path, Op: "open", Err: err}
	}

	// A grab straight after open can leave keys that were held at open time
	// stuck; releasing and grabbing again clears them.
	for _, step := range []func() error{dev.Grab, dev.Ungrab, dev.Grab} {
		if err := step(); err != nil {
			dev.Close() //nolint:errcheck // Best effort cleanup on error path
			return nil, &Error{Path: path, Op: "grab", Err: err}
		}
	}

	return &Source{path: path, name: name, dev: dev}, nil
}

// Check validates that dev can be captured and returns its name.
func Check(dev Device, selfName string) (string, error) {
	if slices.Contains(dev.CapableTypes(), evdev.EV_ABS) {
		return "", fmt.Errorf("%w: reports absolute axes (touchpad or tablet)", ErrUnsupportedDevice)
	}

	name, err := dev.Name()
	if err != nil {
		return "", fmt.Errorf("reading device name: %w", err)
	}
	if selfName != "" && name == selfName {
		return "", ErrSelfDevice
	}
	return name, nil
}

// Path returns the device node path.
func (s *Source) Path() device.Path { return s.path }

// Name returns the device name reported by the kernel.
func (s *Source) Name() string { return s.name }

// Read blocks until the next raw event. Any error is fatal for the source.
func (s *Source) Read() (*evdev.InputEvent, error) {
	ev, err := s.dev.ReadOne()
	if err != nil {
		if s.isClosed() {
			return nil, &Error{Path: s.path, Op: "read", Err: ErrClosed}
		}
		return nil, &Error{Path: s.path, Op: "read", Err: err}
	}
	if ev.Type == evdev.EV_SYN && ev.Code == evdev.SYN_DROPPED {
		return nil, &Error{Path: s.path, Op: "read", Err: ErrDesync}
	}
	return ev, nil
}

func (s *Source) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close releases the grab and closes the node. Safe to call more than once.
func (s *Source) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		if err := s.dev.Ungrab(); err != nil && s.logger != nil {
			s.logger.Debug("ungrab failed", "path", s.path, "error", err)
		}
		if err := s.dev.Close(); err != nil {
			s.closeErr = &Error{Path: s.path, Op: "close", Err: err}
		}
	})
	return s.closeErr
}

// Info describes a candidate device without grabbing it.
type Info struct {
	Path     device.Path `json:"path"`
	Name     string      `json:"name,omitempty"`
	Eligible bool        `json:"eligible"`
	Reason   string      `json:"reason,omitempty"`
}

// Describe opens path, runs Check and closes it again.
func Describe(path device.Path, opener Opener, selfName string) Info {
	if opener == nil {
		opener = OpenEvdev
	}
	info := Info{Path: path}

	dev, err := opener(string(path))
	if err != nil {
		info.Reason = err.Error()
		return info
	}
	defer dev.Close() //nolint:errcheck // Read-only probe

	if n, err := dev.Name(); err == nil {
		info.Name = n
	}
	if _, err := Check(dev, selfName); err != nil {
		info.Reason = err.Error()
		return info
	}
	info.Eligible = true
	return info
}

// Package output owns the virtual uinput keyboard that every synthesized
// and passed-through event is written to.
package output

import (
	"errors"
	"fmt"
	"sync"

	evdev "github.com/holoplot/go-evdev"
	"golang.org/x/sys/unix"

	"github.com/nerrad567/keymux/internal/keys"
)

// DefaultName is the name the virtual device registers with. Input sources
// refuse devices carrying it so the daemon never captures its own output.
const DefaultName = "keymux virtual keyboard"

// UinputPath is the uinput control node.
const UinputPath = "/dev/uinput"

const (
	busUSB         = 0x03
	defaultVendor  = 0x1209
	defaultProduct = 0x6b6d
	keyMax         = 0x2ff
)

// ErrUinputAccess is returned when /dev/uinput cannot be opened for
// writing.
var ErrUinputAccess = errors.New("output: cannot access " + UinputPath +
	" (is the uinput module loaded and the user in the `uinput` group?)")

// Options configures Create.
type Options struct {
	Name    string
	Vendor  uint16
	Product uint16
}

type writer interface {
	WriteOne(ev *evdev.InputEvent) error
	Close() error
}

// Device is a virtual keyboard. Safe for concurrent use.
type Device struct {
	name string

	mu     sync.Mutex
	w      writer
	closed bool
}

// Create registers a new virtual keyboard with uinput.
func Create(opts Options) (*Device, error) {
	if opts.Name == "" {
		opts.Name = DefaultName
	}
	if opts.Vendor == 0 {
		opts.Vendor = defaultVendor
	}
	if opts.Product == 0 {
		opts.Product = defaultProduct
	}

	if err := unix.Access(UinputPath, unix.W_OK); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUinputAccess, err)
	}

	dev, err := evdev.CreateDevice(opts.Name, evdev.InputID{
		BusType: busUSB,
		Vendor:  opts.Vendor,
		Product: opts.Product,
		Version: 1,
	}, Capabilities())
	if err != nil {
		return nil, fmt.Errorf("creating uinput device: %w", err)
	}

	return &Device{name: opts.Name, w: dev}, nil
}

// Capabilities returns the event types and codes the virtual keyboard
// advertises: every key and button, wheel and pointer motion, scan codes.
func Capabilities() map[evdev.EvType][]evdev.EvCode {
	keyCodes := make([]evdev.EvCode, 0, keyMax)
	for c := evdev.EvCode(1); c <= keyMax; c++ {
		keyCodes = append(keyCodes, c)
	}
	return map[evdev.EvType][]evdev.EvCode{
		evdev.EV_KEY: keyCodes,
		evdev.EV_REL: {evdev.REL_X, evdev.REL_Y, evdev.REL_WHEEL, evdev.REL_HWHEEL},
		evdev.EV_MSC: {evdev.MSC_SCAN},
	}
}

// Name returns the registered device name.
func (d *Device) Name() string { return d.name }

// Write forwards a raw event unchanged.
func (d *Device) Write(ev *evdev.InputEvent) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.write(ev)
}

// EmitKey writes a key event followed by a sync report.
func (d *Device) EmitKey(code keys.Code, value keys.Value) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.write(&evdev.InputEvent{Type: evdev.EV_KEY, Code: code, Value: int32(value)}); err != nil {
		return err
	}
	return d.write(&evdev.InputEvent{Type: evdev.EV_SYN, Code: evdev.SYN_REPORT})
}

func (d *Device) write(ev *evdev.InputEvent) error {
	if d.closed {
		return errors.New("output: device closed")
	}
	if err := d.w.WriteOne(ev); err != nil {
		return fmt.Errorf("writing to virtual keyboard: %w", err)
	}
	return nil
}

// Close destroys the virtual device.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	if err := d.w.Close(); err != nil {
		return fmt.Errorf("closing virtual keyboard: %w", err)
	}
	return nil
}

package keys

import (
	"errors"
	"fmt"
	"strings"
	"time"

	evdev "github.com/holoplot/go-evdev"
)

// ErrNotKeyEvent is returned by FromRaw for events that are not key
// press, release or repeat events.
var ErrNotKeyEvent = errors.New("keys: not a key event")

// ErrUnknownCode is returned by ParseCode for names that are not key codes.
var ErrUnknownCode = errors.New("keys: unknown key code")

// Value is the state carried by a key event.
type Value int32

const (
	Release Value = 0
	Press   Value = 1
	Repeat  Value = 2
)

// String returns the lower-case name of the value.
func (v Value) String() string {
	switch v {
	case Release:
		return "release"
	case Press:
		return "press"
	case Repeat:
		return "repeat"
	default:
		return fmt.Sprintf("value(%d)", int32(v))
	}
}

// ParseValue converts "press", "release" or "repeat" to a Value.
func ParseValue(s string) (Value, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "press", "":
		return Press, nil
	case "release":
		return Release, nil
	case "repeat":
		return Repeat, nil
	default:
		return Release, fmt.Errorf("keys: unknown key value %q", s)
	}
}

// Code identifies a key or button.
type Code = evdev.EvCode

// KeyEvent is a key press, release or repeat read from a device.
type KeyEvent struct {
	Code  Code
	Value Value
	Time  time.Time
}

// New returns a KeyEvent stamped with the current time.
func New(code Code, value Value) KeyEvent {
	return KeyEvent{Code: code, Value: value, Time: time.Now()}
}

// FromRaw converts a raw device event to a KeyEvent.
func FromRaw(raw *evdev.InputEvent) (KeyEvent, error) {
	if raw == nil || raw.Type != evdev.EV_KEY {
		return KeyEvent{}, ErrNotKeyEvent
	}

	v := Value(raw.Value)
	if v != Release && v != Press && v != Repeat {
		return KeyEvent{}, ErrNotKeyEvent
	}

	return KeyEvent{
		Code:  raw.Code,
		Value: v,
		Time:  time.Unix(int64(raw.Time.Sec), int64(raw.Time.Usec)*int64(time.Microsecond)),
	}, nil
}

// ToRaw converts the event back into a raw EV_KEY event.
func (e KeyEvent) ToRaw() *evdev.InputEvent {
	return &evdev.InputEvent{
		Type:  evdev.EV_KEY,
		Code:  e.Code,
		Value: int32(e.Value),
	}
}

// String formats the event as "KEY_A press".
func (e KeyEvent) String() string {
	return CodeName(e.Code) + " " + e.Value.String()
}

// ParseCode resolves a kernel key name such as "KEY_A" or "BTN_LEFT".
// The KEY_ prefix may be omitted and matching is case-insensitive.
func ParseCode(name string) (Code, error) {
	n := strings.ToUpper(strings.TrimSpace(name))
	if n == "" {
		return 0, fmt.Errorf("%w: empty name", ErrUnknownCode)
	}
	if c, ok := evdev.KEYFromString[n]; ok {
		return c, nil
	}
	if !strings.HasPrefix(n, "KEY_") && !strings.HasPrefix(n, "BTN_") {
		if c, ok := evdev.KEYFromString["KEY_"+n]; ok {
			return c, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownCode, name)
}

// CodeName returns the kernel name of a key code, or a numeric fallback.
func CodeName(c Code) string {
	if s, ok := evdev.KEYToString[c]; ok {
		return s
	}
	return fmt.Sprintf("KEY_%d", int(c))
}

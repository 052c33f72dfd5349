// Package keys projects raw evdev events onto key events.
//
// Only EV_KEY events whose value is a release (0), press (1) or autorepeat
// (2) are key events. Every other raw event fails conversion with
// ErrNotKeyEvent and is expected to be forwarded to the output untouched.
//
// # Usage
//
//	ev, err := keys.FromRaw(raw)
//	if errors.Is(err, keys.ErrNotKeyEvent) {
//	    // pass through
//	}
//
// Key codes are named the way the kernel headers name them (KEY_A,
// KEY_LEFTCTRL, BTN_LEFT). ParseCode and CodeName convert between the two.
package keys

// Package keymap loads layer definitions from YAML.
//
// # Format
//
//	tap_hold_wait_time: 200   # milliseconds
//	tap_dance_wait_time: 180
//	layers:
//	  - name: base
//	    keys:
//	      KEY_CAPSLOCK: TapHold(Key(KEY_ESC), Key(KEY_LEFTCTRL))
//	      KEY_Q: TapDance(2, Key(KEY_Q), ToggleLayerAlias(nav))
//	  - name: nav
//	    keys:
//	      KEY_H: KEY_LEFT
//	      KEY_L: KEY_RIGHT
//	      KEY_BACKSPACE: TapMod(KEY_LEFTCTRL, Key(KEY_DELETE))
//	aliases:
//	  nav: nav      # layer name or index
//	profiles:
//	  coding: [nav]
//
// Each key maps to an action expression. Actions are TapHold(tap, hold),
// TapDance(count, tap, dance), TapMod(modifier, effect) or a bare effect.
// Effects are NoOp, Key(K), Sticky(K), ToggleLayer(n), MomentaryLayer(n),
// ToggleLayerAlias(name), MomentaryLayerAlias(name), Profile(name),
// Sound(name) and Multi(e, ...). A bare key name is shorthand for Key(K).
//
// ParseEffect accepts the same effect grammar and is used for effects
// requested over IPC.
package keymap

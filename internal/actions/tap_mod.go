package actions

import (
	"github.com/nerrad567/keymux/internal/effects"
	"github.com/nerrad567/keymux/internal/keys"
	"github.com/nerrad567/keymux/internal/layers"
)

type modState struct {
	mod    keys.Code
	effect effects.Effect
}

// TapMod resolves TapMod actions.
//
// Pressing a TapMod key while its modifier is physically held lifts the
// modifier and presses the action's effect instead of the key. Releasing
// the key releases the effect and restores the modifier if it is still
// down. Without the modifier the key behaves normally.
type TapMod struct {
	held   map[keys.Code]bool
	active map[keys.Code]modState
}

// NewTapMod returns a TapMod stage.
func NewTapMod() *TapMod {
	return &TapMod{
		held:   make(map[keys.Code]bool),
		active: make(map[keys.Code]modState),
	}
}

// Held reports whether code is physically down.
func (m *TapMod) Held(code keys.Code) bool { return m.held[code] }

// Process implements Stage.
func (m *TapMod) Process(_ *layers.Manager, ev keys.KeyEvent, action layers.Action) Outcome {
	if st, ok := m.active[ev.Code]; ok {
		switch ev.Value {
		case keys.Release:
			delete(m.active, ev.Code)
			delete(m.held, ev.Code)
			out := []effects.Value{st.effect.With(keys.Release)}
			if m.held[st.mod] {
				out = append(out, effects.Key(st.mod).With(keys.Press))
			}
			return Stop(out...)
		case keys.Repeat:
			return Stop(st.effect.With(keys.Repeat))
		}
	}

	if ev.Value == keys.Press && action.Kind == layers.ActionTapMod && m.held[action.Mod] {
		m.active[ev.Code] = modState{mod: action.Mod, effect: action.Tap}
		m.held[ev.Code] = true
		return Stop(
			effects.Key(action.Mod).With(keys.Release),
			action.Tap.With(keys.Press),
		)
	}

	switch ev.Value {
	case keys.Press:
		m.held[ev.Code] = true
	case keys.Release:
		delete(m.held, ev.Code)
	}
	return Continue()
}

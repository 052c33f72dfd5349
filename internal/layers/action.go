package layers

import (
	"fmt"

	"github.com/nerrad567/keymux/internal/effects"
	"github.com/nerrad567/keymux/internal/keys"
)

// ActionKind selects which disambiguation stage handles a key.
type ActionKind int

const (
	// ActionTap performs Tap with the key's own press, release and repeat.
	ActionTap ActionKind = iota

	// ActionTapHold performs Tap when tapped and Hold when held.
	ActionTapHold

	// ActionTapDance performs Dance after Count quick taps, Tap otherwise.
	ActionTapDance

	// ActionTapMod performs Tap in place of the key while Mod is held.
	ActionTapMod
)

func (k ActionKind) String() string {
	switch k {
	case ActionTap:
		return "Tap"
	case ActionTapHold:
		return "TapHold"
	case ActionTapDance:
		return "TapDance"
	case ActionTapMod:
		return "TapMod"
	default:
		return fmt.Sprintf("ActionKind(%d)", int(k))
	}
}

// Action is what a key does on a given layer.
type Action struct {
	Kind  ActionKind
	Tap   effects.Effect
	Hold  effects.Effect
	Dance effects.Effect
	Count int
	Mod   keys.Code
}

// Tap builds a plain action.
func Tap(e effects.Effect) Action { return Action{Kind: ActionTap, Tap: e} }

// TapHold builds a tap-or-hold action.
func TapHold(tap, hold effects.Effect) Action {
	return Action{Kind: ActionTapHold, Tap: tap, Hold: hold}
}

// TapDance builds an action that fires dance after count taps.
func TapDance(count int, tap, dance effects.Effect) Action {
	return Action{Kind: ActionTapDance, Count: count, Tap: tap, Dance: dance}
}

// TapMod builds an action that performs e instead of the key while mod is
// held.
func TapMod(mod keys.Code, e effects.Effect) Action {
	return Action{Kind: ActionTapMod, Mod: mod, Tap: e}
}

// Effects returns every effect the action can perform.
func (a Action) Effects() []effects.Effect {
	switch a.Kind {
	case ActionTapHold:
		return []effects.Effect{a.Tap, a.Hold}
	case ActionTapDance:
		return []effects.Effect{a.Tap, a.Dance}
	default:
		return []effects.Effect{a.Tap}
	}
}

func (a Action) String() string {
	switch a.Kind {
	case ActionTapHold:
		return fmt.Sprintf("TapHold(%s, %s)", a.Tap, a.Hold)
	case ActionTapDance:
		return fmt.Sprintf("TapDance(%d, %s, %s)", a.Count, a.Tap, a.Dance)
	case ActionTapMod:
		return fmt.Sprintf("TapMod(%s, %s)", keys.CodeName(a.Mod), a.Tap)
	default:
		return a.Tap.String()
	}
}

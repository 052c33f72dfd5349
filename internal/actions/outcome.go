package actions

import (
	"github.com/nerrad567/keymux/internal/effects"
	"github.com/nerrad567/keymux/internal/keys"
	"github.com/nerrad567/keymux/internal/layers"
)

// Outcome is the result of one stage processing one event.
type Outcome struct {
	Effects        []effects.Value
	StopProcessing bool
}

// Continue lets later stages see the event after effs are performed.
func Continue(effs ...effects.Value) Outcome {
	return Outcome{Effects: effs}
}

// Stop ends processing of the event after effs are performed.
func Stop(effs ...effects.Value) Outcome {
	return Outcome{Effects: effs, StopProcessing: true}
}

// Stage is one step of the disambiguation chain.
type Stage interface {
	// Process handles ev, whose current action on the layer stack is
	// action.
	Process(l *layers.Manager, ev keys.KeyEvent, action layers.Action) Outcome
}

// Fallback is the effect performed when no stage stopped processing: the
// layer's tap effect, or the key itself for actions that did not fire.
func Fallback(ev keys.KeyEvent, action layers.Action) effects.Value {
	if action.Kind == layers.ActionTap {
		return action.Tap.With(ev.Value)
	}
	return effects.Key(ev.Code).With(ev.Value)
}

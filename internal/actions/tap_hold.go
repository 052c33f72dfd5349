package actions

import (
	"sort"
	"time"

	"github.com/nerrad567/keymux/internal/effects"
	"github.com/nerrad567/keymux/internal/keys"
	"github.com/nerrad567/keymux/internal/layers"
)

// DefaultTapHoldWait is the default tap-hold decision window.
const DefaultTapHoldWait = 200 * time.Millisecond

type holdState struct {
	action  layers.Action
	pressed time.Time
	holding bool
}

// TapHold resolves TapHold actions.
//
// A TapHold key released within the wait window is a tap. Held past the
// window (seen through autorepeat) or held while any other key is pressed,
// it becomes a hold.
type TapHold struct {
	wait    time.Duration
	pending map[keys.Code]*holdState
}

// NewTapHold returns a TapHold stage with the given decision window.
func NewTapHold(wait time.Duration) *TapHold {
	if wait <= 0 {
		wait = DefaultTapHoldWait
	}
	return &TapHold{wait: wait, pending: make(map[keys.Code]*holdState)}
}

// Waiting returns the number of TapHold keys currently down.
func (m *TapHold) Waiting() int { return len(m.pending) }

// Process implements Stage.
func (m *TapHold) Process(_ *layers.Manager, ev keys.KeyEvent, action layers.Action) Outcome {
	if st, ok := m.pending[ev.Code]; ok {
		return m.processOwn(ev, st)
	}

	if ev.Value != keys.Press {
		return Continue()
	}

	holds := m.holdAll()
	if action.Kind == layers.ActionTapHold {
		m.pending[ev.Code] = &holdState{action: action, pressed: ev.Time}
		return Stop(holds...)
	}
	return Continue(holds...)
}

func (m *TapHold) processOwn(ev keys.KeyEvent, st *holdState) Outcome {
	switch ev.Value {
	case keys.Release:
		delete(m.pending, ev.Code)
		switch {
		case st.holding:
			return Stop(st.action.Hold.With(keys.Release))
		case ev.Time.Sub(st.pressed) < m.wait:
			return Stop(effects.Tap(st.action.Tap)...)
		default:
			return Stop(effects.Tap(st.action.Hold)...)
		}

	case keys.Repeat:
		if !st.holding && ev.Time.Sub(st.pressed) >= m.wait {
			st.holding = true
			return Stop(st.action.Hold.With(keys.Press))
		}
		return Stop()

	default:
		return Stop()
	}
}

// holdAll turns every undecided key into a hold, in key code order.
func (m *TapHold) holdAll() []effects.Value {
	if len(m.pending) == 0 {
		return nil
	}

	codes := make([]keys.Code, 0, len(m.pending))
	for c := range m.pending {
		codes = append(codes, c)
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })

	var out []effects.Value
	for _, c := range codes {
		st := m.pending[c]
		if st.holding {
			continue
		}
		st.holding = true
		out = append(out, st.action.Hold.With(keys.Press))
	}
	return out
}

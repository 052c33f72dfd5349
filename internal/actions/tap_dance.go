package actions

import (
	"time"

	"github.com/nerrad567/keymux/internal/effects"
	"github.com/nerrad567/keymux/internal/keys"
	"github.com/nerrad567/keymux/internal/layers"
)

// DefaultTapDanceWait is the default gap allowed between dance taps.
const DefaultTapDanceWait = 180 * time.Millisecond

type danceState struct {
	code   keys.Code
	action layers.Action
	count  int
	last   time.Time
	held   bool
}

// TapDance resolves TapDance actions.
//
// Consecutive taps of the same key, each within the wait window of the
// previous event, are counted. Reaching the action's count presses the
// dance effect. Any other key press, or a gap longer than the window,
// replays the counted taps as plain taps instead.
type TapDance struct {
	wait      time.Duration
	cur       *danceState
	releasing map[keys.Code]effects.Effect
}

// NewTapDance returns a TapDance stage with the given window.
func NewTapDance(wait time.Duration) *TapDance {
	if wait <= 0 {
		wait = DefaultTapDanceWait
	}
	return &TapDance{wait: wait, releasing: make(map[keys.Code]effects.Effect)}
}

// Wait returns the tap window.
func (m *TapDance) Wait() time.Duration { return m.wait }

// Dancing reports whether taps are being counted.
func (m *TapDance) Dancing() bool { return m.cur != nil }

// Process implements Stage.
func (m *TapDance) Process(_ *layers.Manager, ev keys.KeyEvent, action layers.Action) Outcome {
	if eff, ok := m.releasing[ev.Code]; ok {
		switch ev.Value {
		case keys.Release:
			delete(m.releasing, ev.Code)
			return Stop(eff.With(keys.Release))
		case keys.Repeat:
			return Stop(eff.With(keys.Repeat))
		default:
			delete(m.releasing, ev.Code)
		}
	}

	var out []effects.Value
	if cur := m.cur; cur != nil {
		if ev.Code == cur.code {
			switch ev.Value {
			case keys.Press:
				if ev.Time.Sub(cur.last) >= m.wait {
					out = m.flush()
					break
				}
				cur.count++
				cur.last = ev.Time
				cur.held = true
				if cur.count >= cur.action.Count {
					return Stop(m.dance()...)
				}
				return Stop()

			case keys.Release:
				cur.held = false
				cur.last = ev.Time
				return Stop()

			default:
				if ev.Time.Sub(cur.last) >= m.wait {
					return Stop(m.flush()...)
				}
				return Stop()
			}
		} else if ev.Value == keys.Press {
			out = m.flush()
		}
	}

	if action.Kind == layers.ActionTapDance && ev.Value == keys.Press {
		m.cur = &danceState{code: ev.Code, action: action, count: 1, last: ev.Time, held: true}
		if action.Count <= 1 {
			out = append(out, m.dance()...)
		}
		return Stop(out...)
	}

	return Continue(out...)
}

// Expire replays a dance whose window has passed at now. It returns nil
// when nothing is pending.
func (m *TapDance) Expire(now time.Time) []effects.Value {
	if m.cur == nil || now.Sub(m.cur.last) < m.wait {
		return nil
	}
	return m.flush()
}

func (m *TapDance) dance() []effects.Value {
	cur := m.cur
	m.cur = nil
	m.releasing[cur.code] = cur.action.Dance
	return []effects.Value{cur.action.Dance.With(keys.Press)}
}

// flush replays counted taps. A key still held keeps its last tap pressed
// until the physical release.
func (m *TapDance) flush() []effects.Value {
	cur := m.cur
	m.cur = nil
	if cur == nil {
		return nil
	}

	tap := cur.action.Tap
	var out []effects.Value
	for i := 0; i < cur.count; i++ {
		if i == cur.count-1 && cur.held {
			out = append(out, tap.With(keys.Press))
			m.releasing[cur.code] = tap
			break
		}
		out = append(out, effects.Tap(tap)...)
	}
	return out
}

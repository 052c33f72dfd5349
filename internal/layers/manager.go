package layers

import (
	"fmt"
	"sort"

	"github.com/nerrad567/keymux/internal/effects"
	"github.com/nerrad567/keymux/internal/keys"
)

// Layer maps key codes to actions.
type Layer struct {
	Name string
	Keys map[keys.Code]Action
}

// Change describes a layer being switched on or off.
type Change struct {
	Layer   int    `json:"layer"`
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
	Active  []int  `json:"active"`
}

// Notifier is called after every layer change.
type Notifier func(Change)

// Manager owns the layer stack. Not safe for concurrent use; it lives
// inside the engine's shared state.
type Manager struct {
	layers   []Layer
	enabled  []bool
	aliases  map[string]int
	profiles map[string][]int
	pressed  map[keys.Code]Action
	notify   Notifier
}

// NewManager validates the keymap and returns a Manager with only the
// base layer enabled.
func NewManager(layers []Layer, aliases map[string]int, profiles map[string][]int) (*Manager, error) {
	if len(layers) == 0 {
		return nil, ErrNoLayers
	}

	m := &Manager{
		layers:   layers,
		enabled:  make([]bool, len(layers)),
		aliases:  make(map[string]int, len(aliases)),
		profiles: make(map[string][]int, len(profiles)),
		pressed:  make(map[keys.Code]Action),
	}

	for name, idx := range aliases {
		if !m.valid(idx) {
			return nil, fmt.Errorf("%w: alias %q points at layer %d", ErrUnknownLayer, name, idx)
		}
		m.aliases[name] = idx
	}
	for name, idxs := range profiles {
		for _, idx := range idxs {
			if !m.valid(idx) {
				return nil, fmt.Errorf("%w: profile %q enables layer %d", ErrUnknownLayer, name, idx)
			}
		}
		m.profiles[name] = append([]int(nil), idxs...)
	}

	for i, l := range layers {
		for code, a := range l.Keys {
			if err := m.checkAction(a); err != nil {
				return nil, fmt.Errorf("layer %d key %s: %w", i, keys.CodeName(code), err)
			}
		}
	}

	m.Init()
	return m, nil
}

func (m *Manager) checkAction(a Action) error {
	if a.Kind == ActionTapDance && a.Count < 1 {
		return fmt.Errorf("tap dance count must be at least 1, got %d", a.Count)
	}
	for _, e := range a.Effects() {
		if err := m.checkEffect(e); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) checkEffect(e effects.Effect) error {
	switch e.Kind {
	case effects.KindToggleLayer, effects.KindMomentaryLayer:
		if !m.valid(e.Layer) {
			return fmt.Errorf("%w: %d", ErrUnknownLayer, e.Layer)
		}
	case effects.KindToggleAlias, effects.KindMomentaryAlias:
		if _, ok := m.aliases[e.Name]; !ok {
			return fmt.Errorf("%w: %q", ErrUnknownAlias, e.Name)
		}
	case effects.KindProfile:
		if _, ok := m.profiles[e.Name]; !ok {
			return fmt.Errorf("%w: %q", ErrUnknownProfile, e.Name)
		}
	case effects.KindMulti:
		for _, sub := range e.Effects {
			if err := m.checkEffect(sub); err != nil {
				return err
			}
		}
	}
	return nil
}

// Validate checks that every layer, alias and profile e refers to exists.
func (m *Manager) Validate(e effects.Effect) error { return m.checkEffect(e) }

// Init resets the stack to the base layer and forgets held keys.
func (m *Manager) Init() {
	for i := range m.enabled {
		m.enabled[i] = false
	}
	m.enabled[0] = true
	clear(m.pressed)
}

// SetNotifier registers a callback for layer changes.
func (m *Manager) SetNotifier(n Notifier) { m.notify = n }

func (m *Manager) valid(idx int) bool { return idx >= 0 && idx < len(m.layers) }

// Len returns the number of layers.
func (m *Manager) Len() int { return len(m.layers) }

// Name returns the name of layer idx.
func (m *Manager) Name(idx int) string {
	if !m.valid(idx) {
		return ""
	}
	return m.layers[idx].Name
}

// IsEnabled reports whether layer idx is enabled.
func (m *Manager) IsEnabled(idx int) bool { return m.valid(idx) && m.enabled[idx] }

// Active returns the enabled layer indices in ascending order.
func (m *Manager) Active() []int {
	var out []int
	for i, on := range m.enabled {
		if on {
			out = append(out, i)
		}
	}
	return out
}

// Aliases returns the alias names in sorted order.
func (m *Manager) Aliases() []string {
	out := make([]string, 0, len(m.aliases))
	for n := range m.aliases {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Toggle flips layer idx.
func (m *Manager) Toggle(idx int) error {
	if !m.valid(idx) {
		return fmt.Errorf("%w: %d", ErrUnknownLayer, idx)
	}
	if m.enabled[idx] {
		return m.TurnOff(idx)
	}
	return m.TurnOn(idx)
}

// TurnOn enables layer idx.
func (m *Manager) TurnOn(idx int) error {
	if !m.valid(idx) {
		return fmt.Errorf("%w: %d", ErrUnknownLayer, idx)
	}
	m.set(idx, true)
	return nil
}

// TurnOff disables layer idx.
func (m *Manager) TurnOff(idx int) error {
	if !m.valid(idx) {
		return fmt.Errorf("%w: %d", ErrUnknownLayer, idx)
	}
	if idx == 0 {
		return ErrBaseLayer
	}
	m.set(idx, false)
	return nil
}

func (m *Manager) set(idx int, on bool) {
	if m.enabled[idx] == on {
		return
	}
	m.enabled[idx] = on
	if m.notify != nil {
		m.notify(Change{Layer: idx, Name: m.layers[idx].Name, Enabled: on, Active: m.Active()})
	}
}

// Resolve returns the layer index an alias points at.
func (m *Manager) Resolve(alias string) (int, error) {
	idx, ok := m.aliases[alias]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownAlias, alias)
	}
	return idx, nil
}

// ActivateProfile disables every non-base layer not in the profile and
// enables the profile's layers.
func (m *Manager) ActivateProfile(name string) error {
	idxs, ok := m.profiles[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownProfile, name)
	}

	want := make(map[int]bool, len(idxs))
	for _, i := range idxs {
		want[i] = true
	}
	for i := 1; i < len(m.layers); i++ {
		if !want[i] {
			m.set(i, false)
		}
	}
	for _, i := range idxs {
		m.set(i, true)
	}
	return nil
}

// CurrentAction returns the action for code on the highest enabled layer
// that maps it, or a plain tap of code.
func (m *Manager) CurrentAction(code keys.Code) Action {
	for i := len(m.layers) - 1; i >= 0; i-- {
		if !m.enabled[i] {
			continue
		}
		if a, ok := m.layers[i].Keys[code]; ok {
			return a
		}
	}
	return Tap(effects.Key(code))
}

// Peek returns the action ev resolves to without recording anything.
func (m *Manager) Peek(ev keys.KeyEvent) Action {
	if ev.Value != keys.Press {
		if a, ok := m.pressed[ev.Code]; ok {
			return a
		}
	}
	return m.CurrentAction(ev.Code)
}

// Lookup returns the action ev resolves to. A press records the action so
// the matching repeats and release resolve to it; the release forgets it.
func (m *Manager) Lookup(ev keys.KeyEvent) Action {
	switch ev.Value {
	case keys.Press:
		a := m.CurrentAction(ev.Code)
		m.pressed[ev.Code] = a
		return a
	case keys.Release:
		a, ok := m.pressed[ev.Code]
		if !ok {
			return m.CurrentAction(ev.Code)
		}
		delete(m.pressed, ev.Code)
		return a
	default:
		return m.Peek(ev)
	}
}

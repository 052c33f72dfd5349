package engine

import (
	"errors"
	"fmt"
	"time"

	evdev "github.com/holoplot/go-evdev"

	"github.com/nerrad567/keymux/internal/actions"
	"github.com/nerrad567/keymux/internal/effects"
	"github.com/nerrad567/keymux/internal/keys"
	"github.com/nerrad567/keymux/internal/layers"
)

// Sink receives output events. *output.Device satisfies it.
type Sink interface {
	Write(ev *evdev.InputEvent) error
	EmitKey(code keys.Code, value keys.Value) error
}

// SoundPlayer plays named sounds. *sound.Player satisfies it.
type SoundPlayer interface {
	Play(name string) error
}

// Logger defines the logging interface used by the engine.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Config holds the collaborators of an Engine.
type Config struct {
	Layers       *layers.Manager
	Sink         Sink
	TapHoldWait  time.Duration
	TapDanceWait time.Duration

	// Sound is optional; Sound effects are ignored without it.
	Sound SoundPlayer

	Logger Logger
}

// Engine serializes all remapping work behind one Lock.
type Engine struct {
	lock Lock
	st   *state
}

// Snapshot is a point-in-time view of the engine state.
type Snapshot struct {
	Active     []int    `json:"active_layers"`
	LayerNames []string `json:"layer_names"`
	Sticky     int      `json:"sticky_keys"`
	Dancing    bool     `json:"tap_dance_pending"`
	HoldsDown  int      `json:"tap_hold_pending"`
}

// New builds an Engine.
func New(cfg Config) (*Engine, error) {
	if cfg.Layers == nil {
		return nil, errors.New("engine: layers manager is required")
	}
	if cfg.Sink == nil {
		return nil, errors.New("engine: output sink is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	st := &state{
		layers:   cfg.Layers,
		tapHold:  actions.NewTapHold(cfg.TapHoldWait),
		tapDance: actions.NewTapDance(cfg.TapDanceWait),
		tapMod:   actions.NewTapMod(),
		sticky:   effects.NewStickyState(),
		sink:     cfg.Sink,
		logger:   logger,
	}
	if cfg.Sound != nil {
		st.sound = cfg.Sound
	}
	return &Engine{st: st}, nil
}

// HandleKeyEvent dispatches one key event through the disambiguation chain.
func (e *Engine) HandleKeyEvent(ev keys.KeyEvent) error {
	return e.lock.Do(func() error {
		return e.st.handleKeyEvent(ev)
	})
}

// PassThrough writes a non-key event to the output unchanged.
func (e *Engine) PassThrough(raw *evdev.InputEvent) error {
	return e.lock.Do(func() error {
		return e.st.sink.Write(raw)
	})
}

// Perform applies an effect outside of key dispatch, for example one
// requested over IPC. References to unknown layers, aliases or profiles
// are rejected before anything is performed.
func (e *Engine) Perform(v effects.Value) error {
	return e.lock.Do(func() error {
		if err := e.st.layers.Validate(v.Effect); err != nil {
			return err
		}
		return e.st.perform(v)
	})
}

// Tick resolves tap dances whose window has passed at now.
func (e *Engine) Tick(now time.Time) error {
	return e.lock.Do(func() error {
		return e.st.performAll(e.st.tapDance.Expire(now))
	})
}

// TapDanceWait returns the tap-dance window; Tick needs to run at least
// this often for dances to resolve without further key presses.
func (e *Engine) TapDanceWait() time.Duration { return e.st.tapDance.Wait() }

// Snapshot returns the current layer and pending-key state.
func (e *Engine) Snapshot() (Snapshot, error) {
	var s Snapshot
	err := e.lock.Do(func() error {
		s.Active = e.st.layers.Active()
		s.LayerNames = make([]string, e.st.layers.Len())
		for i := range s.LayerNames {
			s.LayerNames[i] = e.st.layers.Name(i)
		}
		s.Sticky = e.st.sticky.Len()
		s.Dancing = e.st.tapDance.Dancing()
		s.HoldsDown = e.st.tapHold.Waiting()
		return nil
	})
	return s, err
}

// Poisoned reports whether a panic has poisoned the engine.
func (e *Engine) Poisoned() bool {
	_, p := e.lock.Poisoned()
	return p
}

// withState runs fn on the raw state under the lock. Test hook.
func (e *Engine) withState(fn func(*state)) error {
	return e.lock.Do(func() error {
		fn(e.st)
		return nil
	})
}

// state is the shared mutable remapping state. Only accessed under Lock.
type state struct {
	layers   *layers.Manager
	tapHold  *actions.TapHold
	tapDance *actions.TapDance
	tapMod   *actions.TapMod
	sticky   *effects.StickyState
	sink     Sink
	sound    SoundPlayer
	logger   Logger
}

func (s *state) handleKeyEvent(ev keys.KeyEvent) error {
	// Tap-hold sees the action without it being recorded: a hold can switch
	// layers, and later stages must resolve against the result.
	out := s.tapHold.Process(s.layers, ev, s.layers.Peek(ev))
	if err := s.performAll(out.Effects); err != nil {
		return err
	}
	if out.StopProcessing {
		return nil
	}

	action := s.layers.Lookup(ev)
	for _, stage := range []actions.Stage{s.tapDance, s.tapMod} {
		out := stage.Process(s.layers, ev, action)
		if err := s.performAll(out.Effects); err != nil {
			return err
		}
		if out.StopProcessing {
			return nil
		}
	}

	return s.perform(actions.Fallback(ev, action))
}

func (s *state) performAll(vals []effects.Value) error {
	for _, v := range vals {
		if err := s.perform(v); err != nil {
			return err
		}
	}
	return nil
}

func (s *state) perform(v effects.Value) error {
	e := v.Effect
	switch e.Kind {
	case effects.KindNoOp:
		return nil

	case effects.KindKey:
		if err := s.sink.EmitKey(e.Code, v.Value); err != nil {
			return err
		}
		if v.Value == keys.Release && !s.sticky.IsActive(e.Code) {
			for _, code := range s.sticky.Release() {
				if err := s.sink.EmitKey(code, keys.Release); err != nil {
					return err
				}
			}
		}
		return nil

	case effects.KindSticky:
		if v.Value != keys.Press {
			return nil
		}
		if s.sticky.Toggle(e.Code) {
			return s.sink.EmitKey(e.Code, keys.Press)
		}
		return s.sink.EmitKey(e.Code, keys.Release)

	case effects.KindToggleLayer:
		if v.Value != keys.Press {
			return nil
		}
		return s.layers.Toggle(e.Layer)

	case effects.KindMomentaryLayer:
		return s.momentary(e.Layer, v.Value)

	case effects.KindToggleAlias:
		if v.Value != keys.Press {
			return nil
		}
		idx, err := s.layers.Resolve(e.Name)
		if err != nil {
			return err
		}
		return s.layers.Toggle(idx)

	case effects.KindMomentaryAlias:
		idx, err := s.layers.Resolve(e.Name)
		if err != nil {
			return err
		}
		return s.momentary(idx, v.Value)

	case effects.KindProfile:
		if v.Value != keys.Press {
			return nil
		}
		return s.layers.ActivateProfile(e.Name)

	case effects.KindSound:
		if v.Value != keys.Press || s.sound == nil {
			return nil
		}
		if err := s.sound.Play(e.Name); err != nil {
			s.logger.Warn("sound playback failed", "sound", e.Name, "error", err)
		}
		return nil

	case effects.KindMulti:
		for _, sub := range e.Effects {
			if err := s.perform(sub.With(v.Value)); err != nil {
				return err
			}
		}
		return nil

	default:
		return fmt.Errorf("engine: unsupported effect %s", e.Kind)
	}
}

func (s *state) momentary(idx int, v keys.Value) error {
	switch v {
	case keys.Press:
		return s.layers.TurnOn(idx)
	case keys.Release:
		return s.layers.TurnOff(idx)
	default:
		return nil
	}
}

package keymap

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nerrad567/keymux/internal/actions"
	"github.com/nerrad567/keymux/internal/keys"
	"github.com/nerrad567/keymux/internal/layers"
)

// Keymap is a loaded keymap.
type Keymap struct {
	TapHoldWait  time.Duration
	TapDanceWait time.Duration
	Layers       []layers.Layer
	Aliases      map[string]int
	Profiles     map[string][]int
}

type fileFormat struct {
	TapHoldWaitMS  int                 `yaml:"tap_hold_wait_time"`
	TapDanceWaitMS int                 `yaml:"tap_dance_wait_time"`
	Layers         []layerFormat       `yaml:"layers"`
	Aliases        map[string]string   `yaml:"aliases"`
	Profiles       map[string][]string `yaml:"profiles"`
}

type layerFormat struct {
	Name string            `yaml:"name"`
	Keys map[string]string `yaml:"keys"`
}

// Load reads and parses the keymap file at path.
func Load(path string) (*Keymap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading keymap file: %w", err)
	}
	km, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing keymap %s: %w", path, err)
	}
	return km, nil
}

// Parse decodes a keymap document.
func Parse(data []byte) (*Keymap, error) {
	var f fileFormat
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decoding yaml: %w", err)
	}
	if len(f.Layers) == 0 {
		return nil, fmt.Errorf("%w: at least one layer is required", ErrSyntax)
	}

	km := &Keymap{
		TapHoldWait:  actions.DefaultTapHoldWait,
		TapDanceWait: actions.DefaultTapDanceWait,
		Aliases:      map[string]int{},
		Profiles:     map[string][]int{},
	}
	if f.TapHoldWaitMS < 0 || f.TapDanceWaitMS < 0 {
		return nil, fmt.Errorf("%w: wait times must not be negative", ErrSyntax)
	}
	if f.TapHoldWaitMS > 0 {
		km.TapHoldWait = time.Duration(f.TapHoldWaitMS) * time.Millisecond
	}
	if f.TapDanceWaitMS > 0 {
		km.TapDanceWait = time.Duration(f.TapDanceWaitMS) * time.Millisecond
	}

	byName := make(map[string]int, len(f.Layers))
	km.Layers = make([]layers.Layer, 0, len(f.Layers))
	for i, lf := range f.Layers {
		name := lf.Name
		if name == "" {
			name = "layer" + strconv.Itoa(i)
		}
		if _, dup := byName[name]; dup {
			return nil, fmt.Errorf("%w: duplicate layer name %q", ErrSyntax, name)
		}
		byName[name] = i

		l := layers.Layer{Name: name, Keys: make(map[keys.Code]layers.Action, len(lf.Keys))}
		for k, expr := range lf.Keys {
			code, err := keys.ParseCode(k)
			if err != nil {
				return nil, fmt.Errorf("layer %q: %w", name, err)
			}
			a, err := ParseAction(expr)
			if err != nil {
				return nil, fmt.Errorf("layer %q key %s: %w", name, k, err)
			}
			l.Keys[code] = a
		}
		km.Layers = append(km.Layers, l)
	}

	resolve := func(ref string) (int, error) {
		if idx, ok := byName[ref]; ok {
			return idx, nil
		}
		idx, err := strconv.Atoi(ref)
		if err != nil || idx < 0 || idx >= len(km.Layers) {
			return 0, fmt.Errorf("%w: unknown layer %q", ErrSyntax, ref)
		}
		return idx, nil
	}

	for alias, ref := range f.Aliases {
		idx, err := resolve(ref)
		if err != nil {
			return nil, fmt.Errorf("alias %q: %w", alias, err)
		}
		km.Aliases[alias] = idx
	}
	for profile, refs := range f.Profiles {
		idxs := make([]int, 0, len(refs))
		for _, ref := range refs {
			idx, err := resolve(ref)
			if err != nil {
				return nil, fmt.Errorf("profile %q: %w", profile, err)
			}
			idxs = append(idxs, idx)
		}
		km.Profiles[profile] = idxs
	}

	// Reject dangling alias, profile and layer references.
	if _, err := km.NewManager(); err != nil {
		return nil, err
	}
	return km, nil
}

// NewManager builds a layer manager for the keymap.
func (k *Keymap) NewManager() (*layers.Manager, error) {
	return layers.NewManager(k.Layers, k.Aliases, k.Profiles)
}

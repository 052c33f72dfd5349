// Package effects defines what a key can do once it has been resolved:
// emit a key, latch a sticky modifier, change layers, play a sound.
package effects

import (
	"fmt"
	"strings"

	"github.com/nerrad567/keymux/internal/keys"
)

// Kind identifies the type of an Effect.
type Kind int

const (
	KindNoOp Kind = iota
	KindKey
	KindSticky
	KindToggleLayer
	KindMomentaryLayer
	KindToggleAlias
	KindMomentaryAlias
	KindProfile
	KindSound
	KindMulti
)

var kindNames = map[Kind]string{
	KindNoOp:           "NoOp",
	KindKey:            "Key",
	KindSticky:         "Sticky",
	KindToggleLayer:    "ToggleLayer",
	KindMomentaryLayer: "MomentaryLayer",
	KindToggleAlias:    "ToggleLayerAlias",
	KindMomentaryAlias: "MomentaryLayerAlias",
	KindProfile:        "Profile",
	KindSound:          "Sound",
	KindMulti:          "Multi",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Effect is one resolved behaviour. Only the fields relevant to Kind are set.
type Effect struct {
	Kind    Kind
	Code    keys.Code
	Layer   int
	Name    string
	Effects []Effect
}

// NoOp does nothing.
func NoOp() Effect { return Effect{Kind: KindNoOp} }

// Key emits code with the event's value.
func Key(code keys.Code) Effect { return Effect{Kind: KindKey, Code: code} }

// Sticky latches code on one tap and unlatches it on the next.
func Sticky(code keys.Code) Effect { return Effect{Kind: KindSticky, Code: code} }

// ToggleLayer flips a layer on press.
func ToggleLayer(layer int) Effect { return Effect{Kind: KindToggleLayer, Layer: layer} }

// MomentaryLayer enables a layer while the key is held.
func MomentaryLayer(layer int) Effect { return Effect{Kind: KindMomentaryLayer, Layer: layer} }

// ToggleAlias flips the layer an alias points at.
func ToggleAlias(name string) Effect { return Effect{Kind: KindToggleAlias, Name: name} }

// MomentaryAlias enables the aliased layer while held.
func MomentaryAlias(name string) Effect { return Effect{Kind: KindMomentaryAlias, Name: name} }

// Profile switches to a named set of layers.
func Profile(name string) Effect { return Effect{Kind: KindProfile, Name: name} }

// Sound plays a named sound asset.
func Sound(name string) Effect { return Effect{Kind: KindSound, Name: name} }

// Multi performs each effect in order.
func Multi(effects ...Effect) Effect { return Effect{Kind: KindMulti, Effects: effects} }

// String renders the effect in keymap syntax.
func (e Effect) String() string {
	switch e.Kind {
	case KindNoOp:
		return "NoOp"
	case KindKey, KindSticky:
		return fmt.Sprintf("%s(%s)", e.Kind, keys.CodeName(e.Code))
	case KindToggleLayer, KindMomentaryLayer:
		return fmt.Sprintf("%s(%d)", e.Kind, e.Layer)
	case KindToggleAlias, KindMomentaryAlias, KindProfile, KindSound:
		return fmt.Sprintf("%s(%s)", e.Kind, e.Name)
	case KindMulti:
		parts := make([]string, len(e.Effects))
		for i, sub := range e.Effects {
			parts[i] = sub.String()
		}
		return "Multi(" + strings.Join(parts, ", ") + ")"
	default:
		return e.Kind.String()
	}
}

// Value pairs an effect with the key value it is performed with.
type Value struct {
	Effect Effect
	Value  keys.Value
}

// With pairs e with v.
func (e Effect) With(v keys.Value) Value { return Value{Effect: e, Value: v} }

// Tap returns a press followed by a release of e.
func Tap(e Effect) []Value {
	return []Value{e.With(keys.Press), e.With(keys.Release)}
}

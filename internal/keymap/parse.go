package keymap

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	"github.com/nerrad567/keymux/internal/effects"
	"github.com/nerrad567/keymux/internal/keys"
	"github.com/nerrad567/keymux/internal/layers"
)

// ErrSyntax is returned for malformed expressions.
var ErrSyntax = errors.New("keymap: syntax error")

var exprLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Word", Pattern: `[A-Za-z0-9_.\-]+`},
	{Name: "Punct", Pattern: `[(),]`},
	{Name: "Whitespace", Pattern: `\s+`},
})

// node is a parsed expression: a bare word, or a call when Call is set.
type node struct {
	Pos  lexer.Position
	Name string `parser:"@Word"`
	Call *call  `parser:"@@?"`
}

type call struct {
	Open bool    `parser:"@'('"`
	Args []*node `parser:"( @@ ( ',' @@ )* )? ')'"`
}

var exprParser = participle.MustBuild[node](
	participle.Lexer(exprLexer),
	participle.Elide("Whitespace"),
)

func parseExpr(src string) (*node, error) {
	n, err := exprParser.ParseString("", src)
	if err != nil {
		return nil, fmt.Errorf("%w in %q: %w", ErrSyntax, src, err)
	}
	return n, nil
}

func (n *node) isCall() bool { return n.Call != nil }

func (n *node) args() []*node {
	if n.Call == nil {
		return nil
	}
	return n.Call.Args
}

// ParseAction parses an action expression.
func ParseAction(src string) (layers.Action, error) {
	n, err := parseExpr(src)
	if err != nil {
		return layers.Action{}, err
	}

	switch n.Name {
	case "TapHold":
		if err := arity(n, 2); err != nil {
			return layers.Action{}, err
		}
		tap, hold, err := effectPair(n.args()[0], n.args()[1])
		if err != nil {
			return layers.Action{}, err
		}
		return layers.TapHold(tap, hold), nil

	case "TapDance":
		if err := arity(n, 3); err != nil {
			return layers.Action{}, err
		}
		count, err := intArg(n.args()[0])
		if err != nil {
			return layers.Action{}, err
		}
		if count < 1 {
			return layers.Action{}, fmt.Errorf("%w: TapDance count must be at least 1", ErrSyntax)
		}
		tap, dance, err := effectPair(n.args()[1], n.args()[2])
		if err != nil {
			return layers.Action{}, err
		}
		return layers.TapDance(count, tap, dance), nil

	case "TapMod":
		if err := arity(n, 2); err != nil {
			return layers.Action{}, err
		}
		mod, err := codeArg(n.args()[0])
		if err != nil {
			return layers.Action{}, err
		}
		e, err := toEffect(n.args()[1])
		if err != nil {
			return layers.Action{}, err
		}
		return layers.TapMod(mod, e), nil
	}

	e, err := toEffect(n)
	if err != nil {
		return layers.Action{}, err
	}
	return layers.Tap(e), nil
}

// ParseEffect parses an effect expression.
func ParseEffect(src string) (effects.Effect, error) {
	n, err := parseExpr(src)
	if err != nil {
		return effects.Effect{}, err
	}
	return toEffect(n)
}

func effectPair(a, b *node) (effects.Effect, effects.Effect, error) {
	ea, err := toEffect(a)
	if err != nil {
		return effects.Effect{}, effects.Effect{}, err
	}
	eb, err := toEffect(b)
	if err != nil {
		return effects.Effect{}, effects.Effect{}, err
	}
	return ea, eb, nil
}

func toEffect(n *node) (effects.Effect, error) {
	if !n.isCall() {
		if n.Name == "NoOp" {
			return effects.NoOp(), nil
		}
		code, err := keys.ParseCode(n.Name)
		if err != nil {
			return effects.Effect{}, fmt.Errorf("%w: %w", ErrSyntax, err)
		}
		return effects.Key(code), nil
	}

	switch n.Name {
	case "NoOp":
		if err := arity(n, 0); err != nil {
			return effects.Effect{}, err
		}
		return effects.NoOp(), nil

	case "Key", "Sticky":
		if err := arity(n, 1); err != nil {
			return effects.Effect{}, err
		}
		code, err := codeArg(n.args()[0])
		if err != nil {
			return effects.Effect{}, err
		}
		if n.Name == "Sticky" {
			return effects.Sticky(code), nil
		}
		return effects.Key(code), nil

	case "ToggleLayer", "MomentaryLayer":
		if err := arity(n, 1); err != nil {
			return effects.Effect{}, err
		}
		idx, err := intArg(n.args()[0])
		if err != nil {
			return effects.Effect{}, err
		}
		if n.Name == "ToggleLayer" {
			return effects.ToggleLayer(idx), nil
		}
		return effects.MomentaryLayer(idx), nil

	case "ToggleLayerAlias", "MomentaryLayerAlias", "Profile", "Sound":
		if err := arity(n, 1); err != nil {
			return effects.Effect{}, err
		}
		name, err := wordArg(n.args()[0])
		if err != nil {
			return effects.Effect{}, err
		}
		switch n.Name {
		case "ToggleLayerAlias":
			return effects.ToggleAlias(name), nil
		case "MomentaryLayerAlias":
			return effects.MomentaryAlias(name), nil
		case "Profile":
			return effects.Profile(name), nil
		default:
			return effects.Sound(name), nil
		}

	case "Multi":
		if len(n.args()) == 0 {
			return effects.Effect{}, fmt.Errorf("%w: Multi needs at least one effect", ErrSyntax)
		}
		subs := make([]effects.Effect, 0, len(n.args()))
		for _, a := range n.args() {
			e, err := toEffect(a)
			if err != nil {
				return effects.Effect{}, err
			}
			subs = append(subs, e)
		}
		return effects.Multi(subs...), nil
	}

	return effects.Effect{}, fmt.Errorf("%w: unknown effect %q at column %d", ErrSyntax, n.Name, n.Pos.Column)
}

func arity(n *node, want int) error {
	if len(n.args()) != want {
		return fmt.Errorf("%w: %s takes %d argument(s), got %d", ErrSyntax, n.Name, want, len(n.args()))
	}
	return nil
}

func wordArg(n *node) (string, error) {
	if n.isCall() {
		return "", fmt.Errorf("%w: expected a name, got %s(...)", ErrSyntax, n.Name)
	}
	return n.Name, nil
}

func intArg(n *node) (int, error) {
	w, err := wordArg(n)
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(w)
	if err != nil {
		return 0, fmt.Errorf("%w: expected a number, got %q", ErrSyntax, w)
	}
	return v, nil
}

func codeArg(n *node) (keys.Code, error) {
	w, err := wordArg(n)
	if err != nil {
		return 0, err
	}
	code, err := keys.ParseCode(strings.TrimSpace(w))
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrSyntax, err)
	}
	return code, nil
}

package layers

import "errors"

// Domain errors for the layers package.
var (
	// ErrUnknownLayer is returned for a layer index outside the keymap.
	ErrUnknownLayer = errors.New("layers: unknown layer")

	// ErrUnknownAlias is returned for an alias name not in the keymap.
	ErrUnknownAlias = errors.New("layers: unknown alias")

	// ErrUnknownProfile is returned for a profile name not in the keymap.
	ErrUnknownProfile = errors.New("layers: unknown profile")

	// ErrBaseLayer is returned when asked to disable layer 0.
	ErrBaseLayer = errors.New("layers: base layer cannot be disabled")

	// ErrNoLayers is returned when a manager is built without a base layer.
	ErrNoLayers = errors.New("layers: at least one layer is required")
)

// Package layers resolves key codes to actions through a stack of keymap
// layers.
//
// Layer 0 is the base layer and is always enabled. Higher layers can be
// toggled, held, reached through a named alias, or switched as a group
// through a profile. When several enabled layers map the same key the
// highest-numbered one wins; a key mapped by no enabled layer is a plain
// tap of itself.
//
// The Manager remembers which action a key resolved to when it was
// pressed, so its release and repeats resolve to the same action even if
// the layer stack changed in between.
package layers

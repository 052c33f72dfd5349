package effects

import (
	"sort"

	"github.com/nerrad567/keymux/internal/keys"
)

// StickyState tracks latched sticky modifiers.
//
// Not safe for concurrent use; it lives inside the engine's shared state.
type StickyState struct {
	active map[keys.Code]struct{}
}

// NewStickyState returns an empty StickyState.
func NewStickyState() *StickyState {
	return &StickyState{active: make(map[keys.Code]struct{})}
}

// IsActive reports whether code is latched.
func (s *StickyState) IsActive(code keys.Code) bool {
	_, ok := s.active[code]
	return ok
}

// Toggle latches or unlatches code and reports whether it is now latched.
func (s *StickyState) Toggle(code keys.Code) bool {
	if s.IsActive(code) {
		delete(s.active, code)
		return false
	}
	s.active[code] = struct{}{}
	return true
}

// Len returns the number of latched keys.
func (s *StickyState) Len() int { return len(s.active) }

// Release unlatches every key and returns them in code order.
func (s *StickyState) Release() []keys.Code {
	if len(s.active) == 0 {
		return nil
	}
	out := make([]keys.Code, 0, len(s.active))
	for c := range s.active {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	clear(s.active)
	return out
}

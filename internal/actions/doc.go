// Package actions disambiguates what a key press means.
//
// Three stages run in a fixed order for every key event: TapHold, TapDance
// and TapMod. Each returns an Outcome holding the effects to perform now
// and whether later stages should see the event. When no stage claims the
// event, Fallback maps it through the current layer.
//
// Timing is taken from event timestamps, not the wall clock, so a stage
// only changes its mind when a later event (or an explicit Expire) arrives.
package actions

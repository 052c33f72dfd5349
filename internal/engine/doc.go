// Package engine owns the shared remapping state and the dispatch chain.
//
// All key handling goes through one Engine, whatever device the event came
// from. Each call takes the engine's Lock for the whole dispatch, including
// writes to the output device, so effects from different devices are never
// interleaved and are applied in one global order.
//
// # Dispatch
//
// HandleKeyEvent runs the event through tap-hold, tap-dance and tap-mod in
// that order. Each stage's effects are performed before the next stage
// runs; a stage that stops processing ends the dispatch. When no stage
// stops, the layer's fallback effect is performed.
//
// PassThrough writes any other event to the output unchanged.
//
// # Poisoning
//
// A panic during dispatch poisons the Lock. That call returns an error
// wrapping ErrPoisoned, and every later call returns ErrPoisoned, because
// the shared state may have been left half-updated.
//
// # Lock vs channel
//
// Readers call into the Engine directly under a mutex rather than sending
// events to a single consumer goroutine. Contention only happens when two
// devices produce events in the same instant, and a caller sees its own
// output errors synchronously.
package engine

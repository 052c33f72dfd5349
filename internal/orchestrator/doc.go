// Package orchestrator captures input devices and feeds their events into
// the remapping engine.
//
// One reader goroutine runs per device. Each reader owns its input source
// exclusively and funnels every event through the engine's single lock, so
// effects from all devices are applied in one global order while each
// device's own events stay in sequence.
//
// # Modes
//
// Static (watch disabled): Run waits for every reader; the first reader
// failure cancels the rest and becomes Run's error.
//
// Hot-plug (watch enabled): a watcher goroutine starts a reader for every
// new device node. Reader failures are isolated; Run returns only when the
// context is cancelled or the engine is poisoned.
//
// Rejected devices (touchpads, the daemon's own output) are logged and
// skipped in both modes. A poisoned engine is fatal in both modes.
//
// # Usage
//
//	orch, err := orchestrator.New(orchestrator.Config{
//	    Devices: registry,
//	    Engine:  eng,
//	    Open:    orchestrator.InputOpener(input.Options{SelfName: out.Name()}),
//	    Logger:  log.Component("orchestrator"),
//	})
//	if err != nil {
//	    return err
//	}
//	return orch.Run(ctx)
package orchestrator

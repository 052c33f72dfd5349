package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/keymux/internal/device"
	"github.com/nerrad567/keymux/internal/engine"
	"github.com/nerrad567/keymux/internal/infrastructure/metrics"
	"github.com/nerrad567/keymux/internal/input"
	"github.com/nerrad567/keymux/internal/keys"
)

func newSessionID() string { return uuid.NewString() }

// readDevice is the body of one reader goroutine. It returns nil when the
// device is rejected or the run is cancelled, and the fatal error
// otherwise. Readers are never restarted.
func (o *Orchestrator) readDevice(ctx context.Context, p device.Path, ready func()) error {
	sessionID := o.newID()
	started := time.Now()

	src, err := o.open(ctx, p)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if input.IsUnsupported(err) {
			o.logger.Info("device not captured", "path", p, "reason", err)
			o.metrics.DeviceFailed(metrics.ReasonRejected)
			o.recordSession(sessionID, p, "", started, device.SessionRejected, err)
			o.notifier.Device(DeviceEvent{Path: p, Kind: DeviceRejected, Err: err})
			return nil
		}
		o.logger.Error("device open failed", "path", p, "error", err)
		o.metrics.DeviceFailed(metrics.ReasonOpen)
		o.recordSession(sessionID, p, "", started, device.SessionFailed, err)
		o.notifier.Device(DeviceEvent{Path: p, Kind: DeviceFailed, Err: err})
		return err
	}

	name := src.Name()
	o.rememberName(p, name)
	o.captured.Add(1)
	o.metrics.DeviceStarted()
	defer o.metrics.DeviceStopped()
	o.startSession(sessionID, p, name, started)
	o.notifier.Device(DeviceEvent{Path: p, Name: name, Kind: DeviceCaptured})

	// Close unblocks Read when the run is cancelled.
	stop := context.AfterFunc(ctx, func() { src.Close() }) //nolint:errcheck // reported by the deferred Close
	defer stop()
	defer func() {
		if err := src.Close(); err != nil {
			o.logger.Debug("closing device failed", "path", p, "error", err)
		}
	}()

	ready()

	err = o.pump(src)
	if ctx.Err() != nil && errors.Is(err, input.ErrClosed) {
		o.finishSession(sessionID, p, device.SessionClosed, nil)
		o.notifier.Device(DeviceEvent{Path: p, Name: name, Kind: DeviceReleased})
		return ctx.Err()
	}

	if errors.Is(err, engine.ErrPoisoned) {
		o.metrics.DeviceFailed(metrics.ReasonDispatch)
		o.fail(err)
	} else {
		o.metrics.DeviceFailed(metrics.ReasonRead)
		o.logger.Error("device reader stopped", "path", p, "name", name, "error", err)
	}
	o.finishSession(sessionID, p, device.SessionFailed, err)
	o.notifier.Device(DeviceEvent{Path: p, Name: name, Kind: DeviceFailed, Err: err})
	return err
}

// pump reads and dispatches events until the first error.
func (o *Orchestrator) pump(src Source) error {
	path := string(src.Path())
	for {
		raw, err := src.Read()
		if err != nil {
			return err
		}
		o.metrics.ObserveEvent(path, raw.Type)

		start := time.Now()
		if ev, convErr := keys.FromRaw(raw); convErr == nil {
			err = o.engine.HandleKeyEvent(ev)
		} else {
			err = o.engine.PassThrough(raw)
		}
		o.metrics.ObserveDispatch(time.Since(start))

		if err != nil {
			return err
		}
	}
}

func (o *Orchestrator) startSession(id string, p device.Path, name string, at time.Time) {
	if o.export != nil {
		o.export.WriteSession(string(p), name, string(device.SessionActive), at)
	}
	if o.sessions == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), sessionWriteTimeout)
	defer cancel()
	err := o.sessions.Start(ctx, device.Session{
		ID:        id,
		Path:      p,
		Name:      name,
		Status:    device.SessionActive,
		StartedAt: at,
	})
	if err != nil {
		o.logger.Warn("recording session failed", "path", p, "error", err)
	}
}

func (o *Orchestrator) finishSession(id string, p device.Path, status device.SessionStatus, cause error) {
	now := time.Now()
	if o.export != nil {
		o.export.WriteSession(string(p), o.DeviceName(p), string(status), now)
	}
	if o.sessions == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), sessionWriteTimeout)
	defer cancel()
	if err := o.sessions.Finish(ctx, id, status, errText(cause), now); err != nil {
		o.logger.Warn("recording session end failed", "path", p, "error", err)
	}
}

// recordSession stores a session that ended before the device was captured.
func (o *Orchestrator) recordSession(id string, p device.Path, name string, at time.Time, status device.SessionStatus, cause error) {
	if o.export != nil {
		o.export.WriteSession(string(p), name, string(status), at)
	}
	if o.sessions == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), sessionWriteTimeout)
	defer cancel()
	err := o.sessions.Start(ctx, device.Session{ID: id, Path: p, Name: name, Status: status, StartedAt: at})
	if err == nil {
		err = o.sessions.Finish(ctx, id, status, errText(cause), time.Now())
	}
	if err != nil {
		o.logger.Warn("recording session failed", "path", p, "error", err)
	}
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

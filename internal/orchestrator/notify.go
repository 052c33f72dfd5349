package orchestrator

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/nerrad567/keymux/internal/device"
	"github.com/nerrad567/keymux/internal/layers"
)

const defaultNotifyBuffer = 256

// DeviceEventKind classifies a device lifecycle change.
type DeviceEventKind string

const (
	DeviceCaptured DeviceEventKind = "captured"
	DeviceReleased DeviceEventKind = "released"
	DeviceRejected DeviceEventKind = "rejected"
	DeviceFailed   DeviceEventKind = "failed"
)

// DeviceEvent describes a device lifecycle change.
type DeviceEvent struct {
	Path device.Path
	Name string
	Kind DeviceEventKind
	Err  error
	At   time.Time
}

// Sink receives notifications, one at a time, from the Notifier goroutine.
type Sink interface {
	LayerChanged(c layers.Change) error
	DeviceChanged(ev DeviceEvent) error
}

type notification struct {
	layer  *layers.Change
	device *DeviceEvent
}

// Notifier decouples the engine lock from slow notification sinks. Layer
// and Device never block; when the buffer is full the notification is
// dropped and counted.
type Notifier struct {
	ch      chan notification
	sinks   []Sink
	logger  Logger
	dropped atomic.Uint64
}

// NewNotifier creates a notifier delivering to sinks. A buffer <= 0 uses
// the default.
func NewNotifier(buffer int, logger Logger, sinks ...Sink) *Notifier {
	if buffer <= 0 {
		buffer = defaultNotifyBuffer
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &Notifier{
		ch:     make(chan notification, buffer),
		sinks:  sinks,
		logger: logger,
	}
}

// Layer queues a layer change. It matches layers.Notifier and is safe to
// call with the engine lock held.
func (n *Notifier) Layer(c layers.Change) {
	if n == nil {
		return
	}
	n.enqueue(notification{layer: &c})
}

// Device queues a device lifecycle change.
func (n *Notifier) Device(ev DeviceEvent) {
	if n == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	n.enqueue(notification{device: &ev})
}

func (n *Notifier) enqueue(msg notification) {
	select {
	case n.ch <- msg:
	default:
		n.dropped.Add(1)
	}
}

// Dropped returns how many notifications were discarded.
func (n *Notifier) Dropped() uint64 {
	if n == nil {
		return 0
	}
	return n.dropped.Load()
}

// Run delivers queued notifications until ctx is done, then flushes what
// is already queued.
func (n *Notifier) Run(ctx context.Context) {
	for {
		select {
		case msg := <-n.ch:
			n.deliver(msg)
		case <-ctx.Done():
			for {
				select {
				case msg := <-n.ch:
					n.deliver(msg)
				default:
					return
				}
			}
		}
	}
}

func (n *Notifier) deliver(msg notification) {
	for _, s := range n.sinks {
		var err error
		if msg.layer != nil {
			err = s.LayerChanged(*msg.layer)
		} else {
			err = s.DeviceChanged(*msg.device)
		}
		if err != nil {
			n.logger.Debug("notification not delivered", "error", err)
		}
	}
}

package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	evdev "github.com/holoplot/go-evdev"

	"github.com/nerrad567/keymux/internal/device"
	"github.com/nerrad567/keymux/internal/infrastructure/influxdb"
	"github.com/nerrad567/keymux/internal/infrastructure/metrics"
	"github.com/nerrad567/keymux/internal/layers"
)

type recordSink struct {
	mu      sync.Mutex
	layers  []layers.Change
	devices []DeviceEvent
	err     error
}

func (r *recordSink) LayerChanged(c layers.Change) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.layers = append(r.layers, c)
	return r.err
}

func (r *recordSink) DeviceChanged(ev DeviceEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.devices = append(r.devices, ev)
	return r.err
}

func (r *recordSink) deviceKinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.devices))
	for i, ev := range r.devices {
		out[i] = string(ev.Path) + "=" + string(ev.Kind)
	}
	return out
}

func TestNotifier_DeliversToAllSinks(t *testing.T) {
	a := &recordSink{}
	b := &recordSink{err: errors.New("broker offline")}
	n := NewNotifier(8, nil, a, b)

	n.Layer(layers.Change{Layer: 1, Name: "nav", Enabled: true, Active: []int{0, 1}})
	n.Device(DeviceEvent{Path: "/dev/input/event3", Kind: DeviceCaptured})

	// A cancelled context still flushes what is queued.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	n.Run(ctx)

	for name, s := range map[string]*recordSink{"a": a, "b": b} {
		if len(s.layers) != 1 || s.layers[0].Name != "nav" {
			t.Errorf("sink %s layers = %+v, want one nav change", name, s.layers)
		}
		if len(s.devices) != 1 || s.devices[0].Kind != DeviceCaptured {
			t.Errorf("sink %s devices = %+v, want one captured event", name, s.devices)
		}
		if len(s.devices) == 1 && s.devices[0].At.IsZero() {
			t.Errorf("sink %s device event has no timestamp", name)
		}
	}
}

func TestNotifier_DropsWhenFull(t *testing.T) {
	n := NewNotifier(1, nil)
	n.Device(DeviceEvent{Path: "/dev/input/event1", Kind: DeviceCaptured})
	n.Device(DeviceEvent{Path: "/dev/input/event2", Kind: DeviceCaptured})
	n.Layer(layers.Change{Layer: 2})

	if got := n.Dropped(); got != 2 {
		t.Errorf("Dropped() = %d, want 2", got)
	}
}

func TestNotifier_NilSafe(t *testing.T) {
	var n *Notifier
	n.Layer(layers.Change{})
	n.Device(DeviceEvent{})
	if n.Dropped() != 0 {
		t.Error("Dropped() on nil notifier should be 0")
	}
}

type recordCounts struct {
	mu     sync.Mutex
	writes [][]influxdb.EventCounts
}

func (r *recordCounts) WriteEventCounts(counts []influxdb.EventCounts, _ time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writes = append(r.writes, counts)
}

func TestNewTelemetry_Validation(t *testing.T) {
	m := metrics.New()
	w := &recordCounts{}

	if _, err := NewTelemetry(0, m, w, nil, nil); err == nil {
		t.Error("NewTelemetry(0) error = nil, want error")
	}
	if _, err := NewTelemetry(time.Second, nil, w, nil, nil); err == nil {
		t.Error("NewTelemetry(nil metrics) error = nil, want error")
	}
	if _, err := NewTelemetry(time.Second, m, nil, nil, nil); err == nil {
		t.Error("NewTelemetry(nil writer) error = nil, want error")
	}
}

func TestTelemetry_Collect(t *testing.T) {
	m := metrics.New()
	w := &recordCounts{}
	names := func(p device.Path) string {
		if p == "/dev/input/event1" {
			return "Test Keyboard"
		}
		return ""
	}

	tel, err := NewTelemetry(time.Hour, m, w, names, nil)
	if err != nil {
		t.Fatalf("NewTelemetry() error = %v", err)
	}

	m.ObserveEvent("/dev/input/event1", evdev.EV_KEY)
	m.ObserveEvent("/dev/input/event1", evdev.EV_KEY)
	m.ObserveEvent("/dev/input/event1", evdev.EV_SYN)
	m.ObserveEvent("/dev/input/event2", evdev.EV_REL)

	tel.Collect(time.Now())

	if len(w.writes) != 1 {
		t.Fatalf("writes = %d, want 1", len(w.writes))
	}
	got := w.writes[0]
	if len(got) != 2 {
		t.Fatalf("len(counts) = %d, want 2", len(got))
	}
	if got[0].Name != "Test Keyboard" || got[0].Counts["key"] != 2 || got[0].Counts["syn"] != 1 {
		t.Errorf("counts[0] = %+v, want Test Keyboard with key=2 syn=1", got[0])
	}
	if got[1].Path != "/dev/input/event2" || got[1].Counts["rel"] != 1 {
		t.Errorf("counts[1] = %+v, want event2 with rel=1", got[1])
	}

	// Drained: nothing to write until new events arrive.
	tel.Collect(time.Now())
	if len(w.writes) != 1 {
		t.Errorf("writes after empty collect = %d, want 1", len(w.writes))
	}

	tel.Start()
	m.ObserveEvent("/dev/input/event2", evdev.EV_KEY)
	if err := tel.Stop(); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
	if len(w.writes) != 2 {
		t.Errorf("writes after Stop = %d, want 2 (final snapshot)", len(w.writes))
	}
}

package metrics

import (
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/holoplot/go-evdev"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "keymux"

// Device failure reasons.
const (
	ReasonOpen     = "open"
	ReasonRejected = "rejected"
	ReasonRead     = "read"
	ReasonDispatch = "dispatch"
)

// Metrics owns a private registry so tests can create as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	events         *prometheus.CounterVec
	dispatch       prometheus.Histogram
	devicesActive  prometheus.Gauge
	deviceFailures *prometheus.CounterVec
	ipcRequests    *prometheus.CounterVec

	tally *Tally
}

// New registers all keymux instruments plus the Go runtime and process
// collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Input events read, by device and event kind.",
		}, []string{"device", "kind"}),
		dispatch: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_seconds",
			Help:      "Time spent dispatching one input event.",
			Buckets:   []float64{.00005, .0001, .00025, .0005, .001, .0025, .005, .01, .025},
		}),
		devicesActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "devices_active",
			Help:      "Input devices currently captured.",
		}),
		deviceFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "device_failures_total",
			Help:      "Device capture failures, by reason.",
		}, []string{"reason"}),
		ipcRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ipc_requests_total",
			Help:      "IPC effect requests, by result.",
		}, []string{"result"}),
		tally: NewTally(),
	}

	m.registry.MustRegister(
		m.events,
		m.dispatch,
		m.devicesActive,
		m.deviceFailures,
		m.ipcRequests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveEvent counts one event read from device.
func (m *Metrics) ObserveEvent(device string, t evdev.EvType) {
	if m == nil {
		return
	}
	kind := EventKind(t)
	m.events.WithLabelValues(device, kind).Inc()
	m.tally.Add(device, kind)
}

// ObserveDispatch records how long one dispatch took.
func (m *Metrics) ObserveDispatch(d time.Duration) {
	if m == nil {
		return
	}
	m.dispatch.Observe(d.Seconds())
}

// DeviceStarted increments the active device gauge.
func (m *Metrics) DeviceStarted() {
	if m == nil {
		return
	}
	m.devicesActive.Inc()
}

// DeviceStopped decrements the active device gauge.
func (m *Metrics) DeviceStopped() {
	if m == nil {
		return
	}
	m.devicesActive.Dec()
}

// DeviceFailed counts a capture failure.
func (m *Metrics) DeviceFailed(reason string) {
	if m == nil {
		return
	}
	m.deviceFailures.WithLabelValues(reason).Inc()
}

// IPCRequest counts an IPC request by outcome.
func (m *Metrics) IPCRequest(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.ipcRequests.WithLabelValues(result).Inc()
}

// DrainTally returns the per-device counts since the last drain.
func (m *Metrics) DrainTally() []DeviceCounts {
	if m == nil {
		return nil
	}
	return m.tally.Drain()
}

// EventKind names an evdev event type for labels and telemetry fields.
func EventKind(t evdev.EvType) string {
	switch t {
	case evdev.EV_KEY:
		return "key"
	case evdev.EV_REL:
		return "rel"
	case evdev.EV_ABS:
		return "abs"
	case evdev.EV_MSC:
		return "msc"
	case evdev.EV_SYN:
		return "syn"
	case evdev.EV_LED:
		return "led"
	default:
		return "other"
	}
}

// DeviceCounts is one device's tally between two drains.
type DeviceCounts struct {
	Device string
	Counts map[string]uint64
}

// Tally counts events per device and kind until drained.
type Tally struct {
	mu     sync.Mutex
	counts map[string]map[string]uint64
}

// NewTally returns an empty tally.
func NewTally() *Tally {
	return &Tally{counts: make(map[string]map[string]uint64)}
}

// Add counts one event.
func (t *Tally) Add(device, kind string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	byKind := t.counts[device]
	if byKind == nil {
		byKind = make(map[string]uint64)
		t.counts[device] = byKind
	}
	byKind[kind]++
}

// Drain returns the counts sorted by device and resets the tally.
func (t *Tally) Drain() []DeviceCounts {
	t.mu.Lock()
	counts := t.counts
	t.counts = make(map[string]map[string]uint64)
	t.mu.Unlock()

	out := make([]DeviceCounts, 0, len(counts))
	for device, byKind := range counts {
		out = append(out, DeviceCounts{Device: device, Counts: byKind})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Device < out[j].Device })
	return out
}

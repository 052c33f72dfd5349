package orchestrator

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/nerrad567/keymux/internal/device"
	"github.com/nerrad567/keymux/internal/infrastructure/influxdb"
	"github.com/nerrad567/keymux/internal/infrastructure/metrics"
)

// EventCountWriter stores per-device event counts. *influxdb.Client
// satisfies it.
type EventCountWriter interface {
	WriteEventCounts(counts []influxdb.EventCounts, at time.Time)
}

// Telemetry periodically drains the metrics tally into an EventCountWriter.
type Telemetry struct {
	scheduler gocron.Scheduler
	metrics   *metrics.Metrics
	writer    EventCountWriter
	names     func(device.Path) string
	logger    Logger
}

// NewTelemetry schedules a snapshot every interval. names resolves device
// paths to kernel names and may be nil.
func NewTelemetry(interval time.Duration, m *metrics.Metrics, w EventCountWriter, names func(device.Path) string, logger Logger) (*Telemetry, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("telemetry: interval must be positive, got %v", interval)
	}
	if m == nil || w == nil {
		return nil, errors.New("telemetry: metrics and writer are required")
	}
	if logger == nil {
		logger = noopLogger{}
	}

	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("telemetry: creating scheduler: %w", err)
	}

	t := &Telemetry{scheduler: s, metrics: m, writer: w, names: names, logger: logger}
	_, err = s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() { t.Collect(time.Now()) }),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithName("device-event-telemetry"),
	)
	if err != nil {
		s.Shutdown() //nolint:errcheck // scheduler never started
		return nil, fmt.Errorf("telemetry: scheduling job: %w", err)
	}
	return t, nil
}

// Start begins the schedule.
func (t *Telemetry) Start() {
	t.scheduler.Start()
	t.logger.Debug("telemetry started")
}

// Stop ends the schedule and writes a final snapshot.
func (t *Telemetry) Stop() error {
	err := t.scheduler.Shutdown()
	t.Collect(time.Now())
	return err
}

// Collect drains the tally and writes it.
func (t *Telemetry) Collect(at time.Time) {
	drained := t.metrics.DrainTally()
	if len(drained) == 0 {
		return
	}

	counts := make([]influxdb.EventCounts, 0, len(drained))
	for _, d := range drained {
		ec := influxdb.EventCounts{Path: d.Device, Counts: d.Counts}
		if t.names != nil {
			ec.Name = t.names(device.Path(d.Device))
		}
		counts = append(counts, ec)
	}
	t.writer.WriteEventCounts(counts, at)
	t.logger.Debug("telemetry written", "devices", len(counts))
}

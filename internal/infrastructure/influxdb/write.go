package influxdb

import (
	"sort"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementDeviceEvents  = "device_events"
	MeasurementDeviceSession = "device_session"
)

// EventCounts is a per-device tally of input events by kind ("key",
// "rel", "abs", "msc", "syn", "other") over one telemetry interval.
type EventCounts struct {
	Path   string
	Name   string
	Counts map[string]uint64
}

// Total returns the sum of all kinds.
func (e EventCounts) Total() uint64 {
	var n uint64
	for _, v := range e.Counts {
		n += v
	}
	return n
}

// WriteEventCounts records one device_events point per device.
//
// The write is non-blocking; points are batched and sent asynchronously.
// Devices with no events in the interval are skipped.
//
// Parameters:
//   - counts: Per-device tallies drained from the metrics registry
//   - at: End of the telemetry interval, used as the point timestamp
//
// Example:
//
//	client.WriteEventCounts([]influxdb.EventCounts{
//		{Path: "/dev/input/event3", Name: "AT Keyboard", Counts: map[string]uint64{"key": 42}},
//	}, time.Now())
func (c *Client) WriteEventCounts(counts []EventCounts, at time.Time) {
	if !c.IsConnected() {
		return
	}
	for _, p := range eventPoints(counts, at) {
		c.writeAPI.WritePoint(p)
	}
}

// WriteSession records a device capture lifecycle change.
//
// Parameters:
//   - path: Event node path, stored as the "device" tag
//   - name: Kernel device name (optional, empty omits the tag)
//   - status: Session status ("active", "closed", "failed", "rejected")
//   - at: Time of the change
func (c *Client) WriteSession(path, name, status string, at time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(sessionPoint(path, name, status, at))
}

func eventPoints(counts []EventCounts, at time.Time) []*write.Point {
	points := make([]*write.Point, 0, len(counts))
	for _, ec := range counts {
		total := ec.Total()
		if total == 0 {
			continue
		}

		kinds := make([]string, 0, len(ec.Counts))
		for k := range ec.Counts {
			kinds = append(kinds, k)
		}
		sort.Strings(kinds)

		p := write.NewPointWithMeasurement(MeasurementDeviceEvents).
			AddTag("device", ec.Path).
			AddField("total", total).
			SetTime(at)
		if ec.Name != "" {
			p.AddTag("name", ec.Name)
		}
		for _, k := range kinds {
			p.AddField(k, ec.Counts[k])
		}
		points = append(points, p)
	}
	return points
}

func sessionPoint(path, name, status string, at time.Time) *write.Point {
	p := write.NewPointWithMeasurement(MeasurementDeviceSession).
		AddTag("device", path).
		AddField("status", status).
		SetTime(at)
	if name != "" {
		p.AddTag("name", name)
	}
	return p
}

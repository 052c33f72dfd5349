// Package metrics holds the Prometheus instruments for keymux and a
// per-device event tally that the telemetry job drains into InfluxDB.
//
// All methods are safe on a nil *Metrics, so callers never need to check
// whether metrics are enabled.
//
// # Exposed series
//
//	keymux_events_total{device,kind}         input events read
//	keymux_dispatch_seconds                  time spent dispatching one event
//	keymux_devices_active                    devices currently captured
//	keymux_device_failures_total{reason}     capture failures
//	keymux_ipc_requests_total{result}        IPC effect requests
package metrics

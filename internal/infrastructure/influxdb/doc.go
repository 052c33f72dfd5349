// Package influxdb exports keymux telemetry to InfluxDB v2.
//
// Two measurements are written:
//
//	device_events   tags: device, name   fields: total plus one per event kind
//	device_session  tags: device, name   fields: status
//
// device_events points are produced by the periodic telemetry job from
// per-device counters; device_session points follow capture lifecycle
// changes.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.SetOnError(func(err error) { log.Warn("influx write", "error", err) })
//	client.WriteEventCounts(counts, time.Now())
package influxdb

package mqtt

import (
	"encoding/json"
	"fmt"
	"time"
)

// LayerNotification is published on Topics.Layer whenever the active layer
// stack changes.
type LayerNotification struct {
	Active    []int  `json:"active"`
	Top       int    `json:"top"`
	Reason    string `json:"reason,omitempty"`
	Timestamp string `json:"timestamp"`
}

// DeviceNotification is published on Topics.Device when a device is
// captured, released or rejected.
type DeviceNotification struct {
	Path      string `json:"path"`
	Name      string `json:"name,omitempty"`
	Event     string `json:"event"`
	Error     string `json:"error,omitempty"`
	Timestamp string `json:"timestamp"`
}

// Device notification events.
const (
	DeviceCaptured = "captured"
	DeviceReleased = "released"
	DeviceRejected = "rejected"
	DeviceFailed   = "failed"
)

// NotifyLayer publishes the active layer stack.
func (c *Client) NotifyLayer(active []int, reason string) error {
	n := LayerNotification{
		Active:    active,
		Reason:    reason,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
	if len(active) > 0 {
		n.Top = active[len(active)-1]
	}
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encoding layer notification: %w", err)
	}
	return c.PublishDefault(Topics{}.Layer(), payload)
}

// NotifyDevice publishes a device lifecycle event.
func (c *Client) NotifyDevice(n DeviceNotification) error {
	if n.Timestamp == "" {
		n.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encoding device notification: %w", err)
	}
	return c.PublishDefault(Topics{}.Device(), payload)
}

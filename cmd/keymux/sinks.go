package main

import (
	"fmt"
	"time"

	"github.com/nerrad567/keymux/internal/api"
	"github.com/nerrad567/keymux/internal/effects"
	"github.com/nerrad567/keymux/internal/infrastructure/metrics"
	"github.com/nerrad567/keymux/internal/infrastructure/mqtt"
	"github.com/nerrad567/keymux/internal/keymap"
	"github.com/nerrad567/keymux/internal/keys"
	"github.com/nerrad567/keymux/internal/layers"
	"github.com/nerrad567/keymux/internal/orchestrator"
)

// notifyPublisher publishes layer and device changes. *mqtt.Client
// satisfies it.
type notifyPublisher interface {
	NotifyLayer(active []int, reason string) error
	NotifyDevice(n mqtt.DeviceNotification) error
}

type mqttSink struct {
	client notifyPublisher
}

func (s mqttSink) LayerChanged(c layers.Change) error {
	return s.client.NotifyLayer(c.Active, layerReason(c))
}

func (s mqttSink) DeviceChanged(ev orchestrator.DeviceEvent) error {
	n := mqtt.DeviceNotification{
		Path:      string(ev.Path),
		Name:      ev.Name,
		Event:     string(ev.Kind),
		Timestamp: ev.At.UTC().Format(time.RFC3339Nano),
	}
	if ev.Err != nil {
		n.Error = ev.Err.Error()
	}
	return s.client.NotifyDevice(n)
}

type hubSink struct {
	hub *api.Hub
}

func (s hubSink) LayerChanged(c layers.Change) error {
	s.hub.Broadcast(api.ChannelLayer, c)
	return nil
}

func (s hubSink) DeviceChanged(ev orchestrator.DeviceEvent) error {
	payload := map[string]any{
		"path":      ev.Path,
		"event":     ev.Kind,
		"timestamp": ev.At.UTC().Format(time.RFC3339Nano),
	}
	if ev.Name != "" {
		payload["name"] = ev.Name
	}
	if ev.Err != nil {
		payload["error"] = ev.Err.Error()
	}
	s.hub.Broadcast(api.ChannelDevice, payload)
	return nil
}

func layerReason(c layers.Change) string {
	state := "off"
	if c.Enabled {
		state = "on"
	}
	name := c.Name
	if name == "" {
		name = fmt.Sprint(c.Layer)
	}
	return name + " " + state
}

// performer applies effects under the engine lock. *engine.Engine
// satisfies it.
type performer interface {
	Perform(v effects.Value) error
}

// effectHandler serves IPC effect requests. A request without a value is
// a full tap.
func effectHandler(p performer, m *metrics.Metrics) mqtt.EffectHandler {
	return func(req mqtt.EffectRequest) error {
		err := performRequest(p, req)
		m.IPCRequest(err == nil)
		return err
	}
}

func performRequest(p performer, req mqtt.EffectRequest) error {
	eff, err := keymap.ParseEffect(req.Effect)
	if err != nil {
		return err
	}
	if req.Value != nil {
		return p.Perform(eff.With(keys.Value(*req.Value)))
	}
	for _, v := range effects.Tap(eff) {
		if err := p.Perform(v); err != nil {
			return err
		}
	}
	return nil
}

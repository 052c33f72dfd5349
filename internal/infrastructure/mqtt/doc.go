// Package mqtt connects keymux to an MQTT broker.
//
// The broker is optional. When enabled, the daemon:
//   - publishes a retained online/offline status, with an LWT for crashes
//   - announces layer changes and device capture events
//   - accepts effect requests from other programs and replies to each
//
// # Topics
//
//	keymux/system/status   retained online/offline
//	keymux/notify/layer    LayerNotification
//	keymux/notify/device   DeviceNotification
//	keymux/ipc/effect      EffectRequest (subscribed)
//	keymux/ipc/reply       EffectReply
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.ServeEffects(func(req mqtt.EffectRequest) error {
//	    eff, err := keymap.ParseEffect(req.Effect)
//	    if err != nil {
//	        return err
//	    }
//	    return engine.Perform(eff, 1)
//	})
package mqtt

package mqtt

import "fmt"

// TopicPrefix is the root of every keymux topic.
const TopicPrefix = "keymux"

// Topics provides builders for keymux MQTT topics.
//
//	topics := mqtt.Topics{}
//	topics.Layer()       // keymux/notify/layer
//	topics.IPCEffect()   // keymux/ipc/effect
type Topics struct{}

// SystemStatus carries the retained online/offline status and the LWT.
//
// Example: keymux/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/system/status", TopicPrefix)
}

// Layer carries layer change notifications.
//
// Example: keymux/notify/layer
func (Topics) Layer() string {
	return fmt.Sprintf("%s/notify/layer", TopicPrefix)
}

// Device carries device capture notifications.
//
// Example: keymux/notify/device
func (Topics) Device() string {
	return fmt.Sprintf("%s/notify/device", TopicPrefix)
}

// IPCEffect receives effect requests from other programs.
//
// Example: keymux/ipc/effect
func (Topics) IPCEffect() string {
	return fmt.Sprintf("%s/ipc/effect", TopicPrefix)
}

// IPCReply carries the outcome of each effect request.
//
// Example: keymux/ipc/reply
func (Topics) IPCReply() string {
	return fmt.Sprintf("%s/ipc/reply", TopicPrefix)
}

// AllNotifications matches every notification topic.
//
// Pattern: keymux/notify/+
func (Topics) AllNotifications() string {
	return fmt.Sprintf("%s/notify/+", TopicPrefix)
}

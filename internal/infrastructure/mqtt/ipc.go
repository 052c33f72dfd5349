package mqtt

import (
	"encoding/json"
	"fmt"
)

// EffectRequest asks the daemon to perform one effect, written in keymap
// syntax, e.g. "Key(KEY_VOLUMEUP)", "ToggleLayer(1)" or "ToggleLayerAlias(nav)".
type EffectRequest struct {
	ID     string `json:"id"`
	Effect string `json:"effect"`
	// Value is the key value to perform with: 1 press, 0 release.
	// Omitted means a full tap.
	Value *int32 `json:"value,omitempty"`
}

// EffectReply reports the outcome of an EffectRequest.
type EffectReply struct {
	ID    string `json:"id"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// EffectHandler performs a decoded request.
type EffectHandler func(req EffectRequest) error

// HandleEffectRequest decodes payload, runs handle and builds the reply.
func HandleEffectRequest(payload []byte, handle EffectHandler) EffectReply {
	var req EffectRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return EffectReply{Error: fmt.Sprintf("%v: %v", ErrInvalidRequest, err)}
	}
	if req.Effect == "" {
		return EffectReply{ID: req.ID, Error: fmt.Sprintf("%v: effect is required", ErrInvalidRequest)}
	}
	if req.Value != nil && *req.Value != 0 && *req.Value != 1 {
		return EffectReply{ID: req.ID, Error: fmt.Sprintf("%v: value must be 0 or 1", ErrInvalidRequest)}
	}
	if err := handle(req); err != nil {
		return EffectReply{ID: req.ID, Error: err.Error()}
	}
	return EffectReply{ID: req.ID, OK: true}
}

// ServeEffects subscribes to the IPC effect topic. Every request gets a
// reply on Topics.IPCReply.
func (c *Client) ServeEffects(handle EffectHandler) error {
	if handle == nil {
		return fmt.Errorf("%w: handler cannot be nil", ErrSubscribeFailed)
	}
	return c.Subscribe(Topics{}.IPCEffect(), byte(c.cfg.QoS), func(_ string, payload []byte) error {
		reply := HandleEffectRequest(payload, handle)
		data, err := json.Marshal(reply)
		if err != nil {
			return fmt.Errorf("encoding reply: %w", err)
		}
		return c.PublishDefault(Topics{}.IPCReply(), data)
	})
}

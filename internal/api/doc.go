// Package api serves the read-only keymux status API.
//
// Endpoints:
//   - GET /api/v1/health    liveness; 503 once the engine is poisoned
//   - GET /api/v1/devices   captured devices and their reader status
//   - GET /api/v1/layers    active layers and pending key state
//   - GET /api/v1/sessions  recent capture sessions (database enabled)
//   - GET /api/v1/ws        websocket stream of layer and device events
//   - GET /metrics          Prometheus exposition
//
// The server binds to localhost by default and has no authentication; it
// never changes daemon state.
package api

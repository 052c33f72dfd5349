// Package device discovers input device nodes and records their capture
// sessions.
//
// # Discovery
//
// A Registry is built once at startup. With no explicit paths it enumerates
// the input root (normally /dev/input) and remembers every entry named
// event<N>. With explicit paths it remembers exactly those, and hot-plug
// discovery is then limited to them.
//
// When watching is enabled the Registry also subscribes to node creation
// in the root directory through fsnotify. Watch blocks until a new,
// acceptable node appears and returns its path:
//
//	reg, err := device.NewRegistry(device.Options{Watch: true})
//	if err != nil {
//	    return err
//	}
//	defer reg.Close()
//
//	for {
//	    path, err := reg.Watch(ctx)
//	    if err != nil {
//	        return err
//	    }
//	    startReader(path)
//	}
//
// Calling Watch on a registry built without watching returns
// ErrWatchDisabled.
//
// # Sessions
//
// Every capture attempt is recorded as a Session (path, device name,
// outcome, timestamps). SQLiteSessionRepository persists them in the
// device_sessions table.
package device

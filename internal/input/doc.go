// Package input captures physical input devices.
//
// Open binds a Source to one evdev node. Inside a bounded retry loop it
// opens the node, refuses devices it cannot remap (anything reporting
// absolute axes, and the daemon's own virtual keyboard), then takes an
// exclusive grab. Only permission errors are retried: udev usually fixes
// up node permissions a few milliseconds after the node appears.
//
// # Usage
//
//	src, err := input.Open(ctx, "/dev/input/event3", input.Options{
//	    SelfName: output.DefaultName,
//	    Retry:    retry.DefaultPolicy(),
//	})
//	if err != nil {
//	    return err
//	}
//	defer src.Close()
//
//	for {
//	    ev, err := src.Read()
//	    if err != nil {
//	        return err // fatal for this device
//	    }
//	    handle(ev)
//	}
//
// Every error returned by a Source is an *Error carrying the device path.
package input

// Package worker tracks long-running goroutines by name.
//
// The orchestrator runs one reader per captured device. Each reader is
// started through a Registry, which keeps a handle and a lifecycle status
// for it so callers can wait on a specific worker, list what is running,
// or join all of them and collect the first failure.
//
// Workers are never restarted. A worker whose task returns an error is
// marked failed and stays in the registry until a new worker is started
// under the same name.
//
// # Usage
//
//	reg := worker.NewRegistry(worker.Config{
//	    OnStop: func(name string, err error) { log.Printf("%s: %v", name, err) },
//	})
//
//	_, err := reg.Start(ctx, "/dev/input/event3", func(ctx context.Context, ready func()) error {
//	    src, err := open()
//	    if err != nil {
//	        return err
//	    }
//	    ready()
//	    return loop(ctx, src)
//	})
//
//	if err := reg.Wait(); err != nil {
//	    log.Fatal(err)
//	}
package worker

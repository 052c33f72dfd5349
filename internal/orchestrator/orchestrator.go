package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	evdev "github.com/holoplot/go-evdev"
	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/keymux/internal/device"
	"github.com/nerrad567/keymux/internal/engine"
	"github.com/nerrad567/keymux/internal/infrastructure/metrics"
	"github.com/nerrad567/keymux/internal/input"
	"github.com/nerrad567/keymux/internal/keys"
	"github.com/nerrad567/keymux/internal/worker"
)

// minTickInterval bounds the tap-dance ticker for very short waits.
const minTickInterval = time.Millisecond

// sessionWriteTimeout bounds session history writes.
const sessionWriteTimeout = 2 * time.Second

// Source is a captured device. *input.Source satisfies it.
type Source interface {
	Path() device.Path
	Name() string
	Read() (*evdev.InputEvent, error)
	Close() error
}

// OpenFunc captures the device at path.
type OpenFunc func(ctx context.Context, path device.Path) (Source, error)

// InputOpener adapts input.Open to an OpenFunc.
func InputOpener(opts input.Options) OpenFunc {
	return func(ctx context.Context, path device.Path) (Source, error) {
		return input.Open(ctx, path, opts)
	}
}

// Devices supplies the initial device set and hot-plug discoveries.
// *device.Registry satisfies it.
type Devices interface {
	Known() []device.Path
	Watching() bool
	Watch(ctx context.Context) (device.Path, error)
}

// Dispatcher is the remapping engine. *engine.Engine satisfies it.
type Dispatcher interface {
	HandleKeyEvent(ev keys.KeyEvent) error
	PassThrough(raw *evdev.InputEvent) error
	Tick(now time.Time) error
	TapDanceWait() time.Duration
}

// SessionWriter exports session lifecycle changes, e.g. to InfluxDB.
// *influxdb.Client satisfies it.
type SessionWriter interface {
	WriteSession(path, name, status string, at time.Time)
}

// Logger defines the logging interface used by the orchestrator.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Config holds the collaborators of an Orchestrator.
type Config struct {
	Devices Devices
	Engine  Dispatcher
	Open    OpenFunc

	// Optional.
	Sessions      device.SessionRepository
	SessionWriter SessionWriter
	Metrics       *metrics.Metrics
	Notifier      *Notifier
	Logger        Logger

	// NewID generates session IDs. Defaults to uuid.NewString.
	NewID func() string
}

// Orchestrator supervises device readers.
type Orchestrator struct {
	devices  Devices
	engine   Dispatcher
	open     OpenFunc
	sessions device.SessionRepository
	export   SessionWriter
	metrics  *metrics.Metrics
	notifier *Notifier
	logger   Logger
	newID    func() string

	readers  *worker.Registry
	services *worker.Registry

	running  atomic.Bool
	captured atomic.Int64

	namesMu sync.RWMutex
	names   map[device.Path]string

	failMu   sync.Mutex
	fatalErr error
	cancel   context.CancelFunc
}

// New validates cfg.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Devices == nil {
		return nil, errors.New("orchestrator: device registry is required")
	}
	if cfg.Engine == nil {
		return nil, errors.New("orchestrator: engine is required")
	}
	if cfg.Open == nil {
		return nil, errors.New("orchestrator: open function is required")
	}

	o := &Orchestrator{
		devices:  cfg.Devices,
		engine:   cfg.Engine,
		open:     cfg.Open,
		sessions: cfg.Sessions,
		export:   cfg.SessionWriter,
		metrics:  cfg.Metrics,
		notifier: cfg.Notifier,
		logger:   cfg.Logger,
		newID:    cfg.NewID,
		names:    make(map[device.Path]string),
	}
	if o.logger == nil {
		o.logger = noopLogger{}
	}
	if o.newID == nil {
		o.newID = newSessionID
	}

	o.readers = worker.NewRegistry(worker.Config{
		OnStop: func(name string, _ error) { o.forgetName(device.Path(name)) },
	})
	o.readers.SetLogger(o.logger)
	o.services = worker.NewRegistry(worker.Config{})
	o.services.SetLogger(o.logger)
	return o, nil
}

// Readers exposes the device reader registry.
func (o *Orchestrator) Readers() *worker.Registry { return o.readers }

// Services exposes the registry of internal goroutines (watcher, ticker,
// notifier).
func (o *Orchestrator) Services() *worker.Registry { return o.services }

// Run starts readers for the known devices and blocks until the run ends.
// See the package documentation for the mode semantics. Cancelling ctx
// releases every device and returns nil.
func (o *Orchestrator) Run(ctx context.Context) error {
	if !o.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	o.failMu.Lock()
	o.cancel = cancel
	o.failMu.Unlock()
	defer cancel()

	// The notifier outlives the readers so release events are delivered.
	notifyCtx, stopNotify := context.WithCancel(context.WithoutCancel(ctx))
	defer stopNotify()
	if o.notifier != nil {
		o.startService(notifyCtx, "notifier", func(ctx context.Context, ready func()) error {
			ready()
			o.notifier.Run(ctx)
			return nil
		})
	}
	o.startService(runCtx, "tap-dance-ticker", o.tickLoop)

	known := o.devices.Known()
	o.logger.Info("starting device readers", "devices", len(known), "watch", o.devices.Watching())

	started := make([]*worker.Worker, 0, len(known))
	for _, p := range known {
		w, err := o.startReader(runCtx, p)
		if err != nil {
			o.logger.Warn("device listed twice", "path", p, "error", err)
			continue
		}
		started = append(started, w)
	}

	var err error
	if o.devices.Watching() {
		watcher := o.startService(runCtx, "watcher", o.watchLoop)
		<-runCtx.Done()
		if watcher != nil {
			// No readers may be started once we wait on them.
			watcher.Wait() //nolint:errcheck // logged by watchLoop
		}
	} else {
		err = o.joinReaders(started, cancel)
	}

	cancel()
	o.readers.Wait() //nolint:errcheck // failures already reported
	stopNotify()
	o.services.Wait() //nolint:errcheck // failures already reported

	if fatal := o.fatal(); fatal != nil {
		return fatal
	}
	if err != nil {
		return err
	}
	if !o.devices.Watching() && o.captured.Load() == 0 && ctx.Err() == nil {
		return ErrNoDevices
	}
	return nil
}

// joinReaders waits for every static reader. The first failure cancels the
// run so the remaining devices are released.
func (o *Orchestrator) joinReaders(started []*worker.Worker, cancel context.CancelFunc) error {
	var g errgroup.Group
	for _, w := range started {
		g.Go(func() error {
			if err := w.Wait(); err != nil {
				cancel()
				return err
			}
			return nil
		})
	}
	return g.Wait()
}

func (o *Orchestrator) startReader(ctx context.Context, p device.Path) (*worker.Worker, error) {
	return o.readers.Start(ctx, string(p), func(ctx context.Context, ready func()) error {
		return o.readDevice(ctx, p, ready)
	})
}

func (o *Orchestrator) startService(ctx context.Context, name string, task worker.Task) *worker.Worker {
	w, err := o.services.Start(ctx, name, task)
	if err != nil {
		o.logger.Error("starting service failed", "service", name, "error", err)
		return nil
	}
	return w
}

// watchLoop starts a reader for every hot-plugged device. A failing watch
// mechanism ends the loop; existing readers are unaffected.
//
// A node can be re-created before the reader of its previous incarnation
// has noticed the removal. Such a discovery is deferred until that reader
// exits; repeated discoveries of the same path while one is deferred
// collapse into it.
func (o *Orchestrator) watchLoop(ctx context.Context, ready func()) error {
	var (
		deferred  sync.WaitGroup
		pendingMu sync.Mutex
		pending   = make(map[device.Path]bool)
	)
	// Deferred starts must not outlive the watcher: Run waits on readers
	// only after the watcher has returned.
	defer deferred.Wait()

	ready()
	for {
		p, err := o.devices.Watch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			o.logger.Error("device watch stopped, hot-plugged devices will not be captured", "error", err)
			return err
		}
		o.logger.Info("device hot-plugged", "path", p)

		_, err = o.startReader(ctx, p)
		if !errors.Is(err, worker.ErrAlreadyRunning) {
			continue
		}
		prev, ok := o.readers.Get(string(p))
		if !ok {
			continue
		}

		pendingMu.Lock()
		if pending[p] {
			pendingMu.Unlock()
			continue
		}
		pending[p] = true
		pendingMu.Unlock()

		o.logger.Info("device re-created while still being read, capturing once the old reader exits", "path", p)
		deferred.Go(func() {
			select {
			case <-prev.Done():
			case <-ctx.Done():
			}
			pendingMu.Lock()
			delete(pending, p)
			pendingMu.Unlock()
			if ctx.Err() != nil {
				return
			}
			if _, err := o.startReader(ctx, p); err != nil {
				o.logger.Warn("deferred device capture failed", "path", p, "error", err)
			}
		})
	}
}

// tickLoop resolves tap dances that time out without further input.
func (o *Orchestrator) tickLoop(ctx context.Context, ready func()) error {
	interval := o.engine.TapDanceWait() / 4
	if interval < minTickInterval {
		interval = minTickInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	ready()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			if err := o.engine.Tick(now); err != nil {
				if errors.Is(err, engine.ErrPoisoned) {
					o.fail(err)
					return fmt.Errorf("tap-dance tick: %w", err)
				}
				o.logger.Warn("tap-dance timeout dispatch failed", "error", err)
			}
		}
	}
}

// fail records err as the terminal error and cancels the run.
func (o *Orchestrator) fail(err error) {
	o.failMu.Lock()
	defer o.failMu.Unlock()
	if o.fatalErr == nil {
		o.fatalErr = err
		o.logger.Error("shared state poisoned, stopping", "error", err)
	}
	if o.cancel != nil {
		o.cancel()
	}
}

func (o *Orchestrator) fatal() error {
	o.failMu.Lock()
	defer o.failMu.Unlock()
	return o.fatalErr
}

// DeviceName returns the kernel name of a captured device.
func (o *Orchestrator) DeviceName(p device.Path) string {
	o.namesMu.RLock()
	defer o.namesMu.RUnlock()
	return o.names[p]
}

func (o *Orchestrator) rememberName(p device.Path, name string) {
	o.namesMu.Lock()
	o.names[p] = name
	o.namesMu.Unlock()
}

func (o *Orchestrator) forgetName(p device.Path) {
	o.namesMu.Lock()
	delete(o.names, p)
	o.namesMu.Unlock()
}

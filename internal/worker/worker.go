package worker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Status represents the lifecycle state of a worker.
type Status string

const (
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusStopped  Status = "stopped"
	StatusFailed   Status = "failed"
)

// ErrAlreadyRunning is returned when a worker is started under a name that
// is still active.
var ErrAlreadyRunning = errors.New("worker: already running")

// Task is the body of a worker. It calls ready once it has acquired its
// resources; returning nil or a context error marks the worker stopped,
// any other error marks it failed.
type Task func(ctx context.Context, ready func()) error

// Config holds lifecycle callbacks shared by all workers of a Registry.
type Config struct {
	// OnStart is called when a worker calls ready.
	OnStart func(name string)

	// OnStop is called when a worker's task returns. err is nil for a
	// clean stop.
	OnStop func(name string, err error)
}

// Logger defines the logging interface for the registry.
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

// Worker is the handle of one started task.
type Worker struct {
	name string

	mu        sync.RWMutex
	status    Status
	startTime time.Time
	readyTime time.Time
	stopTime  time.Time
	lastError error

	done chan struct{}
}

// Name returns the worker's name.
func (w *Worker) Name() string { return w.name }

// Status returns the current status.
func (w *Worker) Status() Status {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.status
}

// Err returns the error the task failed with, if any.
func (w *Worker) Err() error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.lastError
}

// Done is closed once the task has returned.
func (w *Worker) Done() <-chan struct{} { return w.done }

// Wait blocks until the task returns and reports its error.
func (w *Worker) Wait() error {
	<-w.done
	return w.Err()
}

// Uptime returns how long the worker has been running, or 0.
func (w *Worker) Uptime() time.Duration {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.status != StatusRunning {
		return 0
	}
	return time.Since(w.readyTime)
}

// Stats is a snapshot of a worker.
type Stats struct {
	Name      string        `json:"name"`
	Status    Status        `json:"status"`
	StartedAt time.Time     `json:"started_at"`
	StoppedAt *time.Time    `json:"stopped_at,omitempty"`
	Uptime    time.Duration `json:"uptime,omitempty"`
	LastError string        `json:"last_error,omitempty"`
}

// Stats returns a snapshot of the worker.
func (w *Worker) Stats() Stats {
	w.mu.RLock()
	defer w.mu.RUnlock()

	s := Stats{
		Name:      w.name,
		Status:    w.status,
		StartedAt: w.startTime,
	}
	if w.status == StatusRunning {
		s.Uptime = time.Since(w.readyTime)
	}
	if !w.stopTime.IsZero() {
		t := w.stopTime
		s.StoppedAt = &t
	}
	if w.lastError != nil {
		s.LastError = w.lastError.Error()
	}
	return s
}

func (w *Worker) active() bool {
	s := w.Status()
	return s == StatusStarting || s == StatusRunning
}

// Registry starts and tracks workers.
type Registry struct {
	config Config
	logger Logger

	mu       sync.Mutex
	workers  map[string]*Worker
	firstErr error
	wg       sync.WaitGroup
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg Config) *Registry {
	return &Registry{
		config:  cfg,
		logger:  noopLogger{},
		workers: make(map[string]*Worker),
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// Start runs task in a new goroutine under name.
func (r *Registry) Start(ctx context.Context, name string, task Task) (*Worker, error) {
	r.mu.Lock()
	if prev, ok := r.workers[name]; ok && prev.active() {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrAlreadyRunning, name)
	}
	w := &Worker{
		name:      name,
		status:    StatusStarting,
		startTime: time.Now(),
		done:      make(chan struct{}),
	}
	r.workers[name] = w
	r.wg.Add(1)
	r.mu.Unlock()

	r.logger.Debug("starting worker", "name", name)
	go r.run(ctx, w, task)
	return w, nil
}

func (r *Registry) run(ctx context.Context, w *Worker, task Task) {
	defer r.wg.Done()
	defer close(w.done)

	var once sync.Once
	ready := func() {
		once.Do(func() {
			w.mu.Lock()
			w.status = StatusRunning
			w.readyTime = time.Now()
			w.mu.Unlock()

			r.logger.Info("worker running", "name", w.name)
			if r.config.OnStart != nil {
				r.config.OnStart(w.name)
			}
		})
	}

	err := task(ctx, ready)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		err = nil
	}

	w.mu.Lock()
	w.stopTime = time.Now()
	if err != nil {
		w.status = StatusFailed
		w.lastError = err
	} else {
		w.status = StatusStopped
	}
	w.mu.Unlock()

	if err != nil {
		r.logger.Warn("worker failed", "name", w.name, "error", err)
		r.mu.Lock()
		if r.firstErr == nil {
			r.firstErr = err
		}
		r.mu.Unlock()
	} else {
		r.logger.Info("worker stopped", "name", w.name)
	}

	if r.config.OnStop != nil {
		r.config.OnStop(w.name, err)
	}
}

// Get returns the most recent worker started under name.
func (r *Registry) Get(name string) (*Worker, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.workers[name]
	return w, ok
}

// Active returns the number of workers that are starting or running.
func (r *Registry) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, w := range r.workers {
		if w.active() {
			n++
		}
	}
	return n
}

// Stats returns a snapshot of every worker, sorted by name.
func (r *Registry) Stats() []Stats {
	r.mu.Lock()
	ws := make([]*Worker, 0, len(r.workers))
	for _, w := range r.workers {
		ws = append(ws, w)
	}
	r.mu.Unlock()

	out := make([]Stats, 0, len(ws))
	for _, w := range ws {
		out = append(out, w.Stats())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Wait blocks until every started worker has returned and reports the
// first failure in completion order.
func (r *Registry) Wait() error {
	r.wg.Wait()
	return r.Err()
}

// Err returns the first failure recorded so far.
func (r *Registry) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.firstErr
}

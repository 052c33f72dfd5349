package device

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// DefaultRoot is the directory holding evdev nodes.
const DefaultRoot = "/dev/input"

// nodePattern matches evdev node names such as event0 or event17.
var nodePattern = regexp.MustCompile(`^event[0-9]+$`)

// Path identifies a device node by its filesystem path.
type Path string

// String returns the path as a string.
func (p Path) String() string { return string(p) }

// Logger defines the logging interface used by the registry.
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

// Watcher delivers filesystem notifications for the input root.
// fsnotify.Watcher satisfies it through NewFSWatcher.
type Watcher interface {
	Events() <-chan fsnotify.Event
	Errors() <-chan error
	Close() error
}

// Options configures a Registry.
type Options struct {
	// Root is the directory to enumerate and watch. Defaults to DefaultRoot.
	Root string

	// Paths restricts the registry to these device nodes. When empty every
	// matching node under Root is used.
	Paths []Path

	// Watch enables hot-plug discovery.
	Watch bool

	// Watcher overrides the fsnotify watcher. Used in tests.
	Watcher Watcher
}

// Registry tracks the device nodes the daemon is interested in.
//
// The known set is fixed at construction. Watch and Close may be called
// from one goroutine while Known is read from others.
type Registry struct {
	root        string
	known       map[Path]struct{}
	order       []Path
	initialOnly bool

	watcher Watcher
	logger  Logger

	mu      sync.Mutex
	pending pendingQueue
}

// NewRegistry builds a Registry from opts.
//
// Returns an error if the root cannot be enumerated or, with watching
// enabled, if the notification watcher cannot be registered.
func NewRegistry(opts Options) (*Registry, error) {
	root := opts.Root
	if root == "" {
		root = DefaultRoot
	}

	r := &Registry{
		root:   root,
		known:  make(map[Path]struct{}),
		logger: noopLogger{},
	}

	if len(opts.Paths) == 0 {
		paths, err := Enumerate(root)
		if err != nil {
			return nil, err
		}
		r.setKnown(paths)
	} else {
		clean := make([]Path, 0, len(opts.Paths))
		for _, p := range opts.Paths {
			clean = append(clean, Path(filepath.Clean(string(p))))
		}
		r.setKnown(clean)
		r.initialOnly = true
	}

	if opts.Watch {
		w := opts.Watcher
		if w == nil {
			fw, err := NewFSWatcher(root)
			if err != nil {
				return nil, err
			}
			w = fw
		}
		r.watcher = w
	}

	return r, nil
}

func (r *Registry) setKnown(paths []Path) {
	for _, p := range paths {
		if _, dup := r.known[p]; dup {
			continue
		}
		r.known[p] = struct{}{}
		r.order = append(r.order, p)
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	r.logger = logger
}

// Root returns the directory the registry enumerates and watches.
func (r *Registry) Root() string { return r.root }

// Known returns the initial device set in discovery order.
func (r *Registry) Known() []Path {
	out := make([]Path, len(r.order))
	copy(out, r.order)
	return out
}

// IsKnown reports whether p is in the initial device set.
func (r *Registry) IsKnown(p Path) bool {
	_, ok := r.known[Path(filepath.Clean(string(p)))]
	return ok
}

// InitialOnly reports whether hot-plug discovery is restricted to the
// initial device set.
func (r *Registry) InitialOnly() bool { return r.initialOnly }

// Watching reports whether hot-plug discovery is enabled.
func (r *Registry) Watching() bool { return r.watcher != nil }

// Pending returns the number of discovered paths not yet returned by Watch.
func (r *Registry) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pending.len()
}

// Watch blocks until a newly created device node is accepted and returns
// its path. Paths discovered together are returned in arrival order across
// successive calls.
//
// Returns ErrWatchDisabled if the registry was built without watching, an
// error wrapping ErrWatchFailed if the notification stream fails, or
// ctx.Err() on cancellation.
func (r *Registry) Watch(ctx context.Context) (Path, error) {
	if r.watcher == nil {
		return "", ErrWatchDisabled
	}

	for {
		if p, ok := r.next(); ok {
			return p, nil
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()

		case ev, ok := <-r.watcher.Events():
			if !ok {
				return "", fmt.Errorf("%w: event stream closed", ErrWatchFailed)
			}
			r.accept(ev)
			if err := r.drain(); err != nil {
				return "", err
			}

		case err, ok := <-r.watcher.Errors():
			if !ok {
				return "", fmt.Errorf("%w: error stream closed", ErrWatchFailed)
			}
			return "", fmt.Errorf("%w: %w", ErrWatchFailed, err)
		}
	}
}

// drain accepts every notification already buffered without blocking.
func (r *Registry) drain() error {
	for {
		select {
		case ev, ok := <-r.watcher.Events():
			if !ok {
				return fmt.Errorf("%w: event stream closed", ErrWatchFailed)
			}
			r.accept(ev)
		default:
			return nil
		}
	}
}

func (r *Registry) accept(ev fsnotify.Event) {
	if !ev.Has(fsnotify.Create) {
		return
	}

	name := filepath.Base(ev.Name)
	if !nodePattern.MatchString(name) {
		return
	}

	p := Path(filepath.Join(r.root, name))
	if r.initialOnly {
		if _, ok := r.known[p]; !ok {
			r.logger.Debug("ignoring device outside initial set", "path", p)
			return
		}
	}

	r.logger.Debug("device node created", "path", p)

	r.mu.Lock()
	r.pending.pushFront(p)
	r.mu.Unlock()
}

func (r *Registry) next() (Path, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pending.popBack()
}

// Close releases the notification watcher, if any.
func (r *Registry) Close() error {
	if r.watcher == nil {
		return nil
	}
	if err := r.watcher.Close(); err != nil {
		return fmt.Errorf("closing device watcher: %w", err)
	}
	return nil
}

// Enumerate lists every entry of root whose name is event<N>, regardless
// of file type. Entries are ordered by their numeric suffix.
func Enumerate(root string) ([]Path, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", root, err)
	}

	var paths []Path
	for _, e := range entries {
		if nodePattern.MatchString(e.Name()) {
			paths = append(paths, Path(filepath.Join(root, e.Name())))
		}
	}

	sort.SliceStable(paths, func(i, j int) bool {
		return nodeIndex(paths[i]) < nodeIndex(paths[j])
	})
	return paths, nil
}

func nodeIndex(p Path) int {
	n := 0
	for _, c := range filepath.Base(string(p))[len("event"):] {
		n = n*10 + int(c-'0')
	}
	return n
}

// pendingQueue holds discovered paths. Paths are pushed at the front and
// taken from the back. Duplicates are kept: a node removed and recreated is
// a new discovery.
type pendingQueue struct {
	items []Path
}

func (q *pendingQueue) pushFront(p Path) {
	q.items = append(q.items, "")
	copy(q.items[1:], q.items)
	q.items[0] = p
}

func (q *pendingQueue) popBack() (Path, bool) {
	if len(q.items) == 0 {
		return "", false
	}
	last := len(q.items) - 1
	p := q.items[last]
	q.items = q.items[:last]
	return p, true
}

func (q *pendingQueue) len() int { return len(q.items) }

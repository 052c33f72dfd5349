package device

import (
	"fmt"

	"github.com/fsnotify/fsnotify"
)

// FSWatcher adapts fsnotify.Watcher to the Watcher interface.
type FSWatcher struct {
	w *fsnotify.Watcher
}

// NewFSWatcher starts watching dir for changes.
func NewFSWatcher(dir string) (*FSWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrWatchFailed, err)
	}
	if err := w.Add(dir); err != nil {
		w.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("%w: watching %s: %w", ErrWatchFailed, dir, err)
	}
	return &FSWatcher{w: w}, nil
}

// Events returns the notification channel.
func (f *FSWatcher) Events() <-chan fsnotify.Event { return f.w.Events }

// Errors returns the error channel.
func (f *FSWatcher) Errors() <-chan error { return f.w.Errors }

// Close stops watching.
func (f *FSWatcher) Close() error { return f.w.Close() }

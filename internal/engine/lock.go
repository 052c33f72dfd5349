package engine

import (
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
)

// ErrPoisoned is returned once a panic has occurred while the lock was
// held.
var ErrPoisoned = errors.New("engine: shared state poisoned")

// PanicError is returned by the call that poisoned the lock.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("%v: panic: %v", ErrPoisoned, e.Value)
}

func (e *PanicError) Unwrap() error { return ErrPoisoned }

// Lock is a mutex that refuses all further use after a panic inside a
// critical section.
type Lock struct {
	mu       sync.Mutex
	poisoned bool
	cause    *PanicError
}

// Do runs fn while holding the lock.
func (l *Lock) Do(fn func() error) (err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.poisoned {
		return ErrPoisoned
	}

	defer func() {
		if r := recover(); r != nil {
			l.poisoned = true
			l.cause = &PanicError{Value: r, Stack: debug.Stack()}
			err = l.cause
		}
	}()

	return fn()
}

// Poisoned reports whether the lock has been poisoned, and by what.
func (l *Lock) Poisoned() (*PanicError, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cause, l.poisoned
}

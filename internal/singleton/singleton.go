// Package singleton provides a lazy, one-time initialisation guard for
// the broker's process-wide singletons (the FederationBroker itself,
// the MetricsCollector, the engine handle). A failed initialisation
// is remembered rather than retried, so callers never observe a
// half-built value — every future access gets the same error until
// the process restarts.
package singleton

import "sync"

// Lazy holds a value of type T built on first Get by fn. If fn
// returns an error, that error is returned to every Get call; fn is
// never retried within the Lazy's lifetime.
type Lazy[T any] struct {
	once sync.Once
	fn   func() (T, error)

	value T
	err   error
}

// New returns a Lazy that will call fn exactly once, on the first Get.
func New[T any](fn func() (T, error)) *Lazy[T] {
	return &Lazy[T]{fn: fn}
}

// Get returns the initialised value, building it on first call. A
// construction failure is cached: subsequent Gets return the same
// error without re-attempting fn.
func (l *Lazy[T]) Get() (T, error) {
	l.once.Do(func() {
		l.value, l.err = l.fn()
	})
	return l.value, l.err
}

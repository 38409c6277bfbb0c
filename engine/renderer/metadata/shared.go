package metadata

import "sync"

/**
 * @brief A reference-counted handle to a GPU object. Every holder calls Release once;
 * the value is destroyed when the last holder releases it.
 */
type Shared[T Destroyer] struct {
	mu    sync.Mutex
	value T
	refs  int
}

// NewShared wraps value with a single reference owned by the caller.
func NewShared[T Destroyer](value T) *Shared[T] {
	return &Shared[T]{value: value, refs: 1}
}

// Get returns the wrapped value. It must not be used after the holder released it.
func (s *Shared[T]) Get() T {
	return s.value
}

// Acquire adds a holder and returns s for chaining.
func (s *Shared[T]) Acquire() *Shared[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refs == 0 {
		panic("metadata: acquire of a released shared handle")
	}
	s.refs++
	return s
}

// Release drops one holder and destroys the value when it was the last one.
// It reports whether the value was destroyed.
func (s *Shared[T]) Release() bool {
	s.mu.Lock()
	if s.refs == 0 {
		s.mu.Unlock()
		return false
	}
	s.refs--
	last := s.refs == 0
	s.mu.Unlock()

	if last {
		s.value.Destroy()
	}
	return last
}

func (s *Shared[T]) RefCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refs
}

type sharedRelease[T Destroyer] struct {
	s *Shared[T]
}

func (r sharedRelease[T]) Destroy() { r.s.Release() }

// Hold acquires a new reference and returns it as a Destroyer, so it can be
// kept alive next to other resources and dropped through Destroy.
func (s *Shared[T]) Hold() Destroyer {
	return sharedRelease[T]{s: s.Acquire()}
}

package metadata

import "github.com/cockroachdb/errors"

var (
	// ErrOutOfDate is returned by surfaces whose swapchain no longer matches the window.
	ErrOutOfDate = errors.New("surface out of date")
	// ErrTimeout is returned when a fence or an image acquisition did not complete in time.
	ErrTimeout = errors.New("timeout expired")
	// ErrDestroyed is returned when an object is used after Destroy.
	ErrDestroyed = errors.New("object already destroyed")
)

package editor

import (
	"time"

	"github.com/spaghettifunk/nova/engine/renderer/future"
	"github.com/spaghettifunk/nova/engine/renderer/metadata"
)

// Surface is a chain of presentable images, e.g. a window swapchain.
type Surface interface {
	// Acquire returns the index of the next image and a future that completes once it can be drawn to.
	// It returns metadata.ErrOutOfDate when the surface must be resized first and
	// metadata.ErrTimeout when no image became available in time.
	Acquire(timeout time.Duration) (uint32, *future.Future, error)
	ImageView(index uint32) metadata.ImageView
	// Present queues the image for display after work. With wait set it blocks until the
	// work completed. The returned future tracks the presentation and may be non-nil even
	// when metadata.ErrOutOfDate is returned.
	Present(index uint32, work *future.Future, wait bool) (*future.Future, error)
	Resize() error
	Extent() metadata.Extent2D
	Format() metadata.Format
	ImageCount() int
	Destroy()
}

// Window is the part of the platform window the editor loop drives.
type Window interface {
	PumpMessages()
	ShouldClose() bool
}

// HeadlessWindow never closes on its own.
type HeadlessWindow struct{}

func (HeadlessWindow) PumpMessages() {}

func (HeadlessWindow) ShouldClose() bool { return false }

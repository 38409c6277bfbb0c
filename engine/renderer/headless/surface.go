package headless

import (
	"image"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/spaghettifunk/nova/engine/core"
	"github.com/spaghettifunk/nova/engine/renderer/future"
	"github.com/spaghettifunk/nova/engine/renderer/metadata"
)

// PresentFunc receives a copy of every presented image.
type PresentFunc func(index uint32, pixels *image.RGBA) error

/**
 * @brief An offscreen stand-in for a window swapchain. Images are handed out round robin;
 * the surface can be forced out of date to exercise the recovery path.
 */
type Surface struct {
	device     *Device
	format     metadata.Format
	extent     metadata.Extent2D
	pending    metadata.Extent2D
	imageCount int

	images []*Image
	views  []*ImageView
	next   uint32

	outOfDate bool
	presented int
	onPresent PresentFunc
}

func NewSurface(device *Device, extent metadata.Extent2D, imageCount int, format metadata.Format) (*Surface, error) {
	if imageCount < 1 {
		return nil, errors.Newf("surface needs at least one image, got %d", imageCount)
	}
	s := &Surface{
		device:     device,
		format:     format,
		pending:    extent,
		imageCount: imageCount,
	}
	if err := s.Resize(); err != nil {
		return nil, err
	}
	return s, nil
}

// SetExtent simulates a window resize: the surface becomes out of date until Resize is called.
func (s *Surface) SetExtent(extent metadata.Extent2D) {
	s.pending = extent
	s.outOfDate = true
}

// Invalidate marks the surface out of date without changing its size.
func (s *Surface) Invalidate() {
	s.outOfDate = true
}

func (s *Surface) OnPresent(fn PresentFunc) {
	s.onPresent = fn
}

// Presented returns how many images were successfully presented.
func (s *Surface) Presented() int {
	return s.presented
}

func (s *Surface) Extent() metadata.Extent2D { return s.extent }

func (s *Surface) Format() metadata.Format { return s.format }

func (s *Surface) ImageCount() int { return len(s.images) }

func (s *Surface) ImageView(index uint32) metadata.ImageView { return s.views[index] }

// Image returns the backing image, for reading back presented contents.
func (s *Surface) Image(index uint32) *Image { return s.images[index] }

func (s *Surface) Acquire(timeout time.Duration) (uint32, *future.Future, error) {
	if s.outOfDate {
		return 0, nil, metadata.ErrOutOfDate
	}
	index := s.next
	s.next = (s.next + 1) % uint32(len(s.images))

	sem, err := s.device.CreateSemaphore()
	if err != nil {
		return 0, nil, errors.Wrap(err, "failed to create acquire semaphore")
	}
	return index, future.FromSemaphore(s.device, sem, metadata.PipelineStageColorAttachmentOutput, sem), nil
}

func (s *Surface) Present(index uint32, work *future.Future, wait bool) (*future.Future, error) {
	if int(index) >= len(s.images) {
		return nil, errors.Newf("present: image index %d out of range", index)
	}
	done, _, err := work.ThenSignalSemaphoreAndFlush()
	if err != nil {
		return nil, errors.Wrap(err, "present")
	}
	if wait {
		if err := done.Wait(0); err != nil {
			return done, err
		}
	}
	if s.outOfDate {
		return done, metadata.ErrOutOfDate
	}
	s.presented++
	if s.onPresent != nil {
		if err := s.onPresent(index, s.images[index].Pixels()); err != nil {
			return done, errors.Wrap(err, "present callback")
		}
	}
	return done, nil
}

// Resize recreates the images at the latest requested extent.
func (s *Surface) Resize() error {
	s.destroyImages()
	if s.pending.IsZero() {
		// minimized: keep the surface out of date until it gets a real size
		s.extent = s.pending
		s.outOfDate = true
		return nil
	}
	for i := 0; i < s.imageCount; i++ {
		img, err := s.device.allocator.CreateImage(metadata.ImageCreateInfo{
			Format: s.format,
			Extent: s.pending.To3D(),
			Usage:  metadata.ImageUsageColorAttachment | metadata.ImageUsageTransferDst | metadata.ImageUsageTransferSrc,
		})
		if err != nil {
			return errors.Wrapf(err, "failed to create surface image %d", i)
		}
		hi := img.(*Image)
		s.images = append(s.images, hi)
		s.views = append(s.views, &ImageView{image: hi})
	}
	s.extent = s.pending
	s.next = 0
	s.outOfDate = false
	core.LogDebug("headless surface resized to %dx%d (%d images)", s.extent.Width, s.extent.Height, len(s.images))
	return nil
}

func (s *Surface) destroyImages() {
	for _, img := range s.images {
		img.Destroy()
	}
	s.images = nil
	s.views = nil
}

func (s *Surface) Destroy() {
	s.destroyImages()
}

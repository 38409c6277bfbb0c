package vulkan

import (
	"time"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/nova/engine/core"
	"github.com/spaghettifunk/nova/engine/math"
	"github.com/spaghettifunk/nova/engine/renderer/future"
	"github.com/spaghettifunk/nova/engine/renderer/metadata"
)

// swapchainFormats lists the accepted surface formats, most preferred first.
var swapchainFormats = []vk.Format{
	vk.FormatA2b10g10r10UnormPack32,
	vk.FormatB8g8r8a8Unorm,
	vk.FormatR8g8b8a8Unorm,
}

var presentModes = map[string]vk.PresentMode{
	"mailbox":   vk.PresentModeMailbox,
	"immediate": vk.PresentModeImmediate,
	"fifo":      vk.PresentModeFifo,
}

type SwapchainCreateInfo struct {
	// PresentMode is one of "mailbox", "immediate" or "fifo".
	PresentMode string
	// VSync forces fifo presentation.
	VSync bool
}

type swapchainSupportInfo struct {
	capabilities vk.SurfaceCapabilities
	formats      []vk.SurfaceFormat
	presentModes []vk.PresentMode
}

/**
 * @brief The window swapchain. Its images are cleared and blitted to, so they carry
 * transfer-dst usage next to colour attachment.
 */
type Swapchain struct {
	ctx    *Context
	device *Device
	info   SwapchainCreateInfo

	handle      vk.Swapchain
	format      metadata.Format
	colorSpace  vk.ColorSpace
	presentMode vk.PresentMode
	extent      metadata.Extent2D

	images []*Image
	views  []*ImageView

	outOfDate bool
}

func NewSwapchain(ctx *Context, info SwapchainCreateInfo) (*Swapchain, error) {
	s := &Swapchain{ctx: ctx, device: ctx.device, info: info}
	support, err := s.querySupport()
	if err != nil {
		return nil, err
	}
	if err := s.chooseSurfaceFormat(support); err != nil {
		return nil, err
	}
	s.presentMode = choosePresentMode(info, support)
	if err := s.Resize(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Swapchain) querySupport() (*swapchainSupportInfo, error) {
	pd, surface := s.device.physical, s.ctx.surface
	support := &swapchainSupportInfo{}

	if err := checkResult(vk.GetPhysicalDeviceSurfaceCapabilities(pd, surface, &support.capabilities), "vkGetPhysicalDeviceSurfaceCapabilities"); err != nil {
		return nil, err
	}
	support.capabilities.Deref()
	support.capabilities.CurrentExtent.Deref()
	support.capabilities.MinImageExtent.Deref()
	support.capabilities.MaxImageExtent.Deref()

	var formatCount uint32
	if err := checkResult(vk.GetPhysicalDeviceSurfaceFormats(pd, surface, &formatCount, nil), "vkGetPhysicalDeviceSurfaceFormats"); err != nil {
		return nil, err
	}
	support.formats = make([]vk.SurfaceFormat, formatCount)
	if err := checkResult(vk.GetPhysicalDeviceSurfaceFormats(pd, surface, &formatCount, support.formats), "vkGetPhysicalDeviceSurfaceFormats"); err != nil {
		return nil, err
	}
	for i := range support.formats {
		support.formats[i].Deref()
	}

	var modeCount uint32
	if err := checkResult(vk.GetPhysicalDeviceSurfacePresentModes(pd, surface, &modeCount, nil), "vkGetPhysicalDeviceSurfacePresentModes"); err != nil {
		return nil, err
	}
	support.presentModes = make([]vk.PresentMode, modeCount)
	if err := checkResult(vk.GetPhysicalDeviceSurfacePresentModes(pd, surface, &modeCount, support.presentModes), "vkGetPhysicalDeviceSurfacePresentModes"); err != nil {
		return nil, err
	}
	return support, nil
}

func (s *Swapchain) chooseSurfaceFormat(support *swapchainSupportInfo) error {
	for _, wanted := range swapchainFormats {
		for _, available := range support.formats {
			if available.Format == wanted {
				s.format = fromVkFormat(wanted)
				s.colorSpace = available.ColorSpace
				core.LogInfo("Swapchain format %s selected.", s.format)
				return nil
			}
		}
	}
	for _, available := range support.formats {
		if f := fromVkFormat(available.Format); f != metadata.FormatUndefined && !f.IsDepth() {
			s.format = f
			s.colorSpace = available.ColorSpace
			core.LogWarn("No preferred swapchain format available, falling back to %s.", f)
			return nil
		}
	}
	return errors.New("surface offers no supported colour format")
}

func choosePresentMode(info SwapchainCreateInfo, support *swapchainSupportInfo) vk.PresentMode {
	if info.VSync {
		return vk.PresentModeFifo
	}
	wanted, ok := presentModes[info.PresentMode]
	if !ok {
		return vk.PresentModeFifo
	}
	for _, mode := range support.presentModes {
		if mode == wanted {
			return mode
		}
	}
	core.LogWarn("Present mode %q not supported, using fifo.", info.PresentMode)
	return vk.PresentModeFifo
}

// Resize recreates the swapchain at the current window size. A zero size, e.g. a minimized
// window, leaves the swapchain out of date without images.
func (s *Swapchain) Resize() error {
	support, err := s.querySupport()
	if err != nil {
		return err
	}
	caps := support.capabilities

	extent := vk.Extent2D{Width: caps.CurrentExtent.Width, Height: caps.CurrentExtent.Height}
	if extent.Width == vk.MaxUint32 {
		extent.Width, extent.Height = s.ctx.window.FramebufferSize()
	}
	if extent.Width == 0 || extent.Height == 0 {
		s.destroyViews()
		s.extent = metadata.Extent2D{}
		s.outOfDate = true
		core.LogDebug("Swapchain extent is empty, waiting for a resize.")
		return nil
	}
	extent.Width = math.Clamp(extent.Width, caps.MinImageExtent.Width, caps.MaxImageExtent.Width)
	extent.Height = math.Clamp(extent.Height, caps.MinImageExtent.Height, caps.MaxImageExtent.Height)

	imageCount := caps.MinImageCount + 1
	if caps.MaxImageCount > 0 && imageCount > caps.MaxImageCount {
		imageCount = caps.MaxImageCount
	}

	usage := metadata.ImageUsageColorAttachment | metadata.ImageUsageTransferDst
	swapchainCreateInfo := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          s.ctx.surface,
		MinImageCount:    imageCount,
		ImageFormat:      toVkFormat(s.format),
		ImageColorSpace:  s.colorSpace,
		ImageExtent:      extent,
		ImageArrayLayers: 1,
		ImageUsage:       toVkImageUsage(usage),
		PreTransform:     caps.CurrentTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      s.presentMode,
		Clipped:          vk.True,
		OldSwapchain:     s.handle,
	}
	graphics, present := s.device.graphics.family, s.device.present.family
	if graphics != present {
		swapchainCreateInfo.ImageSharingMode = vk.SharingModeConcurrent
		swapchainCreateInfo.QueueFamilyIndexCount = 2
		swapchainCreateInfo.PQueueFamilyIndices = []uint32{graphics, present}
	} else {
		swapchainCreateInfo.ImageSharingMode = vk.SharingModeExclusive
	}

	return s.device.locks.SafeCall(SwapchainManagement, func() error {
		var handle vk.Swapchain
		if err := checkResult(vk.CreateSwapchain(s.device.logical, &swapchainCreateInfo, nil, &handle), "vkCreateSwapchain"); err != nil {
			return err
		}
		s.destroyViews()
		if s.handle != vk.NullSwapchain {
			vk.DestroySwapchain(s.device.logical, s.handle, nil)
		}
		s.handle = handle
		s.extent = metadata.Extent2D{Width: extent.Width, Height: extent.Height}

		var count uint32
		if err := checkResult(vk.GetSwapchainImages(s.device.logical, s.handle, &count, nil), "vkGetSwapchainImages"); err != nil {
			return err
		}
		handles := make([]vk.Image, count)
		if err := checkResult(vk.GetSwapchainImages(s.device.logical, s.handle, &count, handles), "vkGetSwapchainImages"); err != nil {
			return err
		}
		for _, h := range handles {
			img := newSwapchainImage(s.device, h, s.format, s.extent, usage)
			view, err := newImageView(s.device, img)
			if err != nil {
				return err
			}
			s.images = append(s.images, img)
			s.views = append(s.views, view)
		}
		s.outOfDate = false
		core.LogInfo("Swapchain created (%dx%d, %d images).", s.extent.Width, s.extent.Height, len(s.images))
		return nil
	})
}

func (s *Swapchain) Acquire(timeout time.Duration) (uint32, *future.Future, error) {
	if s.outOfDate || s.handle == vk.NullSwapchain {
		return 0, nil, metadata.ErrOutOfDate
	}
	sem, err := newSemaphore(s.device)
	if err != nil {
		return 0, nil, errors.Wrap(err, "failed to create acquire semaphore")
	}
	timeoutNs := uint64(vk.MaxUint64)
	if timeout > 0 {
		timeoutNs = uint64(timeout.Nanoseconds())
	}

	var index uint32
	var result vk.Result
	_ = s.device.locks.SafeCall(SwapchainManagement, func() error {
		result = vk.AcquireNextImage(s.device.logical, s.handle, timeoutNs, sem.handle, vk.NullFence, &index)
		return nil
	})
	switch result {
	case vk.Success:
	case vk.Suboptimal:
		// still usable; recreate after presenting it
		s.outOfDate = true
	case vk.NotReady:
		sem.Destroy()
		return 0, nil, errors.Wrap(metadata.ErrTimeout, "vkAcquireNextImage")
	default:
		sem.Destroy()
		if result == vk.ErrorOutOfDate {
			s.outOfDate = true
		}
		return 0, nil, checkResult(result, "vkAcquireNextImage")
	}
	return index, future.FromSemaphore(s.device, sem, metadata.PipelineStageAllCommands, sem), nil
}

func (s *Swapchain) Present(index uint32, work *future.Future, wait bool) (*future.Future, error) {
	if int(index) >= len(s.images) {
		return nil, errors.Newf("present: image index %d out of range", index)
	}
	done, sem, err := work.ThenSignalSemaphoreAndFlush()
	if err != nil {
		return nil, errors.Wrap(err, "present")
	}
	vsem, ok := sem.(*Semaphore)
	if !ok {
		return done, errors.Newf("present semaphore %T does not belong to a Vulkan device", sem)
	}

	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{vsem.handle},
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{s.handle},
		PImageIndices:      []uint32{index},
	}
	present := s.device.present
	var result vk.Result
	_ = s.device.locks.SafeQueueCall(present.family, func() error {
		result = vk.QueuePresent(present.handle, &presentInfo)
		return nil
	})

	if wait {
		if err := done.Wait(0); err != nil {
			return done, err
		}
	}
	switch result {
	case vk.Success:
		if s.outOfDate {
			return done, metadata.ErrOutOfDate
		}
		return done, nil
	case vk.Suboptimal, vk.ErrorOutOfDate:
		s.outOfDate = true
		return done, metadata.ErrOutOfDate
	}
	return done, checkResult(result, "vkQueuePresent")
}

func (s *Swapchain) ImageView(index uint32) metadata.ImageView { return s.views[index] }

func (s *Swapchain) Extent() metadata.Extent2D { return s.extent }

func (s *Swapchain) Format() metadata.Format { return s.format }

func (s *Swapchain) ImageCount() int { return len(s.images) }

func (s *Swapchain) destroyViews() {
	for _, v := range s.views {
		v.Destroy()
	}
	// images belong to the swapchain handle
	s.views = nil
	s.images = nil
}

func (s *Swapchain) Destroy() {
	s.destroyViews()
	if s.handle != vk.NullSwapchain {
		vk.DestroySwapchain(s.device.logical, s.handle, nil)
		s.handle = vk.NullSwapchain
	}
	core.LogInfo("Swapchain destroyed.")
}

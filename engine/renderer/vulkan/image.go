package vulkan

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/nova/engine/renderer/metadata"
)

/** @brief Allocates one dedicated device memory block per image or buffer. */
type Allocator struct {
	device *Device
}

func (a *Allocator) CreateImage(info metadata.ImageCreateInfo) (metadata.Image, error) {
	if info.Format == metadata.FormatUndefined {
		return nil, errors.New("image format is undefined")
	}
	if info.Extent.Width == 0 || info.Extent.Height == 0 {
		return nil, errors.Newf("image extent %dx%d is empty", info.Extent.Width, info.Extent.Height)
	}
	layers := info.ArrayLayers
	if layers == 0 {
		layers = 1
	}
	d := a.device

	createInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Format:    toVkFormat(info.Format),
		Extent: vk.Extent3D{
			Width:  info.Extent.Width,
			Height: info.Extent.Height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   layers,
		Samples:       vk.SampleCount1Bit,
		Tiling:        vk.ImageTilingOptimal,
		Usage:         toVkImageUsage(info.Usage),
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}
	var handle vk.Image
	if err := checkResult(vk.CreateImage(d.logical, &createInfo, nil, &handle), "vkCreateImage"); err != nil {
		return nil, err
	}

	var requirements vk.MemoryRequirements
	vk.GetImageMemoryRequirements(d.logical, handle, &requirements)
	requirements.Deref()

	memory, err := a.allocate(requirements, vk.MemoryPropertyDeviceLocalBit)
	if err != nil {
		vk.DestroyImage(d.logical, handle, nil)
		return nil, errors.Wrapf(err, "image %dx%d %s", info.Extent.Width, info.Extent.Height, info.Format)
	}
	if err := checkResult(vk.BindImageMemory(d.logical, handle, memory, 0), "vkBindImageMemory"); err != nil {
		a.free(memory)
		vk.DestroyImage(d.logical, handle, nil)
		return nil, err
	}

	return &Image{
		device: d,
		handle: handle,
		memory: memory,
		format: info.Format,
		extent: metadata.Extent3D{Width: info.Extent.Width, Height: info.Extent.Height, Depth: 1},
		usage:  info.Usage,
		layers: layers,
		layout: vk.ImageLayoutUndefined,
		owned:  true,
	}, nil
}

func (a *Allocator) CreateBuffer(info metadata.BufferCreateInfo) (metadata.Buffer, error) {
	if info.Size == 0 {
		return nil, errors.New("buffer size is zero")
	}
	d := a.device

	createInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(info.Size),
		Usage:       toVkBufferUsage(info.Usage),
		SharingMode: vk.SharingModeExclusive,
	}
	var handle vk.Buffer
	if err := checkResult(vk.CreateBuffer(d.logical, &createInfo, nil, &handle), "vkCreateBuffer"); err != nil {
		return nil, err
	}

	var requirements vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(d.logical, handle, &requirements)
	requirements.Deref()

	properties := vk.MemoryPropertyDeviceLocalBit
	if info.HostVisible {
		properties = vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit
	}
	memory, err := a.allocate(requirements, properties)
	if err != nil {
		vk.DestroyBuffer(d.logical, handle, nil)
		return nil, errors.Wrapf(err, "buffer of %d bytes", info.Size)
	}
	if err := checkResult(vk.BindBufferMemory(d.logical, handle, memory, 0), "vkBindBufferMemory"); err != nil {
		a.free(memory)
		vk.DestroyBuffer(d.logical, handle, nil)
		return nil, err
	}
	return &Buffer{
		device:      d,
		handle:      handle,
		memory:      memory,
		size:        info.Size,
		hostVisible: info.HostVisible,
	}, nil
}

func (a *Allocator) allocate(requirements vk.MemoryRequirements, properties vk.MemoryPropertyFlagBits) (vk.DeviceMemory, error) {
	index, err := a.device.findMemoryType(requirements.MemoryTypeBits, properties)
	if err != nil {
		return vk.NullDeviceMemory, err
	}
	allocateInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  requirements.Size,
		MemoryTypeIndex: index,
	}
	var memory vk.DeviceMemory
	err = a.device.locks.SafeCall(MemoryManagement, func() error {
		return checkResult(vk.AllocateMemory(a.device.logical, &allocateInfo, nil, &memory), "vkAllocateMemory")
	})
	return memory, err
}

func (a *Allocator) free(memory vk.DeviceMemory) {
	_ = a.device.locks.SafeCall(MemoryManagement, func() error {
		vk.FreeMemory(a.device.logical, memory, nil)
		return nil
	})
}

/**
 * @brief A Vulkan image. The layout it was last left in by a recorded command buffer is
 * tracked so transitions can be inserted automatically. Swapchain images are not owned.
 */
type Image struct {
	device *Device
	handle vk.Image
	memory vk.DeviceMemory
	format metadata.Format
	extent metadata.Extent3D
	usage  metadata.ImageUsage
	layers uint32

	layout      vk.ImageLayout
	presentable bool
	owned       bool
}

func newSwapchainImage(device *Device, handle vk.Image, format metadata.Format, extent metadata.Extent2D, usage metadata.ImageUsage) *Image {
	return &Image{
		device:      device,
		handle:      handle,
		format:      format,
		extent:      extent.To3D(),
		usage:       usage,
		layers:      1,
		layout:      vk.ImageLayoutUndefined,
		presentable: true,
	}
}

func (i *Image) Format() metadata.Format { return i.format }

func (i *Image) Extent() metadata.Extent3D { return i.extent }

func (i *Image) Usage() metadata.ImageUsage { return i.usage }

func (i *Image) Handle() vk.Image { return i.handle }

func (i *Image) subresourceRange() vk.ImageSubresourceRange {
	return vk.ImageSubresourceRange{
		AspectMask: aspectOf(i.format),
		LevelCount: 1,
		LayerCount: i.layers,
	}
}

func (i *Image) subresourceLayers() vk.ImageSubresourceLayers {
	return vk.ImageSubresourceLayers{
		AspectMask: aspectOf(i.format),
		LayerCount: 1,
	}
}

func (i *Image) Destroy() {
	if !i.owned || i.handle == vk.NullImage {
		return
	}
	vk.DestroyImage(i.device.logical, i.handle, nil)
	i.device.allocator.free(i.memory)
	i.handle = vk.NullImage
	i.memory = vk.NullDeviceMemory
}

type ImageView struct {
	device *Device
	handle vk.ImageView
	image  *Image
}

func newImageView(device *Device, img *Image) (*ImageView, error) {
	viewCreateInfo := vk.ImageViewCreateInfo{
		SType:            vk.StructureTypeImageViewCreateInfo,
		Image:            img.handle,
		ViewType:         vk.ImageViewType2d,
		Format:           toVkFormat(img.format),
		SubresourceRange: img.subresourceRange(),
	}
	if img.layers > 1 {
		viewCreateInfo.ViewType = vk.ImageViewType2dArray
	}
	var handle vk.ImageView
	if err := checkResult(vk.CreateImageView(device.logical, &viewCreateInfo, nil, &handle), "vkCreateImageView"); err != nil {
		return nil, err
	}
	return &ImageView{device: device, handle: handle, image: img}, nil
}

func (v *ImageView) Image() metadata.Image { return v.image }

func (v *ImageView) Destroy() {
	if v.handle == vk.NullImageView {
		return
	}
	vk.DestroyImageView(v.device.logical, v.handle, nil)
	v.handle = vk.NullImageView
}

type Buffer struct {
	device      *Device
	handle      vk.Buffer
	memory      vk.DeviceMemory
	size        uint64
	hostVisible bool
}

func (b *Buffer) Size() uint64 { return b.size }

func (b *Buffer) Write(offset uint64, data []byte) error {
	if !b.hostVisible {
		return errors.New("buffer is not host visible")
	}
	if offset+uint64(len(data)) > b.size {
		return errors.Newf("write of %d bytes at offset %d overflows buffer of %d bytes", len(data), offset, b.size)
	}
	var ptr unsafe.Pointer
	if err := checkResult(vk.MapMemory(b.device.logical, b.memory, vk.DeviceSize(offset), vk.DeviceSize(len(data)), 0, &ptr), "vkMapMemory"); err != nil {
		return err
	}
	vk.Memcopy(ptr, data)
	vk.UnmapMemory(b.device.logical, b.memory)
	return nil
}

func (b *Buffer) Destroy() {
	if b.handle == vk.NullBuffer {
		return
	}
	vk.DestroyBuffer(b.device.logical, b.handle, nil)
	b.device.allocator.free(b.memory)
	b.handle = vk.NullBuffer
	b.memory = vk.NullDeviceMemory
}

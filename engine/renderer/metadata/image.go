package metadata

/** @brief A 2D size in pixels. */
type Extent2D struct {
	Width  uint32
	Height uint32
}

/** @brief A 3D size in pixels. Depth is 1 for 2D images. */
type Extent3D struct {
	Width  uint32
	Height uint32
	Depth  uint32
}

func (e Extent3D) To2D() Extent2D {
	return Extent2D{Width: e.Width, Height: e.Height}
}

func (e Extent2D) To3D() Extent3D {
	return Extent3D{Width: e.Width, Height: e.Height, Depth: 1}
}

// IsZero reports whether either dimension is zero, e.g. a minimized window.
func (e Extent2D) IsZero() bool {
	return e.Width == 0 || e.Height == 0
}

type Offset2D struct {
	X int32
	Y int32
}

type Rect2D struct {
	Offset Offset2D
	Extent Extent2D
}

type ImageUsage uint32

const (
	ImageUsageTransferSrc ImageUsage = 1 << iota
	ImageUsageTransferDst
	ImageUsageSampled
	ImageUsageColorAttachment
	ImageUsageDepthStencilAttachment
	ImageUsageTransientAttachment
)

func (u ImageUsage) Has(flag ImageUsage) bool {
	return u&flag == flag
}

type ImageLayout uint32

const (
	ImageLayoutUndefined ImageLayout = iota
	ImageLayoutGeneral
	ImageLayoutColorAttachmentOptimal
	ImageLayoutDepthStencilAttachmentOptimal
	ImageLayoutShaderReadOnlyOptimal
	ImageLayoutTransferSrcOptimal
	ImageLayoutTransferDstOptimal
	ImageLayoutPresentSrc
)

/** @brief Parameters used when allocating an image. */
type ImageCreateInfo struct {
	Format      Format
	Extent      Extent3D
	Usage       ImageUsage
	ArrayLayers uint32
}

/** @brief A GPU image. Its memory is owned by whichever allocator created it. */
type Image interface {
	Destroyer
	Format() Format
	Extent() Extent3D
	Usage() ImageUsage
}

/** @brief A view over a whole Image, usable as a framebuffer attachment. */
type ImageView interface {
	Destroyer
	Image() Image
}

type BufferUsage uint32

const (
	BufferUsageVertexBuffer BufferUsage = 1 << iota
	BufferUsageIndexBuffer
	BufferUsageUniformBuffer
	BufferUsageTransferSrc
	BufferUsageTransferDst
)

type BufferCreateInfo struct {
	Size  uint64
	Usage BufferUsage
	// HostVisible buffers can be written with Buffer.Write.
	HostVisible bool
}

type Buffer interface {
	Destroyer
	Size() uint64
	Write(offset uint64, data []byte) error
}

/** @brief The general GPU memory allocation strategy. */
type MemoryAllocator interface {
	CreateImage(info ImageCreateInfo) (Image, error)
	CreateBuffer(info BufferCreateInfo) (Buffer, error)
}

package metadata

/** @brief Pixel formats understood by every backend. */
type Format uint32

const (
	FormatUndefined Format = iota
	FormatR8G8B8A8Unorm
	FormatR8G8B8A8Srgb
	FormatB8G8R8A8Unorm
	FormatB8G8R8A8Srgb
	FormatA2B10G10R10UnormPack32
	FormatD16Unorm
	FormatD32Sfloat
)

/** @brief Format of the intermediate scene image when none is negotiated. */
const DefaultImageFormat = FormatR8G8B8A8Unorm

/** @brief Format of the depth attachment of the deferred pass. */
const DepthFormat = FormatD16Unorm

func (f Format) String() string {
	switch f {
	case FormatR8G8B8A8Unorm:
		return "R8G8B8A8_UNORM"
	case FormatR8G8B8A8Srgb:
		return "R8G8B8A8_SRGB"
	case FormatB8G8R8A8Unorm:
		return "B8G8R8A8_UNORM"
	case FormatB8G8R8A8Srgb:
		return "B8G8R8A8_SRGB"
	case FormatA2B10G10R10UnormPack32:
		return "A2B10G10R10_UNORM_PACK32"
	case FormatD16Unorm:
		return "D16_UNORM"
	case FormatD32Sfloat:
		return "D32_SFLOAT"
	default:
		return "UNDEFINED"
	}
}

// IsDepth reports whether the format can back a depth attachment.
func (f Format) IsDepth() bool {
	return f == FormatD16Unorm || f == FormatD32Sfloat
}

// BytesPerPixel returns the texel size, or 0 for FormatUndefined.
func (f Format) BytesPerPixel() int {
	switch f {
	case FormatD16Unorm:
		return 2
	case FormatUndefined:
		return 0
	default:
		return 4
	}
}

/** @brief Formats of a single vertex attribute. */
type VertexFormat uint32

const (
	VertexFormatR32G32Sfloat VertexFormat = iota
	VertexFormatR32G32B32Sfloat
	VertexFormatR32G32B32A32Sfloat
)

// Size returns the attribute size in bytes.
func (v VertexFormat) Size() uint32 {
	switch v {
	case VertexFormatR32G32Sfloat:
		return 8
	case VertexFormatR32G32B32Sfloat:
		return 12
	default:
		return 16
	}
}

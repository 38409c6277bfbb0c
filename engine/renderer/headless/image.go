package headless

import (
	"image"
	"image/color"

	"github.com/cockroachdb/errors"
	"golang.org/x/image/draw"

	"github.com/spaghettifunk/nova/engine/math"
	"github.com/spaghettifunk/nova/engine/renderer/metadata"
)

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
	if info.Usage == 0 {
		return nil, errors.New("image usage is empty")
	}
	if info.Format.IsDepth() && info.Usage.Has(metadata.ImageUsageColorAttachment) {
		return nil, errors.Newf("%s cannot be used as a colour attachment", info.Format)
	}
	if !info.Format.IsDepth() && info.Usage.Has(metadata.ImageUsageDepthStencilAttachment) {
		return nil, errors.Newf("%s cannot be used as a depth attachment", info.Format)
	}

	img := &Image{
		device: a.device,
		format: info.Format,
		extent: metadata.Extent3D{Width: info.Extent.Width, Height: info.Extent.Height, Depth: 1},
		usage:  info.Usage,
	}
	w, h := int(info.Extent.Width), int(info.Extent.Height)
	if info.Format.IsDepth() {
		img.depth = make([]float32, w*h)
	} else {
		img.color = image.NewRGBA(image.Rect(0, 0, w, h))
	}
	a.device.imagesCreated.Add(1)
	a.device.imagesLive.Add(1)
	return img, nil
}

func (a *Allocator) CreateBuffer(info metadata.BufferCreateInfo) (metadata.Buffer, error) {
	if info.Size == 0 {
		return nil, errors.New("buffer size is zero")
	}
	return &Buffer{data: make([]byte, info.Size), hostVisible: info.HostVisible}, nil
}

/** @brief A host-memory image. Colour formats are stored as RGBA8 regardless of their GPU layout. */
type Image struct {
	device    *Device
	format    metadata.Format
	extent    metadata.Extent3D
	usage     metadata.ImageUsage
	color     *image.RGBA
	depth     []float32
	destroyed bool
}

func (i *Image) Format() metadata.Format { return i.format }

func (i *Image) Extent() metadata.Extent3D { return i.extent }

func (i *Image) Usage() metadata.ImageUsage { return i.usage }

func (i *Image) Destroyed() bool { return i.destroyed }

// Pixels returns a copy of the colour contents, or nil for depth images.
func (i *Image) Pixels() *image.RGBA {
	if i.color == nil {
		return nil
	}
	out := image.NewRGBA(i.color.Bounds())
	copy(out.Pix, i.color.Pix)
	return out
}

// DepthAt returns the depth value at (x, y) of a depth image.
func (i *Image) DepthAt(x, y int) float32 {
	return i.depth[y*int(i.extent.Width)+x]
}

func (i *Image) Destroy() {
	if i.destroyed {
		return
	}
	i.destroyed = true
	i.color = nil
	i.depth = nil
	i.device.imagesLive.Add(-1)
}

func (i *Image) clear(value metadata.ClearValue) {
	if i.depth != nil {
		for p := range i.depth {
			i.depth[p] = value.Depth
		}
		return
	}
	draw.Draw(i.color, i.color.Bounds(), image.NewUniform(toColor(value.Color)), image.Point{}, draw.Src)
}

type ImageView struct {
	image *Image
}

func (v *ImageView) Image() metadata.Image { return v.image }

func (v *ImageView) Destroy() {}

type Buffer struct {
	data        []byte
	hostVisible bool
}

func (b *Buffer) Size() uint64 { return uint64(len(b.data)) }

func (b *Buffer) Write(offset uint64, data []byte) error {
	if !b.hostVisible {
		return errors.New("buffer is not host visible")
	}
	if offset+uint64(len(data)) > uint64(len(b.data)) {
		return errors.Newf("write of %d bytes at offset %d overflows buffer of %d bytes", len(data), offset, len(b.data))
	}
	copy(b.data[offset:], data)
	return nil
}

func (b *Buffer) Destroy() {
	b.data = nil
}

func toColor(c [4]float32) color.NRGBA {
	return color.NRGBA{
		R: unorm8(c[0]),
		G: unorm8(c[1]),
		B: unorm8(c[2]),
		A: unorm8(c[3]),
	}
}

func unorm8(v float32) uint8 {
	return uint8(math.Clamp(v, 0, 1)*255 + 0.5)
}

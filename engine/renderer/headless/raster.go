package headless

import (
	"encoding/binary"
	"image"
	stdmath "math"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"golang.org/x/image/draw"
	"golang.org/x/image/vector"

	"github.com/spaghettifunk/nova/engine/renderer/metadata"
)

const (
	positionLocation = 0
	colorLocation    = 1
)

// drawTriangles rasterizes a triangle list into the first colour attachment of the
// current subpass. Every triangle is filled with the average of its vertex colours;
// depth testing is not emulated.
func drawTriangles(st *execState, vertexCount, instanceCount, firstVertex uint32) error {
	switch {
	case st.framebuffer == nil:
		return errors.New("draw: no render pass in progress")
	case st.pipeline == nil:
		return errors.New("draw: no pipeline bound")
	case st.viewport == nil:
		return errors.New("draw: no viewport set")
	}
	if vertexCount == 0 || instanceCount == 0 {
		return nil
	}
	buf := st.vertexBuffers[0]
	if buf == nil {
		return errors.New("draw: no vertex buffer bound at binding 0")
	}

	sp := st.pipeline.info.Subpass
	desc := sp.RenderPass.Description().Subpasses[sp.Index]
	if len(desc.ColorAttachments) == 0 {
		return nil
	}
	target := st.framebuffer.attachments[desc.ColorAttachments[0]].Image().(*Image)
	bounds := target.color.Bounds()
	clip := bounds
	if st.scissor != nil {
		clip = clip.Intersect(toRect(*st.scissor))
	}

	in := st.pipeline.info.VertexInput
	scratch := image.NewRGBA(bounds)
	for v := firstVertex; v+3 <= firstVertex+vertexCount; v += 3 {
		var pts [3]mgl32.Vec2
		var sum mgl32.Vec4
		for k := uint32(0); k < 3; k++ {
			pos, col, err := readVertex(buf, in, v+k)
			if err != nil {
				return errors.Wrapf(err, "draw: vertex %d", v+k)
			}
			pts[k] = toFramebuffer(pos, *st.viewport)
			sum = sum.Add(col)
		}
		avg := sum.Mul(1.0 / 3.0)

		z := vector.NewRasterizer(bounds.Dx(), bounds.Dy())
		z.MoveTo(pts[0].X(), pts[0].Y())
		z.LineTo(pts[1].X(), pts[1].Y())
		z.LineTo(pts[2].X(), pts[2].Y())
		z.ClosePath()
		z.Draw(scratch, bounds, image.NewUniform(toColor([4]float32(avg))), image.Point{})
	}
	draw.Draw(target.color, clip, scratch, clip.Min, draw.Over)
	return nil
}

// toFramebuffer maps normalized device coordinates to framebuffer pixels.
func toFramebuffer(ndc mgl32.Vec2, vp metadata.Viewport) mgl32.Vec2 {
	return mgl32.Vec2{
		vp.X + (ndc.X()+1)*0.5*vp.Width,
		vp.Y + (ndc.Y()+1)*0.5*vp.Height,
	}
}

func readVertex(buf *Buffer, in metadata.VertexInput, index uint32) (mgl32.Vec2, mgl32.Vec4, error) {
	pos := mgl32.Vec2{}
	col := mgl32.Vec4{1, 1, 1, 1}
	base := uint64(index) * uint64(in.Stride)
	for _, attr := range in.Attributes {
		off := base + uint64(attr.Offset)
		n := int(attr.Format.Size() / 4)
		if off+uint64(attr.Format.Size()) > uint64(len(buf.data)) {
			return pos, col, errors.Newf("attribute at location %d reads past the end of the vertex buffer", attr.Location)
		}
		var v [4]float32
		for i := 0; i < n; i++ {
			start := off + uint64(i*4)
			v[i] = stdmath.Float32frombits(binary.LittleEndian.Uint32(buf.data[start : start+4]))
		}
		switch attr.Location {
		case positionLocation:
			pos = mgl32.Vec2{v[0], v[1]}
		case colorLocation:
			col = mgl32.Vec4{v[0], v[1], v[2], 1}
			if n == 4 {
				col[3] = v[3]
			}
		}
	}
	return pos, col, nil
}

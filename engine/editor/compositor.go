package editor

import (
	"github.com/cockroachdb/errors"

	"github.com/spaghettifunk/nova/engine/math"
	"github.com/spaghettifunk/nova/engine/renderer/future"
	"github.com/spaghettifunk/nova/engine/renderer/metadata"
)

// Compositor draws on top of the rendered scene before presentation.
type Compositor interface {
	DrawOnImage(before *future.Future, target metadata.ImageView) (*future.Future, error)
}

var editorBackground = [4]float32{0.1, 0.1, 0.12, 1}

// ViewportCompositor clears the target and shows the scene image in its centre, scaled to fit.
type ViewportCompositor struct {
	queue      metadata.Queue
	allocators metadata.Allocators
	scene      metadata.Image
	background [4]float32
}

func NewViewportCompositor(queue metadata.Queue, allocators metadata.Allocators, scene metadata.Image) *ViewportCompositor {
	return &ViewportCompositor{
		queue:      queue,
		allocators: allocators,
		scene:      scene,
		background: editorBackground,
	}
}

// ViewportRect is where the scene lands on a target of the given extent.
func (c *ViewportCompositor) ViewportRect(target metadata.Extent2D) metadata.Rect2D {
	src := c.scene.Extent()
	x, y, w, h := math.FitCentered(src.Width, src.Height, target.Width, target.Height)
	return metadata.Rect2D{
		Offset: metadata.Offset2D{X: x, Y: y},
		Extent: metadata.Extent2D{Width: w, Height: h},
	}
}

func (c *ViewportCompositor) DrawOnImage(before *future.Future, target metadata.ImageView) (*future.Future, error) {
	builder, err := c.allocators.CommandBuffers.AllocatePrimary(c.queue.FamilyIndex(), metadata.CommandBufferUsageOneTimeSubmit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to allocate compositor command buffer")
	}
	dst := target.Image()
	builder.ClearColorImage(dst, c.background)
	builder.BlitImage(c.scene, metadata.Rect2D{Extent: c.scene.Extent().To2D()}, dst, c.ViewportRect(dst.Extent().To2D()))
	cb, err := builder.Build()
	if err != nil {
		return nil, errors.Wrap(err, "failed to record compositor commands")
	}
	after, err := before.ThenExecute(c.queue, cb, cb)
	if err != nil {
		cb.Destroy()
		return nil, errors.Wrap(err, "failed to chain compositor commands")
	}
	return after, nil
}

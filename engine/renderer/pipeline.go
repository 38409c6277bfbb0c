package renderer

import (
	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/nova/engine/renderer/future"
	"github.com/spaghettifunk/nova/engine/renderer/metadata"
)

// RenderPipeline draws one draw system through a frame system.
type RenderPipeline struct {
	frameSystem *FrameSystem
	drawSystem  DrawSystem
}

func NewRenderPipeline(queue metadata.Queue, imageFormat metadata.Format, allocators Allocators, factory DrawSystemFactory) (*RenderPipeline, error) {
	if factory == nil {
		return nil, errors.AssertionFailedf("render pipeline needs a draw system factory")
	}
	frameSystem, err := NewFrameSystem(queue, imageFormat, allocators)
	if err != nil {
		return nil, err
	}
	drawSystem, err := factory(queue, frameSystem.DeferredSubpass(), allocators)
	if err != nil {
		frameSystem.Destroy()
		return nil, errors.Wrap(err, "failed to create draw system")
	}
	return &RenderPipeline{frameSystem: frameSystem, drawSystem: drawSystem}, nil
}

func (rp *RenderPipeline) FrameSystem() *FrameSystem {
	return rp.frameSystem
}

// Render records and submits one frame into image after before. The returned future is flushed
// and can be waited upon.
func (rp *RenderPipeline) Render(before *future.Future, image metadata.ImageView) (*future.Future, error) {
	frame, err := rp.frameSystem.Frame(before, image, mgl32.Ident4())
	if err != nil {
		return nil, err
	}

	var after *future.Future
	for {
		pass, err := frame.NextPass()
		if err != nil {
			frame.Discard()
			return nil, err
		}
		if pass == nil {
			break
		}

		switch p := pass.(type) {
		case *DrawPass:
			cb, err := rp.drawSystem.Draw(image.Image().Extent().To2D())
			if err != nil {
				frame.Discard()
				return nil, errors.Wrap(err, "draw system failed to record")
			}
			if err := p.Execute(cb); err != nil {
				cb.Destroy()
				frame.Discard()
				return nil, err
			}
		case *FinishedPass:
			after = p.Future
		}
	}

	flushed, err := after.ThenSignalFenceAndFlush()
	if err != nil {
		return nil, errors.Wrap(err, "failed to submit frame")
	}
	return flushed, nil
}

func (rp *RenderPipeline) Destroy() {
	if d, ok := rp.drawSystem.(metadata.Destroyer); ok {
		d.Destroy()
	}
	rp.frameSystem.Destroy()
}

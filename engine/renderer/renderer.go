package renderer

import (
	"github.com/cockroachdb/errors"

	"github.com/spaghettifunk/nova/engine/core"
	"github.com/spaghettifunk/nova/engine/renderer/future"
	"github.com/spaghettifunk/nova/engine/renderer/metadata"
	"github.com/spaghettifunk/nova/engine/renderer/systems"
)

type rendererOptions struct {
	secondaryBufferCount int
	imageFormat          metadata.Format
	drawSystem           DrawSystemFactory
	shaders              systems.ShaderSource
}

type RendererOption func(*rendererOptions)

func WithSecondaryBufferCount(count int) RendererOption {
	return func(o *rendererOptions) { o.secondaryBufferCount = count }
}

// WithImageFormat overrides the format of the images the renderer draws into.
func WithImageFormat(format metadata.Format) RendererOption {
	return func(o *rendererOptions) { o.imageFormat = format }
}

// WithDrawSystem replaces the default triangle draw system.
func WithDrawSystem(factory DrawSystemFactory) RendererOption {
	return func(o *rendererOptions) { o.drawSystem = factory }
}

// WithShaders provides the shaders of the default triangle draw system.
func WithShaders(shaders systems.ShaderSource) RendererOption {
	return func(o *rendererOptions) { o.shaders = shaders }
}

// Renderer is the per-application entry point drawing the scene into a target image.
type Renderer struct {
	allocators     Allocators
	commandBuffers *StandardCommandBufferAllocator
	pipeline       *RenderPipeline
	imageFormat    metadata.Format
}

func NewRenderer(ctx metadata.Context, opts ...RendererOption) (*Renderer, error) {
	o := rendererOptions{
		secondaryBufferCount: DefaultSecondaryBufferCount,
		imageFormat:          metadata.DefaultImageFormat,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.drawSystem == nil {
		if o.shaders == nil {
			return nil, errors.New("renderer needs either a draw system or the triangle shaders")
		}
		o.drawSystem = systems.NewTriangleDrawSystemFactory(o.shaders)
	}

	queue := ctx.GraphicsQueue()
	commandBuffers := NewStandardCommandBufferAllocator(ctx.Device(), StandardCommandBufferAllocatorCreateInfo{
		SecondaryBufferCount: o.secondaryBufferCount,
	})
	allocators := Allocators{
		CommandBuffers: commandBuffers,
		Memory:         ctx.MemoryAllocator(),
	}

	pipeline, err := NewRenderPipeline(queue, o.imageFormat, allocators, o.drawSystem)
	if err != nil {
		commandBuffers.Destroy()
		return nil, errors.Wrap(err, "failed to create render pipeline")
	}
	core.LogInfo("renderer created on %s (%s, %d secondary command buffers)", ctx.Device().Name(), o.imageFormat, o.secondaryBufferCount)

	return &Renderer{
		allocators:     allocators,
		commandBuffers: commandBuffers,
		pipeline:       pipeline,
		imageFormat:    o.imageFormat,
	}, nil
}

// Render draws the scene into image after before; see RenderPipeline.Render.
func (r *Renderer) Render(before *future.Future, image metadata.ImageView) (*future.Future, error) {
	return r.pipeline.Render(before, image)
}

func (r *Renderer) Allocators() Allocators {
	return r.allocators
}

func (r *Renderer) ImageFormat() metadata.Format {
	return r.imageFormat
}

func (r *Renderer) Pipeline() *RenderPipeline {
	return r.pipeline
}

func (r *Renderer) Destroy() {
	r.pipeline.Destroy()
	r.commandBuffers.Destroy()
}

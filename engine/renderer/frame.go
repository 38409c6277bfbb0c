package renderer

import (
	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/nova/engine/core"
	"github.com/spaghettifunk/nova/engine/renderer/future"
	"github.com/spaghettifunk/nova/engine/renderer/metadata"
)

var (
	// ErrFrameInProgress is returned when a frame is requested while the previous one has not finished.
	ErrFrameInProgress = errors.New("previous frame has not reached its finished pass")
	// ErrPassNotExecuted is returned when leaving a draw pass that never executed a command buffer.
	ErrPassNotExecuted = errors.New("draw pass finished without executing a command buffer")
	// ErrPassAlreadyExecuted is returned by a second Execute on the same draw pass.
	ErrPassAlreadyExecuted = errors.New("draw pass already executed a command buffer")
	// ErrPassClosed is returned when a draw pass is used after the frame moved on.
	ErrPassClosed = errors.New("draw pass is no longer active")
)

var (
	colorClear = metadata.ClearColor(0, 0, 0, 0)
	depthClear = metadata.ClearDepth(1)
)

// RenderPassLayout returns the single-subpass colour + depth layout used for every frame.
func RenderPassLayout(outputFormat metadata.Format) metadata.RenderPassDescription {
	return metadata.RenderPassDescription{
		Attachments: []metadata.AttachmentDescription{
			{
				Format:        outputFormat,
				Samples:       1,
				LoadOp:        metadata.LoadOpClear,
				StoreOp:       metadata.StoreOpStore,
				InitialLayout: metadata.ImageLayoutUndefined,
				FinalLayout:   metadata.ImageLayoutColorAttachmentOptimal,
			},
			{
				Format:        metadata.DepthFormat,
				Samples:       1,
				LoadOp:        metadata.LoadOpClear,
				StoreOp:       metadata.StoreOpDontCare,
				InitialLayout: metadata.ImageLayoutUndefined,
				FinalLayout:   metadata.ImageLayoutDepthStencilAttachmentOptimal,
			},
		},
		Subpasses: []metadata.SubpassDescription{
			{ColorAttachments: []uint32{0}, DepthStencilAttachment: 1},
		},
	}
}

type depthBuffer struct {
	image metadata.Image
	view  metadata.ImageView
}

func newDepthBuffer(allocators Allocators, device metadata.Device, extent metadata.Extent2D, usage metadata.ImageUsage) (*depthBuffer, error) {
	img, err := allocators.Memory.CreateImage(metadata.ImageCreateInfo{
		Format:      metadata.DepthFormat,
		Extent:      extent.To3D(),
		Usage:       usage,
		ArrayLayers: 1,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create %dx%d depth buffer", extent.Width, extent.Height)
	}
	view, err := device.CreateImageView(img)
	if err != nil {
		img.Destroy()
		return nil, errors.Wrap(err, "failed to create depth buffer view")
	}
	return &depthBuffer{image: img, view: view}, nil
}

func (d *depthBuffer) Destroy() {
	d.view.Destroy()
	d.image.Destroy()
}

/**
 * @brief Owns the frame render pass and the depth buffer backing it, and hands out one
 * Frame at a time. The depth buffer follows the extent of the last target image.
 */
type FrameSystem struct {
	queue      metadata.Queue
	device     metadata.Device
	allocators Allocators
	renderPass metadata.RenderPass

	depth           *metadata.Shared[*depthBuffer]
	depthGeneration uint64

	frameInProgress bool
}

func NewFrameSystem(queue metadata.Queue, outputFormat metadata.Format, allocators Allocators) (*FrameSystem, error) {
	device := queue.Device()
	renderPass, err := device.CreateRenderPass(RenderPassLayout(outputFormat))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create frame render pass for %s", outputFormat)
	}

	// placeholder until the first frame tells the real extent
	depth, err := newDepthBuffer(allocators, device, metadata.Extent2D{Width: 1, Height: 1},
		metadata.ImageUsageSampled|metadata.ImageUsageDepthStencilAttachment)
	if err != nil {
		renderPass.Destroy()
		return nil, err
	}

	return &FrameSystem{
		queue:      queue,
		device:     device,
		allocators: allocators,
		renderPass: renderPass,
		depth:      metadata.NewShared(depth),
	}, nil
}

// DeferredSubpass is the subpass draw systems record into.
func (fs *FrameSystem) DeferredSubpass() metadata.Subpass {
	return metadata.Subpass{RenderPass: fs.renderPass, Index: 0}
}

func (fs *FrameSystem) RenderPass() metadata.RenderPass {
	return fs.renderPass
}

func (fs *FrameSystem) DepthExtent() metadata.Extent2D {
	return fs.depth.Get().image.Extent().To2D()
}

// DepthGeneration counts the depth buffer reallocations.
func (fs *FrameSystem) DepthGeneration() uint64 {
	return fs.depthGeneration
}

// Frame starts recording a frame into target, to be executed after before.
// before is consumed only when the frame reaches its finished pass.
func (fs *FrameSystem) Frame(before *future.Future, target metadata.ImageView, worldToFramebuffer mgl32.Mat4) (*Frame, error) {
	if fs.frameInProgress {
		return nil, ErrFrameInProgress
	}
	if before.Consumed() {
		return nil, future.ErrFutureConsumed
	}

	extent := target.Image().Extent().To2D()
	if extent != fs.DepthExtent() {
		depth, err := newDepthBuffer(fs.allocators, fs.device, extent,
			metadata.ImageUsageDepthStencilAttachment|metadata.ImageUsageTransientAttachment)
		if err != nil {
			return nil, err
		}
		// frames still in flight hold their own reference to the old buffer
		fs.depth.Release()
		fs.depth = metadata.NewShared(depth)
		fs.depthGeneration++
		core.LogDebug("depth buffer reallocated to %dx%d (generation %d)", extent.Width, extent.Height, fs.depthGeneration)
	}

	depth := fs.depth.Hold()
	framebuffer, err := fs.device.CreateFramebuffer(metadata.FramebufferCreateInfo{
		RenderPass:  fs.renderPass,
		Attachments: []metadata.ImageView{target, fs.depth.Get().view},
	})
	if err != nil {
		depth.Destroy()
		return nil, errors.Wrap(err, "failed to create frame framebuffer")
	}

	builder, err := fs.allocators.CommandBuffers.AllocatePrimary(fs.queue.FamilyIndex(), metadata.CommandBufferUsageOneTimeSubmit)
	if err != nil {
		framebuffer.Destroy()
		depth.Destroy()
		return nil, errors.Wrap(err, "failed to allocate frame command buffer")
	}
	builder.BeginRenderPass(metadata.RenderPassBeginInfo{
		Framebuffer: framebuffer,
		ClearValues: []metadata.ClearValue{colorClear, depthClear},
	}, metadata.SubpassContentsSecondaryCommandBuffers)

	fs.frameInProgress = true
	return &Frame{
		system:             fs,
		before:             before,
		framebuffer:        framebuffer,
		depth:              depth,
		builder:            builder,
		worldToFramebuffer: worldToFramebuffer,
	}, nil
}

func (fs *FrameSystem) Destroy() {
	fs.depth.Release()
	fs.renderPass.Destroy()
}

type frameState int

const (
	awaitingDeferred frameState = iota
	awaitingFinish
	done
)

/** @brief One execution of the frame render pass. Single use. */
type Frame struct {
	system             *FrameSystem
	before             *future.Future
	framebuffer        metadata.Framebuffer
	depth              metadata.Destroyer
	builder            metadata.PrimaryCommandBufferBuilder
	worldToFramebuffer mgl32.Mat4

	state       frameState
	pass        *DrawPass
	secondaries []metadata.CommandBuffer
}

/** @brief Either a *DrawPass or a *FinishedPass. */
type Pass interface {
	isPass()
}

// DrawPass accepts exactly one secondary command buffer recorded against the deferred subpass.
type DrawPass struct {
	frame    *Frame
	executed bool
	closed   bool
}

func (*DrawPass) isPass() {}

// Execute records cb into the frame's render pass.
func (p *DrawPass) Execute(cb metadata.CommandBuffer) error {
	if p.closed {
		return ErrPassClosed
	}
	if p.executed {
		return ErrPassAlreadyExecuted
	}
	if cb == nil || cb.Level() != metadata.CommandBufferLevelSecondary {
		return errors.New("draw pass only executes secondary command buffers")
	}
	p.frame.builder.ExecuteCommands(cb)
	p.frame.secondaries = append(p.frame.secondaries, cb)
	p.executed = true
	return nil
}

func (p *DrawPass) ViewportDimensions() metadata.Extent2D {
	return p.frame.framebuffer.Extent()
}

func (p *DrawPass) WorldToFramebuffer() mgl32.Mat4 {
	return p.frame.worldToFramebuffer
}

// FinishedPass carries the frame's work, chained after the frame's before future but not flushed.
type FinishedPass struct {
	Future *future.Future
}

func (*FinishedPass) isPass() {}

// NextPass advances the frame: a *DrawPass first, then a *FinishedPass, then nil.
func (f *Frame) NextPass() (Pass, error) {
	switch f.state {
	case awaitingDeferred:
		f.state = awaitingFinish
		f.pass = &DrawPass{frame: f}
		return f.pass, nil

	case awaitingFinish:
		if !f.pass.executed {
			return nil, ErrPassNotExecuted
		}
		f.pass.closed = true
		f.builder.EndRenderPass()
		cb, err := f.builder.Build()
		if err != nil {
			f.release()
			return nil, errors.Wrap(err, "failed to build frame command buffer")
		}

		keepAlive := make([]metadata.Destroyer, 0, len(f.secondaries)+3)
		keepAlive = append(keepAlive, f.depth, f.framebuffer)
		for _, s := range f.secondaries {
			keepAlive = append(keepAlive, s)
		}
		keepAlive = append(keepAlive, cb)
		after, err := f.before.ThenExecute(f.system.queue, cb, keepAlive...)
		if err != nil {
			cb.Destroy()
			f.release()
			return nil, errors.Wrap(err, "failed to chain frame command buffer")
		}
		f.before = nil
		f.secondaries = nil
		f.finish()
		return &FinishedPass{Future: after}, nil

	default:
		return nil, nil
	}
}

// Discard abandons an unfinished frame and returns its before future, unconsumed.
// It returns nil once the frame reached its finished pass.
func (f *Frame) Discard() *future.Future {
	if f.state == done {
		return nil
	}
	if f.pass != nil {
		f.pass.closed = true
	}
	f.builder.EndRenderPass()
	if cb, err := f.builder.Build(); err == nil {
		cb.Destroy()
	}
	before := f.before
	f.release()
	return before
}

func (f *Frame) release() {
	for _, s := range f.secondaries {
		s.Destroy()
	}
	f.secondaries = nil
	f.framebuffer.Destroy()
	f.depth.Destroy()
	f.before = nil
	f.finish()
}

func (f *Frame) finish() {
	f.state = done
	f.system.frameInProgress = false
}

// Package headless is a host-memory implementation of the renderer's GPU contract.
//
// Command buffers are recorded as command lists and replayed synchronously on Submit,
// so fences are signaled as soon as Submit returns. Colour attachments are stored as
// *image.RGBA and can be read back with Image.Pixels.
package headless

import (
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/spaghettifunk/nova/engine/core"
	"github.com/spaghettifunk/nova/engine/renderer/metadata"
)

const spirvMagic uint32 = 0x07230203

/** @brief Counters describing the objects a device created, for tests and diagnostics. */
type Stats struct {
	ImagesCreated  int64
	ImagesLive     int64
	Framebuffers   int64
	Submits        int64
	CommandBuffers int64
	PipelinesLive  int64
	SemaphoresLive int64
	FencesLive     int64
}

type Device struct {
	name      string
	queue     *Queue
	allocator *Allocator
	destroyed atomic.Bool

	imagesCreated  atomic.Int64
	imagesLive     atomic.Int64
	framebuffers   atomic.Int64
	submits        atomic.Int64
	commandBuffers atomic.Int64
	pipelinesLive  atomic.Int64
	semaphoresLive atomic.Int64
	fencesLive     atomic.Int64
}

func NewDevice(name string) *Device {
	d := &Device{name: name}
	d.queue = &Queue{device: d, family: 0}
	d.allocator = &Allocator{device: d}
	core.LogDebug("headless device '%s' created", name)
	return d
}

// Device returns d itself, so a *Device can be used as a metadata.Context.
func (d *Device) Device() metadata.Device { return d }

func (d *Device) Name() string { return d.name }

func (d *Device) GraphicsQueue() metadata.Queue { return d.queue }

func (d *Device) MemoryAllocator() metadata.MemoryAllocator { return d.allocator }

func (d *Device) Stats() Stats {
	return Stats{
		ImagesCreated:  d.imagesCreated.Load(),
		ImagesLive:     d.imagesLive.Load(),
		Framebuffers:   d.framebuffers.Load(),
		Submits:        d.submits.Load(),
		CommandBuffers: d.commandBuffers.Load(),
		PipelinesLive:  d.pipelinesLive.Load(),
		SemaphoresLive: d.semaphoresLive.Load(),
		FencesLive:     d.fencesLive.Load(),
	}
}

func (d *Device) CreateCommandPool(queueFamilyIndex uint32) (metadata.CommandPool, error) {
	if queueFamilyIndex != d.queue.family {
		return nil, errors.Newf("unknown queue family %d", queueFamilyIndex)
	}
	return &CommandPool{device: d, family: queueFamilyIndex}, nil
}

func (d *Device) CreateRenderPass(desc metadata.RenderPassDescription) (metadata.RenderPass, error) {
	if len(desc.Subpasses) == 0 {
		return nil, errors.New("render pass needs at least one subpass")
	}
	for i, a := range desc.Attachments {
		if a.Format == metadata.FormatUndefined {
			return nil, errors.Newf("attachment %d has an undefined format", i)
		}
		if a.Samples != 1 {
			return nil, errors.Newf("attachment %d: only single sampled attachments are supported", i)
		}
	}
	for i, s := range desc.Subpasses {
		for _, c := range s.ColorAttachments {
			if int(c) >= len(desc.Attachments) || desc.Attachments[c].Format.IsDepth() {
				return nil, errors.Newf("subpass %d references an invalid colour attachment %d", i, c)
			}
		}
		if s.DepthStencilAttachment >= 0 {
			if int(s.DepthStencilAttachment) >= len(desc.Attachments) || !desc.Attachments[s.DepthStencilAttachment].Format.IsDepth() {
				return nil, errors.Newf("subpass %d references an invalid depth attachment %d", i, s.DepthStencilAttachment)
			}
		}
	}
	return &RenderPass{desc: desc}, nil
}

func (d *Device) CreateImageView(img metadata.Image) (metadata.ImageView, error) {
	hi, ok := img.(*Image)
	if !ok {
		return nil, errors.AssertionFailedf("image %T does not belong to the headless device", img)
	}
	if hi.destroyed {
		return nil, errors.Wrap(metadata.ErrDestroyed, "image view")
	}
	return &ImageView{image: hi}, nil
}

func (d *Device) CreateFramebuffer(info metadata.FramebufferCreateInfo) (metadata.Framebuffer, error) {
	if info.RenderPass == nil {
		return nil, errors.New("framebuffer needs a render pass")
	}
	desc := info.RenderPass.Description()
	if len(info.Attachments) != len(desc.Attachments) {
		return nil, errors.Newf("framebuffer has %d attachments, render pass expects %d", len(info.Attachments), len(desc.Attachments))
	}
	var extent metadata.Extent2D
	for i, view := range info.Attachments {
		img := view.Image()
		if img.Format() != desc.Attachments[i].Format {
			return nil, errors.Newf("attachment %d has format %s, render pass expects %s", i, img.Format(), desc.Attachments[i].Format)
		}
		e := img.Extent().To2D()
		if i == 0 {
			extent = e
		} else if e != extent {
			return nil, errors.Newf("attachment %d is %dx%d, expected %dx%d", i, e.Width, e.Height, extent.Width, extent.Height)
		}
	}
	d.framebuffers.Add(1)
	return &Framebuffer{renderPass: info.RenderPass, attachments: info.Attachments, extent: extent}, nil
}

func (d *Device) CreateShaderModule(stage metadata.ShaderStage, code []byte) (metadata.ShaderModule, error) {
	if len(code) < 4 || len(code)%4 != 0 {
		return nil, errors.Newf("%s shader: SPIR-V code size %d is not a multiple of 4", stage, len(code))
	}
	magic := uint32(code[0]) | uint32(code[1])<<8 | uint32(code[2])<<16 | uint32(code[3])<<24
	if magic != spirvMagic {
		return nil, errors.Newf("%s shader: invalid SPIR-V magic 0x%08x", stage, magic)
	}
	return &ShaderModule{stage: stage}, nil
}

func (d *Device) CreateGraphicsPipeline(info metadata.GraphicsPipelineCreateInfo) (metadata.GraphicsPipeline, error) {
	if !info.Subpass.IsValid() {
		return nil, errors.New("graphics pipeline needs a valid subpass")
	}
	if info.VertexShader == nil || info.VertexShader.Stage() != metadata.ShaderStageVertex {
		return nil, errors.New("graphics pipeline needs a vertex shader")
	}
	if info.FragmentShader == nil || info.FragmentShader.Stage() != metadata.ShaderStageFragment {
		return nil, errors.New("graphics pipeline needs a fragment shader")
	}
	if info.Topology != metadata.PrimitiveTopologyTriangleList {
		return nil, errors.Newf("unsupported topology %d", info.Topology)
	}
	d.pipelinesLive.Add(1)
	return &GraphicsPipeline{device: d, info: info}, nil
}

func (d *Device) CreateFence(signaled bool) (metadata.Fence, error) {
	d.fencesLive.Add(1)
	f := &Fence{device: d}
	f.signaled.Store(signaled)
	return f, nil
}

func (d *Device) CreateSemaphore() (metadata.Semaphore, error) {
	d.semaphoresLive.Add(1)
	return &Semaphore{device: d}, nil
}

func (d *Device) WaitIdle() error {
	return nil
}

func (d *Device) Destroy() {
	if d.destroyed.Swap(true) {
		return
	}
	core.LogDebug("headless device '%s' destroyed (%d images still alive)", d.name, d.imagesLive.Load())
}

type Queue struct {
	device *Device
	family uint32
}

func (q *Queue) Device() metadata.Device { return q.device }

func (q *Queue) FamilyIndex() uint32 { return q.family }

// Submit replays every command buffer of every batch in order, then signals fence.
func (q *Queue) Submit(batches []metadata.SubmitInfo, fence metadata.Fence) error {
	q.device.submits.Add(1)
	for bi, batch := range batches {
		for _, w := range batch.WaitSemaphores {
			if s, ok := w.Semaphore.(*Semaphore); !ok || s.destroyed {
				return errors.Newf("batch %d waits on an invalid semaphore", bi)
			}
		}
		for ci, cb := range batch.CommandBuffers {
			pcb, ok := metadata.UnwrapCommandBuffer(cb).(*CommandBuffer)
			if !ok {
				return errors.AssertionFailedf("batch %d: command buffer %d (%T) does not belong to the headless device", bi, ci, cb)
			}
			if err := pcb.submit(); err != nil {
				return errors.Wrapf(err, "batch %d: command buffer %d", bi, ci)
			}
		}
	}
	if fence != nil {
		hf, ok := fence.(*Fence)
		if !ok {
			return errors.AssertionFailedf("fence %T does not belong to the headless device", fence)
		}
		hf.signaled.Store(true)
	}
	return nil
}

func (q *Queue) WaitIdle() error {
	return nil
}

type Fence struct {
	device    *Device
	signaled  atomic.Bool
	destroyed atomic.Bool
}

func (f *Fence) Wait(timeout time.Duration) error {
	if f.destroyed.Load() {
		return errors.Wrap(metadata.ErrDestroyed, "fence")
	}
	if !f.signaled.Load() {
		// nothing else can signal it: submissions complete synchronously
		return errors.Wrapf(metadata.ErrTimeout, "fence not signaled after %s", timeout)
	}
	return nil
}

func (f *Fence) Signaled() (bool, error) {
	if f.destroyed.Load() {
		return false, errors.Wrap(metadata.ErrDestroyed, "fence")
	}
	return f.signaled.Load(), nil
}

func (f *Fence) Reset() error {
	f.signaled.Store(false)
	return nil
}

func (f *Fence) Destroy() {
	if !f.destroyed.Swap(true) {
		f.device.fencesLive.Add(-1)
	}
}

type Semaphore struct {
	device    *Device
	destroyed bool
}

func (s *Semaphore) Destroy() {
	if !s.destroyed {
		s.destroyed = true
		s.device.semaphoresLive.Add(-1)
	}
}

type RenderPass struct {
	desc metadata.RenderPassDescription
}

func (r *RenderPass) Description() metadata.RenderPassDescription { return r.desc }

func (r *RenderPass) Destroy() {}

type Framebuffer struct {
	renderPass  metadata.RenderPass
	attachments []metadata.ImageView
	extent      metadata.Extent2D
}

func (f *Framebuffer) RenderPass() metadata.RenderPass { return f.renderPass }

func (f *Framebuffer) Attachments() []metadata.ImageView { return f.attachments }

func (f *Framebuffer) Extent() metadata.Extent2D { return f.extent }

func (f *Framebuffer) Destroy() {}

type ShaderModule struct {
	stage metadata.ShaderStage
}

func (s *ShaderModule) Stage() metadata.ShaderStage { return s.stage }

func (s *ShaderModule) Destroy() {}

type GraphicsPipeline struct {
	device    *Device
	info      metadata.GraphicsPipelineCreateInfo
	destroyed bool
}

func (p *GraphicsPipeline) Subpass() metadata.Subpass { return p.info.Subpass }

func (p *GraphicsPipeline) VertexInput() metadata.VertexInput { return p.info.VertexInput }

func (p *GraphicsPipeline) Destroy() {
	if !p.destroyed {
		p.destroyed = true
		p.device.pipelinesLive.Add(-1)
	}
}

package vulkan

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/nova/engine/renderer/metadata"
)

/**
 * @brief A command pool of one queue family. Allocations and frees are serialized
 * through the device lock pool.
 */
type CommandPool struct {
	device *Device
	handle vk.CommandPool
	family uint32
}

func newCommandPool(device *Device, family uint32) (*CommandPool, error) {
	poolCreateInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: family,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
	}
	var handle vk.CommandPool
	if err := checkResult(vk.CreateCommandPool(device.logical, &poolCreateInfo, nil, &handle), "vkCreateCommandPool"); err != nil {
		return nil, err
	}
	return &CommandPool{device: device, handle: handle, family: family}, nil
}

func (p *CommandPool) QueueFamilyIndex() uint32 { return p.family }

func (p *CommandPool) allocate(level metadata.CommandBufferLevel) (*CommandBuffer, error) {
	vkLevel := vk.CommandBufferLevelPrimary
	if level == metadata.CommandBufferLevelSecondary {
		vkLevel = vk.CommandBufferLevelSecondary
	}
	allocateInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        p.handle,
		CommandBufferCount: 1,
		Level:              vkLevel,
	}
	handles := make([]vk.CommandBuffer, 1)
	if err := p.device.locks.SafeCall(CommandPoolManagement, func() error {
		return checkResult(vk.AllocateCommandBuffers(p.device.logical, &allocateInfo, handles), "vkAllocateCommandBuffers")
	}); err != nil {
		return nil, err
	}
	return &CommandBuffer{pool: p, handle: handles[0], level: level}, nil
}

func (p *CommandPool) AllocatePrimary(usage metadata.CommandBufferUsage) (metadata.PrimaryCommandBufferBuilder, error) {
	cb, err := p.allocate(metadata.CommandBufferLevelPrimary)
	if err != nil {
		return nil, err
	}
	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: usageFlags(usage),
	}
	if err := checkResult(vk.BeginCommandBuffer(cb.handle, &beginInfo), "vkBeginCommandBuffer"); err != nil {
		cb.Destroy()
		return nil, err
	}
	return &PrimaryBuilder{cb: cb}, nil
}

func (p *CommandPool) AllocateSecondary(usage metadata.CommandBufferUsage, inheritance metadata.Subpass) (metadata.SecondaryCommandBufferBuilder, error) {
	if !inheritance.IsValid() {
		return nil, errors.New("secondary command buffer needs a valid subpass")
	}
	rp, ok := inheritance.RenderPass.(*RenderPass)
	if !ok {
		return nil, errors.Newf("render pass %T does not belong to a Vulkan device", inheritance.RenderPass)
	}
	cb, err := p.allocate(metadata.CommandBufferLevelSecondary)
	if err != nil {
		return nil, err
	}
	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: usageFlags(usage) | vk.CommandBufferUsageFlags(vk.CommandBufferUsageRenderPassContinueBit),
		PInheritanceInfo: []vk.CommandBufferInheritanceInfo{{
			SType:       vk.StructureTypeCommandBufferInheritanceInfo,
			RenderPass:  rp.handle,
			Subpass:     inheritance.Index,
			Framebuffer: vk.NullFramebuffer,
		}},
	}
	if err := checkResult(vk.BeginCommandBuffer(cb.handle, &beginInfo), "vkBeginCommandBuffer"); err != nil {
		cb.Destroy()
		return nil, err
	}
	return &SecondaryBuilder{cb: cb, subpass: inheritance}, nil
}

func (p *CommandPool) Destroy() {
	if p.handle == vk.NullCommandPool {
		return
	}
	_ = p.device.locks.SafeCall(CommandPoolManagement, func() error {
		vk.DestroyCommandPool(p.device.logical, p.handle, nil)
		return nil
	})
	p.handle = vk.NullCommandPool
}

func usageFlags(usage metadata.CommandBufferUsage) vk.CommandBufferUsageFlags {
	switch usage {
	case metadata.CommandBufferUsageOneTimeSubmit:
		return vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit)
	case metadata.CommandBufferUsageSimultaneousUse:
		return vk.CommandBufferUsageFlags(vk.CommandBufferUsageSimultaneousUseBit)
	}
	return 0
}

type CommandBuffer struct {
	pool   *CommandPool
	handle vk.CommandBuffer
	level  metadata.CommandBufferLevel
}

func (c *CommandBuffer) Level() metadata.CommandBufferLevel { return c.level }

func (c *CommandBuffer) Destroy() {
	if c.handle == nil {
		return
	}
	handles := []vk.CommandBuffer{c.handle}
	_ = c.pool.device.locks.SafeCall(CommandPoolManagement, func() error {
		vk.FreeCommandBuffers(c.pool.device.logical, c.pool.handle, 1, handles)
		return nil
	})
	c.handle = nil
}

/**
 * @brief Records a primary command buffer. Image layouts are tracked per image and
 * barriers are inserted whenever a command needs a different layout; images that belong
 * to a swapchain are left in the present layout by Build.
 */
type PrimaryBuilder struct {
	cb  *CommandBuffer
	err error

	framebuffer *Framebuffer
	presentable map[*Image]struct{}
}

func (b *PrimaryBuilder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

func (b *PrimaryBuilder) touch(img *Image) {
	if !img.presentable {
		return
	}
	if b.presentable == nil {
		b.presentable = make(map[*Image]struct{})
	}
	b.presentable[img] = struct{}{}
}

// transition records a barrier moving img to layout. When discard is set the previous
// contents are not preserved.
func (b *PrimaryBuilder) transition(img *Image, layout vk.ImageLayout, discard bool) {
	oldLayout := img.layout
	if discard {
		oldLayout = vk.ImageLayoutUndefined
	}
	if oldLayout == layout && layout != vk.ImageLayoutUndefined {
		return
	}
	srcAccess, srcStage := layoutAccess(oldLayout)
	dstAccess, dstStage := layoutAccess(layout)
	barrier := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		SrcAccessMask:       srcAccess,
		DstAccessMask:       dstAccess,
		OldLayout:           oldLayout,
		NewLayout:           layout,
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               img.handle,
		SubresourceRange:    img.subresourceRange(),
	}
	vk.CmdPipelineBarrier(b.cb.handle, srcStage, dstStage, 0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{barrier})
	img.layout = layout
}

func (b *PrimaryBuilder) BeginRenderPass(info metadata.RenderPassBeginInfo, contents metadata.SubpassContents) {
	if b.framebuffer != nil {
		b.fail(errors.New("render pass already begun"))
		return
	}
	fb, ok := info.Framebuffer.(*Framebuffer)
	if !ok {
		b.fail(errors.Newf("framebuffer %T does not belong to a Vulkan device", info.Framebuffer))
		return
	}
	desc := fb.renderPass.desc
	if len(info.ClearValues) < len(desc.Attachments) {
		b.fail(errors.Newf("render pass has %d attachments but only %d clear values", len(desc.Attachments), len(info.ClearValues)))
		return
	}

	clearValues := make([]vk.ClearValue, len(desc.Attachments))
	for i, a := range desc.Attachments {
		view := fb.attachments[i].(*ImageView)
		b.touch(view.image)
		if a.InitialLayout != metadata.ImageLayoutUndefined {
			b.transition(view.image, toVkImageLayout(a.InitialLayout), false)
		}
		cv := info.ClearValues[i]
		if a.Format.IsDepth() {
			clearValues[i].SetDepthStencil(cv.Depth, cv.Stencil)
		} else {
			clearValues[i].SetColor(cv.Color[:])
		}
	}

	beginInfo := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  fb.renderPass.handle,
		Framebuffer: fb.handle,
		RenderArea: vk.Rect2D{
			Offset: vk.Offset2D{X: 0, Y: 0},
			Extent: vk.Extent2D{Width: fb.extent.Width, Height: fb.extent.Height},
		},
		ClearValueCount: uint32(len(clearValues)),
		PClearValues:    clearValues,
	}
	subpassContents := vk.SubpassContentsInline
	if contents == metadata.SubpassContentsSecondaryCommandBuffers {
		subpassContents = vk.SubpassContentsSecondaryCommandBuffers
	}
	vk.CmdBeginRenderPass(b.cb.handle, &beginInfo, subpassContents)
	b.framebuffer = fb
}

func (b *PrimaryBuilder) ExecuteCommands(buffers ...metadata.CommandBuffer) {
	if b.framebuffer == nil {
		b.fail(errors.New("secondary command buffers can only be executed inside a render pass"))
		return
	}
	handles := make([]vk.CommandBuffer, 0, len(buffers))
	for _, buf := range buffers {
		cb, ok := metadata.UnwrapCommandBuffer(buf).(*CommandBuffer)
		if !ok || cb.level != metadata.CommandBufferLevelSecondary {
			b.fail(errors.Newf("%T is not a Vulkan secondary command buffer", buf))
			return
		}
		handles = append(handles, cb.handle)
	}
	if len(handles) > 0 {
		vk.CmdExecuteCommands(b.cb.handle, uint32(len(handles)), handles)
	}
}

func (b *PrimaryBuilder) EndRenderPass() {
	if b.framebuffer == nil {
		return
	}
	vk.CmdEndRenderPass(b.cb.handle)
	for i, a := range b.framebuffer.renderPass.desc.Attachments {
		b.framebuffer.attachments[i].(*ImageView).image.layout = toVkImageLayout(a.FinalLayout)
	}
	b.framebuffer = nil
}

func (b *PrimaryBuilder) ClearColorImage(target metadata.Image, color [4]float32) {
	img, ok := target.(*Image)
	if !ok {
		b.fail(errors.Newf("image %T does not belong to a Vulkan device", target))
		return
	}
	if b.framebuffer != nil {
		b.fail(errors.New("cannot clear an image inside a render pass"))
		return
	}
	b.touch(img)
	b.transition(img, vk.ImageLayoutTransferDstOptimal, true)

	clearColor := vk.ClearColorValue{}
	floats := (*[4]float32)(unsafe.Pointer(&clearColor))
	*floats = color
	vk.CmdClearColorImage(b.cb.handle, img.handle, vk.ImageLayoutTransferDstOptimal, &clearColor, 1,
		[]vk.ImageSubresourceRange{img.subresourceRange()})
}

func (b *PrimaryBuilder) BlitImage(src metadata.Image, srcRegion metadata.Rect2D, dst metadata.Image, dstRegion metadata.Rect2D) {
	srcImg, ok := src.(*Image)
	if !ok {
		b.fail(errors.Newf("image %T does not belong to a Vulkan device", src))
		return
	}
	dstImg, ok := dst.(*Image)
	if !ok {
		b.fail(errors.Newf("image %T does not belong to a Vulkan device", dst))
		return
	}
	if b.framebuffer != nil {
		b.fail(errors.New("cannot blit inside a render pass"))
		return
	}
	if srcRegion.Extent.IsZero() || dstRegion.Extent.IsZero() {
		return
	}
	b.touch(srcImg)
	b.touch(dstImg)
	b.transition(srcImg, vk.ImageLayoutTransferSrcOptimal, false)
	b.transition(dstImg, vk.ImageLayoutTransferDstOptimal, false)

	region := vk.ImageBlit{
		SrcSubresource: srcImg.subresourceLayers(),
		SrcOffsets:     regionOffsets(srcRegion),
		DstSubresource: dstImg.subresourceLayers(),
		DstOffsets:     regionOffsets(dstRegion),
	}
	vk.CmdBlitImage(b.cb.handle, srcImg.handle, vk.ImageLayoutTransferSrcOptimal,
		dstImg.handle, vk.ImageLayoutTransferDstOptimal, 1, []vk.ImageBlit{region}, vk.FilterLinear)
}

func regionOffsets(r metadata.Rect2D) [2]vk.Offset3D {
	return [2]vk.Offset3D{
		{X: r.Offset.X, Y: r.Offset.Y, Z: 0},
		{X: r.Offset.X + int32(r.Extent.Width), Y: r.Offset.Y + int32(r.Extent.Height), Z: 1},
	}
}

func (b *PrimaryBuilder) Build() (metadata.CommandBuffer, error) {
	if b.framebuffer != nil {
		b.fail(errors.New("render pass was not ended"))
	}
	if b.err == nil {
		for img := range b.presentable {
			b.transition(img, vk.ImageLayoutPresentSrc, false)
		}
		b.err = checkResult(vk.EndCommandBuffer(b.cb.handle), "vkEndCommandBuffer")
	}
	if b.err != nil {
		b.cb.Destroy()
		return nil, b.err
	}
	return b.cb, nil
}

/** @brief Records the draws of one subpass into a secondary command buffer. */
type SecondaryBuilder struct {
	cb       *CommandBuffer
	subpass  metadata.Subpass
	pipeline *GraphicsPipeline
	err      error
}

func (b *SecondaryBuilder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

func (b *SecondaryBuilder) SetViewport(viewport metadata.Viewport) {
	vk.CmdSetViewport(b.cb.handle, 0, 1, []vk.Viewport{{
		X:        viewport.X,
		Y:        viewport.Y,
		Width:    viewport.Width,
		Height:   viewport.Height,
		MinDepth: viewport.MinDepth,
		MaxDepth: viewport.MaxDepth,
	}})
}

func (b *SecondaryBuilder) SetScissor(scissor metadata.Rect2D) {
	vk.CmdSetScissor(b.cb.handle, 0, 1, []vk.Rect2D{{
		Offset: vk.Offset2D{X: scissor.Offset.X, Y: scissor.Offset.Y},
		Extent: vk.Extent2D{Width: scissor.Extent.Width, Height: scissor.Extent.Height},
	}})
}

func (b *SecondaryBuilder) BindPipeline(pipeline metadata.GraphicsPipeline) {
	p, ok := pipeline.(*GraphicsPipeline)
	if !ok {
		b.fail(errors.Newf("pipeline %T does not belong to a Vulkan device", pipeline))
		return
	}
	if p.info.Subpass.RenderPass != b.subpass.RenderPass || p.info.Subpass.Index != b.subpass.Index {
		b.fail(errors.New("pipeline was built for a different subpass"))
		return
	}
	vk.CmdBindPipeline(b.cb.handle, vk.PipelineBindPointGraphics, p.handle)
	b.pipeline = p
}

func (b *SecondaryBuilder) BindVertexBuffers(first uint32, buffers ...metadata.Buffer) {
	handles := make([]vk.Buffer, len(buffers))
	offsets := make([]vk.DeviceSize, len(buffers))
	for i, buf := range buffers {
		vb, ok := buf.(*Buffer)
		if !ok {
			b.fail(errors.Newf("buffer %T does not belong to a Vulkan device", buf))
			return
		}
		handles[i] = vb.handle
	}
	vk.CmdBindVertexBuffers(b.cb.handle, first, uint32(len(handles)), handles, offsets)
}

func (b *SecondaryBuilder) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	if b.pipeline == nil {
		b.fail(errors.New("draw without a bound pipeline"))
		return
	}
	vk.CmdDraw(b.cb.handle, vertexCount, instanceCount, firstVertex, firstInstance)
}

func (b *SecondaryBuilder) Build() (metadata.CommandBuffer, error) {
	if b.err == nil {
		b.err = checkResult(vk.EndCommandBuffer(b.cb.handle), "vkEndCommandBuffer")
	}
	if b.err != nil {
		b.cb.Destroy()
		return nil, b.err
	}
	return b.cb, nil
}

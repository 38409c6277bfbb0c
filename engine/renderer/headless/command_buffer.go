package headless

import (
	"image"

	"github.com/cockroachdb/errors"
	"golang.org/x/image/draw"

	"github.com/spaghettifunk/nova/engine/renderer/metadata"
)

type CommandPool struct {
	device    *Device
	family    uint32
	destroyed bool
}

func (p *CommandPool) QueueFamilyIndex() uint32 { return p.family }

func (p *CommandPool) AllocatePrimary(usage metadata.CommandBufferUsage) (metadata.PrimaryCommandBufferBuilder, error) {
	if p.destroyed {
		return nil, errors.Wrap(metadata.ErrDestroyed, "command pool")
	}
	return &PrimaryBuilder{pool: p, usage: usage}, nil
}

func (p *CommandPool) AllocateSecondary(usage metadata.CommandBufferUsage, inheritance metadata.Subpass) (metadata.SecondaryCommandBufferBuilder, error) {
	if p.destroyed {
		return nil, errors.Wrap(metadata.ErrDestroyed, "command pool")
	}
	if !inheritance.IsValid() {
		return nil, errors.New("secondary command buffer needs a valid subpass to inherit")
	}
	return &SecondaryBuilder{pool: p, usage: usage, inheritance: inheritance}, nil
}

func (p *CommandPool) Destroy() {
	p.destroyed = true
}

// command is one recorded operation, replayed at submission time.
type command func(st *execState) error

type execState struct {
	framebuffer   *Framebuffer
	contents      metadata.SubpassContents
	viewport      *metadata.Viewport
	scissor       *metadata.Rect2D
	pipeline      *GraphicsPipeline
	vertexBuffers map[uint32]*Buffer
}

/** @brief A recorded command list. */
type CommandBuffer struct {
	level       metadata.CommandBufferLevel
	usage       metadata.CommandBufferUsage
	inheritance metadata.Subpass
	commands    []command
	submitted   bool
	destroyed   bool
}

func (c *CommandBuffer) Level() metadata.CommandBufferLevel { return c.level }

func (c *CommandBuffer) Destroy() {
	c.destroyed = true
	c.commands = nil
}

func (c *CommandBuffer) submit() error {
	if c.destroyed {
		return errors.Wrap(metadata.ErrDestroyed, "command buffer")
	}
	if c.level != metadata.CommandBufferLevelPrimary {
		return errors.New("only primary command buffers can be submitted")
	}
	if c.submitted && c.usage == metadata.CommandBufferUsageOneTimeSubmit {
		return errors.New("one-time-submit command buffer submitted twice")
	}
	c.submitted = true
	return c.run(&execState{})
}

func (c *CommandBuffer) run(st *execState) error {
	for i, cmd := range c.commands {
		if err := cmd(st); err != nil {
			return errors.Wrapf(err, "command %d", i)
		}
	}
	return nil
}

type PrimaryBuilder struct {
	pool        *CommandPool
	usage       metadata.CommandBufferUsage
	commands    []command
	framebuffer *Framebuffer
	contents    metadata.SubpassContents
	err         error
	built       bool
}

func (b *PrimaryBuilder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

func (b *PrimaryBuilder) BeginRenderPass(info metadata.RenderPassBeginInfo, contents metadata.SubpassContents) {
	if b.framebuffer != nil {
		b.fail(errors.New("begin render pass: a render pass is already in progress"))
		return
	}
	fb, ok := info.Framebuffer.(*Framebuffer)
	if !ok {
		b.fail(errors.Newf("begin render pass: framebuffer %T does not belong to the headless device", info.Framebuffer))
		return
	}
	desc := fb.renderPass.Description()
	for i, a := range desc.Attachments {
		if a.LoadOp == metadata.LoadOpClear && i >= len(info.ClearValues) {
			b.fail(errors.Newf("begin render pass: missing clear value for attachment %d", i))
			return
		}
	}
	clears := append([]metadata.ClearValue(nil), info.ClearValues...)
	b.framebuffer = fb
	b.contents = contents

	b.commands = append(b.commands, func(st *execState) error {
		for i, view := range fb.attachments {
			img := view.Image().(*Image)
			if img.destroyed {
				return errors.Wrapf(metadata.ErrDestroyed, "attachment %d", i)
			}
			if desc.Attachments[i].LoadOp == metadata.LoadOpClear {
				img.clear(clears[i])
			}
		}
		st.framebuffer = fb
		st.contents = contents
		return nil
	})
}

func (b *PrimaryBuilder) ExecuteCommands(buffers ...metadata.CommandBuffer) {
	if b.framebuffer == nil {
		b.fail(errors.New("execute commands: no render pass in progress"))
		return
	}
	if b.contents != metadata.SubpassContentsSecondaryCommandBuffers {
		b.fail(errors.New("execute commands: subpass contents are inline"))
		return
	}
	secondaries := make([]*CommandBuffer, 0, len(buffers))
	for i, buf := range buffers {
		cb, ok := metadata.UnwrapCommandBuffer(buf).(*CommandBuffer)
		if !ok || cb.level != metadata.CommandBufferLevelSecondary {
			b.fail(errors.Newf("execute commands: buffer %d is not a secondary command buffer", i))
			return
		}
		if !cb.inheritance.RenderPass.Description().Equal(b.framebuffer.renderPass.Description()) {
			b.fail(errors.Newf("execute commands: buffer %d was recorded for an incompatible render pass", i))
			return
		}
		secondaries = append(secondaries, cb)
	}

	b.commands = append(b.commands, func(st *execState) error {
		for i, cb := range secondaries {
			if cb.destroyed {
				return errors.Wrapf(metadata.ErrDestroyed, "secondary command buffer %d", i)
			}
			// secondary buffers inherit the render pass but no dynamic state
			sub := &execState{framebuffer: st.framebuffer, contents: st.contents}
			if err := cb.run(sub); err != nil {
				return errors.Wrapf(err, "secondary command buffer %d", i)
			}
		}
		return nil
	})
}

func (b *PrimaryBuilder) EndRenderPass() {
	if b.framebuffer == nil {
		b.fail(errors.New("end render pass: no render pass in progress"))
		return
	}
	b.framebuffer = nil
	b.commands = append(b.commands, func(st *execState) error {
		st.framebuffer = nil
		return nil
	})
}

func (b *PrimaryBuilder) ClearColorImage(img metadata.Image, color [4]float32) {
	if b.framebuffer != nil {
		b.fail(errors.New("clear color image: not allowed inside a render pass"))
		return
	}
	hi, ok := img.(*Image)
	if !ok || hi.format.IsDepth() {
		b.fail(errors.New("clear color image: not a colour image"))
		return
	}
	if !hi.usage.Has(metadata.ImageUsageTransferDst) {
		b.fail(errors.New("clear color image: image lacks transfer destination usage"))
		return
	}
	value := metadata.ClearValue{Color: color}
	b.commands = append(b.commands, func(st *execState) error {
		if hi.destroyed {
			return errors.Wrap(metadata.ErrDestroyed, "clear color image")
		}
		hi.clear(value)
		return nil
	})
}

func (b *PrimaryBuilder) BlitImage(src metadata.Image, srcRegion metadata.Rect2D, dst metadata.Image, dstRegion metadata.Rect2D) {
	if b.framebuffer != nil {
		b.fail(errors.New("blit image: not allowed inside a render pass"))
		return
	}
	hs, ok1 := src.(*Image)
	hd, ok2 := dst.(*Image)
	if !ok1 || !ok2 || hs.format.IsDepth() || hd.format.IsDepth() {
		b.fail(errors.New("blit image: both images must be headless colour images"))
		return
	}
	if !hs.usage.Has(metadata.ImageUsageTransferSrc) || !hd.usage.Has(metadata.ImageUsageTransferDst) {
		b.fail(errors.New("blit image: missing transfer usage"))
		return
	}
	sr, dr := toRect(srcRegion), toRect(dstRegion)
	b.commands = append(b.commands, func(st *execState) error {
		if hs.destroyed || hd.destroyed {
			return errors.Wrap(metadata.ErrDestroyed, "blit image")
		}
		draw.BiLinear.Scale(hd.color, dr, hs.color, sr, draw.Src, nil)
		return nil
	})
}

func (b *PrimaryBuilder) Build() (metadata.CommandBuffer, error) {
	if b.built {
		return nil, errors.New("command buffer already built")
	}
	b.built = true
	if b.framebuffer != nil {
		b.fail(errors.New("build: render pass was not ended"))
	}
	if b.err != nil {
		return nil, b.err
	}
	b.pool.device.commandBuffers.Add(1)
	return &CommandBuffer{
		level:    metadata.CommandBufferLevelPrimary,
		usage:    b.usage,
		commands: b.commands,
	}, nil
}

type SecondaryBuilder struct {
	pool        *CommandPool
	usage       metadata.CommandBufferUsage
	inheritance metadata.Subpass
	commands    []command
	err         error
	built       bool
}

func (b *SecondaryBuilder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

func (b *SecondaryBuilder) SetViewport(viewport metadata.Viewport) {
	b.commands = append(b.commands, func(st *execState) error {
		st.viewport = &viewport
		return nil
	})
}

func (b *SecondaryBuilder) SetScissor(scissor metadata.Rect2D) {
	b.commands = append(b.commands, func(st *execState) error {
		st.scissor = &scissor
		return nil
	})
}

func (b *SecondaryBuilder) BindPipeline(pipeline metadata.GraphicsPipeline) {
	hp, ok := pipeline.(*GraphicsPipeline)
	if !ok {
		b.fail(errors.Newf("bind pipeline: %T does not belong to the headless device", pipeline))
		return
	}
	sp := hp.info.Subpass
	if sp.Index != b.inheritance.Index || !sp.RenderPass.Description().Equal(b.inheritance.RenderPass.Description()) {
		b.fail(errors.New("bind pipeline: pipeline subpass is incompatible with the inherited subpass"))
		return
	}
	b.commands = append(b.commands, func(st *execState) error {
		if hp.destroyed {
			return errors.Wrap(metadata.ErrDestroyed, "graphics pipeline")
		}
		st.pipeline = hp
		return nil
	})
}

func (b *SecondaryBuilder) BindVertexBuffers(first uint32, buffers ...metadata.Buffer) {
	bound := make([]*Buffer, len(buffers))
	for i, buf := range buffers {
		hb, ok := buf.(*Buffer)
		if !ok {
			b.fail(errors.Newf("bind vertex buffers: buffer %d does not belong to the headless device", i))
			return
		}
		bound[i] = hb
	}
	b.commands = append(b.commands, func(st *execState) error {
		if st.vertexBuffers == nil {
			st.vertexBuffers = make(map[uint32]*Buffer)
		}
		for i, hb := range bound {
			st.vertexBuffers[first+uint32(i)] = hb
		}
		return nil
	})
}

func (b *SecondaryBuilder) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	b.commands = append(b.commands, func(st *execState) error {
		return drawTriangles(st, vertexCount, instanceCount, firstVertex)
	})
}

func (b *SecondaryBuilder) Build() (metadata.CommandBuffer, error) {
	if b.built {
		return nil, errors.New("command buffer already built")
	}
	b.built = true
	if b.err != nil {
		return nil, b.err
	}
	b.pool.device.commandBuffers.Add(1)
	return &CommandBuffer{
		level:       metadata.CommandBufferLevelSecondary,
		usage:       b.usage,
		inheritance: b.inheritance,
		commands:    b.commands,
	}, nil
}

func toRect(r metadata.Rect2D) image.Rectangle {
	return image.Rect(
		int(r.Offset.X),
		int(r.Offset.Y),
		int(r.Offset.X)+int(r.Extent.Width),
		int(r.Offset.Y)+int(r.Extent.Height),
	)
}

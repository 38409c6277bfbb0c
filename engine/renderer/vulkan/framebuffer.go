package vulkan

import (
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/nova/engine/renderer/metadata"
)

type Framebuffer struct {
	device      *Device
	handle      vk.Framebuffer
	renderPass  *RenderPass
	attachments []metadata.ImageView
	extent      metadata.Extent2D
}

func newFramebuffer(device *Device, info metadata.FramebufferCreateInfo) (*Framebuffer, error) {
	rp, ok := info.RenderPass.(*RenderPass)
	if !ok {
		return nil, errors.Newf("render pass %T does not belong to a Vulkan device", info.RenderPass)
	}
	desc := rp.Description()
	if len(info.Attachments) != len(desc.Attachments) {
		return nil, errors.Newf("render pass expects %d attachments, got %d", len(desc.Attachments), len(info.Attachments))
	}
	if len(info.Attachments) == 0 {
		return nil, errors.New("framebuffer needs at least one attachment")
	}

	extent := info.Attachments[0].Image().Extent().To2D()
	views := make([]vk.ImageView, len(info.Attachments))
	for i, a := range info.Attachments {
		view, ok := a.(*ImageView)
		if !ok {
			return nil, errors.Newf("attachment %d: view %T does not belong to a Vulkan device", i, a)
		}
		if got := view.image.Extent().To2D(); got != extent {
			return nil, errors.Newf("attachment %d is %dx%d, expected %dx%d", i, got.Width, got.Height, extent.Width, extent.Height)
		}
		if view.image.Format() != desc.Attachments[i].Format {
			return nil, errors.Newf("attachment %d has format %s, render pass expects %s", i, view.image.Format(), desc.Attachments[i].Format)
		}
		views[i] = view.handle
	}

	framebufferCreateInfo := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      rp.handle,
		AttachmentCount: uint32(len(views)),
		PAttachments:    views,
		Width:           extent.Width,
		Height:          extent.Height,
		Layers:          1,
	}
	var handle vk.Framebuffer
	if err := checkResult(vk.CreateFramebuffer(device.logical, &framebufferCreateInfo, nil, &handle), "vkCreateFramebuffer"); err != nil {
		return nil, err
	}
	return &Framebuffer{
		device:      device,
		handle:      handle,
		renderPass:  rp,
		attachments: append([]metadata.ImageView(nil), info.Attachments...),
		extent:      extent,
	}, nil
}

func (f *Framebuffer) RenderPass() metadata.RenderPass { return f.renderPass }

func (f *Framebuffer) Attachments() []metadata.ImageView { return f.attachments }

func (f *Framebuffer) Extent() metadata.Extent2D { return f.extent }

func (f *Framebuffer) Destroy() {
	if f.handle == vk.NullFramebuffer {
		return
	}
	vk.DestroyFramebuffer(f.device.logical, f.handle, nil)
	f.handle = vk.NullFramebuffer
}

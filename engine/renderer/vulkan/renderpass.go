package vulkan

import (
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/nova/engine/renderer/metadata"
)

type RenderPass struct {
	device *Device
	handle vk.RenderPass
	desc   metadata.RenderPassDescription
}

func newRenderPass(device *Device, desc metadata.RenderPassDescription) (*RenderPass, error) {
	if len(desc.Subpasses) == 0 {
		return nil, errors.New("render pass needs at least one subpass")
	}

	attachments := make([]vk.AttachmentDescription, len(desc.Attachments))
	for i, a := range desc.Attachments {
		attachments[i] = vk.AttachmentDescription{
			Format:         toVkFormat(a.Format),
			Samples:        vk.SampleCount1Bit,
			LoadOp:         toVkLoadOp(a.LoadOp),
			StoreOp:        toVkStoreOp(a.StoreOp),
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  toVkImageLayout(a.InitialLayout),
			FinalLayout:    toVkImageLayout(a.FinalLayout),
		}
	}

	subpasses := make([]vk.SubpassDescription, len(desc.Subpasses))
	for i, s := range desc.Subpasses {
		colorRefs := make([]vk.AttachmentReference, len(s.ColorAttachments))
		for j, index := range s.ColorAttachments {
			if int(index) >= len(desc.Attachments) {
				return nil, errors.Newf("subpass %d references missing attachment %d", i, index)
			}
			colorRefs[j] = vk.AttachmentReference{
				Attachment: index,
				Layout:     vk.ImageLayoutColorAttachmentOptimal,
			}
		}
		subpass := vk.SubpassDescription{
			PipelineBindPoint:    vk.PipelineBindPointGraphics,
			ColorAttachmentCount: uint32(len(colorRefs)),
			PColorAttachments:    colorRefs,
		}
		if s.DepthStencilAttachment >= 0 {
			if int(s.DepthStencilAttachment) >= len(desc.Attachments) {
				return nil, errors.Newf("subpass %d references missing depth attachment %d", i, s.DepthStencilAttachment)
			}
			subpass.PDepthStencilAttachment = &vk.AttachmentReference{
				Attachment: uint32(s.DepthStencilAttachment),
				Layout:     vk.ImageLayoutDepthStencilAttachmentOptimal,
			}
		}
		subpasses[i] = subpass
	}

	// Wait for earlier users of the attachments before writing them.
	dependency := vk.SubpassDependency{
		SrcSubpass: vk.SubpassExternal,
		DstSubpass: 0,
		SrcStageMask: vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit |
			vk.PipelineStageEarlyFragmentTestsBit | vk.PipelineStageLateFragmentTestsBit | vk.PipelineStageTransferBit),
		DstStageMask: vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit |
			vk.PipelineStageEarlyFragmentTestsBit | vk.PipelineStageLateFragmentTestsBit),
		DstAccessMask: vk.AccessFlags(vk.AccessColorAttachmentReadBit | vk.AccessColorAttachmentWriteBit |
			vk.AccessDepthStencilAttachmentReadBit | vk.AccessDepthStencilAttachmentWriteBit),
	}

	renderpassCreateInfo := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    uint32(len(subpasses)),
		PSubpasses:      subpasses,
		DependencyCount: 1,
		PDependencies:   []vk.SubpassDependency{dependency},
	}
	var handle vk.RenderPass
	if err := checkResult(vk.CreateRenderPass(device.logical, &renderpassCreateInfo, nil, &handle), "vkCreateRenderPass"); err != nil {
		return nil, err
	}
	return &RenderPass{device: device, handle: handle, desc: desc}, nil
}

func (r *RenderPass) Description() metadata.RenderPassDescription { return r.desc }

func (r *RenderPass) Destroy() {
	if r.handle == vk.NullRenderPass {
		return
	}
	vk.DestroyRenderPass(r.device.logical, r.handle, nil)
	r.handle = vk.NullRenderPass
}

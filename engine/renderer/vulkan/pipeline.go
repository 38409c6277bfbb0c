package vulkan

import (
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/nova/engine/assets/loaders"
	"github.com/spaghettifunk/nova/engine/core"
	"github.com/spaghettifunk/nova/engine/renderer/metadata"
)

type ShaderModule struct {
	device *Device
	handle vk.ShaderModule
	stage  metadata.ShaderStage
}

func newShaderModule(device *Device, stage metadata.ShaderStage, code []byte) (*ShaderModule, error) {
	if len(code) == 0 || len(code)%4 != 0 {
		return nil, errors.Newf("%s shader: SPIR-V size %d is not a positive multiple of 4", stage, len(code))
	}
	createInfo := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint64(len(code)),
		PCode:    loaders.BytesToBytecode(code),
	}
	var handle vk.ShaderModule
	if err := checkResult(vk.CreateShaderModule(device.logical, &createInfo, nil, &handle), "vkCreateShaderModule"); err != nil {
		return nil, errors.Wrapf(err, "%s shader", stage)
	}
	return &ShaderModule{device: device, handle: handle, stage: stage}, nil
}

func (s *ShaderModule) Stage() metadata.ShaderStage { return s.stage }

func (s *ShaderModule) Destroy() {
	if s.handle == vk.NullShaderModule {
		return
	}
	vk.DestroyShaderModule(s.device.logical, s.handle, nil)
	s.handle = vk.NullShaderModule
}

/**
 * @brief Holds a Vulkan pipeline and its layout.
 */
type GraphicsPipeline struct {
	device *Device
	handle vk.Pipeline
	layout vk.PipelineLayout
	info   metadata.GraphicsPipelineCreateInfo
}

func newGraphicsPipeline(device *Device, info metadata.GraphicsPipelineCreateInfo) (*GraphicsPipeline, error) {
	if !info.Subpass.IsValid() {
		return nil, errors.New("graphics pipeline needs a valid subpass")
	}
	rp, ok := info.Subpass.RenderPass.(*RenderPass)
	if !ok {
		return nil, errors.Newf("render pass %T does not belong to a Vulkan device", info.Subpass.RenderPass)
	}
	vs, ok := info.VertexShader.(*ShaderModule)
	if !ok || vs.stage != metadata.ShaderStageVertex {
		return nil, errors.New("graphics pipeline needs a Vulkan vertex shader")
	}
	fs, ok := info.FragmentShader.(*ShaderModule)
	if !ok || fs.stage != metadata.ShaderStageFragment {
		return nil, errors.New("graphics pipeline needs a Vulkan fragment shader")
	}

	stages := []vk.PipelineShaderStageCreateInfo{
		{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageVertexBit,
			Module: vs.handle,
			PName:  "main\x00",
		},
		{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageFragmentBit,
			Module: fs.handle,
			PName:  "main\x00",
		},
	}

	// Viewport and scissor are set by the secondary command buffers.
	viewportState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		ScissorCount:  1,
	}

	rasterizerCreateInfo := vk.PipelineRasterizationStateCreateInfo{
		SType:                   vk.StructureTypePipelineRasterizationStateCreateInfo,
		DepthClampEnable:        vk.False,
		RasterizerDiscardEnable: vk.False,
		PolygonMode:             vk.PolygonModeFill,
		LineWidth:               1.0,
		CullMode:                toVkCullMode(info.CullMode),
		FrontFace:               vk.FrontFaceCounterClockwise,
		DepthBiasEnable:         vk.False,
	}

	multisamplingCreateInfo := vk.PipelineMultisampleStateCreateInfo{
		SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
		SampleShadingEnable:  vk.False,
		RasterizationSamples: vk.SampleCount1Bit,
		MinSampleShading:     1.0,
	}

	depthStencil := vk.PipelineDepthStencilStateCreateInfo{
		SType:             vk.StructureTypePipelineDepthStencilStateCreateInfo,
		DepthTestEnable:   vk.False,
		DepthWriteEnable:  vk.False,
		StencilTestEnable: vk.False,
	}
	if info.DepthTest && info.Subpass.HasDepth() {
		depthStencil.DepthTestEnable = vk.True
		depthStencil.DepthWriteEnable = vk.True
		depthStencil.DepthCompareOp = vk.CompareOpLess
	}

	colorBlendAttachmentState := vk.PipelineColorBlendAttachmentState{
		BlendEnable:         vk.True,
		SrcColorBlendFactor: vk.BlendFactorSrcAlpha,
		DstColorBlendFactor: vk.BlendFactorOneMinusSrcAlpha,
		ColorBlendOp:        vk.BlendOpAdd,
		SrcAlphaBlendFactor: vk.BlendFactorOne,
		DstAlphaBlendFactor: vk.BlendFactorOneMinusSrcAlpha,
		AlphaBlendOp:        vk.BlendOpAdd,
		ColorWriteMask: vk.ColorComponentFlags(vk.ColorComponentRBit) | vk.ColorComponentFlags(vk.ColorComponentGBit) |
			vk.ColorComponentFlags(vk.ColorComponentBBit) | vk.ColorComponentFlags(vk.ColorComponentABit),
	}
	colorAttachments := len(rp.desc.Subpasses[info.Subpass.Index].ColorAttachments)
	blendAttachments := make([]vk.PipelineColorBlendAttachmentState, colorAttachments)
	for i := range blendAttachments {
		blendAttachments[i] = colorBlendAttachmentState
	}
	colorBlendStateCreateInfo := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		LogicOpEnable:   vk.False,
		LogicOp:         vk.LogicOpCopy,
		AttachmentCount: uint32(colorAttachments),
		PAttachments:    blendAttachments,
	}

	dynamicStates := []vk.DynamicState{
		vk.DynamicStateViewport,
		vk.DynamicStateScissor,
	}
	dynamicStateCreateInfo := vk.PipelineDynamicStateCreateInfo{
		SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: uint32(len(dynamicStates)),
		PDynamicStates:    dynamicStates,
	}

	vertexInputInfo := vk.PipelineVertexInputStateCreateInfo{
		SType: vk.StructureTypePipelineVertexInputStateCreateInfo,
	}
	if info.VertexInput.Stride > 0 {
		attributes := make([]vk.VertexInputAttributeDescription, len(info.VertexInput.Attributes))
		for i, a := range info.VertexInput.Attributes {
			attributes[i] = vk.VertexInputAttributeDescription{
				Location: a.Location,
				Binding:  0,
				Format:   toVkVertexFormat(a.Format),
				Offset:   a.Offset,
			}
		}
		vertexInputInfo.VertexBindingDescriptionCount = 1
		vertexInputInfo.PVertexBindingDescriptions = []vk.VertexInputBindingDescription{{
			Binding:   0,
			Stride:    info.VertexInput.Stride,
			InputRate: vk.VertexInputRateVertex,
		}}
		vertexInputInfo.VertexAttributeDescriptionCount = uint32(len(attributes))
		vertexInputInfo.PVertexAttributeDescriptions = attributes
	}

	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:                  vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology:               toVkTopology(info.Topology),
		PrimitiveRestartEnable: vk.False,
	}

	pipelineLayoutCreateInfo := vk.PipelineLayoutCreateInfo{
		SType: vk.StructureTypePipelineLayoutCreateInfo,
	}

	p := &GraphicsPipeline{device: device, info: info}
	if err := device.locks.SafeCall(PipelineManagement, func() error {
		return checkResult(vk.CreatePipelineLayout(device.logical, &pipelineLayoutCreateInfo, nil, &p.layout), "vkCreatePipelineLayout")
	}); err != nil {
		return nil, err
	}

	pipelineCreateInfo := vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(stages)),
		PStages:             stages,
		PVertexInputState:   &vertexInputInfo,
		PInputAssemblyState: &inputAssembly,
		PViewportState:      &viewportState,
		PRasterizationState: &rasterizerCreateInfo,
		PMultisampleState:   &multisamplingCreateInfo,
		PDepthStencilState:  &depthStencil,
		PColorBlendState:    &colorBlendStateCreateInfo,
		PDynamicState:       &dynamicStateCreateInfo,
		Layout:              p.layout,
		RenderPass:          rp.handle,
		Subpass:             info.Subpass.Index,
		BasePipelineHandle:  vk.NullPipeline,
		BasePipelineIndex:   -1,
	}
	pipelines := make([]vk.Pipeline, 1)
	if err := device.locks.SafeCall(PipelineManagement, func() error {
		return checkResult(vk.CreateGraphicsPipelines(device.logical, vk.NullPipelineCache, 1,
			[]vk.GraphicsPipelineCreateInfo{pipelineCreateInfo}, nil, pipelines), "vkCreateGraphicsPipelines")
	}); err != nil {
		vk.DestroyPipelineLayout(device.logical, p.layout, nil)
		return nil, err
	}
	p.handle = pipelines[0]

	core.LogDebug("Graphics pipeline created for subpass %d.", info.Subpass.Index)
	return p, nil
}

func (p *GraphicsPipeline) Subpass() metadata.Subpass { return p.info.Subpass }

func (p *GraphicsPipeline) VertexInput() metadata.VertexInput { return p.info.VertexInput }

func (p *GraphicsPipeline) Destroy() {
	_ = p.device.locks.SafeCall(PipelineManagement, func() error {
		if p.handle != vk.NullPipeline {
			vk.DestroyPipeline(p.device.logical, p.handle, nil)
			p.handle = vk.NullPipeline
		}
		if p.layout != vk.NullPipelineLayout {
			vk.DestroyPipelineLayout(p.device.logical, p.layout, nil)
			p.layout = vk.NullPipelineLayout
		}
		return nil
	})
}

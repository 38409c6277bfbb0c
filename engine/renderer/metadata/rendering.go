package metadata

/** @brief Determines face culling mode during rendering. */
type FaceCullMode int

const (
	/** @brief No faces are culled. */
	FaceCullModeNone FaceCullMode = 0x0
	/** @brief Only front faces are culled. */
	FaceCullModeFront FaceCullMode = 0x1
	/** @brief Only back faces are culled. */
	FaceCullModeBack FaceCullMode = 0x2
	/** @brief Both front and back faces are culled. */
	FaceCullModeFrontAndBack FaceCullMode = 0x3
)

/** @brief What happens to an attachment's contents when a render pass begins. */
type LoadOp int

const (
	LoadOpLoad LoadOp = iota
	LoadOpClear
	LoadOpDontCare
)

/** @brief What happens to an attachment's contents when a render pass ends. */
type StoreOp int

const (
	StoreOpStore StoreOp = iota
	StoreOpDontCare
)

/** @brief Describes one attachment of a render pass. */
type AttachmentDescription struct {
	Format        Format
	Samples       uint32
	LoadOp        LoadOp
	StoreOp       StoreOp
	InitialLayout ImageLayout
	FinalLayout   ImageLayout
}

/** @brief Attachment indices used by one subpass. */
type SubpassDescription struct {
	ColorAttachments []uint32
	// DepthStencilAttachment is the depth attachment index, or -1 when the subpass has none.
	DepthStencilAttachment int32
}

/**
 * @brief An immutable render pass layout. Two descriptions are equal when their
 * attachments and subpasses match, regardless of which device built them.
 */
type RenderPassDescription struct {
	Attachments []AttachmentDescription
	Subpasses   []SubpassDescription
}

// Equal reports structural equality of two descriptions.
func (d RenderPassDescription) Equal(other RenderPassDescription) bool {
	if len(d.Attachments) != len(other.Attachments) || len(d.Subpasses) != len(other.Subpasses) {
		return false
	}
	for i := range d.Attachments {
		if d.Attachments[i] != other.Attachments[i] {
			return false
		}
	}
	for i := range d.Subpasses {
		a, b := d.Subpasses[i], other.Subpasses[i]
		if a.DepthStencilAttachment != b.DepthStencilAttachment || len(a.ColorAttachments) != len(b.ColorAttachments) {
			return false
		}
		for j := range a.ColorAttachments {
			if a.ColorAttachments[j] != b.ColorAttachments[j] {
				return false
			}
		}
	}
	return true
}

type RenderPass interface {
	Destroyer
	Description() RenderPassDescription
}

/** @brief A handle to one subpass of a render pass. */
type Subpass struct {
	RenderPass RenderPass
	Index      uint32
}

// IsValid reports whether the subpass exists in its render pass.
func (s Subpass) IsValid() bool {
	return s.RenderPass != nil && int(s.Index) < len(s.RenderPass.Description().Subpasses)
}

// HasDepth reports whether the subpass writes a depth attachment.
func (s Subpass) HasDepth() bool {
	return s.IsValid() && s.RenderPass.Description().Subpasses[s.Index].DepthStencilAttachment >= 0
}

type FramebufferCreateInfo struct {
	RenderPass  RenderPass
	Attachments []ImageView
}

/** @brief A set of attachments bound to a render pass. */
type Framebuffer interface {
	Destroyer
	RenderPass() RenderPass
	Attachments() []ImageView
	Extent() Extent2D
}

/** @brief A clear value for a colour or a depth/stencil attachment. */
type ClearValue struct {
	Color   [4]float32
	Depth   float32
	Stencil uint32
}

func ClearColor(r, g, b, a float32) ClearValue {
	return ClearValue{Color: [4]float32{r, g, b, a}}
}

func ClearDepth(depth float32) ClearValue {
	return ClearValue{Depth: depth}
}

type SubpassContents int

const (
	SubpassContentsInline SubpassContents = iota
	SubpassContentsSecondaryCommandBuffers
)

type RenderPassBeginInfo struct {
	Framebuffer Framebuffer
	ClearValues []ClearValue
}

type Viewport struct {
	X        float32
	Y        float32
	Width    float32
	Height   float32
	MinDepth float32
	MaxDepth float32
}

/** @brief A viewport covering the whole extent with the default depth range. */
func FullViewport(extent Extent2D) Viewport {
	return Viewport{Width: float32(extent.Width), Height: float32(extent.Height), MaxDepth: 1}
}

type PrimitiveTopology int

const (
	PrimitiveTopologyTriangleList PrimitiveTopology = iota
	PrimitiveTopologyTriangleStrip
	PrimitiveTopologyLineList
)

type ShaderStage int

const (
	ShaderStageVertex ShaderStage = iota
	ShaderStageFragment
)

func (s ShaderStage) String() string {
	if s == ShaderStageVertex {
		return "vertex"
	}
	return "fragment"
}

type ShaderModule interface {
	Destroyer
	Stage() ShaderStage
}

type VertexAttribute struct {
	Location uint32
	Format   VertexFormat
	Offset   uint32
}

type VertexInput struct {
	Stride     uint32
	Attributes []VertexAttribute
}

/** @brief Parameters of a graphics pipeline. Viewport and scissor are always dynamic. */
type GraphicsPipelineCreateInfo struct {
	Subpass        Subpass
	VertexShader   ShaderModule
	FragmentShader ShaderModule
	VertexInput    VertexInput
	Topology       PrimitiveTopology
	CullMode       FaceCullMode
	DepthTest      bool
}

type GraphicsPipeline interface {
	Destroyer
	Subpass() Subpass
	VertexInput() VertexInput
}

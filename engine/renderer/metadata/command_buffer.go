package metadata

type CommandBufferLevel int

const (
	CommandBufferLevelPrimary CommandBufferLevel = iota
	CommandBufferLevelSecondary
)

/** @brief How often a recorded command buffer may be submitted. */
type CommandBufferUsage int

const (
	CommandBufferUsageOneTimeSubmit CommandBufferUsage = iota
	CommandBufferUsageMultipleSubmit
	CommandBufferUsageSimultaneousUse
)

/** @brief A finished recording, ready to be submitted or executed. */
type CommandBuffer interface {
	Destroyer
	Level() CommandBufferLevel
}

/**
 * @brief Implemented by command buffers that wrap a backend command buffer,
 * e.g. the pooled buffers handed out by a command buffer allocator.
 */
type CommandBufferWrapper interface {
	Unwrap() CommandBuffer
}

// UnwrapCommandBuffer strips every wrapper layer and returns the backend command buffer.
func UnwrapCommandBuffer(cb CommandBuffer) CommandBuffer {
	for {
		w, ok := cb.(CommandBufferWrapper)
		if !ok {
			return cb
		}
		cb = w.Unwrap()
	}
}

/**
 * @brief Records a primary command buffer. Recording methods never fail on their own;
 * the first recording error is reported by Build.
 */
type PrimaryCommandBufferBuilder interface {
	BeginRenderPass(info RenderPassBeginInfo, contents SubpassContents)
	ExecuteCommands(buffers ...CommandBuffer)
	EndRenderPass()
	// ClearColorImage clears the whole image outside of a render pass.
	ClearColorImage(image Image, color [4]float32)
	// BlitImage copies src into dst with linear filtering, scaling the regions.
	BlitImage(src Image, srcRegion Rect2D, dst Image, dstRegion Rect2D)
	Build() (CommandBuffer, error)
}

/** @brief Records a secondary command buffer executed inside a subpass. */
type SecondaryCommandBufferBuilder interface {
	SetViewport(viewport Viewport)
	SetScissor(scissor Rect2D)
	BindPipeline(pipeline GraphicsPipeline)
	BindVertexBuffers(first uint32, buffers ...Buffer)
	Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32)
	Build() (CommandBuffer, error)
}

/** @brief Allocates command buffers for the queues of one queue family. */
type CommandPool interface {
	Destroyer
	QueueFamilyIndex() uint32
	AllocatePrimary(usage CommandBufferUsage) (PrimaryCommandBufferBuilder, error)
	AllocateSecondary(usage CommandBufferUsage, inheritance Subpass) (SecondaryCommandBufferBuilder, error)
}

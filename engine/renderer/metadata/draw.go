package metadata

/** @brief Allocates command buffers. Implementations must be safe for concurrent use. */
type CommandBufferAllocator interface {
	AllocatePrimary(queueFamilyIndex uint32, usage CommandBufferUsage) (PrimaryCommandBufferBuilder, error)
	AllocateSecondary(queueFamilyIndex uint32, usage CommandBufferUsage, inheritance Subpass) (SecondaryCommandBufferBuilder, error)
}

/**
 * @brief The allocation strategies shared by every component that creates GPU resources.
 * It is a small value meant to be copied; the allocators behind it are shared.
 */
type Allocators struct {
	CommandBuffers CommandBufferAllocator
	Memory         MemoryAllocator
}

/**
 * @brief Records the draw commands of one subsystem into a secondary command buffer.
 * A draw system never begins or ends the render pass; it only fills the subpass it was
 * created for.
 */
type DrawSystem interface {
	Draw(viewport Extent2D) (CommandBuffer, error)
}

/** @brief Builds a draw system bound to a subpass of the frame render pass. */
type DrawSystemFactory func(queue Queue, subpass Subpass, allocators Allocators) (DrawSystem, error)

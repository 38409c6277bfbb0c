package metadata

import "time"

/** @brief Anything owning GPU memory or handles that must be explicitly released. */
type Destroyer interface {
	Destroy()
}

type PipelineStage uint32

const (
	PipelineStageTopOfPipe PipelineStage = 1 << iota
	PipelineStageColorAttachmentOutput
	PipelineStageTransfer
	PipelineStageBottomOfPipe
	PipelineStageAllCommands
)

/** @brief A host-visible GPU completion signal. */
type Fence interface {
	Destroyer
	// Wait blocks until the fence is signaled or the timeout expires (ErrTimeout).
	Wait(timeout time.Duration) error
	Signaled() (bool, error)
	Reset() error
}

/** @brief A GPU-to-GPU completion signal. */
type Semaphore interface {
	Destroyer
}

type SemaphoreWait struct {
	Semaphore Semaphore
	Stage     PipelineStage
}

/** @brief One batch of a queue submission. */
type SubmitInfo struct {
	WaitSemaphores   []SemaphoreWait
	CommandBuffers   []CommandBuffer
	SignalSemaphores []Semaphore
}

type Queue interface {
	Device() Device
	FamilyIndex() uint32
	// Submit enqueues the batches in order and signals fence, if not nil, once all of them completed.
	Submit(batches []SubmitInfo, fence Fence) error
	WaitIdle() error
}

/** @brief A logical GPU device. */
type Device interface {
	Destroyer
	Name() string
	GraphicsQueue() Queue
	MemoryAllocator() MemoryAllocator
	CreateCommandPool(queueFamilyIndex uint32) (CommandPool, error)
	CreateRenderPass(desc RenderPassDescription) (RenderPass, error)
	CreateImageView(image Image) (ImageView, error)
	CreateFramebuffer(info FramebufferCreateInfo) (Framebuffer, error)
	CreateShaderModule(stage ShaderStage, code []byte) (ShaderModule, error)
	CreateGraphicsPipeline(info GraphicsPipelineCreateInfo) (GraphicsPipeline, error)
	CreateFence(signaled bool) (Fence, error)
	CreateSemaphore() (Semaphore, error)
	WaitIdle() error
}

/** @brief What the renderer needs from a backend at startup. */
type Context interface {
	Device() Device
	GraphicsQueue() Queue
	MemoryAllocator() MemoryAllocator
}

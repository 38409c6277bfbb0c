package systems

import (
	"github.com/cockroachdb/errors"

	"github.com/spaghettifunk/nova/engine/renderer/metadata"
)

// ClearDrawSystem records no draw calls, leaving the frame at its clear values.
type ClearDrawSystem struct {
	queue      metadata.Queue
	subpass    metadata.Subpass
	allocators metadata.Allocators
}

func NewClearDrawSystem(queue metadata.Queue, subpass metadata.Subpass, allocators metadata.Allocators) (metadata.DrawSystem, error) {
	if !subpass.IsValid() {
		return nil, errors.New("clear draw system needs a valid subpass")
	}
	return &ClearDrawSystem{queue: queue, subpass: subpass, allocators: allocators}, nil
}

func (c *ClearDrawSystem) Draw(viewport metadata.Extent2D) (metadata.CommandBuffer, error) {
	builder, err := c.allocators.CommandBuffers.AllocateSecondary(c.queue.FamilyIndex(), metadata.CommandBufferUsageOneTimeSubmit, c.subpass)
	if err != nil {
		return nil, errors.Wrap(err, "failed to allocate clear command buffer")
	}
	builder.SetViewport(metadata.FullViewport(viewport))
	return builder.Build()
}

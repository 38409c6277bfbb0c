package renderer

import (
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/spaghettifunk/nova/engine/containers"
	"github.com/spaghettifunk/nova/engine/core"
	"github.com/spaghettifunk/nova/engine/renderer/metadata"
)

type (
	Allocators        = metadata.Allocators
	DrawSystem        = metadata.DrawSystem
	DrawSystemFactory = metadata.DrawSystemFactory
)

// DefaultSecondaryBufferCount bounds the secondary command buffers alive per queue family.
const DefaultSecondaryBufferCount = 32

// ErrSecondaryBufferLimit is returned when every secondary command buffer of a pool is in use.
var ErrSecondaryBufferLimit = errors.New("secondary command buffer limit reached")

type StandardCommandBufferAllocatorCreateInfo struct {
	SecondaryBufferCount int
}

type commandPoolEntry struct {
	pool metadata.CommandPool
	// tokens holds one entry per secondary command buffer that may still be handed out.
	tokens *containers.RingQueue[int]
}

/**
 * @brief Keeps one command pool per queue family and bounds how many secondary command
 * buffers can be alive at the same time. A secondary buffer gives its slot back when destroyed.
 */
type StandardCommandBufferAllocator struct {
	device               metadata.Device
	secondaryBufferCount int

	mu    sync.Mutex
	pools map[uint32]*commandPoolEntry
}

func NewStandardCommandBufferAllocator(device metadata.Device, info StandardCommandBufferAllocatorCreateInfo) *StandardCommandBufferAllocator {
	if info.SecondaryBufferCount <= 0 {
		info.SecondaryBufferCount = DefaultSecondaryBufferCount
	}
	return &StandardCommandBufferAllocator{
		device:               device,
		secondaryBufferCount: info.SecondaryBufferCount,
		pools:                make(map[uint32]*commandPoolEntry),
	}
}

// entry must be called with a.mu held.
func (a *StandardCommandBufferAllocator) entry(queueFamilyIndex uint32) (*commandPoolEntry, error) {
	if e, ok := a.pools[queueFamilyIndex]; ok {
		return e, nil
	}
	pool, err := a.device.CreateCommandPool(queueFamilyIndex)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create command pool for queue family %d", queueFamilyIndex)
	}
	tokens := containers.NewRingQueue[int](a.secondaryBufferCount)
	for i := 0; i < a.secondaryBufferCount; i++ {
		_ = tokens.Enqueue(i)
	}
	e := &commandPoolEntry{pool: pool, tokens: tokens}
	a.pools[queueFamilyIndex] = e
	core.LogDebug("command pool created for queue family %d (%d secondary buffers)", queueFamilyIndex, a.secondaryBufferCount)
	return e, nil
}

func (a *StandardCommandBufferAllocator) AllocatePrimary(queueFamilyIndex uint32, usage metadata.CommandBufferUsage) (metadata.PrimaryCommandBufferBuilder, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	e, err := a.entry(queueFamilyIndex)
	if err != nil {
		return nil, err
	}
	return e.pool.AllocatePrimary(usage)
}

func (a *StandardCommandBufferAllocator) AllocateSecondary(queueFamilyIndex uint32, usage metadata.CommandBufferUsage, inheritance metadata.Subpass) (metadata.SecondaryCommandBufferBuilder, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	e, err := a.entry(queueFamilyIndex)
	if err != nil {
		return nil, err
	}
	token, err := e.tokens.Dequeue()
	if err != nil {
		return nil, errors.Wrapf(ErrSecondaryBufferLimit, "queue family %d: %d buffers in use", queueFamilyIndex, a.secondaryBufferCount)
	}
	builder, err := e.pool.AllocateSecondary(usage, inheritance)
	if err != nil {
		_ = e.tokens.Enqueue(token)
		return nil, err
	}
	var once sync.Once
	release := func() {
		once.Do(func() {
			a.mu.Lock()
			defer a.mu.Unlock()
			_ = e.tokens.Enqueue(token)
		})
	}
	return &pooledSecondaryBuilder{SecondaryCommandBufferBuilder: builder, release: release}, nil
}

// SecondaryBuffersAvailable reports how many secondary buffers can still be allocated for a queue family.
func (a *StandardCommandBufferAllocator) SecondaryBuffersAvailable(queueFamilyIndex uint32) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	if e, ok := a.pools[queueFamilyIndex]; ok {
		return e.tokens.Len()
	}
	return a.secondaryBufferCount
}

func (a *StandardCommandBufferAllocator) Destroy() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for family, e := range a.pools {
		e.pool.Destroy()
		delete(a.pools, family)
	}
}

type pooledSecondaryBuilder struct {
	metadata.SecondaryCommandBufferBuilder
	release func()
	built   bool
}

func (b *pooledSecondaryBuilder) Build() (metadata.CommandBuffer, error) {
	if b.built {
		// the slot now belongs to the buffer built first
		return nil, errors.New("command buffer already built")
	}
	b.built = true
	cb, err := b.SecondaryCommandBufferBuilder.Build()
	if err != nil {
		b.release()
		return nil, err
	}
	return &pooledCommandBuffer{CommandBuffer: cb, release: b.release}, nil
}

type pooledCommandBuffer struct {
	metadata.CommandBuffer
	release  func()
	released bool
}

func (c *pooledCommandBuffer) Unwrap() metadata.CommandBuffer {
	return c.CommandBuffer
}

func (c *pooledCommandBuffer) Destroy() {
	if c.released {
		return
	}
	c.released = true
	c.CommandBuffer.Destroy()
	c.release()
}

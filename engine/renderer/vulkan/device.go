package vulkan

import (
	"runtime"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/nova/engine/core"
	"github.com/spaghettifunk/nova/engine/renderer/metadata"
)

const portabilitySubsetExtension = "VK_KHR_portability_subset"

type physicalDeviceQueueFamilyInfo struct {
	graphicsFamilyIndex int32
	presentFamilyIndex  int32
}

func (q physicalDeviceQueueFamilyInfo) complete() bool {
	return q.graphicsFamilyIndex >= 0 && q.presentFamilyIndex >= 0
}

type physicalDeviceCandidate struct {
	handle     vk.PhysicalDevice
	properties vk.PhysicalDeviceProperties
	memory     vk.PhysicalDeviceMemoryProperties
	queues     physicalDeviceQueueFamilyInfo
	extensions []string
	score      int
}

/**
 * @brief A logical Vulkan device with one graphics queue and one present queue, which
 * may be the same. Implements metadata.Device.
 */
type Device struct {
	physical   vk.PhysicalDevice
	logical    vk.Device
	name       string
	properties vk.PhysicalDeviceProperties
	memory     vk.PhysicalDeviceMemoryProperties

	graphics  *Queue
	present   *Queue
	allocator *Allocator
	locks     *VulkanLockPool
}

func NewDevice(instance vk.Instance, surface vk.Surface) (*Device, error) {
	candidate, err := selectPhysicalDevice(instance, surface)
	if err != nil {
		return nil, err
	}

	core.LogInfo("Creating logical device...")
	families := []uint32{uint32(candidate.queues.graphicsFamilyIndex)}
	if candidate.queues.presentFamilyIndex != candidate.queues.graphicsFamilyIndex {
		families = append(families, uint32(candidate.queues.presentFamilyIndex))
	}
	queueCreateInfos := make([]vk.DeviceQueueCreateInfo, len(families))
	for i, family := range families {
		queueCreateInfos[i] = vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: family,
			QueueCount:       1,
			PQueuePriorities: []float32{1.0},
		}
	}

	extensions := []string{vk.KhrSwapchainExtensionName}
	for _, ext := range candidate.extensions {
		if ext == portabilitySubsetExtension {
			core.LogInfo("Adding required extension '%s'.", portabilitySubsetExtension)
			extensions = append(extensions, portabilitySubsetExtension)
			break
		}
	}

	deviceCreateInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueCreateInfos)),
		PQueueCreateInfos:       queueCreateInfos,
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: VulkanSafeStrings(extensions),
	}
	var logical vk.Device
	if err := checkResult(vk.CreateDevice(candidate.handle, &deviceCreateInfo, nil, &logical), "vkCreateDevice"); err != nil {
		return nil, err
	}
	core.LogInfo("Logical device created.")

	d := &Device{
		physical:   candidate.handle,
		logical:    logical,
		name:       vk.ToString(candidate.properties.DeviceName[:]),
		properties: candidate.properties,
		memory:     candidate.memory,
		locks:      NewVulkanLockPool(),
	}
	d.allocator = &Allocator{device: d}
	d.graphics = d.queue(uint32(candidate.queues.graphicsFamilyIndex))
	d.present = d.graphics
	if candidate.queues.presentFamilyIndex != candidate.queues.graphicsFamilyIndex {
		d.present = d.queue(uint32(candidate.queues.presentFamilyIndex))
	}
	core.LogInfo("Queues obtained.")
	return d, nil
}

func (d *Device) queue(family uint32) *Queue {
	var handle vk.Queue
	vk.GetDeviceQueue(d.logical, family, 0, &handle)
	return &Queue{device: d, handle: handle, family: family}
}

func selectPhysicalDevice(instance vk.Instance, surface vk.Surface) (*physicalDeviceCandidate, error) {
	var count uint32
	if err := checkResult(vk.EnumeratePhysicalDevices(instance, &count, nil), "vkEnumeratePhysicalDevices"); err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, errors.New("no devices which support Vulkan were found")
	}
	physicalDevices := make([]vk.PhysicalDevice, count)
	if err := checkResult(vk.EnumeratePhysicalDevices(instance, &count, physicalDevices), "vkEnumeratePhysicalDevices"); err != nil {
		return nil, err
	}

	var best *physicalDeviceCandidate
	for _, pd := range physicalDevices {
		candidate, ok := evaluatePhysicalDevice(pd, surface)
		if !ok {
			continue
		}
		if best == nil || candidate.score > best.score {
			best = candidate
		}
	}
	if best == nil {
		return nil, errors.New("no physical devices were found which meet the requirements")
	}

	core.LogInfo("Selected device: '%s'.", vk.ToString(best.properties.DeviceName[:]))
	switch best.properties.DeviceType {
	case vk.PhysicalDeviceTypeIntegratedGpu:
		core.LogInfo("GPU type is Integrated.")
	case vk.PhysicalDeviceTypeDiscreteGpu:
		core.LogInfo("GPU type is Discrete.")
	case vk.PhysicalDeviceTypeVirtualGpu:
		core.LogInfo("GPU type is Virtual.")
	case vk.PhysicalDeviceTypeCpu:
		core.LogInfo("GPU type is CPU.")
	default:
		core.LogInfo("GPU type is Unknown.")
	}
	core.LogInfo(
		"GPU Driver version: %d.%d.%d",
		vk.Version(best.properties.DriverVersion).Major(),
		vk.Version(best.properties.DriverVersion).Minor(),
		vk.Version(best.properties.DriverVersion).Patch(),
	)
	core.LogInfo(
		"Vulkan API version: %d.%d.%d",
		vk.Version(best.properties.ApiVersion).Major(),
		vk.Version(best.properties.ApiVersion).Minor(),
		vk.Version(best.properties.ApiVersion).Patch(),
	)
	for j := uint32(0); j < best.memory.MemoryHeapCount; j++ {
		heap := best.memory.MemoryHeaps[j]
		heap.Deref()
		sizeGib := float64(heap.Size) / 1024.0 / 1024.0 / 1024.0
		if vk.MemoryHeapFlagBits(heap.Flags)&vk.MemoryHeapDeviceLocalBit != 0 {
			core.LogInfo("Local GPU memory: %.2f GiB", sizeGib)
		} else {
			core.LogInfo("Shared System memory: %.2f GiB", sizeGib)
		}
	}
	return best, nil
}

// evaluatePhysicalDevice checks the queue, extension and surface requirements and scores the
// device. Discrete GPUs are preferred except on macOS.
func evaluatePhysicalDevice(pd vk.PhysicalDevice, surface vk.Surface) (*physicalDeviceCandidate, bool) {
	c := &physicalDeviceCandidate{handle: pd}
	vk.GetPhysicalDeviceProperties(pd, &c.properties)
	c.properties.Deref()
	vk.GetPhysicalDeviceMemoryProperties(pd, &c.memory)
	c.memory.Deref()
	name := vk.ToString(c.properties.DeviceName[:])

	c.queues = findQueueFamilies(pd, surface)
	if !c.queues.complete() {
		core.LogInfo("Device '%s' lacks a graphics or present queue, skipping.", name)
		return nil, false
	}

	c.extensions = deviceExtensions(pd)
	found := false
	for _, ext := range c.extensions {
		if ext == vk.ToString([]byte(vk.KhrSwapchainExtensionName)) {
			found = true
			break
		}
	}
	if !found {
		core.LogInfo("Required extension not found: '%s', skipping device '%s'.", vk.KhrSwapchainExtensionName, name)
		return nil, false
	}

	var formatCount, presentModeCount uint32
	vk.GetPhysicalDeviceSurfaceFormats(pd, surface, &formatCount, nil)
	vk.GetPhysicalDeviceSurfacePresentModes(pd, surface, &presentModeCount, nil)
	if formatCount == 0 || presentModeCount == 0 {
		core.LogInfo("Required swapchain support not present, skipping device '%s'.", name)
		return nil, false
	}

	c.score = 1
	if c.properties.DeviceType == vk.PhysicalDeviceTypeDiscreteGpu && runtime.GOOS != "darwin" {
		c.score += 10
	}
	if c.queues.graphicsFamilyIndex == c.queues.presentFamilyIndex {
		c.score++
	}
	return c, true
}

// findQueueFamilies prefers a single family that supports both graphics and present.
func findQueueFamilies(pd vk.PhysicalDevice, surface vk.Surface) physicalDeviceQueueFamilyInfo {
	info := physicalDeviceQueueFamilyInfo{graphicsFamilyIndex: -1, presentFamilyIndex: -1}

	var count uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(pd, &count, nil)
	families := make([]vk.QueueFamilyProperties, count)
	vk.GetPhysicalDeviceQueueFamilyProperties(pd, &count, families)

	core.LogDebug("Graphics | Present | Family")
	for i := range families {
		families[i].Deref()
		graphics := vk.QueueFlagBits(families[i].QueueFlags)&vk.QueueGraphicsBit != 0

		var supportsPresent vk.Bool32
		vk.GetPhysicalDeviceSurfaceSupport(pd, uint32(i), surface, &supportsPresent)
		present := supportsPresent == vk.True

		core.LogDebug("   %-5t |   %-5t | %d", graphics, present, i)
		if graphics && present {
			info.graphicsFamilyIndex = int32(i)
			info.presentFamilyIndex = int32(i)
			return info
		}
		if graphics && info.graphicsFamilyIndex < 0 {
			info.graphicsFamilyIndex = int32(i)
		}
		if present && info.presentFamilyIndex < 0 {
			info.presentFamilyIndex = int32(i)
		}
	}
	return info
}

func deviceExtensions(pd vk.PhysicalDevice) []string {
	var count uint32
	if res := vk.EnumerateDeviceExtensionProperties(pd, "", &count, nil); res != vk.Success || count == 0 {
		return nil
	}
	available := make([]vk.ExtensionProperties, count)
	if res := vk.EnumerateDeviceExtensionProperties(pd, "", &count, available); res != vk.Success {
		return nil
	}
	names := make([]string, 0, count)
	for i := range available {
		available[i].Deref()
		names = append(names, vk.ToString(available[i].ExtensionName[:]))
	}
	return names
}

// findMemoryType returns the index of a memory type allowed by typeFilter with all the
// requested properties.
func (d *Device) findMemoryType(typeFilter uint32, properties vk.MemoryPropertyFlagBits) (uint32, error) {
	for i := uint32(0); i < d.memory.MemoryTypeCount; i++ {
		memoryType := d.memory.MemoryTypes[i]
		memoryType.Deref()
		if typeFilter&(1<<i) != 0 && vk.MemoryPropertyFlagBits(memoryType.PropertyFlags)&properties == properties {
			return i, nil
		}
	}
	return 0, errors.Newf("no memory type matches filter %#x with properties %#x", typeFilter, uint32(properties))
}

func (d *Device) Name() string { return d.name }

func (d *Device) GraphicsQueue() metadata.Queue { return d.graphics }

// PresentQueue is the queue the swapchain presents on.
func (d *Device) PresentQueue() *Queue { return d.present }

func (d *Device) MemoryAllocator() metadata.MemoryAllocator { return d.allocator }

func (d *Device) CreateCommandPool(queueFamilyIndex uint32) (metadata.CommandPool, error) {
	return newCommandPool(d, queueFamilyIndex)
}

func (d *Device) CreateRenderPass(desc metadata.RenderPassDescription) (metadata.RenderPass, error) {
	return newRenderPass(d, desc)
}

func (d *Device) CreateImageView(img metadata.Image) (metadata.ImageView, error) {
	vi, ok := img.(*Image)
	if !ok {
		return nil, errors.Newf("image %T does not belong to a Vulkan device", img)
	}
	return newImageView(d, vi)
}

func (d *Device) CreateFramebuffer(info metadata.FramebufferCreateInfo) (metadata.Framebuffer, error) {
	return newFramebuffer(d, info)
}

func (d *Device) CreateShaderModule(stage metadata.ShaderStage, code []byte) (metadata.ShaderModule, error) {
	return newShaderModule(d, stage, code)
}

func (d *Device) CreateGraphicsPipeline(info metadata.GraphicsPipelineCreateInfo) (metadata.GraphicsPipeline, error) {
	return newGraphicsPipeline(d, info)
}

func (d *Device) CreateFence(signaled bool) (metadata.Fence, error) {
	return newFence(d, signaled)
}

func (d *Device) CreateSemaphore() (metadata.Semaphore, error) {
	return newSemaphore(d)
}

func (d *Device) WaitIdle() error {
	return checkResult(vk.DeviceWaitIdle(d.logical), "vkDeviceWaitIdle")
}

func (d *Device) Destroy() {
	if d.logical == nil {
		return
	}
	_ = d.WaitIdle()
	core.LogInfo("Destroying logical device...")
	vk.DestroyDevice(d.logical, nil)
	d.logical = nil
	d.physical = nil
}

/** @brief A device queue. Submissions are serialized per queue family. */
type Queue struct {
	device *Device
	handle vk.Queue
	family uint32
}

func (q *Queue) Device() metadata.Device { return q.device }

func (q *Queue) FamilyIndex() uint32 { return q.family }

func (q *Queue) Submit(batches []metadata.SubmitInfo, fence metadata.Fence) error {
	submits := make([]vk.SubmitInfo, 0, len(batches))
	for i, batch := range batches {
		submit := vk.SubmitInfo{SType: vk.StructureTypeSubmitInfo}
		for _, w := range batch.WaitSemaphores {
			sem, ok := w.Semaphore.(*Semaphore)
			if !ok {
				return errors.Newf("batch %d: semaphore %T does not belong to a Vulkan device", i, w.Semaphore)
			}
			submit.PWaitSemaphores = append(submit.PWaitSemaphores, sem.handle)
			submit.PWaitDstStageMask = append(submit.PWaitDstStageMask, toVkPipelineStage(w.Stage))
		}
		for _, cb := range batch.CommandBuffers {
			vcb, ok := metadata.UnwrapCommandBuffer(cb).(*CommandBuffer)
			if !ok {
				return errors.Newf("batch %d: command buffer %T does not belong to a Vulkan device", i, cb)
			}
			submit.PCommandBuffers = append(submit.PCommandBuffers, vcb.handle)
		}
		for _, s := range batch.SignalSemaphores {
			sem, ok := s.(*Semaphore)
			if !ok {
				return errors.Newf("batch %d: semaphore %T does not belong to a Vulkan device", i, s)
			}
			submit.PSignalSemaphores = append(submit.PSignalSemaphores, sem.handle)
		}
		submit.WaitSemaphoreCount = uint32(len(submit.PWaitSemaphores))
		submit.CommandBufferCount = uint32(len(submit.PCommandBuffers))
		submit.SignalSemaphoreCount = uint32(len(submit.PSignalSemaphores))
		submits = append(submits, submit)
	}

	fenceHandle := vk.NullFence
	if fence != nil {
		vf, ok := fence.(*Fence)
		if !ok {
			return errors.Newf("fence %T does not belong to a Vulkan device", fence)
		}
		fenceHandle = vf.handle
	}

	return q.device.locks.SafeQueueCall(q.family, func() error {
		return checkResult(vk.QueueSubmit(q.handle, uint32(len(submits)), submits, fenceHandle), "vkQueueSubmit")
	})
}

func (q *Queue) WaitIdle() error {
	return q.device.locks.SafeQueueCall(q.family, func() error {
		return checkResult(vk.QueueWaitIdle(q.handle), "vkQueueWaitIdle")
	})
}

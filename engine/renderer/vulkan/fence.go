package vulkan

import (
	"time"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/nova/engine/core"
)

type Fence struct {
	device *Device
	handle vk.Fence
}

func newFence(device *Device, signaled bool) (*Fence, error) {
	fenceCreateInfo := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	if signaled {
		fenceCreateInfo.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}
	var handle vk.Fence
	if err := checkResult(vk.CreateFence(device.logical, &fenceCreateInfo, nil, &handle), "vkCreateFence"); err != nil {
		return nil, err
	}
	return &Fence{device: device, handle: handle}, nil
}

// Wait blocks until the fence is signaled. A zero timeout waits forever.
func (f *Fence) Wait(timeout time.Duration) error {
	timeoutNs := uint64(vk.MaxUint64)
	if timeout > 0 {
		timeoutNs = uint64(timeout.Nanoseconds())
	}
	result := vk.WaitForFences(f.device.logical, 1, []vk.Fence{f.handle}, vk.True, timeoutNs)
	switch result {
	case vk.Success:
		return nil
	case vk.ErrorDeviceLost:
		core.LogError("vkWaitForFences - VK_ERROR_DEVICE_LOST.")
	}
	return checkResult(result, "vkWaitForFences")
}

func (f *Fence) Signaled() (bool, error) {
	result := vk.GetFenceStatus(f.device.logical, f.handle)
	if result == vk.NotReady {
		return false, nil
	}
	if err := checkResult(result, "vkGetFenceStatus"); err != nil {
		return false, err
	}
	return true, nil
}

func (f *Fence) Reset() error {
	return checkResult(vk.ResetFences(f.device.logical, 1, []vk.Fence{f.handle}), "vkResetFences")
}

func (f *Fence) Destroy() {
	if f.handle == vk.NullFence {
		return
	}
	vk.DestroyFence(f.device.logical, f.handle, nil)
	f.handle = vk.NullFence
}

type Semaphore struct {
	device *Device
	handle vk.Semaphore
}

func newSemaphore(device *Device) (*Semaphore, error) {
	semaphoreCreateInfo := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}
	var handle vk.Semaphore
	if err := checkResult(vk.CreateSemaphore(device.logical, &semaphoreCreateInfo, nil, &handle), "vkCreateSemaphore"); err != nil {
		return nil, err
	}
	return &Semaphore{device: device, handle: handle}, nil
}

func (s *Semaphore) Destroy() {
	if s.handle == vk.NullSemaphore {
		return
	}
	vk.DestroySemaphore(s.device.logical, s.handle, nil)
	s.handle = vk.NullSemaphore
}

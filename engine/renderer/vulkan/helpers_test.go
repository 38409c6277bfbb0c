package vulkan

import (
	"sync"
	"testing"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/nova/engine/renderer/metadata"
)

func TestFormatMappingRoundTrips(t *testing.T) {
	for f, vf := range formats {
		assert.Equal(t, vf, toVkFormat(f))
		assert.Equal(t, f, fromVkFormat(vf))
	}
	assert.Equal(t, vk.FormatUndefined, toVkFormat(metadata.FormatUndefined))
	assert.Equal(t, metadata.FormatUndefined, fromVkFormat(vk.FormatR16g16b16a16Sfloat))
}

func TestImageUsageFlags(t *testing.T) {
	flags := toVkImageUsage(metadata.ImageUsageColorAttachment | metadata.ImageUsageTransferDst)
	assert.Equal(t, vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit|vk.ImageUsageTransferDstBit), flags)
	assert.Equal(t, vk.ImageUsageFlags(0), toVkImageUsage(0))
}

func TestPipelineStageDefaultsToAllCommands(t *testing.T) {
	assert.Equal(t, vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit), toVkPipelineStage(0))
	assert.Equal(t, vk.PipelineStageFlags(vk.PipelineStageTransferBit), toVkPipelineStage(metadata.PipelineStageTransfer))
}

func TestAspectOf(t *testing.T) {
	assert.Equal(t, vk.ImageAspectFlags(vk.ImageAspectDepthBit), aspectOf(metadata.FormatD16Unorm))
	assert.Equal(t, vk.ImageAspectFlags(vk.ImageAspectColorBit), aspectOf(metadata.FormatB8G8R8A8Unorm))
}

func TestLayoutAccess(t *testing.T) {
	access, stage := layoutAccess(vk.ImageLayoutTransferDstOptimal)
	assert.Equal(t, vk.AccessFlags(vk.AccessTransferWriteBit), access)
	assert.Equal(t, vk.PipelineStageFlags(vk.PipelineStageTransferBit), stage)

	access, stage = layoutAccess(vk.ImageLayoutUndefined)
	assert.Zero(t, access)
	assert.Equal(t, vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit), stage)
}

func TestCheckResult(t *testing.T) {
	require.NoError(t, checkResult(vk.Success, "vkQueueSubmit"))
	require.NoError(t, checkResult(vk.Suboptimal, "vkQueuePresentKHR"))

	err := checkResult(vk.ErrorOutOfDate, "vkAcquireNextImageKHR")
	assert.True(t, errors.Is(err, metadata.ErrOutOfDate))
	err = checkResult(vk.Timeout, "vkWaitForFences")
	assert.True(t, errors.Is(err, metadata.ErrTimeout))

	err = checkResult(vk.ErrorDeviceLost, "vkQueueSubmit")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "VK_ERROR_DEVICE_LOST")
	assert.Contains(t, err.Error(), "vkQueueSubmit")
}

func TestVulkanResultString(t *testing.T) {
	assert.Equal(t, "VK_ERROR_OUT_OF_DATE_KHR", VulkanResultString(vk.ErrorOutOfDate))
	assert.Equal(t, "VK_RESULT_UNKNOWN", VulkanResultString(vk.Result(-12345)))
}

func TestVulkanSafeString(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "\x00"},
		{"VK_LAYER_KHRONOS_validation", "VK_LAYER_KHRONOS_validation\x00"},
		{"main\x00", "main\x00"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, VulkanSafeString(tt.in))
	}
	assert.Equal(t, []string{"a\x00", "b\x00"}, VulkanSafeStrings([]string{"a", "b\x00"}))
}

func TestChoosePresentMode(t *testing.T) {
	support := &swapchainSupportInfo{presentModes: []vk.PresentMode{vk.PresentModeFifo, vk.PresentModeMailbox}}

	tests := []struct {
		name string
		info SwapchainCreateInfo
		want vk.PresentMode
	}{
		{"supported", SwapchainCreateInfo{PresentMode: "mailbox"}, vk.PresentModeMailbox},
		{"vsync wins", SwapchainCreateInfo{PresentMode: "mailbox", VSync: true}, vk.PresentModeFifo},
		{"unsupported", SwapchainCreateInfo{PresentMode: "immediate"}, vk.PresentModeFifo},
		{"unknown", SwapchainCreateInfo{PresentMode: "triple"}, vk.PresentModeFifo},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, choosePresentMode(tt.info, support))
		})
	}
}

func TestRegionOffsets(t *testing.T) {
	offsets := regionOffsets(metadata.Rect2D{
		Offset: metadata.Offset2D{X: 280, Y: 0},
		Extent: metadata.Extent2D{Width: 720, Height: 720},
	})
	assert.Equal(t, vk.Offset3D{X: 280, Y: 0, Z: 0}, offsets[0])
	assert.Equal(t, vk.Offset3D{X: 1000, Y: 720, Z: 1}, offsets[1])
}

func TestCommandBufferUsageFlags(t *testing.T) {
	assert.Equal(t, vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit), usageFlags(metadata.CommandBufferUsageOneTimeSubmit))
	assert.Equal(t, vk.CommandBufferUsageFlags(vk.CommandBufferUsageSimultaneousUseBit), usageFlags(metadata.CommandBufferUsageSimultaneousUse))
}

func TestLockPoolSerializesGroups(t *testing.T) {
	pool := NewVulkanLockPool()
	var (
		wg      sync.WaitGroup
		counter int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = pool.SafeCall(CommandPoolManagement, func() error {
				counter++
				return nil
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, counter)

	want := errors.New("queue busy")
	assert.ErrorIs(t, pool.SafeQueueCall(0, func() error { return want }), want)
}

func TestShaderModuleRejectsMisalignedCode(t *testing.T) {
	// rejected before any device call
	_, err := newShaderModule(nil, metadata.ShaderStageVertex, []byte{0x03, 0x02, 0x23})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SPIR-V size 3")

	_, err = newShaderModule(nil, metadata.ShaderStageFragment, nil)
	require.Error(t, err)
}

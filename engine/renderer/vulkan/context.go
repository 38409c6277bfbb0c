package vulkan

import (
	"runtime"
	"unsafe"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/nova/engine/core"
	"github.com/spaghettifunk/nova/engine/renderer/metadata"
)

const validationLayer = "VK_LAYER_KHRONOS_validation"

/** @brief The window a context presents to. */
type Window interface {
	RequiredInstanceExtensions() []string
	CreateSurface(instance vk.Instance) (vk.Surface, error)
	FramebufferSize() (uint32, uint32)
}

type ContextCreateInfo struct {
	AppName    string
	Validation bool
	Window     Window
}

/**
 * @brief Owns the Vulkan instance, the window surface and the logical device.
 * The loader must be initialized before NewContext is called.
 */
type Context struct {
	instance      vk.Instance
	debugCallback vk.DebugReportCallback
	surface       vk.Surface
	window        Window
	device        *Device
}

func NewContext(info ContextCreateInfo) (*Context, error) {
	c := &Context{window: info.Window}

	if err := c.createInstance(info.AppName, info.Validation); err != nil {
		return nil, err
	}

	if info.Validation {
		if err := c.createDebugCallback(); err != nil {
			c.Destroy()
			return nil, err
		}
	}

	core.LogDebug("Creating Vulkan surface...")
	surface, err := info.Window.CreateSurface(c.instance)
	if err != nil {
		c.Destroy()
		return nil, err
	}
	c.surface = surface
	core.LogDebug("Vulkan surface created.")

	device, err := NewDevice(c.instance, c.surface)
	if err != nil {
		c.Destroy()
		return nil, err
	}
	c.device = device
	return c, nil
}

func (c *Context) createInstance(appName string, validation bool) error {
	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 1, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   VulkanSafeString(appName),
		PEngineName:        VulkanSafeString("Nova Engine"),
	}
	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}

	extensions := c.window.RequiredInstanceExtensions()
	if runtime.GOOS == "darwin" {
		extensions = append(extensions,
			"VK_KHR_portability_enumeration",
			"VK_KHR_get_physical_device_properties2",
		)
		// VK_INSTANCE_CREATE_ENUMERATE_PORTABILITY_BIT_KHR
		createInfo.Flags |= 1
	}

	var layers []string
	if validation {
		extensions = append(extensions, vk.ExtDebugReportExtensionName)
		if hasInstanceLayer(validationLayer) {
			layers = append(layers, validationLayer)
			core.LogInfo("Validation layer %s enabled.", validationLayer)
		} else {
			core.LogWarn("Validation requested but %s is not installed.", validationLayer)
		}
	}
	for _, ext := range extensions {
		core.LogDebug("Required instance extension: %s", ext)
	}

	createInfo.EnabledExtensionCount = uint32(len(extensions))
	createInfo.PpEnabledExtensionNames = VulkanSafeStrings(extensions)
	createInfo.EnabledLayerCount = uint32(len(layers))
	createInfo.PpEnabledLayerNames = VulkanSafeStrings(layers)

	var instance vk.Instance
	if err := checkResult(vk.CreateInstance(&createInfo, nil, &instance), "vkCreateInstance"); err != nil {
		return err
	}
	if err := vk.InitInstance(instance); err != nil {
		vk.DestroyInstance(instance, nil)
		return errors.Wrap(err, "failed to load instance functions")
	}
	c.instance = instance
	core.LogInfo("Vulkan Instance created.")
	return nil
}

func hasInstanceLayer(name string) bool {
	var count uint32
	if res := vk.EnumerateInstanceLayerProperties(&count, nil); res != vk.Success {
		return false
	}
	available := make([]vk.LayerProperties, count)
	if res := vk.EnumerateInstanceLayerProperties(&count, available); res != vk.Success {
		return false
	}
	for i := range available {
		available[i].Deref()
		if vk.ToString(available[i].LayerName[:]) == name {
			return true
		}
	}
	return false
}

func (c *Context) createDebugCallback() error {
	core.LogDebug("Creating Vulkan debugger...")
	debugCreateInfo := vk.DebugReportCallbackCreateInfo{
		SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
		Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
		PfnCallback: dbgCallbackFunc,
	}
	var dbg vk.DebugReportCallback
	if err := checkResult(vk.CreateDebugReportCallback(c.instance, &debugCreateInfo, nil, &dbg), "vkCreateDebugReportCallback"); err != nil {
		return err
	}
	c.debugCallback = dbg
	core.LogDebug("Vulkan debugger created.")
	return nil
}

func (c *Context) Device() metadata.Device { return c.device }

// VulkanDevice returns the concrete device, for the swapchain.
func (c *Context) VulkanDevice() *Device { return c.device }

func (c *Context) GraphicsQueue() metadata.Queue { return c.device.graphics }

func (c *Context) MemoryAllocator() metadata.MemoryAllocator { return c.device.allocator }

func (c *Context) Surface() vk.Surface { return c.surface }

func (c *Context) Window() Window { return c.window }

// Destroy releases the device, the surface and the instance. Everything created from the
// device must be destroyed first.
func (c *Context) Destroy() {
	if c.device != nil {
		c.device.Destroy()
		c.device = nil
	}
	if c.surface != vk.NullSurface {
		vk.DestroySurface(c.instance, c.surface, nil)
		c.surface = vk.NullSurface
	}
	if c.debugCallback != vk.NullDebugReportCallback {
		vk.DestroyDebugReportCallback(c.instance, c.debugCallback, nil)
		c.debugCallback = vk.NullDebugReportCallback
	}
	if c.instance != nil {
		vk.DestroyInstance(c.instance, nil)
		c.instance = nil
	}
	core.LogInfo("Vulkan context destroyed.")
}

func dbgCallbackFunc(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint64, messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		core.LogError("[%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		core.LogWarn("[%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		core.LogWarn("PERFORMANCE: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	default:
		core.LogDebug("[%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	}
	return vk.Bool32(vk.False)
}

package platform

import (
	"runtime"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/nova/engine/core"
)

func init() {
	// GLFW event handling must run on the main OS thread
	runtime.LockOSThread()
}

// Window is a GLFW window without a client API, presenting through Vulkan. Its callbacks
// are forwarded to the event bus.
type Window struct {
	handle *glfw.Window
	bus    *core.EventBus
}

func NewWindow(cfg core.WindowConfig, bus *core.EventBus) (*Window, error) {
	if err := glfw.Init(); err != nil {
		return nil, errors.Wrap(err, "failed to initialize glfw")
	}
	if !glfw.VulkanSupported() {
		glfw.Terminate()
		return nil, errors.New("glfw reports no Vulkan support")
	}

	glfw.WindowHint(glfw.Visible, glfw.False)
	glfw.WindowHint(glfw.Resizable, glfw.True)
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI) // Required for Vulkan.

	handle, err := glfw.CreateWindow(int(cfg.Width), int(cfg.Height), cfg.Title, nil, nil)
	if err != nil {
		glfw.Terminate()
		return nil, errors.Wrap(err, "failed to create window")
	}

	w := &Window{handle: handle, bus: bus}
	handle.SetKeyCallback(w.keyCallback)
	handle.SetFramebufferSizeCallback(w.framebufferSizeCallback)
	handle.SetContentScaleCallback(w.contentScaleCallback)
	handle.SetCloseCallback(w.closeCallback)
	handle.SetPos(int(cfg.X), int(cfg.Y))
	handle.Show()

	core.LogInfo("window '%s' created (%dx%d)", cfg.Title, cfg.Width, cfg.Height)
	return w, nil
}

// InitVulkanLoader points the Vulkan bindings at the loader GLFW found.
func (w *Window) InitVulkanLoader() error {
	procAddr := glfw.GetVulkanGetInstanceProcAddress()
	if procAddr == nil {
		return errors.New("GetInstanceProcAddress is nil")
	}
	vk.SetGetInstanceProcAddr(procAddr)
	return vk.Init()
}

// RequiredInstanceExtensions lists the instance extensions needed to present to this window.
func (w *Window) RequiredInstanceExtensions() []string {
	return w.handle.GetRequiredInstanceExtensions()
}

func (w *Window) CreateSurface(instance vk.Instance) (vk.Surface, error) {
	ptr, err := w.handle.CreateWindowSurface(instance, nil)
	if err != nil {
		return vk.NullSurface, errors.Wrap(err, "Vulkan surface creation failed")
	}
	return vk.SurfaceFromPointer(ptr), nil
}

// FramebufferSize returns the drawable size in pixels; zero while minimized.
func (w *Window) FramebufferSize() (uint32, uint32) {
	width, height := w.handle.GetFramebufferSize()
	return uint32(width), uint32(height)
}

func (w *Window) PumpMessages() {
	glfw.PollEvents()
}

func (w *Window) ShouldClose() bool {
	return w.handle.ShouldClose()
}

func (w *Window) Shutdown() {
	w.handle.Destroy()
	glfw.Terminate()
}

func (w *Window) keyCallback(_ *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
	if action != glfw.Press {
		return
	}
	if key == glfw.KeyEscape {
		w.bus.Fire(core.EVENT_CODE_APPLICATION_QUIT, w, core.EventContext{})
		return
	}
	var ctx core.EventContext
	ctx.Data.U32[0] = uint32(key)
	w.bus.Fire(core.EVENT_CODE_KEY_PRESSED, w, ctx)
}

func (w *Window) framebufferSizeCallback(_ *glfw.Window, width, height int) {
	var ctx core.EventContext
	ctx.Data.U32[0] = uint32(width)
	ctx.Data.U32[1] = uint32(height)
	w.bus.Fire(core.EVENT_CODE_RESIZED, w, ctx)
}

func (w *Window) contentScaleCallback(_ *glfw.Window, x, y float32) {
	var ctx core.EventContext
	ctx.Data.F32[0] = x
	ctx.Data.F32[1] = y
	w.bus.Fire(core.EVENT_CODE_SCALE_FACTOR_CHANGED, w, ctx)
}

func (w *Window) closeCallback(_ *glfw.Window) {
	w.bus.Fire(core.EVENT_CODE_APPLICATION_QUIT, w, core.EventContext{})
}

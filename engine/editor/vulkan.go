package editor

import (
	"github.com/spaghettifunk/nova/engine/core"
	"github.com/spaghettifunk/nova/engine/platform"
	"github.com/spaghettifunk/nova/engine/renderer"
	"github.com/spaghettifunk/nova/engine/renderer/vulkan"
)

// NewVulkanApp opens the editor window and builds the editor on the first suitable GPU.
// It must be called from the main goroutine.
func NewVulkanApp(cfg *core.Config, bus *core.EventBus, opts ...renderer.RendererOption) (*App, error) {
	window, err := platform.NewWindow(cfg.Window, bus)
	if err != nil {
		return nil, err
	}
	if err := window.InitVulkanLoader(); err != nil {
		window.Shutdown()
		return nil, err
	}

	ctx, err := vulkan.NewContext(vulkan.ContextCreateInfo{
		AppName:    cfg.Window.Title,
		Validation: cfg.Renderer.Validation,
		Window:     window,
	})
	if err != nil {
		window.Shutdown()
		return nil, err
	}

	swapchain, err := vulkan.NewSwapchain(ctx, vulkan.SwapchainCreateInfo{
		PresentMode: cfg.Renderer.PresentMode,
		VSync:       cfg.Renderer.VSync,
	})
	if err != nil {
		ctx.Destroy()
		window.Shutdown()
		return nil, err
	}

	opts = append(configOptions(cfg), opts...)
	app, err := NewApp(ctx, swapchain, window, bus, AppConfig{
		Scene: sceneExtent(cfg),
	}, opts...)
	if err != nil {
		swapchain.Destroy()
		ctx.Destroy()
		window.Shutdown()
		return nil, err
	}
	// cleanups run in reverse: the context goes before the window it presents to
	app.OnShutdown(window.Shutdown)
	app.OnShutdown(ctx.Destroy)
	return app, nil
}

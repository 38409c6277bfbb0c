/*
The Nova editor: renders the scene into an offscreen image and composites it onto the
window every frame. NOVA_CONFIG points at the TOML configuration, editor.toml by default.
*/
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/spaghettifunk/nova/engine/assets"
	"github.com/spaghettifunk/nova/engine/core"
	"github.com/spaghettifunk/nova/engine/editor"
	"github.com/spaghettifunk/nova/engine/renderer"
	"github.com/spaghettifunk/nova/engine/renderer/systems"
)

const defaultConfigPath = "editor.toml"

func main() {
	path := os.Getenv("NOVA_CONFIG")
	if path == "" {
		path = defaultConfigPath
	}
	cfg, err := core.LoadConfig(path)
	if err != nil {
		core.LogFatal("%+v", err)
	}
	if err := core.SetLogLevel(cfg.Log.Level); err != nil {
		core.LogFatal("%+v", err)
	}

	// capture sigterm and other system calls here
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		core.LogFatal("%+v", err)
	}
}

func run(ctx context.Context, cfg *core.Config) error {
	am, err := assets.NewAssetManager(cfg.Assets.Dir)
	if err != nil {
		return err
	}
	defer am.Close()

	bus := core.NewEventBus()
	defer bus.Shutdown()
	am.SetEventBus(bus)
	bus.Register(core.EVENT_CODE_ASSET_CHANGED, am, func(code core.SystemEventCode, sender interface{}, listener interface{}, data core.EventContext) bool {
		core.LogInfo("asset %s changed", data.Data.C[0])
		return false
	})

	watchCtx, cancelWatch := context.WithCancel(ctx)
	g, watchCtx := errgroup.WithContext(watchCtx)
	if cfg.Assets.HotReload {
		g.Go(func() error { return am.Watch(watchCtx) })
	}

	opts := []renderer.RendererOption{
		renderer.WithShaders(systems.AssetShaders{Assets: am}),
	}
	var app *editor.App
	switch cfg.Renderer.Backend {
	case core.BackendHeadless:
		app, err = editor.NewHeadlessApp(cfg, bus, opts...)
	default:
		app, err = editor.NewVulkanApp(cfg, bus, opts...)
	}
	if err != nil {
		cancelWatch()
		_ = g.Wait()
		return err
	}

	// the window has to be driven from the main goroutine
	runErr := app.Run(ctx)
	cancelWatch()
	if err := g.Wait(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

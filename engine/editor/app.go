package editor

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/spaghettifunk/nova/engine/core"
	"github.com/spaghettifunk/nova/engine/renderer"
	"github.com/spaghettifunk/nova/engine/renderer/future"
	"github.com/spaghettifunk/nova/engine/renderer/metadata"
)

type Stage uint8

const (
	// App is in an uninitialized state
	AppStageUninitialized Stage = iota
	// App created its GPU resources and is ready to run
	AppStageInitialized
	// App is currently running
	AppStageRunning
	// App is in the process of shutting down
	AppStageShuttingDown
)

const acquireTimeout = time.Second

type AppConfig struct {
	Scene metadata.Extent2D
	// FrameLimit stops Run after that many presented frames, 0 runs until closed.
	FrameLimit int
	// Clock drives the frame timer and the render stopwatch, the high resolution clock if nil.
	Clock core.Clock
}

/**
 * @brief The editor application: renders the scene into an offscreen image every frame and
 * composites it onto the next surface image before presenting it.
 */
type App struct {
	sessionID uuid.UUID
	stage     Stage
	config    AppConfig

	ctx        metadata.Context
	surface    Surface
	window     Window
	bus        *core.EventBus
	renderer   *renderer.Renderer
	compositor Compositor

	scene     metadata.Image
	sceneView metadata.ImageView

	timeInfo    *core.TimeInfo
	renderWatch *core.Stopwatch
	inFlight []*future.Future
	// run in reverse order once everything else is destroyed
	cleanups []func()

	isRunning     bool
	isSuspended   bool
	needsResize   bool
	scaleFactor   float32
	framesShown   int
	framesSkipped int
}

func NewApp(ctx metadata.Context, surface Surface, window Window, bus *core.EventBus, config AppConfig, opts ...renderer.RendererOption) (*App, error) {
	if config.Scene.IsZero() {
		return nil, errors.Wrap(core.ErrInvalidConfig, "scene extent is empty")
	}
	r, err := renderer.NewRenderer(ctx, opts...)
	if err != nil {
		return nil, err
	}

	scene, err := ctx.MemoryAllocator().CreateImage(metadata.ImageCreateInfo{
		Format:      r.ImageFormat(),
		Extent:      config.Scene.To3D(),
		Usage:       metadata.ImageUsageSampled | metadata.ImageUsageColorAttachment | metadata.ImageUsageTransferSrc,
		ArrayLayers: 1,
	})
	if err != nil {
		r.Destroy()
		return nil, errors.Wrap(err, "failed to create scene image")
	}
	sceneView, err := ctx.Device().CreateImageView(scene)
	if err != nil {
		scene.Destroy()
		r.Destroy()
		return nil, errors.Wrap(err, "failed to create scene image view")
	}

	a := &App{
		sessionID:   uuid.New(),
		stage:       AppStageUninitialized,
		config:      config,
		ctx:         ctx,
		surface:     surface,
		window:      window,
		bus:         bus,
		renderer:    r,
		compositor:  NewViewportCompositor(ctx.GraphicsQueue(), r.Allocators(), scene),
		scene:       scene,
		sceneView:   sceneView,
		timeInfo:    core.NewTimeInfo(config.Clock),
		renderWatch: core.NewStopwatch(config.Clock),
		scaleFactor: 1,
	}

	bus.Register(core.EVENT_CODE_APPLICATION_QUIT, a, a.onEvent)
	bus.Register(core.EVENT_CODE_RESIZED, a, a.onResized)
	bus.Register(core.EVENT_CODE_SCALE_FACTOR_CHANGED, a, a.onScaleFactor)

	a.stage = AppStageInitialized
	core.LogInfo("editor session %s ready (scene %dx%d, surface %dx%d)", a.sessionID,
		config.Scene.Width, config.Scene.Height, surface.Extent().Width, surface.Extent().Height)
	return a, nil
}

func (a *App) SessionID() uuid.UUID { return a.sessionID }

func (a *App) Stage() Stage { return a.stage }

func (a *App) Surface() Surface { return a.surface }

func (a *App) Renderer() *renderer.Renderer { return a.renderer }

func (a *App) Scene() metadata.Image { return a.scene }

func (a *App) TimeInfo() *core.TimeInfo { return a.timeInfo }

// RenderTime is how long recording and submitting the last frame took on the CPU.
func (a *App) RenderTime() time.Duration { return a.renderWatch.Elapsed() }

// OnShutdown registers fn to run after the app destroyed its own resources, e.g. to
// destroy the device it was created on.
func (a *App) OnShutdown(fn func()) { a.cleanups = append(a.cleanups, fn) }

// SetCompositor replaces the viewport compositor.
func (a *App) SetCompositor(c Compositor) { a.compositor = c }

// FramesPresented counts the frames that reached the surface.
func (a *App) FramesPresented() int { return a.framesShown }

// FramesSkipped counts the frames dropped because the surface was out of date or minimized.
func (a *App) FramesSkipped() int { return a.framesSkipped }

// InFlight returns how many presented frames have not been cleaned up yet.
func (a *App) InFlight() int { return len(a.inFlight) }

// RunFrame renders and presents one frame. A frame that cannot be presented because the
// surface is out of date or minimized is skipped without error.
func (a *App) RunFrame() error {
	a.cleanupFinished()

	if a.isSuspended {
		a.framesSkipped++
		return nil
	}
	if a.needsResize {
		if err := a.recreateSurface(); err != nil {
			return err
		}
	}
	if a.surface.Extent().IsZero() {
		// nothing to draw into until the surface gets a size again
		a.needsResize = true
		a.framesSkipped++
		return nil
	}

	index, acquired, err := a.surface.Acquire(acquireTimeout)
	if errors.Is(err, metadata.ErrOutOfDate) {
		a.needsResize = true
		a.framesSkipped++
		return nil
	}
	if errors.Is(err, metadata.ErrTimeout) {
		core.LogWarn("no surface image available after %s, skipping frame", acquireTimeout)
		a.framesSkipped++
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "failed to acquire surface image")
	}

	a.renderWatch.Start()
	afterScene, err := a.renderer.Render(acquired, a.sceneView)
	if err != nil {
		return errors.Wrap(err, "failed to render scene")
	}
	afterCompositor, err := a.compositor.DrawOnImage(afterScene, a.surface.ImageView(index))
	if err != nil {
		return err
	}
	a.renderWatch.Stop()

	presented, err := a.surface.Present(index, afterCompositor, false)
	if presented != nil {
		a.inFlight = append(a.inFlight, presented)
	}
	if errors.Is(err, metadata.ErrOutOfDate) {
		a.needsResize = true
		a.framesSkipped++
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "failed to present")
	}
	a.framesShown++

	a.timeInfo.Update()
	if _, frames := a.timeInfo.Elapsed(); frames == 0 {
		core.LogInfo("%.1f fps (%.2f ms avg, last frame recorded in %s)", a.timeInfo.FPS(), a.timeInfo.AverageFrameTime(), a.RenderTime())
	}

	// never keep more frames in flight than there are surface images
	for len(a.inFlight) > a.surface.ImageCount() {
		if err := a.waitOldest(); err != nil {
			return err
		}
	}
	return nil
}

// Run drives frames until the window closes, a quit event arrives, ctx is cancelled or the
// frame limit is reached. It shuts the app down before returning.
func (a *App) Run(ctx context.Context) error {
	if a.stage != AppStageInitialized {
		return errors.Newf("app cannot run from stage %d", a.stage)
	}
	a.stage = AppStageRunning
	a.isRunning = true

	var runErr error
	for a.isRunning {
		select {
		case <-ctx.Done():
			core.LogInfo("context done, stopping editor")
			a.isRunning = false
			continue
		default:
		}

		a.window.PumpMessages()
		if a.window.ShouldClose() {
			a.isRunning = false
			break
		}
		if err := a.RunFrame(); err != nil {
			runErr = err
			break
		}
		if a.config.FrameLimit > 0 && a.framesShown >= a.config.FrameLimit {
			core.LogInfo("frame limit of %d reached", a.config.FrameLimit)
			break
		}
	}

	if err := a.Shutdown(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// Shutdown waits for the frames in flight and destroys the GPU resources.
func (a *App) Shutdown() error {
	if a.stage == AppStageShuttingDown || a.stage == AppStageUninitialized {
		return nil
	}
	a.stage = AppStageShuttingDown
	a.isRunning = false

	var err error
	if waitErr := a.waitAll(); waitErr != nil {
		err = waitErr
	}
	if idleErr := a.ctx.Device().WaitIdle(); idleErr != nil && err == nil {
		err = errors.Wrap(idleErr, "failed to wait for device idle")
	}

	a.bus.Unregister(core.EVENT_CODE_APPLICATION_QUIT, a)
	a.bus.Unregister(core.EVENT_CODE_RESIZED, a)
	a.bus.Unregister(core.EVENT_CODE_SCALE_FACTOR_CHANGED, a)

	a.sceneView.Destroy()
	a.scene.Destroy()
	a.renderer.Destroy()
	a.surface.Destroy()
	for i := len(a.cleanups) - 1; i >= 0; i-- {
		a.cleanups[i]()
	}
	a.cleanups = nil
	core.LogInfo("editor session %s shut down after %d frames (%d skipped)", a.sessionID, a.framesShown, a.framesSkipped)
	return err
}

func (a *App) recreateSurface() error {
	if err := a.waitAll(); err != nil {
		return err
	}
	if err := a.surface.Resize(); err != nil {
		return errors.Wrap(err, "failed to recreate surface")
	}
	a.needsResize = false
	extent := a.surface.Extent()
	core.LogDebug("surface recreated at %dx%d", extent.Width, extent.Height)
	return nil
}

func (a *App) cleanupFinished() {
	kept := a.inFlight[:0]
	for _, f := range a.inFlight {
		done, err := f.Cleanup()
		if err != nil {
			core.LogWarn("dropping frame in flight: %v", err)
			continue
		}
		if !done {
			kept = append(kept, f)
		}
	}
	for i := len(kept); i < len(a.inFlight); i++ {
		a.inFlight[i] = nil
	}
	a.inFlight = kept
}

func (a *App) waitOldest() error {
	oldest := a.inFlight[0]
	a.inFlight[0] = nil
	a.inFlight = a.inFlight[1:]
	if err := oldest.Wait(0); err != nil {
		return errors.Wrap(err, "failed to wait for frame in flight")
	}
	return nil
}

func (a *App) waitAll() error {
	for len(a.inFlight) > 0 {
		if err := a.waitOldest(); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) onEvent(code core.SystemEventCode, sender interface{}, listener interface{}, data core.EventContext) bool {
	switch code {
	case core.EVENT_CODE_APPLICATION_QUIT:
		core.LogInfo("EVENT_CODE_APPLICATION_QUIT received, shutting down.")
		a.isRunning = false
		return true
	}
	return false
}

func (a *App) onResized(code core.SystemEventCode, sender interface{}, listener interface{}, data core.EventContext) bool {
	width, height := data.Data.U32[0], data.Data.U32[1]
	core.LogDebug("Window resize: %d, %d", width, height)

	// Handle minimization
	if width == 0 || height == 0 {
		if !a.isSuspended {
			core.LogInfo("Window minimized, suspending rendering.")
		}
		a.isSuspended = true
		return false
	}
	if a.isSuspended {
		core.LogInfo("Window restored, resuming rendering.")
		a.isSuspended = false
	}
	a.needsResize = true
	return false
}

func (a *App) onScaleFactor(code core.SystemEventCode, sender interface{}, listener interface{}, data core.EventContext) bool {
	a.scaleFactor = data.Data.F32[0]
	core.LogDebug("Window scale factor changed to %.2f", a.scaleFactor)
	// the framebuffer size follows the scale factor
	a.needsResize = true
	return false
}

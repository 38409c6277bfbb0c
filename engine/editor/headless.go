package editor

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/spaghettifunk/nova/engine/core"
	"github.com/spaghettifunk/nova/engine/renderer"
	"github.com/spaghettifunk/nova/engine/renderer/headless"
	"github.com/spaghettifunk/nova/engine/renderer/metadata"
	"github.com/spaghettifunk/nova/engine/renderer/systems"
)

// NewHeadlessApp builds the editor on the software device, presenting into an offscreen surface
// sized like the configured window.
func NewHeadlessApp(cfg *core.Config, bus *core.EventBus, opts ...renderer.RendererOption) (*App, error) {
	device := headless.NewDevice("nova-headless")
	surface, err := headless.NewSurface(device,
		metadata.Extent2D{Width: cfg.Window.Width, Height: cfg.Window.Height},
		cfg.Headless.SurfaceImages, metadata.DefaultImageFormat)
	if err != nil {
		device.Destroy()
		return nil, err
	}

	opts = append(configOptions(cfg), opts...)
	app, err := NewApp(device, surface, HeadlessWindow{}, bus, AppConfig{
		Scene:      sceneExtent(cfg),
		FrameLimit: cfg.Headless.Frames,
	}, opts...)
	if err != nil {
		surface.Destroy()
		device.Destroy()
		return nil, err
	}
	app.OnShutdown(device.Destroy)

	if cfg.Headless.CaptureDir != "" {
		capture, err := NewPNGCapture(cfg.Headless.CaptureDir, app.SessionID())
		if err != nil {
			_ = app.Shutdown()
			return nil, err
		}
		surface.OnPresent(capture.Write)
	}
	return app, nil
}

func sceneExtent(cfg *core.Config) metadata.Extent2D {
	return metadata.Extent2D{Width: cfg.Scene.Width, Height: cfg.Scene.Height}
}

// configOptions turns the renderer section of cfg into renderer options. Options passed by
// the caller come after them and win.
func configOptions(cfg *core.Config) []renderer.RendererOption {
	opts := []renderer.RendererOption{renderer.WithSecondaryBufferCount(cfg.Renderer.SecondaryBufferCount)}
	if cfg.Renderer.DrawSystem == core.DrawSystemClear {
		opts = append(opts, renderer.WithDrawSystem(systems.NewClearDrawSystem))
	}
	return opts
}

// PNGCapture writes every presented image of a session to a directory.
type PNGCapture struct {
	dir     string
	session uuid.UUID
	frame   int
}

func NewPNGCapture(dir string, session uuid.UUID) (*PNGCapture, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create capture directory %s", dir)
	}
	return &PNGCapture{dir: dir, session: session}, nil
}

// Path returns where the given frame is written.
func (c *PNGCapture) Path(frame int) string {
	return filepath.Join(c.dir, fmt.Sprintf("%s-%05d.png", c.session, frame))
}

func (c *PNGCapture) Write(index uint32, pixels *image.RGBA) error {
	path := c.Path(c.frame)
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "failed to create capture %s", path)
	}
	if err := png.Encode(f, pixels); err != nil {
		f.Close()
		return errors.Wrapf(err, "failed to encode capture %s", path)
	}
	if err := f.Close(); err != nil {
		return errors.Wrapf(err, "failed to close capture %s", path)
	}
	core.LogDebug("captured surface image %d to %s", index, path)
	c.frame++
	return nil
}

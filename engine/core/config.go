package core

import (
	"os"

	"github.com/cockroachdb/errors"
	"github.com/pelletier/go-toml/v2"
)

const (
	BackendVulkan   = "vulkan"
	BackendHeadless = "headless"
)

const (
	DrawSystemTriangle = "triangle"
	DrawSystemClear    = "clear"
)

type WindowConfig struct {
	Title  string `toml:"title"`
	Width  uint32 `toml:"width"`
	Height uint32 `toml:"height"`
	X      uint32 `toml:"x"`
	Y      uint32 `toml:"y"`
}

// SceneConfig sizes the intermediate image the scene is rendered into.
type SceneConfig struct {
	Width  uint32 `toml:"width"`
	Height uint32 `toml:"height"`
}

type RendererConfig struct {
	Backend              string `toml:"backend"`
	DrawSystem           string `toml:"draw_system"`
	SecondaryBufferCount int    `toml:"secondary_buffer_count"`
	PresentMode          string `toml:"present_mode"`
	VSync                bool   `toml:"vsync"`
	Validation           bool   `toml:"validation"`
}

type AssetsConfig struct {
	Dir       string `toml:"dir"`
	HotReload bool   `toml:"hot_reload"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

type HeadlessConfig struct {
	// Frames to render before exiting, 0 renders until interrupted.
	Frames        int    `toml:"frames"`
	CaptureDir    string `toml:"capture_dir"`
	SurfaceImages int    `toml:"surface_images"`
}

type Config struct {
	Window   WindowConfig   `toml:"window"`
	Scene    SceneConfig    `toml:"scene"`
	Renderer RendererConfig `toml:"renderer"`
	Assets   AssetsConfig   `toml:"assets"`
	Log      LogConfig      `toml:"log"`
	Headless HeadlessConfig `toml:"headless"`
}

func DefaultConfig() *Config {
	return &Config{
		Window: WindowConfig{
			Title:  "Nova-Engine",
			Width:  1280,
			Height: 720,
			X:      100,
			Y:      100,
		},
		Scene: SceneConfig{Width: 256, Height: 256},
		Renderer: RendererConfig{
			Backend:              BackendVulkan,
			DrawSystem:           DrawSystemTriangle,
			SecondaryBufferCount: 32,
			PresentMode:          "mailbox",
			Validation:           true,
		},
		Assets:   AssetsConfig{Dir: "assets", HotReload: true},
		Log:      LogConfig{Level: "debug"},
		Headless: HeadlessConfig{Frames: 120, SurfaceImages: 3},
	}
}

// LoadConfig reads a TOML file over the defaults. A missing file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			LogWarn("config file %s not found, using defaults", path)
			return cfg, nil
		}
		return nil, errors.Wrapf(err, "failed to read config %s", path)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "failed to parse config %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Renderer.Backend {
	case BackendVulkan, BackendHeadless:
	default:
		return errors.Wrapf(ErrInvalidConfig, "unknown renderer backend %q", c.Renderer.Backend)
	}
	switch c.Renderer.DrawSystem {
	case DrawSystemTriangle, DrawSystemClear:
	default:
		return errors.Wrapf(ErrInvalidConfig, "unknown draw system %q", c.Renderer.DrawSystem)
	}
	switch c.Renderer.PresentMode {
	case "mailbox", "immediate", "fifo":
	default:
		return errors.Wrapf(ErrInvalidConfig, "unknown present mode %q", c.Renderer.PresentMode)
	}
	if c.Renderer.SecondaryBufferCount < 1 {
		return errors.Wrapf(ErrInvalidConfig, "secondary_buffer_count must be positive, got %d", c.Renderer.SecondaryBufferCount)
	}
	if c.Window.Width == 0 || c.Window.Height == 0 {
		return errors.Wrapf(ErrInvalidConfig, "window size %dx%d is empty", c.Window.Width, c.Window.Height)
	}
	if c.Scene.Width == 0 || c.Scene.Height == 0 {
		return errors.Wrapf(ErrInvalidConfig, "scene size %dx%d is empty", c.Scene.Width, c.Scene.Height)
	}
	if c.Headless.Frames < 0 {
		return errors.Wrapf(ErrInvalidConfig, "headless frames must not be negative, got %d", c.Headless.Frames)
	}
	if c.Headless.SurfaceImages < 1 {
		return errors.Wrapf(ErrInvalidConfig, "headless surface_images must be positive, got %d", c.Headless.SurfaceImages)
	}
	return nil
}

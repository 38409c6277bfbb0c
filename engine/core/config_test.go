package core

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "editor.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfigOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
[renderer]
backend = "headless"
draw_system = "clear"
secondary_buffer_count = 4

[scene]
width = 512
height = 512

[headless]
frames = 3
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, BackendHeadless, cfg.Renderer.Backend)
	assert.Equal(t, DrawSystemClear, cfg.Renderer.DrawSystem)
	assert.Equal(t, 4, cfg.Renderer.SecondaryBufferCount)
	assert.Equal(t, uint32(512), cfg.Scene.Width)
	assert.Equal(t, 3, cfg.Headless.Frames)
	// untouched sections keep their defaults
	assert.Equal(t, "mailbox", cfg.Renderer.PresentMode)
	assert.Equal(t, uint32(1280), cfg.Window.Width)
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"backend", "[renderer]\nbackend = \"opengl\"\n"},
		{"draw system", "[renderer]\ndraw_system = \"cube\"\n"},
		{"present mode", "[renderer]\npresent_mode = \"relaxed\"\n"},
		{"secondary buffers", "[renderer]\nsecondary_buffer_count = 0\n"},
		{"window", "[window]\nwidth = 0\n"},
		{"scene", "[scene]\nheight = 0\n"},
		{"frames", "[headless]\nframes = -1\n"},
		{"surface images", "[headless]\nsurface_images = 0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.content))
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestLoadConfigMalformed(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, "[renderer\nbackend ="))
	assert.Error(t, err)
}

func TestSetLogLevel(t *testing.T) {
	require.NoError(t, SetLogLevel("INFO"))
	assert.ErrorIs(t, SetLogLevel("verbose"), ErrInvalidConfig)
	require.NoError(t, SetLogLevel("debug"))
}

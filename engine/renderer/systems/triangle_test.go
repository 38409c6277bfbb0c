package systems

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/nova/engine/assets"
	"github.com/spaghettifunk/nova/engine/renderer/headless"
	"github.com/spaghettifunk/nova/engine/renderer/metadata"
)

var spirv = []byte{
	0x03, 0x02, 0x23, 0x07,
	0x00, 0x00, 0x01, 0x00,
	0x00, 0x00, 0x00, 0x00,
	0x01, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00,
}

// poolAllocator hands out command buffers from a single pool.
type poolAllocator struct {
	pool metadata.CommandPool
}

func (a poolAllocator) AllocatePrimary(_ uint32, usage metadata.CommandBufferUsage) (metadata.PrimaryCommandBufferBuilder, error) {
	return a.pool.AllocatePrimary(usage)
}

func (a poolAllocator) AllocateSecondary(_ uint32, usage metadata.CommandBufferUsage, inheritance metadata.Subpass) (metadata.SecondaryCommandBufferBuilder, error) {
	return a.pool.AllocateSecondary(usage, inheritance)
}

// watchedShaders serves shaders from memory and lets tests fire change notifications.
type watchedShaders struct {
	mu       sync.Mutex
	code     map[string][]byte
	fail     bool
	loads    int
	watchers map[string][]func()
}

func newWatchedShaders() *watchedShaders {
	return &watchedShaders{
		code: map[string][]byte{
			TriangleVertexShader:   spirv,
			TriangleFragmentShader: spirv,
		},
		watchers: make(map[string][]func()),
	}
}

func (s *watchedShaders) LoadShader(name string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads++
	if s.fail {
		return nil, errors.New("shader failed to compile")
	}
	return s.code[name], nil
}

func (s *watchedShaders) Watch(name string, fn func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watchers[name] = append(s.watchers[name], fn)
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.watchers, name)
	}
}

func (s *watchedShaders) change(name string) {
	s.mu.Lock()
	fns := append([]func(){}, s.watchers[name]...)
	s.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func newTestSubpass(t *testing.T, d *headless.Device) (metadata.Subpass, metadata.Allocators) {
	t.Helper()
	rp, err := d.CreateRenderPass(metadata.RenderPassDescription{
		Attachments: []metadata.AttachmentDescription{
			{Format: metadata.DefaultImageFormat, Samples: 1, LoadOp: metadata.LoadOpClear, StoreOp: metadata.StoreOpStore},
			{Format: metadata.DepthFormat, Samples: 1, LoadOp: metadata.LoadOpClear, StoreOp: metadata.StoreOpDontCare},
		},
		Subpasses: []metadata.SubpassDescription{{ColorAttachments: []uint32{0}, DepthStencilAttachment: 1}},
	})
	require.NoError(t, err)
	pool, err := d.CreateCommandPool(0)
	require.NoError(t, err)
	return metadata.Subpass{RenderPass: rp}, metadata.Allocators{
		CommandBuffers: poolAllocator{pool: pool},
		Memory:         d.MemoryAllocator(),
	}
}

func TestTriangleDrawSystemRecordsSecondaryBuffer(t *testing.T) {
	d := headless.NewDevice("test")
	subpass, allocators := newTestSubpass(t, d)

	factory := NewTriangleDrawSystemFactory(StaticShaders{TriangleVertexShader: spirv, TriangleFragmentShader: spirv})
	ds, err := factory(d.GraphicsQueue(), subpass, allocators)
	require.NoError(t, err)
	assert.Equal(t, int64(1), d.Stats().PipelinesLive)

	cb, err := ds.Draw(metadata.Extent2D{Width: 64, Height: 64})
	require.NoError(t, err)
	assert.Equal(t, metadata.CommandBufferLevelSecondary, cb.Level())

	ds.(*TriangleDrawSystem).Destroy()
	assert.Zero(t, d.Stats().PipelinesLive)
}

func TestTriangleDrawSystemReloadsChangedShaders(t *testing.T) {
	d := headless.NewDevice("test")
	subpass, allocators := newTestSubpass(t, d)
	shaders := newWatchedShaders()

	ds, err := NewTriangleDrawSystem(d.GraphicsQueue(), subpass, allocators, shaders)
	require.NoError(t, err)
	defer ds.Destroy()
	assert.Equal(t, 2, shaders.loads)

	_, err = ds.Draw(metadata.Extent2D{Width: 8, Height: 8})
	require.NoError(t, err)
	assert.Equal(t, 2, shaders.loads, "no change, no reload")

	shaders.change(TriangleFragmentShader)
	shaders.change(TriangleVertexShader)
	_, err = ds.Draw(metadata.Extent2D{Width: 8, Height: 8})
	require.NoError(t, err)
	assert.Equal(t, 4, shaders.loads, "both shaders are reloaded once")
	assert.Equal(t, int64(1), d.Stats().PipelinesLive, "the old pipeline is destroyed")
}

func TestTriangleDrawSystemKeepsPipelineOnFailedReload(t *testing.T) {
	d := headless.NewDevice("test")
	subpass, allocators := newTestSubpass(t, d)
	shaders := newWatchedShaders()

	ds, err := NewTriangleDrawSystem(d.GraphicsQueue(), subpass, allocators, shaders)
	require.NoError(t, err)
	defer ds.Destroy()

	shaders.fail = true
	shaders.change(TriangleVertexShader)
	cb, err := ds.Draw(metadata.Extent2D{Width: 8, Height: 8})
	require.NoError(t, err)
	assert.NotNil(t, cb)
	assert.Equal(t, int64(1), d.Stats().PipelinesLive)
}

func TestTriangleDrawSystemStopsWatchingOnDestroy(t *testing.T) {
	d := headless.NewDevice("test")
	subpass, allocators := newTestSubpass(t, d)
	shaders := newWatchedShaders()

	ds, err := NewTriangleDrawSystem(d.GraphicsQueue(), subpass, allocators, shaders)
	require.NoError(t, err)
	assert.Len(t, shaders.watchers, 2)
	ds.Destroy()
	assert.Empty(t, shaders.watchers)
}

func TestTriangleDrawSystemMissingShader(t *testing.T) {
	d := headless.NewDevice("test")
	subpass, allocators := newTestSubpass(t, d)

	_, err := NewTriangleDrawSystem(d.GraphicsQueue(), subpass, allocators, StaticShaders{TriangleVertexShader: spirv})
	assert.ErrorIs(t, err, assets.ErrAssetNotFound)
	assert.Zero(t, d.Stats().PipelinesLive)
}

func TestEncodeVertices(t *testing.T) {
	data := encodeVertices(triangleVertices)
	require.Len(t, data, len(triangleVertices)*triangleVertexStride)
	assert.Equal(t, float32(-0.5), math.Float32frombits(binary.LittleEndian.Uint32(data[0:4])))
	// colour of the second vertex
	assert.Equal(t, float32(1), math.Float32frombits(binary.LittleEndian.Uint32(data[triangleVertexStride+12:triangleVertexStride+16])))
}

func TestAssetShaders(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "shaders"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "shaders", "triangle.vert.spv"), spirv, 0o644))
	am, err := assets.NewAssetManager(root)
	require.NoError(t, err)
	defer am.Close()

	src := AssetShaders{Assets: am}
	code, err := src.LoadShader(TriangleVertexShader)
	require.NoError(t, err)
	assert.Equal(t, spirv, code)

	_, err = src.LoadShader(TriangleFragmentShader)
	assert.ErrorIs(t, err, assets.ErrAssetNotFound)

	cancel := src.Watch(TriangleVertexShader, func() {})
	cancel()
}

package renderer

import (
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/nova/engine/assets"
	"github.com/spaghettifunk/nova/engine/renderer/future"
	"github.com/spaghettifunk/nova/engine/renderer/headless"
	"github.com/spaghettifunk/nova/engine/renderer/metadata"
	"github.com/spaghettifunk/nova/engine/renderer/systems"
)

var testShaders = systems.StaticShaders{
	systems.TriangleVertexShader:   {0x03, 0x02, 0x23, 0x07},
	systems.TriangleFragmentShader: {0x03, 0x02, 0x23, 0x07},
}

// emptyDrawSystem records secondary buffers without any draw call.
type emptyDrawSystem struct {
	queue      metadata.Queue
	subpass    metadata.Subpass
	allocators Allocators
	draws      int
}

func (s *emptyDrawSystem) Draw(viewport metadata.Extent2D) (metadata.CommandBuffer, error) {
	s.draws++
	b, err := s.allocators.CommandBuffers.AllocateSecondary(s.queue.FamilyIndex(), metadata.CommandBufferUsageOneTimeSubmit, s.subpass)
	if err != nil {
		return nil, err
	}
	return b.Build()
}

func emptyDrawSystemFactory(out **emptyDrawSystem) DrawSystemFactory {
	return func(queue metadata.Queue, subpass metadata.Subpass, allocators Allocators) (DrawSystem, error) {
		s := &emptyDrawSystem{queue: queue, subpass: subpass, allocators: allocators}
		if out != nil {
			*out = s
		}
		return s, nil
	}
}

func fillRed(t *testing.T, d *headless.Device, r *Renderer, view metadata.ImageView) {
	t.Helper()
	b, err := r.Allocators().CommandBuffers.AllocatePrimary(0, metadata.CommandBufferUsageOneTimeSubmit)
	require.NoError(t, err)
	b.ClearColorImage(view.Image(), [4]float32{1, 0, 0, 1})
	cb, err := b.Build()
	require.NoError(t, err)
	require.NoError(t, d.GraphicsQueue().Submit([]metadata.SubmitInfo{{CommandBuffers: []metadata.CommandBuffer{cb}}}, nil))
}

func TestRenderWithoutDrawsClearsToTransparentBlack(t *testing.T) {
	d := headless.NewDevice("test")
	var ds *emptyDrawSystem
	r, err := NewRenderer(d, WithDrawSystem(emptyDrawSystemFactory(&ds)))
	require.NoError(t, err)
	defer r.Destroy()

	view := newTargetView(t, d, 256, 256)
	fillRed(t, d, r, view)

	done, err := r.Render(future.Now(d), view)
	require.NoError(t, err)
	assert.True(t, done.Flushed())
	require.NoError(t, done.Wait(0))
	assert.Equal(t, 1, ds.draws)

	px := view.Image().(*headless.Image).Pixels()
	for _, v := range px.Pix {
		require.Zero(t, v)
	}
}

func TestRenderResizesDepthOnce(t *testing.T) {
	d := headless.NewDevice("test")
	r, err := NewRenderer(d, WithDrawSystem(emptyDrawSystemFactory(nil)))
	require.NoError(t, err)
	defer r.Destroy()
	fs := r.Pipeline().FrameSystem()

	done, err := r.Render(future.Now(d), newTargetView(t, d, 256, 256))
	require.NoError(t, err)
	require.NoError(t, done.Wait(0))
	generation := fs.DepthGeneration()

	done, err = r.Render(future.Now(d), newTargetView(t, d, 512, 512))
	require.NoError(t, err)
	require.NoError(t, done.Wait(0))
	assert.Equal(t, generation+1, fs.DepthGeneration())
}

func TestRenderChainsPriorWork(t *testing.T) {
	d := headless.NewDevice("test")
	r, err := NewRenderer(d, WithDrawSystem(emptyDrawSystemFactory(nil)))
	require.NoError(t, err)
	defer r.Destroy()
	view := newTargetView(t, d, 16, 16)

	first, err := r.Render(future.Now(d), view)
	require.NoError(t, err)
	second, err := r.Render(first, view)
	require.NoError(t, err)
	assert.True(t, first.Consumed())
	require.NoError(t, second.Wait(0))
	assert.Equal(t, int64(2), d.Stats().Submits)
	assert.Zero(t, d.Stats().FencesLive)
}

func TestRenderTriangle(t *testing.T) {
	d := headless.NewDevice("test")
	r, err := NewRenderer(d, WithShaders(testShaders), WithSecondaryBufferCount(4))
	require.NoError(t, err)
	defer r.Destroy()
	assert.Equal(t, metadata.DefaultImageFormat, r.ImageFormat())

	view := newTargetView(t, d, 64, 64)
	for i := 0; i < 10; i++ {
		done, err := r.Render(future.Now(d), view)
		require.NoError(t, err)
		require.NoError(t, done.Wait(0))
	}

	px := view.Image().(*headless.Image).Pixels()
	centre := px.RGBAAt(32, 32)
	assert.Equal(t, uint8(255), centre.A)
	assert.InDelta(t, 85, centre.R, 2)
	assert.InDelta(t, 85, centre.G, 2)
	assert.InDelta(t, 85, centre.B, 2)
	assert.Equal(t, color.RGBA{}, px.RGBAAt(0, 0))
	assert.Equal(t, 4, r.commandBuffers.SecondaryBuffersAvailable(0), "every secondary buffer went back to the pool")
}

func TestNewRendererNeedsDrawSystemOrShaders(t *testing.T) {
	d := headless.NewDevice("test")
	_, err := NewRenderer(d)
	assert.Error(t, err)

	_, err = NewRenderer(d, WithShaders(systems.StaticShaders{}))
	assert.ErrorIs(t, err, assets.ErrAssetNotFound)
}

package renderer

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/nova/engine/renderer/future"
	"github.com/spaghettifunk/nova/engine/renderer/headless"
	"github.com/spaghettifunk/nova/engine/renderer/metadata"
)

func newTestAllocators(d *headless.Device, secondaryBuffers int) (Allocators, *StandardCommandBufferAllocator) {
	cb := NewStandardCommandBufferAllocator(d, StandardCommandBufferAllocatorCreateInfo{SecondaryBufferCount: secondaryBuffers})
	return Allocators{CommandBuffers: cb, Memory: d.MemoryAllocator()}, cb
}

func newTargetView(t *testing.T, d *headless.Device, width, height uint32) metadata.ImageView {
	t.Helper()
	img, err := d.MemoryAllocator().CreateImage(metadata.ImageCreateInfo{
		Format: metadata.DefaultImageFormat,
		Extent: metadata.Extent3D{Width: width, Height: height, Depth: 1},
		Usage:  metadata.ImageUsageColorAttachment | metadata.ImageUsageTransferSrc | metadata.ImageUsageTransferDst,
	})
	require.NoError(t, err)
	view, err := d.CreateImageView(img)
	require.NoError(t, err)
	return view
}

func emptySecondary(t *testing.T, a Allocators, q metadata.Queue, subpass metadata.Subpass) metadata.CommandBuffer {
	t.Helper()
	b, err := a.CommandBuffers.AllocateSecondary(q.FamilyIndex(), metadata.CommandBufferUsageOneTimeSubmit, subpass)
	require.NoError(t, err)
	cb, err := b.Build()
	require.NoError(t, err)
	return cb
}

// runFrame walks a frame through its passes with an empty secondary buffer and flushes it.
func runFrame(t *testing.T, fs *FrameSystem, a Allocators, before *future.Future, target metadata.ImageView) *future.Future {
	t.Helper()
	frame, err := fs.Frame(before, target, mgl32.Ident4())
	require.NoError(t, err)

	pass, err := frame.NextPass()
	require.NoError(t, err)
	draw, ok := pass.(*DrawPass)
	require.True(t, ok, "first pass is the draw pass, got %T", pass)
	require.NoError(t, draw.Execute(emptySecondary(t, a, fs.queue, fs.DeferredSubpass())))

	pass, err = frame.NextPass()
	require.NoError(t, err)
	finished, ok := pass.(*FinishedPass)
	require.True(t, ok, "second pass is the finished pass, got %T", pass)

	flushed, err := finished.Future.ThenSignalFenceAndFlush()
	require.NoError(t, err)
	return flushed
}

func TestRenderPassLayout(t *testing.T) {
	d := headless.NewDevice("test")
	a, _ := newTestAllocators(d, 4)

	first, err := NewFrameSystem(d.GraphicsQueue(), metadata.DefaultImageFormat, a)
	require.NoError(t, err)
	defer first.Destroy()
	second, err := NewFrameSystem(d.GraphicsQueue(), metadata.DefaultImageFormat, a)
	require.NoError(t, err)
	defer second.Destroy()

	desc := first.RenderPass().Description()
	assert.True(t, desc.Equal(second.RenderPass().Description()))
	require.Len(t, desc.Attachments, 2)
	assert.Equal(t, metadata.DefaultImageFormat, desc.Attachments[0].Format)
	assert.Equal(t, metadata.LoadOpClear, desc.Attachments[0].LoadOp)
	assert.Equal(t, metadata.StoreOpStore, desc.Attachments[0].StoreOp)
	assert.Equal(t, metadata.FormatD16Unorm, desc.Attachments[1].Format)
	assert.Equal(t, metadata.LoadOpClear, desc.Attachments[1].LoadOp)
	assert.Equal(t, metadata.StoreOpDontCare, desc.Attachments[1].StoreOp)
	require.Len(t, desc.Subpasses, 1)
	assert.True(t, first.DeferredSubpass().HasDepth())
}

func TestDepthBufferFollowsTargetExtent(t *testing.T) {
	d := headless.NewDevice("test")
	a, _ := newTestAllocators(d, 4)
	fs, err := NewFrameSystem(d.GraphicsQueue(), metadata.DefaultImageFormat, a)
	require.NoError(t, err)
	defer fs.Destroy()

	assert.Equal(t, metadata.Extent2D{Width: 1, Height: 1}, fs.DepthExtent())
	assert.Zero(t, fs.DepthGeneration())

	small := newTargetView(t, d, 256, 256)
	require.NoError(t, runFrame(t, fs, a, future.Now(d), small).Wait(0))
	assert.Equal(t, metadata.Extent2D{Width: 256, Height: 256}, fs.DepthExtent())
	generation := fs.DepthGeneration()

	require.NoError(t, runFrame(t, fs, a, future.Now(d), small).Wait(0))
	assert.Equal(t, generation, fs.DepthGeneration(), "same extent keeps the depth buffer")

	large := newTargetView(t, d, 512, 512)
	require.NoError(t, runFrame(t, fs, a, future.Now(d), large).Wait(0))
	assert.Equal(t, generation+1, fs.DepthGeneration())
	assert.Equal(t, metadata.Extent2D{Width: 512, Height: 512}, fs.DepthExtent())

	// two targets plus the current depth buffer
	assert.Equal(t, int64(3), d.Stats().ImagesLive)
}

func TestDepthBufferOutlivesReallocationWhileInFlight(t *testing.T) {
	d := headless.NewDevice("test")
	a, _ := newTestAllocators(d, 4)
	fs, err := NewFrameSystem(d.GraphicsQueue(), metadata.DefaultImageFormat, a)
	require.NoError(t, err)
	defer fs.Destroy()

	inFlight := runFrame(t, fs, a, future.Now(d), newTargetView(t, d, 64, 64))
	next := runFrame(t, fs, a, future.Now(d), newTargetView(t, d, 128, 128))
	// the 64x64 depth buffer is still referenced by the first frame
	assert.Equal(t, int64(4), d.Stats().ImagesLive)

	require.NoError(t, inFlight.Wait(0))
	assert.Equal(t, int64(3), d.Stats().ImagesLive)
	require.NoError(t, next.Wait(0))
}

func TestFramePassSequence(t *testing.T) {
	d := headless.NewDevice("test")
	a, _ := newTestAllocators(d, 4)
	fs, err := NewFrameSystem(d.GraphicsQueue(), metadata.DefaultImageFormat, a)
	require.NoError(t, err)
	defer fs.Destroy()

	frame, err := fs.Frame(future.Now(d), newTargetView(t, d, 32, 16), mgl32.Ident4())
	require.NoError(t, err)

	pass, err := frame.NextPass()
	require.NoError(t, err)
	draw := pass.(*DrawPass)
	assert.Equal(t, metadata.Extent2D{Width: 32, Height: 16}, draw.ViewportDimensions())
	assert.Equal(t, mgl32.Ident4(), draw.WorldToFramebuffer())

	require.NoError(t, draw.Execute(emptySecondary(t, a, d.GraphicsQueue(), fs.DeferredSubpass())))
	assert.ErrorIs(t, draw.Execute(emptySecondary(t, a, d.GraphicsQueue(), fs.DeferredSubpass())), ErrPassAlreadyExecuted)

	pass, err = frame.NextPass()
	require.NoError(t, err)
	finished := pass.(*FinishedPass)
	assert.False(t, finished.Future.Flushed(), "the finished pass is not flushed yet")
	assert.ErrorIs(t, draw.Execute(emptySecondary(t, a, d.GraphicsQueue(), fs.DeferredSubpass())), ErrPassClosed)

	pass, err = frame.NextPass()
	require.NoError(t, err)
	assert.Nil(t, pass)
	assert.Nil(t, frame.Discard())

	flushed, err := finished.Future.ThenSignalFenceAndFlush()
	require.NoError(t, err)
	require.NoError(t, flushed.Wait(0))
}

func TestFrameRejectsMissingDraw(t *testing.T) {
	d := headless.NewDevice("test")
	a, _ := newTestAllocators(d, 4)
	fs, err := NewFrameSystem(d.GraphicsQueue(), metadata.DefaultImageFormat, a)
	require.NoError(t, err)
	defer fs.Destroy()

	before := future.Now(d)
	frame, err := fs.Frame(before, newTargetView(t, d, 8, 8), mgl32.Ident4())
	require.NoError(t, err)
	_, err = frame.NextPass()
	require.NoError(t, err)
	_, err = frame.NextPass()
	assert.ErrorIs(t, err, ErrPassNotExecuted)

	// the frame can still be abandoned, handing back its prior work
	returned := frame.Discard()
	assert.Same(t, before, returned)
	assert.False(t, returned.Consumed())
}

func TestFrameRejectsPrimaryBuffers(t *testing.T) {
	d := headless.NewDevice("test")
	a, _ := newTestAllocators(d, 4)
	fs, err := NewFrameSystem(d.GraphicsQueue(), metadata.DefaultImageFormat, a)
	require.NoError(t, err)
	defer fs.Destroy()

	frame, err := fs.Frame(future.Now(d), newTargetView(t, d, 8, 8), mgl32.Ident4())
	require.NoError(t, err)
	pass, err := frame.NextPass()
	require.NoError(t, err)

	b, err := a.CommandBuffers.AllocatePrimary(0, metadata.CommandBufferUsageOneTimeSubmit)
	require.NoError(t, err)
	cb, err := b.Build()
	require.NoError(t, err)
	assert.Error(t, pass.(*DrawPass).Execute(cb))
	assert.Error(t, pass.(*DrawPass).Execute(nil))
	frame.Discard()
}

func TestFrameInProgress(t *testing.T) {
	d := headless.NewDevice("test")
	a, _ := newTestAllocators(d, 4)
	fs, err := NewFrameSystem(d.GraphicsQueue(), metadata.DefaultImageFormat, a)
	require.NoError(t, err)
	defer fs.Destroy()

	target := newTargetView(t, d, 8, 8)
	frame, err := fs.Frame(future.Now(d), target, mgl32.Ident4())
	require.NoError(t, err)

	_, err = fs.Frame(future.Now(d), target, mgl32.Ident4())
	assert.ErrorIs(t, err, ErrFrameInProgress)

	before := frame.Discard()
	require.NotNil(t, before)
	require.NoError(t, runFrame(t, fs, a, before, target).Wait(0))
}

func TestFrameRejectsConsumedFuture(t *testing.T) {
	d := headless.NewDevice("test")
	a, _ := newTestAllocators(d, 4)
	fs, err := NewFrameSystem(d.GraphicsQueue(), metadata.DefaultImageFormat, a)
	require.NoError(t, err)
	defer fs.Destroy()

	before := future.Now(d)
	flushed, err := before.ThenSignalFenceAndFlush()
	require.NoError(t, err)
	require.NoError(t, flushed.Wait(0))

	_, err = fs.Frame(before, newTargetView(t, d, 8, 8), mgl32.Ident4())
	assert.ErrorIs(t, err, future.ErrFutureConsumed)
}

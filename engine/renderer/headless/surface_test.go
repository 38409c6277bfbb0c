package headless

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/nova/engine/renderer/metadata"
)

func TestSurfaceAcquireRoundRobin(t *testing.T) {
	d := NewDevice("test")
	s, err := NewSurface(d, metadata.Extent2D{Width: 32, Height: 16}, 3, metadata.DefaultImageFormat)
	require.NoError(t, err)
	defer s.Destroy()

	assert.Equal(t, 3, s.ImageCount())
	assert.Equal(t, metadata.Extent2D{Width: 32, Height: 16}, s.Extent())
	assert.Equal(t, metadata.Extent3D{Width: 32, Height: 16, Depth: 1}, s.ImageView(0).Image().Extent())

	var presented []uint32
	s.OnPresent(func(index uint32, pixels *image.RGBA) error {
		presented = append(presented, index)
		assert.Equal(t, image.Rect(0, 0, 32, 16), pixels.Bounds())
		return nil
	})

	for i := 0; i < 4; i++ {
		index, acquired, err := s.Acquire(0)
		require.NoError(t, err)
		done, err := s.Present(index, acquired, true)
		require.NoError(t, err)
		require.NoError(t, done.Wait(0))
	}
	assert.Equal(t, []uint32{0, 1, 2, 0}, presented)
	assert.Equal(t, 4, s.Presented())
	assert.Zero(t, d.Stats().SemaphoresLive)
	assert.Zero(t, d.Stats().FencesLive)
}

func TestSurfaceOutOfDate(t *testing.T) {
	d := NewDevice("test")
	s, err := NewSurface(d, metadata.Extent2D{Width: 32, Height: 32}, 2, metadata.DefaultImageFormat)
	require.NoError(t, err)
	defer s.Destroy()

	index, acquired, err := s.Acquire(0)
	require.NoError(t, err)
	s.SetExtent(metadata.Extent2D{Width: 64, Height: 48})

	// work already acquired still gets flushed
	done, err := s.Present(index, acquired, true)
	assert.ErrorIs(t, err, metadata.ErrOutOfDate)
	require.NotNil(t, done)
	require.NoError(t, done.Wait(0))
	assert.Zero(t, s.Presented())

	_, _, err = s.Acquire(0)
	assert.ErrorIs(t, err, metadata.ErrOutOfDate)

	require.NoError(t, s.Resize())
	assert.Equal(t, metadata.Extent2D{Width: 64, Height: 48}, s.Extent())
	assert.Equal(t, 2, s.ImageCount())
	assert.Equal(t, int64(2), d.Stats().ImagesLive)

	s.Invalidate()
	_, _, err = s.Acquire(0)
	assert.ErrorIs(t, err, metadata.ErrOutOfDate)
	require.NoError(t, s.Resize())
	_, _, err = s.Acquire(0)
	assert.NoError(t, err)
}

func TestSurfaceMinimized(t *testing.T) {
	d := NewDevice("test")
	s, err := NewSurface(d, metadata.Extent2D{Width: 32, Height: 32}, 2, metadata.DefaultImageFormat)
	require.NoError(t, err)
	defer s.Destroy()

	s.SetExtent(metadata.Extent2D{})
	require.NoError(t, s.Resize())
	assert.Zero(t, s.ImageCount())
	assert.Zero(t, d.Stats().ImagesLive)
	_, _, err = s.Acquire(0)
	assert.ErrorIs(t, err, metadata.ErrOutOfDate)

	s.SetExtent(metadata.Extent2D{Width: 16, Height: 16})
	require.NoError(t, s.Resize())
	assert.Equal(t, 2, s.ImageCount())
}

func TestSurfaceRejectsBadInput(t *testing.T) {
	d := NewDevice("test")
	_, err := NewSurface(d, metadata.Extent2D{Width: 8, Height: 8}, 0, metadata.DefaultImageFormat)
	assert.Error(t, err)

	s, err := NewSurface(d, metadata.Extent2D{Width: 8, Height: 8}, 1, metadata.DefaultImageFormat)
	require.NoError(t, err)
	_, acquired, err := s.Acquire(0)
	require.NoError(t, err)
	_, err = s.Present(5, acquired, false)
	assert.Error(t, err)
}

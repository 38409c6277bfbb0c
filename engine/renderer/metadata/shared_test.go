package metadata

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type countingDestroyer struct {
	destroyed int
}

func (c *countingDestroyer) Destroy() { c.destroyed++ }

func TestSharedDestroysOnLastRelease(t *testing.T) {
	value := &countingDestroyer{}
	s := NewShared(value)
	assert.Equal(t, 1, s.RefCount())

	s.Acquire()
	hold := s.Hold()
	assert.Equal(t, 3, s.RefCount())

	assert.False(t, s.Release())
	hold.Destroy()
	assert.Zero(t, value.destroyed)

	assert.True(t, s.Release())
	assert.Equal(t, 1, value.destroyed)
	assert.Zero(t, s.RefCount())

	// extra releases are ignored
	assert.False(t, s.Release())
	assert.Equal(t, 1, value.destroyed)
}

func TestSharedAcquireAfterReleasePanics(t *testing.T) {
	s := NewShared(&countingDestroyer{})
	s.Release()
	assert.Panics(t, func() { s.Acquire() })
}

func TestGetAligned(t *testing.T) {
	assert.Equal(t, uint64(0), GetAligned(0, 256))
	assert.Equal(t, uint64(256), GetAligned(1, 256))
	assert.Equal(t, uint64(256), GetAligned(256, 256))
	assert.Equal(t, uint64(512), GetAligned(257, 256))
}

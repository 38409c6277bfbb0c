package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTimeInfoFPS(t *testing.T) {
	clock := NewManualClock()
	ti := NewTimeInfo(clock)

	for i := 0; i < 9; i++ {
		clock.Advance(100 * time.Millisecond)
		ti.Update()
		assert.Zero(t, ti.FPS(), "fps is stale until the first full second")
	}

	clock.Advance(100 * time.Millisecond)
	ti.Update()
	assert.InDelta(t, 10.0, ti.FPS(), 1e-4)
	ms, frames := ti.Elapsed()
	assert.Zero(t, ms)
	assert.Zero(t, frames)
	assert.Equal(t, uint64(10), ti.FrameCount())
	assert.InDelta(t, 100.0, ti.DeltaTime(), 1e-4)
}

func TestTimeInfoKeepsFPSBetweenWindows(t *testing.T) {
	clock := NewManualClock()
	ti := NewTimeInfo(clock)
	for i := 0; i < 4; i++ {
		clock.Advance(250 * time.Millisecond)
		ti.Update()
	}
	assert.InDelta(t, 4.0, ti.FPS(), 1e-4)

	clock.Advance(500 * time.Millisecond)
	ti.Update()
	assert.InDelta(t, 4.0, ti.FPS(), 1e-4)
	ms, frames := ti.Elapsed()
	assert.InDelta(t, 500.0, ms, 1e-4)
	assert.Equal(t, float32(1), frames)
}

func TestTimeInfoDropsWholeSeconds(t *testing.T) {
	clock := NewManualClock()
	ti := NewTimeInfo(clock)
	clock.Advance(2*time.Second + 40*time.Millisecond)
	ti.Update()
	assert.InDelta(t, 40.0, ti.DeltaTime(), 1e-4)
}

func TestTimeInfoAverage(t *testing.T) {
	clock := NewManualClock()
	ti := NewTimeInfo(clock)
	for i := 0; i < avgCount; i++ {
		clock.Advance(20 * time.Millisecond)
		ti.Update()
	}
	assert.InDelta(t, 20.0, ti.AverageFrameTime(), 1e-3)
}

func TestStopwatch(t *testing.T) {
	clock := NewManualClock()
	sw := NewStopwatch(clock)

	clock.Advance(time.Second)
	sw.Update()
	assert.Zero(t, sw.Elapsed(), "not started")

	sw.Start()
	clock.Advance(30 * time.Millisecond)
	sw.Stop()
	clock.Advance(time.Second)
	sw.Update()
	assert.Equal(t, 30*time.Millisecond, sw.Elapsed())
}

package core

import "time"

const nanosPerMilli float32 = 1_000_000

const avgCount = 30

// TimeInfo tracks the time between frames and a frames-per-second value that is
// recomputed once per second of accumulated frame time.
//
// Only the sub-second part of the interval between two updates is taken into account,
// so a stall longer than a second shows up as its remainder.
type TimeInfo struct {
	clock    Clock
	prevTime time.Duration

	dt       float32
	fps      float32
	frameSum float32
	dtSum    float32
	frames   uint64

	msTimes    [avgCount]float32
	avgCounter int
	msAvg      float32
}

// NewTimeInfo starts measuring from now. A nil clock uses the high resolution timer.
func NewTimeInfo(clock Clock) *TimeInfo {
	if clock == nil {
		clock = HRClock{}
	}
	return &TimeInfo{clock: clock, prevTime: clock.Now()}
}

// Update samples the clock; call it once per frame.
func (t *TimeInfo) Update() {
	now := t.clock.Now()
	t.frameSum++
	t.frames++

	t.dt = float32((now-t.prevTime)%time.Second) / nanosPerMilli
	t.dtSum += t.dt
	if t.dtSum >= 1000 {
		t.fps = 1000 / (t.dtSum / t.frameSum)
		t.dtSum = 0
		t.frameSum = 0
	}

	t.msTimes[t.avgCounter] = t.dt
	if t.avgCounter == avgCount-1 {
		var sum float32
		for _, ms := range t.msTimes {
			sum += ms
		}
		t.msAvg = sum / avgCount
	}
	t.avgCounter = (t.avgCounter + 1) % avgCount

	t.prevTime = now
}

// FPS returns the value computed at the end of the last full second, zero before that.
func (t *TimeInfo) FPS() float32 {
	return t.fps
}

// DeltaTime returns the duration of the last frame in milliseconds.
func (t *TimeInfo) DeltaTime() float32 {
	return t.dt
}

// AverageFrameTime returns the mean frame time in milliseconds over the last 30 frames.
func (t *TimeInfo) AverageFrameTime() float32 {
	return t.msAvg
}

// FrameCount returns the number of updates since creation.
func (t *TimeInfo) FrameCount() uint64 {
	return t.frames
}

// Elapsed returns the accumulated milliseconds and frames of the current one-second window.
func (t *TimeInfo) Elapsed() (ms float32, frames float32) {
	return t.dtSum, t.frameSum
}

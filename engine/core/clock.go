package core

import (
	"sync"
	"time"

	"github.com/loov/hrtime"
)

// Clock is a monotonic time source. Only differences between two samples are meaningful.
type Clock interface {
	Now() time.Duration
}

// HRClock samples the high resolution timer of the platform.
type HRClock struct{}

func (HRClock) Now() time.Duration {
	return hrtime.Now()
}

// ManualClock only advances when told to.
type ManualClock struct {
	mu  sync.Mutex
	now time.Duration
}

func NewManualClock() *ManualClock {
	return &ManualClock{}
}

func (c *ManualClock) Now() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now += d
	c.mu.Unlock()
}

// Stopwatch measures the time elapsed since Start on top of a Clock.
type Stopwatch struct {
	clock     Clock
	startTime time.Duration
	elapsed   time.Duration
	running   bool
}

func NewStopwatch(clock Clock) *Stopwatch {
	if clock == nil {
		clock = HRClock{}
	}
	return &Stopwatch{clock: clock}
}

// Updates the elapsed time. Should be called just before checking elapsed time.
// Has no effect on non-started stopwatches.
func (s *Stopwatch) Update() {
	if s.running {
		s.elapsed = s.clock.Now() - s.startTime
	}
}

// Starts the stopwatch. Resets elapsed time.
func (s *Stopwatch) Start() {
	s.startTime = s.clock.Now()
	s.elapsed = 0
	s.running = true
}

// Stops the stopwatch. Does not reset elapsed time.
func (s *Stopwatch) Stop() {
	s.Update()
	s.running = false
}

func (s *Stopwatch) Elapsed() time.Duration {
	return s.elapsed
}

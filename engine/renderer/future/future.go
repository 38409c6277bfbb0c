// Package future models GPU work that was recorded or submitted but is not known to be complete.
//
// A Future is a move-only token: every chaining call consumes the receiver and returns the
// successor, so a batch of commands can never be submitted twice. Resources referenced by the
// work are attached to the token and destroyed once the completion fence signals.
package future

import (
	"time"

	"github.com/cockroachdb/errors"

	"github.com/spaghettifunk/nova/engine/renderer/metadata"
)

var (
	// ErrFutureConsumed is returned when a Future is used after a consuming call moved it.
	ErrFutureConsumed = errors.New("future already consumed")
	// ErrNotFlushed is returned when waiting on work that was never submitted.
	ErrNotFlushed = errors.New("future has not been flushed")
	// ErrQueueMismatch is returned when submitted work is chained onto a different queue.
	ErrQueueMismatch = errors.New("cannot chain submitted work onto a different queue")
)

type state int

const (
	// statePending holds batches that still need to be submitted.
	statePending state = iota
	// stateFlushed work was submitted; fence (if any) signals its completion.
	stateFlushed
	// stateDone work is known complete and its resources were released.
	stateDone
	stateConsumed
)

type Future struct {
	device metadata.Device
	queue  metadata.Queue
	state  state

	waits   []metadata.SemaphoreWait
	batches []metadata.SubmitInfo
	fence   metadata.Fence

	// resources stay alive until the work completes.
	resources []metadata.Destroyer
}

// Now returns a future for work that is already complete.
func Now(device metadata.Device) *Future {
	return &Future{device: device, state: statePending}
}

// FromSemaphore returns a future whose successors wait on sem at stage before executing,
// e.g. a swapchain image acquisition. keepAlive is destroyed once that work completed.
func FromSemaphore(device metadata.Device, sem metadata.Semaphore, stage metadata.PipelineStage, keepAlive ...metadata.Destroyer) *Future {
	return &Future{
		device:    device,
		state:     statePending,
		waits:     []metadata.SemaphoreWait{{Semaphore: sem, Stage: stage}},
		resources: keepAlive,
	}
}

// move transfers the receiver's state into a new Future and invalidates the receiver.
func (f *Future) move() (*Future, error) {
	if f == nil || f.state == stateConsumed {
		return nil, ErrFutureConsumed
	}
	next := *f
	*f = Future{state: stateConsumed}
	return &next, nil
}

// Queue returns the queue the work runs on, or nil if no work was chained yet.
func (f *Future) Queue() metadata.Queue {
	return f.queue
}

func (f *Future) Consumed() bool {
	return f == nil || f.state == stateConsumed
}

// Flushed reports whether the work was submitted to its queue.
func (f *Future) Flushed() bool {
	return f.state == stateFlushed || f.state == stateDone
}

// ThenExecute chains cb on queue after the receiver's work and consumes the receiver.
// keepAlive resources are destroyed once the chained work completes.
func (f *Future) ThenExecute(queue metadata.Queue, cb metadata.CommandBuffer, keepAlive ...metadata.Destroyer) (*Future, error) {
	if queue == nil {
		return nil, errors.AssertionFailedf("future: nil queue")
	}
	if f.Consumed() {
		return nil, ErrFutureConsumed
	}
	if f.state == stateFlushed && f.queue != queue {
		return nil, ErrQueueMismatch
	}

	next, err := f.move()
	if err != nil {
		return nil, err
	}

	switch next.state {
	case stateDone:
		next.queue = nil
	case stateFlushed:
		// Submission order on one queue plus the render pass and barrier dependencies
		// recorded in the command buffers order the new batch after the flushed one.
		if next.fence != nil {
			next.resources = append(next.resources, next.fence)
			next.fence = nil
		}
		next.batches = nil
	}
	next.state = statePending

	if next.queue != nil && next.queue != queue {
		// hand the pending work over to the other queue through a semaphore
		sem, err := next.device.CreateSemaphore()
		if err != nil {
			next.release()
			return nil, errors.Wrap(err, "failed to create queue transfer semaphore")
		}
		last := &next.batches[len(next.batches)-1]
		last.SignalSemaphores = append(last.SignalSemaphores, sem)
		next.resources = append(next.resources, sem)
		if err := next.flush(); err != nil {
			next.release()
			return nil, err
		}
		next.waits = append(next.waits, metadata.SemaphoreWait{Semaphore: sem, Stage: metadata.PipelineStageAllCommands})
	}

	next.queue = queue
	if len(next.batches) == 0 {
		next.batches = append(next.batches, metadata.SubmitInfo{WaitSemaphores: next.waits})
		next.waits = nil
	}
	last := &next.batches[len(next.batches)-1]
	last.CommandBuffers = append(last.CommandBuffers, cb)
	next.resources = append(next.resources, keepAlive...)
	return next, nil
}

// flush submits the pending batches without a fence.
func (f *Future) flush() error {
	if len(f.batches) == 0 {
		return nil
	}
	if err := f.queue.Submit(f.batches, nil); err != nil {
		return errors.Wrap(err, "failed to submit command buffers")
	}
	f.batches = nil
	return nil
}

// ThenSignalFenceAndFlush submits the pending work with a completion fence and consumes the receiver.
// The returned future can be waited upon.
func (f *Future) ThenSignalFenceAndFlush() (*Future, error) {
	next, err := f.move()
	if err != nil {
		return nil, err
	}
	if next.state != statePending {
		return next, nil
	}
	if err := next.submitWithFence(nil); err != nil {
		next.release()
		return nil, err
	}
	return next, nil
}

// ThenSignalSemaphoreAndFlush submits the pending work, signaling both a new semaphore and a
// completion fence, and consumes the receiver. The semaphore is what a presentation waits on;
// it belongs to the returned future.
func (f *Future) ThenSignalSemaphoreAndFlush() (*Future, metadata.Semaphore, error) {
	if f.Consumed() {
		return nil, nil, ErrFutureConsumed
	}
	sem, err := f.device.CreateSemaphore()
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to create present semaphore")
	}
	next, err := f.move()
	if err != nil {
		sem.Destroy()
		return nil, nil, err
	}
	if next.state != statePending {
		// nothing recorded since the last flush, signal on an empty batch
		next.state = statePending
		if next.fence != nil {
			next.resources = append(next.resources, next.fence)
			next.fence = nil
		}
	}
	next.resources = append(next.resources, sem)
	if err := next.submitWithFence(sem); err != nil {
		next.release()
		return nil, nil, err
	}
	return next, sem, nil
}

func (f *Future) submitWithFence(signal metadata.Semaphore) error {
	if f.queue == nil {
		f.queue = f.device.GraphicsQueue()
	}
	if len(f.batches) == 0 {
		f.batches = append(f.batches, metadata.SubmitInfo{WaitSemaphores: f.waits})
		f.waits = nil
	}
	if signal != nil {
		last := &f.batches[len(f.batches)-1]
		last.SignalSemaphores = append(last.SignalSemaphores, signal)
	}

	fence, err := f.device.CreateFence(false)
	if err != nil {
		return errors.Wrap(err, "failed to create completion fence")
	}
	if err := f.queue.Submit(f.batches, fence); err != nil {
		fence.Destroy()
		return errors.Wrap(err, "failed to submit command buffers")
	}
	f.batches = nil
	f.fence = fence
	f.state = stateFlushed
	return nil
}

// Wait blocks until the submitted work completed, then releases the attached resources.
// A zero timeout waits forever.
func (f *Future) Wait(timeout time.Duration) error {
	if f.Consumed() {
		return ErrFutureConsumed
	}
	switch f.state {
	case stateDone:
		return nil
	case statePending:
		if len(f.batches) > 0 {
			return ErrNotFlushed
		}
		f.complete()
		return nil
	}
	if f.fence != nil {
		if timeout == 0 {
			timeout = time.Duration(1<<63 - 1)
		}
		if err := f.fence.Wait(timeout); err != nil {
			return errors.Wrap(err, "failed to wait for completion fence")
		}
	}
	f.complete()
	return nil
}

// Cleanup releases the attached resources if the work already completed, without blocking.
// It reports whether the work is complete.
func (f *Future) Cleanup() (bool, error) {
	if f.Consumed() {
		return false, ErrFutureConsumed
	}
	switch f.state {
	case stateDone:
		return true, nil
	case statePending:
		return false, nil
	}
	if f.fence != nil {
		signaled, err := f.fence.Signaled()
		if err != nil {
			return false, errors.Wrap(err, "failed to query completion fence")
		}
		if !signaled {
			return false, nil
		}
	}
	f.complete()
	return true, nil
}

func (f *Future) complete() {
	f.release()
	f.state = stateDone
}

func (f *Future) release() {
	if f.fence != nil {
		f.fence.Destroy()
		f.fence = nil
	}
	// newest first, so framebuffers go before the images they reference
	for i := len(f.resources) - 1; i >= 0; i-- {
		f.resources[i].Destroy()
	}
	f.resources = nil
	f.waits = nil
	f.batches = nil
}

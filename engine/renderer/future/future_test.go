package future_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/nova/engine/renderer/future"
	"github.com/spaghettifunk/nova/engine/renderer/headless"
	"github.com/spaghettifunk/nova/engine/renderer/metadata"
)

type recorder struct {
	name string
	log  *[]string
}

func (r recorder) Destroy() { *r.log = append(*r.log, r.name) }

// transferQueue is a second queue handle in front of the same headless queue.
type transferQueue struct {
	metadata.Queue
	batches [][]metadata.SubmitInfo
}

func (q *transferQueue) Submit(batches []metadata.SubmitInfo, fence metadata.Fence) error {
	q.batches = append(q.batches, batches)
	return q.Queue.Submit(batches, fence)
}

func primary(t *testing.T, d *headless.Device) metadata.CommandBuffer {
	t.Helper()
	pool, err := d.CreateCommandPool(0)
	require.NoError(t, err)
	b, err := pool.AllocatePrimary(metadata.CommandBufferUsageOneTimeSubmit)
	require.NoError(t, err)
	cb, err := b.Build()
	require.NoError(t, err)
	return cb
}

func TestNowIsComplete(t *testing.T) {
	d := headless.NewDevice("test")
	f := future.Now(d)
	require.NoError(t, f.Wait(0))
	done, err := f.Cleanup()
	require.NoError(t, err)
	assert.True(t, done)
}

func TestThenExecuteConsumesReceiver(t *testing.T) {
	d := headless.NewDevice("test")
	f := future.Now(d)

	next, err := f.ThenExecute(d.GraphicsQueue(), primary(t, d))
	require.NoError(t, err)
	assert.True(t, f.Consumed())
	assert.False(t, next.Consumed())
	assert.Equal(t, d.GraphicsQueue(), next.Queue())

	_, err = f.ThenExecute(d.GraphicsQueue(), primary(t, d))
	assert.ErrorIs(t, err, future.ErrFutureConsumed)
	assert.ErrorIs(t, f.Wait(0), future.ErrFutureConsumed)
	_, err = f.ThenSignalFenceAndFlush()
	assert.ErrorIs(t, err, future.ErrFutureConsumed)

	assert.False(t, next.Flushed())
	assert.ErrorIs(t, next.Wait(0), future.ErrNotFlushed)
	assert.Zero(t, d.Stats().Submits)
}

func TestThenExecuteNeedsQueue(t *testing.T) {
	d := headless.NewDevice("test")
	_, err := future.Now(d).ThenExecute(nil, primary(t, d))
	assert.Error(t, err)
}

func TestFlushReleasesResourcesNewestFirst(t *testing.T) {
	d := headless.NewDevice("test")
	var log []string

	next, err := future.Now(d).ThenExecute(d.GraphicsQueue(), primary(t, d), recorder{"a", &log}, recorder{"b", &log})
	require.NoError(t, err)
	flushed, err := next.ThenSignalFenceAndFlush()
	require.NoError(t, err)
	assert.True(t, flushed.Flushed())
	assert.Equal(t, int64(1), d.Stats().Submits)
	assert.Equal(t, int64(1), d.Stats().FencesLive)
	assert.Empty(t, log)

	require.NoError(t, flushed.Wait(0))
	assert.Equal(t, []string{"b", "a"}, log)
	assert.Zero(t, d.Stats().FencesLive)

	// waiting again is a no-op
	require.NoError(t, flushed.Wait(0))
	assert.Len(t, log, 2)
}

func TestCleanupPolls(t *testing.T) {
	d := headless.NewDevice("test")
	var log []string

	pending, err := future.Now(d).ThenExecute(d.GraphicsQueue(), primary(t, d), recorder{"cb", &log})
	require.NoError(t, err)
	done, err := pending.Cleanup()
	require.NoError(t, err)
	assert.False(t, done)

	flushed, err := pending.ThenSignalFenceAndFlush()
	require.NoError(t, err)
	done, err = flushed.Cleanup()
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, []string{"cb"}, log)

	done, err = flushed.Cleanup()
	require.NoError(t, err)
	assert.True(t, done)
	assert.Len(t, log, 1)
}

func TestSignalSemaphoreAndFlush(t *testing.T) {
	d := headless.NewDevice("test")
	next, err := future.Now(d).ThenExecute(d.GraphicsQueue(), primary(t, d))
	require.NoError(t, err)

	done, sem, err := next.ThenSignalSemaphoreAndFlush()
	require.NoError(t, err)
	assert.NotNil(t, sem)
	assert.True(t, next.Consumed())
	assert.Equal(t, int64(1), d.Stats().SemaphoresLive)

	require.NoError(t, done.Wait(0))
	assert.Zero(t, d.Stats().SemaphoresLive, "the semaphore belongs to the returned future")
}

func TestFromSemaphoreWaitsBeforeExecuting(t *testing.T) {
	d := headless.NewDevice("test")
	q := &transferQueue{Queue: d.GraphicsQueue()}
	sem, err := d.CreateSemaphore()
	require.NoError(t, err)

	acquired := future.FromSemaphore(d, sem, metadata.PipelineStageColorAttachmentOutput, sem)
	next, err := acquired.ThenExecute(q, primary(t, d))
	require.NoError(t, err)
	flushed, err := next.ThenSignalFenceAndFlush()
	require.NoError(t, err)

	require.Len(t, q.batches, 1)
	require.Len(t, q.batches[0], 1)
	assert.Equal(t, []metadata.SemaphoreWait{{Semaphore: sem, Stage: metadata.PipelineStageColorAttachmentOutput}}, q.batches[0][0].WaitSemaphores)

	require.NoError(t, flushed.Wait(0))
	assert.Zero(t, d.Stats().SemaphoresLive)
}

func TestChainAfterFlush(t *testing.T) {
	d := headless.NewDevice("test")
	q := d.GraphicsQueue()

	first, err := future.Now(d).ThenExecute(q, primary(t, d))
	require.NoError(t, err)
	flushed, err := first.ThenSignalFenceAndFlush()
	require.NoError(t, err)

	second, err := flushed.ThenExecute(q, primary(t, d))
	require.NoError(t, err)
	done, err := second.ThenSignalFenceAndFlush()
	require.NoError(t, err)
	require.NoError(t, done.Wait(0))

	assert.Equal(t, int64(2), d.Stats().Submits)
	assert.Zero(t, d.Stats().FencesLive)
}

func TestFlushedWorkStaysOnItsQueue(t *testing.T) {
	d := headless.NewDevice("test")
	first, err := future.Now(d).ThenExecute(d.GraphicsQueue(), primary(t, d))
	require.NoError(t, err)
	flushed, err := first.ThenSignalFenceAndFlush()
	require.NoError(t, err)

	_, err = flushed.ThenExecute(&transferQueue{Queue: d.GraphicsQueue()}, primary(t, d))
	assert.ErrorIs(t, err, future.ErrQueueMismatch)
	assert.False(t, flushed.Consumed())
	require.NoError(t, flushed.Wait(0))
}

func TestPendingWorkMovesToAnotherQueue(t *testing.T) {
	d := headless.NewDevice("test")
	other := &transferQueue{Queue: d.GraphicsQueue()}

	pending, err := future.Now(d).ThenExecute(d.GraphicsQueue(), primary(t, d))
	require.NoError(t, err)
	moved, err := pending.ThenExecute(other, primary(t, d))
	require.NoError(t, err)
	assert.Equal(t, int64(1), d.Stats().Submits, "pending work is flushed on its own queue first")
	assert.Equal(t, int64(1), d.Stats().SemaphoresLive)

	done, err := moved.ThenSignalFenceAndFlush()
	require.NoError(t, err)
	require.Len(t, other.batches, 1)
	assert.Len(t, other.batches[0][0].WaitSemaphores, 1)

	require.NoError(t, done.Wait(0))
	assert.Equal(t, int64(2), d.Stats().Submits)
	assert.Zero(t, d.Stats().SemaphoresLive)
}

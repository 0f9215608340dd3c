package concurrency_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-appserver/internal/concurrency"
)

func TestLockFreeQueueBounds(t *testing.T) {
	q := concurrency.NewLockFreeQueue[int](3)
	require.Equal(t, 4, q.Cap())
	for i := 0; i < 4; i++ {
		require.True(t, q.Enqueue(i))
	}
	assert.False(t, q.Enqueue(99))
	for i := 0; i < 4; i++ {
		v, ok := q.Dequeue()
		require.True(t, ok)
		assert.Equal(t, i, v)
	}
	_, ok := q.Dequeue()
	assert.False(t, ok)
}

func TestLockFreeQueueConcurrentProducers(t *testing.T) {
	q := concurrency.NewLockFreeQueue[int](4096)
	var wg sync.WaitGroup
	for p := 0; p < 8; p++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for i := 0; i < 256; i++ {
				for !q.Enqueue(base + i) {
				}
			}
		}(p * 1000)
	}
	wg.Wait()
	assert.Equal(t, 8*256, q.Len())
}

func TestQueueDrainKeepsOrder(t *testing.T) {
	q := concurrency.NewQueue[string]()
	q.Push("a")
	q.Push("b")
	q.Push("c")
	v, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, "a", v)
	assert.Equal(t, []string{"b", "c"}, q.Drain())
	assert.Nil(t, q.Drain())
	assert.Equal(t, 0, q.Len())
}

func TestExecutorRunsTasks(t *testing.T) {
	e := concurrency.NewExecutor(4, nil)
	defer e.Close()

	var n atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 5000; i++ {
		wg.Add(1)
		require.NoError(t, e.Submit(func() {
			n.Add(1)
			wg.Done()
		}))
	}
	wg.Wait()
	assert.Equal(t, int64(5000), n.Load())
	assert.Equal(t, 4, e.NumWorkers())
}

func TestExecutorRecoversPanics(t *testing.T) {
	recovered := make(chan any, 1)
	e := concurrency.NewExecutor(1, func(v any, _ []byte) { recovered <- v })
	defer e.Close()

	require.NoError(t, e.Submit(func() { panic("boom") }))
	select {
	case v := <-recovered:
		assert.Equal(t, "boom", v)
	case <-time.After(time.Second):
		t.Fatal("panic not reported")
	}

	done := make(chan struct{})
	require.NoError(t, e.Submit(func() { close(done) }))
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker died after panic")
	}
}

func TestExecutorClosed(t *testing.T) {
	e := concurrency.NewExecutor(2, nil)
	e.Close()
	e.Close()
	assert.ErrorIs(t, e.Submit(func() {}), concurrency.ErrExecutorClosed)
}

func TestExecutorBlockedWorkerDoesNotStallQueue(t *testing.T) {
	exec := concurrency.NewExecutor(2, nil)
	t.Cleanup(exec.Close)

	release := make(chan struct{})
	defer close(release)
	started := make(chan struct{})
	require.NoError(t, exec.Submit(func() {
		close(started)
		<-release
	}))
	<-started

	var done atomic.Int64
	for i := 0; i < 10; i++ {
		require.NoError(t, exec.Submit(func() { done.Add(1) }))
	}
	require.Eventually(t, func() bool { return done.Load() == 10 }, time.Second, 5*time.Millisecond,
		"tasks queued behind the blocked worker must be taken by its peer")
}

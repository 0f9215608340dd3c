// File: internal/concurrency/executor.go
// Package concurrency implements the worker pool used for off-loop work.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Executor dispatches tasks across worker goroutines, using lock-free local
// queues and a blocking global queue fallback. An idle worker steals from
// the other local queues, so a task never waits behind a blocked worker
// while another worker is free. Tasks still queued at Close are abandoned.

package concurrency

import (
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"
)

// TaskFunc is a unit of work to execute.
type TaskFunc func()

// PanicHandler receives values recovered from panicking tasks.
type PanicHandler func(value any, stack []byte)

// Executor manages a fixed pool of worker goroutines.
type Executor struct {
	localQueues []*LockFreeQueue[TaskFunc]
	wake        []chan struct{}
	steal       chan struct{} // one token per submit, taken by any idle worker
	globalQueue chan TaskFunc
	closeCh     chan struct{}
	closed      atomic.Bool
	next        atomic.Uint64
	wg          sync.WaitGroup
	onPanic     PanicHandler

	totalTasks     atomic.Int64
	completedTasks atomic.Int64
	panics         atomic.Int64
}

// NewExecutor starts numWorkers workers; numWorkers <= 0 selects runtime.NumCPU().
func NewExecutor(numWorkers int, onPanic PanicHandler) *Executor {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	e := &Executor{
		localQueues: make([]*LockFreeQueue[TaskFunc], numWorkers),
		wake:        make([]chan struct{}, numWorkers),
		steal:       make(chan struct{}, numWorkers),
		globalQueue: make(chan TaskFunc, numWorkers*4),
		closeCh:     make(chan struct{}),
		onPanic:     onPanic,
	}
	for i := 0; i < numWorkers; i++ {
		e.localQueues[i] = NewLockFreeQueue[TaskFunc](1024)
		e.wake[i] = make(chan struct{}, 1)
	}
	e.wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		w := &worker{id: i, executor: e}
		go w.run()
	}
	return e
}

// Submit enqueues a task, blocking only when every queue is full.
func (e *Executor) Submit(task func()) error {
	if e.closed.Load() {
		return ErrExecutorClosed
	}
	e.totalTasks.Add(1)
	idx := int(e.next.Add(1) % uint64(len(e.localQueues)))
	if e.localQueues[idx].Enqueue(task) {
		select {
		case e.wake[idx] <- struct{}{}:
		default:
		}
		select {
		case e.steal <- struct{}{}:
		default:
		}
		return nil
	}
	select {
	case e.globalQueue <- task:
		return nil
	case <-e.closeCh:
		return ErrExecutorClosed
	}
}

// NumWorkers returns the worker count.
func (e *Executor) NumWorkers() int {
	return len(e.localQueues)
}

// Close stops the workers and waits for running tasks to return.
func (e *Executor) Close() {
	if e.closed.CompareAndSwap(false, true) {
		close(e.closeCh)
		e.wg.Wait()
	}
}

// Stats returns basic executor metrics.
func (e *Executor) Stats() map[string]int64 {
	total := e.totalTasks.Load()
	done := e.completedTasks.Load()
	return map[string]int64{
		"total_tasks":     total,
		"completed_tasks": done,
		"pending_tasks":   total - done,
		"panics":          e.panics.Load(),
		"num_workers":     int64(e.NumWorkers()),
	}
}

type worker struct {
	id       int
	executor *Executor
}

func (w *worker) run() {
	e := w.executor
	defer e.wg.Done()
	for {
		if task, ok := w.next(); ok {
			w.safeExecute(task)
			continue
		}
		select {
		case task := <-e.globalQueue:
			w.safeExecute(task)
		case <-e.wake[w.id]:
		case <-e.steal:
		case <-e.closeCh:
			return
		}
	}
}

// next takes from the worker's own queue first, then from its peers.
func (w *worker) next() (TaskFunc, bool) {
	queues := w.executor.localQueues
	for i := range queues {
		if task, ok := queues[(w.id+i)%len(queues)].Dequeue(); ok {
			return task, true
		}
	}
	return nil, false
}

func (w *worker) safeExecute(task TaskFunc) {
	e := w.executor
	defer func() {
		if r := recover(); r != nil {
			e.panics.Add(1)
			if e.onPanic != nil {
				e.onPanic(r, debug.Stack())
			}
		}
		e.completedTasks.Add(1)
	}()
	task()
}

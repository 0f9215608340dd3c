// Package concurrency
// Author: momentics <momentics@gmail.com>
//
// Off-loop execution primitives for the server engine: a worker-pool
// executor with per-worker lock-free queues and an unbounded
// multi-producer FIFO used for the admission and outbound queues.
package concurrency

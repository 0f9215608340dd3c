// File: scheduler/scheduler.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Package scheduler provides the policies the engine uses to fan out one
// tick of per-connection message handling.
package scheduler

import (
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/momentics/hioload-appserver/api"
	"github.com/momentics/hioload-appserver/session"
)

var (
	_ api.Scheduler = Sequential{}
	_ api.Scheduler = (*Parallel)(nil)
)

// Sequential handles connections one after another on the calling goroutine.
type Sequential struct{}

// ScheduleHandling implements api.Scheduler.
func (Sequential) ScheduleHandling(conns []*session.Connection, handle func(*session.Connection)) {
	for _, c := range conns {
		handle(c)
	}
}

// Parallel runs one task per connection, at most Limit at a time.
// A connection is never handled by two tasks in the same call, so its
// messages keep their arrival order.
type Parallel struct {
	limit int
}

// NewParallel returns a Parallel scheduler. limit <= 0 selects GOMAXPROCS.
func NewParallel(limit int) *Parallel {
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}
	return &Parallel{limit: limit}
}

// Limit returns the concurrency bound.
func (p *Parallel) Limit() int { return p.limit }

// ScheduleHandling implements api.Scheduler. It returns after every task finished.
func (p *Parallel) ScheduleHandling(conns []*session.Connection, handle func(*session.Connection)) {
	switch len(conns) {
	case 0:
		return
	case 1:
		handle(conns[0])
		return
	}
	var g errgroup.Group
	g.SetLimit(p.limit)
	for _, c := range conns {
		g.Go(func() error {
			handle(c)
			return nil
		})
	}
	_ = g.Wait()
}

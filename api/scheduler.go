// Package api
// Author: momentics
//
// Scheduler contract for distributing one tick of per-connection work.

package api

import "github.com/momentics/hioload-appserver/session"

// Scheduler runs handle once for every connection in conns.
//
// Implementations must invoke handle at most once per connection per call,
// may run different connections concurrently, and must return only after
// every invocation has completed.
type Scheduler interface {
	ScheduleHandling(conns []*session.Connection, handle func(*session.Connection))
}

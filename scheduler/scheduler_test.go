package scheduler_test

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-appserver/api"
	"github.com/momentics/hioload-appserver/scheduler"
	"github.com/momentics/hioload-appserver/session"
)

func newConns(t *testing.T, n, perConn int) []*session.Connection {
	t.Helper()
	conns := make([]*session.Connection, n)
	for i := range conns {
		a, b := net.Pipe()
		t.Cleanup(func() { a.Close(); b.Close() })
		c := session.NewConnection(a, nil, nil)
		for j := 0; j < perConn; j++ {
			c.Enqueue(session.NewMessage([]byte(fmt.Sprintf("%d", j)), time.Now()))
		}
		conns[i] = c
	}
	return conns
}

func drainInOrder(t *testing.T, seen *sync.Map) func(*session.Connection) {
	return func(c *session.Connection) {
		var got []string
		for {
			m, ok := c.Dequeue()
			if !ok {
				break
			}
			got = append(got, string(m.Data))
		}
		seen.Store(c.ID(), got)
	}
}

func checkOrder(t *testing.T, conns []*session.Connection, seen *sync.Map, perConn int) {
	t.Helper()
	for _, c := range conns {
		v, ok := seen.Load(c.ID())
		require.True(t, ok, "connection %s not handled", c.ID())
		got := v.([]string)
		require.Len(t, got, perConn)
		for j, s := range got {
			assert.Equal(t, fmt.Sprintf("%d", j), s)
		}
	}
}

func TestSchedulersPreserveOrderAndCompleteAll(t *testing.T) {
	for name, s := range map[string]api.Scheduler{
		"sequential": scheduler.Sequential{},
		"parallel":   scheduler.NewParallel(4),
	} {
		t.Run(name, func(t *testing.T) {
			conns := newConns(t, 32, 20)
			var seen sync.Map
			s.ScheduleHandling(conns, drainInOrder(t, &seen))
			checkOrder(t, conns, &seen, 20)
		})
	}
}

func TestParallelIsBarrier(t *testing.T) {
	conns := newConns(t, 8, 0)
	var done atomic.Int32
	scheduler.NewParallel(2).ScheduleHandling(conns, func(*session.Connection) {
		time.Sleep(5 * time.Millisecond)
		done.Add(1)
	})
	assert.Equal(t, int32(8), done.Load())
}

func TestParallelRespectsLimit(t *testing.T) {
	conns := newConns(t, 16, 0)
	var cur, peak atomic.Int32
	scheduler.NewParallel(3).ScheduleHandling(conns, func(*session.Connection) {
		n := cur.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		cur.Add(-1)
	})
	assert.LessOrEqual(t, peak.Load(), int32(3))
}

func TestParallelDefaultLimit(t *testing.T) {
	assert.Positive(t, scheduler.NewParallel(0).Limit())
}

// Package benchmarks
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Performance benchmarks for hioload-appserver components.

package benchmarks

import (
	"bytes"
	"net"
	"sync"
	"testing"

	"github.com/momentics/hioload-appserver/framing"
	"github.com/momentics/hioload-appserver/http1"
	"github.com/momentics/hioload-appserver/internal/concurrency"
	"github.com/momentics/hioload-appserver/protocol"
	"github.com/momentics/hioload-appserver/scheduler"
	"github.com/momentics/hioload-appserver/session"
)

var request = []byte("POST /api/items?sort=asc HTTP/1.1\r\n" +
	"Host: bench.local\r\n" +
	"User-Agent: bench\r\n" +
	"Cookie: a=1; b=2\r\n" +
	"Content-Length: 16\r\n\r\n" +
	"0123456789abcdef")

// BenchmarkLockFreeQueue measures contended enqueue/dequeue.
func BenchmarkLockFreeQueue(b *testing.B) {
	q := concurrency.NewLockFreeQueue[int](1024)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			if !q.Enqueue(i) {
				q.Dequeue()
			}
			i++
		}
	})
}

// BenchmarkExecutorSubmit measures task hand-off to the worker pool.
func BenchmarkExecutorSubmit(b *testing.B) {
	exec := concurrency.NewExecutor(4, nil)
	defer exec.Close()
	var wg sync.WaitGroup

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		wg.Add(1)
		if err := exec.Submit(wg.Done); err != nil {
			b.Fatal(err)
		}
	}
	wg.Wait()
}

// BenchmarkParseRequest parses a request delivered in one piece.
func BenchmarkParseRequest(b *testing.B) {
	b.SetBytes(int64(len(request)))
	b.ReportAllocs()
	p := http1.NewRequestParser()
	for i := 0; i < b.N; i++ {
		p.Reset()
		if done, err := p.Feed(request); err != nil || !done {
			b.Fatal(done, err)
		}
	}
}

// BenchmarkParseRequestFragmented feeds the request in 7-byte pieces.
func BenchmarkParseRequestFragmented(b *testing.B) {
	b.SetBytes(int64(len(request)))
	p := http1.NewRequestParser()
	for i := 0; i < b.N; i++ {
		p.Reset()
		for off := 0; off < len(request); off += 7 {
			end := min(off+7, len(request))
			if _, err := p.Feed(request[off:end]); err != nil {
				b.Fatal(err)
			}
		}
		if !p.Done() {
			b.Fatal("incomplete")
		}
	}
}

// BenchmarkWebSocketCodec encodes and decodes a masked 1 KiB frame.
func BenchmarkWebSocketCodec(b *testing.B) {
	payload := bytes.Repeat([]byte{'x'}, 1024)
	enc := protocol.ClientEncoder()
	b.SetBytes(int64(len(payload)))
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		wire, err := enc.Binary(payload)
		if err != nil {
			b.Fatal(err)
		}
		if _, _, err := protocol.Decode(wire, protocol.DefaultMaxPayload); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkFraming measures frame encoding into a reused buffer.
func BenchmarkFraming(b *testing.B) {
	payload := bytes.Repeat([]byte{'y'}, 512)
	buf := make([]byte, 0, framing.PrefixSize+len(payload))
	b.SetBytes(int64(len(payload)))
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		buf = framing.AppendFrame(buf[:0], payload)
	}
	if len(buf) != framing.PrefixSize+len(payload) {
		b.Fatal("bad frame length")
	}
}

// BenchmarkParallelScheduler fans one tick of work out over 256 connections.
func BenchmarkParallelScheduler(b *testing.B) {
	conns := make([]*session.Connection, 256)
	for i := range conns {
		a, z := net.Pipe()
		defer a.Close()
		defer z.Close()
		conns[i] = session.NewConnection(a, nil, nil)
	}
	s := scheduler.NewParallel(0)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s.ScheduleHandling(conns, func(c *session.Connection) { _ = c.Pending() })
	}
}

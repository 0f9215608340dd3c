// File: server/pipeline.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Affinity-aware dispatch of inbound messages through the handler pipeline.

package server

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/momentics/hioload-appserver/api"
	"github.com/momentics/hioload-appserver/session"
)

// dispatchPending hands every connection with queued messages to the scheduler.
func (e *Engine) dispatchPending(ctx context.Context) {
	var ready []*session.Connection
	for _, c := range e.Connections() {
		if c.Pending() > 0 {
			ready = append(ready, c)
		}
	}
	if len(ready) == 0 {
		return
	}
	e.sched.ScheduleHandling(ready, func(c *session.Connection) {
		for {
			m, ok := c.Dequeue()
			if !ok {
				return
			}
			e.dispatch(ctx, c, m)
		}
	})
}

// dispatch routes one message. A connection bound to a handler goes to that
// handler's HandleReceivedMessage only; otherwise the pre stage and then the
// main stage run in pipeline order until a handler claims the message.
func (e *Engine) dispatch(ctx context.Context, c *session.Connection, m *session.Message) {
	_, span := e.tracer.Start(ctx, "pipeline.dispatch",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("conn.id", c.ID()),
			attribute.Int("message.size", len(m.Data)),
		))
	defer span.End()

	if owner, ok := c.Affinity(); ok {
		if h, isHandler := owner.(api.Handler); isHandler {
			span.SetAttributes(attribute.Bool("affinity", true), attribute.String("handler", h.Name()))
			e.claim(span, c, h.HandleReceivedMessage, m)
			return
		}
		c.ClearAffinity()
	}

	for _, h := range e.handlers {
		if e.claim(span, c, h.PreHandleReceivedMessage, m) {
			span.SetAttributes(attribute.String("handler", h.Name()), attribute.String("stage", "pre"))
			return
		}
	}
	for _, h := range e.handlers {
		if e.claim(span, c, h.HandleReceivedMessage, m) {
			span.SetAttributes(attribute.String("handler", h.Name()), attribute.String("stage", "handle"))
			return
		}
	}
	span.AddEvent("unclaimed")
}

// claim runs one callback. A panicking handler counts as having claimed the
// message so no other handler sees a half-processed frame.
func (e *Engine) claim(span trace.Span, c *session.Connection, fn func(*session.Connection, *session.Message) (bool, error), m *session.Message) bool {
	var claimed bool
	err := guard(func() error {
		var err error
		claimed, err = fn(c, m)
		return err
	})
	if err == nil {
		return claimed
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	e.handleException(err, c)
	var pe *api.PanicError
	return claimed || errors.As(err, &pe)
}

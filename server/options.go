// File: server/options.go
// Package server defines functional options for the Engine.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"github.com/momentics/hioload-appserver/api"
)

// Option customizes engine initialization.
type Option func(*Engine)

// WithHandlers appends protocol handlers in pipeline order.
func WithHandlers(h ...api.Handler) Option {
	return func(e *Engine) { e.handlers = append(e.handlers, h...) }
}

// WithExceptionHandlers appends exception handlers in chain order.
func WithExceptionHandlers(h ...api.ExceptionHandler) Option {
	return func(e *Engine) { e.exceptionHandlers = append(e.exceptionHandlers, h...) }
}

// WithUsageMonitors appends monitors ticked at the end of every tick.
func WithUsageMonitors(m ...api.UsageMonitor) Option {
	return func(e *Engine) { e.monitors = append(e.monitors, m...) }
}

// WithScheduler overrides the policy chosen by Config.Scheduler.
func WithScheduler(s api.Scheduler) Option {
	return func(e *Engine) { e.sched = s }
}

// WithExecutor overrides the executor running frame reads.
// The engine closes it on shutdown.
func WithExecutor(x api.Executor) Option {
	return func(e *Engine) { e.exec = x }
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithTracerProvider sets the provider for dispatch spans. The global
// provider is used otherwise.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(e *Engine) { e.tracer = tp.Tracer(tracerName) }
}

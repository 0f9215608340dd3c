// control/hotreload.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Re-reads the configuration file on demand and hands the result to
// registered hooks. Only settings that are safe to change on a running
// engine should be applied by hooks; the engine configuration itself is
// fixed once Run starts.

package control

import (
	"context"
	"log/slog"
	"os"
	"slices"
	"sync"

	"github.com/momentics/hioload-appserver/logging"
)

// Reloader reloads a configuration file.
type Reloader struct {
	path string
	log  *slog.Logger

	mu    sync.Mutex
	hooks []func(*FileConfig)
}

// NewReloader watches path.
func NewReloader(path string, log *slog.Logger) *Reloader {
	return &Reloader{path: path, log: logging.Component(log, "reload")}
}

// OnReload registers a hook called with every successfully loaded file.
func (r *Reloader) OnReload(fn func(*FileConfig)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks = append(r.hooks, fn)
}

// Reload loads the file and runs hooks synchronously in registration
// order. A file that fails to load leaves the running settings untouched.
func (r *Reloader) Reload() error {
	cfg, err := LoadConfig(r.path)
	if err != nil {
		return err
	}
	r.mu.Lock()
	hooks := slices.Clone(r.hooks)
	r.mu.Unlock()
	for _, fn := range hooks {
		fn(cfg)
	}
	return nil
}

// Watch reloads on every signal until ctx is done.
func (r *Reloader) Watch(ctx context.Context, signals <-chan os.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-signals:
			if err := r.Reload(); err != nil {
				r.log.Error("config reload failed", slog.String("path", r.path), slog.Any("err", err))
				continue
			}
			r.log.Info("config reloaded", slog.String("path", r.path), slog.String("signal", sig.String()))
		}
	}
}

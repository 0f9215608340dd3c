// File: cmd/hioload-appserver/serve.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/momentics/hioload-appserver/control"
	"github.com/momentics/hioload-appserver/handlers/httphandler"
	"github.com/momentics/hioload-appserver/handlers/wshandler"
	"github.com/momentics/hioload-appserver/logging"
	"github.com/momentics/hioload-appserver/server"
)

type serveFlags struct {
	configPath  string
	addr        string
	certFile    string
	keyFile     string
	maxConns    int
	workers     int
	scheduler   string
	logLevel    string
	logFormat   string
	metricsAddr string
}

func serveCmd() *cobra.Command {
	var f serveFlags

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the app server",
		Long: `Run the app server with the HTTP and WebSocket pipeline.

Settings come from the YAML file given by --config, then from flags.
SIGHUP re-reads the file and applies the new log level.

Examples:
  hioload-appserver serve --addr :9000
  hioload-appserver serve --config app.yaml --metrics-addr 127.0.0.1:9090`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadServeConfig(cmd, f)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg, f.configPath, cmd.ErrOrStderr())
		},
	}

	fl := cmd.Flags()
	fl.StringVarP(&f.configPath, "config", "c", "", "YAML configuration file")
	fl.StringVarP(&f.addr, "addr", "a", "", "listen address (default :9000)")
	fl.StringVar(&f.certFile, "tls-cert", "", "TLS certificate file; enables TLS with --tls-key")
	fl.StringVar(&f.keyFile, "tls-key", "", "TLS private key file")
	fl.IntVar(&f.maxConns, "max-connections", 0, "connection limit, 0 for unlimited")
	fl.IntVar(&f.workers, "workers", 0, "executor workers for reads and TLS handshakes")
	fl.StringVar(&f.scheduler, "scheduler", "", "message scheduling: parallel or sequential")
	fl.StringVar(&f.logLevel, "log-level", "", "debug, info, warn or error")
	fl.StringVar(&f.logFormat, "log-format", "", "text or json")
	fl.StringVar(&f.metricsAddr, "metrics-addr", "", "admin listener for /metrics, /healthz and /debug/state")
	return cmd
}

// loadServeConfig reads the file, if any, and applies the flags that were set.
func loadServeConfig(cmd *cobra.Command, f serveFlags) (*control.FileConfig, error) {
	cfg := control.DefaultFileConfig()
	if f.configPath != "" {
		var err error
		if cfg, err = control.LoadConfig(f.configPath); err != nil {
			return nil, err
		}
	}
	changed := cmd.Flags().Changed
	if changed("addr") {
		cfg.Server.ListenAddr = f.addr
	}
	if changed("tls-cert") || changed("tls-key") {
		if cfg.Server.TLS == nil {
			cfg.Server.TLS = &server.TLSConfig{}
		}
		cfg.Server.TLS.CertFile = f.certFile
		cfg.Server.TLS.KeyFile = f.keyFile
	}
	if changed("max-connections") {
		cfg.Server.MaxConnections = f.maxConns
	}
	if changed("workers") {
		cfg.Server.Workers = f.workers
	}
	if changed("scheduler") {
		cfg.Server.Scheduler = f.scheduler
	}
	if changed("log-level") {
		cfg.Logging.Level = f.logLevel
	}
	if changed("log-format") {
		cfg.Logging.Format = f.logFormat
	}
	if changed("metrics-addr") {
		cfg.Metrics.Enabled = f.metricsAddr != ""
		cfg.Metrics.Addr = f.metricsAddr
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// app is the assembled server.
type app struct {
	engine   *server.Engine
	ws       *wshandler.Handler
	http     *httphandler.Handler
	registry *prometheus.Registry
	probes   *control.DebugProbes
}

func buildApp(cfg *control.FileConfig, log *slog.Logger) (*app, error) {
	ws := wshandler.New(cfg.WebSocket, wshandler.WithLogger(log))
	ws.AddModule(&chatModule{ws: ws})
	hh := httphandler.New(cfg.HTTP,
		httphandler.WithLogger(log),
		httphandler.WithUpgrader(ws),
		httphandler.WithRequestLoggers(httphandler.SlogLogger{Log: log}),
		httphandler.WithModules(echoModule{}))

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	mon := control.NewPrometheusMonitor(control.WithRegistry(reg), control.WithNamespace(cfg.Metrics.Namespace))

	srvCfg := cfg.Server
	e, err := server.New(&srvCfg,
		server.WithLogger(log),
		server.WithHandlers(ws, hh),
		server.WithUsageMonitors(mon))
	if err != nil {
		return nil, err
	}
	hh.AddModule(statusModule{engine: e})

	probes := control.NewDebugProbes()
	control.RegisterEngineProbes(probes, e)
	control.RegisterPlatformProbes(probes)
	probes.RegisterProbe("websocket.sessions", func() any { return len(ws.Connections()) })
	probes.RegisterProbe("http.pending", func() any { return hh.PendingCount() })

	return &app{engine: e, ws: ws, http: hh, registry: reg, probes: probes}, nil
}

func runServe(ctx context.Context, cfg *control.FileConfig, configPath string, logOut io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	lv := new(slog.LevelVar)
	log := logging.New(cfg.LoggingSettings(logOut, lv))

	a, err := buildApp(cfg, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if configPath != "" {
		r := control.NewReloader(configPath, log)
		r.OnReload(func(c *control.FileConfig) { lv.Set(logging.ParseLevel(c.Logging.Level)) })
		hup := make(chan os.Signal, 1)
		signal.Notify(hup, syscall.SIGHUP)
		defer signal.Stop(hup)
		go r.Watch(ctx, hup)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.engine.Run(gctx) })
	if cfg.Metrics.Enabled {
		admin := &http.Server{
			Addr:              cfg.Metrics.Addr,
			Handler:           control.NewAdminRouter(a.engine, a.registry, a.probes),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			log.Info("admin listener started", slog.String("addr", admin.Addr))
			if err := admin.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return admin.Shutdown(sctx)
		})
	}
	return g.Wait()
}

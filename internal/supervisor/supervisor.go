// Package supervisor wires together the registry, resolver, proxy
// front-end, control-plane server, idle sweeper, and signal handling
// into the running oxidux daemon (spec.md §4.7, §5).
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/oxidux/oxidux/internal/app"
	"github.com/oxidux/oxidux/internal/config"
	"github.com/oxidux/oxidux/internal/control"
	"github.com/oxidux/oxidux/internal/events"
	"github.com/oxidux/oxidux/internal/metrics"
	"github.com/oxidux/oxidux/internal/proxy"
	"github.com/oxidux/oxidux/internal/tmux"
)

// shutdownDeadline bounds Registry.Shutdown, per spec.md §4.7 step 2
// ("a bounded overall deadline (~10s)").
const shutdownDeadline = 10 * time.Second

// fifoSubdir is where per-process output FIFOs are created, named
// "<app>_<proc>.pipe" by internal/process (spec.md §6).
const fifoSubdir = "fifos"

// fileConfigSource adapts internal/config's on-disk loader to
// app.ConfigSource, standing in for the external config-loader
// collaborator from the resolver's point of view (spec.md §1/§4.3).
type fileConfigSource struct {
	configDir string
	logger    *slog.Logger
}

func (s fileConfigSource) LoadApps() ([]config.App, error) {
	return config.LoadApps(s.configDir, s.logger)
}

// Daemon is the fully wired oxidux process: registry, resolver, proxy
// front-end, control-plane server, metrics, and the background idle
// sweeper.
type Daemon struct {
	global   config.Global
	registry *app.Registry
	resolver *app.Resolver
	bus      *events.Bus
	metrics  *metrics.Collector

	proxyServer   *proxy.Server
	httpServer    *http.Server
	controlServer *control.Server
	runner        tmux.Runner

	logger *slog.Logger

	shutdownOnce sync.Once
	doneCh       chan struct{}
}

// New constructs a Daemon from global configuration and the initial
// set of apps read from disk. It binds the control socket but does not
// accept on it, and it does not acquire the HTTP listener; Run does both.
func New(global config.Global, initialApps []config.App, logger *slog.Logger) (*Daemon, error) {
	if logger == nil {
		logger = slog.Default()
	}
	config.ApplyDefaults(&global)

	if err := os.MkdirAll(global.ConfigDir, 0o755); err != nil {
		return nil, fmt.Errorf("supervisor: create config dir %s: %w", global.ConfigDir, err)
	}
	fifoDir := filepath.Join(global.ConfigDir, fifoSubdir)
	if err := os.MkdirAll(fifoDir, 0o755); err != nil {
		return nil, fmt.Errorf("supervisor: create fifo dir %s: %w", fifoDir, err)
	}

	bus := events.NewBus(logger)
	runner := tmux.New(config.TmuxSocket)
	registry := app.New(global, runner, fifoDir, bus, logger)

	for _, cfg := range initialApps {
		if _, err := registry.AddApp(cfg); err != nil {
			return nil, fmt.Errorf("supervisor: register app %q: %w", cfg.Name, err)
		}
	}

	resolver := app.NewResolver(registry, fileConfigSource{configDir: global.ConfigDir, logger: logger}, logger)

	m := metrics.New()
	metrics.Wire(bus, m)
	m.SetBuildInfo("dev", "go")

	proxySrv := proxy.NewServer(proxy.Config{
		Resolver: resolver,
		Registry: registry,
		Domain:   global.Domain,
		Metrics:  m,
		Logger:   logger,
	})

	socketPath := filepath.Join(global.ConfigDir, control.SocketName)
	controlSrv, err := control.NewServer(socketPath, registry, logger)
	if err != nil {
		return nil, err
	}

	return &Daemon{
		global:        global,
		registry:      registry,
		resolver:      resolver,
		bus:           bus,
		metrics:       m,
		proxyServer:   proxySrv,
		httpServer:    &http.Server{Handler: proxySrv},
		controlServer: controlSrv,
		runner:        runner,
		logger:        logger,
		doneCh:        make(chan struct{}),
	}, nil
}

// Registry exposes the daemon's app registry, mainly for tests.
func (d *Daemon) Registry() *app.Registry { return d.registry }

// Run acquires the HTTP listener, starts the control-plane acceptor
// and idle sweeper, installs the SIGINT handler, and blocks until
// shutdown completes (spec.md §4.4.2, §4.7).
func (d *Daemon) Run(ctx context.Context) error {
	ln, err := proxy.AcquireListener(d.global.ProxyPort)
	if err != nil {
		return err
	}
	d.logger.Info("proxy listening", "addr", ln.Addr().String())

	sweepCtx, cancelSweep := context.WithCancel(ctx)
	defer cancelSweep()
	go app.MonitorIdleTimeout(sweepCtx, d.registry, d.bus, time.Duration(d.global.IdleTimeoutSecs)*time.Second, app.DefaultSweepInterval, d.logger)

	go func() {
		if err := d.controlServer.Serve(); err != nil {
			d.logger.Error("control server stopped", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go d.watchSignals(sigCh)

	serveErr := make(chan error, 1)
	go func() { serveErr <- d.httpServer.Serve(ln) }()

	select {
	case <-d.doneCh:
		return nil
	case err := <-serveErr:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("supervisor: proxy server: %w", err)
		}
		return nil
	}
}

// watchSignals implements spec.md §4.7: the first SIGINT/SIGTERM runs
// the shutdown sequence once; any signal delivered after that hard-exits
// immediately rather than waiting on a shutdown that may be stuck.
func (d *Daemon) watchSignals(sigCh <-chan os.Signal) {
	<-sigCh
	d.logger.Info("shutdown signal received")
	go d.shutdown()

	<-sigCh
	d.logger.Warn("second shutdown signal received, exiting immediately")
	os.Exit(1)
}

func (d *Daemon) shutdown() {
	d.shutdownOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownDeadline)
		defer cancel()

		if err := d.registry.Shutdown(shutdownDeadline); err != nil {
			d.logger.Error("registry shutdown failed", "error", err)
		}

		if err := d.controlServer.Close(); err != nil {
			d.logger.Warn("control server close failed", "error", err)
		}

		if err := d.runner.KillServer(); err != nil {
			d.logger.Warn("tmux kill-server failed", "error", err)
		}

		if err := d.httpServer.Shutdown(ctx); err != nil {
			d.logger.Warn("proxy server shutdown failed", "error", err)
		}

		close(d.doneCh)
	})
}

// Shutdown triggers the same sequence as a signal, for programmatic
// callers (tests, control-plane-initiated full stop).
func (d *Daemon) Shutdown() {
	d.shutdown()
}

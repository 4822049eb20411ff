// Package daemon runs serve mode: a plugin host with the Arcade plugin
// loaded, an HTTP listener in front of it, a scheduled catalog refresh and
// a config file watcher.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/harun/arcade/internal/config"
	"github.com/harun/arcade/internal/metrics"
	"github.com/harun/arcade/internal/observability"
	"github.com/harun/arcade/internal/tracing"
	"github.com/harun/arcade/pkg/arcadeplugin"
	"github.com/harun/arcade/pkg/engine"
	"github.com/harun/arcade/pkg/gateway"
	"github.com/harun/arcade/pkg/plugin"
)

const shutdownTimeout = 5 * time.Second

// Options configures a Daemon.
type Options struct {
	Config *config.Config
	// ConfigPath is watched for changes when set.
	ConfigPath string
	// Remote replaces the HTTP client the engine would build.
	Remote  engine.Remote
	Logger  zerolog.Logger
	Metrics *metrics.Metrics
}

// Daemon represents the Arcade serve-mode process
type Daemon struct {
	opts    Options
	logger  zerolog.Logger
	metrics *metrics.Metrics
	host    *plugin.Host
	plugin  *arcadeplugin.Plugin
	limiter *gateway.Limiter

	mu        sync.RWMutex
	cfg       *config.Config
	handler   http.Handler
	scheduler *cron.Cron
	refreshID cron.EntryID
	watcher   *config.Watcher
	server    *http.Server
	listener  net.Listener
	serveErr  chan error
	startTime time.Time
	running   bool

	tracingEnabled bool
	auditEnabled   bool
}

// New creates a daemon. Nothing is started until Start.
func New(opts Options) (*Daemon, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m := opts.Metrics
	if m == nil {
		m = metrics.NewMetrics()
	}

	return &Daemon{
		opts:    opts,
		logger:  opts.Logger.With().Str("component", "daemon").Logger(),
		metrics: m,
		cfg:     cfg,
		host:    plugin.NewHost(opts.Logger, nil),
		plugin: arcadeplugin.New(arcadeplugin.Options{
			Config:  cfg,
			Remote:  opts.Remote,
			Logger:  opts.Logger,
			Metrics: m,
		}),
		limiter:  gateway.NewLimiter(cfg.Server.RequestsPerMinute, cfg.Server.MaxConcurrent),
		serveErr: make(chan error, 1),
	}, nil
}

// Host is the plugin host the daemon serves.
func (d *Daemon) Host() *plugin.Host { return d.host }

// Plugin is the loaded Arcade plugin.
func (d *Daemon) Plugin() *arcadeplugin.Plugin { return d.plugin }

// Config returns the configuration currently in effect.
func (d *Daemon) Config() *config.Config {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cfg
}

// Start loads the plugin, starts its services and begins serving.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is already running")
	}
	d.running = true
	d.startTime = time.Now()
	cfg := d.cfg
	d.mu.Unlock()

	logger := d.logger.With().Str("trace_id", tracing.NewTraceID()).Logger()
	logger.Info().Msg("Starting Arcade daemon")

	if cfg.Logging.AuditFile != "" {
		if err := observability.InitAuditLogger(cfg.Logging.AuditFile); err != nil {
			logger.Warn().Err(err).Msg("Failed to open audit log, continuing without it")
		} else {
			d.auditEnabled = true
		}
	}
	if err := tracing.InitOpenTelemetry("arcade-daemon"); err != nil {
		logger.Warn().Err(err).Msg("Failed to initialize tracing, continuing without distributed tracing")
	} else {
		d.tracingEnabled = true
	}

	if err := d.host.Load(ctx, d.plugin, nil); err != nil {
		d.abort(ctx)
		return fmt.Errorf("failed to load arcade plugin: %w", err)
	}
	if err := d.host.StartServices(ctx); err != nil {
		logger.Warn().Err(err).Msg("Some services failed to start")
	}

	ln, err := net.Listen("tcp", cfg.Server.Listen)
	if err != nil {
		d.abort(ctx)
		return fmt.Errorf("failed to listen on %s: %w", cfg.Server.Listen, err)
	}

	handler := d.routes(cfg)
	server := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	d.mu.Lock()
	d.handler = handler
	d.server = server
	d.listener = ln
	d.mu.Unlock()

	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			d.serveErr <- err
		}
	}()
	logger.Info().Str("addr", ln.Addr().String()).Msg("HTTP server started")

	if err := d.schedule(cfg.Cache.RefreshSchedule); err != nil {
		logger.Warn().Err(err).Msg("Catalog refresh not scheduled")
	}

	if d.opts.ConfigPath != "" {
		if err := d.startWatcher(); err != nil {
			logger.Warn().Err(err).Msg("Config watcher not started")
		}
	}

	logger.Info().Msg("Arcade daemon started")
	return nil
}

// abort undoes a partial Start.
func (d *Daemon) abort(ctx context.Context) {
	d.shutdown(ctx)
	d.mu.Lock()
	d.running = false
	d.mu.Unlock()
}

// Stop shuts the listener down gracefully, then stops services.
func (d *Daemon) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is not running")
	}
	d.running = false
	d.mu.Unlock()

	d.logger.Info().Msg("Stopping Arcade daemon")
	err := d.shutdown(ctx)
	d.logger.Info().Dur("uptime", d.Uptime()).Msg("Arcade daemon stopped")
	return err
}

func (d *Daemon) shutdown(ctx context.Context) error {
	var errs []error

	d.mu.Lock()
	server, watcher, scheduler := d.server, d.watcher, d.scheduler
	d.server, d.listener, d.handler, d.watcher, d.scheduler, d.refreshID = nil, nil, nil, nil, nil, 0
	d.mu.Unlock()

	if server != nil {
		if err := server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
	}
	if watcher != nil {
		if err := watcher.Stop(); err != nil {
			d.logger.Warn().Err(err).Msg("Failed to stop config watcher")
		}
	}
	if scheduler != nil {
		select {
		case <-scheduler.Stop().Done():
		case <-ctx.Done():
			d.logger.Warn().Msg("Catalog refresh still running at shutdown")
		}
	}

	if _, ok := d.host.Plugin(arcadeplugin.ID); ok {
		if err := d.host.Unload(ctx, arcadeplugin.ID); err != nil {
			errs = append(errs, err)
		}
	}

	if d.tracingEnabled {
		if err := tracing.ShutdownOpenTelemetry(ctx); err != nil {
			d.logger.Warn().Err(err).Msg("Failed to shut down tracing")
		}
		d.tracingEnabled = false
	}
	if d.auditEnabled {
		if err := observability.GetAuditLogger().Close(); err != nil {
			d.logger.Warn().Err(err).Msg("Failed to close audit log")
		}
		observability.SetAuditLogger(nil)
		d.auditEnabled = false
	}

	return errors.Join(errs...)
}

// Addr is the address the listener is bound to, or "" when not serving.
func (d *Daemon) Addr() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.listener == nil {
		return ""
	}
	return d.listener.Addr().String()
}

// Handler is the HTTP handler being served, or nil when not running.
func (d *Daemon) Handler() http.Handler {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.handler
}

// Errors reports a listener that stopped on its own.
func (d *Daemon) Errors() <-chan error { return d.serveErr }

// IsRunning reports whether Start has completed and Stop has not.
func (d *Daemon) IsRunning() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.running
}

// Uptime is the time since Start.
func (d *Daemon) Uptime() time.Duration {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.startTime.IsZero() {
		return 0
	}
	return time.Since(d.startTime)
}

// Run starts a daemon and blocks until ctx is done or the listener fails.
func Run(ctx context.Context, opts Options) error {
	d, err := New(opts)
	if err != nil {
		return err
	}
	if err := d.Start(ctx); err != nil {
		return err
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-d.Errors():
		d.logger.Error().Err(runErr).Msg("HTTP server failed")
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return errors.Join(runErr, d.Stop(stopCtx))
}

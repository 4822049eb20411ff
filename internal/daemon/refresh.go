package daemon

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/harun/arcade/internal/config"
	"github.com/harun/arcade/internal/observability"
)

const backgroundTimeout = time.Minute

// schedule replaces the catalog refresh job. An empty expr removes it; an
// invalid one leaves the current job in place.
func (d *Daemon) schedule(expr string) error {
	var sched cron.Schedule
	if expr != "" {
		var err error
		if sched, err = cron.ParseStandard(expr); err != nil {
			return fmt.Errorf("invalid refresh schedule %q: %w", expr, err)
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.refreshID != 0 {
		d.scheduler.Remove(d.refreshID)
		d.refreshID = 0
	}
	if sched == nil {
		return nil
	}
	if d.scheduler == nil {
		d.scheduler = cron.New()
		d.scheduler.Start()
	}

	id := d.scheduler.Schedule(sched, cron.FuncJob(d.refresh))
	d.refreshID = id
	d.logger.Info().Str("schedule", expr).Time("next", d.scheduler.Entry(id).Next).Msg("Catalog refresh scheduled")
	return nil
}

// refresh re-syncs the plugin's tools from a fresh catalog.
func (d *Daemon) refresh() {
	ctx, cancel := context.WithTimeout(context.Background(), backgroundTimeout)
	defer cancel()

	start := time.Now()
	if err := d.plugin.Refresh(ctx); err != nil {
		d.logger.Warn().Err(err).Msg("Scheduled catalog refresh failed")
		return
	}
	d.logger.Debug().Dur("duration", time.Since(start)).Msg("Catalog refreshed")
}

func (d *Daemon) startWatcher() error {
	w, err := config.NewWatcher(config.NewLoader(d.opts.ConfigPath), d.reload, d.opts.Logger)
	if err != nil {
		return err
	}
	if err := w.Start(); err != nil {
		_ = w.Stop()
		return err
	}
	d.mu.Lock()
	d.watcher = w
	d.mu.Unlock()
	return nil
}

// reload swaps the plugin onto a new configuration. The listener and the
// RPC limits keep their startup values.
func (d *Daemon) reload(cfg *config.Config) {
	ctx, cancel := context.WithTimeout(context.Background(), backgroundTimeout)
	defer cancel()

	previous := d.Config()
	if cfg.Server.Listen != previous.Server.Listen {
		d.logger.Warn().Str("listen", cfg.Server.Listen).Msg("Listen address change takes effect after restart")
	}

	if err := d.plugin.Reload(ctx, cfg); err != nil {
		d.logger.Error().Err(err).Msg("Failed to apply reloaded configuration")
		return
	}

	d.mu.Lock()
	d.cfg = cfg
	running := d.running
	d.mu.Unlock()

	if running && cfg.Cache.RefreshSchedule != previous.Cache.RefreshSchedule {
		if err := d.schedule(cfg.Cache.RefreshSchedule); err != nil {
			d.logger.Warn().Err(err).Msg("Catalog refresh not rescheduled")
		}
	}

	observability.RecordConfigAudit(ctx, "reload", "daemon", map[string]interface{}{
		"path": d.opts.ConfigPath,
	})
	d.logger.Info().Msg("Configuration reloaded")
}

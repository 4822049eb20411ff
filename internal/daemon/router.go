package daemon

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/harun/arcade/internal/config"
	"github.com/harun/arcade/internal/tracing"
	"github.com/harun/arcade/pkg/engine"
	"github.com/harun/arcade/pkg/gateway"
)

// routes mounts /health, /metrics, /rpc and every plugin route.
func (d *Daemon) routes(cfg *config.Config) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(tracing.Middleware)

	r.Get("/health", d.handleHealth)
	if cfg.Server.Metrics {
		r.Method(http.MethodGet, "/metrics", d.metrics.Handler())
	}
	r.Handle("/rpc", gateway.NewHTTPHandler(d.host.Router(), d.limiter, d.logger))

	for _, route := range d.host.Routes() {
		r.Handle(route.Path, route.Handler)
		d.logger.Debug().Str("path", route.Path).Msg("Plugin route mounted")
	}
	return r
}

type healthResponse struct {
	State  string `json:"status"`
	Uptime string `json:"uptime"`
	engine.Status
}

// handleHealth answers 503 only when a configured engine cannot reach the API.
func (d *Daemon) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		State:  "ok",
		Uptime: formatDuration(d.Uptime()),
		Status: d.plugin.Status(r.Context()),
	}
	code := http.StatusOK
	if resp.Configured && !resp.Healthy {
		resp.State = "degraded"
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%dm%ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}

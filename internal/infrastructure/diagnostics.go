package infrastructure

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
)

// Diagnostics is the small HTTP surface a batch binary exposes while it
// runs: liveness plus the Prometheus scrape endpoint. It is not an API;
// anything beyond "is the run alive and what is it doing" stays in logs.
type Diagnostics struct {
	server  *http.Server
	logger  *slog.Logger
	started time.Time
	runtime *RuntimeCollector
}

// NewDiagnostics assembles the diagnostics server. metricsHandler is the
// Prometheus HTTP handler and may be nil when metrics are disabled;
// collector may be nil, which leaves runtime stats out of the health
// payload.
func NewDiagnostics(addr string, metricsHandler http.Handler, collector *RuntimeCollector, logger *slog.Logger) *Diagnostics {
	if logger == nil {
		logger = slog.Default()
	}

	d := &Diagnostics{
		logger:  logger.With(slog.String("component", "diagnostics")),
		started: time.Now(),
		runtime: collector,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(render.SetContentType(render.ContentTypeJSON))
	r.Get("/healthz", d.healthz)
	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler)
	}

	d.server = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return d
}

// Handler exposes the router for tests.
func (d *Diagnostics) Handler() http.Handler {
	return d.server.Handler
}

// healthz reports the process as alive together with a runtime snapshot.
func (d *Diagnostics) healthz(w http.ResponseWriter, r *http.Request) {
	payload := map[string]interface{}{
		"status":         "ok",
		"service":        ServiceName,
		"version":        ServiceVersion,
		"uptime_seconds": time.Since(d.started).Seconds(),
	}
	if d.runtime != nil {
		payload["runtime"] = d.runtime.Collect(r.Context())
	}
	render.JSON(w, r, payload)
}

// Start serves in the background until Shutdown. Listen failures are
// logged, never fatal: a busy diagnostics port must not kill a batch run.
func (d *Diagnostics) Start() {
	go func() {
		d.logger.Info("diagnostics server listening", slog.String("addr", d.server.Addr))
		if err := d.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			d.logger.Error("diagnostics server failed", slog.String("error", err.Error()))
		}
	}()
}

// Shutdown stops the server, waiting for in-flight scrapes.
func (d *Diagnostics) Shutdown(ctx context.Context) error {
	return d.server.Shutdown(ctx)
}

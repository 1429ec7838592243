package httpserver

import (
	"encoding/json"
	"net/http"

	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"triagecore/internal/events"
	"triagecore/internal/lifecycle"
	"triagecore/internal/metrics"
)

const serviceName = "Autonomous Incident Analyst"

func NewRouter(
	logger *slog.Logger,
	ctrl *lifecycle.Controller,
	m *metrics.Metrics,
	gatherer prometheus.Gatherer,
) http.Handler {
	mux := http.NewServeMux()

	// Health check
	health := func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "healthy", "service": serviceName})
	}
	mux.HandleFunc("GET /{$}", health)
	mux.HandleFunc("GET /healthz", health)

	if gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	// Incidents
	h := &lifecycle.Handler{Controller: ctrl, Logger: logger}
	mux.HandleFunc("GET /incidents", h.List)
	mux.HandleFunc("GET /incidents/{id}", h.Get)
	mux.HandleFunc("DELETE /incidents/{id}", h.Delete)
	mux.HandleFunc("POST /incident", h.Submit)
	mux.HandleFunc("POST /action", h.Action)
	mux.HandleFunc("POST /resolve", h.Resolve)

	// Timeline
	mux.Handle("GET /incidents/{id}/events", &events.QueryHandler{
		Journal: ctrl.Journal,
		Logger:  logger,
	})

	// CORS wrapper (simple, for local UI/tools).
	return withCORS(withRequestLog(mux, logger, m))
}

package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	audithttp "github.com/noven-pro/receiving/internal/audit/http"
	"github.com/noven-pro/receiving/internal/observability"
	"github.com/noven-pro/receiving/internal/platform/httpx"
	"github.com/noven-pro/receiving/internal/receiving"
	"github.com/noven-pro/receiving/jobs"
)

// Probe reports whether a backing service is reachable.
type Probe func(ctx context.Context) error

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	ReceivingHandler *receiving.Handler
	JobHandler       *jobs.Handler
	AuditHandler     *audithttp.Handler
	Metrics          *observability.Metrics
	Probes           map[string]Probe
}

// NewRouter constructs the chi.Router with service defaults.
func NewRouter(params RouterParams) http.Handler {
	logger := params.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", readiness(logger, params.Probes))

	if params.ReceivingHandler != nil {
		r.Route("/deliveries", params.ReceivingHandler.MountRoutes)
	}
	if params.AuditHandler != nil {
		params.AuditHandler.MountRoutes(r)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}

func readiness(logger *slog.Logger, probes map[string]Probe) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		checks := make(map[string]string, len(probes))
		status := http.StatusOK
		for name, probe := range probes {
			if err := probe(ctx); err != nil {
				logger.Warn("readiness probe failed", slog.String("probe", name), slog.Any("error", err))
				checks[name] = "down"
				status = http.StatusServiceUnavailable
				continue
			}
			checks[name] = "up"
		}
		httpx.JSON(w, status, map[string]any{"ready": status == http.StatusOK, "checks": checks})
	}
}

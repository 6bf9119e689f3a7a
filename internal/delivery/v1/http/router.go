package http

import (
	"context"
	"net/http"
	"time"

	"github.com/DRSN-tech/media-search/internal/usecase"
	"github.com/DRSN-tech/media-search/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthCheck проверяет одну зависимость сервиса.
type HealthCheck func(ctx context.Context) error

type Router struct {
	router *chi.Mux
	logger logger.Logger
}

func NewRouter(router *chi.Mux, logger logger.Logger) *Router {
	return &Router{router: router, logger: logger}
}

func (r *Router) Init(searchUC usecase.SearchUC, mediaUC usecase.MediaUC, maxUploadBytes int64, checks map[string]HealthCheck) {
	r.router.Use(middleware.RequestID, middleware.Recoverer)

	r.router.Get("/healthz", r.healthz(checks))
	r.router.Handle("/metrics", promhttp.Handler())

	r.router.Route("/api/v1", func(v1 chi.Router) {
		registerSearchRoutes(v1, NewSearchHandler(searchUC, r.logger))
		registerMediaRoutes(v1, NewMediaHandler(mediaUC, maxUploadBytes, r.logger))
	})
}

func registerSearchRoutes(router chi.Router, h *SearchHandler) {
	router.Route("/tenants/{tenantID}/search", func(sr chi.Router) {
		sr.Post("/", h.search)
		sr.Post("/by-image", h.searchByImage)
	})
}

func registerMediaRoutes(router chi.Router, h *MediaHandler) {
	router.Route("/tenants/{tenantID}", func(tr chi.Router) {
		tr.Post("/products/{sku}/media", h.uploadAsset)
		tr.Put("/products/{sku}/active", h.setActive)
		tr.Post("/assets/{assetID}/frames", h.indexFrame)
		tr.Post("/media/refresh-urls", h.refreshURLs)
	})
}

func (r *Router) healthz(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		report := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				r.logger.Warnf("health check %s failed: %v", name, err)
				report[name] = "down"
				status = http.StatusServiceUnavailable
				continue
			}
			report[name] = "ok"
		}

		WriteSuccess(w, status, map[string]any{"status": http.StatusText(status), "checks": report})
	}
}

// Package api собирает HTTP API: маршруты, сервисы и жизненный цикл сервера.
package api

import (
	"log/slog"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/magabrotheeeer/zdravscan/internal/artifact"
	"github.com/magabrotheeeer/zdravscan/internal/http/handlers/auth/login"
	"github.com/magabrotheeeer/zdravscan/internal/http/handlers/auth/me"
	"github.com/magabrotheeeer/zdravscan/internal/http/handlers/health"
	"github.com/magabrotheeeer/zdravscan/internal/http/handlers/history/clearall"
	historylist "github.com/magabrotheeeer/zdravscan/internal/http/handlers/history/list"
	"github.com/magabrotheeeer/zdravscan/internal/http/handlers/history/remove"
	"github.com/magabrotheeeer/zdravscan/internal/http/handlers/scan/get"
	scanlist "github.com/magabrotheeeer/zdravscan/internal/http/handlers/scan/list"
	"github.com/magabrotheeeer/zdravscan/internal/http/handlers/scan/upload"
	"github.com/magabrotheeeer/zdravscan/internal/http/handlers/subscription/cancel"
	"github.com/magabrotheeeer/zdravscan/internal/http/handlers/subscription/create"
	"github.com/magabrotheeeer/zdravscan/internal/http/handlers/subscription/plans"
	"github.com/magabrotheeeer/zdravscan/internal/http/handlers/subscription/status"
	"github.com/magabrotheeeer/zdravscan/internal/http/middlewarectx"
	"github.com/magabrotheeeer/zdravscan/internal/metrics"
	"github.com/magabrotheeeer/zdravscan/internal/services/access"
	"github.com/magabrotheeeer/zdravscan/internal/services/analysis"
	authservice "github.com/magabrotheeeer/zdravscan/internal/services/auth"
	"github.com/magabrotheeeer/zdravscan/internal/services/entitlement"
	"github.com/magabrotheeeer/zdravscan/internal/services/history"
)

// Services - зависимости маршрутов.
type Services struct {
	Auth         *authservice.Service
	Gate         *access.Gate
	Entitlements *entitlement.Service
	Tracker      *analysis.Tracker
	History      *history.Service
	Artifacts    *artifact.LocalStore
	Storage      health.Pinger
	Limiter      *middlewarectx.RateLimiter
	Gatherer     prometheus.Gatherer
	MaxFileSize  int64
}

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(r chi.Router, logger *slog.Logger, s Services) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Logger,
		middleware.Recoverer,
	)

	r.Get("/health", health.New(logger, s.Storage).ServeHTTP)
	r.Handle("/metrics", metrics.Handler(s.Gatherer))
	r.Get("/docs/*", httpSwagger.WrapHandler)

	r.Route("/api", func(r chi.Router) {
		// Открытые конечные точки
		r.With(s.Limiter.Middleware(logger)).Post("/auth", login.New(logger, s.Auth).ServeHTTP)
		r.Get("/subscription/plans", plans.New(logger, s.Entitlements).ServeHTTP)

		// Группа с JWT аутентификацией
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.JWTMiddleware(s.Gate, logger))
			r.Use(s.Limiter.Middleware(logger))

			r.Get("/auth/me", me.New(logger).ServeHTTP)

			r.Get("/subscription/status", status.New(logger, s.Entitlements).ServeHTTP)
			r.Post("/subscription/create", create.New(logger, s.Entitlements).ServeHTTP)
			r.Post("/subscription/{id}/cancel", cancel.New(logger, s.Entitlements).ServeHTTP)

			r.With(middlewarectx.EntitlementMiddleware(s.Gate, logger)).
				Post("/scan/upload", upload.New(logger, s.Tracker, s.Artifacts, s.MaxFileSize).ServeHTTP)
			r.Get("/scan", scanlist.New(logger, s.Tracker).ServeHTTP)
			r.Get("/scan/{id}", get.New(logger, s.Tracker).ServeHTTP)

			r.Get("/history", historylist.New(logger, s.History).ServeHTTP)
			r.Delete("/history", clearall.New(logger, s.History).ServeHTTP)
			r.Delete("/history/{id}", remove.New(logger, s.History).ServeHTTP)
		})
	})
}

package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/zdravscan/internal/analyzer"
	"github.com/magabrotheeeer/zdravscan/internal/app/infra"
	"github.com/magabrotheeeer/zdravscan/internal/artifact"
	"github.com/magabrotheeeer/zdravscan/internal/config"
	"github.com/magabrotheeeer/zdravscan/internal/http/middlewarectx"
	"github.com/magabrotheeeer/zdravscan/internal/lib/initdata"
	"github.com/magabrotheeeer/zdravscan/internal/lib/jwt"
	"github.com/magabrotheeeer/zdravscan/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/zdravscan/internal/lib/sl"
	"github.com/magabrotheeeer/zdravscan/internal/metrics"
	"github.com/magabrotheeeer/zdravscan/internal/services/access"
	"github.com/magabrotheeeer/zdravscan/internal/services/analysis"
	authservice "github.com/magabrotheeeer/zdravscan/internal/services/auth"
	"github.com/magabrotheeeer/zdravscan/internal/services/entitlement"
	"github.com/magabrotheeeer/zdravscan/internal/services/history"
	"github.com/magabrotheeeer/zdravscan/internal/services/identity"
)

const shutdownTimeout = 15 * time.Second

// Deps - внешние ресурсы, из которых собирается роутер.
type Deps struct {
	Store      infra.Store
	Cache      infra.Cache
	Dispatcher analysis.Dispatcher
	Metrics    *metrics.Collector
	Gatherer   prometheus.Gatherer
}

// App - процесс HTTP API.
type App struct {
	server *http.Server
	logger *slog.Logger
	store  infra.Store
	cache  infra.Cache
	queue  *analysis.LocalQueue
	conn   *amqp.Connection
	ch     *amqp.Channel
}

// New открывает ресурсы по конфигу и собирает приложение.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	const op = "api.New"

	store, err := infra.OpenStore(ctx, cfg.Storage, logger)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	c, err := infra.OpenCache(ctx, cfg.RedisConnection, logger)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(reg)

	a := &App{
		logger: logger,
		store:  store,
		cache:  c,
	}

	var dispatcher analysis.Dispatcher
	switch cfg.Transport {
	case "rabbitmq":
		a.conn, err = rabbitmq.Connect(cfg.RabbitMQURL, cfg.RabbitMQMaxRetries, cfg.RabbitMQRetryDelay)
		if err != nil {
			a.closeResources()
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		a.ch, err = rabbitmq.SetupChannel(a.conn, rabbitmq.AnalysisTopology(), 0)
		if err != nil {
			a.closeResources()
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		dispatcher = analysis.NewRabbitDispatcher(a.ch)
		logger.Info("analysis tasks go to rabbitmq", slog.String("queue", rabbitmq.AnalysisQueue))
	default:
		worker := analysis.NewWorker(
			store,
			analyzer.NewStub(cfg.StubDelay),
			collector,
			cfg.Analysis.Timeout,
			cfg.HistorySize,
			logger,
		)
		a.queue = analysis.NewLocalQueue(cfg.QueueSize, logger)
		a.queue.Start(context.WithoutCancel(ctx), cfg.Workers, worker)
		dispatcher = a.queue
		logger.Info("analysis runs in process", slog.Int("workers", cfg.Workers))
	}

	router, err := NewRouter(cfg, logger, Deps{
		Store:      store,
		Cache:      c,
		Dispatcher: dispatcher,
		Metrics:    collector,
		Gatherer:   reg,
	})
	if err != nil {
		a.closeResources()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	a.server = &http.Server{
		Addr:         cfg.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return a, nil
}

// NewRouter собирает сервисы поверх deps и регистрирует маршруты.
func NewRouter(cfg *config.Config, logger *slog.Logger, d Deps) (chi.Router, error) {
	const op = "api.NewRouter"

	artifacts, err := artifact.NewLocalStore(cfg.Upload.Dir, cfg.MaxFileSize)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	verifier := initdata.NewVerifier(cfg.BotToken, cfg.DomainSeparator, initdata.WithMaxAge(cfg.MaxAuthAge))
	tokens := jwt.NewJWTMaker(cfg.JWTSecretKey, cfg.TokenTTL)
	identities := identity.New(d.Store, d.Cache, cfg.CacheTTL, logger)
	entitlements := entitlement.New(d.Store, d.Cache, cfg.CacheTTL, logger)

	router := chi.NewRouter()
	RegisterRoutes(router, logger, Services{
		Auth:         authservice.New(verifier, identities, tokens, d.Metrics, logger),
		Gate:         access.New(tokens, identities, entitlements),
		Entitlements: entitlements,
		Tracker:      analysis.NewTracker(d.Store, d.Dispatcher, d.Metrics, logger),
		History:      history.New(d.Store, logger),
		Artifacts:    artifacts,
		Storage:      d.Store,
		Limiter:      middlewarectx.NewRateLimiter(cfg.RPS, cfg.Burst),
		Gatherer:     d.Gatherer,
		MaxFileSize:  cfg.MaxFileSize,
	})
	return router, nil
}

// Run обслуживает запросы до отмены ctx, затем останавливает сервер и дожидается задач.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		a.closeResources()
		return err
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		a.logger.Info("shutting down HTTP server gracefully")
		err := a.server.Shutdown(timeoutCtx)
		a.closeResources()
		return err
	}
}

func (a *App) closeResources() {
	if a.queue != nil {
		a.queue.Close()
	}
	if a.ch != nil {
		if err := a.ch.Close(); err != nil {
			a.logger.Warn("failed to close rabbitmq channel", sl.Err(err))
		}
	}
	if a.conn != nil {
		if err := a.conn.Close(); err != nil {
			a.logger.Warn("failed to close rabbitmq connection", sl.Err(err))
		}
	}
	if err := a.cache.Close(); err != nil {
		a.logger.Warn("failed to close cache", sl.Err(err))
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn("failed to close storage", sl.Err(err))
	}
}

// Package worker собирает процесс анализа: потребитель очереди RabbitMQ,
// gRPC-сервер здоровья и отдачу метрик.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/streadway/amqp"
	"golang.org/x/sync/errgroup"

	"github.com/magabrotheeeer/zdravscan/internal/analyzer"
	"github.com/magabrotheeeer/zdravscan/internal/app/infra"
	"github.com/magabrotheeeer/zdravscan/internal/config"
	"github.com/magabrotheeeer/zdravscan/internal/grpc/health"
	"github.com/magabrotheeeer/zdravscan/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/zdravscan/internal/lib/sl"
	"github.com/magabrotheeeer/zdravscan/internal/metrics"
	"github.com/magabrotheeeer/zdravscan/internal/services/analysis"
)

const shutdownTimeout = 15 * time.Second

// App - процесс анализа.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   infra.Store
	conn    *amqp.Connection
	ch      *amqp.Channel
	worker  *analysis.Worker
	health  *health.Server
	metrics *http.Server
}

// New подключается к хранилищу и брокеру. Процессу нужны postgres и rabbitmq.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	const op = "worker.New"
	if cfg.Driver != "postgres" {
		return nil, fmt.Errorf("%s: worker requires postgres storage, got %q", op, cfg.Driver)
	}
	if cfg.RabbitMQURL == "" {
		return nil, fmt.Errorf("%s: rabbitmq url is required", op)
	}

	store, err := infra.OpenStore(ctx, cfg.Storage, logger)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	a := &App{cfg: cfg, logger: logger, store: store}

	a.conn, err = rabbitmq.Connect(cfg.RabbitMQURL, cfg.RabbitMQMaxRetries, cfg.RabbitMQRetryDelay)
	if err != nil {
		a.closeResources()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	a.ch, err = rabbitmq.SetupChannel(a.conn, rabbitmq.AnalysisTopology(), cfg.Prefetch)
	if err != nil {
		a.closeResources()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.worker = analysis.NewWorker(
		store,
		analyzer.NewStub(cfg.StubDelay),
		metrics.NewCollector(reg),
		cfg.Analysis.Timeout,
		cfg.HistorySize,
		logger,
	)
	a.health = health.New(cfg.HealthInterval, logger, store, rabbitmq.ConnPinger{Conn: a.conn})

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	a.metrics = &http.Server{
		Addr:              cfg.MetricsAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return a, nil
}

// Run потребляет задачи до отмены ctx и дожидается уже начатых.
func (a *App) Run(ctx context.Context) error {
	const op = "worker.Run"

	lis, err := net.Listen("tcp", a.cfg.GRPCAddress)
	if err != nil {
		a.closeResources()
		return fmt.Errorf("%s: %w", op, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.health.Serve(lis)
	})
	g.Go(func() error {
		a.health.Watch(gctx)
		return nil
	})
	g.Go(func() error {
		a.logger.Info("metrics server starting on", slog.String("address", a.metrics.Addr))
		if err := a.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("%s: %w", op, err)
		}
		return nil
	})
	g.Go(func() error {
		a.logger.Info("consuming analysis tasks",
			slog.String("queue", rabbitmq.AnalysisQueue),
			slog.Int("concurrency", a.cfg.Workers),
		)
		err := rabbitmq.ConsumerMessage(gctx, a.logger, a.ch, rabbitmq.AnalysisQueue, a.cfg.Workers, analysis.MessageHandler(a.worker))
		if err != nil {
			return err
		}
		if gctx.Err() == nil {
			return fmt.Errorf("%s: delivery channel closed", op)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutting down worker gracefully")
		a.health.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return a.metrics.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	a.closeResources()
	return err
}

func (a *App) closeResources() {
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
	if err := a.store.Close(); err != nil {
		a.logger.Warn("failed to close storage", sl.Err(err))
	}
}

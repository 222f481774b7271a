// Package infra открывает общие для процессов ресурсы: хранилище и кеш.
package infra

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/zdravscan/internal/cache"
	"github.com/magabrotheeeer/zdravscan/internal/config"
	"github.com/magabrotheeeer/zdravscan/internal/migrations"
	"github.com/magabrotheeeer/zdravscan/internal/models"
	"github.com/magabrotheeeer/zdravscan/internal/storage"
	"github.com/magabrotheeeer/zdravscan/internal/storage/memory"
)

// Store - все операции хранилища, которые нужны сервисам.
type Store interface {
	UpsertUser(ctx context.Context, p models.Profile) (*models.User, error)
	GetUser(ctx context.Context, id int64) (*models.User, error)

	CreateSubscription(ctx context.Context, sub models.Subscription, now time.Time) (*models.Subscription, error)
	LatestSubscription(ctx context.Context, userID int64) (*models.Subscription, error)
	CancelAutoRenew(ctx context.Context, subscriptionID, userID int64) error

	CreateJob(ctx context.Context, job models.AnalysisJob) error
	TransitionJob(ctx context.Context, id string, from, to models.JobState) error
	FailJob(ctx context.Context, id string, at time.Time) error
	CompleteJob(ctx context.Context, id string, res models.AnalysisResult, at time.Time, entry *models.HistoryEntry) error
	GetJob(ctx context.Context, id string) (*models.AnalysisJob, error)
	ListJobs(ctx context.Context, userID int64, limit, offset int) ([]models.AnalysisJob, int, error)

	ListHistory(ctx context.Context, userID int64, limit, offset int) ([]models.HistoryEntry, int, error)
	DeleteHistoryEntry(ctx context.Context, id, userID int64) error
	ClearHistory(ctx context.Context, userID int64) (int, error)

	Ping(ctx context.Context) error
	Close() error
}

// Cache - кеш пользователей и подписок.
type Cache interface {
	Get(ctx context.Context, key string, result any) (bool, error)
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
	Invalidate(ctx context.Context, key string) error
	Close() error
}

var (
	_ Store = (*storage.Storage)(nil)
	_ Store = (*memory.Storage)(nil)
	_ Cache = (*cache.Cache)(nil)
	_ Cache = cache.Noop{}
)

// OpenStore открывает хранилище по cfg.Driver. Для postgres применяет миграции.
func OpenStore(ctx context.Context, cfg config.Storage, log *slog.Logger) (Store, error) {
	const op = "infra.OpenStore"
	switch cfg.Driver {
	case "memory":
		log.Warn("using in-memory storage, data is lost on restart")
		return memory.New(), nil
	case "postgres":
		db, err := storage.New(ctx, cfg.StorageConnectionString)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if err := migrations.Run(db.DB, cfg.MigrationsPath); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return db, nil
	default:
		return nil, fmt.Errorf("%s: unknown driver %q", op, cfg.Driver)
	}
}

// OpenCache подключается к Redis. Пустой адрес отключает кеш.
func OpenCache(ctx context.Context, cfg config.RedisConnection, log *slog.Logger) (Cache, error) {
	const op = "infra.OpenCache"
	if cfg.AddressRedis == "" {
		log.Info("redis address is empty, cache disabled")
		return cache.Noop{}, nil
	}
	c, err := cache.InitServer(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return c, nil
}

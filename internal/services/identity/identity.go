// Package identity хранит соответствие между пользователем Telegram и внутренним
// пользователем сервиса.
package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/zdravscan/internal/lib/sl"
	"github.com/magabrotheeeer/zdravscan/internal/models"
	"github.com/magabrotheeeer/zdravscan/internal/storage"
)

// ErrUserNotFound возвращается для неизвестного внутреннего id.
var ErrUserNotFound = errors.New("user not found")

// Repository описывает хранилище пользователей.
type Repository interface {
	UpsertUser(ctx context.Context, p models.Profile) (*models.User, error)
	GetUser(ctx context.Context, id int64) (*models.User, error)
}

// Cache описывает кеш пользователей.
type Cache interface {
	Get(ctx context.Context, key string, result any) (bool, error)
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
	Invalidate(ctx context.Context, key string) error
}

// Service выдаёт внутренних пользователей по профилю Telegram.
type Service struct {
	repo     Repository
	cache    Cache
	cacheTTL time.Duration
	log      *slog.Logger
}

// New создаёт Service.
func New(repo Repository, cache Cache, cacheTTL time.Duration, log *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		cache:    cache,
		cacheTTL: cacheTTL,
		log:      log,
	}
}

func userKey(id int64) string {
	return fmt.Sprintf("user:%d", id)
}

// ResolveOrCreate возвращает пользователя с данным Telegram id, создавая его при первом обращении.
// Параллельные первые входы одного пользователя дают одну запись.
func (s *Service) ResolveOrCreate(ctx context.Context, p models.Profile) (*models.User, error) {
	const op = "identity.ResolveOrCreate"
	if p.TelegramID == 0 {
		return nil, fmt.Errorf("%s: empty telegram id", op)
	}
	if p.LanguageCode == "" {
		p.LanguageCode = "en"
	}

	u, err := s.repo.UpsertUser(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.store(ctx, u)
	return u, nil
}

// Lookup возвращает пользователя по внутреннему id.
func (s *Service) Lookup(ctx context.Context, id int64) (*models.User, error) {
	const op = "identity.Lookup"

	var cached models.User
	found, err := s.cache.Get(ctx, userKey(id), &cached)
	if err != nil {
		s.log.Warn("failed to read user from cache", slog.Int64("user_id", id), sl.Err(err))
	}
	if found {
		return &cached, nil
	}

	u, err := s.repo.GetUser(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", op, ErrUserNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.store(ctx, u)
	return u, nil
}

func (s *Service) store(ctx context.Context, u *models.User) {
	if err := s.cache.Set(ctx, userKey(u.ID), u, s.cacheTTL); err != nil {
		s.log.Warn("failed to cache user", slog.Int64("user_id", u.ID), sl.Err(err))
	}
}

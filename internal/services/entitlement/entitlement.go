// Package entitlement управляет подписками пользователя и вычисляет,
// есть ли у него право на анализ в данный момент.
package entitlement

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

// Ошибки сервиса подписок.
var (
	ErrInvalidTier          = errors.New("invalid subscription type")
	ErrActiveSubscription   = errors.New("user already has an active subscription")
	ErrTrialUsed            = errors.New("trial subscription already used")
	ErrSubscriptionNotFound = errors.New("subscription not found")
)

// Repository описывает хранилище подписок.
type Repository interface {
	CreateSubscription(ctx context.Context, sub models.Subscription, now time.Time) (*models.Subscription, error)
	LatestSubscription(ctx context.Context, userID int64) (*models.Subscription, error)
	CancelAutoRenew(ctx context.Context, subscriptionID, userID int64) error
}

// Cache описывает кеш подписок.
type Cache interface {
	Get(ctx context.Context, key string, result any) (bool, error)
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
	Invalidate(ctx context.Context, key string) error
}

// Entitlement - право пользователя на анализ в момент запроса.
type Entitlement struct {
	Active        bool
	Subscription  *models.Subscription // nil, если Active == false
	DaysRemaining int
}

// Service реализует операции с подписками.
type Service struct {
	repo     Repository
	cache    Cache
	cacheTTL time.Duration
	now      func() time.Time
	log      *slog.Logger
}

// Option настраивает Service.
type Option func(*Service)

// WithClock подменяет источник текущего времени.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New создаёт Service.
func New(repo Repository, cache Cache, cacheTTL time.Duration, log *slog.Logger, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		cache:    cache,
		cacheTTL: cacheTTL,
		now:      time.Now,
		log:      log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func subscriptionKey(userID int64) string {
	return fmt.Sprintf("subscription:%d", userID)
}

// CreateSubscription оформляет подписку тарифа tier начиная с текущего момента.
func (s *Service) CreateSubscription(ctx context.Context, userID int64, tier string) (*models.Subscription, error) {
	const op = "entitlement.CreateSubscription"

	t, err := models.ParseTier(tier)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %q", op, ErrInvalidTier, tier)
	}

	now := s.now().UTC()
	sub := models.Subscription{
		UserID:    userID,
		Tier:      t,
		Status:    models.StatusActive,
		StartDate: now,
		EndDate:   now.Add(t.Duration()),
		IsTrial:   t.IsTrial(),
		AutoRenew: !t.IsTrial(),
	}

	created, err := s.repo.CreateSubscription(ctx, sub, now)
	switch {
	case errors.Is(err, storage.ErrActiveSubscription):
		return nil, fmt.Errorf("%s: %w", op, ErrActiveSubscription)
	case errors.Is(err, storage.ErrTrialUsed):
		return nil, fmt.Errorf("%s: %w", op, ErrTrialUsed)
	case err != nil:
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.invalidate(ctx, userID)
	s.log.Info("subscription created",
		slog.Int64("user_id", userID),
		slog.Int64("subscription_id", created.ID),
		slog.String("tier", string(created.Tier)),
	)
	return created, nil
}

// CurrentEntitlement вычисляет право на анализ на текущий момент.
// Истечение проверяется при каждом вызове; в кеше хранится только сама подписка.
func (s *Service) CurrentEntitlement(ctx context.Context, userID int64) (*Entitlement, error) {
	const op = "entitlement.CurrentEntitlement"
	now := s.now()

	sub, err := s.latest(ctx, userID, now)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if sub == nil || !sub.ActiveAt(now) {
		return &Entitlement{}, nil
	}
	return &Entitlement{
		Active:        true,
		Subscription:  sub,
		DaysRemaining: sub.DaysRemaining(now),
	}, nil
}

// CancelAutoRenew отключает автопродление. Подписка остаётся активной до даты окончания.
func (s *Service) CancelAutoRenew(ctx context.Context, subscriptionID, userID int64) error {
	const op = "entitlement.CancelAutoRenew"

	err := s.repo.CancelAutoRenew(ctx, subscriptionID, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%s: %w", op, ErrSubscriptionNotFound)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	s.invalidate(ctx, userID)
	return nil
}

// Plans возвращает каталог тарифов.
func (s *Service) Plans() []models.Plan {
	return Plans()
}

func (s *Service) latest(ctx context.Context, userID int64, now time.Time) (*models.Subscription, error) {
	key := subscriptionKey(userID)

	var cached models.Subscription
	found, err := s.cache.Get(ctx, key, &cached)
	if err != nil {
		s.log.Warn("failed to read subscription from cache", slog.Int64("user_id", userID), sl.Err(err))
	}
	if found {
		return &cached, nil
	}

	sub, err := s.repo.LatestSubscription(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	// запись в кеше не должна пережить окончание подписки
	ttl := min(s.cacheTTL, sub.EndDate.Sub(now))
	if ttl > 0 {
		if err := s.cache.Set(ctx, key, sub, ttl); err != nil {
			s.log.Warn("failed to cache subscription", slog.Int64("user_id", userID), sl.Err(err))
		}
	}
	return sub, nil
}

func (s *Service) invalidate(ctx context.Context, userID int64) {
	if err := s.cache.Invalidate(ctx, subscriptionKey(userID)); err != nil {
		s.log.Warn("failed to invalidate subscription cache", slog.Int64("user_id", userID), sl.Err(err))
	}
}

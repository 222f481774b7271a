// Package auth реализует вход по подписанным данным Telegram WebApp:
// проверка initData, поиск или создание пользователя и выпуск токена сессии.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/magabrotheeeer/zdravscan/internal/lib/initdata"
	"github.com/magabrotheeeer/zdravscan/internal/lib/sl"
	"github.com/magabrotheeeer/zdravscan/internal/models"
)

// ErrInvalidInitData возвращается, если подпись initData не прошла проверку.
var ErrInvalidInitData = errors.New("invalid init data")

// Verifier проверяет initData.
type Verifier interface {
	Verify(raw string) (*initdata.Claims, error)
}

// Identities выдаёт внутреннего пользователя по профилю Telegram.
type Identities interface {
	ResolveOrCreate(ctx context.Context, p models.Profile) (*models.User, error)
}

// Issuer выпускает токен сессии.
type Issuer interface {
	Issue(userID, telegramID int64) (string, error)
}

// Metrics учитывает попытки входа.
type Metrics interface {
	RecordLogin(ok bool)
}

// Session - результат успешного входа.
type Session struct {
	AccessToken string
	User        *models.User
}

// Service выполняет вход.
type Service struct {
	verifier   Verifier
	identities Identities
	issuer     Issuer
	metrics    Metrics
	log        *slog.Logger
}

// New создаёт Service.
func New(verifier Verifier, identities Identities, issuer Issuer, m Metrics, log *slog.Logger) *Service {
	return &Service{
		verifier:   verifier,
		identities: identities,
		issuer:     issuer,
		metrics:    m,
		log:        log,
	}
}

// Login проверяет initData и выдаёт токен. При неверной подписи ничего не записывается.
func (s *Service) Login(ctx context.Context, rawInitData string) (*Session, error) {
	const op = "auth.Login"
	log := s.log.With(slog.String("op", op))

	claims, err := s.verifier.Verify(rawInitData)
	if err != nil {
		s.metrics.RecordLogin(false)
		log.Info("init data rejected")
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidInitData)
	}

	user, err := s.identities.ResolveOrCreate(ctx, models.Profile{
		TelegramID:   claims.UserID,
		FirstName:    claims.FirstName,
		LastName:     claims.LastName,
		Username:     claims.Username,
		LanguageCode: claims.LanguageCode,
	})
	if err != nil {
		log.Error("failed to resolve user", slog.Int64("telegram_id", claims.UserID), sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	token, err := s.issuer.Issue(user.ID, user.TelegramID)
	if err != nil {
		log.Error("failed to issue token", slog.Int64("user_id", user.ID), sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.metrics.RecordLogin(true)
	log.Info("user logged in", slog.Int64("user_id", user.ID))
	return &Session{AccessToken: token, User: user}, nil
}

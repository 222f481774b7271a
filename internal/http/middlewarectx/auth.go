// Package middlewarectx содержит HTTP middleware: проверку токена сессии,
// проверку права на анализ и ограничение частоты запросов.
//
// JWTMiddleware проверяет заголовок Authorization и кладёт пользователя в контекст запроса.
// При любой ошибке проверки возвращает 401 с одинаковым сообщением.
package middlewarectx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/middleware"

	"github.com/magabrotheeeer/zdravscan/internal/http/response"
	"github.com/magabrotheeeer/zdravscan/internal/lib/sl"
	"github.com/magabrotheeeer/zdravscan/internal/models"
	"github.com/magabrotheeeer/zdravscan/internal/services/access"
)

// Key тип для ключей контекста HTTP-запроса.
type Key string

// User - ключ пользователя (*models.User) в контексте.
const User Key = "user"

// MsgUnauthorized - единый ответ на любую ошибку аутентификации.
const MsgUnauthorized = "could not validate credentials"

// Authorizer проверяет токен сессии.
type Authorizer interface {
	Authorize(ctx context.Context, token string) (*models.User, error)
}

// WithUser кладёт пользователя в контекст.
func WithUser(ctx context.Context, u *models.User) context.Context {
	return context.WithValue(ctx, User, u)
}

// UserFrom достаёт пользователя из контекста.
func UserFrom(ctx context.Context) (*models.User, bool) {
	u, ok := ctx.Value(User).(*models.User)
	return u, ok && u != nil
}

// JWTMiddleware возвращает middleware, который пропускает только запросы с действующим токеном.
func JWTMiddleware(gate Authorizer, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const op = "middlewarectx.JWTMiddleware"
			log := log.With(
				slog.String("op", op),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)

			token, ok := bearer(r.Header.Get("Authorization"))
			if !ok {
				log.Info("missing or invalid authorization header")
				response.JSON(w, r, http.StatusUnauthorized, response.Error(MsgUnauthorized))
				return
			}

			user, err := gate.Authorize(r.Context(), token)
			if errors.Is(err, access.ErrUnauthenticated) {
				log.Info("invalid or expired token")
				response.JSON(w, r, http.StatusUnauthorized, response.Error(MsgUnauthorized))
				return
			}
			if err != nil {
				log.Error("failed to authorize request", sl.Err(err))
				response.JSON(w, r, http.StatusInternalServerError, response.Error("internal error"))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

func bearer(header string) (string, bool) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

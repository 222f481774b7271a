package middlewarectx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"

	"github.com/magabrotheeeer/zdravscan/internal/http/response"
	"github.com/magabrotheeeer/zdravscan/internal/lib/sl"
	"github.com/magabrotheeeer/zdravscan/internal/services/access"
	"github.com/magabrotheeeer/zdravscan/internal/services/entitlement"
)

// MsgSubscriptionRequired - ответ при отсутствии действующей подписки.
const MsgSubscriptionRequired = "subscription required"

// EntitlementChecker проверяет право пользователя на анализ.
type EntitlementChecker interface {
	RequireEntitlement(ctx context.Context, userID int64) (*entitlement.Entitlement, error)
}

// EntitlementMiddleware пропускает запрос, только если у пользователя есть действующая подписка.
// Должен стоять после JWTMiddleware.
func EntitlementMiddleware(checker EntitlementChecker, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const op = "middlewarectx.EntitlementMiddleware"
			log := log.With(
				slog.String("op", op),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)

			user, ok := UserFrom(r.Context())
			if !ok {
				log.Error("user not found in context")
				response.JSON(w, r, http.StatusUnauthorized, response.Error(MsgUnauthorized))
				return
			}

			_, err := checker.RequireEntitlement(r.Context(), user.ID)
			if errors.Is(err, access.ErrEntitlementRequired) {
				log.Info("no active subscription", slog.Int64("user_id", user.ID))
				response.JSON(w, r, http.StatusForbidden, response.Error(MsgSubscriptionRequired))
				return
			}
			if err != nil {
				log.Error("failed to check subscription", sl.Err(err))
				response.JSON(w, r, http.StatusInternalServerError, response.Error("internal error"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

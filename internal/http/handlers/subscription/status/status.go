// Package status отдаёт текущее состояние подписки пользователя.
package status

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"

	"github.com/magabrotheeeer/zdravscan/internal/http/dto"
	"github.com/magabrotheeeer/zdravscan/internal/http/middlewarectx"
	"github.com/magabrotheeeer/zdravscan/internal/http/response"
	"github.com/magabrotheeeer/zdravscan/internal/lib/sl"
	"github.com/magabrotheeeer/zdravscan/internal/services/entitlement"
)

// Service описывает источник права на анализ.
type Service interface {
	CurrentEntitlement(ctx context.Context, userID int64) (*entitlement.Entitlement, error)
}

type Handler struct {
	log     *slog.Logger
	service Service
}

func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

// ServeHTTP godoc
// @Summary Статус подписки
// @Description Действующая подписка и число оставшихся дней. Истечение вычисляется на момент запроса.
// @Tags Subscription
// @Produce  json
// @Security BearerAuth
// @Success 200 {object} response.Response{data=dto.SubscriptionStatus}
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /subscription/status [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.subscription.status"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	user, ok := middlewarectx.UserFrom(r.Context())
	if !ok {
		response.JSON(w, r, http.StatusUnauthorized, response.Error(middlewarectx.MsgUnauthorized))
		return
	}

	ent, err := h.service.CurrentEntitlement(r.Context(), user.ID)
	if err != nil {
		log.Error("failed to get entitlement", sl.Err(err))
		response.JSON(w, r, http.StatusInternalServerError, response.Error("internal error"))
		return
	}

	out := dto.SubscriptionStatus{HasActiveSubscription: ent.Active}
	if ent.Active && ent.Subscription != nil {
		out.Subscription = dto.NewSubscription(ent.Subscription, ent.DaysRemaining)
	}
	response.JSON(w, r, http.StatusOK, response.OKWithData(out))
}

// Package clearall удаляет всю историю пользователя.
package clearall

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"

	"github.com/magabrotheeeer/zdravscan/internal/http/middlewarectx"
	"github.com/magabrotheeeer/zdravscan/internal/http/response"
	"github.com/magabrotheeeer/zdravscan/internal/lib/sl"
)

// Service очищает историю и возвращает число удалённых записей.
type Service interface {
	Clear(ctx context.Context, userID int64) (int, error)
}

type Handler struct {
	log     *slog.Logger
	service Service
}

func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

// ServeHTTP godoc
// @Summary Очистить историю
// @Tags History
// @Produce  json
// @Security BearerAuth
// @Success 200 {object} response.Response{data=map[string]int}
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /history [delete]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.history.clear"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	user, ok := middlewarectx.UserFrom(r.Context())
	if !ok {
		response.JSON(w, r, http.StatusUnauthorized, response.Error(middlewarectx.MsgUnauthorized))
		return
	}

	n, err := h.service.Clear(r.Context(), user.ID)
	if err != nil {
		log.Error("failed to clear history", sl.Err(err))
		response.JSON(w, r, http.StatusInternalServerError, response.Error("internal error"))
		return
	}
	response.JSON(w, r, http.StatusOK, response.OKWithData(map[string]int{"deleted": n}))
}

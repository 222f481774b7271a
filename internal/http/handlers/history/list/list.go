// Package list отдаёт историю запросов пользователя.
package list

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"

	"github.com/magabrotheeeer/zdravscan/internal/http/dto"
	"github.com/magabrotheeeer/zdravscan/internal/http/middlewarectx"
	"github.com/magabrotheeeer/zdravscan/internal/http/query"
	"github.com/magabrotheeeer/zdravscan/internal/http/response"
	"github.com/magabrotheeeer/zdravscan/internal/lib/sl"
	"github.com/magabrotheeeer/zdravscan/internal/models"
	"github.com/magabrotheeeer/zdravscan/internal/services/history"
)

// Service отдаёт страницу истории.
type Service interface {
	List(ctx context.Context, userID int64, limit, offset int) (*history.Page, error)
}

type Handler struct {
	log     *slog.Logger
	service Service
}

func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

// ServeHTTP godoc
// @Summary История запросов
// @Tags History
// @Produce  json
// @Security BearerAuth
// @Param limit query int false "Размер страницы (по умолчанию 20, максимум 100)"
// @Param offset query int false "Смещение"
// @Success 200 {object} response.Response{data=dto.HistoryList}
// @Failure 400 {object} response.ErrorResponse "Некорректные параметры страницы"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /history [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.history.list"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	user, ok := middlewarectx.UserFrom(r.Context())
	if !ok {
		response.JSON(w, r, http.StatusUnauthorized, response.Error(middlewarectx.MsgUnauthorized))
		return
	}
	limit, offset, err := query.Page(r)
	if err != nil {
		response.JSON(w, r, http.StatusBadRequest, response.Error(err.Error()))
		return
	}

	page, err := h.service.List(r.Context(), user.ID, limit, offset)
	if err != nil {
		log.Error("failed to list history", sl.Err(err))
		response.JSON(w, r, http.StatusInternalServerError, response.Error("internal error"))
		return
	}
	entries := page.Entries
	if entries == nil {
		entries = []models.HistoryEntry{}
	}
	response.JSON(w, r, http.StatusOK, response.OKWithData(dto.HistoryList{History: entries, Total: page.Total}))
}

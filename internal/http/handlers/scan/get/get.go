// Package get отдаёт состояние и результат задачи анализа.
package get

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"

	"github.com/magabrotheeeer/zdravscan/internal/http/dto"
	"github.com/magabrotheeeer/zdravscan/internal/http/middlewarectx"
	"github.com/magabrotheeeer/zdravscan/internal/http/response"
	"github.com/magabrotheeeer/zdravscan/internal/lib/sl"
	"github.com/magabrotheeeer/zdravscan/internal/models"
	"github.com/magabrotheeeer/zdravscan/internal/services/analysis"
)

// Service отдаёт задачу владельцу.
type Service interface {
	Get(ctx context.Context, jobID string, userID int64) (*models.AnalysisJob, error)
}

type Handler struct {
	log     *slog.Logger
	service Service
}

func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

// ServeHTTP godoc
// @Summary Результат анализа
// @Description Чужая или несуществующая задача даёт 404.
// @Tags Scan
// @Produce  json
// @Security BearerAuth
// @Param id path string true "ID задачи"
// @Success 200 {object} response.Response{data=dto.Scan}
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 404 {object} response.ErrorResponse "Задача не найдена"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /scan/{id} [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.scan.get"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	user, ok := middlewarectx.UserFrom(r.Context())
	if !ok {
		response.JSON(w, r, http.StatusUnauthorized, response.Error(middlewarectx.MsgUnauthorized))
		return
	}

	job, err := h.service.Get(r.Context(), chi.URLParam(r, "id"), user.ID)
	if errors.Is(err, analysis.ErrJobNotFound) {
		response.JSON(w, r, http.StatusNotFound, response.Error("scan not found"))
		return
	}
	if err != nil {
		log.Error("failed to get scan", sl.Err(err))
		response.JSON(w, r, http.StatusInternalServerError, response.Error("internal error"))
		return
	}
	response.JSON(w, r, http.StatusOK, response.OKWithData(dto.NewScan(job)))
}

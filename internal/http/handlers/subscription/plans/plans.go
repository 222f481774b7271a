// Package plans отдаёт каталог тарифов.
package plans

import (
	"log/slog"
	"net/http"

	"github.com/magabrotheeeer/zdravscan/internal/http/response"
	"github.com/magabrotheeeer/zdravscan/internal/models"
)

// Service описывает источник каталога тарифов.
type Service interface {
	Plans() []models.Plan
}

type Handler struct {
	log     *slog.Logger
	service Service
}

func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

// ServeHTTP godoc
// @Summary Тарифы
// @Description Возвращает доступные тарифы подписки с ценами в рублях.
// @Tags Subscription
// @Produce  json
// @Success 200 {object} response.Response{data=map[string][]models.Plan}
// @Router /subscription/plans [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, response.OKWithData(map[string][]models.Plan{
		"plans": h.service.Plans(),
	}))
}

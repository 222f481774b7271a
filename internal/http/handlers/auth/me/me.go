// Package me отдаёт текущего пользователя.
package me

import (
	"log/slog"
	"net/http"

	"github.com/magabrotheeeer/zdravscan/internal/http/middlewarectx"
	"github.com/magabrotheeeer/zdravscan/internal/http/response"
)

type Handler struct {
	log *slog.Logger
}

func New(log *slog.Logger) *Handler {
	return &Handler{log: log}
}

// ServeHTTP godoc
// @Summary Текущий пользователь
// @Tags Auth
// @Produce  json
// @Security BearerAuth
// @Success 200 {object} response.Response{data=models.User}
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Router /auth/me [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	user, ok := middlewarectx.UserFrom(r.Context())
	if !ok {
		response.JSON(w, r, http.StatusUnauthorized, response.Error(middlewarectx.MsgUnauthorized))
		return
	}
	response.JSON(w, r, http.StatusOK, response.OKWithData(user))
}

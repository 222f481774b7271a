// Package login реализует HTTP-обработчик входа по initData Telegram WebApp.
//
// Обработчик декодирует JSON, проверяет поля и передаёт строку initData сервису входа.
// При успехе возвращает токен сессии и данные пользователя.
package login

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/zdravscan/internal/http/response"
	"github.com/magabrotheeeer/zdravscan/internal/lib/sl"
	"github.com/magabrotheeeer/zdravscan/internal/models"
	"github.com/magabrotheeeer/zdravscan/internal/services/auth"
)

// Request - тело запроса входа.
type Request struct {
	InitData string `json:"init_data" validate:"required,max=8192"`
}

// Data - тело успешного ответа.
type Data struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	User        *models.User `json:"user"`
}

// Service описывает сервис входа.
type Service interface {
	Login(ctx context.Context, rawInitData string) (*auth.Session, error)
}

// Handler обрабатывает вход.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// New создаёт Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Вход через Telegram WebApp
// @Description Проверяет подпись initData, создаёт пользователя при первом входе и выдаёт токен сессии.
// @Tags Auth
// @Accept  json
// @Produce  json
// @Param request body Request true "Строка initData"
// @Success 200 {object} response.Response{data=Data}
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 401 {object} response.ErrorResponse "Неверная подпись"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /auth [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.login"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Info("failed to decode request body", sl.Err(err))
		response.JSON(w, r, http.StatusBadRequest, response.Error("invalid request body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			response.JSON(w, r, http.StatusUnprocessableEntity, response.ValidationError(verrs))
			return
		}
		response.JSON(w, r, http.StatusBadRequest, response.Error("invalid request body"))
		return
	}

	session, err := h.service.Login(r.Context(), req.InitData)
	if errors.Is(err, auth.ErrInvalidInitData) {
		response.JSON(w, r, http.StatusUnauthorized, response.Error("invalid init data"))
		return
	}
	if err != nil {
		log.Error("login failed", sl.Err(err))
		response.JSON(w, r, http.StatusInternalServerError, response.Error("internal error"))
		return
	}

	response.JSON(w, r, http.StatusOK, response.OKWithData(Data{
		AccessToken: session.AccessToken,
		TokenType:   "bearer",
		User:        session.User,
	}))
}

// Package create реализует HTTP-обработчик оформления подписки.
//
// Handler принимает JSON с идентификатором тарифа, проверяет его и создаёт подписку
// для текущего пользователя. Конфликты (уже есть действующая подписка, пробный период
// уже использован) возвращаются с кодом 409.
package create

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/zdravscan/internal/http/dto"
	"github.com/magabrotheeeer/zdravscan/internal/http/middlewarectx"
	"github.com/magabrotheeeer/zdravscan/internal/http/response"
	"github.com/magabrotheeeer/zdravscan/internal/lib/sl"
	"github.com/magabrotheeeer/zdravscan/internal/models"
	"github.com/magabrotheeeer/zdravscan/internal/services/entitlement"
)

// Request - тело запроса.
type Request struct {
	SubscriptionType string `json:"subscription_type" validate:"required"`
}

// Service описывает оформление подписки.
type Service interface {
	CreateSubscription(ctx context.Context, userID int64, tier string) (*models.Subscription, error)
}

// Handler управляет HTTP-запросами на оформление подписки.
type Handler struct {
	log      *slog.Logger        // Логгер для записи информации и ошибок
	service  Service             // Сервис подписок
	validate *validator.Validate // Валидатор структуры входящих данных
	now      func() time.Time
}

// New создаёт Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
		now:      time.Now,
	}
}

// ServeHTTP godoc
// @Summary Оформить подписку
// @Description Создаёт подписку выбранного тарифа для текущего пользователя.
// @Tags Subscription
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param request body Request true "Тариф: trial, express, quarter, annual"
// @Success 200 {object} response.Response{data=dto.Subscription}
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON или тариф"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 409 {object} response.ErrorResponse "Подписка уже есть или пробный период использован"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /subscription/create [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.subscription.create"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	user, ok := middlewarectx.UserFrom(r.Context())
	if !ok {
		log.Error("user not found in context")
		response.JSON(w, r, http.StatusUnauthorized, response.Error(middlewarectx.MsgUnauthorized))
		return
	}

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Info("failed to decode request", sl.Err(err))
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

	sub, err := h.service.CreateSubscription(r.Context(), user.ID, req.SubscriptionType)
	switch {
	case errors.Is(err, entitlement.ErrInvalidTier):
		response.JSON(w, r, http.StatusBadRequest, response.Error("invalid subscription type"))
		return
	case errors.Is(err, entitlement.ErrActiveSubscription):
		response.JSON(w, r, http.StatusConflict, response.Error("user already has an active subscription"))
		return
	case errors.Is(err, entitlement.ErrTrialUsed):
		response.JSON(w, r, http.StatusConflict, response.Error("trial subscription already used"))
		return
	case err != nil:
		log.Error("failed to create subscription", sl.Err(err))
		response.JSON(w, r, http.StatusInternalServerError, response.Error("could not create subscription"))
		return
	}

	log.Info("subscription created", slog.Int64("user_id", user.ID), slog.Int64("subscription_id", sub.ID))
	response.JSON(w, r, http.StatusOK, response.OKWithData(dto.NewSubscription(sub, sub.DaysRemaining(h.now()))))
}

// Package upload принимает изображение и ставит задачу анализа.
//
// Файл передаётся полем multipart "file". Принимаются только типы image/*,
// размер ограничен настройкой upload.max_file_size. Право на анализ проверяется
// middleware до вызова обработчика.
package upload

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/go-chi/chi/middleware"

	"github.com/magabrotheeeer/zdravscan/internal/artifact"
	"github.com/magabrotheeeer/zdravscan/internal/http/dto"
	"github.com/magabrotheeeer/zdravscan/internal/http/middlewarectx"
	"github.com/magabrotheeeer/zdravscan/internal/http/response"
	"github.com/magabrotheeeer/zdravscan/internal/lib/sl"
	"github.com/magabrotheeeer/zdravscan/internal/models"
)

// multipartOverhead - запас на заголовки multipart сверх размера файла.
const multipartOverhead = 1 << 20

// Service ставит задачу анализа.
type Service interface {
	Submit(ctx context.Context, userID int64, inputRef string) (*models.AnalysisJob, error)
}

// Store сохраняет загруженные файлы.
type Store interface {
	Save(ctx context.Context, filename string, r io.Reader) (string, error)
	Remove(ref string) error
}

type Handler struct {
	log     *slog.Logger
	service Service
	store   Store
	maxSize int64
}

func New(log *slog.Logger, service Service, store Store, maxSize int64) *Handler {
	return &Handler{
		log:     log,
		service: service,
		store:   store,
		maxSize: maxSize,
	}
}

// ServeHTTP godoc
// @Summary Загрузить фото на анализ
// @Description Сохраняет изображение и создаёт задачу анализа. Результат доступен по GET /scan/{id}.
// @Tags Scan
// @Accept  multipart/form-data
// @Produce  json
// @Security BearerAuth
// @Param file formData file true "Изображение"
// @Success 200 {object} response.Response{data=dto.Scan}
// @Failure 400 {object} response.ErrorResponse "Нет файла, не изображение или слишком большой файл"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 403 {object} response.ErrorResponse "Нужна подписка"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /scan/upload [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.scan.upload"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	user, ok := middlewarectx.UserFrom(r.Context())
	if !ok {
		response.JSON(w, r, http.StatusUnauthorized, response.Error(middlewarectx.MsgUnauthorized))
		return
	}

	if h.maxSize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxSize+multipartOverhead)
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			response.JSON(w, r, http.StatusBadRequest, response.Error("file is too large"))
			return
		}
		log.Info("failed to read file", sl.Err(err))
		response.JSON(w, r, http.StatusBadRequest, response.Error("file is required"))
		return
	}
	defer file.Close()

	if !isImage(header) {
		response.JSON(w, r, http.StatusBadRequest, response.Error("file must be an image"))
		return
	}

	ref, err := h.store.Save(r.Context(), header.Filename, file)
	if errors.Is(err, artifact.ErrTooLarge) {
		response.JSON(w, r, http.StatusBadRequest, response.Error("file is too large"))
		return
	}
	if err != nil {
		log.Error("failed to save file", sl.Err(err))
		response.JSON(w, r, http.StatusInternalServerError, response.Error("could not save file"))
		return
	}

	job, err := h.service.Submit(r.Context(), user.ID, ref)
	if err != nil {
		log.Error("failed to submit scan", sl.Err(err))
		if rmErr := h.store.Remove(ref); rmErr != nil {
			log.Warn("failed to remove file", sl.Err(rmErr))
		}
		response.JSON(w, r, http.StatusInternalServerError, response.Error("could not start analysis"))
		return
	}

	response.JSON(w, r, http.StatusOK, response.OKWithData(dto.NewScan(job)))
}

func isImage(h *multipart.FileHeader) bool {
	return strings.HasPrefix(strings.ToLower(h.Header.Get("Content-Type")), "image/")
}

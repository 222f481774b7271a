// Package history отдаёт и очищает историю запросов пользователя.
package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/magabrotheeeer/zdravscan/internal/models"
	"github.com/magabrotheeeer/zdravscan/internal/services/analysis"
	"github.com/magabrotheeeer/zdravscan/internal/storage"
)

// ErrEntryNotFound возвращается, если записи нет или она принадлежит другому пользователю.
var ErrEntryNotFound = errors.New("history entry not found")

// Ограничения пагинации истории.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Repository описывает хранилище истории.
type Repository interface {
	ListHistory(ctx context.Context, userID int64, limit, offset int) ([]models.HistoryEntry, int, error)
	DeleteHistoryEntry(ctx context.Context, id, userID int64) error
	ClearHistory(ctx context.Context, userID int64) (int, error)
}

// Page - страница истории.
type Page struct {
	Entries []models.HistoryEntry
	Total   int
}

// Service работает с историей запросов.
type Service struct {
	repo Repository
	log  *slog.Logger
}

// New создаёт Service.
func New(repo Repository, log *slog.Logger) *Service {
	return &Service{repo: repo, log: log}
}

// List возвращает записи пользователя, новые первыми.
func (s *Service) List(ctx context.Context, userID int64, limit, offset int) (*Page, error) {
	const op = "history.List"
	limit, offset = analysis.ClampPage(limit, offset, DefaultPageSize, MaxPageSize)
	entries, total, err := s.repo.ListHistory(ctx, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &Page{Entries: entries, Total: total}, nil
}

// Delete удаляет одну запись пользователя.
func (s *Service) Delete(ctx context.Context, id, userID int64) error {
	const op = "history.Delete"
	err := s.repo.DeleteHistoryEntry(ctx, id, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%s: %w", op, ErrEntryNotFound)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Clear удаляет всю историю пользователя и возвращает число удалённых записей.
func (s *Service) Clear(ctx context.Context, userID int64) (int, error) {
	const op = "history.Clear"
	n, err := s.repo.ClearHistory(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("history cleared", slog.String("op", op), slog.Int64("user_id", userID), slog.Int("deleted", n))
	return n, nil
}

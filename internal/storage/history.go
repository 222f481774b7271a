package storage

import (
	"context"
	"fmt"

	"github.com/magabrotheeeer/zdravscan/internal/models"
)

// ListHistory возвращает страницу истории запросов пользователя (новые первыми) и общее число записей.
func (s *Storage) ListHistory(ctx context.Context, userID int64, limit, offset int) ([]models.HistoryEntry, int, error) {
	const op = "storage.ListHistory"
	if err := checkCtx(ctx, op); err != nil {
		return nil, 0, err
	}

	var total int
	if err := s.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM query_history WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("%s: count: %w", op, err)
	}

	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, user_id, query_text, scan_id, created_at
		 FROM query_history WHERE user_id = $1
		 ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`,
		userID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	entries := make([]models.HistoryEntry, 0, limit)
	for rows.Next() {
		var e models.HistoryEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.QueryText, &e.JobID, &e.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("%s: %w", op, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("%s: %w", op, err)
	}
	return entries, total, nil
}

// DeleteHistoryEntry удаляет одну запись истории, принадлежащую userID.
func (s *Storage) DeleteHistoryEntry(ctx context.Context, id, userID int64) error {
	const op = "storage.DeleteHistoryEntry"
	if err := checkCtx(ctx, op); err != nil {
		return err
	}

	result, err := s.DB.ExecContext(ctx,
		`DELETE FROM query_history WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return nil
}

// ClearHistory удаляет всю историю пользователя и возвращает число удалённых записей.
func (s *Storage) ClearHistory(ctx context.Context, userID int64) (int, error) {
	const op = "storage.ClearHistory"
	if err := checkCtx(ctx, op); err != nil {
		return 0, err
	}

	result, err := s.DB.ExecContext(ctx, `DELETE FROM query_history WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return int(rowsAffected), nil
}

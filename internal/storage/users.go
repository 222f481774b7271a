package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/magabrotheeeer/zdravscan/internal/models"
)

// UpsertUser возвращает пользователя с данным Telegram id, создавая его при первом входе.
// Имена уже существующего пользователя не перезаписываются.
func (s *Storage) UpsertUser(ctx context.Context, p models.Profile) (*models.User, error) {
	const op = "storage.UpsertUser"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	query := `INSERT INTO users (telegram_id, first_name, last_name, username, language_code)
			  VALUES ($1, $2, $3, $4, $5)
			  ON CONFLICT (telegram_id) DO UPDATE SET telegram_id = EXCLUDED.telegram_id
			  RETURNING id, telegram_id, first_name, last_name, username, language_code, created_at, updated_at`
	var u models.User
	err := s.DB.QueryRowContext(ctx, query,
		p.TelegramID, p.FirstName, p.LastName, p.Username, p.LanguageCode).
		Scan(&u.ID, &u.TelegramID, &u.FirstName, &u.LastName, &u.Username, &u.LanguageCode,
			&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &u, nil
}

// GetUser возвращает пользователя по внутреннему id.
func (s *Storage) GetUser(ctx context.Context, id int64) (*models.User, error) {
	const op = "storage.GetUser"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	query := `SELECT id, telegram_id, first_name, last_name, username, language_code, created_at, updated_at
			  FROM users WHERE id = $1`
	var u models.User
	err := s.DB.QueryRowContext(ctx, query, id).
		Scan(&u.ID, &u.TelegramID, &u.FirstName, &u.LastName, &u.Username, &u.LanguageCode,
			&u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &u, nil
}

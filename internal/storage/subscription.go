package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/magabrotheeeer/zdravscan/internal/models"
)

const subscriptionColumns = `id, user_id, subscription_type, status, start_date, end_date, is_trial, auto_renew, created_at`

// CreateSubscription вставляет подписку, если у пользователя нет активной на момент now
// и (для пробной) пробная ещё не использовалась.
//
// Строка пользователя блокируется (FOR UPDATE), поэтому параллельные создания для одного
// пользователя выполняются по очереди. Частичный уникальный индекс по is_trial страхует пробный период.
func (s *Storage) CreateSubscription(ctx context.Context, sub models.Subscription, now time.Time) (*models.Subscription, error) {
	const op = "storage.CreateSubscription"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: begin: %w", op, err)
	}
	defer func() { _ = tx.Rollback() }()

	var locked int64
	err = tx.QueryRowContext(ctx, `SELECT id FROM users WHERE id = $1 FOR UPDATE`, sub.UserID).Scan(&locked)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: user: %w", op, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: lock user: %w", op, err)
	}

	var hasActive bool
	err = tx.QueryRowContext(ctx, `SELECT EXISTS (
			SELECT 1 FROM subscriptions
			WHERE user_id = $1 AND status = 'active' AND end_date > $2)`,
		sub.UserID, now).Scan(&hasActive)
	if err != nil {
		return nil, fmt.Errorf("%s: check active: %w", op, err)
	}
	if hasActive {
		return nil, fmt.Errorf("%s: %w", op, ErrActiveSubscription)
	}

	if sub.IsTrial {
		var trialUsed bool
		err = tx.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM subscriptions WHERE user_id = $1 AND is_trial)`,
			sub.UserID).Scan(&trialUsed)
		if err != nil {
			return nil, fmt.Errorf("%s: check trial: %w", op, err)
		}
		if trialUsed {
			return nil, fmt.Errorf("%s: %w", op, ErrTrialUsed)
		}
	}

	query := `INSERT INTO subscriptions (user_id, subscription_type, status, start_date, end_date, is_trial, auto_renew)
			  VALUES ($1, $2, $3, $4, $5, $6, $7)
			  RETURNING id, created_at`
	err = tx.QueryRowContext(ctx, query,
		sub.UserID, string(sub.Tier), string(sub.Status), sub.StartDate, sub.EndDate, sub.IsTrial, sub.AutoRenew).
		Scan(&sub.ID, &sub.CreatedAt)
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("%s: %w", op, ErrTrialUsed)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: insert: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%s: commit: %w", op, err)
	}
	return &sub, nil
}

// LatestSubscription возвращает подписку со статусом active и самой поздней датой окончания.
// Истечение срока не проверяется: это делает вызывающий код.
func (s *Storage) LatestSubscription(ctx context.Context, userID int64) (*models.Subscription, error) {
	const op = "storage.LatestSubscription"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	query := `SELECT ` + subscriptionColumns + `
			  FROM subscriptions
			  WHERE user_id = $1 AND status = 'active'
			  ORDER BY end_date DESC, id DESC
			  LIMIT 1`
	sub, err := scanSubscription(s.DB.QueryRowContext(ctx, query, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return sub, nil
}

// CancelAutoRenew снимает флаг автопродления. Подписка должна принадлежать userID.
func (s *Storage) CancelAutoRenew(ctx context.Context, subscriptionID, userID int64) error {
	const op = "storage.CancelAutoRenew"
	if err := checkCtx(ctx, op); err != nil {
		return err
	}

	result, err := s.DB.ExecContext(ctx,
		`UPDATE subscriptions SET auto_renew = FALSE WHERE id = $1 AND user_id = $2`,
		subscriptionID, userID)
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

func scanSubscription(row *sql.Row) (*models.Subscription, error) {
	var (
		sub    models.Subscription
		tier   string
		status string
	)
	if err := row.Scan(&sub.ID, &sub.UserID, &tier, &status, &sub.StartDate, &sub.EndDate,
		&sub.IsTrial, &sub.AutoRenew, &sub.CreatedAt); err != nil {
		return nil, err
	}
	sub.Tier = models.Tier(tier)
	sub.Status = models.SubscriptionStatus(status)
	return &sub, nil
}

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/magabrotheeeer/zdravscan/internal/models"
)

const scanColumns = `id, user_id, image_path, status, condition_detected, description,
		confidence, recommendations, created_at, processed_at`

// CreateJob сохраняет новую задачу анализа.
func (s *Storage) CreateJob(ctx context.Context, job models.AnalysisJob) error {
	const op = "storage.CreateJob"
	if err := checkCtx(ctx, op); err != nil {
		return err
	}

	query := `INSERT INTO scans (id, user_id, image_path, status, created_at)
			  VALUES ($1, $2, $3, $4, $5)`
	_, err := s.DB.ExecContext(ctx, query, job.ID, job.UserID, job.InputRef, string(job.State), job.CreatedAt)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// TransitionJob переводит задачу из состояния from в to.
// Если задача не в состоянии from, возвращает ErrStateConflict.
func (s *Storage) TransitionJob(ctx context.Context, id string, from, to models.JobState) error {
	const op = "storage.TransitionJob"
	if err := checkCtx(ctx, op); err != nil {
		return err
	}

	result, err := s.DB.ExecContext(ctx,
		`UPDATE scans SET status = $3 WHERE id = $1 AND status = $2`,
		id, string(from), string(to))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return affectedOrConflict(op, result)
}

// FailJob переводит незавершённую задачу (submitted или processing) в failed.
func (s *Storage) FailJob(ctx context.Context, id string, at time.Time) error {
	const op = "storage.FailJob"
	if err := checkCtx(ctx, op); err != nil {
		return err
	}

	result, err := s.DB.ExecContext(ctx,
		`UPDATE scans SET status = 'failed', processed_at = $2 WHERE id = $1 AND status IN ('submitted', 'processing')`,
		id, at)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return affectedOrConflict(op, result)
}

// CompleteJob записывает результат задачи и, если entry не nil, запись истории
// в одной транзакции. Задача должна быть в состоянии processing.
func (s *Storage) CompleteJob(ctx context.Context, id string, res models.AnalysisResult, at time.Time, entry *models.HistoryEntry) error {
	const op = "storage.CompleteJob"
	if err := checkCtx(ctx, op); err != nil {
		return err
	}

	recs, err := json.Marshal(nonNil(res.Recommendations))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: begin: %w", op, err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx,
		`UPDATE scans
		 SET status = 'completed', condition_detected = $2, description = $3,
		     confidence = $4, recommendations = $5::jsonb, processed_at = $6
		 WHERE id = $1 AND status = 'processing'`,
		id, res.Label, res.Description, res.Confidence, string(recs), at)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := affectedOrConflict(op, result); err != nil {
		return err
	}

	if entry != nil {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO query_history (user_id, query_text, scan_id, created_at) VALUES ($1, $2, $3, $4)`,
			entry.UserID, entry.QueryText, entry.JobID, entry.CreatedAt)
		if err != nil {
			return fmt.Errorf("%s: history: %w", op, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: commit: %w", op, err)
	}
	return nil
}

// GetJob возвращает задачу по id без проверки владельца.
func (s *Storage) GetJob(ctx context.Context, id string) (*models.AnalysisJob, error) {
	const op = "storage.GetJob"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	rows, err := s.DB.QueryContext(ctx, `SELECT `+scanColumns+` FROM scans WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	job, err := scanJob(rows)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return job, nil
}

// ListJobs возвращает страницу задач пользователя (новые первыми) и их общее число.
func (s *Storage) ListJobs(ctx context.Context, userID int64, limit, offset int) ([]models.AnalysisJob, int, error) {
	const op = "storage.ListJobs"
	if err := checkCtx(ctx, op); err != nil {
		return nil, 0, err
	}

	var total int
	if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM scans WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("%s: count: %w", op, err)
	}

	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+scanColumns+` FROM scans WHERE user_id = $1
		 ORDER BY created_at DESC, id LIMIT $2 OFFSET $3`,
		userID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	jobs := make([]models.AnalysisJob, 0, limit)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("%s: %w", op, err)
		}
		jobs = append(jobs, *job)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("%s: %w", op, err)
	}
	return jobs, total, nil
}

func scanJob(rows *sql.Rows) (*models.AnalysisJob, error) {
	var (
		job         models.AnalysisJob
		state       string
		label       sql.NullString
		description sql.NullString
		confidence  sql.NullFloat64
		recs        sql.NullString
		processedAt sql.NullTime
	)
	if err := rows.Scan(&job.ID, &job.UserID, &job.InputRef, &state, &label, &description,
		&confidence, &recs, &job.CreatedAt, &processedAt); err != nil {
		return nil, err
	}
	job.State = models.JobState(state)
	if processedAt.Valid {
		t := processedAt.Time
		job.CompletedAt = &t
	}
	if job.State == models.JobCompleted {
		res := &models.AnalysisResult{
			Label:       label.String,
			Description: description.String,
			Confidence:  confidence.Float64,
		}
		if recs.Valid {
			if err := json.Unmarshal([]byte(recs.String), &res.Recommendations); err != nil {
				return nil, fmt.Errorf("decode recommendations: %w", err)
			}
		}
		job.Result = res
	}
	return &job, nil
}

func affectedOrConflict(op string, result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%s: %w", op, ErrStateConflict)
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/zdravscan/internal/lib/sl"
	"github.com/magabrotheeeer/zdravscan/internal/metrics"
	"github.com/magabrotheeeer/zdravscan/internal/models"
	"github.com/magabrotheeeer/zdravscan/internal/storage"
)

// Ограничения пагинации списка задач.
const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// Tracker принимает задачи и отдаёт их состояние владельцу.
// Право на анализ проверяется до вызова Submit.
type Tracker struct {
	repo       Repository
	dispatcher Dispatcher
	metrics    Metrics
	now        func() time.Time
	log        *slog.Logger
}

// NewTracker создаёт Tracker.
func NewTracker(repo Repository, dispatcher Dispatcher, m Metrics, log *slog.Logger) *Tracker {
	return &Tracker{
		repo:       repo,
		dispatcher: dispatcher,
		metrics:    m,
		now:        time.Now,
		log:        log,
	}
}

// Submit создаёт задачу, переводит её в processing и отправляет исполнителю.
// Если отправить не удалось, задача помечается failed и возвращается ErrDispatch.
func (t *Tracker) Submit(ctx context.Context, userID int64, inputRef string) (*models.AnalysisJob, error) {
	const op = "analysis.Submit"
	log := t.log.With(slog.String("op", op), slog.Int64("user_id", userID))

	job := models.AnalysisJob{
		ID:        uuid.NewString(),
		UserID:    userID,
		InputRef:  inputRef,
		State:     models.JobSubmitted,
		CreatedAt: t.now().UTC(),
	}
	if err := t.repo.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := t.repo.TransitionJob(ctx, job.ID, models.JobSubmitted, models.JobProcessing); err != nil {
		log.Error("failed to start job", slog.String("job_id", job.ID), sl.Err(err))
		if failErr := t.repo.FailJob(context.WithoutCancel(ctx), job.ID, t.now().UTC()); failErr != nil {
			log.Error("failed to mark job failed", slog.String("job_id", job.ID), sl.Err(failErr))
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	job.State = models.JobProcessing

	if err := t.dispatcher.Dispatch(ctx, Task{JobID: job.ID, InputRef: inputRef}); err != nil {
		log.Error("failed to dispatch task", slog.String("job_id", job.ID), sl.Err(err))
		if failErr := t.repo.FailJob(context.WithoutCancel(ctx), job.ID, t.now().UTC()); failErr != nil {
			log.Error("failed to mark job failed", slog.String("job_id", job.ID), sl.Err(failErr))
		}
		t.metrics.RecordJobFailed(metrics.ReasonDispatch)
		return nil, fmt.Errorf("%s: %w: %w", op, ErrDispatch, err)
	}

	t.metrics.RecordJobSubmitted()
	log.Info("scan submitted", slog.String("job_id", job.ID))
	return &job, nil
}

// Get возвращает задачу, если она принадлежит userID. Иначе ErrJobNotFound.
func (t *Tracker) Get(ctx context.Context, jobID string, userID int64) (*models.AnalysisJob, error) {
	const op = "analysis.Get"
	if _, err := uuid.Parse(jobID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, ErrJobNotFound)
	}

	job, err := t.repo.GetJob(ctx, jobID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", op, ErrJobNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if job.UserID != userID {
		return nil, fmt.Errorf("%s: %w", op, ErrJobNotFound)
	}
	return job, nil
}

// List возвращает страницу задач пользователя, новые первыми.
func (t *Tracker) List(ctx context.Context, userID int64, limit, offset int) (*Page, error) {
	const op = "analysis.List"
	limit, offset = ClampPage(limit, offset, DefaultPageSize, MaxPageSize)

	jobs, total, err := t.repo.ListJobs(ctx, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &Page{Jobs: jobs, Total: total}, nil
}

// ClampPage приводит параметры пагинации к допустимым значениям.
func ClampPage(limit, offset, def, maxLimit int) (int, int) {
	if limit <= 0 {
		limit = def
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/zdravscan/internal/lib/sl"
	"github.com/magabrotheeeer/zdravscan/internal/metrics"
	"github.com/magabrotheeeer/zdravscan/internal/models"
	"github.com/magabrotheeeer/zdravscan/internal/storage"
)

// Worker выполняет одну задачу: вызывает анализатор и записывает результат.
// Повторных попыток не делает.
type Worker struct {
	repo         Repository
	analyzer     Analyzer
	metrics      Metrics
	timeout      time.Duration
	historyLimit int
	now          func() time.Time
	log          *slog.Logger
}

// NewWorker создаёт Worker. timeout ограничивает один вызов анализатора,
// historyLimit - длину текста записи истории в символах.
func NewWorker(repo Repository, analyzer Analyzer, m Metrics, timeout time.Duration, historyLimit int, log *slog.Logger) *Worker {
	return &Worker{
		repo:         repo,
		analyzer:     analyzer,
		metrics:      m,
		timeout:      timeout,
		historyLimit: historyLimit,
		now:          time.Now,
		log:          log,
	}
}

// Process обрабатывает задачу. Задача, которая уже не в processing, пропускается.
// Ошибка с ErrTransient означает, что задачу не удалось прочитать и её можно повторить.
func (w *Worker) Process(ctx context.Context, task Task) error {
	const op = "analysis.Process"
	log := w.log.With(slog.String("op", op), slog.String("job_id", task.JobID))

	if _, err := uuid.Parse(task.JobID); err != nil {
		return fmt.Errorf("%s: %w", op, ErrJobNotFound)
	}
	job, err := w.repo.GetJob(ctx, task.JobID)
	if errors.Is(err, storage.ErrNotFound) {
		log.Warn("job not found, task dropped")
		return fmt.Errorf("%s: %w", op, ErrJobNotFound)
	}
	if err != nil {
		return fmt.Errorf("%s: %w: %w", op, ErrTransient, err)
	}
	if job.State != models.JobProcessing {
		log.Debug("job is not processing, skipped", slog.String("state", string(job.State)))
		return nil
	}

	inputRef := task.InputRef
	if inputRef == "" {
		inputRef = job.InputRef
	}

	start := time.Now()
	res, err := w.analyze(ctx, inputRef)
	w.metrics.RecordAnalyzerLatency(time.Since(start))

	reason := metrics.ReasonAnalyzer
	if err == nil {
		if err = validateResult(res); err != nil {
			reason = metrics.ReasonInvalid
		}
	}
	if err != nil {
		log.Warn("analysis failed", sl.Err(err))
		return w.fail(ctx, log, job.ID, reason)
	}

	return w.complete(ctx, log, job, res)
}

// analyze вызывает анализатор с таймаутом. Паника анализатора возвращается как ошибка.
func (w *Worker) analyze(ctx context.Context, inputRef string) (res *models.AnalysisResult, err error) {
	const op = "analysis.analyze"
	actx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			res = nil
			err = fmt.Errorf("%s: analyzer panic: %v", op, r)
		}
	}()
	return w.analyzer.Analyze(actx, inputRef)
}

func (w *Worker) fail(ctx context.Context, log *slog.Logger, jobID, reason string) error {
	const op = "analysis.fail"
	err := w.repo.FailJob(ctx, jobID, w.now().UTC())
	if errors.Is(err, storage.ErrStateConflict) {
		return nil
	}
	if err != nil {
		log.Error("failed to mark job failed", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}
	w.metrics.RecordJobFailed(reason)
	return nil
}

func (w *Worker) complete(ctx context.Context, log *slog.Logger, job *models.AnalysisJob, res *models.AnalysisResult) error {
	const op = "analysis.complete"
	now := w.now().UTC()
	entry := &models.HistoryEntry{
		UserID:    job.UserID,
		QueryText: truncate(res.Label, w.historyLimit),
		JobID:     &job.ID,
		CreatedAt: now,
	}

	err := w.repo.CompleteJob(ctx, job.ID, *res, now, entry)
	if errors.Is(err, storage.ErrStateConflict) {
		return nil
	}
	if err != nil {
		// история не обязательна: сохраняем хотя бы результат
		log.Warn("failed to save result with history, retrying without history", sl.Err(err))
		err = w.repo.CompleteJob(ctx, job.ID, *res, now, nil)
		if errors.Is(err, storage.ErrStateConflict) {
			return nil
		}
		if err != nil {
			log.Error("failed to save result", sl.Err(err))
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	w.metrics.RecordJobCompleted()
	log.Info("scan completed", slog.String("condition", res.Label))
	return nil
}

func validateResult(res *models.AnalysisResult) error {
	if res == nil {
		return fmt.Errorf("%w: empty result", ErrInvalidResult)
	}
	if strings.TrimSpace(res.Label) == "" {
		return fmt.Errorf("%w: empty label", ErrInvalidResult)
	}
	if math.IsNaN(res.Confidence) || res.Confidence < 0 || res.Confidence > 1 {
		return fmt.Errorf("%w: confidence %v out of range", ErrInvalidResult, res.Confidence)
	}
	return nil
}

func truncate(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit])
}
